// Package service provides the domain services for VendCore.
//
// AuthService drives the three-step mutual authentication handshake
// with a card; DispenseService debits the wallet once a card has
// authenticated.
package service

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/internal/storage/memory"
	"github.com/urbanketl/vendcore/pkg/desfire"
)

// DefaultGraceDelete is how long a verified session stays readable
// before deletion, so an immediately following read (audit, logging)
// still finds it.
const DefaultGraceDelete = 5 * time.Second

// Default per-machine limit on authentication starts.
const (
	DefaultRateLimit = rate.Limit(2) // starts per second
	DefaultRateBurst = 5
)

// SessionStore is the storage interface for handshake sessions.
type SessionStore interface {
	// Create inserts a new session; the ID must be unused.
	Create(ctx context.Context, session *domain.AuthSession) error

	// Get returns a live session or domain.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*domain.AuthSession, error)

	// Update applies fn to a live session and refreshes its TTL.
	Update(ctx context.Context, id string, fn func(*domain.AuthSession) error) error

	// Delete removes a session; absent sessions are a no-op.
	Delete(ctx context.Context, id string)

	// Stats returns session counts grouped by state.
	Stats() memory.Stats
}

// KeyStore resolves the active authentication key for a card.
type KeyStore interface {
	Active(ctx context.Context, cardUID string) (*domain.CardKey, error)
}

// AuditSink receives authentication attempt records. Write-only.
type AuditSink interface {
	Record(ctx context.Context, attempt domain.AuthAttempt) error
}

// AuthService coordinates the DESFire mutual authentication protocol.
//
// The handshake is three strictly sequential steps: the card proves
// key knowledge to the host in Continue, the host proves it back in
// the challenge it returns, and Finalize checks the card's echo of the
// host nonce. Each step is pure in-memory work against the session
// store.
type AuthService struct {
	sessions SessionStore
	keys     KeyStore
	audit    AuditSink
	logger   *slog.Logger

	graceDelete time.Duration
	onOutcome   func(outcome string)
	onStart     func()
	onThrottle  func()

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// AuthOption configures the AuthService.
type AuthOption func(*AuthService)

// WithAuthLogger sets the logger.
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(s *AuthService) { s.logger = l }
}

// WithAuditSink sets the attempt audit sink.
func WithAuditSink(sink AuditSink) AuthOption {
	return func(s *AuthService) { s.audit = sink }
}

// WithGraceDelete sets how long a verified session survives before
// deletion. Zero deletes immediately.
func WithGraceDelete(d time.Duration) AuthOption {
	return func(s *AuthService) { s.graceDelete = d }
}

// WithOutcomeHook registers a callback invoked once per terminal
// handshake outcome, e.g. to feed metrics.
func WithOutcomeHook(fn func(outcome string)) AuthOption {
	return func(s *AuthService) { s.onOutcome = fn }
}

// WithStartHook registers a callback invoked once per created session.
func WithStartHook(fn func()) AuthOption {
	return func(s *AuthService) { s.onStart = fn }
}

// WithThrottleHook registers a callback invoked once per rate-limited
// start.
func WithThrottleHook(fn func()) AuthOption {
	return func(s *AuthService) { s.onThrottle = fn }
}

// WithRateLimit sets the per-machine limit on authentication starts.
func WithRateLimit(limit rate.Limit, burst int) AuthOption {
	return func(s *AuthService) {
		s.limit = limit
		s.burst = burst
	}
}

// NewAuthService creates an AuthService.
func NewAuthService(sessions SessionStore, keys KeyStore, opts ...AuthOption) *AuthService {
	s := &AuthService{
		sessions:    sessions,
		keys:        keys,
		logger:      slog.Default(),
		graceDelete: DefaultGraceDelete,
		limit:       DefaultRateLimit,
		burst:       DefaultRateBurst,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartRequest initiates a handshake for one card presentation.
type StartRequest struct {
	CardUID   string // Required, hex
	MachineID string // Optional, for rate limiting and audit
}

// StartResponse carries the new session and the APDU the transport
// must forward to the card.
type StartResponse struct {
	SessionID       string
	OutboundCommand []byte
	KeyVersion      int
}

// Start creates a session and produces the AuthenticateAES command.
// The card's key is resolved here and pinned to the session, so a key
// rotation mid-handshake cannot desynchronize the protocol.
func (s *AuthService) Start(ctx context.Context, req *StartRequest) (*StartResponse, error) {
	// 1. Validate the card identity.
	if req.CardUID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("card uid is required")
	}
	if !domain.IsValidCardUID(req.CardUID) {
		return nil, domain.ErrInvalidArgument.WithDetails("card uid must be hex")
	}

	// 2. Throttle per machine before touching the key store.
	if !s.limiter(req.MachineID).Allow() {
		if s.onThrottle != nil {
			s.onThrottle()
		}
		return nil, domain.ErrRateLimited.WithDetails(req.MachineID)
	}

	// 3. Resolve and pin the card key.
	key, err := s.keys.Active(ctx, req.CardUID)
	if err != nil {
		return nil, err
	}

	// 4. Create the session in Started state.
	session, err := domain.NewAuthSession(req.CardUID, req.MachineID, key.Index, key.Version, key.Key)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if s.onStart != nil {
		s.onStart()
	}

	s.logger.Debug("handshake started",
		"session_id", session.ID,
		"card_uid", session.CardUID,
		"machine_id", req.MachineID,
		"key_version", key.Version)

	return &StartResponse{
		SessionID:       session.ID,
		OutboundCommand: desfire.AuthenticateCommand(key.Index),
		KeyVersion:      key.Version,
	}, nil
}

// ContinueRequest carries the card's first reply, enc(RndB).
type ContinueRequest struct {
	SessionID      string
	CardCiphertext []byte // Exactly 16 bytes
}

// ContinueResponse carries the 32-byte challenge APDU for the card.
type ContinueResponse struct {
	OutboundCommand []byte
}

// Continue processes the card's encrypted nonce and produces the
// host's challenge: enc(RndA || rot(RndB)) under the same key.
func (s *AuthService) Continue(ctx context.Context, req *ContinueRequest) (*ContinueResponse, error) {
	if req.SessionID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("session id is required")
	}

	// 1. Shape check before any session mutation.
	if len(req.CardCiphertext) != desfire.BlockSize {
		return nil, domain.ErrMalformedResponse.WithDetails("card reply must be 16 bytes")
	}

	// 2. Only a freshly started session may continue.
	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.State != domain.AuthStateStarted {
		return nil, domain.ErrInvalidState.WithDetails(string(session.State))
	}

	// 3. Recover the card nonce. A crypto failure here is terminal for
	// the session.
	cardNonce, err := desfire.Decrypt(req.CardCiphertext, session.Key)
	if err != nil {
		s.failSession(ctx, session, domain.AttemptOutcomeCrypto, req.CardCiphertext, err.Error())
		return nil, domain.ErrCryptoFailure.WithCause(err)
	}

	// 4. Build the mutual challenge: our nonce plus the card's,
	// rotated, encrypted as one 32-byte CBC unit.
	hostNonce, err := desfire.RandomNonce()
	if err != nil {
		s.failSession(ctx, session, domain.AttemptOutcomeCrypto, req.CardCiphertext, err.Error())
		return nil, domain.ErrCryptoFailure.WithCause(err)
	}
	challenge := make([]byte, 0, desfire.ChallengeSize)
	challenge = append(challenge, hostNonce...)
	challenge = append(challenge, desfire.RotateLeft(cardNonce)...)

	ciphertext, err := desfire.Encrypt(challenge, session.Key)
	if err != nil {
		s.failSession(ctx, session, domain.AttemptOutcomeCrypto, req.CardCiphertext, err.Error())
		return nil, domain.ErrCryptoFailure.WithCause(err)
	}
	outbound, err := desfire.ContinueCommand(ciphertext)
	if err != nil {
		s.failSession(ctx, session, domain.AttemptOutcomeCrypto, req.CardCiphertext, err.Error())
		return nil, domain.ErrCryptoFailure.WithCause(err)
	}

	// 5. Advance the state machine.
	err = s.sessions.Update(ctx, req.SessionID, func(sess *domain.AuthSession) error {
		if !sess.CanTransition(domain.AuthStateChallengeSent) {
			return domain.ErrInvalidState.WithDetails(string(sess.State))
		}
		sess.CardNonce = cardNonce
		sess.HostNonce = hostNonce
		sess.State = domain.AuthStateChallengeSent
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ContinueResponse{OutboundCommand: outbound}, nil
}

// FinalizeRequest carries the card's echo of the rotated host nonce.
type FinalizeRequest struct {
	SessionID      string
	CardCiphertext []byte // Exactly 16 bytes
}

// FinalizeResponse reports the handshake verdict. A rejection is a
// result, not an error; SessionKey is set only when Authenticated.
type FinalizeResponse struct {
	Authenticated bool
	SessionKey    []byte
	CardUID       string
}

// Finalize verifies the card's proof and closes the handshake.
//
// The card must return rot(RndA) encrypted under the shared key. On a
// byte mismatch the session fails and the caller gets a plain
// {authenticated: false}; which byte differed is deliberately not
// reported.
func (s *AuthService) Finalize(ctx context.Context, req *FinalizeRequest) (*FinalizeResponse, error) {
	if req.SessionID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("session id is required")
	}

	// 1. State check first, with no crypto on the wrong state.
	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.State != domain.AuthStateChallengeSent {
		return nil, domain.ErrInvalidState.WithDetails(string(session.State))
	}

	// 2. A malformed final reply fails the session.
	if len(req.CardCiphertext) != desfire.BlockSize {
		s.failSession(ctx, session, domain.AttemptOutcomeMalformed, req.CardCiphertext, "card reply must be 16 bytes")
		return nil, domain.ErrMalformedResponse.WithDetails("card reply must be 16 bytes")
	}

	// 3. Recover the card's claimed rot(RndA).
	claimed, err := desfire.Decrypt(req.CardCiphertext, session.Key)
	if err != nil {
		s.failSession(ctx, session, domain.AttemptOutcomeCrypto, req.CardCiphertext, err.Error())
		return nil, domain.ErrCryptoFailure.WithCause(err)
	}

	// 4. Constant-time comparison against our own rotation.
	expected := desfire.RotateLeft(session.HostNonce)
	if !hmac.Equal(claimed, expected) {
		s.failSession(ctx, session, domain.AttemptOutcomeMismatch, req.CardCiphertext, "")
		s.logger.Info("handshake rejected",
			"session_id", session.ID,
			"card_uid", session.CardUID,
			"machine_id", session.MachineID)
		return &FinalizeResponse{Authenticated: false}, nil
	}

	// 5. Mutual proof complete; derive the session key.
	sessionKey, err := desfire.DeriveSessionKey(session.HostNonce, session.CardNonce)
	if err != nil {
		s.failSession(ctx, session, domain.AttemptOutcomeCrypto, req.CardCiphertext, err.Error())
		return nil, domain.ErrCryptoFailure.WithCause(err)
	}

	if err := s.sessions.Update(ctx, session.ID, func(sess *domain.AuthSession) error {
		if !sess.CanTransition(domain.AuthStateVerified) {
			return domain.ErrInvalidState.WithDetails(string(sess.State))
		}
		sess.State = domain.AuthStateVerified
		return nil
	}); err != nil {
		return nil, err
	}

	// 6. Keep the verified session readable briefly, then drop it.
	s.scheduleDelete(session.ID)

	s.recordAttempt(ctx, session, domain.AttemptOutcomeVerified, req.CardCiphertext, "")
	s.emit(domain.AttemptOutcomeVerified)
	s.logger.Info("handshake verified",
		"session_id", session.ID,
		"card_uid", session.CardUID,
		"machine_id", session.MachineID)

	return &FinalizeResponse{
		Authenticated: true,
		SessionKey:    sessionKey,
		CardUID:       session.CardUID,
	}, nil
}

// Status returns the current session population by state.
func (s *AuthService) Status() memory.Stats {
	return s.sessions.Stats()
}

// failSession transitions a session to Failed and records the attempt.
// Failed sessions are left for the sweeper rather than deleted, so a
// brief forensic look is possible.
func (s *AuthService) failSession(ctx context.Context, session *domain.AuthSession, outcome string, response []byte, detail string) {
	err := s.sessions.Update(ctx, session.ID, func(sess *domain.AuthSession) error {
		if !sess.CanTransition(domain.AuthStateFailed) {
			return domain.ErrInvalidState.WithDetails(string(sess.State))
		}
		sess.State = domain.AuthStateFailed
		return nil
	})
	if err != nil {
		s.logger.Warn("could not mark session failed", "session_id", session.ID, "error", err)
	}
	s.recordAttempt(ctx, session, outcome, response, detail)
	s.emit(outcome)
}

func (s *AuthService) recordAttempt(ctx context.Context, session *domain.AuthSession, outcome string, response []byte, detail string) {
	if s.audit == nil {
		return
	}
	attempt := domain.AuthAttempt{
		SessionID: session.ID,
		CardUID:   session.CardUID,
		MachineID: session.MachineID,
		Outcome:   outcome,
		Response:  hex.EncodeToString(response),
		Error:     detail,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.audit.Record(ctx, attempt); err != nil {
		s.logger.Warn("audit record failed", "session_id", session.ID, "error", err)
	}
}

func (s *AuthService) scheduleDelete(sessionID string) {
	if s.graceDelete <= 0 {
		s.sessions.Delete(context.Background(), sessionID)
		return
	}
	time.AfterFunc(s.graceDelete, func() {
		s.sessions.Delete(context.Background(), sessionID)
	})
}

func (s *AuthService) emit(outcome string) {
	if s.onOutcome != nil {
		s.onOutcome(outcome)
	}
}

// limiter returns the rate limiter for a machine, creating it on first
// use. An empty machine ID shares one bucket.
func (s *AuthService) limiter(machineID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[machineID]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[machineID] = l
	}
	return l
}
