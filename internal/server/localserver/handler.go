package localserver

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/internal/core/service"
)

// Request is one operation from a gateway. Fields beyond Op are
// per-operation; unused ones stay empty.
type Request struct {
	Op string `json:"op"`

	CardUID      string `json:"card_uid,omitempty"`
	MachineID    string `json:"machine_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	CardResponse string `json:"card_response,omitempty"` // hex

	WalletID    string `json:"wallet_id,omitempty"`
	ProductType string `json:"product_type,omitempty"`
	AmountPaise int64  `json:"amount_paise,omitempty"`
}

// Response is the verdict for one request. OK false carries an error
// code; business rejections (failed auth, insufficient balance) are OK
// true with their own fields.
type Response struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	SessionID  string `json:"session_id,omitempty"`
	Command    string `json:"command,omitempty"` // hex APDU for the card
	KeyVersion int    `json:"key_version,omitempty"`

	Authenticated *bool  `json:"authenticated,omitempty"`
	SessionKey    string `json:"session_key,omitempty"` // hex

	Success        *bool  `json:"success,omitempty"`
	Reason         string `json:"reason,omitempty"`
	RemainingPaise int64  `json:"remaining_paise,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`

	Sessions map[string]int `json:"sessions,omitempty"`
}

// Handler dispatches gateway requests to the domain services.
type Handler struct {
	auth     *service.AuthService
	dispense *service.DispenseService
	logger   *slog.Logger
}

// NewHandler creates a Handler over the two domain services.
func NewHandler(auth *service.AuthService, dispense *service.DispenseService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, dispense: dispense, logger: logger}
}

// Execute runs one request and always returns a response to write.
func (h *Handler) Execute(ctx context.Context, req *Request) *Response {
	switch req.Op {
	case "auth.start":
		return h.authStart(ctx, req)
	case "auth.continue":
		return h.authContinue(ctx, req)
	case "auth.finalize":
		return h.authFinalize(ctx, req)
	case "dispense":
		return h.doDispense(ctx, req)
	case "status":
		return h.status()
	default:
		return errorResponse(domain.ErrInvalidArgument.WithDetails("unknown op: " + req.Op))
	}
}

func (h *Handler) authStart(ctx context.Context, req *Request) *Response {
	resp, err := h.auth.Start(ctx, &service.StartRequest{
		CardUID:   req.CardUID,
		MachineID: req.MachineID,
	})
	if err != nil {
		return errorResponse(err)
	}
	return &Response{
		OK:         true,
		SessionID:  resp.SessionID,
		Command:    hex.EncodeToString(resp.OutboundCommand),
		KeyVersion: resp.KeyVersion,
	}
}

func (h *Handler) authContinue(ctx context.Context, req *Request) *Response {
	ciphertext, err := hex.DecodeString(req.CardResponse)
	if err != nil {
		return errorResponse(domain.ErrInvalidArgument.WithDetails("card_response must be hex"))
	}
	resp, err := h.auth.Continue(ctx, &service.ContinueRequest{
		SessionID:      req.SessionID,
		CardCiphertext: ciphertext,
	})
	if err != nil {
		return errorResponse(err)
	}
	return &Response{
		OK:      true,
		Command: hex.EncodeToString(resp.OutboundCommand),
	}
}

func (h *Handler) authFinalize(ctx context.Context, req *Request) *Response {
	ciphertext, err := hex.DecodeString(req.CardResponse)
	if err != nil {
		return errorResponse(domain.ErrInvalidArgument.WithDetails("card_response must be hex"))
	}
	resp, err := h.auth.Finalize(ctx, &service.FinalizeRequest{
		SessionID:      req.SessionID,
		CardCiphertext: ciphertext,
	})
	if err != nil {
		return errorResponse(err)
	}
	out := &Response{
		OK:            true,
		Authenticated: &resp.Authenticated,
	}
	if resp.Authenticated {
		out.SessionKey = hex.EncodeToString(resp.SessionKey)
	}
	return out
}

func (h *Handler) doDispense(ctx context.Context, req *Request) *Response {
	result, err := h.dispense.Dispense(ctx, &service.DispenseRequest{
		WalletID:    req.WalletID,
		CardUID:     req.CardUID,
		MachineID:   req.MachineID,
		ProductType: req.ProductType,
		AmountPaise: req.AmountPaise,
	})
	if err != nil {
		return errorResponse(err)
	}
	return &Response{
		OK:             true,
		Success:        &result.Success,
		Reason:         result.Reason,
		RemainingPaise: result.RemainingPaise,
		TransactionID:  result.TransactionID,
	}
}

func (h *Handler) status() *Response {
	stats := h.auth.Status()
	sessions := make(map[string]int, len(stats.ByState)+1)
	sessions["total"] = stats.Total
	for state, n := range stats.ByState {
		sessions[string(state)] = n
	}
	return &Response{OK: true, Sessions: sessions}
}

func errorResponse(err error) *Response {
	return &Response{
		OK:    false,
		Code:  domain.CodeOf(err),
		Error: err.Error(),
	}
}
