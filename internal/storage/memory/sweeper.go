package memory

import (
	"log/slog"
	"time"
)

// Sweeper periodically removes expired sessions from a Store.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
	onSweep  func(removed int)

	stopCh chan struct{}
	doneCh chan struct{}
}

// SweeperOption configures the Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval sets the sweep interval.
func WithInterval(d time.Duration) SweeperOption {
	return func(sw *Sweeper) { sw.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SweeperOption {
	return func(sw *Sweeper) { sw.logger = l }
}

// WithOnSweep registers a callback invoked after each pass, e.g. to
// feed a metrics counter.
func WithOnSweep(fn func(removed int)) SweeperOption {
	return func(sw *Sweeper) { sw.onSweep = fn }
}

// NewSweeper creates a Sweeper for the store. Call Start to begin.
func NewSweeper(store *Store, opts ...SweeperOption) *Sweeper {
	sw := &Sweeper{
		store:    store,
		interval: DefaultSweepInterval,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Start launches the background sweep loop.
func (sw *Sweeper) Start() {
	go sw.loop()
}

// Stop terminates the loop and waits for it to finish.
func (sw *Sweeper) Stop() {
	close(sw.stopCh)
	<-sw.doneCh
}

func (sw *Sweeper) loop() {
	defer close(sw.doneCh)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := sw.store.Sweep()
			if removed > 0 {
				sw.logger.Info("expired auth sessions swept", "removed", removed)
			}
			if sw.onSweep != nil {
				sw.onSweep(removed)
			}
		case <-sw.stopCh:
			return
		}
	}
}
