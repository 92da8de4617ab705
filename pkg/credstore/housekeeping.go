package credstore

import (
	"context"
	"log/slog"
	"time"
)

// Expirer deletes values whose TTL has passed.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Housekeeper periodically purges expired values from a persistent Storage driver.
type Housekeeper struct {
	Store    Expirer
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeper returns a Housekeeper. A non-positive interval defaults to one hour.
func NewHousekeeper(store Expirer, logger *slog.Logger, interval time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Housekeeper{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (h *Housekeeper) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval)
}

// Stop blocks until any in-progress purge has finished.
func (h *Housekeeper) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("housekeeping stopped")
}

func (h *Housekeeper) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.purge()

	for {
		select {
		case <-ticker.C:
			h.purge()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeper) purge() {
	n, err := h.Store.DeleteExpired(context.Background())
	if err != nil {
		h.Logger.Error("failed to delete expired session values", "error", err)
		return
	}
	h.Logger.Debug("housekeeping purge completed", "deleted", n)
}
