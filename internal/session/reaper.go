package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const reapTimeout = 30 * time.Second

// ReapExpired ends every active session past the staff lifetime.
func (m *Manager) ReapExpired(ctx context.Context) (int, error) {
	cutoff := m.now().UTC().Add(-m.staffTTL)
	list, err := m.store.ActiveSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range list {
		ok, err := m.end(ctx, s, ReasonExpired)
		if err != nil {
			m.log.Warn("session_reap_failed", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		if ok {
			n++
			m.recordExpired(ctx, s)
		}
	}
	return n, nil
}

// StartReaper runs ReapExpired every interval until ctx is cancelled.
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, reapTimeout)
				n, err := m.ReapExpired(tickCtx)
				cancel()
				if err != nil {
					m.log.Error("session_reaper_error", zap.Error(err))
					continue
				}
				if n > 0 {
					m.log.Info("session_reaper_expired", zap.Int("count", n))
				}
			}
		}
	}()
}
