// Package sweeper periodically removes expired sessions and their
// conversation history.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kubesage/kubesage/internal/session"
)

// Expirer removes expired sessions from a store and reports their ids.
type Expirer interface {
	Expire(ctx context.Context) ([]string, error)
}

// MemoryExpirer adapts the in-memory session store.
type MemoryExpirer struct {
	Store *session.MemoryStore
}

func (m MemoryExpirer) Expire(context.Context) ([]string, error) {
	return m.Store.Sweep(), nil
}

// PostgresExpirer adapts the postgres session store with its configured
// idle timeout.
type PostgresExpirer struct {
	Store  *session.PostgresStore
	Expiry time.Duration
}

func (p PostgresExpirer) Expire(ctx context.Context) ([]string, error) {
	if p.Expiry <= 0 {
		return nil, nil
	}
	return p.Store.Expire(ctx, p.Expiry)
}

// Sweeper runs session expiry on a cron schedule.
type Sweeper struct {
	cron     *cron.Cron
	expirer  Expirer
	sessions *session.Manager
	logger   *slog.Logger
}

// New creates a sweeper running on the given cron schedule, e.g.
// "@every 10m".
func New(schedule string, expirer Expirer, sessions *session.Manager, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:     cron.New(),
		expirer:  expirer,
		sessions: sessions,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := s.expirer.Expire(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	for _, id := range expired {
		if err := s.sessions.Reset(ctx, id); err != nil {
			s.logger.Warn("could not clear history for expired session", "session_id", id, "error", err)
		}
	}
	if len(expired) > 0 {
		s.logger.Info("swept expired sessions", "count", len(expired))
	}
}
