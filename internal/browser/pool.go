package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vendo/internal/interfaces"
)

// SessionPool holds a fixed set of sessions created eagerly at startup.
// Acquire hands out exclusive ownership; a session is never used by two
// tasks at once. The pool owns session lifecycle end to end.
type SessionPool struct {
	free      chan interfaces.Session
	all       []interfaces.Session
	size      int
	logger    arbor.ILogger
	closeOnce sync.Once
}

// NewSessionPool creates size sessions up front. Any construction failure
// tears down the sessions already created and fails the pool; the engine
// does not start with a partial pool.
func NewSessionPool(ctx context.Context, factory interfaces.SessionFactory, size int, logger arbor.ILogger) (*SessionPool, error) {
	if size < 1 {
		return nil, fmt.Errorf("session pool size must be at least 1, got %d", size)
	}

	logger.Info().
		Int("pool_size", size).
		Msg("Initializing session pool")

	p := &SessionPool{
		free:   make(chan interfaces.Session, size),
		all:    make([]interfaces.Session, 0, size),
		size:   size,
		logger: logger,
	}

	for i := 0; i < size; i++ {
		s, err := factory.NewSession(ctx)
		if err != nil {
			p.Cleanup()
			return nil, fmt.Errorf("failed to create session %d of %d: %w", i+1, size, err)
		}
		p.all = append(p.all, s)
		p.free <- s
	}

	logger.Info().
		Int("pool_size", size).
		Msg("Session pool initialized")

	return p, nil
}

// Acquire blocks until a session is available or ctx ends. The caller owns
// the returned session exclusively until Release.
func (p *SessionPool) Acquire(ctx context.Context) (interfaces.Session, error) {
	select {
	case s := <-p.free:
		p.logger.Debug().Msg("Session acquired from pool")
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool, waking the next blocked Acquire
func (p *SessionPool) Release(s interfaces.Session) {
	if s == nil {
		return
	}
	select {
	case p.free <- s:
		p.logger.Debug().Msg("Session released to pool")
	default:
		// Release of a session the pool did not hand out, or a double
		// release. Close it rather than grow the pool.
		p.logger.Warn().Msg("Release on a full pool, closing session")
		s.Close()
	}
}

// Size returns the fixed pool size
func (p *SessionPool) Size() int {
	return p.size
}

// Cleanup drains and closes every session. Idempotent; called exactly once
// at shutdown regardless of task outcomes.
func (p *SessionPool) Cleanup() {
	p.closeOnce.Do(func() {
		p.logger.Info().
			Int("pool_size", len(p.all)).
			Msg("Shutting down session pool")

		// Drain the free channel so no Acquire can win a session that is
		// about to be closed.
		for {
			select {
			case <-p.free:
				continue
			default:
			}
			break
		}

		for _, s := range p.all {
			if err := s.Close(); err != nil {
				p.logger.Warn().Err(err).Msg("Error closing session")
			}
		}
		p.all = nil

		p.logger.Info().Msg("Session pool shut down")
	})
}
