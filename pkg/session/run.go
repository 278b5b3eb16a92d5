package session

import (
	"context"
	"fmt"
	"sync"
)

// Run waits for the estimator and then schedules attempts on the session
// clock until ctx is done. With CadenceMs > 0 an attempt starts every
// interval and overlapping ticks are skipped by the guard. Otherwise the next
// attempt starts when the previous one finishes, after ContinuousGap.
//
// Returns ErrModelNotReady if the estimator is not ready within
// ReadyTimeout. That failure is not retried.
func (s *Session) Run(ctx context.Context) error {
	if s.source == nil {
		s.logger.Info("push-only session, waiting for landmarks")
		s.metrics.SessionStarted(ctx)
		defer s.metrics.SessionStopped(context.Background())
		<-ctx.Done()
		return nil
	}

	if err := s.waitReady(ctx); err != nil {
		return err
	}
	s.metrics.SessionStarted(ctx)
	defer s.metrics.SessionStopped(context.Background())

	s.logger.Info("session started", "mode", s.cfg.Mode(), "cadence_ms", s.cfg.CadenceMs)
	if s.cfg.CadenceMs > 0 {
		s.runInterval(ctx)
	} else {
		s.runContinuous(ctx)
	}
	s.logger.Info("session stopped", "stats", s.Stats())
	return nil
}

func (s *Session) runInterval(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.Cadence()):
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.TryCapture(ctx)
			}()
		}
	}
}

func (s *Session) runContinuous(ctx context.Context) {
	for ctx.Err() == nil {
		outcome, _ := s.TryCapture(ctx)

		wait := s.cfg.ContinuousGap
		if outcome == OutcomeError && s.cfg.ErrorBackoff > wait {
			wait = s.cfg.ErrorBackoff
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}
	}
}

// waitReady polls the estimator until it is ready.
func (s *Session) waitReady(ctx context.Context) error {
	if s.est.Ready() {
		return nil
	}
	s.logger.Info("waiting for landmark model", "timeout", s.cfg.ReadyTimeout)

	deadline := s.clock.After(s.cfg.ReadyTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			s.logger.Error("landmark model not ready", "waited", s.cfg.ReadyTimeout)
			return fmt.Errorf("session %q: %w", s.cfg.ID, ErrModelNotReady)
		case <-s.clock.After(s.cfg.ReadyPollInterval):
			if s.est.Ready() {
				return nil
			}
		}
	}
}
