// Package sweeper force-submits sessions whose wall-clock budget expired
// while no engine was running, so an abandoned attempt still yields a
// result after a crash or restart.
package sweeper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/examind/test-engine/internal/events"
	"github.com/examind/test-engine/internal/models"
	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/session"
	"github.com/examind/test-engine/internal/store"
	"github.com/examind/test-engine/internal/utils"
)

// SweepStore is the storage surface a sweep needs: the adapter contract
// plus key enumeration.
type SweepStore interface {
	store.Store
	store.Scanner
}

// idleGrace pads the idle window before a session counts as stranded, so a
// briefly stalled engine is never finalized mid-attempt. Live engines
// refresh the snapshot's UpdatedAt at least every few seconds.
const idleGrace = time.Minute

// Sweeper scans persisted sessions on a schedule and finalizes stranded
// ones. A session is stranded when it has been idle longer than the
// countdown its last snapshot had left; sessions owned by a live engine
// keep refreshing their snapshot and are left alone.
type Sweeper struct {
	scheduler *gocron.Scheduler
	store     SweepStore
	tests     questionbank.TestProvider
	bank      questionbank.Provider
	pub       events.Publisher
	logger    utils.Logger
	interval  time.Duration
}

func New(st SweepStore, tests questionbank.TestProvider, bank questionbank.Provider, pub events.Publisher, logger utils.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     st,
		tests:     tests,
		bank:      bank,
		pub:       pub,
		logger:    logger,
		interval:  interval,
	}
}

// Start begins the periodic sweep in the background.
func (s *Sweeper) Start() {
	s.scheduler.Every(s.interval).Do(func() {
		s.Sweep(context.Background())
	})
	s.scheduler.StartAsync()
}

// Stop terminates the scheduled sweeps.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep runs one pass over all persisted sessions. It returns the number of
// sessions it finalized.
func (s *Sweeper) Sweep(ctx context.Context) int {
	keys, err := s.store.Scan(ctx, store.SessionKeyPattern)
	if err != nil {
		s.logger.LogError(err, "Session sweep failed to scan store")
		return 0
	}

	finalized := 0
	for _, key := range keys {
		if s.sweepKey(ctx, key) {
			finalized++
		}
	}
	if finalized > 0 {
		s.logger.Info("Session sweep finalized expired sessions", "count", finalized)
	}
	return finalized
}

func (s *Sweeper) sweepKey(ctx context.Context, key string) bool {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return false
	}
	var sess models.TestSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.logger.Warn("Skipping unreadable session during sweep", "key", key, "error", err)
		return false
	}
	if sess.Completed {
		return false
	}

	test, err := s.tests.FindTestByID(ctx, sess.TestID)
	if err != nil {
		s.logger.Warn("Skipping session with unknown test during sweep",
			"key", key, "test_id", sess.TestID, "error", err)
		return false
	}

	// A resumed attempt legitimately outlives startTime+duration by wall
	// clock, since resume carries remainingTime over exactly. Expiry is
	// therefore judged from the last snapshot write: a live engine stamps
	// UpdatedAt on every persist, so only a session idle past its remaining
	// budget is finalized.
	lastActivity := time.Unix(sess.UpdatedAt, 0)
	budget := time.Duration(sess.RemainingTime) * time.Second
	if sess.UpdatedAt == 0 {
		// Snapshots written before UpdatedAt existed.
		lastActivity = time.Unix(sess.StartTime, 0)
		budget = time.Duration(test.Duration) * time.Second
	}
	if time.Now().Before(lastActivity.Add(budget + idleGrace)) {
		return false
	}

	// The whole budget elapsed, so the countdown is zero whatever the last
	// persisted snapshot said.
	sess.RemainingTime = 0
	now := time.Now()
	result := session.Score(ctx, test, s.bank, &sess, now, s.logger)

	if data, err := json.Marshal(result); err == nil {
		if err := s.store.Set(ctx, store.ResultKey(sess.TestID, sess.UserID), data); err != nil {
			s.logger.LogError(err, "Sweep failed to persist result", "key", key)
			return false
		}
	}

	sess.Completed = true
	end := now.Unix()
	sess.EndTime = &end
	sess.UpdatedAt = end
	if data, err := json.Marshal(&sess); err == nil {
		if err := s.store.Set(ctx, key, data); err != nil {
			s.logger.LogError(err, "Sweep failed to persist session", "key", key)
		}
	}

	s.logger.Info("Force-submitted expired session",
		"session_id", sess.ID,
		"test_id", sess.TestID,
		"user_id", sess.UserID,
		"score", result.Score)
	if err := s.pub.PublishSessionEvent(ctx, events.NewSessionEvent(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		SessionID: sess.ID,
		TestID:    sess.TestID,
		UserID:    sess.UserID,
		Score:     result.Score,
		TimeTaken: result.TimeTaken,
		Forced:    true,
		Reason:    string(session.ReasonTimeExpired),
	})); err != nil {
		s.logger.LogError(err, "Sweep failed to publish submission event", "key", key)
	}
	return true
}
