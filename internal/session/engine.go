// Package session implements the test session engine: the state machine
// driving one candidate's timed, proctored attempt at one test. It owns the
// twin countdown clocks, the answer records, integrity monitoring and
// scoring, and writes every snapshot through the persistence adapter.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/examind/test-engine/internal/events"
	"github.com/examind/test-engine/internal/models"
	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/store"
	"github.com/examind/test-engine/internal/utils"
)

// SubmitReason records what ended a session.
type SubmitReason string

const (
	ReasonUser        SubmitReason = "user"
	ReasonTimeExpired SubmitReason = "time_expired"
	ReasonIntegrity   SubmitReason = "integrity_violation"
)

// Options tunes an engine. Zero values select the defaults.
type Options struct {
	// WarningThreshold is the integrity violation count that forces
	// submission. Defaults to DefaultWarningThreshold.
	WarningThreshold int
	// PersistEveryTicks throttles clock-driven snapshot writes: the session
	// is persisted on every explicit mutation, but a tick that only moved
	// the clocks writes once per this many ticks. Resuming after an
	// interruption therefore loses at most PersistEveryTicks-1 seconds of
	// countdown, never gains any.
	PersistEveryTicks int
	// TickInterval is the clock period. One second in production; tests
	// set it high and drive ticks directly.
	TickInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.WarningThreshold <= 0 {
		o.WarningThreshold = DefaultWarningThreshold
	}
	if o.PersistEveryTicks <= 0 {
		o.PersistEveryTicks = 5
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	return o
}

// Engine is the session state machine for one (test, user) pair. All entry
// points serialize on one mutex, so handlers and clock ticks observe the
// session atomically. States: not open (session == nil), active, completed.
type Engine struct {
	mu     sync.Mutex
	test   *models.TestConfig
	userID string
	bank   questionbank.Provider
	store  store.Store
	pub    events.Publisher
	logger utils.Logger
	opts   Options

	session *models.TestSession
	result  *models.TestResult
	monitor *IntegrityMonitor

	ticker            *time.Ticker
	done              chan struct{}
	ticksSincePersist int
	lastStoreErr      error
}

func NewEngine(test *models.TestConfig, userID string, bank questionbank.Provider, st store.Store, pub events.Publisher, logger utils.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		test:    test,
		userID:  userID,
		bank:    bank,
		store:   st,
		pub:     pub,
		logger:  logger.With("test_id", test.ID, "user_id", userID),
		opts:    opts,
		monitor: NewIntegrityMonitor(opts.WarningThreshold),
	}
}

// ===== LIFECYCLE =====

// Open loads the persisted session for this (test, user) pair or creates a
// fresh one. Re-opening a completed session short-circuits to read-only
// result retrieval and never resets it; an unreadable or inconsistent
// snapshot degrades to a fresh start. Open itself persists nothing: the
// first write happens on the first mutation or clock tick.
func (e *Engine) Open(ctx context.Context) (*models.TestSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return e.session.Clone(), nil
	}

	if len(e.test.QuestionIDs) == 0 {
		return nil, fmt.Errorf("%w: test %s has no questions", ErrInvalidTestConfig, e.test.ID)
	}

	if loaded := e.loadPersistedLocked(ctx); loaded != nil {
		e.session = loaded
		if loaded.Completed {
			e.logger.Info("Re-opened completed session, read-only",
				"session_id", loaded.ID)
			e.loadResultLocked(ctx)
			return loaded.Clone(), nil
		}

		e.logger.Info("Resuming test session",
			"session_id", loaded.ID,
			"remaining_time", loaded.RemainingTime)
		e.publishLocked(ctx, events.NewSessionEvent(events.EventAttemptResumed, events.AttemptResumedEvent{
			SessionID:     loaded.ID,
			TestID:        e.test.ID,
			UserID:        e.userID,
			RemainingTime: loaded.RemainingTime,
		}))
		e.startClockLocked()
		return loaded.Clone(), nil
	}

	sess := &models.TestSession{
		ID:                uuid.NewString(),
		UserID:            e.userID,
		TestID:            e.test.ID,
		StartTime:         time.Now().Unix(),
		RemainingTime:     e.test.Duration,
		CurrentQuestionID: e.test.QuestionIDs[0],
		Answers:           make(map[int]*models.UserAnswer, len(e.test.QuestionIDs)),
	}
	for _, qid := range e.test.QuestionIDs {
		sess.Answers[qid] = &models.UserAnswer{QuestionID: qid}
	}
	e.session = sess

	e.logger.Info("Created test session",
		"session_id", sess.ID,
		"duration", e.test.Duration,
		"questions", len(e.test.QuestionIDs))
	e.publishLocked(ctx, events.NewSessionEvent(events.EventAttemptStarted, events.AttemptStartedEvent{
		SessionID: sess.ID,
		TestID:    e.test.ID,
		UserID:    e.userID,
		Duration:  e.test.Duration,
	}))
	e.startClockLocked()
	return sess.Clone(), nil
}

// loadPersistedLocked returns the stored session if it is present and
// consistent with the test configuration, nil otherwise.
func (e *Engine) loadPersistedLocked(ctx context.Context) *models.TestSession {
	raw, err := e.store.Get(ctx, store.SessionKey(e.test.ID, e.userID))
	if err != nil {
		if !store.IsNotFound(err) {
			e.logger.Warn("Could not read persisted session, starting fresh", "error", err)
		}
		return nil
	}

	var sess models.TestSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		e.logger.Warn("Persisted session is unreadable, starting fresh", "error", err)
		return nil
	}
	if !e.test.HasQuestion(sess.CurrentQuestionID) {
		e.logger.Warn("Persisted session inconsistent with test, starting fresh",
			"current_question_id", sess.CurrentQuestionID)
		return nil
	}
	for _, qid := range e.test.QuestionIDs {
		if sess.Answers[qid] == nil {
			e.logger.Warn("Persisted session missing answer record, starting fresh",
				"question_id", qid)
			return nil
		}
	}
	if sess.RemainingTime < 0 {
		sess.RemainingTime = 0
	}
	return &sess
}

// Close stops the clocks and releases the engine without submitting. The
// session stays persisted and resumes on the next Open.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopClockLocked()
}

// ===== MUTATING TRANSITIONS =====

func (e *Engine) requireActiveLocked() error {
	if e.session == nil {
		return ErrSessionNotOpen
	}
	if e.session.Completed {
		return ErrSessionCompleted
	}
	return nil
}

// SelectOption records an answer for the current question. Out-of-range
// indices are rejected without mutating anything, including the visited
// flag.
func (e *Engine) SelectOption(ctx context.Context, option int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return err
	}
	if option < 0 {
		return fmt.Errorf("%w: %d", ErrOptionOutOfRange, option)
	}

	current := e.session.CurrentQuestionID
	question, err := e.bank.FindByID(ctx, current)
	if err != nil {
		// Bank misses never crash a session; bounds can only be checked
		// against the record, so only the sign check applies here.
		e.logger.Warn("Validating selection without question record",
			"question_id", current, "error", err)
	} else if option >= len(question.Options) {
		return fmt.Errorf("%w: %d, question %d has %d options",
			ErrOptionOutOfRange, option, current, len(question.Options))
	}

	answer := e.session.Answer(current)
	selected := option
	answer.SelectedOption = &selected
	answer.Visited = true
	e.persistLocked(ctx)
	return nil
}

// ClearResponse removes the current question's selected option. Visited,
// markedForReview and timeSpent are untouched, so a cleared question scores
// as unattempted.
func (e *Engine) ClearResponse(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return err
	}
	e.session.Answer(e.session.CurrentQuestionID).SelectedOption = nil
	e.persistLocked(ctx)
	return nil
}

// MarkForReview flags the current question. The selected option, if any, is
// preserved and still graded.
func (e *Engine) MarkForReview(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return err
	}
	answer := e.session.Answer(e.session.CurrentQuestionID)
	answer.MarkedForReview = true
	answer.Visited = true
	e.persistLocked(ctx)
	return nil
}

// Navigate makes questionID current. The target is not marked visited here;
// the question clock does that on its first tick.
func (e *Engine) Navigate(ctx context.Context, questionID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return err
	}
	return e.navigateLocked(ctx, questionID)
}

func (e *Engine) navigateLocked(ctx context.Context, questionID int) error {
	if !e.test.HasQuestion(questionID) {
		return fmt.Errorf("%w: %d", ErrQuestionNotInTest, questionID)
	}
	e.session.CurrentQuestionID = questionID
	e.persistLocked(ctx)
	return nil
}

// NextQuestion advances along the navigation order. At the last question it
// is a no-op. Returns the resulting current question id.
func (e *Engine) NextQuestion(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return 0, err
	}
	idx := e.test.QuestionIndex(e.session.CurrentQuestionID)
	if idx >= 0 && idx < len(e.test.QuestionIDs)-1 {
		if err := e.navigateLocked(ctx, e.test.QuestionIDs[idx+1]); err != nil {
			return 0, err
		}
	}
	return e.session.CurrentQuestionID, nil
}

// PrevQuestion steps back along the navigation order, a no-op at the first
// question. Returns the resulting current question id.
func (e *Engine) PrevQuestion(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return 0, err
	}
	idx := e.test.QuestionIndex(e.session.CurrentQuestionID)
	if idx > 0 {
		if err := e.navigateLocked(ctx, e.test.QuestionIDs[idx-1]); err != nil {
			return 0, err
		}
	}
	return e.session.CurrentQuestionID, nil
}

// NavigateToSubject jumps to the first question of the given subject within
// this test's navigation order.
func (e *Engine) NavigateToSubject(ctx context.Context, subject string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return 0, err
	}
	for _, qid := range e.test.QuestionIDs {
		question, err := e.bank.FindByID(ctx, qid)
		if err != nil {
			continue
		}
		if question.Subject == subject {
			if err := e.navigateLocked(ctx, qid); err != nil {
				return 0, err
			}
			return qid, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrSubjectNotInTest, subject)
}

// VisibilityLost registers one loss-of-focus event: the per-engine warning
// counter and the persisted tab switch count both advance, the warning is
// published, and reaching the threshold forces submission.
func (e *Engine) VisibilityLost(ctx context.Context) (Warning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireActiveLocked(); err != nil {
		return Warning{}, err
	}

	count := e.monitor.Record()
	e.session.TabSwitchCount++
	e.persistLocked(ctx)

	e.logger.Warn("Visibility lost during active session",
		"session_id", e.session.ID,
		"warning_count", count,
		"threshold", e.monitor.Threshold(),
		"tab_switch_count", e.session.TabSwitchCount)
	e.publishLocked(ctx, events.NewSessionEvent(events.EventIntegrityWarning, events.IntegrityWarningEvent{
		SessionID:      e.session.ID,
		TestID:         e.test.ID,
		UserID:         e.userID,
		WarningCount:   count,
		Threshold:      e.monitor.Threshold(),
		TabSwitchCount: e.session.TabSwitchCount,
	}))

	warning := Warning{Count: count, Threshold: e.monitor.Threshold()}
	if e.monitor.Exceeded() {
		warning.Forced = true
		if _, err := e.submitLocked(ctx, ReasonIntegrity); err != nil {
			return warning, err
		}
	}
	return warning, nil
}

// Submit ends the session and produces its result. Calling it on an already
// completed session is a no-op that returns the same result.
func (e *Engine) Submit(ctx context.Context) (*models.TestResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrSessionNotOpen
	}
	return e.submitLocked(ctx, ReasonUser)
}

func (e *Engine) submitLocked(ctx context.Context, reason SubmitReason) (*models.TestResult, error) {
	if e.session.Completed {
		if e.result == nil {
			e.loadResultLocked(ctx)
		}
		if e.result == nil {
			return nil, ErrResultNotFound
		}
		return e.result, nil
	}

	now := time.Now()
	result := Score(ctx, e.test, e.bank, e.session, now, e.logger)

	// The result is written before the session flips to completed; a crash
	// between the two writes leaves a resumable session that will simply
	// score again.
	if data, err := json.Marshal(result); err != nil {
		e.storeFailedLocked(fmt.Errorf("marshal result: %w", err))
	} else if err := e.store.Set(ctx, store.ResultKey(e.test.ID, e.userID), data); err != nil {
		e.storeFailedLocked(err)
	}

	e.session.Completed = true
	end := now.Unix()
	e.session.EndTime = &end
	e.persistLocked(ctx)
	e.stopClockLocked()
	e.result = result

	e.logger.Info("Test session submitted",
		"session_id", e.session.ID,
		"reason", string(reason),
		"score", result.Score,
		"correct", result.CorrectAnswers,
		"incorrect", result.IncorrectAnswers,
		"unattempted", result.Unattempted)
	e.publishLocked(ctx, events.NewSessionEvent(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		SessionID: e.session.ID,
		TestID:    e.test.ID,
		UserID:    e.userID,
		Score:     result.Score,
		TimeTaken: result.TimeTaken,
		Forced:    reason != ReasonUser,
		Reason:    string(reason),
	}))
	return result, nil
}

// ===== CLOCKS =====

// startClockLocked arms the 1 Hz tick. The handle is owned by this engine
// and cancelled exactly once, on submit or Close.
func (e *Engine) startClockLocked() {
	if e.done != nil {
		return
	}
	e.ticker = time.NewTicker(e.opts.TickInterval)
	done := make(chan struct{})
	e.done = done
	ticker := e.ticker
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.tick(context.Background())
			}
		}
	}()
}

func (e *Engine) stopClockLocked() {
	if e.done == nil {
		return
	}
	e.ticker.Stop()
	close(e.done)
	e.done = nil
}

// tick advances both clocks by one second: the session countdown, and the
// current question's elapsed time. Reaching zero submits exactly once; the
// completed check keeps a late tick from ever mutating a submitted session.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.session.Completed {
		return
	}

	e.session.RemainingTime--
	if e.session.RemainingTime <= 0 {
		e.session.RemainingTime = 0
		if _, err := e.submitLocked(ctx, ReasonTimeExpired); err != nil {
			e.logger.LogError(err, "Forced submission on time expiry failed")
		}
		return
	}

	answer := e.session.Answer(e.session.CurrentQuestionID)
	answer.TimeSpent++
	answer.Visited = true

	e.ticksSincePersist++
	if e.ticksSincePersist >= e.opts.PersistEveryTicks {
		e.persistLocked(ctx)
	}
}

// ===== PERSISTENCE =====

// persistLocked writes the full session snapshot. The in-memory session
// stays authoritative on failure; the error is kept for StoreError so the
// host can warn that progress may not survive a reload. Every write stamps
// UpdatedAt, which the sweeper reads as proof of a live engine.
func (e *Engine) persistLocked(ctx context.Context) {
	e.session.UpdatedAt = time.Now().Unix()
	data, err := json.Marshal(e.session)
	if err != nil {
		e.storeFailedLocked(fmt.Errorf("marshal session: %w", err))
		return
	}
	if err := e.store.Set(ctx, store.SessionKey(e.test.ID, e.userID), data); err != nil {
		e.storeFailedLocked(err)
		return
	}
	e.lastStoreErr = nil
	e.ticksSincePersist = 0
}

func (e *Engine) storeFailedLocked(err error) {
	e.lastStoreErr = err
	e.logger.LogError(err, "Failed to persist session state, in-memory state remains authoritative")
}

func (e *Engine) loadResultLocked(ctx context.Context) {
	raw, err := e.store.Get(ctx, store.ResultKey(e.test.ID, e.userID))
	if err != nil {
		if !store.IsNotFound(err) {
			e.logger.Warn("Could not read persisted result", "error", err)
		}
		return
	}
	var result models.TestResult
	if err := json.Unmarshal(raw, &result); err != nil {
		e.logger.Warn("Persisted result is unreadable", "error", err)
		return
	}
	e.result = &result
}

func (e *Engine) publishLocked(ctx context.Context, event *events.SessionEvent) {
	if err := e.pub.PublishSessionEvent(ctx, event); err != nil {
		// Outbound events are best effort; the session must not fail on a
		// broker outage.
		e.logger.LogError(err, "Failed to publish session event", "event_type", string(event.Type))
	}
}

// ===== READ SIDE =====

// Snapshot returns a deep copy of the session, or nil before Open.
func (e *Engine) Snapshot() *models.TestSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// CurrentQuestion returns the record for the current question.
func (e *Engine) CurrentQuestion(ctx context.Context) (*models.QuestionRecord, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, ErrSessionNotOpen
	}
	current := e.session.CurrentQuestionID
	e.mu.Unlock()
	return e.bank.FindByID(ctx, current)
}

// PaletteEntry pairs a question id with its derived palette status.
type PaletteEntry struct {
	QuestionID int                 `json:"question_id"`
	Status     models.AnswerStatus `json:"status"`
}

// Palette derives the navigation palette, one entry per question in
// navigation order.
func (e *Engine) Palette() ([]PaletteEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrSessionNotOpen
	}
	entries := make([]PaletteEntry, 0, len(e.test.QuestionIDs))
	for _, qid := range e.test.QuestionIDs {
		entries = append(entries, PaletteEntry{
			QuestionID: qid,
			Status:     models.StatusOf(e.session.Answer(qid)),
		})
	}
	return entries, nil
}

// Result returns the final result. Before submission it fails with
// ErrResultNotAvailable.
func (e *Engine) Result(ctx context.Context) (*models.TestResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrSessionNotOpen
	}
	if !e.session.Completed {
		return nil, ErrResultNotAvailable
	}
	if e.result == nil {
		e.loadResultLocked(ctx)
	}
	if e.result == nil {
		return nil, ErrResultNotFound
	}
	return e.result, nil
}

// Warnings reports the current integrity warning state without recording a
// new violation.
func (e *Engine) Warnings() Warning {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Warning{Count: e.monitor.Count(), Threshold: e.monitor.Threshold()}
}

// InputPolicy reports which host-surface interactions must currently be
// suppressed.
func (e *Engine) InputPolicy() InputPolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return InputPolicy{Active: e.session != nil && !e.session.Completed}
}

// StoreError returns the most recent persistence failure, or nil when the
// last write succeeded.
func (e *Engine) StoreError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStoreErr
}

// Test returns the immutable test configuration this engine runs.
func (e *Engine) Test() *models.TestConfig {
	return e.test
}
