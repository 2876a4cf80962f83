package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/examind/test-engine/internal/events"
	"github.com/examind/test-engine/internal/models"
	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/store"
	"github.com/examind/test-engine/internal/utils"
)

// ===== FIXTURES =====

func testLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fixtureQuestions() []*models.QuestionRecord {
	return []*models.QuestionRecord{
		{ID: 10, Subject: "Physics", Text: "Q10", Options: datatypes.NewJSONSlice([]string{"a", "b", "c", "d"}), CorrectAnswer: 1},
		{ID: 20, Subject: "Chemistry", Text: "Q20", Options: datatypes.NewJSONSlice([]string{"a", "b", "c", "d"}), CorrectAnswer: 1},
		{ID: 30, Subject: "Physics", Text: "Q30", Options: datatypes.NewJSONSlice([]string{"a", "b"}), CorrectAnswer: 0},
	}
}

func fixtureTest() *models.TestConfig {
	return &models.TestConfig{
		ID:          "t1",
		Title:       "Mock Test",
		Duration:    300,
		Subjects:    datatypes.NewJSONSlice([]string{"Physics", "Chemistry"}),
		QuestionIDs: datatypes.NewJSONSlice([]int{10, 20, 30}),
	}
}

type engineEnv struct {
	test  *models.TestConfig
	bank  *questionbank.StaticProvider
	store *store.MemoryStore
	pub   *events.MockPublisher
}

func newEngineEnv() *engineEnv {
	test := fixtureTest()
	return &engineEnv{
		test:  test,
		bank:  questionbank.NewStaticProvider(fixtureQuestions(), []*models.TestConfig{test}),
		store: store.NewMemoryStore(),
		pub:   events.NewMockPublisher(),
	}
}

// newEngine builds an engine whose clock never fires on its own; tests call
// tick directly.
func (env *engineEnv) newEngine(opts Options) *Engine {
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	return NewEngine(env.test, "student-1", env.bank, env.store, env.pub, testLogger(), opts)
}

func (env *engineEnv) storedSession(t *testing.T) *models.TestSession {
	t.Helper()
	raw, err := env.store.Get(context.Background(), store.SessionKey("t1", "student-1"))
	require.NoError(t, err)
	var sess models.TestSession
	require.NoError(t, json.Unmarshal(raw, &sess))
	return &sess
}

// ===== LIFECYCLE =====

func TestEngine_OpenCreatesFreshSession(t *testing.T) {
	env := newEngineEnv()
	eng := env.newEngine(Options{})
	defer eng.Close()

	sess, err := eng.Open(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "t1", sess.TestID)
	assert.Equal(t, "student-1", sess.UserID)
	assert.Equal(t, 300, sess.RemainingTime)
	assert.Equal(t, 10, sess.CurrentQuestionID)
	assert.False(t, sess.Completed)
	assert.Len(t, sess.Answers, 3)
	for _, qid := range []int{10, 20, 30} {
		a := sess.Answers[qid]
		require.NotNil(t, a)
		assert.Equal(t, qid, a.QuestionID)
		assert.Nil(t, a.SelectedOption)
		assert.False(t, a.Visited)
		assert.False(t, a.MarkedForReview)
		assert.Zero(t, a.TimeSpent)
	}

	// Opening alone persists nothing; the first write comes with the first
	// mutation.
	assert.Zero(t, env.store.Len())

	started := env.pub.EventsOfType(events.EventAttemptStarted)
	require.Len(t, started, 1)
}

func TestEngine_OpenRejectsTestWithoutQuestions(t *testing.T) {
	env := newEngineEnv()
	env.test.QuestionIDs = nil
	eng := env.newEngine(Options{})

	_, err := eng.Open(context.Background())
	require.ErrorIs(t, err, ErrInvalidTestConfig)
}

func TestEngine_OpenStartsFreshOnCorruptSnapshot(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	require.NoError(t, env.store.Set(ctx, store.SessionKey("t1", "student-1"), []byte("{not json")))

	eng := env.newEngine(Options{})
	defer eng.Close()
	sess, err := eng.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, sess.RemainingTime)
	assert.False(t, sess.Completed)
}

func TestEngine_ResumeFidelity(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	eng := env.newEngine(Options{PersistEveryTicks: 1})
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, eng.SelectOption(ctx, 1))
	require.NoError(t, eng.MarkForReview(ctx))
	eng.tick(ctx)
	eng.tick(ctx)
	require.NoError(t, eng.Navigate(ctx, 20))
	before := eng.Snapshot()
	eng.Close()

	resumed := env.newEngine(Options{})
	defer resumed.Close()
	after, err := resumed.Open(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, 298, after.RemainingTime)
	assert.Equal(t, 20, after.CurrentQuestionID)
	assert.Equal(t, 2, after.Answers[10].TimeSpent)

	resumedEvents := env.pub.EventsOfType(events.EventAttemptResumed)
	require.Len(t, resumedEvents, 1)
}

func TestEngine_ReopenCompletedSessionIsReadOnly(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	eng := env.newEngine(Options{})
	_, err := eng.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, eng.SelectOption(ctx, 1))
	first, err := eng.Submit(ctx)
	require.NoError(t, err)
	eng.Close()

	reopened := env.newEngine(Options{})
	defer reopened.Close()
	sess, err := reopened.Open(ctx)
	require.NoError(t, err)
	assert.True(t, sess.Completed)
	assert.Equal(t, 300, sess.RemainingTime) // not reset

	result, err := reopened.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Score, result.Score)

	err = reopened.SelectOption(ctx, 0)
	require.ErrorIs(t, err, ErrSessionCompleted)
}

// ===== ANSWER TRANSITIONS =====

func TestEngine_SelectClearMark(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, eng.SelectOption(ctx, 2))
	snap := eng.Snapshot()
	require.NotNil(t, snap.Answers[10].SelectedOption)
	assert.Equal(t, 2, *snap.Answers[10].SelectedOption)
	assert.True(t, snap.Answers[10].Visited)

	// Clearing drops the option but keeps visited, review flag and time.
	require.NoError(t, eng.MarkForReview(ctx))
	require.NoError(t, eng.ClearResponse(ctx))
	snap = eng.Snapshot()
	assert.Nil(t, snap.Answers[10].SelectedOption)
	assert.True(t, snap.Answers[10].Visited)
	assert.True(t, snap.Answers[10].MarkedForReview)

	// Every mutation persisted the snapshot.
	stored := env.storedSession(t)
	assert.Nil(t, stored.Answers[10].SelectedOption)
	assert.True(t, stored.Answers[10].MarkedForReview)
}

func TestEngine_SelectOptionOutOfRangeRejectedWithoutMutation(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	err = eng.SelectOption(ctx, 4) // question 10 has 4 options, max index 3
	require.ErrorIs(t, err, ErrOptionOutOfRange)
	err = eng.SelectOption(ctx, -1)
	require.ErrorIs(t, err, ErrOptionOutOfRange)

	snap := eng.Snapshot()
	assert.Nil(t, snap.Answers[10].SelectedOption)
	assert.False(t, snap.Answers[10].Visited, "rejected selection must not mark visited")
	assert.Zero(t, env.store.Len(), "rejected selection must not persist")
}

// ===== NAVIGATION =====

func TestEngine_Navigation(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	require.ErrorIs(t, eng.Navigate(ctx, 99), ErrQuestionNotInTest)

	// Navigation alone does not mark the target visited.
	require.NoError(t, eng.Navigate(ctx, 20))
	snap := eng.Snapshot()
	assert.Equal(t, 20, snap.CurrentQuestionID)
	assert.False(t, snap.Answers[20].Visited)

	cur, err := eng.NextQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, cur)

	// No-op past the last question.
	cur, err = eng.NextQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, cur)

	cur, err = eng.PrevQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, cur)

	cur, err = eng.NavigateToSubject(ctx, "Physics")
	require.NoError(t, err)
	assert.Equal(t, 10, cur)

	_, err = eng.NavigateToSubject(ctx, "Biology")
	require.ErrorIs(t, err, ErrSubjectNotInTest)
}

// ===== CLOCKS =====

func TestEngine_TickDrivesBothClocks(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{PersistEveryTicks: 5})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		eng.tick(ctx)
	}
	snap := eng.Snapshot()
	assert.Equal(t, 296, snap.RemainingTime)
	assert.Equal(t, 4, snap.Answers[10].TimeSpent)
	assert.True(t, snap.Answers[10].Visited)
	assert.Zero(t, snap.Answers[20].TimeSpent)

	// Clock-only writes are throttled to every 5th tick.
	assert.Zero(t, env.store.Len())
	eng.tick(ctx)
	stored := env.storedSession(t)
	assert.Equal(t, 295, stored.RemainingTime)
	// Every write carries the activity stamp the sweeper keys off.
	assert.NotZero(t, stored.UpdatedAt)

	// Time never accrues on a question that is not current.
	require.NoError(t, eng.Navigate(ctx, 20))
	eng.tick(ctx)
	snap = eng.Snapshot()
	assert.Equal(t, 5, snap.Answers[10].TimeSpent)
	assert.Equal(t, 1, snap.Answers[20].TimeSpent)
}

func TestEngine_TimeExpirySubmitsExactlyOnce(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	env.test.Duration = 3
	eng := env.newEngine(Options{})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, eng.SelectOption(ctx, 1)) // q10 correct

	eng.tick(ctx)
	eng.tick(ctx)
	assert.False(t, eng.Snapshot().Completed)

	eng.tick(ctx)
	snap := eng.Snapshot()
	assert.True(t, snap.Completed)
	assert.Zero(t, snap.RemainingTime)
	require.NotNil(t, snap.EndTime)

	// A late tick must not mutate a submitted session.
	eng.tick(ctx)
	assert.Zero(t, eng.Snapshot().RemainingTime)
	assert.Equal(t, snap.Answers[10].TimeSpent, eng.Snapshot().Answers[10].TimeSpent)

	submitted := env.pub.EventsOfType(events.EventAttemptSubmitted)
	require.Len(t, submitted, 1)

	result, err := eng.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Score)
	assert.Equal(t, 3, result.TimeTaken)
}

// ===== SUBMISSION =====

func TestEngine_SubmitIdempotent(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	counting := &countingStore{Store: env.store}
	eng := NewEngine(env.test, "student-1", env.bank, counting, env.pub, testLogger(), Options{TickInterval: time.Hour})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, eng.SelectOption(ctx, 1))

	first, err := eng.Submit(ctx)
	require.NoError(t, err)
	resultWrites := counting.writes[store.ResultKey("t1", "student-1")]

	second, err := eng.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, resultWrites, counting.writes[store.ResultKey("t1", "student-1")],
		"second submit must not write the result again")
	assert.Equal(t, 1, resultWrites)

	require.Len(t, env.pub.EventsOfType(events.EventAttemptSubmitted), 1)
}

func TestEngine_ScoringExampleScenario(t *testing.T) {
	// Two questions, candidate answers the first correctly, the second is
	// never touched, then time expires.
	test := &models.TestConfig{
		ID:          "t2",
		Title:       "Two questions",
		Duration:    10,
		QuestionIDs: datatypes.NewJSONSlice([]int{10, 20}),
	}
	bank := questionbank.NewStaticProvider(fixtureQuestions(), []*models.TestConfig{test})
	eng := NewEngine(test, "student-1", bank, store.NewMemoryStore(), events.NewMockPublisher(), testLogger(), Options{TickInterval: time.Hour})
	defer eng.Close()

	ctx := context.Background()
	_, err := eng.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, eng.SelectOption(ctx, 1))
	for i := 0; i < 10; i++ {
		eng.tick(ctx)
	}

	result, err := eng.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Score)
	assert.Equal(t, 1, result.CorrectAnswers)
	assert.Equal(t, 0, result.IncorrectAnswers)
	assert.Equal(t, 1, result.Unattempted)
	assert.Equal(t, 2, result.TotalQuestions)
	require.Len(t, result.QuestionStats, 2)
	assert.True(t, result.QuestionStats[0].IsCorrect)
	assert.False(t, result.QuestionStats[1].Attempted)
}

// ===== INTEGRITY MONITOR =====

func TestEngine_TwoWarningsDoNotForceSubmission(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		w, err := eng.VisibilityLost(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, w.Count)
		assert.Equal(t, 3, w.Threshold)
		assert.False(t, w.Forced)
	}
	assert.False(t, eng.Snapshot().Completed)
	assert.Equal(t, 2, eng.Snapshot().TabSwitchCount)
}

func TestEngine_ThirdWarningForcesSubmission(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	eng.VisibilityLost(ctx)
	eng.VisibilityLost(ctx)
	w, err := eng.VisibilityLost(ctx)
	require.NoError(t, err)
	assert.True(t, w.Forced)
	assert.Equal(t, 3, w.Count)
	assert.True(t, eng.Snapshot().Completed)
	assert.Equal(t, 3, eng.Snapshot().TabSwitchCount)

	require.Len(t, env.pub.EventsOfType(events.EventIntegrityWarning), 3)
	submitted := env.pub.EventsOfType(events.EventAttemptSubmitted)
	require.Len(t, submitted, 1)
	payload, ok := submitted[0].Data.(events.AttemptSubmittedEvent)
	require.True(t, ok)
	assert.True(t, payload.Forced)
	assert.Equal(t, string(ReasonIntegrity), payload.Reason)
}

// ===== INPUT POLICY =====

func TestEngine_InputPolicyFollowsSessionState(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{})
	defer eng.Close()

	assert.False(t, eng.InputPolicy().Blocked(ActionCopy))

	_, err := eng.Open(ctx)
	require.NoError(t, err)
	policy := eng.InputPolicy()
	assert.True(t, policy.Blocked(ActionContextMenu))
	assert.Len(t, policy.BlockedActions(), 4)

	_, err = eng.Submit(ctx)
	require.NoError(t, err)
	assert.False(t, eng.InputPolicy().Blocked(ActionPaste))
	assert.Empty(t, eng.InputPolicy().BlockedActions())
}

// ===== PERSISTENCE FAILURES =====

func TestEngine_PersistenceFailureKeepsMemoryAuthoritative(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	failing := &failingStore{Store: env.store}
	eng := NewEngine(env.test, "student-1", env.bank, failing, env.pub, testLogger(), Options{TickInterval: time.Hour})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	failing.fail = true
	require.NoError(t, eng.SelectOption(ctx, 1), "user progress must survive a failed write")
	require.NotNil(t, eng.Snapshot().Answers[10].SelectedOption)
	assert.Error(t, eng.StoreError())

	failing.fail = false
	require.NoError(t, eng.ClearResponse(ctx))
	assert.NoError(t, eng.StoreError())
}

// ===== PALETTE =====

func TestEngine_PaletteOrderAndStatus(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	eng := env.newEngine(Options{})
	defer eng.Close()
	_, err := eng.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, eng.SelectOption(ctx, 1))
	require.NoError(t, eng.Navigate(ctx, 20))
	require.NoError(t, eng.MarkForReview(ctx))

	palette, err := eng.Palette()
	require.NoError(t, err)
	require.Len(t, palette, 3)
	assert.Equal(t, []PaletteEntry{
		{QuestionID: 10, Status: models.StatusAnswered},
		{QuestionID: 20, Status: models.StatusMarkedForReview},
		{QuestionID: 30, Status: models.StatusNotVisited},
	}, palette)
}

// ===== TEST DOUBLES =====

type countingStore struct {
	store.Store
	writes map[string]int
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if s.writes == nil {
		s.writes = make(map[string]int)
	}
	s.writes[key]++
	return s.Store.Set(ctx, key, value)
}

type failingStore struct {
	store.Store
	fail bool
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	return s.Store.Set(ctx, key, value)
}
