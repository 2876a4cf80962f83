package sweeper

import (
	"context"
	"encoding/json"
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

func sweepLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sweepFixtures() (*models.TestConfig, []*models.QuestionRecord) {
	test := &models.TestConfig{
		ID:          "t1",
		Title:       "Mock Test",
		Duration:    600,
		QuestionIDs: datatypes.NewJSONSlice([]int{10, 20}),
	}
	questions := []*models.QuestionRecord{
		{ID: 10, Subject: "Physics", Text: "Q10", Options: datatypes.NewJSONSlice([]string{"a", "b"}), CorrectAnswer: 1},
		{ID: 20, Subject: "Physics", Text: "Q20", Options: datatypes.NewJSONSlice([]string{"a", "b"}), CorrectAnswer: 0},
	}
	return test, questions
}

func persistSession(t *testing.T, st store.Store, sess *models.TestSession) {
	t.Helper()
	data, err := json.Marshal(sess)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), store.SessionKey(sess.TestID, sess.UserID), data))
}

func one() *int { v := 1; return &v }

func TestSweep_FinalizesOnlyExpiredSessions(t *testing.T) {
	test, questions := sweepFixtures()
	bank := questionbank.NewStaticProvider(questions, []*models.TestConfig{test})
	st := store.NewMemoryStore()
	pub := events.NewMockPublisher()
	ctx := context.Background()

	// Last written long enough ago that the remaining countdown plus grace
	// has elapsed, even though the snapshot still shows time on the clock.
	persistSession(t, st, &models.TestSession{
		ID: "expired", UserID: "u1", TestID: "t1",
		StartTime:     time.Now().Add(-20 * time.Minute).Unix(),
		UpdatedAt:     time.Now().Add(-20 * time.Minute).Unix(),
		RemainingTime: 45,
		Answers: map[int]*models.UserAnswer{
			10: {QuestionID: 10, SelectedOption: one(), Visited: true, TimeSpent: 80},
			20: {QuestionID: 20},
		},
	})
	// Still inside its budget.
	persistSession(t, st, &models.TestSession{
		ID: "active", UserID: "u2", TestID: "t1",
		StartTime:     time.Now().Unix(),
		UpdatedAt:     time.Now().Unix(),
		RemainingTime: 600,
		Answers: map[int]*models.UserAnswer{
			10: {QuestionID: 10},
			20: {QuestionID: 20},
		},
	})
	// Already finished; never touched again.
	endTime := time.Now().Add(-30 * time.Minute).Unix()
	persistSession(t, st, &models.TestSession{
		ID: "done", UserID: "u3", TestID: "t1",
		StartTime: time.Now().Add(-40 * time.Minute).Unix(),
		Completed: true, EndTime: &endTime,
		Answers: map[int]*models.UserAnswer{
			10: {QuestionID: 10},
			20: {QuestionID: 20},
		},
	})

	s := New(st, bank, bank, pub, sweepLogger(), time.Minute)
	assert.Equal(t, 1, s.Sweep(ctx))

	// The expired session got a result and flipped to completed.
	raw, err := st.Get(ctx, store.ResultKey("t1", "u1"))
	require.NoError(t, err)
	var result models.TestResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 4, result.Score)
	assert.Equal(t, 1, result.CorrectAnswers)
	assert.Equal(t, 1, result.Unattempted)
	assert.Equal(t, 600, result.TimeTaken) // full budget, countdown zeroed

	raw, err = st.Get(ctx, store.SessionKey("t1", "u1"))
	require.NoError(t, err)
	var swept models.TestSession
	require.NoError(t, json.Unmarshal(raw, &swept))
	assert.True(t, swept.Completed)
	assert.Zero(t, swept.RemainingTime)
	require.NotNil(t, swept.EndTime)

	// The active session is untouched.
	_, err = st.Get(ctx, store.ResultKey("t1", "u2"))
	require.ErrorIs(t, err, store.ErrKeyNotFound)

	submitted := pub.EventsOfType(events.EventAttemptSubmitted)
	require.Len(t, submitted, 1)
	payload, ok := submitted[0].Data.(events.AttemptSubmittedEvent)
	require.True(t, ok)
	assert.True(t, payload.Forced)
	assert.Equal(t, "time_expired", payload.Reason)
	assert.Equal(t, "expired", payload.SessionID)

	// A second pass finds nothing left to do.
	assert.Equal(t, 0, s.Sweep(ctx))
}

func TestSweep_SparesLiveResumedSession(t *testing.T) {
	test, questions := sweepFixtures()
	bank := questionbank.NewStaticProvider(questions, []*models.TestConfig{test})
	st := store.NewMemoryStore()
	pub := events.NewMockPublisher()
	ctx := context.Background()

	// Resumed after a long interruption: startTime is far past the test
	// duration, but a live engine holds the attempt and keeps re-stamping
	// the snapshot while the carried-over countdown runs out.
	persistSession(t, st, &models.TestSession{
		ID: "resumed", UserID: "u1", TestID: "t1",
		StartTime:     time.Now().Add(-30 * time.Minute).Unix(),
		UpdatedAt:     time.Now().Unix(),
		RemainingTime: 45,
		Answers: map[int]*models.UserAnswer{
			10: {QuestionID: 10, SelectedOption: one(), Visited: true},
			20: {QuestionID: 20},
		},
	})

	s := New(st, bank, bank, pub, sweepLogger(), time.Minute)
	assert.Zero(t, s.Sweep(ctx))
	assert.Zero(t, s.Sweep(ctx))

	_, err := st.Get(ctx, store.ResultKey("t1", "u1"))
	require.ErrorIs(t, err, store.ErrKeyNotFound,
		"a live attempt must not get a result written under it")
	assert.Empty(t, pub.EventsOfType(events.EventAttemptSubmitted))
}

func TestSweep_LegacySnapshotFallsBackToStartTime(t *testing.T) {
	test, questions := sweepFixtures()
	bank := questionbank.NewStaticProvider(questions, []*models.TestConfig{test})
	st := store.NewMemoryStore()
	ctx := context.Background()

	// No UpdatedAt stamp: judged by startTime plus the full duration.
	persistSession(t, st, &models.TestSession{
		ID: "legacy", UserID: "u7", TestID: "t1",
		StartTime:     time.Now().Add(-20 * time.Minute).Unix(),
		RemainingTime: 300,
		Answers: map[int]*models.UserAnswer{
			10: {QuestionID: 10},
			20: {QuestionID: 20},
		},
	})

	s := New(st, bank, bank, events.NewMockPublisher(), sweepLogger(), time.Minute)
	assert.Equal(t, 1, s.Sweep(ctx))

	_, err := st.Get(ctx, store.ResultKey("t1", "u7"))
	require.NoError(t, err)
}

func TestSweep_SkipsUnreadableAndUnknown(t *testing.T) {
	test, questions := sweepFixtures()
	bank := questionbank.NewStaticProvider(questions, []*models.TestConfig{test})
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, store.SessionKey("t1", "broken"), []byte("{not json")))
	persistSession(t, st, &models.TestSession{
		ID: "orphan", UserID: "u9", TestID: "deleted-test",
		StartTime: time.Now().Add(-2 * time.Hour).Unix(),
		Answers:   map[int]*models.UserAnswer{},
	})

	s := New(st, bank, bank, events.NewMockPublisher(), sweepLogger(), time.Minute)
	assert.Zero(t, s.Sweep(ctx))
}
