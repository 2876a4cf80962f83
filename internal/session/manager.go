package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/examind/test-engine/internal/events"
	"github.com/examind/test-engine/internal/models"
	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/store"
	"github.com/examind/test-engine/internal/utils"
)

// Manager owns the live engines, one per (testId, userId) pair. It is the
// seam between the stateless host surface and the stateful engines.
type Manager struct {
	tests  questionbank.TestProvider
	bank   questionbank.Provider
	store  store.Store
	pub    events.Publisher
	logger utils.Logger
	opts   Options

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewManager(tests questionbank.TestProvider, bank questionbank.Provider, st store.Store, pub events.Publisher, logger utils.Logger, opts Options) *Manager {
	return &Manager{
		tests:   tests,
		bank:    bank,
		store:   st,
		pub:     pub,
		logger:  logger,
		opts:    opts,
		engines: make(map[string]*Engine),
	}
}

func engineKey(testID, userID string) string {
	return testID + "|" + userID
}

// Open returns the engine for (testID, userID), creating it and opening its
// session on first use. Subsequent calls are idempotent.
func (m *Manager) Open(ctx context.Context, testID, userID string) (*Engine, *models.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := engineKey(testID, userID)
	if eng, ok := m.engines[key]; ok {
		sess, err := eng.Open(ctx)
		return eng, sess, err
	}

	test, err := m.tests.FindTestByID(ctx, testID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load test %s: %w", testID, err)
	}

	eng := NewEngine(test, userID, m.bank, m.store, m.pub, m.logger, m.opts)
	sess, err := eng.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	m.engines[key] = eng
	return eng, sess, nil
}

// Get returns the live engine for a pair, or ErrSessionNotOpen.
func (m *Manager) Get(testID, userID string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.engines[engineKey(testID, userID)]
	if !ok {
		return nil, ErrSessionNotOpen
	}
	return eng, nil
}

// Result fetches a final result, preferring the live engine and falling
// back to the persisted copy so results stay readable after a restart.
func (m *Manager) Result(ctx context.Context, testID, userID string) (*models.TestResult, error) {
	m.mu.Lock()
	eng, ok := m.engines[engineKey(testID, userID)]
	m.mu.Unlock()
	if ok {
		result, err := eng.Result(ctx)
		if err == nil || !IsNotFound(err) {
			return result, err
		}
	}

	raw, err := m.store.Get(ctx, store.ResultKey(testID, userID))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	var result models.TestResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("persisted result unreadable: %w", err)
	}
	return &result, nil
}

// Close tears down every live engine without submitting.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, eng := range m.engines {
		eng.Close()
		delete(m.engines, key)
	}
}
