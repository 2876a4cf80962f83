package session

// DefaultWarningThreshold is the fixed number of integrity violations that
// forces submission.
const DefaultWarningThreshold = 3

// IntegrityMonitor accumulates visibility-loss warnings for one engine
// instance. The counter is deliberately in-memory: it restarts with the
// engine, while the session's TabSwitchCount persists across resumes.
type IntegrityMonitor struct {
	warnings  int
	threshold int
}

func NewIntegrityMonitor(threshold int) *IntegrityMonitor {
	if threshold <= 0 {
		threshold = DefaultWarningThreshold
	}
	return &IntegrityMonitor{threshold: threshold}
}

// Record registers one violation and returns the new count.
func (m *IntegrityMonitor) Record() int {
	m.warnings++
	return m.warnings
}

func (m *IntegrityMonitor) Count() int     { return m.warnings }
func (m *IntegrityMonitor) Threshold() int { return m.threshold }

// Exceeded reports whether the warning count has reached the threshold.
func (m *IntegrityMonitor) Exceeded() bool {
	return m.warnings >= m.threshold
}

// Warning is the indicator surfaced to the host UI after each violation.
type Warning struct {
	Count     int  `json:"count"`
	Threshold int  `json:"threshold"`
	Forced    bool `json:"forced"` // submission was triggered by this warning
}
