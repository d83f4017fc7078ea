package report

// Status is the outcome reported for a step or hook.
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusUndefined Status = "undefined"
	StatusPending   Status = "pending"
	StatusSkipped   Status = "skipped"
)

// Known reports whether s is one of the five recognised statuses.
func (s Status) Known() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusUndefined,
		StatusPending, StatusSkipped:
		return true
	default:
		return false
	}
}

// counts maps a status onto exactly one of the pass, fail and skip
// counters. Unrecognised statuses count as nothing.
func (s Status) counts() Counts {
	switch s {
	case StatusPassed:
		return Counts{Passed: 1}
	case StatusFailed, StatusUndefined:
		return Counts{Failed: 1}
	case StatusPending, StatusSkipped:
		return Counts{Skipped: 1}
	default:
		return Counts{}
	}
}

// Node is implemented by every element of a report tree.
type Node interface {
	PassCount() int
	FailCount() int
	SkipCount() int
	// Duration returns the cumulative duration in seconds.
	Duration() float64
}

// Counts holds aggregate figures for a node.
type Counts struct {
	Passed   int     `json:"passed" yaml:"passed"`
	Failed   int     `json:"failed" yaml:"failed"`
	Skipped  int     `json:"skipped" yaml:"skipped"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// Total returns the number of counted steps and hooks.
func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Skipped
}

func (c *Counts) add(o Counts) {
	c.Passed += o.Passed
	c.Failed += o.Failed
	c.Skipped += o.Skipped
	c.Duration += o.Duration
}

// Result is the outcome of executing a step or hook.
type Result struct {
	Status Status `json:"status"`
	// Duration is in nanoseconds. Nil when the runner reported none.
	Duration     *int64   `json:"duration,omitempty"`
	ErrorMessage []string `json:"error_message,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Seconds converts the result duration to seconds.
func (r Result) Seconds() float64 {
	if r.Duration == nil {
		return 0.0
	}

	return float64(*r.Duration) / 1e9
}

// Meta describes a feature, background or scenario as written in the
// source document.
type Meta struct {
	ID          string   `json:"id,omitempty"`
	Keyword     string   `json:"keyword,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Line        int      `json:"line,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// StepMeta describes a single step line.
type StepMeta struct {
	Keyword string `json:"keyword"`
	Name    string `json:"name"`
	Line    int    `json:"line,omitempty"`
}

// Match is the step definition a step or hook was bound to.
type Match struct {
	Location string `json:"location,omitempty"`
}

// Owner locates the background or scenario a step belongs to. Indices
// refer to Suite.Features and Feature.Scenarios.
type Owner struct {
	Feature    int
	Scenario   int
	Background bool
}

// Step is a terminal node for a single executed step.
type Step struct {
	StepMeta
	Match  *Match `json:"match,omitempty"`
	Result Result `json:"result"`

	owner    Owner
	attached bool
}

// Owner returns where the step was attached.
func (s *Step) Owner() Owner {
	return s.owner
}

// SetOwner records the step's position. Only the first call has an effect.
func (s *Step) SetOwner(o Owner) {
	if s.attached {
		return
	}

	s.owner = o
	s.attached = true
}

func (s *Step) PassCount() int    { return s.Result.Status.counts().Passed }
func (s *Step) FailCount() int    { return s.Result.Status.counts().Failed }
func (s *Step) SkipCount() int    { return s.Result.Status.counts().Skipped }
func (s *Step) Duration() float64 { return s.Result.Seconds() }

// HookKind distinguishes before and after hooks.
type HookKind string

const (
	HookBefore HookKind = "before"
	HookAfter  HookKind = "after"
)

// Hook is a before or after hook run around a scenario.
type Hook struct {
	Kind   HookKind `json:"kind"`
	Match  *Match   `json:"match,omitempty"`
	Result Result   `json:"result"`
}

// Name returns the fixed display name of the hook.
func (h *Hook) Name() string {
	if h.Kind == HookAfter {
		return "After hook"
	}

	return "Before hook"
}

func (h *Hook) PassCount() int    { return h.Result.Status.counts().Passed }
func (h *Hook) FailCount() int    { return h.Result.Status.counts().Failed }
func (h *Hook) SkipCount() int    { return h.Result.Status.counts().Skipped }
func (h *Hook) Duration() float64 { return h.Result.Seconds() }

// Attachment references an embedded artifact staged outside the tree.
type Attachment struct {
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

// Background is the shared step sequence run ahead of one scenario.
type Background struct {
	Meta
	Steps []*Step `json:"steps"`

	counts Counts
}

func (b *Background) PassCount() int    { return b.counts.Passed }
func (b *Background) FailCount() int    { return b.counts.Failed }
func (b *Background) SkipCount() int    { return b.counts.Skipped }
func (b *Background) Duration() float64 { return b.counts.Duration }

// Scenario is one executed test case.
type Scenario struct {
	Meta
	Background  *Background   `json:"background,omitempty"`
	Steps       []*Step       `json:"steps"`
	Before      []*Hook       `json:"before,omitempty"`
	After       []*Hook       `json:"after,omitempty"`
	Attachments []*Attachment `json:"attachments,omitempty"`

	counts Counts
}

func (s *Scenario) PassCount() int    { return s.counts.Passed }
func (s *Scenario) FailCount() int    { return s.counts.Failed }
func (s *Scenario) SkipCount() int    { return s.counts.Skipped }
func (s *Scenario) Duration() float64 { return s.counts.Duration }

// Counts returns the tallied figures for the scenario.
func (s *Scenario) Counts() Counts { return s.counts }

// Feature groups the scenarios read from one source document.
type Feature struct {
	URI string `json:"uri,omitempty"`
	Meta
	Scenarios []*Scenario `json:"scenarios"`

	counts Counts
}

func (f *Feature) PassCount() int    { return f.counts.Passed }
func (f *Feature) FailCount() int    { return f.counts.Failed }
func (f *Feature) SkipCount() int    { return f.counts.Skipped }
func (f *Feature) Duration() float64 { return f.counts.Duration }

// Counts returns the tallied figures for the feature.
func (f *Feature) Counts() Counts { return f.counts }

// Suite is the root of a report tree.
type Suite struct {
	Features []*Feature `json:"features"`

	counts Counts
}

func (s *Suite) PassCount() int    { return s.counts.Passed }
func (s *Suite) FailCount() int    { return s.counts.Failed }
func (s *Suite) SkipCount() int    { return s.counts.Skipped }
func (s *Suite) Duration() float64 { return s.counts.Duration }

// Counts returns the tallied figures for the whole suite.
func (s *Suite) Counts() Counts { return s.counts }

// TotalCount returns the number of counted steps and hooks.
func (s *Suite) TotalCount() int { return s.counts.Total() }

// IsPassed reports whether no step or hook failed. An empty suite is
// considered passed; callers that care check TotalCount.
func (s *Suite) IsPassed() bool { return s.counts.Failed == 0 }

// Scenarios returns every scenario of the suite in arrival order.
func (s *Suite) Scenarios() []*Scenario {
	var out []*Scenario

	for _, f := range s.Features {
		out = append(out, f.Scenarios...)
	}

	return out
}

// FailedScenarios returns scenarios with at least one failure.
func (s *Suite) FailedScenarios() []*Scenario {
	var out []*Scenario

	for _, sc := range s.Scenarios() {
		if sc.counts.Failed > 0 {
			out = append(out, sc)
		}
	}

	return out
}

// StepsOf resolves an owner reference to the step list it points into.
func (s *Suite) StepsOf(o Owner) []*Step {
	if o.Feature < 0 || o.Feature >= len(s.Features) {
		return nil
	}

	f := s.Features[o.Feature]
	if o.Scenario < 0 || o.Scenario >= len(f.Scenarios) {
		return nil
	}

	sc := f.Scenarios[o.Scenario]
	if o.Background {
		if sc.Background == nil {
			return nil
		}

		return sc.Background.Steps
	}

	return sc.Steps
}

// Compile-time interface checks.
var (
	_ Node = (*Suite)(nil)
	_ Node = (*Feature)(nil)
	_ Node = (*Scenario)(nil)
	_ Node = (*Background)(nil)
	_ Node = (*Step)(nil)
	_ Node = (*Hook)(nil)
)
