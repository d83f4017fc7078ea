package builder

import "github.com/ethpandaops/gherkinreport/pkg/report"

// EventKind names an event accepted by the builder.
type EventKind string

const (
	KindSourceLocation    EventKind = "source_location"
	KindFeatureStarted    EventKind = "feature_started"
	KindBackgroundStarted EventKind = "background_started"
	KindScenarioStarted   EventKind = "scenario_started"
	KindStepStarted       EventKind = "step_started"
	KindStepMatched       EventKind = "step_matched"
	KindStepFinished      EventKind = "step_finished"
	KindHookFinished      EventKind = "hook_finished"
	KindAttachmentEmitted EventKind = "attachment_emitted"
	KindEndOfFeature      EventKind = "end_of_feature"
	KindSyntaxError       EventKind = "syntax_error"
)

// allKinds lists the regular events in the order they are reported as
// legal alternatives.
var allKinds = []EventKind{
	KindSourceLocation,
	KindFeatureStarted,
	KindBackgroundStarted,
	KindScenarioStarted,
	KindStepStarted,
	KindStepMatched,
	KindStepFinished,
	KindHookFinished,
	KindAttachmentEmitted,
	KindEndOfFeature,
}

// Event is a single structured item of a test-run event stream.
type Event interface {
	Kind() EventKind
}

// Handler consumes events in order.
type Handler interface {
	Handle(ev Event) error
}

// SourceLocation announces the URI of the next feature.
type SourceLocation struct {
	URI string
}

// FeatureStarted opens a feature.
type FeatureStarted struct {
	Meta report.Meta
}

// BackgroundStarted opens a background for the next scenario.
type BackgroundStarted struct {
	Meta report.Meta
}

// ScenarioStarted opens a scenario.
type ScenarioStarted struct {
	Meta report.Meta
}

// StepStarted announces a step awaiting its result.
type StepStarted struct {
	Meta report.StepMeta
}

// StepMatched binds the pending step to a step definition.
type StepMatched struct {
	Match report.Match
}

// StepFinished resolves the pending step.
type StepFinished struct {
	Result report.Result
}

// HookFinished reports a before or after hook of the current scenario.
type HookFinished struct {
	HookKind report.HookKind
	Match    report.Match
	Result   report.Result
}

// AttachmentEmitted carries an embedding for the current scenario.
type AttachmentEmitted struct {
	MimeType string
	Data     []byte
}

// EndOfFeature marks the end of a source document.
type EndOfFeature struct{}

// SyntaxError is forwarded by an event source that could not read its
// input.
type SyntaxError struct {
	State       string
	Event       string
	LegalEvents []string
	URI         string
	Line        int
}

func (SourceLocation) Kind() EventKind    { return KindSourceLocation }
func (FeatureStarted) Kind() EventKind    { return KindFeatureStarted }
func (BackgroundStarted) Kind() EventKind { return KindBackgroundStarted }
func (ScenarioStarted) Kind() EventKind   { return KindScenarioStarted }
func (StepStarted) Kind() EventKind       { return KindStepStarted }
func (StepMatched) Kind() EventKind       { return KindStepMatched }
func (StepFinished) Kind() EventKind      { return KindStepFinished }
func (HookFinished) Kind() EventKind      { return KindHookFinished }
func (AttachmentEmitted) Kind() EventKind { return KindAttachmentEmitted }
func (EndOfFeature) Kind() EventKind      { return KindEndOfFeature }
func (SyntaxError) Kind() EventKind       { return KindSyntaxError }

// eventLine returns the source line carried by ev, or 0.
func eventLine(ev Event) int {
	switch e := ev.(type) {
	case FeatureStarted:
		return e.Meta.Line
	case BackgroundStarted:
		return e.Meta.Line
	case ScenarioStarted:
		return e.Meta.Line
	case StepStarted:
		return e.Meta.Line
	case SyntaxError:
		return e.Line
	default:
		return 0
	}
}
