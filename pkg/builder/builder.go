package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/gherkinreport/pkg/attachment"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/sirupsen/logrus"
)

// Policy holds the caller-controlled parts of the transition rules.
type Policy struct {
	// IgnoreBadSteps downgrades a step restart from a violation to a
	// warning. The stale step is discarded.
	IgnoreBadSteps bool
}

// none marks an unset feature or scenario handle.
const none = -1

// State is the set of open handles between two events. Feature and
// Scenario are indices into the suite being built.
type State struct {
	Feature    int
	Scenario   int
	FeatureURI string

	// Features and Scenarios count what has been appended so far: all
	// features, and the scenarios of the current feature.
	Features  int
	Scenarios int

	Background *report.Background
	Step       *report.StepMeta
	Match      *report.Match
	URI        *string
}

// InitialState returns the state of a builder that has seen no events.
func InitialState() State {
	return State{Feature: none, Scenario: none}
}

// stepTarget reports whether a step can be attached: to the open
// background, else to the current scenario.
func (s State) stepTarget() bool {
	return s.Background != nil || s.Scenario != none
}

// String summarises the open handles for error messages.
func (s State) String() string {
	parts := make([]string, 0, 6)

	if s.Feature == none {
		parts = append(parts, "no feature")
	} else {
		parts = append(parts, fmt.Sprintf("feature #%d", s.Feature))
	}

	if s.Scenario == none {
		parts = append(parts, "no scenario")
	} else {
		parts = append(parts, fmt.Sprintf("scenario #%d", s.Scenario))
	}

	if s.Background != nil {
		parts = append(parts, "background open")
	}

	if s.Step != nil {
		parts = append(parts, fmt.Sprintf("step %q pending", s.Step.Name))
	}

	if s.Match != nil {
		parts = append(parts, "match pending")
	}

	if s.URI != nil {
		parts = append(parts, fmt.Sprintf("uri %q pending", *s.URI))
	}

	return strings.Join(parts, ", ")
}

// MutationKind names a change applied to the tree.
type MutationKind int

const (
	MutateNone MutationKind = iota
	MutateAddFeature
	MutateAddScenario
	MutateAddStep
	MutateAddHook
	MutateAddAttachment
)

// Mutation is the tree change produced by one transition.
type Mutation struct {
	Kind     MutationKind
	Feature  *report.Feature
	Scenario *report.Scenario
	Step     *report.Step
	Hook     *report.Hook
	// Owner locates the target of a step, hook or attachment.
	Owner report.Owner
	// Background receives background steps, which are not yet part of
	// the tree.
	Background *report.Background
	Attachment *AttachmentEmitted
}

// Transition is the outcome of applying one event to a state.
type Transition struct {
	Next     State
	Mutation Mutation
	Warning  string
}

// Next computes the transition for ev in state s. It never mutates s or
// anything s points to.
func Next(s State, ev Event, p Policy) (Transition, error) {
	t := Transition{Next: s}

	switch e := ev.(type) {
	case SourceLocation:
		if s.URI != nil {
			return t, violation(s, ev, p, "source location already pending")
		}

		uri := e.URI
		t.Next.URI = &uri

	case FeatureStarted:
		f := &report.Feature{Meta: e.Meta, Scenarios: []*report.Scenario{}}
		if s.URI != nil {
			f.URI = *s.URI
		}

		if s.Step != nil {
			t.Warning = fmt.Sprintf(
				"discarding unfinished step %q: feature %q started",
				s.Step.Name, e.Meta.Name,
			)
		}

		t.Next = State{
			Feature:    s.Features,
			Scenario:   none,
			FeatureURI: f.URI,
			Features:   s.Features + 1,
		}
		t.Mutation = Mutation{Kind: MutateAddFeature, Feature: f}

	case BackgroundStarted:
		if s.Feature == none {
			return t, violation(s, ev, p, "no open feature")
		}

		if s.Background != nil {
			return t, violation(s, ev, p, "background already open")
		}

		t.Next.Background = &report.Background{Meta: e.Meta, Steps: []*report.Step{}}

	case ScenarioStarted:
		if s.Feature == none {
			return t, violation(s, ev, p, "no open feature")
		}

		sc := &report.Scenario{Meta: e.Meta, Steps: []*report.Step{}}
		sc.Background = s.Background

		t.Next.Background = nil
		t.Next.Scenario = s.Scenarios
		t.Next.Scenarios = s.Scenarios + 1
		t.Mutation = Mutation{
			Kind:     MutateAddScenario,
			Scenario: sc,
			Owner:    report.Owner{Feature: s.Feature, Scenario: s.Scenarios},
		}

	case StepStarted:
		if !s.stepTarget() {
			return t, violation(s, ev, p, "no open background or scenario")
		}

		if s.Step != nil {
			if !p.IgnoreBadSteps {
				return t, violation(s, ev, p, "previous step not finished")
			}

			t.Warning = fmt.Sprintf(
				"discarding unfinished step %q: new step %q started",
				s.Step.Name, e.Meta.Name,
			)
			t.Next.Match = nil
		}

		meta := e.Meta
		t.Next.Step = &meta

	case StepMatched:
		if !s.stepTarget() {
			return t, violation(s, ev, p, "no open background or scenario")
		}

		if s.Match != nil {
			return t, violation(s, ev, p, "previous match not consumed")
		}

		m := e.Match
		t.Next.Match = &m

	case StepFinished:
		if s.Step == nil {
			return t, violation(s, ev, p, "no pending step")
		}

		if !s.stepTarget() {
			return t, violation(s, ev, p, "no open background or scenario")
		}

		st := &report.Step{StepMeta: *s.Step, Match: s.Match, Result: e.Result}
		t.Warning = statusWarning(e.Result.Status, "step", s.Step.Name)
		t.Next.Step = nil
		t.Next.Match = nil
		t.Mutation = Mutation{Kind: MutateAddStep, Step: st}

		if s.Background != nil {
			// The background belongs to the next scenario of this feature.
			t.Mutation.Background = s.Background
			t.Mutation.Owner = report.Owner{
				Feature: s.Feature, Scenario: s.Scenarios, Background: true,
			}
		} else {
			t.Mutation.Owner = report.Owner{Feature: s.Feature, Scenario: s.Scenario}
		}

	case HookFinished:
		if s.Scenario == none {
			return t, violation(s, ev, p, "no open scenario")
		}

		if e.HookKind != report.HookBefore && e.HookKind != report.HookAfter {
			return t, violation(s, ev, p, fmt.Sprintf("unknown hook kind %q", e.HookKind))
		}

		h := &report.Hook{Kind: e.HookKind, Result: e.Result}
		if e.Match.Location != "" {
			m := e.Match
			h.Match = &m
		}

		t.Warning = statusWarning(e.Result.Status, "hook", h.Name())
		t.Mutation = Mutation{
			Kind:  MutateAddHook,
			Hook:  h,
			Owner: report.Owner{Feature: s.Feature, Scenario: s.Scenario},
		}

	case AttachmentEmitted:
		if s.Scenario == none {
			return t, violation(s, ev, p, "no open scenario")
		}

		att := e
		t.Mutation = Mutation{
			Kind:       MutateAddAttachment,
			Attachment: &att,
			Owner:      report.Owner{Feature: s.Feature, Scenario: s.Scenario},
		}

	case EndOfFeature:
		t.Next = State{Feature: none, Scenario: none, Features: s.Features}

	case SyntaxError:
		legal := make([]string, len(e.LegalEvents))
		copy(legal, e.LegalEvents)

		state := e.State
		if state == "" {
			state = s.String()
		}

		uri := e.URI
		if uri == "" {
			uri = s.FeatureURI
		}

		return t, &ModelViolation{
			State:    state,
			Event:    e.Event,
			Expected: legal,
			URI:      uri,
			Line:     e.Line,
			Reason:   "syntax error",
		}

	default:
		return t, violation(s, ev, p, fmt.Sprintf("unsupported event %T", ev))
	}

	return t, nil
}

// Legal lists the events accepted in state s.
func Legal(s State, p Policy) []EventKind {
	legal := make([]EventKind, 0, len(allKinds))

	for _, k := range allKinds {
		ok := true

		switch k {
		case KindSourceLocation:
			ok = s.URI == nil
		case KindBackgroundStarted:
			ok = s.Feature != none && s.Background == nil
		case KindScenarioStarted:
			ok = s.Feature != none
		case KindStepStarted:
			ok = s.stepTarget() && (s.Step == nil || p.IgnoreBadSteps)
		case KindStepMatched:
			ok = s.stepTarget() && s.Match == nil
		case KindStepFinished:
			ok = s.stepTarget() && s.Step != nil
		case KindHookFinished, KindAttachmentEmitted:
			ok = s.Scenario != none
		}

		if ok {
			legal = append(legal, k)
		}
	}

	return legal
}

func violation(s State, ev Event, p Policy, reason string) *ModelViolation {
	legal := Legal(s, p)
	expected := make([]string, 0, len(legal))

	for _, k := range legal {
		expected = append(expected, string(k))
	}

	return &ModelViolation{
		State:    s.String(),
		Event:    string(ev.Kind()),
		Expected: expected,
		URI:      s.FeatureURI,
		Line:     eventLine(ev),
		Reason:   reason,
	}
}

func statusWarning(st report.Status, what, name string) string {
	if st.Known() {
		return ""
	}

	return fmt.Sprintf("%s %q has unrecognised status %q, not counted", what, name, st)
}

// Builder materialises a report tree from an ordered event stream.
type Builder struct {
	log    logrus.FieldLogger
	sink   attachment.Sink
	policy Policy
	state  State
	suite  *report.Suite
	err    error
}

// Compile-time interface check.
var _ Handler = (*Builder)(nil)

// New creates a Builder. sink stages attachments and may be nil when the
// stream carries none.
func New(log logrus.FieldLogger, sink attachment.Sink, policy Policy) *Builder {
	return &Builder{
		log:    log.WithField("component", "builder"),
		sink:   sink,
		policy: policy,
		state:  InitialState(),
		suite:  &report.Suite{Features: []*report.Feature{}},
	}
}

// Handle applies one event. After the first error every further call
// returns that same error.
func (b *Builder) Handle(ev Event) error {
	if b.err != nil {
		return b.err
	}

	t, err := Next(b.state, ev, b.policy)
	if err != nil {
		b.err = err

		return err
	}

	if t.Warning != "" {
		b.log.WithFields(logrus.Fields{
			"event": ev.Kind(),
			"uri":   b.state.FeatureURI,
			"line":  eventLine(ev),
		}).Warn(t.Warning)
	}

	if err := b.apply(t.Mutation); err != nil {
		b.err = err

		return err
	}

	b.state = t.Next

	return nil
}

// Suite returns the tree built so far. It is not tallied.
func (b *Builder) Suite() *report.Suite {
	return b.suite
}

// State returns the current builder state.
func (b *Builder) State() State {
	return b.state
}

// Err returns the error that stopped the builder, if any.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) apply(m Mutation) error {
	switch m.Kind {
	case MutateAddFeature:
		b.suite.Features = append(b.suite.Features, m.Feature)

	case MutateAddScenario:
		f := b.suite.Features[m.Owner.Feature]
		f.Scenarios = append(f.Scenarios, m.Scenario)

	case MutateAddStep:
		m.Step.SetOwner(m.Owner)

		if m.Background != nil {
			m.Background.Steps = append(m.Background.Steps, m.Step)

			return nil
		}

		sc := b.scenario(m.Owner)
		sc.Steps = append(sc.Steps, m.Step)

	case MutateAddHook:
		sc := b.scenario(m.Owner)

		if m.Hook.Kind == report.HookAfter {
			sc.After = append(sc.After, m.Hook)
		} else {
			sc.Before = append(sc.Before, m.Hook)
		}

	case MutateAddAttachment:
		att, err := b.stage(m.Attachment)
		if err != nil {
			return err
		}

		sc := b.scenario(m.Owner)
		sc.Attachments = append(sc.Attachments, att)
	}

	return nil
}

func (b *Builder) scenario(o report.Owner) *report.Scenario {
	return b.suite.Features[o.Feature].Scenarios[o.Scenario]
}

func (b *Builder) stage(e *AttachmentEmitted) (*report.Attachment, error) {
	if b.sink == nil {
		return nil, &AttachmentWriteError{
			MimeType: e.MimeType,
			Err:      errors.New("no attachment sink configured"),
		}
	}

	name, err := b.sink.Stage(e.Data)
	if err != nil {
		return nil, &AttachmentWriteError{MimeType: e.MimeType, Err: err}
	}

	b.log.WithFields(logrus.Fields{
		"mime_type": e.MimeType,
		"file":      name,
		"size":      len(e.Data),
	}).Debug("Staged attachment")

	return &report.Attachment{
		MimeType: e.MimeType,
		FileName: name,
		Size:     int64(len(e.Data)),
	}, nil
}
