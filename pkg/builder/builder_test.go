package builder_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/gherkinreport/pkg/builder"
	"github.com/ethpandaops/gherkinreport/pkg/report"
)

type memorySink struct {
	files map[string][]byte
	err   error
}

func (m *memorySink) Stage(data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}

	if m.files == nil {
		m.files = make(map[string][]byte, 4)
	}

	name := fmt.Sprintf("cuke_%d.embed", len(m.files))
	m.files[name] = data

	return name, nil
}

func newBuilder(t *testing.T, p builder.Policy) (*builder.Builder, *logtest.Hook, *memorySink) {
	t.Helper()

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	sink := &memorySink{}

	return builder.New(log, sink, p), hook, sink
}

func ns(v int64) *int64 { return &v }

func passed() report.Result {
	return report.Result{Status: report.StatusPassed, Duration: ns(1000)}
}

func feed(t *testing.T, b *builder.Builder, events ...builder.Event) {
	t.Helper()

	for _, ev := range events {
		require.NoError(t, b.Handle(ev), "event %s", ev.Kind())
	}
}

func TestBuilder_FullFeature(t *testing.T) {
	t.Parallel()

	b, _, sink := newBuilder(t, builder.Policy{})

	feed(t, b,
		builder.SourceLocation{URI: "features/login.feature"},
		builder.FeatureStarted{Meta: report.Meta{Name: "Login", Line: 1}},
		builder.BackgroundStarted{Meta: report.Meta{Name: "setup"}},
		builder.StepStarted{Meta: report.StepMeta{Keyword: "Given ", Name: "a user"}},
		builder.StepMatched{Match: report.Match{Location: "steps.py:3"}},
		builder.StepFinished{Result: passed()},
		builder.ScenarioStarted{Meta: report.Meta{Name: "good password"}},
		builder.HookFinished{HookKind: report.HookBefore, Result: passed()},
		builder.StepStarted{Meta: report.StepMeta{Keyword: "When ", Name: "they log in"}},
		builder.StepMatched{Match: report.Match{Location: "steps.py:9"}},
		builder.StepFinished{Result: passed()},
		builder.AttachmentEmitted{MimeType: "text/plain", Data: []byte("log line")},
		builder.HookFinished{HookKind: report.HookAfter, Result: passed()},
		builder.EndOfFeature{},
	)

	s := b.Suite()
	require.Len(t, s.Features, 1)

	f := s.Features[0]
	assert.Equal(t, "features/login.feature", f.URI)
	require.Len(t, f.Scenarios, 1)

	sc := f.Scenarios[0]
	require.NotNil(t, sc.Background)
	require.Len(t, sc.Background.Steps, 1)
	assert.Equal(t, "a user", sc.Background.Steps[0].Name)
	assert.Equal(t, "steps.py:3", sc.Background.Steps[0].Match.Location)
	assert.Equal(t,
		report.Owner{Feature: 0, Scenario: 0, Background: true},
		sc.Background.Steps[0].Owner())

	require.Len(t, sc.Steps, 1)
	assert.Equal(t, report.Owner{Feature: 0, Scenario: 0}, sc.Steps[0].Owner())
	require.Len(t, sc.Before, 1)
	require.Len(t, sc.After, 1)
	assert.Equal(t, "After hook", sc.After[0].Name())

	require.Len(t, sc.Attachments, 1)
	assert.Equal(t, int64(8), sc.Attachments[0].Size)
	assert.Equal(t, []byte("log line"), sink.files[sc.Attachments[0].FileName])

	report.Tally(s)
	assert.Equal(t, 4, s.PassCount())
	assert.True(t, s.IsPassed())
}

func TestBuilder_FeatureWithoutSourceLocation(t *testing.T) {
	t.Parallel()

	b, _, _ := newBuilder(t, builder.Policy{})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "A"}},
		builder.FeatureStarted{Meta: report.Meta{Name: "B"}},
	)

	require.Len(t, b.Suite().Features, 2)
	assert.Empty(t, b.Suite().Features[0].URI)
	assert.Equal(t, 1, b.State().Feature)
}

func TestBuilder_FeatureStartedClearsHandles(t *testing.T) {
	t.Parallel()

	b, hook, _ := newBuilder(t, builder.Policy{})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "A"}},
		builder.BackgroundStarted{Meta: report.Meta{Name: "bg"}},
		builder.StepStarted{Meta: report.StepMeta{Name: "dangling"}},
		builder.SourceLocation{URI: "b.feature"},
		builder.FeatureStarted{Meta: report.Meta{Name: "B"}},
	)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, `"dangling"`)

	st := b.State()
	assert.Nil(t, st.Background)
	assert.Nil(t, st.Step)
	assert.Nil(t, st.URI)
	assert.Equal(t, -1, st.Scenario)
	assert.Equal(t, "b.feature", b.Suite().Features[1].URI)
}

func TestBuilder_Violations(t *testing.T) {
	t.Parallel()

	feature := builder.FeatureStarted{Meta: report.Meta{Name: "F"}}
	scenario := builder.ScenarioStarted{Meta: report.Meta{Name: "S"}}

	tests := []struct {
		name   string
		events []builder.Event
		event  string
	}{
		{
			name: "double source location",
			events: []builder.Event{
				builder.SourceLocation{URI: "a.feature"},
				builder.SourceLocation{URI: "b.feature"},
			},
			event: "source_location",
		},
		{
			name: "double background",
			events: []builder.Event{
				feature,
				builder.BackgroundStarted{},
				builder.BackgroundStarted{},
			},
			event: "background_started",
		},
		{
			name: "step restart",
			events: []builder.Event{
				feature, scenario,
				builder.StepStarted{Meta: report.StepMeta{Name: "one"}},
				builder.StepStarted{Meta: report.StepMeta{Name: "two", Line: 7}},
			},
			event: "step_started",
		},
		{
			name: "double match",
			events: []builder.Event{
				feature, scenario,
				builder.StepMatched{Match: report.Match{Location: "a"}},
				builder.StepMatched{Match: report.Match{Location: "b"}},
			},
			event: "step_matched",
		},
		{
			name:   "scenario outside feature",
			events: []builder.Event{scenario},
			event:  "scenario_started",
		},
		{
			name:   "finish without step",
			events: []builder.Event{feature, scenario, builder.StepFinished{Result: passed()}},
			event:  "step_finished",
		},
		{
			name: "step without scenario",
			events: []builder.Event{
				feature,
				builder.StepStarted{Meta: report.StepMeta{Name: "orphan"}},
			},
			event: "step_started",
		},
		{
			name: "match without scenario",
			events: []builder.Event{
				feature,
				builder.StepMatched{Match: report.Match{Location: "orphan.py:1"}},
			},
			event: "step_matched",
		},
		{
			name: "step before any feature",
			events: []builder.Event{
				builder.StepStarted{Meta: report.StepMeta{Name: "early"}},
			},
			event: "step_started",
		},
		{
			name:   "hook without scenario",
			events: []builder.Event{feature, builder.HookFinished{HookKind: report.HookBefore}},
			event:  "hook_finished",
		},
		{
			name:   "attachment without scenario",
			events: []builder.Event{feature, builder.AttachmentEmitted{MimeType: "text/plain"}},
			event:  "attachment_emitted",
		},
		{
			name: "forwarded syntax error",
			events: []builder.Event{builder.SyntaxError{
				Event: "}", LegalEvents: []string{"STRING"}, URI: "broken.json", Line: 12,
			}},
			event: "}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, _, _ := newBuilder(t, builder.Policy{})

			var err error
			for _, ev := range tt.events {
				if err = b.Handle(ev); err != nil {
					break
				}
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, builder.ErrModelViolation)

			var mv *builder.ModelViolation
			require.ErrorAs(t, err, &mv)
			assert.Equal(t, tt.event, mv.Event)
			assert.NotEmpty(t, mv.State)
			assert.NotEmpty(t, mv.Expected)

			// The builder stays failed.
			assert.Equal(t, err, b.Handle(builder.EndOfFeature{}))
		})
	}
}

func TestBuilder_ViolationDetails(t *testing.T) {
	t.Parallel()

	b, _, _ := newBuilder(t, builder.Policy{})

	feed(t, b,
		builder.SourceLocation{URI: "features/x.feature"},
		builder.FeatureStarted{Meta: report.Meta{Name: "X"}},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S"}},
		builder.StepStarted{Meta: report.StepMeta{Name: "first"}},
	)

	err := b.Handle(builder.StepStarted{Meta: report.StepMeta{Name: "second", Line: 9}})

	var mv *builder.ModelViolation
	require.ErrorAs(t, err, &mv)
	assert.Equal(t, "features/x.feature", mv.URI)
	assert.Equal(t, 9, mv.Line)
	assert.Contains(t, mv.State, `step "first" pending`)
	assert.NotContains(t, mv.Expected, "step_started")
	assert.Contains(t, mv.Expected, "step_finished")
	assert.Contains(t, err.Error(), "features/x.feature:9")
}

func TestBuilder_IgnoreBadSteps(t *testing.T) {
	t.Parallel()

	b, hook, _ := newBuilder(t, builder.Policy{IgnoreBadSteps: true})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "F"}},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S"}},
		builder.StepStarted{Meta: report.StepMeta{Name: "stale"}},
		builder.StepMatched{Match: report.Match{Location: "stale.py:1"}},
		builder.StepStarted{Meta: report.StepMeta{Name: "fresh"}},
		builder.StepFinished{Result: passed()},
	)

	sc := b.Suite().Features[0].Scenarios[0]
	require.Len(t, sc.Steps, 1)
	assert.Equal(t, "fresh", sc.Steps[0].Name)
	assert.Nil(t, sc.Steps[0].Match)

	var warned bool

	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true

			assert.Contains(t, e.Message, "stale")
		}
	}

	assert.True(t, warned, "expected a warning for the discarded step")
}

func TestBuilder_UnknownStatusWarns(t *testing.T) {
	t.Parallel()

	b, hook, _ := newBuilder(t, builder.Policy{})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "F"}},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S"}},
		builder.StepStarted{Meta: report.StepMeta{Name: "odd"}},
		builder.StepFinished{Result: report.Result{Status: "exploded"}},
	)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	s := b.Suite()
	report.Tally(s)
	assert.Equal(t, 0, s.TotalCount())
}

func TestBuilder_AttachmentWriteFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	log, _ := logtest.NewNullLogger()
	b := builder.New(log, &memorySink{err: cause}, builder.Policy{})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "F"}},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S"}},
	)

	err := b.Handle(builder.AttachmentEmitted{MimeType: "image/png", Data: []byte{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, builder.ErrAttachmentWrite)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, builder.ErrModelViolation)
	assert.Empty(t, b.Suite().Features[0].Scenarios[0].Attachments)
}

func TestBuilder_AttachmentWithoutSink(t *testing.T) {
	t.Parallel()

	log, _ := logtest.NewNullLogger()
	b := builder.New(log, nil, builder.Policy{})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "F"}},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S"}},
	)

	err := b.Handle(builder.AttachmentEmitted{MimeType: "image/png"})
	assert.ErrorIs(t, err, builder.ErrAttachmentWrite)
}

func TestBuilder_EndOfFeatureResets(t *testing.T) {
	t.Parallel()

	b, _, _ := newBuilder(t, builder.Policy{})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "F"}},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S"}},
		builder.SourceLocation{URI: "next.feature"},
		builder.EndOfFeature{},
	)

	st := b.State()
	assert.Equal(t, -1, st.Feature)
	assert.Equal(t, -1, st.Scenario)
	assert.Nil(t, st.URI)

	// A hook now has nowhere to go.
	assert.ErrorIs(t,
		b.Handle(builder.HookFinished{HookKind: report.HookAfter}),
		builder.ErrModelViolation)
}

func TestBuilder_BackgroundBindsToNextScenarioOnly(t *testing.T) {
	t.Parallel()

	b, _, _ := newBuilder(t, builder.Policy{})

	feed(t, b,
		builder.FeatureStarted{Meta: report.Meta{Name: "F"}},
		builder.BackgroundStarted{Meta: report.Meta{Name: "bg1"}},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S1"}},
		builder.BackgroundStarted{Meta: report.Meta{Name: "bg2"}},
		builder.StepStarted{Meta: report.StepMeta{Name: "bg2 step"}},
		builder.StepFinished{Result: passed()},
		builder.ScenarioStarted{Meta: report.Meta{Name: "S2"}},
	)

	scs := b.Suite().Features[0].Scenarios
	require.Len(t, scs, 2)
	assert.Equal(t, "bg1", scs[0].Background.Name)
	assert.Equal(t, "bg2", scs[1].Background.Name)
	assert.Equal(t,
		report.Owner{Feature: 0, Scenario: 1, Background: true},
		scs[1].Background.Steps[0].Owner())
}
