package parser_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/gherkinreport/pkg/attachment"
	"github.com/ethpandaops/gherkinreport/pkg/builder"
	"github.com/ethpandaops/gherkinreport/pkg/parser"
)

// threeFeatures describes 3 features with 8 steps and hooks. The status
// of the single background step is configurable.
func threeFeatures(backgroundStatus string) string {
	return fmt.Sprintf(`[
  {"uri": "features/one.feature", "keyword": "Feature", "name": "One", "elements": [
    {"type": "scenario", "name": "first", "line": 3,
     "before": [{"match": {"location": "env.py:1"}, "result": {"status": "passed", "duration": 1000}}],
     "steps": [
       {"keyword": "Given ", "name": "a", "line": 4, "match": {"location": "s.py:1"}, "result": {"status": "passed", "duration": 131437850}},
       {"keyword": "Then ", "name": "b", "line": 5, "match": {"location": "s.py:2"}, "result": {"status": "passed", "duration": 2000}}
     ]}
  ]},
  {"uri": "features/two.feature", "keyword": "Feature", "name": "Two", "elements": [
    {"type": "background", "name": "setup", "line": 2,
     "steps": [
       {"keyword": "Given ", "name": "bg", "line": 3, "match": {"location": "s.py:3"}, "result": {"status": "%s", "duration": 500}}
     ]},
    {"type": "scenario", "name": "second", "line": 5,
     "steps": [
       {"keyword": "When ", "name": "c", "line": 6, "match": {"location": "s.py:4"}, "result": {"status": "passed", "duration": 500}}
     ]}
  ]},
  {"uri": "features/three.feature", "keyword": "Feature", "name": "Three", "elements": [
    {"type": "scenario", "name": "third", "line": 2,
     "steps": [
       {"keyword": "Given ", "name": "d", "line": 3, "match": {"location": "s.py:5"}, "result": {"status": "passed"}}
     ],
     "after": [{"result": {"status": "passed", "duration": 10}}]},
    {"type": "scenario", "name": "fourth", "line": 6,
     "steps": [
       {"keyword": "Given ", "name": "e", "line": 7, "match": {"location": "s.py:6"}, "result": {"status": "passed"}}
     ]}
  ]}
]`, backgroundStatus)
}

const singlePending = `[
  {"uri": "features/todo.feature", "keyword": "Feature", "name": "Todo", "elements": [
    {"type": "scenario", "name": "later", "line": 2,
     "steps": [
       {"keyword": "Given ", "name": "something", "line": 3, "result": {"status": "pending"}}
     ]}
  ]}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	return p
}

func newParser(t *testing.T, opts parser.Options) *parser.Parser {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	sink, err := attachment.NewTempDirSink(t.TempDir())
	require.NoError(t, err)

	return parser.New(log, sink, opts)
}

func TestParse_AllPassing(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "a.json", threeFeatures("passed"))

	s, err := newParser(t, parser.Options{}).Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, s.Features, 3)
	assert.Equal(t, 8, s.TotalCount())
	assert.Equal(t, 8, s.PassCount())
	assert.Equal(t, 0, s.FailCount())
	assert.Equal(t, 0, s.SkipCount())
	assert.True(t, s.IsPassed())
	assert.InDelta(t, 0.13144186, s.Duration(), 1e-9)
}

func TestParse_BackgroundFailure(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "b.json", threeFeatures("failed"))

	s, err := newParser(t, parser.Options{}).Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 7, s.PassCount())
	assert.Equal(t, 1, s.FailCount())
	assert.Equal(t, 0, s.SkipCount())
	assert.False(t, s.IsPassed())

	sc := s.Features[1].Scenarios[0]
	assert.Equal(t, 1, sc.FailCount(), "background failure counts against its scenario")
	assert.Equal(t, 1, s.Features[1].FailCount())
}

func TestParse_SinglePending(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "c.json", singlePending)

	s, err := newParser(t, parser.Options{}).Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 0, s.PassCount())
	assert.Equal(t, 0, s.FailCount())
	assert.Equal(t, 1, s.SkipCount())
	assert.True(t, s.IsPassed())
	assert.Equal(t, 0.0, s.Duration())
}

func TestParse_MultipleFilesAndEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", threeFeatures("passed"))
	empty := writeFile(t, dir, "empty.json", "  \n\t")
	c := writeFile(t, dir, "c.json", singlePending)

	log, hook := logtest.NewNullLogger()
	p := parser.New(log, nil, parser.Options{})

	s, err := p.Parse(context.Background(), a, empty, c)
	require.NoError(t, err)

	assert.Len(t, s.Features, 4)
	assert.Equal(t, 9, s.TotalCount())

	var ignored bool

	for _, e := range hook.AllEntries() {
		if e.Message == "Ignoring empty file" {
			ignored = true
		}
	}

	assert.True(t, ignored)
}

func TestParse_EmptyResultSet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "none.json", `[{"name": "Nothing", "elements": [{"type": "scenario", "name": "blank"}]}]`)

	s, err := newParser(t, parser.Options{}).Parse(context.Background(), path)
	require.ErrorIs(t, err, parser.ErrEmptyResultSet)
	require.NotNil(t, s)
	assert.Len(t, s.Features, 1)
	assert.True(t, s.IsPassed())
}

func TestParse_StepRestart(t *testing.T) {
	t.Parallel()

	const restart = `[
  {"name": "F", "elements": [
    {"type": "scenario", "name": "S", "steps": [
      {"keyword": "Given ", "name": "never finished", "line": 3},
      {"keyword": "Then ", "name": "finished", "line": 4, "result": {"status": "passed"}}
    ]}
  ]}
]`

	path := writeFile(t, t.TempDir(), "restart.json", restart)

	_, err := newParser(t, parser.Options{}).Parse(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, builder.ErrModelViolation)
	assert.Contains(t, err.Error(), "restart.json")

	s, err := newParser(t, parser.Options{IgnoreBadSteps: true}).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalCount())
	assert.Equal(t, "finished", s.Features[0].Scenarios[0].Steps[0].Name)
}

func TestParse_MalformedJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "bad.json", "[\n{\"name\": }")

	s, err := newParser(t, parser.Options{}).Parse(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, s)

	var mv *builder.ModelViolation
	require.ErrorAs(t, err, &mv)
	assert.Equal(t, 2, mv.Line)
}

func TestParse_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := newParser(t, parser.Options{}).Parse(context.Background(), "/does/not/exist.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestParse_Cancelled(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "a.json", singlePending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newParser(t, parser.Options{}).Parse(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", threeFeatures("passed"))
	b := writeFile(t, dir, "b.json", threeFeatures("failed"))
	c := writeFile(t, dir, "c.json", singlePending)

	suites, err := newParser(t, parser.Options{Concurrency: 2}).
		ParseAll(context.Background(), [][]string{{a}, {b}, {c}})
	require.NoError(t, err)
	require.Len(t, suites, 3)

	assert.True(t, suites[0].IsPassed())
	assert.Equal(t, 8, suites[0].PassCount())
	assert.Equal(t, 1, suites[1].FailCount())
	assert.Equal(t, 1, suites[2].SkipCount())
}

func TestExpandPatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b.json", "[]")
	writeFile(t, dir, "a.json", "[]")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	files, err := parser.ExpandPatterns([]string{
		filepath.Join(dir, "*.json"),
		filepath.Join(dir, "a.json"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "b.json"),
	}, files)

	_, err = parser.ExpandPatterns([]string{"[invalid"})
	require.Error(t, err)
}
