// Package cucumber replays cucumber and behave JSON reports as builder
// events.
package cucumber

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethpandaops/gherkinreport/pkg/builder"
	"github.com/ethpandaops/gherkinreport/pkg/report"
)

// Replay decodes data, a JSON array of features read from source, and
// emits its content to h in stream order. Malformed JSON is forwarded to
// h as a builder.SyntaxError. The first error returned by h stops the
// replay.
func Replay(source string, data []byte, h builder.Handler) error {
	var features []feature

	if err := json.Unmarshal(data, &features); err != nil {
		return h.Handle(syntaxError(source, data, err))
	}

	for i := range features {
		if err := replayFeature(&features[i], h); err != nil {
			return err
		}
	}

	return nil
}

func replayFeature(f *feature, h builder.Handler) error {
	uri := f.URI
	if uri == "" && f.Location != "" {
		uri = stripLine(f.Location)
	}

	if uri != "" {
		if err := h.Handle(builder.SourceLocation{URI: uri}); err != nil {
			return err
		}
	}

	if err := h.Handle(builder.FeatureStarted{Meta: report.Meta{
		ID:          f.ID,
		Keyword:     f.Keyword,
		Name:        f.Name,
		Description: f.Description.String(),
		Line:        f.Line,
		Tags:        tagNames(f.Tags),
	}}); err != nil {
		return err
	}

	for i := range f.Elements {
		if err := replayElement(&f.Elements[i], h); err != nil {
			return err
		}
	}

	return h.Handle(builder.EndOfFeature{})
}

func replayElement(el *element, h builder.Handler) error {
	meta := report.Meta{
		ID:          el.ID,
		Keyword:     el.Keyword,
		Name:        el.Name,
		Description: el.Description.String(),
		Line:        el.Line,
		Tags:        tagNames(el.Tags),
	}

	var ev builder.Event = builder.ScenarioStarted{Meta: meta}
	if el.Type == "background" {
		ev = builder.BackgroundStarted{Meta: meta}
	}

	if err := h.Handle(ev); err != nil {
		return err
	}

	for _, hk := range el.Before {
		if err := replayHook(report.HookBefore, hk, h); err != nil {
			return err
		}
	}

	for i := range el.Steps {
		if err := replayStep(&el.Steps[i], h); err != nil {
			return err
		}
	}

	for _, hk := range el.After {
		if err := replayHook(report.HookAfter, hk, h); err != nil {
			return err
		}
	}

	return nil
}

func replayStep(st *step, h builder.Handler) error {
	if err := h.Handle(builder.StepStarted{Meta: report.StepMeta{
		Keyword: st.Keyword,
		Name:    st.Name,
		Line:    st.Line,
	}}); err != nil {
		return err
	}

	if st.Match != nil {
		if err := h.Handle(builder.StepMatched{
			Match: report.Match{Location: st.Match.Location},
		}); err != nil {
			return err
		}
	}

	if st.Result != nil {
		res, err := convertResult(st.Result)
		if err != nil {
			return h.Handle(builder.SyntaxError{
				Event: fmt.Sprintf("step %q: %v", st.Name, err),
				Line:  st.Line,
			})
		}

		if err := h.Handle(builder.StepFinished{Result: res}); err != nil {
			return err
		}
	}

	for _, emb := range st.Embeddings {
		if err := h.Handle(builder.AttachmentEmitted{
			MimeType: emb.MimeType,
			Data:     decodeEmbedding(emb.Data),
		}); err != nil {
			return err
		}
	}

	return nil
}

func replayHook(kind report.HookKind, hk hook, h builder.Handler) error {
	ev := builder.HookFinished{HookKind: kind}

	if hk.Match != nil {
		ev.Match = report.Match{Location: hk.Match.Location}
	}

	if hk.Result != nil {
		res, err := convertResult(hk.Result)
		if err != nil {
			return h.Handle(builder.SyntaxError{
				Event: fmt.Sprintf("%s hook: %v", kind, err),
			})
		}

		ev.Result = res
	}

	return h.Handle(ev)
}

func convertResult(r *result) (report.Result, error) {
	dur, err := nanoseconds(r.Duration)
	if err != nil {
		return report.Result{}, err
	}

	return report.Result{
		Status:       report.Status(r.Status),
		Duration:     dur,
		ErrorMessage: r.ErrorMessage,
		Error:        r.Error,
	}, nil
}

// decodeEmbedding returns the base64-decoded payload, or the raw string
// bytes when it is not valid base64.
func decodeEmbedding(data string) []byte {
	if b, err := base64.StdEncoding.DecodeString(data); err == nil {
		return b
	}

	return []byte(data)
}

func syntaxError(source string, data []byte, err error) builder.SyntaxError {
	var offset int64 = -1

	var (
		synErr  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &synErr):
		offset = synErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}

	line := 0
	if offset >= 0 {
		if offset > int64(len(data)) {
			offset = int64(len(data))
		}

		line = bytes.Count(data[:offset], []byte("\n")) + 1
	}

	return builder.SyntaxError{
		Event:       "malformed JSON: " + err.Error(),
		LegalEvents: []string{"JSON array of features"},
		URI:         source,
		Line:        line,
	}
}
