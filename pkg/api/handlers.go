package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/ethpandaops/gherkinreport/pkg/storage"
	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// runEntry is one row of the run listing.
type runEntry struct {
	RunID          string         `json:"run_id"`
	Outcome        report.Outcome `json:"outcome"`
	Features       int            `json:"features,omitempty"`
	Scenarios      int            `json:"scenarios,omitempty"`
	Total          int            `json:"total"`
	Passed         int            `json:"passed"`
	Failed         int            `json:"failed"`
	Skipped        int            `json:"skipped"`
	Duration       float64        `json:"duration"`
	DurationString string         `json:"duration_string"`
	IndexedAt      int64          `json:"indexed_at,omitempty"`
}

// featureEntry describes one feature of a run without its scenarios.
type featureEntry struct {
	report.Counts
	Index          int      `json:"index"`
	URI            string   `json:"uri,omitempty"`
	Keyword        string   `json:"keyword,omitempty"`
	Name           string   `json:"name"`
	Tags           []string `json:"tags,omitempty"`
	Scenarios      int      `json:"scenarios"`
	DurationString string   `json:"duration_string"`
}

// scenarioEntry describes one scenario of a feature without its steps.
type scenarioEntry struct {
	report.Counts
	Index          int      `json:"index"`
	Name           string   `json:"name"`
	Line           int      `json:"line,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Steps          int      `json:"steps"`
	Attachments    int      `json:"attachments"`
	DurationString string   `json:"duration_string"`
}

// scenarioDetail is a full scenario with its tallied figures.
type scenarioDetail struct {
	*report.Scenario
	Totals         report.Counts `json:"totals"`
	DurationString string        `json:"duration_string"`
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"resident_trees": s.registry.Resident(),
	})
}

// handleListRuns lists recorded runs. The index is used when indexing is
// enabled; otherwise every stored run is summarized through the cache.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.indexStore != nil {
		runs, err := s.indexStore.ListRuns(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"listing runs: " + err.Error()})

			return
		}

		entries := make([]runEntry, 0, len(runs))

		for i := range runs {
			run := &runs[i]

			entries = append(entries, runEntry{
				RunID:          run.RunID,
				Outcome:        report.Outcome(run.Outcome),
				Features:       run.Features,
				Scenarios:      run.Scenarios,
				Total:          run.Total,
				Passed:         run.Passed,
				Failed:         run.Failed,
				Skipped:        run.Skipped,
				Duration:       run.DurationSeconds,
				DurationString: report.FormatDuration(run.DurationSeconds),
				IndexedAt:      run.IndexedAt.Unix(),
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{"runs": entries})

		return
	}

	ids, err := s.registry.Store().ListRunIDs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs: " + err.Error()})

		return
	}

	entries := make([]runEntry, 0, len(ids))

	for _, id := range ids {
		entries = append(entries, s.summaryEntry(r, id))
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

// handleGetRun returns the root figures of one run.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	suite, runID, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	entry := s.summaryEntry(r, runID)
	entry.Features = len(suite.Features)
	entry.Scenarios = len(suite.Scenarios())

	writeJSON(w, http.StatusOK, entry)
}

// handleListFeatures lists the features of a run in arrival order.
func (s *server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	suite, _, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	entries := make([]featureEntry, 0, len(suite.Features))

	for i, f := range suite.Features {
		entries = append(entries, featureEntry{
			Index:          i,
			URI:            f.URI,
			Keyword:        f.Keyword,
			Name:           f.Name,
			Tags:           f.Tags,
			Scenarios:      len(f.Scenarios),
			Counts:         f.Counts(),
			DurationString: report.FormatDuration(f.Duration()),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"features": entries})
}

// handleListScenarios lists the scenarios of one feature.
func (s *server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	feature, ok := s.loadFeature(w, r)
	if !ok {
		return
	}

	entries := make([]scenarioEntry, 0, len(feature.Scenarios))

	for i, sc := range feature.Scenarios {
		entries = append(entries, scenarioEntry{
			Index:          i,
			Name:           sc.Name,
			Line:           sc.Line,
			Tags:           sc.Tags,
			Steps:          len(sc.Steps),
			Attachments:    len(sc.Attachments),
			Counts:         sc.Counts(),
			DurationString: report.FormatDuration(sc.Duration()),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"scenarios": entries})
}

// handleGetScenario returns one scenario with its steps, hooks and
// attachments.
func (s *server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	feature, ok := s.loadFeature(w, r)
	if !ok {
		return
	}

	idx, err := strconv.Atoi(chi.URLParam(r, "scenario"))
	if err != nil || idx < 0 || idx >= len(feature.Scenarios) {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"scenario not found"})

		return
	}

	sc := feature.Scenarios[idx]

	writeJSON(w, http.StatusOK, scenarioDetail{
		Scenario:       sc,
		Totals:         sc.Counts(),
		DurationString: report.FormatDuration(sc.Duration()),
	})
}

// handleEmbed serves an archived attachment of a run.
func (s *server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := storage.ValidateRunID(runID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	filePath := storage.RunsDir + "/" + runID + "/embed/" + chi.URLParam(r, "*")

	if err := s.localServer.ServeFile(w, r, filePath); err != nil {
		s.log.WithError(err).WithField("path", filePath).
			Debug("Attachment not served")

		writeJSON(w, http.StatusNotFound, errorResponse{"not found"})
	}
}

// summaryEntry builds a run listing row from the cached summary.
func (s *server) summaryEntry(r *http.Request, runID string) runEntry {
	sum := s.registry.Summary(r.Context(), runID)

	return runEntry{
		RunID:          runID,
		Outcome:        report.OutcomeFor(sum.Total, sum.Failed, s.opts.FailOnEmpty),
		Total:          sum.Total,
		Passed:         sum.Passed,
		Failed:         sum.Failed,
		Skipped:        sum.Skipped,
		Duration:       sum.Duration,
		DurationString: report.FormatDuration(sum.Duration),
	}
}

// loadRun resolves the runID URL parameter to a tree. It writes the error
// response and returns false when the run cannot be served.
func (s *server) loadRun(
	w http.ResponseWriter, r *http.Request,
) (*report.Suite, string, bool) {
	runID := chi.URLParam(r, "runID")
	if err := storage.ValidateRunID(runID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return nil, "", false
	}

	suite := s.registry.Result(r.Context(), runID)

	if err := s.registry.Get(runID).LoadErr(); err != nil {
		// Forget the entry so unknown IDs do not accumulate and a
		// transient failure is retried on the next request.
		s.registry.Drop(runID)

		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})
		} else {
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"loading run: " + err.Error()})
		}

		return nil, "", false
	}

	return suite, runID, true
}

// loadFeature resolves the runID and feature URL parameters.
func (s *server) loadFeature(
	w http.ResponseWriter, r *http.Request,
) (*report.Feature, bool) {
	suite, _, ok := s.loadRun(w, r)
	if !ok {
		return nil, false
	}

	idx, err := strconv.Atoi(chi.URLParam(r, "feature"))
	if err != nil || idx < 0 || idx >= len(suite.Features) {
		writeJSON(w, http.StatusNotFound, errorResponse{"feature not found"})

		return nil, false
	}

	return suite.Features[idx], true
}
