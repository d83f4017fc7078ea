package report

import (
	"encoding/json"
	"fmt"
	"io"
)

// FormatVersion is the version written into encoded trees.
const FormatVersion = 1

type envelope struct {
	Version  int        `json:"version"`
	Features []*Feature `json:"features"`
}

// Encode writes s to w. Tallied counts are not written; Decode
// recomputes them.
func Encode(w io.Writer, s *Suite) error {
	env := envelope{Version: FormatVersion, Features: s.Features}
	if env.Features == nil {
		env.Features = []*Feature{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(&env); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	return nil
}

// Decode reads a tree written by Encode, relinks step owners and tallies
// it before returning.
func Decode(r io.Reader) (*Suite, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}

	if env.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported report format version %d", env.Version)
	}

	s := &Suite{Features: env.Features}
	relink(s)
	Tally(s)

	return s, nil
}

func relink(s *Suite) {
	for fi, f := range s.Features {
		for si, sc := range f.Scenarios {
			if sc.Background != nil {
				for _, st := range sc.Background.Steps {
					st.SetOwner(Owner{Feature: fi, Scenario: si, Background: true})
				}
			}

			for _, st := range sc.Steps {
				st.SetOwner(Owner{Feature: fi, Scenario: si})
			}
		}
	}
}
