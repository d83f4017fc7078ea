package cucumber

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// feature is one element of a cucumber or behave JSON report.
type feature struct {
	URI         string    `json:"uri"`
	Location    string    `json:"location"`
	ID          string    `json:"id"`
	Keyword     string    `json:"keyword"`
	Name        string    `json:"name"`
	Description text      `json:"description"`
	Line        int       `json:"line"`
	Tags        []tag     `json:"tags"`
	Elements    []element `json:"elements"`
}

type element struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Keyword     string `json:"keyword"`
	Name        string `json:"name"`
	Description text   `json:"description"`
	Line        int    `json:"line"`
	Location    string `json:"location"`
	Tags        []tag  `json:"tags"`
	Before      []hook `json:"before"`
	Steps       []step `json:"steps"`
	After       []hook `json:"after"`
}

type step struct {
	Keyword    string      `json:"keyword"`
	Name       string      `json:"name"`
	Line       int         `json:"line"`
	Location   string      `json:"location"`
	Match      *match      `json:"match"`
	Result     *result     `json:"result"`
	Embeddings []embedding `json:"embeddings"`
}

type hook struct {
	Match  *match  `json:"match"`
	Result *result `json:"result"`
}

type match struct {
	Location string `json:"location"`
}

type result struct {
	Status       string      `json:"status"`
	Duration     json.Number `json:"duration"`
	ErrorMessage text        `json:"error_message"`
	Error        string      `json:"error"`
}

type embedding struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// tag accepts both {"name": "@x"} and "@x".
type tag string

func (t *tag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*t = tag(s)

		return nil
	}

	var obj struct {
		Name string `json:"name"`
	}

	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	*t = tag(obj.Name)

	return nil
}

// text accepts a string, a list of strings or null.
type text []string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	switch {
	case len(b) == 0 || string(b) == "null":
		*t = nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		if s == "" {
			*t = nil
		} else {
			*t = text{s}
		}
	default:
		var lines []string
		if err := json.Unmarshal(b, &lines); err != nil {
			return err
		}

		*t = lines
	}

	return nil
}

func (t text) String() string {
	return strings.Join(t, "\n")
}

func tagNames(tags []tag) []string {
	if len(tags) == 0 {
		return nil
	}

	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}

	return out
}

// nanoseconds reads a duration. Integers are nanoseconds; values with a
// fraction or exponent are seconds. Returns nil when absent.
func nanoseconds(n json.Number) (*int64, error) {
	if n == "" {
		return nil, nil
	}

	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		v, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("parsing duration %q: %w", s, err)
		}

		return &v, nil
	}

	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("parsing duration %q: %w", s, err)
	}

	v := int64(math.Round(f * 1e9))

	return &v, nil
}

// stripLine turns "path/to.feature:12" into "path/to.feature".
func stripLine(location string) string {
	i := strings.LastIndexByte(location, ':')
	if i <= 0 {
		return location
	}

	for _, r := range location[i+1:] {
		if r < '0' || r > '9' {
			return location
		}
	}

	return location[:i]
}
