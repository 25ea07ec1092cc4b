package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"designflow/internal/domain"
)

// ErrMalformed marks oracle output that does not match the suggestion schema.
var ErrMalformed = errors.New("malformed oracle output")

var (
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?(.*?)\\n?`{3}")
	arrayRegex     = regexp.MustCompile(`(?s)\[.*\]`)
)

// wireSuggestion mirrors domain.Suggestion with strict field names.
type wireSuggestion struct {
	RequestID  string `json:"requestId"`
	DesignerID string `json:"designerId"`
	Rationale  string `json:"rationale"`
}

// ParseSuggestions decodes a JSON array of suggestions from model output.
// Code fences and surrounding prose are stripped first. Unknown fields,
// missing fields and blank values reject the whole response.
func ParseSuggestions(text string) ([]domain.Suggestion, error) {
	raw := extractArray(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON array found", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.DisallowUnknownFields()
	var items []wireSuggestion
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformed)
	}
	out := make([]domain.Suggestion, 0, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.RequestID) == "" || strings.TrimSpace(it.DesignerID) == "" || strings.TrimSpace(it.Rationale) == "" {
			return nil, fmt.Errorf("%w: item %d has blank fields", ErrMalformed, i)
		}
		out = append(out, domain.Suggestion{RequestID: it.RequestID, DesignerID: it.DesignerID, Rationale: it.Rationale})
	}
	return out, nil
}

func extractArray(text string) string {
	s := strings.TrimSpace(text)
	if m := codeFenceRegex.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "[") {
		return s
	}
	return arrayRegex.FindString(s)
}

// KeepKnown drops suggestions naming a designer or request outside the
// inputs the oracle was given.
func KeepKnown(suggestions []domain.Suggestion, designers []DesignerInput, requests []RequestInput) []domain.Suggestion {
	dIDs := make(map[string]struct{}, len(designers))
	for _, d := range designers {
		dIDs[d.ID] = struct{}{}
	}
	rIDs := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		rIDs[r.ID] = struct{}{}
	}
	out := make([]domain.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if _, ok := dIDs[s.DesignerID]; !ok {
			continue
		}
		if _, ok := rIDs[s.RequestID]; !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}
