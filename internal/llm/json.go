package llm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"
)

// Parse stages reported in ParseError.
const (
	StageQueries  = "queries"
	StageRankings = "rankings"
)

// ParseError reports a model response that was not the JSON shape asked for.
type ParseError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s response from language model: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// A JSON null decodes into a nil slice without error.
var errNotArray = errors.New("expected a JSON array")

// Ranking is the model's judgment of one candidate episode.
type Ranking struct {
	ID     int64  `json:"id"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// StripCodeFence removes a surrounding markdown code fence, with or without a
// language tag.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = text[3:]
	}
	if j := strings.LastIndex(text, "```"); j >= 0 {
		text = text[:j]
	}
	return strings.TrimSpace(text)
}

// ParseQueries expects a JSON array of search query strings. Blank entries
// are dropped.
func ParseQueries(text string) ([]string, error) {
	var raw []any
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &raw); err != nil {
		return nil, &ParseError{Stage: StageQueries, Raw: text, Err: err}
	}
	if raw == nil {
		return nil, &ParseError{Stage: StageQueries, Raw: text, Err: errNotArray}
	}

	queries := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, &ParseError{Stage: StageQueries, Raw: text, Err: fmt.Errorf("element %d is %T, want string", i, item)}
		}
		if s = strings.TrimSpace(s); s != "" {
			queries = append(queries, s)
		}
	}
	return queries, nil
}

// ParseRankings expects a JSON array of {id, score, reason} objects with an
// integer id, an integer score from 1 to 10 and a string reason.
func ParseRankings(text string) ([]Ranking, error) {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &raw); err != nil {
		return nil, &ParseError{Stage: StageRankings, Raw: text, Err: err}
	}
	if raw == nil {
		return nil, &ParseError{Stage: StageRankings, Raw: text, Err: errNotArray}
	}

	rankings := make([]Ranking, 0, len(raw))
	for i, obj := range raw {
		r, err := rankingFromObject(obj)
		if err != nil {
			return nil, &ParseError{Stage: StageRankings, Raw: text, Err: fmt.Errorf("element %d: %w", i, err)}
		}
		rankings = append(rankings, r)
	}
	return rankings, nil
}

func rankingFromObject(obj map[string]any) (Ranking, error) {
	if obj == nil {
		return Ranking{}, errors.New("not an object")
	}

	id, err := integerField(obj, "id")
	if err != nil {
		return Ranking{}, err
	}
	score, err := integerField(obj, "score")
	if err != nil {
		return Ranking{}, err
	}
	if score < 1 || score > 10 {
		return Ranking{}, fmt.Errorf("score %d outside 1-10", score)
	}
	reason, ok := obj["reason"].(string)
	if !ok {
		return Ranking{}, fmt.Errorf("reason is %T, want string", obj["reason"])
	}

	return Ranking{ID: id, Score: int(score), Reason: strings.TrimSpace(reason)}, nil
}

func integerField(obj map[string]any, key string) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s is %T, want integer", key, v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s %v is not an integer", key, f)
	}
	return int64(f), nil
}
