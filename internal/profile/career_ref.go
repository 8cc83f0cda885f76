package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxCareers bounds how many careers seed a cycle.
const MaxCareers = 5

// CareerRef is a normalized career name, optionally carrying the score it was ranked with.
// Build it with Named or Scored.
type CareerRef struct {
	name   string
	score  float64
	scored bool
}

func Named(name string) CareerRef {
	return CareerRef{name: name}
}

func Scored(name string, score float64) CareerRef {
	return CareerRef{name: name, score: score, scored: true}
}

func (c CareerRef) Name() string { return c.name }

// Score returns the ranking score and whether one was present.
func (c CareerRef) Score() (float64, bool) { return c.score, c.scored }

func (c CareerRef) String() string {
	if c.scored {
		return fmt.Sprintf("%s:%.2f", c.name, c.score)
	}
	return c.name
}

var (
	errUnsupportedPayload = errors.New("unsupported recommended careers payload")

	parenthetical = regexp.MustCompile(`\s*[\(（\[][^\)）\]]*[\)）\]]?`)

	nameKeys  = []string{"name", "career", "career_name", "careerName", "title", "job_title", "jobTitle", "role"}
	scoreKeys = []string{"score", "match_score", "matchScore", "fit_score", "fitScore", "confidence"}
	listKeys  = []string{"careers", "recommended_careers", "recommendedCareers", "items"}
)

// NormalizeName strips parenthetical qualifiers ("Backend Developer (Go)" -> "Backend Developer").
func NormalizeName(name string) string {
	name = parenthetical.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// ParseRecommendedCareers accepts the stored "recommended careers" value in any of the shapes it is
// written in: a JSON document, a JSON string holding a JSON document, a list of strings and/or objects,
// or an object wrapping such a list. At most MaxCareers refs are returned, de-duplicated.
func ParseRecommendedCareers(raw []byte) ([]CareerRef, error) {
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// not JSON at all: treat as a delimited list of names
		return limitRefs(splitNames(string(raw))), nil
	}

	refs, err := refsFromValue(v, 0)
	if err != nil {
		return nil, err
	}
	return limitRefs(refs), nil
}

func refsFromValue(v any, depth int) ([]CareerRef, error) {
	if depth > 3 {
		return nil, errUnsupportedPayload
	}

	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") || strings.HasPrefix(s, `"`) {
			var inner any
			if err := json.Unmarshal([]byte(s), &inner); err == nil {
				return refsFromValue(inner, depth+1)
			}
		}
		return splitNames(s), nil
	case []any:
		out := make([]CareerRef, 0, len(t))
		for _, item := range t {
			ref, ok := refFromItem(item)
			if ok {
				out = append(out, ref)
			}
		}
		return out, nil
	case map[string]any:
		for _, k := range listKeys {
			if inner, ok := t[k]; ok {
				return refsFromValue(inner, depth+1)
			}
		}
		if ref, ok := refFromItem(t); ok {
			return []CareerRef{ref}, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %T", errUnsupportedPayload, v)
	}
}

func refFromItem(item any) (CareerRef, bool) {
	switch t := item.(type) {
	case string:
		name := NormalizeName(t)
		if name == "" {
			return CareerRef{}, false
		}
		return Named(name), true
	case map[string]any:
		var name string
		for _, k := range nameKeys {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				name = NormalizeName(s)
				break
			}
		}
		if name == "" {
			return CareerRef{}, false
		}
		for _, k := range scoreKeys {
			if score, ok := asFloat(t[k]); ok {
				return Scored(name, score), true
			}
		}
		return Named(name), true
	default:
		return CareerRef{}, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(t, "%")), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func splitNames(s string) []CareerRef {
	s = parenthetical.ReplaceAllString(s, "")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	out := make([]CareerRef, 0, len(fields))
	for _, f := range fields {
		name := NormalizeName(f)
		if name != "" {
			out = append(out, Named(name))
		}
	}
	return out
}

func limitRefs(refs []CareerRef) []CareerRef {
	out := make([]CareerRef, 0, MaxCareers)
	seen := map[string]struct{}{}
	for _, r := range refs {
		key := strings.ToLower(r.name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
		if len(out) == MaxCareers {
			break
		}
	}
	return out
}
