package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zombar/litmatrix/internal/models"
)

// ParseError means the model output could not be read as the expected JSON shape
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "malformed model output: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StripFence removes one leading ``` or ```json line and one trailing ``` line.
// Fences inside the payload are left alone.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Normalize parses raw model output into a complete AnalysisResult.
// Missing or wrongly shaped fields become empty; a payload that is not a JSON object is a ParseError.
func Normalize(raw string) (*models.AnalysisResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(StripFence(raw)), &fields); err != nil {
		return nil, &ParseError{Err: err}
	}
	if fields == nil {
		return nil, &ParseError{Err: fmt.Errorf("payload is not a JSON object")}
	}

	result := &models.AnalysisResult{
		EvidenceList:  decodeList[models.EvidenceAssessment](fields["evidenceList"]),
		Strategy:      decodeString(fields["strategy"]),
		KeyPoints:     decodeList[string](fields["keyPoints"]),
		Reinforcement: decodeList[models.ReinforcementPoint](fields["reinforcement"]),
		Risks:         decodeList[models.LitigationRisk](fields["risks"]),
		Confrontation: decodeList[models.Confrontation](fields["confrontation"]),
		Statutes:      decodeList[models.Statute](fields["statutes"]),
		CaseLaw:       decodeList[models.CaseReference](fields["caseLaw"]),
	}

	for i := range result.EvidenceList {
		result.EvidenceList[i].Reliability = models.ParseReliability(string(result.EvidenceList[i].Reliability))
	}

	return result, nil
}

// Complete fills nil collections of an already decoded result
func Complete(r *models.AnalysisResult) *models.AnalysisResult {
	if r == nil {
		r = &models.AnalysisResult{}
	}
	if r.EvidenceList == nil {
		r.EvidenceList = []models.EvidenceAssessment{}
	}
	if r.KeyPoints == nil {
		r.KeyPoints = []string{}
	}
	if r.Reinforcement == nil {
		r.Reinforcement = []models.ReinforcementPoint{}
	}
	if r.Risks == nil {
		r.Risks = []models.LitigationRisk{}
	}
	if r.Confrontation == nil {
		r.Confrontation = []models.Confrontation{}
	}
	if r.Statutes == nil {
		r.Statutes = []models.Statute{}
	}
	if r.CaseLaw == nil {
		r.CaseLaw = []models.CaseReference{}
	}
	return r
}

// decodeList reads a JSON array element by element.
// Null elements are skipped and elements of the wrong shape are dropped. Within an
// object, numeric and boolean values are read as strings and nested values are ignored.
func decodeList[T any](raw json.RawMessage) []T {
	out := []T{}
	if len(raw) == 0 {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}

	for _, item := range items {
		item = bytes.TrimSpace(item)
		if bytes.Equal(item, []byte("null")) {
			continue
		}
		var v T
		if err := json.Unmarshal(lenient(item), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// lenient rewrites the scalar fields of an object as JSON strings; other items pass through
func lenient(item json.RawMessage) json.RawMessage {
	if len(item) == 0 || item[0] != '{' {
		return item
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
		return item
	}
	for k, v := range obj {
		if s, ok := scalarAsString(v); ok {
			obj[k] = s
		} else {
			delete(obj, k)
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return item
	}
	return b
}

// scalarAsString returns a string, number or boolean as a JSON string
func scalarAsString(raw json.RawMessage) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}
	switch c := raw[0]; {
	case c == '"':
		return raw, true
	case c == 't', c == 'f', c == '-', c >= '0' && c <= '9':
		b, err := json.Marshal(string(raw))
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// NormalizeBragging reads a list of lines from either a bare JSON array of strings
// or an object holding one (preferring a "lines" key).
func NormalizeBragging(raw string) ([]string, error) {
	payload := []byte(StripFence(raw))

	var lines []string
	if err := json.Unmarshal(payload, &lines); err == nil {
		return cleanLines(lines), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, &ParseError{Err: err}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if _, ok := obj["lines"]; ok {
		keys = append([]string{"lines"}, keys...)
	}

	for _, k := range keys {
		if err := json.Unmarshal(obj[k], &lines); err == nil && len(lines) > 0 {
			return cleanLines(lines), nil
		}
	}

	return nil, &ParseError{Err: fmt.Errorf("no list of lines in response")}
}

func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
