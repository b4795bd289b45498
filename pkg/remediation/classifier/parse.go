package classifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
)

// rawAnalysis mirrors the JSON schema the prompt asks the model for; it is decoded
// first, then validated and copied into a domain.Analysis.
type rawAnalysis struct {
	ErrorType          string                `json:"error_type"`
	Category           string                `json:"category"`
	RiskScore          int                   `json:"risk_score"`
	Confidence         int                   `json:"confidence"`
	Effort             string                `json:"effort"`
	ProposedFix        string                `json:"proposed_fix"`
	FilesToModify      []string              `json:"files_to_modify"`
	FixOperations      []domain.FixOperation `json:"fix_operations"`
	Reasoning          string                `json:"reasoning"`
	AffectedComponents []string              `json:"affected_components"`
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// Parse runs the multi-strategy decode pipeline: strict JSON, then lenient (strip code
// fences and trailing commas), then regex field-by-field extraction. It returns
// ErrParseMalformed if every strategy fails, or if error_type is missing/invalid — the
// Classifier never fabricates a default for a missing enum field.
func Parse(raw string) (*rawAnalysis, error) {
	if a, err := strictParse(raw); err == nil {
		if err := validate(a); err != nil {
			return nil, err
		}
		return a, nil
	}

	if a, err := lenientParse(raw); err == nil {
		if err := validate(a); err != nil {
			return nil, err
		}
		return a, nil
	}

	if a, err := regexParse(raw); err == nil {
		if err := validate(a); err != nil {
			return nil, err
		}
		return a, nil
	}

	return nil, fmt.Errorf("classifier: %w: no parse strategy succeeded", remerrors.ErrParseMalformed)
}

func strictParse(raw string) (*rawAnalysis, error) {
	var a rawAnalysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func lenientParse(raw string) (*rawAnalysis, error) {
	cleaned := raw
	if m := codeFenceRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}
	cleaned = trailingCommaRe.ReplaceAllString(cleaned, "$1")
	cleaned = strings.TrimSpace(cleaned)

	var a rawAnalysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

var fieldRegexes = map[string]*regexp.Regexp{
	"error_type":  regexp.MustCompile(`"error_type"\s*:\s*"([^"]+)"`),
	"category":    regexp.MustCompile(`"category"\s*:\s*"([^"]+)"`),
	"risk_score":  regexp.MustCompile(`"risk_score"\s*:\s*(-?\d+)`),
	"confidence":  regexp.MustCompile(`"confidence"\s*:\s*(-?\d+)`),
	"effort":      regexp.MustCompile(`"effort"\s*:\s*"([^"]+)"`),
	"proposed_fix": regexp.MustCompile(`"proposed_fix"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	"reasoning":   regexp.MustCompile(`"reasoning"\s*:\s*"((?:[^"\\]|\\.)*)"`),
}

// regexParse is the last-resort strategy: extract individual scalar fields by regex when
// the response isn't valid JSON at all (e.g. the model wrapped it in prose). Array
// fields (files_to_modify, fix_operations, affected_components) are not recoverable
// this way and are left empty.
func regexParse(raw string) (*rawAnalysis, error) {
	a := &rawAnalysis{}
	found := false

	if m := fieldRegexes["error_type"].FindStringSubmatch(raw); m != nil {
		a.ErrorType = m[1]
		found = true
	}
	if m := fieldRegexes["category"].FindStringSubmatch(raw); m != nil {
		a.Category = m[1]
	}
	if m := fieldRegexes["risk_score"].FindStringSubmatch(raw); m != nil {
		a.RiskScore, _ = strconv.Atoi(m[1])
	}
	if m := fieldRegexes["confidence"].FindStringSubmatch(raw); m != nil {
		a.Confidence, _ = strconv.Atoi(m[1])
	}
	if m := fieldRegexes["effort"].FindStringSubmatch(raw); m != nil {
		a.Effort = m[1]
	}
	if m := fieldRegexes["proposed_fix"].FindStringSubmatch(raw); m != nil {
		a.ProposedFix = unescapeJSONString(m[1])
	}
	if m := fieldRegexes["reasoning"].FindStringSubmatch(raw); m != nil {
		a.Reasoning = unescapeJSONString(m[1])
	}

	if !found {
		return nil, fmt.Errorf("classifier: regex extraction found no error_type field")
	}
	return a, nil
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// validate rejects responses with a missing or out-of-enum error_type, per §4.2's
// requirement to never guess this field.
func validate(a *rawAnalysis) error {
	if a.ErrorType == "" || !domain.ValidErrorType(a.ErrorType) {
		return fmt.Errorf("classifier: %w: error_type %q is missing or invalid", remerrors.ErrParseMalformed, a.ErrorType)
	}
	return nil
}
