package domain

import "time"

// EmbeddingFamily identifies which embedding scheme produced a Pattern's vector,
// so similarity queries never mix incompatible families.
type EmbeddingFamily string

// Recognized embedding families.
const (
	EmbeddingFamilyRemote EmbeddingFamily = "remote"
	EmbeddingFamilyHashed EmbeddingFamily = "hashed_local"
)

// Pattern is a stored (failure -> successful fix) example retrieved by similarity.
//
//nolint:govet // logical field grouping preferred over memory layout
type Pattern struct {
	ID                string          `json:"pattern_id"`
	Repository        string          `json:"repository"`
	Branch            string          `json:"branch"`
	ErrorSignature    string          `json:"error_signature"`
	Category          string          `json:"category"`
	ProposedFix       string          `json:"proposed_fix"`
	FilesModified     []string        `json:"files_modified"`
	FixCommands       []string        `json:"fix_commands"`
	FixSuccessful     bool            `json:"fix_successful"`
	ResolutionTimeMS  int64           `json:"resolution_time_ms"`
	Embedding         []float32       `json:"embedding"`
	EmbeddingFamily   EmbeddingFamily `json:"embedding_family"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Match pairs a Pattern with its similarity score against a query.
type Match struct {
	Pattern    Pattern `json:"pattern"`
	Similarity float64 `json:"similarity"`
}

// DetectedPattern is one behavioral flag emitted by the PersonalityProfiler.
type DetectedPattern struct {
	Type             string  `json:"type"`
	Frequency        float64 `json:"frequency"`
	ConfidenceAdjust float64 `json:"confidence_adjust"`
	Recommendation   string  `json:"recommendation"`
}

// PersonalityProfile is a per-repository trailing-window behavioral summary.
//
//nolint:govet // logical field grouping preferred over memory layout
type PersonalityProfile struct {
	Repository          string            `json:"repository"`
	TotalFailures        int               `json:"total_failures"`
	CategoryHistogram    map[string]int    `json:"category_histogram"`
	DayOfWeekHistogram   map[string]int    `json:"day_of_week_histogram"`
	HourHistogram        map[int]int       `json:"hour_histogram"`
	FlakyRate            float64           `json:"flaky_rate"`
	AvgResolutionMinutes float64           `json:"avg_resolution_minutes"`
	SuccessRate          float64           `json:"success_rate"`
	DetectedPatterns     []DetectedPattern `json:"detected_patterns"`
	ComputedAt           time.Time         `json:"computed_at"`
}
