// Package blastradius scores a proposed edit set's pre-change impact (§4.5), combining
// file-glob criticality, affected-service spread, dependency-manifest fan-out, branch
// criticality, and category risk into a single [0,10] score.
package blastradius

import (
	"path"
	"strconv"
	"strings"
)

// Level buckets a Score for display and gating thresholds.
type Level string

// Recognized levels.
const (
	LevelLow      Level = "low"
	LevelMedium   Level = "med"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Input is what BlastRadius needs to score one proposed edit set.
type Input struct {
	Repository      string
	Branch          string
	DefaultBranch   string
	FilesToModify   []string
	FailureCategory string
	// DependentCount is the number of repositories or packages declared as depending on
	// this one, used to weight dependency-manifest touches. Zero if unknown.
	DependentCount int
}

// Result is BlastRadius's output.
type Result struct {
	Score           float64
	Level           Level
	Rationale       []string
	Recommendations []string
}

type globSeverity struct {
	patterns []string
	score    float64
	label    string
}

// fileCriticalityTable is checked in order; the first matching pattern wins for a file.
// Patterns use path.Match glob syntax against the file's base name and full path.
var fileCriticalityTable = []globSeverity{
	{patterns: []string{".github/workflows/*", "*.gitlab-ci.yml", "Jenkinsfile"}, score: 9, label: "CI workflow definition"},
	{patterns: []string{"Dockerfile*", "docker-compose*.yml", "*.dockerfile"}, score: 8, label: "container manifest"},
	{patterns: []string{"k8s/*", "kubernetes/*", "*.tf", "*.tfvars", "helm/*"}, score: 9, label: "deployment/IaC manifest"},
	{patterns: []string{"*.env.production", "*.env.prod", "config/production*"}, score: 9, label: "production environment file"},
	{patterns: []string{"go.mod", "go.sum", "package.json", "package-lock.json", "requirements*.txt", "Gemfile*", "Cargo.toml"}, score: 6, label: "dependency manifest"},
	{patterns: []string{"*_test.go", "*.test.js", "*_test.py"}, score: 2, label: "test source"},
}

const defaultSourceSeverity = 3

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
		if ok, _ := path.Match(p, path.Base(name)); ok {
			return true
		}
	}
	return false
}

func fileSeverity(file string) (float64, string) {
	for _, row := range fileCriticalityTable {
		if matchAny(row.patterns, file) {
			return row.score, row.label
		}
	}
	return defaultSourceSeverity, "ordinary source"
}

func isDependencyManifest(file string) bool {
	_, label := fileSeverity(file)
	return label == "dependency manifest"
}

// categoryRiskTable maps a failure category to a base risk contribution. Categories not
// present default to a mid-value, since the rubric the classifier uses is treated as
// opaque input rather than something BlastRadius re-derives.
var categoryRiskTable = map[string]float64{
	"flaky_test":       2,
	"dependency":       6,
	"infra":            8,
	"config":           7,
	"security":         9,
	"compile_error":    4,
	"lint":             1,
	"timeout":          5,
	"resource_limit":   7,
}

func categoryRisk(category string) float64 {
	if v, ok := categoryRiskTable[strings.ToLower(category)]; ok {
		return v
	}
	return 5
}

func branchCriticality(branch, defaultBranch string) (float64, string) {
	switch {
	case branch == defaultBranch:
		return 10, "default branch"
	case strings.HasPrefix(branch, "release/") || strings.HasPrefix(branch, "release-"):
		return 7, "release branch"
	default:
		return 3, "feature branch"
	}
}

func serviceRoots(files []string) map[string]bool {
	roots := map[string]bool{}
	for _, f := range files {
		parts := strings.SplitN(f, "/", 2)
		roots[parts[0]] = true
	}
	return roots
}

// Score computes a monotone [0,10] blast-radius score: adding files, touching more
// dependency manifests, or moving to a more critical branch never decreases the score.
func Score(in Input) Result {
	var rationale []string
	var recommendations []string

	maxFileSeverity := 0.0
	var mostSevereLabel string
	for _, f := range in.FilesToModify {
		sev, label := fileSeverity(f)
		if sev > maxFileSeverity {
			maxFileSeverity = sev
			mostSevereLabel = label
		}
	}
	if len(in.FilesToModify) > 0 {
		rationale = append(rationale, "highest file criticality: "+mostSevereLabel)
	}

	roots := serviceRoots(in.FilesToModify)
	serviceImpact := float64(len(roots))
	if serviceImpact > 10 {
		serviceImpact = 10
	}
	rationale = append(rationale, "distinct affected path roots: "+strconv.Itoa(len(roots)))

	depImpact := 0.0
	touchesManifest := false
	for _, f := range in.FilesToModify {
		if isDependencyManifest(f) {
			touchesManifest = true
			break
		}
	}
	if touchesManifest {
		depImpact = 4 + weightForDependents(in.DependentCount)
		if depImpact > 10 {
			depImpact = 10
		}
		rationale = append(rationale, "touches a dependency manifest with "+strconv.Itoa(in.DependentCount)+" known dependents")
		recommendations = append(recommendations, "confirm downstream consumers pin exact versions before merging")
	}

	branchScore, branchLabel := branchCriticality(in.Branch, in.DefaultBranch)
	rationale = append(rationale, "branch criticality: "+branchLabel)

	catScore := categoryRisk(in.FailureCategory)
	rationale = append(rationale, "category risk baseline for "+in.FailureCategory)

	score := 0.30*maxFileSeverity + 0.25*serviceImpact + 0.20*depImpact + 0.15*branchScore + 0.10*catScore
	if score > 10 {
		score = 10
	}

	level := levelFor(score)
	if level == LevelHigh || level == LevelCritical {
		recommendations = append(recommendations, "route through ApprovalManager rather than auto-apply")
	}
	if maxFileSeverity >= 9 {
		recommendations = append(recommendations, "request a second reviewer familiar with CI/deployment configuration")
	}

	return Result{
		Score:           round1(score),
		Level:           level,
		Rationale:       rationale,
		Recommendations: recommendations,
	}
}

func weightForDependents(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n < 5:
		return 2
	case n < 20:
		return 4
	default:
		return 6
	}
}

func levelFor(score float64) Level {
	switch {
	case score >= 8:
		return LevelCritical
	case score >= 6:
		return LevelHigh
	case score >= 3:
		return LevelMedium
	default:
		return LevelLow
	}
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

