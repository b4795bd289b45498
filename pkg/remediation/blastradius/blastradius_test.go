package blastradius

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_LowRiskOrdinarySource(t *testing.T) {
	r := Score(Input{
		Branch:          "feature/foo",
		DefaultBranch:   "main",
		FilesToModify:   []string{"internal/util/helpers.go"},
		FailureCategory: "flaky_test",
	})
	assert.Equal(t, LevelLow, r.Level)
	assert.Less(t, r.Score, 3.0)
}

func TestScore_WorkflowFileOnDefaultBranchIsCritical(t *testing.T) {
	r := Score(Input{
		Branch:          "main",
		DefaultBranch:   "main",
		FilesToModify:   []string{".github/workflows/build.yml"},
		FailureCategory: "infra",
	})
	assert.Equal(t, LevelCritical, r.Level)
}

func TestScore_MonotoneUnderMoreFiles(t *testing.T) {
	base := Score(Input{
		Branch:          "feature/foo",
		DefaultBranch:   "main",
		FilesToModify:   []string{"a/one.go"},
		FailureCategory: "compile_error",
	})
	more := Score(Input{
		Branch:          "feature/foo",
		DefaultBranch:   "main",
		FilesToModify:   []string{"a/one.go", "b/two.go", "c/three.go"},
		FailureCategory: "compile_error",
	})
	assert.GreaterOrEqual(t, more.Score, base.Score)
}

func TestScore_MonotoneUnderHigherBranchCriticality(t *testing.T) {
	feature := Score(Input{
		Branch:          "feature/foo",
		DefaultBranch:   "main",
		FilesToModify:   []string{"a/one.go"},
		FailureCategory: "compile_error",
	})
	main := Score(Input{
		Branch:          "main",
		DefaultBranch:   "main",
		FilesToModify:   []string{"a/one.go"},
		FailureCategory: "compile_error",
	})
	assert.GreaterOrEqual(t, main.Score, feature.Score)
}

func TestScore_DependencyManifestScalesWithDependents(t *testing.T) {
	few := Score(Input{
		Branch: "feature/foo", DefaultBranch: "main",
		FilesToModify: []string{"go.mod"}, FailureCategory: "dependency", DependentCount: 1,
	})
	many := Score(Input{
		Branch: "feature/foo", DefaultBranch: "main",
		FilesToModify: []string{"go.mod"}, FailureCategory: "dependency", DependentCount: 50,
	})
	assert.Greater(t, many.Score, few.Score)
	assert.NotEmpty(t, many.Recommendations)
}

func TestScore_ScoreNeverExceedsTen(t *testing.T) {
	r := Score(Input{
		Branch:        "main",
		DefaultBranch: "main",
		FilesToModify: []string{
			".github/workflows/deploy.yml", "k8s/deployment.yaml", "go.mod",
			"Dockerfile", "config/production.env",
		},
		FailureCategory: "security",
		DependentCount:  200,
	})
	assert.LessOrEqual(t, r.Score, 10.0)
}
