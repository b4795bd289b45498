package classifier

import (
	"fmt"
	"strings"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
)

const rolePreamble = `You are the classification stage of an automated CI remediation system.
Given a failed CI run, determine whether the failure is a "developer" issue (localizes
to application source: failing assertions, compile/lint errors naming in-repo files) or
a "devops" issue (dependency resolution, workflow configuration, runner timeouts,
environment problems). Then propose a concrete fix.

Respond with a single JSON object matching exactly this schema:
{
  "error_type": "developer" | "devops",
  "category": string,
  "risk_score": integer 0-10,
  "confidence": integer 0-100,
  "effort": "low" | "med" | "high",
  "proposed_fix": string,
  "files_to_modify": [string],
  "fix_operations": [{"path": string, "action": "create"|"update"|"delete", "content": string, "rationale": string}],
  "reasoning": string,
  "affected_components": [string]
}
Do not include any text outside the JSON object.`

// AssembleParams carries everything the ordered prompt assembly needs.
type AssembleParams struct {
	Failure     domain.Failure
	Similar     []domain.Match
	Profile     domain.PersonalityProfile
}

// Assemble builds the ordered five-part prompt: role preamble, failure facts, historical
// context from PatternMemory, personality snapshot, and a trailing schema reminder.
func Assemble(p AssembleParams) string {
	var b strings.Builder

	b.WriteString(rolePreamble)
	b.WriteString("\n\n")

	b.WriteString("== Failure ==\n")
	fmt.Fprintf(&b, "repository: %s\nbranch: %s\nworkflow: %s\ncommit: %s\nreason: %s\n",
		p.Failure.Repository, p.Failure.Branch, p.Failure.Workflow, p.Failure.CommitHash, p.Failure.FailureReason)
	b.WriteString("log tail:\n")
	b.WriteString(truncateTailTokens(p.Failure.CapturedLogs, MaxLogTailTokens))
	b.WriteString("\n\n")

	if len(p.Similar) > 0 {
		b.WriteString("== Similar past failures and their successful fixes ==\n")
		for _, m := range p.Similar {
			fmt.Fprintf(&b, "- signature=%s similarity=%.2f fix=%q files=%v\n",
				m.Pattern.ErrorSignature, m.Similarity, m.Pattern.ProposedFix, m.Pattern.FilesModified)
		}
		b.WriteString("\n")
	}

	if p.Profile.TotalFailures > 0 {
		b.WriteString("== Repository personality ==\n")
		fmt.Fprintf(&b, "dominant category share among %d recent failures, flaky_rate=%.2f\n",
			p.Profile.TotalFailures, p.Profile.FlakyRate)
		for _, dp := range p.Profile.DetectedPatterns {
			fmt.Fprintf(&b, "- %s (frequency %.2f): %s\n", dp.Type, dp.Frequency, dp.Recommendation)
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with only the JSON object described above.")

	return b.String()
}
