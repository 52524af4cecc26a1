package plan

import (
	"fmt"
	"strings"
)

// actionRiskScores weights each action kind by destructive potential.
var actionRiskScores = map[ActionKind]int{
	ActionDelete:   3,
	ActionEdit:     2,
	ActionMove:     2,
	ActionRefactor: 2,
	ActionAdd:      1,
	ActionTest:     0,
	ActionReview:   0,
	ActionUnknown:  1,
}

// sensitiveKeywords flag descriptions touching high-consequence areas.
var sensitiveKeywords = []string{
	"database", "auth", "config", "migration", "security",
	"credential", "secret", "production", "schema", "payment",
}

// wideScopeWords flag changes described as sweeping.
var wideScopeWords = []string{"all ", "entire ", "every "}

// breakingWords flag descriptions that signal interface breakage.
var breakingWords = []string{"breaking", "incompatible", "remove api", "drop support"}

// fanInThreshold is the dependent count above which a task is considered
// load-bearing.
const fanInThreshold = 3

// Risk level thresholds on the cumulative score.
const (
	criticalThreshold = 5
	highThreshold     = 3
	mediumThreshold   = 1
)

// EvaluateRisk computes an additive risk score for the task and stores
// the assessment on it. The score combines the action kind, sensitive
// keywords, wide-scope language, breaking-change indicators and
// dependency fan-in; each contribution is recorded as a reason.
func (p *Plan) EvaluateRisk(id int) (RiskAssessment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return RiskAssessment{}, err
	}

	assessment := p.scoreTask(t)
	t.Risk = assessment
	return assessment, nil
}

// EvaluateAllRisks scores every task in the plan.
func (p *Plan) EvaluateAllRisks() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.tasks {
		t.Risk = p.scoreTask(t)
	}
}

// scoreTask computes the additive risk score. Caller holds p.mu.
func (p *Plan) scoreTask(t *Task) RiskAssessment {
	score := 0
	var reasons []string
	desc := strings.ToLower(t.Description)

	if s := actionRiskScores[t.Action]; s > 0 {
		score += s
		reasons = append(reasons, fmt.Sprintf("action %s scores %d", t.Action, s))
	}

	var hits []string
	for _, kw := range sensitiveKeywords {
		if strings.Contains(desc, kw) {
			hits = append(hits, kw)
		}
	}
	if len(hits) > 0 {
		score += 2
		reasons = append(reasons, "touches sensitive area: "+strings.Join(hits, ", "))
	}

	for _, w := range wideScopeWords {
		if strings.Contains(desc, w) {
			score++
			reasons = append(reasons, "wide scope language: "+strings.TrimSpace(w))
			break
		}
	}

	breaking := t.Breaking
	if !breaking {
		for _, w := range breakingWords {
			if strings.Contains(desc, w) {
				breaking = true
				break
			}
		}
	}
	if breaking {
		score += 2
		reasons = append(reasons, "breaking change indicated")
	}

	fanIn := 0
	for _, other := range p.tasks {
		for _, dep := range other.Dependencies {
			if dep == t.ID {
				fanIn++
			}
		}
	}
	if fanIn >= fanInThreshold {
		score++
		reasons = append(reasons, fmt.Sprintf("%d tasks depend on this one", fanIn))
	}

	return RiskAssessment{
		Level:   levelFor(score),
		Score:   score,
		Reasons: reasons,
	}
}

// levelFor maps a cumulative score to a risk level via fixed thresholds.
func levelFor(score int) RiskLevel {
	switch {
	case score >= criticalThreshold:
		return RiskCritical
	case score >= highThreshold:
		return RiskHigh
	case score >= mediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
