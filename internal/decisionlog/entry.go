package decisionlog

import (
	"time"

	"github.com/davidahmann/strix/internal/crypto"
	"github.com/davidahmann/strix/pkg/types"
	"github.com/google/uuid"
)

// TimeLayout is a fixed-width UTC layout, so stored timestamps sort
// lexically in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// DayLayout names the per-day groups of the log.
const DayLayout = "2006-01-02"

// Entry pairs one request with the decision returned for it.
type Entry struct {
	ID       string                  `json:"id"`
	LoggedAt time.Time               `json:"logged_at"`
	Digest   string                  `json:"digest"`
	Request  types.EvaluationRequest `json:"request"`
	Decision types.Decision          `json:"decision"`
}

// Day is the UTC day the entry belongs to.
func (e Entry) Day() string {
	return e.LoggedAt.UTC().Format(DayLayout)
}

// BuildEntry assigns an id and computes the digest over the canonical form of
// the request and decision.
func BuildEntry(req types.EvaluationRequest, decision types.Decision, loggedAt time.Time) (Entry, error) {
	entry := Entry{
		ID:       uuid.NewString(),
		LoggedAt: loggedAt.UTC(),
		Request:  req,
		Decision: decision,
	}

	digest, err := Digest(req, decision)
	if err != nil {
		return Entry{}, err
	}
	entry.Digest = digest
	return entry, nil
}

// Digest returns the sha256-prefixed digest of the request/decision pair.
func Digest(req types.EvaluationRequest, decision types.Decision) (string, error) {
	signingView := map[string]any{
		"request": map[string]any{
			"artifact_type": req.ArtifactType,
			"environment":   req.Environment,
			"actions":       req.Actions,
			"agent_id":      req.AgentID,
			"timestamp":     req.Timestamp,
			"metadata":      req.Metadata,
		},
		"decision": map[string]any{
			"decision":           string(decision.Decision),
			"risk_level":         decision.RiskLevel,
			"approvals_required": decision.ApprovalsRequired,
			"constraints":        decision.Constraints.View(),
			"policy_version":     decision.PolicyVersion,
			"reason":             decision.Reason,
			"timestamp":          decision.Timestamp,
		},
	}

	canonical, err := crypto.Canonicalize(signingView)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}
