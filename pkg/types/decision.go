package types

type Verdict string

const (
	VerdictAllow           Verdict = "ALLOW"
	VerdictRequireApproval Verdict = "REQUIRE_APPROVAL"
	VerdictDeny            Verdict = "DENY"
)

// Decision is the engine's answer to one EvaluationRequest.
type Decision struct {
	Decision          Verdict     `json:"decision"`
	RiskLevel         string      `json:"risk_level"`
	ApprovalsRequired int         `json:"approvals_required"`
	Constraints       Constraints `json:"constraints"`
	PolicyVersion     string      `json:"policy_version"`
	Reason            string      `json:"reason"`
	Timestamp         string      `json:"timestamp"`
}

type EvaluationRequest struct {
	ArtifactType *string  `json:"artifact_type"`
	Environment  *string  `json:"environment"`
	Actions      []string `json:"actions"`

	// Carried through to the decision log untouched, whatever their JSON type.
	AgentID   any            `json:"agent_id,omitempty"`
	Timestamp any            `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewRequest builds a request for a known artifact type and environment.
func NewRequest(artifactType, environment string, actions ...string) EvaluationRequest {
	return EvaluationRequest{
		ArtifactType: &artifactType,
		Environment:  &environment,
		Actions:      actions,
	}
}
