package types

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestConstraintsJSONPassThrough(t *testing.T) {
	raw := `{"no_self_approval":true,"max_parallel":3,"ratio":0.5,"window":"business-hours"}`

	var c Constraints
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c["no_self_approval"].Kind() != KindBool || c["no_self_approval"].Interface() != true {
		t.Fatalf("unexpected bool value: %+v", c["no_self_approval"])
	}
	if c["max_parallel"].String() != "3" {
		t.Fatalf("unexpected number literal: %s", c["max_parallel"])
	}

	out, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"max_parallel":3,"no_self_approval":true,"ratio":0.5,"window":"business-hours"}` {
		t.Fatalf("unexpected json: %s", out)
	}
}

func TestConstraintsJSONRejectsNonScalar(t *testing.T) {
	for _, raw := range []string{`{"a":null}`, `{"a":[1]}`, `{"a":{"b":true}}`} {
		var c Constraints
		err := json.Unmarshal([]byte(raw), &c)
		if !errors.Is(err, ErrNonScalarConstraint) {
			t.Fatalf("%s: expected ErrNonScalarConstraint, got %v", raw, err)
		}
	}
}

func TestConstraintsYAML(t *testing.T) {
	raw := `
no_self_approval: true
max_parallel: 3
ratio: 0.5
window: business-hours
quoted: "true"
`
	var c Constraints
	if err := yaml.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c["no_self_approval"].Kind() != KindBool {
		t.Fatalf("expected bool kind")
	}
	if c["max_parallel"].Kind() != KindNumber || c["max_parallel"].String() != "3" {
		t.Fatalf("unexpected int value: %s", c["max_parallel"])
	}
	if c["ratio"].String() != "0.5" {
		t.Fatalf("unexpected float value: %s", c["ratio"])
	}
	if c["quoted"].Kind() != KindString {
		t.Fatalf("quoted scalar should stay a string")
	}

	if err := yaml.Unmarshal([]byte("a: [1, 2]\n"), &c); !errors.Is(err, ErrNonScalarConstraint) {
		t.Fatalf("expected ErrNonScalarConstraint, got %v", err)
	}

	var nulls Constraints
	if err := yaml.Unmarshal([]byte("a: ~\n"), &nulls); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if nulls["a"].Kind() != KindInvalid {
		t.Fatalf("expected null to decode as an invalid value")
	}
}

func TestConstraintsCloneNeverNil(t *testing.T) {
	var c Constraints
	clone := c.Clone()
	if clone == nil {
		t.Fatalf("expected non-nil clone")
	}
	out, _ := json.Marshal(clone)
	if string(out) != "{}" {
		t.Fatalf("expected empty object, got %s", out)
	}

	orig := Constraints{"a": Bool(true)}
	clone = orig.Clone()
	clone["a"] = Bool(false)
	if orig["a"].Interface() != true {
		t.Fatalf("clone aliases original")
	}
}

func TestRequestDecodeToleratesUnknownAndNull(t *testing.T) {
	raw := `{"artifact_type":null,"environment":"production","agent_id":"agent-001","extra":{"x":1}}`
	var req EvaluationRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.ArtifactType != nil {
		t.Fatalf("expected nil artifact type")
	}
	if req.Environment == nil || *req.Environment != "production" {
		t.Fatalf("unexpected environment: %v", req.Environment)
	}
	if req.AgentID != "agent-001" {
		t.Fatalf("unexpected agent id: %v", req.AgentID)
	}
}

func TestRequestPassThroughFieldsAcceptAnyJSON(t *testing.T) {
	raw := `{"artifact_type":"webapp","environment":"production","agent_id":42,"timestamp":{"unix":1700000000}}`
	var req EvaluationRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.AgentID != float64(42) {
		t.Fatalf("unexpected agent id: %#v", req.AgentID)
	}
	out, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["agent_id"] != float64(42) || back["timestamp"].(map[string]any)["unix"] != float64(1700000000) {
		t.Fatalf("pass-through fields changed: %s", out)
	}
}
