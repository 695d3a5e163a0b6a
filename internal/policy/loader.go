package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidahmann/strix/pkg/types"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks YAML for .yaml/.yml files and JSON otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

type LoadedTable struct {
	Table   Table
	Version string
	Bytes   []byte
}

// LoadTable reads and parses the policy file at path and computes its
// version. Read failures are returned as-is; parse and validation failures
// wrap ErrMalformedPolicySource.
func LoadTable(path string) (LoadedTable, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedTable{}, err
	}

	table, err := ParseTable(data, FormatFromPath(path))
	if err != nil {
		return LoadedTable{}, fmt.Errorf("%s: %w", path, err)
	}

	version, err := ComputeVersion(table)
	if err != nil {
		return LoadedTable{}, fmt.Errorf("%s: %w", path, err)
	}

	return LoadedTable{Table: table, Version: version, Bytes: data}, nil
}

type ruleDocument struct {
	RiskLevel         *string           `json:"risk_level" yaml:"risk_level"`
	ApprovalsRequired *int              `json:"approvals_required" yaml:"approvals_required"`
	Constraints       types.Constraints `json:"constraints" yaml:"constraints"`
}

type tableDocument map[string]map[string]ruleDocument

// ParseTable decodes and validates a serialized policy table.
func ParseTable(data []byte, format Format) (Table, error) {
	var doc tableDocument
	var err error
	switch format {
	case FormatYAML:
		err = decodeYAML(data, &doc)
	default:
		err = decodeJSON(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPolicySource, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: policy table must be an object", ErrMalformedPolicySource)
	}
	return doc.table()
}

func decodeJSON(data []byte, doc *tableDocument) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(doc); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after policy table")
	}
	return nil
}

func decodeYAML(data []byte, doc *tableDocument) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty policy source")
		}
		return err
	}
	return nil
}

func (d tableDocument) table() (Table, error) {
	out := make(Table, len(d))
	for artifact, envs := range d {
		inner := make(map[string]Rule, len(envs))
		for env, rd := range envs {
			rule, err := rd.rule()
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrMalformedPolicySource, artifact, env, err)
			}
			inner[env] = rule
		}
		out[artifact] = inner
	}
	return out, nil
}

func (rd ruleDocument) rule() (Rule, error) {
	if rd.RiskLevel == nil || *rd.RiskLevel == "" {
		return Rule{}, errors.New("risk_level is required")
	}
	if rd.ApprovalsRequired == nil {
		return Rule{}, errors.New("approvals_required is required")
	}
	if *rd.ApprovalsRequired < 0 {
		return Rule{}, fmt.Errorf("approvals_required must be non-negative, got %d", *rd.ApprovalsRequired)
	}
	if err := rd.Constraints.Validate(); err != nil {
		return Rule{}, err
	}
	return Rule{
		RiskLevel:         *rd.RiskLevel,
		ApprovalsRequired: *rd.ApprovalsRequired,
		Constraints:       rd.Constraints.Clone(),
	}, nil
}
