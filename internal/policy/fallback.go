package policy

import "github.com/davidahmann/strix/pkg/types"

// DefaultTable returns the built-in table used when no policy source can be
// read. Each call returns a fresh copy.
func DefaultTable() Table {
	return Table{
		"webapp": {
			"production": {
				RiskLevel:         "high",
				ApprovalsRequired: 2,
				Constraints: types.Constraints{
					"no_self_approval": types.Bool(true),
					"log_all_actions":  types.Bool(true),
				},
			},
			"staging": {
				RiskLevel:         "medium",
				ApprovalsRequired: 1,
				Constraints: types.Constraints{
					"no_self_approval": types.Bool(false),
					"log_all_actions":  types.Bool(true),
				},
			},
		},
		"page": {
			"production": {
				RiskLevel:         "medium",
				ApprovalsRequired: 1,
				Constraints: types.Constraints{
					"no_self_approval": types.Bool(false),
					"log_all_actions":  types.Bool(true),
				},
			},
			"development": {
				RiskLevel:         "low",
				ApprovalsRequired: 0,
				Constraints: types.Constraints{
					"no_self_approval": types.Bool(false),
					"log_all_actions":  types.Bool(false),
				},
			},
		},
		"automation": {
			"production": {
				RiskLevel:         "high",
				ApprovalsRequired: 1,
				Constraints: types.Constraints{
					"no_self_approval":   types.Bool(true),
					"log_all_actions":    types.Bool(true),
					"isolation_required": types.Bool(true),
				},
			},
		},
	}
}
