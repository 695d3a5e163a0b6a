package policy

import (
	"fmt"

	"github.com/davidahmann/strix/internal/crypto"
)

// ComputeVersion hashes the exact canonical JSON form of t. Tables with equal
// contents share a version regardless of how they were built; keys, strings
// and number literals are compared byte for byte, as lookups and responses
// use them.
func ComputeVersion(t Table) (string, error) {
	version, err := crypto.ExactDigest(t.view())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPolicySource, err)
	}
	return version, nil
}
