package registry

import (
	"slices"
	"strings"
)

// ProvenancePolicy infers a candidate priority from where a package was
// found. The constants are a tunable policy, not a contract.
type ProvenancePolicy struct {
	// VendorBonus is added when the package looks vendored or third-party.
	VendorBonus int `json:"vendor_bonus" yaml:"vendor_bonus" toml:"vendor_bonus"`

	// AdapterBonus is added when the package lives in an adapter directory.
	AdapterBonus int `json:"adapter_bonus" yaml:"adapter_bonus" toml:"adapter_bonus"`

	// DepthThreshold is the number of path segments allowed before the
	// depth penalty applies.
	DepthThreshold int `json:"depth_threshold" yaml:"depth_threshold" toml:"depth_threshold"`

	// DepthPenalty is subtracted per segment beyond DepthThreshold.
	DepthPenalty int `json:"depth_penalty" yaml:"depth_penalty" toml:"depth_penalty"`

	VendorHints  []string `json:"vendor_hints" yaml:"vendor_hints" toml:"vendor_hints"`
	AdapterHints []string `json:"adapter_hints" yaml:"adapter_hints" toml:"adapter_hints"`
}

// DefaultProvenancePolicy returns the default inference constants.
func DefaultProvenancePolicy() ProvenancePolicy {
	return ProvenancePolicy{
		VendorBonus:    50,
		AdapterBonus:   20,
		DepthThreshold: 4,
		DepthPenalty:   2,
		VendorHints:    []string{"vendor", "vendored", "third_party", "thirdparty", "external"},
		AdapterHints:   []string{"adapter", "adapters"},
	}
}

// InferPriority derives a priority for candidates found in packageName at
// path. It is pure and deterministic, and never returns a negative value.
func (p ProvenancePolicy) InferPriority(packageName, path string) int {
	segments := splitPath(path)
	names := append(slices.Clone(segments), splitPath(packageName)...)

	priority := 0
	if containsHint(names, p.VendorHints) {
		priority += p.VendorBonus
	}
	if containsHint(names, p.AdapterHints) {
		priority += p.AdapterBonus
	}
	if p.DepthThreshold >= 0 && len(segments) > p.DepthThreshold {
		priority -= p.DepthPenalty * (len(segments) - p.DepthThreshold)
	}
	return max(priority, 0)
}

func splitPath(path string) []string {
	return strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return r == '/' || r == '\\' || r == '.' || r == ':'
	})
}

func containsHint(segments, hints []string) bool {
	for _, segment := range segments {
		for _, hint := range hints {
			if segment == strings.ToLower(hint) {
				return true
			}
		}
	}
	return false
}
