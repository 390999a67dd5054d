package model

import (
	"sort"
	"strings"
)

// Integrity classifies whether a value's content could have been
// influenced by untrusted external content.
type Integrity string

const (
	IntegrityLow  Integrity = "low"
	IntegrityHigh Integrity = "high"
)

// integrityRank maps integrity to a comparable integer so derivation can
// take the minimum. Lower rank = more restrictive.
var integrityRank = map[Integrity]int{
	IntegrityLow:  0,
	IntegrityHigh: 1,
}

// MinIntegrity returns the more restrictive of two integrity levels.
func MinIntegrity(a, b Integrity) Integrity {
	if integrityRank[a] < integrityRank[b] {
		return a
	}
	return b
}

// Origin identifies one contributing source of a value: the user, the
// interpreter itself, or a named external capability.
type Origin string

const (
	OriginUser    Origin = "user"
	OriginDerived Origin = "derived"
)

const capabilityPrefix = "capability:"

// CapabilityOrigin returns the origin tag for a named capability.
func CapabilityOrigin(name string) Origin {
	return Origin(capabilityPrefix + name)
}

// IsCapability reports whether the origin names an external capability.
func (o Origin) IsCapability() bool {
	return strings.HasPrefix(string(o), capabilityPrefix)
}

// CapabilityName returns the capability name for a capability origin,
// or "" for user/derived origins.
func (o Origin) CapabilityName() string {
	if !o.IsCapability() {
		return ""
	}
	return strings.TrimPrefix(string(o), capabilityPrefix)
}

// ConfPublic is the default confidentiality scope for planner literals.
const ConfPublic = "public"

// Label is the provenance metadata carried by every interpreted value.
// Labels are immutable: every derivation step produces a new Label and
// never mutates an input. Origins and Confidentiality are kept sorted and
// deduplicated so snapshots serialize deterministically.
type Label struct {
	Origins         []Origin  `json:"origins"`
	Integrity       Integrity `json:"integrity"`
	Confidentiality []string  `json:"confidentiality"`
}

// LiteralLabel is the label for a literal authored by the trusted planner:
// no external taint, high integrity, public scope.
func LiteralLabel() Label {
	return Label{
		Origins:         []Origin{},
		Integrity:       IntegrityHigh,
		Confidentiality: []string{ConfPublic},
	}
}

// UserLabel is the label for a value supplied directly by the user.
func UserLabel() Label {
	return Label{
		Origins:         []Origin{OriginUser},
		Integrity:       IntegrityHigh,
		Confidentiality: []string{ConfPublic},
	}
}

// Has reports whether the label carries the given origin.
func (l Label) Has(o Origin) bool {
	for _, have := range l.Origins {
		if have == o {
			return true
		}
	}
	return false
}

// HasCapability reports whether any origin names the given capability.
func (l Label) HasCapability(name string) bool {
	return l.Has(CapabilityOrigin(name))
}

// Clone returns a deep copy. Labels are value types but hold slices;
// callers that stamp labels onto many values must not share backing arrays.
func (l Label) Clone() Label {
	out := Label{
		Origins:         make([]Origin, len(l.Origins)),
		Integrity:       l.Integrity,
		Confidentiality: make([]string, len(l.Confidentiality)),
	}
	copy(out.Origins, l.Origins)
	copy(out.Confidentiality, l.Confidentiality)
	return out
}

// Derived computes the label of an interpreter-level computation over the
// given inputs: union of origins plus the derived tag, minimum integrity,
// union of confidentiality scopes. With no inputs it degenerates to a
// literal-equivalent label carrying only the derived tag.
func Derived(inputs ...Label) Label {
	out := unionOf(inputs)
	out.Origins = addOrigin(out.Origins, OriginDerived)
	return out
}

// FromCapability computes the label of a capability call result: union of
// the argument labels' origins plus the capability's own tag. Integrity is
// low unless the capability is registered as a trusted source, and in the
// trusted case still never exceeds the minimum argument integrity.
func FromCapability(name string, trusted bool, args ...Label) Label {
	out := unionOf(args)
	out.Origins = addOrigin(out.Origins, CapabilityOrigin(name))
	if !trusted {
		out.Integrity = IntegrityLow
	}
	return out
}

// unionOf merges origins and confidentiality across inputs and takes the
// minimum integrity. No inputs yields an empty-origin, high-integrity,
// public label.
func unionOf(inputs []Label) Label {
	if len(inputs) == 0 {
		return LiteralLabel()
	}
	origins := map[Origin]bool{}
	conf := map[string]bool{}
	integrity := IntegrityHigh
	for _, in := range inputs {
		for _, o := range in.Origins {
			origins[o] = true
		}
		for _, c := range in.Confidentiality {
			conf[c] = true
		}
		integrity = MinIntegrity(integrity, in.Integrity)
	}
	out := Label{
		Origins:         make([]Origin, 0, len(origins)),
		Integrity:       integrity,
		Confidentiality: make([]string, 0, len(conf)),
	}
	for o := range origins {
		out.Origins = append(out.Origins, o)
	}
	for c := range conf {
		out.Confidentiality = append(out.Confidentiality, c)
	}
	sort.Slice(out.Origins, func(i, j int) bool { return out.Origins[i] < out.Origins[j] })
	sort.Strings(out.Confidentiality)
	return out
}

// addOrigin inserts an origin preserving sorted order and uniqueness.
func addOrigin(origins []Origin, o Origin) []Origin {
	for _, have := range origins {
		if have == o {
			return origins
		}
	}
	origins = append(origins, o)
	sort.Slice(origins, func(i, j int) bool { return origins[i] < origins[j] })
	return origins
}
