// Package policy implements the policy evaluator (C2): admissibility of a
// candidate version against a workload's configured update policy.
package policy

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/headwind-sh/headwind/internal/version"
)

// Kind enumerates the supported policy kinds (spec.md §3).
type Kind string

const (
	KindNone  Kind = "none"
	KindPatch Kind = "patch"
	KindMinor Kind = "minor"
	KindMajor Kind = "major"
	KindAll   Kind = "all"
	KindGlob  Kind = "glob"
	KindForce Kind = "force"
)

// Policy is the decoded form of a workload's headwind.sh/policy annotations
// (spec.md §3).
type Policy struct {
	Kind               Kind
	Pattern            string
	RequireApproval    bool
	MinUpdateIntervalS uint32
	EventSource        EventSource
	PollingIntervalS   uint32
	TrackedImages      []string
	AutoRollback       bool
	RollbackTimeoutS   uint32
	HealthCheckRetries uint32
}

// EventSource enumerates the discovery channels a workload accepts
// proposals from (spec.md §3, §4.4).
type EventSource string

const (
	SourceWebhook EventSource = "webhook"
	SourcePolling EventSource = "polling"
	SourceBoth    EventSource = "both"
	SourceNone    EventSource = "none"
)

// Defaults matching spec.md §3's scalar toggle defaults.
const (
	DefaultMinUpdateIntervalS = 300
	DefaultRollbackTimeoutS   = 300
	DefaultHealthCheckRetries = 3
	DefaultEventSource        = SourceWebhook
)

// Verdict is the result of Admit: either accepted, or rejected with a
// reason drawn from the spec.md §7 taxonomy.
type Verdict struct {
	Accepted bool
	Reason   string
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(reason string) Verdict { return Verdict{Accepted: false, Reason: reason} }

const (
	ReasonPolicyNone       = "policy_none"
	ReasonNotAdmissible    = "not_admissible"
	ReasonIncomparable     = "incomparable"
	ReasonPatternMismatch  = "pattern_mismatch"
	ReasonEqualOrDowngrade = "equal_or_downgrade"
)

// Admit implements the admission table of spec.md §4.2. current and
// candidate are the raw version/tag strings; Admit parses them internally
// so callers never need to import internal/version directly.
func Admit(p Policy, current, candidate string) Verdict {
	cur := version.Parse(current)
	cand := version.Parse(candidate)

	switch p.Kind {
	case KindNone, "":
		return reject(ReasonPolicyNone)

	case KindPatch:
		return admitSemverClass(cur, cand, version.ClassPatch)

	case KindMinor:
		return admitSemverClass(cur, cand, version.ClassPatch, version.ClassMinor)

	case KindMajor:
		return admitSemverClass(cur, cand, version.ClassPatch, version.ClassMinor, version.ClassMajor)

	case KindAll:
		return admitGreater(cur, cand)

	case KindGlob:
		g, err := glob.Compile(p.Pattern)
		if err != nil {
			return reject(fmt.Sprintf("bad_pattern: %v", err))
		}
		if !g.Match(candidate) {
			return reject(ReasonPatternMismatch)
		}
		return admitGreater(cur, cand)

	case KindForce:
		return accept()

	default:
		return reject(fmt.Sprintf("unknown_policy_kind: %s", p.Kind))
	}
}

// admitSemverClass accepts when both versions parse as semver and classify
// into one of classes. Per spec.md §4.2: "Unparseable candidates against a
// semver-requiring policy (patch/minor/major) are rejected with reason
// incomparable."
func admitSemverClass(cur, cand version.Version, classes ...version.Class) Verdict {
	if cur.IsOpaque() || cand.IsOpaque() {
		return reject(ReasonIncomparable)
	}
	class := version.Classify(cur, cand)
	for _, c := range classes {
		if class == c {
			return accept()
		}
	}
	return reject(ReasonNotAdmissible)
}

// admitGreater implements the `all`/`glob` base rule: "any candidate with
// cmp(candidate, current) = Greater, or (if either is Opaque) any candidate
// != current".
func admitGreater(cur, cand version.Version) Verdict {
	if cur.IsOpaque() || cand.IsOpaque() {
		if cur.Raw == cand.Raw {
			return reject(ReasonEqualOrDowngrade)
		}
		return accept()
	}
	if version.Cmp(cand, cur) == version.Greater {
		return accept()
	}
	return reject(ReasonEqualOrDowngrade)
}

// Pick runs Admit across every candidate and returns the greatest
// admissible one by version.Cmp, implementing spec.md §4.2's tie-break rule
// and §4.4's "run C2 across the full candidate set, pick the greatest
// admissible".
func Pick(p Policy, current string, candidates []string) (string, bool) {
	var admissible []version.Version
	for _, c := range candidates {
		if c == current {
			continue
		}
		if Admit(p, current, c).Accepted {
			admissible = append(admissible, version.Parse(c))
		}
	}
	best, ok := version.Greatest(admissible)
	if !ok {
		return "", false
	}
	return best.String(), true
}

// Subset reports whether every transition admitted by narrower is also
// admitted by wider, for a fixed current version — used to assert spec.md
// §8's "Policy ordering: none ⊂ patch ⊂ minor ⊂ major ⊂ all" in tests.
func Subset(narrower, wider Kind, current string, candidates []string) bool {
	pn := Policy{Kind: narrower}
	pw := Policy{Kind: wider}
	for _, c := range candidates {
		if Admit(pn, current, c).Accepted && !Admit(pw, current, c).Accepted {
			return false
		}
	}
	return true
}
