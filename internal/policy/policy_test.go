package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/headwind-sh/headwind/internal/policy"
)

func TestAdmitNone(t *testing.T) {
	v := policy.Admit(policy.Policy{Kind: policy.KindNone}, "1.0.0", "1.0.1")
	assert.False(t, v.Accepted)
}

func TestAdmitMinorBlocksMajor(t *testing.T) {
	p := policy.Policy{Kind: policy.KindMinor}
	got, ok := policy.Pick(p, "1.25.0", []string{"1.25.1", "1.26.0", "2.0.0"})
	assert.True(t, ok)
	assert.Equal(t, "1.26.0", got)
}

func TestAdmitMajorRejectsDowngrade(t *testing.T) {
	v := policy.Admit(policy.Policy{Kind: policy.KindMajor}, "1.25.0", "1.0.0")
	assert.False(t, v.Accepted)
}

func TestAdmitPatchIncomparable(t *testing.T) {
	v := policy.Admit(policy.Policy{Kind: policy.KindPatch}, "1.0.0", "latest")
	assert.False(t, v.Accepted)
	assert.Equal(t, policy.ReasonIncomparable, v.Reason)
}

func TestAdmitAllOpaque(t *testing.T) {
	v := policy.Admit(policy.Policy{Kind: policy.KindAll}, "latest", "edge")
	assert.True(t, v.Accepted)

	v = policy.Admit(policy.Policy{Kind: policy.KindAll}, "latest", "latest")
	assert.False(t, v.Accepted)
}

func TestAdmitGlob(t *testing.T) {
	p := policy.Policy{Kind: policy.KindGlob, Pattern: "v1.*-stable"}
	got, ok := policy.Pick(p, "v1.5-stable", []string{"v1.10-stable", "v2.0-stable", "v1.5-beta"})
	assert.True(t, ok)
	assert.Equal(t, "v1.10-stable", got)
}

func TestAdmitForceAllowsDowngrade(t *testing.T) {
	v := policy.Admit(policy.Policy{Kind: policy.KindForce}, "2.0.0", "1.0.0")
	assert.True(t, v.Accepted)
}

func TestPolicyOrdering(t *testing.T) {
	candidates := []string{"1.0.1", "1.1.0", "2.0.0", "1.0.0"}
	assert.True(t, policy.Subset(policy.KindNone, policy.KindPatch, "1.0.0", candidates))
	assert.True(t, policy.Subset(policy.KindPatch, policy.KindMinor, "1.0.0", candidates))
	assert.True(t, policy.Subset(policy.KindMinor, policy.KindMajor, "1.0.0", candidates))
	assert.True(t, policy.Subset(policy.KindMajor, policy.KindAll, "1.0.0", candidates))
}

func TestPolicyMonotonicity(t *testing.T) {
	// v0 < v1 < v2: if admit(policy, v0, v1) then admit(policy, v0, v2) for
	// every widening-monotone policy kind (all the semver kinds admit
	// "any strictly newer within scope", so a further-out version that
	// stays within scope remains admissible; major/all trivially hold).
	v0, v1, v2 := "1.0.0", "1.0.1", "1.0.2"
	for _, k := range []policy.Kind{policy.KindPatch, policy.KindMinor, policy.KindMajor, policy.KindAll} {
		p := policy.Policy{Kind: k}
		if policy.Admit(p, v0, v1).Accepted {
			assert.True(t, policy.Admit(p, v0, v2).Accepted, "kind=%s", k)
		}
	}
}

func TestPick_NoAdmissible(t *testing.T) {
	_, ok := policy.Pick(policy.Policy{Kind: policy.KindPatch}, "1.0.0", []string{"2.0.0"})
	assert.False(t, ok)
}
