package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/headwind-sh/headwind/internal/version"
)

func TestParseRetainsRaw(t *testing.T) {
	v := version.Parse("v1.2.3")
	assert.False(t, v.IsOpaque())
	assert.Equal(t, "v1.2.3", v.String())

	opaque := version.Parse("latest")
	assert.True(t, opaque.IsOpaque())
	assert.Equal(t, "latest", opaque.String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name, current, candidate string
		want                     version.Class
	}{
		{"patch bump", "1.25.0", "1.25.1", version.ClassPatch},
		{"minor bump", "1.25.0", "1.26.0", version.ClassMinor},
		{"major bump", "1.25.0", "2.0.0", version.ClassMajor},
		{"equal", "1.25.0", "1.25.0", version.ClassEqual},
		{"downgrade", "1.25.1", "1.25.0", version.ClassDowngrade},
		{"v-prefixed patch", "v1.25.0", "v1.25.1", version.ClassPatch},
		{"prerelease promotion is patch", "1.2.3-rc.1", "1.2.3", version.ClassPatch},
		{"opaque vs opaque equal", "latest", "latest", version.ClassEqual},
		{"opaque vs opaque differ", "latest", "edge", version.ClassIncomparable},
		{"opaque vs semver", "latest", "1.0.0", version.ClassIncomparable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := version.Classify(version.Parse(tt.current), version.Parse(tt.candidate))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCmpTotalOrder(t *testing.T) {
	assert.Equal(t, version.Less, version.Cmp(version.Parse("1.0.0"), version.Parse("1.0.1")))
	assert.Equal(t, version.Greater, version.Cmp(version.Parse("2.0.0"), version.Parse("1.9.9")))
	assert.Equal(t, version.Equal, version.Cmp(version.Parse("1.0.0"), version.Parse("1.0.0")))
	// prerelease sorts below the same normal version
	assert.Equal(t, version.Less, version.Cmp(version.Parse("1.0.0-alpha"), version.Parse("1.0.0")))
}

func TestGreatest(t *testing.T) {
	vs := []version.Version{version.Parse("1.2.0"), version.Parse("1.10.0"), version.Parse("1.3.0")}
	best, ok := version.Greatest(vs)
	assert.True(t, ok)
	assert.Equal(t, "1.10.0", best.String())

	_, ok = version.Greatest(nil)
	assert.False(t, ok)
}

func TestMonotonicitySpotCheck(t *testing.T) {
	// Checks the ordering premise of the monotonicity property: v0 < v1 < v2
	// (admissibility itself is exercised against the policy evaluator in
	// internal/policy).
	v0, v1, v2 := version.Parse("1.0.0"), version.Parse("1.0.1"), version.Parse("1.1.0")
	assert.Equal(t, version.Less, version.Cmp(v0, v1))
	assert.Equal(t, version.Less, version.Cmp(v1, v2))
	assert.Equal(t, version.Less, version.Cmp(v0, v2))
}
