// Package annotations decodes Headwind's workload policy from the
// headwind.sh/* annotations (spec.md §6) and names the keys of the managed
// output annotations (last-update, update-history) the controller writes
// back; the update-history value itself is encoded by internal/history.
package annotations

import (
	"strconv"
	"strings"

	"github.com/headwind-sh/headwind/internal/policy"
)

const Prefix = "headwind.sh/"

const (
	KeyPolicy              = Prefix + "policy"
	KeyPattern             = Prefix + "pattern"
	KeyRequireApproval     = Prefix + "require-approval"
	KeyMinUpdateInterval   = Prefix + "min-update-interval"
	KeyImages              = Prefix + "images"
	KeyEventSource         = Prefix + "event-source"
	KeyPollingInterval     = Prefix + "polling-interval"
	KeyAutoRollback        = Prefix + "auto-rollback"
	KeyRollbackTimeout     = Prefix + "rollback-timeout"
	KeyHealthCheckRetries  = Prefix + "health-check-retries"
	KeySuspend             = Prefix + "suspend"

	// Managed outputs, written by the controller only.
	KeyLastUpdate    = Prefix + "last-update"
	KeyUpdateHistory = Prefix + "update-history"
)

// ParsePolicy decodes a Policy from a workload's annotation map, applying
// spec.md §3's defaults for every omitted scalar.
func ParsePolicy(anns map[string]string) policy.Policy {
	p := policy.Policy{
		Kind:               policy.Kind(anns[KeyPolicy]),
		Pattern:            anns[KeyPattern],
		MinUpdateIntervalS: policy.DefaultMinUpdateIntervalS,
		EventSource:        policy.DefaultEventSource,
		AutoRollback:       false,
		RollbackTimeoutS:   policy.DefaultRollbackTimeoutS,
		HealthCheckRetries: policy.DefaultHealthCheckRetries,
	}

	if v, ok := anns[KeyRequireApproval]; ok {
		p.RequireApproval = parseBool(v)
	}
	if v, ok := anns[KeyMinUpdateInterval]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			p.MinUpdateIntervalS = uint32(n)
		}
	}
	if v, ok := anns[KeyImages]; ok && v != "" {
		for _, img := range strings.Split(v, ",") {
			img = strings.TrimSpace(img)
			if img != "" {
				p.TrackedImages = append(p.TrackedImages, img)
			}
		}
	}
	if v, ok := anns[KeyEventSource]; ok && v != "" {
		p.EventSource = policy.EventSource(v)
	}
	if v, ok := anns[KeyPollingInterval]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			p.PollingIntervalS = uint32(n)
		}
	}
	if v, ok := anns[KeyAutoRollback]; ok {
		p.AutoRollback = parseBool(v)
	}
	if v, ok := anns[KeyRollbackTimeout]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			p.RollbackTimeoutS = uint32(n)
		}
	}
	if v, ok := anns[KeyHealthCheckRetries]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			p.HealthCheckRetries = uint32(n)
		}
	}

	return p
}

// Suspended reports whether the workload carries the headwind.sh/suspend
// kill switch (SPEC_FULL.md §7's supplemented "Suspend toggle").
func Suspended(anns map[string]string) bool {
	return parseBool(anns[KeySuspend])
}

// TracksImage reports whether name is tracked by the workload, per spec.md
// §4.4: "tracked images include name (or tracked_images is empty)".
func TracksImage(p policy.Policy, name string) bool {
	if len(p.TrackedImages) == 0 {
		return true
	}
	for _, img := range p.TrackedImages {
		if img == name {
			return true
		}
	}
	return false
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
