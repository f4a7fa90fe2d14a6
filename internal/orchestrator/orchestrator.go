// Package orchestrator is the external collaborator Headwind's core
// depends on to read and write workload specs and UpdateRequest custom
// resources (spec.md §1, "out of scope... specified only by the
// interfaces the core consumes"). It is implemented against
// sigs.k8s.io/controller-runtime's client.Client, operating on
// unstructured objects so the same code path serves all four workload
// kinds of spec.md §3 without per-kind generated clients. It takes a
// GroupVersionKind explicitly rather than importing internal/target, so
// that target (which embeds a *Client) and orchestrator do not import each
// other.
package orchestrator

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Client wraps a controller-runtime client.Client with the read/write
// operations the update pipeline needs: workload annotations, tracked
// slots, and the compare-and-set apply of spec.md §4.3.
type Client struct {
	client.Client
}

func New(c client.Client) *Client {
	return &Client{Client: c}
}

// Get fetches the unstructured workload object identified by gvk/namespace/name.
func (c *Client) Get(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) (*unstructured.Unstructured, error) {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(gvk)
	err := c.Client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, u)
	return u, err
}

// List returns every object of gvk in the cluster.
func (c *Client) List(ctx context.Context, gvk schema.GroupVersionKind) (*unstructured.UnstructuredList, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(gvk)
	if err := c.Client.List(ctx, list); err != nil {
		return nil, fmt.Errorf("listing %s: %w", gvk.Kind, err)
	}
	return list, nil
}

// Annotations returns obj's annotation map (never nil).
func Annotations(obj *unstructured.Unstructured) map[string]string {
	anns := obj.GetAnnotations()
	if anns == nil {
		anns = map[string]string{}
	}
	return anns
}

// ContainerImage reads containers[name].image from a pod-template-bearing
// workload's spec.template.spec.containers.
func ContainerImage(obj *unstructured.Unstructured, name string) (string, bool, error) {
	containers, found, err := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
	if err != nil || !found {
		return "", false, err
	}
	for _, c := range containers {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if m["name"] == name {
			image, _ := m["image"].(string)
			return image, true, nil
		}
	}
	return "", false, nil
}

// ContainerNames lists every container name in the pod template.
func ContainerNames(obj *unstructured.Unstructured) ([]string, error) {
	containers, found, err := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
	if err != nil || !found {
		return nil, err
	}
	var names []string
	for _, c := range containers {
		if m, ok := c.(map[string]interface{}); ok {
			if n, ok := m["name"].(string); ok {
				names = append(names, n)
			}
		}
	}
	return names, nil
}

// ChartVersion reads spec.version from a HelmRelease-shaped object.
func ChartVersion(obj *unstructured.Unstructured) (string, bool, error) {
	return unstructured.NestedString(obj.Object, "spec", "version")
}

// PodSelector reads spec.selector.matchLabels off a workload-controller
// object, for listing its owned pods during health observation (spec.md
// §4.5).
func PodSelector(obj *unstructured.Unstructured) (map[string]string, error) {
	m, found, err := unstructured.NestedStringMap(obj.Object, "spec", "selector", "matchLabels")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("workload %s/%s has no spec.selector.matchLabels", obj.GetNamespace(), obj.GetName())
	}
	return m, nil
}

// ProgressDeadlineExceeded reports whether obj's status.conditions carries
// a Progressing condition with reason ProgressDeadlineExceeded (spec.md
// §4.5's rollback trigger "workload's progress condition reports
// ProgressDeadlineExceeded").
func ProgressDeadlineExceeded(obj *unstructured.Unstructured) bool {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil || !found {
		return false
	}
	for _, raw := range conditions {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if m["type"] == "Progressing" && m["reason"] == "ProgressDeadlineExceeded" {
			return true
		}
	}
	return false
}

// ChartSource reads the linked chart repository URL and chart name off a
// HelmRelease-shaped object's spec.repo/spec.chart fields (spec.md §4.4:
// "derived from the linked chart repository resource"). Candidate
// discovery and registry selection beyond these two fields is left to the
// chart-repository client (spec.md §9 Open Question (b)).
func ChartSource(obj *unstructured.Unstructured) (repoURL, chart string, err error) {
	repoURL, _, err = unstructured.NestedString(obj.Object, "spec", "repo")
	if err != nil {
		return "", "", err
	}
	chart, _, err = unstructured.NestedString(obj.Object, "spec", "chart")
	if err != nil {
		return "", "", err
	}
	return repoURL, chart, nil
}

// ApplyContainerImage performs the compare-and-set mutation of
// containers[name].image = newImage, retrying up to 3 times on conflict
// (spec.md §4.3). managedAnnotations are merged into the object's
// annotation map as part of the same update.
func (c *Client) ApplyContainerImage(ctx context.Context, gvk schema.GroupVersionKind, namespace, name, containerName, newImage string, managedAnnotations map[string]string) error {
	backoff := retry.DefaultRetry
	backoff.Steps = 4 // the initial attempt plus up to 3 retries
	return retry.OnError(backoff, apierrors.IsConflict, func() error {
		obj, err := c.Get(ctx, gvk, namespace, name)
		if err != nil {
			return err
		}

		containers, found, err := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("workload %s/%s has no pod template containers", namespace, name)
		}

		updated := false
		for _, raw := range containers {
			m, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if m["name"] == containerName {
				m["image"] = newImage
				updated = true
			}
		}
		if !updated {
			return fmt.Errorf("container %q not found on workload %s/%s", containerName, namespace, name)
		}

		if err := unstructured.SetNestedSlice(obj.Object, containers, "spec", "template", "spec", "containers"); err != nil {
			return err
		}

		mergeAnnotations(obj, managedAnnotations)

		return c.Client.Update(ctx, obj)
	})
}

// ApplyChartVersion performs the compare-and-set mutation of
// chart.spec.version = newVersion for HelmRelease targets.
func (c *Client) ApplyChartVersion(ctx context.Context, gvk schema.GroupVersionKind, namespace, name, newVersion string, managedAnnotations map[string]string) error {
	backoff := retry.DefaultRetry
	backoff.Steps = 4 // the initial attempt plus up to 3 retries
	return retry.OnError(backoff, apierrors.IsConflict, func() error {
		obj, err := c.Get(ctx, gvk, namespace, name)
		if err != nil {
			return err
		}

		if err := unstructured.SetNestedField(obj.Object, newVersion, "spec", "version"); err != nil {
			return err
		}

		mergeAnnotations(obj, managedAnnotations)

		return c.Client.Update(ctx, obj)
	})
}

func mergeAnnotations(obj *unstructured.Unstructured, add map[string]string) {
	anns := obj.GetAnnotations()
	if anns == nil {
		anns = map[string]string{}
	}
	for k, v := range add {
		anns[k] = v
	}
	obj.SetAnnotations(anns)
}

// IgnoreNotFound returns nil if err is a Kubernetes NotFound error, and err
// otherwise -- the same convention the teacher's reconcilers use
// throughout internal/cmd/controller/reconciler.
func IgnoreNotFound(err error) error {
	return client.IgnoreNotFound(err)
}

// IsNotFound reports whether err is a Kubernetes NotFound error.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}
