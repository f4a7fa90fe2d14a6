package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/target"
)

func newScheme(t *testing.T) *runtime.Scheme {
	scheme := runtime.NewScheme()
	require.NoError(t, appsv1.AddToScheme(scheme))
	require.NoError(t, corev1.AddToScheme(scheme))
	return scheme
}

func TestWatchTriggersOnCrashLoopBackOff(t *testing.T) {
	scheme := newScheme(t)

	existingLedger, err := history.Ledger{
		{Slot: "web", ImageOrVersion: "nginx:1.24.0", Timestamp: time.Now().Add(-time.Hour)},
		{Slot: "web", ImageOrVersion: "nginx:1.25.0", Timestamp: time.Now().Add(-time.Minute)},
	}.Encode()
	require.NoError(t, err)

	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "app",
			Namespace: "ns",
			Annotations: map[string]string{
				annotations.KeyUpdateHistory: existingLedger,
			},
		},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "app"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "app"}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "web", Image: "nginx:1.25.0"}},
				},
			},
		},
	}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "app-abc", Namespace: "ns", Labels: map[string]string{"app": "app"}},
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{{
				Name: "web",
				State: corev1.ContainerState{
					Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"},
				},
			}},
		},
	}

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(dep, pod).Build()
	orch := orchestrator.New(c)
	monitor := health.New(c, orch)
	tgt := target.NewContainerTarget(target.Ref{Kind: target.KindStateless, Namespace: "ns", Name: "app"}, orch, nil)

	result := monitor.Watch(context.Background(), tgt, tgt.Ref(), "web", 30*time.Second, 3)

	assert.Equal(t, health.OutcomeRolledBack, result.Outcome)
	assert.Equal(t, "CrashLoopBackOff", result.Reason)

	updated := &appsv1.Deployment{}
	require.NoError(t, c.Get(context.Background(), client.ObjectKeyFromObject(dep), updated))
	assert.Equal(t, "nginx:1.24.0", updated.Spec.Template.Spec.Containers[0].Image)
}

func TestWatchReturnsHealthyWhenWindowElapsesClean(t *testing.T) {
	scheme := newScheme(t)

	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "ns"},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "app"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "app"}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "web", Image: "nginx:1.25.0"}},
				},
			},
		},
	}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "app-abc", Namespace: "ns", Labels: map[string]string{"app": "app"}},
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{{Name: "web", Ready: true}},
		},
	}

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(dep, pod).Build()
	orch := orchestrator.New(c)
	monitor := health.New(c, orch)
	tgt := target.NewContainerTarget(target.Ref{Kind: target.KindStateless, Namespace: "ns", Name: "app"}, orch, nil)

	result := monitor.Watch(context.Background(), tgt, tgt.Ref(), "web", 20*time.Millisecond, 3)

	assert.Equal(t, health.OutcomeHealthy, result.Outcome)
}
