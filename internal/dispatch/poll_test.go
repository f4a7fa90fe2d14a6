package dispatch_test

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
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/target"
)

func TestPollJobFiltersWebhookOnlyWorkloads(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, appsv1.AddToScheme(scheme))

	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "app",
			Namespace: "ns",
			Annotations: map[string]string{
				annotations.KeyPolicy:      string(policy.KindMinor),
				annotations.KeyEventSource: string(policy.SourceWebhook),
			},
		},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "web", Image: "nginx:1.25.0"}},
				},
			},
		},
	}

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(dep).Build()
	orch := orchestrator.New(c)
	factory := target.NewFactory(orch, nil, nil)

	handler := newRecordingHandler(1)
	d := dispatch.New(handler)
	job := dispatch.NewPollJob(factory, d)

	require.NoError(t, job.Execute(context.Background()))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, handler.count())
}
