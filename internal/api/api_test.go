package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/api"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/notify"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/pipeline"
	"github.com/headwind-sh/headwind/internal/policy"
	"github.com/headwind-sh/headwind/internal/target"
	v1alpha1 "github.com/headwind-sh/headwind/pkg/apis/headwind.sh/v1alpha1"
)

func newTestScheme(t *testing.T) *runtime.Scheme {
	scheme := runtime.NewScheme()
	require.NoError(t, appsv1.AddToScheme(scheme))
	require.NoError(t, corev1.AddToScheme(scheme))
	require.NoError(t, v1alpha1.AddToScheme(scheme))
	return scheme
}

func newServer(t *testing.T, objs ...client.Object) *api.Server {
	t.Helper()
	scheme := newTestScheme(t)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
	orch := orchestrator.New(c)
	factory := target.NewFactory(orch, nil, nil)
	monitor := health.New(c, orch)
	n := notify.New(logr.Discard(), 1)
	pl := pipeline.New(c, factory, monitor, n, logr.Discard())
	return api.New(c, orch, factory, pl, monitor, logr.Discard())
}

func pendingURQ() *v1alpha1.UpdateRequest {
	return &v1alpha1.UpdateRequest{
		ObjectMeta: metav1.ObjectMeta{Name: "app-web-1", Namespace: "ns"},
		Spec: v1alpha1.UpdateRequestSpec{
			TargetRef:     v1alpha1.TargetRef{Kind: "Stateless", Namespace: "ns", Name: "app"},
			ContainerName: "web",
			CurrentImage:  "nginx:1.25.0",
			NewImage:      "nginx:1.26.0",
			PolicyKind:    string(policy.KindMinor),
		},
		Status: v1alpha1.UpdateRequestStatus{Phase: v1alpha1.PhasePending},
	}
}

func deployment() *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "app",
			Namespace: "ns",
			Annotations: map[string]string{
				annotations.KeyPolicy:          string(policy.KindMinor),
				annotations.KeyRequireApproval: "true",
			},
		},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "app"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "app"}},
				Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "web", Image: "nginx:1.25.0"}}},
			},
		},
	}
}

func TestListAndGetUpdates(t *testing.T) {
	s := newServer(t, deployment(), pendingURQ())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/updates", nil)
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	var list []v1alpha1.UpdateRequest
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &list))
	require.Len(t, list, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/updates/ns/app-web-1", nil)
	rw = httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
}

func TestApproveTransitionsToCompleted(t *testing.T) {
	s := newServer(t, deployment(), pendingURQ())

	body, _ := json.Marshal(map[string]string{"approver": "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/updates/ns/app-web-1/approve", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/updates/ns/app-web-1", nil)
	rw = httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	var urq v1alpha1.UpdateRequest
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &urq))
	assert.Equal(t, v1alpha1.PhaseCompleted, urq.Status.Phase)
}

func TestRejectRequiresApprover(t *testing.T) {
	s := newServer(t, deployment(), pendingURQ())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/updates/ns/app-web-1/reject", bytes.NewReader([]byte(`{}`)))
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
}
