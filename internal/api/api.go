// Package api implements the approval/rollback API (spec.md §6, port
// 8081): the human-facing surface over the Update Pipeline's Approve/
// Reject transitions and the Health Monitor's manual rollback path.
// Routing shape is grounded on the teacher's gitjob webhook server
// (gorilla/mux routes registered on a single root router), generalized
// from one handler to the route table spec.md §6 names.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/headwind-sh/headwind/internal/annotations"
	"github.com/headwind-sh/headwind/internal/health"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/pipeline"
	"github.com/headwind-sh/headwind/internal/target"
	v1alpha1 "github.com/headwind-sh/headwind/pkg/apis/headwind.sh/v1alpha1"
)

// Server is the approval/rollback API server of spec.md §6.
type Server struct {
	Client   client.Client
	Orch     *orchestrator.Client
	Factory  *target.Factory
	Pipeline *pipeline.Pipeline
	Health   *health.Monitor
	Log      logr.Logger
}

func New(c client.Client, orch *orchestrator.Client, factory *target.Factory, pl *pipeline.Pipeline, h *health.Monitor, log logr.Logger) *Server {
	return &Server{Client: c, Orch: orch, Factory: factory, Pipeline: pl, Health: h, Log: log}
}

// Handler builds the mux.Router the approval/rollback API listens with.
func (s *Server) Handler() http.Handler {
	root := mux.NewRouter()
	root.HandleFunc("/api/v1/updates", s.listUpdates).Methods(http.MethodGet)
	root.HandleFunc("/api/v1/updates/{ns}/{name}", s.getUpdate).Methods(http.MethodGet)
	root.HandleFunc("/api/v1/updates/{ns}/{name}/approve", s.approve).Methods(http.MethodPost)
	root.HandleFunc("/api/v1/updates/{ns}/{name}/reject", s.reject).Methods(http.MethodPost)
	root.HandleFunc("/api/v1/rollback/{ns}/{wl}/history", s.rollbackHistory).Methods(http.MethodGet)
	root.HandleFunc("/api/v1/rollback/{ns}/{wl}/{container}", s.rollback).Methods(http.MethodPost)
	root.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return root
}

func (s *Server) listUpdates(rw http.ResponseWriter, r *http.Request) {
	var list v1alpha1.UpdateRequestList
	if err := s.Client.List(r.Context(), &list); err != nil {
		writeError(s.Log, rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, list.Items)
}

func (s *Server) getUpdate(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	urq := &v1alpha1.UpdateRequest{}
	err := s.Client.Get(r.Context(), client.ObjectKey{Namespace: vars["ns"], Name: vars["name"]}, urq)
	if apierrors.IsNotFound(err) {
		writeError(s.Log, rw, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(s.Log, rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, urq)
}

type approveBody struct {
	Approver string `json:"approver"`
}

func (s *Server) approve(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body approveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approver == "" {
		writeError(s.Log, rw, http.StatusBadRequest, errMissingApprover)
		return
	}

	urq, err := s.Pipeline.Approve(r.Context(), vars["ns"], vars["name"], body.Approver)
	if apierrors.IsNotFound(err) {
		writeError(s.Log, rw, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(s.Log, rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, urq)
}

type rejectBody struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}

func (s *Server) reject(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body rejectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approver == "" {
		writeError(s.Log, rw, http.StatusBadRequest, errMissingApprover)
		return
	}

	urq, err := s.Pipeline.Reject(r.Context(), vars["ns"], vars["name"], body.Approver, body.Reason)
	if apierrors.IsNotFound(err) {
		writeError(s.Log, rw, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(s.Log, rw, http.StatusConflict, err)
		return
	}
	writeJSON(rw, http.StatusOK, urq)
}

func (s *Server) rollbackHistory(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx := r.Context()

	kind, err := target.ResolveKind(ctx, s.Orch, vars["ns"], vars["wl"])
	if err != nil {
		writeError(s.Log, rw, http.StatusNotFound, err)
		return
	}

	tgt, err := s.Factory.For(ctx, target.Ref{Kind: kind, Namespace: vars["ns"], Name: vars["wl"]})
	if err != nil {
		writeError(s.Log, rw, http.StatusInternalServerError, err)
		return
	}
	anns, err := tgt.Annotations(ctx)
	if err != nil {
		writeError(s.Log, rw, http.StatusInternalServerError, err)
		return
	}
	ledger, err := history.Decode(anns[annotations.KeyUpdateHistory])
	if err != nil {
		writeError(s.Log, rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, ledger)
}

func (s *Server) rollback(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx := r.Context()

	kind, err := target.ResolveKind(ctx, s.Orch, vars["ns"], vars["wl"])
	if err != nil {
		writeError(s.Log, rw, http.StatusNotFound, err)
		return
	}
	ref := target.Ref{Kind: kind, Namespace: vars["ns"], Name: vars["wl"]}

	tgt, err := s.Factory.For(ctx, ref)
	if err != nil {
		writeError(s.Log, rw, http.StatusInternalServerError, err)
		return
	}

	slot := vars["container"]
	result := s.Health.Rollback(ctx, tgt, ref, slot)
	if result.Outcome == health.OutcomeRollbackFailed {
		writeError(s.Log, rw, http.StatusInternalServerError, result.Err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"outcome": "rolled_back"})
}

func (s *Server) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("ok"))
}

var errMissingApprover = errString("approver is required")

type errString string

func (e errString) Error() string { return string(e) }

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(log logr.Logger, rw http.ResponseWriter, status int, err error) {
	log.Error(err, "api request failed", "status", status)
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}

// Run starts the approval/rollback API server and blocks until ctx is
// canceled.
func Run(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
