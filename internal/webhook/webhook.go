// Package webhook implements the webhook intake server (spec.md §6, port
// 8080): it decodes incoming `{name, tag, digest, repository}` registry
// events and hands them to the Event-Source Dispatcher's WebhookSource.
// Routing and handler shape are grounded on the teacher's gitjob webhook
// server (gitjob/pkg/webhook/webhook.go's HandleHooks/ServeHTTP), trimmed
// from its many git-provider parsers down to Headwind's single JSON body
// shape.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/notify"
	"github.com/headwind-sh/headwind/internal/orchestrator"
	"github.com/headwind-sh/headwind/internal/target"
)

// Server is the webhook intake server of spec.md §6.
type Server struct {
	Orch   *orchestrator.Client
	Source *dispatch.WebhookSource
	Secret []byte
	Log    logr.Logger
}

func New(orch *orchestrator.Client, source *dispatch.WebhookSource, secret []byte, log logr.Logger) *Server {
	return &Server{Orch: orch, Source: source, Secret: secret, Log: log}
}

// Handler builds the mux.Router the intake server listens with.
func (s *Server) Handler() http.Handler {
	root := mux.NewRouter()
	root.HandleFunc("/webhook/image", s.handleImageEvent).Methods(http.MethodPost)
	root.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return root
}

type imageEventBody struct {
	Name       string `json:"name"`
	Tag        string `json:"tag"`
	Digest     string `json:"digest"`
	Repository string `json:"repository"`
}

func (s *Server) handleImageEvent(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		logAndReturn(s.Log, rw, http.StatusBadRequest, err)
		return
	}
	defer r.Body.Close()

	if len(s.Secret) > 0 {
		sig := r.Header.Get("X-Headwind-Signature")
		if sig == "" || !notify.Verify(s.Secret, body, sig) {
			logAndReturn(s.Log, rw, http.StatusUnauthorized, errInvalidSignature)
			return
		}
	}

	var evt imageEventBody
	if err := json.Unmarshal(body, &evt); err != nil {
		logAndReturn(s.Log, rw, http.StatusBadRequest, err)
		return
	}
	if evt.Repository == "" {
		evt.Repository = evt.Name
	}

	ctx := r.Context()
	refs, err := target.ListAllManaged(ctx, s.Orch)
	if err != nil {
		logAndReturn(s.Log, rw, http.StatusInternalServerError, err)
		return
	}

	s.Source.Handle(ctx, dispatch.ImageEvent{
		Name:       evt.Name,
		Tag:        evt.Tag,
		Digest:     evt.Digest,
		Repository: evt.Repository,
	}, refs)

	rw.WriteHeader(http.StatusAccepted)
	rw.Write([]byte("accepted"))
}

func (s *Server) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("ok"))
}

var errInvalidSignature = errString("invalid webhook signature")

type errString string

func (e errString) Error() string { return string(e) }

func logAndReturn(log logr.Logger, rw http.ResponseWriter, status int, err error) {
	log.Error(err, "webhook intake request failed", "status", status)
	rw.WriteHeader(status)
	rw.Write([]byte(err.Error()))
}

// Run starts the intake server and blocks until ctx is canceled.
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
