// Package server serves a backend.Backend over the rulesync daemon's unix
// socket: request/response calls as JSON over HTTP, event streams as
// websocket topics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/backend/api"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/version"
)

// writeTimeout bounds a single websocket write to a slow client.
const writeTimeout = 10 * time.Second

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger   *logrus.Entry
	server   *http.Server
	backend  backend.Backend
	upgrader websocket.Upgrader
}

// New creates a new Server for b.
func New(b backend.Backend, logger *logrus.Entry) *Server {
	return &Server{
		logger:  logger,
		backend: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Only local processes can reach the socket
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return s.Serve(listener)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := s.server.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the daemon's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		reply(w, version.GetInfo(), nil)
	})

	// Reads
	mux.HandleFunc("GET "+api.PathTree, s.handleTree)
	mux.HandleFunc("GET "+api.PathGitStatus, s.handleGitStatus)
	mux.HandleFunc("GET "+api.PathBranches, s.handleBranches)
	mux.HandleFunc("GET "+api.PathResources, s.handleListResources)
	mux.HandleFunc("GET "+api.PathResources+"/{kind}/{name}", s.handleGetResource)
	mux.HandleFunc("GET "+api.PathFiles, s.handleReadFile)

	// Mutations
	mux.HandleFunc("POST "+api.PathResources, s.handleCreateResource)
	mux.HandleFunc("PUT "+api.PathResources+"/{kind}/{name}", s.handleUpdateResource)
	mux.HandleFunc("DELETE "+api.PathResources+"/{kind}/{name}", s.handleDeleteResource)
	mux.HandleFunc("POST "+api.PathFileMove, s.handleMoveFile)
	mux.HandleFunc("POST "+api.PathFileMkdir, s.handleCreateDirectory)
	mux.HandleFunc("POST "+api.PathFileDelete, s.handleDeleteFile)
	mux.HandleFunc("POST "+api.PathGitCommit, s.handleCommit)
	mux.HandleFunc("POST "+api.PathGitPull, s.handlePull)
	mux.HandleFunc("POST "+api.PathGitCheckout, s.handleCheckout)
	mux.HandleFunc("POST "+api.PathGitBranch, s.handleCreateBranch)
	mux.HandleFunc("POST "+api.PathGitInitialize, s.handleInitialize)

	// Event streams
	mux.HandleFunc("GET "+api.PathEvents+"/{topic}", s.handleEvents)

	return h2c.NewHandler(s.logRequests(mux), &http2.Server{})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("Request")
		next.ServeHTTP(w, r)
	})
}

// reply writes v, or the error envelope when err is set.
func reply(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	api.WriteJSON(w, http.StatusOK, v)
}

// decode reads a JSON request body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.WriteError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

func kindParam(w http.ResponseWriter, value string) (models.Kind, bool) {
	kind, err := models.ParseKind(value)
	if err != nil {
		api.WriteError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, err.Error()))
		return "", false
	}
	return kind, true
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.backend.GetFileTree(r.Context())
	reply(w, tree, err)
}

func (s *Server) handleGitStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.GetGitStatus(r.Context())
	reply(w, status, err)
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.backend.GetBranches(r.Context())
	reply(w, branches, err)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	var kind models.Kind
	if v := r.URL.Query().Get("kind"); v != "" {
		k, ok := kindParam(w, v)
		if !ok {
			return
		}
		kind = k
	}
	list, err := s.backend.ListResources(r.Context(), kind)
	reply(w, list, err)
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r.PathValue("kind"))
	if !ok {
		return
	}
	res, err := s.backend.GetResource(r.Context(), kind, r.PathValue("name"))
	reply(w, res, err)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	content, err := s.backend.ReadRawFile(r.Context(), path)
	reply(w, api.FileContent{Path: path, Content: content}, err)
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req api.CreateResourceRequest
	if !decode(w, r, &req) {
		return
	}
	kind, ok := kindParam(w, req.Kind)
	if !ok {
		return
	}
	res, err := s.backend.CreateResource(r.Context(), kind, req.Name, req.YAML, req.Path)
	if err == nil {
		api.WriteJSON(w, http.StatusCreated, res)
		return
	}
	reply(w, nil, err)
}

func (s *Server) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r.PathValue("kind"))
	if !ok {
		return
	}
	var req api.UpdateResourceRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.backend.UpdateResource(r.Context(), kind, r.PathValue("name"), req.YAML)
	reply(w, res, err)
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r.PathValue("kind"))
	if !ok {
		return
	}
	reply(w, nil, s.backend.DeleteResource(r.Context(), kind, r.PathValue("name")))
}

func (s *Server) handleMoveFile(w http.ResponseWriter, r *http.Request) {
	var req api.MoveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.backend.MoveFile(r.Context(), req.Src, req.Dst)
	reply(w, res, err)
}

func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	var req api.PathRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.backend.CreateDirectory(r.Context(), req.Path)
	reply(w, res, err)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	var req api.PathRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.backend.DeleteFile(r.Context(), req.Path)
	reply(w, res, err)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req api.CommitRequest
	if !decode(w, r, &req) {
		return
	}
	reply(w, nil, s.backend.GitCommit(r.Context(), req.Message, req.Files))
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	reply(w, nil, s.backend.GitPull(r.Context()))
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req api.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	reply(w, nil, s.backend.GitCheckout(r.Context(), req.Branch))
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req api.BranchRequest
	if !decode(w, r, &req) {
		return
	}
	reply(w, nil, s.backend.GitCreateBranch(r.Context(), req.Name, req.SwitchTo))
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.GitInitialize(r.Context())
	reply(w, res, err)
}

// handleEvents upgrades to a websocket and forwards one backend stream as
// JSON text messages until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch topic := r.PathValue("topic"); topic {
	case api.TopicConfig:
		stream(s, w, r, topic, s.backend.SubscribeConfigChanges)
	case api.TopicOperations:
		stream(s, w, r, topic, s.backend.SubscribeOperations)
	case api.TopicJobs:
		stream(s, w, r, topic, s.backend.SubscribeJobs)
	default:
		api.WriteError(w, errors.NotFound("event topic "+topic))
	}
}

func stream[T any](s *Server, w http.ResponseWriter, r *http.Request, topic string, subscribe func(context.Context) (<-chan T, error)) {
	// The request context is not cancelled when a hijacked client disconnects
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := subscribe(ctx)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := s.logger.WithField("topic", topic)
	logger.Debug("Stream client connected")

	// Reading is only needed to notice the close frame
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.WithError(err).Debug("Stream client write failed")
				return
			}
		case <-ctx.Done():
			logger.Debug("Stream client disconnected")
			return
		}
	}
}
