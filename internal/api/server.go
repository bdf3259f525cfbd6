// Package api provides the HTTP and WebSocket server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/internal/registry"
	"github.com/atlas-desktop/portfolio-replay/internal/render"
	"github.com/atlas-desktop/portfolio-replay/internal/session"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the HTTP/WebSocket API server
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	session    *session.Session
	commands   *Commands
	store      *data.Store
	hub        *Hub
}

// NewServer creates a new API server. store may be nil.
func NewServer(logger *zap.Logger, config *types.ServerConfig, sess *session.Session, store *data.Store, hub *Hub) *Server {
	server := &Server{
		logger:   logger,
		config:   config,
		router:   mux.NewRouter(),
		session:  sess,
		commands: NewCommands(sess),
		store:    store,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	server.setupRoutes()
	return server
}

// Router returns the route table
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/state", s.handleState).Methods("GET")

	// Datasets
	api.HandleFunc("/datasets", s.handleListDatasets).Methods("GET")
	api.HandleFunc("/datasets", s.handleUpload).Methods("POST")
	api.HandleFunc("/datasets/store/{name}", s.handleLoadFromStore).Methods("POST")
	api.HandleFunc("/datasets/{id}", s.handleRemoveDataset).Methods("DELETE")
	api.HandleFunc("/datasets/{id}/color", s.handleSetColor).Methods("PUT")
	api.HandleFunc("/datasets/{id}/select", s.handleSelect).Methods("PUT")
	api.HandleFunc("/datasets/{id}/report", s.handleReport).Methods("GET")
	api.HandleFunc("/store", s.handleListStore).Methods("GET")

	// Playback and view
	api.HandleFunc("/playback/{action:play|pause|seek|step|speed}", s.handlePlayback).Methods("POST")
	api.HandleFunc("/zoom", s.commandHandler("zoom")).Methods("POST")
	api.HandleFunc("/zoom", s.commandHandler("reset_zoom")).Methods("DELETE")
	api.HandleFunc("/filters/{kind}/toggle", s.handleToggleFilter).Methods("POST")
	api.HandleFunc("/canvas", s.commandHandler("canvas")).Methods("PUT")

	// Pointer input
	api.HandleFunc("/pointer/{action:move|down|up|leave|click|dblclick}", s.handlePointer).Methods("POST")
	api.HandleFunc("/pinned/{dir:next|prev}", s.handlePinned).Methods("POST")

	// Reads
	api.HandleFunc("/frame.png", s.handleFrame).Methods("GET")
	api.HandleFunc("/metrics/current", s.handleCurrentMetrics).Methods("GET")
	api.HandleFunc("/positions", s.handlePositions).Methods("GET")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// WebSocket
	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Starting API server", zap.String("addr", addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Stop()
	}

	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrUnknownDataset), errors.Is(err, data.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrBadArgs), errors.Is(err, ErrUnknownCommand),
		errors.Is(err, session.ErrUnknownFilter), errors.Is(err, data.ErrInvalidName),
		errors.Is(err, data.ErrMalformed), errors.Is(err, data.ErrInconsistentLength),
		errors.Is(err, data.ErrMissingField):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNoStore):
		status = http.StatusNotImplemented
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeArgs reads an optional JSON body
func decodeArgs(r *http.Request) (CommandArgs, error) {
	var args CommandArgs
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return args, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(body, &args); err != nil {
		return args, fmt.Errorf("%v: %w", err, ErrBadArgs)
	}
	return args, nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, command string, args CommandArgs) {
	result, err := s.commands.Dispatch(r.Context(), command, args)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if result == nil {
		result = map[string]string{"status": "ok"}
	}
	writeJSON(w, http.StatusOK, result)
}

// commandHandler runs a fixed command with the JSON body as arguments
func (s *Server) commandHandler(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args, err := decodeArgs(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.dispatch(w, r, command, args)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"time":    time.Now().Unix(),
		"clients": clients,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	views := s.session.Datasets()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": views,
		"count":    len(views),
	})
}

// handleUpload adds the multipart "files" parts as datasets. With ?save=true
// the files that parsed are also written to the result store.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, fmt.Errorf("invalid upload: %v: %w", err, ErrBadArgs))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, fmt.Errorf("no files in upload: %w", ErrBadArgs))
		return
	}

	files := make([]types.RawFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}
		files = append(files, types.RawFile{Name: fh.Filename, Data: raw})
	}

	added, failures := s.session.AddFiles(r.Context(), files)

	if r.URL.Query().Get("save") == "true" && s.store != nil {
		saved := make(map[string]bool, len(added))
		for _, ds := range added {
			saved[ds.FileName] = true
		}
		for _, f := range files {
			if !saved[f.Name] {
				continue
			}
			if err := s.store.Save(f.Name, f.Data); err != nil {
				s.logger.Warn("Failed to save uploaded file", zap.String("name", f.Name), zap.Error(err))
			}
		}
	}

	status := http.StatusOK
	if len(added) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, uploadResponse(added, failures))
}

func uploadResponse(added []*types.Dataset, failures []registry.LoadFailure) map[string]interface{} {
	if failures == nil {
		failures = []registry.LoadFailure{}
	}
	if added == nil {
		added = []*types.Dataset{}
	}
	return map[string]interface{}{
		"added":    added,
		"failures": failures,
	}
}

func (s *Server) handleLoadFromStore(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ds, err := s.session.LoadFromStore(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleListStore(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, session.ErrNoStore)
		return
	}
	files, err := s.store.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

func (s *Server) handleRemoveDataset(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, "remove", CommandArgs{ID: mux.Vars(r)["id"]})
}

func (s *Server) handleSetColor(w http.ResponseWriter, r *http.Request) {
	args, err := decodeArgs(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	args.ID = mux.Vars(r)["id"]
	s.dispatch(w, r, "color", args)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, "select", CommandArgs{ID: mux.Vars(r)["id"]})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, "report", CommandArgs{ID: mux.Vars(r)["id"]})
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	args, err := decodeArgs(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.dispatch(w, r, mux.Vars(r)["action"], args)
}

func (s *Server) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, "toggle_filter", CommandArgs{Kind: mux.Vars(r)["kind"]})
}

var pointerCommands = map[string]string{
	"move":     "pointer_move",
	"down":     "pointer_down",
	"up":       "pointer_up",
	"leave":    "pointer_leave",
	"click":    "click",
	"dblclick": "dblclick",
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	args, err := decodeArgs(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.dispatch(w, r, pointerCommands[mux.Vars(r)["action"]], args)
}

func (s *Server) handlePinned(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, "pinned_"+mux.Vars(r)["dir"], CommandArgs{})
}

// handleFrame renders the current state as PNG
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	img, _ := s.session.RenderFrame()

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, img); err != nil {
		s.writeError(w, fmt.Errorf("encode frame: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleCurrentMetrics(w http.ResponseWriter, r *http.Request) {
	m, ok := s.session.Metrics()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no dataset selected"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	p, ok := s.session.Positions()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no dataset selected"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "WebSocket not enabled", http.StatusNotImplemented)
		return
	}
	if max := s.config.MaxConnections; max > 0 && s.hub.ClientCount() >= max {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), s.hub, conn)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	s.logger.Info("WebSocket client connected", zap.String("id", client.id))

	go client.WritePump()
	go client.ReadPump()
}
