// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/usecases"
)

// DefaultMaxUpload caps request bodies when Options.MaxUploadBytes is unset.
const DefaultMaxUpload = 20 << 20

// Options configures a Server.
type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	Logger         zerolog.Logger
	// Gatherer enables GET /metrics when set.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP host for the chat and dataset APIs.
type Server struct {
	orchestrator *usecases.Orchestrator
	ingest       *usecases.IngestUseCase
	opts         Options
	logger       zerolog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(orch *usecases.Orchestrator, ingest *usecases.IngestUseCase, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 120 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUpload
	}
	return &Server{
		orchestrator: orch,
		ingest:       ingest,
		opts:         opts,
		logger:       opts.Logger.With().Str("component", "http").Logger(),
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/datasets", s.handleUpload)
	mux.HandleFunc("POST /api/datasets/url", s.handleURL)
	mux.HandleFunc("GET /api/datasets/{session}", s.handleGetDataset)
	mux.HandleFunc("DELETE /api/datasets/{session}", s.handleDeleteDataset)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(s.loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	s.logger.Info().Str("addr", s.opts.Addr).Msg("datachat server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleChat answers one message with one Block.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, s.opts.MaxUploadBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Request body must be JSON with session_id and message.")
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "session_id and message are required.")
		return
	}

	block := s.orchestrator.Run(r.Context(), req.SessionID, req.Message)
	writeJSON(w, http.StatusOK, block)
}

type datasetResponse struct {
	SessionID string `json:"session_id"`
	entities.DatasetMeta
}

// handleUpload accepts a raw CSV body or a multipart "file" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session_id")
	if session == "" {
		session = uuid.NewString()
	}

	name, data, err := s.readUpload(w, r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large",
				(&entities.DatasetTooLargeError{MaxBytes: s.opts.MaxUploadBytes}).Error())
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	meta, err := s.ingest.IngestBytes(r.Context(), session, name, data)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, datasetResponse{SessionID: session, DatasetMeta: meta})
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload.csv"
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, err
		}
		if len(data) == 0 {
			return "", nil, errors.New("request body is empty")
		}
		return name, data, nil
	}

	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return "", nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New(`multipart upload needs a "file" field`)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

type urlRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// handleURL downloads a dataset from an http(s) URL.
func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := decodeJSON(w, r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Request body must be JSON with url.")
		return
	}
	// Local paths are only reachable from the drop folder and the CLI.
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "bad_request", "url must start with http:// or https://")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	meta, err := s.ingest.Ingest(r.Context(), req.SessionID, req.URL)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, datasetResponse{SessionID: req.SessionID, DatasetMeta: meta})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	meta, ok, err := s.ingest.Meta(r.Context(), session)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		s.writeDomainError(w, &entities.DatasetNotLoadedError{Session: session})
		return
	}
	writeJSON(w, http.StatusOK, datasetResponse{SessionID: session, DatasetMeta: meta})
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.Delete(r.Context(), r.PathValue("session")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps domain errors to status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrDatasetNotLoaded):
		writeError(w, http.StatusNotFound, "not_found", entities.UserMessage(err))
	case errors.Is(err, entities.ErrColumnNotFound):
		writeError(w, http.StatusNotFound, "column_not_found", entities.UserMessage(err))
	case errors.Is(err, entities.ErrInvalidDataset), errors.Is(err, entities.ErrInvalidSpec):
		writeError(w, http.StatusUnprocessableEntity, "invalid", entities.UserMessage(err))
	case errors.Is(err, entities.ErrDatasetTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", entities.UserMessage(err))
	case errors.Is(err, entities.ErrUpstream):
		s.logger.Warn().Err(err).Msg("upstream failure")
		writeError(w, http.StatusBadGateway, "upstream", "Could not fetch the dataset source.")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", entities.UserMessage(err))
	}
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	var body errorBody
	body.Error.Type = kind
	body.Error.Message = message
	writeJSON(w, status, body)
}

// encodeFailureBody is sent when a response value cannot be marshalled.
const encodeFailureBody = `{"error":{"type":"internal","message":"Could not encode the response."}}` + "\n"

// writeJSON marshals v before touching the status line, so an encoding
// failure still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	raw, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, encodeFailureBody)
		return
	}
	w.WriteHeader(status)
	w.Write(append(raw, '\n'))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
