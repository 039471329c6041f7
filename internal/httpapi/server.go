package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gend/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Dispatch(ctx context.Context, req types.GenerateRequest) (<-chan types.Event, string, error)
	Regenerate(ctx context.Context, sessionID string, req types.GenerateRequest) (<-chan types.Event, string, error)
	CancelRequest(requestID string) bool
	QueueStatus(requestID string) (types.QueueStatus, bool)

	ListEngines(modality types.Modality) []types.EngineHandle
	Status() types.StatusResponse
	Ready() bool

	GetSession(id string) (types.Session, bool)
	ListSessions() []types.Session
	CloseSession(id string) error
	SetSessionTitle(ctx context.Context, id, title string) error

	SubmitJob(req types.SubmitDownloadRequest) (string, error)
	JobStatus(id string) (types.DownloadJob, bool)
	ListJobs() []types.DownloadJob
	CancelJob(id string) bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsCfg.enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsCfg.origins,
			AllowedMethods: corsCfg.methods,
			AllowedHeaders: corsCfg.headers,
		}))
	}
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeGenerate(w, r)
		if !ok {
			return
		}
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		events, requestID, err := svc.Dispatch(joined, req)
		if err != nil {
			status := statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("queue_full")
			}
			writeJSONError(w, status, err.Error())
			return
		}
		streamEvents(w, r, joined, svc, requestID, events)
	})

	r.Post("/requests/{requestID}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "requestID")
		if !svc.CancelRequest(id) {
			writeJSONError(w, http.StatusNotFound, "unknown request")
			return
		}
		writeJSON(w, map[string]any{"cancelled": true, "request_id": id})
	})

	r.Get("/requests/{requestID}/queue", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "requestID")
		qs, ok := svc.QueueStatus(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "unknown request")
			return
		}
		writeJSON(w, qs)
	})

	r.Get("/engines", func(w http.ResponseWriter, r *http.Request) {
		modality := types.Modality(r.URL.Query().Get("modality"))
		writeJSON(w, map[string]any{"engines": svc.ListEngines(modality)})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sessions": svc.ListSessions()})
	})

	r.Get("/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		s, ok := svc.GetSession(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeJSON(w, s)
	})

	r.Post("/sessions/{sessionID}/close", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if err := svc.CloseSession(id); err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, map[string]any{"closed": true, "session_id": id})
	})

	r.Post("/sessions/{sessionID}/title", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var body struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(body.Title) == "" {
			writeJSONError(w, http.StatusBadRequest, "title is required")
			return
		}
		if err := svc.SetSessionTitle(r.Context(), id, body.Title); err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, map[string]any{"session_id": id, "title": body.Title})
	})

	r.Post("/sessions/{sessionID}/regenerate", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		req, ok := decodeGenerateOptional(w, r)
		if !ok {
			return
		}
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		events, requestID, err := svc.Regenerate(joined, id, req)
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		streamEvents(w, r, joined, svc, requestID, events)
	})

	r.Post("/jobs", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.SubmitDownloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		jobID, err := svc.SubmitJob(req)
		if err != nil {
			status := statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("job_queue")
			}
			writeJSONError(w, status, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": jobID})
	})

	r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"jobs": svc.ListJobs()})
	})

	r.Get("/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		job, ok := svc.JobStatus(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "unknown job")
			return
		}
		writeJSON(w, job)
	})

	r.Post("/jobs/{jobID}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		if !svc.CancelJob(id) {
			writeJSONError(w, http.StatusConflict, "job not cancellable")
			return
		}
		writeJSON(w, map[string]any{"cancelled": true, "job_id": id})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// decodeGenerate validates and decodes a generate request body.
func decodeGenerate(w http.ResponseWriter, r *http.Request) (types.GenerateRequest, bool) {
	var req types.GenerateRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Input) == "" {
		writeJSONError(w, http.StatusBadRequest, "input is required")
		return req, false
	}
	return req, true
}

// decodeGenerateOptional decodes a generate request body if one is present.
// Regenerate replays the prior user turn, so an empty body is valid.
func decodeGenerateOptional(w http.ResponseWriter, r *http.Request) (types.GenerateRequest, bool) {
	var req types.GenerateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return req, true
	}
	if err := json.Unmarshal(b, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}

// streamEvents drains a dispatch event channel onto the wire as NDJSON.
// If the client disconnects mid-stream the in-flight request is cancelled.
func streamEvents(w http.ResponseWriter, r *http.Request, ctx context.Context, svc Service, requestID string, events <-chan types.Event) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Request-ID", requestID)
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	writer := io.Writer(w)
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{})
	}
	start := time.Now()
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("request_id", requestID)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("http_request_id", rid)
		}
		z.Msg("generate start")
	}
	enc := json.NewEncoder(writer)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if lvl >= LevelInfo && zlog != nil {
					zlog.Info().Str("request_id", requestID).Dur("dur", time.Since(start)).Msg("generate end")
				}
				return
			}
			if err := enc.Encode(ev); err != nil {
				svc.CancelRequest(requestID)
				// Drain so the dispatcher goroutine never blocks on a
				// dead stream.
				for range events {
				}
				return
			}
			streamEventsTotal.WithLabelValues(ev.Type).Inc()
			if flush != nil {
				flush()
			}
		case <-ctx.Done():
			svc.CancelRequest(requestID)
			// Drain remaining events so the dispatcher goroutine can finish.
			for range events {
			}
			return
		}
	}
}
