package types

// SelectionPolicy controls how candidate engines are chosen for a request.
type SelectionPolicy string

const (
	PolicyExplicit       SelectionPolicy = "explicit"
	PolicyAuto           SelectionPolicy = "auto"
	PolicyFreeOnly       SelectionPolicy = "free-only"
	PolicyCommercialOnly SelectionPolicy = "commercial-only"
)

// GenerateRequest is the public dispatch entry point payload.
type GenerateRequest struct {
	// Optional client-chosen request id; generated when omitted.
	// example: 6e0f7a2c-1a4b-4e1e-9a51-a9f6a8f2d1c3
	RequestID string `json:"request_id,omitempty" example:"6e0f7a2c-1a4b-4e1e-9a51-a9f6a8f2d1c3"`
	// Explicit engine id. Required when policy is explicit.
	// example: sdxl-local
	Model string `json:"model,omitempty" example:"sdxl-local"`
	// explicit, auto, free-only or commercial-only. Defaults to auto,
	// or explicit when model is set.
	// example: auto
	Policy SelectionPolicy `json:"policy,omitempty" example:"auto"`
	// Requested output modality. Defaults to text.
	// example: text
	Modality Modality `json:"modality,omitempty" example:"text"`
	// Session to continue; a new session is created when omitted.
	// example: 3f8c9c1e-8d7a-4b6f-b2a0-5c4d9e6f7a8b
	SessionID string `json:"session_id,omitempty" example:"3f8c9c1e-8d7a-4b6f-b2a0-5c4d9e6f7a8b"`
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Input string `json:"input" example:"Write a haiku about the ocean."`
	// Opaque refinement tokens from a previous turn (image/3d iteration).
	StateTokens map[string]string `json:"state_tokens,omitempty"`
	// If true, stream token events as they are produced.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
	// Sampling temperature.
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
	// Random seed; 0 lets the engine choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// Event type names forming the canonical dispatch sequence.
const (
	EventModelSelected = "model-selected"
	EventToken         = "token"
	EventComplete      = "complete"
	EventError         = "error"
)

// Event is one element of the dispatch event sequence, streamed as NDJSON.
// A sequence is zero or more model-selected events, zero or more token
// events, then exactly one complete or error event.
type Event struct {
	// model-selected, token, complete or error.
	// example: token
	Type string `json:"event" example:"token"`
	// Dispatch request id, present on every event.
	// example: 6e0f7a2c-1a4b-4e1e-9a51-a9f6a8f2d1c3
	RequestID string `json:"request_id" example:"6e0f7a2c-1a4b-4e1e-9a51-a9f6a8f2d1c3"`
	// Engine the event refers to (model-selected).
	// example: sdxl-local
	Engine string `json:"engine,omitempty" example:"sdxl-local"`
	// Selection or fallback reason code (model-selected).
	// example: rate_limited
	Reason string `json:"reason,omitempty" example:"rate_limited"`
	// Incremental text delta (token).
	Token string `json:"token,omitempty"`
	// Resolved session id (complete).
	SessionID string `json:"session_id,omitempty"`
	// Full structured response (complete).
	Result *GenerateResult `json:"result,omitempty"`
	// Stable error code (error).
	// example: invalid_request
	Code string `json:"code,omitempty" example:"invalid_request"`
	// Human-readable error message (error).
	Error string `json:"error,omitempty"`
}

// GenerateResult is the terminal payload of a successful dispatch.
type GenerateResult struct {
	// Engine that served the request.
	// example: sdxl-local
	Engine string `json:"engine" example:"sdxl-local"`
	// Full generated text, when the modality is text.
	Text string `json:"text,omitempty"`
	// Generated media for image/3d modalities.
	Media []MediaRef `json:"media,omitempty"`
	// Opaque refinement tokens to echo on the next turn.
	StateTokens map[string]string `json:"state_tokens,omitempty"`
	// Token accounting, when reported by the engine.
	Usage Usage `json:"usage"`
	// stop, length or cancelled.
	// example: stop
	FinishReason string `json:"finish_reason,omitempty" example:"stop"`
}

// QueueStatus reports the wait position of a pending dispatch.
type QueueStatus struct {
	// Dispatch request id.
	RequestID string `json:"request_id"`
	// Engine the request is queued against.
	Engine string `json:"engine"`
	// Number of waiting entries ahead; 0 when running.
	// example: 3
	Position int `json:"position" example:"3"`
	// waiting or running.
	// example: waiting
	State string `json:"state" example:"waiting"`
}

// Session is the public view of a multi-turn session.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Turns     []Turn `json:"turns,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at_unix"`
	UpdatedAt int64  `json:"updated_at_unix"`
}

// DownloadJob reports the state of one artifact acquisition.
type DownloadJob struct {
	// Job identifier.
	// example: 9d2f1c3a-7b6e-4a5d-8c9b-0e1f2a3b4c5d
	ID string `json:"id" example:"9d2f1c3a-7b6e-4a5d-8c9b-0e1f2a3b4c5d"`
	// Engine id the artifact will be registered under.
	// example: tinyllama-q4
	ModelID string `json:"model_id" example:"tinyllama-q4"`
	// Source scheme, e.g. http or file.
	// example: http
	SourceType string `json:"source_type" example:"http"`
	// Source location.
	// example: https://models.example.com/tinyllama.gguf
	SourceURI string `json:"source_uri" example:"https://models.example.com/tinyllama.gguf"`
	// queued, running, completed, failed or cancelled.
	// example: running
	Status string `json:"status" example:"running"`
	// Completion percentage 0-100.
	// example: 42
	Progress int `json:"progress" example:"42"`
	// Failure message, when status is failed.
	Error string `json:"error,omitempty"`
	// Submission time (unix seconds).
	CreatedAt int64 `json:"created_at_unix"`
}

// EngineStatus summarizes one engine for GET /status.
type EngineStatus struct {
	// Engine id.
	// example: tinyllama-q4
	EngineID string `json:"engine_id" example:"tinyllama-q4"`
	// remote or local.
	Kind EngineKind `json:"kind"`
	// Lifecycle state for local engines (unloaded, loading, loaded, busy,
	// unloading, failed); remote engines report ready.
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Last time this engine served a request (unix seconds).
	LastUsed int64 `json:"last_used_unix,omitempty"`
	// Capacity units occupied while resident.
	CapacityCost int `json:"capacity_cost,omitempty"`
	// Waiting entries in the admission queue.
	QueueLen int `json:"queue_len"`
	// Entries currently executing.
	Inflight int `json:"inflight"`
	// Maximum queued requests before backpressure triggers.
	MaxQueueDepth int `json:"max_queue_depth"`
	// True when this engine is pinned (exempt from eviction).
	Pinned bool `json:"pinned,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Engines []EngineStatus `json:"engines"`
	// Capacity budget shared by all resident local engines.
	// example: 8192
	CapacityBudget int `json:"capacity_budget" example:"8192"`
	// Capacity units currently occupied.
	// example: 2048
	CapacityUsed int `json:"capacity_used" example:"2048"`
	// Total evictions performed to free capacity.
	EvictionsTotal uint64 `json:"evictions_total"`
	// Total local engine loads.
	LoadsTotal uint64 `json:"loads_total"`
	// Active sessions held in memory.
	ActiveSessions int `json:"active_sessions"`
	// Download jobs not yet terminal.
	ActiveJobs int `json:"active_jobs"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// SubmitDownloadRequest is the POST /jobs payload.
type SubmitDownloadRequest struct {
	// Engine id to register the artifact under.
	// example: tinyllama-q4
	ModelID string `json:"model_id" example:"tinyllama-q4"`
	// http or file.
	// example: http
	SourceType string `json:"source_type" example:"http"`
	// Artifact location.
	// example: https://models.example.com/tinyllama.gguf
	SourceURI string `json:"source_uri" example:"https://models.example.com/tinyllama.gguf"`
}
