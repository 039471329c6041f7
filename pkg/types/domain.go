package types

// Modality identifies the kind of artifact an engine produces.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	Modality3D    Modality = "3d"
)

// EngineKind distinguishes remote API engines from locally-hosted runtimes.
type EngineKind string

const (
	KindRemote EngineKind = "remote"
	KindLocal  EngineKind = "local"
)

// Tier is the price class of an engine, used to order fallback chains.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierFree     Tier = "free"
)

// EngineHandle identifies one runnable unit. Immutable once registered.
type EngineHandle struct {
	// Stable engine identifier.
	// example: sdxl-local
	ID string `json:"id" yaml:"id" toml:"id" example:"sdxl-local"`
	// Human-friendly name.
	// example: Stable Diffusion XL (local)
	Name string `json:"name" yaml:"name" toml:"name" example:"Stable Diffusion XL (local)"`
	// Output modality served by this engine.
	// example: image
	Modality Modality `json:"modality" yaml:"modality" toml:"modality" example:"image"`
	// remote or local.
	// example: local
	Kind EngineKind `json:"kind" yaml:"kind" toml:"kind" example:"local"`
	// Provider name for remote engines (empty for local).
	// example: openrouter
	Provider string `json:"provider,omitempty" yaml:"provider" toml:"provider" example:"openrouter"`
	// Price tier used by routing policies. Local engines are free.
	// example: free
	Tier Tier `json:"tier" yaml:"tier" toml:"tier" example:"free"`
	// Capacity units this engine occupies while resident (local only).
	// example: 1200
	CapacityCost int `json:"capacity_cost,omitempty" yaml:"capacity_cost" toml:"capacity_cost" example:"1200"`
	// Maximum concurrent executions admitted against this engine.
	// example: 1
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" toml:"max_concurrency" example:"1"`
	// Absolute path to the local model artifact (local only).
	// example: /var/lib/gend/models/sdxl.gguf
	ArtifactPath string `json:"artifact_path,omitempty" yaml:"artifact_path" toml:"artifact_path" example:"/var/lib/gend/models/sdxl.gguf"`
	// True when this engine supports incremental token output.
	// example: true
	Streaming bool `json:"streaming" yaml:"streaming" toml:"streaming" example:"true"`
}

// Turn is one entry of a session transcript.
type Turn struct {
	// user, assistant or system.
	// example: user
	Role string `json:"role" example:"user"`
	// Text content of the turn.
	// example: draw a lighthouse at dusk
	Content string `json:"content" example:"draw a lighthouse at dusk"`
	// Media produced or attached with this turn.
	Media []MediaRef `json:"media,omitempty"`
	// Opaque per-engine refinement state echoed back on the next turn.
	StateTokens map[string]string `json:"state_tokens,omitempty"`
}

// MediaRef points at one generated or attached media payload, either inline
// (base64) or by reference.
type MediaRef struct {
	// image or 3d.
	// example: image
	Kind Modality `json:"kind" example:"image"`
	// MIME type of the payload.
	// example: image/png
	MimeType string `json:"mime_type" example:"image/png"`
	// Reference to an externally stored artifact, if not inline.
	// example: file:///var/lib/gend/artifacts/a1b2.png
	URI string `json:"uri,omitempty" example:"file:///var/lib/gend/artifacts/a1b2.png"`
	// Inline base64 payload, if not referenced.
	Data string `json:"data,omitempty"`
}

// Usage contains token accounting reported by an engine.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
