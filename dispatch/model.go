// Defines the boundary contracts toward the black-box generation runtime:
// GenerationParams (what the dispatcher resolves per request), ModelHandle
// (a loaded model) and ModelLoader (how handles are acquired).

package dispatch

import "context"

// GenerationParams are the fully resolved parameters for one Generate call.
// The dispatcher treats their effect on output as opaque; it only guarantees
// that parameters affecting output participate in the cache fingerprint.
type GenerationParams struct {
	Temperature       float64
	TopP              float64
	TopK              int
	MaxTokens         int
	RepetitionPenalty float64
	Mirostat          bool
	MirostatTau       float64
	MirostatEta       float64
	ContextWindow     int
	GPULayers         int
}

// GenerationOutput is the raw result of one Generate call.
type GenerationOutput struct {
	Text       string // generated text, untrimmed
	TokenCount int    // output tokens produced
}

// ModelHandle is a loaded generation model. Implementations must be safe for
// concurrent Generate calls, or serialize internally; the dispatcher only
// caps concurrency via ResourceConfig.Parallel.
//
// Generate must observe ctx cancellation on a best-effort basis. The
// dispatcher abandons the call once the deadline expires; whether the
// underlying runtime actually stops computing is outside this contract.
type ModelHandle interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (GenerationOutput, error)

	// Unload releases the handle's resources. Called once, from the
	// lifecycle Unload transition.
	Unload() error
}

// ModelLoader acquires a ModelHandle. A load failure transitions the
// lifecycle to StatusError; the dispatcher never retries automatically.
type ModelLoader interface {
	Load(ctx context.Context) (ModelHandle, error)
}

// ModelLoaderFunc adapts a function to the ModelLoader interface.
type ModelLoaderFunc func(ctx context.Context) (ModelHandle, error)

// Load implements ModelLoader.
func (f ModelLoaderFunc) Load(ctx context.Context) (ModelHandle, error) { return f(ctx) }
