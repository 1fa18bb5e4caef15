package dispatch

import (
	"fmt"
	"time"
)

// GenerationConfig groups sampling parameters passed to the model runtime.
// Values outside the typical ranges (e.g. Temperature > 1) are passed through
// unchanged; the dispatcher never rejects them.
type GenerationConfig struct {
	Temperature       float64 // sampling temperature (typical range [0, 1])
	TopP              float64 // nucleus sampling threshold (typical range [0, 1])
	TopK              int     // top-k sampling cutoff (0 = disabled)
	MaxTokens         int     // maximum output length in tokens
	RepetitionPenalty float64 // penalty applied to repeated tokens (1.0 = none)
	Mirostat          bool    // deterministic-perplexity sampling mode
	MirostatTau       float64 // mirostat target entropy
	MirostatEta       float64 // mirostat learning rate
}

// NewGenerationConfig creates a GenerationConfig with all fields explicitly set.
// This is the canonical constructor — all construction sites must use it.
// Parameter order matches struct field order.
func NewGenerationConfig(temperature, topP float64, topK, maxTokens int,
	repetitionPenalty float64, mirostat bool, mirostatTau, mirostatEta float64) GenerationConfig {
	return GenerationConfig{
		Temperature:       temperature,
		TopP:              topP,
		TopK:              topK,
		MaxTokens:         maxTokens,
		RepetitionPenalty: repetitionPenalty,
		Mirostat:          mirostat,
		MirostatTau:       mirostatTau,
		MirostatEta:       mirostatEta,
	}
}

// ResourceConfig groups resource hints forwarded to the model runtime and
// the dispatcher's own concurrency cap.
type ResourceConfig struct {
	ContextWindow int // model context window size in tokens
	Parallel      int // max concurrent model invocations (0 = unbounded)
	GPULayers     int // accelerator offload hint (layers to place on GPU)
}

// NewResourceConfig creates a ResourceConfig with all fields explicitly set.
// This is the canonical constructor — all construction sites must use it.
func NewResourceConfig(contextWindow, parallel, gpuLayers int) ResourceConfig {
	return ResourceConfig{
		ContextWindow: contextWindow,
		Parallel:      parallel,
		GPULayers:     gpuLayers,
	}
}

// DispatcherConfig groups dispatch-level parameters: deadlines, result
// caching, and batch fan-out.
type DispatcherConfig struct {
	Timeout       time.Duration // hard deadline per model invocation (must be > 0)
	CacheEnabled  bool          // whether the result cache is consulted at all
	CacheCapacity int           // max cache entries (must be > 0 when CacheEnabled)
	CacheTTL      time.Duration // entry time-to-live measured from insertion
	BatchEnabled  bool          // whether InferBatch fans out concurrently
	BatchWidth    int           // max requests dispatched together (must be > 0 when BatchEnabled)
	BatchWindow   time.Duration // upper bound on batch aggregation wait (informational; short chunks never wait)
}

// NewDispatcherConfig creates a DispatcherConfig with all fields explicitly set.
// This is the canonical constructor — all construction sites must use it.
// Parameter order matches struct field order.
func NewDispatcherConfig(timeout time.Duration, cacheEnabled bool, cacheCapacity int,
	cacheTTL time.Duration, batchEnabled bool, batchWidth int, batchWindow time.Duration) DispatcherConfig {
	return DispatcherConfig{
		Timeout:       timeout,
		CacheEnabled:  cacheEnabled,
		CacheCapacity: cacheCapacity,
		CacheTTL:      cacheTTL,
		BatchEnabled:  batchEnabled,
		BatchWidth:    batchWidth,
		BatchWindow:   batchWindow,
	}
}

// InferenceConfig is the immutable configuration snapshot held by a Dispatcher
// for its lifetime. Reconfiguration means constructing a new Dispatcher.
type InferenceConfig struct {
	Generation GenerationConfig
	Resources  ResourceConfig
	Dispatcher DispatcherConfig
}

// NewInferenceConfig creates an InferenceConfig with all fields explicitly set.
// This is the canonical constructor — all construction sites must use it.
func NewInferenceConfig(generation GenerationConfig, resources ResourceConfig,
	dispatcher DispatcherConfig) InferenceConfig {
	return InferenceConfig{
		Generation: generation,
		Resources:  resources,
		Dispatcher: dispatcher,
	}
}

// DefaultInferenceConfig returns a configuration suitable for interactive use:
// 20ms deadline, caching on with 256 entries and a 5 minute TTL, batching on
// with width 8.
func DefaultInferenceConfig() InferenceConfig {
	return NewInferenceConfig(
		NewGenerationConfig(0.7, 0.9, 40, 256, 1.1, false, 5.0, 0.1),
		NewResourceConfig(4096, 0, 0),
		NewDispatcherConfig(20*time.Millisecond, true, 256, 5*time.Minute, true, 8, 10*time.Millisecond),
	)
}

// Validate checks the dispatcher invariants. Sampling parameters are never
// validated here: out-of-range values must not prevent dispatch.
func (c InferenceConfig) Validate() error {
	if c.Dispatcher.Timeout <= 0 {
		return fmt.Errorf("config: Timeout must be > 0, got %v", c.Dispatcher.Timeout)
	}
	if c.Dispatcher.CacheEnabled && c.Dispatcher.CacheCapacity <= 0 {
		return fmt.Errorf("config: CacheCapacity must be > 0 when caching is enabled, got %d", c.Dispatcher.CacheCapacity)
	}
	if c.Dispatcher.CacheEnabled && c.Dispatcher.CacheTTL <= 0 {
		return fmt.Errorf("config: CacheTTL must be > 0 when caching is enabled, got %v", c.Dispatcher.CacheTTL)
	}
	if c.Dispatcher.BatchEnabled && c.Dispatcher.BatchWidth <= 0 {
		return fmt.Errorf("config: BatchWidth must be > 0 when batching is enabled, got %d", c.Dispatcher.BatchWidth)
	}
	if c.Resources.Parallel < 0 {
		return fmt.Errorf("config: Parallel must be >= 0, got %d", c.Resources.Parallel)
	}
	return nil
}

// Overrides carries per-request parameter overrides. Nil fields fall back to
// the dispatcher's GenerationConfig. Only parameters that affect generation
// output are overridable; both participate in the cache fingerprint.
type Overrides struct {
	Temperature *float64
	MaxTokens   *int
}

// effectiveParams resolves the per-request generation parameters from the
// config snapshot and optional overrides.
func (c InferenceConfig) effectiveParams(ov *Overrides) GenerationParams {
	p := GenerationParams{
		Temperature:       c.Generation.Temperature,
		TopP:              c.Generation.TopP,
		TopK:              c.Generation.TopK,
		MaxTokens:         c.Generation.MaxTokens,
		RepetitionPenalty: c.Generation.RepetitionPenalty,
		Mirostat:          c.Generation.Mirostat,
		MirostatTau:       c.Generation.MirostatTau,
		MirostatEta:       c.Generation.MirostatEta,
		ContextWindow:     c.Resources.ContextWindow,
		GPULayers:         c.Resources.GPULayers,
	}
	if ov != nil {
		if ov.Temperature != nil {
			p.Temperature = *ov.Temperature
		}
		if ov.MaxTokens != nil {
			p.MaxTokens = *ov.MaxTokens
		}
	}
	return p
}
