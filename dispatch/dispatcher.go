// Package dispatch resolves text-generation requests from a result cache or
// from the model under a hard deadline, and fans batches out with bounded
// concurrency while preserving input order and per-request failure isolation.
package dispatch

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/inference-dispatch/inference-dispatch/dispatch/internal/hash"
	"github.com/inference-dispatch/inference-dispatch/dispatch/internal/util"
)

// InferenceResult is the caller-facing outcome of a successful request.
type InferenceResult struct {
	Text       string            `json:"text"`
	TokenCount int               `json:"token_count"`
	Latency    time.Duration     `json:"latency"`
	Cached     bool              `json:"cached"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// BatchOutcome is one element of an InferBatch response: exactly one of
// Result/Err is meaningful, in the same position as the input prompt.
type BatchOutcome struct {
	Result InferenceResult
	Err    error
}

// Dispatcher turns raw, possibly-concurrent generation requests into a
// controlled, cache-accelerated request stream in front of a black-box model
// runtime. The configuration snapshot is immutable for the dispatcher's
// lifetime; the cache, tracker and lifecycle flag are internally
// synchronized and shared across callers.
type Dispatcher struct {
	config  InferenceConfig
	loader  ModelLoader
	life    *lifecycle
	cache   *ResultCache
	tracker *LatencyTracker

	// inflight caps concurrent model invocations at Resources.Parallel.
	// Nil when the cap is unbounded.
	inflight *semaphore.Weighted
}

// NewDispatcher creates a Dispatcher with the given immutable configuration
// and model loader. The model starts Unloaded; call Load before dispatching.
func NewDispatcher(config InferenceConfig, loader ModelLoader) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, &LoadError{Err: errNilLoader}
	}
	d := &Dispatcher{
		config:  config,
		loader:  loader,
		life:    newLifecycle(),
		tracker: NewLatencyTracker(DefaultHistoryCapacity),
	}
	if config.Dispatcher.CacheEnabled {
		d.cache = NewResultCache(config.Dispatcher.CacheCapacity, config.Dispatcher.CacheTTL)
	}
	if config.Resources.Parallel > 0 {
		d.inflight = semaphore.NewWeighted(int64(config.Resources.Parallel))
	}
	return d, nil
}

// Config returns the immutable configuration snapshot.
func (d *Dispatcher) Config() InferenceConfig { return d.config }

// Status returns the current lifecycle state.
func (d *Dispatcher) Status() ModelStatus { return d.life.Status() }

// Load acquires a model handle through the loader and moves the lifecycle to
// Ready, or to Error on failure (returned wrapped in LoadError). Fails with
// AlreadyLoadingError when a load is in progress or the model is Ready.
func (d *Dispatcher) Load(ctx context.Context) error {
	if err := d.life.BeginLoad(); err != nil {
		return err
	}
	handle, err := d.loader.Load(ctx)
	if err != nil {
		loadErr := &LoadError{Err: err}
		d.life.CompleteLoad(nil, loadErr)
		return loadErr
	}
	d.life.CompleteLoad(handle, nil)
	return nil
}

// Unload releases the model handle. No-op unless Ready.
func (d *Dispatcher) Unload() error { return d.life.Unload() }

// Stats returns a consistent point-in-time snapshot of all counters,
// derived latencies, cache size and lifecycle status.
func (d *Dispatcher) Stats() Stats {
	cacheSize := 0
	if d.cache != nil {
		cacheSize = d.cache.Len()
	}
	return d.tracker.Snapshot(cacheSize, d.life.Status())
}

// ClearCache removes all cached results. Counters are unaffected.
func (d *Dispatcher) ClearCache() {
	if d.cache != nil {
		d.cache.Clear()
	}
}

// ResetStats clears the latency history and every counter.
func (d *Dispatcher) ResetStats() { d.tracker.Reset() }

// Infer resolves one request either from the result cache or by invoking the
// model under the configured deadline. overrides may be nil; useCache gates
// the cache for this call only (it is also off when disabled in config).
//
// A cache hit returns a copy marked Cached without touching the model. On a
// miss the model is invoked with a deadline equal to the configured timeout,
// measured from the invocation itself; deadline expiry yields TimeoutError,
// any other runtime failure yields InferenceError. Failed calls are counted
// exactly once and never write to the cache.
func (d *Dispatcher) Infer(ctx context.Context, prompt string, overrides *Overrides, useCache bool) (InferenceResult, error) {
	handle, err := d.life.Handle()
	if err != nil {
		return InferenceResult{}, err
	}

	params := d.config.effectiveParams(overrides)
	caching := useCache && d.cache != nil
	var key string

	if caching {
		key = hash.Fingerprint(prompt, params.Temperature, params.MaxTokens)
		if cached, ok := d.cache.Lookup(key); ok {
			d.tracker.RecordHit()
			cached.Cached = true
			logrus.Debugf("cache hit for fingerprint %.8s", key)
			return cached, nil
		}
		d.tracker.RecordMiss()
	}

	if d.inflight != nil {
		if err := d.inflight.Acquire(ctx, 1); err != nil {
			d.tracker.RecordError()
			return InferenceResult{}, &InferenceError{Err: err}
		}
		defer d.inflight.Release(1)
	}

	timeout := d.config.Dispatcher.Timeout
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err := generateAbandonable(genCtx, handle, prompt, params)
	if err != nil {
		d.tracker.RecordError()
		if genCtx.Err() == context.DeadlineExceeded {
			logrus.Warnf("generation exceeded %v deadline, abandoning call", timeout)
			return InferenceResult{}, &TimeoutError{Timeout: timeout}
		}
		return InferenceResult{}, &InferenceError{Err: err}
	}
	latency := time.Since(start)

	result := InferenceResult{
		Text:       strings.TrimSpace(output.Text),
		TokenCount: output.TokenCount,
		Latency:    latency,
		Cached:     false,
		Metadata: map[string]string{
			"temperature": strconv.FormatFloat(params.Temperature, 'g', -1, 64),
			"max_tokens":  strconv.Itoa(params.MaxTokens),
			"top_p":       strconv.FormatFloat(params.TopP, 'g', -1, 64),
		},
	}

	d.tracker.Record(latency)
	d.tracker.RecordTokens(output.TokenCount)
	if caching {
		d.cache.Insert(key, result)
	}
	return result, nil
}

// InferBatch resolves prompts to one outcome each, in input order, with
// independent success or failure per element. With batching disabled every
// prompt is delegated sequentially. With batching enabled the input is
// partitioned into chunks of at most BatchWidth; each chunk's members are
// dispatched concurrently and the batch counter increments once per chunk.
// A chunk shorter than the configured width dispatches immediately — the
// BatchWindow bound is an upper limit, not a padding wait.
func (d *Dispatcher) InferBatch(ctx context.Context, prompts []string, overrides *Overrides, useCache bool) []BatchOutcome {
	if len(prompts) == 0 {
		return []BatchOutcome{}
	}

	outcomes := make([]BatchOutcome, len(prompts))

	if !d.config.Dispatcher.BatchEnabled {
		for i, prompt := range prompts {
			outcomes[i].Result, outcomes[i].Err = d.Infer(ctx, prompt, overrides, useCache)
		}
		return outcomes
	}

	offset := 0
	for _, chunk := range util.Chunks(prompts, d.config.Dispatcher.BatchWidth) {
		d.tracker.RecordBatch()
		var wg sync.WaitGroup
		for i, prompt := range chunk {
			wg.Add(1)
			go func(slot int, p string) {
				defer wg.Done()
				outcomes[slot].Result, outcomes[slot].Err = d.Infer(ctx, p, overrides, useCache)
			}(offset+i, prompt)
		}
		wg.Wait()
		offset += len(chunk)
	}
	return outcomes
}

// generateAbandonable runs handle.Generate in its own goroutine and returns
// as soon as the context expires, abandoning (not killing) the call. Whether
// the runtime stops computing after cancellation is its own concern; the
// goroutine always drains and exits.
func generateAbandonable(ctx context.Context, handle ModelHandle, prompt string, params GenerationParams) (GenerationOutput, error) {
	type genResult struct {
		output GenerationOutput
		err    error
	}
	done := make(chan genResult, 1)
	go func() {
		output, err := handle.Generate(ctx, prompt, params)
		done <- genResult{output, err}
	}()
	select {
	case r := <-done:
		return r.output, r.err
	case <-ctx.Done():
		return GenerationOutput{}, ctx.Err()
	}
}
