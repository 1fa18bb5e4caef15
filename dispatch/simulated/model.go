// Package simulated provides a ModelHandle backed by a linear latency model
// instead of a real generation runtime. It exists for benchmarks and
// integration tests: latency follows base + per-prompt-token +
// per-output-token costs with seeded jitter, and output is a deterministic
// function of the prompt and sampling parameters.
package simulated

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-dispatch/inference-dispatch/dispatch"
)

// charsPerToken is the rough chars-to-tokens ratio used to estimate prompt
// token counts without a tokenizer.
const charsPerToken = 4

// LatencyProfile describes the simulated cost of one Generate call:
// total = Base + PerPromptToken*promptTokens + PerOutputToken*outputTokens,
// scaled by a jitter factor drawn uniformly from [1-Jitter, 1+Jitter].
type LatencyProfile struct {
	Base           time.Duration
	PerPromptToken time.Duration
	PerOutputToken time.Duration
	Jitter         float64 // fraction in [0, 1)
}

// NewLatencyProfile creates a LatencyProfile with all fields explicitly set.
// This is the canonical constructor — all construction sites must use it.
func NewLatencyProfile(base, perPromptToken, perOutputToken time.Duration, jitter float64) LatencyProfile {
	return LatencyProfile{
		Base:           base,
		PerPromptToken: perPromptToken,
		PerOutputToken: perOutputToken,
		Jitter:         jitter,
	}
}

// Model is a simulated generation runtime. Safe for concurrent Generate
// calls; the RNG is guarded by a mutex.
type Model struct {
	profile LatencyProfile

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a simulated model with the given latency profile and RNG seed.
func New(profile LatencyProfile, seed int64) *Model {
	if profile.Jitter < 0 || profile.Jitter >= 1 {
		panic(fmt.Sprintf("simulated.New: Jitter must be in [0, 1), got %f", profile.Jitter))
	}
	return &Model{
		profile: profile,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Generate produces a deterministic completion for the prompt after sleeping
// for the modeled latency. It returns ctx.Err() as soon as the context
// expires mid-sleep, so dispatcher deadlines are honored.
func (m *Model) Generate(ctx context.Context, prompt string, params dispatch.GenerationParams) (dispatch.GenerationOutput, error) {
	promptTokens := len(prompt)/charsPerToken + 1
	outputTokens := m.outputTokens(prompt, params)

	delay := m.delay(promptTokens, outputTokens)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return dispatch.GenerationOutput{}, ctx.Err()
	}

	// Surrounding whitespace is intentional: callers are expected to trim.
	text := fmt.Sprintf(" %s [%d tokens @ temp=%.2f] ",
		strings.TrimSpace(prompt), outputTokens, params.Temperature)
	logrus.Debugf("simulated generate: %d prompt tokens, %d output tokens in %v",
		promptTokens, outputTokens, delay)
	return dispatch.GenerationOutput{Text: text, TokenCount: outputTokens}, nil
}

// Unload implements dispatch.ModelHandle.
func (m *Model) Unload() error {
	logrus.Debug("simulated model unloaded")
	return nil
}

// outputTokens derives a deterministic token count from the prompt and the
// output-affecting parameters, capped at MaxTokens.
func (m *Model) outputTokens(prompt string, params dispatch.GenerationParams) int {
	n := 0
	for _, r := range prompt {
		n = (n*31 + int(r)) % 509
	}
	n = n + int(params.Temperature*100)
	if params.MaxTokens > 0 && n > params.MaxTokens {
		n = params.MaxTokens
	}
	if n < 1 {
		n = 1
	}
	return n
}

// delay computes the jittered linear latency for one call.
func (m *Model) delay(promptTokens, outputTokens int) time.Duration {
	d := m.profile.Base +
		time.Duration(promptTokens)*m.profile.PerPromptToken +
		time.Duration(outputTokens)*m.profile.PerOutputToken
	if m.profile.Jitter == 0 {
		return d
	}
	m.mu.Lock()
	factor := 1 + m.profile.Jitter*(2*m.rng.Float64()-1)
	m.mu.Unlock()
	return time.Duration(float64(d) * factor)
}

// Loader returns a dispatch.ModelLoader that simulates weight loading for
// loadDelay before handing out a fresh Model. The load observes ctx
// cancellation.
func Loader(profile LatencyProfile, seed int64, loadDelay time.Duration) dispatch.ModelLoader {
	return dispatch.ModelLoaderFunc(func(ctx context.Context) (dispatch.ModelHandle, error) {
		select {
		case <-time.After(loadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return New(profile, seed), nil
	})
}
