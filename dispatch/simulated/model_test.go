package simulated

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/inference-dispatch/inference-dispatch/dispatch"
)

func testParams() dispatch.GenerationParams {
	return dispatch.GenerationParams{Temperature: 0.7, MaxTokens: 128}
}

func TestModel_DeterministicOutput(t *testing.T) {
	// Jitter 0 so two models with the same seed behave identically
	profile := NewLatencyProfile(time.Millisecond, 0, 0, 0)
	a := New(profile, 1)
	b := New(profile, 1)

	outA, errA := a.Generate(context.Background(), "same prompt", testParams())
	outB, errB := b.Generate(context.Background(), "same prompt", testParams())
	if errA != nil || errB != nil {
		t.Fatalf("Generate: %v, %v", errA, errB)
	}
	if outA.Text != outB.Text || outA.TokenCount != outB.TokenCount {
		t.Errorf("identical inputs diverged: %+v vs %+v", outA, outB)
	}
}

func TestModel_TokenCountCappedAtMaxTokens(t *testing.T) {
	model := New(NewLatencyProfile(0, 0, 0, 0), 1)
	params := testParams()
	params.MaxTokens = 5

	out, err := model.Generate(context.Background(), strings.Repeat("long prompt ", 50), params)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.TokenCount > 5 {
		t.Errorf("token count %d exceeds MaxTokens 5", out.TokenCount)
	}
	if out.TokenCount < 1 {
		t.Errorf("token count must be at least 1, got %d", out.TokenCount)
	}
}

// TestModel_HonorsContextCancellation verifies a generate abandoned by its
// context returns promptly with ctx.Err().
func TestModel_HonorsContextCancellation(t *testing.T) {
	model := New(NewLatencyProfile(5*time.Second, 0, 0, 0), 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := model.Generate(ctx, "slow", testParams())
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("generate did not abandon promptly, took %v", time.Since(start))
	}
}

func TestModel_OutputHasSurroundingWhitespace(t *testing.T) {
	// The dispatcher is responsible for trimming; the runtime does not.
	model := New(NewLatencyProfile(0, 0, 0, 0), 1)
	out, err := model.Generate(context.Background(), "p", testParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.TrimSpace(out.Text) == out.Text {
		t.Error("expected untrimmed output from the runtime")
	}
}

func TestLoader(t *testing.T) {
	loader := Loader(NewLatencyProfile(0, 0, 0, 0), 1, 0)
	handle, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a handle")
	}
	if err := handle.Unload(); err != nil {
		t.Errorf("Unload: %v", err)
	}
}

func TestLoader_CancelledContext(t *testing.T) {
	loader := Loader(NewLatencyProfile(0, 0, 0, 0), 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loader.Load(ctx); err == nil {
		t.Error("expected error from cancelled load")
	}
}

func TestNew_PanicsOnBadJitter(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for jitter >= 1")
		}
	}()
	New(NewLatencyProfile(0, 0, 0, 1.0), 1)
}
