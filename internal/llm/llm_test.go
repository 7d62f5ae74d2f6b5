package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/dgallion1/manualbot/internal/domain"
)

type recorder struct {
	ops  []string
	errs int
}

func (r *recorder) ObserveLLM(op, _ string, _ time.Duration, err error) {
	r.ops = append(r.ops, op)
	if err != nil {
		r.errs++
	}
}

type fixedEmbedder struct{ dim int }

func (f fixedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return EmbedOneVia(ctx, f, text)
}

func (f fixedEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fixedEmbedder) Dimensions() int   { return f.dim }
func (f fixedEmbedder) ModelName() string { return "fixed" }

type scriptedGenerator struct {
	frags []string
	err   error
}

func (g scriptedGenerator) Stream(context.Context, []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range g.frags {
			if !yield(f, nil) {
				return
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

func (g scriptedGenerator) ModelName() string { return "scripted" }

func TestCheckDimensions(t *testing.T) {
	if err := CheckDimensions([][]float32{{1, 2}, {3, 4}}, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := CheckDimensions([][]float32{{1, 2}, {3}}, 2)
	if !errors.Is(err, domain.ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
}

func TestInstrumentEmbedder(t *testing.T) {
	rec := &recorder{}
	e := InstrumentEmbedder(fixedEmbedder{dim: 4}, rec)

	v, err := e.EmbedOne(context.Background(), "hello")
	if err != nil || len(v) != 4 {
		t.Fatalf("EmbedOne = %v, %v", v, err)
	}
	if _, err := e.EmbedMany(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if len(rec.ops) != 2 || rec.ops[0] != OpEmbed {
		t.Fatalf("unexpected observations %v", rec.ops)
	}
	if e.Dimensions() != 4 || e.ModelName() != "fixed" {
		t.Errorf("wrapper should delegate metadata")
	}
}

func TestInstrumentGenerator(t *testing.T) {
	rec := &recorder{}
	g := InstrumentGenerator(scriptedGenerator{frags: []string{"a", "b"}, err: errors.New("cut")}, Observers{rec, nil})

	var got []string
	var gotErr error
	for frag, err := range g.Stream(context.Background(), nil) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, frag)
	}
	if len(got) != 2 || gotErr == nil {
		t.Fatalf("got %v, err %v", got, gotErr)
	}
	if len(rec.ops) != 1 || rec.errs != 1 {
		t.Fatalf("expected one failed generate observation, got %v (%d errors)", rec.ops, rec.errs)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&StatusError{Provider: "anthropic", Code: 429, Body: "slow down"}, true},
		{fmt.Errorf("stream: %w", &StatusError{Code: 529}), true},
		{&StatusError{Code: 400, Body: "bad request"}, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}

	for attempt := range 10 {
		if d := Backoff(attempt); d < 500*time.Millisecond || d > 30*time.Second {
			t.Fatalf("Backoff(%d) = %v out of range", attempt, d)
		}
	}
	if got := Truncate("ñandú", 3); got != "ñan..." {
		t.Errorf("Truncate = %q", got)
	}
}
