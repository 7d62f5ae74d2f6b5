package hashembed

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedder_DeterministicAndNormalized(t *testing.T) {
	e, err := New(64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, _ := e.EmbedOne(context.Background(), "Replace the air filter")
	b, _ := e.EmbedOne(context.Background(), "Replace the air filter")
	if len(a) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e, _ := New(256)
	ctx := context.Background()
	vecs, err := e.EmbedMany(ctx, []string{
		"How do I reset the thermostat?",
		"Resetting the thermostat: hold the reset button for five seconds.",
		"The warranty covers manufacturing defects for two years.",
	})
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	related := cosine(vecs[0], vecs[1])
	unrelated := cosine(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("expected related (%f) > unrelated (%f)", related, unrelated)
	}
}

func TestEmbedder_EmptyTextIsUnitVector(t *testing.T) {
	e, _ := New(8)
	v, _ := e.EmbedOne(context.Background(), "  ...  ")
	if v[0] != 1 {
		t.Errorf("expected fallback unit vector, got %v", v)
	}
}

func TestEmbedder_Cancelled(t *testing.T) {
	e, _ := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedMany(ctx, []string{"a"}); err == nil {
		t.Error("expected context error")
	}
}

func TestNew_RejectsBadDimension(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("expected error for zero dimension")
	}
}
