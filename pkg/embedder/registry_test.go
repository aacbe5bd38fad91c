package embedder

import (
	"context"
	"testing"
)

func TestRegistryGetCachesInstance(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	config := Config{Source: SourceFastEmbed}

	e1, err := r.Get(ctx, "tenant-a", "default", config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e2, err := r.Get(ctx, "tenant-a", "default", config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e1 != e2 {
		t.Fatal("expected cached instance to be reused")
	}
}

func TestRegistryGetIsolatesTenants(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	config := Config{Source: SourceFastEmbed}

	a, err := r.Get(ctx, "tenant-a", "default", config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := r.Get(ctx, "tenant-b", "default", config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct instances per tenant")
	}
}

func TestRegistryInvalidateForcesRebuild(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	config := Config{Source: SourceFastEmbed}

	e1, err := r.Get(ctx, "tenant-a", "default", config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Invalidate("tenant-a")
	e2, err := r.Get(ctx, "tenant-a", "default", config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e1 == e2 {
		t.Fatal("expected invalidation to force a new instance")
	}
}

func TestRegistryActualDimensions(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	if _, err := r.Get(ctx, "tenant-a", "default", Config{Source: SourceFastEmbed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dims := r.ActualDimensions("tenant-a")
	if dims["default"] != 384 {
		t.Fatalf("expected default model dims 384, got %d", dims["default"])
	}
}
