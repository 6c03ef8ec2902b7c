//go:build integration

package cache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/testutil/containers"
	"github.com/cloudsentinel/riskguard/pkg/cache"
)

func TestGetOrLoadWarmsAndReusesRealRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(rc.Client, logger)
	orgID := uuid.New()

	calls := 0
	loader := func(ctx context.Context) (map[string]int, error) {
		calls++
		return map[string]int{"a": 1}, nil
	}

	ctx := context.Background()
	first, err := cache.GetOrLoad(ctx, c, "profiles", orgID, loader)
	if err != nil {
		t.Fatalf("GetOrLoad (cold): %v", err)
	}
	if calls != 1 {
		t.Fatalf("loader called %d times after cold read, want 1", calls)
	}

	second, err := cache.GetOrLoad(ctx, c, "profiles", orgID, loader)
	if err != nil {
		t.Fatalf("GetOrLoad (warm): %v", err)
	}
	if calls != 1 {
		t.Errorf("loader called %d times after warm read, want 1 (should have hit redis)", calls)
	}
	if second["a"] != first["a"] {
		t.Errorf("warm value = %v, want %v", second, first)
	}

	c.Invalidate(ctx, "profiles", orgID)
	if _, err := cache.GetOrLoad(ctx, c, "profiles", orgID, loader); err != nil {
		t.Fatalf("GetOrLoad (post-invalidate): %v", err)
	}
	if calls != 2 {
		t.Errorf("loader called %d times after invalidate, want 2", calls)
	}
}
