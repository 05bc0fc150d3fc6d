//go:build integration

package pypi

import (
	"context"
	"testing"
	"time"

	"github.com/matzehuels/stacklock/pkg/cache"
)

func TestFetchProject_Integration(t *testing.T) {
	client := NewClient(cache.NewMemoryCache(64), "", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tests := []struct {
		name    string
		pkg     string
		wantErr bool
	}{
		{"requests", "requests", false},
		{"flask", "flask", false},
		{"nonexistent", "this-package-should-not-exist-12345", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := client.FetchProject(ctx, tt.pkg, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("FetchProject(%q) error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(p.Releases) == 0 {
				t.Error("expected at least one release")
			}
		})
	}
}

func TestFetchMetadata_Integration(t *testing.T) {
	client := NewClient(cache.NewMemoryCache(64), "", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	md, err := client.FetchMetadata(ctx, "requests", "2.31.0", false)
	if err != nil {
		t.Fatalf("FetchMetadata(requests) error: %v", err)
	}
	if len(md.RequiresDist) == 0 {
		t.Error("requests should have dependencies")
	}
}
