package db

import (
	"context"
	"strings"
	"testing"
)

const poolTestPrefix = "db:pool_test"

func TestNewPool_InvalidURL(t *testing.T) {
	ctx := context.Background()
	pool, err := NewPool(ctx, "invalid://not-a-valid-database-url")
	if err == nil {
		if pool != nil {
			pool.Close()
		}
		t.Fatalf("%s - expected error for invalid URL", poolTestPrefix)
	}
	if pool != nil {
		t.Errorf("%s - expected nil pool on error", poolTestPrefix)
	}
}

func TestDescribeStatus(t *testing.T) {
	tests := []struct {
		tables int
		want   string
	}{
		{2, "applied"},
		{0, "not applied"},
		{1, "partial"},
	}
	for _, tt := range tests {
		got := describeStatus(tt.tables, 2, "migrations")
		if !strings.Contains(got, tt.want) || !strings.Contains(got, "2 migration files in migrations") {
			t.Errorf("%s - describeStatus(%d) = %q, want it to mention %q", poolTestPrefix, tt.tables, got, tt.want)
		}
	}
}

func TestClearStatement(t *testing.T) {
	if s := clearStatement(false); strings.Contains(s, "remote_agents") || !strings.Contains(s, "dispatch_log") {
		t.Errorf("%s - journal-only clear = %q", poolTestPrefix, s)
	}
	if s := clearStatement(true); !strings.Contains(s, "remote_agents") || !strings.Contains(s, "dispatch_log") {
		t.Errorf("%s - full clear = %q", poolTestPrefix, s)
	}
}
