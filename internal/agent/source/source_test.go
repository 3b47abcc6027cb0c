package source

import (
	"context"
	"testing"
)

func TestFetchValidatesArguments(t *testing.T) {
	f := NewFetcher()

	if err := f.Fetch(context.Background(), "", t.TempDir()); err == nil {
		t.Fatal("expected error for empty repo URL")
	}
	if err := f.Fetch(context.Background(), "https://example.com/demo.git", ""); err == nil {
		t.Fatal("expected error for empty destination")
	}
}

func TestFetchUnreachableRepo(t *testing.T) {
	if testing.Short() {
		t.Skip("network access required")
	}
	f := NewFetcher()

	err := f.Fetch(context.Background(), "file:///nonexistent/repo.git", t.TempDir())
	if err == nil {
		t.Fatal("expected error for unreachable repository")
	}
}
