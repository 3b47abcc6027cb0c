package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository/memory"
)

const testMasterKey = "unit-test-master-key"

func newTestService(t *testing.T) (Service, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := &domain.App{ID: "app-1", Name: "demo", RepoURL: "https://example.com/demo.git", Status: domain.AppStatusIdle}
	if err := store.CreateApp(context.Background(), app); err != nil {
		t.Fatalf("seed app: %v", err)
	}
	return New(store, store, testMasterKey, logger), store, app.ID
}

func TestCreateEncryptsAtRest(t *testing.T) {
	svc, store, appID := newTestService(t)

	secret, err := svc.Create(context.Background(), appID, "API_KEY", "s3cret-value")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if secret.EncryptedValue == "s3cret-value" || secret.EncryptedValue == "" {
		t.Fatalf("value stored in the clear: %q", secret.EncryptedValue)
	}

	stored, err := store.ListSecretsByApp(context.Background(), appID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].EncryptedValue == "s3cret-value" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _, appID := newTestService(t)

	if _, err := svc.Create(context.Background(), appID, "  ", "value"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Create(context.Background(), appID, "API_KEY", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "missing", "API_KEY", "value"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevealRoundTrips(t *testing.T) {
	svc, _, appID := newTestService(t)

	if _, err := svc.Create(context.Background(), appID, "API_KEY", "first"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), appID, "DB_URL", "second"); err != nil {
		t.Fatalf("create: %v", err)
	}

	values, err := svc.Reveal(context.Background(), appID)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if values["API_KEY"] != "first" || values["DB_URL"] != "second" {
		t.Fatalf("values = %v", values)
	}
}

func TestDeleteRemovesSecret(t *testing.T) {
	svc, store, appID := newTestService(t)

	secret, err := svc.Create(context.Background(), appID, "API_KEY", "value")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), appID, secret.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stored, err := store.ListSecretsByApp(context.Background(), appID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("secrets = %d, want 0", len(stored))
	}

	if err := svc.Delete(context.Background(), appID, secret.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}
