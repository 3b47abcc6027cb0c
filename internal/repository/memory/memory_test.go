package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
)

func TestAppLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	app := &domain.App{ID: "app-1", Name: "demo", Status: domain.AppStatusIdle, CreatedAt: time.Now().UTC()}
	if err := store.CreateApp(ctx, app); err != nil {
		t.Fatalf("CreateApp returned error: %v", err)
	}

	if err := store.UpdateAppStatus(ctx, "app-1", domain.AppStatusBuilding); err != nil {
		t.Fatalf("UpdateAppStatus returned error: %v", err)
	}
	got, err := store.GetAppByID(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetAppByID returned error: %v", err)
	}
	if got.Status != domain.AppStatusBuilding {
		t.Fatalf("expected building status, got %s", got.Status)
	}

	port := 49153
	if err := store.SetAppEndpoint(ctx, "app-1", &port, "http://localhost:49153", domain.AppStatusRunning); err != nil {
		t.Fatalf("SetAppEndpoint returned error: %v", err)
	}
	got, _ = store.GetAppByID(ctx, "app-1")
	if got.Port == nil || *got.Port != 49153 || got.Status != domain.AppStatusRunning {
		t.Fatalf("endpoint not recorded: %+v", got)
	}

	if err := store.DeleteApp(ctx, "app-1"); err != nil {
		t.Fatalf("DeleteApp returned error: %v", err)
	}
	if _, err := store.GetAppByID(ctx, "app-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateStatusMissingApp(t *testing.T) {
	store := New()
	if err := store.UpdateAppStatus(context.Background(), "nope", domain.AppStatusRunning); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestDeploymentOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"dep-1", "dep-2", "dep-3"} {
		dep := &domain.Deployment{ID: id, AppID: "app-1", Status: domain.DeploymentStatusPending, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateDeployment(ctx, dep); err != nil {
			t.Fatalf("CreateDeployment returned error: %v", err)
		}
	}

	latest, err := store.GetLatestDeployment(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetLatestDeployment returned error: %v", err)
	}
	if latest.ID != "dep-3" {
		t.Fatalf("expected dep-3 as latest, got %s", latest.ID)
	}

	deps, err := store.ListDeploymentsByApp(ctx, "app-1", 2)
	if err != nil {
		t.Fatalf("ListDeploymentsByApp returned error: %v", err)
	}
	if len(deps) != 2 || deps[0].ID != "dep-3" {
		t.Fatalf("unexpected deployment page: %+v", deps)
	}
}

func TestSecretScoping(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateSecret(ctx, &domain.Secret{ID: "s-1", AppID: "app-1", Key: "DB_URL", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateSecret returned error: %v", err)
	}
	if err := store.DeleteSecret(ctx, "other-app", "s-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting with wrong app scope, got %v", err)
	}
	if err := store.DeleteSecret(ctx, "app-1", "s-1"); err != nil {
		t.Fatalf("DeleteSecret returned error: %v", err)
	}
}

func TestMetricsSampleLimit(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		sample := domain.MetricsSample{AppID: "app-1", CPUPercent: float64(i), Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := store.InsertSample(ctx, sample); err != nil {
			t.Fatalf("InsertSample returned error: %v", err)
		}
	}
	samples, err := store.ListSamplesByApp(ctx, "app-1", 3)
	if err != nil {
		t.Fatalf("ListSamplesByApp returned error: %v", err)
	}
	if len(samples) != 3 || samples[0].CPUPercent != 4 {
		t.Fatalf("expected 3 newest samples, got %+v", samples)
	}
}
