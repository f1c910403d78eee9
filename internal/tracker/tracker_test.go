package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

func criticalDetails() Details {
	return Details{
		Title:    "checkout - Service Down",
		Severity: models.SeverityCritical,
		Health:   models.HealthResult{Service: "checkout", Error: "connection refused"},
	}
}

func TestCreateDeduplicatesOpenIncidents(t *testing.T) {
	tr := New(10)

	first := tr.Create("checkout", criticalDetails())
	if first == nil {
		t.Fatal("expected first create to open an incident")
	}

	second := tr.Create("checkout", criticalDetails())
	if second != nil {
		t.Fatalf("expected duplicate create to return nil, got %+v", second)
	}
	if tr.OpenCount() != 1 {
		t.Fatalf("expected exactly one open incident, got %d", tr.OpenCount())
	}
}

func TestResolveThenCreateProducesDistinctIncidents(t *testing.T) {
	tr := New(10)

	first := tr.Create("checkout", criticalDetails())
	resolved := tr.Resolve("checkout")
	if resolved == nil {
		t.Fatal("expected resolve to close the incident")
	}
	if resolved.ID != first.ID {
		t.Fatalf("resolve returned a different incident: %s vs %s", resolved.ID, first.ID)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("expected a resolution timestamp")
	}

	second := tr.Create("checkout", criticalDetails())
	if second == nil {
		t.Fatal("expected a new incident after resolution")
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh incident id per cycle")
	}

	history := tr.Resolved()
	if len(history) != 1 || history[0].ID != first.ID {
		t.Fatalf("expected the first incident retained in history, got %+v", history)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	tr := New(10)

	if got := tr.Resolve("never-created"); got != nil {
		t.Fatalf("expected nil for unknown key, got %+v", got)
	}

	tr.Create("checkout", criticalDetails())
	tr.Resolve("checkout")

	if got := tr.Resolve("checkout"); got != nil {
		t.Fatalf("expected nil for already-resolved key, got %+v", got)
	}
	if len(tr.Resolved()) != 1 {
		t.Fatalf("state changed by repeated resolve: %+v", tr.Resolved())
	}
}

func TestResolveStampsDuration(t *testing.T) {
	tr := New(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }

	tr.Create("checkout", criticalDetails())

	tr.now = func() time.Time { return base.Add(5 * time.Minute) }
	resolved := tr.Resolve("checkout")
	if resolved == nil {
		t.Fatal("expected a resolved incident")
	}
	if resolved.Duration != 5*time.Minute {
		t.Fatalf("unexpected duration: %s", resolved.Duration)
	}
}

func TestResolvedRetentionIsBounded(t *testing.T) {
	tr := New(3)

	for i := 0; i < 5; i++ {
		service := fmt.Sprintf("svc-%d", i)
		tr.Create(service, criticalDetails())
		tr.Resolve(service)
	}

	history := tr.Resolved()
	if len(history) != 3 {
		t.Fatalf("expected retention cap of 3, got %d", len(history))
	}
	if history[0].Service != "svc-2" {
		t.Fatalf("expected oldest entries evicted, got %+v", history)
	}
}

func TestGetFindsOpenAndResolvedIncidents(t *testing.T) {
	tr := New(10)

	open := tr.Create("checkout", criticalDetails())
	if _, ok := tr.Get(open.ID); !ok {
		t.Fatal("expected to find the open incident by id")
	}

	tr.Resolve("checkout")
	found, ok := tr.Get(open.ID)
	if !ok {
		t.Fatal("expected to find the resolved incident by id")
	}
	if found.ResolvedAt == nil {
		t.Fatal("expected the resolved snapshot")
	}

	if _, ok := tr.Get("not-an-id"); ok {
		t.Fatal("expected unknown id to report not found")
	}
}
