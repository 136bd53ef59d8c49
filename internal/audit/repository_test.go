package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/grote-beer/MySensors/internal/infrastructure/config"
	"github.com/grote-beer/MySensors/internal/infrastructure/database"
	"github.com/grote-beer/MySensors/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := NewSQLiteRepository(db.DB)
	clock := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func nodeID(id uint8) *uint8 { return &id }

func TestRecord_FillsDefaults(t *testing.T) {
	repo := testRepo(t)

	e := &Entry{Action: ActionNodeForget, NodeID: nodeID(7), RequestID: "req-1"}
	if err := repo.Record(context.Background(), e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(e.ID, "aud-") {
		t.Errorf("ID = %q, want aud- prefix", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestRecord_RequiresAction(t *testing.T) {
	repo := testRepo(t)
	if err := repo.Record(context.Background(), &Entry{}); err == nil {
		t.Error("Record() without action: expected error")
	}
}

func TestList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	entries := []*Entry{
		{Action: ActionNodeForget, NodeID: nodeID(3)},
		{Action: ActionMessageInject, NodeID: nodeID(4), Details: map[string]any{"message": "4;1;1;0;0;19.5"}},
		{Action: ActionMessageInject, NodeID: nodeID(3), RemoteAddr: "10.0.0.2:5000"},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	page, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 3 || len(page.Entries) != 3 {
		t.Fatalf("total = %d, entries = %d, want 3", page.Total, len(page.Entries))
	}
	if page.Entries[0].ID != entries[2].ID {
		t.Errorf("first entry = %s, want most recent %s", page.Entries[0].ID, entries[2].ID)
	}
	if page.Limit != defaultLimit {
		t.Errorf("limit = %d, want %d", page.Limit, defaultLimit)
	}

	page, err = repo.List(ctx, Filter{Action: ActionMessageInject})
	if err != nil {
		t.Fatalf("List(action) error = %v", err)
	}
	if page.Total != 2 {
		t.Errorf("inject total = %d, want 2", page.Total)
	}

	page, err = repo.List(ctx, Filter{NodeID: nodeID(4)})
	if err != nil {
		t.Fatalf("List(node) error = %v", err)
	}
	if page.Total != 1 || page.Entries[0].Details["message"] != "4;1;1;0;0;19.5" {
		t.Errorf("node 4 page = %+v", page)
	}

	page, err = repo.List(ctx, Filter{Limit: 1000, Offset: 2})
	if err != nil {
		t.Fatalf("List(paged) error = %v", err)
	}
	if page.Limit != maxLimit || len(page.Entries) != 1 {
		t.Errorf("limit = %d, entries = %d, want %d and 1", page.Limit, len(page.Entries), maxLimit)
	}
}
