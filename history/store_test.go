package history

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)

	t.Run("load on empty store returns empty list", func(t *testing.T) {
		store := NewStore(NewMemoryBackend())

		records, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if records == nil || len(records) != 0 {
			t.Errorf("expected empty non-nil list, got: %#v", records)
		}
	})

	t.Run("save then load round-trips records", func(t *testing.T) {
		store := NewStore(NewMemoryBackend())
		records := []Record{
			{ID: 3, AgentID: "irpj", AgentName: "Agente IRPJ", Timestamp: "2024-03-15T12:00:00.000Z",
				Messages: []Message{{Role: RoleUser, Content: "a"}, {Role: RoleBot, Content: "b", Timestamp: "2024-03-15T12:00:01.000Z"}},
				Preview:  "a"},
			{ID: 1, AgentID: "icms-sp", AgentName: "Agente ICMS SP", Timestamp: "2024-03-01T08:30:00.000Z",
				Messages: []Message{{Role: RoleUser, Content: "c"}}, Preview: "c"},
		}

		if err := store.SaveAll(ctx, records); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		loaded, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if !reflect.DeepEqual(loaded, records) {
			t.Errorf("round trip mismatch:\n got: %#v\nwant: %#v", loaded, records)
		}
	})

	t.Run("append prepends and builds preview", func(t *testing.T) {
		store := NewStore(NewMemoryBackend(), WithClock(fixedClock(now)))

		first, err := store.Append(ctx, "icms-sp", "Agente ICMS SP", []Message{{Role: RoleUser, Content: "primeira"}})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		second, err := store.Append(ctx, "irpj", "Agente IRPJ", []Message{{Role: RoleUser, Content: "Qual a alíquota?"}})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}

		records, _ := store.Load(ctx)
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got: %d", len(records))
		}
		if records[0].ID != second || records[1].ID != first {
			t.Errorf("expected newest first, got ids %d, %d", records[0].ID, records[1].ID)
		}
		if records[0].Preview != "Qual a alíquota?" {
			t.Errorf("unexpected preview: %q", records[0].Preview)
		}
		if records[0].Timestamp != "2024-03-15T13:00:00.000Z" {
			t.Errorf("unexpected timestamp: %s", records[0].Timestamp)
		}
	})

	t.Run("append ids are unique under a frozen clock", func(t *testing.T) {
		store := NewStore(NewMemoryBackend(), WithClock(fixedClock(now)))

		seen := make(map[int64]bool)
		for i := 0; i < 50; i++ {
			id, err := store.Append(ctx, "irpj", "Agente IRPJ", []Message{{Role: RoleUser, Content: "x"}})
			if err != nil {
				t.Fatalf("append failed: %v", err)
			}
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
		if !seen[now.UnixMilli()] {
			t.Error("expected the first id to equal the clock reading in ms")
		}
	})

	t.Run("append ids stay above ids already stored", func(t *testing.T) {
		backend := NewMemoryBackend()
		seeded := NewStore(backend)
		future := now.Add(time.Hour).UnixMilli()
		if err := seeded.SaveAll(ctx, []Record{{ID: future, AgentID: "irpj"}}); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		store := NewStore(backend, WithClock(fixedClock(now)))
		id, err := store.Append(ctx, "irpj", "Agente IRPJ", nil)
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if id != future+1 {
			t.Errorf("expected id %d, got %d", future+1, id)
		}
	})

	t.Run("preview is truncated and falls back when empty", func(t *testing.T) {
		long := make([]rune, 200)
		for i := range long {
			long[i] = 'ç'
		}
		if got := buildPreview([]Message{{Content: string(long)}}); len([]rune(got)) != PreviewLength {
			t.Errorf("expected %d runes, got %d", PreviewLength, len([]rune(got)))
		}
		if got := buildPreview(nil); got != EmptyPreview {
			t.Errorf("expected fallback preview, got: %q", got)
		}
	})

	t.Run("remove deletes exactly one record", func(t *testing.T) {
		store := NewStore(NewMemoryBackend())
		records := []Record{{ID: 4, AgentID: "a"}, {ID: 3, AgentID: "b"}, {ID: 2, AgentID: "c"}, {ID: 1, AgentID: "d"}}
		_ = store.SaveAll(ctx, records)

		if err := store.Remove(ctx, 3); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		loaded, _ := store.Load(ctx)
		want := []Record{records[0], records[2], records[3]}
		if !reflect.DeepEqual(loaded, want) {
			t.Errorf("unexpected records after remove: %#v", loaded)
		}
	})

	t.Run("remove unknown id reports not found", func(t *testing.T) {
		store := NewStore(NewMemoryBackend())
		_ = store.SaveAll(ctx, []Record{{ID: 1}})

		if err := store.Remove(ctx, 99); !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got: %v", err)
		}
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		store := NewStore(NewMemoryBackend())
		_ = store.SaveAll(ctx, []Record{{ID: 1}})

		for i := 0; i < 2; i++ {
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear %d failed: %v", i, err)
			}
			records, err := store.Load(ctx)
			if err != nil || len(records) != 0 {
				t.Fatalf("expected empty store after clear %d, got %v (%v)", i, records, err)
			}
		}
	})

	t.Run("corrupt blob is a hard error", func(t *testing.T) {
		backend := NewMemoryBackend()
		_ = backend.Put(ctx, DefaultKey, []byte("{not json"))
		store := NewStore(backend)

		if _, err := store.Load(ctx); !errors.Is(err, ErrCorruptStore) {
			t.Errorf("expected ErrCorruptStore, got: %v", err)
		}
		if _, err := store.Append(ctx, "irpj", "Agente IRPJ", nil); !errors.Is(err, ErrCorruptStore) {
			t.Errorf("expected append to refuse a corrupt store, got: %v", err)
		}
	})

	t.Run("custom key isolates stores", func(t *testing.T) {
		backend := NewMemoryBackend()
		a := NewStore(backend)
		b := NewStore(backend, WithKey("other"))
		_ = a.SaveAll(ctx, []Record{{ID: 1}})

		records, _ := b.Load(ctx)
		if len(records) != 0 {
			t.Errorf("expected other key to be empty, got %d records", len(records))
		}
	})
}

func TestExampleScenario(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	store := NewStore(NewMemoryBackend(), WithClock(fixedClock(now)))

	id, err := store.Append(ctx, "irpj", "Agente IRPJ", []Message{{Role: RoleUser, Content: "Qual a alíquota?"}})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	records, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != id || records[0].Preview != "Qual a alíquota?" {
		t.Fatalf("unexpected records: %#v", records)
	}

	if got := Filter(records, Criteria{AgentID: "irpj"}, now); len(got) != 1 {
		t.Errorf("expected irpj filter to return 1 record, got %d", len(got))
	}
	if got := Filter(records, Criteria{AgentID: "icms-sp"}, now); len(got) != 0 {
		t.Errorf("expected icms-sp filter to return nothing, got %d", len(got))
	}
}
