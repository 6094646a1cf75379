package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	nd, err := NewNDJSONStore(filepath.Join(t.TempDir(), "cache.ndjson"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open ndjson store: %v", err)
	}
	lite, err := OpenSQLiteStore(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = nd.Close()
		_ = lite.Close()
	})
	return map[string]Store{
		"memory": NewMemoryStore(),
		"ndjson": nd,
		"sqlite": lite,
	}
}

func TestStores_GetReturnsNewestRecord(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Get(ctx, "k1"); err != nil || ok {
				t.Fatalf("Expected miss on empty store, got ok=%v err=%v", ok, err)
			}

			records := []Record{
				{Key: "k1", Arguments: "op-a", Value: json.RawMessage(`"first"`)},
				{Key: "k2", Arguments: "op-b", Value: json.RawMessage(`["x","y"]`)},
				{Key: "k1", Arguments: "op-a", Value: json.RawMessage(`"second"`)},
			}
			for _, rec := range records {
				if err := store.Append(ctx, rec); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			got, ok, err := store.Get(ctx, "k1")
			if err != nil || !ok {
				t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
			}
			if string(got) != `"second"` {
				t.Errorf("Expected newest value, got %s", got)
			}

			got, ok, _ = store.Get(ctx, "k2")
			if !ok || string(got) != `["x","y"]` {
				t.Errorf("Expected k2 value, got %s", got)
			}
		})
	}
}

func TestNDJSONStore_LayoutAndPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.ndjson")

	store, err := NewNDJSONStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := store.Append(ctx, Record{Key: Key("google", "q"), Arguments: Trace("google", "q"), Value: json.RawMessage(`"result"`)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	_ = store.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Line is not JSON: %v", err)
	}
	for _, field := range []string{"key", "arguments", "value"} {
		if _, ok := rec[field]; !ok {
			t.Errorf("Expected field %q in record", field)
		}
	}

	reopened, err := NewNDJSONStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	got, ok, err := reopened.Get(ctx, Key("google", "q"))
	if err != nil || !ok || string(got) != `"result"` {
		t.Errorf("Expected persisted value, got %s ok=%v err=%v", got, ok, err)
	}
}

func TestNDJSONStore_SkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.ndjson")
	content := `{"key":"k","arguments":"a","value":"old"}` + "\n" +
		`{"key":"k", this is not json` + "\n" +
		`{"key":"k","arguments":"a","value":"new"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to seed log: %v", err)
	}

	store, err := NewNDJSONStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != `"new"` {
		t.Errorf("Expected newest valid value, got %s", got)
	}
}

func TestNDJSONStore_Closed(t *testing.T) {
	store, err := NewNDJSONStore(filepath.Join(t.TempDir(), "c.ndjson"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	_ = store.Close()
	if err := store.Append(context.Background(), Record{Key: "k"}); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestNDJSONStore_AppendAfterPartialLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.ndjson")
	torn := `{"key":"aaa","arguments":"x","val`
	if err := os.WriteFile(path, []byte(torn), 0o600); err != nil {
		t.Fatalf("Failed to seed log: %v", err)
	}

	store, err := NewNDJSONStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := store.Append(ctx, Record{Key: "bbb", Arguments: "y", Value: json.RawMessage(`"v"`)}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.Append(ctx, Record{Key: "ccc", Arguments: "z", Value: json.RawMessage(`"w"`)}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for key, want := range map[string]string{"bbb": `"v"`, "ccc": `"w"`} {
		got, ok, err := store.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Expected hit for %s, got ok=%v err=%v", key, ok, err)
		}
		if string(got) != want {
			t.Errorf("Expected %s for %s, got %s", want, key, got)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 3 || lines[0] != torn {
		t.Errorf("Expected the partial line kept apart from two records, got %q", lines)
	}
}
