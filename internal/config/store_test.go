package config

import (
	"sync"
	"testing"
)

const storeDocOne = `
calendars:
  alpha:
    sources:
      - url: https://example.com/alpha.ics
`

const storeDocTwo = `
calendars:
  alpha:
    sources:
      - url: https://example.com/alpha.ics
  beta:
    sources:
      - url: https://example.com/beta.ics
`

func TestStoreSnapshotReturnsLiveConfig(t *testing.T) {
	cfg := mustParse(t, storeDocOne, FormatYAML)
	store := NewStore(cfg, "/etc/icalmerge/config.yaml")

	if got := store.Snapshot(); got != cfg {
		t.Fatal("snapshot: got a different pointer than the installed config")
	}
	if got := store.Path(); got != "/etc/icalmerge/config.yaml" {
		t.Fatalf("path: got %q", got)
	}
}

func TestStoreTryReloadSwapsOnSuccess(t *testing.T) {
	store := NewStore(mustParse(t, storeDocOne, FormatYAML), "config.yaml")

	if err := store.TryReload([]byte(storeDocTwo), FormatYAML); err != nil {
		t.Fatalf("reload: %v", err)
	}

	got := store.Snapshot()
	if len(got.Calendars) != 2 {
		t.Fatalf("calendars after reload: got %d, want 2", len(got.Calendars))
	}
}

func TestStoreTryReloadKeepsOldOnFailure(t *testing.T) {
	old := mustParse(t, storeDocOne, FormatYAML)
	store := NewStore(old, "config.yaml")

	// A cycle fails validation; the live config must stay untouched.
	bad := `
calendars:
  a:
    sources:
      - calendar: a
`
	if err := store.TryReload([]byte(bad), FormatYAML); err == nil {
		t.Fatal("invalid candidate: got nil error")
	}

	if got := store.Snapshot(); got != old {
		t.Fatal("snapshot changed after a failed reload")
	}
}

func TestStoreSnapshotsDuringReloads(t *testing.T) {
	store := NewStore(mustParse(t, storeDocOne, FormatYAML), "config.yaml")

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				cfg := store.Snapshot()
				if cfg == nil || len(cfg.Calendars) == 0 {
					t.Error("snapshot: got an empty config")
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		doc := storeDocOne
		if i%2 == 0 {
			doc = storeDocTwo
		}
		if err := store.TryReload([]byte(doc), FormatYAML); err != nil {
			t.Fatalf("reload %d: %v", i, err)
		}
	}
	wg.Wait()
}
