package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sqlshift/sqlshift/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScan_OnlySQLFiles(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.sql", "SELECT 1;")
	writeFile(t, dir, "sub/b.SQL", "SELECT 2;")
	writeFile(t, dir, "notes.txt", "not sql")
	writeFile(t, dir, "schema.json", "{}")

	n, err := Scan(s, "proj", dir, false)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Scan() = %d files, want 2", n)
	}

	assets, err := s.ListSourceAssets("proj", store.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 2 {
		t.Fatalf("len(assets) = %d, want 2", len(assets))
	}
	for _, a := range assets {
		if !a.Selected {
			t.Errorf("asset %s arrived deselected", a.FileName)
		}
	}
}

func TestScan_RescanUpdatesContent(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.sql", "SELECT 1;")

	if _, err := Scan(s, "proj", dir, false); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "a.sql", "SELECT 2;")
	if _, err := Scan(s, "proj", dir, false); err != nil {
		t.Fatal(err)
	}

	asset, err := s.GetSourceAsset("proj", path)
	if err != nil {
		t.Fatal(err)
	}
	if asset.SQLText != "SELECT 2;" {
		t.Errorf("SQLText = %q, want rescanned content", asset.SQLText)
	}
	if asset.ContentHash != store.HashSQL("SELECT 2;") {
		t.Errorf("ContentHash = %q, want hash of new content", asset.ContentHash)
	}
}

func TestScan_PreservesDeselectionUnlessOverridden(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.sql", "SELECT 1;")

	if _, err := Scan(s, "proj", dir, false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSelection("proj", path, false); err != nil {
		t.Fatal(err)
	}

	if _, err := Scan(s, "proj", dir, false); err != nil {
		t.Fatal(err)
	}
	asset, _ := s.GetSourceAsset("proj", path)
	if asset.Selected {
		t.Error("rescan overrode manual deselection")
	}

	if _, err := Scan(s, "proj", dir, true); err != nil {
		t.Fatal(err)
	}
	asset, _ = s.GetSourceAsset("proj", path)
	if !asset.Selected {
		t.Error("override scan did not reselect")
	}
}

func TestExport_WritesVerifiedOutputs(t *testing.T) {
	s := newTestStore(t)
	target := t.TempDir()

	save := func(name, sqlText string, verified bool) {
		t.Helper()
		err := s.SaveRenderedOutput(store.RenderedOutput{
			Project: "proj", FilePath: "/in/" + name, SQLText: sqlText,
			Status: store.StatusDone, Verified: verified,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	save("good.sql", "SELECT COALESCE(a,0);", true)
	save("draft.sql", "SELECT broken;", false)

	n, err := Export(s, "proj", target, true)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Export() = %d files, want 1", n)
	}

	data, err := os.ReadFile(filepath.Join(target, "good.sql"))
	if err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	if string(data) != "SELECT COALESCE(a,0);" {
		t.Errorf("exported content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(target, "draft.sql")); !os.IsNotExist(err) {
		t.Error("unverified output exported")
	}

	// Without the filter the draft is included too.
	n, err = Export(s, "proj", target, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("unfiltered Export() = %d files, want 2", n)
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	var mu sync.Mutex
	var emitted []string
	d := newDebouncer(30*time.Millisecond, func(path string) {
		mu.Lock()
		emitted = append(emitted, path)
		mu.Unlock()
	})
	defer d.stop()

	for i := 0; i < 10; i++ {
		d.feed("/in/a.sql")
	}
	d.feed("/in/b.sql")

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(emitted)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("emitted %d events, want 2", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDebouncer_StopSilences(t *testing.T) {
	var mu sync.Mutex
	count := 0
	d := newDebouncer(20*time.Millisecond, func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	d.feed("/in/a.sql")
	d.stop()
	d.feed("/in/b.sql")

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("emitted %d events after stop, want 0", count)
	}
}
