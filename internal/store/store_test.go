package store

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/secfeed/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	s := New(filepath.Join(dir, "feeds.json"), filepath.Join(dir, "images"), newTestLogger(&buf))
	if err := s.Init(); err != nil {
		t.Fatalf("Init() returned error: %v", err)
	}
	return s, dir
}

func sampleSnapshot() *model.Snapshot {
	updated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	author := "Brian Krebs"
	return &model.Snapshot{
		LastUpdated: &updated,
		Items: []model.FeedItem{{
			ID:       "krebs-on-security-1740830400000-0",
			Title:    "Breach",
			Link:     "https://krebsonsecurity.com/breach",
			PubDate:  updated,
			Source:   "Krebs on Security",
			Author:   &author,
			FullText: "text",
		}},
		FeedStatus: map[string]model.SourceStatus{
			"Krebs on Security": {Success: true, ItemCount: 1, LastFetch: updated},
		},
		FeedTimestamps: map[string]time.Time{"Krebs on Security": updated},
	}
}

func TestStore_LoadMissingReturnsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	snap := s.Load()
	if !snap.IsEmpty() || snap.LastUpdated != nil {
		t.Errorf("Load() = %+v, want empty snapshot", snap)
	}
	if snap.FeedStatus == nil || snap.Items == nil {
		t.Error("empty snapshot should have non-nil collections")
	}
}

func TestStore_LoadMalformedReturnsEmpty(t *testing.T) {
	s, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, "feeds.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if snap := s.Load(); !snap.IsEmpty() {
		t.Errorf("Load() = %+v, want empty snapshot", snap)
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	s, dir := newTestStore(t)
	want := sampleSnapshot()

	if err := s.Save(want); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	got := s.Load()
	if len(got.Items) != 1 || got.Items[0].ID != want.Items[0].ID {
		t.Fatalf("Load() items = %+v", got.Items)
	}
	if got.Items[0].Author == nil || *got.Items[0].Author != "Brian Krebs" {
		t.Errorf("Author = %v", got.Items[0].Author)
	}
	if got.LastUpdated == nil || !got.LastUpdated.Equal(*want.LastUpdated) {
		t.Errorf("LastUpdated = %v", got.LastUpdated)
	}
	if !got.FeedStatus["Krebs on Security"].Success {
		t.Error("FeedStatus not restored")
	}

	// 一時ファイルが残っていないこと
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != "feeds.json" && e.Name() != "images" {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(model.EmptySnapshot()); err != nil {
		t.Fatal(err)
	}
	if snap := s.Load(); !snap.IsEmpty() {
		t.Errorf("Load() after overwrite has %d items, want 0", len(snap.Items))
	}
}

func TestStore_StatsAndClear(t *testing.T) {
	s, dir := newTestStore(t)
	snap := sampleSnapshot()
	if err := s.Save(snap); err != nil {
		t.Fatal(err)
	}

	images := filepath.Join(dir, "images")
	os.WriteFile(filepath.Join(images, "a.jpg"), make([]byte, 100), 0o644)
	os.WriteFile(filepath.Join(images, "favicon-x.ico"), make([]byte, 50), 0o644)
	os.MkdirAll(filepath.Join(images, "nested"), 0o755)
	os.WriteFile(filepath.Join(images, "nested", "b.png"), make([]byte, 25), 0o644)

	st := s.Stats(snap)
	if st.AssetCount != 3 || st.TotalBytes != 175 {
		t.Errorf("Stats() assets = %d, bytes = %d, want 3, 175", st.AssetCount, st.TotalBytes)
	}
	if st.ItemCount != 1 || st.SourceCount != 1 {
		t.Errorf("Stats() items = %d, sources = %d", st.ItemCount, st.SourceCount)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "feeds.json")); !os.IsNotExist(err) {
		t.Error("snapshot file should be removed")
	}
	if info, err := os.Stat(images); err != nil || !info.IsDir() {
		t.Error("asset directory should be recreated")
	}

	st = s.Stats(model.EmptySnapshot())
	if st.AssetCount != 0 || st.TotalBytes != 0 || st.ItemCount != 0 || st.LastUpdated != nil {
		t.Errorf("Stats() after clear = %+v", st)
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Clear(); err != nil {
		t.Fatalf("first Clear() returned error: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear() returned error: %v", err)
	}
}

func TestStore_StatsMissingDirIsZero(t *testing.T) {
	var buf bytes.Buffer
	s := New(filepath.Join(t.TempDir(), "feeds.json"), "/nonexistent/secfeed/images", newTestLogger(&buf))

	st := s.Stats(nil)
	if st.AssetCount != 0 || st.TotalBytes != 0 {
		t.Errorf("Stats() = %+v, want zero", st)
	}
}
