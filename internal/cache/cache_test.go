package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebovdev/soundmix/internal/sound"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"simple id", "rain"},
		{"id with slash", "nature/rain"},
		{"empty string", ""},
		{"unicode", "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := hashKey(tt.key)

			if len(result) != 32 {
				t.Errorf("hashKey(%q) length = %d, want 32", tt.key, len(result))
			}

			for _, c := range result {
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					t.Errorf("hashKey(%q) contains non-hex character: %c", tt.key, c)
				}
			}
		})
	}

	if hashKey("rain") != hashKey("rain") {
		t.Error("hashKey is not consistent")
	}
	if hashKey("rain") == hashKey("wind") {
		t.Error("different keys produced the same hash")
	}
}

func testSound(id string) *sound.Sound {
	return &sound.Sound{
		ID:           id,
		Name:         "Rain",
		Group:        "Nature",
		IsContiguous: true,
		Segments: []sound.Segment{
			{Name: "light", BasePath: id, IsFree: true},
			{Name: "light-heavy", BasePath: id, IsFree: true, IsBridge: true, From: "light", To: "heavy"},
		},
	}
}

func TestSaveAndGetSound(t *testing.T) {
	cache := &Cache{baseDir: t.TempDir(), expiry: DefaultExpiry}

	if err := cache.SaveSound(testSound("rain")); err != nil {
		t.Fatalf("SaveSound() error = %v", err)
	}

	got := cache.GetSound("rain")
	if got == nil {
		t.Fatal("GetSound() returned nil, expected manifest")
	}
	if got.Name != "Rain" || !got.IsContiguous || len(got.Segments) != 2 {
		t.Errorf("GetSound() = %+v", got)
	}
	if b := got.Segments[1]; !b.IsBridge || b.From != "light" || b.To != "heavy" {
		t.Errorf("bridge segment = %+v", b)
	}
}

func TestGetSoundNonExistent(t *testing.T) {
	cache := &Cache{baseDir: t.TempDir(), expiry: DefaultExpiry}

	if cache.GetSound("missing") != nil {
		t.Error("GetSound() for a missing sound should return nil")
	}
}

func TestGetSoundCorrupt(t *testing.T) {
	tmpDir := t.TempDir()
	cache := &Cache{baseDir: tmpDir, expiry: DefaultExpiry}

	path := cache.manifestPath("rain")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if cache.GetSound("rain") != nil {
		t.Error("GetSound() should ignore a corrupt cache file")
	}
}

func TestGetSoundExpired(t *testing.T) {
	cache := &Cache{baseDir: t.TempDir(), expiry: time.Millisecond}

	if err := cache.SaveSound(testSound("rain")); err != nil {
		t.Fatalf("SaveSound() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if cache.GetSound("rain") != nil {
		t.Error("GetSound() for an expired manifest should return nil")
	}
	if _, err := os.Stat(cache.manifestPath("rain")); !os.IsNotExist(err) {
		t.Error("expired manifest should have been deleted")
	}
}

func TestSaveAndGetLibrary(t *testing.T) {
	cache := &Cache{baseDir: t.TempDir(), expiry: DefaultExpiry}

	if cache.GetLibrary() != nil {
		t.Error("GetLibrary() on an empty cache should return nil")
	}

	sounds := []sound.Info{
		{ID: "rain", Name: "Rain", Group: "Nature"},
		{ID: "cafe", Name: "Cafe", Group: "City"},
	}
	if err := cache.SaveLibrary(sounds); err != nil {
		t.Fatalf("SaveLibrary() error = %v", err)
	}

	got := cache.GetLibrary()
	if len(got) != 2 || got[0] != sounds[0] || got[1] != sounds[1] {
		t.Errorf("GetLibrary() = %v, want %v", got, sounds)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	cache := &Cache{baseDir: tmpDir, expiry: DefaultExpiry}

	if err := cache.SaveSound(testSound("rain")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(tmpDir, ManifestSubdir))
	if err != nil {
		t.Fatalf("Failed to read manifest directory: %v", err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".json" {
		t.Errorf("manifest directory entries = %v, want a single .json file", entries)
	}
}

func TestCleanExpired(t *testing.T) {
	tmpDir := t.TempDir()
	cache := &Cache{baseDir: tmpDir, expiry: time.Millisecond}

	for _, id := range []string{"rain", "wind", "fire"} {
		if err := cache.SaveSound(testSound(id)); err != nil {
			t.Fatalf("SaveSound(%q) error = %v", id, err)
		}
	}

	time.Sleep(10 * time.Millisecond)

	if err := cache.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(tmpDir, ManifestSubdir))
	if err != nil {
		t.Fatalf("Failed to read manifest directory: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("CleanExpired() left %d files, want 0", len(entries))
	}
}

func TestCleanExpiredKeepsValidFiles(t *testing.T) {
	cache := &Cache{baseDir: t.TempDir(), expiry: 24 * time.Hour}

	if err := cache.SaveSound(testSound("rain")); err != nil {
		t.Fatalf("SaveSound() error = %v", err)
	}

	if err := cache.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	if cache.GetSound("rain") == nil {
		t.Error("CleanExpired() should not remove valid manifests")
	}
}

func TestCleanExpiredNonExistentDirectory(t *testing.T) {
	cache := &Cache{baseDir: t.TempDir(), expiry: DefaultExpiry}

	if err := cache.CleanExpired(); err != nil {
		t.Errorf("CleanExpired() should not error on non-existent directory, got %v", err)
	}
}

func TestGetCacheDir(t *testing.T) {
	dir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("GetCacheDir() error = %v", err)
	}

	if !filepath.IsAbs(dir) {
		t.Errorf("GetCacheDir() = %q, want absolute path", dir)
	}

	if filepath.Base(dir) != AppName {
		t.Errorf("GetCacheDir() directory name = %q, want %q", filepath.Base(dir), AppName)
	}
}

func TestNewCache(t *testing.T) {
	cache, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	if cache.baseDir == "" {
		t.Error("NewCache() cache.baseDir is empty")
	}
	if cache.expiry != DefaultExpiry {
		t.Errorf("NewCache() cache.expiry = %v, want %v", cache.expiry, DefaultExpiry)
	}
}
