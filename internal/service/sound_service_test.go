package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebovdev/soundmix/internal/api"
	"github.com/glebovdev/soundmix/internal/cache"
	"github.com/glebovdev/soundmix/internal/sound"
)

var testLibrary = []sound.Info{
	{ID: "waves", Name: "Waves", Group: "Nature"},
	{ID: "cafe", Name: "Cafe", Group: "City"},
	{ID: "rain", Name: "Rain", Group: "Nature"},
}

type libraryServer struct {
	server        *httptest.Server
	down          atomic.Bool
	manifestCalls atomic.Int32
}

func newLibraryServer(t *testing.T) *libraryServer {
	t.Helper()
	ls := &libraryServer{}
	ls.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ls.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/library/index.json":
			_ = json.NewEncoder(w).Encode(map[string]any{"sounds": testLibrary})
		case "/library/rain/manifest.json":
			ls.manifestCalls.Add(1)
			_ = json.NewEncoder(w).Encode(sound.Sound{
				ID:       "rain",
				Name:     "Rain",
				Segments: []sound.Segment{{Name: "rain_1", IsFree: true}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ls.server.Close)
	return ls
}

func (ls *libraryServer) service(metaCache *cache.Cache) *SoundService {
	return &SoundService{
		apiClient: api.NewLibraryClient(ls.server.URL),
		metaCache: metaCache,
		manifests: make(map[string]*sound.Sound),
	}
}

func TestGetSoundsSorted(t *testing.T) {
	ls := newLibraryServer(t)
	svc := ls.service(nil)

	sounds, err := svc.GetSounds(context.Background())
	if err != nil {
		t.Fatalf("GetSounds() error = %v", err)
	}

	want := []string{"cafe", "rain", "waves"}
	if len(sounds) != len(want) {
		t.Fatalf("GetSounds() returned %d sounds, want %d", len(sounds), len(want))
	}
	for i, id := range want {
		if sounds[i].ID != id {
			t.Errorf("sounds[%d].ID = %q, want %q", i, sounds[i].ID, id)
		}
	}
	if svc.SoundCount() != 3 {
		t.Errorf("SoundCount() = %d, want 3", svc.SoundCount())
	}
}

func TestGetSoundsFallsBackToCache(t *testing.T) {
	ls := newLibraryServer(t)
	metaCache := cache.NewCacheAt(t.TempDir())
	svc := ls.service(metaCache)

	if _, err := svc.GetSounds(context.Background()); err != nil {
		t.Fatalf("GetSounds() error = %v", err)
	}

	ls.down.Store(true)
	offline := ls.service(metaCache)
	sounds, err := offline.GetSounds(context.Background())
	if err != nil {
		t.Fatalf("GetSounds() with library down error = %v", err)
	}
	if len(sounds) != len(testLibrary) {
		t.Errorf("GetSounds() returned %d sounds from cache, want %d", len(sounds), len(testLibrary))
	}
}

func TestGetSoundsErrorWithoutCache(t *testing.T) {
	ls := newLibraryServer(t)
	ls.down.Store(true)
	svc := ls.service(cache.NewCacheAt(t.TempDir()))

	if _, err := svc.GetSounds(context.Background()); err == nil {
		t.Error("GetSounds() expected error with library down and empty cache")
	}
}

func TestLookups(t *testing.T) {
	svc := &SoundService{sounds: []sound.Info{
		{ID: "cafe", Name: "Cafe", Group: "City"},
		{ID: "rain", Name: "Rain", Group: "Nature"},
	}}

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"first", "cafe", 0},
		{"second", "rain", 1},
		{"missing", "thunder", -1},
		{"empty", "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.FindIndexByID(tt.id); got != tt.want {
				t.Errorf("FindIndexByID(%q) = %d, want %d", tt.id, got, tt.want)
			}
		})
	}

	ids := svc.GetValidSoundIDs()
	if !ids["cafe"] || !ids["rain"] || ids["thunder"] {
		t.Errorf("GetValidSoundIDs() = %v", ids)
	}

	if svc.GetSound(-1) != nil || svc.GetSound(2) != nil {
		t.Error("GetSound() out of range should return nil")
	}
	info := svc.GetSound(1)
	if info == nil || info.ID != "rain" {
		t.Fatalf("GetSound(1) = %+v, want rain", info)
	}
	info.Name = "changed"
	if svc.GetSound(1).Name != "Rain" {
		t.Error("GetSound() should return a copy")
	}

	cached := svc.GetCachedSounds()
	cached[0].ID = "changed"
	if svc.GetCachedSounds()[0].ID != "cafe" {
		t.Error("GetCachedSounds() should return a copy")
	}
}

func TestLoad(t *testing.T) {
	ls := newLibraryServer(t)
	svc := ls.service(nil)

	s, err := svc.Load(context.Background(), "rain")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.ID != "rain" || len(s.Segments) != 1 {
		t.Fatalf("Load() = %+v", s)
	}
	if s.Segments[0].BasePath != "rain" {
		t.Errorf("Segments[0].BasePath = %q, want rain", s.Segments[0].BasePath)
	}

	if _, err := svc.Load(context.Background(), "rain"); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if calls := ls.manifestCalls.Load(); calls != 1 {
		t.Errorf("manifest fetched %d times, want 1", calls)
	}
}

func TestLoadFromDiskCache(t *testing.T) {
	ls := newLibraryServer(t)
	ls.down.Store(true)
	metaCache := cache.NewCacheAt(t.TempDir())
	cached := &sound.Sound{
		ID:       "rain",
		Name:     "Rain",
		Segments: []sound.Segment{{Name: "rain_1", BasePath: "rain", IsFree: true}},
	}
	if err := metaCache.SaveSound(cached); err != nil {
		t.Fatalf("SaveSound() error = %v", err)
	}

	svc := ls.service(metaCache)
	s, err := svc.Load(context.Background(), "rain")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Name != "Rain" {
		t.Errorf("Load().Name = %q, want Rain", s.Name)
	}
	if calls := ls.manifestCalls.Load(); calls != 0 {
		t.Errorf("manifest fetched %d times, want 0", calls)
	}
}

func TestLoadError(t *testing.T) {
	ls := newLibraryServer(t)
	svc := ls.service(nil)

	_, err := svc.Load(context.Background(), "thunder")
	if err == nil {
		t.Fatal("Load() expected error for unknown sound")
	}

	var loadErr *sound.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Load() error = %T, want *sound.LoadError", err)
	}
	if loadErr.SoundID != "thunder" {
		t.Errorf("LoadError.SoundID = %q, want thunder", loadErr.SoundID)
	}

	offline := &SoundService{manifests: make(map[string]*sound.Sound)}
	if _, err := offline.Load(context.Background(), "rain"); !errors.As(err, &loadErr) {
		t.Errorf("Load() without library error = %v, want *sound.LoadError", err)
	}
}

func TestPeriodicRefresh(t *testing.T) {
	ls := newLibraryServer(t)
	svc := ls.service(nil)

	refreshed := make(chan []sound.Info, 1)
	svc.StartPeriodicRefresh(10*time.Millisecond, func(sounds []sound.Info) {
		select {
		case refreshed <- sounds:
		default:
		}
	})
	defer svc.StopPeriodicRefresh()

	select {
	case sounds := <-refreshed:
		if len(sounds) != len(testLibrary) {
			t.Errorf("refresh returned %d sounds, want %d", len(sounds), len(testLibrary))
		}
		if sounds[0].ID != "cafe" {
			t.Errorf("refreshed sounds not sorted, first = %q", sounds[0].ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("periodic refresh did not run")
	}
}

func TestStopPeriodicRefreshIdempotent(t *testing.T) {
	svc := &SoundService{}
	svc.StopPeriodicRefresh()
	svc.StopPeriodicRefresh()
}
