// Package service provides the business logic layer for the sound library.
package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/glebovdev/soundmix/internal/api"
	"github.com/glebovdev/soundmix/internal/cache"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/rs/zerolog/log"
)

const refreshTimeout = 30 * time.Second

var errNoLibrary = errors.New("no library configured")

// SoundService manages the library listing and sound manifests: it fetches
// them, keeps them on disk and refreshes the listing periodically. It is the
// metadata source sound players load from.
type SoundService struct {
	apiClient     *api.LibraryClient
	metaCache     *cache.Cache
	sounds        []sound.Info
	manifests     map[string]*sound.Sound
	mu            sync.RWMutex
	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	onRefresh     func([]sound.Info)
}

// NewSoundService creates a SoundService. A nil cache disables disk caching.
func NewSoundService(apiClient *api.LibraryClient, metaCache *cache.Cache) *SoundService {
	if metaCache != nil {
		go func() {
			if err := metaCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	return &SoundService{
		apiClient: apiClient,
		metaCache: metaCache,
		manifests: make(map[string]*sound.Sound),
	}
}

// GetSounds fetches the library listing. When the library is unreachable the
// last cached listing is used instead.
func (s *SoundService) GetSounds(ctx context.Context) ([]sound.Info, error) {
	sounds, err := s.apiClient.GetLibrary(ctx)
	if err != nil {
		if s.metaCache != nil {
			if cached := s.metaCache.GetLibrary(); cached != nil {
				log.Warn().Err(err).Msg("Library unreachable, using cached listing")
				sounds = cached
				err = nil
			}
		}
		if err != nil {
			return nil, err
		}
	} else if s.metaCache != nil {
		if err := s.metaCache.SaveLibrary(sounds); err != nil {
			log.Debug().Err(err).Msg("Failed to cache library")
		}
	}

	s.sortSounds(sounds)

	s.mu.Lock()
	s.sounds = sounds
	s.mu.Unlock()

	return sounds, nil
}

func (s *SoundService) GetCachedSounds() []sound.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]sound.Info, len(s.sounds))
	copy(result, s.sounds)
	return result
}

// sortSounds orders the listing by group, then by name.
func (s *SoundService) sortSounds(sounds []sound.Info) {
	sort.SliceStable(sounds, func(i, j int) bool {
		if sounds[i].Group != sounds[j].Group {
			return sounds[i].Group < sounds[j].Group
		}
		return sounds[i].Name < sounds[j].Name
	})
}

func (s *SoundService) GetValidSoundIDs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	validIDs := make(map[string]bool)
	for _, info := range s.sounds {
		validIDs[info.ID] = true
	}
	return validIDs
}

func (s *SoundService) FindIndexByID(soundID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, info := range s.sounds {
		if info.ID == soundID {
			return i
		}
	}
	return -1
}

func (s *SoundService) SoundCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sounds)
}

// GetSound returns a copy of the listing entry at the given index, or nil
// if the index is out of bounds.
func (s *SoundService) GetSound(index int) *sound.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.sounds) {
		return nil
	}
	info := s.sounds[index]
	return &info
}

// Load returns the manifest of a sound from memory, the disk cache or the
// library, in that order. Failures are reported as *sound.LoadError.
func (s *SoundService) Load(ctx context.Context, soundID string) (*sound.Sound, error) {
	s.mu.RLock()
	manifest := s.manifests[soundID]
	s.mu.RUnlock()
	if manifest != nil {
		return manifest, nil
	}

	if s.metaCache != nil {
		if manifest = s.metaCache.GetSound(soundID); manifest != nil {
			log.Debug().Str("sound", soundID).Msg("Manifest loaded from cache")
			s.remember(manifest)
			return manifest, nil
		}
	}

	if s.apiClient == nil {
		return nil, &sound.LoadError{SoundID: soundID, Err: errNoLibrary}
	}

	manifest, err := s.apiClient.GetSound(ctx, soundID)
	if err != nil {
		return nil, &sound.LoadError{SoundID: soundID, Err: err}
	}

	s.remember(manifest)
	if s.metaCache != nil {
		go func() {
			if err := s.metaCache.SaveSound(manifest); err != nil {
				log.Debug().Err(err).Str("sound", soundID).Msg("Failed to cache manifest")
			}
		}()
	}
	return manifest, nil
}

func (s *SoundService) remember(manifest *sound.Sound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[manifest.ID] = manifest
}

func (s *SoundService) StartPeriodicRefresh(interval time.Duration, callback func([]sound.Info)) {
	s.StopPeriodicRefresh()

	s.mu.Lock()
	s.onRefresh = callback
	s.stopRefresh = make(chan struct{})
	s.refreshTicker = time.NewTicker(interval)
	ticker := s.refreshTicker
	stopCh := s.stopRefresh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.refreshSoundsInBackground()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started periodic library refresh")
}

func (s *SoundService) StopPeriodicRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
	}
	log.Debug().Msg("Stopped periodic library refresh")
}

func (s *SoundService) refreshSoundsInBackground() {
	if s.apiClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	sounds, err := s.apiClient.GetLibrary(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Background refresh failed, keeping cached data")
		return
	}

	s.sortSounds(sounds)

	s.mu.Lock()
	s.sounds = sounds
	// manifests may have changed along with the listing
	s.manifests = make(map[string]*sound.Sound)
	callback := s.onRefresh
	s.mu.Unlock()

	if s.metaCache != nil {
		if err := s.metaCache.SaveLibrary(sounds); err != nil {
			log.Debug().Err(err).Msg("Failed to cache library")
		}
	}

	if callback != nil {
		callback(sounds)
	}

	log.Debug().Int("count", len(sounds)).Msg("Library refreshed in background")
}
