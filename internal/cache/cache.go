// Package cache keeps sound manifests and the library index on disk so the
// mixer can start without waiting for the network.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached manifests are valid (7 days).
	DefaultExpiry = 7 * 24 * time.Hour
	// ManifestSubdir is the subdirectory for cached sound manifests.
	ManifestSubdir = "manifests"
	// LibraryFile holds the cached library index.
	LibraryFile = "library.json"
	// AppName is used for the cache directory name.
	AppName = "soundmix"
)

// Cache manages disk-based caching of library metadata.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a new Cache instance with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return &Cache{
		baseDir: cacheDir,
		expiry:  DefaultExpiry,
	}, nil
}

// NewCacheAt creates a Cache rooted at dir.
func NewCacheAt(dir string) *Cache {
	return &Cache{baseDir: dir, expiry: DefaultExpiry}
}

// Dir returns the directory the cache writes to.
func (c *Cache) Dir() string {
	return c.baseDir
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	return filepath.Join(userCacheDir, AppName), nil
}

func hashKey(key string) string {
	hash := md5.Sum([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) manifestPath(soundID string) string {
	return filepath.Join(c.baseDir, ManifestSubdir, hashKey(soundID)+".json")
}

// GetSound returns the cached manifest of a sound, or nil if missing or expired.
func (c *Cache) GetSound(soundID string) *sound.Sound {
	var s sound.Sound
	if !c.readJSON(c.manifestPath(soundID), &s) {
		return nil
	}
	if s.ID != soundID {
		return nil
	}
	return &s
}

// SaveSound stores a sound manifest, keyed by its id.
func (c *Cache) SaveSound(s *sound.Sound) error {
	return c.writeJSON(c.manifestPath(s.ID), s)
}

// GetLibrary returns the cached library index, or nil if missing or expired.
func (c *Cache) GetLibrary() []sound.Info {
	var sounds []sound.Info
	if !c.readJSON(filepath.Join(c.baseDir, LibraryFile), &sounds) {
		return nil
	}
	return sounds
}

// SaveLibrary stores the library index.
func (c *Cache) SaveLibrary(sounds []sound.Info) error {
	return c.writeJSON(filepath.Join(c.baseDir, LibraryFile), sounds)
}

func (c *Cache) readJSON(path string, v any) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(path); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("Failed to remove expired cache file")
		}
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Str("file", path).Msg("Failed to decode cache file")
		return false
	}
	return true
}

func (c *Cache) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move cache file: %w", err)
	}
	return nil
}

// CleanExpired removes cached manifests older than the expiry duration.
func (c *Cache) CleanExpired() error {
	manifestDir := filepath.Join(c.baseDir, ManifestSubdir)

	entries, err := os.ReadDir(manifestDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(manifestDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
