package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "SoundMix CLI"
	AppDescription = "A terminal-based mixer for layered ambient sounds"

	ConfigDir         = ".config/soundmix"
	ConfigFileName    = "config.yml"
	DefaultVolume     = 70
	DefaultSoundLevel = 50
	MinVolume         = 0
	MaxVolume         = 100

	DefaultFadeIn     = 1000 // milliseconds
	DefaultFadeOut    = 1000 // milliseconds
	MaxFade           = 30000
	DefaultLibraryURL = "https://cdn.soundmix.app"
	DefaultAudioUsage = "media"
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// ClampFade keeps a fade duration in milliseconds within [0, MaxFade].
func ClampFade(ms int) int {
	if ms < 0 {
		return 0
	}
	if ms > MaxFade {
		return MaxFade
	}
	return ms
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/soundmix/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background                string `yaml:"background"`
	Foreground                string `yaml:"foreground"`
	Borders                   string `yaml:"borders"`
	Highlight                 string `yaml:"highlight"`
	MutedVolume               string `yaml:"muted_volume"`
	HeaderBackground          string `yaml:"header_background"`
	SoundListHeaderBackground string `yaml:"sound_list_header_background"`
	SoundListHeaderForeground string `yaml:"sound_list_header_foreground"`
	HelpBackground            string `yaml:"help_background"`
	HelpForeground            string `yaml:"help_foreground"`
	HelpHotkey                string `yaml:"help_hotkey"`
	GroupTagBackground        string `yaml:"group_tag_background"`
	ModalBackground           string `yaml:"modal_background"`
}

// Preset maps sound ids to their volume in percent.
type Preset map[string]int

type Config struct {
	Volume             int               `yaml:"volume"`
	FadeIn             int               `yaml:"fade_in"`
	FadeOut            int               `yaml:"fade_out"`
	Bitrate            string            `yaml:"bitrate"`
	PremiumSegments    bool              `yaml:"premium_segments"`
	AudioFocus         bool              `yaml:"audio_focus"`
	AudioUsage         string            `yaml:"audio_usage"`
	LibraryURL         string            `yaml:"library_url"`
	AutoStopAfterPause int               `yaml:"auto_stop_after_pause"` // seconds, 0 disables
	Presets            map[string]Preset `yaml:"presets"`
	LastPreset         string            `yaml:"last_preset"`
	Theme              Theme             `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ConfigDir, ConfigFileName), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

func (c *Config) normalize() {
	c.Volume = ClampVolume(c.Volume)
	c.FadeIn = ClampFade(c.FadeIn)
	c.FadeOut = ClampFade(c.FadeOut)
	if c.AutoStopAfterPause < 0 {
		c.AutoStopAfterPause = 0
	}
	if c.LibraryURL == "" {
		c.LibraryURL = DefaultLibraryURL
	}
	if c.Presets == nil {
		c.Presets = map[string]Preset{}
	}
	for name, preset := range c.Presets {
		for id, level := range preset {
			preset[id] = ClampVolume(level)
		}
		if len(preset) == 0 {
			delete(c.Presets, name)
		}
	}
	if _, ok := c.Presets[c.LastPreset]; !ok {
		c.LastPreset = ""
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:          DefaultVolume,
		FadeIn:          DefaultFadeIn,
		FadeOut:         DefaultFadeOut,
		Bitrate:         "128k",
		PremiumSegments: false,
		AudioFocus:      true,
		AudioUsage:      DefaultAudioUsage,
		LibraryURL:      DefaultLibraryURL,
		Presets:         map[string]Preset{},
		Theme: Theme{
			Background:                "#1a1b25",
			Foreground:                "#a3aacb",
			Borders:                   "#40445b",
			Highlight:                 "#8fd694",
			MutedVolume:               "#fe0702",
			HeaderBackground:          "#2f3d33",
			SoundListHeaderBackground: "#3a3d4f",
			SoundListHeaderForeground: "#c8d0e8",
			HelpBackground:            "#322f45",
			HelpForeground:            "#9aa3c6",
			HelpHotkey:                "#8fd694",
			GroupTagBackground:        "#3a3d4f",
			ModalBackground:           "#282a36",
		},
	}
}

func (c *Config) FadeInDuration() time.Duration {
	return time.Duration(c.FadeIn) * time.Millisecond
}

func (c *Config) FadeOutDuration() time.Duration {
	return time.Duration(c.FadeOut) * time.Millisecond
}

func (c *Config) AutoStopDuration() time.Duration {
	return time.Duration(c.AutoStopAfterPause) * time.Second
}

// PresetNames returns the saved preset names in alphabetical order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SavePreset stores a preset under name, replacing any existing one.
// Saving an empty preset removes it.
func (c *Config) SavePreset(name string, preset Preset) {
	if c.Presets == nil {
		c.Presets = map[string]Preset{}
	}
	if len(preset) == 0 {
		c.DeletePreset(name)
		return
	}
	stored := make(Preset, len(preset))
	for id, level := range preset {
		stored[id] = ClampVolume(level)
	}
	c.Presets[name] = stored
	c.LastPreset = name
}

func (c *Config) DeletePreset(name string) {
	delete(c.Presets, name)
	if c.LastPreset == name {
		c.LastPreset = ""
	}
}

// CleanupPresets drops sounds that are no longer in the library from every
// preset, and presets that end up empty.
func (c *Config) CleanupPresets(validSoundIDs map[string]bool) {
	for name, preset := range c.Presets {
		for id := range preset {
			if !validSoundIDs[id] {
				delete(preset, id)
			}
		}
		if len(preset) == 0 {
			c.DeletePreset(name)
		}
	}
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
