// Package api provides the HTTP client for the sound library CDN.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/glebovdev/soundmix/internal/config"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/go-resty/resty/v2"
)

const requestTimeout = 30 * time.Second

// LibraryClient talks to the library CDN.
type LibraryClient struct {
	client *resty.Client
}

func NewLibraryClient(baseURL string) *LibraryClient {
	return &LibraryClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", fmt.Sprintf("SoundMix-CLI/%s", config.AppVersion)),
	}
}

// GetLibrary fetches the list of sounds the library offers.
func (c *LibraryClient) GetLibrary(ctx context.Context) ([]sound.Info, error) {
	resp, err := c.client.R().SetContext(ctx).Get("/library/index.json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch library: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var response struct {
		Sounds []sound.Info `json:"sounds"`
	}

	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse library response: %w", err)
	}

	return response.Sounds, nil
}

// GetSound fetches the manifest of one sound. Segments without a base path
// live under the sound's own directory.
func (c *LibraryClient) GetSound(ctx context.Context, soundID string) (*sound.Sound, error) {
	resp, err := c.client.R().SetContext(ctx).Get(fmt.Sprintf("/library/%s/manifest.json", url.PathEscape(soundID)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest for sound %s: %w", soundID, err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var s sound.Sound
	if err := json.Unmarshal(resp.Body(), &s); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for sound %s: %w", soundID, err)
	}

	if s.ID == "" {
		s.ID = soundID
	}
	for i := range s.Segments {
		if s.Segments[i].BasePath == "" {
			s.Segments[i].BasePath = s.ID
		}
	}

	if err := validateManifest(&s); err != nil {
		return nil, fmt.Errorf("invalid manifest for sound %s: %w", soundID, err)
	}
	return &s, nil
}

func validateManifest(s *sound.Sound) error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("no segments")
	}
	for _, seg := range s.Segments {
		if seg.Name == "" {
			return fmt.Errorf("segment without name")
		}
		if seg.IsBridge && (seg.From == "" || seg.To == "") {
			return fmt.Errorf("bridge segment %q must name both ends", seg.Name)
		}
	}
	if s.MaxSilence < 0 {
		return fmt.Errorf("negative max silence %d", s.MaxSilence)
	}
	return nil
}
