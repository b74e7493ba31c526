package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/glebovdev/soundmix/internal/config"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/go-resty/resty/v2"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

const segmentFetchTimeout = 30 * time.Second

// Opener resolves a media URI and returns a decoder positioned at its start.
type Opener interface {
	Open(ctx context.Context, uri string) (beep.StreamSeekCloser, beep.Format, error)
}

// HTTPOpener fetches library segments from the CDN and decodes them in memory.
type HTTPOpener struct {
	client *resty.Client
}

func NewHTTPOpener(libraryURL string) *HTTPOpener {
	return &HTTPOpener{
		client: resty.New().
			SetBaseURL(strings.TrimRight(libraryURL, "/")).
			SetTimeout(segmentFetchTimeout).
			SetHeader("User-Agent", fmt.Sprintf("SoundMix-CLI/%s", config.AppVersion)),
	}
}

type httpStatusError struct {
	StatusCode int
	Status     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("segment returned status %d: %s", e.StatusCode, e.Status)
}

func (o *HTTPOpener) Open(ctx context.Context, uri string) (beep.StreamSeekCloser, beep.Format, error) {
	libraryPath, err := resolveLibraryPath(uri)
	if err != nil {
		return nil, beep.Format{}, err
	}

	resp, err := o.client.R().SetContext(ctx).Get("/library/" + libraryPath)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to fetch segment: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, beep.Format{}, &httpStatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	return Decode(libraryPath, resp.Body())
}

func resolveLibraryPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, sound.LibraryURIPrefix) {
		return "", fmt.Errorf("unsupported media uri: %s", uri)
	}
	p := strings.TrimPrefix(uri, sound.LibraryURIPrefix)
	if p == "" {
		return "", fmt.Errorf("empty library path in uri: %s", uri)
	}
	return p, nil
}

// Decode picks a decoder by the file extension of name.
func Decode(name string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)

	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(io.NopCloser(bytes.NewReader(data)))
	case ".wav":
		streamer, format, err = wav.Decode(bytes.NewReader(data))
	case ".flac":
		streamer, format, err = flac.Decode(bytes.NewReader(data))
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported media format %q", ext)
	}

	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return streamer, format, nil
}
