package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	SpeakerBufferSize = time.Millisecond * 250
	ResampleQuality   = 4
)

// Output is the sink every media player pipeline is mixed into. Streamers
// handed to Play are pulled under the output lock.
type Output interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer) error
	Lock()
	Unlock()
}

// SpeakerOutput mixes all pipelines into the process-wide beep speaker.
type SpeakerOutput struct {
	sampleRate beep.SampleRate
	once       sync.Once
	initErr    error
}

func NewSpeakerOutput() *SpeakerOutput {
	return &SpeakerOutput{sampleRate: DefaultSampleRate}
}

func (o *SpeakerOutput) SampleRate() beep.SampleRate {
	return o.sampleRate
}

func (o *SpeakerOutput) init() error {
	o.once.Do(func() {
		err := speaker.Init(o.sampleRate, o.sampleRate.N(SpeakerBufferSize))
		if err != nil {
			o.initErr = fmt.Errorf("failed to initialize speaker: %w", err)
			return
		}
		log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", o.sampleRate, SpeakerBufferSize)
	})
	return o.initErr
}

func (o *SpeakerOutput) Play(s beep.Streamer) error {
	if err := o.init(); err != nil {
		return err
	}
	speaker.Play(s)
	return nil
}

func (o *SpeakerOutput) Lock() {
	speaker.Lock()
}

func (o *SpeakerOutput) Unlock() {
	speaker.Unlock()
}

// Close stops the speaker. Pipelines still attached are dropped.
func (o *SpeakerOutput) Close() {
	if o.initErr == nil {
		speaker.Clear()
		speaker.Close()
	}
}
