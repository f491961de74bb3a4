package sound

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
)

// sampleRate is the speaker's fixed output rate; decoded assets at other
// rates are resampled on play.
const sampleRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond))
	})
	return speakerErr
}

// Strategy starts and stops one looping playback. Start replaces any
// playback already running.
type Strategy interface {
	Start(severity string, volume float64) error
	Stop()
}

// gain maps the 0..1 preference scale onto the exponential volume
// effect. Zero is fully silent.
func gain(volume float64) *effects.Volume {
	return &effects.Volume{
		Base:   2,
		Volume: (volume - 1) * 5,
		Silent: volume <= 0,
	}
}

type asset struct {
	buf *beep.Buffer
	sr  beep.SampleRate
}

// AssetStrategy plays pre-decoded WAV files, one per severity, looping
// until stopped. Missing severities fall back to alert.wav.
type AssetStrategy struct {
	assets map[string]asset
}

// NewAssetStrategy decodes every .wav in dir into memory. It fails when
// the directory has no decodable files, so callers can fall back to the
// synthesized tone.
func NewAssetStrategy(dir string) (*AssetStrategy, error) {
	if err := initSpeaker(); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return nil, err
	}
	assets := make(map[string]asset)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		streamer, format, err := wav.Decode(f)
		if err != nil {
			f.Close()
			continue
		}
		buf := beep.NewBuffer(format)
		buf.Append(streamer)
		streamer.Close()
		name := filepath.Base(p)
		assets[name[:len(name)-len(".wav")]] = asset{buf: buf, sr: format.SampleRate}
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("no decodable wav assets in %s", dir)
	}
	return &AssetStrategy{assets: assets}, nil
}

func (s *AssetStrategy) Start(severity string, volume float64) error {
	a, ok := s.assets[severity]
	if !ok {
		a, ok = s.assets["alert"]
	}
	if !ok {
		return fmt.Errorf("no asset for severity %s", severity)
	}
	var streamer beep.Streamer = beep.Loop(-1, a.buf.Streamer(0, a.buf.Len()))
	if a.sr != sampleRate {
		streamer = beep.Resample(4, a.sr, sampleRate, streamer)
	}
	vol := gain(volume)
	vol.Streamer = streamer
	speaker.Clear()
	speaker.Play(vol)
	return nil
}

func (s *AssetStrategy) Stop() {
	speaker.Clear()
}

// ToneStrategy synthesizes a looping sine tone, the fallback when no
// usable assets exist.
type ToneStrategy struct {
	freq int
}

func NewToneStrategy(freq int) (*ToneStrategy, error) {
	if err := initSpeaker(); err != nil {
		return nil, err
	}
	if freq <= 0 {
		freq = 880
	}
	return &ToneStrategy{freq: freq}, nil
}

func (s *ToneStrategy) Start(severity string, volume float64) error {
	tone, err := generators.SineTone(sampleRate, float64(s.freq))
	if err != nil {
		return err
	}
	vol := gain(volume)
	vol.Streamer = tone
	speaker.Clear()
	speaker.Play(vol)
	return nil
}

func (s *ToneStrategy) Stop() {
	speaker.Clear()
}
