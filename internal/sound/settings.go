package sound

import (
	"context"
	"errors"
	"strconv"

	"alert-console/internal/store"
)

const (
	keyMuted  = "sound.muted"
	keyVolume = "sound.volume"
	keyTone   = "sound.tone"
)

// Settings are the operator's persisted audio preferences. Tone is the
// synthesized fallback frequency in Hz.
type Settings struct {
	Muted  bool    `json:"muted"`
	Volume float64 `json:"volume"`
	Tone   int     `json:"tone"`
}

// DefaultSettings returns the out-of-the-box preferences.
func DefaultSettings() Settings {
	return Settings{Muted: false, Volume: 0.8, Tone: 880}
}

// LoadSettings reads persisted preferences, filling in defaults for
// keys that were never written.
func LoadSettings(ctx context.Context, st *store.Store) (Settings, error) {
	s := DefaultSettings()

	if v, err := st.Get(ctx, keyMuted); err == nil {
		s.Muted = v == "true"
	} else if !errors.Is(err, store.ErrNotFound) {
		return s, err
	}
	if v, err := st.Get(ctx, keyVolume); err == nil {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil {
			s.Volume = f
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return s, err
	}
	if v, err := st.Get(ctx, keyTone); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			s.Tone = n
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return s, err
	}
	return s, nil
}

// SaveSettings persists all preference keys.
func SaveSettings(ctx context.Context, st *store.Store, s Settings) error {
	if err := st.Put(ctx, keyMuted, strconv.FormatBool(s.Muted)); err != nil {
		return err
	}
	if err := st.Put(ctx, keyVolume, strconv.FormatFloat(s.Volume, 'f', -1, 64)); err != nil {
		return err
	}
	return st.Put(ctx, keyTone, strconv.Itoa(s.Tone))
}
