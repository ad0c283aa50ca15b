// Package presets holds the fixed table of output renditions.
package presets

import (
	"errors"
	"fmt"

	"media-transcoder/internal/failure"
)

// ErrNotFound is wrapped by Resolve for unknown preset names.
var ErrNotFound = errors.New("preset not found")

// Preset describes one output rendition. Bitrates are in kbit/s.
type Preset struct {
	Name         string `json:"name" toml:"name"`
	Width        int    `json:"width" toml:"width"`
	Height       int    `json:"height" toml:"height"`
	VideoBitrate int    `json:"videoBitrate" toml:"video_bitrate"`
	AudioBitrate int    `json:"audioBitrate" toml:"audio_bitrate"`
	FPS          int    `json:"fps" toml:"fps"`
	Profile      string `json:"profile" toml:"profile"`
}

// Resolution returns "WIDTHxHEIGHT".
func (p Preset) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// Defaults returns the built-in tiers, highest first.
func Defaults() []Preset {
	return []Preset{
		{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: 5000, AudioBitrate: 192, FPS: 30, Profile: "high"},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 2800, AudioBitrate: 128, FPS: 30, Profile: "main"},
		{Name: "480p", Width: 854, Height: 480, VideoBitrate: 1400, AudioBitrate: 128, FPS: 30, Profile: "main"},
		{Name: "360p", Width: 640, Height: 360, VideoBitrate: 800, AudioBitrate: 96, FPS: 30, Profile: "baseline"},
	}
}

// Registry is an immutable name-indexed preset table.
type Registry struct {
	ordered []Preset
	byName  map[string]Preset
}

// NewRegistry builds a registry from tiers listed highest first. Each tier
// must have strictly lower resolution and video bitrate than the one before
// it, and a frame rate no higher.
func NewRegistry(tiers []Preset) (*Registry, error) {
	if len(tiers) == 0 {
		return nil, errors.New("presets: no tiers configured")
	}

	r := &Registry{
		ordered: make([]Preset, 0, len(tiers)),
		byName:  make(map[string]Preset, len(tiers)),
	}

	for i, p := range tiers {
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("presets: duplicate tier %q", p.Name)
		}
		if i > 0 {
			prev := tiers[i-1]
			if p.Width >= prev.Width || p.Height >= prev.Height {
				return nil, fmt.Errorf("presets: %s resolution %s not below %s", p.Name, p.Resolution(), prev.Name)
			}
			if p.VideoBitrate >= prev.VideoBitrate {
				return nil, fmt.Errorf("presets: %s bitrate %dk not below %s", p.Name, p.VideoBitrate, prev.Name)
			}
			if p.FPS > prev.FPS {
				return nil, fmt.Errorf("presets: %s fps %d above %s", p.Name, p.FPS, prev.Name)
			}
		}
		r.ordered = append(r.ordered, p)
		r.byName[p.Name] = p
	}

	return r, nil
}

// Default returns a registry of the built-in tiers.
func Default() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}

func validate(p Preset) error {
	switch {
	case p.Name == "":
		return errors.New("presets: tier without a name")
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("presets: %s has invalid resolution %s", p.Name, p.Resolution())
	case p.Width%2 != 0 || p.Height%2 != 0:
		return fmt.Errorf("presets: %s resolution %s must be even", p.Name, p.Resolution())
	case p.VideoBitrate <= 0 || p.AudioBitrate <= 0:
		return fmt.Errorf("presets: %s has non-positive bitrate", p.Name)
	case p.FPS <= 0:
		return fmt.Errorf("presets: %s has non-positive fps", p.Name)
	case p.Profile == "":
		return fmt.Errorf("presets: %s has no profile", p.Name)
	}
	return nil
}

// Resolve looks up a preset by name. Unknown names fail with a validation
// error wrapping ErrNotFound.
func (r *Registry) Resolve(name string) (Preset, error) {
	p, ok := r.byName[name]
	if !ok {
		return Preset{}, failure.Wrap(failure.CodeValidation, "resolve preset",
			fmt.Errorf("%w: %q", ErrNotFound, name))
	}
	return p, nil
}

// Names returns the preset names, highest tier first.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, p := range r.ordered {
		names[i] = p.Name
	}
	return names
}

// All returns a copy of the presets, highest tier first.
func (r *Registry) All() []Preset {
	out := make([]Preset, len(r.ordered))
	copy(out, r.ordered)
	return out
}
