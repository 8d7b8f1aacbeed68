package music

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	ModeQuality      = "QUALITY"
	ModeDiversity    = "DIVERSITY"
	ModeVocalization = "VOCALIZATION"
)

// GenerationConfig mirrors the backend's musicGenerationConfig. Nil fields
// are left to the model.
type GenerationConfig struct {
	Temperature         *float64 `json:"temperature,omitempty"`
	Guidance            *float64 `json:"guidance,omitempty"`
	TopK                *int     `json:"topK,omitempty"`
	Seed                *int     `json:"seed,omitempty"`
	BPM                 *int     `json:"bpm,omitempty"`
	Density             *float64 `json:"density,omitempty"`
	Brightness          *float64 `json:"brightness,omitempty"`
	Scale               string   `json:"scale,omitempty"`
	MuteBass            bool     `json:"muteBass,omitempty"`
	MuteDrums           bool     `json:"muteDrums,omitempty"`
	OnlyBassAndDrums    bool     `json:"onlyBassAndDrums,omitempty"`
	MusicGenerationMode string   `json:"musicGenerationMode,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// DefaultGenerationConfig is used for new connections until settings change.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:         ptr(1.1),
		Guidance:            ptr(4.0),
		TopK:                ptr(40),
		Density:             ptr(0.5),
		Brightness:          ptr(0.5),
		MusicGenerationMode: ModeQuality,
	}
}

// AutoValue is a setting that is either "Auto" or a concrete value.
type AutoValue struct {
	Auto bool
	Raw  string
}

func (a *AutoValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		a.Auto = true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if strings.EqualFold(s, "auto") || s == "" {
			a.Auto = true
			return nil
		}
		a.Raw = s
		return nil
	}
	a.Raw = string(b)
	return nil
}

func (a AutoValue) MarshalJSON() ([]byte, error) {
	if a.Auto {
		return json.Marshal("Auto")
	}
	return json.Marshal(a.Raw)
}

// ConfigPatch is a partial update from the control surface.
type ConfigPatch struct {
	Temperature         *float64   `json:"temperature,omitempty"`
	Guidance            *float64   `json:"guidance,omitempty"`
	TopK                *int       `json:"topK,omitempty"`
	Seed                *AutoValue `json:"seed,omitempty"`
	BPM                 *AutoValue `json:"bpm,omitempty"`
	Density             *float64   `json:"density,omitempty"`
	Brightness          *float64   `json:"brightness,omitempty"`
	Scale               *AutoValue `json:"scale,omitempty"`
	MuteBass            *bool      `json:"muteBass,omitempty"`
	MuteDrums           *bool      `json:"muteDrums,omitempty"`
	OnlyBassAndDrums    *bool      `json:"onlyBassAndDrums,omitempty"`
	MusicGenerationMode *string    `json:"musicGenerationMode,omitempty"`
}

// Apply returns cfg with the patch merged in. "Auto" clears seed, bpm and
// scale. The generation mode is upper-cased.
func (cfg GenerationConfig) Apply(p ConfigPatch) (GenerationConfig, error) {
	out := cfg
	if p.Temperature != nil {
		out.Temperature = ptr(*p.Temperature)
	}
	if p.Guidance != nil {
		out.Guidance = ptr(*p.Guidance)
	}
	if p.TopK != nil {
		out.TopK = ptr(*p.TopK)
	}
	if p.Density != nil {
		out.Density = ptr(*p.Density)
	}
	if p.Brightness != nil {
		out.Brightness = ptr(*p.Brightness)
	}
	if p.Seed != nil {
		v, err := autoInt(p.Seed)
		if err != nil {
			return cfg, fmt.Errorf("seed: %w", err)
		}
		out.Seed = v
	}
	if p.BPM != nil {
		v, err := autoInt(p.BPM)
		if err != nil {
			return cfg, fmt.Errorf("bpm: %w", err)
		}
		out.BPM = v
	}
	if p.Scale != nil {
		if p.Scale.Auto {
			out.Scale = ""
		} else {
			out.Scale = p.Scale.Raw
		}
	}
	if p.MuteBass != nil {
		out.MuteBass = *p.MuteBass
	}
	if p.MuteDrums != nil {
		out.MuteDrums = *p.MuteDrums
	}
	if p.OnlyBassAndDrums != nil {
		out.OnlyBassAndDrums = *p.OnlyBassAndDrums
	}
	if p.MusicGenerationMode != nil {
		out.MusicGenerationMode = strings.ToUpper(*p.MusicGenerationMode)
	}
	return out, nil
}

func autoInt(v *AutoValue) (*int, error) {
	if v.Auto {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.Raw))
	if err != nil {
		return nil, err
	}
	return &n, nil
}
