package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/music"
)

var (
	ErrPresetNotFound = errors.New("prompts: preset not found")
	ErrPresetName     = errors.New("prompts: preset name is empty")
)

// Preset is a named snapshot of the prompt map.
type Preset struct {
	Name    string                          `json:"name"`
	Prompts map[string]music.WeightedPrompt `json:"prompts"`
}

// PresetStore keeps presets in a JSON file. An empty path keeps them in
// memory only.
type PresetStore struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	presets []Preset
}

// OpenPresetStore loads presets from path. A missing file is an empty store.
func OpenPresetStore(path string, logger *zap.Logger) (*PresetStore, error) {
	ps := &PresetStore{path: path, logger: logger}
	if path == "" {
		return ps, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ps, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	if err := json.Unmarshal(data, &ps.presets); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	logger.Info("Presets loaded", zap.String("path", path), zap.Int("count", len(ps.presets)))
	return ps, nil
}

// List returns all presets in save order.
func (ps *PresetStore) List() []Preset {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]Preset(nil), ps.presets...)
}

// Get returns the preset with the given name.
func (ps *PresetStore) Get(name string) (Preset, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, p := range ps.presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, ErrPresetNotFound
}

// Save stores prompts under name, replacing any preset with that name.
func (ps *PresetStore) Save(name string, prompts map[string]music.WeightedPrompt) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, ErrPresetName
	}
	p := Preset{Name: name, Prompts: prompts}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	replaced := false
	for i := range ps.presets {
		if ps.presets[i].Name == name {
			ps.presets[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		ps.presets = append(ps.presets, p)
	}
	if err := ps.persistLocked(); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Delete removes the named preset.
func (ps *PresetStore) Delete(name string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i := range ps.presets {
		if ps.presets[i].Name == name {
			ps.presets = append(ps.presets[:i], ps.presets[i+1:]...)
			return ps.persistLocked()
		}
	}
	return ErrPresetNotFound
}

// persistLocked writes the file atomically through a temp file.
func (ps *PresetStore) persistLocked() error {
	if ps.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(ps.presets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	dir := filepath.Dir(ps.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preset dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".presets-*.json")
	if err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write presets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write presets: %w", err)
	}
	if err := os.Rename(tmp.Name(), ps.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write presets: %w", err)
	}
	ps.logger.Debug("Presets saved", zap.String("path", ps.path), zap.Int("count", len(ps.presets)))
	return nil
}
