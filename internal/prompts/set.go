package prompts

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/satindergrewal/promptdj/internal/music"
)

const (
	MinWeight = 0.0
	MaxWeight = 2.0

	// MaxMixSize is the most prompts an assistant mix may turn on.
	MaxMixSize = 5

	defaultCustomColor = "#ffffff"
)

var (
	ErrUnknownPrompt = errors.New("prompts: unknown prompt id")
	ErrEmptyText     = errors.New("prompts: prompt text is empty")
)

func clampWeight(w float64) float64 {
	return max(MinWeight, min(MaxWeight, w))
}

// Set is the live prompt map the user edits. Every mutation hands a copy of
// the new map to the change callback. Deliveries never go backwards: a map
// older than one already delivered is dropped.
type Set struct {
	mu       sync.RWMutex
	prompts  map[string]music.WeightedPrompt
	onChange func(map[string]music.WeightedPrompt)
	seq      uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// NewSet creates a set from an initial map.
func NewSet(initial map[string]music.WeightedPrompt) *Set {
	s := &Set{prompts: make(map[string]music.WeightedPrompt, len(initial))}
	for k, v := range initial {
		s.prompts[k] = v
	}
	return s
}

// OnChange registers fn to receive the map after every change. Calls to fn
// are serialized; fn may read the set but must not mutate it.
func (s *Set) OnChange(fn func(map[string]music.WeightedPrompt)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Set) copyLocked() map[string]music.WeightedPrompt {
	out := make(map[string]music.WeightedPrompt, len(s.prompts))
	for k, v := range s.prompts {
		out[k] = v
	}
	return out
}

// commit copies the map and releases the write lock before notifying.
func (s *Set) commit() map[string]music.WeightedPrompt {
	s.seq++
	seq := s.seq
	snap := s.copyLocked()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		s.notify(seq, snap, fn)
	}
	return snap
}

func (s *Set) notify(seq uint64, snap map[string]music.WeightedPrompt, fn func(map[string]music.WeightedPrompt)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.delivered {
		return
	}
	s.delivered = seq
	fn(snap)
}

// Snapshot returns a copy of the current map.
func (s *Set) Snapshot() map[string]music.WeightedPrompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// List returns the prompts ordered by controller number.
func (s *Set) List() []music.WeightedPrompt {
	s.mu.RLock()
	out := make([]music.WeightedPrompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CC != out[j].CC {
			return out[i].CC < out[j].CC
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Texts returns the text of every prompt in the set, in List order.
func (s *Set) Texts() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.Text
	}
	return out
}

// Replace swaps in a whole new map, as when a preset is loaded. Weights are
// clamped and ids are taken from the map keys.
func (s *Set) Replace(prompts map[string]music.WeightedPrompt) map[string]music.WeightedPrompt {
	s.mu.Lock()
	s.prompts = make(map[string]music.WeightedPrompt, len(prompts))
	for id, p := range prompts {
		p.ID = id
		p.Weight = clampWeight(p.Weight)
		s.prompts[id] = p
	}
	return s.commit()
}

// SetWeight changes one prompt's weight, clamped to [0, 2].
func (s *Set) SetWeight(id string, weight float64) (music.WeightedPrompt, error) {
	s.mu.Lock()
	p, ok := s.prompts[id]
	if !ok {
		s.mu.Unlock()
		return music.WeightedPrompt{}, ErrUnknownPrompt
	}
	p.Weight = clampWeight(weight)
	s.prompts[id] = p
	s.commit()
	return p, nil
}

// AddCustom adds a user-written prompt after the highest controller number.
func (s *Set) AddCustom(text string, weight float64, color string) (music.WeightedPrompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return music.WeightedPrompt{}, ErrEmptyText
	}
	if color == "" {
		color = defaultCustomColor
	}

	s.mu.Lock()
	cc := 0
	for _, p := range s.prompts {
		cc = max(cc, p.CC)
	}
	p := music.WeightedPrompt{
		ID:     "custom-" + uuid.NewString(),
		Text:   text,
		Weight: clampWeight(weight),
		Color:  color,
		CC:     cc + 1,
	}
	s.prompts[p.ID] = p
	s.commit()
	return p, nil
}

// ApplyMix zeroes every weight, then sets the weight of each prompt whose
// text matches a mix key, ignoring case. It returns the number of prompts
// matched. An empty mix changes nothing.
func (s *Set) ApplyMix(mix map[string]float64) int {
	if len(mix) == 0 {
		return 0
	}
	byText := make(map[string]float64, len(mix))
	for text, w := range mix {
		byText[strings.ToLower(strings.TrimSpace(text))] = w
	}

	s.mu.Lock()
	matched := 0
	for id, p := range s.prompts {
		p.Weight = 0
		if w, ok := byText[strings.ToLower(p.Text)]; ok {
			p.Weight = clampWeight(w)
			matched++
		}
		s.prompts[id] = p
	}
	s.commit()
	return matched
}
