// Package prompts holds the built-in prompt catalog, the live prompt set the
// user edits, and named presets of that set.
package prompts

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/satindergrewal/promptdj/internal/music"
)

// Entry is one catalog prompt with its display colour.
type Entry struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Category groups related prompts for display.
type Category struct {
	Name    string  `json:"name"`
	Prompts []Entry `json:"prompts"`
}

// InitialActive is the number of catalog prompts switched on at startup.
const InitialActive = 3

// Categories is the built-in catalog, in display order.
var Categories = []Category{
	{
		Name: "Electronic & Dance",
		Prompts: []Entry{
			{Text: "Techno", Color: "#333333"},
			{Text: "Synthwave", Color: "#ff66ff"},
			{Text: "Dubstep", Color: "#ffdd28"},
			{Text: "Drum and Bass", Color: "#ff25f6"},
			{Text: "Future Bass", Color: "#4dffdb"},
			{Text: "Hardstyle", Color: "#e60000"},
			{Text: "Trance", Color: "#00e6e6"},
			{Text: "IDM", Color: "#b3b3b3"},
			{Text: "House", Color: "#ff8000"},
		},
	},
	{
		Name: "Hip Hop & Urban",
		Prompts: []Entry{
			{Text: "Hip Hop", Color: "#ff4d4d"},
			{Text: "Lo-fi", Color: "#4d94ff"},
			{Text: "Trap", Color: "#ffc24d"},
			{Text: "Drill", Color: "#808080"},
			{Text: "Neo Soul", Color: "#d8ff3e"},
			{Text: "Trip Hop", Color: "#5200ff"},
			{Text: "R&B", Color: "#ff4da6"},
			{Text: "Grime", Color: "#666666"},
			{Text: "Boom Bap", Color: "#ffa366"},
			{Text: "Биты и высокие басы", Color: "#ff6666"},
			{Text: "Четкие инструментальные биты", Color: "#66ccff"},
			{Text: "Андеграунд 80-х", Color: "#cc66ff"},
			{Text: "Дагестанская лезгинка", Color: "#ffff00"},
		},
	},
	{
		Name: "World & Traditional",
		Prompts: []Entry{
			{Text: "Bossa Nova", Color: "#9900ff"},
			{Text: "Reggae", Color: "#009933"},
			{Text: "Salsa", Color: "#ff3333"},
			{Text: "Afrobeat", Color: "#ff9900"},
			{Text: "Bollywood", Color: "#ff1aff"},
			{Text: "K-Pop", Color: "#ff25f6"},
			{Text: "Tango", Color: "#cc0000"},
			{Text: "Celtic Folk", Color: "#33cc33"},
		},
	},
	{
		Name: "Rock & Alternative",
		Prompts: []Entry{
			{Text: "Post Punk", Color: "#2af6de"},
			{Text: "Shoegaze", Color: "#ffdd28"},
			{Text: "Funk", Color: "#ff6600"},
			{Text: "Indie Rock", Color: "#cccccc"},
			{Text: "Psychedelic Rock", Color: "#cc33ff"},
			{Text: "Metal", Color: "#404040"},
			{Text: "Punk Rock", Color: "#ff0066"},
			{Text: "Grunge", Color: "#999999"},
			{Text: "Alt Rock", Color: "#6699ff"},
		},
	},
	{
		Name: "Ambient & Cinematic",
		Prompts: []Entry{
			{Text: "Ambient", Color: "#99e6e6"},
			{Text: "Chillwave", Color: "#5200ff"},
			{Text: "Chiptune", Color: "#9900ff"},
			{Text: "Lush Strings", Color: "#3dffab"},
			{Text: "Sparkling Arps", Color: "#d8ff3e"},
			{Text: "Orchestral", Color: "#c2c2d6"},
			{Text: "Epic Score", Color: "#ffb366"},
			{Text: "Soundscape", Color: "#8c8c8c"},
			{Text: "Minimalist", Color: "#e0e0e0"},
			{Text: "Vaporwave", Color: "#ff99cc"},
		},
	},
}

// Texts returns every catalog prompt text in display order.
func Texts() []string {
	var out []string
	for _, c := range Categories {
		for _, p := range c.Prompts {
			out = append(out, p.Text)
		}
	}
	return out
}

// IsKnown reports whether text names a catalog prompt, ignoring case.
func IsKnown(text string) bool {
	for _, t := range Texts() {
		if strings.EqualFold(t, text) {
			return true
		}
	}
	return false
}

// BuildInitial creates the startup prompt map. Ids and controller numbers
// follow catalog order; InitialActive random prompts start at weight 1.
func BuildInitial(rng *rand.Rand) map[string]music.WeightedPrompt {
	texts := Texts()
	on := make(map[string]bool, InitialActive)
	for _, i := range rng.Perm(len(texts))[:min(InitialActive, len(texts))] {
		on[texts[i]] = true
	}

	out := make(map[string]music.WeightedPrompt, len(texts))
	cc := 0
	for _, c := range Categories {
		for _, p := range c.Prompts {
			id := fmt.Sprintf("prompt-%d", cc)
			w := 0.0
			if on[p.Text] {
				w = 1
			}
			out[id] = music.WeightedPrompt{
				ID:       id,
				Text:     p.Text,
				Weight:   w,
				Color:    p.Color,
				CC:       cc,
				Category: c.Name,
			}
			cc++
		}
	}
	return out
}
