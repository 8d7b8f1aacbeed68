package session

import (
	"github.com/satindergrewal/promptdj/internal/graph"
	"github.com/satindergrewal/promptdj/internal/music"
)

// PlaybackState is the public lifecycle state.
type PlaybackState string

const (
	Stopped PlaybackState = "stopped"
	Loading PlaybackState = "loading"
	Playing PlaybackState = "playing"
	Paused  PlaybackState = "paused"
)

var allStates = []PlaybackState{Stopped, Loading, Playing, Paused}

// link is one backend connection. conn is nil while the dial is in flight.
// Callbacks carry their link and are ignored once it is no longer current.
type link struct {
	conn music.Session
}

type state interface {
	playback() PlaybackState
	link() *link
}

type stoppedState struct{}

// loadingState covers both the initial connect and the lead buffer after an
// underrun. input is nil until the connection is wired to the graph.
type loadingState struct {
	epoch uint64
	l     *link
	input *graph.Input
}

type playingState struct {
	l     *link
	input *graph.Input
}

// pausedState keeps the connection open. l is nil if pause happened before
// any connect was attempted.
type pausedState struct {
	l *link
}

func (stoppedState) playback() PlaybackState { return Stopped }
func (loadingState) playback() PlaybackState { return Loading }
func (playingState) playback() PlaybackState { return Playing }
func (pausedState) playback() PlaybackState  { return Paused }

func (stoppedState) link() *link   { return nil }
func (s loadingState) link() *link { return s.l }
func (s playingState) link() *link { return s.l }
func (s pausedState) link() *link  { return s.l }

// inputOf returns the graph input that audio should be scheduled on.
func inputOf(s state) *graph.Input {
	switch s := s.(type) {
	case loadingState:
		return s.input
	case playingState:
		return s.input
	}
	return nil
}
