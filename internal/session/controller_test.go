package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/audio"
	"github.com/satindergrewal/promptdj/internal/clock"
	"github.com/satindergrewal/promptdj/internal/events"
	"github.com/satindergrewal/promptdj/internal/graph"
	"github.com/satindergrewal/promptdj/internal/music"
)

type fakeSession struct {
	cb  music.Callbacks
	cfg music.GenerationConfig

	mu       sync.Mutex
	prompts  [][]music.PromptWeight
	controls []string
	closed   bool
	sendErr  error

	// When gate is set, prompt sends signal entered and block until gate closes.
	gate    chan struct{}
	entered chan struct{}
}

func (s *fakeSession) SetWeightedPrompts(_ context.Context, p []music.PromptWeight) error {
	if s.gate != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.prompts = append(s.prompts, p)
	return nil
}

func (s *fakeSession) SetGenerationConfig(context.Context, music.GenerationConfig) error { return nil }

func (s *fakeSession) control(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return music.ErrNotConnected
	}
	s.controls = append(s.controls, name)
	return nil
}

func (s *fakeSession) Play() error         { return s.control("PLAY") }
func (s *fakeSession) Pause() error        { return s.control("PAUSE") }
func (s *fakeSession) Stop() error         { return s.control("STOP") }
func (s *fakeSession) ResetContext() error { return s.control("RESET_CONTEXT") }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) sent() [][]music.PromptWeight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]music.PromptWeight(nil), s.prompts...)
}

func (s *fakeSession) sentControls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.controls...)
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeBackend counts connects. When gate is set, Connect blocks until it is
// closed. sendGate and sendEntered are handed to every new session.
type fakeBackend struct {
	mu          sync.Mutex
	connects    int
	sessions    []*fakeSession
	gate        chan struct{}
	err         error
	sendGate    chan struct{}
	sendEntered chan struct{}
}

func (b *fakeBackend) Connect(_ context.Context, _ string, cfg music.GenerationConfig, cb music.Callbacks) (music.Session, error) {
	b.mu.Lock()
	b.connects++
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if b.err != nil {
		return nil, b.err
	}
	b.mu.Lock()
	s := &fakeSession{cb: cb, cfg: cfg, gate: b.sendGate, entered: b.sendEntered}
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *fakeBackend) last() *fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) states() []string {
	var out []string
	for _, e := range r.ofType(events.TypePlaybackStateChanged) {
		out = append(out, e.Detail.(string))
	}
	return out
}

type harness struct {
	ctl     *Controller
	backend *fakeBackend
	graph   *graph.Graph
	clock   *clock.Fake
	events  *recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{},
		graph:   graph.New(graph.NewContext(audio.SampleRate), zap.NewNop()),
		clock:   clock.NewFake(),
		events:  &recorder{},
	}
	opts = append([]Option{WithClock(h.clock)}, opts...)
	h.ctl = New(h.backend, h.graph, h.events, zap.NewNop(), opts...)
	t.Cleanup(h.ctl.Close)
	return h
}

func prompts(ps ...music.WeightedPrompt) map[string]music.WeightedPrompt {
	m := make(map[string]music.WeightedPrompt, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return m
}

func wp(id, text string, weight float64) music.WeightedPrompt {
	return music.WeightedPrompt{ID: id, Text: text, Weight: weight}
}

// setPrompts submits prompts outside any pending throttle window.
func (h *harness) setPrompts(m map[string]music.WeightedPrompt) {
	h.clock.Advance(time.Second)
	h.ctl.SetWeightedPrompts(m)
}

// chunk builds a silent PCM chunk of the given length in seconds.
func chunk(seconds float64) music.ServerMessage {
	frames := int(seconds * audio.SampleRate)
	data := make([]byte, frames*audio.Channels*2)
	return music.ServerMessage{ServerContent: &music.ServerContent{
		AudioChunks: []music.AudioChunk{{Data: base64.StdEncoding.EncodeToString(data)}},
	}}
}

func (h *harness) deliver(msg music.ServerMessage) {
	h.backend.last().cb.OnMessage(msg)
}

// renderSeconds advances the audio clock.
func (h *harness) renderSeconds(s float64) {
	h.graph.Render(int(s * audio.SampleRate))
}

func (h *harness) startPlaying(t *testing.T) *fakeSession {
	t.Helper()
	require.NoError(t, h.ctl.Play(context.Background()))
	h.deliver(chunk(1))
	h.clock.Advance(2 * time.Second)
	require.Equal(t, Playing, h.ctl.PlaybackState())
	return h.backend.last()
}

func TestPlaySendsActivePromptsThenPlay(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1.0), wp("b", "B", 0), wp("c", "C", 1.5)))

	require.NoError(t, h.ctl.Play(context.Background()))
	assert.Equal(t, Loading, h.ctl.PlaybackState())
	assert.Equal(t, 1, h.backend.connectCount())

	s := h.backend.last()
	require.Len(t, s.sent(), 1)
	assert.Equal(t, []music.PromptWeight{{Text: "A", Weight: 1.0}, {Text: "C", Weight: 1.5}}, s.sent()[0])
	assert.Equal(t, []string{"PLAY"}, s.sentControls())
	assert.True(t, h.graph.OutputEnabled())
	assert.Equal(t, 1, h.graph.Inputs())
	assert.Equal(t, []string{"loading"}, h.events.states())
}

func TestAllPromptsZeroPausesWithOneError(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1.0), wp("b", "B", 0), wp("c", "C", 1.5)))
	s := h.startPlaying(t)

	h.setPrompts(prompts(wp("a", "A", 0), wp("b", "B", 0), wp("c", "C", 0)))

	errs := h.events.ofType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgNoActivePrompt, errs[0].Detail)
	assert.Equal(t, Paused, h.ctl.PlaybackState())
	assert.Len(t, s.sent(), 1, "empty set must not reach the backend")
	assert.Equal(t, []string{"PLAY", "PAUSE"}, s.sentControls())
}

func TestPlayWithoutActivePrompt(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 0)))
	before := len(h.events.ofType(events.TypeError))

	err := h.ctl.Play(context.Background())
	assert.ErrorIs(t, err, ErrNoActivePrompt)
	assert.Equal(t, 0, h.backend.connectCount())
	assert.Equal(t, Stopped, h.ctl.PlaybackState())
	errs := h.events.ofType(events.TypeError)
	require.Len(t, errs, before+1)
	assert.Equal(t, MsgNoActivePrompt, errs[before].Detail)
}

func TestPromptUpdatesAreSentWhileConnected(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	s := h.startPlaying(t)

	h.setPrompts(prompts(wp("a", "A", 0.5), wp("b", "B", 2)))
	sent := s.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []music.PromptWeight{{Text: "A", Weight: 0.5}, {Text: "B", Weight: 2}}, sent[1])
}

func TestPromptUpdatesAreThrottled(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	s := h.startPlaying(t)

	h.setPrompts(prompts(wp("a", "A", 0.1)))
	h.ctl.SetWeightedPrompts(prompts(wp("a", "A", 0.2)))
	h.ctl.SetWeightedPrompts(prompts(wp("a", "A", 0.3)))
	require.Len(t, s.sent(), 2)

	h.clock.Advance(DefaultPromptThrottle)
	sent := s.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, 0.3, sent[2][0].Weight)
}

func TestScheduledStartsAreContiguous(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	require.NoError(t, h.ctl.Play(context.Background()))

	now := h.graph.Context().CurrentTime()
	want := now + 2.0
	for _, d := range []float64{0.5, 1.0, 0.25, 2.0} {
		h.deliver(chunk(d))
		want += d
		assert.InDelta(t, want, h.ctl.sched.NextStartTime(), 1e-9)
	}
}

func TestLeadBufferPromotesToPlaying(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	require.NoError(t, h.ctl.Play(context.Background()))

	h.deliver(chunk(1))
	assert.Equal(t, Loading, h.ctl.PlaybackState())

	h.clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, Loading, h.ctl.PlaybackState())
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, Playing, h.ctl.PlaybackState())
	assert.Equal(t, []string{"loading", "playing"}, h.events.states())
}

func TestUnderrunDropsBufferAndRebuffers(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	h.startPlaying(t)
	require.InDelta(t, 3.0, h.ctl.sched.NextStartTime(), 1e-9)

	h.renderSeconds(4)
	h.deliver(chunk(1))

	assert.Equal(t, Loading, h.ctl.PlaybackState())
	assert.Zero(t, h.ctl.sched.NextStartTime(), "late buffer must not be scheduled")

	h.deliver(chunk(1))
	now := h.graph.Context().CurrentTime()
	assert.InDelta(t, now+2+1, h.ctl.sched.NextStartTime(), 1e-9)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, Playing, h.ctl.PlaybackState())
	assert.Equal(t, []string{"loading", "playing", "loading", "playing"}, h.events.states())
}

func TestStaleLeadTimerDoesNotPromote(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	require.NoError(t, h.ctl.Play(context.Background()))

	h.deliver(chunk(0.5)) // lead timer due at +2s
	h.clock.Advance(time.Second)
	h.renderSeconds(3)
	h.deliver(chunk(0.5)) // underrun
	h.deliver(chunk(0.5)) // new lead timer due at +3s

	h.clock.Advance(time.Second)
	assert.Equal(t, Loading, h.ctl.PlaybackState())
	h.clock.Advance(time.Second)
	assert.Equal(t, Playing, h.ctl.PlaybackState())
}

func TestPauseThenPlayReusesConnection(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	s := h.startPlaying(t)

	h.ctl.Pause()
	assert.Equal(t, Paused, h.ctl.PlaybackState())
	assert.False(t, s.isClosed())

	require.NoError(t, h.ctl.Play(context.Background()))
	assert.Equal(t, Loading, h.ctl.PlaybackState())
	assert.Equal(t, 1, h.backend.connectCount())
	assert.Equal(t, []string{"PLAY", "PAUSE", "PLAY"}, s.sentControls())
	assert.Len(t, s.sent(), 2, "prompts are re-sent on resume")
}

func TestPauseDuringPromptSendSkipsPlay(t *testing.T) {
	h := newHarness(t)
	h.backend.sendGate = make(chan struct{})
	h.backend.sendEntered = make(chan struct{}, 1)
	h.setPrompts(prompts(wp("a", "A", 1)))

	done := make(chan error, 1)
	go func() { done <- h.ctl.Play(context.Background()) }()

	select {
	case <-h.backend.sendEntered:
	case <-time.After(time.Second):
		t.Fatal("prompt send never started")
	}
	h.ctl.Pause()
	close(h.backend.sendGate)
	require.NoError(t, <-done)

	s := h.backend.last()
	assert.Equal(t, Paused, h.ctl.PlaybackState())
	assert.Equal(t, []string{"PAUSE"}, s.sentControls())
	assert.Len(t, s.sent(), 1)

	require.NoError(t, h.ctl.Play(context.Background()))
	assert.Equal(t, []string{"PAUSE", "PLAY"}, s.sentControls())
	assert.Equal(t, 1, h.backend.connectCount())
}

func TestPauseReleasesInputAndDisablesOutput(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	h.startPlaying(t)

	h.ctl.Pause()
	assert.True(t, h.graph.OutputEnabled())
	h.clock.Advance(outputOffDelay)
	assert.False(t, h.graph.OutputEnabled())

	h.renderSeconds(0.25)
	assert.Zero(t, h.graph.Inputs())
	assert.Zero(t, h.ctl.sched.NextStartTime())
}

func TestQuickResumeKeepsOutputEnabled(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	h.startPlaying(t)

	h.ctl.Pause()
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.ctl.Play(context.Background()))
	h.clock.Advance(time.Second)
	assert.True(t, h.graph.OutputEnabled())
}

func TestStopClosesConnection(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	s := h.startPlaying(t)

	h.ctl.Stop()
	assert.Equal(t, Stopped, h.ctl.PlaybackState())
	assert.True(t, s.isClosed())
	assert.Contains(t, s.sentControls(), "STOP")

	require.NoError(t, h.ctl.Play(context.Background()))
	assert.Equal(t, 2, h.backend.connectCount())
}

func TestStopDuringConnectDiscardsLateConnection(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	gate := make(chan struct{})
	h.backend.gate = gate

	done := make(chan error, 1)
	go func() { done <- h.ctl.Play(context.Background()) }()
	require.Eventually(t, func() bool { return h.backend.connectCount() == 1 }, time.Second, time.Millisecond)

	h.ctl.Stop()
	close(gate)
	require.NoError(t, <-done)

	s := h.backend.last()
	assert.True(t, s.isClosed())
	assert.Empty(t, s.sentControls())
	assert.Empty(t, s.sent())
	assert.Zero(t, h.graph.Inputs())
	assert.Equal(t, Stopped, h.ctl.PlaybackState())
}

func TestPauseDuringConnectKeepsConnection(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	gate := make(chan struct{})
	h.backend.gate = gate

	done := make(chan error, 1)
	go func() { done <- h.ctl.Play(context.Background()) }()
	require.Eventually(t, func() bool { return h.backend.connectCount() == 1 }, time.Second, time.Millisecond)

	h.ctl.Pause()
	close(gate)
	require.NoError(t, <-done)

	s := h.backend.last()
	assert.False(t, s.isClosed())
	assert.Zero(t, h.graph.Inputs())
	assert.Equal(t, Paused, h.ctl.PlaybackState())

	require.NoError(t, h.ctl.Play(context.Background()))
	assert.Equal(t, 1, h.backend.connectCount())
	assert.Equal(t, []string{"PLAY"}, s.sentControls())
}

func TestRepeatedPlayWhileConnectingOpensOneSession(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	gate := make(chan struct{})
	h.backend.gate = gate

	done := make(chan error, 1)
	go func() { done <- h.ctl.Play(context.Background()) }()
	require.Eventually(t, func() bool { return h.backend.connectCount() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.ctl.Play(context.Background()))
	}
	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.backend.connectCount())
}

func TestPlayPauseToggle(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	ctx := context.Background()

	require.NoError(t, h.ctl.PlayPause(ctx))
	assert.Equal(t, Loading, h.ctl.PlaybackState())

	require.NoError(t, h.ctl.PlayPause(ctx))
	assert.Equal(t, Stopped, h.ctl.PlaybackState(), "toggle while loading stops")

	require.NoError(t, h.ctl.PlayPause(ctx))
	h.deliver(chunk(1))
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, Playing, h.ctl.PlaybackState())

	require.NoError(t, h.ctl.PlayPause(ctx))
	assert.Equal(t, Paused, h.ctl.PlaybackState())

	require.NoError(t, h.ctl.PlayPause(ctx))
	assert.Equal(t, Loading, h.ctl.PlaybackState())
	assert.Equal(t, 2, h.backend.connectCount())
}

func TestRestartOpensNewConnection(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	first := h.startPlaying(t)

	require.NoError(t, h.ctl.Restart(context.Background()))
	assert.True(t, first.isClosed())
	assert.Equal(t, 2, h.backend.connectCount())
	assert.Equal(t, Loading, h.ctl.PlaybackState())
}

func TestFilteredPromptIsExcludedFromLaterUpdates(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1), wp("x", "X", 0)))
	s := h.startPlaying(t)

	h.deliver(music.ServerMessage{FilteredPrompt: &music.FilteredPrompt{Text: "X", FilteredReason: "unsafe"}})

	fe := h.events.ofType(events.TypeFilteredPrompt)
	require.Len(t, fe, 1)
	assert.Equal(t, events.FilteredPromptDetail{Text: "X", FilteredReason: "unsafe"}, fe[0].Detail)
	assert.True(t, h.ctl.IsFiltered("X"))

	h.setPrompts(prompts(wp("a", "A", 1), wp("x", "X", 2)))
	sent := s.sent()
	assert.Equal(t, []music.PromptWeight{{Text: "A", Weight: 1}}, sent[len(sent)-1])

	h.setPrompts(prompts(wp("a", "A", 0), wp("x", "X", 2)))
	assert.Equal(t, Paused, h.ctl.PlaybackState())
	assert.Equal(t, []string{"X"}, h.ctl.FilteredPrompts())
}

func TestConnectionErrorStops(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	s := h.startPlaying(t)

	s.cb.OnError(errors.New("socket reset"))

	assert.Equal(t, Stopped, h.ctl.PlaybackState())
	assert.True(t, s.isClosed())
	errs := h.events.ofType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgConnectionError, errs[0].Detail)
	assert.True(t, h.ctl.Snapshot().ConnectionError)

	// Late traffic on the dead connection is ignored.
	s.cb.OnMessage(chunk(1))
	s.cb.OnClose()
	assert.Zero(t, h.ctl.sched.NextStartTime())
	assert.Len(t, h.events.ofType(events.TypeError), 1)
}

func TestServerCloseStops(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	s := h.startPlaying(t)

	s.cb.OnClose()
	assert.Equal(t, Stopped, h.ctl.PlaybackState())
	assert.Len(t, h.events.ofType(events.TypeError), 1)
}

func TestSetupCompleteClearsConnectionError(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	s := h.startPlaying(t)
	s.cb.OnClose()
	require.True(t, h.ctl.Snapshot().ConnectionError)

	require.NoError(t, h.ctl.Play(context.Background()))
	h.deliver(music.ServerMessage{SetupComplete: &struct{}{}})
	assert.False(t, h.ctl.Snapshot().ConnectionError)
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	h.backend.err = errors.New("dial refused")

	err := h.ctl.Play(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, Stopped, h.ctl.PlaybackState())
	errs := h.events.ofType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgConnectionError, errs[0].Detail)
}

func TestSendFailureStops(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	// First connect succeeds, then prompt sends fail on resume.
	s := h.startPlaying(t)
	h.ctl.Pause()
	s.mu.Lock()
	s.sendErr = errors.New("broken pipe")
	s.mu.Unlock()

	err := h.ctl.Play(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, Stopped, h.ctl.PlaybackState())
	assert.True(t, s.isClosed())
}

func TestUndecodableChunkIsDropped(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))
	require.NoError(t, h.ctl.Play(context.Background()))

	h.deliver(music.ServerMessage{ServerContent: &music.ServerContent{
		AudioChunks: []music.AudioChunk{{Data: "not base64!"}},
	}})
	assert.Zero(t, h.ctl.sched.NextStartTime())
	assert.Empty(t, h.events.ofType(events.TypeError))
	assert.Equal(t, Loading, h.ctl.PlaybackState())
}

func TestGenerationConfigAppliesToNextConnect(t *testing.T) {
	h := newHarness(t)
	h.setPrompts(prompts(wp("a", "A", 1)))

	cfg, err := h.ctl.SetGenerationConfig(music.ConfigPatch{
		BPM:                 &music.AutoValue{Raw: "120"},
		MusicGenerationMode: ptrTo("vocalization"),
	})
	require.NoError(t, err)
	assert.Equal(t, music.ModeVocalization, cfg.MusicGenerationMode)

	require.NoError(t, h.ctl.Play(context.Background()))
	s := h.backend.last()
	require.NotNil(t, s.cfg.BPM)
	assert.Equal(t, 120, *s.cfg.BPM)
	assert.Equal(t, music.ModeVocalization, s.cfg.MusicGenerationMode)
}

func TestAnalyserFollowsPlayingState(t *testing.T) {
	var levels []float64
	a := graph.NewAnalyser(1, func(l float64) { levels = append(levels, l) })
	h := newHarness(t, WithAnalyser(a))
	h.setPrompts(prompts(wp("a", "A", 1)))

	a.Observe([]float64{1, 1})
	assert.Empty(t, levels)

	h.startPlaying(t)
	a.Observe([]float64{1, 1})
	assert.Len(t, levels, 1)

	h.ctl.Pause()
	a.Observe([]float64{1, 1})
	assert.Len(t, levels, 1)
}

func ptrTo[T any](v T) *T { return &v }
