// Package session drives one streaming connection to the music backend and
// the local playback graph behind it.
//
// The controller owns the playback state machine. Backend messages arrive on
// the connection's goroutine, user actions on API goroutines, and timers on
// their own; a single mutex serializes all of them. Every connection attempt
// gets its own link, and every timer captures the epoch it was armed in, so a
// callback that arrives after the world moved on is ignored.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/audio"
	"github.com/satindergrewal/promptdj/internal/clock"
	"github.com/satindergrewal/promptdj/internal/events"
	"github.com/satindergrewal/promptdj/internal/graph"
	"github.com/satindergrewal/promptdj/internal/metrics"
	"github.com/satindergrewal/promptdj/internal/music"
	"github.com/satindergrewal/promptdj/internal/scheduler"
	"github.com/satindergrewal/promptdj/internal/throttle"
)

const (
	MsgConnectionError = "Connection error, please restart audio."
	MsgNoActivePrompt  = "There needs to be one active prompt to play."

	DefaultPromptThrottle = 200 * time.Millisecond

	// Output stays enabled this long after pause or stop so the fade-out
	// can finish.
	outputOffDelay = 200 * time.Millisecond

	sendTimeout = 10 * time.Second
)

var (
	ErrNoActivePrompt = errors.New("session: no active prompt")
	ErrConnection     = errors.New("session: connection error")
)

// Controller is the streaming session controller.
type Controller struct {
	backend  music.Backend
	graph    *graph.Graph
	sched    *scheduler.Scheduler
	emitter  events.Emitter
	logger   *zap.Logger
	clock    clock.Clock
	analyser *graph.Analyser
	model    string
	lead     time.Duration
	window   time.Duration
	throttle *throttle.Throttler[map[string]music.WeightedPrompt]

	mu              sync.Mutex
	state           state
	epoch           uint64
	prompts         map[string]music.WeightedPrompt
	filtered        map[string]struct{}
	config          music.GenerationConfig
	connectionError bool
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(c clock.Clock) Option { return func(ctl *Controller) { ctl.clock = c } }

// WithAnalyser ties level reporting to the playing state.
func WithAnalyser(a *graph.Analyser) Option { return func(ctl *Controller) { ctl.analyser = a } }

func WithModel(model string) Option { return func(ctl *Controller) { ctl.model = model } }

func WithLeadBuffer(d time.Duration) Option { return func(ctl *Controller) { ctl.lead = d } }

func WithPromptThrottle(d time.Duration) Option { return func(ctl *Controller) { ctl.window = d } }

func WithGenerationConfig(cfg music.GenerationConfig) Option {
	return func(ctl *Controller) { ctl.config = cfg }
}

type nopEmitter struct{}

func (nopEmitter) Emit(events.Event) {}

// New creates a stopped controller.
func New(backend music.Backend, g *graph.Graph, emitter events.Emitter, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		graph:    g,
		emitter:  emitter,
		logger:   logger,
		clock:    clock.Real{},
		lead:     time.Duration(scheduler.DefaultLead * float64(time.Second)),
		window:   DefaultPromptThrottle,
		state:    stoppedState{},
		prompts:  make(map[string]music.WeightedPrompt),
		filtered: make(map[string]struct{}),
		config:   music.DefaultGenerationConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.emitter == nil {
		c.emitter = nopEmitter{}
	}
	c.sched = scheduler.New(c.lead.Seconds())
	c.throttle = throttle.New(c.window, c.applyPrompts, throttle.WithClock(c.clock))
	metrics.PlaybackState.WithLabelValues(string(Stopped)).Set(1)
	return c
}

// PlaybackState returns the current lifecycle state.
func (c *Controller) PlaybackState() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.playback()
}

// Play starts or resumes playback. Calling it while already loading or
// playing does nothing, so at most one connection is ever opened.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	var l *link
	switch s := c.state.(type) {
	case loadingState, playingState:
		c.mu.Unlock()
		return nil
	case pausedState:
		l = s.l
	}
	if len(c.activeLocked()) == 0 {
		c.mu.Unlock()
		c.noActivePrompt()
		return ErrNoActivePrompt
	}

	c.epoch++
	if l != nil {
		c.setStateLocked(loadingState{epoch: c.epoch, l: l})
		if l.conn == nil {
			// The dial from before the pause is still in flight and will
			// wire the graph when it lands.
			c.mu.Unlock()
			return nil
		}
		active := c.wireLocked(l)
		epoch := c.epoch
		c.mu.Unlock()
		return c.startStreaming(ctx, l, epoch, active)
	}

	l = &link{}
	c.setStateLocked(loadingState{epoch: c.epoch, l: l})
	cfg := c.config
	c.mu.Unlock()

	metrics.Connects.Inc()
	c.logger.Info("Connecting to music backend", zap.String("model", c.model))
	conn, err := c.backend.Connect(ctx, c.model, cfg, c.callbacks(l))

	c.mu.Lock()
	if err != nil {
		c.logger.Error("Backend connect failed", zap.Error(err))
		if c.state.link() != l {
			c.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
		metrics.ConnectionErrors.Inc()
		c.connectionError = true
		c.stopLocked()
		c.emitter.Emit(events.Error(MsgConnectionError))
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if c.state.link() != l {
		c.mu.Unlock()
		c.logger.Info("Closing connection that resolved after stop")
		conn.Close()
		return nil
	}
	l.conn = conn
	if _, ok := c.state.(loadingState); !ok {
		// Paused while connecting: keep the connection, leave the graph alone.
		c.mu.Unlock()
		return nil
	}
	active := c.wireLocked(l)
	epoch := c.epoch
	c.mu.Unlock()
	return c.startStreaming(ctx, l, epoch, active)
}

// wireLocked attaches a fresh graph input for l and returns the prompts to
// send. The state must be loading on l.
func (c *Controller) wireLocked(l *link) []music.PromptWeight {
	input := c.graph.NewInput()
	c.sched.Reset()
	c.state = loadingState{epoch: c.epoch, l: l, input: input}
	c.graph.SetOutputEnabled(true)
	return c.activeLocked()
}

// startStreaming sends the prompts and then PLAY. PLAY is skipped when the
// session left this loading epoch during the prompt send, so a Pause or Stop
// issued meanwhile is never overtaken.
func (c *Controller) startStreaming(ctx context.Context, l *link, epoch uint64, active []music.PromptWeight) error {
	c.mu.Lock()
	conn := l.conn
	c.mu.Unlock()

	if err := conn.SetWeightedPrompts(ctx, active); err != nil {
		metrics.PromptUpdates.WithLabelValues("failed").Inc()
		return c.fail(l, err)
	}
	metrics.PromptUpdates.WithLabelValues("sent").Inc()

	c.mu.Lock()
	if s, ok := c.state.(loadingState); !ok || s.l != l || s.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	// Held across the send so a concurrent Pause reaches the backend after PLAY.
	err := conn.Play()
	c.mu.Unlock()
	if err != nil {
		return c.fail(l, err)
	}
	return nil
}

// fail tears the session down after a send error on l.
func (c *Controller) fail(l *link, err error) error {
	c.mu.Lock()
	if c.state.link() != l {
		c.mu.Unlock()
		return nil
	}
	c.logger.Error("Backend send failed", zap.Error(err))
	metrics.ConnectionErrors.Inc()
	c.connectionError = true
	conn := c.stopLocked()
	c.emitter.Emit(events.Error(MsgConnectionError))
	c.mu.Unlock()
	c.closeConn(conn)
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// Pause fades the output, releases the current input and asks the backend
// to pause. The connection stays open.
func (c *Controller) Pause() {
	c.mu.Lock()
	switch c.state.(type) {
	case stoppedState, pausedState:
		c.mu.Unlock()
		return
	}
	l := c.state.link()
	var conn music.Session
	if l != nil {
		conn = l.conn
	}
	if in := inputOf(c.state); in != nil {
		in.Release()
	}
	c.epoch++
	c.sched.Reset()
	c.setStateLocked(pausedState{l: l})
	c.scheduleOutputOffLocked()
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Pause(); err != nil {
			c.logger.Warn("Backend pause failed", zap.Error(err))
		}
	}
}

// Stop fades the output and closes the connection.
func (c *Controller) Stop() {
	c.mu.Lock()
	if _, ok := c.state.(stoppedState); ok {
		c.mu.Unlock()
		return
	}
	conn := c.stopLocked()
	c.mu.Unlock()
	c.closeConn(conn)
}

// stopLocked moves to stopped and returns the connection the caller must
// close after unlocking. A dial still in flight is closed by its own
// continuation.
func (c *Controller) stopLocked() music.Session {
	var conn music.Session
	if l := c.state.link(); l != nil {
		conn = l.conn
	}
	if in := inputOf(c.state); in != nil {
		in.Release()
	}
	c.epoch++
	c.sched.Reset()
	c.setStateLocked(stoppedState{})
	c.scheduleOutputOffLocked()
	return conn
}

func (c *Controller) closeConn(conn music.Session) {
	if conn == nil {
		return
	}
	if err := conn.Stop(); err != nil {
		c.logger.Debug("Backend stop failed", zap.Error(err))
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("Backend close failed", zap.Error(err))
	}
}

// PlayPause toggles: playing pauses, paused or stopped plays, loading stops.
func (c *Controller) PlayPause(ctx context.Context) error {
	switch c.PlaybackState() {
	case Playing:
		c.Pause()
	case Loading:
		c.Stop()
	default:
		return c.Play(ctx)
	}
	return nil
}

// Restart drops the current connection and plays on a new one.
func (c *Controller) Restart(ctx context.Context) error {
	c.Stop()
	return c.Play(ctx)
}

// Close stops playback and cancels any pending prompt update.
func (c *Controller) Close() {
	c.throttle.Stop()
	c.Stop()
}

func (c *Controller) setStateLocked(s state) {
	prev := c.state.playback()
	c.state = s
	next := s.playback()
	if prev == next {
		return
	}
	for _, st := range allStates {
		v := 0.0
		if st == next {
			v = 1
		}
		metrics.PlaybackState.WithLabelValues(string(st)).Set(v)
	}
	if c.analyser != nil {
		if next == Playing {
			c.analyser.Start()
		} else {
			c.analyser.Stop()
		}
	}
	c.logger.Info("Playback state changed", zap.String("from", string(prev)), zap.String("to", string(next)))
	c.emitter.Emit(events.PlaybackStateChanged(string(next)))
}

// scheduleOutputOffLocked disables graph output once the fade has run, if
// nothing restarted playback in the meantime.
func (c *Controller) scheduleOutputOffLocked() {
	epoch := c.epoch
	c.clock.AfterFunc(outputOffDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch {
			return
		}
		switch c.state.(type) {
		case pausedState, stoppedState:
			c.graph.SetOutputEnabled(false)
		}
	})
}

func (c *Controller) callbacks(l *link) music.Callbacks {
	return music.Callbacks{
		OnMessage: func(m music.ServerMessage) { c.onMessage(l, m) },
		OnError:   func(err error) { c.onConnectionLost(l, err) },
		OnClose:   func() { c.onConnectionLost(l, nil) },
	}
}

func (c *Controller) onMessage(l *link, m music.ServerMessage) {
	if m.SetupComplete != nil {
		c.mu.Lock()
		if c.state.link() == l {
			c.connectionError = false
		}
		c.mu.Unlock()
		c.logger.Info("Backend setup complete")
	}
	if fp := m.FilteredPrompt; fp != nil {
		c.mu.Lock()
		current := c.state.link() == l
		if current {
			c.filtered[fp.Text] = struct{}{}
			metrics.FilteredPrompts.Inc()
			c.emitter.Emit(events.FilteredPrompt(fp.Text, fp.FilteredReason))
		}
		c.mu.Unlock()
		if current {
			c.logger.Warn("Prompt filtered", zap.String("text", fp.Text), zap.String("reason", fp.FilteredReason))
		}
	}
	if sc := m.ServerContent; sc != nil && len(sc.AudioChunks) > 0 {
		c.onAudio(l, sc.AudioChunks)
	}
}

// onAudio decodes each chunk and places it on the timeline. Chunks for a
// stale link or with no input wired are dropped.
func (c *Controller) onAudio(l *link, chunks []music.AudioChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.link() != l {
		return
	}
	for _, chunk := range chunks {
		in := inputOf(c.state)
		if in == nil {
			return
		}
		metrics.ChunksReceived.Inc()
		buf, err := audio.DecodeChunk(chunk.Data)
		if err != nil {
			metrics.DecodeErrors.Inc()
			c.logger.Warn("Dropping undecodable audio chunk", zap.Error(err))
			continue
		}

		now := c.graph.Context().CurrentTime()
		d, err := c.sched.Schedule(now, buf, func(at float64) error { return in.Start(buf, at) })
		if err != nil {
			c.logger.Warn("Could not schedule buffer", zap.Error(err))
			continue
		}
		if d.Underrun {
			metrics.Underruns.Inc()
			c.logger.Warn("Audio underrun, rebuffering", zap.Float64("clock", now))
			c.epoch++
			c.setStateLocked(loadingState{epoch: c.epoch, l: l, input: in})
			continue
		}
		metrics.BuffersScheduled.Inc()
		if d.Started {
			epoch := c.epoch
			c.clock.AfterFunc(time.Duration(d.PlayingIn*float64(time.Second)), func() {
				c.promote(epoch, in)
			})
		}
	}
}

// promote ends the lead buffer. It only fires for the loading sequence it
// was armed in.
func (c *Controller) promote(epoch uint64, in *graph.Input) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state.(loadingState)
	if !ok || s.epoch != epoch || s.input != in {
		return
	}
	c.setStateLocked(playingState{l: s.l, input: in})
}

func (c *Controller) onConnectionLost(l *link, err error) {
	c.mu.Lock()
	if c.state.link() != l {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.logger.Error("Backend connection error", zap.Error(err))
	} else {
		c.logger.Warn("Backend closed the connection")
	}
	metrics.ConnectionErrors.Inc()
	c.connectionError = true
	conn := c.stopLocked()
	c.emitter.Emit(events.Error(MsgConnectionError))
	c.mu.Unlock()
	c.closeConn(conn)
}

// SetWeightedPrompts submits the full prompt map. Calls are throttled: the
// latest map wins and at most one is applied per window.
func (c *Controller) SetWeightedPrompts(prompts map[string]music.WeightedPrompt) {
	cp := make(map[string]music.WeightedPrompt, len(prompts))
	for k, v := range prompts {
		cp[k] = v
	}
	c.throttle.Schedule(cp)
}

// FlushPrompts applies a throttled prompt map immediately, if one is pending.
func (c *Controller) FlushPrompts() {
	c.throttle.Flush()
}

func (c *Controller) applyPrompts(prompts map[string]music.WeightedPrompt) {
	c.mu.Lock()
	c.prompts = prompts
	active := c.activeLocked()
	if len(active) == 0 {
		c.mu.Unlock()
		metrics.PromptUpdates.WithLabelValues("empty").Inc()
		c.noActivePrompt()
		return
	}
	var conn music.Session
	if l := c.state.link(); l != nil {
		conn = l.conn
	}
	c.mu.Unlock()

	if conn == nil {
		metrics.PromptUpdates.WithLabelValues("stored").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := conn.SetWeightedPrompts(ctx, active); err != nil {
		metrics.PromptUpdates.WithLabelValues("failed").Inc()
		c.logger.Warn("Prompt update failed", zap.Error(err))
		c.emitter.Emit(events.Error(err.Error()))
		c.Pause()
		return
	}
	metrics.PromptUpdates.WithLabelValues("sent").Inc()
	c.logger.Debug("Prompts sent", zap.Int("active", len(active)))
}

func (c *Controller) noActivePrompt() {
	c.emitter.Emit(events.Error(MsgNoActivePrompt))
	c.Pause()
}

// activeLocked returns the prompts to send, ordered by id.
func (c *Controller) activeLocked() []music.PromptWeight {
	ids := make([]string, 0, len(c.prompts))
	for id := range c.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]music.WeightedPrompt, 0, len(ids))
	for _, id := range ids {
		list = append(list, c.prompts[id])
	}
	return music.Active(list, c.filtered)
}

// ActivePrompts returns the prompts that would be sent right now.
func (c *Controller) ActivePrompts() []music.PromptWeight {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

// FilteredPrompts returns the texts the backend has rejected, sorted.
func (c *Controller) FilteredPrompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.filtered))
	for t := range c.filtered {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsFiltered reports whether text was rejected by the backend.
func (c *Controller) IsFiltered(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.filtered[text]
	return ok
}

// SetGenerationConfig merges patch into the stored config. It is sent on
// the next new connection.
func (c *Controller) SetGenerationConfig(patch music.ConfigPatch) (music.GenerationConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, err := c.config.Apply(patch)
	if err != nil {
		return c.config, err
	}
	c.config = cfg
	return cfg, nil
}

// GenerationConfig returns the stored config.
func (c *Controller) GenerationConfig() music.GenerationConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Snapshot is a point-in-time view for the control API.
type Snapshot struct {
	PlaybackState   PlaybackState          `json:"playbackState"`
	ActivePrompts   []music.PromptWeight   `json:"activePrompts"`
	FilteredPrompts []string               `json:"filteredPrompts"`
	Config          music.GenerationConfig `json:"generationConfig"`
	ConnectionError bool                   `json:"connectionError"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	filtered := make([]string, 0, len(c.filtered))
	for t := range c.filtered {
		filtered = append(filtered, t)
	}
	sort.Strings(filtered)
	return Snapshot{
		PlaybackState:   c.state.playback(),
		ActivePrompts:   c.activeLocked(),
		FilteredPrompts: filtered,
		Config:          c.config,
		ConnectionError: c.connectionError,
	}
}
