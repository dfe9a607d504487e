/*
 * This file is part of VocalShift (https://github.com/vocalshift/vocalshift).
 * Copyright (C) 2026 VocalShift Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package pipeline coordinates capture, segmentation, recognition, synthesis
// and playback under real-time constraints.
//
// The controller owns every queue and every piece of shared state. Stages
// never talk to each other directly: frames flow capture → segmenter through
// the bounded frame queue, final text flows to synthesis through a
// single-slot handoff, and all reconfiguration travels through the control
// queue. Status and text reach the presentation layer through fire-and-forget
// dispatch channels, each drained by a single goroutine so at most one
// callback invocation is in flight per stream.
package pipeline

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vocalshift/vocalshift/internal/audio"
	"github.com/vocalshift/vocalshift/internal/stt"
	"github.com/vocalshift/vocalshift/internal/tts"
	"github.com/vocalshift/vocalshift/internal/vad"
)

// Options configures a Controller
type Options struct {
	Backend     audio.Backend
	Recognizer  stt.Recognizer
	Synthesizer tts.Synthesizer
	Capture     audio.CaptureConfig
	Playback    audio.PlaybackConfig
	VAD         vad.Config
	Voice       string
	Speed       float64
}

type controlKind int

const (
	ctlInputDevice controlKind = iota
	ctlOutputDevice
	ctlVoice
	ctlSpeed
)

type controlMsg struct {
	kind   controlKind
	device *int
	voice  string
	speed  float64
}

// pendingResult carries one recognized utterance's text from the
// segmentation worker to the synthesis worker
type pendingResult struct {
	id           uuid.UUID
	text         string
	utteranceEnd time.Time
}

// Controller drives the voice replacement pipeline
type Controller struct {
	backend    audio.Backend
	recognizer stt.Recognizer
	synth      tts.Synthesizer
	capture    *audio.Capture
	playback   *audio.Playback
	vadConfig  vad.Config

	state     atomic.Int32
	latencyMs atomic.Uint64 // math.Float64bits
	segReset  atomic.Bool

	mu          sync.Mutex
	initialized bool
	running     bool
	voiceID     string
	speed       float64
	statusCb    func(Status)
	textCb      func(string)
	cancel      context.CancelFunc
	group       *errgroup.Group
	controlCh   chan controlMsg
	handoff     chan pendingResult
	statusCh    chan Status
	textCh      chan string
	dispatchWG  sync.WaitGroup
}

// New creates a controller over the given engines. It does not touch
// hardware until Initialize.
func New(opts Options) *Controller {
	if opts.Capture.SampleRate == 0 {
		opts.Capture = audio.DefaultCaptureConfig()
	}
	if opts.Playback.SampleRate == 0 {
		opts.Playback = audio.DefaultPlaybackConfig()
	}
	if opts.VAD.SpeechThreshold == 0 {
		opts.VAD = vad.DefaultConfig()
	}
	if opts.Voice == "" {
		opts.Voice = tts.DefaultVoice
	}
	if opts.Speed == 0 {
		opts.Speed = 1.0
	}

	c := &Controller{
		backend:    opts.Backend,
		recognizer: opts.Recognizer,
		synth:      opts.Synthesizer,
		capture:    audio.NewCapture(opts.Backend, opts.Capture),
		playback:   audio.NewPlayback(opts.Backend, opts.Playback),
		vadConfig:  opts.VAD,
		voiceID:    opts.Voice,
		speed:      opts.Speed,
	}
	c.state.Store(int32(StateIdle))
	return c
}

// Initialize loads the recognition and synthesis models, reporting progress
// per component. Returns false on failure; calling again after a failure
// retries, and calling again after success is a no-op.
func (c *Controller) Initialize(progress func(name string, fraction float64)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return true
	}
	if progress == nil {
		progress = func(string, float64) {}
	}

	ctx := context.Background()

	if err := c.backend.Initialize(); err != nil {
		log.Printf("❌ Pipeline: Audio backend initialization failed: %v", err)
		return false
	}

	if err := c.recognizer.Load(ctx, func(f float64) { progress("recognizer", f) }); err != nil {
		log.Printf("❌ Pipeline: Recognizer load failed: %v", err)
		return false
	}

	if err := c.synth.Load(ctx, func(f float64) { progress("synthesizer", f) }); err != nil {
		log.Printf("❌ Pipeline: Synthesizer load failed: %v", err)
		return false
	}

	c.initialized = true
	log.Println("✅ Pipeline: Initialized")
	return true
}

// Start begins capturing and processing. Returns false (with no side effect)
// when the pipeline is already running or was never initialized.
func (c *Controller) Start() bool {
	c.mu.Lock()

	if !c.initialized || c.running {
		c.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.controlCh = make(chan controlMsg, 16)
	c.handoff = make(chan pendingResult, 1)
	c.statusCh = make(chan Status, 16)
	c.textCh = make(chan string, 16)
	c.running = true
	c.latencyMs.Store(0)
	c.segReset.Store(false)
	c.state.Store(int32(StateListening))

	statusCb := c.statusCb
	textCb := c.textCb

	// One dispatcher per callback stream: at most one in-flight invocation
	// each, no ordering guarantee between the two
	c.dispatchWG.Add(2)
	go func(ch <-chan Status) {
		defer c.dispatchWG.Done()
		for status := range ch {
			if statusCb != nil {
				statusCb(status)
			}
		}
	}(c.statusCh)
	go func(ch <-chan string) {
		defer c.dispatchWG.Done()
		for text := range ch {
			if textCb != nil {
				textCb(text)
			}
		}
	}(c.textCh)

	group, gctx := errgroup.WithContext(ctx)
	c.group = group
	group.Go(c.worker("segmentation", gctx, c.segmentWorker))
	group.Go(c.worker("synthesis", gctx, c.synthWorker))
	group.Go(c.worker("control", gctx, c.controlWorker))

	c.mu.Unlock()

	// Capture starts last, after the segmentation worker is already draining
	// the frame queue
	if err := c.capture.Start(); err != nil {
		log.Printf("❌ Pipeline: Failed to start capture: %v", err)
		c.Stop()
		return false
	}

	c.postStatus()
	log.Println("✅ Pipeline: Started")
	return true
}

// Stop signals all workers to abandon in-flight work, closes the streams,
// drains the queues and waits. No status or text callback fires after Stop
// returns. Stopping an idle pipeline is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	group := c.group
	statusCh := c.statusCh
	textCh := c.textCh
	c.mu.Unlock()

	c.playback.Halt()
	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("⚠️ Pipeline: Worker exited with error: %v", err)
	}

	c.capture.Stop()
	c.drainFrames()

	// All posters have exited; closing releases the dispatchers
	close(statusCh)
	close(textCh)
	c.dispatchWG.Wait()

	c.state.Store(int32(StateIdle))
	log.Println("🔌 Pipeline: Stopped")
}

// IsRunning reports whether the pipeline has left Idle
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// State returns the current pipeline state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Status returns a read-only snapshot of the pipeline
func (c *Controller) Status() Status {
	state := c.State()
	return Status{
		State:         state,
		IsSpeaking:    state == StateSpeaking,
		IsProcessing:  state == StateRecognizing || state == StateSynthesizing,
		LatencyMs:     math.Float64frombits(c.latencyMs.Load()),
		FramesDropped: c.capture.Dropped(),
	}
}

// SetStatusCallback registers the status listener. Must be called before
// Start; the callback is invoked asynchronously and must not be assumed to
// run on any particular goroutine.
func (c *Controller) SetStatusCallback(cb func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCb = cb
}

// SetTextCallback registers the recognized-text listener. Must be called
// before Start.
func (c *Controller) SetTextCallback(cb func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textCb = cb
}

// AttachPresenter wires a Presenter as both callbacks
func (c *Controller) AttachPresenter(p Presenter) {
	c.SetStatusCallback(p.RenderStatus)
	c.SetTextCallback(p.RenderText)
}

// SetInputDevice queues a switch of the capture device (nil = default).
// Applied immediately at stream level; an in-progress utterance is abandoned.
func (c *Controller) SetInputDevice(device *int) {
	c.postControl(controlMsg{kind: ctlInputDevice, device: device}, func() {
		if err := c.capture.SetDevice(device); err != nil {
			log.Printf("⚠️ Pipeline: Input device change failed: %v", err)
		}
	})
}

// SetOutputDevice queues a switch of the playback device (nil = default)
func (c *Controller) SetOutputDevice(device *int) {
	c.postControl(controlMsg{kind: ctlOutputDevice, device: device}, func() {
		c.playback.SetDevice(device)
	})
}

// SetVoice queues a voice change, applied at the next utterance boundary
func (c *Controller) SetVoice(voiceID string) {
	c.postControl(controlMsg{kind: ctlVoice, voice: voiceID}, func() {
		c.mu.Lock()
		c.voiceID = voiceID
		c.mu.Unlock()
	})
}

// SetSpeed queues a speed change, applied at the next utterance boundary.
// Out-of-range values are rejected with a log message.
func (c *Controller) SetSpeed(speed float64) {
	if speed < tts.SpeedMin || speed > tts.SpeedMax {
		log.Printf("⚠️ Pipeline: Rejected speed %.2f (valid range %.1f-%.1f)", speed, tts.SpeedMin, tts.SpeedMax)
		return
	}
	c.postControl(controlMsg{kind: ctlSpeed, speed: speed}, func() {
		c.mu.Lock()
		c.speed = speed
		c.mu.Unlock()
	})
}

// Voices returns the synthesizer's voice catalogue
func (c *Controller) Voices() map[string]tts.Voice {
	return c.synth.Voices()
}

// postControl enqueues a control message while running, or applies the
// change directly when no worker owns the state
func (c *Controller) postControl(msg controlMsg, direct func()) {
	c.mu.Lock()
	running := c.running
	ch := c.controlCh
	c.mu.Unlock()

	if !running {
		direct()
		return
	}

	select {
	case ch <- msg:
	default:
		log.Println("⚠️ Pipeline: Control queue full, dropping reconfiguration")
	}
}

// worker wraps a worker body with panic recovery. An escaped fault must
// never silently kill a worker and leave the controller running in an
// inconsistent state, so it transitions the pipeline to StateError instead.
func (c *Controller) worker(name string, ctx context.Context, body func(context.Context) error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("❌ Pipeline: %s worker panic: %v", name, r)
				c.enterError()
			}
		}()

		if err := body(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("❌ Pipeline: %s worker failed: %v", name, err)
			c.enterError()
		}
		return nil
	}
}

func (c *Controller) enterError() {
	c.state.Store(int32(StateError))
	c.postStatus()
}

// segmentWorker dequeues frames, runs the segmenter, and on utterance end
// invokes the (potentially slow, blocking) recognizer. Handoff to the
// synthesis worker is single-slot: when synthesis is still busy with an
// earlier result, this worker blocks while capture keeps filling its own
// bounded queue. That serialization is also what guarantees results are
// delivered in utterance-completion order.
func (c *Controller) segmentWorker(ctx context.Context) error {
	seg := vad.NewSegmenter(c.vadConfig)
	frames := c.capture.Frames()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-frames:
			if c.segReset.CompareAndSwap(true, false) {
				// Input discontinuity: abandon the utterance, never splice
				// audio from two devices together
				seg.Reset()
			}

			event := seg.Process(frame)
			switch event.Type {
			case vad.EventUtteranceStarted:
				log.Println("🎙️ Pipeline: Speech detected")

			case vad.EventUtteranceEnded:
				if err := c.recognizeAndHandoff(ctx, event.Utterance); err != nil {
					return err
				}
			}
		}
	}
}

func (c *Controller) recognizeAndHandoff(ctx context.Context, utterance *vad.Utterance) error {
	log.Printf("🎙️ Pipeline: Utterance %s ended (%.1fs)", utterance.ID, utterance.Duration().Seconds())

	// Recognizing is entered only from Listening: while an earlier result is
	// still synthesizing or speaking, the reported state keeps tracking that
	// result and the new utterance queues behind it
	c.setStateFrom(StateListening, StateRecognizing)
	c.postStatus()

	results, err := c.recognizer.Recognize(ctx, utterance)
	c.recognizer.Reset()

	text := stt.FinalText(results)
	if err != nil || text == "" {
		if err != nil {
			// Utterance loss, never fatal: log, update status, keep listening
			log.Printf("❌ Pipeline: Recognition of utterance %s failed: %v", utterance.ID, err)
		}
		c.setStateFrom(StateRecognizing, StateListening)
		c.postStatus()
		return nil
	}

	log.Printf("💬 Pipeline: Recognized %q (utterance %s)", text, utterance.ID)
	c.postText(text)

	select {
	case c.handoff <- pendingResult{id: utterance.ID, text: text, utteranceEnd: utterance.End}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// synthWorker receives final text, invokes the blocking synthesizer, then
// streams the result to playback
func (c *Controller) synthWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pending := <-c.handoff:
			c.setStateIfRunning(StateSynthesizing)
			c.postStatus()

			// Voice and speed are read here, at the utterance boundary, so a
			// live reconfiguration never tears an in-flight request
			c.mu.Lock()
			req := tts.Request{Text: pending.text, VoiceID: c.voiceID, Speed: c.speed}
			c.mu.Unlock()

			chunks, err := c.synth.Synthesize(ctx, req)
			if err != nil {
				log.Printf("❌ Pipeline: Synthesis of utterance %s failed: %v", pending.id, err)
				c.backToListening()
				continue
			}
			if len(chunks) == 0 {
				c.backToListening()
				continue
			}

			c.setStateIfRunning(StateSpeaking)
			c.postStatus()

			err = c.playback.Play(ctx, chunks, func() {
				latency := time.Since(pending.utteranceEnd)
				c.latencyMs.Store(math.Float64bits(float64(latency.Milliseconds())))
				log.Printf("⏱️ Pipeline: Utterance %s speaking after %dms", pending.id, latency.Milliseconds())
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("❌ Pipeline: Playback failed: %v", err)
			}

			c.backToListening()
		}
	}
}

// controlWorker applies reconfiguration messages. Device switches happen
// immediately at stream level; voice and speed land in controller state and
// take effect at the next utterance boundary.
func (c *Controller) controlWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.controlCh:
			switch msg.kind {
			case ctlInputDevice:
				if err := c.capture.SetDevice(msg.device); err != nil {
					// Previous device stays active
					log.Printf("⚠️ Pipeline: Input device change failed, keeping previous: %v", err)
					c.postStatus()
					continue
				}
				c.segReset.Store(true)
				log.Println("🎤 Pipeline: Input device switched, abandoning in-progress utterance")
				c.postStatus()

			case ctlOutputDevice:
				c.playback.SetDevice(msg.device)
				log.Println("🔊 Pipeline: Output device switched")
				c.postStatus()

			case ctlVoice:
				c.mu.Lock()
				c.voiceID = msg.voice
				c.mu.Unlock()
				log.Printf("🗣️ Pipeline: Voice set to %s", msg.voice)

			case ctlSpeed:
				c.mu.Lock()
				c.speed = msg.speed
				c.mu.Unlock()
				log.Printf("🗣️ Pipeline: Speed set to %.2fx", msg.speed)
			}
		}
	}
}

func (c *Controller) backToListening() {
	c.setStateIfRunning(StateListening)
	c.postStatus()
}

// setStateFrom transitions only when the pipeline is currently in from
func (c *Controller) setStateFrom(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// setStateIfRunning transitions unless the pipeline has already entered
// StateError or returned to StateIdle
func (c *Controller) setStateIfRunning(state State) {
	for {
		current := c.state.Load()
		if State(current) == StateError || State(current) == StateIdle {
			return
		}
		if c.state.CompareAndSwap(current, int32(state)) {
			return
		}
	}
}

// postStatus publishes a status snapshot, dropping it if the dispatch queue
// is full. Dispatch is fire-and-forget: a slow consumer can never stall a
// worker.
func (c *Controller) postStatus() {
	c.mu.Lock()
	running := c.running
	ch := c.statusCh
	c.mu.Unlock()
	if !running {
		return
	}

	select {
	case ch <- c.Status():
	default:
	}
}

func (c *Controller) postText(text string) {
	c.mu.Lock()
	running := c.running
	ch := c.textCh
	c.mu.Unlock()
	if !running {
		return
	}

	select {
	case ch <- text:
	default:
		log.Println("⚠️ Pipeline: Text queue full, dropping recognized text event")
	}
}

func (c *Controller) drainFrames() {
	for {
		select {
		case <-c.capture.Frames():
		default:
			return
		}
	}
}
