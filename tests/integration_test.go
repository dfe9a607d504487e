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

package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vocalshift/vocalshift/internal/audio"
	"github.com/vocalshift/vocalshift/internal/config"
	"github.com/vocalshift/vocalshift/internal/device"
	"github.com/vocalshift/vocalshift/internal/pipeline"
	"github.com/vocalshift/vocalshift/internal/stt"
	sttmock "github.com/vocalshift/vocalshift/internal/stt/mock"
	ttsmock "github.com/vocalshift/vocalshift/internal/tts/mock"
	"github.com/vocalshift/vocalshift/internal/vad"
)

// End-to-end pipeline tests over the mock audio backend. No hardware, no
// models, no network: mic input is scripted through the backend's input
// generator and playback lands in the backend's capture buffer.

// silenceGenerator fills every buffer with zeros
func silenceGenerator(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// burstGenerator produces alternating bursts of speech-level signal and
// silence: each cycle is loudReads loud buffers followed by quietReads quiet
// ones, for at most cycles cycles, then silence forever
func burstGenerator(loudReads, quietReads, cycles int) func([]float32) {
	var mu sync.Mutex
	var calls int
	period := loudReads + quietReads
	return func(buf []float32) {
		mu.Lock()
		n := calls
		calls++
		mu.Unlock()

		loud := n < period*cycles && n%period < loudReads
		for i := range buf {
			if loud {
				buf[i] = 0.2
			} else {
				buf[i] = 0
			}
		}
	}
}

// slowRecognizer delays every recognition, holding the segmentation worker
// busy while capture keeps producing frames
type slowRecognizer struct {
	*sttmock.Recognizer
	delay time.Duration
}

func (r *slowRecognizer) Recognize(ctx context.Context, utterance *vad.Utterance) ([]stt.Result, error) {
	time.Sleep(r.delay)
	return r.Recognizer.Recognize(ctx, utterance)
}

func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// Verifies the full state sequence of a single utterance and that the text
// callback fires exactly once
func TestPipeline_SingleUtterance_StateSequence(t *testing.T) {
	backend := audio.NewMockBackend()
	backend.SetSimulateRealTiming(true)
	backend.SetInputGenerator(burstGenerator(10, 1000, 1))
	recognizer := sttmock.New("hello world")
	synth := ttsmock.New()

	controller := pipeline.New(pipeline.Options{
		Backend:     backend,
		Recognizer:  recognizer,
		Synthesizer: synth,
	})

	var mu sync.Mutex
	var states []pipeline.State
	var texts []string
	controller.SetStatusCallback(func(status pipeline.Status) {
		mu.Lock()
		if len(states) == 0 || states[len(states)-1] != status.State {
			states = append(states, status.State)
		}
		mu.Unlock()
	})
	controller.SetTextCallback(func(text string) {
		mu.Lock()
		texts = append(texts, text)
		mu.Unlock()
	})

	if !controller.Initialize(nil) {
		t.Fatal("Initialize failed")
	}
	if !controller.Start() {
		t.Fatal("Start failed")
	}

	waitUntil(t, 5*time.Second, "playback output", func() bool {
		return backend.PlaybackSampleCount() > 0
	})
	waitUntil(t, 5*time.Second, "return to listening", func() bool {
		return controller.State() == pipeline.StateListening
	})
	controller.Stop()

	mu.Lock()
	defer mu.Unlock()

	if len(texts) != 1 || texts[0] != "hello world" {
		t.Fatalf("expected exactly one text callback with %q, got %v", "hello world", texts)
	}

	// Recognizing, Synthesizing and Speaking must each appear, in that order
	want := []pipeline.State{pipeline.StateRecognizing, pipeline.StateSynthesizing, pipeline.StateSpeaking}
	idx := 0
	for _, state := range states {
		if idx < len(want) && state == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Fatalf("state sequence %v is missing transitions, wanted subsequence %v", states, want)
	}
}

// Two utterances spoken back to back must both be recognized and delivered
// in completion order
func TestPipeline_BackToBackUtterances_InOrder(t *testing.T) {
	backend := audio.NewMockBackend()
	backend.SetSimulateRealTiming(true)
	// Two speech bursts separated by enough silence to close each utterance
	backend.SetInputGenerator(burstGenerator(10, 40, 2))
	recognizer := sttmock.New("again")
	synth := ttsmock.New()

	controller := pipeline.New(pipeline.Options{
		Backend:     backend,
		Recognizer:  recognizer,
		Synthesizer: synth,
	})

	if !controller.Initialize(nil) {
		t.Fatal("Initialize failed")
	}
	if !controller.Start() {
		t.Fatal("Start failed")
	}
	defer controller.Stop()

	waitUntil(t, 10*time.Second, "two recognitions", func() bool {
		return recognizer.Calls() >= 2
	})
	waitUntil(t, 10*time.Second, "two syntheses", func() bool {
		return synth.Calls() >= 2
	})

	utterances := recognizer.Utterances()
	if len(utterances) < 2 {
		t.Fatalf("expected at least 2 utterances, got %d", len(utterances))
	}
	if utterances[1].Start.Before(utterances[0].Start) {
		t.Errorf("utterances delivered out of order: %v then %v", utterances[0].Start, utterances[1].Start)
	}
}

// Sustained speech with a slow recognizer must overflow the bounded frame
// queue: the drop counter increases and the pipeline keeps running instead
// of blocking capture
func TestPipeline_FrameOverflow_DropsAndSurvives(t *testing.T) {
	// Unpaced reads on purpose: the mock floods the frame queue far faster
	// than real time, which is exactly the overload this test exercises
	backend := audio.NewMockBackend()
	backend.SetInputGenerator(func(buf []float32) {
		for i := range buf {
			buf[i] = 0.2
		}
	})
	recognizer := &slowRecognizer{Recognizer: sttmock.New("busy"), delay: 150 * time.Millisecond}
	synth := ttsmock.New()

	vadCfg := vad.DefaultConfig()
	// Force-close utterances quickly so the recognizer is hit repeatedly
	vadCfg.MaxUtterance = 300 * time.Millisecond

	controller := pipeline.New(pipeline.Options{
		Backend:     backend,
		Recognizer:  recognizer,
		Synthesizer: synth,
		VAD:         vadCfg,
	})

	if !controller.Initialize(nil) {
		t.Fatal("Initialize failed")
	}
	if !controller.Start() {
		t.Fatal("Start failed")
	}
	defer controller.Stop()

	waitUntil(t, 10*time.Second, "frame drops", func() bool {
		return controller.Status().FramesDropped > 0
	})

	if !controller.IsRunning() {
		t.Fatal("pipeline stopped running under overflow")
	}
	if controller.State() == pipeline.StateError {
		t.Fatal("overflow must be non-fatal, pipeline entered error state")
	}
}

// The pipeline must survive repeated start/stop cycles without leaking state
func TestPipeline_StartStopCycles(t *testing.T) {
	backend := audio.NewMockBackend()
	backend.SetSimulateRealTiming(true)
	backend.SetInputGenerator(silenceGenerator)

	controller := pipeline.New(pipeline.Options{
		Backend:     backend,
		Recognizer:  sttmock.New("cycle"),
		Synthesizer: ttsmock.New(),
	})

	if !controller.Initialize(nil) {
		t.Fatal("Initialize failed")
	}

	for i := 0; i < 3; i++ {
		if !controller.Start() {
			t.Fatalf("cycle %d: Start failed", i)
		}
		if controller.State() != pipeline.StateListening {
			t.Fatalf("cycle %d: expected Listening, got %v", i, controller.State())
		}
		controller.Stop()
		if controller.State() != pipeline.StateIdle {
			t.Fatalf("cycle %d: expected Idle after Stop, got %v", i, controller.State())
		}
	}
}

// A controller wired entirely from a configuration file, the way the CLI
// builds one
func TestPipeline_BuiltFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Voice = "en_US-lessac-medium"
	cfg.TTS.Speed = 1.25
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default-derived config invalid: %v", err)
	}

	backend := audio.NewMockBackend()
	backend.SetSimulateRealTiming(true)
	backend.SetInputGenerator(burstGenerator(10, 1000, 1))
	synth := ttsmock.New()

	controller := pipeline.New(pipeline.Options{
		Backend:     backend,
		Recognizer:  sttmock.New("configured"),
		Synthesizer: synth,
		Capture: audio.CaptureConfig{
			SampleRate: cfg.Audio.CaptureRate,
			FrameSize:  cfg.Audio.FrameSize,
			Channels:   1,
			QueueSize:  cfg.Audio.QueueSize,
		},
		Playback: audio.PlaybackConfig{
			SampleRate: cfg.Audio.PlaybackRate,
			FrameSize:  cfg.Audio.BlockSize,
			Channels:   1,
		},
		VAD: vad.Config{
			SpeechThreshold:  cfg.VAD.SpeechThreshold,
			SilenceThreshold: cfg.VAD.SilenceThreshold,
			StartFrames:      cfg.VAD.StartFrames,
			HangoverFrames:   cfg.VAD.HangoverFrames,
			PreRollFrames:    cfg.VAD.PreRollFrames,
			MaxUtterance:     cfg.VAD.MaxUtterance,
		},
		Voice: cfg.TTS.Voice,
		Speed: cfg.TTS.Speed,
	})

	if !controller.Initialize(nil) {
		t.Fatal("Initialize failed")
	}
	if !controller.Start() {
		t.Fatal("Start failed")
	}
	defer controller.Stop()

	waitUntil(t, 5*time.Second, "synthesis", func() bool {
		return synth.Calls() >= 1
	})

	req := synth.Requests()[0]
	if req.VoiceID != "en_US-lessac-medium" {
		t.Errorf("expected configured voice, got %s", req.VoiceID)
	}
	if req.Speed != 1.25 {
		t.Errorf("expected configured speed 1.25, got %g", req.Speed)
	}
}

// The virtual cable must be discoverable through the registry the same way
// the CLI finds it at startup
func TestDeviceRegistry_VirtualCableDiscovery(t *testing.T) {
	backend := audio.NewMockBackend()
	if err := backend.Initialize(); err != nil {
		t.Fatalf("backend init: %v", err)
	}
	defer func() { _ = backend.Terminate() }()

	registry := device.NewRegistry(backend)

	cable := registry.FindVirtualCable()
	if cable == nil {
		t.Fatal("expected the mock device list to contain a virtual cable")
	}
	if !cable.IsVirtualCable {
		t.Error("cable device not flagged as virtual cable")
	}

	outputs := registry.ListOutputDevices()
	found := false
	for _, d := range outputs {
		if d.Index == cable.Index {
			found = true
		}
	}
	if !found {
		t.Error("virtual cable missing from output device list")
	}
}
