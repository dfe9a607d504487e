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

package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocalshift/vocalshift/internal/audio"
	sttmock "github.com/vocalshift/vocalshift/internal/stt/mock"
	"github.com/vocalshift/vocalshift/internal/tts"
	ttsmock "github.com/vocalshift/vocalshift/internal/tts/mock"
)

type testRig struct {
	controller *Controller
	backend    *audio.MockBackend
	recognizer *sttmock.Recognizer
	synth      *ttsmock.Synthesizer
}

func newTestRig(t *testing.T, text string) *testRig {
	t.Helper()
	backend := audio.NewMockBackend()
	// Reads pace at the real block period: an unpaced mock floods the bounded
	// frame queue faster than the workers drain it and scripted speech is
	// dropped before it is ever segmented
	backend.SetSimulateRealTiming(true)
	recognizer := sttmock.New(text)
	synth := ttsmock.New()
	controller := New(Options{
		Backend:     backend,
		Recognizer:  recognizer,
		Synthesizer: synth,
	})
	return &testRig{
		controller: controller,
		backend:    backend,
		recognizer: recognizer,
		synth:      synth,
	}
}

// speechThenSilence returns an input generator producing loudReads buffers of
// steady speech-level signal followed by silence forever
func speechThenSilence(loudReads int) func([]float32) {
	var mu sync.Mutex
	var calls int
	return func(buf []float32) {
		mu.Lock()
		calls++
		loud := calls <= loudReads
		mu.Unlock()
		for i := range buf {
			if loud {
				buf[i] = 0.2
			} else {
				buf[i] = 0
			}
		}
	}
}

func TestControllerLifecycle(t *testing.T) {
	rig := newTestRig(t, "hello")
	rig.backend.SetInputGenerator(func(buf []float32) {
		for i := range buf {
			buf[i] = 0
		}
	})
	c := rig.controller

	if c.Start() {
		t.Error("Start before Initialize should fail")
	}

	var progressMu sync.Mutex
	components := map[string]bool{}
	ok := c.Initialize(func(name string, fraction float64) {
		progressMu.Lock()
		components[name] = true
		progressMu.Unlock()
	})
	require.True(t, ok)
	assert.True(t, components["recognizer"])
	assert.True(t, components["synthesizer"])

	// Second Initialize is a no-op
	require.True(t, c.Initialize(nil))

	require.True(t, c.Start())
	assert.True(t, c.IsRunning())
	assert.Equal(t, StateListening, c.State())

	if c.Start() {
		t.Error("double Start should fail")
	}

	c.Stop()
	assert.False(t, c.IsRunning())
	assert.Equal(t, StateIdle, c.State())

	// Stopping again is a no-op
	c.Stop()
}

func TestInitializeFailureAndRetry(t *testing.T) {
	rig := newTestRig(t, "hello")
	rig.recognizer.SetLoadError(errors.New("model file missing"))

	if rig.controller.Initialize(nil) {
		t.Fatal("Initialize should fail when the recognizer cannot load")
	}
	if rig.controller.Start() {
		t.Fatal("Start should fail after failed Initialize")
	}

	rig.recognizer.SetLoadError(nil)
	require.True(t, rig.controller.Initialize(nil))
}

func TestPipelineEndToEnd(t *testing.T) {
	rig := newTestRig(t, "hello world")
	rig.backend.SetInputGenerator(speechThenSilence(10))
	c := rig.controller

	textCh := make(chan string, 4)
	c.SetTextCallback(func(text string) { textCh <- text })

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())
	defer c.Stop()

	select {
	case text := <-textCh:
		assert.Equal(t, "hello world", text)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recognized text")
	}

	require.Eventually(t, func() bool {
		return rig.backend.PlaybackSampleCount() > 0
	}, 5*time.Second, 10*time.Millisecond, "synthesized audio never reached playback")

	assert.GreaterOrEqual(t, rig.recognizer.Calls(), 1)
	require.NotEmpty(t, rig.synth.Requests())
	req := rig.synth.Requests()[0]
	assert.Equal(t, "hello world", req.Text)
	assert.Equal(t, tts.DefaultVoice, req.VoiceID)
	assert.Equal(t, 1.0, req.Speed)

	require.Eventually(t, func() bool {
		return c.Status().LatencyMs > 0
	}, 5*time.Second, 10*time.Millisecond, "latency was never measured")
}

func TestVoiceAndSpeedAppliedAtUtteranceBoundary(t *testing.T) {
	rig := newTestRig(t, "testing voices")
	rig.backend.SetInputGenerator(speechThenSilence(10))
	c := rig.controller

	// Not running yet: changes apply directly
	c.SetVoice("en_US-ryan-high")
	c.SetSpeed(1.5)
	// Out of range, must be rejected
	c.SetSpeed(3.0)

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())
	defer c.Stop()

	require.Eventually(t, func() bool {
		return len(rig.synth.Requests()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	req := rig.synth.Requests()[0]
	assert.Equal(t, "en_US-ryan-high", req.VoiceID)
	assert.Equal(t, 1.5, req.Speed)
}

func TestRecognitionFailureKeepsListening(t *testing.T) {
	rig := newTestRig(t, "unused")
	rig.recognizer.SetError(errors.New("decode failed"))
	rig.backend.SetInputGenerator(speechThenSilence(10))
	c := rig.controller

	textSeen := make(chan string, 4)
	c.SetTextCallback(func(text string) { textSeen <- text })

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())
	defer c.Stop()

	require.Eventually(t, func() bool {
		return rig.recognizer.Calls() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	// The utterance is lost but the pipeline keeps running
	require.Eventually(t, func() bool {
		return c.State() == StateListening
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsRunning())

	select {
	case text := <-textSeen:
		t.Fatalf("no text should be emitted for a failed recognition, got %q", text)
	default:
	}
	assert.Empty(t, rig.synth.Requests())
}

func TestSynthesisFailureKeepsListening(t *testing.T) {
	rig := newTestRig(t, "some text")
	rig.synth.SetError(errors.New("server gone"))
	rig.backend.SetInputGenerator(speechThenSilence(10))
	c := rig.controller

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())
	defer c.Stop()

	require.Eventually(t, func() bool {
		return rig.synth.Calls() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return c.State() == StateListening
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsRunning())
	assert.Zero(t, rig.backend.PlaybackSampleCount())
}

func TestStopIsPromptAndFinal(t *testing.T) {
	rig := newTestRig(t, "a long sentence")
	rig.backend.SetInputGenerator(speechThenSilence(10))
	// 5 seconds of synthesized audio, so Stop lands mid-playback
	rig.synth.SetChunks([]audio.Chunk{{Samples: make([]float32, 22050*5), SampleRate: 22050}})
	c := rig.controller

	var cbMu sync.Mutex
	statusCalls := 0
	sawSpeaking := make(chan struct{})
	var once sync.Once
	c.SetStatusCallback(func(status Status) {
		cbMu.Lock()
		statusCalls++
		cbMu.Unlock()
		if status.State == StateSpeaking {
			once.Do(func() { close(sawSpeaking) })
		}
	})

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())

	select {
	case <-sawSpeaking:
	case <-time.After(10 * time.Second):
		c.Stop()
		t.Fatal("pipeline never reached Speaking")
	}

	start := time.Now()
	c.Stop()
	assert.Less(t, time.Since(start), 2*time.Second, "Stop should interrupt playback promptly")
	assert.False(t, c.IsRunning())

	// No callback may fire after Stop returns
	cbMu.Lock()
	after := statusCalls
	cbMu.Unlock()
	time.Sleep(100 * time.Millisecond)
	cbMu.Lock()
	assert.Equal(t, after, statusCalls)
	cbMu.Unlock()
}

func TestDeviceSwitchWhileRunning(t *testing.T) {
	rig := newTestRig(t, "after the switch")
	rig.backend.SetInputGenerator(speechThenSilence(10))
	c := rig.controller

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())
	defer c.Stop()

	inputBefore, _ := rig.backend.OpenStreamCounts()
	device := 0
	c.SetInputDevice(&device)

	require.Eventually(t, func() bool {
		inputAfter, _ := rig.backend.OpenStreamCounts()
		return inputAfter > inputBefore
	}, 5*time.Second, 10*time.Millisecond, "capture never reopened on the new device")

	// The pipeline keeps processing after the switch
	require.Eventually(t, func() bool {
		return rig.recognizer.Calls() >= 1
	}, 5*time.Second, 10*time.Millisecond)
}

// twoBursts produces two speech bursts of loudReads buffers each, separated
// by gapReads quiet buffers, then silence forever
func twoBursts(loudReads, gapReads int) func([]float32) {
	var mu sync.Mutex
	var calls int
	period := loudReads + gapReads
	return func(buf []float32) {
		mu.Lock()
		n := calls
		calls++
		mu.Unlock()
		loud := n < 2*period && n%period < loudReads
		for i := range buf {
			if loud {
				buf[i] = 0.2
			} else {
				buf[i] = 0
			}
		}
	}
}

// A second utterance spoken while the first result is still playing queues
// behind it; the reported state keeps tracking the audio being rendered
// instead of flipping back to Recognizing mid-playback
func TestSpeakingStateSurvivesQueuedUtterance(t *testing.T) {
	rig := newTestRig(t, "queued behind")
	rig.backend.SetInputGenerator(twoBursts(10, 30))
	// Enough synthesized audio that the second utterance completes while the
	// first is still rendering
	rig.synth.SetChunks([]audio.Chunk{{Samples: make([]float32, 22050*10), SampleRate: 22050}})
	c := rig.controller

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())
	defer c.Stop()

	require.Eventually(t, func() bool {
		return c.State() == StateSpeaking
	}, 5*time.Second, 10*time.Millisecond, "first result never started playing")

	require.Eventually(t, func() bool {
		return rig.recognizer.Calls() >= 2
	}, 5*time.Second, 10*time.Millisecond, "second utterance never recognized")

	assert.Equal(t, StateSpeaking, c.State())
	assert.True(t, c.Status().IsSpeaking)

	// Each utterance carries its own identity through recognition
	utts := rig.recognizer.Utterances()
	require.GreaterOrEqual(t, len(utts), 2)
	assert.NotEqual(t, uuid.Nil, utts[0].ID)
	assert.NotEqual(t, utts[0].ID, utts[1].ID)
}

func TestSilenceProducesNothing(t *testing.T) {
	rig := newTestRig(t, "should never appear")
	rig.backend.SetInputGenerator(func(buf []float32) {
		for i := range buf {
			buf[i] = 0
		}
	})
	c := rig.controller

	require.True(t, c.Initialize(nil))
	require.True(t, c.Start())
	defer c.Stop()

	time.Sleep(300 * time.Millisecond)

	assert.Zero(t, rig.recognizer.Calls())
	assert.Zero(t, rig.synth.Calls())
	assert.Equal(t, StateListening, c.State())
}

func TestStatusSnapshot(t *testing.T) {
	rig := newTestRig(t, "hello")
	status := rig.controller.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.False(t, status.IsSpeaking)
	assert.False(t, status.IsProcessing)
	assert.Zero(t, status.LatencyMs)
	assert.Zero(t, status.FramesDropped)
}
