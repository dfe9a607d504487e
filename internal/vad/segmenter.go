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

// Package vad segments a continuous frame stream into utterances using RMS
// energy with hysteresis. Speech onset requires several consecutive frames
// above the speech threshold; speech end requires a longer hangover of
// consecutive frames below the silence threshold, so trailing syllables are
// not clipped.
package vad

import (
	"time"

	"github.com/google/uuid"
	"github.com/vocalshift/vocalshift/internal/audio"
)

// Config holds segmenter tuning. Thresholds are RMS levels of float32 PCM
// in [-1, 1]; frame counts are consecutive-frame hysteresis requirements.
type Config struct {
	SpeechThreshold  float64       // RMS level to count a frame as speech
	SilenceThreshold float64       // RMS level to count a frame as silence
	StartFrames      int           // consecutive speech frames to open an utterance
	HangoverFrames   int           // consecutive silence frames to close an utterance
	PreRollFrames    int           // recent frames prepended to a new utterance
	MaxUtterance     time.Duration // force-close past this duration, even mid-speech
}

// DefaultConfig returns tuning suitable for 16kHz 30ms frames
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		StartFrames:      3,  // ~90ms to start
		HangoverFrames:   20, // ~600ms hangover
		PreRollFrames:    10, // ~300ms pre-roll
		MaxUtterance:     15 * time.Second,
	}
}

// Utterance is one contiguous span of detected speech. It is built
// exclusively inside the segmenter and ownership transfers to the consumer
// when an EventUtteranceEnded is emitted.
type Utterance struct {
	ID     uuid.UUID
	Frames []audio.Frame
	Start  time.Time
	End    time.Time
}

// Duration returns the cumulative audio duration of the utterance
func (u *Utterance) Duration() time.Duration {
	var total time.Duration
	for _, frame := range u.Frames {
		total += frame.Duration()
	}
	return total
}

// Samples concatenates the utterance's frames into one PCM buffer
func (u *Utterance) Samples() []float32 {
	total := 0
	for _, frame := range u.Frames {
		total += len(frame.Samples)
	}

	samples := make([]float32, 0, total)
	for _, frame := range u.Frames {
		samples = append(samples, frame.Samples...)
	}
	return samples
}

// SampleRate returns the shared capture rate of the utterance's frames
func (u *Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].SampleRate
}

// EventType enumerates segmentation events
type EventType int

const (
	// EventNone means the frame produced no boundary
	EventNone EventType = iota

	// EventUtteranceStarted means speech onset was confirmed
	EventUtteranceStarted

	// EventUtteranceEnded means an utterance closed; Event.Utterance is set
	EventUtteranceEnded
)

// Event is the result of processing one frame
type Event struct {
	Type      EventType
	Utterance *Utterance // set only for EventUtteranceEnded
	Energy    float64
}

// Segmenter detects utterance boundaries in a frame stream. It is not safe
// for concurrent use; the pipeline drives it from a single worker.
type Segmenter struct {
	config Config

	inSpeech     bool
	speechCount  int
	silenceCount int

	pending *Utterance
	preRoll []audio.Frame
}

// NewSegmenter creates a segmenter with the given tuning
func NewSegmenter(config Config) *Segmenter {
	if config.StartFrames <= 0 {
		config.StartFrames = 1
	}
	if config.HangoverFrames <= 0 {
		config.HangoverFrames = 1
	}
	return &Segmenter{config: config}
}

// InSpeech reports whether an utterance is currently open
func (s *Segmenter) InSpeech() bool {
	return s.inSpeech
}

// Process consumes one frame and returns the resulting boundary event.
// A frame appended to the pending utterance is moved, not copied; the caller
// must not retain it.
func (s *Segmenter) Process(frame audio.Frame) Event {
	energy := audio.RMSEnergy(frame.Samples)

	if s.inSpeech {
		return s.processSpeech(frame, energy)
	}
	return s.processSilence(frame, energy)
}

// Reset abandons any pending utterance and clears all hysteresis state.
// Used when the input stream is interrupted, e.g. a device switch: an
// in-progress utterance is discarded, never completed across a discontinuity.
func (s *Segmenter) Reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
	s.pending = nil
	s.preRoll = nil
}

func (s *Segmenter) processSilence(frame audio.Frame, energy float64) Event {
	if energy < s.config.SpeechThreshold {
		s.speechCount = 0
		s.pushPreRoll(frame)
		return Event{Type: EventNone, Energy: energy}
	}

	s.speechCount++
	s.pushPreRoll(frame)
	if s.speechCount < s.config.StartFrames {
		return Event{Type: EventNone, Energy: energy}
	}

	// Onset confirmed: open an utterance seeded with the pre-roll, which
	// already contains the onset frames themselves
	s.inSpeech = true
	s.speechCount = 0
	s.silenceCount = 0

	start := frame.Timestamp
	if len(s.preRoll) > 0 {
		start = s.preRoll[0].Timestamp
	}

	s.pending = &Utterance{
		ID:     uuid.New(),
		Frames: s.preRoll,
		Start:  start,
	}
	s.preRoll = nil

	return Event{Type: EventUtteranceStarted, Energy: energy}
}

func (s *Segmenter) processSpeech(frame audio.Frame, energy float64) Event {
	s.pending.Frames = append(s.pending.Frames, frame)

	if energy < s.config.SilenceThreshold {
		s.silenceCount++
		if s.silenceCount >= s.config.HangoverFrames {
			return s.closeUtterance(frame, energy)
		}
	} else {
		s.silenceCount = 0
	}

	if s.config.MaxUtterance > 0 && s.pending.Duration() >= s.config.MaxUtterance {
		// Bound memory and latency: force-close even mid-speech
		return s.closeUtterance(frame, energy)
	}

	return Event{Type: EventNone, Energy: energy}
}

func (s *Segmenter) closeUtterance(frame audio.Frame, energy float64) Event {
	utterance := s.pending
	utterance.End = frame.Timestamp

	s.pending = nil
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0

	return Event{Type: EventUtteranceEnded, Utterance: utterance, Energy: energy}
}

func (s *Segmenter) pushPreRoll(frame audio.Frame) {
	if s.config.PreRollFrames <= 0 {
		return
	}
	s.preRoll = append(s.preRoll, frame)
	if len(s.preRoll) > s.config.PreRollFrames {
		s.preRoll = s.preRoll[1:]
	}
}
