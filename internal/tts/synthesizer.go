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

// Package tts defines the Synthesizer adapter over opaque text-to-speech
// engines and the voice catalogue exposed to the presentation layer.
package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/vocalshift/vocalshift/internal/audio"
)

// SpeedMin and SpeedMax bound the synthesis speed multiplier
const (
	SpeedMin = 0.5
	SpeedMax = 2.0
)

// Request is an immutable synthesis request
type Request struct {
	Text    string
	VoiceID string
	Speed   float64
}

// Validate checks the request's voice and speed. Empty text is valid: it
// short-circuits to "no audio produced" without invoking the engine.
func (r Request) Validate() error {
	if r.VoiceID == "" {
		return &SynthesisError{Voice: r.VoiceID, Err: fmt.Errorf("voice id is empty")}
	}
	if r.Speed < SpeedMin || r.Speed > SpeedMax {
		return &SynthesisError{Voice: r.VoiceID, Err: fmt.Errorf("speed %.2f out of range [%.1f, %.1f]", r.Speed, SpeedMin, SpeedMax)}
	}
	return nil
}

// Empty reports whether the request carries no speakable text
func (r Request) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Voice describes one entry in the voice catalogue
type Voice struct {
	Description string
	Language    string
	SampleRate  int
}

// Synthesizer converts recognized text into waveforms.
//
// Synthesize is a blocking call and must run off the capture path; the
// pipeline invokes it from its synthesis worker only.
type Synthesizer interface {
	// Load prepares the engine and the default voice model. progress
	// receives values in [0, 1]. Load may be called again after a failure.
	Load(ctx context.Context, progress func(fraction float64)) error

	// Synthesize renders one request into ordered audio chunks. Requests
	// with empty or whitespace-only text return no chunks and no error
	// without touching the engine. An unknown voice or engine fault yields
	// a SynthesisError.
	Synthesize(ctx context.Context, req Request) ([]audio.Chunk, error)

	// Voices returns the voice catalogue keyed by voice id
	Voices() map[string]Voice

	// Close releases the engine
	Close() error
}

// SynthesisError reports a synthesis failure for a single request
type SynthesisError struct {
	Voice string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed (voice %q): %v", e.Voice, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// DefaultVoice is the voice selected when the configuration names none
const DefaultVoice = "en_US-amy-medium"

// Catalog is the built-in Piper voice catalogue
func Catalog() map[string]Voice {
	return map[string]Voice{
		"en_US-amy-medium": {
			Description: "Amy (US English, female, medium quality)",
			Language:    "en_US",
			SampleRate:  22050,
		},
		"en_US-lessac-medium": {
			Description: "Lessac (US English, female, medium quality)",
			Language:    "en_US",
			SampleRate:  22050,
		},
		"en_US-ryan-high": {
			Description: "Ryan (US English, male, high quality)",
			Language:    "en_US",
			SampleRate:  22050,
		},
		"en_US-libritts-high": {
			Description: "LibriTTS (US English, multi-speaker, high quality)",
			Language:    "en_US",
			SampleRate:  22050,
		},
	}
}
