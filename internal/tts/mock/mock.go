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

// Package mock provides a tts.Synthesizer test double
package mock

import (
	"context"
	"sync"

	"github.com/vocalshift/vocalshift/internal/audio"
	"github.com/vocalshift/vocalshift/internal/tts"
)

// Compile-time assertion that Synthesizer satisfies tts.Synthesizer
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer is a scriptable tts.Synthesizer for tests. By default it
// returns a short burst of samples at 16kHz for any non-empty request.
type Synthesizer struct {
	mu       sync.Mutex
	chunks   []audio.Chunk
	err      error
	loadErr  error
	calls    int
	requests []tts.Request
}

// New creates a mock synthesizer returning 1600 samples (100ms at 16kHz)
func New() *Synthesizer {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.2
	}
	return &Synthesizer{chunks: []audio.Chunk{{Samples: samples, SampleRate: 16000}}}
}

// SetChunks replaces the scripted output chunks
func (s *Synthesizer) SetChunks(chunks []audio.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = chunks
}

// SetError makes Synthesize fail with err
func (s *Synthesizer) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetLoadError makes Load fail with err
func (s *Synthesizer) SetLoadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// Calls returns how many times Synthesize was invoked with speakable text
func (s *Synthesizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests returns the requests passed to Synthesize, in call order
func (s *Synthesizer) Requests() []tts.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]tts.Request, len(s.requests))
	copy(result, s.requests)
	return result
}

// Load reports full progress and returns the scripted load error, if any
func (s *Synthesizer) Load(_ context.Context, progress func(fraction float64)) error {
	s.mu.Lock()
	err := s.loadErr
	s.mu.Unlock()
	if err != nil {
		return &tts.SynthesisError{Err: err}
	}
	if progress != nil {
		progress(0)
		progress(1)
	}
	return nil
}

// Synthesize records the call and returns the scripted chunks or error.
// Empty text short-circuits without recording a call, matching the contract.
func (s *Synthesizer) Synthesize(_ context.Context, req tts.Request) ([]audio.Chunk, error) {
	if req.Empty() {
		return nil, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.requests = append(s.requests, req)

	if s.err != nil {
		return nil, &tts.SynthesisError{Voice: req.VoiceID, Err: s.err}
	}

	chunks := make([]audio.Chunk, len(s.chunks))
	copy(chunks, s.chunks)
	return chunks, nil
}

// Voices returns the built-in catalogue
func (s *Synthesizer) Voices() map[string]tts.Voice {
	return tts.Catalog()
}

// Close is a no-op
func (s *Synthesizer) Close() error { return nil }
