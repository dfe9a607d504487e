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

// Package mock provides an stt.Recognizer test double
package mock

import (
	"context"
	"sync"

	"github.com/vocalshift/vocalshift/internal/stt"
	"github.com/vocalshift/vocalshift/internal/vad"
)

// Compile-time assertion that Recognizer satisfies stt.Recognizer
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer is a scriptable stt.Recognizer for tests
type Recognizer struct {
	mu         sync.Mutex
	results    []stt.Result
	err        error
	loadErr    error
	calls      int
	resets     int
	utterances []*vad.Utterance
}

// New creates a mock recognizer that returns a single final result with the
// given text
func New(text string) *Recognizer {
	return &Recognizer{results: []stt.Result{{Text: text, Final: true, Confidence: 0.95}}}
}

// SetResults replaces the scripted results
func (r *Recognizer) SetResults(results []stt.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = results
}

// SetError makes Recognize fail with err
func (r *Recognizer) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SetLoadError makes Load fail with err
func (r *Recognizer) SetLoadError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadErr = err
}

// Calls returns how many times Recognize was invoked
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Utterances returns the utterances passed to Recognize, in call order
func (r *Recognizer) Utterances() []*vad.Utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*vad.Utterance, len(r.utterances))
	copy(result, r.utterances)
	return result
}

// Load reports full progress and returns the scripted load error, if any
func (r *Recognizer) Load(_ context.Context, progress func(fraction float64)) error {
	r.mu.Lock()
	err := r.loadErr
	r.mu.Unlock()
	if err != nil {
		return &stt.ModelLoadError{Model: "mock", Err: err}
	}
	if progress != nil {
		progress(0)
		progress(1)
	}
	return nil
}

// Recognize records the call and returns the scripted results or error
func (r *Recognizer) Recognize(_ context.Context, utterance *vad.Utterance) ([]stt.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	r.utterances = append(r.utterances, utterance)

	if r.err != nil {
		return nil, &stt.RecognitionError{Err: r.err}
	}

	results := make([]stt.Result, len(r.results))
	copy(results, r.results)
	return results, nil
}

// Reset records the reset
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

// Close is a no-op
func (r *Recognizer) Close() error { return nil }
