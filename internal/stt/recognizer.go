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

// Package stt defines the Recognizer adapter over opaque speech-to-text
// engines. The pipeline consumes recognizers through this interface only;
// the concrete engine (whisper.cpp) is wrapped, never exposed.
package stt

import (
	"context"
	"fmt"

	"github.com/vocalshift/vocalshift/internal/vad"
)

// Result is one recognition result for an utterance. A recognizer may emit
// zero or more partial results before a single final one; only the final
// result is forwarded downstream.
type Result struct {
	Text       string
	Final      bool
	Confidence float64
}

// Recognizer decodes utterances into text.
//
// Implementations must be resettable between utterances: no state from one
// decode may leak into the next.
type Recognizer interface {
	// Load prepares the engine (model load). progress receives values in
	// [0, 1]. Failure here is a ModelLoadError and fatal to initialization;
	// Load may be called again after a failure.
	Load(ctx context.Context, progress func(fraction float64)) error

	// Recognize decodes one utterance, returning partials (if any) followed
	// by exactly one final result. Ownership of the utterance transfers to
	// the recognizer for the duration of the call. A decode failure yields
	// a RecognitionError; the caller treats it as utterance loss, never as
	// a fatal pipeline error.
	Recognize(ctx context.Context, utterance *vad.Utterance) ([]Result, error)

	// Reset clears any per-utterance state
	Reset()

	// Close releases the engine
	Close() error
}

// ModelLoadError reports a failure to load a recognition model. It is fatal
// only during initialization.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %q: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// RecognitionError reports a decode failure for a single utterance
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// FinalText returns the text of the final result in results, or "" when no
// final result is present
func FinalText(results []Result) string {
	for _, result := range results {
		if result.Final {
			return result.Text
		}
	}
	return ""
}
