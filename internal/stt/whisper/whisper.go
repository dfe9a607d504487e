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

// Package whisper provides the whisper.cpp-backed stt.Recognizer.
//
// It lives in its own package so that consumers of the stt interfaces never
// pull in the CGO bindings: the whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH, and only binaries that actually construct this recognizer
// pay that cost.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/vocalshift/vocalshift/internal/stt"
	"github.com/vocalshift/vocalshift/internal/vad"
)

// Compile-time assertion that Recognizer satisfies stt.Recognizer
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements stt.Recognizer using the whisper.cpp CGO bindings.
//
// The model is loaded once in Load and shared across decodes; each decode
// creates a fresh whisper context, so no state carries over between
// utterances.
type Recognizer struct {
	modelPath string
	language  string
	model     whisperlib.Model
}

// Option is a functional option for configuring a Recognizer
type Option func(*Recognizer)

// WithLanguage sets the language code for transcription (e.g. "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// New creates a recognizer that will load the whisper.cpp model from
// modelPath on Load
func New(modelPath string, opts ...Option) *Recognizer {
	r := &Recognizer{
		modelPath: modelPath,
		language:  "en",
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load loads the whisper model. Idempotent: a second call after success is a
// no-op, and a call after failure retries the load.
func (r *Recognizer) Load(ctx context.Context, progress func(fraction float64)) error {
	if r.model != nil {
		if progress != nil {
			progress(1)
		}
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &stt.ModelLoadError{Model: r.modelPath, Err: err}
	}
	if r.modelPath == "" {
		return &stt.ModelLoadError{Model: r.modelPath, Err: errors.New("model path is empty")}
	}

	if progress != nil {
		progress(0)
	}

	// whisper.cpp loads the whole model in one call; no finer progress is
	// available from the bindings
	model, err := whisperlib.New(r.modelPath)
	if err != nil {
		return &stt.ModelLoadError{Model: r.modelPath, Err: err}
	}

	r.model = model
	if progress != nil {
		progress(1)
	}

	log.Printf("✅ Whisper: Loaded model %s", r.modelPath)
	return nil
}

// Recognize decodes one utterance with a fresh whisper context and returns a
// single final result
func (r *Recognizer) Recognize(ctx context.Context, utterance *vad.Utterance) ([]stt.Result, error) {
	if r.model == nil {
		return nil, &stt.RecognitionError{Err: errors.New("model not loaded")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &stt.RecognitionError{Err: err}
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return nil, &stt.RecognitionError{Err: fmt.Errorf("create context: %w", err)}
	}

	if err := wctx.SetLanguage(r.language); err != nil {
		log.Printf("⚠️ Whisper: Failed to set language %q, using default: %v", r.language, err)
	}

	if err := wctx.Process(utterance.Samples(), nil, nil, nil); err != nil {
		return nil, &stt.RecognitionError{Err: fmt.Errorf("process audio: %w", err)}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &stt.RecognitionError{Err: fmt.Errorf("read segment: %w", err)}
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return []stt.Result{{Text: strings.Join(parts, " "), Final: true}}, nil
}

// Reset is a no-op: each decode uses a fresh whisper context, so no state
// survives between utterances
func (r *Recognizer) Reset() {}

// Close releases the whisper model
func (r *Recognizer) Close() error {
	if r.model != nil {
		err := r.model.Close()
		r.model = nil
		return err
	}
	return nil
}
