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

package stt

import (
	"errors"
	"testing"
)

func TestFinalText(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    string
	}{
		{"empty", nil, ""},
		{"single final", []Result{{Text: "hello", Final: true}}, "hello"},
		{"partials then final", []Result{
			{Text: "he", Final: false},
			{Text: "hell", Final: false},
			{Text: "hello world", Final: true},
		}, "hello world"},
		{"only partials", []Result{{Text: "he", Final: false}}, ""},
		{"first final wins", []Result{
			{Text: "first", Final: true},
			{Text: "second", Final: true},
		}, "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FinalText(tt.results); got != tt.want {
				t.Errorf("FinalText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModelLoadErrorUnwrap(t *testing.T) {
	inner := errors.New("no such file")
	err := &ModelLoadError{Model: "ggml-base.en.bin", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("ModelLoadError does not unwrap")
	}
	if err.Error() == "" {
		t.Error("empty error message")
	}
}

func TestRecognitionErrorUnwrap(t *testing.T) {
	inner := errors.New("decode aborted")
	err := &RecognitionError{Err: inner}

	if !errors.Is(err, inner) {
		t.Error("RecognitionError does not unwrap")
	}
}
