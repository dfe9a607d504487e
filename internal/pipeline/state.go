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

// State is the pipeline's lifecycle state
type State int32

const (
	// StateIdle means the pipeline is not running
	StateIdle State = iota

	// StateListening means frames are being captured and segmented
	StateListening

	// StateRecognizing means an utterance is being decoded
	StateRecognizing

	// StateSynthesizing means final text is being rendered to audio
	StateSynthesizing

	// StateSpeaking means a synthesis result is playing back
	StateSpeaking

	// StateError means a worker fault occurred; only Stop recovers
	StateError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateRecognizing:
		return "recognizing"
	case StateSynthesizing:
		return "synthesizing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a read-only snapshot of the pipeline, derived on demand
type Status struct {
	State         State
	IsSpeaking    bool
	IsProcessing  bool
	LatencyMs     float64 // utterance end to first playback sample; 0 until a result completes
	FramesDropped uint64
}

// Presenter is the capability the presentation layer implements. The
// controller depends only on this interface, never on a concrete UI toolkit,
// so a console loop, a GUI, or a message bridge can all satisfy it.
type Presenter interface {
	RenderStatus(status Status)
	RenderText(text string)
	PromptError(err error)
}
