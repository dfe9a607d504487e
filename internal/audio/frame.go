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

package audio

import (
	"math"
	"time"
)

// Frame is one fixed-size block of captured PCM samples. A Frame is immutable
// once captured and moves between pipeline stages; it is owned by whichever
// queue currently holds it.
type Frame struct {
	Samples    []float32
	SampleRate int
	Timestamp  time.Time
}

// Duration returns the playback duration of the frame
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(f.Samples)) / float64(f.SampleRate) * float64(time.Second))
}

// Chunk is one PCM waveform segment produced by synthesis. It is owned by
// Playback until fully rendered, then discarded.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback duration of the chunk
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// RMSEnergy calculates the RMS energy of an audio buffer
func RMSEnergy(buffer []float32) float64 {
	if len(buffer) == 0 {
		return 0
	}

	var sum float64
	for _, sample := range buffer {
		sum += float64(sample * sample)
	}

	return math.Sqrt(sum / float64(len(buffer)))
}

// BytesToFloat32 converts 16-bit little-endian PCM bytes to float32 samples
// in [-1, 1]. An odd trailing byte is dropped.
func BytesToFloat32(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		val := int16(uint16(data[i]) | uint16(data[i+1])<<8)
		samples = append(samples, float32(val)/32767.0)
	}
	return samples
}

// Float32ToBytes converts float32 samples in [-1, 1] to 16-bit little-endian
// PCM bytes, clamping out-of-range values.
func Float32ToBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		scaled := sample * 32768
		var val int16
		if scaled > 32767 {
			val = 32767
		} else if scaled <= -32768 {
			val = -32767
		} else {
			val = int16(scaled)
		}
		data[i*2] = byte(val)
		data[i*2+1] = byte(val >> 8)
	}
	return data
}
