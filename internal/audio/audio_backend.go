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

// Backend provides an abstraction layer for audio hardware operations.
// This enables dependency injection and makes testing hardware-independent.
type Backend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// Devices enumerates all audio devices known to the subsystem
	Devices() ([]DeviceInfo, error)

	// OpenInputStream opens a capture stream on the given device.
	// A nil device selects the system default input.
	OpenInputStream(device *int, sampleRate float64, channels, frameSize int) (Stream, error)

	// OpenOutputStream opens a playback stream on the given device.
	// A nil device selects the system default output.
	OpenOutputStream(device *int, sampleRate float64, channels, frameSize int) (Stream, error)
}

// DeviceInfo describes a single audio device as reported by the backend
type DeviceInfo struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// Stream abstracts a single open audio stream
type Stream interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream
	Stop() error

	// Close the audio stream and release resources
	Close() error

	// Read fills buf with captured samples (input streams only).
	// Blocks until one full block has been delivered by the driver.
	Read(buf []float32) error

	// Write renders buf to the device (output streams only).
	// Blocks until the driver has consumed the block.
	Write(buf []float32) error
}
