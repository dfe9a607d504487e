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
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend using the real PortAudio library
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// Devices enumerates all devices known to PortAudio
func (p *PortAudioBackend) Devices() ([]DeviceInfo, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	infos := make([]DeviceInfo, 0, len(devices))
	for i, dev := range devices {
		infos = append(infos, DeviceInfo{
			Index:             i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefaultInput:    defaultIn != nil && dev == defaultIn,
			IsDefaultOutput:   defaultOut != nil && dev == defaultOut,
		})
	}

	return infos, nil
}

// OpenInputStream opens a capture stream on the given device (nil = default)
func (p *PortAudioBackend) OpenInputStream(device *int, sampleRate float64, channels, frameSize int) (Stream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	inputBuffer := make([]float32, frameSize*channels)

	if device == nil {
		stream, err := portaudio.OpenDefaultStream(
			channels, // input channels
			0,        // output channels (none for input stream)
			sampleRate,
			frameSize,
			inputBuffer,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open input stream: %w", err)
		}
		return &portAudioStream{stream: stream, inputBuffer: inputBuffer, isInput: true}, nil
	}

	dev, err := p.deviceAt(*device)
	if err != nil {
		return nil, err
	}
	if dev.MaxInputChannels < channels {
		return nil, fmt.Errorf("device %q has no input channels", dev.Name)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.SampleRate = sampleRate
	params.FramesPerBuffer = frameSize

	stream, err := portaudio.OpenStream(params, inputBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", dev.Name, err)
	}

	return &portAudioStream{stream: stream, inputBuffer: inputBuffer, isInput: true}, nil
}

// OpenOutputStream opens a playback stream on the given device (nil = default)
func (p *PortAudioBackend) OpenOutputStream(device *int, sampleRate float64, channels, frameSize int) (Stream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	outputBuffer := make([]float32, frameSize*channels)

	if device == nil {
		stream, err := portaudio.OpenDefaultStream(
			0,        // input channels (none for output stream)
			channels, // output channels
			sampleRate,
			frameSize,
			outputBuffer,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open output stream: %w", err)
		}
		return &portAudioStream{stream: stream, outputBuffer: outputBuffer, isInput: false}, nil
	}

	dev, err := p.deviceAt(*device)
	if err != nil {
		return nil, err
	}
	if dev.MaxOutputChannels < channels {
		return nil, fmt.Errorf("device %q has no output channels", dev.Name)
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = channels
	params.SampleRate = sampleRate
	params.FramesPerBuffer = frameSize

	stream, err := portaudio.OpenStream(params, outputBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream on %q: %w", dev.Name, err)
	}

	return &portAudioStream{stream: stream, outputBuffer: outputBuffer, isInput: false}, nil
}

// deviceAt resolves a device index against the current PortAudio device list
func (p *PortAudioBackend) deviceAt(index int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", index, len(devices))
	}
	return devices[index], nil
}

// portAudioStream implements Stream using PortAudio streams
type portAudioStream struct {
	stream       *portaudio.Stream
	inputBuffer  []float32
	outputBuffer []float32
	isInput      bool
}

// Start starts the audio stream
func (p *portAudioStream) Start() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return p.stream.Start()
}

// Stop stops the audio stream
func (p *portAudioStream) Stop() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return p.stream.Stop()
}

// Close closes the audio stream
func (p *portAudioStream) Close() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return p.stream.Close()
}

// Read reads one block of samples from the input stream
func (p *portAudioStream) Read(buf []float32) error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if !p.isInput {
		return fmt.Errorf("cannot read from output stream")
	}

	if err := p.stream.Read(); err != nil {
		return err
	}

	copy(buf, p.inputBuffer)
	return nil
}

// Write renders one block of samples to the output stream
func (p *portAudioStream) Write(buf []float32) error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if p.isInput {
		return fmt.Errorf("cannot write to input stream")
	}

	copy(p.outputBuffer, buf)
	return p.stream.Write()
}
