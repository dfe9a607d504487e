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
	"math"
	"sync"
	"time"
)

// MockBackend implements Backend for testing without hardware dependencies
type MockBackend struct {
	mu                 sync.Mutex
	initialized        bool
	devices            []DeviceInfo
	streamCounter      int
	initError          error
	devicesError       error
	openStreamError    error
	openStreamErrorFor map[int]error
	simulateRealTiming bool
	inputGenerator     func([]float32)
	playbackData       [][]float32
	openInputs         int
	openOutputs        int
}

// NewMockBackend creates a new mock audio backend with a default device list
func NewMockBackend() *MockBackend {
	return &MockBackend{
		devices: []DeviceInfo{
			{Index: 0, Name: "Mock Microphone", MaxInputChannels: 2, DefaultSampleRate: 16000, IsDefaultInput: true},
			{Index: 1, Name: "Mock Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000, IsDefaultOutput: true},
			{Index: 2, Name: "CABLE Input (VB-Audio Virtual Cable)", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		},
		openStreamErrorFor: make(map[int]error),
	}
}

// SetDevices replaces the mock device list
func (m *MockBackend) SetDevices(devices []DeviceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = devices
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetDevicesError configures the backend to fail device enumeration
func (m *MockBackend) SetDevicesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devicesError = err
}

// SetOpenStreamError configures the backend to fail all stream opens
func (m *MockBackend) SetOpenStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openStreamError = err
}

// SetOpenStreamErrorFor configures the backend to fail opens on one device index
func (m *MockBackend) SetOpenStreamErrorFor(device int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openStreamErrorFor[device] = err
}

// SetSimulateRealTiming controls whether mock streams pace reads and writes
// at the real block period
func (m *MockBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// SetInputGenerator sets the function that fills captured blocks. The default
// generates a quiet 440 Hz sine wave.
func (m *MockBackend) SetInputGenerator(generator func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputGenerator = generator
}

// PlaybackData returns all blocks written to mock output streams
func (m *MockBackend) PlaybackData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.playbackData))
	copy(result, m.playbackData)
	return result
}

// PlaybackSampleCount returns the total number of samples written to mock
// output streams
func (m *MockBackend) PlaybackSampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, block := range m.playbackData {
		total += len(block)
	}
	return total
}

// OpenStreamCounts returns how many input and output streams have been opened
func (m *MockBackend) OpenStreamCounts() (inputs, outputs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openInputs, m.openOutputs
}

// Initialize initializes the mock audio subsystem
func (m *MockBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem
func (m *MockBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

// Devices returns the configured mock device list
func (m *MockBackend) Devices() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}
	if m.devicesError != nil {
		return nil, m.devicesError
	}

	result := make([]DeviceInfo, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// OpenInputStream opens a mock capture stream
func (m *MockBackend) OpenInputStream(device *int, sampleRate float64, channels, frameSize int) (Stream, error) {
	stream, err := m.openStream(device, sampleRate, channels, frameSize, true)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.openInputs++
	m.mu.Unlock()
	return stream, nil
}

// OpenOutputStream opens a mock playback stream
func (m *MockBackend) OpenOutputStream(device *int, sampleRate float64, channels, frameSize int) (Stream, error) {
	stream, err := m.openStream(device, sampleRate, channels, frameSize, false)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.openOutputs++
	m.mu.Unlock()
	return stream, nil
}

func (m *MockBackend) openStream(device *int, sampleRate float64, channels, frameSize int, isInput bool) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}
	if m.openStreamError != nil {
		return nil, m.openStreamError
	}
	if device != nil {
		if err, ok := m.openStreamErrorFor[*device]; ok && err != nil {
			return nil, err
		}
		if *device < 0 || *device >= len(m.devices) {
			return nil, fmt.Errorf("device index %d out of range (%d devices)", *device, len(m.devices))
		}
	}

	m.streamCounter++
	return &mockStream{
		backend:            m,
		sampleRate:         sampleRate,
		blockSize:          frameSize * channels,
		isInput:            isInput,
		isOpen:             true,
		simulateRealTiming: m.simulateRealTiming,
	}, nil
}

// mockStream implements Stream for testing
type mockStream struct {
	mu                 sync.Mutex
	backend            *MockBackend
	sampleRate         float64
	blockSize          int
	isInput            bool
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	readError          error
	writeError         error
	phase              float64
}

// SetReadError configures the stream to return an error on Read()
func (s *mockStream) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readError = err
}

// SetWriteError configures the stream to return an error on Write()
func (s *mockStream) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeError = err
}

// Start starts the mock stream
func (s *mockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return fmt.Errorf("stream not open")
	}
	if s.isActive {
		return fmt.Errorf("stream already active")
	}

	s.isActive = true
	return nil
}

// Stop stops the mock stream
func (s *mockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isActive = false
	return nil
}

// Close closes the mock stream
func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = false
	s.isActive = false
	return nil
}

// Read fills buf with generated audio data
func (s *mockStream) Read(buf []float32) error {
	s.mu.Lock()
	if s.readError != nil {
		err := s.readError
		s.mu.Unlock()
		return err
	}
	if !s.isOpen {
		s.mu.Unlock()
		return fmt.Errorf("stream not open")
	}
	if !s.isInput {
		s.mu.Unlock()
		return fmt.Errorf("cannot read from output stream")
	}
	sampleRate := s.sampleRate
	timing := s.simulateRealTiming
	s.mu.Unlock()

	s.backend.mu.Lock()
	generator := s.backend.inputGenerator
	s.backend.mu.Unlock()

	if generator != nil {
		generator(buf)
	} else {
		// Default: quiet 440 Hz sine wave
		s.mu.Lock()
		for i := range buf {
			buf[i] = float32(0.1 * math.Sin(2*math.Pi*440*s.phase))
			s.phase += 1 / sampleRate
		}
		s.mu.Unlock()
	}

	if timing {
		time.Sleep(time.Duration(float64(len(buf)) / sampleRate * float64(time.Second)))
	}

	return nil
}

// Write records buf as played back audio
func (s *mockStream) Write(buf []float32) error {
	s.mu.Lock()
	if s.writeError != nil {
		err := s.writeError
		s.mu.Unlock()
		return err
	}
	if !s.isOpen {
		s.mu.Unlock()
		return fmt.Errorf("stream not open")
	}
	if s.isInput {
		s.mu.Unlock()
		return fmt.Errorf("cannot write to input stream")
	}
	sampleRate := s.sampleRate
	timing := s.simulateRealTiming
	s.mu.Unlock()

	dataCopy := make([]float32, len(buf))
	copy(dataCopy, buf)

	s.backend.mu.Lock()
	s.backend.playbackData = append(s.backend.playbackData, dataCopy)
	s.backend.mu.Unlock()

	if timing {
		time.Sleep(time.Duration(float64(len(buf)) / sampleRate * float64(time.Second)))
	}

	return nil
}
