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

package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocalshift/vocalshift/internal/audio"
)

func initBackend(t *testing.T, backend *audio.MockBackend) {
	t.Helper()
	require.NoError(t, backend.Initialize())
	t.Cleanup(func() { _ = backend.Terminate() })
}

func testDevices() []audio.DeviceInfo {
	return []audio.DeviceInfo{
		{Index: 0, Name: "Built-in Microphone", MaxInputChannels: 2, IsDefaultInput: true},
		{Index: 1, Name: "Built-in Speakers", MaxOutputChannels: 2, IsDefaultOutput: true},
		{Index: 2, Name: "CABLE Input (VB-Audio Virtual Cable)", MaxOutputChannels: 2},
		{Index: 3, Name: "USB Headset", MaxInputChannels: 1, MaxOutputChannels: 2},
	}
}

func TestListInputDevices(t *testing.T) {
	backend := audio.NewMockBackend()
	initBackend(t, backend)
	backend.SetDevices(testDevices())
	registry := NewRegistry(backend)

	inputs := registry.ListInputDevices()
	require.Len(t, inputs, 2)

	assert.Equal(t, "Built-in Microphone", inputs[0].Name)
	assert.True(t, inputs[0].IsDefault)
	assert.Equal(t, "USB Headset", inputs[1].Name)
	assert.False(t, inputs[1].IsDefault)
}

func TestListOutputDevices(t *testing.T) {
	backend := audio.NewMockBackend()
	initBackend(t, backend)
	backend.SetDevices(testDevices())
	registry := NewRegistry(backend)

	outputs := registry.ListOutputDevices()
	require.Len(t, outputs, 3)

	assert.True(t, outputs[0].IsDefault, "built-in speakers should be the default output")
	assert.True(t, outputs[1].IsVirtualCable)
	assert.False(t, outputs[2].IsVirtualCable)
}

// A device that is the default output must not be marked default in the
// input list, and vice versa
func TestDefaultFlagsAreDirectional(t *testing.T) {
	backend := audio.NewMockBackend()
	initBackend(t, backend)
	backend.SetDevices([]audio.DeviceInfo{
		{Index: 0, Name: "Duplex Device", MaxInputChannels: 1, MaxOutputChannels: 2, IsDefaultOutput: true},
	})
	registry := NewRegistry(backend)

	inputs := registry.ListInputDevices()
	require.Len(t, inputs, 1)
	assert.False(t, inputs[0].IsDefault)

	outputs := registry.ListOutputDevices()
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].IsDefault)
}

func TestEnumerationFailureYieldsEmptyList(t *testing.T) {
	backend := audio.NewMockBackend()
	initBackend(t, backend)
	backend.SetDevicesError(errors.New("host API unavailable"))
	registry := NewRegistry(backend)

	assert.Empty(t, registry.ListInputDevices())
	assert.Empty(t, registry.ListOutputDevices())
	assert.Nil(t, registry.FindVirtualCable())
}

func TestFindVirtualCable(t *testing.T) {
	backend := audio.NewMockBackend()
	initBackend(t, backend)
	backend.SetDevices(testDevices())
	registry := NewRegistry(backend)

	cable := registry.FindVirtualCable()
	require.NotNil(t, cable)
	assert.Equal(t, 2, cable.Index)
	assert.True(t, cable.IsVirtualCable)
}

func TestFindVirtualCableAbsent(t *testing.T) {
	backend := audio.NewMockBackend()
	initBackend(t, backend)
	backend.SetDevices([]audio.DeviceInfo{
		{Index: 0, Name: "Built-in Speakers", MaxOutputChannels: 2, IsDefaultOutput: true},
	})
	registry := NewRegistry(backend)

	assert.Nil(t, registry.FindVirtualCable())
}

func TestIsVirtualCableName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"CABLE Input (VB-Audio Virtual Cable)", true},
		{"VB-Cable A", true},
		{"BlackHole 2ch", true},
		{"Loopback Audio", true},
		{"blackhole 16ch", true},
		{"Built-in Speakers", false},
		{"USB Headset", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVirtualCableName(tt.name))
		})
	}
}

func TestDeviceErrorUnwrap(t *testing.T) {
	inner := errors.New("portaudio: host error")
	err := &DeviceError{Op: "enumerate", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "enumerate")
}
