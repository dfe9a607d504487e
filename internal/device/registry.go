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

// Package device enumerates audio devices and identifies virtual-cable
// outputs by name. Enumeration never fails from the caller's perspective:
// backend errors are logged at this boundary and yield an empty list.
package device

import (
	"fmt"
	"log"
	"strings"

	"github.com/vocalshift/vocalshift/internal/audio"
)

// Device describes one audio device visible to the application
type Device struct {
	Index          int
	Name           string
	IsDefault      bool
	IsVirtualCable bool
	InputChannels  int
	OutputChannels int
}

// DeviceError reports a device open or enumeration failure
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s failed: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// virtualCableNames are name fragments of known software-only audio cable
// products. Matching is case-insensitive; being a virtual cable is a naming
// convention, not a hardware property.
var virtualCableNames = []string{
	"vb-audio",
	"vb-cable",
	"cable input",
	"virtual audio cable",
	"blackhole",
	"loopback audio",
}

// Registry lists input and output devices over an audio backend
type Registry struct {
	backend audio.Backend
}

// NewRegistry creates a registry over the given backend
func NewRegistry(backend audio.Backend) *Registry {
	return &Registry{backend: backend}
}

// ListInputDevices returns all devices with input channels, in backend order.
// Enumeration errors are logged and yield an empty slice, never an error.
func (r *Registry) ListInputDevices() []Device {
	return r.list(
		func(info audio.DeviceInfo) bool { return info.MaxInputChannels > 0 },
		func(info audio.DeviceInfo) bool { return info.IsDefaultInput },
	)
}

// ListOutputDevices returns all devices with output channels, in backend order.
// Enumeration errors are logged and yield an empty slice, never an error.
func (r *Registry) ListOutputDevices() []Device {
	return r.list(
		func(info audio.DeviceInfo) bool { return info.MaxOutputChannels > 0 },
		func(info audio.DeviceInfo) bool { return info.IsDefaultOutput },
	)
}

// FindVirtualCable scans output devices for a known virtual-cable product
// name and returns the first match, or nil when none is installed.
func (r *Registry) FindVirtualCable() *Device {
	for _, dev := range r.ListOutputDevices() {
		if dev.IsVirtualCable {
			found := dev
			return &found
		}
	}
	return nil
}

func (r *Registry) list(keep, isDefault func(audio.DeviceInfo) bool) []Device {
	infos, err := r.backend.Devices()
	if err != nil {
		log.Printf("⚠️ %v", &DeviceError{Op: "enumerate", Err: err})
		return []Device{}
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if !keep(info) {
			continue
		}
		devices = append(devices, Device{
			Index:          info.Index,
			Name:           info.Name,
			IsDefault:      isDefault(info),
			IsVirtualCable: IsVirtualCableName(info.Name),
			InputChannels:  info.MaxInputChannels,
			OutputChannels: info.MaxOutputChannels,
		})
	}
	return devices
}

// IsVirtualCableName reports whether an output device name matches a known
// virtual-audio-cable product
func IsVirtualCableName(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range virtualCableNames {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
