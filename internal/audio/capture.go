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
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueOverflow reports a dropped frame. Overflow is non-fatal: the oldest
// queued frame is discarded so the capture path never stalls the driver.
var ErrQueueOverflow = fmt.Errorf("frame queue overflow")

// CaptureConfig holds configuration for the capture engine
type CaptureConfig struct {
	SampleRate int // samples per second, 16000 is optimal for STT
	FrameSize  int // samples per frame, 480 = 30ms at 16kHz
	Channels   int // 1 = mono
	QueueSize  int // bounded frame queue capacity
}

// DefaultCaptureConfig returns the capture configuration used throughout the
// pipeline: 16kHz mono in 30ms blocks.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate: 16000,
		FrameSize:  480,
		Channels:   1,
		QueueSize:  64,
	}
}

// Capture owns the input audio stream. A background loop reads fixed-size
// blocks from the driver, wraps them into Frames and pushes them onto a
// bounded queue. The delivery path never blocks: on overflow the oldest
// queued frame is dropped and a counter is incremented.
type Capture struct {
	backend Backend
	config  CaptureConfig

	frames  chan Frame
	dropped atomic.Uint64

	mu      sync.Mutex
	stream  Stream
	device  *int
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCapture creates a capture engine over the given backend
func NewCapture(backend Backend, config CaptureConfig) *Capture {
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	return &Capture{
		backend: backend,
		config:  config,
		frames:  make(chan Frame, config.QueueSize),
	}
}

// Frames returns the bounded frame queue. Frames are removed from the queue
// by the consumer; ownership transfers on receive.
func (c *Capture) Frames() <-chan Frame {
	return c.frames
}

// Dropped returns the total number of frames discarded due to queue overflow
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// Device returns the currently selected input device (nil = default)
func (c *Capture) Device() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// Start opens the input stream on the selected device and begins capturing
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("already recording")
	}

	stream, err := c.backend.OpenInputStream(c.device, float64(c.config.SampleRate), c.config.Channels, c.config.FrameSize)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	c.stream = stream
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.captureLoop(stream, c.stopCh)

	log.Println("🎤 Capture: Started audio recording")
	return nil
}

// Stop closes the input stream and stops the capture loop. Frames already
// queued remain readable until drained.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	c.wg.Wait()
	if err := stream.Stop(); err != nil {
		log.Printf("⚠️ Failed to stop input stream: %v", err)
	}
	if err := stream.Close(); err != nil {
		log.Printf("⚠️ Failed to close input stream: %v", err)
	}

	log.Println("🎤 Capture: Stopped audio recording")
}

// SetDevice switches capture to a new input device at runtime. The new stream
// is opened before the old one is closed; if the open fails the previous
// device stays active and an error is returned.
func (c *Capture) SetDevice(device *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		c.device = device
		return nil
	}

	newStream, err := c.backend.OpenInputStream(device, float64(c.config.SampleRate), c.config.Channels, c.config.FrameSize)
	if err != nil {
		return fmt.Errorf("failed to open input stream on new device: %w", err)
	}
	if err := newStream.Start(); err != nil {
		_ = newStream.Close()
		return fmt.Errorf("failed to start input stream on new device: %w", err)
	}

	// Retire the old capture loop, then hand the queue to the new stream
	close(c.stopCh)
	c.wg.Wait()

	if err := c.stream.Stop(); err != nil {
		log.Printf("⚠️ Failed to stop old input stream: %v", err)
	}
	if err := c.stream.Close(); err != nil {
		log.Printf("⚠️ Failed to close old input stream: %v", err)
	}

	c.device = device
	c.stream = newStream
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.captureLoop(newStream, c.stopCh)

	log.Println("🎤 Capture: Switched input device")
	return nil
}

// captureLoop reads blocks from the driver and enqueues them as Frames.
// This loop stands in for a driver-invoked callback: it only enqueues,
// never blocks on the consumer, and never calls into recognition or
// synthesis.
func (c *Capture) captureLoop(stream Stream, stopCh chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		buf := make([]float32, c.config.FrameSize*c.config.Channels)
		if err := stream.Read(buf); err != nil {
			select {
			case <-stopCh:
				// Stream was closed under us during Stop/SetDevice
				return
			default:
			}
			log.Printf("❌ Error reading audio: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		frame := Frame{
			Samples:    buf,
			SampleRate: c.config.SampleRate,
			Timestamp:  time.Now(),
		}

		c.push(frame)
	}
}

// push enqueues a frame, dropping the oldest queued frame on overflow
func (c *Capture) push(frame Frame) {
	select {
	case c.frames <- frame:
		return
	default:
	}

	// Queue full: drop the oldest frame to make room
	select {
	case <-c.frames:
		c.countDrop()
	default:
	}

	select {
	case c.frames <- frame:
	default:
		// Consumer raced us and the queue refilled; drop the new frame instead
		c.countDrop()
	}
}

// countDrop increments the drop counter, logging the overflow on the first
// drop and then every 256th so a sustained stall can't flood the log
func (c *Capture) countDrop() {
	if n := c.dropped.Add(1); n == 1 || n%256 == 0 {
		log.Printf("⚠️ Capture: %v (%d frames dropped)", ErrQueueOverflow, n)
	}
}
