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
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	resampling "github.com/tphakala/go-audio-resampling"
)

// DrainPolicy controls what happens to the in-flight chunk when the output
// device is switched mid-playback
type DrainPolicy int

const (
	// DrainCurrent lets the current chunk finish on the old device
	DrainCurrent DrainPolicy = iota

	// DiscardCurrent halts the current chunk immediately
	DiscardCurrent
)

// PlaybackConfig holds configuration for the playback engine
type PlaybackConfig struct {
	SampleRate int // output device rate
	FrameSize  int // samples per write block
	Channels   int
	Policy     DrainPolicy
}

// DefaultPlaybackConfig returns the playback configuration used by the
// pipeline: 22.05kHz mono in 1024-sample blocks, matching typical TTS output.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		SampleRate: 22050,
		FrameSize:  1024,
		Channels:   1,
	}
}

// Playback streams synthesized audio chunks to the selected output device.
// One stream is opened per synthesis result and closed when the result has
// fully rendered, mirroring how short TTS responses are played back.
type Playback struct {
	backend Backend
	config  PlaybackConfig

	mu     sync.Mutex
	device *int

	playing atomic.Bool
	halt    atomic.Bool
}

// NewPlayback creates a playback engine over the given backend
func NewPlayback(backend Backend, config PlaybackConfig) *Playback {
	return &Playback{
		backend: backend,
		config:  config,
	}
}

// IsPlaying reports whether a result is currently being rendered
func (p *Playback) IsPlaying() bool {
	return p.playing.Load()
}

// Device returns the currently selected output device (nil = default)
func (p *Playback) Device() *int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

// SetDevice switches playback to a new output device at runtime. With
// DiscardCurrent the in-flight chunk is halted; with DrainCurrent it finishes
// on the old device. Either way the next result opens on the new device.
// The device list is not re-validated here; a bad index surfaces as an open
// error on the next result, leaving the previous selection intact.
func (p *Playback) SetDevice(device *int) {
	p.mu.Lock()
	p.device = device
	policy := p.config.Policy
	p.mu.Unlock()

	if policy == DiscardCurrent && p.playing.Load() {
		p.Halt()
		log.Println("🔊 Playback: Discarded in-flight audio for device switch")
	}
}

// Halt stops the in-flight result within one write block period. It is a
// no-op when nothing is playing.
func (p *Playback) Halt() {
	if p.playing.Load() {
		p.halt.Store(true)
	}
}

// Play renders one synthesis result's ordered chunks to the output device,
// blocking until the result has fully played, the context is cancelled, or
// Halt is called. onFirstSample, if non-nil, fires just before the first
// block is written; the controller uses it to measure end-to-speech latency.
func (p *Playback) Play(ctx context.Context, chunks []Chunk, onFirstSample func()) error {
	if len(chunks) == 0 {
		return nil
	}

	p.mu.Lock()
	device := p.device
	p.mu.Unlock()

	stream, err := p.backend.OpenOutputStream(device, float64(p.config.SampleRate), p.config.Channels, p.config.FrameSize)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Printf("⚠️ Failed to close output stream: %v", err)
		}
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer func() {
		if err := stream.Stop(); err != nil {
			log.Printf("⚠️ Failed to stop output stream: %v", err)
		}
	}()

	p.playing.Store(true)
	p.halt.Store(false)
	defer p.playing.Store(false)

	first := true
	block := make([]float32, p.config.FrameSize)

	for _, chunk := range chunks {
		samples, err := p.matchRate(chunk)
		if err != nil {
			return err
		}

		for offset := 0; offset < len(samples); {
			if p.halt.Load() {
				log.Println("🔊 Playback: Halted")
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			for i := range block {
				block[i] = 0
			}
			n := copy(block, samples[offset:])
			offset += n

			if first {
				first = false
				if onFirstSample != nil {
					onFirstSample()
				}
			}

			if err := stream.Write(block); err != nil {
				return fmt.Errorf("error writing audio: %w", err)
			}
		}
	}

	return nil
}

// matchRate converts a chunk to the output device rate when they differ
func (p *Playback) matchRate(chunk Chunk) ([]float32, error) {
	if chunk.SampleRate <= 0 || chunk.SampleRate == p.config.SampleRate {
		return chunk.Samples, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(chunk.SampleRate),
		OutputRate: float64(p.config.SampleRate),
		Channels:   p.config.Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(chunk.Samples))
	for i, s := range chunk.Samples {
		input[i] = float64(s)
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	// One-shot conversion: the filter keeps its latency worth of samples
	// buffered, so flush or the chunk tail is lost
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	output = append(output, tail...)

	samples := make([]float32, len(output))
	for i, s := range output {
		samples[i] = float32(s)
	}
	return samples, nil
}
