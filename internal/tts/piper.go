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

package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/vocalshift/vocalshift/internal/audio"
)

// Compile-time assertion that PiperSynthesizer satisfies Synthesizer
var _ Synthesizer = (*PiperSynthesizer)(nil)

// PiperSynthesizer implements Synthesizer against a local Piper HTTP server.
// Piper keeps one voice model resident at a time; this adapter tracks which
// voice is loaded and issues a (possibly slow) load request when the
// requested voice differs.
type PiperSynthesizer struct {
	serverURL  string
	httpClient *http.Client
	catalog    map[string]Voice

	mu          sync.Mutex
	loadedVoice string
}

// PiperOption is a functional option for configuring a PiperSynthesizer
type PiperOption func(*PiperSynthesizer)

// WithTimeout sets the HTTP request timeout. Defaults to 30s; synthesis of a
// long sentence on CPU can take several seconds.
func WithTimeout(d time.Duration) PiperOption {
	return func(p *PiperSynthesizer) { p.httpClient.Timeout = d }
}

// NewPiperSynthesizer creates a synthesizer against the Piper server at
// serverURL (e.g. "http://127.0.0.1:5000")
func NewPiperSynthesizer(serverURL string, opts ...PiperOption) (*PiperSynthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("piper: server URL must not be empty")
	}

	p := &PiperSynthesizer{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		catalog:    Catalog(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Load verifies the server is reachable and pre-loads the default voice
func (p *PiperSynthesizer) Load(ctx context.Context, progress func(fraction float64)) error {
	if progress != nil {
		progress(0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/health", nil)
	if err != nil {
		return &SynthesisError{Err: fmt.Errorf("build health request: %w", err)}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &SynthesisError{Err: fmt.Errorf("piper server unreachable: %w", err)}
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &SynthesisError{Err: fmt.Errorf("piper server health check returned %d", resp.StatusCode)}
	}

	if progress != nil {
		progress(0.5)
	}

	if err := p.loadVoice(ctx, DefaultVoice); err != nil {
		return err
	}

	if progress != nil {
		progress(1)
	}

	log.Printf("✅ Piper: Server ready at %s", p.serverURL)
	return nil
}

// Synthesize renders one request into a single audio chunk
func (p *PiperSynthesizer) Synthesize(ctx context.Context, req Request) ([]audio.Chunk, error) {
	if req.Empty() {
		return nil, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := p.catalog[req.VoiceID]; !ok {
		return nil, &SynthesisError{Voice: req.VoiceID, Err: fmt.Errorf("unknown voice")}
	}

	if err := p.ensureVoice(ctx, req.VoiceID); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"text":         req.Text,
		"length_scale": 1.0 / req.Speed,
	})
	if err != nil {
		return nil, &SynthesisError{Voice: req.VoiceID, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, &SynthesisError{Voice: req.VoiceID, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &SynthesisError{Voice: req.VoiceID, Err: fmt.Errorf("synthesis request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &SynthesisError{Voice: req.VoiceID, Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Voice: req.VoiceID, Err: fmt.Errorf("read response: %w", err)}
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, &SynthesisError{Voice: req.VoiceID, Err: err}
	}

	samples := audio.BytesToFloat32(wav[info.DataOffset:])
	if info.Channels == 2 {
		samples = downmixStereo(samples)
	}

	return []audio.Chunk{{Samples: samples, SampleRate: info.SampleRate}}, nil
}

// Voices returns the built-in Piper voice catalogue
func (p *PiperSynthesizer) Voices() map[string]Voice {
	result := make(map[string]Voice, len(p.catalog))
	for id, voice := range p.catalog {
		result[id] = voice
	}
	return result
}

// Close releases the HTTP client's idle connections
func (p *PiperSynthesizer) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// ensureVoice issues a voice load when the requested voice is not resident
func (p *PiperSynthesizer) ensureVoice(ctx context.Context, voiceID string) error {
	p.mu.Lock()
	loaded := p.loadedVoice
	p.mu.Unlock()

	if loaded == voiceID {
		return nil
	}
	return p.loadVoice(ctx, voiceID)
}

func (p *PiperSynthesizer) loadVoice(ctx context.Context, voiceID string) error {
	body, err := json.Marshal(map[string]string{"voice": voiceID})
	if err != nil {
		return &SynthesisError{Voice: voiceID, Err: fmt.Errorf("encode voice load: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/load", bytes.NewReader(body))
	if err != nil {
		return &SynthesisError{Voice: voiceID, Err: fmt.Errorf("build voice load: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("🗣️ Piper: Loading voice %s", voiceID)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &SynthesisError{Voice: voiceID, Err: fmt.Errorf("voice load request: %w", err)}
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &SynthesisError{Voice: voiceID, Err: fmt.Errorf("voice load returned %d", resp.StatusCode)}
	}

	p.mu.Lock()
	p.loadedVoice = voiceID
	p.mu.Unlock()
	return nil
}

// downmixStereo averages interleaved stereo samples to mono
func downmixStereo(samples []float32) []float32 {
	mono := make([]float32, len(samples)/2)
	for i := range mono {
		mono[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return mono
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header
type wavInfo struct {
	DataOffset int
	SampleRate int
	Channels   int
}

// parseWAV scans the RIFF/WAVE container and returns the data offset and
// audio format from the "fmt " sub-chunk. Walking the chunks is more robust
// than hardcoding a 44-byte offset because the fmt chunk size may vary.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data, but be defensive
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("WAV response missing data chunk")
}
