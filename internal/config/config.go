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

// Package config loads and validates the YAML configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vocalshift/vocalshift/internal/tts"
)

// Audio configures capture and playback
type Audio struct {
	InputDevice  *int `yaml:"input_device,omitempty"`  // nil = system default
	OutputDevice *int `yaml:"output_device,omitempty"` // nil = system default
	CaptureRate  int  `yaml:"capture_rate"`
	FrameSize    int  `yaml:"frame_size"`
	QueueSize    int  `yaml:"queue_size"`
	PlaybackRate int  `yaml:"playback_rate"`
	BlockSize    int  `yaml:"block_size"`
}

// VAD configures the energy-based utterance segmenter
type VAD struct {
	SpeechThreshold  float64       `yaml:"speech_threshold"`
	SilenceThreshold float64       `yaml:"silence_threshold"`
	StartFrames      int           `yaml:"start_frames"`
	HangoverFrames   int           `yaml:"hangover_frames"`
	PreRollFrames    int           `yaml:"pre_roll_frames"`
	MaxUtterance     time.Duration `yaml:"max_utterance"`
}

// STT configures the speech recognizer
type STT struct {
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

// TTS configures the speech synthesizer
type TTS struct {
	ServerURL string        `yaml:"server_url"`
	Voice     string        `yaml:"voice"`
	Speed     float64       `yaml:"speed"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Bridge configures the optional NATS event bridge
type Bridge struct {
	Enabled       bool   `yaml:"enabled"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Config is the root of the configuration file
type Config struct {
	Audio  Audio  `yaml:"audio"`
	VAD    VAD    `yaml:"vad"`
	STT    STT    `yaml:"stt"`
	TTS    TTS    `yaml:"tts"`
	Bridge Bridge `yaml:"bridge"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Audio: Audio{
			CaptureRate:  16000,
			FrameSize:    480,
			QueueSize:    64,
			PlaybackRate: 22050,
			BlockSize:    1024,
		},
		VAD: VAD{
			SpeechThreshold:  0.015,
			SilenceThreshold: 0.008,
			StartFrames:      3,
			HangoverFrames:   20,
			PreRollFrames:    10,
			MaxUtterance:     15 * time.Second,
		},
		STT: STT{
			ModelPath: "models/ggml-base.en.bin",
			Language:  "en",
		},
		TTS: TTS{
			ServerURL: "http://localhost:5002",
			Voice:     tts.DefaultVoice,
			Speed:     1.0,
			Timeout:   30 * time.Second,
		},
		Bridge: Bridge{
			Enabled:       false,
			NATSURL:       "nats://localhost:4222",
			SubjectPrefix: "voice",
		},
	}
}

// Load reads the file at path on top of the defaults. A missing file is not
// an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Audio.CaptureRate <= 0 {
		return fmt.Errorf("audio.capture_rate must be positive, got %d", c.Audio.CaptureRate)
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio.frame_size must be positive, got %d", c.Audio.FrameSize)
	}
	if c.Audio.QueueSize <= 0 {
		return fmt.Errorf("audio.queue_size must be positive, got %d", c.Audio.QueueSize)
	}
	if c.Audio.PlaybackRate <= 0 {
		return fmt.Errorf("audio.playback_rate must be positive, got %d", c.Audio.PlaybackRate)
	}
	if c.VAD.SpeechThreshold <= 0 {
		return fmt.Errorf("vad.speech_threshold must be positive, got %g", c.VAD.SpeechThreshold)
	}
	if c.VAD.SilenceThreshold <= 0 || c.VAD.SilenceThreshold > c.VAD.SpeechThreshold {
		return fmt.Errorf("vad.silence_threshold must be in (0, speech_threshold], got %g", c.VAD.SilenceThreshold)
	}
	if c.VAD.StartFrames <= 0 || c.VAD.HangoverFrames <= 0 {
		return fmt.Errorf("vad.start_frames and vad.hangover_frames must be positive")
	}
	if c.VAD.MaxUtterance <= 0 {
		return fmt.Errorf("vad.max_utterance must be positive, got %s", c.VAD.MaxUtterance)
	}
	if c.STT.ModelPath == "" {
		return fmt.Errorf("stt.model_path must not be empty")
	}
	if c.TTS.ServerURL == "" {
		return fmt.Errorf("tts.server_url must not be empty")
	}
	if c.TTS.Speed < tts.SpeedMin || c.TTS.Speed > tts.SpeedMax {
		return fmt.Errorf("tts.speed must be in [%g, %g], got %g", tts.SpeedMin, tts.SpeedMax, c.TTS.Speed)
	}
	if c.Bridge.Enabled && c.Bridge.NATSURL == "" {
		return fmt.Errorf("bridge.nats_url must not be empty when the bridge is enabled")
	}
	return nil
}
