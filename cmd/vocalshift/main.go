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

// Command vocalshift captures microphone speech, replaces it with a
// synthesized voice, and plays the result to an output device (typically a
// virtual audio cable).
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vocalshift/vocalshift/internal/audio"
	"github.com/vocalshift/vocalshift/internal/bridge"
	"github.com/vocalshift/vocalshift/internal/config"
	"github.com/vocalshift/vocalshift/internal/device"
	"github.com/vocalshift/vocalshift/internal/pipeline"
	"github.com/vocalshift/vocalshift/internal/stt/whisper"
	"github.com/vocalshift/vocalshift/internal/tts"
	"github.com/vocalshift/vocalshift/internal/vad"
)

var (
	flagConfig       string
	flagDebug        bool
	flagVoice        string
	flagSpeed        float64
	flagInputDevice  int
	flagOutputDevice int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vocalshift",
		Short: "Real-time voice replacement for calls and streams",
		Long: `VocalShift listens to your microphone, recognizes what you say, and
speaks it back in a synthesized voice on an output device of your choice.
Point the output at a virtual audio cable and select the cable as the
microphone in your conferencing app.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "vocalshift.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the voice replacement pipeline",
		RunE:  runPipeline,
	}
	runCmd.Flags().StringVar(&flagVoice, "voice", "", "synthesis voice (overrides config)")
	runCmd.Flags().Float64Var(&flagSpeed, "speed", 0, "speech speed 0.5-2.0 (overrides config)")
	runCmd.Flags().IntVar(&flagInputDevice, "input-device", -1, "capture device index (default: system default)")
	runCmd.Flags().IntVar(&flagOutputDevice, "output-device", -1, "playback device index (default: virtual cable if found)")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		RunE:  listDevices,
	}

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "List synthesis voices",
		Run:   listVoices,
	}

	rootCmd.AddCommand(runCmd, devicesCmd, voicesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if !flagDebug {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(cfg)

	backend := audio.NewPortAudioBackend()

	recognizer := whisper.New(cfg.STT.ModelPath, whisper.WithLanguage(cfg.STT.Language))
	defer recognizer.Close()

	synth, err := tts.NewPiperSynthesizer(cfg.TTS.ServerURL, tts.WithTimeout(cfg.TTS.Timeout))
	if err != nil {
		return err
	}
	defer synth.Close()

	controller := pipeline.New(pipeline.Options{
		Backend:     backend,
		Recognizer:  recognizer,
		Synthesizer: synth,
		Capture: audio.CaptureConfig{
			SampleRate: cfg.Audio.CaptureRate,
			FrameSize:  cfg.Audio.FrameSize,
			Channels:   1,
			QueueSize:  cfg.Audio.QueueSize,
		},
		Playback: audio.PlaybackConfig{
			SampleRate: cfg.Audio.PlaybackRate,
			FrameSize:  cfg.Audio.BlockSize,
			Channels:   1,
		},
		VAD:   vadConfig(cfg),
		Voice: cfg.TTS.Voice,
		Speed: cfg.TTS.Speed,
	})

	presenter := newConsolePresenter(flagDebug)

	var eventBridge *bridge.Bridge
	if cfg.Bridge.Enabled {
		conn, err := bridge.Connect(cfg.Bridge.NATSURL)
		if err != nil {
			return err
		}
		eventBridge = bridge.New(bridge.WrapConn(conn), cfg.Bridge.SubjectPrefix, controller)
	}

	controller.SetStatusCallback(func(status pipeline.Status) {
		presenter.RenderStatus(status)
		if eventBridge != nil {
			if err := eventBridge.PublishStatus(status); err != nil {
				log.Printf("⚠️ Bridge: %v", err)
			}
		}
	})
	controller.SetTextCallback(func(text string) {
		presenter.RenderText(text)
		if eventBridge != nil {
			if err := eventBridge.PublishText(text); err != nil {
				log.Printf("⚠️ Bridge: %v", err)
			}
		}
	})

	fmt.Println("Loading models...")
	ok := controller.Initialize(func(name string, fraction float64) {
		if flagDebug {
			fmt.Printf("  %s: %.0f%%\n", name, fraction*100)
		}
	})
	if !ok {
		return fmt.Errorf("initialization failed (run with --debug for details)")
	}
	defer backend.Terminate()

	// Output falls back to the virtual cable when present and no device was
	// chosen explicitly
	if cfg.Audio.OutputDevice != nil {
		controller.SetOutputDevice(cfg.Audio.OutputDevice)
	} else {
		registry := device.NewRegistry(backend)
		if cable := registry.FindVirtualCable(); cable != nil {
			fmt.Printf("Routing output to %s\n", cable.Name)
			controller.SetOutputDevice(&cable.Index)
		}
	}
	if cfg.Audio.InputDevice != nil {
		controller.SetInputDevice(cfg.Audio.InputDevice)
	}

	if eventBridge != nil {
		if err := eventBridge.Start(); err != nil {
			return err
		}
		defer eventBridge.Stop()
	}

	if !controller.Start() {
		return fmt.Errorf("failed to start the pipeline")
	}

	fmt.Println("Listening. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nStopping...")
	controller.Stop()

	status := controller.Status()
	if status.FramesDropped > 0 {
		fmt.Printf("Dropped %d frames under load.\n", status.FramesDropped)
	}
	return nil
}

func applyFlags(cfg *config.Config) {
	if flagVoice != "" {
		cfg.TTS.Voice = flagVoice
	}
	if flagSpeed != 0 {
		cfg.TTS.Speed = flagSpeed
	}
	if flagInputDevice >= 0 {
		idx := flagInputDevice
		cfg.Audio.InputDevice = &idx
	}
	if flagOutputDevice >= 0 {
		idx := flagOutputDevice
		cfg.Audio.OutputDevice = &idx
	}
}

func vadConfig(cfg *config.Config) vad.Config {
	return vad.Config{
		SpeechThreshold:  cfg.VAD.SpeechThreshold,
		SilenceThreshold: cfg.VAD.SilenceThreshold,
		StartFrames:      cfg.VAD.StartFrames,
		HangoverFrames:   cfg.VAD.HangoverFrames,
		PreRollFrames:    cfg.VAD.PreRollFrames,
		MaxUtterance:     cfg.VAD.MaxUtterance,
	}
}

func listDevices(cmd *cobra.Command, args []string) error {
	if !flagDebug {
		log.SetOutput(io.Discard)
	}

	backend := audio.NewPortAudioBackend()
	if err := backend.Initialize(); err != nil {
		return fmt.Errorf("audio backend unavailable: %w", err)
	}
	defer backend.Terminate()

	registry := device.NewRegistry(backend)

	fmt.Println("Input devices:")
	printDevices(registry.ListInputDevices())
	fmt.Println("\nOutput devices:")
	printDevices(registry.ListOutputDevices())

	if cable := registry.FindVirtualCable(); cable == nil {
		fmt.Println("\nNo virtual audio cable found. Install VB-Audio Virtual Cable (or BlackHole on macOS) to route the synthesized voice into other applications.")
	}
	return nil
}

func printDevices(devices []device.Device) {
	for _, d := range devices {
		marks := ""
		if d.IsDefault {
			marks += " (default)"
		}
		if d.IsVirtualCable {
			marks += " (virtual cable)"
		}
		fmt.Printf("  [%d] %s%s\n", d.Index, d.Name, marks)
	}
	if len(devices) == 0 {
		fmt.Println("  none found")
	}
}

func listVoices(cmd *cobra.Command, args []string) {
	catalog := tts.Catalog()

	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		voice := catalog[id]
		def := ""
		if id == tts.DefaultVoice {
			def = " (default)"
		}
		fmt.Printf("  %-24s %s [%s, %d Hz]%s\n", id, voice.Description, voice.Language, voice.SampleRate, def)
	}
}
