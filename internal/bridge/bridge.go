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

// Package bridge publishes pipeline events over NATS and accepts remote
// control commands. The bridge is optional; the pipeline runs fully local
// without it.
package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vocalshift/vocalshift/internal/pipeline"
)

// Conn is the slice of *nats.Conn the bridge needs, extracted so tests can
// substitute an in-memory implementation
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (Subscription, error)
	Drain() error
}

// Subscription is the part of *nats.Subscription the bridge uses
type Subscription interface {
	Unsubscribe() error
}

// natsConn adapts *nats.Conn to the Conn interface
type natsConn struct {
	*nats.Conn
}

func (c natsConn) Subscribe(subject string, handler nats.MsgHandler) (Subscription, error) {
	return c.Conn.Subscribe(subject, handler)
}

// WrapConn adapts an established *nats.Conn for use with New
func WrapConn(conn *nats.Conn) Conn {
	return natsConn{conn}
}

// Controller is the remote-controllable surface of the pipeline
type Controller interface {
	SetVoice(voiceID string)
	SetSpeed(speed float64)
	SetInputDevice(device *int)
	SetOutputDevice(device *int)
}

// StatusEvent is the JSON payload published on <prefix>.status
type StatusEvent struct {
	State         string    `json:"state"`
	IsSpeaking    bool      `json:"is_speaking"`
	IsProcessing  bool      `json:"is_processing"`
	LatencyMs     float64   `json:"latency_ms"`
	FramesDropped uint64    `json:"frames_dropped"`
	Timestamp     time.Time `json:"timestamp"`
}

// TextEvent is the JSON payload published on <prefix>.text
type TextEvent struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// controlPayload covers every <prefix>.control.* command body
type controlPayload struct {
	Voice  string  `json:"voice,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Device *int    `json:"device,omitempty"`
}

// Connect establishes a NATS connection with retry and reconnect handling
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("⚠️ Bridge: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ Bridge: NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Printf("✅ Bridge: Connected to NATS at %s", url)
	return conn, nil
}

// Bridge relays pipeline events to NATS subjects and control commands back
type Bridge struct {
	conn       Conn
	prefix     string
	controller Controller
	subs       []Subscription
}

// New creates a bridge over an established connection. Subjects are rooted
// at prefix (e.g. "voice" gives voice.status, voice.text, voice.control.*).
func New(conn Conn, prefix string, controller Controller) *Bridge {
	return &Bridge{conn: conn, prefix: prefix, controller: controller}
}

// Start subscribes to the control subjects
func (b *Bridge) Start() error {
	handlers := map[string]nats.MsgHandler{
		b.prefix + ".control.voice":         b.handleVoice,
		b.prefix + ".control.speed":         b.handleSpeed,
		b.prefix + ".control.input_device":  b.handleInputDevice,
		b.prefix + ".control.output_device": b.handleOutputDevice,
	}

	for subject, handler := range handlers {
		sub, err := b.conn.Subscribe(subject, handler)
		if err != nil {
			b.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		b.subs = append(b.subs, sub)
	}

	log.Printf("✅ Bridge: Listening for control commands on %s.control.*", b.prefix)
	return nil
}

// Stop unsubscribes from the control subjects and drains the connection
func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("⚠️ Bridge: Unsubscribe failed: %v", err)
		}
	}
	b.subs = nil

	if err := b.conn.Drain(); err != nil {
		log.Printf("⚠️ Bridge: Drain failed: %v", err)
	}
	log.Println("🔌 Bridge: Stopped")
}

// PublishStatus sends a status snapshot on <prefix>.status
func (b *Bridge) PublishStatus(status pipeline.Status) error {
	event := StatusEvent{
		State:         status.State.String(),
		IsSpeaking:    status.IsSpeaking,
		IsProcessing:  status.IsProcessing,
		LatencyMs:     status.LatencyMs,
		FramesDropped: status.FramesDropped,
		Timestamp:     time.Now(),
	}
	return b.publish(b.prefix+".status", event)
}

// PublishText sends recognized text on <prefix>.text
func (b *Bridge) PublishText(text string) error {
	return b.publish(b.prefix+".text", TextEvent{Text: text, Timestamp: time.Now()})
}

func (b *Bridge) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (b *Bridge) handleVoice(msg *nats.Msg) {
	payload, ok := b.decode(msg)
	if !ok || payload.Voice == "" {
		return
	}
	log.Printf("📥 Bridge: Remote voice change to %s", payload.Voice)
	b.controller.SetVoice(payload.Voice)
}

func (b *Bridge) handleSpeed(msg *nats.Msg) {
	payload, ok := b.decode(msg)
	if !ok || payload.Speed == 0 {
		return
	}
	log.Printf("📥 Bridge: Remote speed change to %.2fx", payload.Speed)
	b.controller.SetSpeed(payload.Speed)
}

func (b *Bridge) handleInputDevice(msg *nats.Msg) {
	payload, ok := b.decode(msg)
	if !ok {
		return
	}
	log.Println("📥 Bridge: Remote input device change")
	b.controller.SetInputDevice(payload.Device)
}

func (b *Bridge) handleOutputDevice(msg *nats.Msg) {
	payload, ok := b.decode(msg)
	if !ok {
		return
	}
	log.Println("📥 Bridge: Remote output device change")
	b.controller.SetOutputDevice(payload.Device)
}

func (b *Bridge) decode(msg *nats.Msg) (controlPayload, bool) {
	var payload controlPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Printf("⚠️ Bridge: Malformed control message on %s: %v", msg.Subject, err)
		return payload, false
	}
	return payload, true
}
