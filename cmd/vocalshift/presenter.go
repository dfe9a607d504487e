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

package main

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/vocalshift/vocalshift/internal/pipeline"
)

var (
	stateStyles = map[pipeline.State]lipgloss.Style{
		pipeline.StateIdle:         lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		pipeline.StateListening:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		pipeline.StateRecognizing:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		pipeline.StateSynthesizing: lipgloss.NewStyle().Foreground(lipgloss.Color("183")),
		pipeline.StateSpeaking:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		pipeline.StateError:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	textStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// consolePresenter renders pipeline events as single console lines. Writes
// are serialized so concurrent status and text dispatch never interleave
// mid-line.
type consolePresenter struct {
	mu      sync.Mutex
	verbose bool
}

var _ pipeline.Presenter = (*consolePresenter)(nil)

func newConsolePresenter(verbose bool) *consolePresenter {
	return &consolePresenter{verbose: verbose}
}

func (p *consolePresenter) RenderStatus(status pipeline.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	style, ok := stateStyles[status.State]
	if !ok {
		style = dimStyle
	}
	line := style.Render(fmt.Sprintf("[%s]", status.State))
	if status.LatencyMs > 0 {
		line += dimStyle.Render(fmt.Sprintf(" latency %.0fms", status.LatencyMs))
	}
	if p.verbose && status.FramesDropped > 0 {
		line += dimStyle.Render(fmt.Sprintf(" dropped %d frames", status.FramesDropped))
	}
	fmt.Println(line)
}

func (p *consolePresenter) RenderText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Println(textStyle.Render("  » " + text))
}

func (p *consolePresenter) PromptError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Println(errorStyle.Render("error: " + err.Error()))
}
