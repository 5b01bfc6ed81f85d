// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the scmactivity CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Render returns the icon with its status colour.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes either styled output for a terminal or plain,
// line-oriented output for scripts.
//
// # Description
//
// In machine mode every line is prefixed with its level (OK, WARN, ERROR)
// and tables are tab separated, so output can be piped through cut or awk.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Printer struct {
	out     io.Writer
	machine bool
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, machine bool) *Printer {
	return &Printer{out: out, machine: machine}
}

// Machine reports whether the printer emits plain output.
func (p *Printer) Machine() bool { return p.machine }

// Title prints a heading. Omitted in machine mode.
func (p *Printer) Title(text string) {
	if p.machine {
		return
	}
	fmt.Fprintln(p.out, Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.machine {
		fmt.Fprintf(p.out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.machine {
		fmt.Fprintf(p.out, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if p.machine {
		fmt.Fprintf(p.out, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key string, value any) {
	if p.machine {
		fmt.Fprintf(p.out, "%s=%v\n", key, value)
		return
	}
	fmt.Fprintf(p.out, "  %s %v\n", Styles.Muted.Render(fmt.Sprintf("%-16s", key+":")), value)
}

// Table prints rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.machine {
		fmt.Fprintln(p.out, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.out, strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return Styles.Cell
		})
	fmt.Fprintln(p.out, t.Render())
}

// Box prints content in a rounded box under a title.
func (p *Printer) Box(title, content string) {
	if p.machine {
		fmt.Fprintf(p.out, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}
