/*
	   COMPASS70 - CDC 6000 cross-assembler

	Copyright (c) 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a
	copy of this software and associated documentation files (the "Software"),
	to deal in the Software without restriction, including without limitation
	the rights to use, copy, modify, merge, publish, distribute, sublicense,
	and/or sell copies of the Software, and to permit persons to whom the
	Software is furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
	RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
	IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
	CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

// Package diag collects assembler diagnostics keyed by source line and
// severity code, and answers whether a line already has an error so that
// later stages don't pile on repeats.
package diag

import (
	"fmt"
	"sort"
)

// Severity is the single-letter diagnostic code from spec.md §6.
type Severity byte

const (
	Fatal      Severity = 'F'
	ErrorSev   Severity = 'E'
	Assembly   Severity = 'A'
	Syntax     Severity = 'S'
	Operand    Severity = 'O'
	Undefined  Severity = 'U'
	Value      Severity = 'V'
	Label      Severity = 'L'
	Character  Severity = 'C'
	Relocation Severity = 'R'
	Internal   Severity = 'I'
	Warning    Severity = 'W'
)

// severityRank gives the "higher first wins for a line" ordering from
// spec.md §6: fatal first, warning last.
var severityRank = map[Severity]int{
	Fatal: 0, ErrorSev: 1, Assembly: 1, Syntax: 1, Operand: 1,
	Undefined: 1, Value: 1, Label: 1, Character: 1, Relocation: 1,
	Internal: 1, Warning: 2,
}

// IsError reports whether a severity counts as an error for the "Pass 2 is
// skipped when Pass 1 has any error" rule (spec.md §7). Warning does not.
func (s Severity) IsError() bool {
	return s != Warning
}

// Diagnostic is one collected message.
type Diagnostic struct {
	Line     int
	Severity Severity
	Message  string
}

// Sink accumulates diagnostics across both passes of one assembly.
type Sink struct {
	items      []Diagnostic
	onLine     map[int][]Severity
	errorCount int
	warnCount  int
}

// NewSink returns an empty diagnostics sink.
func NewSink() *Sink {
	return &Sink{onLine: make(map[int][]Severity)}
}

// Add records a diagnostic. A duplicate error on the same line (same
// severity already present) is suppressed per spec.md §7.
func (s *Sink) Add(line int, sev Severity, format string, args ...any) {
	for _, existing := range s.onLine[line] {
		if existing == sev {
			return
		}
	}
	s.onLine[line] = append(s.onLine[line], sev)
	d := Diagnostic{Line: line, Severity: sev, Message: fmt.Sprintf(format, args...)}
	s.items = append(s.items, d)
	if sev.IsError() {
		s.errorCount++
	} else {
		s.warnCount++
	}
}

// HasErrorOnLine reports whether any error-class diagnostic (not warning)
// has already been recorded for the given line.
func (s *Sink) HasErrorOnLine(line int) bool {
	for _, sev := range s.onLine[line] {
		if sev.IsError() {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-class diagnostics recorded.
func (s *Sink) ErrorCount() int { return s.errorCount }

// WarningCount returns the number of warning diagnostics recorded.
func (s *Sink) WarningCount() int { return s.warnCount }

// HasErrors reports whether any error-class diagnostic has been recorded
// across the whole assembly.
func (s *Sink) HasErrors() bool { return s.errorCount > 0 }

// ForLine returns the diagnostics recorded for one line, most severe
// first, in the order spec.md §6 ranks severities.
func (s *Sink) ForLine(line int) []Diagnostic {
	var out []Diagnostic
	for _, d := range s.items {
		if d.Line == line {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return severityRank[out[i].Severity] < severityRank[out[j].Severity]
	})
	return out
}

// All returns every diagnostic recorded, in the order they were added.
func (s *Sink) All() []Diagnostic {
	return append([]Diagnostic(nil), s.items...)
}

// WorstOnLine returns the highest-ranked severity recorded for a line, and
// whether any diagnostic exists on that line at all.
func (s *Sink) WorstOnLine(line int) (Severity, bool) {
	sevs := s.onLine[line]
	if len(sevs) == 0 {
		return 0, false
	}
	best := sevs[0]
	for _, sev := range sevs[1:] {
		if severityRank[sev] < severityRank[best] {
			best = sev
		}
	}
	return best, true
}
