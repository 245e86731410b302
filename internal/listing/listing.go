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

// Package listing renders a completed assembly's Pass 2 output as the
// paginated source listing and the binary object file spec.md §6
// describes.
package listing

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// linesPerPage is the page body size the listing paginates at, matching
// a standard COMPASS line-printer listing.
const linesPerPage = 55

// Row is one rendered listing line. A plain source line carries Source
// (and, if it produced a word, Octal/Indicator); IsRaw rows are
// pre-formatted multi-line blocks (the literal-pool dump and the
// symbolic reference table) copied verbatim into the listing without
// per-line LC/octal columns.
type Row struct {
	HasLC     bool
	LC        int64
	Severity  byte
	Octal     string
	Source    string
	Indicator *int64 // EQU/SET/EQU* displayed value, when not nil
	IsRaw     bool
}

// Write renders rows as a paginated listing to w, under the given
// program title, starting at page 1.
func Write(w io.Writer, title string, rows []Row) error {
	bw := &pager{w: w, title: title}
	for _, r := range rows {
		if r.IsRaw {
			bw.flushRawBlock(r.Source)
			continue
		}
		if err := bw.writeRow(r); err != nil {
			return err
		}
	}
	return bw.err
}

// pager tracks page/line position and emits page headers as needed.
type pager struct {
	w        io.Writer
	title    string
	page     int
	lineOnPg int
	err      error
}

func (p *pager) header() {
	p.page++
	p.lineOnPg = 0
	fmt.Fprintf(p.w, "\f%-60s PAGE %4d\n\n", p.title, p.page)
}

func (p *pager) newline() {
	if p.lineOnPg == 0 {
		p.header()
	}
	p.lineOnPg++
	if p.lineOnPg > linesPerPage {
		p.header()
		p.lineOnPg = 1
	}
}

func (p *pager) writeRow(r Row) error {
	if p.err != nil {
		return p.err
	}
	p.newline()

	var lc string
	if r.HasLC {
		lc = padOctal(r.LC, 6)
	} else {
		lc = strings.Repeat(" ", 6)
	}
	sev := " "
	if r.Severity != 0 {
		sev = string(r.Severity)
	}
	octal := r.Octal
	if octal == "" {
		octal = strings.Repeat(" ", 20)
	}
	indicator := "  "
	if r.Indicator != nil {
		indicator = padOctal(*r.Indicator, 20)
		octal = strings.Repeat(" ", 20)
	}
	_, err := fmt.Fprintf(p.w, "%s %s %-20s %-20s %s\n", lc, sev, octal, indicator, r.Source)
	p.err = err
	return err
}

// flushRawBlock writes a pre-formatted multi-line block (literal pool
// content, symbolic reference table) line by line, still subject to
// pagination.
func (p *pager) flushRawBlock(block string) {
	if p.err != nil {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		p.newline()
		if _, err := fmt.Fprintln(p.w, line); err != nil {
			p.err = err
			return
		}
	}
}

func padOctal(v int64, width int) string {
	s := strconv.FormatInt(v, 8)
	if len(s) > width {
		s = s[len(s)-width:]
	}
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// WriteBinary renders words as one 60-bit word per line, each as exactly
// 20 zero-padded octal digits, in ascending address order (spec.md §6).
func WriteBinary(w io.Writer, words []int64) error {
	for _, word := range words {
		if _, err := fmt.Fprintln(w, padOctal(word, 20)); err != nil {
			return err
		}
	}
	return nil
}
