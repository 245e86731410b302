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

package listing

import (
	"strconv"
	"strings"
	"testing"
)

func TestWriteBinaryFormatsTwentyDigitOctalWords(t *testing.T) {
	var b strings.Builder
	words := []int64{0, 1, 0o777, int64(1) << 59}
	if err := WriteBinary(&b, words); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != len(words) {
		t.Fatalf("expected %d lines, got %d", len(words), len(lines))
	}
	for i, line := range lines {
		if len(line) != 20 {
			t.Fatalf("line %d: expected 20 octal digits, got %d (%q)", i, len(line), line)
		}
		v, err := strconv.ParseInt(line, 8, 64)
		if err != nil {
			t.Fatalf("line %d: not valid octal: %v", i, err)
		}
		if v != words[i] {
			t.Fatalf("line %d: round-tripped to %o, want %o", i, v, words[i])
		}
	}
}

func TestWritePaginatesAtLineLimit(t *testing.T) {
	rows := make([]Row, linesPerPage+5)
	for i := range rows {
		rows[i] = Row{Source: "* filler line"}
	}
	var b strings.Builder
	if err := Write(&b, "TEST PROGRAM", rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pageBreaks := strings.Count(b.String(), "\f")
	if pageBreaks != 2 {
		t.Fatalf("expected 2 page headers for %d rows at %d lines/page, got %d", len(rows), linesPerPage, pageBreaks)
	}
}

func TestWriteRendersRawBlockVerbatim(t *testing.T) {
	rows := []Row{
		{HasLC: true, LC: 5, Source: "  LABEL  DATA  1"},
		{IsRaw: true, Source: "SYMBOLIC REFERENCE TABLE\n  LABEL   00000000000000000005\n"},
	}
	var b strings.Builder
	if err := Write(&b, "TEST", rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(b.String(), "SYMBOLIC REFERENCE TABLE") {
		t.Fatalf("expected raw block content to appear verbatim in output")
	}
}
