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

package charset

import "testing"

// Every map must be a bijection over the full 6-bit code space so that
// encoding and decoding a printable string round-trips exactly.
func TestMapsAreCompleteAndUnique(t *testing.T) {
	maps := map[string]Map{
		"display":      DisplayMap,
		"internal BCD": InternalBCDMap,
		"external BCD": ExternalBCDMap,
		"ASCII 6-bit":  ASCII6BitMap,
	}
	for name, m := range maps {
		if len(m) != 64 {
			t.Errorf("%s map: expected 64 entries, got %d", name, len(m))
		}
		seen := map[byte]rune{}
		for r, code := range m {
			if code > 0o77 {
				t.Errorf("%s map: code for %q out of 6-bit range: %o", name, r, code)
			}
			if prev, dup := seen[code]; dup {
				t.Errorf("%s map: code %o assigned to both %q and %q", name, code, prev, r)
			}
			seen[code] = r
		}
	}
}

func TestForCodeSelection(t *testing.T) {
	tests := []struct {
		code      Code
		wantBlank byte
		wantZero  byte
	}{
		{Display, 0o55, 0o33},
		{Internal, 0o55, 0o00},
		{External, 0o20, 0o12},
		// CODE A uses internal BCD for character constants.
		{ASCII, 0o55, 0o00},
	}
	for _, tt := range tests {
		_, blank, zero := ForCode(tt.code)
		if blank != tt.wantBlank {
			t.Errorf("ForCode(%c): blank = %o, want %o", tt.code, blank, tt.wantBlank)
		}
		if zero != tt.wantZero {
			t.Errorf("ForCode(%c): zero char = %o, want %o", tt.code, zero, tt.wantZero)
		}
	}
}

func TestDISContentMapUsesASCIIForCodeA(t *testing.T) {
	m, blank := DISContentMap(ASCII)
	if m['A'] != ASCII6BitMap['A'] {
		t.Errorf("DIS content under CODE A should use the ASCII 6-bit map")
	}
	if blank != 0o00 {
		t.Errorf("ASCII 6-bit blank = %o, want 0", blank)
	}
	m, _ = DISContentMap(Display)
	if m['A'] != DisplayMap['A'] {
		t.Errorf("DIS content under CODE D should use the display map")
	}
}

func TestFillCode(t *testing.T) {
	tests := []struct {
		code     Code
		typeChar byte
		want     byte
	}{
		{Display, 'H', 0o55},
		{Display, 'R', 0o55},
		{Display, 'L', 0o33}, // '0' in display code
		{External, 'Z', 0o12},
		{Internal, 'L', 0},
		{ASCII, 'C', 0},
	}
	for _, tt := range tests {
		if got := FillCode(tt.code, tt.typeChar); got != tt.want {
			t.Errorf("FillCode(%c, %c) = %o, want %o", tt.code, tt.typeChar, got, tt.want)
		}
	}
}

func TestInternalBCDGreaterThanCode(t *testing.T) {
	if InternalBCDMap['>'] != 0o35 {
		t.Errorf("internal BCD '>' = %o, want 35", InternalBCDMap['>'])
	}
}
