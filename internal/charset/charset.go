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

// Package charset holds the four fixed 6-bit character-set maps used by the
// CDC 6000 assembler for character constants and DIS text.
package charset

// Code identifies one of the four 6-bit character codes selectable with
// the CODE pseudo-op.
type Code byte

const (
	Display  Code = 'D' // default display code (CDC 64-character ASCII subset)
	Internal Code = 'I' // internal BCD
	External Code = 'E' // external BCD
	ASCII    Code = 'A' // ASCII 6-bit subset
)

// Map is a 6-bit character code table keyed by upper-case rune.
type Map map[rune]byte

// DisplayMap is the default display code: CDC 64-character ASCII subset.
var DisplayMap = Map{
	':': 0o00, 'A': 0o01, 'B': 0o02, 'C': 0o03, 'D': 0o04, 'E': 0o05, 'F': 0o06, 'G': 0o07,
	'H': 0o10, 'I': 0o11, 'J': 0o12, 'K': 0o13, 'L': 0o14, 'M': 0o15, 'N': 0o16, 'O': 0o17,
	'P': 0o20, 'Q': 0o21, 'R': 0o22, 'S': 0o23, 'T': 0o24, 'U': 0o25, 'V': 0o26, 'W': 0o27,
	'X': 0o30, 'Y': 0o31, 'Z': 0o32, '0': 0o33, '1': 0o34, '2': 0o35, '3': 0o36, '4': 0o37,
	'5': 0o40, '6': 0o41, '7': 0o42, '8': 0o43, '9': 0o44, '+': 0o45, '-': 0o46, '*': 0o47,
	'/': 0o50, '(': 0o51, ')': 0o52, '$': 0o53, '=': 0o54, ' ': 0o55, ',': 0o56, '.': 0o57,
	'#': 0o60, '[': 0o61, ']': 0o62, '%': 0o63, '"': 0o64, '_': 0o65, '!': 0o66, '&': 0o67,
	'\'': 0o70, '?': 0o71, '<': 0o72, '>': 0o73, '@': 0o74, '\\': 0o75, '^': 0o76, ';': 0o77,
}

// InternalBCDMap is the internal BCD map: CODE I, and for character
// constants when CODE A is active. Code 0o35 is '>' per the CDC 6000
// character-set documentation (the source this was ported from labels
// this entry ambiguously as "GE"; spec.md directs following the
// documented charset rather than that comment).
var InternalBCDMap = Map{
	'0': 0o00, '1': 0o01, '2': 0o02, '3': 0o03, '4': 0o04, '5': 0o05, '6': 0o06, '7': 0o07,
	'8': 0o10, '9': 0o11, '^': 0o12, '=': 0o13, '#': 0o14, ':': 0o15, '"': 0o16, '_': 0o17,
	'/': 0o20, 'S': 0o21, 'T': 0o22, 'U': 0o23, 'V': 0o24, 'W': 0o25, 'X': 0o26, 'Y': 0o27,
	'Z': 0o30, '?': 0o31, '\\': 0o32, ',': 0o33, '(': 0o34, '>': 0o35, ';': 0o36, ']': 0o37,
	'-': 0o40, 'A': 0o41, 'B': 0o42, 'C': 0o43, 'D': 0o44, 'E': 0o45, 'F': 0o46, 'G': 0o47,
	'H': 0o50, 'I': 0o51, '@': 0o52, '$': 0o53, '*': 0o54, ' ': 0o55, '!': 0o56, '&': 0o57,
	'+': 0o60, 'J': 0o61, 'K': 0o62, 'L': 0o63, 'M': 0o64, 'N': 0o65, 'O': 0o66, 'P': 0o67,
	'Q': 0o70, 'R': 0o71, '<': 0o72, '.': 0o73, ')': 0o74, '[': 0o75, '%': 0o76, '\'': 0o77,
}

// ExternalBCDMap is the external BCD map: CODE E.
var ExternalBCDMap = Map{
	':': 0o00, '1': 0o01, '2': 0o02, '3': 0o03, '4': 0o04, '5': 0o05, '6': 0o06, '7': 0o07,
	'8': 0o10, '9': 0o11, '0': 0o12, '=': 0o13, '"': 0o14, '@': 0o15, '%': 0o16, '[': 0o17,
	' ': 0o20, '/': 0o21, 'S': 0o22, 'T': 0o23, 'U': 0o24, 'V': 0o25, 'W': 0o26, 'X': 0o27,
	'Y': 0o30, 'Z': 0o31, ']': 0o32, ',': 0o33, '(': 0o34, '_': 0o35, '#': 0o36, '&': 0o37,
	'-': 0o40, 'J': 0o41, 'K': 0o42, 'L': 0o43, 'M': 0o44, 'N': 0o45, 'O': 0o46, 'P': 0o47,
	'Q': 0o50, 'R': 0o51, '!': 0o52, '$': 0o53, '*': 0o54, '\'': 0o55, '?': 0o56, '>': 0o57,
	'+': 0o60, 'A': 0o61, 'B': 0o62, 'C': 0o63, 'D': 0o64, 'E': 0o65, 'F': 0o66, 'G': 0o67,
	'H': 0o70, 'I': 0o71, '<': 0o72, '.': 0o73, ')': 0o74, '\\': 0o75, '^': 0o76, ';': 0o77,
}

// ASCII6BitMap is the ASCII 6-bit subset: used for DIS content when CODE A
// is active (character constants under CODE A instead use InternalBCDMap).
var ASCII6BitMap = Map{
	' ': 0o00, '!': 0o01, '"': 0o02, '#': 0o03, '$': 0o04, '%': 0o05, '&': 0o06, '\'': 0o07,
	'(': 0o10, ')': 0o11, '*': 0o12, '+': 0o13, ',': 0o14, '-': 0o15, '.': 0o16, '/': 0o17,
	'0': 0o20, '1': 0o21, '2': 0o22, '3': 0o23, '4': 0o24, '5': 0o25, '6': 0o26, '7': 0o27,
	'8': 0o30, '9': 0o31, ':': 0o32, ';': 0o33, '<': 0o34, '=': 0o35, '>': 0o36, '?': 0o37,
	'@': 0o40, 'A': 0o41, 'B': 0o42, 'C': 0o43, 'D': 0o44, 'E': 0o45, 'F': 0o46, 'G': 0o47,
	'H': 0o50, 'I': 0o51, 'J': 0o52, 'K': 0o53, 'L': 0o54, 'M': 0o55, 'N': 0o56, 'O': 0o57,
	'P': 0o60, 'Q': 0o61, 'R': 0o62, 'S': 0o63, 'T': 0o64, 'U': 0o65, 'V': 0o66, 'W': 0o67,
	'X': 0o70, 'Y': 0o71, 'Z': 0o72, '[': 0o73, '\\': 0o74, ']': 0o75, '^': 0o76, '_': 0o77,
}

// BinaryZero is the universal 6-bit binary zero used as the DIS terminator
// and as the fill code for C/L/Z justification under codes A and I.
const BinaryZero byte = 0

// ForCode returns the character map to use for character-constant encoding
// under the given current code, the blank fill code, and the "zero
// character" fill code (the glyph '0' under that map).
func ForCode(code Code) (m Map, blank byte, zeroChar byte) {
	switch code {
	case ASCII:
		// Character constants under CODE A use the internal BCD map; DIS
		// content under CODE A uses the ASCII 6-bit map (see DISContentMap).
		return InternalBCDMap, InternalBCDMap[' '], InternalBCDMap['0']
	case External:
		return ExternalBCDMap, ExternalBCDMap[' '], ExternalBCDMap['0']
	case Internal:
		return InternalBCDMap, InternalBCDMap[' '], InternalBCDMap['0']
	default: // Display, and any unrecognized code defaults to Display.
		return DisplayMap, DisplayMap[' '], DisplayMap['0']
	}
}

// DISContentMap returns the map used to pack DIS string content for the
// active code: like ForCode except CODE A selects the ASCII 6-bit map
// rather than internal BCD.
func DISContentMap(code Code) (m Map, blank byte) {
	if code == ASCII {
		return ASCII6BitMap, ASCII6BitMap[' ']
	}
	m, blank, _ = ForCode(code)
	return m, blank
}

// FillCode returns the fill code used to pad a character constant of the
// given justification type (H/A/R fill with blank; L/C/Z fill with the
// mode's zero, which is true binary zero for codes A and I, and the
// character '0' for codes D and E).
func FillCode(code Code, typeChar byte) byte {
	_, blank, zeroChar := ForCode(code)
	switch typeChar {
	case 'H', 'A', 'R':
		return blank
	case 'L', 'C', 'Z':
		if code == ASCII || code == Internal {
			return BinaryZero
		}
		return zeroChar
	default:
		return blank
	}
}
