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

// Package lexer splits one line of COMPASS source into its fixed-field
// pieces: label, opcode, operand string, and comment.
package lexer

import "strings"

// specialOperand pseudo-ops swallow the rest of the line as operand text
// with no separate comment field (DIS character strings and titles may
// themselves contain blanks).
var specialOperand = map[string]bool{
	"DIS": true, "TITLE": true, "TTL": true, "COMMENT": true,
}

// Line is one parsed source line.
type Line struct {
	LineNum      int
	Original     string
	Label        string
	Opcode       string
	OperandStr   string
	Comment      string
	IsCommentLine bool
	HasOperand   bool
	HasComment   bool
}

// Parse splits raw (already read, not yet trimmed) source text into a
// Line. A line beginning with '*' is a full comment line. Columns 1-2
// both blank means no label; otherwise the label runs to the first
// blank. The opcode follows any blanks; DIS/TITLE/TTL/COMMENT take the
// entire remainder as operand text, everything else splits at the first
// blank into operand then comment.
func Parse(line string, lineNum int) Line {
	raw := strings.TrimRight(line, " \t\r\n")
	l := Line{LineNum: lineNum, Original: raw}

	if raw == "" {
		return l
	}
	if raw[0] == '*' {
		l.IsCommentLine = true
		l.Comment = raw[1:]
		l.HasComment = true
		return l
	}

	col1 := raw[0]
	col2 := byte(' ')
	if len(raw) > 1 {
		col2 = raw[1]
	}

	pos := 0
	if col1 == ' ' && col2 == ' ' {
		pos = 2
	} else {
		start := 0
		if col1 == ' ' {
			start = 1
		}
		end := start
		for end < len(raw) && raw[end] != ' ' {
			end++
		}
		l.Label = raw[start:end]
		pos = end
	}

	opStart := skipBlanks(raw, pos)
	if opStart == -1 {
		if l.Label == "" {
			firstNonBlank := skipBlanks(raw, 0)
			const commentCol = 30
			if firstNonBlank == -1 || firstNonBlank >= commentCol-1 {
				l.IsCommentLine = true
				l.HasComment = true
				if firstNonBlank != -1 {
					l.Comment = raw[firstNonBlank:]
				}
			}
		}
		return l
	}

	opEnd := opStart
	for opEnd < len(raw) && raw[opEnd] != ' ' {
		opEnd++
	}
	l.Opcode = raw[opStart:opEnd]
	pos = opEnd

	restStart := skipBlanks(raw, pos)
	if restStart == -1 {
		return l
	}
	remainder := raw[restStart:]
	opUpper := strings.ToUpper(l.Opcode)

	if specialOperand[opUpper] {
		l.OperandStr = remainder
		l.HasOperand = true
		return l
	}

	end := 0
	for end < len(remainder) && remainder[end] != ' ' {
		end++
	}
	l.OperandStr = remainder[:end]
	l.HasOperand = true

	commentStart := skipBlanks(remainder, end)
	if commentStart != -1 {
		l.Comment = remainder[commentStart:]
		l.HasComment = true
	}
	return l
}

// skipBlanks returns the index of the first non-blank byte at or after
// from, or -1 if the rest of s is blank.
func skipBlanks(s string, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] != ' ' {
			return i
		}
	}
	return -1
}

// IsNegatingLabel reports whether the label is the bare "-" form used to
// cancel a pending deferred forced-upper decision.
func IsNegatingLabel(label string) bool {
	return label == "-"
}

// IsContinuationLabel reports whether the label is the bare "+" form.
func IsContinuationLabel(label string) bool {
	return label == "+"
}
