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

// Package operand parses an instruction's operand text against the
// structural shape its format hint expects: register/register,
// register/K, -Xk, reduced K-only forms, and the rest of the small set
// of COMPASS addressing idioms.
package operand

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rcornwell/compass70/internal/expr"
	"github.com/rcornwell/compass70/internal/symtab"
)

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }
func errf(format string, args ...any) error { return &Error{fmt.Sprintf(format, args...)} }

const regPat = `([ABX])([0-7])`

var (
	singleRegRegex  = regexp.MustCompile(`(?i)^` + regPat + `$`)
	negXKRegex      = regexp.MustCompile(`(?i)^-` + regPat + `$`)
	regOpRegRegex   = regexp.MustCompile(`(?i)^(` + regPat + `)\s*([+*/-])\s*(` + regPat + `)$`)
	negRegOpRegRegex = regexp.MustCompile(`(?i)^-(` + regPat + `)\s*([+*/-])\s*(` + regPat + `)$`)
	regCommaKRegex  = regexp.MustCompile(`(?i)^(` + regPat + `)\s*,\s*(.+)$`)
	regOpKRegex     = regexp.MustCompile(`(?i)^(` + regPat + `)\s*([+-])\s*(.+)$`)
	intConstRegex   = regexp.MustCompile(`(?i)^[0-9]+[BDO]?$`)
	noOperandTail   = regexp.MustCompile(`^\s*(\*.*|\..*)?$`)
)

// Parsed is the structural result of decoding one operand string.
type Parsed struct {
	HasI, HasJ, HasK bool
	I, J, K           int
	Op                byte
	RegType           byte

	HasKExpr bool
	KVal     int64
	KType    symtab.Type
	KBlock   string

	HasJK bool
	JK    int64
	JKType symtab.Type

	Format string // the matched structural shape, for diagnostics
}

// Parse decodes operandStr against expectedFormat (one of the format
// hints from the instruction map: "", "K", "JK", "AJ+K", "XJ*XK",
// "BI,K", ...).
func Parse(operandStr string, expectedFormat string, ev *expr.Evaluator, line int, suppressUndefined bool) (Parsed, error) {
	operandStr = strings.TrimSpace(operandStr)
	format := strings.ToUpper(expectedFormat)
	var p Parsed

	if format == "" {
		if operandStr != "" && !noOperandTail.MatchString(operandStr) {
			return p, errf("expected no operands, got '%s'", operandStr)
		}
		p.Format = ""
		return p, nil
	}

	if operandStr == "" {
		if strings.Contains(format, "K") && !strings.Contains(format, "JK") {
			p.HasKExpr = true
			p.KType = symtab.Absolute
			p.Format = "K"
			return p, nil
		}
		if strings.Contains(format, "JK") {
			p.HasJK = true
			p.JKType = symtab.Absolute
			p.Format = "JK"
			return p, nil
		}
	}

	if m := regOpRegRegex.FindStringSubmatch(operandStr); m != nil {
		jn, _ := strconv.Atoi(m[3])
		kn, _ := strconv.Atoi(m[7])
		p.HasJ, p.J = true, jn
		p.HasK, p.K = true, kn
		p.Op = m[4][0]
		p.RegType = strings.ToUpper(m[2])[0]
		p.Format = fmt.Sprintf("%sJ%c%sK", strings.ToUpper(m[2]), p.Op, strings.ToUpper(m[6]))
		return p, nil
	}

	if m := negRegOpRegRegex.FindStringSubmatch(operandStr); m != nil {
		kn, _ := strconv.Atoi(m[3])
		jn, _ := strconv.Atoi(m[7])
		p.HasK, p.K = true, kn
		p.HasJ, p.J = true, jn
		p.Op = m[4][0]
		p.RegType = strings.ToUpper(m[2])[0]
		p.Format = fmt.Sprintf("-%sK%c%sJ", strings.ToUpper(m[2]), p.Op, strings.ToUpper(m[6]))
		return p, nil
	}

	if m := regCommaKRegex.FindStringSubmatch(operandStr); m != nil {
		r1t, r1n, kExpr := m[2], m[3], m[4]
		if rt, rn, err := parseRegister(kExpr); err == nil {
			jn, _ := strconv.Atoi(r1n)
			p.HasJ, p.J = true, jn
			p.HasK, p.K = true, rn
			p.Format = fmt.Sprintf("%sJ,%sK", strings.ToUpper(r1t), strings.ToUpper(string(rt)))
			return p, nil
		}
		kval, ktype, kblock, err := parseExpressionOperand(kExpr, ev, line, suppressUndefined)
		if err != nil {
			return p, errf("cannot parse '%s' as %s%s,K: %v", operandStr, strings.ToUpper(r1t), r1n, err)
		}
		n, _ := strconv.Atoi(r1n)
		if format == "BI,K" {
			p.HasI, p.I = true, n
		} else {
			p.HasJ, p.J = true, n
		}
		p.RegType = strings.ToUpper(r1t)[0]
		p.HasKExpr, p.KVal, p.KType, p.KBlock = true, kval, ktype, kblock
		letter := "J"
		if p.HasI {
			letter = "I"
		}
		p.Format = fmt.Sprintf("%s%s,K", string(p.RegType), letter)
		return p, nil
	}

	if m := regOpKRegex.FindStringSubmatch(operandStr); m != nil {
		r1t, r1n, op, kExpr := m[2], m[3], m[4], m[5]
		kval, ktype, kblock, err := parseExpressionOperand(kExpr, ev, line, suppressUndefined)
		if err != nil {
			return p, errf("cannot parse '%s' as %s%s%s K: %v", operandStr, strings.ToUpper(r1t), r1n, op, err)
		}
		n, _ := strconv.Atoi(r1n)
		isBI := format == "BI+K" || format == "BI-K"
		if isBI {
			p.HasI, p.I = true, n
		} else {
			p.HasJ, p.J = true, n
		}
		p.Op = op[0]
		p.RegType = strings.ToUpper(r1t)[0]
		if p.Op == '-' && ktype == symtab.Absolute {
			kval = -kval
		}
		p.HasKExpr, p.KVal, p.KType, p.KBlock = true, kval, ktype, kblock
		letter := "J"
		if p.HasI {
			letter = "I"
		}
		p.Format = fmt.Sprintf("%s%s%cK", string(p.RegType), letter, p.Op)
		return p, nil
	}

	if m := negXKRegex.FindStringSubmatch(operandStr); m != nil {
		if strings.ToUpper(m[1]) != "X" {
			return p, errf("format -XK expects an X register, got '%s'", operandStr)
		}
		n, _ := strconv.Atoi(m[2])
		p.HasK, p.K = true, n
		p.HasJ, p.J = true, 0
		p.Format = "-XK"
		return p, nil
	}

	if regType, regNum, err := parseRegister(operandStr); err == nil {
		p.Format = fmt.Sprintf("%c%d", regType, regNum)
		if len(format) == 5 && format[0] == 'X' && format[1] == 'J' && format[3] == 'X' && format[4] == 'K' {
			p.HasJ, p.J = true, regNum
			p.HasK, p.K = true, regNum
			p.Op = format[2]
			p.Format = "XJ"
			return p, nil
		}
		if format == "BJ,XK" && regType == 'X' {
			p.HasJ, p.J = true, 0
			p.HasK, p.K = true, regNum
			p.RegType = 'B'
			p.Format = "XK"
			return p, nil
		}
		if format == "XK" {
			p.HasK, p.K = true, regNum
		} else {
			p.HasJ, p.J = true, regNum
		}
		p.RegType = regType
		return p, nil
	}

	isJKHint := (format == "JK" || format == "BJ,XK" || format == "XK") && intConstRegex.MatchString(operandStr)
	if isJKHint {
		kval, ktype, _, err := parseExpressionOperand(operandStr, ev, line, suppressUndefined)
		if err == nil {
			if ktype != symtab.Absolute {
				return p, errf("jk value '%s' must be absolute for LX/AX/MX", operandStr)
			}
			p.HasJK, p.JK, p.JKType = true, kval, ktype
			p.Format = "JK"
			return p, nil
		}
	}

	kval, ktype, kblock, err := parseExpressionOperand(operandStr, ev, line, suppressUndefined)
	if err != nil {
		return p, errf("operand '%s' does not match any known structure for expected format '%s': %v", operandStr, format, err)
	}
	if format == "JK" {
		if ktype != symtab.Absolute {
			return p, errf("jk value '%s' must be absolute", operandStr)
		}
		p.HasJK, p.JK, p.JKType = true, kval, ktype
		p.Format = "JK"
		return p, nil
	}
	p.HasKExpr, p.KVal, p.KType, p.KBlock = true, kval, ktype, kblock
	switch format {
	case "AJ+K", "BJ+K", "XJ+K", "BI+K", "AJ-K", "BJ-K", "XJ-K", "BI-K":
		if strings.HasPrefix(format, "BI") {
			p.HasI, p.I = true, 0
		} else {
			p.HasJ, p.J = true, 0
		}
		p.Op = format[2]
	case "BI,BJ,K", "XJ,K", "BI,K":
		if strings.HasPrefix(format, "BI") {
			p.HasI, p.I = true, 0
		}
		if format != "XJ,K" {
			p.HasJ, p.J = true, 0
		}
	}
	p.Format = "K"
	return p, nil
}

// parseRegister decodes a bare register reference like "B5" or "x0".
func parseRegister(s string) (byte, int, error) {
	s = strings.TrimSpace(s)
	m := singleRegRegex.FindStringSubmatch(s)
	if m == nil {
		if s == "*" {
			return 0, 0, errf("register expected, found location counter '*'")
		}
		return 0, 0, errf("invalid register format: '%s'", s)
	}
	n, _ := strconv.Atoi(m[2])
	return strings.ToUpper(m[1])[0], n, nil
}

func parseExpressionOperand(s string, ev *expr.Evaluator, line int, suppressUndefined bool) (int64, symtab.Type, string, error) {
	v, err := ev.Evaluate(s, line, suppressUndefined)
	if err != nil {
		return 0, 0, "", errf("cannot evaluate expression '%s': %v", s, err)
	}
	return v.Val, v.Type, v.Block, nil
}
