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

// Package cond implements conditional assembly: the IF*/ELSE/ENDIF stack
// and the condition predicates IF accepts (SET, symbol attributes, REG,
// MIC, EXPR, IFEQ/IFNE/IFGT/.../IFC).
package cond

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rcornwell/compass70/internal/expr"
	"github.com/rcornwell/compass70/internal/symtab"
)

// Stack is the nested boolean stack conditional assembly maintains: the
// top entry is whether the current lexical scope should assemble.
type Stack struct {
	values []bool
}

// New returns a stack with the single always-true outer scope.
func New() *Stack {
	return &Stack{values: []bool{true}}
}

// Active reports whether lines at the current nesting level should be
// assembled.
func (s *Stack) Active() bool {
	return s.values[len(s.values)-1]
}

// PushIf evaluates to "parent AND condition" per spec.md §5's IF* rule.
func (s *Stack) PushIf(condition bool) {
	s.values = append(s.values, s.Active() && condition)
}

// Else flips the innermost scope: "parent AND t" becomes "parent AND
// NOT t", preserving the surrounding (already-false) scopes.
func (s *Stack) Else() error {
	if len(s.values) < 2 {
		return errf("ELSE without matching IF")
	}
	top := s.values[len(s.values)-1]
	parent := s.values[len(s.values)-2]
	s.values[len(s.values)-1] = parent && !top
	return nil
}

// EndIf pops the innermost scope.
func (s *Stack) EndIf() error {
	if len(s.values) < 2 {
		return errf("ENDIF without matching IF")
	}
	s.values = s.values[:len(s.values)-1]
	return nil
}

// Depth reports nesting depth, for the "unbalanced IF/ENDIF at END"
// diagnostic.
func (s *Stack) Depth() int { return len(s.values) - 1 }

type condError struct{ msg string }

func (e *condError) Error() string { return e.msg }
func errf(format string, args ...any) error {
	return &condError{fmt.Sprintf(format, args...)}
}

var ifcPattern = regexp.MustCompile(`(?i)^(-?\w+)\s*,(.*)$`)
var regPattern = regexp.MustCompile(`(?i)^[ABX][0-7]$`)

var keywordCondTypes = map[string]bool{
	"ABS": true, "-ABS": true, "REL": true, "-REL": true, "COM": true, "-COM": true,
	"EXT": true, "-EXT": true, "LCM": true, "-LCM": true, "LOC": true, "-LOC": true,
	"DEF": true, "-DEF": true, "REG": true, "-REG": true, "MIC": true, "-MIC": true,
	"CP": true, "PP": true, "TPA": true, "TPB": true, "TPC": true, "TPD": true,
	"TPE": true, "TPF": true,
}

// Evaluator evaluates IF/IFEQ/.../IFC operand text into a boolean using
// the expression evaluator and symbol table.
type Evaluator struct {
	Eval *expr.Evaluator
	Sym  *symtab.Table
}

// Evaluate decides the truth value of one conditional mnemonic's operand
// text. Any evaluation failure is reported as false, matching spec.md
// §5's "error in condition means it's false" rule; the caller is
// expected to have already logged the diagnostic.
func (c *Evaluator) Evaluate(mnemonic string, operandStr string, line int) (bool, error) {
	mnemonic = strings.ToUpper(mnemonic)

	operandForEval := operandStr
	if mnemonic != "IFC" {
		operandForEval = firstField(operandStr)
	}

	switch mnemonic {
	case "IF":
		return c.evalIF(operandForEval, line)
	case "IFEQ", "IFNE", "IFGT", "IFGE", "IFLT", "IFLE":
		return c.evalCompare(mnemonic, operandForEval, line)
	case "IFPL", "IFMI":
		return c.evalSign(mnemonic, operandForEval, line)
	case "IFC":
		return c.evalIFC(operandStr)
	case "IFCP":
		return true, nil
	case "IFPP":
		return false, nil
	default:
		return false, nil
	}
}

func firstField(s string) string {
	if i := strings.IndexAny(s, ".*"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func (c *Evaluator) evalIF(operand string, line int) (bool, error) {
	parts := splitCommaTrim(operand)
	if len(parts) == 0 {
		return false, errf("IF requires operands")
	}
	condType := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		if condType == "SET" || condType == "-SET" {
			arg = parts[1]
		} else {
			arg = strings.Join(parts[1:], ",")
			if !keywordCondTypes[condType] && condType != "SET" && condType != "-SET" {
				if arg != "" {
					arg = condType + "," + arg
				} else {
					arg = condType
				}
				condType = "EXPR"
			}
		}
	} else if condType != "SET" && condType != "-SET" && !isNoArgKeyword(condType) {
		arg = condType
		condType = "EXPR"
	}

	switch condType {
	case "SET":
		if arg == "" {
			return false, errf("IF SET requires a symbol name")
		}
		return c.Sym.IsDefined(strings.ToUpper(arg), ""), nil
	case "-SET":
		if arg == "" {
			return false, errf("IF -SET requires a symbol name")
		}
		return !c.Sym.IsDefined(strings.ToUpper(arg), ""), nil
	case "ABS", "-ABS", "REL", "-REL", "COM", "-COM", "EXT", "-EXT", "LCM", "-LCM", "LOC", "-LOC", "DEF", "-DEF":
		if arg == "" {
			return false, errf("IF %s requires an argument", condType)
		}
		entry, ok := c.Sym.Lookup(arg, line, c.Eval.State.CurrentQualifier(), true)
		switch condType {
		case "DEF":
			return ok, nil
		case "-DEF":
			return !ok, nil
		}
		if !ok {
			return false, nil
		}
		switch condType {
		case "ABS":
			return entry.Type == symtab.Absolute, nil
		case "-ABS":
			return entry.Type != symtab.Absolute, nil
		case "REL":
			return entry.Type == symtab.Relocatable, nil
		case "-REL":
			return entry.Type != symtab.Relocatable, nil
		default:
			return false, nil
		}
	case "REG", "-REG":
		if arg == "" {
			return false, errf("IF %s requires an argument", condType)
		}
		isReg := regPattern.MatchString(strings.ToUpper(arg))
		if condType == "REG" {
			return isReg, nil
		}
		return !isReg, nil
	case "MIC", "-MIC":
		if arg == "" {
			return false, errf("IF %s requires an argument", condType)
		}
		_, isMic := c.Eval.MicroValue(arg)
		if condType == "MIC" {
			return isMic, nil
		}
		return !isMic, nil
	case "EXPR":
		v, err := c.Eval.Evaluate(arg, line, false)
		if err != nil {
			return false, err
		}
		return v.Val != 0, nil
	case "CP":
		return true, nil
	case "PP":
		return false, nil
	case "TPA", "TPB", "TPC", "TPD", "TPE", "TPF":
		return false, nil
	default:
		v, err := c.Eval.Evaluate(condType, line, false)
		if err != nil {
			return false, err
		}
		return v.Val != 0, nil
	}
}

func isNoArgKeyword(s string) bool {
	switch s {
	case "CP", "PP", "TPA", "TPB", "TPC", "TPD", "TPE", "TPF":
		return true
	}
	return false
}

func (c *Evaluator) evalCompare(mnemonic string, operand string, line int) (bool, error) {
	parts := splitCommaTrim(operand)
	if len(parts) != 2 {
		return false, errf("%s requires two operands", mnemonic)
	}
	v1, err := c.Eval.Evaluate(parts[0], line, false)
	if err != nil {
		return false, err
	}
	v2, err := c.Eval.Evaluate(parts[1], line, false)
	if err != nil {
		return false, err
	}
	switch mnemonic {
	case "IFEQ":
		return v1.Val == v2.Val && v1.Type == v2.Type, nil
	case "IFNE":
		return v1.Val != v2.Val || v1.Type != v2.Type, nil
	case "IFGT":
		return v1.Val > v2.Val, nil
	case "IFGE":
		return v1.Val >= v2.Val, nil
	case "IFLT":
		return v1.Val < v2.Val, nil
	case "IFLE":
		return v1.Val <= v2.Val, nil
	}
	return false, nil
}

func (c *Evaluator) evalSign(mnemonic string, operand string, line int) (bool, error) {
	v, err := c.Eval.Evaluate(operand, line, false)
	if err != nil {
		return false, err
	}
	if mnemonic == "IFPL" {
		return v.Val >= 0, nil
	}
	return v.Val < 0, nil
}

func (c *Evaluator) evalIFC(operandStr string) (bool, error) {
	m := ifcPattern.FindStringSubmatch(strings.TrimSpace(operandStr))
	if m == nil {
		return false, errf("invalid IFC format. Expected 'OP,dSTRING1dSTRING2d'")
	}
	op := strings.ToUpper(m[1])
	rest := strings.TrimSpace(m[2])
	if rest == "" {
		return false, errf("missing strings for IFC")
	}
	delim := rest[0]
	body := rest[1:]
	first := strings.IndexByte(body, delim)
	if first < 0 {
		return false, errf("invalid IFC string format or mismatched delimiters: '%s'", rest)
	}
	s1 := body[:first]
	remainder := body[first+1:]
	second := strings.IndexByte(remainder, delim)
	if second < 0 {
		return false, errf("invalid IFC string format or mismatched delimiters: '%s'", rest)
	}
	s2 := remainder[:second]

	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	s1 = padRight(s1, maxLen)
	s2 = padRight(s2, maxLen)

	switch op {
	case "EQ":
		return s1 == s2, nil
	case "NE":
		return s1 != s2, nil
	case "GT":
		return s1 > s2, nil
	case "GE":
		return s1 >= s2, nil
	case "LT":
		return s1 < s2, nil
	case "LE":
		return s1 <= s2, nil
	case "-NE":
		return s1 == s2, nil
	case "-EQ":
		return s1 != s2, nil
	case "-GT":
		return s1 <= s2, nil
	case "-GE":
		return s1 < s2, nil
	case "-LT":
		return s1 >= s2, nil
	case "-LE":
		return s1 > s2, nil
	}
	return false, errf("unknown IFC operator: '%s'", op)
}

func padRight(s string, n int) string {
	for len(s) < n {
		s += "\x00"
	}
	return s
}

func splitCommaTrim(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, strings.TrimSpace(p))
	}
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}
