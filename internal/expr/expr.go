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

// Package expr implements the assembler's expression evaluator: the
// relocatability algebra over (value, type, block) triples, character
// and numeric constant parsing, micro substitution, and DIS operand
// decoding.
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rcornwell/compass70/internal/charset"
	"github.com/rcornwell/compass70/internal/symtab"
)

const (
	maxEvalDepth  = 50
	maxMicroDepth = 20
	mask60        = (int64(1) << 60) - 1
)

var (
	microRefRegex   = regexp.MustCompile(`%([A-Za-z][A-Za-z0-9]{0,7})%`)
	innerParenRegex = regexp.MustCompile(`\(([^()]*)\)`)
	charDataFmt1    = regexp.MustCompile(`^([+-]?)(\d+)([CHARLZHA])(.*)$`)
	charDataFmt2    = regexp.MustCompile(`^([+-]?)([CHARLZHA])(.)(.*)$`)
	charConstRegex  = regexp.MustCompile(`^(\d+)([CHARLZHA])(.*)$`)
	numConstRegex   = regexp.MustCompile(`^([0-9]+)([BbDdOo]?)$`)
	regRegex        = regexp.MustCompile(`(?i)^[ABX][0-7]$`)
	symRegex        = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{0,7}$`)
	literalRegex    = regexp.MustCompile(`^=([+-]?)(.*)$`)
	disMicroLiteral = regexp.MustCompile(`^(?:(\S+)\s*,\s*)?%"([A-Za-z][A-Za-z0-9]{0,7})"%`)
)

// Error is a non-fatal expression evaluation failure; the caller decides
// what diagnostic severity to attach.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

func errf(format string, args ...any) error { return &Error{fmt.Sprintf(format, args...)} }

// Value is the result of evaluating an expression: a magnitude paired
// with its relocatability type and, for relocatable values, the block
// it is relative to.
type Value struct {
	Val   int64
	Type  symtab.Type
	Block string
}

// Abs wraps a plain absolute integer.
func Abs(v int64) Value { return Value{Val: v, Type: symtab.Absolute} }

// State is the subset of assembler state the evaluator needs: the
// current location, the active block, base, code, and qualifier.
// internal/state's State satisfies this.
type State interface {
	LocationCounter() int64
	PositionCounter() int
	CurrentBlock() string
	LCAbsoluteDueToLOC() bool
	PassNumber() int
	CurrentQualifier() string
	CurrentCode() charset.Code
	CurrentBase() byte // 'D', 'O', or 'M'
	BlockBase(block string) (int64, bool)
}

// Evaluator ties together the symbol table, assembler state, and the
// active micro definitions for one assembly.
type Evaluator struct {
	Sym    *symtab.Table
	State  State
	Micros map[string]string
}

// New returns an evaluator over the given symbol table and state.
func New(sym *symtab.Table, state State, micros map[string]string) *Evaluator {
	if micros == nil {
		micros = map[string]string{}
	}
	return &Evaluator{Sym: sym, State: state, Micros: micros}
}

// SubstituteMicros replaces every %NAME% reference with its micro
// definition, or with a value-is-char symbol of the same name, to a
// bounded recursion depth.
func (e *Evaluator) SubstituteMicros(text string, line int) (string, error) {
	return e.substituteMicros(text, line, 0)
}

func (e *Evaluator) substituteMicros(text string, line int, depth int) (string, error) {
	if depth > maxMicroDepth {
		return text, errf("maximum micro substitution depth (%d) exceeded", maxMicroDepth)
	}
	loc := microRefRegex.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}
	name := strings.ToUpper(text[loc[2]:loc[3]])
	start, end := loc[0], loc[1]

	if val, ok := e.Micros[name]; ok {
		return e.substituteMicros(text[:start]+val+text[end:], line, depth+1)
	}
	if entry, ok := e.Sym.Lookup(name, line, e.State.CurrentQualifier(), true); ok && entry.Flags.ValueIsChar {
		return e.substituteMicros(text[:start]+entry.CharValue+text[end:], line, depth+1)
	}
	return text, errf("undefined micro '%%%s%%'", name)
}

// Evaluate parses and evaluates a full expression string.
func (e *Evaluator) Evaluate(exprStr string, line int, suppressUndefined bool) (Value, error) {
	return e.evaluate(exprStr, line, 0, suppressUndefined)
}

func (e *Evaluator) evaluate(exprStr string, line int, depth int, suppressUndefined bool) (Value, error) {
	if strings.TrimSpace(exprStr) == "" {
		return Abs(0), nil
	}
	if depth > maxEvalDepth {
		return Value{}, errf("max recursion depth exceeded")
	}

	subbed, err := e.SubstituteMicros(exprStr, line)
	if err != nil {
		return Value{}, errf("error during micro substitution in '%s': %v", exprStr, err)
	}

	for {
		loc := innerParenRegex.FindStringSubmatchIndex(subbed)
		if loc == nil {
			break
		}
		sub := subbed[loc[2]:loc[3]]
		start, end := loc[0], loc[1]
		v, err := e.evaluate(sub, line, depth+1, suppressUndefined)
		if err != nil {
			return Value{}, errf("sub-expr '(%s)': %v", sub, err)
		}
		if v.Type == symtab.LiteralAddr {
			v.Type = symtab.Absolute
		}
		prefix, suffix := subbed[:start], subbed[end:]
		before := ""
		if prefix != "" && !strings.ContainsRune("+-*/^( ", rune(prefix[len(prefix)-1])) {
			before = " "
		}
		after := ""
		if suffix != "" && !strings.ContainsRune("+-*/^), ", rune(suffix[0])) {
			after = " "
		}
		subbed = strings.TrimSpace(prefix + before + strconv.FormatInt(v.Val, 10) + after + suffix)
	}

	v, err := e.simpleExpression(subbed, line, suppressUndefined)
	if err != nil {
		if subbed != exprStr {
			return Value{}, errf("simplified '%s' from '%s': %v", subbed, exprStr, err)
		}
		return Value{}, err
	}
	return v, nil
}

var lowOpSplit = regexp.MustCompile(`([+\-^])`)

func (e *Evaluator) simpleExpression(s string, line int, suppressUndefined bool) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Abs(0), nil
	}
	sign := int64(1)
	if strings.HasPrefix(s, "+") {
		s = strings.TrimLeft(s[1:], " ")
	} else if strings.HasPrefix(s, "-") {
		sign = -1
		s = strings.TrimLeft(s[1:], " ")
	}
	if s == "" {
		if sign == -1 {
			return Value{}, errf("expression is only '-'")
		}
		return Abs(0), nil
	}

	parts := splitTrim(lowOpSplit, s)
	if len(parts) == 0 {
		return Value{}, errf("cannot parse ''")
	}
	if parts[0] == "-" {
		if len(parts) < 2 {
			return Value{}, errf("invalid unary: '%s'", s)
		}
		sign *= -1
		parts = parts[1:]
	} else if parts[0] == "+" {
		if len(parts) < 2 {
			return Abs(0), nil
		}
		parts = parts[1:]
	}

	cur, err := e.term(parts[0], line, suppressUndefined)
	if err != nil {
		return Value{}, errf("first term '%s': %v", parts[0], err)
	}
	if sign == -1 {
		if cur.Type != symtab.Absolute && cur.Type != symtab.LiteralAddr {
			return Value{}, errf("unary minus on non-absolute: '%s'", parts[0])
		}
		cur.Val = -cur.Val
		cur.Type = symtab.Absolute
		cur.Block = ""
	}

	i := 1
	for i < len(parts) {
		op := parts[i]
		if op != "+" && op != "-" && op != "^" {
			return Value{}, errf("expected + - ^ found '%s'", op)
		}
		nextStr := "0"
		if i+1 < len(parts) {
			nextStr = parts[i+1]
		}
		next, err := e.term(nextStr, line, suppressUndefined)
		if err != nil {
			return Value{}, errf("term '%s' after '%s': %v", nextStr, op, err)
		}
		combined, err := applyRelocRules(cur, op[0], next)
		if err != nil {
			return Value{}, errf("expr '%s': %v", s, err)
		}
		if combined.Type == symtab.Relocatable {
			if cur.Type == symtab.Relocatable {
				combined.Block = cur.Block
			} else if next.Type == symtab.Relocatable {
				combined.Block = next.Block
			}
		}
		cur = combined
		i += 2
	}
	return cur, nil
}

var mulOpSplit = regexp.MustCompile(`([*/])`)

func (e *Evaluator) term(s string, line int, suppressUndefined bool) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, errf("empty term string")
	}
	// The location primaries contain '*' without it being an operator.
	switch s {
	case "*", "*P", "$":
		return e.singleElement(s, line, suppressUndefined)
	}
	parts := splitTrim(mulOpSplit, s)
	if len(parts) == 0 {
		return Value{}, errf("cannot parse term '%s'", s)
	}
	cur, err := e.singleElement(parts[0], line, suppressUndefined)
	if err != nil {
		return Value{}, errf("term '%s': %v", parts[0], err)
	}
	i := 1
	for i < len(parts) {
		op := parts[i]
		if op != "*" && op != "/" {
			return Value{}, errf("expected */ found '%s'", op)
		}
		if i+1 >= len(parts) {
			return Value{}, errf("missing element after %s", op)
		}
		next, err := e.singleElement(parts[i+1], line, suppressUndefined)
		if err != nil {
			return Value{}, errf("term '%s': %v", parts[i+1], err)
		}
		cur, err = applyRelocRules(cur, op[0], next)
		if err != nil {
			return Value{}, errf("term '%s': %v", s, err)
		}
		cur.Block = ""
		i += 2
	}
	return cur, nil
}

func splitTrim(re *regexp.Regexp, s string) []string {
	raw := re.Split(s, -1)
	seps := re.FindAllString(s, -1)
	out := make([]string, 0, len(raw)+len(seps))
	for i, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
		if i < len(seps) && strings.TrimSpace(seps[i]) != "" {
			out = append(out, seps[i])
		}
	}
	return out
}

// applyRelocRules is the relocatability-type algebra from spec.md §3:
// absolute +/- relocatable stays relocatable, relocatable - relocatable
// is absolute, relocatable + relocatable is illegal, * / ^ require both
// operands absolute (literal addresses count as absolute for * / ^).
func applyRelocRules(a Value, op byte, b Value) (Value, error) {
	t1, t2 := a.Type, b.Type
	var newType symtab.Type

	switch op {
	case '+', '-':
		switch {
		case t1 == symtab.Absolute && t2 == symtab.Absolute:
			newType = symtab.Absolute
		case t1 == symtab.Absolute && t2 == symtab.Relocatable:
			newType = symtab.Relocatable
		case t1 == symtab.Relocatable && t2 == symtab.Absolute:
			newType = symtab.Relocatable
		case t1 == symtab.Relocatable && t2 == symtab.Relocatable:
			if op != '-' {
				return Value{}, errf("illegal op: relocatable + relocatable")
			}
			if a.Block != b.Block {
				return Value{}, errf("relocatable difference across blocks '%s' and '%s'", a.Block, b.Block)
			}
			newType = symtab.Absolute
		case t1 == symtab.External || t2 == symtab.External:
			switch {
			case t1 == symtab.Absolute && t2 == symtab.External:
				newType = symtab.External
			case t1 == symtab.External && t2 == symtab.Absolute:
				newType = symtab.External
			case t1 == symtab.External && t2 == symtab.External:
				return Value{}, errf("illegal op: external %c external", op)
			default:
				return Value{}, errf("illegal op: external %c relocatable", op)
			}
		case t1 == symtab.LiteralAddr || t2 == symtab.LiteralAddr:
			switch {
			case t1 == symtab.LiteralAddr && t2 == symtab.LiteralAddr:
				if op == '-' {
					newType = symtab.Absolute
				} else {
					return Value{}, errf("illegal op: literal_addr + literal_addr")
				}
			case t1 == symtab.LiteralAddr && t2 == symtab.Absolute:
				newType = symtab.LiteralAddr
			case t1 == symtab.Absolute && t2 == symtab.LiteralAddr:
				newType = symtab.LiteralAddr
			default:
				return Value{}, errf("unsupported op with literal address: %s %c %s", t1, op, t2)
			}
		default:
			return Value{}, errf("unsupported operation: %s %c %s", t1, op, t2)
		}
	case '*', '/':
		if effAbs(t1) == symtab.Absolute && effAbs(t2) == symtab.Absolute {
			newType = symtab.Absolute
		} else {
			return Value{}, errf("illegal op: %s %c %s (requires absolute)", t1, op, t2)
		}
	case '^':
		if effAbs(t1) == symtab.Absolute && effAbs(t2) == symtab.Absolute {
			newType = symtab.Absolute
		} else {
			return Value{}, errf("illegal op: %s ^ %s (requires absolute)", t1, t2)
		}
	default:
		return Value{}, errf("internal error: unknown operator '%c'", op)
	}

	var val int64
	switch op {
	case '+':
		val = a.Val + b.Val
	case '-':
		val = a.Val - b.Val
	case '*':
		val = a.Val * b.Val
	case '/':
		if b.Val == 0 {
			val = 0
		} else {
			val = a.Val / b.Val
		}
	case '^':
		val = a.Val ^ b.Val
	}
	return Value{Val: val, Type: newType}, nil
}

func effAbs(t symtab.Type) symtab.Type {
	if t == symtab.LiteralAddr {
		return symtab.Absolute
	}
	return t
}

// singleElement parses one primary: '*' (LC), '$' (PC-1 clamped), '*P'
// (PC), a literal '=...', a character constant, a numeric constant, or a
// symbol reference.
func (e *Evaluator) singleElement(s string, line int, suppressUndefined bool) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, errf("empty element in expression")
	}

	switch s {
	case "*":
		if e.State.PassNumber() == 1 {
			if e.State.LCAbsoluteDueToLOC() {
				return Value{Val: e.State.LocationCounter(), Type: symtab.Absolute, Block: symtab.AbsBlock}, nil
			}
			block := e.State.CurrentBlock()
			typ := symtab.Relocatable
			if block == symtab.AbsBlock {
				typ = symtab.Absolute
			}
			return Value{Val: e.State.LocationCounter(), Type: typ, Block: block}, nil
		}
		return Abs(e.State.LocationCounter()), nil
	case "$":
		pc := e.State.PositionCounter() - 1
		if pc < 0 {
			pc = 0
		}
		return Abs(int64(pc)), nil
	case "*P":
		return Abs(int64(e.State.PositionCounter())), nil
	}

	if regRegex.MatchString(s) {
		return Value{}, errf("register '%s' invalid in expression", s)
	}

	if m := literalRegex.FindStringSubmatch(s); m != nil {
		lit, err := e.EvaluateDataItem(m[1]+m[2], line, suppressUndefined)
		if err != nil {
			return Value{}, errf("invalid literal '%s': %v", s, err)
		}
		if lit.Type != symtab.Absolute {
			return Value{}, errf("invalid literal '%s': literal content must be absolute", s)
		}
		e.Sym.AddLiteral(lit.Val)
		addr, ok := e.Sym.LookupLiteralAddress(lit.Val)
		if !ok {
			if e.State.PassNumber() == 1 {
				return Value{Val: 0, Type: symtab.LiteralAddr}, nil
			}
			return Value{}, errf("failed to find address for literal '%s'", s)
		}
		return Value{Val: int64(addr), Type: symtab.LiteralAddr}, nil
	}

	if m := charConstRegex.FindStringSubmatch(s); m != nil {
		v, err := e.parseCharConstant(m[1], m[2][0], m[3])
		if err != nil {
			return Value{}, err
		}
		return Abs(v), nil
	}

	if m := numConstRegex.FindStringSubmatch(s); m != nil {
		return e.parseNumericConstant(m[1], strings.ToUpper(m[2]))
	}

	if symRegex.MatchString(s) {
		entry, ok := e.Sym.Lookup(s, line, e.State.CurrentQualifier(), suppressUndefined)
		if !ok {
			if suppressUndefined {
				// Speculative Pass 1 callers must tolerate symbols defined
				// later in the source; a zero placeholder keeps sizing and
				// width resolution going.
				return Abs(0), nil
			}
			return Value{}, errf("undefined symbol '%s'", s)
		}
		if e.State.PassNumber() == 2 {
			if entry.Type == symtab.Relocatable && entry.Block != "" && entry.Block != symtab.AbsBlock {
				base, ok := e.State.BlockBase(entry.Block)
				if !ok {
					return Value{}, errf("internal: base address for block '%s' not found for symbol '%s'", entry.Block, s)
				}
				return Abs(entry.Value + base), nil
			}
			return Abs(entry.Value), nil
		}
		return Value{Val: entry.Value, Type: entry.Type, Block: entry.Block}, nil
	}

	return Value{}, errf("cannot parse element '%s'", s)
}

func (e *Evaluator) parseNumericConstant(numPart string, baseSuffix string) (Value, error) {
	base := 10
	switch baseSuffix {
	case "B", "O":
		base = 8
	case "D":
		base = 10
	case "":
		switch e.State.CurrentBase() {
		case 'O':
			base = 8
		case 'M':
			if isOctalDigits(numPart) {
				base = 8
			}
		}
	}
	if base == 8 && !isOctalDigits(numPart) {
		return Value{}, errf("invalid numeric constant '%s%s': contains invalid octal digits", numPart, baseSuffix)
	}
	v, err := strconv.ParseInt(numPart, base, 64)
	if err != nil {
		return Value{}, errf("invalid numeric constant '%s%s' for base %d: %v", numPart, baseSuffix, base, err)
	}
	return Abs(v), nil
}

func isOctalDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '7' {
			return false
		}
	}
	return true
}

// parseCharConstant encodes an nTc-style character constant (count n,
// justification type c in CHARLZHA, text c) under the currently active
// character code, per spec.md §3's fill rules.
func (e *Evaluator) parseCharConstant(nStr string, typeChar byte, text string) (int64, error) {
	n, err := strconv.Atoi(nStr)
	if err != nil {
		return 0, errf("invalid character count '%s'", nStr)
	}
	if n <= 0 {
		return 0, nil
	}
	code := e.State.CurrentCode()
	m, blank, zeroChar := charset.ForCode(code)

	const maxChars = 10
	chars := []rune(text)
	count := n
	if len(chars) < count {
		count = len(chars)
	}
	if count > maxChars {
		count = maxChars
	}
	codes := make([]byte, 0, count)
	for _, c := range chars[:count] {
		upper := toUpperRune(c)
		if v, ok := m[upper]; ok {
			codes = append(codes, v)
		} else {
			codes = append(codes, blank)
		}
	}

	target := n
	if target > maxChars {
		target = maxChars
	}

	fill := blank
	if typeChar == 'C' || typeChar == 'L' || typeChar == 'Z' {
		if code == charset.ASCII || code == charset.Internal {
			fill = charset.BinaryZero
		} else {
			fill = zeroChar
		}
	}

	switch typeChar {
	case 'L', 'C', 'Z':
		for len(codes) < target {
			codes = append(codes, fill)
		}
		var v int64
		for _, c := range codes {
			v = (v << 6) | int64(c)
		}
		return v << (60 - target*6), nil
	case 'H', 'R', 'A':
		for len(codes) < target {
			codes = append([]byte{fill}, codes...)
		}
		var v int64
		for _, c := range codes {
			v = (v << 6) | int64(c)
		}
		return v, nil
	default:
		return 0, errf("internal error: unknown char const type '%c'", typeChar)
	}
}

func toUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// EvaluateDataItem parses one DATA/CON/LIT/VFD-value element: a sign, then
// either an nTc / Tc character constant or a general expression.
func (e *Evaluator) EvaluateDataItem(itemStr string, line int, suppressUndefined bool) (Value, error) {
	orig := itemStr
	itemStr = strings.TrimSpace(itemStr)
	if itemStr == "" {
		return Value{}, errf("empty data item string")
	}
	subbed, err := e.SubstituteMicros(itemStr, line)
	if err != nil {
		return Value{}, errf("error during micro substitution in '%s': %v", orig, err)
	}
	itemStr = subbed

	sign := int64(1)
	if strings.HasPrefix(itemStr, "+") {
		itemStr = itemStr[1:]
	} else if strings.HasPrefix(itemStr, "-") {
		sign = -1
		itemStr = itemStr[1:]
	}
	itemStr = strings.TrimSpace(itemStr)
	if itemStr == "" {
		return Value{}, errf("data item contains only a sign after substitution")
	}

	if m := charDataFmt1.FindStringSubmatch(itemStr); m != nil {
		v, err := e.parseCharConstant(m[2], m[3][0], m[4])
		if err == nil {
			if sign == -1 {
				v ^= mask60
			}
			return Abs(v), nil
		}
	}

	if m := charDataFmt2.FindStringSubmatch(itemStr); m != nil {
		delim := m[3]
		rest := m[4]
		end := strings.Index(rest, delim)
		if end >= 0 {
			text := rest[:end]
			v, err := e.parseCharConstant(strconv.Itoa(len([]rune(text))), m[2][0], text)
			if err == nil {
				if sign == -1 {
					v ^= mask60
				}
				return Abs(v), nil
			}
		}
	}

	val, err := e.Evaluate(itemStr, line, suppressUndefined)
	if err != nil {
		return Value{}, errf("cannot parse data item '%s' as character, numeric, or expression: %v", orig, err)
	}
	if sign == -1 {
		if val.Type != symtab.Absolute {
			return Value{}, errf("cannot apply unary minus to non-absolute data item")
		}
		val.Val = -val.Val
		val.Block = ""
	}
	return val, nil
}

// DISOperand is the decoded form of a DIS pseudo-op's operand field.
type DISOperand struct {
	Format             int // 1: N,string   2: ,/string/
	N                   int64
	String              string
	Delimiter           byte
	IsMicroNameLiteral  bool
}

// ParseDISOperands decodes "N,string", ",<delim>string<delim>", or the
// DIS %"name"% micro-literal form.
func (e *Evaluator) ParseDISOperands(operandStr string, line int, suppressUndefinedForN bool) (DISOperand, error) {
	orig := strings.TrimSpace(operandStr)
	if orig == "" {
		return DISOperand{}, errf("DIS requires operands")
	}

	if m := disMicroLiteral.FindStringSubmatch(orig); m != nil {
		var n int64
		if m[1] != "" {
			v, err := e.Evaluate(m[1], line, suppressUndefinedForN)
			if err != nil || v.Type != symtab.Absolute || v.Val < 0 {
				return DISOperand{}, errf("N value for DIS %%\"name\"%% must be non-negative absolute integer")
			}
			n = v.Val
		}
		return DISOperand{Format: 1, N: n, String: m[2], IsMicroNameLiteral: true}, nil
	}

	subbed, err := e.SubstituteMicros(orig, line)
	if err != nil {
		return DISOperand{}, errf("error during micro substitution in DIS operand '%s': %v", orig, err)
	}

	if strings.HasPrefix(subbed, ",") {
		if len(subbed) < 3 {
			return DISOperand{}, errf("invalid DIS format 2 (too short): '%s'", orig)
		}
		delim := subbed[1]
		rest := subbed[2:]
		end := strings.IndexByte(rest, delim)
		if end < 0 {
			return DISOperand{}, errf("missing closing '%c' in '%s'", delim, orig)
		}
		return DISOperand{Format: 2, Delimiter: delim, String: rest[:end]}, nil
	}

	comma := strings.IndexByte(subbed, ',')
	if comma > 0 && len(subbed) > comma+2 {
		delim := subbed[comma+1]
		if !isAlnum(delim) {
			rest := subbed[comma+2:]
			if strings.IndexByte(rest, delim) >= 0 {
				end := strings.IndexByte(rest, delim)
				return DISOperand{Format: 2, Delimiter: delim, String: rest[:end]}, nil
			}
		}
	}

	if comma <= 0 {
		return DISOperand{}, errf("invalid DIS format (expected N,String or ,<delim>...<delim>): '%s'", orig)
	}
	nStr := strings.TrimSpace(subbed[:comma])
	stringPart := subbed[comma+1:]
	v, err := e.Evaluate(nStr, line, suppressUndefinedForN)
	if err != nil || v.Type != symtab.Absolute || v.Val < 0 {
		return DISOperand{}, errf("invalid n expression '%s' in Format 1 DIS", nStr)
	}
	return DISOperand{Format: 1, N: v.Val, String: stringPart}, nil
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// MicroValue looks up a defined micro's replacement text by name.
func (e *Evaluator) MicroValue(name string) (string, bool) {
	v, ok := e.Micros[strings.ToUpper(name)]
	return v, ok
}

// GenerateDISWords packs a decoded DIS operand into 60-bit words, 10
// characters per word, using the map appropriate to the operand's
// format and the current character code (spec.md §3, §9).
func (e *Evaluator) GenerateDISWords(op DISOperand) ([]int64, []string) {
	const charsPerWord = 10
	var warnings []string

	var m charset.Map
	var blank byte
	text := op.String

	if op.IsMicroNameLiteral {
		val, ok := e.MicroValue(op.String)
		if !ok {
			return nil, []string{fmt.Sprintf("internal: micro '%%%s%%' for DIS not found in definitions during word generation", op.String)}
		}
		text = val
		m, blank = charset.DisplayMap, charset.DisplayMap[' ']
	} else {
		m, blank = charset.DISContentMap(e.State.CurrentCode())
	}

	if op.Format == 1 {
		n := op.N
		var totalChars int
		if n == 0 {
			total := len([]rune(text)) + 2
			words := (total + charsPerWord - 1) / charsPerWord
			totalChars = words * charsPerWord
		} else {
			totalChars = int(n) * charsPerWord
		}
		runes := []rune(text)
		for i := 0; i < len(runes) && i < totalChars; i++ {
			u := toUpperRune(runes[i])
			if _, ok := m[u]; !ok && runes[i] != ' ' {
				warnings = append(warnings, fmt.Sprintf("invalid char '%c' in DIS, using blank of mode", runes[i]))
			}
		}
		out, _ := packFormat1(runes, totalChars, m, blank, warnings)
		return out, warnings
	}

	// Format 2: ,/string/ always uses Display Code regardless of CODE.
	m2, blank2 := charset.DisplayMap, charset.DisplayMap[' ']
	var out []int64
	var word int64
	bits := 0
	flush := func() {
		out = append(out, word)
		word, bits = 0, 0
	}
	for _, r := range text {
		u := toUpperRune(r)
		code, ok := m2[u]
		if !ok {
			code = blank2
			if r != ' ' {
				warnings = append(warnings, fmt.Sprintf("invalid char '%c' in DIS Format 2, using blank", r))
			}
		}
		word = (word << 6) | int64(code)
		bits += 6
		if bits == 60 {
			flush()
		}
	}
	for i := 0; i < 2; i++ {
		word = (word << 6) | int64(charset.BinaryZero)
		bits += 6
		if bits == 60 {
			flush()
		}
	}
	if bits > 0 {
		out = append(out, word<<(60-bits))
	}
	return out, warnings
}

func packFormat1(runes []rune, totalChars int, m charset.Map, blank byte, warnings []string) ([]int64, []string) {
	var out []int64
	var word int64
	bits := 0
	for i := 0; i < totalChars; i++ {
		var code byte
		if i < len(runes) {
			u := toUpperRune(runes[i])
			if v, ok := m[u]; ok {
				code = v
			} else {
				code = blank
			}
		} else {
			code = charset.BinaryZero
		}
		word = (word << 6) | int64(code)
		bits += 6
		if bits == 60 {
			out = append(out, word)
			word, bits = 0, 0
		}
	}
	if bits != 0 {
		out = append(out, word<<(60-bits))
	}
	return out, warnings
}
