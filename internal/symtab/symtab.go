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

// Package symtab implements the assembler's symbol table: qualified names,
// EQU/SET/IDENT/LOC attributes, the literal pool, and the two-pass
// absolute-address reconstruction described in spec.md §3-§4.2.
package symtab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rcornwell/compass70/internal/diag"
)

// Type is the relocatability type of a symbol's value.
type Type int

const (
	Absolute Type = iota
	Relocatable
	External
	LiteralAddr
)

func (t Type) String() string {
	switch t {
	case Relocatable:
		return "relocatable"
	case External:
		return "external"
	case LiteralAddr:
		return "literal-address"
	default:
		return "absolute"
	}
}

// AbsBlock is the distinguished absolute block name.
const AbsBlock = "*ABS*"

// Flags are the boolean attributes a symbol entry can carry.
type Flags struct {
	Redefinable   bool // defined by SET
	ProgramName   bool // defined by IDENT
	DefinedByLOC  bool // defined by LOC
	EquStar       bool // defined by EQU *
	ValueIsChar   bool // value is a micro string, not an integer
}

// Entry is one symbol table record.
type Entry struct {
	Name      string
	Value     int64  // relative in Pass 1, absolute (via lookup) in Pass 2
	CharValue string // valid when Flags.ValueIsChar
	Type      Type
	Block     string // relocation block, or "" / AbsBlock for absolute
	Flags     Flags
	DefLine   int
}

// Table is the symbol table plus literal pool for one assembly.
type Table struct {
	symbols     map[string]*Entry
	programName *Entry

	literalValues []int64       // first-occurrence order
	literalSeen   map[int64]int // value -> index into literalValues
	literalAddr   map[int64]int // value -> assigned word address

	sink *diag.Sink
}

// New returns an empty symbol table reporting undefined/redefinition
// errors to sink.
func New(sink *diag.Sink) *Table {
	return &Table{
		symbols:     make(map[string]*Entry),
		literalSeen: make(map[int64]int),
		literalAddr: make(map[int64]int),
		sink:        sink,
	}
}

// QualifiedName builds the internal storage key for name under the given
// active qualifier (spec.md §3: "stored as QUAL$NAME when a qualifier is
// in effect").
func QualifiedName(name string, qualifier string) string {
	name = strings.ToUpper(name)
	if qualifier == "" || qualifier == "*" {
		return name
	}
	if strings.Contains(name, "$") {
		return name
	}
	return qualifier + "$" + name
}

// Define enters or redefines a symbol. Returns false (and reports an
// error, unless one is already on the line) if the redefinition is
// illegal per spec.md §3's invariants.
func (t *Table) Define(name string, value int64, line int, typ Type, block string, flags Flags, qualifier string) bool {
	qname := QualifiedName(name, qualifier)
	newEntry := &Entry{Name: strings.ToUpper(name), Value: value, Type: typ, Block: block, Flags: flags, DefLine: line}

	if existing, ok := t.symbols[qname]; ok {
		switch {
		case existing.Flags.ProgramName:
			t.err(line, "Symbol '%s' defined by IDENT cannot be redefined.", name)
			return false
		case existing.Flags.DefinedByLOC:
			if flags.DefinedByLOC && existing.Value == value {
				existing.Flags = flags
				return true
			}
			t.err(line, "Symbol '%s' defined by LOC on line %d cannot be redefined by this statement.", name, existing.DefLine)
			return false
		case !existing.Flags.Redefinable:
			if existing.Value == value && existing.Type == typ && existing.Block == block {
				existing.Flags = flags
				return true
			}
			t.err(line, "Symbol '%s' already defined on line %d and is not redefinable with different value/attributes.", name, existing.DefLine)
			return false
		case existing.Flags.Redefinable && !flags.Redefinable:
			t.err(line, "Symbol '%s' defined by SET on line %d cannot be redefined by non-SET.", name, existing.DefLine)
			return false
		}
		// Redefinable (SET) symbol redefined by SET: fall through to overwrite.
	}

	t.symbols[qname] = newEntry
	if flags.ProgramName {
		if t.programName != nil && t.programName.Name != newEntry.Name {
			t.err(line, "Program name '%s' conflicts with previous IDENT '%s'.", name, t.programName.Name)
			return false
		}
		t.programName = newEntry
	}
	return true
}

// DefineChar enters a micro/value-is-char symbol (used by MICRO and by
// micro substitution's symbol fallback).
func (t *Table) DefineChar(name string, value string, line int, qualifier string) bool {
	qname := QualifiedName(name, qualifier)
	t.symbols[qname] = &Entry{
		Name: strings.ToUpper(name), CharValue: value, Type: Absolute, Block: AbsBlock,
		Flags: Flags{ValueIsChar: true}, DefLine: line,
	}
	return true
}

// IsDefined reports whether name is known, honoring qualifier fallback.
func (t *Table) IsDefined(name string, qualifier string) bool {
	upper := strings.ToUpper(name)
	if qualifier != "" && qualifier != "*" {
		if _, ok := t.symbols[qualifier+"$"+upper]; ok {
			return true
		}
	}
	_, ok := t.symbols[upper]
	return ok
}

// Lookup resolves name under qualifier: qualified lookup first, then
// unqualified fallback, then the program name as a last resort (spec.md
// §3: "unqualified lookup is a fallback when qualified lookup fails").
// When suppressUndefined is false and the symbol is not found, an
// undefined-symbol diagnostic is added once per line.
func (t *Table) Lookup(name string, line int, qualifier string, suppressUndefined bool) (*Entry, bool) {
	upper := strings.ToUpper(name)
	qname := QualifiedName(upper, qualifier)

	if e, ok := t.symbols[qname]; ok {
		return e, true
	}
	if qualifier != "" && qualifier != "*" && qname != upper {
		if e, ok := t.symbols[upper]; ok {
			return e, true
		}
	}
	if t.programName != nil && t.programName.Name == upper {
		return t.programName, true
	}
	if !suppressUndefined {
		if t.sink != nil && !t.sink.HasErrorOnLine(line) {
			t.sink.Add(line, diag.Undefined, "Undefined symbol '%s' (qualifier %q)", name, qualifier)
		}
	}
	return nil, false
}

// AddLiteral adds value to the literal pool if not already present
// (dedup by value, spec.md §3 "deduplicated by value, ordered by first
// occurrence").
func (t *Table) AddLiteral(value int64) {
	if _, ok := t.literalSeen[value]; ok {
		return
	}
	t.literalSeen[value] = len(t.literalValues)
	t.literalValues = append(t.literalValues, value)
}

// AssignLiteralAddresses places each pooled literal at consecutive
// addresses starting at start, in first-occurrence order, and returns the
// next free address after the pool.
func (t *Table) AssignLiteralAddresses(start int) int {
	addr := start
	for _, v := range t.literalValues {
		if _, already := t.literalAddr[v]; !already {
			t.literalAddr[v] = addr
			addr++
		}
	}
	return addr
}

// LookupLiteralAddress returns the assigned address for a pooled literal
// value.
func (t *Table) LookupLiteralAddress(value int64) (int, bool) {
	a, ok := t.literalAddr[value]
	return a, ok
}

// LiteralPool returns the pool in first-occurrence order.
func (t *Table) LiteralPool() []int64 {
	return append([]int64(nil), t.literalValues...)
}

// LiteralBlockSize is the number of unique literals pooled.
func (t *Table) LiteralBlockSize() int {
	return len(t.literalValues)
}

// ProgramName returns the IDENT-defined program name entry, if any.
func (t *Table) ProgramName() (*Entry, bool) {
	return t.programName, t.programName != nil
}

// All returns every stored entry keyed by its internal (possibly
// qualified) storage name.
func (t *Table) All() map[string]*Entry {
	return t.symbols
}

// Dump renders the symbol table grouped by qualifier, matching spec.md
// §6's listing requirement; relocatable symbols are shown as absolute
// addresses when blockBase is supplied (i.e. for the Pass 2 listing).
func (t *Table) Dump(w *strings.Builder, blockBase map[string]int64) {
	unqualified := map[string]*Entry{}
	byQualifier := map[string]map[string]*Entry{}

	for qname, e := range t.symbols {
		if t.programName != nil && e == t.programName {
			continue
		}
		if idx := strings.IndexByte(qname, '$'); idx >= 0 {
			qual, simple := qname[:idx], qname[idx+1:]
			if byQualifier[qual] == nil {
				byQualifier[qual] = map[string]*Entry{}
			}
			byQualifier[qual][simple] = e
		} else {
			unqualified[qname] = e
		}
	}

	fmt.Fprintf(w, "\nSYMBOLIC REFERENCE TABLE\n")
	names := sortedKeys(unqualified)
	for _, n := range names {
		writeEntry(w, n, unqualified[n], blockBase)
	}
	quals := make([]string, 0, len(byQualifier))
	for q := range byQualifier {
		quals = append(quals, q)
	}
	sort.Strings(quals)
	for _, q := range quals {
		fmt.Fprintf(w, "\n   SYMBOL QUALIFIER =  %s\n\n", q)
		for _, n := range sortedKeys(byQualifier[q]) {
			writeEntry(w, n, byQualifier[q][n], blockBase)
		}
	}
}

func sortedKeys(m map[string]*Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeEntry(w *strings.Builder, name string, e *Entry, blockBase map[string]int64) {
	val := e.Value
	if blockBase != nil && e.Type == Relocatable && e.Block != "" && e.Block != AbsBlock {
		if base, ok := blockBase[e.Block]; ok {
			val += base
		}
	}
	if e.Flags.ValueIsChar {
		fmt.Fprintf(w, "  %-10s %s\n", name, e.CharValue)
		return
	}
	fmt.Fprintf(w, "  %-10s %020o\n", name, val)
}

func (t *Table) err(line int, format string, args ...any) {
	if t.sink != nil {
		t.sink.Add(line, diag.Label, format, args...)
	}
}
