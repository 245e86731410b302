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

package symtab

import (
	"strings"
	"testing"

	"github.com/rcornwell/compass70/internal/diag"
)

func TestRedefinitionRules(t *testing.T) {
	sink := diag.NewSink()
	tab := New(sink)

	if !tab.Define("TAG", 5, 1, Relocatable, "CODE", Flags{}, "") {
		t.Fatalf("first definition must succeed")
	}
	// Identical redefinition is a no-op, not an error.
	if !tab.Define("TAG", 5, 2, Relocatable, "CODE", Flags{}, "") {
		t.Errorf("value- and attribute-identical redefinition should succeed")
	}
	if sink.HasErrors() {
		t.Errorf("identical redefinition should not report an error")
	}
	// Any difference is an error.
	if tab.Define("TAG", 6, 3, Relocatable, "CODE", Flags{}, "") {
		t.Errorf("redefinition with a different value should fail")
	}
	if !sink.HasErrorOnLine(3) {
		t.Errorf("failed redefinition should report on its line")
	}
}

func TestSetSymbolIsRedefinable(t *testing.T) {
	tab := New(diag.NewSink())
	if !tab.Define("CNT", 1, 1, Absolute, AbsBlock, Flags{Redefinable: true}, "") {
		t.Fatalf("SET definition failed")
	}
	if !tab.Define("CNT", 2, 2, Absolute, AbsBlock, Flags{Redefinable: true}, "") {
		t.Fatalf("SET redefinition with a new value must succeed")
	}
	e, ok := tab.Lookup("CNT", 3, "", true)
	if !ok || e.Value != 2 {
		t.Errorf("lookup after SET redefinition = %v, want value 2", e)
	}
	// A non-SET definition may not take over a SET symbol.
	if tab.Define("CNT", 3, 4, Absolute, AbsBlock, Flags{}, "") {
		t.Errorf("EQU over a SET symbol should fail")
	}
}

func TestIdentSymbolNeverRedefinable(t *testing.T) {
	tab := New(diag.NewSink())
	if !tab.Define("PROG", 0, 1, Absolute, AbsBlock, Flags{ProgramName: true}, "") {
		t.Fatalf("IDENT definition failed")
	}
	if tab.Define("PROG", 0, 2, Absolute, AbsBlock, Flags{ProgramName: true}, "") {
		t.Errorf("IDENT symbol must not be redefinable, even identically")
	}
	prog, ok := tab.ProgramName()
	if !ok || prog.Name != "PROG" {
		t.Errorf("ProgramName = %v, want PROG", prog)
	}
}

func TestQualifiedLookupFallsBackToUnqualified(t *testing.T) {
	tab := New(diag.NewSink())
	tab.Define("GLOB", 7, 1, Absolute, AbsBlock, Flags{}, "")
	tab.Define("BOTH", 1, 2, Absolute, AbsBlock, Flags{}, "")
	tab.Define("BOTH", 2, 3, Absolute, AbsBlock, Flags{}, "Q1")

	// Qualified lookup finds the qualified entry first.
	e, ok := tab.Lookup("BOTH", 4, "Q1", true)
	if !ok || e.Value != 2 {
		t.Errorf("qualified lookup = %v, want the Q1 entry (value 2)", e)
	}
	// A name absent under the qualifier falls back to the unqualified one.
	e, ok = tab.Lookup("GLOB", 5, "Q1", true)
	if !ok || e.Value != 7 {
		t.Errorf("fallback lookup = %v, want the unqualified entry (value 7)", e)
	}
	// With no qualifier the qualified entry is invisible.
	e, ok = tab.Lookup("BOTH", 6, "", true)
	if !ok || e.Value != 1 {
		t.Errorf("unqualified lookup = %v, want value 1", e)
	}
}

func TestUndefinedLookupReportsOncePerLine(t *testing.T) {
	sink := diag.NewSink()
	tab := New(sink)
	if _, ok := tab.Lookup("NOPE", 9, "", false); ok {
		t.Fatalf("lookup of undefined symbol should fail")
	}
	if !sink.HasErrorOnLine(9) {
		t.Errorf("undefined lookup should report an error")
	}
	if _, ok := tab.Lookup("NOPE", 10, "", true); ok {
		t.Fatalf("suppressed lookup should still fail")
	}
	if sink.HasErrorOnLine(10) {
		t.Errorf("suppressed lookup should not report")
	}
}

func TestLiteralPoolDedupAndAddressing(t *testing.T) {
	tab := New(diag.NewSink())
	tab.AddLiteral(0o777)
	tab.AddLiteral(5)
	tab.AddLiteral(0o777) // duplicate, must not grow the pool
	if tab.LiteralBlockSize() != 2 {
		t.Fatalf("literal pool size = %d, want 2 after dedup", tab.LiteralBlockSize())
	}
	next := tab.AssignLiteralAddresses(0)
	if next != 2 {
		t.Errorf("next free address = %d, want 2", next)
	}
	if a, ok := tab.LookupLiteralAddress(0o777); !ok || a != 0 {
		t.Errorf("first literal address = %d, want 0", a)
	}
	if a, ok := tab.LookupLiteralAddress(5); !ok || a != 1 {
		t.Errorf("second literal address = %d, want 1", a)
	}
	pool := tab.LiteralPool()
	if len(pool) != 2 || pool[0] != 0o777 || pool[1] != 5 {
		t.Errorf("pool = %v, want first-occurrence order [777B, 5]", pool)
	}
}

func TestDumpGroupsByQualifier(t *testing.T) {
	tab := New(diag.NewSink())
	tab.Define("ALPHA", 1, 1, Absolute, AbsBlock, Flags{}, "")
	tab.Define("BETA", 2, 2, Relocatable, "CODE", Flags{}, "SUB")

	var b strings.Builder
	tab.Dump(&b, map[string]int64{"CODE": 10})
	out := b.String()
	if !strings.Contains(out, "SYMBOLIC REFERENCE TABLE") {
		t.Fatalf("dump missing table heading: %q", out)
	}
	if !strings.Contains(out, "SYMBOL QUALIFIER =  SUB") {
		t.Errorf("dump missing qualifier group heading: %q", out)
	}
	// Relocatable symbol shown at its absolute address (2 + base 10).
	if !strings.Contains(out, "00000000000000000014") {
		t.Errorf("dump should show BETA at absolute 14B: %q", out)
	}
}
