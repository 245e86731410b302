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

package cond

import (
	"testing"

	"github.com/rcornwell/compass70/internal/diag"
	"github.com/rcornwell/compass70/internal/expr"
	"github.com/rcornwell/compass70/internal/state"
	"github.com/rcornwell/compass70/internal/symtab"
)

func newCondEvaluator() (*Evaluator, *symtab.Table) {
	sink := diag.NewSink()
	sym := symtab.New(sink)
	st := state.New(sink)
	st.SetPass(1)
	ev := expr.New(sym, st, map[string]string{"MAC": "1"})
	return &Evaluator{Eval: ev, Sym: sym}, sym
}

func TestStackPushElseEndif(t *testing.T) {
	s := New()
	if !s.Active() {
		t.Fatalf("fresh stack must be active")
	}
	s.PushIf(false)
	if s.Active() {
		t.Errorf("IF false scope must be inactive")
	}
	if err := s.Else(); err != nil {
		t.Fatalf("Else: %v", err)
	}
	if !s.Active() {
		t.Errorf("ELSE of a false scope under a true parent must be active")
	}
	if err := s.EndIf(); err != nil {
		t.Fatalf("EndIf: %v", err)
	}
	if s.Depth() != 0 || !s.Active() {
		t.Errorf("stack should be back to its single true element")
	}
}

func TestNestedFalseParentStaysFalse(t *testing.T) {
	s := New()
	s.PushIf(false)
	s.PushIf(true) // parent false, so this scope is false too
	if s.Active() {
		t.Errorf("scope under a false parent must be inactive")
	}
	if err := s.Else(); err != nil {
		t.Fatalf("Else: %v", err)
	}
	if s.Active() {
		t.Errorf("ELSE under a false parent must stay inactive")
	}
	s.EndIf()
	s.EndIf()
	if s.Depth() != 0 {
		t.Errorf("depth = %d, want 0", s.Depth())
	}
}

func TestUnbalancedElseEndif(t *testing.T) {
	s := New()
	if err := s.Else(); err == nil {
		t.Errorf("ELSE without IF must fail")
	}
	if err := s.EndIf(); err == nil {
		t.Errorf("ENDIF without IF must fail")
	}
}

func TestArithmeticConditionals(t *testing.T) {
	c, _ := newCondEvaluator()
	tests := []struct {
		mnemonic string
		operand  string
		want     bool
	}{
		{"IFEQ", "3,3", true},
		{"IFEQ", "3,4", false},
		{"IFNE", "3,4", true},
		{"IFGT", "5,4", true},
		{"IFGE", "4,4", true},
		{"IFLT", "3,4", true},
		{"IFLE", "5,4", false},
		{"IFPL", "0", true},
		{"IFPL", "1-2", false},
		{"IFMI", "1-2", true},
	}
	for _, tt := range tests {
		got, err := c.Evaluate(tt.mnemonic, tt.operand, 1)
		if err != nil {
			t.Errorf("%s %s: %v", tt.mnemonic, tt.operand, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %s = %v, want %v", tt.mnemonic, tt.operand, got, tt.want)
		}
	}
}

func TestSymbolPredicates(t *testing.T) {
	c, sym := newCondEvaluator()
	sym.Define("ABSY", 1, 1, symtab.Absolute, symtab.AbsBlock, symtab.Flags{}, "")
	sym.Define("RELY", 2, 2, symtab.Relocatable, "CODE", symtab.Flags{}, "")

	tests := []struct {
		operand string
		want    bool
	}{
		{"DEF,ABSY", true},
		{"DEF,MISSING", false},
		{"-DEF,MISSING", true},
		{"ABS,ABSY", true},
		{"ABS,RELY", false},
		{"REL,RELY", true},
		{"-REL,ABSY", true},
		{"SET,ABSY", true},
		{"-SET,MISSING", true},
		{"REG,B3", true},
		{"REG,NOTREG", false},
		{"-REG,NOTREG", true},
		{"MIC,MAC", true},
		{"-MIC,NOMIC", true},
	}
	for _, tt := range tests {
		got, err := c.Evaluate("IF", tt.operand, 1)
		if err != nil {
			t.Errorf("IF %s: %v", tt.operand, err)
			continue
		}
		if got != tt.want {
			t.Errorf("IF %s = %v, want %v", tt.operand, got, tt.want)
		}
	}
}

func TestExpressionTruth(t *testing.T) {
	c, _ := newCondEvaluator()
	got, err := c.Evaluate("IF", "2-2", 1)
	if err != nil || got {
		t.Errorf("IF 2-2 = %v (%v), want false", got, err)
	}
	got, err = c.Evaluate("IF", "3", 1)
	if err != nil || !got {
		t.Errorf("IF 3 = %v (%v), want true", got, err)
	}
}

func TestStringComparisons(t *testing.T) {
	c, _ := newCondEvaluator()
	tests := []struct {
		operand string
		want    bool
	}{
		{"EQ,/ABC/ABC/", true},
		{"EQ,/ABC/ABD/", false},
		{"NE,/ABC/ABD/", true},
		{"LT,/A/B/", true},
		// The shorter string is padded with binary zeros, which collate
		// below every real character.
		{"LT,/AB/ABC/", true},
		{"GE,/ABC/AB/", true},
		{"-EQ,/ABC/ABD/", true},
		{"-LT,/B/A/", true},
	}
	for _, tt := range tests {
		got, err := c.Evaluate("IFC", tt.operand, 1)
		if err != nil {
			t.Errorf("IFC %s: %v", tt.operand, err)
			continue
		}
		if got != tt.want {
			t.Errorf("IFC %s = %v, want %v", tt.operand, got, tt.want)
		}
	}
	if _, err := c.Evaluate("IFC", "EQ,/ONLYONE/", 1); err == nil {
		t.Errorf("IFC with mismatched delimiters must fail")
	}
}

func TestPlatformProbes(t *testing.T) {
	c, _ := newCondEvaluator()
	if got, _ := c.Evaluate("IFCP", "", 1); !got {
		t.Errorf("IFCP should hold for a CPU assembly")
	}
	if got, _ := c.Evaluate("IFPP", "", 1); got {
		t.Errorf("IFPP should not hold for a CPU assembly")
	}
}
