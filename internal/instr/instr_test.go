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

package instr

import (
	"strings"
	"testing"

	"github.com/rcornwell/compass70/internal/diag"
	"github.com/rcornwell/compass70/internal/expr"
	"github.com/rcornwell/compass70/internal/state"
	"github.com/rcornwell/compass70/internal/symtab"
)

func newEval(pass int) *expr.Evaluator {
	sink := diag.NewSink()
	sym := symtab.New(sink)
	st := state.New(sink)
	st.SetPass(pass)
	st.BlockBases = map[string]int64{"CODE": 0o20}
	sym.Define("BUFF", 0o21, 1, symtab.Absolute, symtab.AbsBlock, symtab.Flags{}, "")
	sym.Define("RELSYM", 3, 2, symtab.Relocatable, "CODE", symtab.Flags{}, "")
	return expr.New(sym, st, nil)
}

func TestGetBaseMnemonic(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SA1", "SA"},
		{"sx7", "SX"},
		{"EQ3", "EQ"},
		{"BX6", "BX"},
		{"RJ", "RJ"},
		{"DATA", "DATA"},
		{"SA8", "SA8"}, // 8 is not a register index
	}
	for _, tt := range tests {
		if got := GetBaseMnemonic(tt.in); got != tt.want {
			t.Errorf("GetBaseMnemonic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifiers(t *testing.T) {
	if !IsPseudoOp("EQU") || !IsPseudoOp("ident") || IsPseudoOp("SA1") {
		t.Errorf("IsPseudoOp misclassified")
	}
	if !IsInstruction("SA1") || !IsInstruction("RJ") || IsInstruction("NOTREAL") {
		t.Errorf("IsInstruction misclassified")
	}
}

func TestAssembleBooleanProduct(t *testing.T) {
	ev := newEval(2)
	parcels, err := Assemble("BX5", "X1*X2", ev, 1, false)
	if err != nil {
		t.Fatalf("BX5 X1*X2: %v", err)
	}
	if len(parcels) != 1 || parcels[0].Width != 15 {
		t.Fatalf("BX5 should be one 15-bit parcel, got %+v", parcels)
	}
	// f=1 m=1 i=5 j=1 k=2
	want := int64(1<<12 | 1<<9 | 5<<6 | 1<<3 | 2)
	if parcels[0].Value != want {
		t.Errorf("BX5 X1*X2 = %o, want %o", parcels[0].Value, want)
	}
}

func TestAssembleSetAddressRegisterForms(t *testing.T) {
	ev := newEval(2)

	// Register/register form stays 15-bit: SA1 X2+B3.
	parcels, err := Assemble("SA1", "X2+B3", ev, 1, false)
	if err != nil {
		t.Fatalf("SA1 X2+B3: %v", err)
	}
	if len(parcels) != 1 || parcels[0].Width != 15 {
		t.Fatalf("SA1 X2+B3 should be 15-bit, got %+v", parcels)
	}
	if parcels[0].Value != 0o53123 {
		t.Errorf("SA1 X2+B3 = %o, want 53123", parcels[0].Value)
	}

	// An address-like K forces the 30-bit form even though a 15-bit
	// definition exists.
	parcels, err = Assemble("SA2", "BUFF", ev, 2, false)
	if err != nil {
		t.Fatalf("SA2 BUFF: %v", err)
	}
	if len(parcels) != 1 || parcels[0].Width != 30 {
		t.Fatalf("SA2 BUFF should resolve to 30-bit, got %+v", parcels)
	}
	want := int64(0o51)<<24 | int64(2)<<21 | 0o21
	if parcels[0].Value != want {
		t.Errorf("SA2 BUFF = %o, want %o", parcels[0].Value, want)
	}
}

func TestAssembleNegativeKOnesComplement(t *testing.T) {
	ev := newEval(2)
	parcels, err := Assemble("SB1", "B2-5", ev, 3, false)
	if err != nil {
		t.Fatalf("SB1 B2-5: %v", err)
	}
	if len(parcels) != 1 || parcels[0].Width != 30 {
		t.Fatalf("SB1 B2-5 should be 30-bit, got %+v", parcels)
	}
	want := int64(0o61)<<24 | int64(1)<<21 | int64(2)<<18 | (^int64(5) & mask18)
	if parcels[0].Value != want {
		t.Errorf("SB1 B2-5 = %o, want %o (one's-complement K)", parcels[0].Value, want)
	}
}

func TestAssembleGHIGroupSplitsOpcode(t *testing.T) {
	ev := newEval(2)
	parcels, err := Assemble("XJ", "BUFF", ev, 4, false)
	if err != nil {
		t.Fatalf("XJ BUFF: %v", err)
	}
	// XJ's 9-bit opcode 010 splits into f=1, m=0.
	want := int64(1)<<24 | 0o21
	if len(parcels) != 1 || parcels[0].Value != want {
		t.Errorf("XJ BUFF = %+v, want value %o", parcels, want)
	}
}

func TestAssembleRelocatesKInPassTwo(t *testing.T) {
	ev := newEval(2)
	parcels, err := Assemble("SA1", "RELSYM", ev, 5, false)
	if err != nil {
		t.Fatalf("SA1 RELSYM: %v", err)
	}
	// In Pass 2 the evaluator itself resolves RELSYM to 3 + base 20B.
	if parcels[0].Value&mask18 != 0o23 {
		t.Errorf("K field = %o, want 23B (relative 3 + block base 20B)", parcels[0].Value&mask18)
	}
}

func TestAssemblePassOneWidthEstimateWithForwardRef(t *testing.T) {
	ev := newEval(1)
	parcels, err := Assemble("RJ", "NOTYET", ev, 6, true)
	if err != nil {
		t.Fatalf("suppressed Pass 1 estimate should not fail: %v", err)
	}
	if len(parcels) != 1 || parcels[0].Width != 30 {
		t.Errorf("RJ width estimate = %+v, want one 30-bit parcel", parcels)
	}
}

func TestAssembleRejectsBadOperand(t *testing.T) {
	ev := newEval(2)
	if _, err := Assemble("BX5", "X1%X2", ev, 7, false); err == nil {
		t.Errorf("malformed operand should fail to assemble")
	}
	if _, err := Assemble("ZZZZ", "X1", ev, 8, false); err == nil {
		t.Errorf("unknown mnemonic should fail")
	}
}

func TestLoadMapOverridesAndAdds(t *testing.T) {
	input := strings.Join([]string{
		"30 0200 QQ K     * test-only transfer",
		"15 04000 QW JK",
		"",
		"30 0210 QW K     . second encoding for the same mnemonic",
	}, "\n")
	if err := LoadMap(strings.NewReader(input)); err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	defs, ok := GetDetails("QQ")
	if !ok || len(defs) != 1 || defs[0].Width != 30 || defs[0].Opcode != 0o200 || defs[0].Format != "K" {
		t.Errorf("QQ loaded as %+v", defs)
	}
	defs, ok = GetDetails("QW")
	if !ok || len(defs) != 2 {
		t.Fatalf("QW should carry both file encodings, got %+v", defs)
	}
	if defs[0].Width != 15 || defs[1].Width != 30 || defs[1].Opcode != 0o210 {
		t.Errorf("QW encodings = %+v", defs)
	}
}

func TestLoadMapRejectsBadLines(t *testing.T) {
	tests := []string{
		"99 0200 QQ2",   // invalid width
		"30 09 QQ3",     // invalid octal opcode
		"30 0200",       // too few fields
	}
	for _, in := range tests {
		if err := LoadMap(strings.NewReader(in)); err == nil {
			t.Errorf("LoadMap(%q) should fail", in)
		}
	}
}
