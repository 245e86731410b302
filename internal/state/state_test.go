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

package state

import (
	"testing"

	"github.com/rcornwell/compass70/internal/diag"
	"github.com/rcornwell/compass70/internal/symtab"
)

func TestAdvanceLCCarriesWholeWords(t *testing.T) {
	s := New(diag.NewSink())
	s.SetPass(1)
	tests := []struct {
		bits   int
		wantLC int64
		wantPC int
	}{
		{15, 0, 15},
		{15, 0, 30},
		{30, 1, 0},
		{60, 2, 0},
		{75, 3, 15},
	}
	for i, tt := range tests {
		s.AdvanceLC(tt.bits)
		if s.LC != tt.wantLC || s.PC != tt.wantPC {
			t.Fatalf("step %d: after +%d bits LC/PC = %d/%d, want %d/%d",
				i, tt.bits, s.LC, s.PC, tt.wantLC, tt.wantPC)
		}
	}
	if s.BlockSizes[symtab.AbsBlock] != 3 {
		t.Errorf("block size = %d words, want 3", s.BlockSizes[symtab.AbsBlock])
	}
}

func TestForceUpperPadsAndAccounts(t *testing.T) {
	s := New(diag.NewSink())
	s.SetPass(1)
	if pad := s.ForceUpper(); pad != 0 {
		t.Errorf("ForceUpper at PC 0 should be a no-op, padded %d bits", pad)
	}
	s.AdvanceLC(45)
	pad := s.ForceUpper()
	if pad != 15 {
		t.Errorf("pad = %d bits, want 15", pad)
	}
	if s.LC != 1 || s.PC != 0 {
		t.Errorf("after force LC/PC = %d/%d, want 1/0", s.LC, s.PC)
	}
	if s.BlockSizes[symtab.AbsBlock] != 1 {
		t.Errorf("forced word must count toward the block size")
	}
}

// Word-packing invariant: bits advanced plus force-upper padding always
// equals the change in LC*60+PC.
func TestAdvancePlusPadConservation(t *testing.T) {
	s := New(diag.NewSink())
	s.SetPass(1)
	total := 0
	for _, bits := range []int{15, 30, 15, 15, 30, 60} {
		s.AdvanceLC(bits)
		total += bits
	}
	total += s.ForceUpper()
	if got := s.LC*60 + int64(s.PC); got != int64(total) {
		t.Errorf("LC*60+PC = %d, want %d consumed bits", got, total)
	}
}

func TestSwitchBlockPassOne(t *testing.T) {
	s := New(diag.NewSink())
	s.SetPass(1)
	s.AdvanceLC(120)
	s.DeferredForceUpperPending = true
	s.SwitchBlock("CODE")
	if s.Block != "CODE" || s.LC != 0 || s.PC != 0 {
		t.Errorf("after switch: block %q LC %d PC %d, want CODE 0 0", s.Block, s.LC, s.PC)
	}
	if s.DeferredForceUpperPending {
		t.Errorf("block switch must clear the pending deferred force")
	}
	s.AdvanceLC(60)
	s.SwitchBlock("DATA")
	s.AdvanceLC(180)
	if s.BlockSizes["CODE"] != 1 || s.BlockSizes["DATA"] != 3 {
		t.Errorf("block sizes CODE=%d DATA=%d, want 1 and 3",
			s.BlockSizes["CODE"], s.BlockSizes["DATA"])
	}
	if len(s.BlockOrder) != 2 || s.BlockOrder[0] != "CODE" || s.BlockOrder[1] != "DATA" {
		t.Errorf("block order = %v, want first-use order [CODE DATA]", s.BlockOrder)
	}
}

func TestSwitchBlockPassTwoUsesBases(t *testing.T) {
	s := New(diag.NewSink())
	s.BlockBases = map[string]int64{"CODE": 4, "DATA": 9}
	s.SetPass(2)
	s.SwitchBlock("DATA")
	if s.LC != 9 || s.PC != 0 {
		t.Errorf("Pass 2 switch: LC/PC = %d/%d, want 9/0", s.LC, s.PC)
	}
}

// Words consumed while a LOC override is active are charged to the block
// that was current before the LOC.
func TestLOCChargesPreLOCBlock(t *testing.T) {
	s := New(diag.NewSink())
	s.SetPass(1)
	s.SwitchBlock("CODE")
	s.AdvanceLC(60)
	s.SetLocationCounter(0o1000, 0, true)
	if !s.LCAbsDueToLOC || s.PreLOCBlock != "CODE" {
		t.Fatalf("LOC must record the pre-LOC block, got %q", s.PreLOCBlock)
	}
	s.AdvanceLC(120)
	if s.BlockSizes["CODE"] != 3 {
		t.Errorf("CODE size = %d, want 3 (1 before LOC + 2 after)", s.BlockSizes["CODE"])
	}
	s.SwitchBlock("CODE")
	if s.LCAbsDueToLOC {
		t.Errorf("block switch must clear the LOC override")
	}
}

func TestComputeBlockBases(t *testing.T) {
	bases, next := ComputeBlockBases(
		[]string{"CODE", "DATA"},
		map[string]int64{symtab.AbsBlock: 7, "CODE": 4, "DATA": 2},
		3)
	if bases["CODE"] != 3 {
		t.Errorf("CODE base = %d, want 3 (after the literal pool)", bases["CODE"])
	}
	if bases["DATA"] != 7 {
		t.Errorf("DATA base = %d, want 7 (literals + CODE)", bases["DATA"])
	}
	if next != 9 {
		t.Errorf("next free address = %d, want 9", next)
	}
	if _, ok := bases[symtab.AbsBlock]; ok {
		t.Errorf("the absolute block must not receive a base address")
	}
}

func TestResetForPass2(t *testing.T) {
	s := New(diag.NewSink())
	s.SetPass(1)
	s.SwitchBlock("CODE")
	s.Qualifier = "Q"
	s.Base = 'O'
	s.DeferredForceUpperPending = true
	s.ResetForPass2(5)
	if s.Pass != 2 || s.LC != 5 || s.PC != 0 {
		t.Errorf("after reset: pass %d LC %d PC %d, want 2 5 0", s.Pass, s.LC, s.PC)
	}
	if s.Block != symtab.AbsBlock || s.Qualifier != "" || s.Base != 'D' {
		t.Errorf("Pass-2 reset must restore block/qualifier/base defaults")
	}
	if s.DeferredForceUpperPending {
		t.Errorf("Pass-2 reset must clear the deferred force")
	}
}
