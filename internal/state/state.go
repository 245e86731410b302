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

// Package state tracks the assembler's location, position, block, base,
// and code registers across both passes, including the deferred
// forced-upper bookkeeping JP/RJ/PS/XJ require.
package state

import (
	"github.com/rcornwell/compass70/internal/charset"
	"github.com/rcornwell/compass70/internal/diag"
	"github.com/rcornwell/compass70/internal/symtab"
)

// AbsBlock is the absolute block's name, re-exported for callers that
// don't otherwise import symtab.
const AbsBlock = symtab.AbsBlock

// State is the assembler's mutable cursor: location counter (word
// address), position counter (bit offset 0-59 within the word), active
// block/base/code, and the Pass 1 block-size table used to compute block
// base addresses between passes.
type State struct {
	LC                  int64
	PC                  int
	Block               string
	Base                byte // 'D', 'O', 'M', 'H'
	Code                charset.Code
	Qualifier           string
	Pass                int
	Conditional         []bool
	Title               string
	TTLTitle            string
	FirstTitleProcessed bool
	SkipCount           int64

	BlockSizes map[string]int64 // Pass 1 word counts, keyed by block name
	BlockOrder []string         // first-use order of named (non-*ABS*) blocks
	BlockBases map[string]int64 // computed once between passes

	LCAbsDueToLOC bool
	PreLOCBlock   string

	DeferredForceUpperPending bool
	LastMnemonic              string
	LastMnemonicLC            int64

	ProgramStartSymbol string
	EndProcessed       bool

	ListingFlags map[byte]bool

	Diag *diag.Sink
}

var defaultListingFlags = []byte{'B', 'C', 'D', 'E', 'F', 'G', 'M', 'N', 'R', 'S', 'X'}

// New returns assembler state initialized for Pass 0 (pre-pass scan),
// current block *ABS*, base D, code D.
func New(sink *diag.Sink) *State {
	s := &State{
		Block:      symtab.AbsBlock,
		Base:       'D',
		Code:       charset.Display,
		BlockSizes: map[string]int64{symtab.AbsBlock: 0},
		Diag:       sink,
	}
	s.resetListingFlags()
	return s
}

func (s *State) resetListingFlags() {
	s.ListingFlags = make(map[byte]bool, len(defaultListingFlags))
	for _, f := range defaultListingFlags {
		s.ListingFlags[f] = true
	}
}

// --- expr.State interface ---

func (s *State) LocationCounter() int64        { return s.LC }
func (s *State) PositionCounter() int          { return s.PC }
func (s *State) CurrentBlock() string          { return s.Block }
func (s *State) LCAbsoluteDueToLOC() bool      { return s.LCAbsDueToLOC }
func (s *State) PassNumber() int               { return s.Pass }
func (s *State) CurrentQualifier() string      { return s.Qualifier }
func (s *State) CurrentCode() charset.Code     { return s.Code }
func (s *State) CurrentBase() byte             { return s.Base }
func (s *State) BlockBase(block string) (int64, bool) {
	v, ok := s.BlockBases[block]
	return v, ok
}

// SetPass moves to the given pass, resetting Pass-1-local bookkeeping
// when entering Pass 1 (the pre-pass literal scan doesn't use it).
func (s *State) SetPass(pass int) {
	s.Pass = pass
	if pass == 1 {
		s.BlockSizes = map[string]int64{symtab.AbsBlock: 0}
		s.BlockOrder = nil
		s.LCAbsDueToLOC = false
		s.PreLOCBlock = ""
		s.Title = ""
		s.TTLTitle = ""
		s.LastMnemonic = ""
		s.LastMnemonicLC = 0
		s.DeferredForceUpperPending = false
		s.FirstTitleProcessed = false
	}
}

// ResetForPass2 rewinds the cursor to the start of the absolute address
// space (past the literal pool, which spec.md places first) and clears
// every Pass-1-local flag.
func (s *State) ResetForPass2(literalPoolSize int64) {
	s.LC = literalPoolSize
	s.PC = 0
	s.Conditional = []bool{true}
	s.EndProcessed = false
	s.Qualifier = ""
	s.Block = symtab.AbsBlock
	s.Base = 'D'
	s.Code = charset.Display
	s.SkipCount = 0
	s.resetListingFlags()
	s.LCAbsDueToLOC = false
	s.PreLOCBlock = ""
	s.Title = ""
	s.TTLTitle = ""
	s.LastMnemonic = ""
	s.LastMnemonicLC = 0
	s.DeferredForceUpperPending = false
	s.FirstTitleProcessed = false
	s.SetPass(2)
}

// AdvanceLC moves the cursor forward by bits, carrying whole words into
// LC and accumulating the block-size table during Pass 1.
func (s *State) AdvanceLC(bits int) {
	if bits <= 0 {
		return
	}
	total := s.PC + bits
	words := total / 60
	s.PC = total % 60
	s.LC += int64(words)

	if s.Pass == 1 && words > 0 {
		s.addBlockSize(int64(words))
	}
}

func (s *State) addBlockSize(words int64) {
	block := s.Block
	if s.LCAbsDueToLOC && s.PreLOCBlock != "" {
		block = s.PreLOCBlock
	}
	s.BlockSizes[block] += words
}

// ForceUpper completes a partial word (non-zero PC), advancing LC by one
// and resetting PC to 0; it returns the number of pad bits that were
// skipped, for listing purposes. Unlike the pending-flag mechanics in
// ConsumeDeferredForceUpper, this always performs the increment when
// PC != 0.
func (s *State) ForceUpper() int {
	if s.PC == 0 {
		return 0
	}
	pad := 60 - s.PC
	s.LC++
	s.PC = 0
	if s.Pass == 1 {
		s.addBlockSize(1)
	}
	return pad
}

// ConsumeDeferredForceUpper clears the pending flag set by a JP/RJ/PS/XJ
// mnemonic once the next line has resolved it one of three ways (spec.md
// §4: negating label cancels it, EQU * defines before forcing, anything
// else forces then continues).
func (s *State) ConsumeDeferredForceUpper() {
	s.DeferredForceUpperPending = false
}

// SetLocationCounter implements LOC/EQU * positioning. When
// isLocDirective is true the new LC is absolute and independent of the
// current block's own relative addressing until a block switch.
func (s *State) SetLocationCounter(lc int64, pc int, isLocDirective bool) {
	s.LC = lc
	if pc < 0 || pc >= 60 {
		if s.Diag != nil {
			s.Diag.Add(0, diag.Fatal, "invalid position counter value set: %d", pc)
		}
		pc = 0
	}
	s.PC = pc
	if isLocDirective {
		s.LCAbsDueToLOC = true
		s.PreLOCBlock = s.Block
		s.DeferredForceUpperPending = false
	}
}

// SwitchBlock implements USE/ABS/REL/RMT block selection: Pass 1 resets
// LC to 0 relative to the named block (registering first-use order);
// Pass 2 sets LC to that block's already-computed base address.
func (s *State) SwitchBlock(name string) {
	s.DeferredForceUpperPending = false
	if s.Pass == 1 && name == s.Block && !s.LCAbsDueToLOC {
		return
	}

	s.LCAbsDueToLOC = false
	s.PreLOCBlock = ""

	switch s.Pass {
	case 1:
		if _, ok := s.BlockSizes[name]; !ok {
			s.BlockSizes[name] = 0
			if name != symtab.AbsBlock {
				s.BlockOrder = append(s.BlockOrder, name)
			}
		}
		s.LC = 0
		s.PC = 0
		s.Block = name
	case 2:
		base, ok := s.BlockBases[name]
		if !ok {
			if s.Diag != nil {
				s.Diag.Add(0, diag.Fatal, "internal: base address for block '%s' not found in Pass 2", name)
			}
			base = 0
		}
		s.LC = base
		s.PC = 0
		s.Block = name
	}
}

// SetBase validates and applies a BASE pseudo-op argument.
func (s *State) SetBase(c byte) bool {
	switch c {
	case 'D', 'O', 'M', 'H':
		s.Base = c
		return true
	}
	return false
}

// SetCode validates and applies a CODE pseudo-op argument.
func (s *State) SetCode(c byte) bool {
	switch charset.Code(c) {
	case charset.Display, charset.ASCII, charset.Internal, charset.External:
		s.Code = charset.Code(c)
		return true
	}
	return false
}

// UpdateListingFlags implements LIST/NOLIST's flag-set toggling,
// accepting "ALL" or a comma-separated flag list.
func (s *State) UpdateListingFlags(flags []byte, on bool) []byte {
	var unknown []byte
	for _, f := range flags {
		if _, ok := s.ListingFlags[f]; ok {
			s.ListingFlags[f] = on
		} else {
			unknown = append(unknown, f)
		}
	}
	return unknown
}

// ComputeBlockBases assigns each block a base address in first-use
// order, with the literal pool occupying [0, literalSize) ahead of every
// named block, per spec.md §4's block-layout invariant. *ABS* is not
// assigned a base: it addresses absolute memory directly.
func ComputeBlockBases(blockOrder []string, blockSizes map[string]int64, literalSize int64) (map[string]int64, int64) {
	bases := make(map[string]int64, len(blockOrder)+1)
	next := literalSize
	for _, name := range blockOrder {
		bases[name] = next
		next += blockSizes[name]
	}
	return bases, next
}
