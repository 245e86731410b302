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

// Package instr holds the CDC 6000 instruction set: the mnemonic table
// (width, opcode, operand-format hint), the pattern resolver that maps
// SA1/EQ3/JP7-style indexed mnemonics back to their base definition, the
// width/format resolver that picks which of an instruction's candidate
// encodings fits a given operand, and the 15-/30-bit parcel encoder.
package instr

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rcornwell/compass70/internal/expr"
	"github.com/rcornwell/compass70/internal/operand"
	"github.com/rcornwell/compass70/internal/symtab"
)

// noop15 is the 15-bit pass-instruction parcel substituted when a
// field-encoding error would otherwise produce nonsense output.
const noop15 = 0o046000

// NoOpParcel15 is noop15 exported for the pass driver's word-boundary
// padding: a 15-bit instruction never spans a word, so any slack left in
// a word before a wider parcel is filled with real no-op parcels rather
// than silent zero bits.
const NoOpParcel15 = noop15

const mask18 = (1 << 18) - 1

// Def is one candidate encoding of a mnemonic: its width, its opcode
// field(s) packed as the map file would hold them, and the operand shape
// it expects.
type Def struct {
	Width  int
	Opcode int
	Format string
}

// Error reports an instruction-assembly failure.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }
func errf(format string, args ...any) error { return &Error{fmt.Sprintf(format, args...)} }

var patternPrefixes = map[string]bool{
	"SA": true, "SB": true, "SX": true, "LX": true, "AX": true, "FX": true,
	"RX": true, "DX": true, "IX": true, "NX": true, "ZX": true, "UX": true,
	"PX": true, "MX": true, "CX": true, "BX": true,
	"EQ": true, "NE": true, "GE": true, "LT": true, "ZR": true, "NZ": true,
	"PL": true, "NG": true, "IR": true, "OR": true, "DF": true, "ID": true,
	"JP": true,
}

// ghiGroup lists the mnemonics whose 30-bit opcode is a single 9-bit GHI
// field (6-bit gh + 3-bit i) that must be split into the 30-bit parcel's
// 6-bit F and 3-bit M fields.
var ghiGroup = map[string]bool{
	"RJ": true, "RE": true, "WE": true, "XJ": true,
	"ZR": true, "NZ": true, "PL": true, "NG": true,
	"IR": true, "OR": true, "DF": true, "ID": true,
}

// table is the CDC 6000 instruction set. Widths and operand-format hints
// come straight off the COMPASS reference manual's instruction
// descriptions; opcodes are recorded octal. encode15 starts from these
// values but sets its F/M fields per mnemonic class, and encode30 reads
// them only for the GHI group, EQ/NE/GE/LT and JP.
var table = map[string][]Def{
	"BX":  {{15, 0o10000, "XJ*XK"}},
	"FX":  {{15, 0o14000, "XJ+XK"}},
	"RX":  {{15, 0o15000, "XJ+XK"}},
	"DX":  {{15, 0o12000, "XJ+XK"}},
	"IX":  {{15, 0o16000, "XJ+XK"}},
	"LX":  {{15, 0o04000, "JK"}},
	"AX":  {{15, 0o04000, "JK"}},
	"NX":  {{15, 0o04400, "BJ,XK"}},
	"ZX":  {{15, 0o04500, "BJ,XK"}},
	"UX":  {{15, 0o04600, "BJ,XK"}},
	"PX":  {{15, 0o04700, "BJ,XK"}},
	"MX":  {{15, 0o04300, "JK"}},
	"CX":  {{15, 0o04200, "X0"}},
	"EQ":  {{15, 0o01000, "BI,BJ"}, {30, 0o022, "BI,BJ,K"}},
	"NE":  {{15, 0o01100, "BI,BJ"}, {30, 0o023, "BI,BJ,K"}},
	"GE":  {{15, 0o01200, "BI,BJ"}, {30, 0o024, "BI,BJ,K"}},
	"LT":  {{15, 0o01300, "BI,BJ"}, {30, 0o025, "BI,BJ,K"}},
	"ZR":  {{15, 0o06000, "BI,XJ"}, {30, 0o01040, "BI,K"}},
	"NZ":  {{15, 0o06100, "BI,XJ"}, {30, 0o01050, "BI,K"}},
	"PL":  {{15, 0o06200, "BI,XJ"}, {30, 0o01060, "BI,K"}},
	"NG":  {{15, 0o06300, "BI,XJ"}, {30, 0o01070, "BI,K"}},
	"IR":  {{15, 0o06400, "BI,XJ"}, {30, 0o02000, "BI,K"}},
	"OR":  {{15, 0o06500, "BI,XJ"}, {30, 0o02010, "BI,K"}},
	"DF":  {{15, 0o06600, "BI,XJ"}, {30, 0o02020, "BI,K"}},
	"ID":  {{15, 0o06700, "BI,XJ"}, {30, 0o02030, "BI,K"}},
	"SA":  {{15, 0o00000, "AJ,K"}, {30, 0o051, "XJ,K"}},
	"SB":  {{15, 0o00000, "AJ,K"}, {30, 0o061, "XJ,K"}},
	"SX":  {{15, 0o00000, "AJ,K"}, {30, 0o071, "XJ,K"}},
	"NO":  {{15, 0o04600, ""}},
	"PS":  {{30, 0, ""}},
	"JP":  {{30, 0o02, "BI+K"}},
	"RJ":  {{30, 0o000, "K"}},
	"XJ":  {{30, 0o010, "K"}},
	"RE":  {{30, 0o020, "K"}},
	"WE":  {{30, 0o030, "K"}},
}

// mapCommentRun matches the run of blanks plus a '*', '.', or '#' marker
// that starts a trailing comment in an instruction-map line's
// format-hint field, per spec.md §6.
var mapCommentRun = regexp.MustCompile(`\s+[*.#]`)

// LoadMap reads an external instruction-map file in the
// "width opcode-octal mnemonic [format-hint] [comment]" format spec.md
// §6 describes, and merges its entries into the built-in table,
// replacing any built-in Defs for a mnemonic entirely the first time
// that mnemonic is seen in the file (so a map file can both override and
// add encodings without mixing stale built-in widths into the result).
func LoadMap(r io.Reader) error {
	replaced := map[string]bool{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if loc := mapCommentRun.FindStringIndex(line); loc != nil {
			line = line[:loc[0]]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return errf("instruction map line %d: expected at least 3 fields, got %d", lineNum, len(fields))
		}
		width, err := strconv.Atoi(fields[0])
		if err != nil || (width != 15 && width != 30 && width != 60) {
			return errf("instruction map line %d: invalid width %q", lineNum, fields[0])
		}
		opcode, err := strconv.ParseInt(fields[1], 8, 64)
		if err != nil {
			return errf("instruction map line %d: invalid octal opcode %q", lineNum, fields[1])
		}
		mnemonic := strings.ToUpper(fields[2])
		format := ""
		if len(fields) > 3 {
			format = fields[3]
		}
		if !replaced[mnemonic] {
			table[mnemonic] = nil
			replaced[mnemonic] = true
		}
		table[mnemonic] = append(table[mnemonic], Def{Width: width, Opcode: int(opcode), Format: format})
	}
	return scanner.Err()
}

// LoadMapFile opens path and loads it as an instruction map via LoadMap.
func LoadMapFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errf("cannot open instruction map %q: %v", path, err)
	}
	defer f.Close()
	return LoadMap(f)
}

var pseudoOps = map[string]bool{}

func init() {
	for _, op := range []string{
		"IDENT", "END", "ABS", "REL", "USE", "LOC", "ORG", "ORGC", "FIN",
		"BASE", "CODE", "QUAL", "SEQ", "COL", "LIST", "NOLIST",
		"DATA", "CON", "LIT", "DIS", "VFD", "BSS", "BSSZ", "COMMON", "ENDC",
		"EQU", "=", "SET", "MAX", "MIN", "MICCNT", "SST",
		"IF", "IFTPA", "IFCP", "IFPP", "IFPPA", "IFPP7",
		"IFEQ", "IFNE", "IFGT", "IFGE", "IFLT", "IFLE",
		"IFPL", "IFMI", "IFC",
		"ENDIF", "ELSE", "SKIP",
		"ENTRY", "EXT",
		"TITLE", "TTL", "SPACE", "EJECT", "NOREF", "XREF",
		"CTEXT", "XTEXT", "ENDX",
		"MACRO", "MACROE", "ENDM", "LOCAL", "IRP", "ENDD", "OPDEF", "PURGE",
		"DUP", "ECHO", "RMT", "HERE",
		"MICRO", "DECMIC", "OCTMIC", "ENDMIC",
		"ERR", "ERRMI", "ERRNG", "ERRNZ", "ERRPL", "ERRZR",
		"USELCM", "POS",
	} {
		pseudoOps[op] = true
	}
}

var indexedMnemonic = regexp.MustCompile(`^[A-Z]{2}([0-7])$`)

// GetBaseMnemonic strips a COMPASS indexed-mnemonic suffix, e.g. EQ3 ->
// EQ, SA1 -> SA, JP0 -> JP, for instructions whose register index is
// folded into the opcode name rather than written as an operand.
func GetBaseMnemonic(mnemonic string) string {
	u := strings.ToUpper(mnemonic)
	if len(u) >= 3 {
		base, digit := u[:len(u)-1], u[len(u)-1]
		if patternPrefixes[base] && digit >= '0' && digit <= '7' {
			return base
		}
	}
	return u
}

// indexDigit extracts the register index folded into an indexed
// mnemonic name (EQ3 -> 3), or 0 if the mnemonic carries none.
func indexDigit(mnemonic string) int {
	m := indexedMnemonic.FindStringSubmatch(strings.ToUpper(mnemonic))
	if m == nil {
		return 0
	}
	return int(m[1][0] - '0')
}

// IsInstruction reports whether mnemonic names a machine instruction,
// directly or via its indexed form.
func IsInstruction(mnemonic string) bool {
	_, ok := GetDetails(mnemonic)
	return ok
}

// IsPseudoOp reports whether mnemonic names a pseudo-operation.
func IsPseudoOp(mnemonic string) bool {
	return pseudoOps[strings.ToUpper(mnemonic)]
}

// GetDetails returns every candidate encoding for mnemonic (there may be
// both a 15-bit and a 30-bit form, as with EQ/NE/GE/LT and ZR/NZ/.../ID).
func GetDetails(mnemonic string) ([]Def, bool) {
	u := strings.ToUpper(mnemonic)
	if defs, ok := table[u]; ok {
		return defs, true
	}
	base := GetBaseMnemonic(u)
	if base != u {
		defs, ok := table[base]
		return defs, ok
	}
	return nil, false
}

// Parcel is one assembled instruction fragment: its bit value and width
// (15, 30, or 60 bits).
type Parcel struct {
	Value int64
	Width int
}

// isTypical15BitRegisterForm reports whether a parsed operand is a
// genuine register/register shape rather than one that merely happens to
// satisfy a 15-bit format string while really wanting an 18-bit K field
// -- the case the width resolver must route to a 30-bit definition
// instead.
func isTypical15BitRegisterForm(p operand.Parsed) bool {
	switch {
	case p.HasJK:
		return true
	case p.Format == "-XK":
		return true
	case p.HasJ && p.HasK && !p.HasKExpr:
		return true
	case (p.HasJ != p.HasK) && !p.HasKExpr && !p.HasJK && p.Op == 0:
		return true
	}
	return false
}

// Assemble resolves which of mnemonic's candidate Defs fits operandStr,
// parses the operand against it, and encodes the resulting parcel(s).
// ev.State must report Pass 2 for K-field relocation to a block base to
// take effect; during Pass 1 the raw relative value/type is used only to
// size the instruction.
func Assemble(mnemonic string, operandStr string, ev *expr.Evaluator, line int, suppressUndefined bool) ([]Parcel, error) {
	upper := strings.ToUpper(mnemonic)
	base := GetBaseMnemonic(upper)
	defs, ok := GetDetails(upper)
	if !ok {
		return nil, errf("unknown instruction mnemonic '%s'", mnemonic)
	}
	iReg := indexDigit(upper)

	sorted := append([]Def(nil), defs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Width < sorted[j].Width })
	has30 := false
	for _, d := range sorted {
		if d.Width == 30 {
			has30 = true
		}
	}

	var chosen *Def
	var parsed operand.Parsed
	var lastErr error
	for i := range sorted {
		d := sorted[i]
		p, err := operand.Parse(operandStr, d.Format, ev, line, suppressUndefined)
		if err != nil {
			lastErr = err
			continue
		}
		if d.Width == 15 && has30 && p.HasKExpr && !isTypical15BitRegisterForm(p) {
			lastErr = errf("operand '%s' implies an 18-bit K field, preferring 30-bit form", operandStr)
			continue
		}
		chosen = &sorted[i]
		parsed = p
		break
	}
	if chosen == nil {
		if lastErr != nil {
			return nil, errf("operand '%s' does not match any encoding of %s: %v", operandStr, mnemonic, lastErr)
		}
		return nil, errf("operand '%s' does not match any encoding of %s", operandStr, mnemonic)
	}

	kVal, kType := parsed.KVal, parsed.KType
	if parsed.HasKExpr && chosen.Width == 30 && base != "PS" {
		if ev.State.PassNumber() == 2 && kType == symtab.Relocatable && parsed.KBlock != "" && parsed.KBlock != symtab.AbsBlock {
			blockBase, ok := ev.State.BlockBase(parsed.KBlock)
			if !ok {
				return nil, errf("internal: base address for block '%s' not found for K field", parsed.KBlock)
			}
			kVal += blockBase
			kType = symtab.Absolute
		}
	}

	switch chosen.Width {
	case 15:
		v, err := encode15(base, iReg, *chosen, parsed)
		if err != nil {
			return nil, err
		}
		return []Parcel{{v, 15}}, nil
	case 30:
		v, err := encode30(base, iReg, *chosen, parsed, kVal)
		if err != nil {
			return nil, err
		}
		return []Parcel{{v, 30}}, nil
	default:
		return nil, errf("60-bit instruction '%s' is not implemented", mnemonic)
	}
}

func buildParcel15(f3, m3, i, j, k int) (int64, error) {
	if f3 < 0 || f3 > 7 || m3 < 0 || m3 > 7 || i < 0 || i > 7 || j < 0 || j > 7 || k < 0 || k > 7 {
		return noop15, errf("invalid 15-bit field values f=%o m=%o i=%o j=%o k=%o", f3, m3, i, j, k)
	}
	return int64(f3<<12 | m3<<9 | i<<6 | j<<3 | k), nil
}

func buildParcel30(f, m, j int, k int64) (int64, error) {
	if f < 0 || f > 0o77 || m < 0 || m > 7 || j < 0 || j > 7 {
		return int64(noop15)<<15 | noop15, errf("invalid 30-bit field values f=%o m=%o j=%o", f, m, j)
	}
	kMasked := k & mask18
	if k < 0 {
		kMasked = (^(-k)) & mask18
	}
	return int64(f)<<24 | int64(m)<<21 | int64(j)<<18 | kMasked, nil
}

// encode15 assigns the f/m/i/j/k fields of a 15-bit parcel for every
// mnemonic class that has a 15-bit form.
func encode15(base string, iReg int, def Def, p operand.Parsed) (int64, error) {
	f3 := (def.Opcode >> 12) & 7
	m3 := (def.Opcode >> 9) & 7
	i, j, k := iReg, p.J, p.K

	switch base {
	case "BX":
		f3 = 1
		switch p.Op {
		case '*':
			m3 = 1
		case '+':
			m3 = 2
		case '-':
			m3 = 3
		default:
			if p.HasJ && !p.HasK {
				m3, j, k = 0, p.J, p.J
			} else if p.Format == "-XK" {
				m3, j, k = 4, p.K, p.K
			} else {
				return noop15, errf("unexpected operand shape for BX")
			}
		}
	case "FX", "RX", "DX", "IX":
		opsByMnemonic := map[string]map[byte][2]int{
			"FX": {'+': {3, 0}, '-': {3, 1}, '*': {4, 0}, '/': {4, 4}},
			"RX": {'+': {3, 4}, '-': {3, 5}, '*': {4, 1}, '/': {4, 5}},
			"DX": {'+': {3, 2}, '-': {3, 3}, '*': {4, 2}},
			"IX": {'+': {3, 6}, '-': {3, 7}, '*': {3, 6}},
		}
		op := p.Op
		if op == 0 && p.HasJ && !p.HasK {
			op = '*'
			j, k = p.J, p.J
		}
		fm, ok := opsByMnemonic[base][op]
		if !ok {
			return noop15, errf("invalid operator for %s", base)
		}
		f3, m3 = fm[0], fm[1]
	case "LX", "AX":
		f3 = 2
		switch {
		case p.HasJK:
			m3 = map[string]int{"LX": 0, "AX": 1}[base]
			jk := p.JK & 0o77
			j, k = int(jk>>3)&7, int(jk)&7
		case p.HasJ && p.HasK:
			m3 = map[string]int{"LX": 2, "AX": 3}[base]
		default:
			m3 = map[string]int{"LX": 2, "AX": 3}[base]
			j, k = 0, p.K
		}
	case "NX", "ZX", "UX", "PX":
		f3 = 2
		m3 = map[string]int{"NX": 4, "ZX": 5, "UX": 6, "PX": 7}[base]
		if !p.HasJ {
			j = 0
		}
	case "MX":
		f3, m3 = 4, 3
		jk := p.JK & 0o77
		j, k = int(jk>>3)&7, int(jk)&7
	case "CX":
		f3, m3 = 4, 7
		j, k = p.K, p.K
	case "EQ", "NE", "GE", "LT":
		f3 = 0
		m3 = map[string]int{"EQ": 0, "NE": 1, "GE": 2, "LT": 3}[base]
		i, j, k = p.J, p.K, 0
	case "ZR", "NZ", "PL", "NG", "IR", "OR", "DF", "ID":
		f3 = 1
		m3 = map[string]int{"ZR": 0, "NZ": 1, "PL": 2, "NG": 3, "IR": 4, "OR": 5, "DF": 6, "ID": 7}[base]
		i, j, k = p.I, p.J, 0
	case "SA", "SB", "SX":
		fMap := map[string]int{"SA": 5, "SB": 6, "SX": 7}
		f3 = fMap[base]
		mSingle := map[byte]int{'A': 4, 'B': 6, 'X': 3}
		mOpPlus := map[[2]byte]int{{'X', '+'}: 3, {'A', '+'}: 4, {'A', '-'}: 5, {'B', '+'}: 6, {'B', '-'}: 7}
		switch {
		case p.Op != 0:
			mm, ok := mOpPlus[[2]byte{p.RegType, p.Op}]
			if !ok {
				return noop15, errf("invalid %s operand register/operator combination", base)
			}
			m3, j, k = mm, p.J, p.K
		default:
			mm, ok := mSingle[p.RegType]
			if !ok {
				return noop15, errf("invalid register type for single-register %s", base)
			}
			m3, j, k = mm, p.J, 0
		}
	case "NO":
		f3, m3, i, j, k = 4, 6, 0, 0, 0
	default:
		return noop15, errf("no 15-bit encoding defined for base mnemonic '%s'", base)
	}

	return buildParcel15(f3, m3, i, j, k)
}

// encode30 assigns the F/M/J/K fields of a 30-bit parcel for every
// mnemonic class that has a 30-bit form.
func encode30(base string, iReg int, def Def, p operand.Parsed, kVal int64) (int64, error) {
	f, m, j := 0, 0, 0
	k := kVal

	switch {
	case base == "PS":
		f, m, j, k = 0, 0, 0, 0

	case ghiGroup[base]:
		f = (def.Opcode >> 3) & 0o77
		m = def.Opcode & 7
		switch {
		case p.HasI:
			j = p.I
		case p.HasJ:
			j = p.J
		default:
			j = 0
		}

	case base == "SA" || base == "SB" || base == "SX":
		m = iReg
		single := map[string]int{"SA": 0o50, "SB": 0o60, "SX": 0o70}
		withOp := map[string]map[byte]int{
			"SA": {'A': 0o50, 'B': 0o51, 'X': 0o52},
			"SB": {'A': 0o60, 'B': 0o61, 'X': 0o62},
			"SX": {'A': 0o70, 'B': 0o71, 'X': 0o72},
		}
		switch {
		case !p.HasI && !p.HasJ:
			j = 0
			f = withOp[base]['B']
		case p.RegType != 0:
			j = p.J
			f = withOp[base][p.RegType]
		default:
			f = single[base]
			j = p.J
		}

	case base == "EQ" || base == "NE" || base == "GE" || base == "LT":
		f = def.Opcode
		if p.HasI && p.HasJ {
			m, j = p.I, p.J
		} else {
			m = iReg
			reg := p.J
			if !p.HasJ {
				reg = p.I
			}
			if iReg == 0 {
				m, j = reg, 0
			} else {
				j = reg
			}
		}

	case base == "JP":
		f = def.Opcode
		m = iReg
		j = 0
		if p.HasI {
			if iReg == 0 {
				m, j = p.I, p.I
			} else {
				j = p.I
			}
		} else if p.HasJ {
			if iReg == 0 {
				m, j = p.J, p.J
			} else {
				j = p.J
			}
			k = 0
		}

	default:
		return int64(noop15)<<15 | noop15, errf("no 30-bit encoding defined for base mnemonic '%s'", base)
	}

	return buildParcel30(f, m, j, k)
}
