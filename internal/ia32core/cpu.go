// cpu.go - construction, reset, the plain interpreter run loop, and the
// binary state snapshot spec.md §6 names.
//
// Grounded on cpu_x86.go's NewCPU_X86/Reset for the constructor/reset shape
// and cpu_x86_runner.go's CPUX86Runner.Run for the cycle-budget loop; the
// reset vector is the true 80386/486 architectural value (CS selector
// 0xF000, base 0xFFFF0000, EIP 0x0000FFF0, so CS:EIP resolves to the
// top-of-4GB alias 0xFFFFFFF0) rather than the teacher's flat-model
// "EIP=0, CS=0" shortcut (cpu_x86.go's own Reset comment says as much:
// "In real mode, this would be CS:IP = F000:FFF0 ... For our flat model,
// we'll use 0x00000000"); spec.md §5's reset() asks for "architectural
// reset values", which for a segmented/protected-mode-capable core means
// the real vector, not the teacher's simplification.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

import (
	"encoding/binary"
	"math"
)

// New constructs a CPU wired to the given host Bus and configuration, reset
// to its power-on state.
func New(bus Bus, cfg Config) *CPU {
	c := &CPU{bus: bus, cfg: cfg}
	c.Reset()
	return c
}

// Reset restores architectural reset values and invalidates the entire
// code cache (spec.md §5's reset()).
func (c *CPU) Reset() {
	c.regs = [8]uint32{}
	c.dr = [8]uint32{}

	for i := range c.segs {
		c.segs[i] = segDesc{}
	}
	c.segs[SegCS] = segDesc{selector: 0xF000, base: 0xFFFF0000, limitLow: 0xFFFF}
	c.pc = 0x0000FFF0

	c.gdt = tableReg{}
	c.idt = tableReg{limit: 0x3FF} // real-mode IVT: 256 x 4-byte vectors
	c.ldt = tableReg{}
	c.tr = tableReg{}

	c.flags = FlagIF
	c.eflags = FlagIF
	c.lazy = lazyFlags{}

	c.cr0 = CR0ET
	c.cr2, c.cr3, c.cr4 = 0, 0, 0

	c.cpl = 0
	c.iopl = 0
	c.use32 = 0
	c.stack32 = false

	c.abrt = FaultNone
	c.abrtErrC = false
	c.abrtErr = 0

	c.eaSeg = SegDS
	c.ealR, c.ealW = nil, nil
	c.prefixSeg = -1
	c.prefixRep = 0
	c.modrmLoaded = false
	c.sibLoaded = false
	c.trap = false
	c.lastTerminal = false

	c.fpu = newFPU()

	c.Halted = false
	c.tripleFault = false
	c.Cycles = 0
	c.tsc = 0

	c.mx = newMemXlate()
	c.jit = newJITState()
}

// SetCSIP loads CS with a real-mode selector and sets EIP, for a host
// harness seeding an entry point before the first Exec/ExecDynarec call.
func (c *CPU) SetCSIP(csSelector, ip uint16) {
	c.segs[SegCS] = segDesc{selector: csSelector, base: uint32(csSelector) << 4, limitLow: 0xFFFF}
	c.pc = uint32(ip)
}

// FlagsWord returns the architecturally visible EFLAGS low word, forcing
// any pending lazy computation to materialize first.
func (c *CPU) FlagsWord() uint16 {
	c.rebuild()
	return c.flags
}

// IsHalted reports whether the core is parked in HLT.
func (c *CPU) IsHalted() bool { return c.Halted }

// Exec runs the plain interpreter for up to the given number of guest
// cycles, stopping early on HLT or a triple fault (spec.md §5's exec()).
// The returned int is the number of cycles actually consumed; a non-nil
// error is only ever the triple-fault FatalError (spec.md §7).
func (c *CPU) Exec(cycles int) (int, error) {
	spent := 0
	for spent < cycles {
		if c.tripleFault {
			c.tripleFault = false
			return spent, &FatalError{Reason: "triple fault"}
		}
		if c.Halted {
			break
		}
		spent += c.Step()
	}
	return spent, nil
}

// snapshot is the binary-stable subset of CPU state spec.md §6's State()/
// LoadState() round-trips: architectural registers only, never the JIT
// cache or MemXlate lookup tables (those are host-side derived state,
// rebuilt from cr0/cr3 on LoadState rather than serialized).
type snapshot struct {
	Regs   [8]uint32
	DR     [8]uint32
	Segs   [6]segSnapshot
	GDT    tableSnapshot
	IDT    tableSnapshot
	LDT    tableSnapshot
	TR     tableSnapshot
	PC     uint32
	Flags  uint16
	EFlags uint32
	CR0    uint32
	CR2    uint32
	CR3    uint32
	CR4    uint32
	CPL    byte
	IOPL   byte
	Use32  byte
	Stack32 bool
	Halted bool
	Cycles uint64
	TSC    uint64
	FPU    fpuSnapshot
}

type segSnapshot struct {
	Selector  uint16
	Base      uint32
	LimitLow  uint32
	LimitHigh uint32
	Access    byte
}

type tableSnapshot struct {
	Selector uint16
	Base     uint32
	Limit    uint32
	Access   byte
}

type fpuSnapshot struct {
	ST    [8]float64
	StI64 [8]int64
	Tag   [8]byte
	Top   int32
	NPXC  uint16
	NPXS  uint16
	MMX   bool
	MM    [8]uint64
}

func toTableSnapshot(t tableReg) tableSnapshot {
	return tableSnapshot{t.selector, t.base, t.limit, t.access}
}

func fromTableSnapshot(s tableSnapshot) tableReg {
	return tableReg{selector: s.Selector, base: s.Base, limit: s.Limit, access: s.Access}
}

// State serializes every architectural register into a flat binary image
// via encoding/binary, matching spec.md §6's snapshot/restore requirement
// that it round-trip exactly.
func (c *CPU) State() []byte {
	var s snapshot
	s.Regs = c.regs
	s.DR = c.dr
	for i, seg := range c.segs {
		s.Segs[i] = segSnapshot{seg.selector, seg.base, seg.limitLow, seg.limitHigh, seg.access}
	}
	s.GDT = toTableSnapshot(c.gdt)
	s.IDT = toTableSnapshot(c.idt)
	s.LDT = toTableSnapshot(c.ldt)
	s.TR = toTableSnapshot(c.tr)
	s.PC = c.pc
	c.rebuild()
	s.Flags = c.flags
	s.EFlags = c.eflags
	s.CR0, s.CR2, s.CR3, s.CR4 = c.cr0, c.cr2, c.cr3, c.cr4
	s.CPL, s.IOPL = c.cpl, c.iopl
	s.Use32, s.Stack32 = c.use32, c.stack32
	s.Halted = c.Halted
	s.Cycles, s.TSC = c.Cycles, c.tsc
	s.FPU = fpuSnapshot{
		ST: c.fpu.st, StI64: c.fpu.stI64, Tag: c.fpu.tag,
		Top: int32(c.fpu.top), NPXC: c.fpu.npxc, NPXS: c.fpu.npxs,
		MMX: c.fpu.mmxActive, MM: c.fpu.mm,
	}

	buf := make([]byte, snapshotSize)
	w := &byteWriter{buf: buf}
	w.writeSnapshot(s)
	return buf[:w.off]
}

// LoadState restores a snapshot previously produced by State, invalidating
// the code cache and MemXlate TLB since both are derived from cr0/cr3 and
// must not be trusted across an arbitrary register-file rewrite.
func (c *CPU) LoadState(data []byte) {
	r := &byteReader{buf: data}
	s := r.readSnapshot()

	c.regs = s.Regs
	c.dr = s.DR
	for i, seg := range s.Segs {
		c.segs[i] = segDesc{seg.Selector, seg.Base, seg.LimitLow, seg.LimitHigh, seg.Access, false}
	}
	c.gdt = fromTableSnapshot(s.GDT)
	c.idt = fromTableSnapshot(s.IDT)
	c.ldt = fromTableSnapshot(s.LDT)
	c.tr = fromTableSnapshot(s.TR)
	c.pc = s.PC
	c.flags = s.Flags
	c.eflags = s.EFlags
	c.lazy = lazyFlags{}
	c.cr0, c.cr2, c.cr3, c.cr4 = s.CR0, s.CR2, s.CR3, s.CR4
	c.cpl, c.iopl = s.CPL, s.IOPL
	c.use32, c.stack32 = s.Use32, s.Stack32
	c.Halted = s.Halted
	c.Cycles, c.tsc = s.Cycles, s.TSC
	c.fpu.st = s.FPU.ST
	c.fpu.stI64 = s.FPU.StI64
	c.fpu.tag = s.FPU.Tag
	c.fpu.top = int(s.FPU.Top)
	c.fpu.npxc = s.FPU.NPXC
	c.fpu.npxs = s.FPU.NPXS
	c.fpu.mmxActive = s.FPU.MMX
	c.fpu.mm = s.FPU.MM

	c.mx = newMemXlate()
	c.jit = newJITState()
}

// snapshotSize is a generous fixed upper bound for the flat encoding below;
// byteWriter grows past it if ever wrong, but every field is fixed-width so
// the true size is constant and this is only a starting allocation.
const snapshotSize = 512

// byteWriter/byteReader are a minimal fixed-field binary codec over
// encoding/binary.LittleEndian, avoiding a reflection-based encoder for a
// struct whose layout must stay stable across versions.
type byteWriter struct {
	buf []byte
	off int
}

func (w *byteWriter) grow(n int) []byte {
	for w.off+n > len(w.buf) {
		w.buf = append(w.buf, make([]byte, len(w.buf)+64)...)
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b
}

func (w *byteWriter) u16(v uint16) { binary.LittleEndian.PutUint16(w.grow(2), v) }
func (w *byteWriter) u32(v uint32) { binary.LittleEndian.PutUint32(w.grow(4), v) }
func (w *byteWriter) u64(v uint64) { binary.LittleEndian.PutUint64(w.grow(8), v) }
func (w *byteWriter) i64(v int64)  { w.u64(uint64(v)) }
func (w *byteWriter) f64(v float64) {
	w.u64(math.Float64bits(v))
}
func (w *byteWriter) b(v byte) { w.grow(1)[0] = v }
func (w *byteWriter) boolean(v bool) {
	if v {
		w.b(1)
	} else {
		w.b(0)
	}
}

func (w *byteWriter) tableSnapshot(t tableSnapshot) {
	w.u16(t.Selector)
	w.u32(t.Base)
	w.u32(t.Limit)
	w.b(t.Access)
}

func (w *byteWriter) writeSnapshot(s snapshot) {
	for _, v := range s.Regs {
		w.u32(v)
	}
	for _, v := range s.DR {
		w.u32(v)
	}
	for _, seg := range s.Segs {
		w.u16(seg.Selector)
		w.u32(seg.Base)
		w.u32(seg.LimitLow)
		w.u32(seg.LimitHigh)
		w.b(seg.Access)
	}
	w.tableSnapshot(s.GDT)
	w.tableSnapshot(s.IDT)
	w.tableSnapshot(s.LDT)
	w.tableSnapshot(s.TR)
	w.u32(s.PC)
	w.u16(s.Flags)
	w.u32(s.EFlags)
	w.u32(s.CR0)
	w.u32(s.CR2)
	w.u32(s.CR3)
	w.u32(s.CR4)
	w.b(s.CPL)
	w.b(s.IOPL)
	w.b(s.Use32)
	w.boolean(s.Stack32)
	w.boolean(s.Halted)
	w.u64(s.Cycles)
	w.u64(s.TSC)
	for _, v := range s.FPU.ST {
		w.f64(v)
	}
	for _, v := range s.FPU.StI64 {
		w.i64(v)
	}
	for _, v := range s.FPU.Tag {
		w.b(v)
	}
	w.u32(uint32(s.FPU.Top))
	w.u16(s.FPU.NPXC)
	w.u16(s.FPU.NPXS)
	w.boolean(s.FPU.MMX)
	for _, v := range s.FPU.MM {
		w.u64(v)
	}
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) take(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *byteReader) u16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }
func (r *byteReader) u32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }
func (r *byteReader) u64() uint64 { return binary.LittleEndian.Uint64(r.take(8)) }
func (r *byteReader) i64() int64  { return int64(r.u64()) }
func (r *byteReader) f64() float64 {
	return math.Float64frombits(r.u64())
}
func (r *byteReader) b() byte { return r.take(1)[0] }
func (r *byteReader) boolean() bool {
	return r.b() != 0
}

func (r *byteReader) tableSnapshot() tableSnapshot {
	return tableSnapshot{r.u16(), r.u32(), r.u32(), r.b()}
}

func (r *byteReader) readSnapshot() snapshot {
	var s snapshot
	for i := range s.Regs {
		s.Regs[i] = r.u32()
	}
	for i := range s.DR {
		s.DR[i] = r.u32()
	}
	for i := range s.Segs {
		s.Segs[i] = segSnapshot{r.u16(), r.u32(), r.u32(), r.u32(), r.b()}
	}
	s.GDT = r.tableSnapshot()
	s.IDT = r.tableSnapshot()
	s.LDT = r.tableSnapshot()
	s.TR = r.tableSnapshot()
	s.PC = r.u32()
	s.Flags = r.u16()
	s.EFlags = r.u32()
	s.CR0 = r.u32()
	s.CR2 = r.u32()
	s.CR3 = r.u32()
	s.CR4 = r.u32()
	s.CPL = r.b()
	s.IOPL = r.b()
	s.Use32 = r.b()
	s.Stack32 = r.boolean()
	s.Halted = r.boolean()
	s.Cycles = r.u64()
	s.TSC = r.u64()
	for i := range s.FPU.ST {
		s.FPU.ST[i] = r.f64()
	}
	for i := range s.FPU.StI64 {
		s.FPU.StI64[i] = r.i64()
	}
	for i := range s.FPU.Tag {
		s.FPU.Tag[i] = r.b()
	}
	s.FPU.Top = int32(r.u32())
	s.FPU.NPXC = r.u16()
	s.FPU.NPXS = r.u16()
	s.FPU.MMX = r.boolean()
	for i := range s.FPU.MM {
		s.FPU.MM[i] = r.u64()
	}
	return s
}
