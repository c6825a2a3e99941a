// interp_string.go - MOVS/CMPS/SCAS/LODS/STOS/INS/OUTS and the REP engine
//
// Grounded on cpu_x86_ops.go's opMOVSB/opSTOSB/opREP family, rebuilt around
// a bounded per-Step() iteration count (spec.md §4.5's REP budget) instead
// of looping to completion: once the budget is spent with ECX still
// nonzero, the instruction un-consumes its prefix/opcode bytes by resetting
// pc to oldpc, so the next Step() call simply re-dispatches the same REP
// instruction and picks up where it left off. This is what makes a single
// Step() call bounded regardless of ECX, which both the interpreter's
// fairness (spec.md §5 - one guest instruction must not block the host
// indefinitely) and the planned JIT block-length cap need.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

func (c *CPU) repBudget() int {
	if c.dynarecMode {
		return c.cfg.repBudgetJIT()
	}
	return c.cfg.repBudgetInterp()
}

func (c *CPU) strSrcSeg() int {
	if c.prefixSeg >= 0 {
		return c.prefixSeg
	}
	return SegDS
}

func (c *CPU) strStep() uint32 {
	if c.DF() {
		return ^uint32(0) // -1
	}
	return 1
}

// repeat runs body up to the host budget or until ECX (CX) reaches zero,
// decrementing the count register itself each iteration. When checkZF is
// set (CMPS/SCAS only), REPE (prefixRep==1) stops as soon as ZF clears and
// REPNE (prefixRep==2) stops as soon as ZF sets; MOVS/STOS/LODS/INS/OUTS
// pass checkZF=false since their REP ignores ZF entirely. It leaves pc
// rolled back to re-enter the same instruction when the budget runs out
// with work still pending.
func (c *CPU) repeat(checkZF bool, body func()) {
	if c.prefixRep == 0 {
		body()
		return
	}
	budget := c.repBudget()
	for i := 0; i < budget; i++ {
		if c.addrReg() == 0 {
			return
		}
		body()
		if c.faulted() {
			return
		}
		c.setAddrReg(c.addrReg() - 1)
		if checkZF && ((c.prefixRep == 1 && !c.ZF()) || (c.prefixRep == 2 && c.ZF())) {
			return
		}
		if c.addrReg() == 0 {
			return
		}
	}
	if c.addrReg() != 0 {
		c.pc = c.oldpc // budget exhausted, re-enter next Step()
	}
}

// Every string opcode is registered block-terminal: with a REP prefix its
// iteration count is unknown ahead of time and it may roll pc back to
// re-enter itself, which the JIT's straight-line block cache (jit.go) must
// never trace through.
func installStringOps() {
	registerOp(0xA4, true, func(c *CPU) { // MOVSB
		c.repeat(false, func() { c.movsOnce(1) })
	})
	registerOp(0xA5, true, func(c *CPU) { // MOVSW/D
		if c.use32Op() {
			c.repeat(false, func() { c.movsOnce(4) })
		} else {
			c.repeat(false, func() { c.movsOnce(2) })
		}
	})
	registerOp(0xAA, true, func(c *CPU) { c.repeat(false, func() { c.stosOnce(1) }) }) // STOSB
	registerOp(0xAB, true, func(c *CPU) {
		if c.use32Op() {
			c.repeat(false, func() { c.stosOnce(4) })
		} else {
			c.repeat(false, func() { c.stosOnce(2) })
		}
	})
	registerOp(0xAC, true, func(c *CPU) { c.repeat(false, func() { c.lodsOnce(1) }) }) // LODSB
	registerOp(0xAD, true, func(c *CPU) {
		if c.use32Op() {
			c.repeat(false, func() { c.lodsOnce(4) })
		} else {
			c.repeat(false, func() { c.lodsOnce(2) })
		}
	})
	registerOp(0xA6, true, func(c *CPU) { // CMPSB
		c.repeat(true, func() { c.cmpsOnce(1) })
	})
	registerOp(0xA7, true, func(c *CPU) {
		if c.use32Op() {
			c.repeat(true, func() { c.cmpsOnce(4) })
		} else {
			c.repeat(true, func() { c.cmpsOnce(2) })
		}
	})
	registerOp(0xAE, true, func(c *CPU) { // SCASB
		c.repeat(true, func() { c.scasOnce(1) })
	})
	registerOp(0xAF, true, func(c *CPU) {
		if c.use32Op() {
			c.repeat(true, func() { c.scasOnce(4) })
		} else {
			c.repeat(true, func() { c.scasOnce(2) })
		}
	})

	registerOp(0x6C, true, func(c *CPU) { c.repeat(false, func() { c.insOnce(1) }) }) // INSB
	registerOp(0x6D, true, func(c *CPU) {
		if c.use32Op() {
			c.repeat(false, func() { c.insOnce(4) })
		} else {
			c.repeat(false, func() { c.insOnce(2) })
		}
	})
	registerOp(0x6E, true, func(c *CPU) { c.repeat(false, func() { c.outsOnce(1) }) }) // OUTSB
	registerOp(0x6F, true, func(c *CPU) {
		if c.use32Op() {
			c.repeat(false, func() { c.outsOnce(4) })
		} else {
			c.repeat(false, func() { c.outsOnce(2) })
		}
	})
}

func (c *CPU) movsOnce(size uint32) {
	srcBase := c.segBase(c.strSrcSeg())
	dstBase := c.segBase(SegES)
	si, di := c.ESI(), c.EDI()
	switch size {
	case 1:
		v := c.readB(srcBase, si)
		if c.faulted() {
			return
		}
		c.writeB(dstBase, di, v)
	case 2:
		v := c.readW(srcBase, si)
		if c.faulted() {
			return
		}
		c.writeW(dstBase, di, v)
	default:
		v := c.readL(srcBase, si)
		if c.faulted() {
			return
		}
		c.writeL(dstBase, di, v)
	}
	if c.faulted() {
		return
	}
	step := c.strStep() * size
	c.SetESI(si + step)
	c.SetEDI(di + step)
}

func (c *CPU) stosOnce(size uint32) {
	dstBase := c.segBase(SegES)
	di := c.EDI()
	switch size {
	case 1:
		c.writeB(dstBase, di, c.getReg8(RegEAX))
	case 2:
		c.writeW(dstBase, di, c.getReg16(RegEAX))
	default:
		c.writeL(dstBase, di, c.EAX())
	}
	if c.faulted() {
		return
	}
	c.SetEDI(di + c.strStep()*size)
}

func (c *CPU) lodsOnce(size uint32) {
	srcBase := c.segBase(c.strSrcSeg())
	si := c.ESI()
	switch size {
	case 1:
		c.setReg8(RegEAX, c.readB(srcBase, si))
	case 2:
		c.setReg16(RegEAX, c.readW(srcBase, si))
	default:
		c.SetEAX(c.readL(srcBase, si))
	}
	if c.faulted() {
		return
	}
	c.SetESI(si + c.strStep()*size)
}

func (c *CPU) cmpsOnce(size uint32) {
	srcBase := c.segBase(c.strSrcSeg())
	dstBase := c.segBase(SegES)
	si, di := c.ESI(), c.EDI()
	switch size {
	case 1:
		a := c.readB(srcBase, si)
		if c.faulted() {
			return
		}
		b := c.readB(dstBase, di)
		if c.faulted() {
			return
		}
		r := uint16(a) - uint16(b)
		c.recordArith(8, uint32(a), uint32(b), uint32(r), true)
	case 2:
		a := c.readW(srcBase, si)
		if c.faulted() {
			return
		}
		b := c.readW(dstBase, di)
		if c.faulted() {
			return
		}
		r := uint32(a) - uint32(b)
		c.recordArith(16, uint32(a), uint32(b), r, true)
	default:
		a := c.readL(srcBase, si)
		if c.faulted() {
			return
		}
		b := c.readL(dstBase, di)
		if c.faulted() {
			return
		}
		r := uint64(a) - uint64(b)
		c.recordArith(32, a, b, uint32(r), true)
	}
	step := c.strStep() * size
	c.SetESI(si + step)
	c.SetEDI(di + step)
}

func (c *CPU) scasOnce(size uint32) {
	dstBase := c.segBase(SegES)
	di := c.EDI()
	switch size {
	case 1:
		a := c.getReg8(RegEAX)
		b := c.readB(dstBase, di)
		if c.faulted() {
			return
		}
		r := uint16(a) - uint16(b)
		c.recordArith(8, uint32(a), uint32(b), uint32(r), true)
	case 2:
		a := c.getReg16(RegEAX)
		b := c.readW(dstBase, di)
		if c.faulted() {
			return
		}
		r := uint32(a) - uint32(b)
		c.recordArith(16, uint32(a), uint32(b), r, true)
	default:
		a := c.EAX()
		b := c.readL(dstBase, di)
		if c.faulted() {
			return
		}
		r := uint64(a) - uint64(b)
		c.recordArith(32, a, b, uint32(r), true)
	}
	c.SetEDI(di + c.strStep()*size)
}

// checkIOPerm implements the CPL>IOPL / V86 I/O permission-bitmap gate
// spec.md §4.5 names for IN/OUT/INS/OUTS: outside real mode, a CPL or V86
// context less privileged than IOPL must consult the TSS I/O bitmap before
// the access is allowed.
func (c *CPU) checkIOPerm(port uint16) bool {
	if c.cr0&CR0PE == 0 {
		return true
	}
	if !c.inV86Mode() && c.cpl <= c.iopl {
		return true
	}
	if c.tr.limit < 0x67 {
		c.raiseGP(0)
		return false
	}
	mapBaseAddr := c.tr.base + 0x66
	mapBase := c.readW(0, mapBaseAddr)
	if c.faulted() {
		return false
	}
	byteOff := c.tr.base + uint32(mapBase) + uint32(port>>3)
	bits := c.readB(0, byteOff)
	if c.faulted() {
		return false
	}
	if bits&(1<<(port&7)) != 0 {
		c.raiseGP(0)
		return false
	}
	return true
}

func (c *CPU) insOnce(size uint32) {
	port := c.getReg16(RegEDX)
	if !c.checkIOPerm(port) {
		return
	}
	dstBase := c.segBase(SegES)
	di := c.EDI()
	switch size {
	case 1:
		c.writeB(dstBase, di, c.bus.InB(port))
	case 2:
		c.writeW(dstBase, di, c.bus.InW(port))
	default:
		c.writeL(dstBase, di, c.bus.InL(port))
	}
	if c.faulted() {
		return
	}
	c.SetEDI(di + c.strStep()*size)
}

func (c *CPU) outsOnce(size uint32) {
	port := c.getReg16(RegEDX)
	if !c.checkIOPerm(port) {
		return
	}
	srcBase := c.segBase(c.strSrcSeg())
	si := c.ESI()
	switch size {
	case 1:
		v := c.readB(srcBase, si)
		if c.faulted() {
			return
		}
		c.bus.OutB(port, v)
	case 2:
		v := c.readW(srcBase, si)
		if c.faulted() {
			return
		}
		c.bus.OutW(port, v)
	default:
		v := c.readL(srcBase, si)
		if c.faulted() {
			return
		}
		c.bus.OutL(port, v)
	}
	c.SetESI(si + c.strStep()*size)
}
