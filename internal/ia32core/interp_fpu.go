// interp_fpu.go - x87 FPU and MMX opcode wiring (D8-DF, 0F MMX subset)
//
// Grounded on fpu_ie64.go's opcode-table wiring style and the operand
// shapes original_source/src/x87.c's x87_opFADD_*/x87_opFLD_* family
// documents; every handler starts with the CR0.EM/TS availability check
// spec.md §4.6 requires before touching FPU state.
//
// Not every x87 opcode original_source implements is ported: the BCD
// (FBLD/FBSTP) and transcendental (F2XM1/FYL2X/FPTAN/FPATAN/FSCALE/
// FRNDINT) instructions, and the FCMOVcc/FCOMI conditional-compare forms,
// are left unimplemented (spec.md does not test them and none of the
// six end-to-end scenarios reach them) - see DESIGN.md.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

import "math"

// fpuAvailable implements the CR0.EM/TS gate: EM set means "no FPU", TS set
// means "FPU state may belong to another task" - both raise #NM (invariant:
// every x87/MMX opcode must check this before mutating FPU state).
func (c *CPU) fpuAvailable() bool {
	if c.cr0&(CR0EM|CR0TS) != 0 {
		c.raiseFault(FaultNM, false, 0)
		return false
	}
	return true
}

func installFPUOps() {
	registerOp(0xD8, false, func(c *CPU) { c.fpuArithD8() })
	registerOp(0xD9, false, func(c *CPU) { c.fpuD9() })
	registerOp(0xDA, false, func(c *CPU) { c.fpuDA() })
	registerOp(0xDB, false, func(c *CPU) { c.fpuDB() })
	registerOp(0xDC, false, func(c *CPU) { c.fpuArithDC() })
	registerOp(0xDD, false, func(c *CPU) { c.fpuDD() })
	registerOp(0xDE, false, func(c *CPU) { c.fpuDE() })
	registerOp(0xDF, false, func(c *CPU) { c.fpuDF() })

	registerExt(0x77, false, func(c *CPU) { // EMMS
		if !c.fpuAvailable() {
			return
		}
		c.fpu.emms()
	})
	registerExt(0x6E, false, func(c *CPU) { // MOVD mm,Ed
		if !c.fpuAvailable() {
			return
		}
		c.decodeModRM()
		c.fpu.enterMMX()
		v := c.readEA32()
		if c.faulted() {
			return
		}
		c.fpu.mm[c.eaReg&7] = uint64(v)
	})
	registerExt(0x7E, false, func(c *CPU) { // MOVD Ed,mm
		if !c.fpuAvailable() {
			return
		}
		c.decodeModRM()
		c.fpu.enterMMX()
		c.writeEA32(uint32(c.fpu.mm[c.eaReg&7]))
	})
	registerExt(0xEF, false, func(c *CPU) { // PXOR mm,mm/m64
		if !c.fpuAvailable() {
			return
		}
		c.decodeModRM()
		c.fpu.enterMMX()
		var b uint64
		if c.eaMod == 3 {
			b = c.fpu.mm[c.eaRM&7]
		} else {
			b = c.readQAt()
			if c.faulted() {
				return
			}
		}
		c.fpu.mm[c.eaReg&7] ^= b
	})
}

// readQAt reads a 64-bit memory operand at the just-decoded EA (used by the
// MMX ops above, which have no dedicated readEA64).
func (c *CPU) readQAt() uint64 {
	if !c.checkRead(c.eaSeg, c.eaAddr, c.eaAddr+7) {
		return 0
	}
	return c.readQ(c.segBase(c.eaSeg), c.eaAddr)
}

func (c *CPU) writeQAt(v uint64) {
	if !c.checkWrite(c.eaSeg, c.eaAddr, c.eaAddr+7) {
		return
	}
	c.writeQ(c.segBase(c.eaSeg), c.eaAddr, v)
}

// fpuBinArith dispatches D8/DC's 8-way {ADD,MUL,COM,COMP,SUB,SUBR,DIV,DIVR}
// reg-field switch against an already-resolved right-hand operand.
func (c *CPU) fpuBinArith(sub byte, b float64) {
	a := c.fpu.stReg(0)
	switch sub {
	case 0:
		c.fpu.setStReg(0, c.fpu.fadd(a, b))
	case 1:
		c.fpu.setStReg(0, c.fpu.fmul(a, b))
	case 2:
		c.fpu.fcom(b)
	case 3:
		c.fpu.fcom(b)
	case 4:
		c.fpu.setStReg(0, c.fpu.fsub(a, b))
	case 5:
		c.fpu.setStReg(0, c.fpu.fsub(b, a))
	case 6:
		c.fpu.setStReg(0, c.fpu.fdiv(a, b))
	case 7:
		c.fpu.setStReg(0, c.fpu.fdiv(b, a))
	}
	c.fpu.invalidateIntShadow(0)
}

func (c *CPU) fpuArithD8() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	sub := c.eaReg
	if c.eaMod == 3 {
		c.fpuBinArith(sub, c.fpu.stReg(int(c.eaRM)))
		return
	}
	bits := c.readEA32()
	if c.faulted() {
		return
	}
	c.fpuBinArith(sub, float64(math.Float32frombits(bits)))
}

func (c *CPU) fpuArithDC() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	sub := c.eaReg
	if c.eaMod == 3 {
		// DC's register form operates ST(i) op= ST0, reversed vs D8.
		i := int(c.eaRM)
		a := c.fpu.stReg(i)
		b := c.fpu.stReg(0)
		switch sub {
		case 0:
			c.fpu.setStReg(i, c.fpu.fadd(a, b))
		case 1:
			c.fpu.setStReg(i, c.fpu.fmul(a, b))
		case 4:
			c.fpu.setStReg(i, c.fpu.fsub(a, b))
		case 5:
			c.fpu.setStReg(i, c.fpu.fsub(b, a))
		case 6:
			c.fpu.setStReg(i, c.fpu.fdiv(a, b))
		case 7:
			c.fpu.setStReg(i, c.fpu.fdiv(b, a))
		}
		c.fpu.invalidateIntShadow(i)
		return
	}
	bits := c.readEA64Bits()
	if c.faulted() {
		return
	}
	c.fpuBinArith(sub, math.Float64frombits(bits))
}

func (c *CPU) readEA64Bits() uint64 {
	if !c.checkRead(c.eaSeg, c.eaAddr, c.eaAddr+7) {
		return 0
	}
	return c.readQ(c.segBase(c.eaSeg), c.eaAddr)
}

func (c *CPU) fpuD9() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	if c.eaMod == 3 {
		switch c.eaReg {
		case 0: // FLD ST(i)
			v := c.fpu.stReg(int(c.eaRM))
			c.fpu.push(v)
		case 1: // FXCH ST(i)
			c.fpu.fxch(int(c.eaRM))
		case 2:
			// FNOP on rm==0; otherwise undefined in this subset.
		case 4:
			switch c.eaRM {
			case 0:
				c.fpu.fchs()
			case 1:
				c.fpu.fabsStack()
			case 4:
				c.fpu.fcom(0) // FTST
			}
		case 5:
			switch c.eaRM {
			case 0:
				c.fpu.push(1)
			case 1:
				c.fpu.push(math.Log2(10))
			case 2:
				c.fpu.push(math.Log2(math.E))
			case 3:
				c.fpu.push(math.Pi)
			case 4:
				c.fpu.push(math.Log10(2))
			case 5:
				c.fpu.push(math.Ln2)
			case 6:
				c.fpu.push(0)
			}
		}
		return
	}

	switch c.eaReg {
	case 0: // FLD m32real
		bits := c.readEA32()
		if c.faulted() {
			return
		}
		c.fpu.push(float64(math.Float32frombits(bits)))
	case 2: // FST m32real
		c.writeEA32(math.Float32bits(float32(c.fpu.stReg(0))))
	case 3: // FSTP m32real
		c.writeEA32(math.Float32bits(float32(c.fpu.stReg(0))))
		c.fpu.pop()
	case 5: // FLDCW m16
		v := c.readEA16()
		if c.faulted() {
			return
		}
		c.fpu.npxc = v
	case 7: // FSTCW/FNSTCW m16
		c.writeEA16(c.fpu.npxc)
	}
}

func (c *CPU) fpuDA() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	if c.eaMod == 3 {
		if c.eaReg == 5 && c.eaRM == 1 { // FUCOMPP
			c.fpu.fcom(c.fpu.stReg(1))
			c.fpu.pop()
			c.fpu.pop()
		}
		return
	}
	imm := c.readEA32()
	if c.faulted() {
		return
	}
	b := float64(int32(imm))
	c.fpuBinArith(c.eaReg, b)
}

func (c *CPU) fpuDB() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	if c.eaMod == 3 {
		return // FCMOVcc/FUCOMI/FCOMI/FCLEX/FINIT subset: not modeled
	}
	switch c.eaReg {
	case 0: // FILD m32int
		v := c.readEA32()
		if c.faulted() {
			return
		}
		c.fpu.push(float64(int32(v)))
	case 2: // FIST m32int
		c.writeEA32(uint32(int32(c.fpu.fistValue(c.fpu.stReg(0)))))
	case 3: // FISTP m32int
		c.writeEA32(uint32(int32(c.fpu.fistValue(c.fpu.stReg(0)))))
		c.fpu.pop()
	}
}

func (c *CPU) fpuDD() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	if c.eaMod == 3 {
		switch c.eaReg {
		case 0: // FFREE ST(i)
			c.fpu.tag[(c.fpu.top+int(c.eaRM))&7] = TagEmpty
		case 2: // FST ST(i)
			c.fpu.setStReg(int(c.eaRM), c.fpu.stReg(0))
		case 3: // FSTP ST(i)
			c.fpu.setStReg(int(c.eaRM), c.fpu.stReg(0))
			c.fpu.pop()
		case 4: // FUCOM
			c.fpu.fcom(c.fpu.stReg(int(c.eaRM)))
		case 5: // FUCOMP
			c.fpu.fcom(c.fpu.stReg(int(c.eaRM)))
			c.fpu.pop()
		}
		return
	}
	switch c.eaReg {
	case 0: // FLD m64real
		bits := c.readEA64Bits()
		if c.faulted() {
			return
		}
		c.fpu.push(math.Float64frombits(bits))
	case 2: // FST m64real
		c.writeQAt(math.Float64bits(c.fpu.stReg(0)))
	case 3: // FSTP m64real
		c.writeQAt(math.Float64bits(c.fpu.stReg(0)))
		c.fpu.pop()
	case 4: // FRSTOR - non-standard compact layout, see fsaveLayout doc comment
		c.fpuRestoreMem()
	case 6: // FSAVE
		c.fpuSaveMem()
		c.fpu.reset()
	case 7: // FNSTSW m16
		c.writeEA16(c.fpu.npxs | uint16(c.fpu.top&7)<<11)
	}
}

// fpuSaveMem/fpuRestoreMem serialize fsaveLayout at the decoded EA. The
// image is {cw,sw,tw uint16; 8 x float64 ST regs} - 70 bytes, not the
// architectural 94/108-byte image with true 80-bit slots (see fpu.go's
// fsaveLayout doc comment).
func (c *CPU) fpuSaveMem() {
	img := c.fpu.save()
	base := c.segBase(c.eaSeg)
	c.writeW(base, c.eaAddr, img.ControlWord)
	c.writeW(base, c.eaAddr+2, img.StatusWord)
	c.writeW(base, c.eaAddr+4, img.TagWord)
	for i := 0; i < 8; i++ {
		c.writeQ(base, c.eaAddr+6+uint32(i*8), math.Float64bits(img.Regs[i]))
	}
}

func (c *CPU) fpuRestoreMem() {
	base := c.segBase(c.eaSeg)
	var img fsaveLayout
	img.ControlWord = c.readW(base, c.eaAddr)
	img.StatusWord = c.readW(base, c.eaAddr+2)
	img.TagWord = c.readW(base, c.eaAddr+4)
	for i := 0; i < 8; i++ {
		img.Regs[i] = math.Float64frombits(c.readQ(base, c.eaAddr+6+uint32(i*8)))
	}
	if c.faulted() {
		return
	}
	c.fpu.restore(img)
}

func (c *CPU) fpuDE() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	if c.eaMod == 3 {
		if c.eaReg == 3 && c.eaRM == 1 { // FCOMPP
			c.fpu.fcom(c.fpu.stReg(1))
			c.fpu.pop()
			c.fpu.pop()
			return
		}
		i := int(c.eaRM)
		a := c.fpu.stReg(i)
		b := c.fpu.stReg(0)
		switch c.eaReg {
		case 0:
			c.fpu.setStReg(i, c.fpu.fadd(a, b))
		case 1:
			c.fpu.setStReg(i, c.fpu.fmul(a, b))
		case 4:
			c.fpu.setStReg(i, c.fpu.fsub(a, b))
		case 5:
			c.fpu.setStReg(i, c.fpu.fsub(b, a))
		case 6:
			c.fpu.setStReg(i, c.fpu.fdiv(a, b))
		case 7:
			c.fpu.setStReg(i, c.fpu.fdiv(b, a))
		}
		c.fpu.invalidateIntShadow(i)
		c.fpu.pop()
		return
	}
	v := c.readEA16()
	if c.faulted() {
		return
	}
	c.fpuBinArith(c.eaReg, float64(int16(v)))
}

func (c *CPU) fpuDF() {
	if !c.fpuAvailable() {
		return
	}
	c.decodeModRM()
	if c.eaMod == 3 {
		if c.eaReg == 4 && c.eaRM == 0 { // FNSTSW AX
			c.setReg16(RegEAX, c.fpu.npxs|uint16(c.fpu.top&7)<<11)
		}
		return
	}
	switch c.eaReg {
	case 0: // FILD m16int
		v := c.readEA16()
		if c.faulted() {
			return
		}
		c.fpu.push(float64(int16(v)))
	case 2: // FIST m16int
		c.writeEA16(uint16(int16(c.fpu.fistValue(c.fpu.stReg(0)))))
	case 3: // FISTP m16int
		c.writeEA16(uint16(int16(c.fpu.fistValue(c.fpu.stReg(0)))))
		c.fpu.pop()
	case 5: // FILD m64int (FILDQ)
		bits := c.readEA64Bits()
		if c.faulted() {
			return
		}
		c.fpu.pushInt(int64(bits))
	case 7: // FISTP m64int (FISTPQ)
		v := c.fpu.fistValue(c.fpu.stReg(0))
		c.writeQAt(uint64(v))
		c.fpu.pop()
	}
}
