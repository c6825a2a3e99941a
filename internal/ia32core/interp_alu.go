// interp_alu.go - MOV, arithmetic/logic, and basic register opcodes
//
// Grounded on cpu_x86.go / cpu_x86_ops.go's opADD_*/opMOV_* family: the
// same Eb/Gb, Gb/Eb, Ev/Gv, Gv/Ev, AL/Ib, eAX/Iv naming the teacher uses.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

// ALU group operation codes (ModR/M reg field for Grp1, and the /0../7
// immediate-group opcodes 00-3D).
const (
	aluADD = 0
	aluOR  = 1
	aluADC = 2
	aluSBB = 3
	aluAND = 4
	aluSUB = 5
	aluXOR = 6
	aluCMP = 7
)

func (c *CPU) alu8(op byte, a, b byte) byte {
	switch op {
	case aluADD:
		r := uint16(a) + uint16(b)
		c.recordArith(8, uint32(a), uint32(b), uint32(r), false)
		return byte(r)
	case aluOR:
		r := a | b
		c.recordLogic(8, uint32(r))
		return r
	case aluADC:
		c.eagerRebuild()
		cf := uint16(0)
		if c.CF() {
			cf = 1
		}
		r := uint16(a) + uint16(b) + cf
		c.recordArith(8, uint32(a), uint32(b)+uint32(cf), uint32(r), false)
		return byte(r)
	case aluSBB:
		c.eagerRebuild()
		cf := uint16(0)
		if c.CF() {
			cf = 1
		}
		r := uint16(a) - uint16(b) - cf
		c.recordArith(8, uint32(a), uint32(b)+uint32(cf), uint32(r), true)
		return byte(r)
	case aluAND:
		r := a & b
		c.recordLogic(8, uint32(r))
		return r
	case aluSUB:
		r := uint16(a) - uint16(b)
		c.recordArith(8, uint32(a), uint32(b), uint32(r), true)
		return byte(r)
	case aluXOR:
		r := a ^ b
		c.recordLogic(8, uint32(r))
		return r
	default: // CMP: flags only, result discarded
		r := uint16(a) - uint16(b)
		c.recordArith(8, uint32(a), uint32(b), uint32(r), true)
		return a
	}
}

func (c *CPU) alu16(op byte, a, b uint16) uint16 {
	switch op {
	case aluADD:
		r := uint32(a) + uint32(b)
		c.recordArith(16, uint32(a), uint32(b), r, false)
		return uint16(r)
	case aluOR:
		r := a | b
		c.recordLogic(16, uint32(r))
		return r
	case aluADC:
		c.eagerRebuild()
		cf := uint32(0)
		if c.CF() {
			cf = 1
		}
		r := uint32(a) + uint32(b) + cf
		c.recordArith(16, uint32(a), uint32(b)+cf, r, false)
		return uint16(r)
	case aluSBB:
		c.eagerRebuild()
		cf := uint32(0)
		if c.CF() {
			cf = 1
		}
		r := uint32(a) - uint32(b) - cf
		c.recordArith(16, uint32(a), uint32(b)+cf, r, true)
		return uint16(r)
	case aluAND:
		r := a & b
		c.recordLogic(16, uint32(r))
		return r
	case aluSUB:
		r := uint32(a) - uint32(b)
		c.recordArith(16, uint32(a), uint32(b), r, true)
		return uint16(r)
	case aluXOR:
		r := a ^ b
		c.recordLogic(16, uint32(r))
		return r
	default:
		r := uint32(a) - uint32(b)
		c.recordArith(16, uint32(a), uint32(b), r, true)
		return a
	}
}

func (c *CPU) alu32(op byte, a, b uint32) uint32 {
	switch op {
	case aluADD:
		r := uint64(a) + uint64(b)
		c.recordArith(32, a, b, uint32(r), false)
		return uint32(r)
	case aluOR:
		r := a | b
		c.recordLogic(32, r)
		return r
	case aluADC:
		c.eagerRebuild()
		cf := uint64(0)
		if c.CF() {
			cf = 1
		}
		r := uint64(a) + uint64(b) + cf
		c.recordArith(32, a, b+uint32(cf), uint32(r), false)
		return uint32(r)
	case aluSBB:
		c.eagerRebuild()
		cf := uint64(0)
		if c.CF() {
			cf = 1
		}
		r := uint64(a) - uint64(b) - cf
		c.recordArith(32, a, b+uint32(cf), uint32(r), true)
		return uint32(r)
	case aluAND:
		r := a & b
		c.recordLogic(32, r)
		return r
	case aluSUB:
		r := uint64(a) - uint64(b)
		c.recordArith(32, a, b, uint32(r), true)
		return uint32(r)
	case aluXOR:
		r := a ^ b
		c.recordLogic(32, r)
		return r
	default:
		r := uint64(a) - uint64(b)
		c.recordArith(32, a, b, uint32(r), true)
		return a
	}
}

func (c *CPU) aluV(op byte, a, b uint32) uint32 {
	if c.use32Op() {
		return c.alu32(op, a, b)
	}
	return uint32(c.alu16(op, uint16(a), uint16(b)))
}

// installALUOps wires the 00-3D Grp1 family (register/memory forms plus the
// accumulator-immediate shorthand) and the 80/81/83 immediate-group forms.
func installALUOps() {
	for _, base := range []byte{0x00, 0x08, 0x10, 0x18, 0x20, 0x28, 0x30, 0x38} {
		op := byte((base >> 3) & 7)

		registerOp(base+0, false, func(c *CPU) { // Eb,Gb
			c.decodeModRM()
			a := c.readEA8()
			if c.faulted() {
				return
			}
			b := c.getReg8(c.eaReg)
			c.writeEA8(c.alu8(op, a, b))
		})
		registerOp(base+1, false, func(c *CPU) { // Ev,Gv
			c.decodeModRM()
			a := c.readEAv()
			if c.faulted() {
				return
			}
			b := c.getRegV(c.eaReg)
			c.writeEAv(c.aluV(op, a, b))
		})
		registerOp(base+2, false, func(c *CPU) { // Gb,Eb
			c.decodeModRM()
			a := c.getReg8(c.eaReg)
			b := c.readEA8()
			if c.faulted() {
				return
			}
			c.setReg8(c.eaReg, c.alu8(op, a, b))
		})
		registerOp(base+3, false, func(c *CPU) { // Gv,Ev
			c.decodeModRM()
			a := c.getRegV(c.eaReg)
			b := c.readEAv()
			if c.faulted() {
				return
			}
			c.setRegV(c.eaReg, c.aluV(op, a, b))
		})
		registerOp(base+4, false, func(c *CPU) { // AL,Ib
			b := c.fetch8()
			if c.faulted() {
				return
			}
			c.setReg8(RegEAX, c.alu8(op, c.getReg8(RegEAX), b))
		})
		registerOp(base+5, false, func(c *CPU) { // eAX,Iv
			var b uint32
			if c.use32Op() {
				b = c.fetch32()
			} else {
				b = uint32(c.fetch16())
			}
			if c.faulted() {
				return
			}
			c.setRegV(RegEAX, c.aluV(op, c.getRegV(RegEAX), b))
		})
	}

	registerOp(0x80, false, func(c *CPU) { // Grp1 Eb,Ib
		c.decodeModRM()
		op := c.eaReg
		a := c.readEA8()
		b := c.fetch8()
		if c.faulted() {
			return
		}
		c.writeEA8(c.alu8(op, a, b))
	})
	registerOp(0x81, false, func(c *CPU) { // Grp1 Ev,Iv
		c.decodeModRM()
		op := c.eaReg
		a := c.readEAv()
		var b uint32
		if c.use32Op() {
			b = c.fetch32()
		} else {
			b = uint32(c.fetch16())
		}
		if c.faulted() {
			return
		}
		c.writeEAv(c.aluV(op, a, b))
	})
	registerOp(0x83, false, func(c *CPU) { // Grp1 Ev,Ib (sign-extended)
		c.decodeModRM()
		op := c.eaReg
		a := c.readEAv()
		b := c.fetch8()
		if c.faulted() {
			return
		}
		sb := uint32(int32(int8(b)))
		c.writeEAv(c.aluV(op, a, sb))
	})
}

// installDataOps wires MOV, LEA, XCHG, PUSH/POP, INC/DEC, CBW-family, NOP,
// TEST, XLAT, and the single-bit flag instructions.
func installDataOps() {
	registerOp(0x84, false, func(c *CPU) { // TEST Eb,Gb
		c.decodeModRM()
		a := c.readEA8()
		if c.faulted() {
			return
		}
		c.recordLogic(8, uint32(a&c.getReg8(c.eaReg)))
	})
	registerOp(0x85, false, func(c *CPU) { // TEST Ev,Gv
		c.decodeModRM()
		a := c.readEAv()
		if c.faulted() {
			return
		}
		b := c.getRegV(c.eaReg)
		if c.use32Op() {
			c.recordLogic(32, a&b)
		} else {
			c.recordLogic(16, a&b)
		}
	})
	registerOp(0xA8, false, func(c *CPU) { // TEST AL,Ib
		b := c.fetch8()
		if c.faulted() {
			return
		}
		c.recordLogic(8, uint32(c.getReg8(RegEAX)&b))
	})
	registerOp(0xA9, false, func(c *CPU) { // TEST eAX,Iv
		var b uint32
		if c.use32Op() {
			b = c.fetch32()
		} else {
			b = uint32(c.fetch16())
		}
		if c.faulted() {
			return
		}
		a := c.getRegV(RegEAX)
		if c.use32Op() {
			c.recordLogic(32, a&b)
		} else {
			c.recordLogic(16, a&b)
		}
	})

	registerOp(0x86, false, func(c *CPU) { // XCHG Eb,Gb
		c.decodeModRM()
		a := c.readEA8()
		if c.faulted() {
			return
		}
		b := c.getReg8(c.eaReg)
		c.writeEA8(b)
		c.setReg8(c.eaReg, a)
	})
	registerOp(0x87, false, func(c *CPU) { // XCHG Ev,Gv
		c.decodeModRM()
		a := c.readEAv()
		if c.faulted() {
			return
		}
		b := c.getRegV(c.eaReg)
		c.writeEAv(b)
		c.setRegV(c.eaReg, a)
	})
	for r := byte(0); r < 8; r++ {
		r := r
		registerOp(0x91+r, false, func(c *CPU) { // XCHG eAX,reg
			a := c.getRegV(RegEAX)
			b := c.getRegV(r)
			c.setRegV(RegEAX, b)
			c.setRegV(r, a)
		})
	}

	registerOp(0x88, false, func(c *CPU) { c.decodeModRM(); c.writeEA8(c.getReg8(c.eaReg)) })
	registerOp(0x89, false, func(c *CPU) { c.decodeModRM(); c.writeEAv(c.getRegV(c.eaReg)) })
	registerOp(0x8A, false, func(c *CPU) {
		c.decodeModRM()
		v := c.readEA8()
		if c.faulted() {
			return
		}
		c.setReg8(c.eaReg, v)
	})
	registerOp(0x8B, false, func(c *CPU) {
		c.decodeModRM()
		v := c.readEAv()
		if c.faulted() {
			return
		}
		c.setRegV(c.eaReg, v)
	})

	registerOp(0x8C, false, func(c *CPU) { // MOV Ew,Sreg
		c.decodeModRM()
		c.writeEA16(c.getSeg(int(c.eaReg & 7)))
	})
	registerOp(0x8E, false, func(c *CPU) { // MOV Sreg,Ew
		c.decodeModRM()
		v := c.readEA16()
		if c.faulted() {
			return
		}
		c.loadSegment(int(c.eaReg&7), v)
	})

	registerOp(0x8D, false, func(c *CPU) { // LEA Gv,M
		c.decodeModRM()
		c.setRegV(c.eaReg, c.eaAddr)
	})

	registerOp(0x8F, false, func(c *CPU) { // POP Ev
		c.decodeModRM()
		var v uint32
		if c.use32Op() {
			v = c.pop32()
		} else {
			v = uint32(c.pop16())
		}
		if c.faulted() {
			return
		}
		c.writeEAv(v)
	})

	registerOp(0x90, false, func(c *CPU) {}) // NOP (XCHG EAX,EAX)

	for r := byte(0); r < 8; r++ {
		r := r
		registerOp(0xB0+r, false, func(c *CPU) { // MOV reg8,Ib
			v := c.fetch8()
			if c.faulted() {
				return
			}
			c.setReg8(r, v)
		})
		registerOp(0xB8+r, false, func(c *CPU) { // MOV reg,Iv
			var v uint32
			if c.use32Op() {
				v = c.fetch32()
			} else {
				v = uint32(c.fetch16())
			}
			if c.faulted() {
				return
			}
			c.setRegV(r, v)
		})
	}

	registerOp(0xC6, false, func(c *CPU) { // MOV Eb,Ib
		c.decodeModRM()
		v := c.fetch8()
		if c.faulted() {
			return
		}
		c.writeEA8(v)
	})
	registerOp(0xC7, false, func(c *CPU) { // MOV Ev,Iv
		c.decodeModRM()
		var v uint32
		if c.use32Op() {
			v = c.fetch32()
		} else {
			v = uint32(c.fetch16())
		}
		if c.faulted() {
			return
		}
		c.writeEAv(v)
	})

	for r := byte(0); r < 8; r++ {
		r := r
		registerOp(0x50+r, false, func(c *CPU) { // PUSH reg
			if c.use32Op() {
				c.push32(c.getRegV(r))
			} else {
				c.push16(uint16(c.getRegV(r)))
			}
		})
		registerOp(0x58+r, false, func(c *CPU) { // POP reg
			if c.use32Op() {
				c.setRegV(r, c.pop32())
			} else {
				c.setRegV(r, uint32(c.pop16()))
			}
		})
	}

	registerOp(0x68, false, func(c *CPU) { // PUSH Iv
		var v uint32
		if c.use32Op() {
			v = c.fetch32()
		} else {
			v = uint32(c.fetch16())
		}
		if c.faulted() {
			return
		}
		if c.use32Op() {
			c.push32(v)
		} else {
			c.push16(uint16(v))
		}
	})
	registerOp(0x6A, false, func(c *CPU) { // PUSH Ib (sign-extended)
		b := c.fetch8()
		if c.faulted() {
			return
		}
		v := uint32(int32(int8(b)))
		if c.use32Op() {
			c.push32(v)
		} else {
			c.push16(uint16(v))
		}
	})

	for r := byte(0); r < 8; r++ {
		r := r
		registerOp(0x40+r, false, func(c *CPU) { c.incDecReg(r, false) }) // INC reg
		registerOp(0x48+r, false, func(c *CPU) { c.incDecReg(r, true) })  // DEC reg
	}

	registerOp(0x98, false, func(c *CPU) { // CBW/CWDE
		if c.use32Op() {
			c.SetEAX(uint32(int32(int16(uint16(c.EAX())))))
		} else {
			c.setReg16(RegEAX, uint16(int16(int8(c.getReg8(RegEAX)))))
		}
	})
	registerOp(0x99, false, func(c *CPU) { // CWD/CDQ
		if c.use32Op() {
			if int32(c.EAX()) < 0 {
				c.SetEDX(0xFFFFFFFF)
			} else {
				c.SetEDX(0)
			}
		} else {
			if int16(c.getReg16(RegEAX)) < 0 {
				c.setReg16(RegEDX, 0xFFFF)
			} else {
				c.setReg16(RegEDX, 0)
			}
		}
	})

	registerOp(0xF5, false, func(c *CPU) { c.rebuild(); c.setFlagBit(FlagCF, !c.CF()) }) // CMC
	registerOp(0xF8, false, func(c *CPU) { c.rebuild(); c.setFlagBit(FlagCF, false) })    // CLC
	registerOp(0xF9, false, func(c *CPU) { c.rebuild(); c.setFlagBit(FlagCF, true) })     // STC
	registerOp(0xFA, false, func(c *CPU) { c.setFlagBit(FlagIF, false) })                 // CLI
	registerOp(0xFB, false, func(c *CPU) { c.setFlagBit(FlagIF, true) })                  // STI
	registerOp(0xFC, false, func(c *CPU) { c.setFlagBit(FlagDF, false) })                 // CLD
	registerOp(0xFD, false, func(c *CPU) { c.setFlagBit(FlagDF, true) })                  // STD

	registerOp(0x9C, false, func(c *CPU) { // PUSHF/PUSHFD
		c.rebuild()
		if c.use32Op() {
			c.push32(c.eflags &^ (FlagVM | FlagRF))
		} else {
			c.push16(c.flags)
		}
	})
	registerOp(0x9D, false, func(c *CPU) { // POPF/POPFD
		if c.use32Op() {
			v := c.pop32()
			if c.faulted() {
				return
			}
			c.extract(uint16(v))
			c.eflags = (c.eflags &^ 0xFFFF) | (v &^ 0xFFFF) | uint32(c.flags)
		} else {
			v := c.pop16()
			if c.faulted() {
				return
			}
			c.extract(v)
		}
	})
	registerOp(0x9E, false, func(c *CPU) { // SAHF
		ah := c.getReg8(4) // AH
		c.extract((c.flags &^ 0xFF) | uint16(ah))
	})
	registerOp(0x9F, false, func(c *CPU) { // LAHF
		c.rebuild()
		c.setReg8(4, byte(c.flags))
	})

	registerOp(0xD7, false, func(c *CPU) { // XLAT
		addr := c.EBX() + uint32(c.getReg8(RegEAX))
		v := c.readB(c.segBase(c.xlatSeg()), addr)
		if c.faulted() {
			return
		}
		c.setReg8(RegEAX, v)
	})
}

func (c *CPU) xlatSeg() int {
	if c.prefixSeg >= 0 {
		return c.prefixSeg
	}
	return SegDS
}

func (c *CPU) incDecReg(r byte, dec bool) {
	before := c.getRegV(r)
	width := 16
	if c.use32Op() {
		width = 32
	}
	var after uint32
	if dec {
		after = before - 1
	} else {
		after = before + 1
	}
	after &= mask(width)
	c.setRegV(r, after)
	c.recordIncDec(width, before, after, dec)
}
