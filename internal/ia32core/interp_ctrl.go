// interp_ctrl.go - branches, calls, returns, loops, software interrupts
//
// Grounded on cpu_x86_ops.go's opJcc/opCALL/opRET family; IRET and the far
// CALL/JMP/RET forms are new, IRET and far RET following intdeliver.go's
// deliverProtectedMode privilege-transition logic in reverse. Far CALL/JMP
// load CS straight through loadSegment: call gates are not traversed, and
// no stack switch is made.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

// checkCond evaluates a Jcc/SETcc/LOOPcc tttn condition nibble (0-15).
func (c *CPU) checkCond(cc byte) bool {
	switch cc & 0xF {
	case 0x0:
		return c.OF()
	case 0x1:
		return !c.OF()
	case 0x2:
		return c.CF()
	case 0x3:
		return !c.CF()
	case 0x4:
		return c.ZF()
	case 0x5:
		return !c.ZF()
	case 0x6:
		return c.CF() || c.ZF()
	case 0x7:
		return !c.CF() && !c.ZF()
	case 0x8:
		return c.SF()
	case 0x9:
		return !c.SF()
	case 0xA:
		return c.PF()
	case 0xB:
		return !c.PF()
	case 0xC:
		return c.SF() != c.OF()
	case 0xD:
		return c.SF() == c.OF()
	case 0xE:
		return c.ZF() || c.SF() != c.OF()
	default:
		return !c.ZF() && c.SF() == c.OF()
	}
}

func (c *CPU) relJump(delta int32) {
	if c.use32Op() {
		c.pc = uint32(int32(c.pc) + delta)
	} else {
		c.pc = uint32(uint16(int16(uint16(c.pc)) + int16(delta)))
	}
}

func (c *CPU) addrReg() uint32 {
	if c.use32Addr() {
		return c.ECX()
	}
	return uint32(c.getReg16(RegECX))
}

func (c *CPU) setAddrReg(v uint32) {
	if c.use32Addr() {
		c.SetECX(v)
	} else {
		c.setReg16(RegECX, uint16(v))
	}
}

func installCtrlOps() {
	for cc := byte(0); cc < 16; cc++ {
		cc := cc
		registerOp(0x70+cc, true, func(c *CPU) { // Jcc rel8
			d := int8(c.fetch8())
			if c.faulted() {
				return
			}
			if c.checkCond(cc) {
				c.relJump(int32(d))
			}
		})
	}

	registerOp(0xEB, true, func(c *CPU) { // JMP rel8
		d := int8(c.fetch8())
		if c.faulted() {
			return
		}
		c.relJump(int32(d))
	})
	registerOp(0xE9, true, func(c *CPU) { // JMP rel16/32
		var d int32
		if c.use32Op() {
			d = int32(c.fetch32())
		} else {
			d = int32(int16(c.fetch16()))
		}
		if c.faulted() {
			return
		}
		c.relJump(d)
	})
	registerOp(0xEA, true, func(c *CPU) { // JMP ptr16:16/32 (direct far)
		var off uint32
		if c.use32Op() {
			off = c.fetch32()
		} else {
			off = uint32(c.fetch16())
		}
		sel := c.fetch16()
		if c.faulted() {
			return
		}
		c.loadSegment(SegCS, sel)
		if c.faulted() {
			return
		}
		c.pc = off
	})

	registerOp(0xE8, true, func(c *CPU) { // CALL rel16/32 (near)
		var d int32
		if c.use32Op() {
			d = int32(c.fetch32())
		} else {
			d = int32(int16(c.fetch16()))
		}
		if c.faulted() {
			return
		}
		if c.use32Op() {
			c.push32(c.pc)
		} else {
			c.push16(uint16(c.pc))
		}
		c.relJump(d)
	})
	registerOp(0x9A, true, func(c *CPU) { // CALL ptr16:16/32 (direct far)
		var off uint32
		if c.use32Op() {
			off = c.fetch32()
		} else {
			off = uint32(c.fetch16())
		}
		sel := c.fetch16()
		if c.faulted() {
			return
		}
		oldCS := c.getSeg(SegCS)
		oldPC := c.pc
		c.loadSegment(SegCS, sel)
		if c.faulted() {
			return
		}
		if c.use32Op() {
			c.push32(uint32(oldCS))
			if c.faulted() {
				return
			}
			c.push32(oldPC)
		} else {
			c.push16(oldCS)
			if c.faulted() {
				return
			}
			c.push16(uint16(oldPC))
		}
		c.pc = off
	})

	registerOp(0xC3, true, func(c *CPU) { // RET (near)
		if c.use32Op() {
			c.pc = c.pop32()
		} else {
			c.pc = uint32(c.pop16())
		}
	})
	registerOp(0xC2, true, func(c *CPU) { // RET Iw (near)
		imm := c.fetch16()
		if c.faulted() {
			return
		}
		var ret uint32
		if c.use32Op() {
			ret = c.pop32()
		} else {
			ret = uint32(c.pop16())
		}
		if c.faulted() {
			return
		}
		c.pc = ret
		c.adjustSP(uint32(imm))
	})
	registerOp(0xCB, true, func(c *CPU) { c.retFar(0) })   // RETF
	registerOp(0xCA, true, func(c *CPU) {                  // RETF Iw
		imm := c.fetch16()
		if c.faulted() {
			return
		}
		c.retFar(uint32(imm))
	})

	registerOp(0xE0, true, func(c *CPU) { c.loopOp(false, true) })  // LOOPNE
	registerOp(0xE1, true, func(c *CPU) { c.loopOp(true, true) })   // LOOPE
	registerOp(0xE2, true, func(c *CPU) { c.loopOp(false, false) }) // LOOP
	registerOp(0xE3, true, func(c *CPU) {                           // JCXZ/JECXZ
		d := int8(c.fetch8())
		if c.faulted() {
			return
		}
		if c.addrReg() == 0 {
			c.relJump(int32(d))
		}
	})

	registerOp(0xCC, true, func(c *CPU) { c.raiseFault(FaultBP, false, 0) }) // INT3
	registerOp(0xCD, true, func(c *CPU) {                                   // INT Ib
		vec := c.fetch8()
		if c.faulted() {
			return
		}
		c.rebuild()
		c.deliver(vec, false, 0, false)
	})
	registerOp(0xCE, true, func(c *CPU) { // INTO
		if c.OF() {
			c.raiseFault(FaultOF, false, 0)
		}
	})
	registerOp(0xCF, true, func(c *CPU) { c.iret() }) // IRET

	registerOp(0xF4, true, func(c *CPU) { c.Halted = true }) // HLT
}

func (c *CPU) adjustSP(delta uint32) {
	if c.stack32 {
		c.SetESP(c.ESP() + delta)
	} else {
		c.setReg16(RegESP, uint16(c.ESP()+delta))
	}
}

func (c *CPU) retFar(extraPop uint32) {
	var off uint32
	var sel uint16
	if c.use32Op() {
		off = c.pop32()
		if c.faulted() {
			return
		}
		sel = uint16(c.pop32())
	} else {
		off = uint32(c.pop16())
		if c.faulted() {
			return
		}
		sel = c.pop16()
	}
	if c.faulted() {
		return
	}
	targetCPL := byte(sel & 3)
	outer := c.inProtectedMode() && targetCPL > c.cpl
	c.loadSegment(SegCS, sel)
	if c.faulted() {
		return
	}
	c.pc = off
	if extraPop != 0 {
		c.adjustSP(extraPop)
	}
	if outer {
		var newSP uint32
		var newSS uint16
		if c.use32Op() {
			newSP = c.pop32()
			if c.faulted() {
				return
			}
			newSS = uint16(c.pop32())
		} else {
			newSP = uint32(c.pop16())
			if c.faulted() {
				return
			}
			newSS = c.pop16()
		}
		if c.faulted() {
			return
		}
		c.loadSegment(SegSS, newSS)
		c.SetESP(newSP)
	}
}

func (c *CPU) loopOp(condOnZF, useCond bool) {
	d := int8(c.fetch8())
	if c.faulted() {
		return
	}
	n := c.addrReg() - 1
	c.setAddrReg(n)
	take := n != 0
	if take && useCond {
		if condOnZF {
			take = c.ZF()
		} else {
			take = !c.ZF()
		}
	}
	if take {
		c.relJump(int32(d))
	}
}

// iret implements a same-privilege or outer-privilege return from
// interrupt/exception/task, real-mode and protected-mode forms. VM-mode and
// task-gate returns are not modeled (spec.md scope: no V86 monitor, no
// nested task chaining beyond the single-level switch taskSwitch already
// performs).
func (c *CPU) iret() {
	if !c.inProtectedMode() || c.inV86Mode() {
		ip := c.pop16()
		if c.faulted() {
			return
		}
		cs := c.pop16()
		if c.faulted() {
			return
		}
		fl := c.pop16()
		if c.faulted() {
			return
		}
		c.loadSegment(SegCS, cs)
		c.pc = uint32(ip)
		c.extract(fl)
		return
	}

	var eip, eflagsNew uint32
	var cs uint16
	if c.use32Op() {
		eip = c.pop32()
		if c.faulted() {
			return
		}
		cs = uint16(c.pop32())
		if c.faulted() {
			return
		}
		eflagsNew = c.pop32()
	} else {
		eip = uint32(c.pop16())
		if c.faulted() {
			return
		}
		cs = c.pop16()
		if c.faulted() {
			return
		}
		eflagsNew = uint32(c.pop16())
	}
	if c.faulted() {
		return
	}

	targetCPL := byte(cs & 3)
	outer := targetCPL > c.cpl
	c.loadSegment(SegCS, cs)
	if c.faulted() {
		return
	}
	c.pc = eip
	c.extract(uint16(eflagsNew))
	c.eflags = (c.eflags &^ 0xFFFF) | (eflagsNew &^ 0xFFFF) | uint32(c.flags)

	if outer {
		var esp uint32
		var ss uint16
		if c.use32Op() {
			esp = c.pop32()
			if c.faulted() {
				return
			}
			ss = uint16(c.pop32())
		} else {
			esp = uint32(c.pop16())
			if c.faulted() {
				return
			}
			ss = c.pop16()
		}
		if c.faulted() {
			return
		}
		c.loadSegment(SegSS, ss)
		c.SetESP(esp)
	}
}

// grp5Control implements the FF /2../5 CALL/JMP indirect forms (the
// register-mutating /0 and /1, and PUSH /6, live in interp_grp.go next to
// the rest of Grp5 since they share its ModR/M decode, not its control
// flow).
func (c *CPU) grp5Control() {
	c.lastTerminal = true
	switch c.eaReg {
	case 2: // CALL Ev (near indirect)
		target := c.readEAv()
		if c.faulted() {
			return
		}
		if c.use32Op() {
			c.push32(c.pc)
		} else {
			c.push16(uint16(c.pc))
		}
		c.pc = target
	case 3: // CALL Mp (far indirect)
		off, sel := c.readFarPtr()
		if c.faulted() {
			return
		}
		oldCS := c.getSeg(SegCS)
		oldPC := c.pc
		c.loadSegment(SegCS, sel)
		if c.faulted() {
			return
		}
		if c.use32Op() {
			c.push32(uint32(oldCS))
			if c.faulted() {
				return
			}
			c.push32(oldPC)
		} else {
			c.push16(oldCS)
			if c.faulted() {
				return
			}
			c.push16(uint16(oldPC))
		}
		c.pc = off
	case 4: // JMP Ev (near indirect)
		target := c.readEAv()
		if c.faulted() {
			return
		}
		c.pc = target
	case 5: // JMP Mp (far indirect)
		off, sel := c.readFarPtr()
		if c.faulted() {
			return
		}
		c.loadSegment(SegCS, sel)
		if c.faulted() {
			return
		}
		c.pc = off
	default:
		c.raiseFault(FaultUD, false, 0)
	}
}

// readFarPtr reads the {offset, selector} pair a far CALL/JMP's memory
// operand addresses; eaMod/eaAddr/eaSeg are already decoded by the Grp5
// dispatcher's decodeModRM call.
func (c *CPU) readFarPtr() (off uint32, sel uint16) {
	if c.eaMod == 3 {
		c.raiseFault(FaultUD, false, 0)
		return 0, 0
	}
	if !c.checkRead(c.eaSeg, c.eaAddr, c.eaAddr+5) {
		return 0, 0
	}
	base := c.segBase(c.eaSeg)
	if c.use32Op() {
		off = c.readL(base, c.eaAddr)
		if c.faulted() {
			return 0, 0
		}
		sel = uint16(c.readL(base, c.eaAddr+4))
	} else {
		off = uint32(c.readW(base, c.eaAddr))
		if c.faulted() {
			return 0, 0
		}
		sel = c.readW(base, c.eaAddr+2)
	}
	return off, sel
}
