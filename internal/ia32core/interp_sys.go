// interp_sys.go - two-byte (0F-prefixed) opcodes: descriptor-table loads,
// CRn/DRn access, bit tests, and the Jcc/SETcc/MOVZX/MOVSX extended forms.
//
// Grounded on cpu_x86_ops.go's opLGDT/opMOV_CRx style for the privileged
// loads; BT/BSF and the 0F Jcc/SETcc table are new, following the same
// ModR/M-group dispatch shape as Grp1-5 in interp_grp.go.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

// installSysOps wires the 0x0F escape and every two-byte opcode.
func installSysOps() {
	registerOp(0x0F, false, func(c *CPU) {
		op2 := c.fetch8()
		if c.faulted() {
			return
		}
		c.lastTerminal = blockTerminalExt[op2]
		if handler := extOps[int(op2)|int(c.use32)<<8]; handler != nil {
			handler(c)
		} else {
			c.raiseFault(FaultUD, false, 0)
		}
	})

	registerExt(0x00, false, func(c *CPU) { c.grp6() })
	registerExt(0x01, false, func(c *CPU) { c.grp7() })
	registerExt(0x06, false, func(c *CPU) { c.cr0 &^= CR0TS }) // CLTS

	registerExt(0x20, false, func(c *CPU) { // MOV Rd,CRn
		c.decodeModRM()
		c.setReg32(c.eaRM, c.readCR(c.eaReg))
	})
	registerExt(0x22, false, func(c *CPU) { // MOV CRn,Rd
		c.decodeModRM()
		c.writeCR(c.eaReg, c.getReg32(c.eaRM))
	})
	registerExt(0x21, false, func(c *CPU) { // MOV Rd,DRn
		c.decodeModRM()
		c.setReg32(c.eaRM, c.dr[c.eaReg&7])
	})
	registerExt(0x23, false, func(c *CPU) { // MOV DRn,Rd
		c.decodeModRM()
		c.dr[c.eaReg&7] = c.getReg32(c.eaRM)
	})

	registerExt(0xA3, false, func(c *CPU) { c.btOp(0) }) // BT Ev,Gv
	registerExt(0xAB, false, func(c *CPU) { c.btOp(1) }) // BTS
	registerExt(0xB3, false, func(c *CPU) { c.btOp(2) }) // BTR
	registerExt(0xBB, false, func(c *CPU) { c.btOp(3) }) // BTC
	registerExt(0xBA, false, func(c *CPU) { // Grp8: BT/BTS/BTR/BTC Ev,Ib
		c.decodeModRM()
		sub := c.eaReg
		imm := c.fetch8()
		if c.faulted() {
			return
		}
		w := 16
		if c.use32Op() {
			w = 32
		}
		a := c.readEAv()
		if c.faulted() {
			return
		}
		bit := uint32(imm) & uint32(w-1)
		cf := a&(1<<bit) != 0
		c.eagerRebuild()
		c.setFlagBit(FlagCF, cf)
		switch sub {
		case 5:
			c.writeEAv(a | (1 << bit))
		case 6:
			c.writeEAv(a &^ (1 << bit))
		case 7:
			c.writeEAv(a ^ (1 << bit))
		}
	})

	registerExt(0xBC, false, func(c *CPU) { c.bsOp(true) })  // BSF
	registerExt(0xBD, false, func(c *CPU) { c.bsOp(false) }) // BSR

	for cc := byte(0); cc < 16; cc++ {
		cc := cc
		registerExt(0x80+cc, true, func(c *CPU) { // Jcc rel16/32
			var d int32
			if c.use32Op() {
				d = int32(c.fetch32())
			} else {
				d = int32(int16(c.fetch16()))
			}
			if c.faulted() {
				return
			}
			if c.checkCond(cc) {
				c.relJump(d)
			}
		})
		registerExt(0x90+cc, false, func(c *CPU) { // SETcc Eb
			c.decodeModRM()
			v := byte(0)
			if c.checkCond(cc) {
				v = 1
			}
			c.writeEA8(v)
		})
	}

	registerExt(0xB6, false, func(c *CPU) { // MOVZX Gv,Eb
		c.decodeModRM()
		v := c.readEA8()
		if c.faulted() {
			return
		}
		c.setRegV(c.eaReg, uint32(v))
	})
	registerExt(0xB7, false, func(c *CPU) { // MOVZX Gv,Ew
		c.decodeModRM()
		v := c.readEA16()
		if c.faulted() {
			return
		}
		c.setRegV(c.eaReg, uint32(v))
	})
	registerExt(0xBE, false, func(c *CPU) { // MOVSX Gv,Eb
		c.decodeModRM()
		v := c.readEA8()
		if c.faulted() {
			return
		}
		c.setRegV(c.eaReg, uint32(int32(int8(v))))
	})
	registerExt(0xBF, false, func(c *CPU) { // MOVSX Gv,Ew
		c.decodeModRM()
		v := c.readEA16()
		if c.faulted() {
			return
		}
		c.setRegV(c.eaReg, uint32(int32(int16(v))))
	})
}

func (c *CPU) readCR(n byte) uint32 {
	switch n {
	case 0:
		return c.cr0
	case 2:
		return c.cr2
	case 3:
		return c.cr3
	case 4:
		return c.cr4
	default:
		return 0
	}
}

func (c *CPU) writeCR(n byte, v uint32) {
	switch n {
	case 0:
		if (c.cr0^v)&(CR0PG|CR0CD) != 0 {
			c.invalidateJIT()
		}
		c.cr0 = v
		c.mx.invalidateAll()
	case 2:
		c.cr2 = v
	case 3:
		c.cr3 = v
		c.mx.invalidateAll()
	case 4:
		c.cr4 = v
	}
}

// grp6 implements 0F 00: SLDT/STR/LLDT/LTR/VERR/VERW.
func (c *CPU) grp6() {
	c.decodeModRM()
	switch c.eaReg {
	case 0: // SLDT
		c.writeEA16(c.ldt.selector)
	case 1: // STR
		c.writeEA16(c.tr.selector)
	case 2: // LLDT
		sel := c.readEA16()
		if c.faulted() {
			return
		}
		if sel&0xFFFC == 0 {
			c.ldt = tableReg{}
			return
		}
		d, ok := c.fetchDescriptor(sel)
		if !ok {
			c.raiseGP(uint32(sel) & 0xFFF8)
			return
		}
		c.ldt = tableReg{selector: sel, base: d.base, limit: d.limit, access: d.access}
	case 3: // LTR
		sel := c.readEA16()
		if c.faulted() {
			return
		}
		d, ok := c.fetchDescriptor(sel)
		if !ok {
			c.raiseGP(uint32(sel) & 0xFFF8)
			return
		}
		c.tr = tableReg{selector: sel, base: d.base, limit: d.limit, access: d.access}
	case 4, 5: // VERR/VERW: not modeled beyond a successful no-op
	}
}

// grp7 implements 0F 01: SGDT/SIDT/LGDT/LIDT/SMSW/LMSW/INVLPG.
func (c *CPU) grp7() {
	c.decodeModRM()
	switch c.eaReg {
	case 0: // SGDT
		c.writeL(c.segBase(c.eaSeg), c.eaAddr+2, c.gdt.base)
		c.writeW(c.segBase(c.eaSeg), c.eaAddr, uint16(c.gdt.limit))
	case 1: // SIDT
		c.writeL(c.segBase(c.eaSeg), c.eaAddr+2, c.idt.base)
		c.writeW(c.segBase(c.eaSeg), c.eaAddr, uint16(c.idt.limit))
	case 2: // LGDT
		limit := c.readW(c.segBase(c.eaSeg), c.eaAddr)
		if c.faulted() {
			return
		}
		base := c.readL(c.segBase(c.eaSeg), c.eaAddr+2)
		if c.faulted() {
			return
		}
		c.gdt = tableReg{base: base, limit: uint32(limit)}
	case 3: // LIDT
		limit := c.readW(c.segBase(c.eaSeg), c.eaAddr)
		if c.faulted() {
			return
		}
		base := c.readL(c.segBase(c.eaSeg), c.eaAddr+2)
		if c.faulted() {
			return
		}
		c.idt = tableReg{base: base, limit: uint32(limit)}
	case 4: // SMSW
		c.writeEA16(uint16(c.cr0))
	case 6: // LMSW
		v := c.readEA16()
		if c.faulted() {
			return
		}
		c.cr0 = (c.cr0 &^ 0xF) | uint32(v&0xF)
	case 7: // INVLPG
		c.mx.invalidatePage(c.eaAddr)
	}
}

// btOp implements the BT/BTS/BTR/BTC Ev,Gv register-bit-index forms.
// kind: 0=BT, 1=BTS, 2=BTR, 3=BTC.
func (c *CPU) btOp(kind byte) {
	c.decodeModRM()
	w := 16
	if c.use32Op() {
		w = 32
	}
	bitIdx := c.getRegV(c.eaReg)
	if c.eaMod != 3 {
		// memory form: the byte actually tested is offset by bitIdx/8
		byteOff := int32(bitIdx) / 8
		c.eaAddr = uint32(int32(c.eaAddr) + byteOff)
		c.resolveFastPointers()
	}
	bit := bitIdx & uint32(w-1)
	a := c.readEAv()
	if c.faulted() {
		return
	}
	cf := a&(1<<bit) != 0
	c.eagerRebuild()
	c.setFlagBit(FlagCF, cf)
	switch kind {
	case 1:
		c.writeEAv(a | (1 << bit))
	case 2:
		c.writeEAv(a &^ (1 << bit))
	case 3:
		c.writeEAv(a ^ (1 << bit))
	}
}

func (c *CPU) bsOp(forward bool) {
	c.decodeModRM()
	a := c.readEAv()
	if c.faulted() {
		return
	}
	w := 16
	if c.use32Op() {
		w = 32
	}
	a &= mask(w)
	if a == 0 {
		c.setFlagBit(FlagZF, true)
		return
	}
	c.setFlagBit(FlagZF, false)
	var idx uint32
	if forward {
		for idx = 0; a&(1<<idx) == 0; idx++ {
		}
	} else {
		idx = uint32(w - 1)
		for a&(1<<idx) == 0 {
			idx--
		}
	}
	c.setRegV(c.eaReg, idx)
}
