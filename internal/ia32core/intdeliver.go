// intdeliver.go - interrupt and exception delivery
//
// Grounded on cpu_x86.go's handleInterrupt, extended to protected-mode gate
// traversal and task switch per spec.md §4.7, using original_source/src/
// 386.c's pmodeint/taskswitch386 to resolve the gate-traversal detail the
// distilled spec only summarizes.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

// vectorFor maps an internal Fault to its architectural interrupt vector.
func vectorFor(f Fault) byte {
	switch f {
	case FaultDE:
		return 0
	case FaultDB:
		return 1
	case FaultNMI:
		return 2
	case FaultBP:
		return 3
	case FaultOF:
		return 4
	case FaultBR:
		return 5
	case FaultUD:
		return 6
	case FaultNM:
		return 7
	case FaultDF:
		return 8
	case FaultTS:
		return 10
	case FaultNP:
		return 11
	case FaultSS:
		return 12
	case FaultGP:
		return 13
	case FaultPF:
		return 14
	case FaultMF:
		return 16
	default:
		return 0
	}
}

// deliverPending runs IntDeliver for the fault recorded on c.abrt at
// instruction end (spec.md §4.7's "Fault restart"): clear abrt, restore
// oldpc/oldcs so the handler sees a restartable RIP, and deliver. A second
// fault while delivering the first escalates to a double fault; a fault
// while delivering the double fault halts the core and sets tripleFault
// (the core does not reset itself), which the host observes as the
// FatalError returned by Exec/ExecDynarec rather than a panic.
func (c *CPU) deliverPending() {
	if c.abrt == FaultNone {
		return
	}
	f := c.abrt
	hasErr := c.abrtErrC
	errCode := c.abrtErr
	c.abrt = FaultNone
	c.pc = c.oldpc
	if !c.inProtectedMode() || c.inV86Mode() {
		c.segs[SegCS].selector = c.oldcs
		c.segs[SegCS].base = uint32(c.oldcs) << 4
	}

	c.deliver(vectorFor(f), hasErr, errCode, false)

	if c.abrt != FaultNone {
		// A second fault occurred while delivering the first: escalate.
		second := c.abrt
		c.abrt = FaultNone
		c.pc = c.oldpc
		c.deliver(8, true, 0, true) // #DF
		if c.abrt != FaultNone {
			c.abrt = FaultNone
			c.Halted = true
			c.tripleFault = true
			_ = second
		}
	}
}

// deliverExternal is the entry point for PIC/NMI/software-INT/single-step,
// called from the dispatch loop after a successful opcode when no fault is
// pending (spec.md §4.5's "else if trap/nmi/pic_pending" chain).
func (c *CPU) deliverExternal(vector byte, isNMI, isSoftware bool) {
	c.deliver(vector, false, 0, false)
	_ = isNMI
	_ = isSoftware
}

// deliver performs the actual CS:IP/flags rewrite. isDoubleFault is not
// read here: nested-fault escalation is handled by deliverPending, which
// turns a fault during #DF delivery into a triple fault instead of
// delivering again.
func (c *CPU) deliver(vector byte, hasErrCode bool, errCode uint32, isDoubleFault bool) {
	c.rebuild() // flags must be architecturally visible before PUSHF-equivalent push

	// Base interrupt-delivery cost applies to every vector; real/V86-mode
	// delivery pays an additional fixed surcharge on top, matching
	// 386_dynarec.c's x86_int_sw charging timing_int unconditionally and
	// timing_int_rm only down the non-protected branch.
	c.Cycles += uint64(c.cfg.TimingInt)

	if !c.inProtectedMode() || c.inV86Mode() {
		c.Cycles += uint64(c.cfg.TimingIntRM)
		c.deliverRealMode(vector)
		return
	}
	c.deliverProtectedMode(vector, hasErrCode, errCode)
}

func (c *CPU) deliverRealMode(vector byte) {
	c.push16(uint16(c.eflags))
	c.push16(c.getSeg(SegCS))
	c.push16(uint16(c.pc))

	c.setFlagBit(FlagIF, false)
	c.setFlagBit(FlagTF, false)

	addr := uint32(vector) * 4
	newIP := c.readW(0, addr)
	if c.faulted() {
		return
	}
	newCS := c.readW(0, addr+2)
	if c.faulted() {
		return
	}
	c.pc = uint32(newIP)
	c.loadSegment(SegCS, newCS)
}

// gateDescriptor is a decoded IDT gate (interrupt/trap/task).
type gateDescriptor struct {
	descriptor
	gateType byte // 5=task, 6=16-bit interrupt, 7=16-bit trap, 14=32-bit interrupt, 15=32-bit trap
	selector uint16
	offset   uint32
	is32     bool
}

func (c *CPU) fetchGate(vector byte) (gateDescriptor, bool) {
	idx := uint32(vector) * 8
	if idx+7 > c.idt.limit {
		return gateDescriptor{}, false
	}
	lo := c.readL(0, c.idt.base+idx)
	if c.faulted() {
		return gateDescriptor{}, false
	}
	hi := c.readL(0, c.idt.base+idx+4)
	if c.faulted() {
		return gateDescriptor{}, false
	}
	g := gateDescriptor{}
	g.selector = uint16(lo >> 16)
	g.offset = (lo & 0xFFFF) | (hi &^ 0xFFFF)
	g.access = byte((hi >> 8) & 0xFF)
	g.gateType = g.access & 0x1F
	g.is32 = g.gateType == 14 || g.gateType == 15
	g.present = g.access&0x80 != 0
	return g, true
}

// deliverProtectedMode resolves the IDT gate, performs a privilege-level
// switch (fetching the inner stack from the TSS) when required, pushes
// SS/ESP/EFLAGS/CS/EIP (+ error code), and loads CS:EIP from the gate.
func (c *CPU) deliverProtectedMode(vector byte, hasErrCode bool, errCode uint32) {
	g, ok := c.fetchGate(vector)
	if !ok || !g.present {
		if !ok {
			c.raiseGP(uint32(vector)*8 + 2)
		} else {
			c.raiseFault(FaultNP, true, uint32(vector)*8+2)
		}
		return
	}

	if g.gateType == 5 {
		c.taskSwitch(g.selector, true)
		return
	}

	targetCPL := byte(g.selector & 3)
	changesLevel := targetCPL < c.cpl

	oldSS := c.getSeg(SegSS)
	oldESP := c.ESP()
	oldCPL := c.cpl

	if changesLevel {
		newSS, newESP, ok := c.tssStackFor(uint16(targetCPL))
		if !ok {
			return
		}
		c.loadSegment(SegSS, newSS)
		if c.faulted() {
			return
		}
		c.SetESP(newESP)
	}

	if changesLevel {
		c.push32(uint32(oldSS))
		c.push32(oldESP)
	}
	c.push32(c.eflags)
	c.push32(uint32(c.getSeg(SegCS)))
	c.push32(c.pc)
	if hasErrCode {
		c.push32(errCode)
	}

	isTrap := g.gateType == 7 || g.gateType == 15
	if !isTrap {
		c.setFlagBit(FlagIF, false)
	}
	c.setFlagBit(FlagTF, false)
	c.eflags &^= FlagVM | FlagNT

	oldCPLsaved := oldCPL
	c.loadSegment(SegCS, g.selector)
	if c.faulted() {
		return
	}
	c.pc = g.offset
	c.cpl = targetCPL
	c.oldcpl = oldCPLsaved
}

// tssStackFor reads {SSn, ESPn} from the current TSS for a privilege-level
// transition to targetCPL (the 32-bit TSS layout: ESP0 at offset 4, SS0 at
// offset 8, with 8 bytes per additional ring).
func (c *CPU) tssStackFor(targetCPL uint16) (uint16, uint32, bool) {
	off := uint32(4 + 8*targetCPL)
	esp := c.readL(0, c.tr.base+off)
	if c.faulted() {
		return 0, 0, false
	}
	ss := c.readW(0, c.tr.base+off+4)
	if c.faulted() {
		return 0, 0, false
	}
	return ss, esp, true
}

// taskSwitch performs a full register-file save/reload through the TSS, as
// 386.c's taskswitch386 does (supplemented feature; see SPEC_FULL.md §D.5).
func (c *CPU) taskSwitch(tssSelector uint16, viaGate bool) {
	d, ok := c.fetchDescriptor(tssSelector)
	if !ok || !d.present {
		c.raiseGP(uint32(tssSelector) & 0xFFF8)
		return
	}

	// Save current state into the outgoing TSS.
	c.writeL(0, c.tr.base+0x1C, c.pc) // EIP
	if c.faulted() {
		return
	}
	c.writeL(0, c.tr.base+0x20, c.eflags)
	c.writeL(0, c.tr.base+0x24, c.EAX())
	c.writeL(0, c.tr.base+0x28, c.ECX())
	c.writeL(0, c.tr.base+0x2C, c.EDX())
	c.writeL(0, c.tr.base+0x30, c.EBX())
	c.writeL(0, c.tr.base+0x34, c.ESP())
	c.writeL(0, c.tr.base+0x38, c.EBP())
	c.writeL(0, c.tr.base+0x3C, c.ESI())
	c.writeL(0, c.tr.base+0x40, c.EDI())

	// Load the incoming TSS.
	c.tr = tableReg{selector: tssSelector, base: d.base, limit: d.limit, access: d.access}
	c.pc = c.readL(0, c.tr.base+0x1C)
	c.eflags = c.readL(0, c.tr.base+0x20)
	c.flags = uint16(c.eflags)
	c.SetEAX(c.readL(0, c.tr.base+0x24))
	c.SetECX(c.readL(0, c.tr.base+0x28))
	c.SetEDX(c.readL(0, c.tr.base+0x2C))
	c.SetEBX(c.readL(0, c.tr.base+0x30))
	c.SetESP(c.readL(0, c.tr.base+0x34))
	c.SetEBP(c.readL(0, c.tr.base+0x38))
	c.SetESI(c.readL(0, c.tr.base+0x3C))
	c.SetEDI(c.readL(0, c.tr.base+0x40))
	if viaGate {
		c.eflags |= FlagNT
	}
}
