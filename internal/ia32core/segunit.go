// segunit.go - segment register loading, descriptor cache, privilege checks
//
// Grounded on cpu_x86.go's getSeg/setSeg, extended with GDT/LDT descriptor
// fetch and privilege/limit checks per spec.md §4.2.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

// descriptor is a decoded 8-byte GDT/LDT/IDT entry.
type descriptor struct {
	base   uint32
	limit  uint32
	access byte
	gran   bool // granularity bit: limit counted in 4KB pages
	big    bool // D/B bit: 32-bit default operand/stack size
	present bool
}

func decodeDescriptor(lo, hi uint32) descriptor {
	d := descriptor{}
	d.limit = (lo & 0xFFFF) | ((hi & 0xF0000))
	d.base = (lo >> 16) | ((hi & 0xFF) << 16) | ((hi >> 24) << 24)
	d.access = byte((hi >> 8) & 0xFF)
	d.gran = hi&(1<<23) != 0
	d.big = hi&(1<<22) != 0
	d.present = d.access&0x80 != 0
	if d.gran {
		d.limit = (d.limit << 12) | 0xFFF
	}
	return d
}

// fetchDescriptor loads an 8-byte descriptor from the GDT or LDT (selected
// by selector's TI bit) via MemXlate, bypassing segmentation (descriptor
// tables are addressed by linear base directly).
func (c *CPU) fetchDescriptor(selector uint16) (descriptor, bool) {
	idx := uint32(selector>>3) * 8
	var tbl tableReg
	if selector&4 != 0 {
		tbl = c.ldt
	} else {
		tbl = c.gdt
	}
	if idx+7 > tbl.limit {
		return descriptor{}, false
	}
	lo := c.readL(0, tbl.base+idx) // descriptor tables are addressed by linear base directly
	if c.faulted() {
		return descriptor{}, false
	}
	hi := c.readL(0, tbl.base+idx+4)
	if c.faulted() {
		return descriptor{}, false
	}
	return decodeDescriptor(lo, hi), true
}

// loadSegment implements SegUnit's load_segment(register, selector).
func (c *CPU) loadSegment(reg int, selector uint16) {
	if !c.inProtectedMode() || c.inV86Mode() {
		c.segs[reg] = segDesc{
			selector: selector,
			base:     uint32(selector) << 4,
			limitLow: 0,
			limitHigh: 0xFFFF,
			access:   0x93,
			checked:  false,
		}
		if reg == SegCS {
			c.use32 = 0
			c.stack32 = false
		}
		return
	}

	if selector&0xFFFC == 0 {
		if reg == SegSS {
			c.raiseGP(0)
			return
		}
		if reg == SegCS {
			c.raiseGP(0)
			return
		}
		c.segs[reg] = segDesc{selector: selector, base: nullSegBase, checked: false}
		return
	}

	d, ok := c.fetchDescriptor(selector)
	if !ok {
		if reg == SegSS {
			c.raiseFault(FaultSS, true, uint32(selector)&0xFFF8|uint32(selector&4))
		} else {
			c.raiseFault(FaultGP, true, uint32(selector)&0xFFF8|uint32(selector&4))
		}
		return
	}
	if !d.present {
		if reg == SegSS {
			c.raiseFault(FaultSS, true, uint32(selector)&0xFFF8)
		} else {
			c.raiseFault(FaultNP, true, uint32(selector)&0xFFF8)
		}
		return
	}
	if reg == SegSS && d.access&2 == 0 {
		c.raiseFault(FaultGP, true, uint32(selector)&0xFFF8)
		return
	}

	c.segs[reg] = segDesc{
		selector:  selector,
		base:      d.base,
		limitLow:  0,
		limitHigh: d.limit,
		access:    d.access,
		checked:   false,
	}
	if reg == SegCS {
		c.cpl = byte(selector & 3)
		c.use32 = 0
		if d.big {
			c.use32 = 3 // CS.D=1 defaults both operand and address size to 32-bit
		}
	}
	if reg == SegSS {
		c.stack32 = d.big
	}
}

func (c *CPU) raiseGP(errCode uint32) { c.raiseFault(FaultGP, true, errCode) }
func (c *CPU) raiseSS(errCode uint32) { c.raiseFault(FaultSS, true, errCode) }

// checkRead/checkWrite validate a [low,high] byte range against a loaded
// segment's limit and type; they are what decoder.go and memxlate.go call
// before trusting a segment for an EA.
func (c *CPU) checkRead(seg int, low, high uint32) bool {
	s := &c.segs[seg]
	if s.checked {
		return true
	}
	if s.base == nullSegBase {
		c.raiseGP(0)
		return false
	}
	if c.inProtectedMode() && !c.inV86Mode() {
		if high > s.limitHigh || low < s.limitLow {
			if seg == SegSS {
				c.raiseSS(0)
			} else {
				c.raiseGP(0)
			}
			return false
		}
	}
	s.checked = true
	return true
}

func (c *CPU) checkWrite(seg int, low, high uint32) bool {
	s := &c.segs[seg]
	if s.access&2 == 0 && c.inProtectedMode() && !c.inV86Mode() {
		if seg == SegSS {
			c.raiseSS(0)
		} else {
			c.raiseGP(0)
		}
		return false
	}
	return c.checkRead(seg, low, high)
}

// walkPageTables performs a 2-level x86 page walk (CR3 -> PDE -> PTE),
// setting the accessed/dirty bits and resolving the 4KB physical frame.
// A missing or permission-denied entry sets #PF with the standard error
// code layout {P, W, U} and returns ok=false.
func (c *CPU) walkPageTables(linear uint32, write, user bool) (uint32, bool) {
	pdeAddr := (c.cr3 &^ 0xFFF) + ((linear >> 22) & 0x3FF * 4)
	pde := c.readL(0, pdeAddr)
	if c.faulted() {
		return 0, false
	}
	if pde&1 == 0 {
		c.pageFault(linear, write, user, false)
		return 0, false
	}
	if user && pde&4 == 0 {
		c.pageFault(linear, write, user, true)
		return 0, false
	}
	if write && pde&2 == 0 && c.cr0&CR0WP != 0 {
		c.pageFault(linear, write, user, true)
		return 0, false
	}
	c.writeL(0, pdeAddr, pde|0x20) // accessed
	if c.faulted() {
		return 0, false
	}

	pteAddr := (pde &^ 0xFFF) + ((linear >> 12) & 0x3FF * 4)
	pte := c.readL(0, pteAddr)
	if c.faulted() {
		return 0, false
	}
	if pte&1 == 0 {
		c.pageFault(linear, write, user, false)
		return 0, false
	}
	if user && pte&4 == 0 {
		c.pageFault(linear, write, user, true)
		return 0, false
	}
	if write && pte&2 == 0 && c.cr0&CR0WP != 0 {
		c.pageFault(linear, write, user, true)
		return 0, false
	}
	dirtyBit := byte(0)
	if write {
		dirtyBit = 0x40
	}
	c.writeL(0, pteAddr, pte|0x20|uint32(dirtyBit))
	if c.faulted() {
		return 0, false
	}

	return (pte &^ 0xFFF) | (linear & 0xFFF), true
}

func (c *CPU) pageFault(linear uint32, write, user, present bool) {
	c.cr2 = linear
	var code uint32
	if present {
		code |= 1
	}
	if write {
		code |= 2
	}
	if user {
		code |= 4
	}
	c.raiseFault(FaultPF, true, code)
}
