// segunit_test.go - segment register loading and descriptor decode

package ia32core

import "testing"

func TestLoadSegmentRealMode(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// MOV AX,0x1000; MOV DS,AX; HLT
	load(bus, 0, []byte{0xB8, 0x00, 0x10, 0x8E, 0xD8, 0xF4})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if c.getSeg(SegDS) != 0x1000 {
		t.Fatalf("DS selector = %#x, want 0x1000", c.getSeg(SegDS))
	}
	if c.segBase(SegDS) != 0x10000 {
		t.Fatalf("DS base = %#x, want selector<<4 = 0x10000", c.segBase(SegDS))
	}
	if c.segLimit(SegDS) != 0xFFFF {
		t.Fatalf("DS limit = %#x, want 0xFFFF in real mode", c.segLimit(SegDS))
	}
}

func TestLoadSegmentCSResetsOperandSize(t *testing.T) {
	c, _ := newTestCPU(1 << 16)
	c.use32 = 3
	c.stack32 = true
	c.loadSegment(SegCS, 0x2000)
	if c.use32 != 0 {
		t.Fatalf("use32 = %d, want 0 after a real-mode CS load", c.use32)
	}
}

func TestSegmentOverridePrefixAffectsEA(t *testing.T) {
	c, bus := newTestCPU(1 << 20)
	// MOV AX,0x2000; MOV ES,AX; MOV BX,0x10
	// ES: MOV byte [BX],0x55   ; writes to ES:BX = 0x20000+0x10 = 0x20010
	// MOV byte [BX],0xAA       ; writes to DS:BX = 0+0x10 = 0x10 (DS still null base 0)
	load(bus, 0, []byte{
		0xB8, 0x00, 0x20, // MOV AX,0x2000
		0x8E, 0xC0, // MOV ES,AX
		0xBB, 0x10, 0x00, // MOV BX,0x10
		0x26, 0xC6, 0x07, 0x55, // ES: MOV byte [BX],0x55
		0xC6, 0x07, 0xAA, // MOV byte [BX],0xAA
		0xF4,
	})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if bus.mem[0x20010] != 0x55 {
		t.Fatalf("ES-prefixed write landed at %#x instead of 0x20010: got %#x there", 0x20010, bus.mem[0x20010])
	}
	if bus.mem[0x10] != 0xAA {
		t.Fatalf("unprefixed write should have used DS (base 0): bus[0x10] = %#x", bus.mem[0x10])
	}
}

func TestNullSelectorIntoDataSegment(t *testing.T) {
	c, _ := newTestCPU(1 << 16)
	c.cr0 |= CR0PE // enter protected mode so the null-selector path applies
	c.loadSegment(SegDS, 0)
	if c.segs[SegDS].base != nullSegBase {
		t.Fatalf("null selector into DS should set base=nullSegBase, got %#x", c.segs[SegDS].base)
	}
}
