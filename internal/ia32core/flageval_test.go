// flageval_test.go - lazy flag reconstruction, exercised through real
// instruction execution rather than calling recordArith/rebuild directly,
// since the lazy block's contract is "whatever Jcc/SETcc/PUSHF observes
// matches the eager 386_common.h computation", not its internal fields.

package ia32core

import "testing"

func TestArithFlagsOverflowAndCarry(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// MOV AX,0xFFFF; ADD AX,1; HLT  -> AX wraps to 0, CF=1, ZF=1, OF=0
	load(bus, 0, []byte{0xB8, 0xFF, 0xFF, 0x05, 0x01, 0x00, 0xF4})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if v := c.getReg16(RegEAX); v != 0 {
		t.Fatalf("AX = %#x, want 0", v)
	}
	if !c.CF() {
		t.Error("CF should be set: 0xFFFF + 1 carries out")
	}
	if !c.ZF() {
		t.Error("ZF should be set: result is 0")
	}
	if c.OF() {
		t.Error("OF should be clear: adding 1 to 0xFFFF isn't a signed overflow")
	}
}

func TestArithFlagsSignedOverflow(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// MOV AX,0x7FFF; ADD AX,1; HLT -> signed overflow (max positive + 1)
	load(bus, 0, []byte{0xB8, 0xFF, 0x7F, 0x05, 0x01, 0x00, 0xF4})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if v := c.getReg16(RegEAX); v != 0x8000 {
		t.Fatalf("AX = %#x, want 0x8000", v)
	}
	if !c.OF() {
		t.Error("OF should be set: 0x7FFF + 1 overflows a signed 16-bit add")
	}
	if !c.SF() {
		t.Error("SF should be set: result's top bit is 1")
	}
	if c.CF() {
		t.Error("CF should be clear: no unsigned carry out of bit 15")
	}
}

func TestSubBorrowSetsCF(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// MOV AX,0; SUB AX,1; HLT -> 0-1 borrows
	load(bus, 0, []byte{0xB8, 0x00, 0x00, 0x2D, 0x01, 0x00, 0xF4})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if v := c.getReg16(RegEAX); v != 0xFFFF {
		t.Fatalf("AX = %#x, want 0xFFFF", v)
	}
	if !c.CF() {
		t.Error("CF should be set: 0-1 borrows")
	}
	if !c.SF() {
		t.Error("SF should be set: result is negative")
	}
}

func TestLogicClearsCFAndOF(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// STC (set CF); AND AX,AX (logic op must clear CF/OF architecturally)
	load(bus, 0, []byte{0xF9, 0x21, 0xC0, 0xF4})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if c.CF() {
		t.Error("CF should be cleared by a logical instruction")
	}
	if c.OF() {
		t.Error("OF should be cleared by a logical instruction")
	}
}

func TestJccObservesLazyFlags(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// CMP AX,AX (equal); JE +3 skips MOV BX,1; MOV BX,2; HLT
	load(bus, 0, []byte{
		0x39, 0xC0, // CMP AX,AX
		0x74, 0x03, // JE +3 (over the 3-byte MOV BX,1)
		0xBB, 0x01, 0x00, // MOV BX,1 (skipped)
		0xBB, 0x02, 0x00, // MOV BX,2
		0xF4,
	})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if v := c.getReg16(RegEBX); v != 2 {
		t.Fatalf("BX = %#x, want 2 (JE should have taken the branch)", v)
	}
}

func TestIncDecPreserveCF(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// STC; INC AX; HLT -> INC must not touch CF
	load(bus, 0, []byte{0xF9, 0x40, 0xF4})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if !c.CF() {
		t.Error("INC must leave CF untouched; STC set it beforehand")
	}
}
