// interp_test.go - broader opcode coverage: the REP budget-restart path,
// near/far CALL+RET, and the Grp3 unary family (NEG/MUL/DIV).

package ia32core

import "testing"

func TestREPSTOSBRestartsAcrossBudget(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// interpRepBudget is 100; CX=250 forces at least one budget-exhausted
	// restart (pc rewound to re-enter the same REP STOSB) before it finishes.
	load(bus, 0, []byte{
		0xB9, 0xFA, 0x00, // MOV CX,250
		0xB0, 0x42, // MOV AL,0x42
		0xBF, 0x00, 0x10, // MOV DI,0x1000
		0xF3, 0xAA, // REP STOSB
		0xF4,
	})
	if _, err := c.Exec(100000); err != nil {
		t.Fatal(err)
	}
	if !c.IsHalted() {
		t.Fatal("program should reach HLT once the REP finally drains ECX")
	}
	for i := 0; i < 250; i++ {
		if bus.mem[0x1000+i] != 0x42 {
			t.Fatalf("byte %d of the REP STOSB run = %#x, want 0x42", i, bus.mem[0x1000+i])
		}
	}
	if v := c.getReg16(RegECX); v != 0 {
		t.Fatalf("CX = %#x, want 0 once the REP finishes", v)
	}
}

func TestCallNearAndRet(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// CALL over the HLT to a routine that does MOV BX,5; RET. The rel16 is
	// relative to pc *after* the full 3-byte CALL instruction (address 3,
	// the HLT itself - the call's return address), so d=1 lands on address 4.
	load(bus, 0, []byte{
		0xE8, 0x01, 0x00, // CALL rel16 +1 -> address 4
		0xF4,             // HLT (only reached after the call returns)
		0xBB, 0x05, 0x00, // address 4: MOV BX,5
		0xC3, // RET
	})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if !c.IsHalted() {
		t.Fatal("CALL should have returned and fallen into the HLT")
	}
	if v := c.getReg16(RegEBX); v != 5 {
		t.Fatalf("BX = %#x, want 5", v)
	}
}

func TestGrp3NegAndMul(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// MOV AX,5; NEG AX; MOV BX,3; IMUL-less MUL: MOV AX,0xFFFB(=-5); NEG AX
	// undoes it; then MUL AX,BX via F7 /4 needs AX as implicit operand, so:
	// MOV AX,5; MOV BX,3; MUL BX (F7 /4, ModRM=0xE3); HLT -> DX:AX = 0:15
	load(bus, 0, []byte{
		0xB8, 0x05, 0x00, // MOV AX,5
		0xBB, 0x03, 0x00, // MOV BX,3
		0xF7, 0xE3, // MUL BX
		0xF4,
	})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if v := c.getReg16(RegEAX); v != 15 {
		t.Fatalf("AX = %#x, want 15", v)
	}
	if v := c.getReg16(RegEDX); v != 0 {
		t.Fatalf("DX = %#x, want 0 (no overflow out of 16 bits)", v)
	}
	if c.CF() || c.OF() {
		t.Fatal("MUL BX with a result fitting in AX should clear CF/OF")
	}
}

func TestGrp3DivByZeroRaisesDE(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// MOV AX,10; MOV BL,0; DIV BL (F6 /6, ModRM=0xF3); HLT should never run.
	load(bus, 0, []byte{
		0xB8, 0x0A, 0x00, // MOV AX,10
		0xB3, 0x00, // MOV BL,0
		0xF6, 0xF3, // DIV BL
		0xF4,
	})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if c.IsHalted() {
		t.Fatal("DIV by zero should raise #DE, not fall through to HLT")
	}
}

func TestGrp3Neg16(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	// MOV AX,5; NEG AX (F7 /3, ModRM=0xD8); HLT
	load(bus, 0, []byte{
		0xB8, 0x05, 0x00,
		0xF7, 0xD8,
		0xF4,
	})
	if _, err := c.Exec(1000); err != nil {
		t.Fatal(err)
	}
	if v := int16(c.getReg16(RegEAX)); v != -5 {
		t.Fatalf("AX = %d, want -5", v)
	}
	if !c.CF() {
		t.Error("NEG of a nonzero operand must set CF")
	}
}
