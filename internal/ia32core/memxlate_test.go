// memxlate_test.go - linear/physical translation, the fast-path slices,
// and SMC dirty-bit bookkeeping

package ia32core

import "testing"

func TestTranslateRealModeIsIdentity(t *testing.T) {
	c, _ := newTestCPU(1 << 16)
	phys, ok := c.translate(0x1234, false, false)
	if !ok {
		t.Fatal("translate should never fail with paging disabled")
	}
	if phys != 0x1234 {
		t.Fatalf("phys = %#x, want 0x1234 (identity with CR0.PG clear)", phys)
	}
}

func TestWriteBThroughBusAndReadBack(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	c.writeB(0, 0x100, 0x42)
	if bus.mem[0x100] != 0x42 {
		t.Fatalf("bus byte at 0x100 = %#x, want 0x42", bus.mem[0x100])
	}
	if v := c.readB(0, 0x100); v != 0x42 {
		t.Fatalf("readB = %#x, want 0x42", v)
	}
}

func TestMapPageFastPath(t *testing.T) {
	c, _ := newTestCPU(1 << 16)
	host := make([]byte, pageSize)
	c.mx.mapPage(0x2000, host, true)

	c.writeB(0, 0x2010, 0x99)
	if host[0x10] != 0x99 {
		t.Fatalf("fast-path write missed the mapped host slice: got %#x", host[0x10])
	}
	if v := c.readB(0, 0x2010); v != 0x99 {
		t.Fatalf("fast-path read = %#x, want 0x99", v)
	}
}

func TestNullSegmentForcesSlowPath(t *testing.T) {
	c, bus := newTestCPU(1 << 16)
	host := make([]byte, pageSize)
	c.mx.mapPage(0, host, true)

	// nullSegBase must never consult the fast-path slice, even though page
	// 0 is mapped - it always falls through to the bus. The linear address
	// nullSegBase+0x10 wraps to 0x0F.
	c.writeB(nullSegBase, 0x10, 0x55)
	if bus.mem[0x0F] != 0x55 {
		t.Fatalf("slow path should have reached the bus: bus[0x0F]=%#x", bus.mem[0x0F])
	}
	if host[0x0F] == 0x55 {
		t.Fatal("null-segment write must not go through the fast-path host slice")
	}
}

func TestNoteWriteMarksJITDirtyOnlyWhenCodePresent(t *testing.T) {
	c, _ := newTestCPU(1 << 16)

	c.jit.markDirty(0x3000) // no page entry yet: must be a silent no-op
	if _, ok := c.jit.pages[0x3000>>pageShift]; ok {
		t.Fatal("markDirty must not create a page entry when none exists yet")
	}

	c.jit.markGranules(0x3000, 1<<5) // pretend granule 5 holds cached code
	c.jit.markDirty(0x3000 + 5*granuleSize)
	pe := c.jit.pages[0x3000>>pageShift]
	if pe.dirtyMask&(1<<5) == 0 {
		t.Fatal("writing into a code-present granule must set its dirty bit")
	}

	c.jit.markDirty(0x3000 + 6*granuleSize) // granule 6 was never marked present
	if pe.dirtyMask&(1<<6) != 0 {
		t.Fatal("writing into a granule with no cached code must not dirty it")
	}
}

func TestInvalidatePageClearsPccache(t *testing.T) {
	c, _ := newTestCPU(1 << 16)
	host := make([]byte, pageSize)
	c.mx.mapPage(0, host, true)
	c.mx.pccachePage = 0
	c.mx.pccacheOk = true

	c.mx.invalidatePage(0)
	if c.mx.pccacheOk {
		t.Fatal("invalidating the cached fetch page should clear pccacheOk")
	}
	if c.mx.readlookup[0] != nil {
		t.Fatal("invalidatePage should drop the fast-path mapping")
	}
}
