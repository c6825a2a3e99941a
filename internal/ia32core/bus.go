// bus.go - host callback interface and configuration
//
// Grounded on cpu_x86.go's X86Bus interface and CPUX86Runner/CPUX86Config
// in cpu_x86_runner.go, extended with the callbacks spec.md §6 names for a
// protected-mode-capable core (physical memory, port I/O, timer wheel, PIC,
// NMI, and the fatal() escape hatch).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package ia32core

// Bus is every host callback the core consumes. No other I/O happens.
type Bus interface {
	ReadPhysB(phys uint32) byte
	WritePhysB(phys uint32, v byte)

	InB(port uint16) byte
	InW(port uint16) uint16
	InL(port uint16) uint32
	OutB(port uint16, v byte)
	OutW(port uint16, v uint16)
	OutL(port uint16, v uint32)

	Tick(cycles int)
	TimerNow() uint64
	TimerStartPeriod(cycles int)
	TimerEndPeriod(cycles int)

	// PICInterrupt acknowledges and returns the vector of the
	// highest-priority pending IRQ, or 0xFF when none.
	PICInterrupt() byte
	PICIntPending() bool
	NMIPending() bool
	NMIEnabled() bool

	// Fatal aborts the host process on an unrecoverable emulator bug. The
	// triple-fault path does NOT call this; it returns a FatalError from
	// Exec instead (spec.md §7).
	Fatal(msg string)
}

// Config holds the host-configurable knobs spec.md §6 names. There is no
// flag/viper/cobra layer here, matching the teacher: CPUX86Config is a
// plain struct passed to NewCPU_X86-equivalent constructors.
type Config struct {
	Is486          bool
	HasFPU         bool
	UseDynarec     bool
	TimingInt      int
	TimingIntRM    int
	TimingBT       int
	RepBudgetInterp int // 0 => interpRepBudget
	RepBudgetJIT    int // 0 => jitRepBudget
}

func (cfg Config) repBudgetInterp() int {
	if cfg.RepBudgetInterp > 0 {
		return cfg.RepBudgetInterp
	}
	return interpRepBudget
}

func (cfg Config) repBudgetJIT() int {
	if cfg.RepBudgetJIT > 0 {
		return cfg.RepBudgetJIT
	}
	return jitRepBudget
}

// FatalError is returned by Exec/ExecDynarec only for the triple-fault
// reset path (spec.md §7); every other exception is delivered to the guest.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return "ia32core: fatal: " + e.Reason }
