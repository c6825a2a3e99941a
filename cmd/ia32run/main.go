// cmd/ia32run/main.go - a minimal headless harness for the ia32core engine:
// load a flat binary image into guest physical memory, run it for a cycle
// budget, and dump the resulting register/FPU state.
//
// CLI flag surface grounded on chr2png/main.go's urfave/cli usage (flags
// with short aliases, a single Action closure); placement under cmd/
// grounded on cmd/ie32to64 being the teacher's own precedent for a small
// root-level tool next to the library it drives.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/intuitionamiga/ia32core/internal/ia32core"
)

// flatBus is the simplest possible Bus: one contiguous byte slice for
// physical memory, every port read returns 0xFF (unpopulated bus), every
// port write is discarded, and no PIC/NMI/timer device is attached.
type flatBus struct {
	mem []byte
}

func newFlatBus(size int) *flatBus { return &flatBus{mem: make([]byte, size)} }

func (b *flatBus) ReadPhysB(phys uint32) byte {
	if int(phys) >= len(b.mem) {
		return 0xFF
	}
	return b.mem[phys]
}

func (b *flatBus) WritePhysB(phys uint32, v byte) {
	if int(phys) < len(b.mem) {
		b.mem[phys] = v
	}
}

func (b *flatBus) InB(uint16) byte          { return 0xFF }
func (b *flatBus) InW(uint16) uint16        { return 0xFFFF }
func (b *flatBus) InL(uint16) uint32        { return 0xFFFFFFFF }
func (b *flatBus) OutB(uint16, byte)        {}
func (b *flatBus) OutW(uint16, uint16)      {}
func (b *flatBus) OutL(uint16, uint32)      {}
func (b *flatBus) Tick(int)                 {}
func (b *flatBus) TimerNow() uint64         { return 0 }
func (b *flatBus) TimerStartPeriod(int)     {}
func (b *flatBus) TimerEndPeriod(int)       {}
func (b *flatBus) PICInterrupt() byte       { return 0xFF }
func (b *flatBus) PICIntPending() bool      { return false }
func (b *flatBus) NMIPending() bool         { return false }
func (b *flatBus) NMIEnabled() bool         { return false }
func (b *flatBus) Fatal(msg string)         { fmt.Fprintf(os.Stderr, "fatal: %s\n", msg); os.Exit(1) }

func main() {
	app := &cli.App{
		Name:    "ia32run",
		Usage:   "Run a flat binary image through the ia32core interpreter/JIT",
		Version: "v0.0.1",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Aliases:  []string{"i"},
				Usage:    "flat binary image to load into guest physical memory",
				Required: true,
			},
			&cli.UintFlag{
				Name:    "load-addr",
				Aliases: []string{"a"},
				Usage:   "physical address to load the image at",
				Value:   0,
			},
			&cli.UintFlag{
				Name:    "mem-size",
				Aliases: []string{"m"},
				Usage:   "guest physical memory size in bytes",
				Value:   1 << 20,
			},
			&cli.IntFlag{
				Name:    "cycles",
				Aliases: []string{"c"},
				Usage:   "guest cycle budget",
				Value:   1000,
			},
			&cli.BoolFlag{
				Name:  "dynarec",
				Usage: "run via ExecDynarec instead of Exec",
			},
			&cli.BoolFlag{
				Name:  "is486",
				Usage: "report the core as a 486 (Config.Is486)",
			},
		},
		Action: run,
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	imagePath := ctx.String("image")
	loadAddr := uint32(ctx.Uint("load-addr"))
	memSize := int(ctx.Uint("mem-size"))
	cycles := ctx.Int("cycles")
	useDynarec := ctx.Bool("dynarec")

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading %s: %v", imagePath, err), 1)
	}
	if int(loadAddr)+len(data) > memSize {
		return cli.Exit("image does not fit in mem-size at load-addr", 1)
	}

	bus := newFlatBus(memSize)
	copy(bus.mem[loadAddr:], data)

	cfg := ia32core.Config{
		Is486:      ctx.Bool("is486"),
		HasFPU:     true,
		UseDynarec: useDynarec,
	}
	cpu := ia32core.New(bus, cfg)

	// Point CS:IP at the load address in real mode: selector loadAddr>>4,
	// offset loadAddr&0xF, so CS.base+IP (selector*16+IP) == loadAddr for
	// any load address below 1MB.
	cpu.SetCSIP(uint16(loadAddr>>4), uint16(loadAddr&0xF))

	var spent int
	if useDynarec {
		spent, err = cpu.ExecDynarec(cycles)
	} else {
		spent, err = cpu.Exec(cycles)
	}

	dumpState(cpu, spent)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	return nil
}

func dumpState(cpu *ia32core.CPU, cyclesSpent int) {
	fmt.Printf("cycles executed: %d\n", cyclesSpent)
	fmt.Printf("EAX=%08X ECX=%08X EDX=%08X EBX=%08X\n", cpu.EAX(), cpu.ECX(), cpu.EDX(), cpu.EBX())
	fmt.Printf("ESP=%08X EBP=%08X ESI=%08X EDI=%08X\n", cpu.ESP(), cpu.EBP(), cpu.ESI(), cpu.EDI())
	fmt.Printf("EIP=%08X FLAGS=%04X\n", cpu.EIP(), cpu.FlagsWord())
	fmt.Printf("halted=%v\n", cpu.IsHalted())
}
