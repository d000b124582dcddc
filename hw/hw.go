// Package hw defines the contract boundary between emFile's physical layers
// (norphy, nandphy) and the driver-supplied hardware collaborator. Per the
// specification's scope, raw wire bit-banging is an external concern: this
// package only states the shape of that collaborator, plus a small in-memory
// harness used by tests that would otherwise need real flash parts.
package hw

import "time"

// BusWidth names how many data/address/command lines a transfer uses, the
// (cmd-lines, addr-lines, data-lines) triple the NOR physical layer selects
// per the widest variant both device and hardware layer support.
type BusWidth struct {
	CmdLines  uint8
	AddrLines uint8
	DataLines uint8
	DTR       bool
}

var (
	BusWidth111 = BusWidth{CmdLines: 1, AddrLines: 1, DataLines: 1}
	BusWidth112 = BusWidth{CmdLines: 1, AddrLines: 1, DataLines: 2}
	BusWidth122 = BusWidth{CmdLines: 1, AddrLines: 2, DataLines: 2}
	BusWidth114 = BusWidth{CmdLines: 1, AddrLines: 1, DataLines: 4}
	BusWidth144 = BusWidth{CmdLines: 1, AddrLines: 4, DataLines: 4}
	BusWidth444 = BusWidth{CmdLines: 4, AddrLines: 4, DataLines: 4}
	BusWidth888 = BusWidth{CmdLines: 8, AddrLines: 8, DataLines: 8}
)

// Locker is the optional finer-grained locking a HW layer may provide around
// each device transaction, called by the core in addition to its own
// system/volume locks (see §5 of the concurrency model).
type Locker interface {
	Lock()
	Unlock()
}

// Command is a single command-mode transaction: a command byte, optional
// address bytes, optional dummy cycles, then a data phase.
type Command struct {
	Opcode     byte
	Addr       []byte
	DummyBytes int
	Width      BusWidth
}

// NORHardware is the command-mode contract a NOR driver exposes. All
// methods may block; Poll is used to wait out erase/program completion.
type NORHardware interface {
	Init() error
	Reset() error

	// SupportsMemoryMap reports whether the device can be read via MapRead
	// without issuing command-mode reads.
	SupportsMemoryMap() bool
	Map() error
	Unmap() error
	MapRead(offset int64, buf []byte) error

	ExecCommand(cmd Command, writeData []byte, readLen int) ([]byte, error)

	// Poll blocks, issuing statusFn repeatedly, until it returns true or
	// budget elapses; it returns an error on timeout.
	Poll(budget time.Duration, statusFn func() (done bool, err error)) error

	Delay(d time.Duration)
}

// NANDHardware is the command-mode contract a NAND driver exposes.
type NANDHardware interface {
	Init() error
	Reset() error

	SelectDie(die int) error

	ExecCommand(cmd Command, writeData []byte, readLen int) ([]byte, error)
	Poll(budget time.Duration, statusFn func() (done bool, err error)) error
	Delay(d time.Duration)
}
