package zephyr

import (
	"strconv"
	"time"
)

// Opcode identifies the kind of an Op. Values follow the io_uring
// opcode numbering.
type Opcode uint8

const (
	OpNop     Opcode = 0
	OpReadv   Opcode = 1
	OpWritev  Opcode = 2
	OpFsync   Opcode = 3
	OpTimeout Opcode = 11
	OpOpenat  Opcode = 18
	OpClose   Opcode = 19
	OpRead    Opcode = 22
	OpWrite   Opcode = 23
)

var opcodeNames = map[Opcode]string{
	OpNop:     "nop",
	OpReadv:   "readv",
	OpWritev:  "writev",
	OpFsync:   "fsync",
	OpTimeout: "timeout",
	OpOpenat:  "openat",
	OpClose:   "close",
	OpRead:    "read",
	OpWrite:   "write",
}

func (c Opcode) String() string {
	if name, ok := opcodeNames[c]; ok {
		return name
	}
	return "op(" + strconv.Itoa(int(c)) + ")"
}

// Op describes one operation handed to a completion service. Buffers
// referenced by an Op must stay untouched until it completes.
type Op interface {
	Opcode() Opcode
}

// Nop completes immediately with result 0. The runtime uses it to
// reschedule a continuation on another worker or at a later Order.
type Nop struct{}

// Read reads up to len(Buf) bytes from FD at Offset.
type Read struct {
	FD     int
	Buf    []byte
	Offset uint64
}

// Readv reads into Bufs in order from FD at Offset.
type Readv struct {
	FD     int
	Bufs   [][]byte
	Offset uint64
}

// Write writes Buf to FD at Offset.
type Write struct {
	FD     int
	Buf    []byte
	Offset uint64
}

// Writev writes Bufs in order to FD at Offset.
type Writev struct {
	FD     int
	Bufs   [][]byte
	Offset uint64
}

// Openat opens Path relative to the directory Dir. The result is the
// new file descriptor.
type Openat struct {
	Dir   int
	Path  string
	Flags int
	Mode  uint32
}

// Close closes FD.
type Close struct {
	FD int
}

// Fsync flushes FD to stable storage.
type Fsync struct {
	FD int
}

// Timeout completes with result 0 once D has elapsed.
type Timeout struct {
	D time.Duration
}

func (Nop) Opcode() Opcode     { return OpNop }
func (Read) Opcode() Opcode    { return OpRead }
func (Readv) Opcode() Opcode   { return OpReadv }
func (Write) Opcode() Opcode   { return OpWrite }
func (Writev) Opcode() Opcode  { return OpWritev }
func (Openat) Opcode() Opcode  { return OpOpenat }
func (Close) Opcode() Opcode   { return OpClose }
func (Fsync) Opcode() Opcode   { return OpFsync }
func (Timeout) Opcode() Opcode { return OpTimeout }

// AtFDCWD is the Linux value of AT_FDCWD: an Openat with this Dir
// resolves relative paths against the working directory.
const AtFDCWD = -100

// OpenFile returns an Openat for path relative to the working
// directory.
func OpenFile(path string, flags int, mode uint32) Openat {
	return Openat{Dir: AtFDCWD, Path: path, Flags: flags, Mode: mode}
}
