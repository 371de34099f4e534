package ioctl

import "fmt"

// Layout describes how a packed command word is split into fields. Fields are
// packed low to high: nr, type, size, dir.
type Layout struct {
	Name     string
	NrBits   uint
	TypeBits uint
	SizeBits uint
	DirBits  uint
	// Direction encodings. Read and write are from the caller's point of view:
	// Read means the caller reads, so the handler writes the buffer.
	None  uint32
	Write uint32
	Read  uint32
}

var (
	// Generic is the asm-generic layout used by x86, arm and most others.
	Generic = Layout{Name: "generic", NrBits: 8, TypeBits: 8, SizeBits: 14, DirBits: 2, None: 0, Write: 1, Read: 2}
	// Legacy is the powerpc/mips/alpha layout with a 3-bit direction field.
	Legacy = Layout{Name: "legacy", NrBits: 8, TypeBits: 8, SizeBits: 13, DirBits: 3, None: 1, Write: 4, Read: 2}
)

func (l Layout) typeShift() uint { return l.NrBits }
func (l Layout) sizeShift() uint { return l.NrBits + l.TypeBits }
func (l Layout) dirShift() uint  { return l.NrBits + l.TypeBits + l.SizeBits }

func mask(bits uint) uint32 { return 1<<bits - 1 }

// Kind is the decoded direction of a command.
type Kind uint8

const (
	KindNone Kind = iota
	KindRead
	KindWrite
	KindReadWrite
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindReadWrite:
		return "read-write"
	default:
		return "invalid"
	}
}

// Direction is the decoded (direction, payload size) of a command word.
// Size is zero for KindNone and KindInvalid.
type Direction struct {
	Kind Kind
	Size uint32
}

func (d Direction) String() string {
	if d.Kind == KindNone || d.Kind == KindInvalid {
		return d.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", d.Kind, d.Size)
}

// Decode splits cmd into direction and payload size. This is the only place
// that interprets the direction and size bit ranges.
func (l Layout) Decode(cmd uint32) Direction {
	dir := (cmd >> l.dirShift()) & mask(l.DirBits)
	size := (cmd >> l.sizeShift()) & mask(l.SizeBits)

	switch dir {
	case l.None:
		return Direction{Kind: KindNone}
	case l.Read:
		return Direction{Kind: KindRead, Size: size}
	case l.Write:
		return Direction{Kind: KindWrite, Size: size}
	case l.Read | l.Write:
		return Direction{Kind: KindReadWrite, Size: size}
	default:
		return Direction{Kind: KindInvalid}
	}
}

// Nr returns the command number field.
func (l Layout) Nr(cmd uint32) uint32 {
	return cmd & mask(l.NrBits)
}

// Type returns the command type ("magic") field.
func (l Layout) Type(cmd uint32) uint32 {
	return (cmd >> l.typeShift()) & mask(l.TypeBits)
}

// Encode packs a command word. Fields wider than their range are truncated.
func (l Layout) Encode(dir, typ, nr, size uint32) uint32 {
	return (dir&mask(l.DirBits))<<l.dirShift() |
		(typ&mask(l.TypeBits))<<l.typeShift() |
		(size&mask(l.SizeBits))<<l.sizeShift() |
		nr&mask(l.NrBits)
}

// IO encodes a command without a buffer.
func (l Layout) IO(typ, nr uint32) uint32 {
	return l.Encode(l.None, typ, nr, 0)
}

// IOR encodes a command whose caller reads size bytes.
func (l Layout) IOR(typ, nr, size uint32) uint32 {
	return l.Encode(l.Read, typ, nr, size)
}

// IOW encodes a command whose caller writes size bytes.
func (l Layout) IOW(typ, nr, size uint32) uint32 {
	return l.Encode(l.Write, typ, nr, size)
}

// IOWR encodes a command with a buffer in both directions.
func (l Layout) IOWR(typ, nr, size uint32) uint32 {
	return l.Encode(l.Read|l.Write, typ, nr, size)
}

// Decode decodes cmd using the generic layout.
func Decode(cmd uint32) Direction { return Generic.Decode(cmd) }

// IO encodes a generic-layout command without a buffer.
func IO(typ, nr uint32) uint32 { return Generic.IO(typ, nr) }

// IOR encodes a generic-layout read command.
func IOR(typ, nr, size uint32) uint32 { return Generic.IOR(typ, nr, size) }

// IOW encodes a generic-layout write command.
func IOW(typ, nr, size uint32) uint32 { return Generic.IOW(typ, nr, size) }

// IOWR encodes a generic-layout read-write command.
func IOWR(typ, nr, size uint32) uint32 { return Generic.IOWR(typ, nr, size) }
