package wasm

const (
	// Magic is "\0asm" read as a little-endian uint32.
	Magic uint32 = 0x6D736100
	// Version is the binary format version.
	Version uint32 = 0x01
)

// Section IDs, in the order sections must appear.
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionExport   byte = 7
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Import and export kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value types.
const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// FuncTypeByte introduces a function type.
const FuncTypeByte byte = 0x60

// LimitsHasMax marks limits that carry a maximum.
const LimitsHasMax byte = 0x01

// Opcodes.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpEnd         byte = 0x0B
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpLocalGet    byte = 0x20
	OpLocalSet    byte = 0x21
	OpLocalTee    byte = 0x22
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpI32WrapI64  byte = 0xA7
)

// PageSize is the size of one linear memory page.
const PageSize = 65536
