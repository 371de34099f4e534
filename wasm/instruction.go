package wasm

import (
	"fmt"

	"github.com/wippyai/chardev/wasm/internal/binary"
)

// Instruction is one instruction of a function body.
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// LocalImm holds the local index for local.get, local.set and local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// CallImm holds the function index for call.
type CallImm struct {
	FuncIdx uint32
}

// I32Imm holds the value of i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm holds the value of i64.const.
type I64Imm struct {
	Value int64
}

// LocalGet pushes local idx.
func LocalGet(idx uint32) Instruction {
	return Instruction{Opcode: OpLocalGet, Imm: LocalImm{LocalIdx: idx}}
}

// LocalSet pops into local idx.
func LocalSet(idx uint32) Instruction {
	return Instruction{Opcode: OpLocalSet, Imm: LocalImm{LocalIdx: idx}}
}

// Call calls function idx.
func Call(idx uint32) Instruction {
	return Instruction{Opcode: OpCall, Imm: CallImm{FuncIdx: idx}}
}

// I32Const pushes v.
func I32Const(v int32) Instruction {
	return Instruction{Opcode: OpI32Const, Imm: I32Imm{Value: v}}
}

// I64Const pushes v.
func I64Const(v int64) Instruction {
	return Instruction{Opcode: OpI64Const, Imm: I64Imm{Value: v}}
}

// Op is an instruction without immediates.
func Op(opcode byte) Instruction {
	return Instruction{Opcode: opcode}
}

func encodeInstruction(w *binary.Writer, in Instruction) error {
	w.Byte(in.Opcode)
	switch in.Opcode {
	case OpLocalGet, OpLocalSet, OpLocalTee:
		imm, ok := in.Imm.(LocalImm)
		if !ok {
			return fmt.Errorf("wasm: opcode %#x needs LocalImm, got %T", in.Opcode, in.Imm)
		}
		w.WriteU32(imm.LocalIdx)
	case OpCall:
		imm, ok := in.Imm.(CallImm)
		if !ok {
			return fmt.Errorf("wasm: call needs CallImm, got %T", in.Imm)
		}
		w.WriteU32(imm.FuncIdx)
	case OpI32Const:
		imm, ok := in.Imm.(I32Imm)
		if !ok {
			return fmt.Errorf("wasm: i32.const needs I32Imm, got %T", in.Imm)
		}
		w.WriteS64(int64(imm.Value))
	case OpI64Const:
		imm, ok := in.Imm.(I64Imm)
		if !ok {
			return fmt.Errorf("wasm: i64.const needs I64Imm, got %T", in.Imm)
		}
		w.WriteS64(imm.Value)
	case OpUnreachable, OpNop, OpEnd, OpReturn, OpDrop, OpI32WrapI64:
		if in.Imm != nil {
			return fmt.Errorf("wasm: opcode %#x takes no immediate", in.Opcode)
		}
	default:
		return fmt.Errorf("wasm: unsupported opcode %#x", in.Opcode)
	}
	return nil
}

// EncodeInstructions encodes instrs followed by end.
func EncodeInstructions(instrs []Instruction) ([]byte, error) {
	w := binary.NewWriter()
	for _, in := range instrs {
		if err := encodeInstruction(w, in); err != nil {
			return nil, err
		}
	}
	w.Byte(OpEnd)
	return w.Bytes(), nil
}

// MustEncodeInstructions is EncodeInstructions for static code; it panics on
// an invalid instruction.
func MustEncodeInstructions(instrs ...Instruction) []byte {
	code, err := EncodeInstructions(instrs)
	if err != nil {
		panic(err)
	}
	return code
}
