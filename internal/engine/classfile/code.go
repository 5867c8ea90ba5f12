package classfile

import (
	"encoding/binary"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// Opcodes with constant pool operands.
const (
	opLdc             = 0x12
	opLdcW            = 0x13
	opLdc2W           = 0x14
	opGetstatic       = 0xb2
	opPutstatic       = 0xb3
	opGetfield        = 0xb4
	opPutfield        = 0xb5
	opInvokevirtual   = 0xb6
	opInvokespecial   = 0xb7
	opInvokestatic    = 0xb8
	opInvokeinterface = 0xb9
	opInvokedynamic   = 0xba
	opNew             = 0xbb
	opAnewarray       = 0xbd
	opCheckcast       = 0xc0
	opInstanceof      = 0xc1
	opMultianewarray  = 0xc5

	opTableswitch  = 0xaa
	opLookupswitch = 0xab
	opWide         = 0xc4
	opIinc         = 0x84
)

// Instruction is one decoded bytecode instruction. Const is the constant
// pool operand, or zero when the instruction has none.
type Instruction struct {
	Offset int
	Op     uint8
	Const  uint16
}

// operandSize returns the operand length of the fixed-size opcode op.
func operandSize(op uint8) (int, bool) {
	switch {
	case op == 0x10, op == opLdc, op >= 0x15 && op <= 0x19, op >= 0x36 && op <= 0x3a, op == 0xa9, op == 0xbc:
		return 1, true
	case op == 0x11, op == opLdcW, op == opLdc2W, op == opIinc, op >= 0x99 && op <= 0xa8,
		op >= opGetstatic && op <= opInvokestatic, op == opNew, op == opAnewarray,
		op == opCheckcast, op == opInstanceof, op == 0xc6, op == 0xc7:
		return 2, true
	case op == opMultianewarray:
		return 3, true
	case op == opInvokeinterface, op == opInvokedynamic, op == 0xc8, op == 0xc9:
		return 4, true
	case op <= 0xc9 && op != opTableswitch && op != opLookupswitch && op != opWide:
		return 0, true
	}
	return 0, false
}

// Instructions decodes the bytecode of a Code attribute body.
func Instructions(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pos := 0; pos < len(code); {
		ins, next, err := decodeInstruction(code, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
		pos = next
	}
	return out, nil
}

func decodeInstruction(code []byte, pos int) (Instruction, int, error) {
	op := code[pos]
	ins := Instruction{Offset: pos, Op: op}
	invalid := zerr.With(zerr.With(domain.ErrInvalidClassFile, "opcode", op), "offset", pos)

	var next int
	switch op {
	case opTableswitch, opLookupswitch:
		base := pos + 1 + (3-pos%4)%4
		if base+8 > len(code) {
			return ins, 0, invalid
		}
		if op == opTableswitch {
			if base+12 > len(code) {
				return ins, 0, invalid
			}
			low := int32(binary.BigEndian.Uint32(code[base+4:]))  //nolint:gosec // signed operand
			high := int32(binary.BigEndian.Uint32(code[base+8:])) //nolint:gosec // signed operand
			if high < low {
				return ins, 0, invalid
			}
			next = base + 12 + 4*int(int64(high)-int64(low)+1)
		} else {
			pairs := int32(binary.BigEndian.Uint32(code[base+4:])) //nolint:gosec // signed operand
			if pairs < 0 {
				return ins, 0, invalid
			}
			next = base + 8 + 8*int(pairs)
		}
	case opWide:
		if pos+1 >= len(code) {
			return ins, 0, invalid
		}
		next = pos + 4
		if code[pos+1] == opIinc {
			next = pos + 6
		}
	default:
		n, ok := operandSize(op)
		if !ok {
			return ins, 0, invalid
		}
		next = pos + 1 + n
	}
	if next > len(code) {
		return ins, 0, invalid
	}

	switch constOperand(op) {
	case 1:
		ins.Const = uint16(code[pos+1])
	case 2:
		ins.Const = binary.BigEndian.Uint16(code[pos+1:])
	}
	return ins, next, nil
}

// constOperand returns the width of the constant pool operand of op, or
// zero when op has none.
func constOperand(op uint8) int {
	switch op {
	case opLdc:
		return 1
	case opLdcW, opLdc2W, opGetstatic, opPutstatic, opGetfield, opPutfield,
		opInvokevirtual, opInvokespecial, opInvokestatic, opInvokeinterface, opInvokedynamic,
		opNew, opAnewarray, opCheckcast, opInstanceof, opMultianewarray:
		return 2
	}
	return 0
}

// Code is a decoded Code attribute. Attributes index the pool of the class
// the code was read from.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Bytecode   []byte
	Handlers   []Handler
	Attributes []*Attribute
}

// Handler is one exception table row. CatchType is zero for finally blocks.
type Handler struct {
	Start, End, Target uint16
	CatchType          uint16
}

// ParseCode decodes the body of a Code attribute.
func ParseCode(data []byte) (*Code, error) {
	r := newReader(data)
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Bytecode = r.bytes(int(r.u4()))
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		c.Handlers = append(c.Handlers, Handler{Start: r.u2(), End: r.u2(), Target: r.u2(), CatchType: r.u2()})
	}
	c.Attributes = parseAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if !r.done() {
		return nil, zerr.With(domain.ErrInvalidClassFile, "reason", "trailing bytes in code")
	}
	return c, nil
}

func (c *Code) encode() ([]byte, error) {
	w := &writer{}
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Bytecode))) //nolint:gosec // bounded by the input attribute
	w.raw(c.Bytecode)
	w.u2(uint16(len(c.Handlers))) //nolint:gosec // bounded by the input attribute
	for _, h := range c.Handlers {
		w.u2(h.Start)
		w.u2(h.End)
		w.u2(h.Target)
		w.u2(h.CatchType)
	}
	if err := encodeAttributes(w, c.Attributes); err != nil {
		return nil, err
	}
	return w.buf, nil
}
