package codec

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"

	"github.com/roach88/lzrecv/internal/ir"
)

// Opcode is the first byte of an opcode/counter body.
type Opcode uint8

const (
	// OpIncrement adds its argument to the counter; zero means one.
	OpIncrement Opcode = 1

	// OpAck acknowledges a counter value and has no local effect.
	OpAck Opcode = 2
)

// CounterLen is the exact length of an opcode/counter body.
const CounterLen = 9

func (o Opcode) String() string {
	switch o {
	case OpIncrement:
		return "INCREMENT"
	case OpAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Counter is an opcode/counter body.
type Counter struct {
	Opcode Opcode
	Value  uint64
}

// Kind implements Message.
func (Counter) Kind() Kind { return KindCounter }

// IncrementBy returns the amount an INCREMENT adds to the counter.
func (c Counter) IncrementBy() uint64 {
	if c.Value == 0 {
		return 1
	}
	return c.Value
}

// EncodeCounter encodes an opcode and its argument.
func EncodeCounter(op Opcode, value uint64) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	// Writes into a bytes.Buffer cannot fail.
	_ = enc.WriteUint8(uint8(op))
	_ = enc.WriteUint64(value, binary.LittleEndian)
	return buf.Bytes()
}

// EncodeAck encodes the acknowledgement for a new counter value.
func EncodeAck(counter uint64) []byte {
	return EncodeCounter(OpAck, counter)
}

// DecodeCounter decodes an opcode/counter body. Unknown opcodes are
// rejected so a body never half-matches this format.
func DecodeCounter(body []byte) (Counter, error) {
	if len(body) < CounterLen {
		return Counter{}, ir.Errorf(ir.ErrCodeInvalidLength,
			"counter body is %d bytes, need %d", len(body), CounterLen)
	}
	dec := bin.NewBorshDecoder(body)
	op, err := dec.ReadUint8()
	if err != nil {
		return Counter{}, ir.Errorf(ir.ErrCodeInvalidLength, "read opcode: %v", err)
	}
	value, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return Counter{}, ir.Errorf(ir.ErrCodeInvalidLength, "read value: %v", err)
	}
	switch Opcode(op) {
	case OpIncrement, OpAck:
	default:
		return Counter{}, ir.Errorf(ir.ErrCodeInvalidMessageType, "unknown opcode %d", op)
	}
	return Counter{Opcode: Opcode(op), Value: value}, nil
}
