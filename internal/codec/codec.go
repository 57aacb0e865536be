// Package codec encodes and decodes inbound message bodies.
//
// Three wire formats coexist: legacy text, opcode/counter and deposit.
// A deployment runs as one Variant; Classify is the single dispatcher both
// the resolver and the engine use to decide which format a body carries.
//
// Multi-byte integers are fixed width. Text length is big-endian; counter
// values and deposit amounts are little-endian.
package codec

import (
	"fmt"
	"strings"

	"github.com/roach88/lzrecv/internal/ir"
)

// Variant selects which formats a deployment accepts.
type Variant uint8

const (
	// VariantCounter accepts tagged legacy text and opcode/counter bodies.
	VariantCounter Variant = iota + 1

	// VariantDeposit accepts only deposit bodies.
	VariantDeposit
)

func (v Variant) String() string {
	switch v {
	case VariantCounter:
		return "counter"
	case VariantDeposit:
		return "deposit"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant parses a variant name as produced by String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "counter":
		return VariantCounter, nil
	case "deposit":
		return VariantDeposit, nil
	default:
		return 0, fmt.Errorf("unknown variant %q (expected counter or deposit)", s)
	}
}

// Kind identifies a body's wire format.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindCounter
	KindDeposit
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCounter:
		return "counter"
	case KindDeposit:
		return "deposit"
	default:
		return "unknown"
	}
}

// Leading type tags for VariantCounter bodies. The text tag is the first of
// the legacy format's reserved zero bytes.
const (
	TagText      byte = 0x00
	TagIncrement byte = byte(OpIncrement)
	TagAck       byte = byte(OpAck)
)

// Message is a decoded body. It is one of Text, Counter or Deposit.
type Message interface {
	Kind() Kind
}

// Classify returns the format a body carries under variant without decoding
// it. Deposit deployments never consider the other formats.
func Classify(variant Variant, body []byte) (Kind, error) {
	switch variant {
	case VariantDeposit:
		if len(body) < DepositMinLen {
			return 0, ir.Errorf(ir.ErrCodeInvalidMessageType,
				"deposit body is %d bytes, need at least %d", len(body), DepositMinLen)
		}
		return KindDeposit, nil
	case VariantCounter:
		if len(body) == 0 {
			return 0, ir.NewError(ir.ErrCodeInvalidPayload, "empty body")
		}
		switch body[0] {
		case TagText:
			return KindText, nil
		case TagIncrement, TagAck:
			return KindCounter, nil
		default:
			return 0, ir.Errorf(ir.ErrCodeInvalidMessageType, "unknown type tag 0x%02x", body[0])
		}
	default:
		return 0, fmt.Errorf("unknown variant %d", uint8(variant))
	}
}

// Decode classifies body under variant and decodes it.
func Decode(variant Variant, body []byte) (Message, error) {
	kind, err := Classify(variant, body)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindText:
		s, err := DecodeText(body)
		if err != nil {
			return nil, err
		}
		return Text{Value: s}, nil
	case KindCounter:
		return DecodeCounter(body)
	default:
		return DecodeDeposit(body)
	}
}

// Encode is the inverse of Decode for every message kind.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case Text:
		return EncodeText(msg.Value)
	case Counter:
		return EncodeCounter(msg.Opcode, msg.Value), nil
	case Deposit:
		return EncodeDeposit(msg), nil
	default:
		return nil, fmt.Errorf("unsupported message type %T", m)
	}
}
