package codec

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"

	"github.com/roach88/lzrecv/internal/ir"
)

// Deposit body layout. Optional fields are present only when the body is
// long enough to hold them.
const (
	DepositMinLen         = 8
	DepositWithAddressLen = DepositMinLen + 20
	DepositWithCorrLen    = DepositWithAddressLen + 32
)

// Deposit is a deposit body.
type Deposit struct {
	Amount        uint64
	Address       *ir.Address20
	CorrelationID *ir.Bytes32
}

// Kind implements Message.
func (Deposit) Kind() Kind { return KindDeposit }

// Originator returns the ledger key for the deposit: the embedded address
// when present, otherwise the low 20 bytes of the envelope sender.
func (d Deposit) Originator(sender ir.Bytes32) ir.Address20 {
	if d.Address != nil {
		return *d.Address
	}
	return ir.Address20FromBytes32(sender)
}

// EncodeDeposit encodes d. A correlation id without an address is encoded
// with a zero address so the offsets stay fixed.
func EncodeDeposit(d Deposit) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	_ = enc.WriteUint64(d.Amount, binary.LittleEndian)
	if d.Address == nil && d.CorrelationID == nil {
		return buf.Bytes()
	}
	var addr ir.Address20
	if d.Address != nil {
		addr = *d.Address
	}
	_ = enc.WriteBytes(addr[:], false)
	if d.CorrelationID != nil {
		_ = enc.WriteBytes(d.CorrelationID[:], false)
	}
	return buf.Bytes()
}

// DecodeDeposit decodes a deposit body, reading each optional field only
// when enough bytes remain.
func DecodeDeposit(body []byte) (Deposit, error) {
	if len(body) < DepositMinLen {
		return Deposit{}, ir.Errorf(ir.ErrCodeInvalidMessageType,
			"deposit body is %d bytes, need at least %d", len(body), DepositMinLen)
	}
	dec := bin.NewBorshDecoder(body)
	amount, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return Deposit{}, ir.Errorf(ir.ErrCodeInvalidMessageType, "read amount: %v", err)
	}
	d := Deposit{Amount: amount}

	if dec.Remaining() >= 20 {
		raw, err := dec.ReadNBytes(20)
		if err != nil {
			return Deposit{}, ir.Errorf(ir.ErrCodeInvalidPayload, "read address: %v", err)
		}
		var addr ir.Address20
		copy(addr[:], raw)
		d.Address = &addr
	}
	if d.Address != nil && dec.Remaining() >= 32 {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return Deposit{}, ir.Errorf(ir.ErrCodeInvalidPayload, "read correlation id: %v", err)
		}
		var corr ir.Bytes32
		copy(corr[:], raw)
		d.CorrelationID = &corr
	}
	return d, nil
}
