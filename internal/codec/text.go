package codec

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/roach88/lzrecv/internal/ir"
)

const (
	// TextReservedLen is the number of zero bytes preceding the length.
	TextReservedLen = 28

	// TextOffset is where the UTF-8 payload begins.
	TextOffset = TextReservedLen + 4
)

// Text is a legacy text body.
type Text struct {
	Value string
}

// Kind implements Message.
func (Text) Kind() Kind { return KindText }

// EncodeText encodes s in the legacy text format.
func EncodeText(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, ir.NewError(ir.ErrCodeInvalidUTF8, "text is not valid UTF-8")
	}
	if uint64(len(s)) > uint64(^uint32(0)) {
		return nil, ir.Errorf(ir.ErrCodeInvalidLength, "text is %d bytes, exceeds u32 length", len(s))
	}
	out := make([]byte, TextOffset, TextOffset+len(s))
	binary.BigEndian.PutUint32(out[TextReservedLen:TextOffset], uint32(len(s)))
	return append(out, s...), nil
}

// DecodeText decodes a legacy text body. Bytes beyond the declared length
// are ignored.
func DecodeText(body []byte) (string, error) {
	if len(body) < TextOffset {
		return "", ir.Errorf(ir.ErrCodeInvalidLength,
			"text body is %d bytes, need at least %d", len(body), TextOffset)
	}
	if !bytes.Equal(body[:TextReservedLen], make([]byte, TextReservedLen)) {
		return "", ir.NewError(ir.ErrCodeInvalidPayload, "reserved bytes are not zero")
	}
	n := binary.BigEndian.Uint32(body[TextReservedLen:TextOffset])
	if uint64(n) > uint64(len(body)-TextOffset) {
		return "", ir.Errorf(ir.ErrCodeBodyTooShort,
			"declared length %d exceeds remaining %d bytes", n, len(body)-TextOffset)
	}
	raw := body[TextOffset : TextOffset+int(n)]
	if !utf8.Valid(raw) {
		return "", ir.NewError(ir.ErrCodeInvalidUTF8, "text is not valid UTF-8")
	}
	return string(raw), nil
}
