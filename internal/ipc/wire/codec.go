package wire

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolVersion is negotiated in the Hello exchange. Bumped on any
// incompatible message change.
const ProtocolVersion = 1

// HeaderSize is the fixed message header length in bytes.
const HeaderSize = 12

// MaxMessageSize bounds a single message so a corrupt length field cannot
// make the agent buffer unbounded data.
const MaxMessageSize = 16 << 20

// Header is the fixed prefix of every message. Size counts the whole
// message including the header itself.
type Header struct {
	Type          MsgType
	Size          uint32
	TransactionID uint32
}

// encMode uses Core Deterministic Encoding so identical payloads always
// produce identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields for forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// DecodeHeader parses the fixed header from buf, which must hold at
// least HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("header needs %d bytes, have %d", HeaderSize, len(buf))
	}
	h := Header{
		Type:          MsgType(binary.LittleEndian.Uint32(buf[0:4])),
		Size:          binary.LittleEndian.Uint32(buf[4:8]),
		TransactionID: binary.LittleEndian.Uint32(buf[8:12]),
	}
	if h.Size < HeaderSize {
		return Header{}, fmt.Errorf("message size %d smaller than header", h.Size)
	}
	if h.Size > MaxMessageSize {
		return Header{}, fmt.Errorf("message size %d exceeds limit %d", h.Size, MaxMessageSize)
	}
	return h, nil
}

// EncodeMessage serializes a complete message: header plus CBOR payload.
func EncodeMessage(msgType MsgType, transactionID uint32, payload any) ([]byte, error) {
	body, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	total := HeaderSize + len(body)
	if total > MaxMessageSize {
		return nil, fmt.Errorf("%s message size %d exceeds limit %d", msgType, total, MaxMessageSize)
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(msgType))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(total))
	binary.LittleEndian.PutUint32(buf[8:12], transactionID)
	copy(buf[HeaderSize:], body)
	return buf, nil
}

// DecodePayload deserializes the CBOR payload bytes (the message after
// its header) into out.
func DecodePayload(body []byte, out any) error {
	return decMode.Unmarshal(body, out)
}
