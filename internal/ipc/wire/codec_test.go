package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeader(t *testing.T) {
	msg, err := EncodeMessage(MsgAttach, 42, &AttachRequest{Koid: 1234})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(msg), HeaderSize)

	h, err := DecodeHeader(msg)
	require.NoError(t, err)
	assert.Equal(t, MsgAttach, h.Type)
	assert.Equal(t, uint32(42), h.TransactionID)
	assert.Equal(t, uint32(len(msg)), h.Size, "size must include the header")

	var req AttachRequest
	require.NoError(t, DecodePayload(msg[HeaderSize:], &req))
	assert.Equal(t, uint64(1234), req.Koid)
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestDecodeHeaderBadSize(t *testing.T) {
	msg, err := EncodeMessage(MsgHello, 1, &HelloRequest{})
	require.NoError(t, err)

	// Corrupt the size field to be smaller than the header.
	msg[4], msg[5], msg[6], msg[7] = 3, 0, 0, 0
	_, err = DecodeHeader(msg)
	assert.Error(t, err)
}

func TestDecodeHeaderOversized(t *testing.T) {
	msg, err := EncodeMessage(MsgHello, 1, &HelloRequest{})
	require.NoError(t, err)

	// Corrupt the size field beyond the limit.
	msg[4], msg[5], msg[6], msg[7] = 0xFF, 0xFF, 0xFF, 0x7F
	_, err = DecodeHeader(msg)
	assert.Error(t, err)
}

func TestBreakpointSettingsRoundTrip(t *testing.T) {
	settings := BreakpointSettings{
		ID:      7,
		Kind:    BreakpointWatchpoint,
		OneShot: true,
		Locations: []BreakpointLocation{
			{ProcessKoid: 100, Range: AddressRange{Begin: 0x1000, End: 0x1008}},
			{ProcessKoid: 200, Address: 0x2000},
		},
	}

	msg, err := EncodeMessage(MsgAddOrChangeBreakpoint, 9, &AddOrChangeBreakpointRequest{Breakpoint: settings})
	require.NoError(t, err)

	var req AddOrChangeBreakpointRequest
	require.NoError(t, DecodePayload(msg[HeaderSize:], &req))
	assert.Equal(t, settings, req.Breakpoint)
}

func TestNotifyTypes(t *testing.T) {
	assert.True(t, MsgNotifyException.IsNotify())
	assert.True(t, MsgNotifyLog.IsNotify())
	assert.False(t, MsgAttach.IsNotify())
	assert.False(t, MsgQuitAgent.IsNotify())
}

func TestMsgTypeStrings(t *testing.T) {
	assert.Equal(t, "AddOrChangeBreakpoint", MsgAddOrChangeBreakpoint.String())
	assert.Equal(t, "NotifyProcessStarting", MsgNotifyProcessStarting.String())
	assert.Equal(t, "Unknown", MsgType(0xDEAD).String())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", OkStatus().String())
	s := NewStatus(ErrNotFound, "process %d", 5)
	assert.Equal(t, "not found: process 5", s.String())
	assert.False(t, s.Ok())
}
