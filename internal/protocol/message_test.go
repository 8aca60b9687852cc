package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStatus(t *testing.T) {
	data := []byte(`{
		"type": "status",
		"proto_version": 1,
		"peer_id": "cam-1",
		"session_id": "sess-1",
		"payload": {
			"battery": 0.83,
			"temperature": 38.5,
			"free_space_bytes": 1073741824,
			"recording": true,
			"signal_dbm": -41
		}
	}`)

	msg, err := Decode(data)
	assert.Nil(t, err)

	status, ok := msg.(*Status)
	assert.True(t, ok)
	assert.Equal(t, StatusKind, status.GetKind())
	assert.Equal(t, "cam-1", status.GetPeerID())
	assert.Equal(t, "sess-1", status.GetSessionID())
	assert.Equal(t, 0.83, status.Payload.Battery)
	assert.Equal(t, true, status.Payload.Recording)
	assert.Equal(t, int64(1073741824), status.Payload.FreeSpaceBytes)
}

func TestDecodePairRequest(t *testing.T) {
	data := []byte(`{
		"type": "pair_request",
		"proto_version": 1,
		"peer_id": "cam-2",
		"payload": {"token": "ab12cd", "device_name": "Pixel 8"}
	}`)

	msg, err := Decode(data)
	assert.Nil(t, err)

	req, ok := msg.(*PairRequest)
	assert.True(t, ok)
	assert.Equal(t, "ab12cd", req.Payload.Token)
	assert.Equal(t, "Pixel 8", req.Payload.DeviceName)
}

func TestDecodeClipReady(t *testing.T) {
	data := []byte(`{
		"type": "clip_ready",
		"proto_version": 1,
		"peer_id": "cam-1",
		"payload": {
			"clip_id": "clip-7",
			"url": "http://192.168.1.20:8990/clips/clip-7.mp4",
			"duration_ms": 24000,
			"size_bytes": 9000000
		}
	}`)

	msg, err := Decode(data)
	assert.Nil(t, err)

	ready, ok := msg.(*ClipReady)
	assert.True(t, ok)
	assert.Equal(t, "clip-7", ready.Payload.ClipID)
	assert.Equal(t, int64(24000), ready.Payload.DurationMs)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type": "telepathy", "proto_version": 1}`))
	assert.Equal(t, ErrUnknownKind, err)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Equal(t, ErrMalformedMessage, err)

	_, err = Decode([]byte(`{"type": "status", "payload": "not-an-object"}`))
	assert.Equal(t, ErrMalformedMessage, err)
}

func TestRoundTripMarkCommand(t *testing.T) {
	cmd := NewMarkCommand("sess-1", MarkPayload{MarkID: "m-1", Label: "Fall", TsMs: 1234})

	data, err := cmd.ToJSON()
	assert.Nil(t, err)

	msg, err := Decode(data)
	assert.Nil(t, err)

	decoded, ok := msg.(*MarkCommand)
	assert.True(t, ok)
	assert.Equal(t, Version, decoded.ProtoVersion)
	assert.Equal(t, "sess-1", decoded.GetSessionID())
	assert.Equal(t, "Fall", decoded.Payload.Label)
}

func TestRoundTripStopRecordHasNoPayload(t *testing.T) {
	data, err := NewStopRecord("sess-9").ToJSON()
	assert.Nil(t, err)

	msg, err := Decode(data)
	assert.Nil(t, err)
	assert.Equal(t, StopRecordKind, msg.GetKind())
	assert.Equal(t, "sess-9", msg.GetSessionID())
}
