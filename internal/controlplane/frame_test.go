package controlplane

import (
	"encoding/binary"
	"testing"

	"github.com/openctrol/agent/internal/capture"
)

func TestEncodeFrameWireFormat(t *testing.T) {
	frame := capture.RemoteFrame{
		Width:   1920,
		Height:  1080,
		Format:  "jpeg",
		Payload: []byte{0xFF, 0xD8, 0xFF, 0x00},
	}

	buf, err := encodeFrame(frame)
	if err != nil {
		t.Fatalf("encodeFrame returned error: %v", err)
	}

	if len(buf) != 16+len(frame.Payload) {
		t.Fatalf("expected %d bytes, got %d", 16+len(frame.Payload), len(buf))
	}
	if string(buf[0:4]) != frameMagic {
		t.Errorf("expected magic %q, got %q", frameMagic, buf[0:4])
	}
	if w := binary.LittleEndian.Uint32(buf[4:8]); w != uint32(frame.Width) {
		t.Errorf("expected width %d, got %d", frame.Width, w)
	}
	if h := binary.LittleEndian.Uint32(buf[8:12]); h != uint32(frame.Height) {
		t.Errorf("expected height %d, got %d", frame.Height, h)
	}
	if tag := binary.LittleEndian.Uint32(buf[12:16]); tag != uint32(formatTagJPEG) {
		t.Errorf("expected format tag %d, got %d", formatTagJPEG, tag)
	}
	if string(buf[16:]) != string(frame.Payload) {
		t.Error("expected payload to be copied verbatim")
	}
}

func TestEncodeFrameRejectsUnknownFormat(t *testing.T) {
	frame := capture.RemoteFrame{Width: 1, Height: 1, Format: "png", Payload: []byte{0x01}}

	if _, err := encodeFrame(frame); err == nil {
		t.Error("expected an error for an unsupported frame format")
	}
}
