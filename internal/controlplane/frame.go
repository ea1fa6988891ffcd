package controlplane

import (
	"encoding/binary"
	"fmt"

	"github.com/openctrol/agent/internal/capture"
)

const frameMagic = "OFRA"

const formatTagJPEG int32 = 1

// encodeFrame serializes a capture.RemoteFrame into its binary wire
// format: a 4-byte ASCII magic, width, height, format tag (all
// little-endian int32), then the payload.
func encodeFrame(f capture.RemoteFrame) ([]byte, error) {
	var formatTag int32
	switch f.Format {
	case "jpeg":
		formatTag = formatTagJPEG
	default:
		return nil, fmt.Errorf("controlplane: unknown frame format %q", f.Format)
	}

	buf := make([]byte, 16+len(f.Payload))
	copy(buf[0:4], frameMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.Width))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.Height))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(formatTag))
	copy(buf[16:], f.Payload)
	return buf, nil
}
