package controlplane

import "github.com/openctrol/agent/internal/capture"

const frameChannelCapacity = 10

// frameSubscriber is a capture.FrameSink backed by a bounded channel
// with drop-oldest semantics on overflow, so a slow peer never blocks
// the capture engine's publish loop.
type frameSubscriber struct {
	frames chan capture.RemoteFrame
}

func newFrameSubscriber() *frameSubscriber {
	return &frameSubscriber{frames: make(chan capture.RemoteFrame, frameChannelCapacity)}
}

// PublishFrame implements capture.FrameSink. It must not block: a full
// channel drops its oldest queued frame to make room for the new one.
func (f *frameSubscriber) PublishFrame(frame capture.RemoteFrame) {
	select {
	case f.frames <- frame:
		return
	default:
	}

	select {
	case <-f.frames:
	default:
	}

	select {
	case f.frames <- frame:
	default:
	}
}
