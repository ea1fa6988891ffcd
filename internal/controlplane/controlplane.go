// Package controlplane exposes the agent's REST and websocket surface:
// health, session lifecycle, power actions, the audio pass-through, and
// the /ws/desktop frame stream, over plain net/http rather than a
// router framework.
package controlplane

import (
	"github.com/openctrol/agent/internal/audio"
	"github.com/openctrol/agent/internal/logging"
)

var log = logging.L("controlplane")

// AudioProvider is the external audio collaborator's contract. The
// control surface only forwards requests to it; it owns none of the
// audio logic itself, treating audio as a pass-through concern.
type AudioProvider = audio.Provider

// PowerExecutor performs the host power actions POST /api/v1/power
// dispatches to.
type PowerExecutor interface {
	Restart() error
	Shutdown() error
}
