// Package admin exposes the Engine Coordinator's control surface as MCP
// tools, so an operator (or an LLM driving the operator's side of the
// simulation) can start, advance, reset, rewind, and intervene in a running
// simulation the same way a human would through a CLI. Grounded on the
// teacher's internal/tools/collab package: one Register entrypoint calling
// many small per-tool registerXxx helpers, each building an mcp.NewTool and
// a closure handler over the shared collaborator (here, *engine.Engine
// instead of *app.CollabService).
package admin

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/engine"
)

// RegisterOption configures optional registration behavior.
type RegisterOption func(*registerOpts)

type registerOpts struct {
	autoTickCtl bool
}

// WithAutoTickControl enables the start_auto_ticks/stop_auto_ticks tools.
// Disabled by default since not every host process runs its own background
// tick loop (some only ever call advance_ticks explicitly).
func WithAutoTickControl() RegisterOption {
	return func(o *registerOpts) { o.autoTickCtl = true }
}

// Register registers every admin tool against the running Engine.
func Register(s *server.MCPServer, eng *engine.Engine, logger *log.Logger, opts ...RegisterOption) {
	if logger == nil {
		logger = log.Default()
	}
	var o registerOpts
	for _, opt := range opts {
		opt(&o)
	}

	// Lifecycle tools (4)
	registerStart(s, eng, logger)
	registerStop(s, eng, logger)
	registerReset(s, eng, logger)
	registerResetFull(s, eng, logger)

	// Advance/replay tools (3)
	registerAdvance(s, eng, logger)
	registerRewind(s, eng, logger)
	registerReplay(s, eng, logger)

	// Event tools (2)
	registerInjectEvent(s, eng, logger)
	registerListEvents(s, eng, logger)

	// Status override tools (3)
	registerSetStatusOverride(s, eng, logger)
	registerClearStatusOverride(s, eng, logger)
	registerListStatusOverrides(s, eng, logger)

	// Observability tools (2)
	registerGetState(s, eng, logger)
	registerGetAutoPauseStatus(s, eng, logger)

	if o.autoTickCtl {
		registerStartAutoTicks(s, eng, logger)
		registerStopAutoTicks(s, eng, logger)
	}
}
