package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/engine"
)

func registerGetState(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_simulation_state",
			mcp.WithDescription("Read the current simulation state: tick, running/auto-tick flags, and sim time."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			st, err := eng.GetState()
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(fmt.Sprintf(
				"tick=%d running=%t auto_tick=%t sim_time=%s", st.CurrentTick, st.IsRunning, st.AutoTick, st.SimTime,
			)), nil
		},
	)
}

func registerGetAutoPauseStatus(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_auto_pause_status",
			mcp.WithDescription("Report whether the simulation should auto-pause right now (no active or upcoming project work)."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			st, err := eng.GetState()
			if err != nil {
				return nil, err
			}
			status, err := eng.GetAutoPauseStatus(st.CurrentTick)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(fmt.Sprintf(
				"enabled=%t should_pause=%t active_projects=%d future_projects=%d week=%d day=%d reason=%q",
				status.Enabled, status.ShouldPause, status.ActiveProjectsCount, status.FutureProjectsCount,
				status.CurrentWeek, status.CurrentDay, status.Reason,
			)), nil
		},
	)
}

func registerStartAutoTicks(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("start_auto_ticks",
			mcp.WithDescription("Start the background loop that calls advance_ticks once per configured tick interval until stopped or auto-paused."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if err := eng.StartAutoTicks(ctx); err != nil {
				return nil, err
			}
			logger.Printf("admin: auto-tick loop started")
			return mcp.NewToolResultText("auto ticks started"), nil
		},
	)
}

func registerStopAutoTicks(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("stop_auto_ticks",
			mcp.WithDescription("Stop the background auto-tick loop without generating a report."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			st, err := eng.StopAutoTicks()
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: auto-tick loop stopped at tick %d", st.CurrentTick)
			return mcp.NewToolResultText(fmt.Sprintf("auto ticks stopped: tick=%d", st.CurrentTick)), nil
		},
	)
}
