package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/engine"
)

func registerSetStatusOverride(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("set_status_override",
			mcp.WithDescription("Mark a persona unavailable (e.g. vacation, sick leave) through a given tick; overridden personas are skipped during planning and dispatch."),
			mcp.WithNumber("worker_id", mcp.Required(), mcp.Description("Persona ID")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Override status, e.g. 'Vacation', 'SickLeave'")),
			mcp.WithNumber("until_tick", mcp.Required(), mcp.Description("Tick the override expires at")),
			mcp.WithString("reason", mcp.Description("Free-text reason recorded alongside the override")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			workerID, ok := args["worker_id"].(float64)
			if !ok {
				return nil, fmt.Errorf("worker_id is required")
			}
			status := stringArg(args, "status")
			if status == "" {
				return nil, fmt.Errorf("status is required")
			}
			untilTick, ok := args["until_tick"].(float64)
			if !ok {
				return nil, fmt.Errorf("until_tick is required")
			}
			reason := stringArg(args, "reason")

			if err := eng.SetStatusOverride(int(workerID), status, int(untilTick), reason); err != nil {
				return nil, err
			}
			logger.Printf("admin: set status override worker=%d status=%s until=%d", int(workerID), status, int(untilTick))
			return mcp.NewToolResultText(fmt.Sprintf("override set for worker %d: %s until tick %d", int(workerID), status, int(untilTick))), nil
		},
	)
}

func registerClearStatusOverride(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("clear_status_override",
			mcp.WithDescription("Remove a persona's status override, making them available again."),
			mcp.WithNumber("worker_id", mcp.Required(), mcp.Description("Persona ID")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			workerID, ok := args["worker_id"].(float64)
			if !ok {
				return nil, fmt.Errorf("worker_id is required")
			}

			if err := eng.ClearStatusOverride(int(workerID)); err != nil {
				return nil, err
			}
			logger.Printf("admin: cleared status override worker=%d", int(workerID))
			return mcp.NewToolResultText(fmt.Sprintf("override cleared for worker %d", int(workerID))), nil
		},
	)
}

func registerListStatusOverrides(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("list_status_overrides",
			mcp.WithDescription("List every persona currently marked unavailable."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			overrides, err := eng.ListStatusOverrides()
			if err != nil {
				return nil, err
			}
			if len(overrides) == 0 {
				return mcp.NewToolResultText("no active overrides"), nil
			}

			out := ""
			for _, o := range overrides {
				out += fmt.Sprintf("worker=%d status=%s until_tick=%d reason=%q\n", o.WorkerID, o.Status, o.UntilTick, o.Reason)
			}
			return mcp.NewToolResultText(out), nil
		},
	)
}
