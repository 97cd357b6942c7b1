package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/engine"
)

func registerAdvance(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("advance_ticks",
			mcp.WithDescription("Advance the simulation by one or more ticks, running planning, events, and comm dispatch for each."),
			mcp.WithNumber("ticks", mcp.Description("Number of ticks to advance (default 1)")),
			mcp.WithString("reason", mcp.Description("Reason recorded in the tick log (e.g. 'manual', 'auto')")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			ticks := 1
			if v, ok := args["ticks"].(float64); ok && v > 0 {
				ticks = int(v)
			}
			reason := stringArg(args, "reason")
			if reason == "" {
				reason = "manual"
			}

			result, err := eng.Advance(ctx, ticks, reason)
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: advanced %d tick(s) to %d", result.TicksAdvanced, result.CurrentTick)
			return mcp.NewToolResultText(fmt.Sprintf(
				"advanced %d tick(s): current_tick=%d sim_time=%s emails_sent=%d chats_sent=%d",
				result.TicksAdvanced, result.CurrentTick, result.SimTime, result.EmailsSent, result.ChatMessagesSent,
			)), nil
		},
	)
}

func registerRewind(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("rewind_simulation",
			mcp.WithDescription("Discard every derived record generated after cutoff_tick (plans, summaries, reports, exchange log, events) and rewrite current_tick back to it."),
			mcp.WithNumber("cutoff_tick", mcp.Required(), mcp.Description("Tick to rewind to")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			v, ok := args["cutoff_tick"].(float64)
			if !ok {
				return nil, fmt.Errorf("cutoff_tick is required")
			}

			st, err := eng.Rewind(int(v))
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: rewound to tick %d", st.CurrentTick)
			return mcp.NewToolResultText(fmt.Sprintf("rewound: tick=%d sim_time=%s", st.CurrentTick, st.SimTime)), nil
		},
	)
}

func registerReplay(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("replay_simulation",
			mcp.WithDescription("List every accepted send (email or chat) up to and including up_to_tick, oldest first."),
			mcp.WithNumber("up_to_tick", mcp.Required(), mcp.Description("Replay window upper bound, in ticks")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			v, ok := args["up_to_tick"].(float64)
			if !ok {
				return nil, fmt.Errorf("up_to_tick is required")
			}

			events, err := eng.Replay(int(v))
			if err != nil {
				return nil, err
			}
			if len(events) == 0 {
				return mcp.NewToolResultText("no exchanges in this window"), nil
			}

			out := ""
			for _, e := range events {
				out += fmt.Sprintf("tick=%d %s %d->%d %q: %s\n", e.Tick, e.Channel, e.SenderID, e.RecipientID, e.Subject, e.Body)
			}
			return mcp.NewToolResultText(out), nil
		},
	)
}
