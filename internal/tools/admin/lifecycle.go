package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/engine"
)

func stringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func registerStart(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("start_simulation",
			mcp.WithDescription("Start (or restart) the simulation: seeds randomness, activates the chosen roster, and kicks off an initial project plan."),
			mcp.WithString("project_name", mcp.Description("Name of the single project to seed (this tool always seeds a single project)")),
			mcp.WithString("project_summary", mcp.Description("One-paragraph summary of the project's goal")),
			mcp.WithNumber("total_duration_weeks", mcp.Description("Total simulation length in weeks")),
			mcp.WithString("department_head_name", mcp.Description("Persona name to treat as department head")),
			mcp.WithString("model_hint", mcp.Description("Model hint string forwarded to the planner")),
			mcp.WithArray("include_person_names", mcp.Description("Limit the active roster to exactly these persona names")),
			mcp.WithArray("exclude_person_names", mcp.Description("Activate every persona except these names")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			req2 := &engine.StartRequest{
				ProjectName:         stringArg(args, "project_name"),
				ProjectSummary:      stringArg(args, "project_summary"),
				DepartmentHeadName:  stringArg(args, "department_head_name"),
				ModelHint:           stringArg(args, "model_hint"),
				IncludePersonNames:  stringSlice(args, "include_person_names"),
				ExcludePersonNames:  stringSlice(args, "exclude_person_names"),
			}
			if v, ok := args["total_duration_weeks"].(float64); ok {
				req2.TotalDurationWeeks = int(v)
			}

			st, err := eng.Start(ctx, req2)
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: simulation started at tick %d", st.CurrentTick)
			return mcp.NewToolResultText(fmt.Sprintf("started: tick=%d sim_time=%s running=%t", st.CurrentTick, st.SimTime, st.IsRunning)), nil
		},
	)
}

func registerStop(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("stop_simulation",
			mcp.WithDescription("Stop the simulation and persist a final simulation report."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			st, err := eng.Stop(ctx)
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: simulation stopped at tick %d", st.CurrentTick)
			return mcp.NewToolResultText(fmt.Sprintf("stopped: tick=%d sim_time=%s", st.CurrentTick, st.SimTime)), nil
		},
	)
}

func registerReset(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("reset_simulation",
			mcp.WithDescription("Reset all derived simulation state (tick, plans, events, exchange log) back to tick zero, keeping personas."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			st, err := eng.Reset()
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: simulation reset")
			return mcp.NewToolResultText(fmt.Sprintf("reset: tick=%d running=%t", st.CurrentTick, st.IsRunning)), nil
		},
	)
}

func registerResetFull(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("reset_simulation_full",
			mcp.WithDescription("Reset all derived simulation state AND delete every persona, returning to an empty roster."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			st, err := eng.ResetFull()
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: simulation reset full")
			return mcp.NewToolResultText(fmt.Sprintf("reset_full: tick=%d running=%t", st.CurrentTick, st.IsRunning)), nil
		},
	)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
