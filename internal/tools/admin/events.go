package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/engine"
)

func intSlice(args map[string]any, key string) []int {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

func registerInjectEvent(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("inject_event",
			mcp.WithDescription("Inject a custom event (e.g. a blocker or client feature request) at a given tick, targeting one or more personas."),
			mcp.WithString("type", mcp.Required(), mcp.Description("Event type, e.g. 'blocker', 'feature_request', 'sick_leave'")),
			mcp.WithNumber("at_tick", mcp.Required(), mcp.Description("Tick the event takes effect at")),
			mcp.WithArray("target_person_ids", mcp.Description("Persona IDs this event targets")),
			mcp.WithNumber("project_id", mcp.Description("Project ID this event is scoped to, if any")),
			mcp.WithString("description", mcp.Description("Free-text description stored in the event payload")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			typ := stringArg(args, "type")
			if typ == "" {
				return nil, fmt.Errorf("type is required")
			}
			atTick, ok := args["at_tick"].(float64)
			if !ok {
				return nil, fmt.Errorf("at_tick is required")
			}

			payload := map[string]any{}
			if desc := stringArg(args, "description"); desc != "" {
				payload["description"] = desc
			}
			projectID := 0
			if v, ok := args["project_id"].(float64); ok {
				projectID = int(v)
			}

			stored, err := eng.InjectEvent(domain.Event{
				Type:      typ,
				TargetIDs: intSlice(args, "target_person_ids"),
				ProjectID: projectID,
				AtTick:    int(atTick),
				Payload:   payload,
			})
			if err != nil {
				return nil, err
			}
			logger.Printf("admin: injected event #%d (%s) at tick %d", stored.ID, stored.Type, stored.AtTick)
			return mcp.NewToolResultText(fmt.Sprintf("injected event #%d", stored.ID)), nil
		},
	)
}

func registerListEvents(s *server.MCPServer, eng *engine.Engine, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("list_events",
			mcp.WithDescription("List stored events, optionally filtered by project or target persona."),
			mcp.WithNumber("project_id", mcp.Description("Only events scoped to this project")),
			mcp.WithNumber("target_person_id", mcp.Description("Only events targeting this persona")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			var projectID, targetID *int
			if v, ok := args["project_id"].(float64); ok {
				id := int(v)
				projectID = &id
			}
			if v, ok := args["target_person_id"].(float64); ok {
				id := int(v)
				targetID = &id
			}

			events, err := eng.ListEvents(projectID, targetID)
			if err != nil {
				return nil, err
			}
			if len(events) == 0 {
				return mcp.NewToolResultText("no events"), nil
			}

			out := ""
			for _, e := range events {
				out += fmt.Sprintf("#%d type=%s at_tick=%d targets=%v project=%d\n", e.ID, e.Type, e.AtTick, e.TargetIDs, e.ProjectID)
			}
			return mcp.NewToolResultText(out), nil
		},
	)
}
