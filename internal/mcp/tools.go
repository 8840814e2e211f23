package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names exposed by NewServer
const (
	ToolSummarizeURL     = "hobo_summarize_url"
	ToolSearch           = "hobo_search"
	ToolClassify         = "hobo_classify"
	ToolListSchedules    = "hobo_list_schedules"
	ToolScheduleMessage  = "hobo_schedule_message"
	ToolCancelSchedule   = "hobo_cancel_schedule"
	ToolRecentDeliveries = "hobo_recent_deliveries"
)

// NewServer creates an MCP server with all hobojuki tools registered
func NewServer(h *Handler, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "hobojuki-tools",
		Version: version,
	}, nil)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolSummarizeURL,
		Description: "Fetch a web page and summarize it in Japanese. Long pages are reduced in several rounds; notes explain any truncation.",
	}, adapt(h.Summarize))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolSearch,
		Description: "Search the web. Returns ranked results and a numbered text rendering ready to quote.",
	}, adapt(h.Search))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolClassify,
		Description: "Decide whether a question needs a web search or contains a URL, and suggest a search query.",
	}, adapt(h.Classify))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolListSchedules,
		Description: "List scheduled replies that have not fired yet, soonest first.",
	}, adapt(h.ListSchedules))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolScheduleMessage,
		Description: "Schedule a reply for the next occurrence of a time of day. At that time a URL message is summarized and anything else is answered with a web search.",
	}, adapt(h.Schedule))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolCancelSchedule,
		Description: "Cancel a scheduled reply by ID.",
	}, adapt(h.CancelSchedule))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolRecentDeliveries,
		Description: "Show recent reply and scheduled delivery outcomes, newest first.",
	}, adapt(h.Deliveries))

	return server
}

// adapt turns a Handler method into a typed tool handler
func adapt[In, Out any](fn func(context.Context, In) Out) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		return nil, fn(ctx, in), nil
	}
}
