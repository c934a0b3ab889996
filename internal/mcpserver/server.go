// Package mcpserver exposes the resource query tool over the Model
// Context Protocol, so external agent hosts can drive cluster
// diagnostics without the built-in conversation loop.
package mcpserver

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kubesage/kubesage/internal/kube"
	"github.com/kubesage/kubesage/internal/tools"
)

// queryInput mirrors the resource query tool's argument schema.
type queryInput struct {
	ResourceType string `json:"resource_type" jsonschema:"The Kubernetes resource kind to query, e.g. pod, deployment, service."`
	Namespace    string `json:"namespace,omitempty" jsonschema:"Namespace to query. Defaults to 'default'. Ignored for cluster-scoped kinds."`
	Name         string `json:"name,omitempty" jsonschema:"Resource name. When set, a single resource is read; otherwise all matching resources are listed."`
}

// Server serves the resource query tool over MCP stdio.
type Server struct {
	server *mcpsdk.Server
	logger *slog.Logger
}

// New creates an MCP server backed by the given dispatcher.
func New(dispatcher *kube.Dispatcher, version string, logger *slog.Logger) *Server {
	impl := &mcpsdk.Implementation{
		Name:    "kubesage",
		Version: version,
	}
	server := mcpsdk.NewServer(impl, nil)

	tool := tools.NewKubernetesQueryTool(dispatcher)
	def := tools.KubernetesQueryDefinition()

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        def.Name,
		Description: def.Description,
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, input queryInput) (*mcpsdk.CallToolResult, any, error) {
		args := map[string]interface{}{
			"resource_type": input.ResourceType,
		}
		if input.Namespace != "" {
			args["namespace"] = input.Namespace
		}
		if input.Name != "" {
			args["name"] = input.Name
		}

		// The tool embeds its error taxonomy in the envelope, so the
		// transport never sees a protocol-level failure.
		out, _ := tool.Execute(ctx, args)
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil, nil
	})

	return &Server{server: server, logger: logger}
}

// Run serves MCP over stdio until the context is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}
