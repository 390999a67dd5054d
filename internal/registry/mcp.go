package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolSchema is the subset of a tool's JSON input schema the registry
// needs: parameter names, types, and which are required.
type toolSchema struct {
	Properties map[string]struct {
		Type string `json:"type"`
	} `json:"properties"`
	Required []string `json:"required"`
}

// PopulateFromMCP spawns each configured MCP server over stdio, lists its
// tools, and registers every tool as a capability whose invoke function
// calls back into the session. Sessions stay open for the life of the
// registry; Close shuts them down.
func PopulateFromMCP(ctx context.Context, r *Registry, cfg *Config) (func() error, error) {
	var sessions []*mcpsdk.ClientSession
	closeAll := func() error {
		var first error
		for _, s := range sessions {
			if err := s.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, srv := range cfg.Servers {
		client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "planguard", Version: "1.0"}, nil)
		transport := &mcpsdk.CommandTransport{Command: exec.Command(srv.Command, srv.Args...)}
		session, err := client.Connect(ctx, transport, nil)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to connect MCP server %q: %w", srv.Name, err)
		}
		sessions = append(sessions, session)

		tools, err := session.ListTools(ctx, &mcpsdk.ListToolsParams{})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to list tools of MCP server %q: %w", srv.Name, err)
		}
		for _, tool := range tools.Tools {
			cap, err := capabilityFromTool(session, tool, cfg.overrideFor(tool.Name))
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("MCP server %q tool %q: %w", srv.Name, tool.Name, err)
			}
			if err := r.Register(cap); err != nil {
				closeAll()
				return nil, err
			}
		}
	}
	return closeAll, nil
}

func capabilityFromTool(session *mcpsdk.ClientSession, tool *mcpsdk.Tool, ov *Override) (*Capability, error) {
	params, err := paramsFromSchema(tool.InputSchema)
	if err != nil {
		return nil, err
	}
	cap := &Capability{
		Name:        tool.Name,
		Description: tool.Description,
		Params:      params,
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool.Name, Arguments: args})
			if err != nil {
				return nil, err
			}
			return decodeToolResult(result)
		},
	}
	if ov != nil {
		cap.Trusted = ov.Trusted
		if ov.ContentParam != "" {
			if p := cap.Param(ov.ContentParam); p != nil {
				p.Content = true
			}
		}
	}
	return cap, nil
}

// paramsFromSchema flattens a tool's input schema into ParamSpecs,
// required parameters first so positional script arguments map sensibly.
func paramsFromSchema(schema any) ([]ParamSpec, error) {
	if schema == nil {
		return nil, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("unusable input schema: %w", err)
	}
	var ts toolSchema
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("unusable input schema: %w", err)
	}
	required := map[string]bool{}
	for _, name := range ts.Required {
		required[name] = true
	}
	names := make([]string, 0, len(ts.Properties))
	for name := range ts.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})
	params := make([]ParamSpec, 0, len(names))
	for _, name := range names {
		params = append(params, ParamSpec{
			Name:     name,
			Type:     ts.Properties[name].Type,
			Required: required[name],
		})
	}
	return params, nil
}

// decodeToolResult prefers structured content; text content is joined
// and, when it parses as JSON, decoded so scripts see real values.
func decodeToolResult(result *mcpsdk.CallToolResult) (any, error) {
	if result.IsError {
		return nil, fmt.Errorf("tool returned error: %s", textOf(result))
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	text := textOf(result)
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}
	return text, nil
}

func textOf(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
