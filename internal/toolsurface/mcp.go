// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers the four SOP tools on mcpServer as MCP-shaped
// tool definitions, so an external agent runtime can call them over the
// Model Context Protocol without any additional transformation.
func RegisterTools(mcpServer *mcpserver.MCPServer, surface *Surface) {
	mcpServer.AddTool(mcp.Tool{
		Name:        "sop_execute",
		Description: "Start a run of the named SOP. Optionally attach a free-form payload carried through to the rendered step context.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the SOP to execute, as it appears in the catalogue",
				},
				"payload": map[string]interface{}{
					"type":        "string",
					"description": "Opaque trigger payload, rendered verbatim into the step context",
				},
			},
			Required: []string{"name"},
		},
	}, surface.handleExecute)

	mcpServer.AddTool(mcp.Tool{
		Name:        "sop_advance",
		Description: "Report the outcome of the run's current step and advance it, or terminate the run if this was the last step or the step failed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "The run to advance, e.g. run-000001",
				},
				"status": map[string]interface{}{
					"type":        "string",
					"description": "Outcome of the current step",
					"enum":        []string{"completed", "failed", "skipped"},
				},
				"output": map[string]interface{}{
					"type":        "string",
					"description": "Short free-form text describing the step outcome",
				},
			},
			Required: []string{"run_id", "status", "output"},
		},
	}, surface.handleAdvance)

	mcpServer.AddTool(mcp.Tool{
		Name:        "sop_approve",
		Description: "Approve the run's current step, releasing it from waiting_approval back into execution.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "The run waiting for approval",
				},
			},
			Required: []string{"run_id"},
		},
	}, surface.handleApprove)

	mcpServer.AddTool(mcp.Tool{
		Name:        "sop_status",
		Description: "Read-only: a single run's full summary, or a list of active and recently finished runs.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "If set, return this run's full summary instead of a list",
				},
				"sop_name": map[string]interface{}{
					"type":        "string",
					"description": "If set (and run_id is not), filter the active and finished run lists to this SOP",
				},
			},
		},
	}, surface.handleStatus)
}

func (s *Surface) handleExecute(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("sop_execute: %w", err)
	}
	payload := request.GetString("payload", "")

	result, err := s.Execute(ExecuteParams{Name: name, Payload: payload})
	if err != nil {
		return nil, err
	}
	return resultToMCP(result)
}

func (s *Surface) handleAdvance(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return nil, fmt.Errorf("sop_advance: %w", err)
	}
	status, err := request.RequireString("status")
	if err != nil {
		return nil, fmt.Errorf("sop_advance: %w", err)
	}
	output, err := request.RequireString("output")
	if err != nil {
		return nil, fmt.Errorf("sop_advance: %w", err)
	}

	result, err := s.Advance(AdvanceParams{RunID: runID, Status: status, Output: output})
	if err != nil {
		return nil, err
	}
	return resultToMCP(result)
}

func (s *Surface) handleApprove(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return nil, fmt.Errorf("sop_approve: %w", err)
	}

	result, err := s.Approve(ApproveParams{RunID: runID})
	if err != nil {
		return nil, err
	}
	return resultToMCP(result)
}

func (s *Surface) handleStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	sopName := request.GetString("sop_name", "")

	result, err := s.Status(StatusParams{RunID: runID, SopName: sopName})
	if err != nil {
		return nil, err
	}
	return resultToMCP(result)
}

// resultToMCP renders a Result as MCP content. Domain failures
// (Result.Success == false) are still a normal tool response, not a
// protocol error, per the hard-reject-vs-success=false policy.
func resultToMCP(result *Result) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("toolsurface: marshal result: %w", err)
	}
	if !result.Success {
		return mcp.NewToolResultError(string(data)), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(data))}}, nil
}
