package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/jailrun/config"
	"github.com/isdmx/jailrun/controller"
	"github.com/isdmx/jailrun/orchestrator"
)

// Tool names
const (
	ToolGetJailState = "get_jail_state"
	ToolSetUseJail   = "set_use_jail"
	ToolSetEnforce   = "set_enforce"
	ToolSetJailPath  = "set_jail_path"
	ToolSetCommand   = "set_command"
	ToolPrepareJail  = "prepare_jail"
	ToolApplyAndRun  = "apply_and_run"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	controller *controller.Controller
	mcpServer  *server.MCPServer
}

// StateResponse is the JSON body every tool returns.
type StateResponse struct {
	controller.Snapshot
	History []controller.Entry `json:"history,omitempty"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, ctrl *controller.Controller) (*MCPServer, error) {
	s := &MCPServer{
		config:     cfg,
		logger:     logger.Named("mcpserver"),
		controller: ctrl,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("backend.base_url", cfg.Backend.BaseURL),
		zap.String("backend.prepare_path", cfg.Backend.PreparePath),
		zap.String("backend.run_path", cfg.Backend.RunPath),
		zap.Int("backend.timeout_sec", cfg.Backend.TimeoutSec),
		zap.String("jail.default_path", cfg.Jail.DefaultPath),
		zap.String("jail.default_command", cfg.Jail.DefaultCommand),
	)

	s.mcpServer = server.NewMCPServer("jailrun", "A jailed command execution client")

	s.registerTools()

	return s, nil
}

func (s *MCPServer) registerTools() {
	noArgs := mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}}
	toggle := func(description string) mcp.ToolInputSchema {
		return mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"enabled": map[string]any{
					"type":        "boolean",
					"description": description,
				},
			},
			Required: []string{"enabled"},
		}
	}

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolGetJailState,
		Description: "Report the session state, inputs and status history",
		InputSchema: noArgs,
	}, s.handleGetJailState)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolSetUseJail,
		Description: "Enable or disable running the command inside the file jail",
		InputSchema: toggle("Whether to use the jail"),
	}, s.handleSetUseJail)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolSetEnforce,
		Description: "Request that the backend actively enforce the jail (requires root on the backend)",
		InputSchema: toggle("Whether to enforce the jail"),
	}, s.handleSetEnforce)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolSetJailPath,
		Description: "Set the jail root path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Jail root; must not be empty or /",
				},
			},
			Required: []string{"path"},
		},
	}, s.handleSetJailPath)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolSetCommand,
		Description: "Set the shell command to run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Shell command line",
				},
			},
			Required: []string{"command"},
		},
	}, s.handleSetCommand)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolPrepareJail,
		Description: "Ask the backend to build the jail at the current path",
		InputSchema: noArgs,
	}, s.handlePrepareJail)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolApplyAndRun,
		Description: "Run the current command; if the backend needs root, the sudo command is returned instead of being executed",
		InputSchema: noArgs,
	}, s.handleApplyAndRun)
}

func (s *MCPServer) handleGetJailState(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.respond(true)
}

func (s *MCPServer) handleSetUseJail(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enabled, err := request.RequireBool("enabled")
	if err != nil {
		return nil, fmt.Errorf("enabled parameter is required: %w", err)
	}
	s.controller.SetUseJail(enabled)
	s.logger.Debug("use_jail updated", zap.Bool("enabled", enabled))
	return s.respond(false)
}

func (s *MCPServer) handleSetEnforce(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enabled, err := request.RequireBool("enabled")
	if err != nil {
		return nil, fmt.Errorf("enabled parameter is required: %w", err)
	}
	s.controller.SetEnforce(enabled)
	s.logger.Debug("enforce updated", zap.Bool("enabled", enabled))
	return s.respond(false)
}

func (s *MCPServer) handleSetJailPath(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return nil, fmt.Errorf("path parameter is required: %w", err)
	}
	s.controller.SetJailConfigPath(path)
	s.logger.Debug("jail path updated", zap.String("jail_path", path))
	return s.respond(false)
}

func (s *MCPServer) handleSetCommand(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := request.RequireString("command")
	if err != nil {
		return nil, fmt.Errorf("command parameter is required: %w", err)
	}
	s.controller.SetCommand(command)
	return s.respond(false)
}

func (s *MCPServer) handlePrepareJail(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("jail preparation requested", zap.String("jail_path", s.controller.JailConfig().Path))
	state := s.controller.PrepareJail(ctx)
	return s.respondToAction(state)
}

func (s *MCPServer) handleApplyAndRun(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("run requested",
		zap.String("command", s.controller.Command()),
		zap.Bool("use_jail", s.controller.UseJail()),
		zap.Bool("enforce", s.controller.Enforce()))
	state := s.controller.ApplyAndRun(ctx)
	return s.respondToAction(state)
}

func (s *MCPServer) respond(withHistory bool) (*mcp.CallToolResult, error) {
	resp := StateResponse{Snapshot: s.controller.Snapshot()}
	if withHistory {
		resp.History = s.controller.History()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}

// respondToAction flags the result as an error when the action failed.
// NeedsPrivilege is not a failure.
func (s *MCPServer) respondToAction(state orchestrator.State) (*mcp.CallToolResult, error) {
	result, err := s.respond(false)
	if err != nil {
		return nil, err
	}
	if failed, ok := state.(orchestrator.Failed); ok {
		s.logger.Warn("action failed", zap.String("detail", failed.Detail))
		result.IsError = true
	}
	return result, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
