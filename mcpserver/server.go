package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/pybox/config"
	"github.com/isdmx/pybox/policy"
	"github.com/isdmx/pybox/sandbox"
	"github.com/isdmx/pybox/session"
)

// Executor is the execution surface the server consumes
type Executor interface {
	Execute(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	gate      *policy.Gate
	store     *session.Store
	executor  Executor
	mcpServer *server.MCPServer
}

// executeResponse is the JSON payload returned by the execute_python tool
type executeResponse struct {
	SessionID string   `json:"session_id"`
	Status    string   `json:"status"`
	ExitCode  int      `json:"exit_code"`
	Output    string   `json:"output"`
	Artifacts []string `json:"artifacts"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, gate *policy.Gate, store *session.Store, executor Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		gate:     gate,
		store:    store,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.engine", cfg.Sandbox.Engine),
		zap.String("sandbox.base_dir", cfg.Sandbox.BaseDir),
		zap.String("sandbox.mount_path", cfg.Sandbox.MountPath),
		zap.String("sandbox.image", cfg.Sandbox.FullImage()),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Int("sandbox.cpu_quota", cfg.Sandbox.CPUQuota),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Bool("policy.reject_relative", cfg.Policy.RejectRelative),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("pybox", "A sandboxed Python execution server")

	s.registerTools()

	return s, nil
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "execute_python",
		Description: "Execute a Python snippet in an isolated sandbox container. Files written under the sandbox mount path persist as session artifacts.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source code to execute",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session identifier; generated when omitted. Reuse it to accumulate artifacts across executions.",
				},
				"context": map[string]any{
					"type":        "object",
					"description": "JSON-serializable mapping of names to values, injected as globals",
				},
				"timeout_sec": map[string]any{
					"type":        "integer",
					"description": "Wall-clock timeout override in seconds",
				},
				"memory_mb": map[string]any{
					"type":        "integer",
					"description": "Memory limit override in megabytes",
				},
				"network": map[string]any{
					"type":        "boolean",
					"description": "Enable network access for this execution",
				},
			},
			Required: []string{"code"},
		},
	}, s.handleExecutePython)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_session_files",
		Description: "List artifact files produced in a session's sandbox directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session identifier",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleListSessionFiles)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "read_session_file",
		Description: "Read an artifact file from a session's sandbox directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session identifier",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the session directory",
				},
			},
			Required: []string{"session_id", "path"},
		},
	}, s.handleReadSessionFile)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "export_session_files",
		Description: "Export all session artifacts as a base64-encoded tar.gz archive",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session identifier",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleExportSessionFiles)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "destroy_session",
		Description: "Remove a session's sandbox directory and all its artifacts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session identifier",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleDestroySession)
}

// handleExecutePython handles the execute_python tool
func (s *MCPServer) handleExecutePython(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	var execContext map[string]any
	if raw, ok := request.GetArguments()["context"]; ok && raw != nil {
		mapped, ok := raw.(map[string]any)
		if !ok {
			return toolError("context must be an object"), nil
		}
		execContext = mapped
	}

	// Policy gate runs before anything touches a runtime
	verdict, gateErr := s.gate.Validate(code)
	if gateErr != nil {
		s.logger.Info("snippet failed to parse", zap.String("session_id", sessionID))
		return toolError(verdict.Message), nil
	}
	if !verdict.Allowed {
		return toolError(verdict.Message), nil
	}

	s.logger.Info("executing snippet",
		zap.String("session_id", sessionID),
		zap.Int("code_len", len(code)),
		zap.Int("context_keys", len(execContext)))

	result, execErr := s.executor.Execute(ctx, sandbox.ExecuteRequest{
		SessionID:      sessionID,
		Code:           code,
		Context:        execContext,
		TimeoutSec:     request.GetInt("timeout_sec", 0),
		MemoryMB:       request.GetInt("memory_mb", 0),
		NetworkEnabled: request.GetBool("network", false),
	})
	if execErr != nil {
		s.logger.Error("sandbox execution failed",
			zap.String("session_id", sessionID),
			zap.Error(execErr))
	}

	artifacts, listErr := s.store.ListArtifacts(sessionID)
	if listErr != nil {
		s.logger.Warn("failed to list session artifacts",
			zap.String("session_id", sessionID),
			zap.Error(listErr))
		artifacts = []string{}
	}

	payload, err := json.Marshal(executeResponse{
		SessionID: sessionID,
		Status:    string(result.Status),
		ExitCode:  result.ExitCode,
		Output:    result.Output,
		Artifacts: artifacts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(payload)},
		},
		IsError: execErr != nil,
	}, nil
}

// handleListSessionFiles handles the list_session_files tool
func (s *MCPServer) handleListSessionFiles(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	artifacts, err := s.store.ListArtifacts(sessionID)
	if err != nil {
		return toolError(fmt.Sprintf("failed to list session files: %v", err)), nil
	}

	payload, err := json.Marshal(artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file list: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(payload)},
		},
	}, nil
}

// handleReadSessionFile handles the read_session_file tool
func (s *MCPServer) handleReadSessionFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	path, err := request.RequireString("path")
	if err != nil {
		return nil, fmt.Errorf("path parameter is required: %w", err)
	}

	data, err := s.store.ReadArtifact(sessionID, path)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return toolError(fmt.Sprintf("file not found: %s", path)), nil
		case errors.Is(err, session.ErrPathEscape):
			return toolError(fmt.Sprintf("path escapes session directory: %s", path)), nil
		default:
			return toolError(fmt.Sprintf("failed to read file: %v", err)), nil
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

// handleExportSessionFiles handles the export_session_files tool
func (s *MCPServer) handleExportSessionFiles(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	archive, err := s.store.ExportArchive(sessionID)
	if err != nil {
		return toolError(fmt.Sprintf("failed to export session: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: base64.StdEncoding.EncodeToString(archive)},
		},
	}, nil
}

// handleDestroySession handles the destroy_session tool
func (s *MCPServer) handleDestroySession(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	if err := s.store.Destroy(sessionID); err != nil {
		return toolError(fmt.Sprintf("failed to destroy session: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("session %s destroyed", sessionID)},
		},
	}, nil
}

// toolError builds an error-flagged tool result carrying a diagnostic
func toolError(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: message},
		},
		IsError: true,
	}
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

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
