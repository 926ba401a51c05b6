package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/pybox/config"
	"github.com/isdmx/pybox/policy"
	"github.com/isdmx/pybox/sandbox"
	"github.com/isdmx/pybox/session"
)

// MockExecutor implements Executor for testing
type MockExecutor struct {
	executeResult sandbox.ExecuteResult
	executeError  error
	lastRequest   *sandbox.ExecuteRequest
}

func (m *MockExecutor) Execute(_ context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error) {
	m.lastRequest = &req
	return m.executeResult, m.executeError
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Logging: config.LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Sandbox: config.SandboxConfig{
			Engine:      "docker",
			BaseDir:     "/tmp/sandboxes",
			MountPath:   "/sandbox",
			Image:       "pybox-python-sandbox",
			ImageTag:    "latest",
			RunAsUser:   "sandbox",
			MemoryMB:    512,
			CPUQuota:    100000,
			TimeoutSec:  30,
			TmpfsSizeMB: 100,
		},
		Policy: config.PolicyConfig{
			RejectRelative: true,
		},
	}
}

func newTestServer(t *testing.T, executor Executor) (*MCPServer, *session.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := session.NewStore(logger, t.TempDir())
	gate := policy.New(logger)

	srv, err := New(testServerConfig(), logger, gate, store, executor)
	require.NoError(t, err)
	return srv, store
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	mockExecutor := &MockExecutor{}
	srv, _ := newTestServer(t, mockExecutor)

	require.NotNil(t, srv)
	assert.Equal(t, mockExecutor, srv.executor)
	assert.NotNil(t, srv.GetMCPServer())
}

func TestExecutePythonSuccess(t *testing.T) {
	mockExecutor := &MockExecutor{
		executeResult: sandbox.ExecuteResult{Output: "4\n", Status: sandbox.StatusSuccess, ExitCode: 0},
	}
	srv, store := newTestServer(t, mockExecutor)

	// Plant an artifact so the response reflects session state
	dir, err := store.Ensure("sess-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.txt"), []byte("hi"), 0o644))

	result, err := srv.handleExecutePython(context.Background(), callRequest(map[string]any{
		"code":       "print(2+2)",
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var response executeResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &response))
	assert.Equal(t, "sess-1", response.SessionID)
	assert.Equal(t, "success", response.Status)
	assert.Equal(t, 0, response.ExitCode)
	assert.Contains(t, response.Output, "4")
	assert.Equal(t, []string{"r.txt"}, response.Artifacts)

	require.NotNil(t, mockExecutor.lastRequest)
	assert.Equal(t, "sess-1", mockExecutor.lastRequest.SessionID)
	assert.Equal(t, "print(2+2)", mockExecutor.lastRequest.Code)
}

func TestExecutePythonGeneratesSessionID(t *testing.T) {
	mockExecutor := &MockExecutor{
		executeResult: sandbox.ExecuteResult{Status: sandbox.StatusSuccess},
	}
	srv, _ := newTestServer(t, mockExecutor)

	result, err := srv.handleExecutePython(context.Background(), callRequest(map[string]any{
		"code": "print(1)",
	}))
	require.NoError(t, err)

	var response executeResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &response))
	assert.NotEmpty(t, response.SessionID)
}

func TestExecutePythonPolicyRejection(t *testing.T) {
	mockExecutor := &MockExecutor{}
	srv, _ := newTestServer(t, mockExecutor)

	result, err := srv.handleExecutePython(context.Background(), callRequest(map[string]any{
		"code": "import requests",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Import restriction violation")
	assert.Contains(t, resultText(t, result), "requests")

	// Rejected code never reaches the executor
	assert.Nil(t, mockExecutor.lastRequest)
}

func TestExecutePythonSyntaxError(t *testing.T) {
	mockExecutor := &MockExecutor{}
	srv, _ := newTestServer(t, mockExecutor)

	result, err := srv.handleExecutePython(context.Background(), callRequest(map[string]any{
		"code": "def broken(:",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Syntax error")
	assert.Nil(t, mockExecutor.lastRequest)
}

func TestExecutePythonOverrides(t *testing.T) {
	mockExecutor := &MockExecutor{
		executeResult: sandbox.ExecuteResult{Status: sandbox.StatusSuccess},
	}
	srv, _ := newTestServer(t, mockExecutor)

	_, err := srv.handleExecutePython(context.Background(), callRequest(map[string]any{
		"code":        "print(1)",
		"timeout_sec": float64(5),
		"memory_mb":   float64(128),
		"network":     true,
		"context":     map[string]any{"x": float64(1)},
	}))
	require.NoError(t, err)

	require.NotNil(t, mockExecutor.lastRequest)
	assert.Equal(t, 5, mockExecutor.lastRequest.TimeoutSec)
	assert.Equal(t, 128, mockExecutor.lastRequest.MemoryMB)
	assert.True(t, mockExecutor.lastRequest.NetworkEnabled)
	assert.Equal(t, map[string]any{"x": float64(1)}, mockExecutor.lastRequest.Context)
}

func TestExecutePythonMissingCode(t *testing.T) {
	srv, _ := newTestServer(t, &MockExecutor{})

	_, err := srv.handleExecutePython(context.Background(), callRequest(map[string]any{}))
	require.Error(t, err)
}

func TestListSessionFiles(t *testing.T) {
	srv, store := newTestServer(t, &MockExecutor{})

	dir, err := store.Ensure("sess-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	result, err := srv.handleListSessionFiles(context.Background(), callRequest(map[string]any{
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var files []string
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &files))
	assert.Equal(t, []string{"a.txt"}, files)
}

func TestReadSessionFile(t *testing.T) {
	srv, store := newTestServer(t, &MockExecutor{})

	dir, err := store.Ensure("sess-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.txt"), []byte("hi"), 0o644))

	t.Run("Found", func(t *testing.T) {
		result, err := srv.handleReadSessionFile(context.Background(), callRequest(map[string]any{
			"session_id": "sess-1",
			"path":       "r.txt",
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "hi", resultText(t, result))
	})

	t.Run("NotFound", func(t *testing.T) {
		result, err := srv.handleReadSessionFile(context.Background(), callRequest(map[string]any{
			"session_id": "sess-1",
			"path":       "missing.txt",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "file not found")
	})

	t.Run("PathEscape", func(t *testing.T) {
		result, err := srv.handleReadSessionFile(context.Background(), callRequest(map[string]any{
			"session_id": "sess-1",
			"path":       "../other/secret.txt",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "escapes session directory")
	})
}

func TestDestroySession(t *testing.T) {
	srv, store := newTestServer(t, &MockExecutor{})

	dir, err := store.Ensure("sess-1")
	require.NoError(t, err)

	result, err := srv.handleDestroySession(context.Background(), callRequest(map[string]any{
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.NoDirExists(t, dir)
}

func TestExportSessionFiles(t *testing.T) {
	srv, store := newTestServer(t, &MockExecutor{})

	dir, err := store.Ensure("sess-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	result, err := srv.handleExportSessionFiles(context.Background(), callRequest(map[string]any{
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	// Base64 payload decodes downstream; here it just has to be non-empty
	assert.NotEmpty(t, resultText(t, result))
}
