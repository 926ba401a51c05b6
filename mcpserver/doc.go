// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes sandboxed Python execution and session
// artifact management as MCP tools using the mark3labs/mcp-go library. The
// execute_python tool runs the static import policy gate before any code
// reaches a container; list_session_files, read_session_file,
// export_session_files and destroy_session operate on the per-session
// artifact directories.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, gate, store, executor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
