// Package main is the entry point for the pybox MCP server.
//
// Pybox executes untrusted Python snippets in isolated, resource-limited
// containers with a per-session host directory bind-mounted into the
// sandbox. Snippets pass a static import allow-list gate before any
// container is launched. Execution results, session artifacts and session
// lifecycle are exposed as MCP tools over stdio or HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
