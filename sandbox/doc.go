// Package sandbox provides isolated, resource-bounded Python execution.
//
// The sandbox package maps each execution request onto one ephemeral
// container: the session directory is bind-mounted read-write at a fixed
// path, memory/CPU/network limits from the request are applied, the
// composed script runs as the container's sole command, and the container
// is removed unconditionally afterwards. The container engine (Docker or
// Podman) is consumed through the narrow ContainerEngine contract, backed
// by the engine CLI via a fakeable CommandRunner.
//
// Usage:
//
//	engine := sandbox.NewCLIEngine(logger, "docker")
//	executor, err := sandbox.NewExecutor(logger, cfg, engine, store)
//	result, err := executor.Execute(ctx, sandbox.ExecuteRequest{
//	    SessionID: session.NewSessionID(),
//	    Code:      "print(2+2)",
//	})
package sandbox
