package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/pybox/config"
	"github.com/isdmx/pybox/logger"
	"github.com/isdmx/pybox/mcpserver"
	"github.com/isdmx/pybox/policy"
	"github.com/isdmx/pybox/sandbox"
	"github.com/isdmx/pybox/session"
)

// newGate builds the policy gate from configuration
func newGate(cfg *config.Config, log *zap.Logger) *policy.Gate {
	return policy.New(log,
		policy.WithModules(cfg.Policy.Modules),
		policy.WithRejectRelative(cfg.Policy.RejectRelative),
	)
}

// newStore builds the session store from configuration
func newStore(cfg *config.Config, log *zap.Logger) *session.Store {
	return session.NewStore(log, cfg.Sandbox.BaseDir)
}

// newEngine builds the container engine client from configuration
func newEngine(cfg *config.Config, log *zap.Logger) sandbox.ContainerEngine {
	return sandbox.NewCLIEngine(log, cfg.Sandbox.Engine)
}

// newExecutor builds the sandbox executor, failing fast when the engine is
// unreachable or the execution image is missing
func newExecutor(cfg *config.Config, log *zap.Logger, engine sandbox.ContainerEngine, store *session.Store) (*sandbox.Executor, error) {
	return sandbox.NewExecutor(log, &sandbox.Config{
		Image:          cfg.Sandbox.FullImage(),
		MountPath:      cfg.Sandbox.MountPath,
		RunAsUser:      cfg.Sandbox.RunAsUser,
		MemoryMB:       cfg.Sandbox.MemoryMB,
		CPUQuota:       cfg.Sandbox.CPUQuota,
		TimeoutSec:     cfg.Sandbox.TimeoutSec,
		TmpfsSizeMB:    cfg.Sandbox.TmpfsSizeMB,
		NetworkEnabled: cfg.Sandbox.NetworkEnabled,
	}, engine, store)
}

// newServer builds the MCP server
func newServer(cfg *config.Config, log *zap.Logger, gate *policy.Gate, store *session.Store, executor *sandbox.Executor) (*mcpserver.MCPServer, error) {
	return mcpserver.New(cfg, log, gate, store, executor)
}

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			config.New,
			logger.NewFromConfig,
			newGate,
			newStore,
			newEngine,
			newExecutor,
			newServer,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
