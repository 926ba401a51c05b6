package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CLIEngine implements ContainerEngine by driving the docker (or podman)
// binary. Both CLIs share the create/start/wait/logs/rm surface this engine
// needs, so a single implementation covers both.
type CLIEngine struct {
	logger    *zap.Logger
	binary    string
	cmdRunner CommandRunner
}

// CLIEngineOption defines a functional option for CLIEngine
type CLIEngineOption func(*CLIEngine)

// WithCommandRunner sets the CommandRunner for CLIEngine
func WithCommandRunner(cmdRunner CommandRunner) CLIEngineOption {
	return func(e *CLIEngine) {
		e.cmdRunner = cmdRunner
	}
}

// NewCLIEngine creates a ContainerEngine backed by the named binary, which
// must be "docker" or "podman"
func NewCLIEngine(logger *zap.Logger, binary string, opts ...CLIEngineOption) *CLIEngine {
	engine := &CLIEngine{
		logger:    logger,
		binary:    binary,
		cmdRunner: &RealCommandRunner{}, // Default implementation
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Ping verifies the engine daemon is reachable
func (e *CLIEngine) Ping(ctx context.Context) error {
	_, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "version", "--format", "{{.Server.Version}}"})
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", e.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s daemon not responding: %s", e.binary, strings.TrimSpace(stderr))
	}
	return nil
}

// ImageExists reports whether the image is present in the engine's local
// image store
func (e *CLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	_, _, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "image", "inspect", image})
	if err != nil {
		return false, fmt.Errorf("failed to inspect image: %w", err)
	}
	return exitCode == 0, nil
}

// Create creates a container from the spec and returns its id. The
// container is isolated: unprivileged user, all capabilities dropped, no
// privilege escalation, the session bind mount as the only host-visible
// path, and a size-bounded tmpfs as its writable scratch area.
func (e *CLIEngine) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	args := []string{
		e.binary, "create",
		"-v", fmt.Sprintf("%s:%s:rw", spec.BindDir, spec.MountPath),
		"--memory", fmt.Sprintf("%dm", spec.MemoryMB),
		"--cpu-quota", strconv.Itoa(spec.CPUQuota),
		"--user", spec.User,
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--tmpfs", fmt.Sprintf("/tmp:rw,size=%dm,mode=1777", spec.TmpfsSizeMB),
	}

	if spec.Network {
		args = append(args, "--network", "bridge")
	} else {
		args = append(args, "--network", "none")
	}

	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	stdout, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, args)
	if err != nil {
		return "", fmt.Errorf("failed to run %s create: %w", e.binary, err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("%s create failed: %s", e.binary, strings.TrimSpace(stderr))
	}

	id := strings.TrimSpace(stdout)
	if id == "" {
		return "", fmt.Errorf("%s create returned no container id", e.binary)
	}
	return id, nil
}

// Start starts a created container
func (e *CLIEngine) Start(ctx context.Context, id string) error {
	_, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "start", id})
	if err != nil {
		return fmt.Errorf("failed to run %s start: %w", e.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s start failed: %s", e.binary, strings.TrimSpace(stderr))
	}
	return nil
}

// Wait blocks until the container exits and returns its exit code. The
// caller bounds the wait through the context; expiry surfaces as the
// context's error.
func (e *CLIEngine) Wait(ctx context.Context, id string) (int, error) {
	stdout, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "wait", id})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	if err != nil {
		return -1, fmt.Errorf("failed to run %s wait: %w", e.binary, err)
	}
	if exitCode != 0 {
		return -1, fmt.Errorf("%s wait failed: %s", e.binary, strings.TrimSpace(stderr))
	}

	code, convErr := strconv.Atoi(strings.TrimSpace(stdout))
	if convErr != nil {
		return -1, fmt.Errorf("unparseable exit code from %s wait: %q", e.binary, strings.TrimSpace(stdout))
	}
	return code, nil
}

// Logs returns the container's combined output. The engine multiplexes the
// container's stdout and stderr onto the CLI's own streams, so the
// combination preserves whatever interleaving the log stream produced.
func (e *CLIEngine) Logs(ctx context.Context, id string) (string, error) {
	stdout, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "logs", id})
	if err != nil {
		return "", fmt.Errorf("failed to run %s logs: %w", e.binary, err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("%s logs failed: %s", e.binary, strings.TrimSpace(stderr))
	}
	return stdout + stderr, nil
}

// Remove force-removes a container, running or not
func (e *CLIEngine) Remove(ctx context.Context, id string) error {
	_, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "rm", "-f", id})
	if err != nil {
		return fmt.Errorf("failed to run %s rm: %w", e.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s rm failed: %s", e.binary, strings.TrimSpace(stderr))
	}
	return nil
}
