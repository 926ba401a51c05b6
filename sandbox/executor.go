package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/pybox/script"
	"github.com/isdmx/pybox/session"
)

// Config holds configuration for the Executor
type Config struct {
	Image          string // full image reference including tag
	MountPath      string
	RunAsUser      string
	MemoryMB       int
	CPUQuota       int
	TimeoutSec     int
	TmpfsSizeMB    int
	NetworkEnabled bool
}

// Executor runs composed Python scripts in ephemeral containers. Each
// Execute call stages a script into the session directory, drives one
// container through its full lifecycle, collects the combined output, and
// guarantees the container is removed whatever happens along the way.
//
// Execute is safe for concurrent use; calls share nothing but the engine
// client. Concurrent executions against the same session are kept from
// colliding on the staged script by its unique suffix, but artifact writes
// are not serialized: overlapping executions that touch the same paths are
// last-write-wins.
type Executor struct {
	logger *zap.Logger
	config *Config
	engine ContainerEngine
	store  *session.Store
}

const (
	pingTimeout     = 10 * time.Second
	teardownTimeout = 30 * time.Second
)

// NewExecutor creates an Executor and fails fast when the engine is
// unreachable or the execution image is absent. The executor never builds
// images itself; the returned error carries the build instruction.
func NewExecutor(logger *zap.Logger, config *Config, engine ContainerEngine, store *session.Store) (*Executor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := engine.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructureUnavailable, err)
	}

	exists, err := engine.ImageExists(ctx, config.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfrastructureUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: image %q not found, build it with: docker build -f Dockerfile.sandbox -t %s .",
			ErrImageMissing, config.Image, config.Image)
	}

	logger.Info("sandbox executor ready",
		zap.String("image", config.Image),
		zap.String("mount_path", config.MountPath))

	return &Executor{logger: logger, config: config, engine: engine, store: store}, nil
}

// Execute runs one request through the Staging, Launching, Running,
// Collecting and Teardown stages. On every path it returns a populated
// ExecuteResult; the error is non-nil only for launch and internal faults,
// never for a snippet that merely exited non-zero or timed out.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	memoryMB := req.MemoryMB
	if memoryMB <= 0 {
		memoryMB = e.config.MemoryMB
	}
	cpuQuota := req.CPUQuota
	if cpuQuota <= 0 {
		cpuQuota = e.config.CPUQuota
	}
	timeoutSec := req.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = e.config.TimeoutSec
	}

	// Staging
	sessionDir, err := e.store.Ensure(req.SessionID)
	if err != nil {
		return e.fault(StatusUnexpected, ErrUnexpected, fmt.Errorf("failed to prepare session: %w", err))
	}

	composed, err := script.Compose(req.Code, req.Context)
	if err != nil {
		return e.fault(StatusUnexpected, ErrUnexpected, fmt.Errorf("failed to compose script: %w", err))
	}

	scriptName, err := e.store.StageScript(req.SessionID, composed)
	if err != nil {
		return e.fault(StatusUnexpected, ErrUnexpected, err)
	}
	defer func() {
		// The staged script must not surface as a user artifact.
		if rmErr := e.store.RemoveScript(req.SessionID, scriptName); rmErr != nil {
			e.logger.Warn("failed to remove staged script",
				zap.String("session_id", req.SessionID),
				zap.String("script", scriptName),
				zap.Error(rmErr))
		}
	}()

	// Launching
	spec := ContainerSpec{
		Image:       e.config.Image,
		Command:     []string{"python3", path.Join(e.config.MountPath, scriptName)},
		BindDir:     sessionDir,
		MountPath:   e.config.MountPath,
		User:        e.config.RunAsUser,
		MemoryMB:    memoryMB,
		CPUQuota:    cpuQuota,
		TmpfsSizeMB: e.config.TmpfsSizeMB,
		Network:     req.NetworkEnabled || e.config.NetworkEnabled,
	}

	containerID, err := e.engine.Create(ctx, spec)
	if err != nil {
		return e.fault(StatusLaunchFailed, ErrLaunchFailed, err)
	}
	defer e.teardown(containerID, req.SessionID)

	e.logger.Debug("container created",
		zap.String("session_id", req.SessionID),
		zap.String("container_id", containerID))

	if err := e.engine.Start(ctx, containerID); err != nil {
		return e.fault(StatusLaunchFailed, ErrLaunchFailed, err)
	}

	// Running
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	exitCode, waitErr := e.engine.Wait(waitCtx, containerID)
	if errors.Is(waitErr, context.DeadlineExceeded) {
		// Abnormal completion, not a fatal process error. The deferred
		// teardown force-removes the still-running container.
		output := e.collect(containerID)
		e.logger.Warn("execution timed out",
			zap.String("session_id", req.SessionID),
			zap.Int("timeout_sec", timeoutSec))
		return ExecuteResult{
			Output:   output + "\nexecution timed out",
			Status:   StatusTimeout,
			ExitCode: -1,
		}, nil
	}
	if waitErr != nil {
		result, err := e.fault(StatusUnexpected, ErrUnexpected, waitErr)
		result.Output = e.collect(containerID)
		return result, err
	}

	// Collecting
	output, err := e.engine.Logs(ctx, containerID)
	if err != nil {
		result, ferr := e.fault(StatusUnexpected, ErrUnexpected, fmt.Errorf("failed to collect output: %w", err))
		result.ExitCode = exitCode
		return result, ferr
	}

	status := StatusSuccess
	if exitCode != 0 {
		status = StatusExecutionFailed
	}

	e.logger.Info("execution completed",
		zap.String("session_id", req.SessionID),
		zap.String("status", string(status)),
		zap.Int("exit_code", exitCode),
		zap.Int("output_len", len(output)))

	return ExecuteResult{Output: output, Status: status, ExitCode: exitCode}, nil
}

// collect fetches container output best-effort on failure paths, using a
// fresh context so it still works when the caller's has expired
func (e *Executor) collect(containerID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	output, err := e.engine.Logs(ctx, containerID)
	if err != nil {
		e.logger.Warn("failed to collect container logs",
			zap.String("container_id", containerID),
			zap.Error(err))
		return ""
	}
	return output
}

// teardown force-removes the container. Failures are logged and suppressed;
// they must never mask the primary result of the execution.
func (e *Executor) teardown(containerID, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := e.engine.Remove(ctx, containerID); err != nil {
		e.logger.Error("failed to remove container",
			zap.String("session_id", sessionID),
			zap.String("container_id", containerID),
			zap.Error(err))
	}
}

// fault builds the populated result and wrapped error for a lifecycle
// failure, logging it once
func (e *Executor) fault(status Status, sentinel, cause error) (ExecuteResult, error) {
	e.logger.Error("execution fault",
		zap.String("status", string(status)),
		zap.Error(cause))
	return ExecuteResult{
		Output:   cause.Error(),
		Status:   status,
		ExitCode: -1,
	}, fmt.Errorf("%w: %v", sentinel, cause)
}
