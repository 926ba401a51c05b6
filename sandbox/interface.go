package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Status categorizes the outcome of one execution
type Status string

// Execution statuses
const (
	StatusSuccess         Status = "success"
	StatusExecutionFailed Status = "execution_failed"
	StatusTimeout         Status = "timeout"
	StatusLaunchFailed    Status = "launch_failed"
	StatusInfrastructure  Status = "infrastructure_error"
	StatusUnexpected      Status = "unexpected"
)

// Sentinel errors surfaced by the executor. Policy and artifact errors live
// in their own packages; these cover the container lifecycle.
var (
	// ErrInfrastructureUnavailable indicates the container engine is
	// unreachable
	ErrInfrastructureUnavailable = errors.New("container engine unavailable")

	// ErrImageMissing indicates the required execution image is absent from
	// the engine's local image store
	ErrImageMissing = errors.New("execution image missing")

	// ErrLaunchFailed indicates the container could not be created or
	// started
	ErrLaunchFailed = errors.New("container launch failed")

	// ErrUnexpected is the catch-all for uncategorized faults
	ErrUnexpected = errors.New("unexpected execution fault")
)

// ExecuteRequest represents the parameters for one code execution. Zero
// resource values fall back to the executor's configured defaults.
type ExecuteRequest struct {
	SessionID      string
	Code           string
	Context        map[string]any
	MemoryMB       int
	CPUQuota       int
	TimeoutSec     int
	NetworkEnabled bool
}

// ExecuteResult represents the outcome of one code execution. Output is the
// combined stdout/stderr stream as produced by the container; it is
// populated best-effort even on failure paths. ExitCode is -1 when it could
// not be obtained.
type ExecuteResult struct {
	Output   string
	Status   Status
	ExitCode int
}

// ContainerSpec describes one isolated runtime instance to be created
type ContainerSpec struct {
	Image       string
	Command     []string
	BindDir     string // host directory bind-mounted read-write
	MountPath   string // path of the bind mount inside the container
	User        string
	MemoryMB    int
	CPUQuota    int // microseconds per scheduler period, 100000 = one CPU
	TmpfsSizeMB int
	Network     bool
}

// ContainerEngine is the narrow client contract against the container
// engine. One execution maps onto exactly one create/start/wait/logs/remove
// cycle; instances are never reused.
type ContainerEngine interface {
	Ping(ctx context.Context) error
	ImageExists(ctx context.Context, image string) (bool, error)
	Create(ctx context.Context, spec ContainerSpec) (id string, err error)
	Start(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (exitCode int, err error)
	Logs(ctx context.Context, id string) (string, error)
	Remove(ctx context.Context, id string) error
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
			err = nil
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}
