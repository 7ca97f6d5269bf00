package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job describes a detached command. The shell keeps no handle on it.
type Job struct {
	ID      string
	Command string
	Args    []string
	PidFile string
	Started time.Time
}

// Launcher starts detached jobs by re-executing Executable.
//
// Stdout and Stderr receive the job's captured result once it finishes.
// They should be *os.File values: any other writer makes Detach block until
// the job has exited, because os/exec waits for its copy goroutines.
type Launcher struct {
	Executable string
	JobsDir    string
	Stdout     io.Writer
	Stderr     io.Writer
	Logger     *zap.Logger
}

// NewLauncher returns a launcher that re-executes the running binary and
// reports to the process's own stdout and stderr.
func NewLauncher(jobsDir string, logger *zap.Logger) (*Launcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		Executable: exe,
		JobsDir:    jobsDir,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Logger:     logger,
	}, nil
}

// Detach starts command with args in a new session and returns once the
// calling branch has exited. The command itself keeps running.
func (l *Launcher) Detach(ctx context.Context, command string, args []string) (*Job, error) {
	if command == "" {
		return nil, fmt.Errorf("detach: empty command")
	}
	if l.JobsDir != "" {
		if err := os.MkdirAll(l.JobsDir, 0700); err != nil {
			return nil, fmt.Errorf("create jobs dir: %w", err)
		}
	}

	job := &Job{
		ID:      uuid.NewString(),
		Command: command,
		Args:    args,
		Started: time.Now(),
	}
	if l.JobsDir != "" {
		job.PidFile = pidPath(l.JobsDir, job.ID)
	}

	cmd := exec.CommandContext(ctx, l.Executable, append([]string{command}, args...)...)
	cmd.Env = roleEnv(
		RoleEnv+"="+RoleLaunch,
		JobIDEnv+"="+job.ID,
		JobsDirEnv+"="+l.JobsDir,
	)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", command, err)
	}

	l.Logger.Debug("detached job",
		zap.String("job", job.ID),
		zap.String("command", command),
		zap.Strings("args", args),
	)
	return job, nil
}

// launch is the calling branch: start the supervisor in its own session and
// exit without waiting for it.
func launch(argv []string) int {
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "pipesh: fork: missing command")
		return 2
	}
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipesh: fork: %v\n", err)
		return 1
	}

	cmd := exec.Command(exe, argv...)
	cmd.Env = roleEnv(
		RoleEnv+"="+RoleSupervise,
		JobIDEnv+"="+os.Getenv(JobIDEnv),
		JobsDirEnv+"="+os.Getenv(JobsDirEnv),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Setsid detaches from the controlling terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "pipesh: fork %s: %v\n", argv[0], err)
		return 1
	}
	cmd.Process.Release() //nolint:errcheck
	return 0
}

// supervise is the detached branch: run the command to completion, then
// print what it produced.
func supervise(argv []string) int {
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "pipesh: fork: missing command")
		return 2
	}
	jobID := os.Getenv(JobIDEnv)
	dir := os.Getenv(JobsDirEnv)
	if dir != "" && jobID != "" {
		if err := writePidFile(dir, jobID); err == nil {
			defer os.Remove(pidPath(dir, jobID))
		}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = roleEnv()
	out, err := cmd.CombinedOutput()
	os.Stdout.Write(out) //nolint:errcheck
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "pipesh: fork %s: %v\n", argv[0], err)
		return 127
	}
	return 0
}
