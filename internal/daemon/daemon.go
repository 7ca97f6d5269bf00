// Package daemon runs commands fully detached from the shell.
//
// A detached job is produced by re-executing the shell binary twice. The
// first re-execution (the launch role) is the calling branch: it starts the
// second one in a new session and exits 0 straight away, so the shell only
// ever waits on a process that is already finishing. The second re-execution
// (the supervise role) has no controlling terminal and is owned by init. It
// runs the command to completion with its output captured, prints the result
// and exits.
//
// Main must be called at the very top of the program's main function (and of
// TestMain in packages that start jobs) so the re-executed binary takes the
// role it was given instead of starting an interactive session.
package daemon

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables carrying a job across re-execution. The command
// and its arguments travel in argv after the program name.
const (
	RoleEnv    = "PIPESH_DETACH_ROLE"
	JobIDEnv   = "PIPESH_DETACH_JOB"
	JobsDirEnv = "PIPESH_DETACH_DIR"
)

// Roles a re-executed binary can take.
const (
	RoleLaunch    = "launch"
	RoleSupervise = "supervise"
)

// Main checks whether this process was started as part of a detached job
// and, if so, runs that role and exits. It returns false in the normal case.
func Main() bool {
	role, ok := os.LookupEnv(RoleEnv)
	if !ok {
		return false
	}
	switch role {
	case RoleLaunch:
		os.Exit(launch(os.Args[1:]))
	case RoleSupervise:
		os.Exit(supervise(os.Args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "pipesh: unknown detach role %q\n", role)
		os.Exit(2)
	}
	return true
}

// roleEnv returns the current environment with every detach variable
// removed, followed by extra.
func roleEnv(extra ...string) []string {
	env := make([]string, 0, len(os.Environ())+len(extra))
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		switch k {
		case RoleEnv, JobIDEnv, JobsDirEnv:
			continue
		}
		env = append(env, kv)
	}
	return append(env, extra...)
}
