//go:build unix

package pipeline

import (
	"os"

	"golang.org/x/sys/unix"
)

// replaceProcess is the default Replacer. When stdin is set it is moved
// onto fd 0 first; if the exec then fails, the original fd 0 is restored so
// the shell keeps reading from the terminal.
func replaceProcess(path string, argv, env []string, stdin *os.File) error {
	if stdin == nil {
		return unix.Exec(path, argv, env)
	}

	saved, err := unix.FcntlInt(0, unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		return err
	}
	defer unix.Close(saved)

	if err := dup2(int(stdin.Fd()), 0); err != nil {
		return err
	}
	err = unix.Exec(path, argv, env)
	_ = dup2(saved, 0)
	return err
}
