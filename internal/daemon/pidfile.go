package daemon

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

const pidSuffix = ".pid"

func pidPath(dir, jobID string) string {
	return filepath.Join(dir, jobID+pidSuffix)
}

func writePidFile(dir, jobID string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(dir, jobID), []byte(strconv.Itoa(os.Getpid())), 0600)
}

// RunningJob is a detached job whose supervisor is still alive.
type RunningJob struct {
	ID  string
	Pid int
}

// Running lists the detached jobs in dir whose supervisor process is still
// alive. Pid files left behind by dead processes are removed.
func Running(dir string) ([]RunningJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []RunningJob
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pidSuffix) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil || !alive(pid) {
			os.Remove(path)
			continue
		}
		jobs = append(jobs, RunningJob{ID: strings.TrimSuffix(name, pidSuffix), Pid: pid})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
