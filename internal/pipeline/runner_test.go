package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/marcelocantos/pipesh/internal/daemon"
)

const missingCommand = "pipesh-missing-command-xyz"

func TestRunSingleStage(t *testing.T) {
	ts := newTestShell(t, "")
	res, err := ts.run(t, "echo hi")
	if err != nil {
		t.Fatal(err)
	}
	if got := ts.stdout.String(); got != "hi\n" {
		t.Errorf("expected %q, got %q", "hi\n", got)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
	if res.ID == "" {
		t.Error("expected a line id")
	}
}

func TestRunPipeWiring(t *testing.T) {
	ts := newTestShell(t, "")
	if _, err := ts.run(t, "echo hi | wc -c"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(ts.stdout.String()); got != "3" {
		t.Errorf("expected byte count 3, got %q", got)
	}
}

func TestRunThreeStages(t *testing.T) {
	ts := newTestShell(t, "")
	if _, err := ts.run(t, "seq 5 | sort -rn | head -n 2"); err != nil {
		t.Fatal(err)
	}
	if got := ts.stdout.String(); got != "5\n4\n" {
		t.Errorf("expected %q, got %q", "5\n4\n", got)
	}
}

func TestRunFirstStageReadsTerminal(t *testing.T) {
	ts := newTestShell(t, "hello\n")
	if _, err := ts.run(t, "cat | tr a-z A-Z"); err != nil {
		t.Fatal(err)
	}
	if got := ts.stdout.String(); got != "HELLO\n" {
		t.Errorf("expected %q, got %q", "HELLO\n", got)
	}
}

func TestRunEarlyExitingConsumer(t *testing.T) {
	ts := newTestShell(t, "")
	done := make(chan error, 1)
	go func() {
		_, err := ts.run(t, "yes | head -n 1")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("producer never saw the consumer go away")
	}
	if got := ts.stdout.String(); got != "y\n" {
		t.Errorf("expected %q, got %q", "y\n", got)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	ts := newTestShell(t, "")
	res, err := ts.run(t, "false")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("expected exit 1, got %d", res.ExitCode)
	}
}

func TestRunSpawnFailureContinues(t *testing.T) {
	ts := newTestShell(t, "")
	res, err := ts.run(t, missingCommand+" | echo ok")
	if err != nil {
		t.Fatal(err)
	}
	if got := ts.stdout.String(); got != "ok\n" {
		t.Errorf("expected %q, got %q", "ok\n", got)
	}
	if !strings.Contains(ts.stderr.String(), "spawn "+missingCommand) {
		t.Errorf("expected spawn diagnostic, got %q", ts.stderr.String())
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
}

func TestRunSpawnFailureFallsBackToTerminal(t *testing.T) {
	ts := newTestShell(t, "from terminal\n")
	if _, err := ts.run(t, "echo lost | "+missingCommand+" | cat"); err != nil {
		t.Fatal(err)
	}
	if got := ts.stdout.String(); got != "from terminal\n" {
		t.Errorf("expected %q, got %q", "from terminal\n", got)
	}
}

func TestRunSpawnFailureLastStage(t *testing.T) {
	ts := newTestShell(t, "")
	res, err := ts.run(t, "echo hi | "+missingCommand)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != StatusNotFound {
		t.Errorf("expected exit %d, got %d", StatusNotFound, res.ExitCode)
	}
}

func TestRunCdFailureKeepsDirectory(t *testing.T) {
	chdir(t, t.TempDir())
	before, _ := os.Getwd()

	ts := newTestShell(t, "")
	res, err := ts.run(t, "cd /nonexistent-path-xyz")
	if err != nil {
		t.Fatalf("cd failure must not stop the shell: %v", err)
	}
	if !strings.Contains(ts.stderr.String(), "/nonexistent-path-xyz") {
		t.Errorf("expected diagnostic, got %q", ts.stderr.String())
	}
	if res.ExitCode != StatusFailed {
		t.Errorf("expected exit %d, got %d", StatusFailed, res.ExitCode)
	}
	after, _ := os.Getwd()
	if before != after {
		t.Errorf("working directory changed from %s to %s", before, after)
	}
}

func TestRunCdAffectsLaterStages(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()

	ts := newTestShell(t, "")
	if _, err := ts.run(t, "cd "+dir); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.run(t, "pwd"); err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(ts.stdout.String()))
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestRunBuiltinDropsPipe(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()

	ts := newTestShell(t, "terminal\n")
	if _, err := ts.run(t, "echo dropped | cd "+dir+" | cat"); err != nil {
		t.Fatal(err)
	}
	if got := ts.stdout.String(); got != "terminal\n" {
		t.Errorf("expected the last stage to read the terminal, got %q", got)
	}
}

func TestRunQuit(t *testing.T) {
	ts := newTestShell(t, "")
	_, err := ts.run(t, `\quit`)
	if !errors.Is(err, ErrQuit) {
		t.Fatalf("expected ErrQuit, got %v", err)
	}
}

func TestRunQuitMidPipeline(t *testing.T) {
	ts := newTestShell(t, "")
	_, err := ts.run(t, `echo hi | \quit`)
	if !errors.Is(err, ErrQuit) {
		t.Fatalf("expected ErrQuit, got %v", err)
	}
	if got := ts.stdout.String(); got != "" {
		t.Errorf("earlier stage output must be abandoned, got %q", got)
	}
}

func TestRunQuitStopsDispatch(t *testing.T) {
	ts := newTestShell(t, "")
	_, err := ts.run(t, `\quit | echo after`)
	if !errors.Is(err, ErrQuit) {
		t.Fatalf("expected ErrQuit, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := ts.stdout.String(); got != "" {
		t.Errorf("no stage may run after quit, got %q", got)
	}
}

func TestRunParseErrorDispatchesNothing(t *testing.T) {
	ts := newTestShell(t, "")
	_, err := ts.run(t, "echo hi | exec")
	if !errors.Is(err, ErrMissingModeArgument) {
		t.Fatalf("expected ErrMissingModeArgument, got %v", err)
	}
	if got := ts.stdout.String(); got != "" {
		t.Errorf("expected no output, got %q", got)
	}
}

func TestRunEmptyLine(t *testing.T) {
	ts := newTestShell(t, "")
	_, err := ts.run(t, "   ")
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestRunExecReplacesProcess(t *testing.T) {
	ts := newTestShell(t, "")
	r := &replacement{}
	ts.exec.Replace = r.replacer()

	res, err := ts.run(t, "exec ls")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(r.path) != "ls" {
		t.Errorf("expected to exec ls, got path %q", r.path)
	}
	if !reflect.DeepEqual(r.argv, []string{"ls"}) {
		t.Errorf("expected argv [ls], got %q", r.argv)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
}

func TestRunExecStopsDispatch(t *testing.T) {
	ts := newTestShell(t, "")
	r := &replacement{}
	ts.exec.Replace = r.replacer()

	if _, err := ts.run(t, "exec true | echo after"); err != nil {
		t.Fatal(err)
	}
	if got := ts.stdout.String(); got != "" {
		t.Errorf("nothing may run once the image is replaced, got %q", got)
	}
}

func TestRunExecReadsPreviousOutput(t *testing.T) {
	ts := newTestShell(t, "")
	r := &replacement{}
	ts.exec.Replace = r.replacer()

	if _, err := ts.run(t, "echo piped | exec cat"); err != nil {
		t.Fatal(err)
	}
	if r.stdin != "piped\n" {
		t.Errorf("expected exec stdin %q, got %q", "piped\n", r.stdin)
	}
}

func TestRunExecNotFound(t *testing.T) {
	ts := newTestShell(t, "")
	res, err := ts.run(t, "exec "+missingCommand)
	if err != nil {
		t.Fatalf("exec failure must not stop the shell: %v", err)
	}
	if !strings.Contains(ts.stderr.String(), "exec "+missingCommand) {
		t.Errorf("expected exec diagnostic, got %q", ts.stderr.String())
	}
	if res.ExitCode != StatusNotFound {
		t.Errorf("expected exit %d, got %d", StatusNotFound, res.ExitCode)
	}
}

func TestRunExecReplacerFails(t *testing.T) {
	ts := newTestShell(t, "")
	r := &replacement{err: errBoom}
	ts.exec.Replace = r.replacer()

	res, err := ts.run(t, "exec true")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ts.stderr.String(), "boom") {
		t.Errorf("expected replacer error in diagnostic, got %q", ts.stderr.String())
	}
	if res.ExitCode != StatusCannotRun {
		t.Errorf("expected exit %d, got %d", StatusCannotRun, res.ExitCode)
	}
}

func TestRunForkDetaches(t *testing.T) {
	ts := newTestShell(t, "terminal\n")
	d := &fakeDetacher{}
	ts.exec.Detacher = d

	if _, err := ts.run(t, "echo dropped | fork sleep 1 | cat"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.calls, [][]string{{"sleep", "1"}}) {
		t.Errorf("unexpected detach calls %q", d.calls)
	}
	if got := ts.stdout.String(); got != "terminal\n" {
		t.Errorf("a forked stage must not feed the pipeline, got %q", got)
	}
}

func TestRunForkFailure(t *testing.T) {
	ts := newTestShell(t, "")
	ts.exec.Detacher = &fakeDetacher{err: errBoom}

	res, err := ts.run(t, "fork sleep 1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ts.stderr.String(), "fork sleep: boom") {
		t.Errorf("expected fork diagnostic, got %q", ts.stderr.String())
	}
	if res.ExitCode != StatusFailed {
		t.Errorf("expected exit %d, got %d", StatusFailed, res.ExitCode)
	}
}

func TestRunForkReturnsToPrompt(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "later.sh")
	marker := filepath.Join(dir, "marker")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 1\necho done > \"$1\"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	out, err := os.Create(filepath.Join(dir, "stdout"))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	l, err := daemon.NewLauncher(filepath.Join(dir, "jobs"), nil)
	if err != nil {
		t.Fatal(err)
	}
	l.Stdout, l.Stderr = out, out

	ts := newTestShell(t, "")
	ts.exec.Detacher = l

	start := time.Now()
	if _, err := ts.run(t, "fork "+script+" "+marker); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("fork took %v to return", elapsed)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("forked command finished before the prompt returned")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		data, _ := os.ReadFile(marker)
		if string(data) == "done\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("forked command never completed")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRunWithoutDetacher(t *testing.T) {
	ts := newTestShell(t, "")
	if _, err := ts.run(t, "fork ls"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ts.stderr.String(), "fork ls") {
		t.Errorf("expected fork diagnostic, got %q", ts.stderr.String())
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore working directory %s: %v", wd, err)
		}
	})
}
