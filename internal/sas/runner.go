// Package sas runs the external SAS/Xronos tools as checked subprocesses.
// Every invocation gets an explicit toolkit environment, a bounded
// timeout, and its exit status inspected; nonzero exits surface the
// tool's stderr as a typed error instead of being silently ignored.
package sas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"epicflow/config"
	"epicflow/logger"
)

// Env is the explicit toolkit configuration injected into every tool
// process, replacing the global SAS_* shell environment.
type Env struct {
	// ODFDir is the observation's raw data directory (SAS_ODF).
	ODFDir string
	// CCFFile is the calibration index file (SAS_CCF).
	CCFFile string
	// CCFPath is the calibration file directory (SAS_CCFPATH).
	CCFPath string
	// SASDir is the toolkit installation root (SAS_DIR).
	SASDir string
	// HeadasDir is the HEASOFT installation root (HEADAS).
	HeadasDir string
}

// EnvFor builds the per-observation toolkit environment from the static
// configuration.
func EnvFor(cfg config.SASConfig, odfDir, ccfFile string) Env {
	return Env{
		ODFDir:    odfDir,
		CCFFile:   ccfFile,
		CCFPath:   cfg.CCFPath,
		SASDir:    cfg.Dir,
		HeadasDir: cfg.HeadasDir,
	}
}

func (e Env) vars() []string {
	vars := os.Environ()
	if e.ODFDir != "" {
		vars = append(vars, "SAS_ODF="+e.ODFDir)
	}
	if e.CCFFile != "" {
		vars = append(vars, "SAS_CCF="+e.CCFFile)
	}
	if e.CCFPath != "" {
		vars = append(vars, "SAS_CCFPATH="+e.CCFPath)
	}
	if e.SASDir != "" {
		vars = append(vars, "SAS_DIR="+e.SASDir)
	}
	if e.HeadasDir != "" {
		vars = append(vars, "HEADAS="+e.HeadasDir)
	}
	return vars
}

// Result captures the textual output of a completed tool invocation.
type Result struct {
	Stdout string
	Stderr string
}

// ToolError reports a failed external invocation.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Timeout  bool
}

func (e *ToolError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out", e.Tool)
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitCode, msg)
}

// Runner is the interface pipeline stages invoke tools through. Stages
// depend on it rather than on ExecRunner so tests can substitute stubs.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) (*Result, error)
}

// ExecRunner executes tools as real subprocesses.
type ExecRunner struct {
	env     Env
	timeout time.Duration
	workDir string
	log     *logger.Log
}

// NewRunner creates an ExecRunner with the given toolkit environment.
// workDir becomes the working directory of every invocation.
func NewRunner(env Env, workDir string, timeout time.Duration) *ExecRunner {
	return &ExecRunner{
		env:     env,
		timeout: timeout,
		workDir: workDir,
		log:     logger.GetLogger(),
	}
}

// Run invokes one tool and waits for it. The invocation is killed,
// together with its process group, when the timeout elapses or ctx is
// cancelled.
func (r *ExecRunner) Run(ctx context.Context, tool string, args ...string) (*Result, error) {
	log := r.log.WithComponent("sas_runner").WithFields(logger.Fields{"tool": tool})

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = r.workDir
	cmd.Env = r.env.vars()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole process group so tool-spawned children die too.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithFields(logger.Fields{"args": strings.Join(args, " ")}).Debug("invoking tool")
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	logger.IncrementToolRun(err != nil)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.WithFields(logger.Fields{"timeout": r.timeout}).Error("tool timed out")
			return nil, &ToolError{Tool: tool, Timeout: true, Stderr: stderr.String()}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr := &ToolError{Tool: tool, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
			log.WithError(toolErr).Error("tool failed")
			return nil, toolErr
		}
		return nil, fmt.Errorf("start %s: %w", tool, err)
	}

	logger.LogPerformanceEntry(log, "sas_runner", tool, duration, nil)
	return &Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
