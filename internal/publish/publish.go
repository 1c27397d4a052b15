// Package publish snapshots the site with git and pushes it to a remote.
package publish

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/starford/sitekeeper/internal/apperr"
)

// Result describes a publish attempt.
type Result struct {
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Publisher snapshots and publishes the on-disk state.
type Publisher interface {
	Publish(ctx context.Context, message string) (*Result, error)
}

// Runner runs an external command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Git publishes with "git add .", "git commit -m", "git push <remote> <branch>".
type Git struct {
	dir    string
	binary string
	remote string
	branch string
	runner Runner
	logger *slog.Logger
}

// GitOption configures a Git publisher.
type GitOption func(*Git)

// WithBinary overrides the git executable.
func WithBinary(binary string) GitOption {
	return func(g *Git) {
		if binary != "" {
			g.binary = binary
		}
	}
}

// WithTarget sets the remote and branch to push to.
func WithTarget(remote, branch string) GitOption {
	return func(g *Git) {
		if remote != "" {
			g.remote = remote
		}
		if branch != "" {
			g.branch = branch
		}
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) GitOption {
	return func(g *Git) { g.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GitOption {
	return func(g *Git) { g.logger = l }
}

// NewGit creates a publisher operating on the repository at dir.
func NewGit(dir string, opts ...GitOption) *Git {
	g := &Git{
		dir:    dir,
		binary: "git",
		remote: "origin",
		branch: "main",
		runner: ExecRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Publish runs the three steps in order. The first failing step aborts the
// sequence; steps that already succeeded are not undone.
func (g *Git) Publish(ctx context.Context, message string) (*Result, error) {
	steps := [][]string{
		{"add", "."},
		{"commit", "-m", message},
		{"push", g.remote, g.branch},
	}

	res := &Result{Message: message}
	var combined strings.Builder
	for _, args := range steps {
		out, err := g.runner.Run(ctx, g.dir, g.binary, args...)
		combined.Write(out)
		if err != nil {
			step := g.binary + " " + args[0]
			g.logger.Warn("publish: step failed",
				slog.String("step", step),
				slog.String("error", err.Error()),
				slog.String("output", string(out)))
			res.Output = combined.String()
			return res, &apperr.PublishError{Step: step, Output: string(out), Err: err}
		}
	}
	res.Output = combined.String()
	g.logger.Info("publish: pushed",
		slog.String("message", message),
		slog.String("remote", g.remote),
		slog.String("branch", g.branch))
	return res, nil
}

// Noop is used when publishing is disabled.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(_ context.Context, message string) (*Result, error) {
	return &Result{Message: message, Skipped: true}, nil
}
