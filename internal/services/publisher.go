package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// commandRunner runs name with args in dir and returns combined output
type commandRunner func(ctx context.Context, dir, name string, args ...string) (string, error)

// GitPublisher commits the results directory and pushes it, so the website
// can read the snapshot from the repository
type GitPublisher struct {
	repoDir string
	paths   []string
	remote  string
	branch  string
	gitPath string
	run     commandRunner
}

// NewGitPublisher publishes paths (relative to repoDir) to remote/branch
func NewGitPublisher(repoDir, remote, branch string, paths ...string) *GitPublisher {
	if remote == "" {
		remote = "origin"
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	gitPath := "git"
	if p, err := exec.LookPath("git"); err == nil {
		gitPath = p
	}
	return &GitPublisher{
		repoDir: repoDir,
		paths:   paths,
		remote:  remote,
		branch:  branch,
		gitPath: gitPath,
		run:     runCommand,
	}
}

// Publish stages, commits and pushes. A clean tree is not an error.
func (p *GitPublisher) Publish(ctx context.Context, message string) error {
	addArgs := append([]string{"add", "--"}, p.paths...)
	if _, err := p.run(ctx, p.repoDir, p.gitPath, addArgs...); err != nil {
		return fmt.Errorf("git add: %w", err)
	}

	out, err := p.run(ctx, p.repoDir, p.gitPath, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") || strings.Contains(out, "no changes added") {
			log.Info().Msg("Publisher: no changes to publish")
			return nil
		}
		return fmt.Errorf("git commit: %w", err)
	}

	pushArgs := []string{"push", p.remote}
	if p.branch != "" {
		pushArgs = append(pushArgs, "HEAD:"+p.branch)
	}
	if _, err := p.run(ctx, p.repoDir, p.gitPath, pushArgs...); err != nil {
		return fmt.Errorf("git push: %w", err)
	}

	log.Info().Str("remote", p.remote).Str("branch", p.branch).Msg("Publisher: results pushed")
	return nil
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return output.String(), fmt.Errorf("%s %s: %v - %s", name, strings.Join(args, " "), err, strings.TrimSpace(output.String()))
	}
	return output.String(), nil
}
