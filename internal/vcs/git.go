package vcs

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/secureqr/internal/model"
)

// Repo is a Git working tree on disk.
type Repo struct {
	// Root is the absolute path of the top-level directory of the working
	// tree (for a linked worktree, its own root).
	Root string
}

// SourceInfo describes the state of a working tree at build time.
type SourceInfo struct {
	// Revision is the full commit SHA of HEAD.
	Revision string

	// Branch is the short branch name, or "HEAD" when detached.
	Branch string

	// Dirty is true when tracked or untracked files differ from HEAD.
	Dirty bool

	// Remote is the URL of the "origin" remote, or "" when there is none.
	Remote string
}

// Open locates the working tree that contains path.
func Open(path string) (*Repo, error) {
	output, err := runGit(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	return &Repo{Root: strings.TrimSpace(output)}, nil
}

// CurrentBranch returns the short name of the checked-out branch.
// Returns "HEAD" in a detached HEAD state.
func (r *Repo) CurrentBranch() (string, error) {
	output, err := runGit(r.Root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// HeadCommit returns the full SHA of HEAD.
func (r *Repo) HeadCommit() (string, error) {
	output, err := runGit(r.Root, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Changes returns the paths reported by `git status --porcelain`, i.e.
// modified, staged and untracked files. Ignored files are not included.
func (r *Repo) Changes() ([]string, error) {
	output, err := runGit(r.Root, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseStatusPorcelain(output), nil
}

// IsDirty reports whether the working tree has any changes.
func (r *Repo) IsDirty() (bool, error) {
	changes, err := r.Changes()
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}

// RemoteURL returns the URL of the named remote, or "" if it does not exist.
func (r *Repo) RemoteURL(name string) string {
	output, err := runGit(r.Root, "remote", "get-url", name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(output)
}

// Info gathers everything the image labels need in one call.
func (r *Repo) Info() (*SourceInfo, error) {
	revision, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		return nil, err
	}
	dirty, err := r.IsDirty()
	if err != nil {
		return nil, err
	}
	return &SourceInfo{
		Revision: revision,
		Branch:   branch,
		Dirty:    dirty,
		Remote:   r.RemoteURL("origin"),
	}, nil
}

// runGit executes git with args in repoPath and returns its stdout.
//
// The directory is passed with -C rather than exec.Cmd.Dir so that git
// resolves it the same way it would on the command line. On failure the
// error carries ExitGitError and git's stderr.
func runGit(repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)

	// #nosec G204 -- args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}
	return stdout.String(), nil
}

// parseStatusPorcelain extracts paths from `git status --porcelain` (v1)
// output.
//
// Each line is "XY <path>" where XY is the two-letter status. Renames and
// copies are written "XY <from> -> <to>"; the destination is returned.
// Paths with special characters are quoted by git and kept as-is.
func parseStatusPorcelain(output string) []string {
	var paths []string
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}
		paths = append(paths, path)
	}
	return paths
}
