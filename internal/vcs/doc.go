// Package vcs reads Git metadata for image builds.
//
// `secureqr image build` stamps the image with OCI labels describing the
// source it was built from: the commit, the branch, whether the working
// tree had uncommitted changes and the origin URL. This package gathers
// that information by shelling out to the git CLI, so it sees exactly
// what the user's git sees (worktrees, safe.directory, credential config).
//
// All git failures are returned as model.CLIError with ExitGitError.
package vcs
