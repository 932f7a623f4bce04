// image_build.go implements "secureqr image build".

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/docker"
	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/vcs"
)

// imageBuildFlags holds the flag values for the image build command.
type imageBuildFlags struct {
	// contextDir is the build context. Empty selects the root of the Git
	// repository containing the working directory, or the working
	// directory itself outside a repository.
	contextDir string

	// dockerfile is a Dockerfile inside the context. Empty uses the
	// Dockerfile embedded in the binary.
	dockerfile string

	tags    []string
	noCache bool
	pull    bool
}

func newImageBuildCommand() *cobra.Command {
	flags := &imageBuildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the service image",
		Long: `Build the secureqr image from the source tree.

The build uses the Dockerfile embedded in this binary unless --dockerfile
names one in the context. Files matched by .dockerignore are not sent to
the daemon. When the context is a Git repository the image is labelled
with its revision and origin URL.

Examples:
  secureqr image build
  secureqr image build --tag registry.example.com/secureqr:1.2.0 --pull
  secureqr image build --context ./secureqr --no-cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageBuild(cmd.Context(), cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.contextDir, "context", "", "Build context directory (default: repository root)")
	cmd.Flags().StringVarP(&flags.dockerfile, "dockerfile", "f", "", "Dockerfile inside the context (default: embedded)")
	cmd.Flags().StringSliceVarP(&flags.tags, "tag", "t", []string{docker.DefaultImage}, "Image tag (repeatable)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Do not use the build cache")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "Always pull base images")

	return cmd
}

// runImageBuild resolves the context, gathers labels and runs the build.
func runImageBuild(ctx context.Context, cmd *cobra.Command, flags *imageBuildFlags) error {
	contextDir, src, err := resolveBuildContext(flags.contextDir)
	if err != nil {
		return err
	}
	VerboseLog("Build context: %s", contextDir)

	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	opts := docker.BuildOptions{
		ContextDir: contextDir,
		Dockerfile: flags.dockerfile,
		Tags:       flags.tags,
		Labels:     docker.ImageLabels(src, Version, time.Now()),
		BuildArgs:  map[string]string{"VERSION": Version},
		NoCache:    flags.noCache,
		Pull:       flags.pull,
	}

	// With --json the build log goes to stderr so stdout stays parseable.
	var progress io.Writer = cmd.OutOrStdout()
	if IsJSONOutput() {
		progress = cmd.ErrOrStderr()
	}
	if err := docker.BuildImage(ctx, cli, opts, progress); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"tags":   opts.Tags,
			"labels": opts.Labels,
		})
	}
	for _, tag := range opts.Tags {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Built %s\n", tag)
	}
	return nil
}

// resolveBuildContext returns the absolute context directory and, when it
// is inside a Git repository, the source information for the labels.
func resolveBuildContext(dir string) (string, *vcs.SourceInfo, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", nil, model.WrapCLIError(model.ExitGeneralError, "failed to get working directory", err)
		}
		dir = wd
		if repo, err := vcs.Open(wd); err == nil {
			dir = repo.Root
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, model.WrapCLIError(model.ExitInvalidInput, "invalid build context", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", nil, model.NewCLIError(model.ExitInvalidInput,
			fmt.Sprintf("build context %s is not a directory", abs))
	}

	repo, err := vcs.Open(abs)
	if err != nil {
		VerboseLog("Not a Git repository, skipping revision labels: %v", err)
		return abs, nil, nil
	}
	src, err := repo.Info()
	if err != nil {
		// A repository without commits has no revision to record.
		VerboseLog("Skipping revision labels: %v", err)
		return abs, nil, nil
	}
	return abs, src, nil
}
