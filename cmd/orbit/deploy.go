package main

import (
	"context"
	"fmt"
	"github.com/beldeveloper/orbit/pkg/client"
	"github.com/beldeveloper/orbit/pkg/progress"
	"github.com/gosimple/slug"
	"github.com/spf13/cobra"
	"io"
	"os"
	"strings"
)

func newDeployCmd(opts *options) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "deploy <site>",
		Short: "Trigger a deploy for an Orbit site",
		Long: "Trigger a deploy for an Orbit site and follow its progress.\n" +
			"The site is matched by the slug of its name. Without --ref the default branch is deployed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(opts.url, opts.token, nil)
			p := printer{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}
			return runDeploy(cmd.Context(), c, slug.Make(args[0]), strings.TrimSpace(ref), p)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", os.Getenv("DEPLOY_REF"), "git ref to deploy, the default branch when empty")
	return cmd
}

func runDeploy(ctx context.Context, c *client.Client, site string, ref string, p printer) error {
	s, err := c.Deploy(ctx, site, ref)
	if err != nil {
		return fmt.Errorf("cannot start the deployment of %s: %w", site, err)
	}
	defer s.Close()
	for {
		ev, err := s.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		p.print(ev)
	}
}

type printer struct {
	out io.Writer
	err io.Writer
}

func (p printer) print(ev progress.Progress) {
	switch ev := ev.(type) {
	case progress.Log:
		if ev.Level == progress.LevelError {
			fmt.Fprintln(p.err, ev.Text)
			return
		}
		fmt.Fprintln(p.out, ev.Text)
	case progress.Stage:
		fmt.Fprintln(p.out, infoString("info")+": "+stageSentence(ev))
	}
}

func stageSentence(s progress.Stage) string {
	switch s {
	case progress.StageStarting:
		return "Starting deployment"
	case progress.StageDownloaded:
		return "Downloaded repository"
	case progress.StageDepsInstalled:
		return "Installed dependencies"
	case progress.StageOptimized:
		return "Optimized deployment"
	case progress.StageMigrated:
		return "Migrated database"
	case progress.StageDeployed:
		return "Deployed site"
	}
	return string(s)
}
