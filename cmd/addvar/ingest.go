package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/egobogo/addvar/internal/ingest"
	"github.com/egobogo/addvar/internal/ingest/gitsource"
)

func newIngestCmd(o *rootOptions) *cobra.Command {
	var (
		gitPath  string
		gitURL   string
		gitUser  string
		gitToken string
	)
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Extract tangent references from exported transcripts into the store",
		Long: "Scans .json, .md, .txt, .html and .htm exports in a directory, or in the HEAD\n" +
			"commit of a git repository with --git, and appends one unit per reference.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src ingest.Source
			switch {
			case gitPath != "":
				var auth *gitsource.Auth
				if gitToken != "" {
					auth = &gitsource.Auth{Username: gitUser, Token: gitToken}
				}
				gs, err := gitsource.NewGitSource(cmd.Context(), gitURL, gitPath, auth)
				if err != nil {
					return err
				}
				src = gs
			case len(args) == 1:
				src = ingest.DirSource{FS: os.DirFS(args[0])}
			default:
				return errors.New("a directory argument or --git is required")
			}

			svc, err := newService(o.cfg, o.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			stats, err := ingest.NewPipeline(svc.store, o.logger).Run(cmd.Context(), src)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		},
	}
	cmd.Flags().StringVar(&gitPath, "git", "", "local path of a git repository to read (cloned from --url if absent)")
	cmd.Flags().StringVar(&gitURL, "url", "", "remote to clone when --git does not exist yet")
	cmd.Flags().StringVar(&gitUser, "git-user", "git", "basic-auth username for cloning")
	cmd.Flags().StringVar(&gitToken, "git-token", os.Getenv("GIT_TOKEN"), "basic-auth token for cloning")
	return cmd
}
