package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/egobogo/addvar/internal/server"
)

func newQueryCmd(o *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "query <text>...",
		Short: "Rank stored units against a query",
		Long: "Builds the embedding index from the store and ranks units by cosine distance.\n" +
			"Without a usable provider it ranks by keyword overlap instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(o.cfg, o.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			resp, err := rankQuery(cmd.Context(), o.logger, svc, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", server.DefaultTopK, "number of results")
	return cmd
}

// rankQuery builds the index, then maps the query. A failed build leaves
// Map to fall back to keyword ranking.
func rankQuery(ctx context.Context, logger *slog.Logger, svc *service, query string, k int) (server.MapResponse, error) {
	if _, err := svc.api.BuildIndex(ctx); err != nil {
		logger.Warn("index build failed", "err", err)
	}
	return svc.api.Map(ctx, query, k)
}
