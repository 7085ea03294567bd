package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egobogo/addvar/internal/memory"
)

func newLedgerCmd(o *rootOptions) *cobra.Command {
	var (
		node   string
		action string
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print the audit ledger as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if action != "" && !memory.Action(action).Valid() {
				return fmt.Errorf("unknown ledger action %q", action)
			}
			store, err := openStore(o.cfg.Memory, o.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for e, err := range store.Ledger(cmd.Context()) {
				if err != nil {
					return err
				}
				if (node != "" && e.NodeID != node) || (action != "" && string(e.Action) != action) {
					continue
				}
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "only entries for this unit id")
	cmd.Flags().StringVar(&action, "action", "", "only entries with this action (store, recall, update, merge)")
	return cmd
}
