package main

import (
	"context"

	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/spf13/cobra"
)

var purgeMonths int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete points older than --months",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			svc tsdomain.Service
			res *tsdomain.PurgeResult
		)
		err := runOneShot(cmd.Context(), "purge", func(ctx context.Context) (int64, error) {
			var purgeErr error
			res, purgeErr = svc.Purge(ctx, tsdomain.PurgeRequest{Months: purgeMonths})
			if purgeErr != nil {
				return 0, purgeErr
			}
			return res.Deleted, nil
		}, &svc)
		if err != nil {
			return err
		}
		printOK(cmd, "%d rows deleted before %s", res.Deleted, res.Cutoff)
		return nil
	},
}

func init() {
	purgeCmd.Flags().IntVar(&purgeMonths, "months", 6, "retention window in months (1-120)")
}
