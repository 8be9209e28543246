package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	"github.com/spf13/cobra"
)

var ingestFlags struct {
	file       string
	client     string
	region     string
	messageID  string
	receivedAt string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one workbook file from disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(ingestFlags.file) == "" || strings.TrimSpace(ingestFlags.client) == "" {
			return errors.New("--file and --client are required")
		}

		var receivedAt *time.Time
		if raw := strings.TrimSpace(ingestFlags.receivedAt); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("--received-at: %w", err)
			}
			t = t.UTC()
			receivedAt = &t
		}

		data, err := os.ReadFile(ingestFlags.file)
		if err != nil {
			return err
		}

		var (
			svc ingestdomain.Service
			res *ingestdomain.Result
		)
		err = runOneShot(cmd.Context(), "ingest", func(ctx context.Context) (int64, error) {
			var ingestErr error
			res, ingestErr = svc.IngestFile(ctx, ingestdomain.FileRequest{
				Source:     rundomain.SourceCLI,
				Client:     ingestFlags.client,
				Region:     ingestFlags.region,
				FileName:   filepath.Base(ingestFlags.file),
				Data:       data,
				MessageID:  ingestFlags.messageID,
				ReceivedAt: receivedAt,
			})
			if ingestErr != nil {
				return 0, ingestErr
			}
			return int64(res.RowsWritten), nil
		}, &svc)
		if err != nil {
			return err
		}

		printOK(cmd, "%d rows written, %d parameters", res.RowsWritten, res.UniqueParameters)
		cmd.Printf("  status:   %s\n", res.Status)
		cmd.Printf("  workbook: %s\n", res.Handle)
		cmd.Printf("  sheets:   %s\n", color.GreenString(strings.Join(res.SheetsIngested, ", ")))
		if len(res.SheetsSkipped) > 0 {
			printWarn(cmd, "skipped sheets: %s", strings.Join(res.SheetsSkipped, ", "))
		}
		return nil
	},
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.file, "file", "", "workbook path (.xlsx, .xls or .csv)")
	f.StringVar(&ingestFlags.client, "client", "", "client name")
	f.StringVar(&ingestFlags.region, "region", "", "region, for regioned clients")
	f.StringVar(&ingestFlags.messageID, "message-id", "", "provenance message id")
	f.StringVar(&ingestFlags.receivedAt, "received-at", "", "RFC3339 receive time; picks the header year")
}
