package decentium

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/decentium/decentium-go/internal/config"
	"github.com/decentium/decentium-go/internal/extractor"
	"github.com/decentium/decentium-go/internal/output"
	"github.com/decentium/decentium-go/internal/output/postgresql"
)

const (
	outputJSONL    = "jsonl"
	outputPostgres = "postgres"
)

type scanOptions struct {
	start, stop uint32
	output      string
	file        string
	dsn         string
	live        bool
	blockTime   time.Duration
	fillGaps    bool
}

func newScanCmd(a *app) *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Write the actions of a block range to an output",
		Long: `Fetches every block of the range, decodes its actions and writes one record
per action. Without --start the scan resumes after the latest block already in
the output. Without --stop it ends at the current head, or follows the head
with --live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			handler, err := a.openOutput(cmd, opts)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := handler.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("failed to close output: %w", cerr)
				}
			}()

			cfg := config.ExtractConfig{
				MaxConcurrency: a.cfg.MaxConcurrency,
				Live:           opts.live,
				BlockTime:      opts.blockTime,
				FillGaps:       opts.fillGaps,
			}
			return extractor.Extract(cmd.Context(), a.provider, opts.start, opts.stop, handler, cfg)
		},
	}
	cmd.Flags().Uint32Var(&opts.start, "start", 0, "First block (0 resumes from the output)")
	cmd.Flags().Uint32Var(&opts.stop, "stop", 0, "Last block (0 is the current head)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputJSONL, "Output sink: jsonl or postgres")
	cmd.Flags().StringVar(&opts.file, "file", "-", "JSON lines file, - for stdout")
	cmd.Flags().StringVar(&opts.dsn, "postgres-dsn", "", "PostgreSQL connection string")
	cmd.Flags().BoolVar(&opts.live, "live", false, "Keep following the chain head")
	cmd.Flags().DurationVar(&opts.blockTime, "block-time", extractor.DefaultBlockTime, "Head polling interval in live mode")
	cmd.Flags().BoolVar(&opts.fillGaps, "fill-gaps", false, "Re-extract blocks missing from the output first")
	return cmd
}

// nopCloser keeps the handler from closing a writer it does not own.
type nopCloser struct{ io.Writer }

func (a *app) openOutput(cmd *cobra.Command, opts scanOptions) (output.OutputHandler, error) {
	switch opts.output {
	case outputJSONL:
		if opts.file == "-" {
			return output.NewJSONLinesHandler(nopCloser{a.out}), nil
		}
		f, err := os.OpenFile(opts.file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open output file: %w", err)
		}
		return output.NewJSONLinesHandler(f), nil
	case outputPostgres:
		if opts.dsn == "" {
			return nil, fmt.Errorf("--postgres-dsn is required with --output %s", outputPostgres)
		}
		h, err := postgresql.NewPostgresOutputHandler(cmd.Context(), opts.dsn, nil)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown output %q, want %s or %s", opts.output, outputJSONL, outputPostgres)
	}
}
