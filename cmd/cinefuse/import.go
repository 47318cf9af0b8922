package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	movieuc "github.com/kailas-cloud/cinefuse/internal/usecase/movie"
)

type importOptions struct {
	limit     int
	reset     bool
	batchSize int
}

func newImportCmd(env *string) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <movies.json>",
		Short: "Embed and index a movie catalog file",
		Long: `Import reads a JSON array of movies (or a single movie object),
embeds each one and writes it to the search index.

Examples:
  cinefuse import data/movies.json
  cinefuse import data/movies.json --reset --limit 500 --batch-size 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}
			inputs, err := movieuc.DecodeInputs(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			a, err := newApp(cmd.Context(), *env)
			if err != nil {
				return err
			}
			defer a.close()

			if opts.batchSize > 0 {
				a.movies.WithBatchSize(opts.batchSize)
			}
			return runImport(cmd.Context(), a.movies, inputs, &opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", 0, "import only the first N movies (0 = all)")
	f.BoolVar(&opts.reset, "reset", false, "drop and recreate the index before importing")
	f.IntVar(&opts.batchSize, "batch-size", 0, "movies per write batch (default from config)")

	return cmd
}

// importer is the slice of the movie service the command needs.
type importer interface {
	EnsureIndex(ctx context.Context) error
	Reset(ctx context.Context) error
	Import(ctx context.Context, inputs []movieuc.Input, progress movieuc.ProgressFunc) (movieuc.ImportSummary, error)
}

func runImport(ctx context.Context, svc importer, inputs []movieuc.Input, opts *importOptions, out io.Writer) error {
	if opts.limit > 0 && opts.limit < len(inputs) {
		inputs = inputs[:opts.limit]
	}

	if opts.reset {
		fmt.Fprintln(out, "Resetting movie index...")
		if err := svc.Reset(ctx); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
	} else if err := svc.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	fmt.Fprintf(out, "Importing %d movies\n", len(inputs))
	summary, err := svc.Import(ctx, inputs, func(done, total int) {
		fmt.Fprintf(out, "  %d/%d\n", done, total)
	})
	if err != nil {
		return fmt.Errorf("import interrupted after %d movies: %w", summary.Imported, err)
	}

	fmt.Fprintf(out, "Imported %d of %d movies\n", summary.Imported, summary.Total)
	for _, f := range summary.Failed {
		fmt.Fprintf(out, "  failed %s: %v\n", f.ID, f.Err)
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d movies failed to import", len(summary.Failed))
	}
	return nil
}
