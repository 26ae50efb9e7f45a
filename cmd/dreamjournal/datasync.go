package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/at-ishikawa/dreamjournal/internal/datasync"
	"github.com/at-ishikawa/dreamjournal/internal/dream"
)

func newInitDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the dream journal tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Database schema ready at %s\n", cfg.Database.Path)
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every dream as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			journal, err := datasync.NewExporter(dream.NewDBRepository(db)).Export(ctx)
			if err != nil {
				return fmt.Errorf("exporter.Export() > %w", err)
			}

			if output == "" {
				if err := datasync.WriteJournal(cmd.OutOrStdout(), journal); err != nil {
					return fmt.Errorf("datasync.WriteJournal() > %w", err)
				}
			} else if err := writeJournalFile(output, journal); err != nil {
				return err
			}

			cliLogger.Info().Int("dreams", len(journal.Dreams)).Str("output", output).Msg("export completed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to stdout)")
	return cmd
}

// writeJournalFile writes journal to path. A failed close is reported since
// it can drop the last buffered bytes of the export.
func writeJournalFile(path string, journal *datasync.Journal) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("os.Create(%s) > %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("f.Close(%s) > %w", path, closeErr)
		}
	}()

	if err := datasync.WriteJournal(f, journal); err != nil {
		return fmt.Errorf("datasync.WriteJournal(%s) > %w", path, err)
	}
	return nil
}

func newImportCommand() *cobra.Command {
	var file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import dreams from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("os.Open(%s) > %w", file, err)
			}
			defer func() {
				_ = f.Close()
			}()
			journal, err := datasync.ReadJournal(f)
			if err != nil {
				return fmt.Errorf("datasync.ReadJournal(%s) > %w", file, err)
			}

			_, db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			out := cmd.OutOrStdout()
			importer := datasync.NewImporter(dream.NewDBRepository(db), out)
			result, importErr := importer.Import(ctx, journal, datasync.ImportOptions{DryRun: dryRun})
			if result != nil {
				printImportSummary(out, result, dryRun)
			}
			if importErr != nil {
				return fmt.Errorf("importer.Import() > %w", importErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file to import")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview changes without modifying the database")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printImportSummary(out io.Writer, result *datasync.ImportResult, dryRun bool) {
	fmt.Fprintln(out, "\nImport Summary:")
	if dryRun {
		color.New(color.FgYellow).Fprintln(out, "  (dry-run mode, no changes made)")
	}
	fmt.Fprintf(out, "  Dreams: %s new, %s skipped\n",
		color.GreenString("%d", result.DreamsNew),
		color.YellowString("%d", result.DreamsSkipped),
	)
}
