// Package datasync provides import/export of the journal between YAML files and the database.
package datasync

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/dreamjournal/internal/dream"
)

// Journal is the document written by export and read by import.
type Journal struct {
	Dreams []dream.Record `yaml:"dreams"`
}

// ReadJournal decodes a YAML journal. An empty document yields no dreams.
func ReadJournal(r io.Reader) (*Journal, error) {
	var journal Journal
	if err := yaml.NewDecoder(r).Decode(&journal); err != nil {
		if errors.Is(err, io.EOF) {
			return &journal, nil
		}
		return nil, fmt.Errorf("yaml.Decode() > %w", err)
	}
	return &journal, nil
}

// WriteJournal encodes journal as YAML with two space indentation.
func WriteJournal(w io.Writer, journal *Journal) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(journal); err != nil {
		return fmt.Errorf("yaml.Encode() > %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("encoder.Close() > %w", err)
	}
	return nil
}

// ImportResult tracks counts for an import.
type ImportResult struct {
	DreamsNew     int
	DreamsSkipped int
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun bool
}

// Importer writes journal records into the repository.
type Importer struct {
	repo   dream.Repository
	writer io.Writer
}

// NewImporter creates a new Importer. Progress lines are written to writer.
func NewImporter(repo dream.Repository, writer io.Writer) *Importer {
	return &Importer{
		repo:   repo,
		writer: writer,
	}
}

type dreamKey struct {
	name string
	date string
}

// Import creates every record of journal unless a dream with the same name and
// date already exists, either in the store or earlier in the same journal.
//
// Each record is created in its own transaction, so an import is not atomic.
// When a Create fails, the dreams created before it stay in the store and the
// counts reached so far are returned together with the error. Running the
// import again skips them.
func (imp *Importer) Import(ctx context.Context, journal *Journal, opts ImportOptions) (*ImportResult, error) {
	var result ImportResult

	existing, err := imp.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindAll() > %w", err)
	}
	seen := make(map[dreamKey]struct{}, len(existing)+len(journal.Dreams))
	for _, r := range existing {
		seen[dreamKey{name: r.Name, date: r.DreamDate.String()}] = struct{}{}
	}

	for _, r := range journal.Dreams {
		key := dreamKey{name: r.Name, date: r.DreamDate.String()}
		if _, ok := seen[key]; ok {
			fmt.Fprintf(imp.writer, "  [SKIP]  %q (%s)\n", key.name, key.date)
			result.DreamsSkipped++
			continue
		}

		if !opts.DryRun {
			if _, err := imp.repo.Create(ctx, r.Payload()); err != nil {
				return &result, fmt.Errorf("Create(%s, %s) after %d new, %d skipped > %w",
					key.name, key.date, result.DreamsNew, result.DreamsSkipped, err)
			}
		}
		seen[key] = struct{}{}
		fmt.Fprintf(imp.writer, "  [NEW]  %q (%s)\n", key.name, key.date)
		result.DreamsNew++
	}

	return &result, nil
}

// Exporter reads the repository into a Journal.
type Exporter struct {
	repo dream.Repository
}

// NewExporter creates a new Exporter.
func NewExporter(repo dream.Repository) *Exporter {
	return &Exporter{repo: repo}
}

// Export reads every dream with its emotions, ordered by id.
func (e *Exporter) Export(ctx context.Context) (*Journal, error) {
	records, err := e.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo.FindAll() > %w", err)
	}
	if records == nil {
		records = []dream.Record{}
	}
	return &Journal{Dreams: records}, nil
}
