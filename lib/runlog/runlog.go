// Package runlog keeps a local journal of export runs so repeated exports
// can be audited and compared without re-reading the output files.
package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

type Run struct {
	ID         int64
	Dataset    string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Skipped    int
	OutputPath string
}

type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path. Use
// ":memory:" for an ephemeral journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize run journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Record(ctx context.Context, run Run) error {
	_, err := j.db.ExecContext(
		ctx,
		`insert into export_runs
			(dataset, mode, started_at, finished_at, processed, skipped, output_path)
			values (?, ?, ?, ?, ?, ?, ?)`,
		run.Dataset,
		run.Mode,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix(),
		run.Processed,
		run.Skipped,
		run.OutputPath,
	)
	if err != nil {
		return fmt.Errorf("record export run: %w", err)
	}
	return nil
}

var ErrNoRuns = errors.New("no export runs recorded")

// Last returns the most recently finished run for a dataset.
func (j *Journal) Last(ctx context.Context, dataset string) (Run, error) {
	row := j.db.QueryRowContext(
		ctx,
		`select id, dataset, mode, started_at, finished_at, processed, skipped, output_path
			from export_runs where dataset = ?
			order by finished_at desc, id desc limit 1`,
		dataset,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	return run, err
}

// History returns runs for a dataset, newest first, up to limit.
func (j *Journal) History(ctx context.Context, dataset string, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(
		ctx,
		`select id, dataset, mode, started_at, finished_at, processed, skipped, output_path
			from export_runs where dataset = ?
			order by finished_at desc, id desc limit ?`,
		dataset, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (Run, error) {
	var run Run
	var startedAt, finishedAt int64
	err := row.Scan(
		&run.ID,
		&run.Dataset,
		&run.Mode,
		&startedAt,
		&finishedAt,
		&run.Processed,
		&run.Skipped,
		&run.OutputPath,
	)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.FinishedAt = time.Unix(finishedAt, 0).UTC()
	return run, nil
}
