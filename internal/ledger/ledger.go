// Package ledger keeps an audit trail of every search and the outcome of
// each of its records.
package ledger

import (
	"context"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/configutil"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/ledger/db"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const report_ledger_finish = "ledger.finish"

// Config picks the database, URL (a libsql:// or http(s):// libsql server)
// takes precedence over File (a local sqlite database).
type Config struct {
	File      string `json:"file"`
	URL       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c Config) Enabled() bool {
	return c.File != "" || c.URL != ""
}

// Open opens the configured database, relative files are resolved against
// baseDir.
func (c Config) Open(baseDir string) (*sql.DB, error) {
	if c.URL != "" {
		dsn := c.URL
		if c.AuthToken != "" {
			dsn += "?authToken=" + c.AuthToken
		}
		return sql.Open("libsql", dsn)
	}
	if c.File == "" {
		return nil, fmt.Errorf("ledger: a path was not specified")
	}

	dbpath, err := configutil.ResolvePath(baseDir, c.File)
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(dbpath)
	if os.IsNotExist(statErr) {
		f, err := os.Create(dbpath)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	database, err := sql.Open("sqlite", dbpath)
	if err != nil {
		return nil, err
	}
	// sqlite only allows one writer at a time
	database.SetMaxOpenConns(1)
	_, err = database.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

type Entry struct {
	Portal    string
	Kind      string
	Label     string
	SearchDir string
}

type Outcome struct {
	Sequence   int
	CaseNumber string
	OrderDate  string
	Status     string
	Path       string
	Detail     string
}

type Result struct {
	Records          int
	DocumentsWritten int
	Err              error
	Outcomes         []Outcome
}

type Ledger struct {
	qry    *db.Queries
	makeTx db.MakeTx
	clock  chrono.API
	tel    telemetry.API
}

// New creates the schema when it is missing.
func New(ctx context.Context, database *sql.DB, clock chrono.API, tel telemetry.API) (*Ledger, error) {
	assert.NotNil(database)
	assert.NotNil(clock)
	assert.NotNil(tel)

	_, err := database.ExecContext(ctx, db.Schema)
	if err != nil {
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}
	return &Ledger{
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		clock:  clock,
		tel:    telemetry.NewScopedAPI("ledger", tel),
	}, nil
}

// Begin records the start of a search and returns its id.
func (l *Ledger) Begin(ctx context.Context, entry Entry) (int64, error) {
	return l.qry.CreateSearch(ctx, db.CreateSearchParams{
		Portal:    entry.Portal,
		Kind:      entry.Kind,
		Label:     entry.Label,
		SearchDir: entry.SearchDir,
		StartedAt: l.clock.Now().Unix(),
	})
}

// Finish stores the result of a search and all of its outcomes at once.
func (l *Ledger) Finish(ctx context.Context, id int64, result Result) error {
	tx, discard, commit, err := l.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	message := ""
	if result.Err != nil {
		message = result.Err.Error()
	}
	err = tx.FinishSearch(ctx, db.FinishSearchParams{
		FinishedAt:       sql.NullInt64{Int64: l.clock.Now().Unix(), Valid: true},
		RecordCount:      int64(result.Records),
		DocumentsWritten: int64(result.DocumentsWritten),
		Error:            message,
		ID:               id,
	})
	if err != nil {
		l.tel.ReportBroken(report_ledger_finish, err, id)
		return err
	}

	for _, o := range result.Outcomes {
		err = tx.CreateOutcome(ctx, db.CreateOutcomeParams{
			SearchID:   id,
			Sequence:   int64(o.Sequence),
			CaseNumber: o.CaseNumber,
			OrderDate:  o.OrderDate,
			Status:     o.Status,
			Path:       o.Path,
			Detail:     o.Detail,
		})
		if err != nil {
			l.tel.ReportBroken(report_ledger_finish, err, id, o.Sequence)
			return err
		}
	}
	return commit()
}

type SearchSummary struct {
	ID               int64
	Portal           string
	Kind             string
	Label            string
	SearchDir        string
	StartedAt        time.Time
	FinishedAt       time.Time
	Records          int
	DocumentsWritten int
	Error            string
}

// Recent lists the latest searches, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]SearchSummary, error) {
	rows, err := l.qry.ListSearches(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]SearchSummary, len(rows))
	for i, row := range rows {
		out[i] = SearchSummary{
			ID:               row.ID,
			Portal:           row.Portal,
			Kind:             row.Kind,
			Label:            row.Label,
			SearchDir:        row.SearchDir,
			StartedAt:        time.Unix(row.StartedAt, 0).In(l.clock.Location()),
			Records:          int(row.RecordCount),
			DocumentsWritten: int(row.DocumentsWritten),
			Error:            row.Error,
		}
		if row.FinishedAt.Valid {
			out[i].FinishedAt = time.Unix(row.FinishedAt.Int64, 0).In(l.clock.Location())
		}
	}
	return out, nil
}

// Outcomes lists the per-record outcomes of a search in feed order.
func (l *Ledger) Outcomes(ctx context.Context, searchID int64) ([]Outcome, error) {
	rows, err := l.qry.GetOutcomes(ctx, searchID)
	if err != nil {
		return nil, err
	}
	out := make([]Outcome, len(rows))
	for i, row := range rows {
		out[i] = Outcome{
			Sequence:   int(row.Sequence),
			CaseNumber: row.CaseNumber,
			OrderDate:  row.OrderDate,
			Status:     row.Status,
			Path:       row.Path,
			Detail:     row.Detail,
		}
	}
	return out, nil
}

// LatestDownload finds where a case was last downloaded to, ok is false
// when it never was.
func (l *Ledger) LatestDownload(ctx context.Context, caseNumber string) (Outcome, bool, error) {
	row, err := l.qry.GetLatestDownload(ctx, caseNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, err
	}
	return Outcome{
		Sequence:   int(row.Sequence),
		CaseNumber: row.CaseNumber,
		OrderDate:  row.OrderDate,
		Status:     row.Status,
		Path:       row.Path,
		Detail:     row.Detail,
	}, true, nil
}
