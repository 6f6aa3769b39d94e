// Package engine runs a whole search: handshake, query, parse and the
// resolution of every record.
package engine

import (
	"context"
	"courtfetch/internal/captcha"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/ledger"
	"courtfetch/internal/portal"
	"courtfetch/internal/query"
	"courtfetch/internal/records"
	"courtfetch/internal/resolver"
	"courtfetch/internal/session"
	"courtfetch/internal/store"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	report_engine_run_search = "engine.run-search"
	report_engine_record     = "engine.record"
	report_engine_journal    = "engine.journal"
	report_engine_documents  = "engine.documents-written"
)

const (
	RawResponseFile = "raw_response.txt"
	ResultsFile     = "results.html"
)

type Status string

const (
	StatusDownloaded          Status = "downloaded"
	StatusAlreadyPresent      Status = "already_present"
	StatusNoLocator           Status = "no_locator"
	StatusNoDocumentCandidate Status = "no_document_candidate"
	StatusInvalidDocument     Status = "invalid_document"
	StatusTransportError      Status = "transport_error"
	StatusSessionExpired      Status = "session_expired"
	StatusCancelled           Status = "cancelled"
	StatusFailed              Status = "failed"
)

// RecordView is a record together with what happened to it.
type RecordView struct {
	records.Record
	Status Status
	Path   string
	Detail string
}

type Report struct {
	Records          []RecordView
	DocumentsWritten int
	SearchDir        string
}

// Sessions acquires and refreshes portal sessions, usually a
// *session.Manager.
type Sessions interface {
	Acquire(ctx context.Context, profile portal.Profile) (*session.Session, error)
	Refresh(ctx context.Context, s *session.Session, generation uint64) error
}

type Submitter interface {
	Submit(ctx context.Context, s *session.Session, q query.Query) (string, error)
}

type DocumentResolver interface {
	Resolve(ctx context.Context, s *session.Session, r records.Record, target string) (store.Document, error)
}

// Journal is told about every search, usually a *ledger.Ledger.
type Journal interface {
	Begin(ctx context.Context, entry ledger.Entry) (int64, error)
	Finish(ctx context.Context, id int64, result ledger.Result) error
}

type Options struct {
	Sessions   Sessions
	Dispatcher Submitter
	Resolver   DocumentResolver
	Store      *store.Store
	// Journal is optional.
	Journal Journal
	Clock   chrono.API
	// Workers is the number of records resolved at once, clamped to 1..4.
	Workers int
}

type Engine struct {
	sessions   Sessions
	dispatcher Submitter
	resolver   DocumentResolver
	store      *store.Store
	journal    Journal
	clock      chrono.API
	workers    int
	tel        telemetry.API
}

func NewEngine(opts Options, tel telemetry.API) Engine {
	assert.NotNil(opts.Sessions)
	assert.NotNil(opts.Dispatcher)
	assert.NotNil(opts.Resolver)
	assert.NotNil(opts.Store)
	assert.NotNil(opts.Clock)
	assert.NotNil(tel)

	return Engine{
		sessions:   opts.Sessions,
		dispatcher: opts.Dispatcher,
		resolver:   opts.Resolver,
		store:      opts.Store,
		journal:    opts.Journal,
		clock:      opts.Clock,
		workers:    min(max(opts.Workers, 1), 4),
		tel:        telemetry.NewScopedAPI("engine", tel),
	}
}

// RunSearch runs q against a portal with a fresh session. Failures local
// to a record end up in its status, only a failed handshake, a rejected
// submission or cancellation abort the search.
func (e Engine) RunSearch(ctx context.Context, profile portal.Profile, q query.Query) (Report, error) {
	report := Report{
		SearchDir: e.store.SearchDir(profile.ID, e.clock.Now(), q.Label()),
	}
	err := q.Validate()
	if err != nil {
		return report, err
	}

	journalID := e.beginJournal(ctx, profile, q, report.SearchDir)
	report, err = e.run(ctx, profile, q, report)
	e.finishJournal(ctx, journalID, report, err)

	if err != nil {
		e.tel.ReportWarning(report_engine_run_search, profile.ID, q.Label(), err)
		return report, err
	}
	e.tel.ReportCount(report_engine_documents, int64(report.DocumentsWritten))
	return report, nil
}

func (e Engine) run(ctx context.Context, profile portal.Profile, q query.Query, report Report) (Report, error) {
	s, err := e.sessions.Acquire(ctx, profile)
	if err != nil {
		return report, fmt.Errorf("acquire session: %w", err)
	}
	raw, err := e.dispatcher.Submit(ctx, s, q)
	if err != nil {
		return report, fmt.Errorf("submit query: %w", err)
	}
	_, err = e.store.WriteArtifact(report.SearchDir, RawResponseFile, []byte(raw))
	if err != nil {
		return report, err
	}

	parser := records.NewParser(profile.Layout, e.tel)
	recs := parser.Parse(raw)
	report.Records = make([]RecordView, len(recs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)
	for i, rec := range recs {
		report.Records[i] = RecordView{Record: rec}
		if !rec.HasLocator() {
			report.Records[i].Status = StatusNoLocator
			e.tel.ReportDebug("record skipped", rec.Sequence, rec.CaseNumber)
			continue
		}

		group.Go(func() error {
			view, err := e.resolve(groupCtx, s, rec, report.SearchDir)
			report.Records[i] = view
			return err
		})
	}
	err = group.Wait()

	for i := range report.Records {
		if report.Records[i].Status == "" {
			report.Records[i].Status = StatusCancelled
		}
		if report.Records[i].Status == StatusDownloaded {
			report.DocumentsWritten++
		}
	}
	if renderErr := e.writeResults(report); renderErr != nil {
		e.tel.ReportWarning(report_engine_run_search, "results page", renderErr)
	}

	if err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// resolve fetches one record, refreshing the shared session once when the
// portal says it expired. The error is only non-nil when the whole search
// has to stop.
func (e Engine) resolve(ctx context.Context, s *session.Session, rec records.Record, searchDir string) (RecordView, error) {
	view := RecordView{Record: rec}
	target := e.store.DocumentPath(searchDir, rec.OrderDate, rec.CaseNumber)

	generation := s.Generation()
	doc, err := e.resolver.Resolve(ctx, s, rec, target)
	if errors.Is(err, session.ErrSessionExpired) {
		s.MarkExpired(generation)
		refreshErr := e.sessions.Refresh(ctx, s, generation)
		if errors.Is(refreshErr, captcha.ErrChallengeUnsolved) {
			view.Status = StatusSessionExpired
			view.Detail = refreshErr.Error()
			return view, refreshErr
		}
		if refreshErr == nil {
			doc, err = e.resolver.Resolve(ctx, s, rec, target)
		}
	}

	view.Status = statusOf(doc, err)
	if err != nil {
		view.Detail = err.Error()
		e.tel.ReportDebug(report_engine_record, rec.Sequence, rec.CaseNumber, view.Status, err)
		return view, nil
	}
	view.Path = doc.Path
	return view, nil
}

func statusOf(doc store.Document, err error) Status {
	switch {
	case err == nil && doc.Existing:
		return StatusAlreadyPresent
	case err == nil:
		return StatusDownloaded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	case errors.Is(err, resolver.ErrNoDocumentCandidate):
		return StatusNoDocumentCandidate
	case errors.Is(err, store.ErrInvalidDocument):
		return StatusInvalidDocument
	case errors.Is(err, resolver.ErrTransport):
		return StatusTransportError
	case errors.Is(err, session.ErrSessionExpired):
		return StatusSessionExpired
	}
	return StatusFailed
}

func (e Engine) beginJournal(ctx context.Context, profile portal.Profile, q query.Query, searchDir string) int64 {
	if e.journal == nil {
		return 0
	}
	id, err := e.journal.Begin(ctx, ledger.Entry{
		Portal:    profile.ID,
		Kind:      string(q.Kind()),
		Label:     q.Label(),
		SearchDir: searchDir,
	})
	if err != nil {
		e.tel.ReportBroken(report_engine_journal, err)
		return 0
	}
	return id
}

func (e Engine) finishJournal(ctx context.Context, id int64, report Report, searchErr error) {
	if e.journal == nil || id == 0 {
		return
	}
	outcomes := make([]ledger.Outcome, len(report.Records))
	for i, view := range report.Records {
		outcomes[i] = ledger.Outcome{
			Sequence:   view.Sequence,
			CaseNumber: view.CaseNumber,
			OrderDate:  view.OrderDate,
			Status:     string(view.Status),
			Path:       view.Path,
			Detail:     view.Detail,
		}
	}
	// the search context may already be cancelled, the journal entry is still wanted
	err := e.journal.Finish(context.WithoutCancel(ctx), id, ledger.Result{
		Records:          len(report.Records),
		DocumentsWritten: report.DocumentsWritten,
		Err:              searchErr,
		Outcomes:         outcomes,
	})
	if err != nil {
		e.tel.ReportBroken(report_engine_journal, err, id)
	}
}
