// Package reconcile owns the open roster view of one console session.
//
// A Controller loads a course month from the session draft or the remote
// store, applies edits to the draft, commits the rows back on save and
// keeps the two remote-backed totals. Remote calls are made with the
// controller unlocked; every result is applied only while the view that
// issued it is still the current one.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"gymroster/internal/adapters/remote"
	"gymroster/internal/application/aggregates"
	"gymroster/internal/domain/month"
	"gymroster/internal/domain/roster"
	"gymroster/internal/domain/totals"
)

// Validation and state errors.
var (
	ErrNoFile     = errors.New("no file selected")
	ErrAllPaid    = errors.New("every member has paid")
	ErrNoView     = errors.New("no course is open")
	ErrStaleView  = errors.New("the course view has changed")
	ErrNoSuchRow  = errors.New("row index out of range")
	ErrSuperseded = errors.New("load superseded by a newer view")
	ErrRowCreate  = errors.New("creating row failed")
)

// Remote is the part of the roster store the controller talks to.
type Remote interface {
	FetchRows(ctx context.Context, key roster.Key) ([]roster.Row, error)
	CommitRows(ctx context.Context, key roster.Key, rows []roster.Row) error
	CreateRow(ctx context.Context, key roster.Key, row roster.Row) (string, error)
	UploadDocument(ctx context.Context, userID, filename string, content io.Reader) error
	FetchTotals(ctx context.Context, key roster.Key) (totals.Totals, error)
	SaveTotals(ctx context.Context, key roster.Key, patch totals.Patch) error
	SendPaymentReminder(ctx context.Context, month string, emails []string) (remote.ReminderResult, error)
}

// Drafts is the session draft store.
type Drafts interface {
	Get(ctx context.Context, key roster.Key) ([]roster.Row, bool)
	Put(ctx context.Context, key roster.Key, rows []roster.Row) error
	Clear(ctx context.Context, key roster.Key) error
	Purge(ctx context.Context) error
}

// State of the open view.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// Source tells where the rows of a view came from.
type Source string

const (
	SourceNone   Source = ""
	SourceDraft  Source = "draft"
	SourceRemote Source = "remote"
	SourceEmpty  Source = "empty"
)

// Options configures a Controller.
type Options struct {
	// Months is the selectable month sequence. Defaults to the console
	// sequence starting at month.Default.
	Months []month.Month
	// DocumentCourses are the courses whose rows carry a document upload.
	DocumentCourses []string
}

// Snapshot is a copy of the view state for rendering.
type Snapshot struct {
	State      State
	Generation uint64
	Key        roster.Key
	Kind       string
	Source     Source
	Rows       []roster.Row
	Months     []string

	MonthlyTotal         decimal.Decimal
	MonthlyTotalShown    bool
	InstructorTotal      decimal.Decimal
	InstructorTotalShown bool
}

// Controller is the view context of one console session.
type Controller struct {
	remote          Remote
	drafts          Drafts
	months          []month.Month
	documentCourses []string

	mu         sync.Mutex
	state      State
	generation uint64
	revision   uint64 // bumped on every row change
	month      string
	key        roster.Key
	kind       string
	source     Source
	rows       []roster.Row

	monthlyTotal         decimal.Decimal
	monthlyTotalShown    bool
	instructorTotal      decimal.Decimal
	instructorTotalShown bool

	// set once the view changes a total, so a late prefetch leaves it alone
	cashTouched       bool
	instructorTouched bool

	// closed when the totals prefetch of the current view has finished
	totalsLoaded chan struct{}

	tasks       sync.WaitGroup
	persistMu   sync.Mutex
	persistSeq  uint64
	persistSent map[string]uint64
}

// New creates an idle controller on the default month.
func New(r Remote, d Drafts, opts Options) *Controller {
	months := opts.Months
	if len(months) == 0 {
		months = month.Sequence(month.Default, month.ConsoleYears)
	}
	return &Controller{
		remote:          r,
		drafts:          d,
		months:          months,
		documentCourses: opts.DocumentCourses,
		month:           months[0].Key(),
		persistSent:     make(map[string]uint64),
	}
}

// Snapshot returns a copy of the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:                c.state,
		Generation:           c.generation,
		Key:                  c.key,
		Kind:                 c.kind,
		Source:               c.source,
		Rows:                 roster.Clone(c.rows),
		Months:               month.Keys(c.months),
		MonthlyTotal:         c.monthlyTotal,
		MonthlyTotalShown:    c.monthlyTotalShown,
		InstructorTotal:      c.instructorTotal,
		InstructorTotalShown: c.instructorTotalShown,
	}
}

// Month returns the active month key.
func (c *Controller) Month() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.month
}

// OpenCourse loads course for the active month. Rows come from the
// session draft when one exists, else from the remote store, else a
// single empty row; exactly one of the three is used. A failed fetch is
// returned after the view is ready on one empty row.
// PRE: course is non-empty
// POST: on success or fetch failure the view is Ready with >= 1 row and a
// totals prefetch is running in the background
func (c *Controller) OpenCourse(ctx context.Context, course string) error {
	c.mu.Lock()
	key := roster.Key{Course: course, Month: c.month}
	if err := key.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.generation++
	gen := c.generation
	c.state = StateLoading
	c.key = key
	c.kind = roster.KindForCourse(course, c.documentCourses)
	c.source = SourceNone
	c.rows = nil
	c.monthlyTotal = decimal.Zero
	c.monthlyTotalShown = false
	c.instructorTotal = decimal.Zero
	c.instructorTotalShown = false
	c.cashTouched = false
	c.instructorTouched = false
	loaded := make(chan struct{})
	c.totalsLoaded = loaded
	c.mu.Unlock()

	rows, source, loadErr := c.load(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		slog.Info("stale_load_discarded", "course", key.Course, "month", key.Month)
		close(loaded)
		return ErrSuperseded
	}
	c.rows = rows
	c.source = source
	c.revision++
	c.state = StateReady
	c.spawn(func() { c.prefetchTotals(gen, key, loaded) })
	slog.Info("course_opened", "course", key.Course, "month", key.Month, "source", string(source), "rows", len(rows))
	return loadErr
}

func (c *Controller) load(ctx context.Context, key roster.Key) ([]roster.Row, Source, error) {
	if rows, ok := c.drafts.Get(ctx, key); ok {
		return rows, SourceDraft, nil
	}
	rows, err := c.remote.FetchRows(ctx, key)
	if err != nil {
		slog.Warn("rows_fetch_failed", "course", key.Course, "month", key.Month, "error", err)
		return []roster.Row{roster.EmptyRow()}, SourceEmpty, fmt.Errorf("loading %s %s: %w", key.Course, key.Month, err)
	}
	return roster.Normalize(rows), SourceRemote, nil
}

// prefetchTotals fills both totals from the remote store. Failures leave
// them at zero and are only logged.
func (c *Controller) prefetchTotals(gen uint64, key roster.Key, done chan struct{}) {
	defer close(done)
	t, err := c.remote.FetchTotals(context.Background(), key)
	if err != nil {
		slog.Warn("totals_prefetch_failed", "course", key.Course, "month", key.Month, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		slog.Debug("stale_totals_discarded", "course", key.Course, "month", key.Month)
		return
	}
	if !c.cashTouched {
		c.monthlyTotal = t.Cash
	}
	if !c.instructorTouched {
		c.instructorTotal = t.Instructor
	}
}

// ChangeMonth makes monthKey the active month and reopens the open
// course under it. Unknown keys fall back to the first month.
func (c *Controller) ChangeMonth(ctx context.Context, monthKey string) error {
	c.mu.Lock()
	c.month = month.Resolve(monthKey, c.months)
	course := c.key.Course
	idle := c.state == StateIdle
	c.mu.Unlock()
	if idle || course == "" {
		return nil
	}
	return c.OpenCourse(ctx, course)
}

// Close discards the view. Pending results for it are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.state = StateIdle
	c.key = roster.Key{}
	c.kind = ""
	c.source = SourceNone
	c.rows = nil
}

// Wait blocks until every background task has finished.
func (c *Controller) Wait() {
	c.tasks.Wait()
}

// Shutdown discards the view, waits for background tasks and removes
// every draft of the session.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Close()
	c.Wait()
	return c.drafts.Purge(ctx)
}

// ready checks that key is the open view.
// PRE: c.mu is held
func (c *Controller) ready(key roster.Key) error {
	if c.state != StateReady {
		return ErrNoView
	}
	if key != c.key {
		return ErrStaleView
	}
	return nil
}

// commitRows replaces the view rows, writes the draft and recomputes the
// monthly total.
// PRE: c.mu is held and the view is Ready
func (c *Controller) commitRows(ctx context.Context, rows []roster.Row) error {
	c.rows = roster.Normalize(rows)
	c.revision++
	c.monthlyTotal = aggregates.MonthlyPaidTotal(c.rows)
	c.cashTouched = true
	if err := c.drafts.Put(ctx, c.key, c.rows); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

// Edit replaces the rows of the view with rows as collected from the
// grid. Repeating the same edit leaves the same state; nothing is fetched.
// POST: the draft for key holds the rows, or one empty row
func (c *Controller) Edit(ctx context.Context, key roster.Key, rows []roster.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(key); err != nil {
		return err
	}
	return c.commitRows(ctx, roster.Clone(rows))
}

// AddRow appends one empty row.
func (c *Controller) AddRow(ctx context.Context, key roster.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(key); err != nil {
		return err
	}
	return c.commitRows(ctx, append(roster.Clone(c.rows), roster.EmptyRow()))
}

// DeleteRow removes the row at index. Deleting the only row leaves one
// empty row; the remaining rows are reindexed from zero.
func (c *Controller) DeleteRow(ctx context.Context, key roster.Key, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(key); err != nil {
		return err
	}
	if index < 0 || index >= len(c.rows) {
		return ErrNoSuchRow
	}
	rows := make([]roster.Row, 0, len(c.rows)-1)
	rows = append(rows, c.rows[:index]...)
	rows = append(rows, c.rows[index+1:]...)
	return c.commitRows(ctx, rows)
}

// SaveTable sends every row of the view to the remote store as a full
// replace. The draft is cleared only after the store confirms, and only
// when no edit arrived while the commit was in flight.
// POST: on error the draft is unchanged
func (c *Controller) SaveTable(ctx context.Context, key roster.Key) error {
	c.mu.Lock()
	if err := c.ready(key); err != nil {
		c.mu.Unlock()
		return err
	}
	rows := roster.Clone(c.rows)
	rev := c.revision
	c.mu.Unlock()

	if err := c.remote.CommitRows(ctx, key, rows); err != nil {
		slog.Warn("roster_save_failed", "course", key.Course, "month", key.Month, "error", err)
		return fmt.Errorf("saving %s %s: %w", key.Course, key.Month, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == key && c.revision != rev {
		slog.Info("draft_kept_after_save", "course", key.Course, "month", key.Month)
		return nil
	}
	if err := c.drafts.Clear(ctx, key); err != nil {
		return fmt.Errorf("clearing draft: %w", err)
	}
	slog.Info("roster_saved", "course", key.Course, "month", key.Month, "rows", len(rows))
	return nil
}

// UploadDocument attaches a file to the member of the row at index. A
// row without a remote identity is first created on the store, and the
// returned id is kept on the row so later uploads skip the create.
// PRE: filename is non-empty and content is non-nil, else ErrNoFile
// POST: exactly one create (only when the row had no id) precedes exactly
// one upload; a failed create aborts before the upload
func (c *Controller) UploadDocument(ctx context.Context, key roster.Key, index int, filename string, content io.Reader) error {
	if filename == "" || content == nil {
		return ErrNoFile
	}

	c.mu.Lock()
	if err := c.ready(key); err != nil {
		c.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(c.rows) {
		c.mu.Unlock()
		return ErrNoSuchRow
	}
	row := c.rows[index]
	gen := c.generation
	c.mu.Unlock()

	id := row.RemoteID
	if !row.HasRemoteID() {
		created, err := c.remote.CreateRow(ctx, key, row)
		if err != nil {
			slog.Warn("row_create_failed", "course", key.Course, "month", key.Month, "error", err)
			return fmt.Errorf("%w: %w", ErrRowCreate, err)
		}
		id = created
		c.assignRemoteID(ctx, gen, index, row, id)
	}

	if err := c.remote.UploadDocument(ctx, id, filename, content); err != nil {
		slog.Warn("document_upload_failed", "user_id", id, "error", err)
		return fmt.Errorf("uploading document: %w", err)
	}
	slog.Info("document_uploaded", "course", key.Course, "user_id", id, "filename", filename)
	return nil
}

// assignRemoteID stores id on the row it was created for, if the view and
// the row are still the same, and writes the draft so the id survives a reload.
func (c *Controller) assignRemoteID(ctx context.Context, gen uint64, index int, row roster.Row, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || index >= len(c.rows) || c.rows[index] != row {
		slog.Debug("remote_id_discarded", "user_id", id)
		return
	}
	rows := roster.Clone(c.rows)
	rows[index].RemoteID = id
	if err := c.commitRows(ctx, rows); err != nil {
		slog.Warn("draft_write_failed", "error", err)
	}
}

// ComputeMonthlyTotal sums the paid rows, reveals the total and persists
// it as the cash total in the background.
func (c *Controller) ComputeMonthlyTotal(ctx context.Context, key roster.Key) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(key); err != nil {
		return decimal.Zero, err
	}
	total := aggregates.MonthlyPaidTotal(c.rows)
	c.monthlyTotal = total
	c.monthlyTotalShown = true
	c.cashTouched = true
	c.persist(key, "cash", totals.CashPatch(total))
	return total, nil
}

// AddInstructorAmount adds the amount in text to the instructor total and
// persists the new total in the background. It first waits for the totals
// prefetch of the view so the addition starts from the stored total.
// POST: on ErrInvalidAmount nothing changes and nothing is sent
func (c *Controller) AddInstructorAmount(ctx context.Context, key roster.Key, text string) (decimal.Decimal, error) {
	delta, err := aggregates.ParseInstructorAmount(text)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	if err := c.ready(key); err != nil {
		c.mu.Unlock()
		return decimal.Zero, err
	}
	loaded := c.totalsLoaded
	c.mu.Unlock()
	select {
	case <-loaded:
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(key); err != nil {
		return decimal.Zero, err
	}
	c.instructorTotal = c.instructorTotal.Add(delta)
	c.instructorTouched = true
	c.persist(key, "instructor", totals.InstructorPatch(c.instructorTotal))
	return c.instructorTotal, nil
}

// ShowInstructorTotal reveals the instructor total.
func (c *Controller) ShowInstructorTotal(key roster.Key) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(key); err != nil {
		return decimal.Zero, err
	}
	c.instructorTotalShown = true
	return c.instructorTotal, nil
}

// SendPaymentReminder asks the store to remind every unpaid member with
// an email. With nobody to remind it returns ErrAllPaid without a call.
func (c *Controller) SendPaymentReminder(ctx context.Context, key roster.Key) (remote.ReminderResult, error) {
	c.mu.Lock()
	if err := c.ready(key); err != nil {
		c.mu.Unlock()
		return remote.ReminderResult{}, err
	}
	emails := aggregates.UnpaidEmails(c.rows)
	c.mu.Unlock()

	if len(emails) == 0 {
		return remote.ReminderResult{}, ErrAllPaid
	}
	res, err := c.remote.SendPaymentReminder(ctx, key.Month, emails)
	if err != nil {
		return remote.ReminderResult{}, fmt.Errorf("sending reminders: %w", err)
	}
	slog.Info("payment_reminder_requested", "course", key.Course, "month", key.Month, "sent", len(res.Sent), "failed", len(res.Failed))
	return res, nil
}

// spawn runs fn as a tracked background task.
func (c *Controller) spawn(fn func()) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		fn()
	}()
}

// persist saves patch in the background. Writes to the same total of the
// same course month are ordered: a write older than one already sent is
// dropped, so the store always ends on the newest value.
// PRE: c.mu is held
func (c *Controller) persist(key roster.Key, field string, patch totals.Patch) {
	c.persistSeq++
	seq := c.persistSeq
	slot := field + "|" + key.Course + "|" + key.Month
	c.spawn(func() {
		c.persistMu.Lock()
		defer c.persistMu.Unlock()
		if c.persistSent[slot] > seq {
			return
		}
		c.persistSent[slot] = seq
		if err := c.remote.SaveTotals(context.Background(), key, patch); err != nil {
			slog.Warn("totals_persist_failed", "course", key.Course, "month", key.Month, "field", field, "error", err)
		}
	})
}
