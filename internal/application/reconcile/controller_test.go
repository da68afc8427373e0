package reconcile

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymroster/internal/adapters/remote"
	"gymroster/internal/application/aggregates"
	"gymroster/internal/domain/roster"
	"gymroster/internal/domain/totals"
)

var (
	yoga    = roster.Key{Course: "Yoga", Month: "Ottobre-2025"}
	yogaNov = roster.Key{Course: "Yoga", Month: "Novembre-2025"}
	pilates = roster.Key{Course: "Pilates", Month: "Ottobre-2025"}
)

// fakeRemote records every call. Hooks run before a call returns and may block.
type fakeRemote struct {
	mu        sync.Mutex
	rows      map[roster.Key][]roster.Row
	totals    map[roster.Key]totals.Totals
	fetchErr  error
	commitErr error
	createErr error
	uploadErr error
	nextID    string

	fetchHook  func(roster.Key)
	totalsHook func(roster.Key)

	fetches   []roster.Key
	commits   [][]roster.Row
	creates   []roster.Row
	uploads   []string
	saves     []totals.Patch
	reminders [][]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:   make(map[roster.Key][]roster.Row),
		totals: make(map[roster.Key]totals.Totals),
		nextID: "m-new",
	}
}

func (f *fakeRemote) FetchRows(ctx context.Context, key roster.Key) ([]roster.Row, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, key)
	hook, rows, err := f.fetchHook, roster.Clone(f.rows[key]), f.fetchErr
	f.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return rows, err
}

func (f *fakeRemote) CommitRows(ctx context.Context, key roster.Key, rows []roster.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, roster.Clone(rows))
	if f.commitErr != nil {
		return f.commitErr
	}
	f.rows[key] = roster.Clone(rows)
	return nil
}

func (f *fakeRemote) CreateRow(ctx context.Context, key roster.Key, row roster.Row) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, row)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.nextID, nil
}

func (f *fakeRemote) UploadDocument(ctx context.Context, userID, filename string, content io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, userID)
	return f.uploadErr
}

func (f *fakeRemote) FetchTotals(ctx context.Context, key roster.Key) (totals.Totals, error) {
	f.mu.Lock()
	hook, t := f.totalsHook, f.totals[key]
	f.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return t, nil
}

func (f *fakeRemote) SaveTotals(ctx context.Context, key roster.Key, patch totals.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, patch)
	return nil
}

func (f *fakeRemote) SendPaymentReminder(ctx context.Context, month string, emails []string) (remote.ReminderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders = append(f.reminders, emails)
	return remote.ReminderResult{Sent: emails, Message: "ok"}, nil
}

func (f *fakeRemote) counts() (fetches, commits, creates, uploads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches), len(f.commits), len(f.creates), len(f.uploads)
}

// memDrafts is an in-memory draft store keyed like the session storage.
type memDrafts struct {
	mu     sync.Mutex
	drafts map[string][]roster.Row
	putErr error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string][]roster.Row)}
}

func (m *memDrafts) Get(ctx context.Context, key roster.Key) ([]roster.Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.drafts[key.DraftKey()]
	return roster.Clone(rows), ok
}

func (m *memDrafts) Put(ctx context.Context, key roster.Key, rows []roster.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.drafts[key.DraftKey()] = roster.Clone(roster.Normalize(rows))
	return nil
}

func (m *memDrafts) Clear(ctx context.Context, key roster.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, key.DraftKey())
	return nil
}

func (m *memDrafts) Purge(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = make(map[string][]roster.Row)
	return nil
}

func (m *memDrafts) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[name]
	return ok
}

func newController(t *testing.T) (*Controller, *fakeRemote, *memDrafts) {
	t.Helper()
	r := newFakeRemote()
	d := newMemDrafts()
	c := New(r, d, Options{DocumentCourses: []string{"BodyBuilding"}})
	t.Cleanup(c.Wait)
	return c, r, d
}

func anna() roster.Row {
	return roster.Row{FirstName: "Anna", LastName: "Rossi", Email: "a@x.com", Paid: true, PaidAmount: "10,50", RemoteID: "m-1"}
}

func TestOpenCourse_UsesDraftWithoutFetch(t *testing.T) {
	c, r, d := newController(t)
	ctx := context.Background()
	draftRows := []roster.Row{{FirstName: "Draft"}}
	require.NoError(t, d.Put(ctx, yoga, draftRows))

	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, SourceDraft, snap.Source)
	assert.Equal(t, draftRows, snap.Rows)
	fetches, _, _, _ := r.counts()
	assert.Zero(t, fetches)
}

func TestOpenCourse_FetchesOnceWithoutDraft(t *testing.T) {
	c, r, _ := newController(t)
	r.rows[yoga] = []roster.Row{anna()}

	require.NoError(t, c.OpenCourse(context.Background(), "Yoga"))

	assert.Equal(t, []roster.Key{yoga}, r.fetches)
	snap := c.Snapshot()
	assert.Equal(t, SourceRemote, snap.Source)
	assert.Equal(t, []roster.Row{anna()}, snap.Rows)
	assert.Equal(t, roster.KindStandard, snap.Kind)
}

func TestOpenCourse_EmptyRemoteYieldsOneEmptyRow(t *testing.T) {
	c, _, _ := newController(t)
	require.NoError(t, c.OpenCourse(context.Background(), "BodyBuilding"))

	snap := c.Snapshot()
	assert.Equal(t, []roster.Row{roster.EmptyRow()}, snap.Rows)
	assert.Equal(t, roster.KindDocument, snap.Kind)
}

func TestOpenCourse_FetchFailureFallsBackToEmptyRow(t *testing.T) {
	c, r, _ := newController(t)
	r.fetchErr = remote.ErrUnavailable

	err := c.OpenCourse(context.Background(), "Yoga")
	require.ErrorIs(t, err, remote.ErrUnavailable)

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, SourceEmpty, snap.Source)
	assert.Equal(t, []roster.Row{roster.EmptyRow()}, snap.Rows)
}

func TestEdit_PersistsDraftAndRecomputesTotal(t *testing.T) {
	c, r, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	rows := []roster.Row{
		{Paid: true, PaidAmount: "10,50"},
		{Paid: true, PaidAmount: "5.25"},
		{Paid: false, PaidAmount: "100"},
	}
	require.NoError(t, c.Edit(ctx, yoga, rows))
	require.NoError(t, c.Edit(ctx, yoga, rows))

	got, ok := d.Get(ctx, yoga)
	require.True(t, ok)
	assert.Equal(t, rows, got)
	snap := c.Snapshot()
	assert.True(t, snap.MonthlyTotal.Equal(decimal.RequireFromString("15.75")))
	assert.False(t, snap.MonthlyTotalShown, "the total stays hidden until computed")
	fetches, _, _, _ := r.counts()
	assert.Equal(t, 1, fetches, "edits never fetch")
}

func TestEdit_EmptyRowsStoredAsOneEmptyRow(t *testing.T) {
	c, _, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	require.NoError(t, c.Edit(ctx, yoga, nil))

	got, _ := d.Get(ctx, yoga)
	assert.Equal(t, []roster.Row{roster.EmptyRow()}, got)
}

func TestEdit_RejectsOtherView(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Edit(ctx, yoga, nil), ErrNoView)
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	assert.ErrorIs(t, c.Edit(ctx, pilates, nil), ErrStaleView)
}

func TestAddAndDeleteRow(t *testing.T) {
	c, _, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{{FirstName: "A"}}))
	require.NoError(t, c.AddRow(ctx, yoga))
	assert.Equal(t, []roster.Row{{FirstName: "A"}, {}}, c.Snapshot().Rows)

	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{{FirstName: "A"}, {FirstName: "B"}, {FirstName: "C"}}))
	require.NoError(t, c.DeleteRow(ctx, yoga, 1))
	assert.Equal(t, []roster.Row{{FirstName: "A"}, {FirstName: "C"}}, c.Snapshot().Rows)
	assert.ErrorIs(t, c.DeleteRow(ctx, yoga, 5), ErrNoSuchRow)

	require.NoError(t, c.DeleteRow(ctx, yoga, 0))
	require.NoError(t, c.DeleteRow(ctx, yoga, 0))
	assert.Equal(t, []roster.Row{roster.EmptyRow()}, c.Snapshot().Rows, "deleting the only row leaves one empty row")
	got, _ := d.Get(ctx, yoga)
	assert.Equal(t, []roster.Row{roster.EmptyRow()}, got)
}

func TestSaveTable_ClearsDraftOnSuccess(t *testing.T) {
	c, r, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{anna()}))
	require.True(t, d.has("temp_course_Yoga_Ottobre-2025"))

	require.NoError(t, c.SaveTable(ctx, yoga))

	assert.False(t, d.has("temp_course_Yoga_Ottobre-2025"))
	assert.Equal(t, [][]roster.Row{{anna()}}, r.commits)
}

func TestSaveTable_KeepsDraftOnFailure(t *testing.T) {
	c, r, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{anna()}))
	r.commitErr = &remote.APIError{StatusCode: 500, Message: "Errore database"}

	err := c.SaveTable(ctx, yoga)

	var apiErr *remote.APIError
	require.ErrorAs(t, err, &apiErr)
	got, ok := d.Get(ctx, yoga)
	require.True(t, ok, "draft retained")
	assert.Equal(t, []roster.Row{anna()}, got)
}

func TestUploadDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("row without id creates then uploads", func(t *testing.T) {
		c, r, d := newController(t)
		require.NoError(t, c.OpenCourse(ctx, "BodyBuilding"))
		key := roster.Key{Course: "BodyBuilding", Month: "Ottobre-2025"}
		require.NoError(t, c.Edit(ctx, key, []roster.Row{{FirstName: "Luca", Email: "l@x.com"}}))

		require.NoError(t, c.UploadDocument(ctx, key, 0, "scheda.pdf", strings.NewReader("pdf")))

		_, _, creates, uploads := r.counts()
		assert.Equal(t, 1, creates)
		assert.Equal(t, 1, uploads)
		assert.Equal(t, []string{"m-new"}, r.uploads)
		assert.Equal(t, "m-new", c.Snapshot().Rows[0].RemoteID)
		got, _ := d.Get(ctx, key)
		assert.Equal(t, "m-new", got[0].RemoteID, "the id survives a reload")

		require.NoError(t, c.UploadDocument(ctx, key, 0, "scheda2.pdf", strings.NewReader("pdf")))
		_, _, creates, uploads = r.counts()
		assert.Equal(t, 1, creates, "second upload reuses the id")
		assert.Equal(t, 2, uploads)
	})

	t.Run("row with id only uploads", func(t *testing.T) {
		c, r, _ := newController(t)
		require.NoError(t, c.OpenCourse(ctx, "Yoga"))
		require.NoError(t, c.Edit(ctx, yoga, []roster.Row{anna()}))

		require.NoError(t, c.UploadDocument(ctx, yoga, 0, "scheda.pdf", strings.NewReader("pdf")))

		_, _, creates, uploads := r.counts()
		assert.Zero(t, creates)
		assert.Equal(t, 1, uploads)
		assert.Equal(t, []string{"m-1"}, r.uploads)
	})

	t.Run("failed create aborts the upload", func(t *testing.T) {
		c, r, _ := newController(t)
		require.NoError(t, c.OpenCourse(ctx, "Yoga"))
		r.createErr = &remote.APIError{StatusCode: 400, Message: "Email mancante"}

		err := c.UploadDocument(ctx, yoga, 0, "scheda.pdf", strings.NewReader("pdf"))

		assert.ErrorIs(t, err, ErrRowCreate)
		assert.Equal(t, "Email mancante", remote.UserMessage(err, "generic"))
		_, _, creates, uploads := r.counts()
		assert.Equal(t, 1, creates)
		assert.Zero(t, uploads)
	})

	t.Run("missing file makes no call", func(t *testing.T) {
		c, r, _ := newController(t)
		require.NoError(t, c.OpenCourse(ctx, "Yoga"))

		assert.ErrorIs(t, c.UploadDocument(ctx, yoga, 0, "", strings.NewReader("x")), ErrNoFile)
		assert.ErrorIs(t, c.UploadDocument(ctx, yoga, 0, "a.pdf", nil), ErrNoFile)
		_, _, creates, uploads := r.counts()
		assert.Zero(t, creates+uploads)
	})
}

func TestChangeMonth_PartitionsDrafts(t *testing.T) {
	c, r, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{{FirstName: "October"}}))

	require.NoError(t, c.ChangeMonth(ctx, "Novembre-2025"))

	snap := c.Snapshot()
	assert.Equal(t, yogaNov, snap.Key)
	assert.Equal(t, []roster.Row{roster.EmptyRow()}, snap.Rows)
	assert.Equal(t, []roster.Key{yoga, yogaNov}, r.fetches)

	require.NoError(t, c.ChangeMonth(ctx, "Ottobre-2025"))
	assert.Equal(t, []roster.Row{{FirstName: "October"}}, c.Snapshot().Rows)
	assert.Len(t, r.fetches, 2, "october comes from its draft")
	assert.False(t, d.has(yogaNov.DraftKey()))
}

func TestChangeMonth_UnknownKeyFallsBack(t *testing.T) {
	c, _, _ := newController(t)
	require.NoError(t, c.ChangeMonth(context.Background(), "Smarch-1999"))
	assert.Equal(t, "Ottobre-2025", c.Month())
}

func TestOpenCourse_StaleLoadDiscarded(t *testing.T) {
	c, r, _ := newController(t)
	ctx := context.Background()
	r.rows[yoga] = []roster.Row{{FirstName: "Yoga"}}
	r.rows[pilates] = []roster.Row{{FirstName: "Pilates"}}

	entered := make(chan struct{})
	release := make(chan struct{})
	r.fetchHook = func(key roster.Key) {
		if key == yoga {
			close(entered)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- c.OpenCourse(ctx, "Yoga") }()
	<-entered
	require.NoError(t, c.OpenCourse(ctx, "Pilates"))
	close(release)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	snap := c.Snapshot()
	assert.Equal(t, pilates, snap.Key)
	assert.Equal(t, []roster.Row{{FirstName: "Pilates"}}, snap.Rows)
}

func TestTotalsPrefetch(t *testing.T) {
	c, r, _ := newController(t)
	ctx := context.Background()
	r.totals[yoga] = totals.Totals{Cash: decimal.RequireFromString("40"), Instructor: decimal.RequireFromString("12")}
	r.totals[pilates] = totals.Totals{Cash: decimal.RequireFromString("7")}

	entered := make(chan struct{})
	release := make(chan struct{})
	r.totalsHook = func(key roster.Key) {
		if key == yoga {
			close(entered)
			<-release
		}
	}

	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	<-entered
	require.NoError(t, c.OpenCourse(ctx, "Pilates"))
	close(release)
	c.Wait()

	snap := c.Snapshot()
	assert.True(t, snap.MonthlyTotal.Equal(decimal.RequireFromString("7")), "stale yoga totals are discarded, got %s", snap.MonthlyTotal)
	assert.True(t, snap.InstructorTotal.IsZero())
	assert.False(t, snap.MonthlyTotalShown)
}

func TestComputeMonthlyTotal(t *testing.T) {
	c, r, _ := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{
		{Paid: true, PaidAmount: "10,50"},
		{Paid: false, PaidAmount: "100"},
		{Paid: true, PaidAmount: "5.25"},
	}))

	total, err := c.ComputeMonthlyTotal(ctx, yoga)
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, "15.75 €", aggregates.FormatEuro(total))
	assert.True(t, c.Snapshot().MonthlyTotalShown)
	require.Len(t, r.saves, 1)
	require.NotNil(t, r.saves[0].Cash)
	assert.Nil(t, r.saves[0].Instructor)
	assert.True(t, r.saves[0].Cash.Equal(total))
}

func TestAddInstructorAmount(t *testing.T) {
	c, r, _ := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	_, err := c.AddInstructorAmount(ctx, yoga, "20")
	require.NoError(t, err)
	total, err := c.AddInstructorAmount(ctx, yoga, "5,50")
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, "25.50 €", aggregates.FormatEuro(total))
	require.NotEmpty(t, r.saves)
	last := r.saves[len(r.saves)-1]
	require.NotNil(t, last.Instructor)
	assert.Nil(t, last.Cash)
	assert.True(t, last.Instructor.Equal(decimal.RequireFromString("25.5")))

	shown, err := c.ShowInstructorTotal(yoga)
	require.NoError(t, err)
	assert.True(t, shown.Equal(total))
	assert.True(t, c.Snapshot().InstructorTotalShown)
}

func TestAddInstructorAmount_StartsFromStoredTotal(t *testing.T) {
	c, r, _ := newController(t)
	ctx := context.Background()
	r.totals[yoga] = totals.Totals{Instructor: decimal.RequireFromString("30")}
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	total, err := c.AddInstructorAmount(ctx, yoga, "12.5")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("42.5")), "got %s", total)
}

func TestAddInstructorAmount_InvalidMakesNoCall(t *testing.T) {
	c, r, _ := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	_, err := c.AddInstructorAmount(ctx, yoga, "venti")
	assert.ErrorIs(t, err, aggregates.ErrInvalidAmount)
	c.Wait()
	assert.Empty(t, r.saves)
	assert.True(t, c.Snapshot().InstructorTotal.IsZero())
}

func TestSendPaymentReminder(t *testing.T) {
	c, r, _ := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))

	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{{Paid: true, Email: "b@x.com"}, {Email: ""}}))
	_, err := c.SendPaymentReminder(ctx, yoga)
	assert.ErrorIs(t, err, ErrAllPaid)
	assert.Empty(t, r.reminders)

	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{
		{Paid: false, Email: "a@x.com"},
		{Paid: true, Email: "b@x.com"},
		{Paid: false, Email: ""},
	}))
	res, err := c.SendPaymentReminder(ctx, yoga)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, res.Sent)
	assert.Equal(t, [][]string{{"a@x.com"}}, r.reminders)
}

func TestShutdownPurgesDrafts(t *testing.T) {
	c, _, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	require.NoError(t, c.Edit(ctx, yoga, []roster.Row{anna()}))

	require.NoError(t, c.Shutdown(ctx))

	assert.False(t, d.has(yoga.DraftKey()))
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestEdit_DraftFailureIsReported(t *testing.T) {
	c, _, d := newController(t)
	ctx := context.Background()
	require.NoError(t, c.OpenCourse(ctx, "Yoga"))
	d.putErr = errors.New("disk full")

	assert.Error(t, c.Edit(ctx, yoga, []roster.Row{anna()}))
}
