// Package remote is the HTTP+JSON client of the roster store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gymroster/internal/domain/roster"
	"gymroster/internal/domain/totals"
)

// DefaultTimeout bounds every call made by DefaultHTTPClient.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Client talks to one roster store. Its cookie jar holds the admin
// session, so each console session needs its own Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL. A nil httpClient gets DefaultHTTPClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// DefaultHTTPClient returns a client with its own cookie jar and DefaultTimeout.
func DefaultHTTPClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: DefaultTimeout}
}

// flexibleID accepts a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*f = flexibleID(n.String())
	return nil
}

// wireRow is a row as the store returns it.
type wireRow struct {
	roster.Row
	ID       flexibleID `json:"id"`
	RowIndex int        `json:"row_index"`
}

type wireTotals struct {
	Cash       decimal.Decimal `json:"total_cassa"`
	Instructor decimal.Decimal `json:"total_istruttore"`
}

// envelope is the union of every response body the store sends.
type envelope struct {
	Status           string        `json:"status"`
	Message          string        `json:"message"`
	Rows             []wireRow     `json:"rows"`
	UserID           flexibleID    `json:"user_id"`
	RowIndex         int           `json:"row_index"`
	Totals           *wireTotals   `json:"totals"`
	Sent             []string      `json:"sent"`
	Failed           []string      `json:"failed"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Users            []wireUser    `json:"users"`
	Entries          []OutboxEntry `json:"entries"`
}

type wireUser struct {
	ID        flexibleID `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	CreatedAt string     `json:"data_creazione"`
}

// do sends req and decodes the envelope.
// POST: transport errors wrap ErrUnavailable; non-2xx or status != "ok"
// yield *APIError; an undecodable 2xx body wraps ErrMalformed
func (c *Client) do(req *http.Request) (envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return envelope{}, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, &APIError{StatusCode: resp.StatusCode, Message: env.Message, RemainingSeconds: env.RemainingSeconds}
	}
	if decodeErr != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformed, decodeErr)
	}
	if env.Status != "ok" {
		return env, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	return env, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload any) (envelope, error) {
	req, err := c.newJSONRequest(ctx, method, path, payload)
	if err != nil {
		return envelope{}, err
	}
	return c.do(req)
}

func coursePath(prefix, course, month string) string {
	p := prefix + url.PathEscape(course)
	if month != "" {
		p += "?mese=" + url.QueryEscape(month)
	}
	return p
}

// AdminLogin opens an admin session; the cookie is kept in the client's jar.
func (c *Client) AdminLogin(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, http.MethodPost, "/admin/login", map[string]string{
		"username": username,
		"password": password,
	})
	return err
}

// AdminLogout ends the admin session.
func (c *Client) AdminLogout(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodPost, "/admin/logout", map[string]string{})
	return err
}

// FetchRows returns the stored rows of a course month. A row's RemoteID is
// the id of the member its email belongs to, or empty.
func (c *Client) FetchRows(ctx context.Context, key roster.Key) ([]roster.Row, error) {
	env, err := c.call(ctx, http.MethodGet, coursePath("/admin/course-data/", key.Course, key.Month), nil)
	if err != nil {
		return nil, err
	}
	rows := make([]roster.Row, len(env.Rows))
	for i, w := range env.Rows {
		rows[i] = w.Row
		rows[i].RemoteID = string(w.ID)
	}
	return rows, nil
}

// CommitRows replaces the stored rows of a course month with rows.
func (c *Client) CommitRows(ctx context.Context, key roster.Key, rows []roster.Row) error {
	if rows == nil {
		rows = []roster.Row{}
	}
	_, err := c.call(ctx, http.MethodPost, coursePath("/admin/course-data/", key.Course, ""), map[string]any{
		"rows": rows,
		"mese": key.Month,
	})
	return err
}

// CreateRow appends one row and returns the id of the member it belongs to.
func (c *Client) CreateRow(ctx context.Context, key roster.Key, row roster.Row) (string, error) {
	env, err := c.call(ctx, http.MethodPost, coursePath("/admin/course-data-single/", key.Course, ""), map[string]any{
		"row":  row,
		"mese": key.Month,
	})
	if err != nil {
		return "", err
	}
	if env.UserID == "" {
		return "", fmt.Errorf("%w: create row returned no user_id", ErrMalformed)
	}
	return string(env.UserID), nil
}

// UploadDocument sends a file as the document of a member.
func (c *Client) UploadDocument(ctx context.Context, userID, filename string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("reading upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/upload/"+url.PathEscape(userID), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	_, err = c.do(req)
	return err
}

// FetchTotals returns the stored totals of a course month.
func (c *Client) FetchTotals(ctx context.Context, key roster.Key) (totals.Totals, error) {
	env, err := c.call(ctx, http.MethodGet, coursePath("/admin/course-totals/", key.Course, key.Month), nil)
	if err != nil {
		return totals.Totals{}, err
	}
	t := totals.Totals{Course: key.Course, Month: key.Month}
	if env.Totals != nil {
		t.Cash = env.Totals.Cash
		t.Instructor = env.Totals.Instructor
	}
	return t, nil
}

// SaveTotals writes the totals present in patch.
func (c *Client) SaveTotals(ctx context.Context, key roster.Key, patch totals.Patch) error {
	body := map[string]any{"mese": key.Month}
	if patch.Cash != nil {
		body["total_cassa"] = json.Number(patch.Cash.String())
	}
	if patch.Instructor != nil {
		body["total_istruttore"] = json.Number(patch.Instructor.String())
	}
	_, err := c.call(ctx, http.MethodPost, coursePath("/admin/course-totals/", key.Course, ""), body)
	return err
}

// ReminderResult reports a payment reminder request.
type ReminderResult struct {
	Sent    []string
	Failed  []string
	Message string
}

// SendPaymentReminder asks the store to email a payment reminder for month.
func (c *Client) SendPaymentReminder(ctx context.Context, month string, emails []string) (ReminderResult, error) {
	env, err := c.call(ctx, http.MethodPost, "/admin/send-payment-reminder", map[string]any{
		"emails": emails,
		"mese":   month,
	})
	if err != nil {
		return ReminderResult{}, err
	}
	return ReminderResult{Sent: env.Sent, Failed: env.Failed, Message: env.Message}, nil
}

// Member is one entry of the store's member list.
type Member struct {
	ID        string
	FullName  string
	Email     string
	Phone     string
	CreatedAt string
}

// ListMembers returns the members known to the store.
func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	env, err := c.call(ctx, http.MethodGet, "/admin/users", nil)
	if err != nil {
		return nil, err
	}
	members := make([]Member, len(env.Users))
	for i, u := range env.Users {
		members[i] = Member{ID: string(u.ID), FullName: u.Username, Email: u.Email, Phone: u.Phone, CreatedAt: u.CreatedAt}
	}
	return members, nil
}

// OutboxEntry is a queued email as the store's admin API reports it.
type OutboxEntry struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	To              string `json:"to"`
	Status          string `json:"status"`
	Attempts        int    `json:"attempts"`
	MaxAttempts     int    `json:"max_attempts"`
	CreatedAt       string `json:"created_at"`
	LastAttemptedAt string `json:"last_attempted_at"`
	Error           string `json:"error"`
}

// ListOutbox returns the store's failed outbox entries, or its pending
// ones when status is "pending".
func (c *Client) ListOutbox(ctx context.Context, status string) ([]OutboxEntry, error) {
	path := "/admin/outbox"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	env, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Entries, nil
}

// RetryOutbox makes the store attempt a failed entry again and returns
// the entry afterwards.
func (c *Client) RetryOutbox(ctx context.Context, id string) (OutboxEntry, error) {
	env, err := c.call(ctx, http.MethodPost, "/admin/outbox/"+url.PathEscape(id)+"/retry", map[string]string{})
	if err != nil {
		return OutboxEntry{}, err
	}
	if len(env.Entries) == 0 {
		return OutboxEntry{}, fmt.Errorf("%w: retry returned no entry", ErrMalformed)
	}
	return env.Entries[0], nil
}

// AbandonOutbox stops the store from attempting an entry again.
func (c *Client) AbandonOutbox(ctx context.Context, id string) error {
	_, err := c.call(ctx, http.MethodPost, "/admin/outbox/"+url.PathEscape(id)+"/abandon", map[string]string{})
	return err
}

// String identifies the store for logs.
func (c *Client) String() string {
	return "remote(" + c.baseURL + ")"
}
