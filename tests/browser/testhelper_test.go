package browser_test

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	_ "modernc.org/sqlite"

	"gymroster/internal/adapters/console"
	web "gymroster/internal/adapters/http"
	"gymroster/internal/adapters/http/middleware"
	"gymroster/internal/adapters/http/perf"
	"gymroster/internal/adapters/storage"
	attemptStore "gymroster/internal/adapters/storage/attempt"
	courserowStore "gymroster/internal/adapters/storage/courserow"
	"gymroster/internal/adapters/storage/documents"
	"gymroster/internal/adapters/storage/draft"
	memberStore "gymroster/internal/adapters/storage/member"
	outboxStore "gymroster/internal/adapters/storage/outbox"
	totalsStore "gymroster/internal/adapters/storage/totals"
	"gymroster/internal/domain/account"
	"gymroster/internal/domain/month"
)

const (
	adminUser     = "admin"
	adminPassword = "TestPass123!"
)

// testApp holds the running store, the console in front of it and Playwright handles.
type testApp struct {
	BaseURL  string
	StoreURL string
	Stores   *web.Stores
	PW       *playwright.Playwright
	Browser  playwright.Browser
}

// freeAddr returns a loopback address nobody listens on.
func freeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

// serve starts handler on addr and waits until it answers /healthz.
func serve(t *testing.T, addr string, handler http.Handler) {
	t.Helper()
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()
	t.Cleanup(func() { srv.Close() })

	for i := 0; i < 50; i++ {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server on %s did not start", addr)
}

// newTestApp wires a file-backed roster store and a console and starts Chromium.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	tmpDir := t.TempDir()

	dbPath := filepath.Join(tmpDir, "store.db")
	db, err := storage.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open store DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, dbPath); err != nil {
		t.Fatalf("failed to migrate store DB: %v", err)
	}
	docs, err := documents.NewDirStore(filepath.Join(tmpDir, "uploads"))
	if err != nil {
		t.Fatalf("failed to create upload dir: %v", err)
	}
	stores := &web.Stores{
		MemberStore:  memberStore.NewSQLiteStore(db),
		RowStore:     courserowStore.NewSQLiteStore(db),
		TotalsStore:  totalsStore.NewSQLiteStore(db),
		AttemptStore: attemptStore.NewSQLiteStore(db),
		OutboxStore:  outboxStore.NewSQLiteStore(db),
		Documents:    docs,
	}
	admin, err := account.NewAdmin(adminUser, adminPassword)
	if err != nil {
		t.Fatalf("failed to create admin: %v", err)
	}
	months := month.Sequence(month.Default, 1)
	storeSrv := web.NewServer(stores, web.Options{
		Admin:              admin,
		Months:             month.Keys(months),
		RateLimitPerSecond: 1000,
	}, nil, nil)
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	storeAddr := freeAddr(t)
	serve(t, storeAddr, storeSrv.Handler(stop))

	draftPath := filepath.Join(tmpDir, "console.db")
	draftDB, err := storage.OpenSQLite(draftPath)
	if err != nil {
		t.Fatalf("failed to open draft DB: %v", err)
	}
	t.Cleanup(func() { draftDB.Close() })
	if err := storage.MigrateDraftDB(draftDB, draftPath); err != nil {
		t.Fatalf("failed to migrate draft DB: %v", err)
	}

	// The console's CSRF check compares the Origin header against its port.
	consoleAddr := freeAddr(t)
	_, port, _ := net.SplitHostPort(consoleAddr)
	middleware.ExtraTrustedOrigins = append(middleware.ExtraTrustedOrigins,
		"127.0.0.1:"+port,
		"localhost:"+port,
	)
	c := console.NewServer(console.Options{
		RemoteURL:       "http://" + storeAddr,
		Courses:         []string{"BodyBuilding", "Yoga", "Pilates"},
		DocumentCourses: []string{"BodyBuilding"},
		Months:          months,
		CSRFKey:         bytes.Repeat([]byte("b"), 32),
	}, draft.NewSQLiteStore(draftDB), perf.NewCollector(perf.DefaultRingSize))
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	serve(t, consoleAddr, c.Handler())

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}
	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
	})

	return &testApp{
		BaseURL:  "http://" + consoleAddr,
		StoreURL: "http://" + storeAddr,
		Stores:   stores,
		PW:       pw,
		Browser:  browser,
	}
}

// newPage creates a new browser page (tab).
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// login signs in through the console login form.
func (a *testApp) login(t *testing.T, page playwright.Page) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	if err := page.Locator("input[name=username]").Fill(adminUser); err != nil {
		t.Fatalf("failed to fill username: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill(adminPassword); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator("#login-form button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to click login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not redirect to the course list: %v", err)
	}
}

// openCourse clicks a course on the course list and waits for its grid.
func (a *testApp) openCourse(t *testing.T, page playwright.Page, course string) {
	t.Helper()
	if err := page.Locator("ul.courses a", playwright.PageLocatorOptions{HasText: course}).Click(); err != nil {
		t.Fatalf("failed to open %s: %v", course, err)
	}
	if err := page.Locator("#roster-form").WaitFor(); err != nil {
		t.Fatalf("course grid not shown: %v", err)
	}
}

// field is the grid input of column name in row index.
func field(page playwright.Page, index int, name string) playwright.Locator {
	return page.Locator(fmt.Sprintf(`input[name="r%d.%s"]`, index, name))
}

// flash returns the text of the first flash message.
func flash(t *testing.T, page playwright.Page) string {
	t.Helper()
	text, err := page.Locator("p.flash").First().TextContent()
	if err != nil {
		t.Fatalf("no flash message: %v", err)
	}
	return text
}
