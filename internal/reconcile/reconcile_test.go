package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/merge"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/testutil"
	"github.com/roach88/filingindex/internal/tracker"
)

const (
	cikAcme = "0000000001"
	cikBeta = "0000000002"
)

var (
	jan = time.Date(2022, 1, 28, 10, 0, 0, 0, time.UTC)
	feb = time.Date(2022, 2, 3, 10, 0, 0, 0, time.UTC)
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openStore(t *testing.T) (*store.Store, *testutil.MemLoader) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	loader := testutil.NewMemLoader()
	loader.Set("jan", testutil.RSSFeed(jan,
		testutil.FeedItem{Accession: "A-1", CIK: cikAcme, Company: "ACME CORP", Pub: jan},
		testutil.FeedItem{Accession: "B-1", CIK: cikBeta, Company: "BETA INC", Pub: jan},
	))
	_, err = merge.New(st, loader, nil, nil).Merge(context.Background(), merge.Source{URI: "jan", FeedID: 202201})
	require.NoError(t, err)
	return st, loader
}

func edgar(loader *testutil.MemLoader) *EDGAR {
	return &EDGAR{URLTemplate: "https://edgar.test/cik/%s", Fetcher: loader}
}

func acme(name string, former map[time.Time]string) []byte {
	return testutil.CompanyAtom(testutil.Company{
		CIK: cikAcme, Name: name, SIC: 3714, BusinessState: "NY", MailingState: "NJ",
		Incorporated: "DE", FormerNames: former,
	})
}

var cfg = Config{Pause: time.Nanosecond}

func TestReconcile_InsertsNewFilers(t *testing.T) {
	ctx := context.Background()
	st, loader := openStore(t)
	e := edgar(loader)
	loader.Set(e.URL(cikAcme), acme("ACME CORP", map[time.Time]string{date(2015, 6, 30): "ACME MOTORS INC"}))
	loader.Set(e.URL(cikBeta), testutil.CompanyAtom(testutil.Company{CIK: cikBeta, Name: "BETA INC", MailingState: "CA"}))

	res, err := New(st, e, cfg, tracker.Options{}).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewCIKs)
	assert.Zero(t, res.ChangedCIKs)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.Failed)

	a, ok, err := st.Filer(ctx, cikAcme)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ACME CORP", a.ConformedName)
	assert.Equal(t, 3714, a.IndustryCode)
	assert.Equal(t, "NY", a.LocationCode)
	assert.Equal(t, "US", a.Country)
	assert.Equal(t, []model.FormerName{{CIK: cikAcme, Name: "ACME MOTORS INC", DateChanged: date(2015, 6, 30)}}, a.FormerNames)

	b, _, err := st.Filer(ctx, cikBeta)
	require.NoError(t, err)
	assert.Equal(t, "CA", b.LocationCode)

	newCIKs, err := st.NewFilerCIKs(ctx)
	require.NoError(t, err)
	assert.Empty(t, newCIKs)
}

func TestReconcile_UpdatesChangedNames(t *testing.T) {
	ctx := context.Background()
	st, loader := openStore(t)
	e := edgar(loader)
	loader.Set(e.URL(cikAcme), acme("ACME CORP", map[time.Time]string{date(2015, 6, 30): "ACME MOTORS INC"}))
	loader.Set(e.URL(cikBeta), testutil.CompanyAtom(testutil.Company{CIK: cikBeta, Name: "BETA INC"}))
	r := New(st, e, cfg, tracker.Options{})
	_, err := r.Reconcile(ctx)
	require.NoError(t, err)

	// ACME files under a new name in February; Beta's name only changes case.
	loader.Set("feb", testutil.RSSFeed(feb,
		testutil.FeedItem{Accession: "A-2", CIK: cikAcme, Company: "ACME GLOBAL CORP", Pub: feb},
		testutil.FeedItem{Accession: "B-2", CIK: cikBeta, Company: "Beta Inc", Pub: feb},
	))
	_, err = merge.New(st, loader, nil, nil).Merge(ctx, merge.Source{URI: "feb", FeedID: 202202})
	require.NoError(t, err)
	loader.Set(e.URL(cikAcme), acme("ACME GLOBAL CORP", map[time.Time]string{
		date(2015, 6, 30): "ACME MOTORS INC",
		date(2022, 2, 1):  "ACME CORP",
	}))

	res, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.NewCIKs)
	assert.Equal(t, 1, res.ChangedCIKs)
	assert.Equal(t, 1, res.Updated)

	a, _, err := st.Filer(ctx, cikAcme)
	require.NoError(t, err)
	assert.Equal(t, "ACME GLOBAL CORP", a.ConformedName)
	assert.Len(t, a.FormerNames, 2)

	// The stored name now matches the latest filing.
	res, err = r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.ChangedCIKs)
}

func TestReconcile_OnlyNew(t *testing.T) {
	ctx := context.Background()
	st, loader := openStore(t)
	e := edgar(loader)
	loader.Set(e.URL(cikAcme), acme("OLD NAME", map[time.Time]string{date(2015, 6, 30): "ACME MOTORS INC"}))
	loader.Set(e.URL(cikBeta), testutil.CompanyAtom(testutil.Company{CIK: cikBeta, Name: "BETA INC"}))

	_, err := New(st, e, cfg, tracker.Options{}).Reconcile(ctx)
	require.NoError(t, err)

	onlyNew := cfg
	onlyNew.OnlyNew = true
	res, err := New(st, e, onlyNew, tracker.Options{}).Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.ChangedCIKs)

	res, err = New(st, e, cfg, tracker.Options{}).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChangedCIKs)
}

type flakyLookup struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func (l *flakyLookup) LookupFiler(ctx context.Context, cik string) (model.Filer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[cik]++
	if l.failures[cik] != 0 {
		if l.failures[cik] > 0 {
			l.failures[cik]--
		}
		return model.Filer{}, errors.New("503 service unavailable")
	}
	return model.Filer{CIK: cik, ConformedName: "FILER " + cik}, nil
}

func TestReconcile_RetriesFailedCIKs(t *testing.T) {
	ctx := context.Background()
	st, _ := openStore(t)
	lookup := &flakyLookup{failures: map[string]int{cikBeta: 2}, calls: map[string]int{}}

	res, err := New(st, lookup, Config{Pause: time.Nanosecond, Retries: 3}, tracker.Options{}).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 3, lookup.calls[cikBeta])

	trackers, err := st.Trackers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trackers, 1)
	tr := trackers[0]
	assert.Equal(t, tracker.InsertNewFilers, tr.TaskName)
	assert.Equal(t, 4, tr.TotalItems)
	assert.Equal(t, 4, tr.CompletedItems)
	assert.Equal(t, 2, tr.SuccessfulItems)
	assert.Equal(t, 2, tr.FailedItems)
	assert.True(t, tr.IsCompleted)

	b, _, err := st.Filer(ctx, cikBeta)
	require.NoError(t, err)
	assert.Equal(t, store.UnknownLocation, b.LocationCode)
	assert.Equal(t, "UNKNOWN", b.Country)
}

func TestReconcile_RetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	st, _ := openStore(t)
	lookup := &flakyLookup{failures: map[string]int{cikBeta: -1}, calls: map[string]int{}}

	res, err := New(st, lookup, Config{Pause: time.Nanosecond, Retries: 2}, tracker.Options{}).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{cikBeta}, res.Failed)
	assert.Equal(t, 3, lookup.calls[cikBeta])

	newCIKs, err := st.NewFilerCIKs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{cikBeta}, newCIKs)
}

func TestReconcile_CIKs(t *testing.T) {
	ctx := context.Background()
	st, _ := openStore(t)
	lookup := &flakyLookup{failures: map[string]int{}, calls: map[string]int{}}
	r := New(st, lookup, cfg, tracker.Options{})

	res, err := r.ReconcileCIKs(ctx, []string{cikAcme})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	res, err = r.ReconcileCIKs(ctx, []string{cikAcme, cikBeta, cikAcme, " "})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewCIKs)
	assert.Equal(t, 1, res.ChangedCIKs)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)

	_, err = r.ReconcileCIKs(ctx, nil)
	assert.True(t, model.IsCode(err, model.ErrCodeMissingData))
}

func TestReconcile_RejectedWhileRunning(t *testing.T) {
	ctx := context.Background()
	st, _ := openStore(t)
	_, ok, err := tracker.Begin(ctx, st, tracker.InsertNewFilers, "", tracker.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	lookup := &flakyLookup{failures: map[string]int{}, calls: map[string]int{}}
	_, err = New(st, lookup, cfg, tracker.Options{}).Reconcile(ctx)
	assert.True(t, model.IsTaskInProgress(err))
	assert.Empty(t, lookup.calls)
}

func TestEDGAR_LookupFailure(t *testing.T) {
	loader := testutil.NewMemLoader()
	e := edgar(loader)
	loader.Fail(e.URL(cikAcme), errors.New("timeout"))
	_, err := e.LookupFiler(context.Background(), cikAcme)
	assert.True(t, model.IsTransient(err))

	assert.Equal(t, "https://edgar.test/cik/0000000001", e.URL(cikAcme))
	assert.Contains(t, (&EDGAR{}).URL(cikAcme), "CIK=0000000001&action=getcompany")
}

func TestChangedCIKs(t *testing.T) {
	evidence := []store.NameEvidence{
		{CIK: "1", ConformedName: "ACME CORP", LatestName: "ACME GLOBAL", LatestPubDate: feb, LastNameChange: date(2015, 1, 1), HasNameHistory: true},
		{CIK: "2", ConformedName: "BETA INC", LatestName: "beta inc", LatestPubDate: feb, LastNameChange: date(2015, 1, 1), HasNameHistory: true},
		{CIK: "3", ConformedName: "GAMMA", LatestName: "GAMMA PLC", LatestPubDate: feb, HasNameHistory: false},
		{CIK: "4", ConformedName: "DELTA", LatestName: "DELTA AG", LatestPubDate: feb, LastNameChange: date(2022, 2, 3), HasNameHistory: true},
		{CIK: "5", ConformedName: "STRASSE", LatestName: "STRAẞE", LatestPubDate: feb, LastNameChange: date(2015, 1, 1), HasNameHistory: true},
	}
	assert.Equal(t, []string{"1"}, ChangedCIKs(evidence))
}

func TestFormerNames(t *testing.T) {
	got := FormerNames("9", []model.FormerName{
		{Name: "A", DateChanged: time.Date(2020, 1, 1, 15, 0, 0, 0, time.UTC)},
		{Name: "A", DateChanged: date(2020, 1, 1)},
		{Name: "", DateChanged: date(2021, 1, 1)},
		{Name: "B"},
		{Name: "C", DateChanged: date(2019, 5, 1)},
	})
	assert.Equal(t, []model.FormerName{
		{CIK: "9", Name: "A", DateChanged: date(2020, 1, 1)},
		{CIK: "9", Name: "C", DateChanged: date(2019, 5, 1)},
	}, got)
}

func TestRefreshTickers(t *testing.T) {
	ctx := context.Background()
	st, loader := openStore(t)
	loader.Set("tickers", []byte(`{"fields": ["cik", "name", "ticker", "exchange"], "data": [
		[1, "ACME CORP", "ACME", "NYSE"],
		[2, "BETA INC", "BETA", "Nasdaq"],
		[2, "BETA INC", "BETA-P", null]
	]}`))

	n, err := RefreshTickers(ctx, st, loader, "tickers", tracker.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	loader.Set("tickers", []byte(`{"data": [[1, "ACME CORP", "ACME", "NYSE"]]}`))
	n, err = RefreshTickers(ctx, st, loader, "tickers", tracker.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, err := st.CountRows(ctx, "sec_cik_ticker_mapping")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
