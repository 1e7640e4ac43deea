package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trackstack/server/pkg/config"
	"github.com/trackstack/server/pkg/testing/mocks"
	"github.com/trackstack/server/pkg/types"
)

func newTestManager(db *mocks.MemDB, tokenURL string) *Manager {
	return &Manager{
		DB: db,
		Providers: map[string]config.ProviderConfig{
			"strava": {
				ClientID:     "client-id",
				ClientSecret: "client-secret",
				TokenURL:     tokenURL,
			},
		},
		Margin: DefaultExpiryMargin,
	}
}

func seedIntegration(db *mocks.MemDB, expiry time.Time) *types.Integration {
	integ := &types.Integration{
		UserID:         "user-1",
		Provider:       types.ProviderStrava,
		ExternalUserID: "12345",
		AccessToken:    "cached-access",
		RefreshToken:   "refresh-1",
		Expiry:         expiry,
	}
	db.SeedIntegration(integ)
	return integ
}

func TestEnsureValidAccessToken_FreshTokenNoIO(t *testing.T) {
	db := mocks.NewMemDB()
	integ := seedIntegration(db, time.Now().Add(2*time.Hour))

	mgr := newTestManager(db, "http://invalid.test/never-called")
	mgr.HTTPClient = &http.Client{
		Transport: failingTransport{t},
	}

	tok, err := mgr.EnsureValidAccessToken(context.Background(), integ)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "cached-access" {
		t.Errorf("expected cached token, got %q", tok)
	}
}

type failingTransport struct{ t *testing.T }

func (f failingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	f.t.Error("HTTP call made when token was still fresh")
	return nil, fmt.Errorf("unexpected call")
}

func TestEnsureValidAccessToken_AdoptsConcurrentRefresh(t *testing.T) {
	db := mocks.NewMemDB()
	// Caller holds a stale view...
	stale := seedIntegration(db, time.Now().Add(-time.Minute))
	// ...but the store has since been refreshed by another invocation.
	db.SeedIntegration(&types.Integration{
		UserID:       "user-1",
		Provider:     types.ProviderStrava,
		AccessToken:  "refreshed-by-peer",
		RefreshToken: "refresh-2",
		Expiry:       time.Now().Add(time.Hour),
	})

	mgr := newTestManager(db, "http://invalid.test/never-called")
	mgr.HTTPClient = &http.Client{Transport: failingTransport{t}}

	tok, err := mgr.EnsureValidAccessToken(context.Background(), stale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "refreshed-by-peer" {
		t.Errorf("expected adopted token, got %q", tok)
	}
	if stale.RefreshToken != "refresh-2" {
		t.Errorf("caller's integration not updated with adopted credentials")
	}
}

func TestEnsureValidAccessToken_RefreshesAndPersists(t *testing.T) {
	var gotGrantType, gotRefreshToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotGrantType = r.FormValue("grant_type")
		gotRefreshToken = r.FormValue("refresh_token")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "refresh-rotated",
			"expires_in":    21600,
		})
	}))
	defer srv.Close()

	db := mocks.NewMemDB()
	integ := seedIntegration(db, time.Now().Add(time.Minute))

	mgr := newTestManager(db, srv.URL)
	tok, err := mgr.EnsureValidAccessToken(context.Background(), integ)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "new-access" {
		t.Errorf("expected refreshed token, got %q", tok)
	}
	if gotGrantType != "refresh_token" {
		t.Errorf("expected grant_type=refresh_token, got %q", gotGrantType)
	}
	if gotRefreshToken != "refresh-1" {
		t.Errorf("expected stored refresh token sent, got %q", gotRefreshToken)
	}

	stored, err := db.GetIntegration(context.Background(), types.ProviderStrava, "user-1")
	if err != nil {
		t.Fatalf("get integration: %v", err)
	}
	if stored.AccessToken != "new-access" || stored.RefreshToken != "refresh-rotated" {
		t.Errorf("refreshed tokens not persisted: %+v", stored)
	}
	if !stored.Expiry.After(time.Now().Add(5 * time.Hour)) {
		t.Errorf("expected expiry ~6h out, got %v", stored.Expiry)
	}
}

func TestEnsureValidAccessToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Provider does not rotate refresh tokens.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-access",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	db := mocks.NewMemDB()
	integ := seedIntegration(db, time.Now().Add(-time.Minute))

	mgr := newTestManager(db, srv.URL)
	if _, err := mgr.EnsureValidAccessToken(context.Background(), integ); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := db.GetIntegration(context.Background(), types.ProviderStrava, "user-1")
	if stored.RefreshToken != "refresh-1" {
		t.Errorf("stored refresh token wiped: got %q", stored.RefreshToken)
	}
}

func TestEnsureValidAccessToken_RefreshFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	db := mocks.NewMemDB()
	integ := seedIntegration(db, time.Now().Add(-time.Minute))

	mgr := newTestManager(db, srv.URL)
	if _, err := mgr.EnsureValidAccessToken(context.Background(), integ); err == nil {
		t.Fatal("expected refresh failure to propagate")
	}
}

// Two concurrent callers on the same expiring integration must leave the
// stored expiry monotonically non-decreasing, whichever order their writes
// land in.
func TestEnsureValidAccessToken_ConcurrentRefreshMonotonicExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		// Later responses carry later expiries, so the conditional write
		// must keep whichever is freshest.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  fmt.Sprintf("access-%d", n),
			"refresh_token": fmt.Sprintf("refresh-%d", n),
			"expires_in":    int(3600 + n*60),
		})
	}))
	defer srv.Close()

	db := mocks.NewMemDB()
	seedIntegration(db, time.Now().Add(-time.Minute))

	const goroutines = 8
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr := newTestManager(db, srv.URL)
			local, err := db.GetIntegration(context.Background(), types.ProviderStrava, "user-1")
			if err != nil {
				errs <- err
				return
			}
			if _, err := mgr.EnsureValidAccessToken(context.Background(), local); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent refresh error: %v", err)
	}

	stored, _ := db.GetIntegration(context.Background(), types.ProviderStrava, "user-1")
	// The stored expiry must match the freshest response issued.
	n := calls.Load()
	if n == 0 {
		t.Fatal("expected at least one refresh call")
	}
	minExpected := time.Now().Add(time.Duration(3600+n*60)*time.Second - time.Minute)
	if stored.Expiry.Before(minExpected) {
		t.Errorf("stored expiry regressed: got %v, want >= %v (after %d calls)", stored.Expiry, minExpected, n)
	}
}
