package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cpmboard/internal/database/boltstore"
	"cpmboard/internal/handlers"
	"cpmboard/internal/listing"
	"cpmboard/internal/middleware"
	"cpmboard/internal/moderation"
	"cpmboard/internal/routing"
	"cpmboard/internal/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminPath = "admin-test-entry"

type testServer struct {
	engine   *moderation.Engine
	sessions *session.Manager
	router   http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := boltstore.Open(boltstore.Options{Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})

	engine := moderation.NewEngine(store.ListingStore(), store.EngagementLedger(), store.ReportLedger())
	sessions := session.NewManager(store.SessionStore(), time.Hour)
	h := handlers.NewHandler(engine, sessions, handlers.Config{})

	router := routing.SetupRouter(routing.Config{
		Handlers:        h,
		AdminSecretPath: testAdminPath,
		Logger:          zerolog.Nop(),
	})

	return &testServer{engine: engine, sessions: sessions, router: router}
}

// do issues a request against the router, carrying an explicit device
// identity cookie when deviceID is non-empty.
func (ts *testServer) do(t *testing.T, method, path, deviceID string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if deviceID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.DeviceCookieName, Value: deviceID})
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func decodeListing(t *testing.T, rec *httptest.ResponseRecorder) listing.View {
	t.Helper()
	body := decodeBody(t, rec)
	var v listing.View
	require.NoError(t, json.Unmarshal(body["listing"], &v))
	return v
}

func seedListing(t *testing.T, ts *testServer, ownerID, pin string) listing.View {
	t.Helper()
	carName := "Toyota AE86"
	price := "850"
	contact := "@tofu"
	v, err := ts.engine.Create(context.Background(), listing.Fields{
		CarName: &carName,
		Price:   &price,
		Contact: &contact,
	}, pin, ownerID)
	require.NoError(t, err)
	return v
}

func TestCreateListing(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/listings", "dev-1", map[string]string{
		"carName": " Honda NSX ",
		"price":   "30000",
		"contact": "@na1",
		"pin":     "4242",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeListing(t, rec)
	assert.Equal(t, "Honda NSX", v.CarName)
	assert.Equal(t, "dev-1", v.OwnerID)
	assert.True(t, v.HasPin)
	assert.NotEmpty(t, v.ID)
}

func TestCreateListing_MissingFields(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/listings", "dev-1", map[string]string{
		"carName": "Honda NSX",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"validation"`)
}

func TestDeviceCookieMinted(t *testing.T) {
	ts := setupTestServer(t)

	// No device cookie: the middleware mints one on the response.
	rec := ts.do(t, http.MethodGet, "/api/listings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var minted *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.DeviceCookieName {
			minted = c
		}
	}
	require.NotNil(t, minted, "device cookie set for anonymous visitor")
	assert.NotEmpty(t, minted.Value)
	assert.True(t, minted.HttpOnly)

	// An existing cookie is left alone.
	rec = ts.do(t, http.MethodGet, "/api/listings", "dev-known", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		assert.NotEqual(t, middleware.DeviceCookieName, c.Name)
	}
}

func TestGetListing(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "")

	rec := ts.do(t, http.MethodGet, "/api/listings/"+seeded.ID, "dev-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeListing(t, rec)
	assert.Equal(t, seeded.ID, v.ID)

	rec = ts.do(t, http.MethodGet, "/api/listings/no-such-id", "dev-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
}

func TestEditListing_StatusMapping(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "4242")

	// Wrong device.
	rec := ts.do(t, http.MethodPut, "/api/listings/"+seeded.ID, "dev-2", map[string]string{
		"price": "1", "pin": "4242",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"forbidden"`)

	// Right device, wrong PIN.
	rec = ts.do(t, http.MethodPut, "/api/listings/"+seeded.ID, "dev-1", map[string]string{
		"price": "1", "pin": "0000",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"invalid_pin"`)

	// Right device, right PIN.
	rec = ts.do(t, http.MethodPut, "/api/listings/"+seeded.ID, "dev-1", map[string]string{
		"price": "777", "pin": "4242",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeListing(t, rec)
	assert.Equal(t, "777", v.Price)
	assert.Equal(t, "Toyota AE86", v.CarName, "omitted fields untouched")
}

func TestEditListing_PinViaHeader(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "4242")

	body, err := json.Marshal(map[string]string{"price": "900"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/listings/"+seeded.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Listing-Pin", "4242")
	req.AddCookie(&http.Cookie{Name: middleware.DeviceCookieName, Value: "dev-1"})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDeleteListing(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "4242")

	rec := ts.do(t, http.MethodDelete, "/api/listings/"+seeded.ID, "dev-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing PIN rejected")

	// PIN accepted via query parameter.
	rec = ts.do(t, http.MethodDelete, "/api/listings/"+seeded.ID+"?pin=4242", "dev-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = ts.do(t, http.MethodGet, "/api/listings/"+seeded.ID, "dev-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListingStats_Deltas(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "")

	rec := ts.do(t, http.MethodPost, "/api/listings/"+seeded.ID+"/stats", "dev-2", map[string]int{
		"viewsDelta": 1,
		"likesDelta": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeListing(t, rec)
	assert.Equal(t, 1, v.Stats.Views)
	assert.Equal(t, 1, v.Stats.Likes)

	// Repeat from the same device is idempotent.
	rec = ts.do(t, http.MethodPost, "/api/listings/"+seeded.ID+"/stats", "dev-2", map[string]int{
		"viewsDelta": 1,
		"likesDelta": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeListing(t, rec)
	assert.Equal(t, 1, v.Stats.Views)
	assert.Equal(t, 1, v.Stats.Likes)

	// Out-of-range delta.
	rec = ts.do(t, http.MethodPost, "/api/listings/"+seeded.ID+"/stats", "dev-2", map[string]int{
		"likesDelta": 5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportThresholdHidesOverHTTP(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "")

	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodPost, "/api/listings/"+seeded.ID+"/report", fmt.Sprintf("dev-%d", i+2), map[string]string{
			"reason": "spam",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/api/listings/"+seeded.ID, "dev-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeListing(t, rec)
	assert.True(t, v.Hidden)
	assert.Equal(t, 3, v.Stats.Reports)

	// Engagement against a hidden listing is gone.
	rec = ts.do(t, http.MethodPost, "/api/listings/"+seeded.ID+"/stats", "dev-9", map[string]int{
		"likesDelta": 1,
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"gone"`)
}

func TestReportWithoutBody(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "")

	// Reason body is optional.
	rec := ts.do(t, http.MethodPost, "/api/listings/"+seeded.ID+"/report", "dev-2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeListing(t, rec)
	assert.Equal(t, 1, v.Stats.Reports)
}

func adminLogin(t *testing.T, ts *testServer) *http.Cookie {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/"+testAdminPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == handlers.AdminCookieName {
			return c
		}
	}
	t.Fatal("admin session cookie not set")
	return nil
}

func TestAdminEnterMintsSession(t *testing.T) {
	ts := setupTestServer(t)

	cookie := adminLogin(t, ts)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, ts.sessions.Validate(context.Background(), cookie.Value))
}

func TestAdminRoutesHiddenWithoutSession(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "")

	// No cookie: plain 404, indistinguishable from an unknown path.
	rec := ts.do(t, http.MethodGet, "/api/admin/reports", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Bogus token: same.
	rec = ts.do(t, http.MethodPost, "/api/admin/listings/"+seeded.ID+"/delete", "", nil,
		&http.Cookie{Name: handlers.AdminCookieName, Value: "bogus"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminVisibilityAndRestore(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "")
	cookie := adminLogin(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/admin/listings/"+seeded.ID+"/visibility", "", map[string]bool{
		"hidden": true,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeListing(t, rec)
	assert.True(t, v.Hidden)

	rec = ts.do(t, http.MethodPost, "/api/admin/listings/"+seeded.ID+"/visibility", "", map[string]bool{
		"hidden": false,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeListing(t, rec)
	assert.False(t, v.Hidden)
}

func TestAdminDeleteBypassesPin(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "4242")
	cookie := adminLogin(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/admin/listings/"+seeded.ID+"/delete", "", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/listings/"+seeded.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting again: not found, no side effects.
	rec = ts.do(t, http.MethodPost, "/api/admin/listings/"+seeded.ID+"/delete", "", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListReports(t *testing.T) {
	ts := setupTestServer(t)
	seeded := seedListing(t, ts, "dev-1", "")
	cookie := adminLogin(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/listings/"+seeded.ID+"/report", "dev-2", map[string]string{
		"reason": "looks like a scam",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/reports", "", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	var reports []listing.Report
	require.NoError(t, json.Unmarshal(body["reports"], &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, seeded.ID, reports[0].ListingID)
	assert.Equal(t, "looks like a scam", reports[0].Reason)
}

func TestHealthz(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
