package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gasanashema/procure-to-pay/internal/config"
	"github.com/gasanashema/procure-to-pay/internal/repository"
	"github.com/gasanashema/procure-to-pay/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		JWTSecret:       "test-secret",
		JWTIssuer:       "procurepay-test",
		AccessTokenTTL:  10 * time.Minute,
		RefreshTokenTTL: time.Hour,
		ResetTokenTTL:   time.Minute,
		UploadDir:       t.TempDir(),
	}
	store := repository.NewMemStore()
	if err := repository.SeedDemoData(context.Background(), store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := service.NewRequestService(store, zerolog.Nop())
	server := NewServer(cfg, store, svc, nil, zerolog.Nop())
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return app
}

func doJSON(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"user"`
}

func login(t *testing.T, app *httptest.Server, email string) tokenPair {
	t.Helper()
	resp := doJSON(t, http.MethodPost, app.URL+"/api/auth/login/", "", map[string]string{
		"username": email,
		"password": repository.DemoPassword,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d", email, resp.StatusCode)
	}
	var pair tokenPair
	decodeBody(t, resp, &pair)
	return pair
}

func createRequest(t *testing.T, app *httptest.Server, token string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title":       "Projector for meeting room",
		"description": "4K projector",
		"amount":      "1500.00",
		"vendor_name": "AV Supplies",
		"category":    "IT Equipment",
		"urgency":     "normal",
		"items":       `[{"item_name":"Projector","price":"1500.00","quantity":1}]`,
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("field %s: %v", key, err)
		}
	}
	part, err := mw.CreateFormFile("proforma_file", "quote.pdf")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, app.URL+"/api/requests/", &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("create request: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created map[string]any
	decodeBody(t, resp, &created)
	return created
}

func TestLogin(t *testing.T) {
	app := newTestServer(t)

	pair := login(t, app, "staff@procurepay.local")
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("expected token pair, got %+v", pair)
	}
	if pair.User.Role != "staff" {
		t.Fatalf("expected staff role, got %q", pair.User.Role)
	}

	resp := doJSON(t, http.MethodPost, app.URL+"/api/auth/login/", "", map[string]string{
		"username": "staff@procurepay.local",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	app := newTestServer(t)

	resp := doJSON(t, http.MethodGet, app.URL+"/api/requests/", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, app.URL+"/api/requests/", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshRotation(t *testing.T) {
	app := newTestServer(t)
	pair := login(t, app, "staff@procurepay.local")

	resp := doJSON(t, http.MethodPost, app.URL+"/api/auth/refresh/", "", map[string]string{"refresh": pair.Refresh})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	var rotated tokenPair
	decodeBody(t, resp, &rotated)
	if rotated.Refresh == pair.Refresh {
		t.Fatalf("refresh token was not rotated")
	}

	// The old token is single use.
	resp = doJSON(t, http.MethodPost, app.URL+"/api/auth/refresh/", "", map[string]string{"refresh": pair.Refresh})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesRefresh(t *testing.T) {
	app := newTestServer(t)
	pair := login(t, app, "staff@procurepay.local")

	resp := doJSON(t, http.MethodPost, app.URL+"/api/auth/logout/", pair.Access, map[string]string{"refresh": pair.Refresh})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, app.URL+"/api/auth/refresh/", "", map[string]string{"refresh": pair.Refresh})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked refresh: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegister(t *testing.T) {
	app := newTestServer(t)

	resp := doJSON(t, http.MethodPost, app.URL+"/api/auth/register/", "", map[string]string{
		"name":     "Nora New",
		"email":    "nora@procurepay.local",
		"password": "longenough",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var pair tokenPair
	decodeBody(t, resp, &pair)
	if pair.User.Role != "staff" {
		t.Fatalf("default role should be staff, got %q", pair.User.Role)
	}

	resp = doJSON(t, http.MethodPost, app.URL+"/api/auth/register/", "", map[string]string{
		"name":     "Nora Again",
		"email":    "nora@procurepay.local",
		"password": "longenough",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, app.URL+"/api/auth/register/", "", map[string]string{
		"name":     "Short",
		"email":    "short@procurepay.local",
		"password": "tiny",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProfile(t *testing.T) {
	app := newTestServer(t)
	pair := login(t, app, "finance@procurepay.local")

	resp := doJSON(t, http.MethodGet, app.URL+"/api/auth/profile/", pair.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", resp.StatusCode)
	}
	var profile map[string]any
	decodeBody(t, resp, &profile)
	if profile["role"] != "finance" || profile["email"] != "finance@procurepay.local" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestRequestListEnvelope(t *testing.T) {
	app := newTestServer(t)
	pair := login(t, app, "staff@procurepay.local")

	resp := doJSON(t, http.MethodGet, app.URL+"/api/requests/", pair.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var envelope struct {
		Results []map[string]any `json:"results"`
	}
	decodeBody(t, resp, &envelope)
	if len(envelope.Results) != 3 {
		t.Fatalf("expected 3 seeded requests for staff, got %d", len(envelope.Results))
	}
	first := envelope.Results[0]
	if _, ok := first["created_by_name"]; !ok {
		t.Fatalf("expected snake_case created_by_name, got %+v", first)
	}

	// Search and status filters.
	resp = doJSON(t, http.MethodGet, app.URL+"/api/requests/?search=laptops&status=pending", pair.Access, nil)
	decodeBody(t, resp, &envelope)
	if len(envelope.Results) != 1 {
		t.Fatalf("expected 1 filtered request, got %d", len(envelope.Results))
	}
}

func TestCreateAndApproveFlow(t *testing.T) {
	app := newTestServer(t)
	staff := login(t, app, "staff@procurepay.local")
	approver := login(t, app, "approver@procurepay.local")

	created := createRequest(t, app, staff.Access)
	requestID := created["id"].(string)
	if created["status"] != "pending" {
		t.Fatalf("new request should be pending: %+v", created)
	}
	if created["amount"] != "1500.00" {
		t.Fatalf("amount should round trip as decimal string, got %v", created["amount"])
	}

	// Approver sees it in the pending queue.
	resp := doJSON(t, http.MethodGet, app.URL+"/api/approvals/pending/", approver.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pending queue: expected 200, got %d", resp.StatusCode)
	}
	var queue struct {
		Results []map[string]any `json:"results"`
	}
	decodeBody(t, resp, &queue)
	found := false
	for _, item := range queue.Results {
		if item["id"] == requestID {
			found = true
		}
	}
	if !found {
		t.Fatalf("new request missing from approver queue")
	}

	// Staff cannot approve.
	resp = doJSON(t, http.MethodPost, app.URL+"/api/requests/"+requestID+"/approve/", staff.Access, map[string]string{})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("staff approve: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, app.URL+"/api/requests/"+requestID+"/approve/", approver.Access, map[string]string{"comments": "ok"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", resp.StatusCode)
	}
	var approved map[string]any
	decodeBody(t, resp, &approved)
	if approved["status"] != "approved" {
		t.Fatalf("expected approved, got %v", approved["status"])
	}

	// Second decision conflicts.
	resp = doJSON(t, http.MethodPost, app.URL+"/api/requests/"+requestID+"/reject/", approver.Access, map[string]string{"comments": "nope"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double decision: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Trail shows one approved step.
	resp = doJSON(t, http.MethodGet, app.URL+"/api/requests/"+requestID+"/approvals/", approver.Access, nil)
	var trail []map[string]any
	decodeBody(t, resp, &trail)
	if len(trail) != 1 || trail[0]["status"] != "approved" || trail[0]["comments"] != "ok" {
		t.Fatalf("unexpected trail: %+v", trail)
	}
}

func TestRejectRequiresComments(t *testing.T) {
	app := newTestServer(t)
	staff := login(t, app, "staff@procurepay.local")
	approver := login(t, app, "approver@procurepay.local")

	created := createRequest(t, app, staff.Access)
	requestID := created["id"].(string)

	resp := doJSON(t, http.MethodPost, app.URL+"/api/requests/"+requestID+"/reject/", approver.Access, map[string]string{"comments": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("reject without comments: expected 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["field"] != "comments" {
		t.Fatalf("expected comments field error, got %+v", body)
	}
}

func TestFinanceFlow(t *testing.T) {
	app := newTestServer(t)
	staff := login(t, app, "staff@procurepay.local")
	approver := login(t, app, "approver@procurepay.local")
	finance := login(t, app, "finance@procurepay.local")

	created := createRequest(t, app, staff.Access)
	requestID := created["id"].(string)
	resp := doJSON(t, http.MethodPost, app.URL+"/api/requests/"+requestID+"/approve/", approver.Access, map[string]string{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Staff cannot reach the finance surface.
	resp = doJSON(t, http.MethodGet, app.URL+"/api/finance/", staff.Access, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("staff on finance: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Finance queue is a bare array.
	resp = doJSON(t, http.MethodGet, app.URL+"/api/finance/", finance.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finance queue: expected 200, got %d", resp.StatusCode)
	}
	var queue []map[string]any
	decodeBody(t, resp, &queue)
	found := false
	for _, item := range queue {
		if item["id"] == requestID {
			found = true
		}
	}
	if !found {
		t.Fatalf("approved request missing from finance queue")
	}

	resp = doJSON(t, http.MethodPost, app.URL+"/api/finance/"+requestID+"/generate_po/", finance.Access, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate po: expected 201, got %d", resp.StatusCode)
	}
	var po map[string]any
	decodeBody(t, resp, &po)
	poNumber := po["po_number"].(string)
	if len(poNumber) != 7 || poNumber[:3] != "PO-" {
		t.Fatalf("unexpected po number %q", poNumber)
	}
	if po["amount"] != created["amount"] {
		t.Fatalf("po amount %v does not match request amount %v", po["amount"], created["amount"])
	}

	// Idempotent.
	resp = doJSON(t, http.MethodPost, app.URL+"/api/finance/"+requestID+"/generate_po/", finance.Access, nil)
	var again map[string]any
	decodeBody(t, resp, &again)
	if again["id"] != po["id"] {
		t.Fatalf("repeat generate returned a different po")
	}

	poID := po["id"].(string)
	resp = doJSON(t, http.MethodPost, app.URL+"/api/finance/po/"+poID+"/fulfill/", finance.Access, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("sent -> fulfilled: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, app.URL+"/api/finance/po/"+poID+"/acknowledge/", finance.Access, nil)
	var acked map[string]any
	decodeBody(t, resp, &acked)
	if acked["status"] != "acknowledged" {
		t.Fatalf("expected acknowledged, got %v", acked["status"])
	}
	resp = doJSON(t, http.MethodPost, app.URL+"/api/finance/po/"+poID+"/fulfill/", finance.Access, nil)
	var done map[string]any
	decodeBody(t, resp, &done)
	if done["status"] != "fulfilled" {
		t.Fatalf("expected fulfilled, got %v", done["status"])
	}

	// Processed requests stay visible to finance and carry the po reference.
	resp = doJSON(t, http.MethodGet, app.URL+"/api/requests/"+requestID+"/", finance.Access, nil)
	var processed map[string]any
	decodeBody(t, resp, &processed)
	if processed["status"] != "processed" {
		t.Fatalf("expected processed, got %v", processed["status"])
	}
	if processed["purchase_order_file"] != poNumber {
		t.Fatalf("expected purchase_order_file %q, got %v", poNumber, processed["purchase_order_file"])
	}
}

func TestReceiptUpload(t *testing.T) {
	app := newTestServer(t)
	staff := login(t, app, "staff@procurepay.local")
	approver := login(t, app, "approver@procurepay.local")

	created := createRequest(t, app, staff.Access)
	requestID := created["id"].(string)

	resp := uploadFile(t, app.URL+"/api/requests/"+requestID+"/upload_receipt/", staff.Access, "receipt_file", "receipt.pdf")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("receipt on pending: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	r := doJSON(t, http.MethodPost, app.URL+"/api/requests/"+requestID+"/approve/", approver.Access, map[string]string{})
	r.Body.Close()

	resp = uploadFile(t, app.URL+"/api/requests/"+requestID+"/upload_receipt/", staff.Access, "receipt_file", "receipt.pdf")
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("receipt on approved: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var updated map[string]any
	decodeBody(t, resp, &updated)
	if updated["receipt_file"] == nil {
		t.Fatalf("receipt_file not set: %+v", updated)
	}
}

func TestDeleteOwnPending(t *testing.T) {
	app := newTestServer(t)
	staff := login(t, app, "staff@procurepay.local")

	created := createRequest(t, app, staff.Access)
	requestID := created["id"].(string)

	resp := doJSON(t, http.MethodDelete, app.URL+"/api/requests/"+requestID+"/", staff.Access, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, app.URL+"/api/requests/"+requestID+"/", staff.Access, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted request: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestNavigation(t *testing.T) {
	app := newTestServer(t)
	approver := login(t, app, "approver@procurepay.local")

	resp := doJSON(t, http.MethodGet, app.URL+"/api/navigation/", approver.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("navigation: expected 200, got %d", resp.StatusCode)
	}
	var nav struct {
		Home   string `json:"home"`
		Routes []struct {
			Path string `json:"path"`
		} `json:"routes"`
	}
	decodeBody(t, resp, &nav)
	if nav.Home != "/dashboard/approver" {
		t.Fatalf("expected approver home, got %q", nav.Home)
	}
	if len(nav.Routes) == 0 {
		t.Fatalf("expected at least one route")
	}
}

func TestPasswordResetWithoutRedis(t *testing.T) {
	app := newTestServer(t)

	// No redis wired: request is still accepted, confirm is unavailable.
	resp := doJSON(t, http.MethodPost, app.URL+"/api/auth/password-reset/", "", map[string]string{"email": "staff@procurepay.local"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("reset request: expected 202, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, app.URL+"/api/auth/password-reset/confirm/", "", map[string]string{
		"token":    "whatever",
		"password": "longenough",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("reset confirm: expected 503, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	app := newTestServer(t)
	resp, err := http.Get(app.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSaveUploadSurfacesReadErrors(t *testing.T) {
	s := NewServer(config.Config{UploadDir: t.TempDir()}, nil, nil, nil, zerolog.Nop())

	// A multipart body cut off mid-part must not look like a missing file.
	body := "--frame\r\nContent-Disposition: form-data; name=\"proforma_file\"; filename=\"quote.pdf\"\r\n\r\n%PDF-1.4"
	req := httptest.NewRequest(http.MethodPost, "/api/requests/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=frame")

	if _, ok, err := s.saveUpload(req, "proforma_file", "proformas"); err == nil || ok {
		t.Fatalf("expected read error, got ok=%v err=%v", ok, err)
	}
}

func uploadFile(t *testing.T, url, token, field, filename string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fmt.Fprint(part, "%PDF-1.4 test")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}
