package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gasanashema/procure-to-pay/internal/model"
	"github.com/gasanashema/procure-to-pay/internal/policy"
)

// HTTPClient talks to a running procurement server. It hydrates its session
// from the store on construction and keeps the store in sync on login and
// logout.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	sessions *SessionStore
}

func NewHTTPClient(baseURL string, sessions *SessionStore) *HTTPClient {
	sessions.Load()
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		sessions: sessions,
	}
}

var _ API = (*HTTPClient)(nil)

type authPayload struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (User, error) {
	var payload authPayload
	err := c.do(ctx, http.MethodPost, "/api/auth/login/", map[string]string{
		"username": email,
		"password": password,
	}, &payload, false)
	if err != nil {
		return User{}, err
	}
	session := Session{AccessToken: payload.Access, RefreshToken: payload.Refresh, User: payload.User}
	if err := c.sessions.Save(session); err != nil {
		return User{}, err
	}
	return payload.User, nil
}

// Logout revokes the refresh session server-side and clears local state. The
// local session is cleared even when the server call fails; a dead token on
// the server is better than a live one on disk.
func (c *HTTPClient) Logout(ctx context.Context) error {
	session, ok := c.sessions.Get()
	c.sessions.Clear()
	if !ok {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/api/auth/logout/", map[string]string{
		"refresh": session.RefreshToken,
	}, nil, false)
}

func (c *HTTPClient) Profile(ctx context.Context) (User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/api/auth/profile/", nil, &user, true)
	return user, err
}

func (c *HTTPClient) ListRequests(ctx context.Context, opts ListOptions) ([]PurchaseRequest, error) {
	var out []PurchaseRequest
	err := c.doList(ctx, "/api/requests/"+listQuery(opts), &out)
	return out, err
}

func (c *HTTPClient) GetRequest(ctx context.Context, requestID string) (PurchaseRequest, error) {
	var out PurchaseRequest
	err := c.do(ctx, http.MethodGet, "/api/requests/"+requestID+"/", nil, &out, true)
	return out, err
}

func (c *HTTPClient) Approve(ctx context.Context, requestID, comments string) (PurchaseRequest, error) {
	var out PurchaseRequest
	err := c.do(ctx, http.MethodPost, "/api/requests/"+requestID+"/approve/", map[string]string{"comments": comments}, &out, true)
	return out, err
}

func (c *HTTPClient) Reject(ctx context.Context, requestID, comments string) (PurchaseRequest, error) {
	var out PurchaseRequest
	err := c.do(ctx, http.MethodPost, "/api/requests/"+requestID+"/reject/", map[string]string{"comments": comments}, &out, true)
	return out, err
}

func (c *HTTPClient) Approvals(ctx context.Context, requestID string) ([]Approval, error) {
	var out []Approval
	err := c.doList(ctx, "/api/requests/"+requestID+"/approvals/", &out)
	return out, err
}

func (c *HTTPClient) FinanceQueue(ctx context.Context, opts ListOptions) ([]PurchaseRequest, error) {
	var out []PurchaseRequest
	err := c.doList(ctx, "/api/finance/"+listQuery(opts), &out)
	return out, err
}

func (c *HTTPClient) GeneratePO(ctx context.Context, requestID string) (PurchaseOrder, error) {
	var out PurchaseOrder
	err := c.do(ctx, http.MethodPost, "/api/finance/"+requestID+"/generate_po/", nil, &out, true)
	return out, err
}

func (c *HTTPClient) ListPurchaseOrders(ctx context.Context, opts ListOptions) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	err := c.doList(ctx, "/api/finance/po/"+listQuery(opts), &out)
	return out, err
}

func (c *HTTPClient) Guard(path string) policy.Decision {
	state := policy.SessionState{}
	if session, ok := c.sessions.Get(); ok {
		if role, err := model.ParseRole(session.User.Role); err == nil {
			state.Authenticated = true
			state.Role = role
		}
	}
	return policy.Resolve(state, path)
}

// do runs one API call. Error shape by status: 400 -> ValidationError,
// 401 -> AuthError, 404 -> NotFoundError, transport -> NetworkError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		session, ok := c.sessions.Get()
		if !ok {
			return &AuthError{Code: "no_session"}
		}
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doList fetches a collection endpoint, tolerating both response shapes the
// server uses: a bare JSON array and a {"results": [...]} envelope.
func (c *HTTPClient) doList(ctx context.Context, path string, out interface{}) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw, true); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	if envelope.Results == nil {
		return fmt.Errorf("unexpected list shape")
	}
	return json.Unmarshal(envelope.Results, out)
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
		Field  string `json:"field"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		detail := body.Detail
		if detail == "" {
			detail = body.Error
		}
		return &ValidationError{Field: body.Field, Detail: detail}
	case http.StatusUnauthorized:
		return &AuthError{Code: body.Error}
	case http.StatusNotFound:
		resource := body.Detail
		if resource == "" {
			resource = "resource"
		}
		return &NotFoundError{Resource: resource}
	default:
		if body.Detail != "" {
			return fmt.Errorf("%s: %s", body.Error, body.Detail)
		}
		return fmt.Errorf("request failed: %s (%d)", body.Error, resp.StatusCode)
	}
}

func listQuery(opts ListOptions) string {
	values := url.Values{}
	if opts.Search != "" {
		values.Set("search", opts.Search)
	}
	if opts.Status != "" {
		values.Set("status", opts.Status)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}
