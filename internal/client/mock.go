package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gasanashema/procure-to-pay/internal/model"
	"github.com/gasanashema/procure-to-pay/internal/policy"
)

// Mock is the offline API used when no server is reachable. Login accepts any
// password and derives the role from the email address, so "approver@x" lands
// on the approver dashboard without a backend.
type Mock struct {
	sessions *SessionStore

	mu        sync.Mutex
	requests  []PurchaseRequest
	approvals map[string][]Approval
	orders    []PurchaseOrder
}

func NewMock(sessions *SessionStore) *Mock {
	sessions.Load()
	m := &Mock{sessions: sessions, approvals: make(map[string][]Approval)}
	m.seed()
	return m
}

var _ API = (*Mock)(nil)

func (m *Mock) Login(_ context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return User{}, &ValidationError{Detail: "email and password are required"}
	}

	role := model.RoleStaff
	switch {
	case strings.Contains(email, "approver"):
		role = model.RoleApprover
	case strings.Contains(email, "finance"):
		role = model.RoleFinance
	}

	user := User{
		ID:    uuid.NewString(),
		Name:  strings.Split(email, "@")[0],
		Email: email,
		Role:  string(role),
	}
	session := Session{AccessToken: "mock-" + uuid.NewString(), RefreshToken: "mock-refresh", User: user}
	if err := m.sessions.Save(session); err != nil {
		return User{}, err
	}
	return user, nil
}

func (m *Mock) Logout(context.Context) error {
	m.sessions.Clear()
	return nil
}

func (m *Mock) Profile(context.Context) (User, error) {
	session, ok := m.sessions.Get()
	if !ok {
		return User{}, &AuthError{Code: "no_session"}
	}
	return session.User, nil
}

func (m *Mock) ListRequests(_ context.Context, opts ListOptions) ([]PurchaseRequest, error) {
	session, ok := m.sessions.Get()
	if !ok {
		return nil, &AuthError{Code: "no_session"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PurchaseRequest
	for _, request := range m.requests {
		if session.User.Role == string(model.RoleApprover) && request.Status != "pending" {
			continue
		}
		if !matchOpts(request.Title, request.Status, opts) {
			continue
		}
		out = append(out, request)
	}
	return out, nil
}

func (m *Mock) GetRequest(_ context.Context, requestID string) (PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, request := range m.requests {
		if request.ID == requestID {
			return request, nil
		}
	}
	return PurchaseRequest{}, &NotFoundError{Resource: "request"}
}

func (m *Mock) Approve(_ context.Context, requestID, comments string) (PurchaseRequest, error) {
	return m.decide(requestID, "approved", comments)
}

func (m *Mock) Reject(_ context.Context, requestID, comments string) (PurchaseRequest, error) {
	if strings.TrimSpace(comments) == "" {
		return PurchaseRequest{}, &ValidationError{Field: "comments", Detail: "reason is required"}
	}
	return m.decide(requestID, "rejected", comments)
}

func (m *Mock) decide(requestID, status, comments string) (PurchaseRequest, error) {
	session, ok := m.sessions.Get()
	if !ok {
		return PurchaseRequest{}, &AuthError{Code: "no_session"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, request := range m.requests {
		if request.ID != requestID {
			continue
		}
		if request.Status != "pending" {
			return PurchaseRequest{}, fmt.Errorf("request is already %s", request.Status)
		}
		m.requests[i].Status = status
		m.approvals[requestID] = append(m.approvals[requestID], Approval{
			ID:           uuid.NewString(),
			RequestID:    requestID,
			ApproverID:   session.User.ID,
			ApproverName: session.User.Name,
			Role:         session.User.Role,
			Status:       status,
			Comments:     comments,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
		})
		return m.requests[i], nil
	}
	return PurchaseRequest{}, &NotFoundError{Resource: "request"}
}

func (m *Mock) Approvals(_ context.Context, requestID string) ([]Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Approval(nil), m.approvals[requestID]...), nil
}

func (m *Mock) FinanceQueue(_ context.Context, opts ListOptions) ([]PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PurchaseRequest
	for _, request := range m.requests {
		if request.Status != "approved" && request.Status != "processed" {
			continue
		}
		if !matchOpts(request.Title, request.Status, opts) {
			continue
		}
		out = append(out, request)
	}
	return out, nil
}

func (m *Mock) GeneratePO(_ context.Context, requestID string) (PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, po := range m.orders {
		if po.RequestID == requestID {
			return po, nil
		}
	}
	for i, request := range m.requests {
		if request.ID != requestID {
			continue
		}
		if request.Status != "approved" {
			return PurchaseOrder{}, fmt.Errorf("request is %s", request.Status)
		}
		po := PurchaseOrder{
			ID:         uuid.NewString(),
			PONumber:   fmt.Sprintf("PO-%04d", len(m.orders)+1),
			RequestID:  requestID,
			VendorName: request.VendorName,
			Amount:     request.Amount,
			Status:     "sent",
			Items:      request.Items,
		}
		m.orders = append(m.orders, po)
		m.requests[i].Status = "processed"
		number := po.PONumber
		m.requests[i].PurchaseOrderFile = &number
		return po, nil
	}
	return PurchaseOrder{}, &NotFoundError{Resource: "request"}
}

func (m *Mock) ListPurchaseOrders(_ context.Context, opts ListOptions) ([]PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PurchaseOrder
	for _, po := range m.orders {
		if !matchOpts(po.PONumber, po.Status, opts) {
			continue
		}
		out = append(out, po)
	}
	return out, nil
}

func (m *Mock) Guard(path string) policy.Decision {
	state := policy.SessionState{}
	if session, ok := m.sessions.Get(); ok {
		if role, err := model.ParseRole(session.User.Role); err == nil {
			state.Authenticated = true
			state.Role = role
		}
	}
	return policy.Resolve(state, path)
}

func matchOpts(text, status string, opts ListOptions) bool {
	if opts.Status != "" && opts.Status != "all" && opts.Status != status {
		return false
	}
	if opts.Search != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(opts.Search)) {
		return false
	}
	return true
}

func (m *Mock) seed() {
	proforma := "uploads/proformas/mock.pdf"
	now := time.Now().UTC().Format(time.RFC3339)
	m.requests = []PurchaseRequest{
		{
			ID: uuid.NewString(), Title: "Laptops for new hires", Description: "Six 14-inch laptops",
			Amount: "7200.00", VendorName: "TechSource Ltd", Category: "IT Equipment",
			Urgency: "high", Status: "pending", CreatedByName: "Sarah Staff",
			ProformaFile: &proforma, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: uuid.NewString(), Title: "Standing desks", Description: "Four adjustable desks",
			Amount: "2600.00", VendorName: "OfficeWorks", Category: "Furniture",
			Urgency: "normal", Status: "approved", CreatedByName: "Sarah Staff",
			ProformaFile: &proforma, CreatedAt: now, UpdatedAt: now,
		},
	}
}
