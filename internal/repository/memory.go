package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gasanashema/procure-to-pay/internal/model"
)

// MemStore keeps everything in process memory. It backs tests and the
// fixture-driven demo mode; every method returns deep-enough copies so
// callers never share mutable state with the store.
type MemStore struct {
	mu        sync.RWMutex
	users     map[string]model.User
	sessions  map[string]model.RefreshSession
	requests  map[string]model.PurchaseRequest
	approvals map[string][]model.Approval
	orders    map[string]model.PurchaseOrder
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:     make(map[string]model.User),
		sessions:  make(map[string]model.RefreshSession),
		requests:  make(map[string]model.PurchaseRequest),
		approvals: make(map[string][]model.Approval),
		orders:    make(map[string]model.PurchaseOrder),
	}
}

func (s *MemStore) CreateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicate
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *MemStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s *MemStore) GetUserByID(_ context.Context, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemStore) UpdateUserPassword(_ context.Context, userID, passwordHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = updatedAt
	s.users[userID] = user
	return nil
}

func (s *MemStore) CreateRefreshSession(_ context.Context, session model.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *MemStore) GetRefreshSession(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return model.RefreshSession{}, ErrNotFound
	}
	return session, nil
}

func (s *MemStore) RevokeRefreshSession(_ context.Context, sessionID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, session := range s.sessions {
		if session.ID == sessionID {
			session.RevokedAt = &revokedAt
			s.sessions[hash] = session
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemStore) RevokeRefreshSessionsByUser(_ context.Context, userID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &revokedAt
			s.sessions[hash] = session
		}
	}
	return nil
}

func (s *MemStore) PurgeRefreshSessions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for hash, session := range s.sessions {
		if session.ExpiresAt.Before(before) || session.RevokedAt != nil {
			delete(s.sessions, hash)
			purged++
		}
	}
	return purged, nil
}

func (s *MemStore) CreateRequest(_ context.Context, request model.PurchaseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *MemStore) GetRequest(_ context.Context, requestID string) (model.PurchaseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return model.PurchaseRequest{}, ErrNotFound
	}
	return cloneRequest(request), nil
}

func (s *MemStore) ListRequests(_ context.Context, filter RequestFilter) ([]model.PurchaseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PurchaseRequest, 0, len(s.requests))
	for _, request := range s.requests {
		if filter.CreatedBy != "" && request.CreatedBy != filter.CreatedBy {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, request.Status) {
			continue
		}
		out = append(out, cloneRequest(request))
	}
	// Newest first, the ordering every dashboard expects.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) UpdateRequestStatus(_ context.Context, requestID string, status model.RequestStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	request.Status = status
	request.UpdatedAt = updatedAt
	s.requests[requestID] = request
	return nil
}

func (s *MemStore) SetRequestFile(_ context.Context, requestID, kind, path string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	switch kind {
	case FileProforma:
		request.ProformaFile = &path
	case FileReceipt:
		request.ReceiptFile = &path
	case FilePurchaseOrder:
		request.PurchaseOrderFile = &path
	default:
		return ErrNotFound
	}
	request.UpdatedAt = updatedAt
	s.requests[requestID] = request
	return nil
}

func (s *MemStore) DeleteRequest(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[requestID]; !ok {
		return ErrNotFound
	}
	delete(s.requests, requestID)
	delete(s.approvals, requestID)
	return nil
}

func (s *MemStore) CreateApproval(_ context.Context, approval model.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[approval.RequestID] = append(s.approvals[approval.RequestID], approval)
	return nil
}

func (s *MemStore) ListApprovals(_ context.Context, requestID string) ([]model.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.approvals[requestID]
	out := make([]model.Approval, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemStore) CreatePurchaseOrder(_ context.Context, po model.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.RequestID == po.RequestID || existing.PONumber == po.PONumber {
			return ErrDuplicate
		}
	}
	s.orders[po.ID] = clonePO(po)
	return nil
}

func (s *MemStore) GetPurchaseOrder(_ context.Context, poID string) (model.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.orders[poID]
	if !ok {
		return model.PurchaseOrder{}, ErrNotFound
	}
	return clonePO(po), nil
}

func (s *MemStore) GetPurchaseOrderByRequest(_ context.Context, requestID string) (model.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, po := range s.orders {
		if po.RequestID == requestID {
			return clonePO(po), nil
		}
	}
	return model.PurchaseOrder{}, ErrNotFound
}

func (s *MemStore) ListPurchaseOrders(_ context.Context) ([]model.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PurchaseOrder, 0, len(s.orders))
	for _, po := range s.orders {
		out = append(out, clonePO(po))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) UpdatePurchaseOrderStatus(_ context.Context, poID string, status model.POStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[poID]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	po.UpdatedAt = updatedAt
	s.orders[poID] = po
	return nil
}

func containsStatus(statuses []model.RequestStatus, status model.RequestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func cloneRequest(request model.PurchaseRequest) model.PurchaseRequest {
	out := request
	out.Items = make([]model.RequestItem, len(request.Items))
	copy(out.Items, request.Items)
	return out
}

func clonePO(po model.PurchaseOrder) model.PurchaseOrder {
	out := po
	out.Items = make([]model.RequestItem, len(po.Items))
	copy(out.Items, po.Items)
	return out
}
