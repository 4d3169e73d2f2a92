// Package repository is the data-access layer. Store has two
// implementations: MemStore (seedable in-memory fixtures) and PGStore
// (Postgres via pgx), selected by configuration at startup.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/gasanashema/procure-to-pay/internal/model"
)

// ErrNotFound is returned by every implementation for missing rows so
// callers never depend on driver-specific sentinels.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint would be violated
// (user email, one purchase order per request).
var ErrDuplicate = errors.New("duplicate")

// RequestFilter narrows ListRequests. Zero values mean "no constraint".
type RequestFilter struct {
	CreatedBy string
	Statuses  []model.RequestStatus
}

type Store interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error

	CreateRefreshSession(ctx context.Context, session model.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error
	RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error
	PurgeRefreshSessions(ctx context.Context, before time.Time) (int64, error)

	CreateRequest(ctx context.Context, request model.PurchaseRequest) error
	GetRequest(ctx context.Context, requestID string) (model.PurchaseRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, error)
	UpdateRequestStatus(ctx context.Context, requestID string, status model.RequestStatus, updatedAt time.Time) error
	SetRequestFile(ctx context.Context, requestID, kind, path string, updatedAt time.Time) error
	DeleteRequest(ctx context.Context, requestID string) error

	CreateApproval(ctx context.Context, approval model.Approval) error
	ListApprovals(ctx context.Context, requestID string) ([]model.Approval, error)

	CreatePurchaseOrder(ctx context.Context, po model.PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, poID string) (model.PurchaseOrder, error)
	GetPurchaseOrderByRequest(ctx context.Context, requestID string) (model.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context) ([]model.PurchaseOrder, error)
	UpdatePurchaseOrderStatus(ctx context.Context, poID string, status model.POStatus, updatedAt time.Time) error
}

// File attachment kinds accepted by SetRequestFile.
const (
	FileProforma      = "proforma"
	FileReceipt       = "receipt"
	FilePurchaseOrder = "purchase_order"
)
