package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gasanashema/procure-to-pay/internal/db"
	"github.com/gasanashema/procure-to-pay/internal/model"
)

// openTestStore connects to a migrated database. Run cmd/migrate first.
func openTestStore(t *testing.T) (*PGStore, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("PROCUREPAY_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("PROCUREPAY_TEST_DB or DATABASE_URL not set")
		return nil, nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewPGStore(pool), pool
}

func insertTestUser(t *testing.T, store *PGStore, pool *pgxpool.Pool, role model.Role) model.User {
	t.Helper()
	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         "PG Test " + string(role),
		Email:        fmt.Sprintf("pgtest-%s@procurepay.local", uuid.NewString()),
		Role:         role,
		PasswordHash: "x",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID)
	})
	return user
}

func TestPGStoreRequestRoundTrip(t *testing.T) {
	store, pool := openTestStore(t)
	ctx := context.Background()
	staff := insertTestUser(t, store, pool, model.RoleStaff)

	now := time.Now().UTC()
	request := model.PurchaseRequest{
		ID:         uuid.NewString(),
		Title:      "PG round trip",
		Amount:     240000,
		VendorName: "Test Vendor",
		Category:   "IT Equipment",
		Urgency:    model.UrgencyNormal,
		Status:     model.StatusPending,
		CreatedBy:  staff.ID,
		Items: []model.RequestItem{
			{ID: uuid.NewString(), ItemName: "Monitor", Price: 120000, Quantity: 2},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRequest(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM purchase_requests WHERE id = $1`, request.ID)
	})

	got, err := store.GetRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Title != request.Title || got.Amount != request.Amount {
		t.Fatalf("round trip mismatch: got %q %d", got.Title, got.Amount)
	}
	if got.CreatedByName != staff.Name {
		t.Errorf("expected joined creator name %q, got %q", staff.Name, got.CreatedByName)
	}
	if len(got.Items) != 1 || got.Items[0].ItemName != "Monitor" {
		t.Fatalf("items did not survive: %+v", got.Items)
	}

	listed, err := store.ListRequests(ctx, RequestFilter{
		CreatedBy: staff.ID,
		Statuses:  []model.RequestStatus{model.StatusPending},
	})
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != request.ID {
		t.Fatalf("expected the one created request, got %d", len(listed))
	}

	if err := store.UpdateRequestStatus(ctx, request.ID, model.StatusApproved, time.Now().UTC()); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := store.SetRequestFile(ctx, request.ID, FileReceipt, "uploads/receipts/r.pdf", time.Now().UTC()); err != nil {
		t.Fatalf("set file: %v", err)
	}
	got, err = store.GetRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != model.StatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}
	if got.ReceiptFile == nil || *got.ReceiptFile != "uploads/receipts/r.pdf" {
		t.Errorf("receipt file not persisted: %v", got.ReceiptFile)
	}
}

func TestPGStoreOnePurchaseOrderPerRequest(t *testing.T) {
	store, pool := openTestStore(t)
	ctx := context.Background()
	staff := insertTestUser(t, store, pool, model.RoleStaff)
	finance := insertTestUser(t, store, pool, model.RoleFinance)

	now := time.Now().UTC()
	request := model.PurchaseRequest{
		ID:         uuid.NewString(),
		Title:      "PG PO uniqueness",
		Amount:     50000,
		VendorName: "Test Vendor",
		Category:   "Office Supplies",
		Urgency:    model.UrgencyNormal,
		Status:     model.StatusApproved,
		CreatedBy:  staff.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateRequest(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM purchase_orders WHERE request_id = $1`, request.ID)
		pool.Exec(ctx, `DELETE FROM purchase_requests WHERE id = $1`, request.ID)
	})

	po := model.PurchaseOrder{
		ID:         uuid.NewString(),
		PONumber:   "PO-" + uuid.NewString()[:8],
		RequestID:  request.ID,
		VendorName: request.VendorName,
		Amount:     request.Amount,
		Status:     model.POSent,
		CreatedBy:  finance.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreatePurchaseOrder(ctx, po); err != nil {
		t.Fatalf("create po: %v", err)
	}

	dup := po
	dup.ID = uuid.NewString()
	dup.PONumber = "PO-" + uuid.NewString()[:8]
	if err := store.CreatePurchaseOrder(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second po on same request, got %v", err)
	}

	byRequest, err := store.GetPurchaseOrderByRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("get po by request: %v", err)
	}
	if byRequest.ID != po.ID {
		t.Fatalf("expected po %s, got %s", po.ID, byRequest.ID)
	}

	if err := store.UpdatePurchaseOrderStatus(ctx, po.ID, model.POAcknowledged, time.Now().UTC()); err != nil {
		t.Fatalf("update po status: %v", err)
	}
	updated, err := store.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("get po: %v", err)
	}
	if updated.Status != model.POAcknowledged {
		t.Errorf("expected acknowledged, got %s", updated.Status)
	}
}

func TestPGStoreRefreshSessionPurge(t *testing.T) {
	store, pool := openTestStore(t)
	ctx := context.Background()
	user := insertTestUser(t, store, pool, model.RoleStaff)

	now := time.Now().UTC()
	expired := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: uuid.NewString(),
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}
	live := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	for _, session := range []model.RefreshSession{expired, live} {
		if err := store.CreateRefreshSession(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	if _, err := store.PurgeRefreshSessions(ctx, now); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := store.GetRefreshSession(ctx, expired.TokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session purged, got %v", err)
	}
	if _, err := store.GetRefreshSession(ctx, live.TokenHash); err != nil {
		t.Fatalf("live session should survive purge: %v", err)
	}
}
