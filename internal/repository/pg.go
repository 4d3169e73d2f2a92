package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gasanashema/procure-to-pay/internal/model"
)

// PGStore is the Postgres-backed Store implementation.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.Role, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return mapPGError(err)
}

func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role, password_hash, created_at, updated_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

func (s *PGStore) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	return scanUser(row)
}

func (s *PGStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, passwordHash, updatedAt, userID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_token_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt, session.UserAgent, session.IPAddress)
	return mapPGError(err)
}

func (s *PGStore) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
		FROM refresh_token_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt, &session.UserAgent, &session.IPAddress)
	return session, mapPGError(err)
}

func (s *PGStore) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_token_sessions SET revoked_at = $1 WHERE id = $2
	`, revokedAt, sessionID)
	return mapPGError(err)
}

func (s *PGStore) RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_token_sessions SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL
	`, revokedAt, userID)
	return mapPGError(err)
}

func (s *PGStore) PurgeRefreshSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_token_sessions WHERE expires_at < $1 OR revoked_at IS NOT NULL
	`, before)
	if err != nil {
		return 0, mapPGError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) CreateRequest(ctx context.Context, request model.PurchaseRequest) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO purchase_requests (id, title, description, amount_cents, vendor_name, category, urgency,
			                               status, created_by, proforma_file, receipt_file, purchase_order_file,
			                               created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, request.ID, request.Title, request.Description, int64(request.Amount), request.VendorName,
			request.Category, request.Urgency, request.Status, request.CreatedBy,
			request.ProformaFile, request.ReceiptFile, request.PurchaseOrderFile,
			request.CreatedAt, request.UpdatedAt)
		if err != nil {
			return err
		}
		for _, item := range request.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO request_items (id, request_id, item_name, price_cents, quantity)
				VALUES ($1, $2, $3, $4, $5)
			`, item.ID, request.ID, item.ItemName, int64(item.Price), item.Quantity)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGStore) GetRequest(ctx context.Context, requestID string) (model.PurchaseRequest, error) {
	row := s.pool.QueryRow(ctx, requestSelect+` WHERE r.id = $1`, requestID)
	request, err := scanRequest(row)
	if err != nil {
		return model.PurchaseRequest{}, err
	}
	request.Items, err = s.listRequestItems(ctx, request.ID)
	return request, err
}

func (s *PGStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, error) {
	query := requestSelect + ` WHERE 1=1`
	args := []interface{}{}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		query += ` AND r.created_by = $1`
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		if filter.CreatedBy != "" {
			query += ` AND r.status = ANY($2)`
		} else {
			query += ` AND r.status = ANY($1)`
		}
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	var out []model.PurchaseRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := s.listRequestItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *PGStore) UpdateRequestStatus(ctx context.Context, requestID string, status model.RequestStatus, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE purchase_requests SET status = $1, updated_at = $2 WHERE id = $3
	`, status, updatedAt, requestID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetRequestFile(ctx context.Context, requestID, kind, path string, updatedAt time.Time) error {
	var column string
	switch kind {
	case FileProforma:
		column = "proforma_file"
	case FileReceipt:
		column = "receipt_file"
	case FilePurchaseOrder:
		column = "purchase_order_file"
	default:
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE purchase_requests SET `+column+` = $1, updated_at = $2 WHERE id = $3
	`, path, updatedAt, requestID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteRequest(ctx context.Context, requestID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM purchase_requests WHERE id = $1`, requestID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CreateApproval(ctx context.Context, approval model.Approval) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approvals (id, request_id, approver_id, role, status, comments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, approval.ID, approval.RequestID, approval.ApproverID, approval.Role, approval.Status, approval.Comments, approval.Timestamp)
	return mapPGError(err)
}

func (s *PGStore) ListApprovals(ctx context.Context, requestID string) ([]model.Approval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.request_id, a.approver_id, u.name, a.role, a.status, a.comments, a.created_at
		FROM approvals a
		JOIN users u ON u.id = a.approver_id
		WHERE a.request_id = $1
		ORDER BY a.created_at
	`, requestID)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	var out []model.Approval
	for rows.Next() {
		var approval model.Approval
		err := rows.Scan(&approval.ID, &approval.RequestID, &approval.ApproverID, &approval.ApproverName,
			&approval.Role, &approval.Status, &approval.Comments, &approval.Timestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, approval)
	}
	return out, rows.Err()
}

func (s *PGStore) CreatePurchaseOrder(ctx context.Context, po model.PurchaseOrder) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO purchase_orders (id, po_number, request_id, vendor_name, amount_cents, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, po.ID, po.PONumber, po.RequestID, po.VendorName, int64(po.Amount), po.Status, po.CreatedBy, po.CreatedAt, po.UpdatedAt)
		if err != nil {
			return err
		}
		for _, item := range po.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO purchase_order_items (id, po_id, item_name, price_cents, quantity)
				VALUES ($1, $2, $3, $4, $5)
			`, item.ID, po.ID, item.ItemName, int64(item.Price), item.Quantity)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGStore) GetPurchaseOrder(ctx context.Context, poID string) (model.PurchaseOrder, error) {
	row := s.pool.QueryRow(ctx, poSelect+` WHERE p.id = $1`, poID)
	return s.finishPO(ctx, row)
}

func (s *PGStore) GetPurchaseOrderByRequest(ctx context.Context, requestID string) (model.PurchaseOrder, error) {
	row := s.pool.QueryRow(ctx, poSelect+` WHERE p.request_id = $1`, requestID)
	return s.finishPO(ctx, row)
}

func (s *PGStore) ListPurchaseOrders(ctx context.Context) ([]model.PurchaseOrder, error) {
	rows, err := s.pool.Query(ctx, poSelect+` ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	var out []model.PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := s.listPOItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *PGStore) UpdatePurchaseOrderStatus(ctx context.Context, poID string, status model.POStatus, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE purchase_orders SET status = $1, updated_at = $2 WHERE id = $3
	`, status, updatedAt, poID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const requestSelect = `
	SELECT r.id, r.title, r.description, r.amount_cents, r.vendor_name, r.category, r.urgency,
	       r.status, r.created_by, u.name, r.proforma_file, r.receipt_file, r.purchase_order_file,
	       r.created_at, r.updated_at
	FROM purchase_requests r
	JOIN users u ON u.id = r.created_by`

const poSelect = `
	SELECT p.id, p.po_number, p.request_id, p.vendor_name, p.amount_cents, p.status, p.created_by,
	       p.created_at, p.updated_at
	FROM purchase_orders p`

func (s *PGStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPGError(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return mapPGError(err)
	}
	return tx.Commit(ctx)
}

func (s *PGStore) listRequestItems(ctx context.Context, requestID string) ([]model.RequestItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, item_name, price_cents, quantity
		FROM request_items
		WHERE request_id = $1
		ORDER BY item_name
	`, requestID)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *PGStore) listPOItems(ctx context.Context, poID string) ([]model.RequestItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, item_name, price_cents, quantity
		FROM purchase_order_items
		WHERE po_id = $1
		ORDER BY item_name
	`, poID)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *PGStore) finishPO(ctx context.Context, row pgx.Row) (model.PurchaseOrder, error) {
	po, err := scanPO(row)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	po.Items, err = s.listPOItems(ctx, po.ID)
	return po, err
}

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, mapPGError(err)
}

func scanRequest(row pgx.Row) (model.PurchaseRequest, error) {
	var request model.PurchaseRequest
	var amount int64
	err := row.Scan(&request.ID, &request.Title, &request.Description, &amount, &request.VendorName,
		&request.Category, &request.Urgency, &request.Status, &request.CreatedBy, &request.CreatedByName,
		&request.ProformaFile, &request.ReceiptFile, &request.PurchaseOrderFile,
		&request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		return model.PurchaseRequest{}, mapPGError(err)
	}
	request.Amount = model.Cents(amount)
	return request, nil
}

func scanPO(row pgx.Row) (model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	var amount int64
	err := row.Scan(&po.ID, &po.PONumber, &po.RequestID, &po.VendorName, &amount, &po.Status, &po.CreatedBy,
		&po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return model.PurchaseOrder{}, mapPGError(err)
	}
	po.Amount = model.Cents(amount)
	return po, nil
}

func scanItems(rows pgx.Rows) ([]model.RequestItem, error) {
	var out []model.RequestItem
	for rows.Next() {
		var item model.RequestItem
		var price int64
		if err := rows.Scan(&item.ID, &item.ItemName, &price, &item.Quantity); err != nil {
			return nil, err
		}
		item.Price = model.Cents(price)
		out = append(out, item)
	}
	return out, rows.Err()
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
