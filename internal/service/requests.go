// Package service holds the procurement business rules: request lifecycle,
// approval recording, and purchase order generation. Handlers stay thin and
// translate apperr codes to HTTP statuses.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gasanashema/procure-to-pay/internal/apperr"
	"github.com/gasanashema/procure-to-pay/internal/model"
	"github.com/gasanashema/procure-to-pay/internal/repository"
)

type RequestService struct {
	store repository.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewRequestService(store repository.Store, log zerolog.Logger) *RequestService {
	return &RequestService{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// ItemInput is one line of a new request, amounts as decimal strings.
type ItemInput struct {
	ItemName string
	Price    string
	Quantity int
}

type CreateRequestInput struct {
	Title        string
	Description  string
	Amount       string
	VendorName   string
	Category     string
	Urgency      string
	Items        []ItemInput
	ProformaFile *string
}

func (s *RequestService) Create(ctx context.Context, actor model.User, input CreateRequestInput) (model.PurchaseRequest, error) {
	if actor.Role != model.RoleStaff {
		return model.PurchaseRequest{}, apperr.Forbidden("only staff can submit purchase requests")
	}

	title := strings.TrimSpace(input.Title)
	if len(title) < 3 {
		return model.PurchaseRequest{}, apperr.InvalidInput("title", "must be at least 3 characters")
	}
	amount, err := model.ParseCents(input.Amount)
	if err != nil || amount <= 0 {
		return model.PurchaseRequest{}, apperr.InvalidInput("amount", "must be a positive amount")
	}
	if strings.TrimSpace(input.VendorName) == "" {
		return model.PurchaseRequest{}, apperr.InvalidInput("vendor_name", "is required")
	}
	if strings.TrimSpace(input.Category) == "" {
		return model.PurchaseRequest{}, apperr.InvalidInput("category", "is required")
	}
	urgency := model.UrgencyNormal
	if input.Urgency != "" {
		urgency, err = model.ParseUrgency(input.Urgency)
		if err != nil {
			return model.PurchaseRequest{}, apperr.InvalidInput("urgency", "must be one of low, normal, high, critical")
		}
	}
	if input.ProformaFile == nil || *input.ProformaFile == "" {
		return model.PurchaseRequest{}, apperr.InvalidInput("proforma_file", "a proforma invoice is required")
	}

	items := make([]model.RequestItem, 0, len(input.Items))
	for i, line := range input.Items {
		name := strings.TrimSpace(line.ItemName)
		if name == "" {
			return model.PurchaseRequest{}, apperr.InvalidInput(fmt.Sprintf("items[%d].item_name", i), "is required")
		}
		price, err := model.ParseCents(line.Price)
		if err != nil || price <= 0 {
			return model.PurchaseRequest{}, apperr.InvalidInput(fmt.Sprintf("items[%d].price", i), "must be a positive amount")
		}
		if line.Quantity <= 0 {
			return model.PurchaseRequest{}, apperr.InvalidInput(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		items = append(items, model.RequestItem{
			ID:       uuid.NewString(),
			ItemName: name,
			Price:    price,
			Quantity: line.Quantity,
		})
	}
	if total := itemsTotal(items); len(items) > 0 && total != amount {
		return model.PurchaseRequest{}, apperr.InvalidInput("amount", fmt.Sprintf("must equal the item totals (%s)", total.String()))
	}

	now := s.now()
	request := model.PurchaseRequest{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Amount:        amount,
		VendorName:    strings.TrimSpace(input.VendorName),
		Category:      strings.TrimSpace(input.Category),
		Urgency:       urgency,
		Status:        model.StatusPending,
		CreatedBy:     actor.ID,
		CreatedByName: actor.Name,
		ProformaFile:  input.ProformaFile,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateRequest(ctx, request); err != nil {
		return model.PurchaseRequest{}, err
	}
	s.log.Info().Str("request_id", request.ID).Str("created_by", actor.ID).Msg("purchase request created")
	return request, nil
}

// Get enforces visibility: staff only see their own requests, approvers and
// finance can inspect any.
func (s *RequestService) Get(ctx context.Context, actor model.User, requestID string) (model.PurchaseRequest, error) {
	request, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.PurchaseRequest{}, apperr.NotFound("request not found")
	}
	if err != nil {
		return model.PurchaseRequest{}, err
	}
	if actor.Role == model.RoleStaff && request.CreatedBy != actor.ID {
		return model.PurchaseRequest{}, apperr.NotFound("request not found")
	}
	return request, nil
}

// ListForRole returns the role-scoped request feed: staff their own history,
// approvers the pending queue, finance everything approved or processed.
func (s *RequestService) ListForRole(ctx context.Context, actor model.User) ([]model.PurchaseRequest, error) {
	filter := repository.RequestFilter{}
	switch actor.Role {
	case model.RoleStaff:
		filter.CreatedBy = actor.ID
	case model.RoleApprover:
		filter.Statuses = []model.RequestStatus{model.StatusPending}
	case model.RoleFinance:
		filter.Statuses = []model.RequestStatus{model.StatusApproved, model.StatusProcessed}
	default:
		return nil, apperr.Forbidden("unknown role")
	}
	return s.store.ListRequests(ctx, filter)
}

func (s *RequestService) Approve(ctx context.Context, actor model.User, requestID, comments string) (model.PurchaseRequest, error) {
	return s.decide(ctx, actor, requestID, comments, model.StatusApproved)
}

func (s *RequestService) Reject(ctx context.Context, actor model.User, requestID, comments string) (model.PurchaseRequest, error) {
	if strings.TrimSpace(comments) == "" {
		return model.PurchaseRequest{}, apperr.InvalidInput("comments", "reason is required")
	}
	return s.decide(ctx, actor, requestID, comments, model.StatusRejected)
}

func (s *RequestService) decide(ctx context.Context, actor model.User, requestID, comments string, next model.RequestStatus) (model.PurchaseRequest, error) {
	if actor.Role != model.RoleApprover {
		return model.PurchaseRequest{}, apperr.Forbidden("only approvers can decide requests")
	}
	request, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.PurchaseRequest{}, apperr.NotFound("request not found")
	}
	if err != nil {
		return model.PurchaseRequest{}, err
	}
	if !request.Status.CanTransitionTo(next) {
		return model.PurchaseRequest{}, apperr.Conflict(fmt.Sprintf("request is already %s", request.Status))
	}

	now := s.now()
	if err := s.store.UpdateRequestStatus(ctx, requestID, next, now); err != nil {
		return model.PurchaseRequest{}, err
	}
	step := model.Approval{
		ID:           uuid.NewString(),
		RequestID:    requestID,
		ApproverID:   actor.ID,
		ApproverName: actor.Name,
		Role:         actor.Role,
		Status:       model.ApprovalStatus(next),
		Comments:     strings.TrimSpace(comments),
		Timestamp:    now,
	}
	if err := s.store.CreateApproval(ctx, step); err != nil {
		return model.PurchaseRequest{}, err
	}

	request.Status = next
	request.UpdatedAt = now
	s.log.Info().
		Str("request_id", requestID).
		Str("approver_id", actor.ID).
		Str("decision", string(next)).
		Msg("request decided")
	return request, nil
}

// Delete removes a request. Only the requester can delete, and only while the
// request is still pending.
func (s *RequestService) Delete(ctx context.Context, actor model.User, requestID string) error {
	request, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("request not found")
	}
	if err != nil {
		return err
	}
	if request.CreatedBy != actor.ID {
		return apperr.Forbidden("only the requester can delete a request")
	}
	if request.Status != model.StatusPending {
		return apperr.Conflict("only pending requests can be deleted")
	}
	return s.store.DeleteRequest(ctx, requestID)
}

// AttachProforma replaces the proforma on a still-pending request.
func (s *RequestService) AttachProforma(ctx context.Context, actor model.User, requestID, path string) (model.PurchaseRequest, error) {
	request, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return model.PurchaseRequest{}, err
	}
	if actor.Role != model.RoleStaff || request.CreatedBy != actor.ID {
		return model.PurchaseRequest{}, apperr.Forbidden("only the requester can upload a proforma")
	}
	if request.Status != model.StatusPending {
		return model.PurchaseRequest{}, apperr.Conflict("proforma can only be replaced while pending")
	}
	return s.setFile(ctx, request, repository.FileProforma, path)
}

// AttachReceipt records delivery proof on an approved or processed request.
func (s *RequestService) AttachReceipt(ctx context.Context, actor model.User, requestID, path string) (model.PurchaseRequest, error) {
	request, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return model.PurchaseRequest{}, err
	}
	if actor.Role != model.RoleStaff || request.CreatedBy != actor.ID {
		return model.PurchaseRequest{}, apperr.Forbidden("only the requester can upload a receipt")
	}
	if request.Status != model.StatusApproved && request.Status != model.StatusProcessed {
		return model.PurchaseRequest{}, apperr.Conflict("receipts are only accepted for approved requests")
	}
	return s.setFile(ctx, request, repository.FileReceipt, path)
}

func (s *RequestService) setFile(ctx context.Context, request model.PurchaseRequest, kind, path string) (model.PurchaseRequest, error) {
	now := s.now()
	if err := s.store.SetRequestFile(ctx, request.ID, kind, path, now); err != nil {
		return model.PurchaseRequest{}, err
	}
	return s.store.GetRequest(ctx, request.ID)
}

func (s *RequestService) Approvals(ctx context.Context, actor model.User, requestID string) ([]model.Approval, error) {
	if _, err := s.Get(ctx, actor, requestID); err != nil {
		return nil, err
	}
	return s.store.ListApprovals(ctx, requestID)
}

// GeneratePO turns an approved request into a purchase order. The operation
// is idempotent: calling it again for the same request returns the existing
// order unchanged.
func (s *RequestService) GeneratePO(ctx context.Context, actor model.User, requestID string) (model.PurchaseOrder, error) {
	if actor.Role != model.RoleFinance {
		return model.PurchaseOrder{}, apperr.Forbidden("only finance can generate purchase orders")
	}
	request, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.PurchaseOrder{}, apperr.NotFound("request not found")
	}
	if err != nil {
		return model.PurchaseOrder{}, err
	}

	if existing, err := s.store.GetPurchaseOrderByRequest(ctx, requestID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.PurchaseOrder{}, err
	}

	if request.Status != model.StatusApproved {
		return model.PurchaseOrder{}, apperr.Conflict(fmt.Sprintf("request is %s, purchase orders need an approved request", request.Status))
	}
	if total := itemsTotal(request.Items); len(request.Items) > 0 && total != request.Amount {
		return model.PurchaseOrder{}, apperr.Conflict(fmt.Sprintf("request amount %s does not match its item totals %s", request.Amount.String(), total.String()))
	}

	now := s.now()
	items := make([]model.RequestItem, len(request.Items))
	for i, item := range request.Items {
		items[i] = model.RequestItem{ID: uuid.NewString(), ItemName: item.ItemName, Price: item.Price, Quantity: item.Quantity}
	}
	var po model.PurchaseOrder
	for attempt := 0; ; attempt++ {
		number, err := s.nextPONumber(ctx)
		if err != nil {
			return model.PurchaseOrder{}, err
		}
		po = model.PurchaseOrder{
			ID:         uuid.NewString(),
			PONumber:   number,
			RequestID:  request.ID,
			VendorName: request.VendorName,
			Amount:     request.Amount,
			Items:      items,
			Status:     model.POSent,
			CreatedBy:  actor.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = s.store.CreatePurchaseOrder(ctx, po)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.PurchaseOrder{}, err
		}
		// Either a concurrent generation won this request, or two
		// generations for different requests raced on the same number.
		if existing, getErr := s.store.GetPurchaseOrderByRequest(ctx, requestID); getErr == nil {
			return existing, nil
		}
		if attempt == 2 {
			return model.PurchaseOrder{}, err
		}
	}
	if err := s.store.UpdateRequestStatus(ctx, requestID, model.StatusProcessed, now); err != nil {
		return model.PurchaseOrder{}, err
	}
	if err := s.store.SetRequestFile(ctx, requestID, repository.FilePurchaseOrder, po.PONumber, now); err != nil {
		return model.PurchaseOrder{}, err
	}
	s.log.Info().
		Str("request_id", requestID).
		Str("po_number", po.PONumber).
		Str("generated_by", actor.ID).
		Msg("purchase order generated")
	return po, nil
}

// nextPONumber continues the sequence from the highest number issued so far.
func (s *RequestService) nextPONumber(ctx context.Context) (string, error) {
	existing, err := s.store.ListPurchaseOrders(ctx)
	if err != nil {
		return "", err
	}
	next := 1
	for _, po := range existing {
		var n int
		if _, err := fmt.Sscanf(po.PONumber, "PO-%d", &n); err == nil && n >= next {
			next = n + 1
		}
	}
	return fmt.Sprintf("PO-%04d", next), nil
}

func itemsTotal(items []model.RequestItem) model.Cents {
	var total model.Cents
	for _, item := range items {
		total += item.Total()
	}
	return total
}

func (s *RequestService) ListPurchaseOrders(ctx context.Context, actor model.User) ([]model.PurchaseOrder, error) {
	if actor.Role != model.RoleFinance {
		return nil, apperr.Forbidden("only finance can list purchase orders")
	}
	return s.store.ListPurchaseOrders(ctx)
}

func (s *RequestService) GetPurchaseOrder(ctx context.Context, actor model.User, poID string) (model.PurchaseOrder, error) {
	if actor.Role != model.RoleFinance {
		return model.PurchaseOrder{}, apperr.Forbidden("only finance can view purchase orders")
	}
	po, err := s.store.GetPurchaseOrder(ctx, poID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.PurchaseOrder{}, apperr.NotFound("purchase order not found")
	}
	return po, err
}

func (s *RequestService) AcknowledgePO(ctx context.Context, actor model.User, poID string) (model.PurchaseOrder, error) {
	return s.advancePO(ctx, actor, poID, model.POAcknowledged)
}

func (s *RequestService) FulfillPO(ctx context.Context, actor model.User, poID string) (model.PurchaseOrder, error) {
	return s.advancePO(ctx, actor, poID, model.POFulfilled)
}

func (s *RequestService) advancePO(ctx context.Context, actor model.User, poID string, next model.POStatus) (model.PurchaseOrder, error) {
	po, err := s.GetPurchaseOrder(ctx, actor, poID)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	if !po.Status.CanTransitionTo(next) {
		return model.PurchaseOrder{}, apperr.Conflict(fmt.Sprintf("purchase order is %s, cannot move to %s", po.Status, next))
	}
	now := s.now()
	if err := s.store.UpdatePurchaseOrderStatus(ctx, poID, next, now); err != nil {
		return model.PurchaseOrder{}, err
	}
	po.Status = next
	po.UpdatedAt = now
	return po, nil
}
