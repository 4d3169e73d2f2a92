// Package client is the Go consumer of the procurement API. It owns the
// persisted session, attaches the bearer token to every call, and guards
// navigation with the shared route policy. A mock implementation backs
// offline development.
package client

import (
	"context"

	"github.com/gasanashema/procure-to-pay/internal/policy"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type RequestItem struct {
	ID       string `json:"id"`
	ItemName string `json:"item_name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	Total    string `json:"total"`
}

type PurchaseRequest struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Amount            string        `json:"amount"`
	VendorName        string        `json:"vendor_name"`
	Category          string        `json:"category"`
	Urgency           string        `json:"urgency"`
	Status            string        `json:"status"`
	CreatedBy         string        `json:"created_by"`
	CreatedByName     string        `json:"created_by_name"`
	ProformaFile      *string       `json:"proforma_file"`
	ReceiptFile       *string       `json:"receipt_file"`
	PurchaseOrderFile *string       `json:"purchase_order_file"`
	Items             []RequestItem `json:"items"`
	CreatedAt         string        `json:"created_at"`
	UpdatedAt         string        `json:"updated_at"`
}

type Approval struct {
	ID           string `json:"id"`
	RequestID    string `json:"request_id"`
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	Comments     string `json:"comments"`
	Timestamp    string `json:"timestamp"`
}

type PurchaseOrder struct {
	ID         string        `json:"id"`
	PONumber   string        `json:"po_number"`
	RequestID  string        `json:"request_id"`
	VendorName string        `json:"vendor_name"`
	Amount     string        `json:"amount"`
	Status     string        `json:"status"`
	Items      []RequestItem `json:"items"`
	CreatedAt  string        `json:"created_at"`
	UpdatedAt  string        `json:"updated_at"`
}

type ListOptions struct {
	Search string
	Status string
}

// API is what dashboards program against. HTTP and mock implementations
// satisfy it.
type API interface {
	Login(ctx context.Context, email, password string) (User, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (User, error)

	ListRequests(ctx context.Context, opts ListOptions) ([]PurchaseRequest, error)
	GetRequest(ctx context.Context, requestID string) (PurchaseRequest, error)
	Approve(ctx context.Context, requestID, comments string) (PurchaseRequest, error)
	Reject(ctx context.Context, requestID, comments string) (PurchaseRequest, error)
	Approvals(ctx context.Context, requestID string) ([]Approval, error)

	FinanceQueue(ctx context.Context, opts ListOptions) ([]PurchaseRequest, error)
	GeneratePO(ctx context.Context, requestID string) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, opts ListOptions) ([]PurchaseOrder, error)

	// Guard resolves whether the current session may visit path.
	Guard(path string) policy.Decision
}
