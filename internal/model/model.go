package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of roles the procurement system knows about.
// Anything else is rejected at the deserialization boundary.
type Role string

const (
	RoleStaff    Role = "staff"
	RoleApprover Role = "approver"
	RoleFinance  Role = "finance"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleStaff:
		return RoleStaff, nil
	case RoleApprover:
		return RoleApprover, nil
	case RoleFinance:
		return RoleFinance, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

func Roles() []Role {
	return []Role{RoleStaff, RoleApprover, RoleFinance}
}

type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RequestStatus follows the request through its lifetime. Transitions are
// monotonic: a request never moves backward.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusProcessed RequestStatus = "processed"
)

func ParseRequestStatus(raw string) (RequestStatus, error) {
	switch RequestStatus(strings.TrimSpace(strings.ToLower(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	case StatusProcessed:
		return StatusProcessed, nil
	default:
		return "", fmt.Errorf("unknown request status %q", raw)
	}
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusProcessed
	default:
		return false
	}
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func ParseUrgency(raw string) (Urgency, error) {
	switch Urgency(strings.TrimSpace(strings.ToLower(raw))) {
	case UrgencyLow:
		return UrgencyLow, nil
	case UrgencyNormal:
		return UrgencyNormal, nil
	case UrgencyHigh:
		return UrgencyHigh, nil
	case UrgencyCritical:
		return UrgencyCritical, nil
	default:
		return "", fmt.Errorf("unknown urgency %q", raw)
	}
}

type PurchaseRequest struct {
	ID                string
	Title             string
	Description       string
	Amount            Cents
	VendorName        string
	Category          string
	Urgency           Urgency
	Status            RequestStatus
	CreatedBy         string
	CreatedByName     string
	ProformaFile      *string
	ReceiptFile       *string
	PurchaseOrderFile *string
	Items             []RequestItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type RequestItem struct {
	ID       string
	ItemName string
	Price    Cents
	Quantity int
}

func (i RequestItem) Total() Cents {
	return i.Price * Cents(i.Quantity)
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is one step in a request's approval timeline, ordered by Timestamp.
type Approval struct {
	ID           string
	RequestID    string
	ApproverID   string
	ApproverName string
	Role         Role
	Status       ApprovalStatus
	Comments     string
	Timestamp    time.Time
}

type POStatus string

const (
	POSent         POStatus = "sent"
	POAcknowledged POStatus = "acknowledged"
	POFulfilled    POStatus = "fulfilled"
)

func (s POStatus) CanTransitionTo(next POStatus) bool {
	switch s {
	case POSent:
		return next == POAcknowledged
	case POAcknowledged:
		return next == POFulfilled
	default:
		return false
	}
}

// PurchaseOrder is generated by finance from an approved request. At most one
// exists per request, and Amount must equal the sum of item totals.
type PurchaseOrder struct {
	ID         string
	PONumber   string
	RequestID  string
	VendorName string
	Amount     Cents
	Items      []RequestItem
	Status     POStatus
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (po PurchaseOrder) ItemsTotal() Cents {
	var total Cents
	for _, item := range po.Items {
		total += item.Total()
	}
	return total
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}
