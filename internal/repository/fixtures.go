package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gasanashema/procure-to-pay/internal/crypto"
	"github.com/gasanashema/procure-to-pay/internal/model"
)

// DemoPassword is the password shared by all seeded demo accounts.
const DemoPassword = "procure2pay"

// SeedDemoData loads the demo users and a handful of requests in every
// lifecycle state. Used by the memory backend at startup and by the migrate
// command's -seed flag.
func SeedDemoData(ctx context.Context, store Store) error {
	hash, err := crypto.HashPassword(DemoPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	staff := model.User{
		ID:           uuid.NewString(),
		Name:         "Sarah Staff",
		Email:        "staff@procurepay.local",
		Role:         model.RoleStaff,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	approver := model.User{
		ID:           uuid.NewString(),
		Name:         "Aaron Approver",
		Email:        "approver@procurepay.local",
		Role:         model.RoleApprover,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	finance := model.User{
		ID:           uuid.NewString(),
		Name:         "Fiona Finance",
		Email:        "finance@procurepay.local",
		Role:         model.RoleFinance,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, user := range []model.User{staff, approver, finance} {
		if err := store.CreateUser(ctx, user); err != nil {
			return err
		}
	}

	proforma := "uploads/proformas/demo-laptops.pdf"
	pending := model.PurchaseRequest{
		ID:            uuid.NewString(),
		Title:         "Laptops for new hires",
		Description:   "Six 14-inch laptops for the onboarding cohort",
		Amount:        720000,
		VendorName:    "TechSource Ltd",
		Category:      "IT Equipment",
		Urgency:       model.UrgencyHigh,
		Status:        model.StatusPending,
		CreatedBy:     staff.ID,
		CreatedByName: staff.Name,
		ProformaFile:  &proforma,
		Items: []model.RequestItem{
			{ID: uuid.NewString(), ItemName: "14-inch laptop", Price: 120000, Quantity: 6},
		},
		CreatedAt: now.Add(-48 * time.Hour),
		UpdatedAt: now.Add(-48 * time.Hour),
	}
	approved := model.PurchaseRequest{
		ID:            uuid.NewString(),
		Title:         "Standing desks",
		Description:   "Four adjustable desks for the finance office",
		Amount:        260000,
		VendorName:    "OfficeWorks",
		Category:      "Furniture",
		Urgency:       model.UrgencyNormal,
		Status:        model.StatusApproved,
		CreatedBy:     staff.ID,
		CreatedByName: staff.Name,
		ProformaFile:  &proforma,
		Items: []model.RequestItem{
			{ID: uuid.NewString(), ItemName: "Adjustable desk", Price: 65000, Quantity: 4},
		},
		CreatedAt: now.Add(-96 * time.Hour),
		UpdatedAt: now.Add(-24 * time.Hour),
	}
	rejected := model.PurchaseRequest{
		ID:            uuid.NewString(),
		Title:         "Espresso machine",
		Description:   "Commercial espresso machine for the break room",
		Amount:        180000,
		VendorName:    "BaristaPro",
		Category:      "Office Supplies",
		Urgency:       model.UrgencyLow,
		Status:        model.StatusRejected,
		CreatedBy:     staff.ID,
		CreatedByName: staff.Name,
		ProformaFile:  &proforma,
		CreatedAt:     now.Add(-120 * time.Hour),
		UpdatedAt:     now.Add(-72 * time.Hour),
	}
	for _, request := range []model.PurchaseRequest{pending, approved, rejected} {
		if err := store.CreateRequest(ctx, request); err != nil {
			return err
		}
	}

	steps := []model.Approval{
		{
			ID:           uuid.NewString(),
			RequestID:    approved.ID,
			ApproverID:   approver.ID,
			ApproverName: approver.Name,
			Role:         model.RoleApprover,
			Status:       model.ApprovalApproved,
			Comments:     "Within budget for Q3",
			Timestamp:    now.Add(-24 * time.Hour),
		},
		{
			ID:           uuid.NewString(),
			RequestID:    rejected.ID,
			ApproverID:   approver.ID,
			ApproverName: approver.Name,
			Role:         model.RoleApprover,
			Status:       model.ApprovalRejected,
			Comments:     "Not an approved spending category",
			Timestamp:    now.Add(-72 * time.Hour),
		},
	}
	for _, step := range steps {
		if err := store.CreateApproval(ctx, step); err != nil {
			return err
		}
	}

	return nil
}
