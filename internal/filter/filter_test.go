package filter

import (
	"reflect"
	"testing"

	"github.com/gasanashema/procure-to-pay/internal/model"
)

func sampleRequests() []model.PurchaseRequest {
	return []model.PurchaseRequest{
		{ID: "1", Title: "Laptops for onboarding", Description: "Six ThinkPads", CreatedByName: "Alice Staff", Status: model.StatusPending},
		{ID: "2", Title: "Office chairs", Description: "Ergonomic", CreatedByName: "Bob Staff", Status: model.StatusApproved},
		{ID: "3", Title: "Catering", Description: "laptop stickers included", CreatedByName: "Carol", Status: model.StatusRejected},
	}
}

func TestRequestsIntersection(t *testing.T) {
	list := sampleRequests()

	got := Requests(list, "laptop", StatusAll)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("expected requests 1 and 3, got %+v", got)
	}

	got = Requests(list, "laptop", "pending")
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected only request 1, got %+v", got)
	}

	got = Requests(list, "", "approved")
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("expected only request 2, got %+v", got)
	}

	got = Requests(list, "alice", "")
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected requestor match, got %+v", got)
	}
}

func TestRequestsDoesNotMutateOrReorder(t *testing.T) {
	list := sampleRequests()
	snapshot := make([]model.PurchaseRequest, len(list))
	copy(snapshot, list)

	got := Requests(list, "staff", StatusAll)
	if !reflect.DeepEqual(list, snapshot) {
		t.Fatalf("source list was mutated")
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("expected source order preserved, got %+v", got)
	}
}

func TestRequestsIdempotent(t *testing.T) {
	list := sampleRequests()
	once := Requests(list, "laptop", "pending")
	twice := Requests(once, "laptop", "pending")
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("filter is not idempotent: %+v vs %+v", once, twice)
	}
}

func TestOrdersSearchPONumber(t *testing.T) {
	list := []model.PurchaseOrder{
		{ID: "a", PONumber: "PO-0001", VendorName: "Acme", Status: model.POSent},
		{ID: "b", PONumber: "PO-0002", VendorName: "Globex", Status: model.POFulfilled},
	}

	got := Orders(list, "po-0002", StatusAll)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected PO number match, got %+v", got)
	}

	got = Orders(list, "", "sent")
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected status match, got %+v", got)
	}
}
