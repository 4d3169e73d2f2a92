// Package filter implements the list filtering every dashboard applies: a
// case-insensitive substring search intersected with an exact status match.
// Filters are pure: they never mutate or reorder their input.
package filter

import (
	"strings"

	"github.com/gasanashema/procure-to-pay/internal/model"
)

// StatusAll disables status filtering.
const StatusAll = "all"

func Requests(list []model.PurchaseRequest, query, status string) []model.PurchaseRequest {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]model.PurchaseRequest, 0, len(list))
	for _, req := range list {
		if !statusMatch(string(req.Status), status) {
			continue
		}
		if !textMatch(query, req.Title, req.Description, req.CreatedByName) {
			continue
		}
		out = append(out, req)
	}
	return out
}

func Orders(list []model.PurchaseOrder, query, status string) []model.PurchaseOrder {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]model.PurchaseOrder, 0, len(list))
	for _, po := range list {
		if !statusMatch(string(po.Status), status) {
			continue
		}
		if !textMatch(query, po.PONumber, po.VendorName) {
			continue
		}
		out = append(out, po)
	}
	return out
}

func statusMatch(actual, wanted string) bool {
	wanted = strings.ToLower(strings.TrimSpace(wanted))
	if wanted == "" || wanted == StatusAll {
		return true
	}
	return actual == wanted
}

func textMatch(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
