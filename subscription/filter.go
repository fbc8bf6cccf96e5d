package subscription

import "github.com/vasa-trade/webhook-engine/event"

/* Filters narrow which events of the subscribed types are delivered.
 * Semantics: a conjunction of optional predicates. Every present field
 * must match; absent fields impose no constraint. A nil Filters object
 * matches every event of the subscribed types.
 */
type Filters struct {
	OrderStatuses     []string `json:"order_statuses,omitempty"`
	PaymentTypes      []string `json:"payment_types,omitempty"`
	MinOrderValue     *float64 `json:"min_order_value,omitempty"`
	Countries         []string `json:"countries,omitempty"`
	ProductCategories []string `json:"product_categories,omitempty"`
}

// Matches evaluates the conjunction against the event's filterable fields
func (f *Filters) Matches(ff event.FilterFields) bool {
	if f == nil {
		return true
	}
	if len(f.OrderStatuses) > 0 && !contains(f.OrderStatuses, ff.OrderStatus) {
		return false
	}
	if len(f.PaymentTypes) > 0 && !contains(f.PaymentTypes, ff.PaymentType) {
		return false
	}
	if f.MinOrderValue != nil {
		if ff.OrderValue == nil || *ff.OrderValue < *f.MinOrderValue {
			return false
		}
	}
	if len(f.Countries) > 0 && !containsAny(f.Countries, ff.Countries) {
		return false
	}
	if len(f.ProductCategories) > 0 && !contains(f.ProductCategories, ff.ProductCategory) {
		return false
	}
	return true
}

func contains(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}

func containsAny(set []string, values []string) bool {
	for _, v := range values {
		if contains(set, v) {
			return true
		}
	}
	return false
}
