package event

import "fmt"

/* Type is the closed enumeration of domain events the engine delivers.
 * Types are hierarchical, full-stop delimited: "<category>.<name>"
 * Unknown types are rejected at ingestion, never at delivery time.
 */
type Type string

const (
	OrderCreated   Type = "order.created"
	OrderConfirmed Type = "order.confirmed"
	OrderShipped   Type = "order.shipped"
	OrderDelivered Type = "order.delivered"
	OrderCancelled Type = "order.cancelled"
	OrderDisputed  Type = "order.disputed"

	PaymentInitiated Type = "payment.initiated"
	PaymentCompleted Type = "payment.completed"
	PaymentFailed    Type = "payment.failed"
	PaymentRefunded  Type = "payment.refunded"

	ShippingBooked    Type = "shipping.booked"
	ShippingInTransit Type = "shipping.in_transit"
	ShippingDelivered Type = "shipping.delivered"
	ShippingDelayed   Type = "shipping.delayed"

	ProductCreated  Type = "product.created"
	ProductUpdated  Type = "product.updated"
	ProductDelisted Type = "product.delisted"

	UserRegistered Type = "user.registered"
	UserVerified   Type = "user.verified"
	UserSuspended  Type = "user.suspended"

	DocumentUploaded Type = "document.uploaded"
	DocumentVerified Type = "document.verified"
	DocumentRejected Type = "document.rejected"

	ComplianceScreeningStarted Type = "compliance.screening_started"
	ComplianceScreeningCleared Type = "compliance.screening_cleared"
	ComplianceScreeningFlagged Type = "compliance.screening_flagged"

	SystemTest Type = "system.test"
)

// all holds every known event type for validation and listing
var all = map[Type]struct{}{
	OrderCreated: {}, OrderConfirmed: {}, OrderShipped: {}, OrderDelivered: {},
	OrderCancelled: {}, OrderDisputed: {},
	PaymentInitiated: {}, PaymentCompleted: {}, PaymentFailed: {}, PaymentRefunded: {},
	ShippingBooked: {}, ShippingInTransit: {}, ShippingDelivered: {}, ShippingDelayed: {},
	ProductCreated: {}, ProductUpdated: {}, ProductDelisted: {},
	UserRegistered: {}, UserVerified: {}, UserSuspended: {},
	DocumentUploaded: {}, DocumentVerified: {}, DocumentRejected: {},
	ComplianceScreeningStarted: {}, ComplianceScreeningCleared: {}, ComplianceScreeningFlagged: {},
	SystemTest: {},
}

// String returns the wire representation of the event type
func (t Type) String() string {
	return string(t)
}

// Category returns the part before the first full stop, e.g. "order"
func (t Type) Category() string {
	for i := 0; i < len(t); i++ {
		if t[i] == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// Validate checks that the event type belongs to the closed enumeration
func (t Type) Validate() error {
	if _, ok := all[t]; !ok {
		return fmt.Errorf("unknown event type: %s", t)
	}
	return nil
}

// ParseType creates a Type from a string, rejecting unknown values
func ParseType(s string) (Type, error) {
	t := Type(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Types returns every known event type
func Types() []Type {
	out := make([]Type, 0, len(all))
	for t := range all {
		out = append(out, t)
	}
	return out
}
