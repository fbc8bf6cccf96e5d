package event

import (
	"encoding/json"
	"fmt"
)

/* Per-category payload shapes. One shape per category, total match:
 * every event type maps to exactly one shape, and a payload that does
 * not satisfy its shape is a producer contract violation rejected at
 * ingestion, never a retryable delivery failure.
 */

// OrderPayload is the data shape for order.* events
type OrderPayload struct {
	OrderID       string  `json:"order_id"`
	Status        string  `json:"status"`
	TotalValue    float64 `json:"total_value"`
	Currency      string  `json:"currency"`
	BuyerCountry  string  `json:"buyer_country,omitempty"`
	SellerCountry string  `json:"seller_country,omitempty"`
}

func (p OrderPayload) validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if p.Status == "" {
		return fmt.Errorf("status is required")
	}
	if p.TotalValue < 0 {
		return fmt.Errorf("total_value cannot be negative")
	}
	return nil
}

// PaymentPayload is the data shape for payment.* events
type PaymentPayload struct {
	PaymentID   string  `json:"payment_id"`
	OrderID     string  `json:"order_id"`
	PaymentType string  `json:"payment_type"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
}

func (p PaymentPayload) validate() error {
	if p.PaymentID == "" {
		return fmt.Errorf("payment_id is required")
	}
	if p.PaymentType == "" {
		return fmt.Errorf("payment_type is required")
	}
	if p.Amount < 0 {
		return fmt.Errorf("amount cannot be negative")
	}
	return nil
}

// ShippingPayload is the data shape for shipping.* events
type ShippingPayload struct {
	ShipmentID         string `json:"shipment_id"`
	OrderID            string `json:"order_id"`
	Carrier            string `json:"carrier,omitempty"`
	TrackingNumber     string `json:"tracking_number,omitempty"`
	Status             string `json:"status"`
	DestinationCountry string `json:"destination_country,omitempty"`
}

func (p ShippingPayload) validate() error {
	if p.ShipmentID == "" {
		return fmt.Errorf("shipment_id is required")
	}
	if p.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	return nil
}

// ProductPayload is the data shape for product.* events
type ProductPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	Price     float64 `json:"price,omitempty"`
	SellerID  string  `json:"seller_id,omitempty"`
}

func (p ProductPayload) validate() error {
	if p.ProductID == "" {
		return fmt.Errorf("product_id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// UserPayload is the data shape for user.* events
type UserPayload struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
	Country string `json:"country,omitempty"`
	Role    string `json:"role,omitempty"`
}

func (p UserPayload) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// DocumentPayload is the data shape for document.* events
type DocumentPayload struct {
	DocumentID   string `json:"document_id"`
	OwnerID      string `json:"owner_id"`
	DocumentType string `json:"document_type,omitempty"`
	Status       string `json:"status,omitempty"`
}

func (p DocumentPayload) validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if p.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	return nil
}

// CompliancePayload is the data shape for compliance.* events
type CompliancePayload struct {
	ScreeningID string `json:"screening_id"`
	SubjectID   string `json:"subject_id"`
	SubjectType string `json:"subject_type,omitempty"`
	Result      string `json:"result,omitempty"`
	Country     string `json:"country,omitempty"`
}

func (p CompliancePayload) validate() error {
	if p.ScreeningID == "" {
		return fmt.Errorf("screening_id is required")
	}
	if p.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}
	return nil
}

// SystemPayload is the data shape for system.* events
type SystemPayload struct {
	Message     string `json:"message"`
	TriggeredBy string `json:"triggered_by,omitempty"`
}

func (p SystemPayload) validate() error {
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// ValidatePayload checks that data satisfies the shape required by the
// event type's category
func ValidatePayload(t Type, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("data is required")
	}
	if !json.Valid(data) {
		return fmt.Errorf("data must be valid JSON")
	}

	switch t.Category() {
	case "order":
		var p OrderPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling order payload: %w", err)
		}
		return p.validate()
	case "payment":
		var p PaymentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling payment payload: %w", err)
		}
		return p.validate()
	case "shipping":
		var p ShippingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling shipping payload: %w", err)
		}
		return p.validate()
	case "product":
		var p ProductPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling product payload: %w", err)
		}
		return p.validate()
	case "user":
		var p UserPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling user payload: %w", err)
		}
		return p.validate()
	case "document":
		var p DocumentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling document payload: %w", err)
		}
		return p.validate()
	case "compliance":
		var p CompliancePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling compliance payload: %w", err)
		}
		return p.validate()
	case "system":
		var p SystemPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling system payload: %w", err)
		}
		return p.validate()
	default:
		return fmt.Errorf("unknown event category: %s", t.Category())
	}
}

/* FilterFields is the projection of a payload used by subscription
 * filters. Absent fields are zero-valued and impose no constraint.
 */
type FilterFields struct {
	OrderStatus     string
	PaymentType     string
	OrderValue      *float64
	Countries       []string
	ProductCategory string
}

// ExtractFilterFields projects the filterable fields out of a payload.
// The payload must already have passed ValidatePayload.
func ExtractFilterFields(t Type, data []byte) FilterFields {
	var ff FilterFields

	switch t.Category() {
	case "order":
		var p OrderPayload
		if json.Unmarshal(data, &p) != nil {
			return ff
		}
		ff.OrderStatus = p.Status
		v := p.TotalValue
		ff.OrderValue = &v
		ff.Countries = appendNonEmpty(nil, p.BuyerCountry, p.SellerCountry)
	case "payment":
		var p PaymentPayload
		if json.Unmarshal(data, &p) != nil {
			return ff
		}
		ff.PaymentType = p.PaymentType
		v := p.Amount
		ff.OrderValue = &v
	case "shipping":
		var p ShippingPayload
		if json.Unmarshal(data, &p) != nil {
			return ff
		}
		ff.Countries = appendNonEmpty(nil, p.DestinationCountry)
	case "product":
		var p ProductPayload
		if json.Unmarshal(data, &p) != nil {
			return ff
		}
		ff.ProductCategory = p.Category
	case "user":
		var p UserPayload
		if json.Unmarshal(data, &p) != nil {
			return ff
		}
		ff.Countries = appendNonEmpty(nil, p.Country)
	case "compliance":
		var p CompliancePayload
		if json.Unmarshal(data, &p) != nil {
			return ff
		}
		ff.Countries = appendNonEmpty(nil, p.Country)
	}

	return ff
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}
