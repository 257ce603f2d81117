package mapping

import (
	"fmt"
	"strings"

	"crmsync/internal/model"
)

// ValidationError lists every problem found in an order event.
type ValidationError struct {
	OrderID  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order %q invalid: %s", e.OrderID, strings.Join(e.Problems, "; "))
}

// Validate checks what the CRM needs for the order's stage. Shipped and delivered
// events only update an existing CRM order, so they need nothing but the id.
func Validate(o model.OrderEvent) error {
	var p []string
	if strings.TrimSpace(o.ExternalOrderID) == "" {
		p = append(p, "externalOrderId is required")
	}
	if !o.OrderStatus.Valid() {
		p = append(p, fmt.Sprintf("unknown orderStatus %d", int(o.OrderStatus)))
	}
	if o.OrderStatus == model.StageLead || o.OrderStatus == model.StageNew {
		if o.Email == "" && o.Phone == "" {
			p = append(p, "email or phone is required")
		}
		if len(o.Items) == 0 {
			p = append(p, "at least one item is required")
		}
		if o.TotalCost <= 0 {
			p = append(p, "totalCost must be positive")
		}
		for i, it := range o.Items {
			if it.Name == "" { p = append(p, fmt.Sprintf("item #%d: name is required", i+1)) }
			if it.Cost <= 0 { p = append(p, fmt.Sprintf("item #%d: cost must be positive", i+1)) }
			if it.Quantity <= 0 { p = append(p, fmt.Sprintf("item #%d: quantity must be positive", i+1)) }
		}
	}
	if len(p) > 0 {
		return &ValidationError{OrderID: o.ExternalOrderID, Problems: p}
	}
	return nil
}

// OrderTotal sums cost × quantity over the items.
func OrderTotal(o model.OrderEvent) float64 {
	var t float64
	for _, it := range o.Items { t += it.Cost * float64(it.Quantity) }
	return t
}
