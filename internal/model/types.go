package model

import "fmt"

// Stage is the lifecycle stage reported by the site for an order.
type Stage int

const (
	StageLead      Stage = 0 // cart / lead
	StageNew       Stage = 1
	StageShipped   Stage = 2
	StageDelivered Stage = 3
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool { return s >= StageLead && s <= StageDelivered }

func (s Stage) String() string {
	switch s {
	case StageLead:
		return "lead"
	case StageNew:
		return "new"
	case StageShipped:
		return "shipped"
	case StageDelivered:
		return "delivered"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// PaymentStage is the site payment status of an order.
type PaymentStage int

const (
	PaymentUnpaid PaymentStage = 0
	PaymentPaid   PaymentStage = 1
)

// OrderEvent is one state transition of one order as delivered by the site webhook.
// The same ExternalOrderID may arrive several times with different stages.
type OrderEvent struct {
	ExternalOrderID    string       `json:"externalOrderId"`
	ExternalCustomerID string       `json:"externalCustomerId"`
	OrderStatus        Stage        `json:"orderStatus"`
	PaymentStatus      PaymentStage `json:"paymentStatus"`
	TotalCost          float64      `json:"totalCost"`
	Status             string       `json:"status,omitempty"`
	Date               int64        `json:"date"` // epoch ms
	Email              string       `json:"email"`
	Phone              string       `json:"phone"`
	FirstName          string       `json:"firstName"`
	LastName           string       `json:"lastName"`
	Currency           string       `json:"currency"`
	Shipping           *string      `json:"shipping"`
	Discount           float64      `json:"discount"`
	StatusDescription  string       `json:"statusDescription"`
	DeliveryMethod     string       `json:"deliveryMethod"`
	PaymentMethod      string       `json:"paymentMethod"`
	DeliveryAddress    string       `json:"deliveryAddress"`
	AdditionalInfo     string       `json:"additionalInfo"`
	Items              []Item       `json:"items"`
}

// Paid reports whether the site marked the order as paid.
func (o OrderEvent) Paid() bool { return o.PaymentStatus == PaymentPaid }

type Item struct {
	ExternalItemID int64   `json:"externalItemId"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Quantity       int     `json:"quantity"`
	Cost           float64 `json:"cost"`
	URL            string  `json:"url,omitempty"`
	ImageURL       string  `json:"imageUrl,omitempty"`
	Description    string  `json:"description,omitempty"`
}

// WebhookPayload is the body accepted by the intake endpoint.
type WebhookPayload struct {
	Orders []OrderEvent `json:"orders"`
}

// HistoryStatus is the coarse processing state kept by the history read-model.
type HistoryStatus string

const (
	HistoryPending    HistoryStatus = "pending"
	HistoryProcessing HistoryStatus = "processing"
	HistoryCompleted  HistoryStatus = "completed"
	HistoryFailed     HistoryStatus = "failed"
)

// HistoryEntry is one status change of an order.
type HistoryEntry struct {
	Status       HistoryStatus `json:"status"`
	Date         int64         `json:"date"` // epoch ms
	CRMResponse  any           `json:"crm_response,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RetryCount   int           `json:"retry_count,omitempty"`
}

// OrderMapping is the reporting view of an order: the last site payload,
// the last CRM response and the ordered status history.
type OrderMapping struct {
	RowID         string         `json:"_rowid"`
	SiteOrder     OrderEvent     `json:"site_order"`
	CRMOrder      any            `json:"crm_order,omitempty"`
	StatusHistory []HistoryEntry `json:"status_history"`
	CurrentStatus HistoryStatus  `json:"current_status"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
}

// HistoryStats summarises the history index.
type HistoryStats struct {
	Total        int                   `json:"total"`
	ByStatus     map[HistoryStatus]int `json:"byStatus"`
	OldestRecord *int64                `json:"oldestRecord"`
	NewestRecord *int64                `json:"newestRecord"`
}
