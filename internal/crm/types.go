package crm

type Buyer struct {
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type Contact struct {
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	ClientID int64  `json:"client_id,omitempty"`
}

type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Product struct {
	SKU        string     `json:"sku,omitempty"`
	Name       string     `json:"name,omitempty"`
	Price      float64    `json:"price"`
	Quantity   int        `json:"quantity"`
	Picture    string     `json:"picture,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	Properties []Property `json:"properties,omitempty"`
}

type Shipping struct {
	ShippingService        string `json:"shipping_service,omitempty"`
	ShippingAddressCity    string `json:"shipping_address_city,omitempty"`
	ShippingAddressCountry string `json:"shipping_address_country,omitempty"`
	ShippingAddressRegion  string `json:"shipping_address_region,omitempty"`
	ShippingAddressZip     string `json:"shipping_address_zip,omitempty"`
	ShippingReceivePoint   string `json:"shipping_receive_point,omitempty"`
	ShippingSecondaryLine  string `json:"shipping_secondary_line,omitempty"`
}

type Marketing struct {
	UTMSource string `json:"utm_source,omitempty"`
	UTMMedium string `json:"utm_medium,omitempty"`
}

// CustomField is the one open-ended part of the CRM schema: values are strings or numbers.
type CustomField struct {
	UUID  string `json:"uuid"`
	Value any    `json:"value"`
}

type OrderPayment struct {
	PaymentMethodID int64   `json:"payment_method_id,omitempty"`
	PaymentMethod   string  `json:"payment_method,omitempty"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status,omitempty"`
	Description     string  `json:"description,omitempty"`
}

// OrderRequest is the body of POST /order.
type OrderRequest struct {
	SourceID       int64          `json:"source_id"`
	SourceUUID     string         `json:"source_uuid,omitempty"`
	BuyerComment   string         `json:"buyer_comment,omitempty"`
	OrderedAt      string         `json:"ordered_at,omitempty"`
	Buyer          Buyer          `json:"buyer"`
	Products       []Product      `json:"products,omitempty"`
	Shipping       *Shipping      `json:"shipping,omitempty"`
	Payments       []OrderPayment `json:"payments,omitempty"`
	DiscountAmount float64        `json:"discount_amount,omitempty"`
	Marketing      *Marketing     `json:"marketing,omitempty"`
	CustomFields   []CustomField  `json:"custom_fields,omitempty"`
}

// Order is the subset of the CRM order resource this service consumes.
type Order struct {
	ID            int64   `json:"id"`
	SourceUUID    string  `json:"source_uuid,omitempty"`
	SourceID      int64   `json:"source_id,omitempty"`
	StatusID      int64   `json:"status_id,omitempty"`
	GrandTotal    float64 `json:"grand_total,omitempty"`
	PaymentStatus string  `json:"payment_status,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// OrderUpdate is the body of PUT /order/{id}.
type OrderUpdate struct {
	StatusID       int64  `json:"status_id,omitempty"`
	ManagerComment string `json:"manager_comment,omitempty"`
}

// PaymentRequest is the body of POST /order/{id}/payment.
type PaymentRequest struct {
	PaymentMethodID int64   `json:"payment_method_id,omitempty"`
	PaymentMethod   string  `json:"payment_method,omitempty"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status,omitempty"`
	Description     string  `json:"description,omitempty"`
}

type Payment struct {
	ID              int64   `json:"id,omitempty"`
	PaymentMethodID int64   `json:"payment_method_id"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status,omitempty"`
	Description     string  `json:"description,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// PipelineCardRequest is the body of POST /pipelines/cards.
type PipelineCardRequest struct {
	Title          string        `json:"title,omitempty"`
	SourceID       int64         `json:"source_id,omitempty"`
	PipelineID     int64         `json:"pipeline_id,omitempty"`
	ManagerComment string        `json:"manager_comment,omitempty"`
	CommunicateAt  string        `json:"communicate_at,omitempty"`
	Contact        Contact       `json:"contact"`
	Products       []Product     `json:"products,omitempty"`
	CustomFields   []CustomField `json:"custom_fields,omitempty"`
}

type PipelineCard struct {
	ID             int64  `json:"id"`
	ContactID      int64  `json:"contact_id,omitempty"`
	SourceID       int64  `json:"source_id,omitempty"`
	StatusID       int64  `json:"status_id,omitempty"`
	Title          string `json:"title,omitempty"`
	ManagerComment string `json:"manager_comment,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type PaymentMethod struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Alias    string `json:"alias"`
	IsActive bool   `json:"is_active"`
}

type PaymentMethodList struct {
	Total       int             `json:"total"`
	CurrentPage int             `json:"current_page"`
	PerPage     int             `json:"per_page"`
	Data        []PaymentMethod `json:"data"`
}

// CRMID exposes the CRM-assigned id of a response.
func (o Order) CRMID() int64        { return o.ID }
func (c PipelineCard) CRMID() int64 { return c.ID }
func (p Payment) CRMID() int64      { return p.ID }
