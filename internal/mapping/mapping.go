// Package mapping converts site order events into CRM request payloads.
package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"crmsync/internal/crm"
	"crmsync/internal/model"
)

// Custom field ids configured in the CRM account.
const (
	OrderDiscountField = "OR_1001"
	LeadDiscountField  = "LD_1002"
	categoryProperty   = "Категорія"
	defaultCurrency    = "UAH"
	defaultCountry     = "Ukraine"
)

// Options carries the CRM identifiers that are fixed per deployment.
type Options struct {
	SourceID   int64
	PipelineID int64
	// Location is used for human readable dates in lead comments. Defaults to UTC.
	Location *time.Location
}

func (o Options) loc() *time.Location {
	if o.Location == nil { return time.UTC }
	return o.Location
}

// OrderRequest builds the CRM order for a stage 1 event.
// Paid orders carry no payment line here; their payment is created separately.
func OrderRequest(o model.OrderEvent, opts Options) crm.OrderRequest {
	req := crm.OrderRequest{
		SourceID:     opts.SourceID,
		SourceUUID:   o.ExternalOrderID,
		BuyerComment: o.AdditionalInfo,
		OrderedAt:    time.UnixMilli(o.Date).UTC().Format(time.DateTime),
		Buyer: crm.Buyer{
			FullName: fullName(o),
			Email:    o.Email,
			Phone:    FormatPhone(o.Phone),
		},
		Products:  products(o),
		Marketing: &crm.Marketing{UTMSource: "website", UTMMedium: "direct"},
	}
	if sh := ParseShippingAddress(o.DeliveryAddress, o.DeliveryMethod); sh != nil {
		req.Shipping = &crm.Shipping{
			ShippingService:        sh.Service,
			ShippingAddressCity:    sh.City,
			ShippingAddressCountry: defaultCountry,
			ShippingAddressRegion:  sh.Region,
			ShippingAddressZip:     sh.Zip,
			ShippingReceivePoint:   sh.ReceivePoint,
			ShippingSecondaryLine:  sh.SecondaryLine,
		}
	}
	if !o.Paid() {
		req.Payments = []crm.OrderPayment{{
			PaymentMethod: o.PaymentMethod,
			Amount:        o.TotalCost,
			Status:        "not_paid",
			Description:   "Замовлення #" + o.ExternalOrderID,
		}}
	}
	if o.Discount > 0 {
		req.DiscountAmount = o.Discount
		req.CustomFields = []crm.CustomField{{UUID: OrderDiscountField, Value: o.Discount}}
	}
	return req
}

// PaymentRequest builds the payment for a paid order. Methods missing from the
// table are sent as free text.
func PaymentRequest(o model.OrderEvent, methods PaymentMethods) crm.PaymentRequest {
	req := crm.PaymentRequest{
		Amount:      o.TotalCost,
		Status:      "paid",
		Description: "Оплата замовлення #" + o.ExternalOrderID,
	}
	if id, ok := methods.Lookup(o.PaymentMethod); ok {
		req.PaymentMethodID = id
	} else {
		req.PaymentMethod = o.PaymentMethod
	}
	return req
}

// PipelineCardRequest builds the lead card for a stage 0 event.
func PipelineCardRequest(o model.OrderEvent, opts Options) crm.PipelineCardRequest {
	req := crm.PipelineCardRequest{
		Title:          "Замовлення #" + o.ExternalOrderID,
		PipelineID:     opts.PipelineID,
		SourceID:       opts.SourceID,
		CommunicateAt:  time.UnixMilli(o.Date).UTC().Format(time.RFC3339),
		ManagerComment: ManagerComment(o, opts),
		Contact: crm.Contact{
			FullName: fullName(o),
			Email:    o.Email,
			Phone:    formatPhoneOrEmpty(o.Phone),
		},
		Products: products(o),
	}
	if o.Discount > 0 {
		req.CustomFields = []crm.CustomField{{UUID: LeadDiscountField, Value: o.Discount}}
	}
	return req
}

// ManagerComment renders the multi-line order summary attached to lead cards.
func ManagerComment(o model.OrderEvent, opts Options) string {
	cur := o.Currency
	if cur == "" { cur = defaultCurrency }
	paid := "Не оплачено"
	if o.Paid() { paid = "Оплачено" }
	lines := []string{
		"ЗАМОВЛЕННЯ #" + o.ExternalOrderID,
		fmt.Sprintf("Клієнт: %s %s", o.FirstName, o.LastName),
		"Телефон: " + FormatPhone(o.Phone),
		"Email: " + o.Email,
		fmt.Sprintf("Сума: %s %s", formatAmount(o.TotalCost), cur),
		"Доставка: " + orUnknown(o.DeliveryMethod),
		"Оплата: " + orUnknown(o.PaymentMethod),
		fmt.Sprintf("Товари (%d шт.):", len(o.Items)),
	}
	for i, it := range o.Items {
		lines = append(lines, fmt.Sprintf("%d. %s (%d шт. × %s %s)", i+1, it.Name, it.Quantity, formatAmount(it.Cost), cur))
	}
	lines = append(lines, "Адреса доставки: "+orUnknown(o.DeliveryAddress))
	if o.AdditionalInfo != "" {
		lines = append(lines, "Коментар: "+o.AdditionalInfo)
	}
	status := o.StatusDescription
	if status == "" { status = "Невідомо" }
	lines = append(lines,
		"Час замовлення: "+time.UnixMilli(o.Date).In(opts.loc()).Format("02.01.2006, 15:04:05"),
		"ID клієнта: "+o.ExternalCustomerID,
		"Статус оплати: "+paid,
		fmt.Sprintf("Статус замовлення: %s (%d)", status, int(o.OrderStatus)),
	)
	return strings.Join(lines, "\n")
}

func products(o model.OrderEvent) []crm.Product {
	out := make([]crm.Product, 0, len(o.Items))
	for _, it := range o.Items {
		p := crm.Product{
			SKU:      strconv.FormatInt(it.ExternalItemID, 10),
			Name:     it.Name,
			Price:    it.Cost,
			Quantity: it.Quantity,
			Picture:  it.ImageURL,
			Comment:  it.Description,
		}
		if it.Category != "" {
			p.Properties = []crm.Property{{Name: categoryProperty, Value: it.Category}}
		}
		out = append(out, p)
	}
	return out
}

func fullName(o model.OrderEvent) string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

func formatPhoneOrEmpty(p string) string {
	if p == "" { return "" }
	return FormatPhone(p)
}

func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func orUnknown(s string) string {
	if s == "" { return "Не вказано" }
	return s
}
