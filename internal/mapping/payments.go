package mapping

import "strings"

// PaymentMethods maps site payment method labels to CRM payment method ids.
// Lookups ignore case and surrounding space.
type PaymentMethods map[string]int64

// DefaultPaymentMethods is the table shipped with the service; deployments
// override it with crm.paymentMethods in the config file (see -payment-methods
// for the ids configured in the CRM account).
func DefaultPaymentMethods() PaymentMethods {
	return PaymentMethods{
		"Накладений платіж": 1,
		"Готівка":           2,
		"Оплата карткою":    3,
		"LiqPay":            4,
		"Monobank":          5,
	}
}

func (m PaymentMethods) Lookup(name string) (int64, bool) {
	key := strings.TrimSpace(name)
	if key == "" { return 0, false }
	if id, ok := m[key]; ok { return id, true }
	for k, id := range m {
		if strings.EqualFold(k, key) { return id, true }
	}
	return 0, false
}
