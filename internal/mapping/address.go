package mapping

import (
	"regexp"
	"strings"
)

// ShippingAddress is the structured form of a free-text delivery address.
type ShippingAddress struct {
	Service       string
	City          string
	Region        string
	Zip           string
	ReceivePoint  string
	SecondaryLine string
}

var (
	regionRe       = regexp.MustCompile(`\(([^)]+)\)`)
	regionStripRe  = regexp.MustCompile(`\s*\(.*?\)\s*`)
	zipRe          = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	receivePointRe = regexp.MustCompile(`(?i)відділення|трц|магазин|store|mall`)
)

// ParseShippingAddress splits "City (Region), part, part, ..." into its components.
// It returns nil for an empty address.
func ParseShippingAddress(address, method string) *ShippingAddress {
	if strings.TrimSpace(address) == "" { return nil }
	out := &ShippingAddress{Service: normaliseService(method)}

	var parts []string
	for _, p := range strings.Split(address, ",") {
		if p = strings.TrimSpace(p); p != "" { parts = append(parts, p) }
	}
	if len(parts) == 0 { return out }

	if m := regionRe.FindStringSubmatch(parts[0]); m != nil {
		out.Region = m[1]
	}
	out.City = strings.TrimSpace(regionStripRe.ReplaceAllString(parts[0], ""))

	var secondary, points []string
	for _, p := range parts[1:] {
		switch {
		case zipRe.MatchString(p):
			out.Zip = p
		case strings.EqualFold(p, out.City):
			// repeated city
		case receivePointRe.MatchString(p):
			points = append(points, p)
		default:
			secondary = append(secondary, p)
		}
	}
	out.ReceivePoint = strings.Join(points, ", ")
	out.SecondaryLine = strings.TrimSpace(strings.Join(secondary, ", "))
	return out
}

func normaliseService(method string) string {
	l := strings.ToLower(method)
	switch {
	case strings.Contains(l, "нова пошта"):
		return "Нова Пошта"
	case strings.Contains(l, "укрпошта"):
		return "Укрпошта"
	}
	return method
}
