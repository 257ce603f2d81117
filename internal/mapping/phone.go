package mapping

import "strings"

// FormatPhone normalises Ukrainian numbers to +380XXXXXXXXX. Anything it cannot
// recognise is returned unchanged.
func FormatPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' { b.WriteRune(r) }
	}
	d := b.String()
	switch {
	case strings.HasPrefix(d, "380") && len(d) == 12:
		return "+" + d
	case strings.HasPrefix(d, "0") && len(d) == 10:
		return "+38" + d
	case strings.HasPrefix(d, "80") && len(d) == 11:
		return "+3" + d
	}
	return phone
}
