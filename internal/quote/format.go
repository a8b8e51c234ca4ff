package quote

import (
	"fmt"
	"strings"
)

// FormatVolume renders a share volume with K/M/B suffixes; zero volume reads
// as unavailable.
func FormatVolume(volume int64) string {
	switch {
	case volume == 0:
		return "N/A"
	case volume >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(volume)/1_000_000_000)
	case volume >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(volume)/1_000_000)
	case volume >= 1_000:
		return fmt.Sprintf("%.2fK", float64(volume)/1_000)
	default:
		return fmt.Sprintf("%d", volume)
	}
}

// CurrencySymbol maps an ISO currency code to a display prefix.
func CurrencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "USD":
		return "$"
	case "TWD":
		return "NT$"
	case "":
		return ""
	default:
		return code + " "
	}
}
