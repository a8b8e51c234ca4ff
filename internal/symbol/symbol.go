package symbol

import (
	"regexp"
	"strings"
)

// numericCode matches bare Taiwanese stock codes, 4 to 6 digits.
var numericCode = regexp.MustCompile(`^\d{4,6}$`)

// Normalize canonicalizes a raw user-typed ticker into the internal symbol form.
// Bare 4-6 digit codes default to the primary exchange (.TW). Secondary-exchange
// symbols are kept as .TWO internally; .OOTC is accepted and preserved.
// Anything else is assumed to be an international symbol and returned uppercased.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if numericCode.MatchString(s) {
		return s + ".TW"
	}
	return s
}

// QuerySymbol maps an internal symbol to the form the upstream quote API
// expects. The secondary exchange is queried as .OOTC, never .TWO.
func QuerySymbol(internal string) string {
	if strings.HasSuffix(internal, ".TWO") {
		return strings.TrimSuffix(internal, ".TWO") + ".OOTC"
	}
	return internal
}

// IsTaiwan reports whether the symbol belongs to one of the two known
// Taiwanese exchanges.
func IsTaiwan(sym string) bool {
	return strings.HasSuffix(sym, ".TW") || strings.HasSuffix(sym, ".TWO") || strings.HasSuffix(sym, ".OOTC")
}

// Code returns the bare exchange code, i.e. the part before the first dot.
func Code(sym string) string {
	if i := strings.IndexByte(sym, '.'); i >= 0 {
		return sym[:i]
	}
	return sym
}

// IsCode reports whether s is a bare 4-6 digit exchange code.
func IsCode(s string) bool {
	return numericCode.MatchString(s)
}

// NameKey returns the key under which a symbol's display name is cached.
// .OOTC is a query-side alias for the secondary exchange, whose names are
// cached under .TWO.
func NameKey(sym string) string {
	if strings.HasSuffix(sym, ".OOTC") {
		return strings.TrimSuffix(sym, ".OOTC") + ".TWO"
	}
	return sym
}
