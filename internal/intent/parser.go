package intent

import (
	"strconv"
	"strings"
)

// Parse decodes the line-oriented analysis reply. Unknown or malformed
// fields fall back to safe defaults; an unknown intent maps to "other".
func Parse(raw string) Descriptor {
	desc := Fallback()

	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "intent":
			desc.Type = parseType(value)
		case "categories":
			desc.Categories = parseList(value)
		case "brands":
			desc.Brands = parseList(value)
		case "budget":
			desc.Budget = parseBudget(value)
		case "products":
			desc.ProductIDs = parseList(value)
		}
	}
	return desc
}

func parseType(value string) Type {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.Trim(normalized, "[]")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")

	switch Type(normalized) {
	case TypeBrowse, TypeRecommend, TypeCompare, TypeQuestion, TypeObjection, TypePurchase:
		return Type(normalized)
	}
	// Tolerate the long-form labels some models produce.
	switch normalized {
	case "browsing":
		return TypeBrowse
	case "requesting-recommendation", "recommendation":
		return TypeRecommend
	case "comparing-products", "comparison":
		return TypeCompare
	case "asking-question":
		return TypeQuestion
	case "ready-to-buy", "purchase":
		return TypePurchase
	}
	return TypeOther
}

func parseList(value string) []string {
	if value == "" || strings.EqualFold(value, "none") {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && !strings.EqualFold(p, "none") {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseBudget(value string) *float64 {
	if value == "" || strings.EqualFold(value, "not mentioned") {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "", "€", "", "£", "").Replace(value)
	cleaned = strings.TrimSpace(cleaned)
	// Keep the leading number when the model appends units ("600 dollars").
	if i := strings.IndexByte(cleaned, ' '); i > 0 {
		cleaned = cleaned[:i]
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || f <= 0 {
		return nil
	}
	return &f
}
