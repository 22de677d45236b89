package card

import "strings"

// TokenPart is a related token derived from a record's relation list.
type TokenPart struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	TypeLine string `json:"type_line,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// DeriveTokens returns the tokens a record creates. Tokens never derive tokens
// of their own, and entries sharing the record's name are skipped.
func DeriveTokens(r Record) []TokenPart {
	if r.IsToken() || len(r.AllParts) == 0 {
		return []TokenPart{}
	}

	self := NormalizeName(r.Name)
	seen := make(map[string]struct{}, len(r.AllParts))
	tokens := make([]TokenPart, 0, len(r.AllParts))
	for _, part := range r.AllParts {
		if !isTokenPart(part) {
			continue
		}
		name := NormalizeName(part.Name)
		if name == "" || name == self {
			continue
		}
		key := "name:" + name
		if part.ID != "" {
			key = "id:" + part.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tokens = append(tokens, TokenPart{
			ID:       part.ID,
			Name:     part.Name,
			TypeLine: part.TypeLine,
			URI:      part.URI,
		})
	}
	return tokens
}

func isTokenPart(part RelatedPart) bool {
	if strings.EqualFold(part.Component, "token") {
		return true
	}
	return strings.Contains(strings.ToLower(part.TypeLine), "token")
}
