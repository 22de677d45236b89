package card

import (
	"strings"
	"time"
)

// Layouts with special handling.
const (
	LayoutArtSeries        = "art_series"
	LayoutToken            = "token"
	LayoutDoubleFacedToken = "double_faced_token"
)

// Face is one face of a multi-face card.
type Face struct {
	Name      string            `json:"name" validate:"required"`
	ManaCost  string            `json:"mana_cost,omitempty"`
	TypeLine  string            `json:"type_line,omitempty"`
	Colors    []string          `json:"colors,omitempty"`
	ImageURIs map[string]string `json:"image_uris,omitempty"`
}

// RelatedPart is one entry in a record's relation list.
type RelatedPart struct {
	ID        string `json:"id,omitempty"`
	Component string `json:"component,omitempty"`
	Name      string `json:"name" validate:"required"`
	TypeLine  string `json:"type_line,omitempty"`
	URI       string `json:"uri,omitempty"`
}

// Record is the canonical metadata for one printing.
type Record struct {
	ID              string            `json:"id"`
	OracleID        string            `json:"oracle_id,omitempty"`
	Name            string            `json:"name"`
	Set             string            `json:"set"`
	CollectorNumber string            `json:"collector_number"`
	Lang            string            `json:"lang"`
	Colors          []string          `json:"colors,omitempty"`
	ManaCost        string            `json:"mana_cost,omitempty"`
	CMC             float64           `json:"cmc"`
	TypeLine        string            `json:"type_line,omitempty"`
	Rarity          string            `json:"rarity,omitempty"`
	Layout          string            `json:"layout,omitempty"`
	ImageURIs       map[string]string `json:"image_uris,omitempty"`
	Faces           []Face            `json:"card_faces,omitempty"`
	AllParts        []RelatedPart     `json:"all_parts"`
	ReleasedAt      string            `json:"released_at,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at,omitzero"`
}

// HasRelations reports whether the relation list has been populated, even if empty.
func (r Record) HasRelations() bool {
	return r.AllParts != nil
}

// IsMultiFace reports whether the record carries more than one face.
func (r Record) IsMultiFace() bool {
	return len(r.Faces) > 1
}

// IsToken reports whether the record itself is a token card.
func (r Record) IsToken() bool {
	if r.Layout == LayoutToken || r.Layout == LayoutDoubleFacedToken {
		return true
	}
	return strings.Contains(strings.ToLower(r.TypeLine), "token")
}

// FaceNames returns the names of each face, or nil for single-faced records.
// Combined "Front // Back" names without face data are split.
func (r Record) FaceNames() []string {
	if len(r.Faces) > 0 {
		names := make([]string, 0, len(r.Faces))
		for _, face := range r.Faces {
			if face.Name != "" {
				names = append(names, face.Name)
			}
		}
		return names
	}
	if !strings.Contains(r.Name, " // ") {
		return nil
	}
	parts := strings.Split(r.Name, " // ")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// FrontFaceName returns the first face name, or the full name for single-faced records.
func (r Record) FrontFaceName() string {
	if names := r.FaceNames(); len(names) > 0 {
		return names[0]
	}
	return r.Name
}

// PrintingKey returns the "set:number" cache key for the record.
func (r Record) PrintingKey() string {
	return PrintingKey(r.Set, r.CollectorNumber)
}

// WithEnrichedRelations returns a copy whose nil relation list is replaced by an empty one.
// Catalog payloads that omit all_parts describe cards with no relations.
func (r Record) WithEnrichedRelations() Record {
	if r.AllParts == nil {
		r.AllParts = []RelatedPart{}
	}
	return r
}
