package testsupport

import (
	"strings"

	"cardcat/internal/card"
)

// CardOption adjusts a fixture record.
type CardOption func(*card.Record)

// Card builds an enriched English fixture record with a small image map.
func Card(id, name, set, number string, opts ...CardOption) card.Record {
	rec := card.Record{
		ID:              id,
		OracleID:        "oracle-" + strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		Name:            name,
		Set:             set,
		CollectorNumber: number,
		Lang:            card.DefaultLang,
		TypeLine:        "Instant",
		Rarity:          "common",
		Layout:          "normal",
		ReleasedAt:      "2020-01-01",
		ImageURIs:       map[string]string{"normal": "https://img.example/" + id + ".jpg"},
		AllParts:        []card.RelatedPart{},
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return rec
}

// Faces turns the fixture into a multi-face card named "A // B".
func Faces(names ...string) CardOption {
	return func(r *card.Record) {
		r.Faces = make([]card.Face, 0, len(names))
		for _, name := range names {
			r.Faces = append(r.Faces, card.Face{
				Name:      name,
				ImageURIs: map[string]string{"normal": "https://img.example/" + r.ID + "/" + strings.ToLower(strings.ReplaceAll(name, " ", "-")) + ".jpg"},
			})
		}
		r.Name = strings.Join(names, " // ")
		r.Layout = "modal_dfc"
		r.ImageURIs = nil
	}
}

// Layout sets the layout.
func Layout(layout string) CardOption {
	return func(r *card.Record) { r.Layout = layout }
}

// Lang sets the printing language.
func Lang(lang string) CardOption {
	return func(r *card.Record) { r.Lang = lang }
}

// Released sets the release date (YYYY-MM-DD).
func Released(date string) CardOption {
	return func(r *card.Record) { r.ReleasedAt = date }
}

// TypeLine sets the type line.
func TypeLine(line string) CardOption {
	return func(r *card.Record) { r.TypeLine = line }
}

// Parts sets the relation list.
func Parts(parts ...card.RelatedPart) CardOption {
	return func(r *card.Record) { r.AllParts = append([]card.RelatedPart{}, parts...) }
}

// NeverEnriched clears the relation list to nil.
func NeverEnriched() CardOption {
	return func(r *card.Record) { r.AllParts = nil }
}
