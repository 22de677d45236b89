package card_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"cardcat/internal/card"
)

func TestQueryNormalizeAndKey(t *testing.T) {
	tests := []struct {
		name  string
		query card.Query
		key   string
	}{
		{"name only", card.Query{Name: "  Sol   Ring "}, "sol ring:en"},
		{"language kept", card.Query{Name: "Sol Ring", Lang: "JA"}, "sol ring:ja"},
		{"set and number", card.Query{Name: "Sol Ring", Set: "C21", Number: "263"}, "c21:263:en"},
		{"set only", card.Query{Name: "Sol Ring", Set: "c21"}, "c21:sol ring:en"},
		{"language word mapped", card.Query{Name: "Sol Ring", Lang: "Japanese"}, "sol ring:ja"},
		{"chinese script", card.Query{Name: "Sol Ring", Lang: "zh"}, "sol ring:zhs"},
		{"diacritics folded", card.Query{Name: "Lim-Dûl's Vault"}, "lim-dul's vault:en"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.query.Key(); got != tc.key {
				t.Fatalf("Key() = %q, want %q", got, tc.key)
			}
		})
	}
}

func TestQueryValidate(t *testing.T) {
	if err := (card.Query{Name: "Opt", Set: "xln", Number: "65"}).Validate(); err != nil {
		t.Fatalf("expected valid query, got %v", err)
	}
	err := card.Query{Set: "xln"}.Validate()
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	if !strings.Contains(err.Error(), "name") {
		t.Fatalf("expected error to mention json field name, got %v", err)
	}
	if err := (card.Query{Name: "Opt", Lang: "klingon"}).Validate(); err == nil {
		t.Fatal("expected error for unknown language word")
	}
	if err := (card.Query{Name: "Opt", Number: "1/2"}).Validate(); err == nil {
		t.Fatal("expected error for collector number with separator")
	}
}

func TestNormalizeName(t *testing.T) {
	if got := card.NormalizeName("  Æther   Vial "); got != "æther vial" {
		t.Fatalf("unexpected normalization %q", got)
	}
	if !card.SameName("Jötun Grunt", "jotun grunt") {
		t.Fatal("expected names to match after folding")
	}
}

func TestRecordRelationsTriState(t *testing.T) {
	var fresh card.Record
	if err := json.Unmarshal([]byte(`{"id":"a","name":"Opt"}`), &fresh); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fresh.HasRelations() {
		t.Fatal("record without all_parts should not report relations")
	}
	enriched := fresh.WithEnrichedRelations()
	if !enriched.HasRelations() || len(enriched.AllParts) != 0 {
		t.Fatalf("expected empty non-nil relations, got %#v", enriched.AllParts)
	}

	data, err := json.Marshal(enriched)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"all_parts":[]`) {
		t.Fatalf("expected empty relation list in JSON, got %s", data)
	}
	if strings.Contains(string(data), "updated_at") {
		t.Fatalf("expected zero updated_at to be omitted, got %s", data)
	}
}

func TestFaceNames(t *testing.T) {
	withFaces := card.Record{Name: "Bala Ged Recovery // Bala Ged Sanctuary", Faces: []card.Face{{Name: "Bala Ged Recovery"}, {Name: "Bala Ged Sanctuary"}}}
	if got := withFaces.FrontFaceName(); got != "Bala Ged Recovery" {
		t.Fatalf("unexpected front face %q", got)
	}
	split := card.Record{Name: "Fire // Ice"}
	if got := split.FaceNames(); !reflect.DeepEqual(got, []string{"Fire", "Ice"}) {
		t.Fatalf("unexpected split names %v", got)
	}
	if got := (card.Record{Name: "Opt"}).FaceNames(); got != nil {
		t.Fatalf("expected nil face names, got %v", got)
	}
}

func TestImageURLs(t *testing.T) {
	single := card.Record{ImageURIs: map[string]string{"normal": "n.jpg", "png": "p.png"}}
	if got := card.ImageURLs(single); !reflect.DeepEqual(got, []string{"p.png"}) {
		t.Fatalf("expected png preferred, got %v", got)
	}
	dfc := card.Record{Faces: []card.Face{
		{Name: "Front", ImageURIs: map[string]string{"large": "front.jpg"}},
		{Name: "Back", ImageURIs: map[string]string{"large": "back.jpg"}},
	}}
	if got := card.ImageURLs(dfc); !reflect.DeepEqual(got, []string{"front.jpg", "back.jpg"}) {
		t.Fatalf("expected one url per face, got %v", got)
	}
	if got := card.ImageURLs(card.Record{}); len(got) != 0 {
		t.Fatalf("expected no urls, got %v", got)
	}
}

func TestDeriveTokens(t *testing.T) {
	rec := card.Record{
		Name:     "Krenko, Mob Boss",
		TypeLine: "Legendary Creature — Goblin Warrior",
		AllParts: []card.RelatedPart{
			{ID: "self", Component: "combo_piece", Name: "Krenko, Mob Boss", TypeLine: "Legendary Creature — Goblin Warrior"},
			{ID: "g1", Component: "token", Name: "Goblin", TypeLine: "Token Creature — Goblin"},
			{ID: "g1", Component: "token", Name: "Goblin", TypeLine: "Token Creature — Goblin"},
			{Component: "combo_piece", Name: "Treasure", TypeLine: "Token Artifact — Treasure"},
			{Component: "token", Name: "treasure"},
			{ID: "m1", Component: "meld_part", Name: "Other", TypeLine: "Creature"},
		},
	}
	got := card.DeriveTokens(rec)
	want := []card.TokenPart{
		{ID: "g1", Name: "Goblin", TypeLine: "Token Creature — Goblin"},
		{Name: "Treasure", TypeLine: "Token Artifact — Treasure"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DeriveTokens() = %#v, want %#v", got, want)
	}
}

func TestDeriveTokensSkipsTokenRecords(t *testing.T) {
	tests := []card.Record{
		{Name: "Goblin", TypeLine: "Token Creature — Goblin", AllParts: []card.RelatedPart{{Component: "token", Name: "Goblin Token"}}},
		{Name: "Incubator", Layout: card.LayoutDoubleFacedToken, AllParts: []card.RelatedPart{{Component: "token", Name: "Phyrexian"}}},
	}
	for _, rec := range tests {
		if got := card.DeriveTokens(rec); len(got) != 0 {
			t.Fatalf("expected no tokens for %q, got %v", rec.Name, got)
		}
	}
}
