package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"cardcat/internal/card"
	"cardcat/internal/logging"
)

const cardColumns = `id, oracle_id, name, set_code, collector_number, lang, colors, mana_cost, cmc,
    type_line, rarity, layout, image_uris, card_faces, all_parts, released_at, updated_at`

type cardRow struct {
	ID              string          `db:"id"`
	OracleID        sql.NullString  `db:"oracle_id"`
	Name            string          `db:"name"`
	SetCode         string          `db:"set_code"`
	CollectorNumber string          `db:"collector_number"`
	Lang            string          `db:"lang"`
	Colors          sql.NullString  `db:"colors"`
	ManaCost        sql.NullString  `db:"mana_cost"`
	CMC             sql.NullFloat64 `db:"cmc"`
	TypeLine        sql.NullString  `db:"type_line"`
	Rarity          sql.NullString  `db:"rarity"`
	Layout          sql.NullString  `db:"layout"`
	ImageURIs       sql.NullString  `db:"image_uris"`
	CardFaces       sql.NullString  `db:"card_faces"`
	AllParts        sql.NullString  `db:"all_parts"`
	ReleasedAt      sql.NullString  `db:"released_at"`
	UpdatedAt       string          `db:"updated_at"`
}

// UpsertCard inserts or replaces a single record.
func (s *Store) UpsertCard(ctx context.Context, rec card.Record) error {
	return s.UpsertCards(ctx, []card.Record{rec})
}

// UpsertCards inserts or replaces records in one transaction and notifies
// write listeners after commit.
func (s *Store) UpsertCards(ctx context.Context, recs []card.Record) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]cardRow, 0, len(recs))
	for _, rec := range recs {
		row, err := encodeRow(rec, now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, row := range rows {
			// A re-identified printing replaces the stale row holding its slot.
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cards WHERE set_code = ? AND collector_number = ? AND lang = ? AND id <> ?`,
				row.SetCode, row.CollectorNumber, row.Lang, row.ID,
			); err != nil {
				return fmt.Errorf("clear printing slot %s: %w", row.ID, err)
			}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO cards (`+cardColumns+`) VALUES (
                :id, :oracle_id, :name, :set_code, :collector_number, :lang, :colors, :mana_cost, :cmc,
                :type_line, :rarity, :layout, :image_uris, :card_faces, :all_parts, :released_at, :updated_at)
             ON CONFLICT(id) DO UPDATE SET
                oracle_id = excluded.oracle_id, name = excluded.name, set_code = excluded.set_code,
                collector_number = excluded.collector_number, lang = excluded.lang, colors = excluded.colors,
                mana_cost = excluded.mana_cost, cmc = excluded.cmc, type_line = excluded.type_line,
                rarity = excluded.rarity, layout = excluded.layout, image_uris = excluded.image_uris,
                card_faces = excluded.card_faces, all_parts = COALESCE(excluded.all_parts, cards.all_parts),
                released_at = COALESCE(excluded.released_at, cards.released_at), updated_at = excluded.updated_at`,
				row,
			); err != nil {
				return fmt.Errorf("upsert card %s: %w", row.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifyWrite()
	return nil
}

// CardByID returns the record with id, or nil when absent or unreadable.
func (s *Store) CardByID(ctx context.Context, id string) (*card.Record, error) {
	var row cardRow
	err := s.db.GetContext(ctx, &row, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return s.decodeOrQuarantine(row), nil
}

// CardByPrinting returns the printing identified by set, collector number and language.
func (s *Store) CardByPrinting(ctx context.Context, set, number, lang string) (*card.Record, error) {
	if lang == "" {
		lang = card.DefaultLang
	}
	var row cardRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+cardColumns+` FROM cards WHERE set_code = ? AND collector_number = ? AND lang = ?`,
		strings.ToLower(set), strings.ToLower(number), strings.ToLower(lang),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get card by printing: %w", err)
	}
	return s.decodeOrQuarantine(row), nil
}

// CardsByName returns every stored printing whose full name or any face name
// matches name in lang. Unreadable rows are skipped.
func (s *Store) CardsByName(ctx context.Context, name, lang string) ([]card.Record, error) {
	if lang == "" {
		lang = card.DefaultLang
	}
	trimmed := strings.TrimSpace(name)
	var rows []cardRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+cardColumns+` FROM cards
         WHERE lang = ? AND (name = ? COLLATE NOCASE
             OR name LIKE ? || ' // %'
             OR name LIKE '% // ' || ?)
         ORDER BY id`,
		strings.ToLower(lang), trimmed, trimmed, trimmed,
	)
	if err != nil {
		return nil, fmt.Errorf("select cards by name: %w", err)
	}

	records := make([]card.Record, 0, len(rows))
	for _, row := range rows {
		rec := s.decodeOrQuarantine(row)
		if rec == nil || !matchesName(*rec, trimmed) {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// CardCount returns the number of stored records.
func (s *Store) CardCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM cards`); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return count, nil
}

func matchesName(rec card.Record, name string) bool {
	if card.SameName(rec.Name, name) {
		return true
	}
	for _, face := range rec.FaceNames() {
		if card.SameName(face, name) {
			return true
		}
	}
	return false
}

func (s *Store) decodeOrQuarantine(row cardRow) *card.Record {
	rec, err := decodeRow(row)
	if err != nil {
		logging.WarnWithContext(s.logger, "quarantined unreadable card row", "card_row_quarantined",
			logging.String("card_id", row.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "row treated as a cache miss and re-resolved from the catalog"),
			logging.String(logging.FieldErrorHint, "the row is overwritten by the next successful resolution"),
		)
		return nil
	}
	return &rec
}

func encodeRow(rec card.Record, now time.Time) (cardRow, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return cardRow{}, errors.New("upsert card: record id is required")
	}
	row := cardRow{
		ID:              rec.ID,
		OracleID:        nullableString(rec.OracleID),
		Name:            rec.Name,
		SetCode:         strings.ToLower(rec.Set),
		CollectorNumber: strings.ToLower(rec.CollectorNumber),
		Lang:            strings.ToLower(rec.Lang),
		ManaCost:        nullableString(rec.ManaCost),
		CMC:             sql.NullFloat64{Float64: rec.CMC, Valid: true},
		TypeLine:        nullableString(rec.TypeLine),
		Rarity:          nullableString(rec.Rarity),
		Layout:          nullableString(rec.Layout),
		ReleasedAt:      nullableString(rec.ReleasedAt),
		UpdatedAt:       now.Format(time.RFC3339Nano),
	}
	if row.Lang == "" {
		row.Lang = card.DefaultLang
	}

	var err error
	if row.Colors, err = nullableJSON(rec.Colors, rec.Colors == nil); err != nil {
		return cardRow{}, fmt.Errorf("encode colors for %s: %w", rec.ID, err)
	}
	if row.ImageURIs, err = nullableJSON(rec.ImageURIs, rec.ImageURIs == nil); err != nil {
		return cardRow{}, fmt.Errorf("encode image uris for %s: %w", rec.ID, err)
	}
	if row.CardFaces, err = nullableJSON(rec.Faces, rec.Faces == nil); err != nil {
		return cardRow{}, fmt.Errorf("encode faces for %s: %w", rec.ID, err)
	}
	// nil relations stay NULL so "never enriched" survives the round trip.
	if row.AllParts, err = nullableJSON(rec.AllParts, rec.AllParts == nil); err != nil {
		return cardRow{}, fmt.Errorf("encode relations for %s: %w", rec.ID, err)
	}
	return row, nil
}

func decodeRow(row cardRow) (card.Record, error) {
	rec := card.Record{
		ID:              row.ID,
		OracleID:        row.OracleID.String,
		Name:            row.Name,
		Set:             row.SetCode,
		CollectorNumber: row.CollectorNumber,
		Lang:            row.Lang,
		ManaCost:        row.ManaCost.String,
		CMC:             row.CMC.Float64,
		TypeLine:        row.TypeLine.String,
		Rarity:          row.Rarity.String,
		Layout:          row.Layout.String,
		ReleasedAt:      row.ReleasedAt.String,
	}
	if strings.TrimSpace(rec.Name) == "" {
		return card.Record{}, errors.New("empty name")
	}
	if ts, err := time.Parse(time.RFC3339Nano, row.UpdatedAt); err == nil {
		rec.UpdatedAt = ts
	} else {
		return card.Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := decodeColumn(row.Colors, &rec.Colors); err != nil {
		return card.Record{}, fmt.Errorf("colors: %w", err)
	}
	if err := decodeColumn(row.ImageURIs, &rec.ImageURIs); err != nil {
		return card.Record{}, fmt.Errorf("image_uris: %w", err)
	}
	if err := decodeColumn(row.CardFaces, &rec.Faces); err != nil {
		return card.Record{}, fmt.Errorf("card_faces: %w", err)
	}
	if err := card.ValidateFaces(rec.Faces); err != nil {
		return card.Record{}, fmt.Errorf("card_faces: %w", err)
	}
	if row.AllParts.Valid {
		var parts []card.RelatedPart
		if err := json.Unmarshal([]byte(row.AllParts.String), &parts); err != nil {
			return card.Record{}, fmt.Errorf("all_parts: %w", err)
		}
		if err := card.ValidateParts(parts); err != nil {
			return card.Record{}, fmt.Errorf("all_parts: %w", err)
		}
		rec.AllParts = parts
	}
	return rec, nil
}

func decodeColumn(value sql.NullString, dst any) error {
	if !value.Valid || value.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(value.String), dst)
}

func nullableJSON(value any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
