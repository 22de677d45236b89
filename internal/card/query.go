package card

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"cardcat/internal/language"
)

// DefaultLang is applied to queries that do not name a language.
const DefaultLang = language.Default

// Query is a loosely specified card identifier.
type Query struct {
	Name   string `json:"name" validate:"required,max=200"`
	Set    string `json:"set,omitempty" validate:"omitempty,alphanum,max=8"`
	Number string `json:"number,omitempty" validate:"omitempty,max=16,excludesall=/:"`
	Lang   string `json:"lang,omitempty" validate:"omitempty,alpha,min=2,max=3"`
}

// Normalize trims whitespace, lowercases codes, maps the language onto a
// catalog code, and applies the default language.
func (q Query) Normalize() Query {
	q.Name = strings.Join(strings.Fields(q.Name), " ")
	q.Set = strings.ToLower(strings.TrimSpace(q.Set))
	q.Number = strings.ToLower(strings.TrimSpace(q.Number))
	q.Lang = language.Normalize(q.Lang)
	if q.Lang == "" {
		q.Lang = DefaultLang
	}
	return q
}

// Validate normalizes q and checks it against the struct rules.
func (q Query) Validate() error {
	v, trans := queryValidator()
	err := v.Struct(q.Normalize())
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate query: %w", err)
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fe.Translate(trans))
	}
	return fmt.Errorf("invalid query: %s", strings.Join(msgs, ", "))
}

// HasPrinting reports whether the query names an exact printing.
func (q Query) HasPrinting() bool {
	return q.Set != "" && q.Number != ""
}

// Key identifies the query in batch results. Queries naming a printing key on
// it; others key on the normalized name and language.
func (q Query) Key() string {
	q = q.Normalize()
	if q.HasPrinting() {
		return PrintingKey(q.Set, q.Number) + ":" + q.Lang
	}
	if q.Set != "" {
		return q.Set + ":" + NameKey(q.Name, q.Lang)
	}
	return NameKey(q.Name, q.Lang)
}

// String renders the query for log lines and error events.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Name)
	if q.Set != "" {
		b.WriteString(" (")
		b.WriteString(strings.ToUpper(q.Set))
		if q.Number != "" {
			b.WriteString(") ")
			b.WriteString(q.Number)
		} else {
			b.WriteString(")")
		}
	}
	if q.Lang != "" && q.Lang != DefaultLang {
		b.WriteString(" [")
		b.WriteString(q.Lang)
		b.WriteString("]")
	}
	return b.String()
}

// PrintingKey is the "set:number" hot cache key.
func PrintingKey(set, number string) string {
	return strings.ToLower(set) + ":" + strings.ToLower(number)
}

// NameKey is the "name:lang" hot and scoring cache key.
func NameKey(name, lang string) string {
	if lang == "" {
		lang = DefaultLang
	}
	return NormalizeName(name) + ":" + strings.ToLower(lang)
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
	translator    ut.Translator
)

func queryValidator() (*validator.Validate, ut.Translator) {
	validatorOnce.Do(func() {
		validate = validator.New()
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		translator, _ = uni.GetTranslator("en")
		// Registration only fails for malformed built-in templates.
		_ = enTranslations.RegisterDefaultTranslations(validate, translator)
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate, translator
}

// ValidateParts checks decoded relation entries.
func ValidateParts(parts []RelatedPart) error {
	v, _ := queryValidator()
	return v.Var(parts, "dive")
}

// ValidateFaces checks decoded face entries.
func ValidateFaces(faces []Face) error {
	v, _ := queryValidator()
	return v.Var(faces, "dive")
}
