package language

import "strings"

// Default is the catalog code assumed when a query names no language.
const Default = "en"

type entry struct {
	code    string   // catalog code
	iso2    string   // ISO 639-1, when one applies
	iso3    []string // ISO 639-2 forms
	printed string   // abbreviation printed on the card, when it differs
	display string
	words   []string
}

var languages = []entry{
	{"en", "en", []string{"eng"}, "", "English", []string{"english"}},
	{"es", "es", []string{"spa"}, "sp", "Spanish", []string{"spanish"}},
	{"fr", "fr", []string{"fra", "fre"}, "", "French", []string{"french"}},
	{"de", "de", []string{"deu", "ger"}, "", "German", []string{"german"}},
	{"it", "it", []string{"ita"}, "", "Italian", []string{"italian"}},
	{"pt", "pt", []string{"por"}, "", "Portuguese", []string{"portuguese"}},
	{"ja", "ja", []string{"jpn"}, "jp", "Japanese", []string{"japanese"}},
	{"ko", "ko", []string{"kor"}, "kr", "Korean", []string{"korean"}},
	{"ru", "ru", []string{"rus"}, "", "Russian", []string{"russian"}},
	{"zhs", "zh", []string{"zho", "chi"}, "cs", "Simplified Chinese", []string{"chinese", "simplified chinese"}},
	{"zht", "", nil, "ct", "Traditional Chinese", []string{"traditional chinese"}},
	{"he", "he", []string{"heb"}, "", "Hebrew", []string{"hebrew"}},
	{"la", "la", []string{"lat"}, "", "Latin", []string{"latin"}},
	{"grc", "", []string{"grc"}, "", "Ancient Greek", []string{"ancient greek", "greek"}},
	{"ar", "ar", []string{"ara"}, "", "Arabic", []string{"arabic"}},
	{"sa", "sa", []string{"san"}, "", "Sanskrit", []string{"sanskrit"}},
	{"ph", "", nil, "", "Phyrexian", []string{"phyrexian"}},
	{"qya", "", []string{"qya"}, "", "Quenya", []string{"quenya"}},
}

var index map[string]*entry

func init() {
	index = make(map[string]*entry, len(languages)*5)
	for i := range languages {
		e := &languages[i]
		// Catalog codes win over any alias that collides with them.
		keys := append([]string{e.iso2, e.printed}, e.iso3...)
		keys = append(keys, e.words...)
		for _, key := range keys {
			if key == "" {
				continue
			}
			if _, taken := index[key]; !taken {
				index[key] = e
			}
		}
	}
	for i := range languages {
		index[languages[i].code] = &languages[i]
	}
}

func lookup(value string) *entry {
	value = strings.Join(strings.Fields(strings.ToLower(value)), " ")
	if value == "" {
		return nil
	}
	return index[value]
}

// Normalize converts any recognized code or word to the catalog code.
// Unrecognized input is returned trimmed and lowercased so validation can
// reject it; empty input stays empty.
func Normalize(value string) string {
	if e := lookup(value); e != nil {
		return e.code
	}
	return strings.ToLower(strings.TrimSpace(value))
}

// Known reports whether value names a language the catalog prints.
func Known(value string) bool {
	return lookup(value) != nil
}

// DisplayName returns a human-readable name for any recognized code.
// Returns "Unknown" for empty input, or the uppercased input otherwise.
func DisplayName(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Unknown"
	}
	if e := lookup(value); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

// Codes lists every catalog language code in catalog order.
func Codes() []string {
	codes := make([]string, 0, len(languages))
	for _, e := range languages {
		codes = append(codes, e.code)
	}
	return codes
}
