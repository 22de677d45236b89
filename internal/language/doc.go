// Package language maps the many ways people write a card language onto the
// catalog's language codes.
//
// Card lists carry ISO 639-1 codes ("ja"), ISO 639-2 codes ("jpn"), English
// words ("Japanese"), and the abbreviations printed on cards ("jp"). The
// catalog itself uses its own short codes, including "zhs"/"zht" for the two
// Chinese scripts and a handful of fictional or historic languages.
package language
