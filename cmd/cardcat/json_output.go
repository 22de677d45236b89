package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// writeJSON prints v as indented JSON. Image URLs keep their literal '&'.
func writeJSON(cmd *cobra.Command, v any) error {
	return encodeJSON(cmd.OutOrStdout(), v, "  ")
}

// jsonLineEncoder returns an encoder for one compact object per line.
func jsonLineEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func encodeJSON(w io.Writer, v any, indent string) error {
	enc := jsonLineEncoder(w)
	enc.SetIndent("", indent)
	return enc.Encode(v)
}
