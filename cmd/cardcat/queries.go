package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"cardcat/internal/card"
)

// queryFlags are shared by commands that accept card queries.
type queryFlags struct {
	file   string
	set    string
	number string
	lang   string
}

func (f *queryFlags) register(cmd *cobra.Command, withFile bool) {
	if withFile {
		cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read queries from a list file (- for stdin)")
	}
	cmd.Flags().StringVar(&f.set, "set", "", "Set code applied to queries without one")
	cmd.Flags().StringVar(&f.number, "number", "", "Collector number applied to queries without one")
	cmd.Flags().StringVar(&f.lang, "lang", "", "Language (code or name) applied to queries without one")
}

var (
	countPrefix  = regexp.MustCompile(`^\d+x?\s+`)
	printingTail = regexp.MustCompile(`^(.*?)\s+\(([A-Za-z0-9]+)\)(?:\s+(\S+))?$`)
)

// parseQueryLine reads one list entry such as "2 Sol Ring (C21) 263".
// Blank lines and # comments yield ok=false.
func parseQueryLine(line string) (card.Query, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
		return card.Query{}, false
	}
	line = countPrefix.ReplaceAllString(line, "")
	if m := printingTail.FindStringSubmatch(line); m != nil {
		return card.Query{Name: strings.TrimSpace(m[1]), Set: m[2], Number: m[3]}, true
	}
	return card.Query{Name: line}, true
}

func readQueryLines(r io.Reader) ([]card.Query, error) {
	var queries []card.Query
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if q, ok := parseQueryLine(scanner.Text()); ok {
			queries = append(queries, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read query list: %w", err)
	}
	return queries, nil
}

// collect gathers queries from args and the list file, applies the flag
// defaults, and validates each one.
func (f *queryFlags) collect(cmd *cobra.Command, args []string) ([]card.Query, error) {
	var queries []card.Query
	for _, arg := range args {
		if q, ok := parseQueryLine(arg); ok {
			queries = append(queries, q)
		}
	}

	switch strings.TrimSpace(f.file) {
	case "":
	case "-":
		fromStdin, err := readQueryLines(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		queries = append(queries, fromStdin...)
	default:
		file, err := os.Open(f.file)
		if err != nil {
			return nil, fmt.Errorf("open query list: %w", err)
		}
		fromFile, err := readQueryLines(file)
		file.Close()
		if err != nil {
			return nil, err
		}
		queries = append(queries, fromFile...)
	}

	if len(queries) == 0 {
		return nil, fmt.Errorf("no card queries given")
	}
	for i := range queries {
		if queries[i].Set == "" {
			queries[i].Set = f.set
		}
		if queries[i].Number == "" && queries[i].Set != "" {
			queries[i].Number = f.number
		}
		if queries[i].Lang == "" {
			queries[i].Lang = f.lang
		}
		if err := queries[i].Validate(); err != nil {
			return nil, fmt.Errorf("query %q: %w", queries[i].Name, err)
		}
	}
	return queries, nil
}
