package normalize

import "strings"

// Row is a single tabular record keyed by normalized header.
type Row map[string]string

// NewRow zips a header line with one record. Extra cells are ignored.
func NewRow(headers []string, rec []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i >= len(rec) {
			break
		}
		row[normalizeHeader(h)] = strings.TrimSpace(rec[i])
	}
	return row
}

// Get returns the first non-empty value among the header aliases.
func (r Row) Get(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r[normalizeHeader(name)]); v != "" {
			return v
		}
	}
	return ""
}

// Has reports whether any of the header aliases is present, even if empty.
func (r Row) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := r[normalizeHeader(name)]; ok {
			return true
		}
	}
	return false
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

// NormalizeEmail lowercases and trims; this is the identity key everywhere.
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
