package lake

import (
	"fmt"
	"strings"
)

// HiveDefaultPartition names the directory of rows whose partition value is
// null or empty.
const HiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// PartitionPath renders col=value directories for one row, e.g.
// "year=2000/artist_id=AR1". It returns "" for an unpartitioned table.
func PartitionPath(cols []string, values []*string) (string, error) {
	if len(cols) != len(values) {
		return "", fmt.Errorf("lake: %d partition values for %d partition columns", len(values), len(cols))
	}
	var b strings.Builder
	for i, col := range cols {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(escapePathName(col))
		b.WriteByte('=')
		if v := values[i]; v == nil || *v == "" {
			b.WriteString(HiveDefaultPartition)
		} else {
			b.WriteString(escapePathName(*v))
		}
	}
	return b.String(), nil
}

// escapePathName percent-encodes the characters Hive refuses in partition
// directory names.
func escapePathName(s string) string {
	if !strings.ContainsFunc(s, needsEscape) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x80 && needsEscape(rune(c)) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(r rune) bool {
	if r < 0x20 || r == 0x7F {
		return true
	}
	switch r {
	case '"', '#', '%', '\'', '*', '/', ':', '=', '?', '\\', '{', '[', ']', '^':
		return true
	}
	return false
}
