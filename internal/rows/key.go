package rows

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key is the SHA-256 of a row's canonical encoding. Two rows share a Key
// exactly when every value is equal, with null distinct from any string.
type Key [sha256.Size]byte

// KeyOf returns the canonical key for values. Pointer values are dereferenced,
// so a nil *string and a nil *float64 both encode as null.
func KeyOf(values ...any) Key {
	var b strings.Builder
	var scratch [64]byte
	for i, v := range values {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		appendCanonicalValue(&b, v, &scratch)
	}
	return sha256.Sum256([]byte(b.String()))
}

// Distinct keeps the first occurrence of every row in order. key extracts the
// values that make up a row's identity.
func Distinct[T any](in []T, key func(T) []any) []T {
	seen := make(map[Key]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, r := range in {
		k := KeyOf(key(r)...)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// appendCanonicalValue writes a type-tagged representation of v. The tag keeps
// int64(1), float64(1) and "1" apart.
func appendCanonicalValue(b *strings.Builder, v any, scratch *[64]byte) {
	switch t := v.(type) {
	case nil:
		b.WriteByte(0)

	case *string:
		if t == nil {
			b.WriteByte(0)
			return
		}
		appendCanonicalValue(b, *t, scratch)
	case *int64:
		if t == nil {
			b.WriteByte(0)
			return
		}
		appendCanonicalValue(b, *t, scratch)
	case *int32:
		if t == nil {
			b.WriteByte(0)
			return
		}
		appendCanonicalValue(b, *t, scratch)
	case *float64:
		if t == nil {
			b.WriteByte(0)
			return
		}
		appendCanonicalValue(b, *t, scratch)

	case string:
		appendSized(b, "s:", t, scratch)

	case bool:
		if t {
			b.WriteString("b:true")
		} else {
			b.WriteString("b:false")
		}

	case int:
		b.WriteString("i:")
		b.Write(strconv.AppendInt(scratch[:0], int64(t), 10))
	case int32:
		b.WriteString("i:")
		b.Write(strconv.AppendInt(scratch[:0], int64(t), 10))
	case int64:
		b.WriteString("i:")
		b.Write(strconv.AppendInt(scratch[:0], t, 10))

	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case time.Time:
		b.WriteString("t:")
		b.WriteString(t.UTC().Format(time.RFC3339Nano))

	default:
		appendSized(b, "v:", fmt.Sprintf("%v", t), scratch)
	}
}

// appendSized writes tag, the byte length of s, a colon, then s. The length
// prefix keeps a separator inside s from shifting value boundaries.
func appendSized(b *strings.Builder, tag, s string, scratch *[64]byte) {
	b.WriteString(tag)
	b.Write(strconv.AppendInt(scratch[:0], int64(len(s)), 10))
	b.WriteByte(':')
	b.WriteString(s)
}
