// Package privacy provides a one-way keyed hash for PII values (phone
// numbers, display names) and recursive redaction of structured data for
// logging, using the same HMAC pattern the messaging-provider signature
// verifier uses.
package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"strings"
)

const unknown = "unknown"

// sensitiveKeys is matched case-insensitively against map keys and struct
// field names (JSON tag preferred) during Redact.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"authorization": {},
	"auth":          {},
	"secret":        {},
	"providersid":   {},
	"provider_sid":  {},
	"messagesid":    {},
	"message_sid":   {},
	"phone":         {},
	"from":          {},
	"to":            {},
}

// Hasher produces deterministic, non-reversible 16-hex-character digests of
// PII values, keyed by a process-wide salt.
type Hasher struct {
	salt []byte
}

// NewHasher returns a Hasher keyed by salt.
func NewHasher(salt string) Hasher {
	return Hasher{salt: []byte(salt)}
}

// Hash returns a 16-hex-character HMAC-SHA256 digest of s, or the literal
// "unknown" when s is empty. The same input always maps to the same output
// within a process lifetime; the digest cannot be reversed to recover s.
func (h Hasher) Hash(s string) string {
	if s == "" {
		return unknown
	}
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(s))
	sum := mac.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

// Redact returns a copy of v with any field or map key matching the
// sensitive-key list replaced by "[REDACTED]". Unexported struct fields are
// left untouched (they cannot be set via reflection); everything else is
// walked recursively through maps, slices, pointers, and structs.
func Redact(v any) any {
	if v == nil {
		return nil
	}
	return redactValue(reflect.ValueOf(v)).Interface()
}

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func redactValue(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		inner := redactValue(rv.Elem())
		out := reflect.New(rv.Type()).Elem()
		out.Set(inner)
		return out

	case reflect.Ptr:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Elem().Type())
		out.Elem().Set(redactValue(rv.Elem()))
		return out

	case reflect.Map:
		out := reflect.MakeMap(rv.Type())
		for _, k := range rv.MapKeys() {
			val := rv.MapIndex(k)
			if k.Kind() == reflect.String && isSensitiveKey(k.String()) {
				out.SetMapIndex(k, redactedReplacement(val.Type()))
				continue
			}
			out.SetMapIndex(k, redactValue(val))
		}
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(redactValue(rv.Index(i)))
		}
		return out

	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(redactValue(rv.Index(i)))
		}
		return out

	case reflect.Struct:
		out := reflect.New(rv.Type()).Elem()
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name := fieldName(field)
			if isSensitiveKey(name) {
				out.Field(i).Set(redactedReplacement(field.Type))
				continue
			}
			out.Field(i).Set(redactValue(rv.Field(i)))
		}
		return out

	default:
		return rv
	}
}

func fieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		name := strings.Split(tag, ",")[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

func redactedReplacement(t reflect.Type) reflect.Value {
	if t.Kind() == reflect.String {
		return reflect.ValueOf("[REDACTED]").Convert(t)
	}
	if t.Kind() == reflect.Interface {
		out := reflect.New(t).Elem()
		out.Set(reflect.ValueOf("[REDACTED]"))
		return out
	}
	return reflect.Zero(t)
}
