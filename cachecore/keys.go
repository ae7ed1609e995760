package cachecore

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeySeparator joins prefix, namespace and key.
const KeySeparator = ":"

// KeyCodec builds validated storage keys of the form prefix:namespace:key.
//
// Prefix and namespace may not contain the separator, so two different
// (namespace, key) pairs never encode to the same string. The zero value
// uses DefaultPrefix, no namespace and DefaultMaxKeyLength.
type KeyCodec struct {
	prefix    string
	namespace string
	maxLen    int
}

// NewKeyCodec validates prefix and namespace and returns a codec.
// An empty prefix falls back to DefaultPrefix; maxLen <= 0 uses DefaultMaxKeyLength.
func NewKeyCodec(prefix, namespace string, maxLen int) (KeyCodec, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLength
	}
	if err := validateScopePart("prefix", prefix); err != nil {
		return KeyCodec{}, err
	}
	if namespace != "" {
		if err := validateScopePart("namespace", namespace); err != nil {
			return KeyCodec{}, err
		}
	}
	return KeyCodec{prefix: prefix, namespace: namespace, maxLen: maxLen}, nil
}

// WithNamespace returns a copy bound to ns. The prefix and length limit are kept.
func (k KeyCodec) WithNamespace(ns string) (KeyCodec, error) {
	return NewKeyCodec(k.Prefix(), ns, k.MaxLength())
}

// Prefix returns the app-level prefix.
func (k KeyCodec) Prefix() string {
	if k.prefix == "" {
		return DefaultPrefix
	}
	return k.prefix
}

// Namespace returns the bound namespace, possibly empty.
func (k KeyCodec) Namespace() string { return k.namespace }

// MaxLength returns the maximum encoded key length in bytes.
func (k KeyCodec) MaxLength() int {
	if k.maxLen <= 0 {
		return DefaultMaxKeyLength
	}
	return k.maxLen
}

// Scope returns the prefix shared by every key of this app, across namespaces.
func (k KeyCodec) Scope() string {
	return k.Prefix() + KeySeparator
}

func (k KeyCodec) namespaceScope() string {
	return k.Scope() + k.namespace + KeySeparator
}

// Make encodes key. It fails with ErrInvalidKey for empty keys, keys with
// whitespace, control characters or invalid UTF-8, and encoded keys longer
// than MaxLength.
func (k KeyCodec) Make(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if reason := badChars(key); reason != "" {
		return "", fmt.Errorf("%w: key %q %s", ErrInvalidKey, key, reason)
	}
	encoded := k.namespaceScope() + key
	if len(encoded) > k.MaxLength() {
		return "", fmt.Errorf("%w: encoded key is %d bytes, limit %d", ErrInvalidKey, len(encoded), k.MaxLength())
	}
	return encoded, nil
}

// MakeMany encodes keys in order, stopping at the first invalid one.
func (k KeyCodec) MakeMany(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		encoded, err := k.Make(key)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return out, nil
}

// Strip maps an encoded key back to its logical key.
func (k KeyCodec) Strip(encoded string) (string, bool) {
	scope := k.namespaceScope()
	if !strings.HasPrefix(encoded, scope) {
		return "", false
	}
	return encoded[len(scope):], true
}

func validateScopePart(what, s string) error {
	if strings.Contains(s, KeySeparator) {
		return fmt.Errorf("%w: %s %q contains %q", ErrInvalidKey, what, s, KeySeparator)
	}
	if reason := badChars(s); reason != "" {
		return fmt.Errorf("%w: %s %q %s", ErrInvalidKey, what, s, reason)
	}
	return nil
}

func badChars(s string) string {
	if !utf8.ValidString(s) {
		return "is not valid UTF-8"
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			return "contains whitespace"
		case unicode.IsControl(r):
			return "contains a control character"
		}
	}
	return ""
}
