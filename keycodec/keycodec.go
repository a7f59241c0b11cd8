// Package keycodec builds and parses the composite keys every asset is
// stored under. A key is a namespace followed by an ordered list of
// attributes; the encoding guarantees that Build(ns, A...) is a byte prefix
// of Build(ns, B...) exactly when A is an attribute-wise prefix of B, so
// prefix scans over the sorted store return precisely the records sharing
// the leading attributes.
package keycodec

import (
	"strings"

	"github.com/agrofresa/fresachain/fault"
)

// Separator between encoded attributes. Attribute values are escaped so the
// separator can never occur inside an encoded attribute, which keeps key
// boundaries unambiguous even when an attribute is itself a composite key
// (harvest keys embed the seed lot key).
const Separator = "/"

const escape = "%"

var attrEscaper = strings.NewReplacer(escape, "%25", Separator, "%2F")

var attrUnescaper = strings.NewReplacer("%2F", Separator, "%25", escape)

// Build renders a composite key. Every attribute, including the last, is
// terminated by the separator; that trailing separator is what makes the
// prefix property hold attribute-wise instead of byte-wise.
func Build(namespace string, attrs ...string) (string, error) {
	if err := checkComponent("namespace", namespace); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteString(Separator)
	for _, attr := range attrs {
		if err := checkComponent("attribute", attr); err != nil {
			return "", err
		}
		b.WriteString(attrEscaper.Replace(attr))
		b.WriteString(Separator)
	}
	return b.String(), nil
}

// Prefix renders a partial key for range scans. A prefix built from the
// first K attributes matches every key built from an attribute tuple that
// starts with those K values, and nothing else.
func Prefix(namespace string, attrs ...string) (string, error) {
	return Build(namespace, attrs...)
}

// Parse splits a key previously produced by Build and verifies it belongs to
// the expected namespace. A key from another namespace fails with
// WrongAssetType, never with a silent misread.
func Parse(expectedNamespace, key string) ([]string, error) {
	parts := strings.Split(key, Separator)
	// Build always leaves a trailing separator, so a well formed key splits
	// into namespace, attributes..., "".
	if len(parts) < 2 || parts[len(parts)-1] != "" {
		return nil, fault.New(fault.InvalidKeyAttribute, "malformed composite key %q", key)
	}
	if parts[0] != expectedNamespace {
		return nil, fault.New(fault.WrongAssetType, "key %q belongs to namespace %q, expected %q", key, parts[0], expectedNamespace)
	}
	attrs := make([]string, 0, len(parts)-2)
	for _, p := range parts[1 : len(parts)-1] {
		attrs = append(attrs, attrUnescaper.Replace(p))
	}
	return attrs, nil
}

// Namespace extracts the namespace of a key without validating it against an
// expectation.
func Namespace(key string) string {
	if i := strings.Index(key, Separator); i >= 0 {
		return key[:i]
	}
	return key
}

func checkComponent(kind, value string) error {
	if value == "" {
		return fault.New(fault.InvalidKeyAttribute, "%s must not be empty", kind)
	}
	if kind == "namespace" && strings.Contains(value, Separator) {
		return fault.New(fault.InvalidKeyAttribute, "namespace %q must not contain %q", value, Separator)
	}
	return nil
}
