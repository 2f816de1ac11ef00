package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	shared "sentinel/shared/types"
)

// Serialize renders a value as indented, deterministically ordered text.
// Object keys are re-sorted here regardless of what normalization did, so
// callers may serialize arbitrary structures for hashing. This function is
// the single source of truth for spec equality: two specs are equal iff
// their serialized bytes are identical.
func Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any, depth int) error {
	switch val := v.(type) {
	case shared.RawNode:
		return writeObject(buf, map[string]any(val), depth)
	case map[string]any:
		return writeObject(buf, val, depth)
	case []any:
		return writeArray(buf, val, depth)
	default:
		// Primitives (and anything else) go through encoding/json so that
		// string escaping and number formatting stay consistent.
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("serializing value: %w", err)
		}
		buf.Write(data)
		return nil
	}
}

func writeObject(buf *bytes.Buffer, m map[string]any, depth int) error {
	if len(m) == 0 {
		buf.WriteString("{}")
		return nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteString("{\n")
	for i, k := range keys {
		writeIndent(buf, depth+1)
		name, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteString(": ")
		if err := writeValue(buf, m[k], depth+1); err != nil {
			return err
		}
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	writeIndent(buf, depth)
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, items []any, depth int) error {
	if len(items) == 0 {
		buf.WriteString("[]")
		return nil
	}

	buf.WriteString("[\n")
	for i, item := range items {
		writeIndent(buf, depth+1)
		if err := writeValue(buf, item, depth+1); err != nil {
			return err
		}
		if i < len(items)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	writeIndent(buf, depth)
	buf.WriteByte(']')
	return nil
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}
