package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// clients send numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Numbers are kept textual so ids above 2^53 survive.
	var numVal json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&numVal); err == nil {
		return numVal.String()
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleInt64 decodes an integer that may be encoded either as a JSON number
// or as a string holding one. The second result is false when the value is
// absent or not an integer.
func FlexibleInt64(raw json.RawMessage) (int64, bool) {
	s := strings.TrimSpace(FlexibleStringValue(raw))
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FlexibleInt64Slice decodes a JSON array whose elements may be numbers or
// numeric strings. Elements that are not integers are skipped.
func FlexibleInt64Slice(raw json.RawMessage) []int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if n, ok := FlexibleInt64(item); ok {
			out = append(out, n)
		}
	}
	return out
}
