package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
)

// Edit field names. Description-scoped fields are suffixed with "_<id>".
const (
	EditFieldWord        = "word"
	EditFieldLanguage    = "language"
	EditFieldDeleteIDs   = "deleteIds"
	EditFieldDescription = "description"
	EditFieldDifficulty  = "difficulty"
	EditFieldEndDate     = "endDate"
	EditFieldTags        = "tags"
)

// PendingEdit is a parsed set of edits to a pending envelope. Nil pointers
// mean "leave unchanged".
type PendingEdit struct {
	WordText     *string
	LanguageCode *string
	Descriptions map[int64]*DescriptionEdit
	DeleteIDs    []int64
}

// DescriptionEdit holds the edits addressed to one pending description.
type DescriptionEdit struct {
	Text       *string
	Difficulty *int
	// EndDateSet with a nil EndDate clears the expiry.
	EndDateSet bool
	EndDate    *time.Time
	TagsSet    bool
	Tags       []int64
}

// IsEmpty reports whether the edit changes nothing.
func (d *DescriptionEdit) IsEmpty() bool {
	return d.Text == nil && d.Difficulty == nil && !d.EndDateSet && !d.TagsSet
}

// DescriptionIDs returns the ids addressed by description edits in ascending order.
func (e *PendingEdit) DescriptionIDs() []int64 {
	ids := make([]int64, 0, len(e.Descriptions))
	for id := range e.Descriptions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ParsePendingEdit turns a flat field map into a PendingEdit.
//
// A malformed id (in a "<field>_<id>" key or in deleteIds) fails the whole
// call with apperrors.ErrInvalidID. Unparseable values are ignored per field.
func ParsePendingEdit(fields map[string]string) (*PendingEdit, error) {
	edit := &PendingEdit{Descriptions: make(map[int64]*DescriptionEdit)}

	for key, value := range fields {
		switch key {
		case EditFieldWord:
			v := strings.TrimSpace(value)
			if v != "" {
				edit.WordText = &v
			}
			continue
		case EditFieldLanguage:
			v := strings.TrimSpace(value)
			if v != "" {
				edit.LanguageCode = &v
			}
			continue
		case EditFieldDeleteIDs:
			ids, err := parseIDList(value)
			if err != nil {
				return nil, err
			}
			edit.DeleteIDs = ids
			continue
		}

		field, rawID, ok := strings.Cut(key, "_")
		if !ok {
			continue
		}
		switch field {
		case EditFieldDescription, EditFieldDifficulty, EditFieldEndDate, EditFieldTags:
		default:
			continue
		}

		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("field %q: %w", key, apperrors.ErrInvalidID)
		}
		d := edit.Descriptions[id]
		if d == nil {
			d = &DescriptionEdit{}
		}

		switch field {
		case EditFieldDescription:
			v := strings.TrimSpace(value)
			if v != "" {
				d.Text = &v
			}
		case EditFieldDifficulty:
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
				d.Difficulty = &n
			}
		case EditFieldEndDate:
			if strings.TrimSpace(value) == "" {
				d.EndDateSet = true
				d.EndDate = nil
			} else if t, ok := ParseEndDate(value); ok {
				d.EndDateSet = true
				d.EndDate = &t
			}
		case EditFieldTags:
			if tags, ok := parseTagList(value); ok {
				d.TagsSet = true
				d.Tags = tags
			}
		}

		if !d.IsEmpty() {
			edit.Descriptions[id] = d
		}
	}

	return edit, nil
}

// ParseEndDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC).
func ParseEndDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func parseIDList(value string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("delete id %q: %w", part, apperrors.ErrInvalidID)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseTagList reads comma-separated ids or a JSON array of numbers or
// numeric strings. ok is false when the value names tags but none of them
// parse; a blank value or an empty array is an explicit clear.
func parseTagList(value string) ([]int64, bool) {
	value = strings.TrimSpace(value)
	tags := []int64{}
	if value == "" {
		return tags, true
	}
	if strings.HasPrefix(value, "[") {
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(value), &raw); err == nil {
			for _, item := range raw {
				var n int64
				if err := json.Unmarshal(item, &n); err == nil {
					tags = append(tags, n)
					continue
				}
				var s string
				if err := json.Unmarshal(item, &s); err == nil {
					if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
						tags = append(tags, n)
					}
				}
			}
			return tags, len(raw) == 0 || len(tags) > 0
		}
	}
	for _, part := range strings.Split(value, ",") {
		if n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			tags = append(tags, n)
		}
	}
	return tags, len(tags) > 0
}
