package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/jsonutil"
)

// Note kinds as written in the "kind" key of a note payload.
const (
	NoteKindEditWord       = "editWord"
	NoteKindEditDefinition = "editDef"
	NoteKindAddDefinition  = "addDefinition"
)

// Recognized note keys. Anything else is carried through untouched.
const (
	noteKeyKind        = "kind"
	noteKeyCreatedBy   = "createdBy"
	noteKeyCreatedByID = "createdById"
	noteKeyOpredID     = "opredId"
	noteKeyTags        = "tags"
	noteKeyText        = "text"
	noteKeyDifficulty  = "difficulty"
)

// Intent is the submission intent recorded in a note. It is one of
// NewWordSubmission, EditWordSubmission, EditDefinitionSubmission,
// AddDefinitionSubmission or UnknownSubmission.
type Intent interface {
	kind() string
}

// NewWordSubmission is a brand-new word together with its first definitions.
// It is also the fallback for notes that are missing or unparseable.
type NewWordSubmission struct{}

// EditWordSubmission changes the text of an existing word.
type EditWordSubmission struct{}

// EditDefinitionSubmission replaces the content of an existing live definition.
type EditDefinitionSubmission struct {
	OpredID int64
}

// AddDefinitionSubmission adds definitions to an existing word.
type AddDefinitionSubmission struct{}

// UnknownSubmission carries a kind this service does not understand, or an
// editDef note without a usable opredId. It is promoted like new content.
type UnknownSubmission struct {
	Kind string
}

func (NewWordSubmission) kind() string        { return "" }
func (EditWordSubmission) kind() string       { return NoteKindEditWord }
func (EditDefinitionSubmission) kind() string { return NoteKindEditDefinition }
func (AddDefinitionSubmission) kind() string  { return NoteKindAddDefinition }
func (u UnknownSubmission) kind() string      { return u.Kind }

// Note is the decoded form of the semi-structured note column. It is decoded
// once at the store edge; code past the repositories never sees raw JSON.
type Note struct {
	Intent      Intent
	CreatedBy   string
	CreatedByID *int64
	Tags        []int64
	// HasTags distinguishes an explicit empty tag list from an absent one.
	HasTags    bool
	Text       string
	Difficulty *int

	extra map[string]json.RawMessage
}

// ParseNote decodes a note payload. It never fails: missing or malformed JSON
// yields an empty note whose intent is NewWordSubmission.
func ParseNote(raw string) Note {
	n := Note{Intent: NewWordSubmission{}}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return n
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return n
	}

	kind := jsonutil.FlexibleStringValue(fields[noteKeyKind])
	switch kind {
	case "":
		n.Intent = NewWordSubmission{}
	case NoteKindEditWord:
		n.Intent = EditWordSubmission{}
	case NoteKindAddDefinition:
		n.Intent = AddDefinitionSubmission{}
	case NoteKindEditDefinition:
		if id, ok := jsonutil.FlexibleInt64(fields[noteKeyOpredID]); ok {
			n.Intent = EditDefinitionSubmission{OpredID: id}
		} else {
			n.Intent = UnknownSubmission{Kind: kind}
		}
	default:
		n.Intent = UnknownSubmission{Kind: kind}
	}

	n.CreatedBy = jsonutil.FlexibleStringValue(fields[noteKeyCreatedBy])
	if id, ok := jsonutil.FlexibleInt64(fields[noteKeyCreatedByID]); ok {
		n.CreatedByID = &id
	}
	if rawTags, ok := fields[noteKeyTags]; ok && string(rawTags) != "null" {
		n.HasTags = true
		n.Tags = jsonutil.FlexibleInt64Slice(rawTags)
	}
	n.Text = jsonutil.FlexibleStringValue(fields[noteKeyText])
	if d, ok := jsonutil.FlexibleInt64(fields[noteKeyDifficulty]); ok && d >= 0 {
		v := int(d)
		n.Difficulty = &v
	}

	for _, key := range []string{noteKeyKind, noteKeyCreatedBy, noteKeyCreatedByID, noteKeyOpredID, noteKeyTags, noteKeyText, noteKeyDifficulty} {
		delete(fields, key)
	}
	if len(fields) > 0 {
		n.extra = fields
	}
	return n
}

// Kind returns the raw kind string ("" for a new word).
func (n Note) Kind() string {
	if n.Intent == nil {
		return ""
	}
	return n.Intent.kind()
}

// EditTarget returns the definition id an editDef note points at.
func (n Note) EditTarget() (int64, bool) {
	if e, ok := n.Intent.(EditDefinitionSubmission); ok {
		return e.OpredID, true
	}
	return 0, false
}

// WithTags returns a copy of the note with its tag list replaced.
func (n Note) WithTags(tags []int64) Note {
	n.Tags = append([]int64(nil), tags...)
	n.HasTags = true
	return n
}

// Extra returns the keys this service does not interpret.
func (n Note) Extra() map[string]json.RawMessage {
	return n.extra
}

// IsEmpty reports whether encoding the note would produce an empty object.
func (n Note) IsEmpty() bool {
	return n.Kind() == "" && n.CreatedBy == "" && n.CreatedByID == nil && !n.HasTags &&
		n.Text == "" && n.Difficulty == nil && len(n.extra) == 0
}

// Encode renders the note as the JSON text stored in the note column.
// Empty notes encode as "" so the column stays NULL.
func (n Note) Encode() string {
	if n.IsEmpty() {
		return ""
	}
	b, _ := n.MarshalJSON()
	return string(b)
}

// MarshalJSON writes the note as a JSON object with sorted keys.
func (n Note) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(n.extra)+7)
	for k, v := range n.extra {
		fields[k] = v
	}

	put := func(key string, v any) {
		b, err := json.Marshal(v)
		if err == nil {
			fields[key] = b
		}
	}

	if kind := n.Kind(); kind != "" {
		put(noteKeyKind, kind)
	}
	if target, ok := n.EditTarget(); ok {
		put(noteKeyOpredID, strconv.FormatInt(target, 10))
	}
	if n.CreatedBy != "" {
		put(noteKeyCreatedBy, n.CreatedBy)
	}
	if n.CreatedByID != nil {
		put(noteKeyCreatedByID, strconv.FormatInt(*n.CreatedByID, 10))
	}
	if n.HasTags {
		tags := make([]string, 0, len(n.Tags))
		for _, id := range n.Tags {
			tags = append(tags, strconv.FormatInt(id, 10))
		}
		put(noteKeyTags, tags)
	}
	if n.Text != "" {
		put(noteKeyText, n.Text)
	}
	if n.Difficulty != nil {
		put(noteKeyDifficulty, *n.Difficulty)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either a note object or a string holding one.
func (n *Note) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = ParseNote(s)
		return nil
	}
	*n = ParseNote(string(data))
	return nil
}
