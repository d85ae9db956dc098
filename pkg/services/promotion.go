package services

import (
	"strings"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
)

// PromotionAction is what approval does with one pending description.
type PromotionAction int

const (
	// ActionCreateNew inserts a new live definition.
	ActionCreateNew PromotionAction = iota
	// ActionMergeInto attributes the description to an equal live definition.
	ActionMergeInto
	// ActionUpdateExisting rewrites the live definition an editDef note points at.
	ActionUpdateExisting
)

func (a PromotionAction) String() string {
	switch a {
	case ActionCreateNew:
		return "create_new"
	case ActionMergeInto:
		return "merge_into"
	case ActionUpdateExisting:
		return "update_existing"
	default:
		return "unknown"
	}
}

// PromotionDecision is the outcome of DecidePromotion. DefinitionID is zero
// for ActionCreateNew.
type PromotionDecision struct {
	Action       PromotionAction
	DefinitionID int64
}

// NormalizeDefinitionText is the deduplication key of a definition: trimmed,
// internal whitespace collapsed to single spaces, lowercased.
func NormalizeDefinitionText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// DefinitionIndex maps normalized definition text to a live definition id.
type DefinitionIndex map[string]int64

// NewDefinitionIndex indexes live definitions. When several share a
// normalized text the first one wins.
func NewDefinitionIndex(defs []*models.Definition) DefinitionIndex {
	idx := make(DefinitionIndex, len(defs))
	for _, d := range defs {
		idx.Add(d.Text, d.ID)
	}
	return idx
}

// Add registers text for id unless the normalized text is already taken.
func (idx DefinitionIndex) Add(text string, id int64) {
	key := NormalizeDefinitionText(text)
	if _, exists := idx[key]; !exists {
		idx[key] = id
	}
}

// Lookup returns the id registered for text.
func (idx DefinitionIndex) Lookup(text string) (int64, bool) {
	id, ok := idx[NormalizeDefinitionText(text)]
	return id, ok
}

// DecidePromotion picks what to do with a pending description without
// touching the store.
func DecidePromotion(d *models.PendingDescription, idx DefinitionIndex) PromotionDecision {
	if target, ok := d.Note.EditTarget(); ok {
		return PromotionDecision{Action: ActionUpdateExisting, DefinitionID: target}
	}
	if id, ok := idx.Lookup(d.Description); ok {
		return PromotionDecision{Action: ActionMergeInto, DefinitionID: id}
	}
	return PromotionDecision{Action: ActionCreateNew}
}
