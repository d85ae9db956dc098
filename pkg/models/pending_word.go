package models

import (
	"time"
	"unicode/utf8"
)

// Pending submission status constants.
const (
	PendingStatusPending  = "PENDING"
	PendingStatusApproved = "APPROVED"
	PendingStatusRejected = "REJECTED"
)

// PendingWord is a staged submission (envelope) bundling a candidate word and
// its candidate definitions awaiting moderation.
type PendingWord struct {
	ID               int64                 `json:"id,string"`
	WordText         string                `json:"word_text"`
	Length           int                   `json:"length"`
	LanguageID       int64                 `json:"language_id,string"`
	Status           string                `json:"status"`
	Note             Note                  `json:"note"`
	TargetWordID     *int64                `json:"target_word_id,string,omitempty"`
	CreatedByUserID  *int64                `json:"created_by_user_id,string,omitempty"`
	UpdatedByUserID  *int64                `json:"updated_by_user_id,string,omitempty"`
	ReviewedByUserID *int64                `json:"reviewed_by_user_id,string,omitempty"`
	ReviewedAt       *time.Time            `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	Descriptions     []*PendingDescription `json:"descriptions"`
}

// PendingDescription is a candidate definition owned by exactly one PendingWord.
type PendingDescription struct {
	ID              int64      `json:"id,string"`
	PendingWordID   int64      `json:"pending_word_id,string"`
	Description     string     `json:"description"`
	Difficulty      int        `json:"difficulty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	Note            Note       `json:"note"`
	Status          string     `json:"status"`
	ApprovedOpredID *int64     `json:"approved_opred_id,string,omitempty"`
	LanguageID      int64      `json:"language_id,string"`
	CreatedByUserID *int64     `json:"created_by_user_id,string,omitempty"`
	UpdatedByUserID *int64     `json:"updated_by_user_id,string,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// DefaultDifficulty is used when a submission does not specify one.
const DefaultDifficulty = 1

// IsPending reports whether the envelope can still be edited, approved or rejected.
func (p *PendingWord) IsPending() bool {
	return p.Status == PendingStatusPending
}

// IsRename reports whether the envelope only changes the text of an existing
// live word: it targets a word and carries no descriptions.
func (p *PendingWord) IsRename() bool {
	return len(p.Descriptions) == 0 && p.TargetWordID != nil
}

// DescriptionByID returns the child description with the given id, or nil.
func (p *PendingWord) DescriptionByID(id int64) *PendingDescription {
	for _, d := range p.Descriptions {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// TextLength is the stored length of a word or definition text, counted in characters.
func TextLength(s string) int {
	return utf8.RuneCountInString(s)
}
