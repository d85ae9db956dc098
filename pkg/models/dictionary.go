package models

import "time"

// Word is a live dictionary word.
type Word struct {
	ID         int64  `json:"id,string"`
	WordText   string `json:"word_text"`
	Length     int    `json:"length"`
	LanguageID int64  `json:"language_id,string"`
	IsDeleted  bool   `json:"is_deleted"`
}

// Definition is a live definition ("opred") attached to a word.
// A nil EndDate or one in the future means the definition is active.
type Definition struct {
	ID              int64      `json:"id,string"`
	WordID          int64      `json:"word_id,string"`
	Text            string     `json:"text"`
	Length          int        `json:"length"`
	LanguageID      int64      `json:"language_id,string"`
	Difficulty      int        `json:"difficulty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	IsDeleted       bool       `json:"is_deleted"`
	CreatedByUserID *int64     `json:"created_by_user_id,string,omitempty"`
}

// Language is a dictionary language looked up by its short code (e.g. "ru").
type Language struct {
	ID   int64  `json:"id,string"`
	Code string `json:"code"`
	Name string `json:"name"`
}
