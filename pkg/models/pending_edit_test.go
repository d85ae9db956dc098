package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
)

func TestParsePendingEdit_AllFields(t *testing.T) {
	edit, err := ParsePendingEdit(map[string]string{
		"word":          " тест ",
		"language":      "ru",
		"description_3": "новое определение",
		"difficulty_3":  "4",
		"endDate_3":     "2027-01-02",
		"tags_3":        "5, 7",
		"endDate_4":     "",
		"tags_4":        "[]",
		"deleteIds":     "8,9",
		"unrelated":     "ignored",
	})
	require.NoError(t, err)

	require.NotNil(t, edit.WordText)
	assert.Equal(t, "тест", *edit.WordText)
	require.NotNil(t, edit.LanguageCode)
	assert.Equal(t, "ru", *edit.LanguageCode)
	assert.Equal(t, []int64{8, 9}, edit.DeleteIDs)
	assert.Equal(t, []int64{3, 4}, edit.DescriptionIDs())

	d3 := edit.Descriptions[3]
	require.NotNil(t, d3.Text)
	assert.Equal(t, "новое определение", *d3.Text)
	require.NotNil(t, d3.Difficulty)
	assert.Equal(t, 4, *d3.Difficulty)
	assert.True(t, d3.EndDateSet)
	require.NotNil(t, d3.EndDate)
	assert.True(t, d3.EndDate.Equal(time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, d3.TagsSet)
	assert.Equal(t, []int64{5, 7}, d3.Tags)

	d4 := edit.Descriptions[4]
	assert.True(t, d4.EndDateSet)
	assert.Nil(t, d4.EndDate)
	assert.True(t, d4.TagsSet)
	assert.Empty(t, d4.Tags)
}

func TestParsePendingEdit_IgnoresUnparseableValues(t *testing.T) {
	edit, err := ParsePendingEdit(map[string]string{
		"difficulty_3":  "hard",
		"endDate_3":     "next tuesday",
		"description_5": "ok",
		"difficulty_5":  "-1",
	})
	require.NoError(t, err)

	_, touched := edit.Descriptions[3]
	assert.False(t, touched, "description 3 has no usable edits")
	require.Contains(t, edit.Descriptions, int64(5))
	assert.Nil(t, edit.Descriptions[5].Difficulty)
}

func TestParsePendingEdit_Tags(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantSet bool
		want    []int64
	}{
		{"comma list", "5, 7", true, []int64{5, 7}},
		{"json numbers and strings", `[5, "7"]`, true, []int64{5, 7}},
		{"partially numeric keeps the ids", "5,abc", true, []int64{5}},
		{"blank clears", "  ", true, []int64{}},
		{"empty array clears", "[]", true, []int64{}},
		{"garbage is ignored", "abc", false, nil},
		{"array of garbage is ignored", `["x", {}]`, false, nil},
		{"broken json is ignored", "[abc", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edit, err := ParsePendingEdit(map[string]string{"tags_3": tt.value})
			require.NoError(t, err)

			d, ok := edit.Descriptions[3]
			if !tt.wantSet {
				assert.False(t, ok, "description 3 must not be touched")
				return
			}
			require.True(t, ok)
			assert.True(t, d.TagsSet)
			assert.Equal(t, tt.want, d.Tags)
		})
	}
}

func TestParsePendingEdit_MalformedIDFailsWholeCall(t *testing.T) {
	_, err := ParsePendingEdit(map[string]string{
		"word":            "ok",
		"description_abc": "text",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidID))

	_, err = ParsePendingEdit(map[string]string{"deleteIds": "1,x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidID))
}

func TestParsePendingEdit_TagsAsJSONArray(t *testing.T) {
	edit, err := ParsePendingEdit(map[string]string{"tags_2": `[1,"2","x"]`})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, edit.Descriptions[2].Tags)
}

func TestParseEndDate(t *testing.T) {
	got, ok := ParseEndDate("2026-05-01T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, 10, got.Hour())

	_, ok = ParseEndDate("01/05/2026")
	assert.False(t, ok)
}

func TestPendingWord_IsRename(t *testing.T) {
	target := int64(4)
	assert.True(t, (&PendingWord{TargetWordID: &target}).IsRename())
	assert.False(t, (&PendingWord{}).IsRename())
	assert.False(t, (&PendingWord{
		TargetWordID: &target,
		Descriptions: []*PendingDescription{{ID: 1}},
	}).IsRename())
}

func TestTextLength_CountsCharacters(t *testing.T) {
	assert.Equal(t, 4, TextLength("тест"))
	assert.Equal(t, 4, TextLength("test"))
}
