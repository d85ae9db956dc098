//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/database"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/testhelpers"
)

type dictionaryTestContext struct {
	t      *testing.T
	ctx    context.Context
	repo   DictionaryRepository
	langID int64
}

func setupDictionaryTest(t *testing.T) *dictionaryTestContext {
	testDB := testhelpers.GetTestDB(t)
	testDB.Truncate(t)
	ctx := testDB.Scoped(t)

	q, ok := database.GetQuerier(ctx)
	require.True(t, ok)
	_, err := q.Exec(ctx, `
		INSERT INTO tags (id, name) VALUES (905, 'dicttest-905'), (907, 'dicttest-907'), (909, 'dicttest-909')
		ON CONFLICT (id) DO NOTHING`)
	require.NoError(t, err)

	lang, err := NewLanguageRepository().GetByCode(ctx, "ru")
	require.NoError(t, err)
	require.NotNil(t, lang)

	return &dictionaryTestContext{
		t:      t,
		ctx:    ctx,
		repo:   NewDictionaryRepository(),
		langID: lang.ID,
	}
}

func (tc *dictionaryTestContext) createWord(text string) *models.Word {
	tc.t.Helper()
	w := &models.Word{WordText: text, LanguageID: tc.langID}
	require.NoError(tc.t, tc.repo.CreateWord(tc.ctx, w))
	return w
}

func (tc *dictionaryTestContext) createDefinition(wordID int64, text string) *models.Definition {
	tc.t.Helper()
	d := &models.Definition{WordID: wordID, Text: text, LanguageID: tc.langID, Difficulty: 1}
	require.NoError(tc.t, tc.repo.CreateDefinition(tc.ctx, d))
	return d
}

func TestDictionaryRepository_CreateAndFindWord(t *testing.T) {
	tc := setupDictionaryTest(t)

	w := tc.createWord("город")
	assert.NotZero(t, w.ID)
	assert.Equal(t, 5, w.Length)

	found, err := tc.repo.FindLiveWord(tc.ctx, "город", tc.langID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, w.ID, found.ID)

	missing, err := tc.repo.FindLiveWord(tc.ctx, "деревня", tc.langID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := tc.repo.GetWord(tc.ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "город", byID.WordText)
}

func TestDictionaryRepository_CreateWord_ConflictKeepsTransactionUsable(t *testing.T) {
	tc := setupDictionaryTest(t)
	existing := tc.createWord("город")

	err := database.RunInTx(tc.ctx, func(ctx context.Context) error {
		dup := &models.Word{WordText: "город", LanguageID: tc.langID}
		err := tc.repo.CreateWord(ctx, dup)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrConflict))

		// The outer transaction survives the failed insert.
		found, err := tc.repo.FindLiveWord(ctx, "город", tc.langID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, existing.ID, found.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestDictionaryRepository_DeletedWordDoesNotBlockCreate(t *testing.T) {
	tc := setupDictionaryTest(t)
	old := tc.createWord("город")

	q, _ := database.GetQuerier(tc.ctx)
	_, err := q.Exec(tc.ctx, `UPDATE word_v SET is_deleted = true WHERE id = $1`, old.ID)
	require.NoError(t, err)

	found, err := tc.repo.FindLiveWord(tc.ctx, "город", tc.langID)
	require.NoError(t, err)
	assert.Nil(t, found)

	fresh := tc.createWord("город")
	assert.NotEqual(t, old.ID, fresh.ID)
}

func TestDictionaryRepository_RenameWord(t *testing.T) {
	tc := setupDictionaryTest(t)
	w := tc.createWord("город")
	tc.createWord("село")

	require.NoError(t, tc.repo.RenameWord(tc.ctx, w.ID, "городок"))
	got, err := tc.repo.GetWord(tc.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "городок", got.WordText)
	assert.Equal(t, 7, got.Length)

	err = tc.repo.RenameWord(tc.ctx, w.ID, "село")
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	err = tc.repo.RenameWord(tc.ctx, 999999, "нет")
	assert.True(t, errors.Is(err, apperrors.ErrStaleReference))
}

func TestDictionaryRepository_Definitions(t *testing.T) {
	tc := setupDictionaryTest(t)
	w := tc.createWord("город")
	first := tc.createDefinition(w.ID, "Большой город")
	second := tc.createDefinition(w.ID, "Населённый пункт")

	q, _ := database.GetQuerier(tc.ctx)
	deleted := tc.createDefinition(w.ID, "Удалённое")
	_, err := q.Exec(tc.ctx, `UPDATE opred_v SET is_deleted = true WHERE id = $1`, deleted.ID)
	require.NoError(t, err)

	defs, err := tc.repo.ListLiveDefinitions(tc.ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, first.ID, defs[0].ID)
	assert.Equal(t, second.ID, defs[1].ID)

	end := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	first.Text = "Очень большой город"
	first.Difficulty = 3
	first.EndDate = &end
	require.NoError(t, tc.repo.UpdateDefinition(tc.ctx, first))

	defs, err = tc.repo.ListLiveDefinitions(tc.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Очень большой город", defs[0].Text)
	assert.Equal(t, 19, defs[0].Length)
	assert.Equal(t, 3, defs[0].Difficulty)
	require.NotNil(t, defs[0].EndDate)
	assert.True(t, end.Equal(*defs[0].EndDate))

	err = tc.repo.UpdateDefinition(tc.ctx, deleted)
	assert.True(t, errors.Is(err, apperrors.ErrStaleReference))
}

func TestDictionaryRepository_UpdateDefinitionScopedToWord(t *testing.T) {
	tc := setupDictionaryTest(t)
	w := tc.createWord("город")
	other := tc.createWord("столица")
	d := tc.createDefinition(w.ID, "Большой город")

	err := tc.repo.UpdateDefinition(tc.ctx, &models.Definition{
		ID:         d.ID,
		WordID:     other.ID,
		Text:       "Главный город страны",
		Difficulty: 1,
	})
	assert.True(t, errors.Is(err, apperrors.ErrStaleReference))

	defs, err := tc.repo.ListLiveDefinitions(tc.ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Большой город", defs[0].Text)
}

func TestDictionaryRepository_Tags(t *testing.T) {
	tc := setupDictionaryTest(t)
	w := tc.createWord("город")
	d := tc.createDefinition(w.ID, "Большой город")

	// Unknown tag 12345 is skipped, duplicate attach is a no-op.
	require.NoError(t, tc.repo.AttachTags(tc.ctx, d.ID, []int64{905, 12345}))
	require.NoError(t, tc.repo.AttachTags(tc.ctx, d.ID, []int64{905, 909}))
	tags, err := tc.repo.ListTags(tc.ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{905, 909}, tags)

	require.NoError(t, tc.repo.ReplaceTags(tc.ctx, d.ID, []int64{907}))
	tags, err = tc.repo.ListTags(tc.ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{907}, tags)

	require.NoError(t, tc.repo.ReplaceTags(tc.ctx, d.ID, nil))
	tags, err = tc.repo.ListTags(tc.ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestLanguageRepository_GetByCode(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := testDB.Scoped(t)
	repo := NewLanguageRepository()

	lang, err := repo.GetByCode(ctx, " RU ")
	require.NoError(t, err)
	require.NotNil(t, lang)
	assert.Equal(t, "ru", lang.Code)

	missing, err := repo.GetByCode(ctx, "xx")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPermissionRepository_HasPermission(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := testDB.Scoped(t)
	repo := NewPermissionRepository()

	ok, err := repo.HasPermission(ctx, "MODERATOR", "pending:review")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasPermission(ctx, "EDITOR", "pending:review")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.HasPermission(ctx, "", "pending:review")
	require.NoError(t, err)
	assert.False(t, ok)
}
