package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/database"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
)

// DictionaryRepository provides data access for live words, definitions and
// definition tags.
type DictionaryRepository interface {
	// FindLiveWord returns the non-deleted word with the exact text in the
	// language, or nil if there is none.
	FindLiveWord(ctx context.Context, wordText string, languageID int64) (*models.Word, error)

	// GetWord returns a word by id, or nil if it does not exist.
	GetWord(ctx context.Context, id int64) (*models.Word, error)

	// CreateWord inserts a live word. A concurrent insert of the same live
	// (text, language) pair fails with apperrors.ErrConflict and leaves the
	// surrounding transaction usable.
	CreateWord(ctx context.Context, w *models.Word) error

	// RenameWord changes the text and length of a live word.
	RenameWord(ctx context.Context, id int64, wordText string) error

	// ListLiveDefinitions returns the non-deleted definitions of a word in id order.
	ListLiveDefinitions(ctx context.Context, wordID int64) ([]*models.Definition, error)

	// CreateDefinition inserts a live definition.
	CreateDefinition(ctx context.Context, d *models.Definition) error

	// UpdateDefinition rewrites text, length, difficulty and end date of a
	// live definition of d.WordID. Fails with apperrors.ErrStaleReference when
	// the definition is missing, deleted or belongs to another word.
	UpdateDefinition(ctx context.Context, d *models.Definition) error

	// AttachTags links tags to a definition. Already linked and unknown tag
	// ids are skipped.
	AttachTags(ctx context.Context, opredID int64, tagIDs []int64) error

	// ReplaceTags makes tagIDs the definition's complete tag set.
	ReplaceTags(ctx context.Context, opredID int64, tagIDs []int64) error

	// ListTags returns the tag ids linked to a definition in ascending order.
	ListTags(ctx context.Context, opredID int64) ([]int64, error)
}

type dictionaryRepository struct{}

// NewDictionaryRepository creates a new DictionaryRepository.
func NewDictionaryRepository() DictionaryRepository {
	return &dictionaryRepository{}
}

var _ DictionaryRepository = (*dictionaryRepository)(nil)

func (r *dictionaryRepository) FindLiveWord(ctx context.Context, wordText string, languageID int64) (*models.Word, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		SELECT id, word_text, length, language_id, is_deleted
		FROM word_v
		WHERE word_text = $1 AND language_id = $2 AND NOT is_deleted
		LIMIT 1`, wordText, languageID)
	return scanWord(row)
}

func (r *dictionaryRepository) GetWord(ctx context.Context, id int64) (*models.Word, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		SELECT id, word_text, length, language_id, is_deleted
		FROM word_v
		WHERE id = $1`, id)
	return scanWord(row)
}

func (r *dictionaryRepository) CreateWord(ctx context.Context, w *models.Word) error {
	w.Length = models.TextLength(w.WordText)

	// The nested transaction is a SAVEPOINT when ctx already carries one.
	err := database.RunInTx(ctx, func(ctx context.Context) error {
		q, err := querier(ctx)
		if err != nil {
			return err
		}
		return q.QueryRow(ctx, `
			INSERT INTO word_v (word_text, length, language_id)
			VALUES ($1, $2, $3)
			RETURNING id`,
			w.WordText, w.Length, w.LanguageID,
		).Scan(&w.ID)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("word %q already exists: %w", w.WordText, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create word: %w", err)
	}
	return nil
}

func (r *dictionaryRepository) RenameWord(ctx context.Context, id int64, wordText string) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE word_v
		SET word_text = $2, length = $3, updated_at = now()
		WHERE id = $1 AND NOT is_deleted`,
		id, wordText, models.TextLength(wordText))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("word %q already exists: %w", wordText, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to rename word: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("word %d: %w", id, apperrors.ErrStaleReference)
	}
	return nil
}

func (r *dictionaryRepository) ListLiveDefinitions(ctx context.Context, wordID int64) ([]*models.Definition, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, word_id, text, length, language_id, difficulty, end_date,
		       is_deleted, created_by_user_id
		FROM opred_v
		WHERE word_id = $1 AND NOT is_deleted
		ORDER BY id`, wordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.Definition
	for rows.Next() {
		var d models.Definition
		if err := rows.Scan(
			&d.ID,
			&d.WordID,
			&d.Text,
			&d.Length,
			&d.LanguageID,
			&d.Difficulty,
			&d.EndDate,
			&d.IsDeleted,
			&d.CreatedByUserID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}
	return defs, nil
}

func (r *dictionaryRepository) CreateDefinition(ctx context.Context, d *models.Definition) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	d.Length = models.TextLength(d.Text)
	err = q.QueryRow(ctx, `
		INSERT INTO opred_v (word_id, text, length, language_id, difficulty, end_date, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		d.WordID, d.Text, d.Length, d.LanguageID, d.Difficulty, d.EndDate, d.CreatedByUserID,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to create definition: %w", err)
	}
	return nil
}

func (r *dictionaryRepository) UpdateDefinition(ctx context.Context, d *models.Definition) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	d.Length = models.TextLength(d.Text)
	tag, err := q.Exec(ctx, `
		UPDATE opred_v
		SET text = $2, length = $3, difficulty = $4, end_date = $5, updated_at = now()
		WHERE id = $1 AND word_id = $6 AND NOT is_deleted`,
		d.ID, d.Text, d.Length, d.Difficulty, d.EndDate, d.WordID)
	if err != nil {
		return fmt.Errorf("failed to update definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("definition %d of word %d: %w", d.ID, d.WordID, apperrors.ErrStaleReference)
	}
	return nil
}

func (r *dictionaryRepository) AttachTags(ctx context.Context, opredID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	q, err := querier(ctx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO opred_tags (opred_id, tag_id)
		SELECT $1, t.id FROM tags t WHERE t.id = ANY($2)
		ON CONFLICT DO NOTHING`, opredID, tagIDs)
	if err != nil {
		return fmt.Errorf("failed to attach tags: %w", err)
	}
	return nil
}

func (r *dictionaryRepository) ReplaceTags(ctx context.Context, opredID int64, tagIDs []int64) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if _, err := q.Exec(ctx, `DELETE FROM opred_tags WHERE opred_id = $1`, opredID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	return r.AttachTags(ctx, opredID, tagIDs)
}

func (r *dictionaryRepository) ListTags(ctx context.Context, opredID int64) ([]int64, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT tag_id FROM opred_tags WHERE opred_id = $1 ORDER BY tag_id`, opredID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	tags, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tags: %w", err)
	}
	return tags, nil
}

func scanWord(row pgx.Row) (*models.Word, error) {
	var w models.Word
	err := row.Scan(&w.ID, &w.WordText, &w.Length, &w.LanguageID, &w.IsDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan word: %w", err)
	}
	return &w, nil
}
