package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/database"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
)

// PendingWordFilter narrows List and CountByStatus.
type PendingWordFilter struct {
	// Status restricts to one status. Empty means any status.
	Status string
	// Owned restricts to envelopes created by the owner identified by
	// OwnerUserID (created_by_user_id) or OwnerLabel (note "createdBy").
	Owned       bool
	OwnerUserID *int64
	OwnerLabel  string
	// Limit caps the number of envelopes returned. Zero means no cap.
	Limit int
}

// PendingWordRepository provides data access for pending envelopes and their descriptions.
type PendingWordRepository interface {
	// Create inserts an envelope and its descriptions, filling in generated ids.
	Create(ctx context.Context, pw *models.PendingWord) error

	// List returns envelopes with their descriptions, newest first.
	List(ctx context.Context, filter PendingWordFilter) ([]*models.PendingWord, error)

	// GetByID returns an envelope with its descriptions, or nil if it does not exist.
	GetByID(ctx context.Context, id int64) (*models.PendingWord, error)

	// GetForUpdate is GetByID with the envelope row locked until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*models.PendingWord, error)

	// CountByStatus returns envelope counts grouped by status.
	CountByStatus(ctx context.Context, filter PendingWordFilter) (map[string]int, error)

	// The edit methods below only change envelopes that are still PENDING;
	// a concurrently resolved envelope is left untouched.

	// UpdateWord changes the candidate word text and its length. Returns
	// false when the envelope is missing or resolved.
	UpdateWord(ctx context.Context, id int64, wordText string, updatedBy *int64) (bool, error)

	// UpdateLanguage moves the envelope and every child description to
	// languageID. Returns false when the envelope is missing or resolved.
	UpdateLanguage(ctx context.Context, id, languageID int64, updatedBy *int64) (bool, error)

	// UpdateDescription persists the editable fields of a description that
	// belongs to envelopeID. Returns false when no such row exists.
	UpdateDescription(ctx context.Context, envelopeID int64, d *models.PendingDescription, updatedBy *int64) (bool, error)

	// DeleteDescriptions removes the given descriptions of envelopeID.
	// Ids belonging to other envelopes are ignored.
	DeleteDescriptions(ctx context.Context, envelopeID int64, ids []int64) (int64, error)

	// Touch stamps the envelope as updated by the given user.
	Touch(ctx context.Context, id int64, updatedBy *int64) error

	// MarkApproved resolves a PENDING envelope as APPROVED against targetWordID.
	MarkApproved(ctx context.Context, id, targetWordID int64, reviewedBy *int64) error

	// MarkDescriptionApproved resolves one description against a live definition.
	MarkDescriptionApproved(ctx context.Context, descriptionID, opredID int64) error

	// MarkRejected resolves a PENDING envelope and all its descriptions as
	// REJECTED. Returns the number of descriptions touched.
	MarkRejected(ctx context.Context, id int64, reviewedBy *int64) (int64, error)

	// PurgeResolved hard-deletes up to limit APPROVED/REJECTED envelopes
	// created before cutoff that have no PENDING description left.
	PurgeResolved(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type pendingWordRepository struct{}

// NewPendingWordRepository creates a new PendingWordRepository.
func NewPendingWordRepository() PendingWordRepository {
	return &pendingWordRepository{}
}

var _ PendingWordRepository = (*pendingWordRepository)(nil)

const pendingWordColumns = `
	id, word_text, length, language_id, status, note, target_word_id,
	created_by_user_id, updated_by_user_id, reviewed_by_user_id, reviewed_at, created_at`

const pendingDescriptionColumns = `
	id, pending_word_id, description, difficulty, end_date, note, status,
	approved_opred_id, language_id, created_by_user_id, updated_by_user_id, created_at`

func (r *pendingWordRepository) Create(ctx context.Context, pw *models.PendingWord) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if pw.Status == "" {
		pw.Status = models.PendingStatusPending
	}
	pw.Length = models.TextLength(pw.WordText)

	err = q.QueryRow(ctx, `
		INSERT INTO pending_words (
			word_text, length, language_id, status, note, target_word_id,
			created_by_user_id, updated_by_user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at`,
		pw.WordText,
		pw.Length,
		pw.LanguageID,
		pw.Status,
		nullableNote(pw.Note),
		pw.TargetWordID,
		pw.CreatedByUserID,
	).Scan(&pw.ID, &pw.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pending word: %w", err)
	}

	if len(pw.Descriptions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO pending_descriptions (
			pending_word_id, description, difficulty, end_date, note, status,
			language_id, created_by_user_id, updated_by_user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, created_at`

	for _, d := range pw.Descriptions {
		d.PendingWordID = pw.ID
		if d.Status == "" {
			d.Status = models.PendingStatusPending
		}
		if d.LanguageID == 0 {
			d.LanguageID = pw.LanguageID
		}
		batch.Queue(query,
			d.PendingWordID,
			d.Description,
			d.Difficulty,
			d.EndDate,
			nullableNote(d.Note),
			d.Status,
			d.LanguageID,
			d.CreatedByUserID,
		)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for i, d := range pw.Descriptions {
		if err := results.QueryRow().Scan(&d.ID, &d.CreatedAt); err != nil {
			return fmt.Errorf("failed to create pending description %d: %w", i, err)
		}
	}

	return nil
}

func (r *pendingWordRepository) List(ctx context.Context, filter PendingWordFilter) ([]*models.PendingWord, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	where, args := filter.where()
	query := `SELECT ` + pendingWordColumns + `
		FROM pending_words
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending words: %w", err)
	}
	envelopes, err := scanPendingWords(rows)
	if err != nil {
		return nil, err
	}

	if err := attachDescriptions(ctx, q, envelopes); err != nil {
		return nil, err
	}
	return envelopes, nil
}

func (r *pendingWordRepository) GetByID(ctx context.Context, id int64) (*models.PendingWord, error) {
	return r.get(ctx, id, false)
}

func (r *pendingWordRepository) GetForUpdate(ctx context.Context, id int64) (*models.PendingWord, error) {
	return r.get(ctx, id, true)
}

func (r *pendingWordRepository) get(ctx context.Context, id int64, lock bool) (*models.PendingWord, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + pendingWordColumns + ` FROM pending_words WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	pw, err := scanPendingWord(q.QueryRow(ctx, query, id))
	if err != nil || pw == nil {
		return nil, err
	}

	if err := attachDescriptions(ctx, q, []*models.PendingWord{pw}); err != nil {
		return nil, err
	}
	return pw, nil
}

func (r *pendingWordRepository) CountByStatus(ctx context.Context, filter PendingWordFilter) (map[string]int, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	filter.Status = ""
	where, args := filter.where()
	rows, err := q.Query(ctx, `
		SELECT status, COUNT(*)
		FROM pending_words
		WHERE `+where+`
		GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending words: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		models.PendingStatusPending:  0,
		models.PendingStatusApproved: 0,
		models.PendingStatusRejected: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

func (r *pendingWordRepository) UpdateWord(ctx context.Context, id int64, wordText string, updatedBy *int64) (bool, error) {
	q, err := querier(ctx)
	if err != nil {
		return false, err
	}

	tag, err := q.Exec(ctx, `
		UPDATE pending_words
		SET word_text = $2, length = $3,
		    updated_by_user_id = COALESCE($4, updated_by_user_id), updated_at = now()
		WHERE id = $1 AND status = $5`,
		id, wordText, models.TextLength(wordText), updatedBy, models.PendingStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update pending word text: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pendingWordRepository) UpdateLanguage(ctx context.Context, id, languageID int64, updatedBy *int64) (bool, error) {
	q, err := querier(ctx)
	if err != nil {
		return false, err
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE pending_words
		SET language_id = $2,
		    updated_by_user_id = COALESCE($3, updated_by_user_id), updated_at = now()
		WHERE id = $1 AND status = $4`, id, languageID, updatedBy, models.PendingStatusPending)
	batch.Queue(`
		UPDATE pending_descriptions
		SET language_id = $2,
		    updated_by_user_id = COALESCE($3, updated_by_user_id), updated_at = now()
		WHERE pending_word_id = $1 AND `+envelopeStillPending(4), id, languageID, updatedBy, models.PendingStatusPending)

	results := q.SendBatch(ctx, batch)
	tag, err := results.Exec()
	if err != nil {
		results.Close()
		return false, fmt.Errorf("failed to update pending word language: %w", err)
	}
	if err := results.Close(); err != nil {
		return false, fmt.Errorf("failed to update pending description language: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pendingWordRepository) UpdateDescription(ctx context.Context, envelopeID int64, d *models.PendingDescription, updatedBy *int64) (bool, error) {
	q, err := querier(ctx)
	if err != nil {
		return false, err
	}

	tag, err := q.Exec(ctx, `
		UPDATE pending_descriptions
		SET description = $3, difficulty = $4, end_date = $5, note = $6,
		    updated_by_user_id = COALESCE($7, updated_by_user_id), updated_at = now()
		WHERE id = $1 AND pending_word_id = $2 AND `+envelopeStillPending(8),
		d.ID, envelopeID, d.Description, d.Difficulty, d.EndDate, nullableNote(d.Note), updatedBy,
		models.PendingStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update pending description: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pendingWordRepository) DeleteDescriptions(ctx context.Context, envelopeID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	q, err := querier(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `
		DELETE FROM pending_descriptions
		WHERE pending_word_id = $1 AND id = ANY($2) AND `+envelopeStillPending(3),
		envelopeID, ids, models.PendingStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending descriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pendingWordRepository) Touch(ctx context.Context, id int64, updatedBy *int64) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		UPDATE pending_words
		SET updated_by_user_id = COALESCE($2, updated_by_user_id), updated_at = now()
		WHERE id = $1 AND status = $3`, id, updatedBy, models.PendingStatusPending)
	if err != nil {
		return fmt.Errorf("failed to touch pending word: %w", err)
	}
	return nil
}

func (r *pendingWordRepository) MarkApproved(ctx context.Context, id, targetWordID int64, reviewedBy *int64) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE pending_words
		SET status = $2, target_word_id = $3, reviewed_by_user_id = $4,
		    reviewed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $5`,
		id, models.PendingStatusApproved, targetWordID, reviewedBy, models.PendingStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark pending word approved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending word %d is no longer pending", id)
	}
	return nil
}

func (r *pendingWordRepository) MarkDescriptionApproved(ctx context.Context, descriptionID, opredID int64) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		UPDATE pending_descriptions
		SET status = $2, approved_opred_id = $3, updated_at = now()
		WHERE id = $1`,
		descriptionID, models.PendingStatusApproved, opredID)
	if err != nil {
		return fmt.Errorf("failed to mark pending description approved: %w", err)
	}
	return nil
}

func (r *pendingWordRepository) MarkRejected(ctx context.Context, id int64, reviewedBy *int64) (int64, error) {
	q, err := querier(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `
		UPDATE pending_words
		SET status = $2, reviewed_by_user_id = $3, reviewed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, models.PendingStatusRejected, reviewedBy, models.PendingStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to mark pending word rejected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, nil
	}

	tag, err = q.Exec(ctx, `
		UPDATE pending_descriptions
		SET status = $2, updated_at = now()
		WHERE pending_word_id = $1`,
		id, models.PendingStatusRejected)
	if err != nil {
		return 0, fmt.Errorf("failed to mark pending descriptions rejected: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pendingWordRepository) PurgeResolved(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	q, err := querier(ctx)
	if err != nil {
		return 0, err
	}

	// Descriptions go with their envelope through ON DELETE CASCADE.
	tag, err := q.Exec(ctx, `
		DELETE FROM pending_words
		WHERE id IN (
			SELECT pw.id
			FROM pending_words pw
			WHERE pw.status IN ($1, $2)
			  AND pw.created_at < $3
			  AND NOT EXISTS (
				SELECT 1 FROM pending_descriptions pd
				WHERE pd.pending_word_id = pw.id AND pd.status = $4
			  )
			ORDER BY pw.created_at
			LIMIT $5
		)`,
		models.PendingStatusApproved, models.PendingStatusRejected, cutoff,
		models.PendingStatusPending, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to purge resolved pending words: %w", err)
	}
	return tag.RowsAffected(), nil
}

// where renders the filter as a SQL predicate with positional arguments.
func (f PendingWordFilter) where() (string, []any) {
	clause := "TRUE"
	var args []any

	if f.Status != "" {
		args = append(args, f.Status)
		clause += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if f.Owned {
		// The label fallback only applies to notes that parse as a JSON object.
		args = append(args, f.OwnerUserID, f.OwnerLabel)
		clause += fmt.Sprintf(` AND (
			($%d::bigint IS NOT NULL AND created_by_user_id = $%d::bigint)
			OR ($%d::text <> '' AND CASE WHEN note IS JSON OBJECT THEN note::jsonb ->> 'createdBy' END = $%d::text)
		)`, len(args)-1, len(args)-1, len(args), len(args))
	}

	return clause, args
}

// attachDescriptions loads the descriptions of all envelopes in one query.
func attachDescriptions(ctx context.Context, q database.Querier, envelopes []*models.PendingWord) error {
	if len(envelopes) == 0 {
		return nil
	}

	byID := make(map[int64]*models.PendingWord, len(envelopes))
	ids := make([]int64, 0, len(envelopes))
	for _, pw := range envelopes {
		pw.Descriptions = []*models.PendingDescription{}
		byID[pw.ID] = pw
		ids = append(ids, pw.ID)
	}

	rows, err := q.Query(ctx, `SELECT `+pendingDescriptionColumns+`
		FROM pending_descriptions
		WHERE pending_word_id = ANY($1)
		ORDER BY pending_word_id, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load pending descriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanPendingDescription(rows)
		if err != nil {
			return err
		}
		if pw := byID[d.PendingWordID]; pw != nil {
			pw.Descriptions = append(pw.Descriptions, d)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating pending descriptions: %w", err)
	}
	return nil
}

// Helper functions

func scanPendingWords(rows pgx.Rows) ([]*models.PendingWord, error) {
	defer rows.Close()

	envelopes := []*models.PendingWord{}
	for rows.Next() {
		pw, err := scanPendingWordRow(rows)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, pw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending words: %w", err)
	}

	return envelopes, nil
}

func scanPendingWord(row pgx.Row) (*models.PendingWord, error) {
	pw, err := scanPendingWordRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return pw, nil
}

func scanPendingWordRow(row pgx.Row) (*models.PendingWord, error) {
	var pw models.PendingWord
	var note *string

	err := row.Scan(
		&pw.ID,
		&pw.WordText,
		&pw.Length,
		&pw.LanguageID,
		&pw.Status,
		&note,
		&pw.TargetWordID,
		&pw.CreatedByUserID,
		&pw.UpdatedByUserID,
		&pw.ReviewedByUserID,
		&pw.ReviewedAt,
		&pw.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pending word: %w", err)
	}

	pw.Note = parseNullableNote(note)
	return &pw, nil
}

func scanPendingDescription(row pgx.Row) (*models.PendingDescription, error) {
	var d models.PendingDescription
	var note *string

	err := row.Scan(
		&d.ID,
		&d.PendingWordID,
		&d.Description,
		&d.Difficulty,
		&d.EndDate,
		&note,
		&d.Status,
		&d.ApprovedOpredID,
		&d.LanguageID,
		&d.CreatedByUserID,
		&d.UpdatedByUserID,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending description: %w", err)
	}

	d.Note = parseNullableNote(note)
	return &d, nil
}
