package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
)

// LanguageRepository resolves dictionary languages.
type LanguageRepository interface {
	// GetByCode returns the language with the given code (case-insensitive),
	// or nil if none exists.
	GetByCode(ctx context.Context, code string) (*models.Language, error)
}

type languageRepository struct{}

// NewLanguageRepository creates a new LanguageRepository.
func NewLanguageRepository() LanguageRepository {
	return &languageRepository{}
}

var _ LanguageRepository = (*languageRepository)(nil)

func (r *languageRepository) GetByCode(ctx context.Context, code string) (*models.Language, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	var lang models.Language
	err = q.QueryRow(ctx, `
		SELECT id, code, name FROM languages WHERE lower(code) = $1`,
		strings.ToLower(strings.TrimSpace(code)),
	).Scan(&lang.ID, &lang.Code, &lang.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get language: %w", err)
	}
	return &lang, nil
}
