package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/audit"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/database"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/repositories"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/retry"
)

// DefaultPageSize bounds ListPending when no page size is configured.
const DefaultPageSize = 100

// SubmitRequest stages a new envelope.
type SubmitRequest struct {
	WordText string `json:"word_text"`
	// Language is a language code such as "ru".
	Language     string              `json:"language"`
	TargetWordID *int64              `json:"target_word_id,string,omitempty"`
	Note         models.Note         `json:"note"`
	Descriptions []SubmitDescription `json:"descriptions"`
}

// SubmitDescription is one candidate definition of a SubmitRequest.
type SubmitDescription struct {
	Description string      `json:"description"`
	Difficulty  *int        `json:"difficulty,omitempty"`
	EndDate     *time.Time  `json:"end_date,omitempty"`
	Note        models.Note `json:"note"`
}

// RetentionTrigger starts a best-effort retention sweep. *RetentionSweeper satisfies it.
type RetentionTrigger interface {
	TriggerAsync()
}

// ModerationService implements the pending submission workflow: staging,
// editing, approval into the live dictionary and rejection.
type ModerationService interface {
	// ListPending returns PENDING envelopes visible to the caller, newest first.
	// limit is capped at the configured page size; zero means the page size.
	ListPending(ctx context.Context, limit int) ([]*models.PendingWord, error)

	// CountPending returns envelope counts by status visible to the caller.
	CountPending(ctx context.Context) (map[string]int, error)

	// Submit stages a new envelope attributed to the caller.
	Submit(ctx context.Context, req *SubmitRequest) (*models.PendingWord, error)

	// Edit applies flat field edits to a PENDING envelope. Missing, resolved
	// and foreign envelopes are a silent no-op.
	Edit(ctx context.Context, envelopeID int64, fields map[string]string) error

	// Approve promotes a PENDING envelope into the live dictionary in one
	// transaction. Requires ScopeAll. Missing or resolved envelopes are a
	// silent no-op.
	Approve(ctx context.Context, envelopeID int64) error

	// Reject marks a PENDING envelope and all its descriptions REJECTED.
	// Missing, resolved and foreign envelopes are a silent no-op.
	Reject(ctx context.Context, envelopeID int64) error
}

// ModerationDeps are the collaborators of the moderation service.
type ModerationDeps struct {
	Pending     repositories.PendingWordRepository
	Dictionary  repositories.DictionaryRepository
	Languages   repositories.LanguageRepository
	Scopes      AccessScopeResolver
	Tx          database.Transactor
	Sweeper     RetentionTrigger
	Invalidator ViewInvalidator
	Auditor     *audit.ModerationAuditor
	// ViewPaths are the locale paths invalidated after every mutation.
	ViewPaths []string
	PageSize  int
	// Retry controls re-running the approval transaction after
	// serialization failures and deadlocks. Nil means retry.DefaultConfig.
	Retry *retry.Config
}

type moderationService struct {
	pending     repositories.PendingWordRepository
	dictionary  repositories.DictionaryRepository
	languages   repositories.LanguageRepository
	scopes      AccessScopeResolver
	tx          database.Transactor
	sweeper     RetentionTrigger
	invalidator ViewInvalidator
	auditor     *audit.ModerationAuditor
	viewPaths   []string
	pageSize    int
	retryCfg    *retry.Config
	logger      *zap.Logger
}

// NewModerationService creates a ModerationService.
func NewModerationService(deps ModerationDeps, logger *zap.Logger) ModerationService {
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	retryCfg := deps.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	invalidator := deps.Invalidator
	if invalidator == nil {
		invalidator = NewLoggingViewInvalidator(logger)
	}
	auditor := deps.Auditor
	if auditor == nil {
		auditor = audit.NewModerationAuditor(logger)
	}

	return &moderationService{
		pending:     deps.Pending,
		dictionary:  deps.Dictionary,
		languages:   deps.Languages,
		scopes:      deps.Scopes,
		tx:          deps.Tx,
		sweeper:     deps.Sweeper,
		invalidator: invalidator,
		auditor:     auditor,
		viewPaths:   deps.ViewPaths,
		pageSize:    pageSize,
		retryCfg:    retryCfg,
		logger:      logger.Named("moderation"),
	}
}

var _ ModerationService = (*moderationService)(nil)

func (s *moderationService) ListPending(ctx context.Context, limit int) ([]*models.PendingWord, error) {
	access, err := s.scopes.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	filter := access.Filter()
	filter.Status = models.PendingStatusPending
	filter.Limit = limit

	envelopes, err := s.pending.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending words: %w", err)
	}
	return envelopes, nil
}

func (s *moderationService) CountPending(ctx context.Context) (map[string]int, error) {
	access, err := s.scopes.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := s.pending.CountByStatus(ctx, access.Filter())
	if err != nil {
		return nil, fmt.Errorf("failed to count pending words: %w", err)
	}
	return counts, nil
}

func (s *moderationService) Submit(ctx context.Context, req *SubmitRequest) (*models.PendingWord, error) {
	access, err := s.scopes.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	wordText := strings.TrimSpace(req.WordText)
	if wordText == "" {
		return nil, fmt.Errorf("word text is required: %w", apperrors.ErrInvalidInput)
	}
	if len(req.Descriptions) == 0 && req.TargetWordID == nil {
		return nil, fmt.Errorf("a new word needs at least one description: %w", apperrors.ErrInvalidInput)
	}

	lang, err := s.languages.GetByCode(ctx, req.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve language: %w", err)
	}
	if lang == nil {
		return nil, fmt.Errorf("unknown language %q: %w", req.Language, apperrors.ErrInvalidInput)
	}

	note := req.Note
	if note.Intent == nil {
		note.Intent = models.NewWordSubmission{}
	}
	note.CreatedBy = access.ActorLabel
	note.CreatedByID = access.ActorID

	pw := &models.PendingWord{
		WordText:        wordText,
		LanguageID:      lang.ID,
		Status:          models.PendingStatusPending,
		Note:            note,
		TargetWordID:    req.TargetWordID,
		CreatedByUserID: access.ActorID,
	}

	for i, rd := range req.Descriptions {
		text := strings.TrimSpace(rd.Description)
		if text == "" {
			return nil, fmt.Errorf("description %d is empty: %w", i, apperrors.ErrInvalidInput)
		}
		difficulty := models.DefaultDifficulty
		if rd.Difficulty != nil {
			if *rd.Difficulty < 0 {
				return nil, fmt.Errorf("description %d has negative difficulty: %w", i, apperrors.ErrInvalidInput)
			}
			difficulty = *rd.Difficulty
		}
		dnote := rd.Note
		if dnote.Intent == nil {
			dnote.Intent = models.NewWordSubmission{}
		}
		pw.Descriptions = append(pw.Descriptions, &models.PendingDescription{
			Description:     text,
			Difficulty:      difficulty,
			EndDate:         rd.EndDate,
			Note:            dnote,
			Status:          models.PendingStatusPending,
			LanguageID:      lang.ID,
			CreatedByUserID: access.ActorID,
		})
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.pending.Create(ctx, pw)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit pending word: %w", err)
	}

	s.invalidator.Invalidate(ctx, s.viewPaths)
	s.auditor.LogSubmitted(ctx, pw.ID, len(pw.Descriptions))
	return pw, nil
}

func (s *moderationService) Edit(ctx context.Context, envelopeID int64, fields map[string]string) error {
	access, err := s.scopes.Resolve(ctx)
	if err != nil {
		return err
	}

	edit, err := models.ParsePendingEdit(fields)
	if err != nil {
		return err
	}

	pw, ok, err := s.loadMutable(ctx, envelopeID, access, "edit")
	if err != nil || !ok {
		return err
	}

	var touched []string

	if edit.LanguageCode != nil && pw.TargetWordID == nil {
		lang, err := s.languages.GetByCode(ctx, *edit.LanguageCode)
		if err != nil {
			return fmt.Errorf("failed to resolve language: %w", err)
		}
		switch {
		case lang == nil:
			s.logger.Debug("Ignoring unknown language in edit",
				zap.Int64("envelope_id", envelopeID),
				zap.String("language", *edit.LanguageCode))
		case lang.ID != pw.LanguageID:
			updated, err := s.pending.UpdateLanguage(ctx, pw.ID, lang.ID, access.ActorID)
			if err != nil {
				return err
			}
			if updated {
				touched = append(touched, models.EditFieldLanguage)
			}
		}
	}

	if edit.WordText != nil && *edit.WordText != pw.WordText {
		updated, err := s.pending.UpdateWord(ctx, pw.ID, *edit.WordText, access.ActorID)
		if err != nil {
			return err
		}
		if updated {
			touched = append(touched, models.EditFieldWord)
		}
	}

	for _, id := range edit.DescriptionIDs() {
		d := pw.DescriptionByID(id)
		if d == nil {
			continue
		}
		changes := edit.Descriptions[id]
		if changes.Text != nil {
			d.Description = *changes.Text
		}
		if changes.Difficulty != nil {
			d.Difficulty = *changes.Difficulty
		}
		if changes.EndDateSet {
			d.EndDate = changes.EndDate
		}
		if changes.TagsSet {
			d.Note = d.Note.WithTags(changes.Tags)
		}

		updated, err := s.pending.UpdateDescription(ctx, pw.ID, d, access.ActorID)
		if err != nil {
			return err
		}
		if updated {
			touched = append(touched, models.EditFieldDescription+"_"+strconv.FormatInt(id, 10))
		}
	}

	if len(edit.DeleteIDs) > 0 {
		deleted, err := s.pending.DeleteDescriptions(ctx, pw.ID, edit.DeleteIDs)
		if err != nil {
			return err
		}
		if deleted > 0 {
			touched = append(touched, models.EditFieldDeleteIDs)
		}
	}

	if len(touched) == 0 {
		return nil
	}

	if access.ActorID != nil {
		if err := s.pending.Touch(ctx, pw.ID, access.ActorID); err != nil {
			return err
		}
	}

	s.invalidator.Invalidate(ctx, s.viewPaths)
	s.auditor.LogEdited(ctx, pw.ID, touched)
	return nil
}

func (s *moderationService) Approve(ctx context.Context, envelopeID int64) error {
	access, err := s.scopes.Resolve(ctx)
	if err != nil {
		return err
	}
	if !access.CanApprove() {
		return fmt.Errorf("approval requires global moderation scope: %w", apperrors.ErrForbidden)
	}

	var details *audit.ApprovalDetails
	err = retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		details = nil
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			details, err = s.promote(ctx, envelopeID, access)
			return err
		})
	})
	if err != nil {
		s.logger.Error("Approval failed",
			zap.Int64("envelope_id", envelopeID),
			zap.String("actor", access.ActorLabel),
			zap.Error(err))
		return fmt.Errorf("failed to approve pending word %d: %w", envelopeID, err)
	}

	if details == nil {
		return nil
	}

	s.afterResolve(ctx)
	s.auditor.LogApproved(ctx, envelopeID, *details)
	return nil
}

// promote runs inside the approval transaction. A nil result means the
// envelope was missing or already resolved.
func (s *moderationService) promote(ctx context.Context, envelopeID int64, access *Access) (*audit.ApprovalDetails, error) {
	pw, err := s.pending.GetForUpdate(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	if pw == nil || !pw.IsPending() {
		s.logger.Debug("Approve skipped: envelope missing or resolved",
			zap.Int64("envelope_id", envelopeID),
			zap.String("actor", access.ActorLabel))
		return nil, nil
	}

	creator := envelopeCreator(pw, access)

	wordID, err := s.resolveWord(ctx, pw)
	if err != nil {
		return nil, err
	}
	details := &audit.ApprovalDetails{WordID: wordID}

	if pw.IsRename() {
		if err := s.dictionary.RenameWord(ctx, wordID, pw.WordText); err != nil {
			return nil, err
		}
		details.Renamed = true
	} else {
		if err := s.promoteDescriptions(ctx, pw, wordID, creator, details); err != nil {
			return nil, err
		}
	}

	if err := s.pending.MarkApproved(ctx, pw.ID, wordID, access.ActorID); err != nil {
		return nil, err
	}
	return details, nil
}

// resolveWord returns the live word the envelope promotes into, creating it
// when needed. A concurrent approval that created the same word first is
// absorbed by re-fetching its row.
func (s *moderationService) resolveWord(ctx context.Context, pw *models.PendingWord) (int64, error) {
	if pw.TargetWordID != nil {
		return *pw.TargetWordID, nil
	}

	existing, err := s.dictionary.FindLiveWord(ctx, pw.WordText, pw.LanguageID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	word := &models.Word{WordText: pw.WordText, LanguageID: pw.LanguageID}
	err = s.dictionary.CreateWord(ctx, word)
	if err == nil {
		return word.ID, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return 0, err
	}

	s.logger.Debug("Word created concurrently, re-fetching",
		zap.Int64("envelope_id", pw.ID),
		zap.String("word", pw.WordText))
	existing, err = s.dictionary.FindLiveWord(ctx, pw.WordText, pw.LanguageID)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, fmt.Errorf("word %q conflicted but could not be re-fetched", pw.WordText)
	}
	return existing.ID, nil
}

func (s *moderationService) promoteDescriptions(ctx context.Context, pw *models.PendingWord, wordID int64, creator *int64, details *audit.ApprovalDetails) error {
	defs, err := s.dictionary.ListLiveDefinitions(ctx, wordID)
	if err != nil {
		return err
	}
	idx := NewDefinitionIndex(defs)

	for _, d := range pw.Descriptions {
		text := strings.TrimSpace(d.Description)
		decision := DecidePromotion(d, idx)

		var opredID int64
		switch decision.Action {
		case ActionUpdateExisting:
			def := &models.Definition{
				ID:         decision.DefinitionID,
				WordID:     wordID,
				Text:       text,
				Difficulty: effectiveDifficulty(d),
				EndDate:    d.EndDate,
			}
			if err := s.dictionary.UpdateDefinition(ctx, def); err != nil {
				if errors.Is(err, apperrors.ErrStaleReference) {
					s.logger.Warn("Edit target is not a live definition of the resolved word",
						zap.Int64("envelope_id", pw.ID),
						zap.Int64("word_id", wordID),
						zap.Int64("opred_id", def.ID))
				}
				return err
			}
			if err := s.dictionary.ReplaceTags(ctx, def.ID, d.Note.Tags); err != nil {
				return err
			}
			idx.Add(text, def.ID)
			opredID = def.ID
			details.UpdatedDefinitions = append(details.UpdatedDefinitions, opredID)

		case ActionMergeInto:
			opredID = decision.DefinitionID
			if err := s.dictionary.AttachTags(ctx, opredID, d.Note.Tags); err != nil {
				return err
			}
			details.MergedDefinitions = append(details.MergedDefinitions, opredID)

		case ActionCreateNew:
			languageID := d.LanguageID
			if languageID == 0 {
				languageID = pw.LanguageID
			}
			def := &models.Definition{
				WordID:          wordID,
				Text:            text,
				LanguageID:      languageID,
				Difficulty:      effectiveDifficulty(d),
				EndDate:         d.EndDate,
				CreatedByUserID: descriptionCreator(d, creator),
			}
			if err := s.dictionary.CreateDefinition(ctx, def); err != nil {
				return err
			}
			idx.Add(text, def.ID)
			if err := s.dictionary.AttachTags(ctx, def.ID, d.Note.Tags); err != nil {
				return err
			}
			opredID = def.ID
			details.CreatedDefinitions = append(details.CreatedDefinitions, opredID)
		}

		if err := s.pending.MarkDescriptionApproved(ctx, d.ID, opredID); err != nil {
			return err
		}
	}
	return nil
}

func (s *moderationService) Reject(ctx context.Context, envelopeID int64) error {
	access, err := s.scopes.Resolve(ctx)
	if err != nil {
		return err
	}

	var rejected bool
	var descriptions int64
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		rejected = false
		pw, ok, err := s.loadMutable(ctx, envelopeID, access, "reject")
		if err != nil || !ok {
			return err
		}
		descriptions, err = s.pending.MarkRejected(ctx, pw.ID, access.ActorID)
		if err != nil {
			return err
		}
		rejected = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reject pending word %d: %w", envelopeID, err)
	}

	if !rejected {
		return nil
	}

	s.afterResolve(ctx)
	s.auditor.LogRejected(ctx, envelopeID, descriptions)
	return nil
}

// loadMutable loads an envelope the caller may still change. ok is false,
// with a nil error, when the envelope is missing, resolved or not owned.
func (s *moderationService) loadMutable(ctx context.Context, envelopeID int64, access *Access, op string) (*models.PendingWord, bool, error) {
	pw, err := s.pending.GetByID(ctx, envelopeID)
	if err != nil {
		return nil, false, err
	}

	var reason string
	switch {
	case pw == nil:
		reason = "missing"
	case !pw.IsPending():
		reason = "resolved"
	case !access.Owns(pw):
		reason = "not owned"
	default:
		return pw, true, nil
	}

	s.logger.Debug("Pending word operation skipped",
		zap.String("op", op),
		zap.String("reason", reason),
		zap.Int64("envelope_id", envelopeID),
		zap.String("actor", access.ActorLabel))
	return nil, false, nil
}

func (s *moderationService) afterResolve(ctx context.Context) {
	if s.sweeper != nil {
		s.sweeper.TriggerAsync()
	}
	s.invalidator.Invalidate(ctx, s.viewPaths)
}

// envelopeCreator picks the user credited for new live rows: the envelope
// creator column, then "createdById" from the note, then the approver.
func envelopeCreator(pw *models.PendingWord, access *Access) *int64 {
	if pw.CreatedByUserID != nil {
		return pw.CreatedByUserID
	}
	if pw.Note.CreatedByID != nil {
		return pw.Note.CreatedByID
	}
	return access.ActorID
}

func descriptionCreator(d *models.PendingDescription, fallback *int64) *int64 {
	if d.CreatedByUserID != nil {
		return d.CreatedByUserID
	}
	if d.Note.CreatedByID != nil {
		return d.Note.CreatedByID
	}
	return fallback
}

// effectiveDifficulty lets a note difficulty override the column value.
func effectiveDifficulty(d *models.PendingDescription) int {
	if d.Note.Difficulty != nil {
		return *d.Note.Difficulty
	}
	return d.Difficulty
}
