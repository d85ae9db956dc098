package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/database"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/repositories"
)

// fakeStore is an in-memory dictionary and moderation store. It implements
// the pending, dictionary, language and permission repositories so service
// tests exercise the real service code without Postgres.
type fakeStore struct {
	mu sync.Mutex

	envelopes map[int64]*models.PendingWord
	words     map[int64]*models.Word
	defs      map[int64]*models.Definition
	defTags   map[int64][]int64
	languages map[string]*models.Language
	grants    map[string]bool
	nextID    int64

	// raceWordCreate makes the next CreateWord behave as if a concurrent
	// approval inserted the same word first.
	raceWordCreate bool
	// serializationFailures is the number of GetForUpdate calls that fail
	// with a serialization error before succeeding.
	serializationFailures int
	// failCreateDefinitionAfter fails CreateDefinition once this many
	// definitions were created by the service. Zero disables it.
	failCreateDefinitionAfter int
	createdDefinitions        int

	purgeCalls []purgeCall
	purgeGate  chan struct{}

	// afterGet runs after every GetByID, outside the lock. Tests use it to
	// resolve an envelope between a read and the writes that follow it.
	afterGet func(id int64)
}

type purgeCall struct {
	cutoff time.Time
	limit  int
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		envelopes: make(map[int64]*models.PendingWord),
		words:     make(map[int64]*models.Word),
		defs:      make(map[int64]*models.Definition),
		defTags:   make(map[int64][]int64),
		languages: map[string]*models.Language{
			"ru": {ID: 1, Code: "ru", Name: "Русский"},
			"uk": {ID: 2, Code: "uk", Name: "Українська"},
		},
		grants: map[string]bool{"ADMIN": true, "MODERATOR": true},
		nextID: 100,
	}
	return s
}

var (
	_ repositories.PendingWordRepository = (*fakeStore)(nil)
	_ repositories.DictionaryRepository  = (*fakeStore)(nil)
	_ repositories.LanguageRepository    = (*fakeStore)(nil)
	_ repositories.PermissionRepository  = (*fakeStore)(nil)
)

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

// Seeding helpers (tests only, no locking needed before the service runs).

func (s *fakeStore) seedWord(text string, langID int64) *models.Word {
	w := &models.Word{ID: s.id(), WordText: text, Length: models.TextLength(text), LanguageID: langID}
	s.words[w.ID] = w
	return w
}

func (s *fakeStore) seedDefinition(wordID int64, text string, tags ...int64) *models.Definition {
	d := &models.Definition{
		ID:         s.id(),
		WordID:     wordID,
		Text:       text,
		Length:     models.TextLength(text),
		LanguageID: s.words[wordID].LanguageID,
		Difficulty: 1,
	}
	s.defs[d.ID] = d
	if len(tags) > 0 {
		s.defTags[d.ID] = append([]int64(nil), tags...)
	}
	return d
}

func (s *fakeStore) seedEnvelope(pw *models.PendingWord) *models.PendingWord {
	if err := s.Create(context.Background(), pw); err != nil {
		panic(err)
	}
	return pw
}

func (s *fakeStore) envelope(id int64) *models.PendingWord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePendingWord(s.envelopes[id])
}

func (s *fakeStore) liveWords(text string) []*models.Word {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Word
	for _, w := range s.words {
		if w.WordText == text && !w.IsDeleted {
			out = append(out, w)
		}
	}
	return out
}

func (s *fakeStore) definitionsOf(wordID int64) []*models.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Definition
	for _, d := range s.defs {
		if d.WordID == wordID && !d.IsDeleted {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) tagsOf(opredID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedInt64s(s.defTags[opredID])
}

// snapshot and restore give the fake transactor rollback semantics.

type fakeSnapshot struct {
	envelopes map[int64]*models.PendingWord
	words     map[int64]*models.Word
	defs      map[int64]*models.Definition
	defTags   map[int64][]int64
	nextID    int64
}

func (s *fakeStore) snapshot() fakeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := fakeSnapshot{
		envelopes: make(map[int64]*models.PendingWord, len(s.envelopes)),
		words:     make(map[int64]*models.Word, len(s.words)),
		defs:      make(map[int64]*models.Definition, len(s.defs)),
		defTags:   make(map[int64][]int64, len(s.defTags)),
		nextID:    s.nextID,
	}
	for id, pw := range s.envelopes {
		snap.envelopes[id] = clonePendingWord(pw)
	}
	for id, w := range s.words {
		c := *w
		snap.words[id] = &c
	}
	for id, d := range s.defs {
		c := *d
		snap.defs[id] = &c
	}
	for id, tags := range s.defTags {
		snap.defTags[id] = append([]int64(nil), tags...)
	}
	return snap
}

func (s *fakeStore) restore(snap fakeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = snap.envelopes
	s.words = snap.words
	s.defs = snap.defs
	s.defTags = snap.defTags
	s.nextID = snap.nextID
}

// fakeTransactor rolls the store back when fn fails.
type fakeTransactor struct {
	store *fakeStore
	calls int
}

var _ database.Transactor = (*fakeTransactor)(nil)

func (t *fakeTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// PendingWordRepository

func (s *fakeStore) Create(_ context.Context, pw *models.PendingWord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pw.ID = s.id()
	if pw.Status == "" {
		pw.Status = models.PendingStatusPending
	}
	pw.Length = models.TextLength(pw.WordText)
	if pw.CreatedAt.IsZero() {
		pw.CreatedAt = time.Unix(pw.ID, 0)
	}
	if pw.Descriptions == nil {
		pw.Descriptions = []*models.PendingDescription{}
	}
	for _, d := range pw.Descriptions {
		d.ID = s.id()
		d.PendingWordID = pw.ID
		if d.Status == "" {
			d.Status = models.PendingStatusPending
		}
		if d.LanguageID == 0 {
			d.LanguageID = pw.LanguageID
		}
	}
	s.envelopes[pw.ID] = clonePendingWord(pw)
	return nil
}

func (s *fakeStore) List(_ context.Context, filter repositories.PendingWordFilter) ([]*models.PendingWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.PendingWord
	for _, pw := range s.envelopes {
		if filter.Status != "" && pw.Status != filter.Status {
			continue
		}
		if filter.Owned && !fakeOwned(pw, filter) {
			continue
		}
		out = append(out, clonePendingWord(pw))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func fakeOwned(pw *models.PendingWord, f repositories.PendingWordFilter) bool {
	if f.OwnerUserID != nil && pw.CreatedByUserID != nil && *pw.CreatedByUserID == *f.OwnerUserID {
		return true
	}
	return f.OwnerLabel != "" && pw.Note.CreatedBy == f.OwnerLabel
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*models.PendingWord, error) {
	s.mu.Lock()
	pw := clonePendingWord(s.envelopes[id])
	hook := s.afterGet
	s.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return pw, nil
}

// pendingEnvelope returns the stored envelope if it is still PENDING,
// matching the status guard of the real edit statements.
func (s *fakeStore) pendingEnvelope(id int64) *models.PendingWord {
	pw := s.envelopes[id]
	if pw == nil || pw.Status != models.PendingStatusPending {
		return nil
	}
	return pw
}

func (s *fakeStore) GetForUpdate(ctx context.Context, id int64) (*models.PendingWord, error) {
	s.mu.Lock()
	if s.serializationFailures > 0 {
		s.serializationFailures--
		s.mu.Unlock()
		return nil, &pgconn.PgError{Code: database.CodeSerializationFailure, Message: "could not serialize access"}
	}
	s.mu.Unlock()
	return s.GetByID(ctx, id)
}

func (s *fakeStore) CountByStatus(_ context.Context, filter repositories.PendingWordFilter) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{
		models.PendingStatusPending:  0,
		models.PendingStatusApproved: 0,
		models.PendingStatusRejected: 0,
	}
	for _, pw := range s.envelopes {
		if filter.Owned && !fakeOwned(pw, filter) {
			continue
		}
		counts[pw.Status]++
	}
	return counts, nil
}

func (s *fakeStore) UpdateWord(_ context.Context, id int64, wordText string, updatedBy *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw := s.pendingEnvelope(id)
	if pw == nil {
		return false, nil
	}
	pw.WordText = wordText
	pw.Length = models.TextLength(wordText)
	stamp(&pw.UpdatedByUserID, updatedBy)
	return true, nil
}

func (s *fakeStore) UpdateLanguage(_ context.Context, id, languageID int64, updatedBy *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw := s.pendingEnvelope(id)
	if pw == nil {
		return false, nil
	}
	pw.LanguageID = languageID
	stamp(&pw.UpdatedByUserID, updatedBy)
	for _, d := range pw.Descriptions {
		d.LanguageID = languageID
		stamp(&d.UpdatedByUserID, updatedBy)
	}
	return true, nil
}

func (s *fakeStore) UpdateDescription(_ context.Context, envelopeID int64, d *models.PendingDescription, updatedBy *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw := s.pendingEnvelope(envelopeID)
	if pw == nil {
		return false, nil
	}
	for i, existing := range pw.Descriptions {
		if existing.ID == d.ID {
			c := *existing
			c.Description = d.Description
			c.Difficulty = d.Difficulty
			c.EndDate = cloneTime(d.EndDate)
			c.Note = d.Note
			stamp(&c.UpdatedByUserID, updatedBy)
			pw.Descriptions[i] = &c
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) DeleteDescriptions(_ context.Context, envelopeID int64, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw := s.pendingEnvelope(envelopeID)
	if pw == nil {
		return 0, nil
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var deleted int64
	kept := pw.Descriptions[:0]
	for _, d := range pw.Descriptions {
		if drop[d.ID] {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	pw.Descriptions = kept
	return deleted, nil
}

func (s *fakeStore) Touch(_ context.Context, id int64, updatedBy *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pw := s.pendingEnvelope(id); pw != nil {
		stamp(&pw.UpdatedByUserID, updatedBy)
	}
	return nil
}

func (s *fakeStore) MarkApproved(_ context.Context, id, targetWordID int64, reviewedBy *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw := s.envelopes[id]
	if pw == nil || pw.Status != models.PendingStatusPending {
		return fmt.Errorf("pending word %d is no longer pending", id)
	}
	pw.Status = models.PendingStatusApproved
	pw.TargetWordID = &targetWordID
	pw.ReviewedByUserID = reviewedBy
	return nil
}

func (s *fakeStore) MarkDescriptionApproved(_ context.Context, descriptionID, opredID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pw := range s.envelopes {
		for _, d := range pw.Descriptions {
			if d.ID == descriptionID {
				d.Status = models.PendingStatusApproved
				id := opredID
				d.ApprovedOpredID = &id
				return nil
			}
		}
	}
	return nil
}

func (s *fakeStore) MarkRejected(_ context.Context, id int64, reviewedBy *int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw := s.envelopes[id]
	if pw == nil || pw.Status != models.PendingStatusPending {
		return 0, nil
	}
	pw.Status = models.PendingStatusRejected
	pw.ReviewedByUserID = reviewedBy
	for _, d := range pw.Descriptions {
		d.Status = models.PendingStatusRejected
	}
	return int64(len(pw.Descriptions)), nil
}

func (s *fakeStore) PurgeResolved(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	s.purgeCalls = append(s.purgeCalls, purgeCall{cutoff: cutoff, limit: limit})
	gate := s.purgeGate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.PendingWord
	for _, pw := range s.envelopes {
		if pw.Status == models.PendingStatusPending || !pw.CreatedAt.Before(cutoff) {
			continue
		}
		pending := false
		for _, d := range pw.Descriptions {
			if d.Status == models.PendingStatusPending {
				pending = true
			}
		}
		if !pending {
			candidates = append(candidates, pw)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, pw := range candidates {
		delete(s.envelopes, pw.ID)
	}
	return int64(len(candidates)), nil
}

// DictionaryRepository

func (s *fakeStore) FindLiveWord(_ context.Context, wordText string, languageID int64) (*models.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.words {
		if w.WordText == wordText && w.LanguageID == languageID && !w.IsDeleted {
			c := *w
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetWord(_ context.Context, id int64) (*models.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.words[id]; w != nil {
		c := *w
		return &c, nil
	}
	return nil, nil
}

func (s *fakeStore) CreateWord(_ context.Context, w *models.Word) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raceWordCreate {
		s.raceWordCreate = false
		winner := &models.Word{ID: s.id(), WordText: w.WordText, Length: models.TextLength(w.WordText), LanguageID: w.LanguageID}
		s.words[winner.ID] = winner
	}
	for _, existing := range s.words {
		if existing.WordText == w.WordText && existing.LanguageID == w.LanguageID && !existing.IsDeleted {
			return fmt.Errorf("word %q already exists: %w", w.WordText, apperrors.ErrConflict)
		}
	}

	w.ID = s.id()
	w.Length = models.TextLength(w.WordText)
	c := *w
	s.words[w.ID] = &c
	return nil
}

func (s *fakeStore) RenameWord(_ context.Context, id int64, wordText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.words[id]
	if w == nil || w.IsDeleted {
		return fmt.Errorf("word %d: %w", id, apperrors.ErrStaleReference)
	}
	w.WordText = wordText
	w.Length = models.TextLength(wordText)
	return nil
}

func (s *fakeStore) ListLiveDefinitions(_ context.Context, wordID int64) ([]*models.Definition, error) {
	var out []*models.Definition
	for _, d := range s.definitionsOf(wordID) {
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (s *fakeStore) CreateDefinition(_ context.Context, d *models.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreateDefinitionAfter > 0 && s.createdDefinitions >= s.failCreateDefinitionAfter {
		return fmt.Errorf("insert definition: connection reset")
	}
	s.createdDefinitions++

	d.ID = s.id()
	d.Length = models.TextLength(d.Text)
	c := *d
	s.defs[d.ID] = &c
	return nil
}

func (s *fakeStore) UpdateDefinition(_ context.Context, d *models.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.defs[d.ID]
	if existing == nil || existing.IsDeleted || existing.WordID != d.WordID {
		return fmt.Errorf("definition %d of word %d: %w", d.ID, d.WordID, apperrors.ErrStaleReference)
	}
	existing.Text = d.Text
	existing.Length = models.TextLength(d.Text)
	existing.Difficulty = d.Difficulty
	existing.EndDate = cloneTime(d.EndDate)
	return nil
}

func (s *fakeStore) AttachTags(_ context.Context, opredID int64, tagIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[int64]bool)
	for _, t := range s.defTags[opredID] {
		existing[t] = true
	}
	for _, t := range tagIDs {
		if !existing[t] {
			existing[t] = true
			s.defTags[opredID] = append(s.defTags[opredID], t)
		}
	}
	return nil
}

func (s *fakeStore) ReplaceTags(ctx context.Context, opredID int64, tagIDs []int64) error {
	s.mu.Lock()
	delete(s.defTags, opredID)
	s.mu.Unlock()
	return s.AttachTags(ctx, opredID, tagIDs)
}

func (s *fakeStore) ListTags(_ context.Context, opredID int64) ([]int64, error) {
	return s.tagsOf(opredID), nil
}

// LanguageRepository

func (s *fakeStore) GetByCode(_ context.Context, code string) (*models.Language, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lang := s.languages[code]; lang != nil {
		c := *lang
		return &c, nil
	}
	return nil, nil
}

// PermissionRepository

func (s *fakeStore) HasPermission(_ context.Context, role, permission string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return permission == DefaultModerationPermission && s.grants[role], nil
}

// fakeTrigger counts sweeps requested after approve/reject.
type fakeTrigger struct {
	calls atomic.Int32
}

func (f *fakeTrigger) TriggerAsync() { f.calls.Add(1) }

// fakeInvalidator records invalidated paths.
type fakeInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), paths...))
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Helpers

func clonePendingWord(pw *models.PendingWord) *models.PendingWord {
	if pw == nil {
		return nil
	}
	c := *pw
	c.TargetWordID = cloneInt64(pw.TargetWordID)
	c.Descriptions = make([]*models.PendingDescription, 0, len(pw.Descriptions))
	for _, d := range pw.Descriptions {
		dc := *d
		dc.EndDate = cloneTime(d.EndDate)
		dc.ApprovedOpredID = cloneInt64(d.ApprovedOpredID)
		c.Descriptions = append(c.Descriptions, &dc)
	}
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func stamp(dst **int64, by *int64) {
	if by != nil {
		*dst = cloneInt64(by)
	}
}

func sortedInt64s(ids []int64) []int64 {
	out := append([]int64{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
