package repositories

import (
	"context"
	"fmt"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/database"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
)

// querier returns the connection or transaction carried by ctx.
func querier(ctx context.Context) (database.Querier, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	return q, nil
}

// envelopeStillPending restricts a pending_descriptions statement to rows
// whose envelope has the status bound at placeholder $n.
func envelopeStillPending(n int) string {
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM pending_words pw
		WHERE pw.id = pending_descriptions.pending_word_id AND pw.status = $%d)`, n)
}

// nullableNote encodes a note for the nullable note column.
func nullableNote(n models.Note) *string {
	encoded := n.Encode()
	if encoded == "" {
		return nil
	}
	return &encoded
}

// parseNullableNote decodes the note column. NULL and malformed JSON both
// yield an empty new-word note.
func parseNullableNote(raw *string) models.Note {
	if raw == nil {
		return models.ParseNote("")
	}
	return models.ParseNote(*raw)
}
