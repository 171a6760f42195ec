package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

const (
	messageColumns = `id, sender_id, receiver_id, text, seen, created_at`
	threadFilter   = `((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`
	joinedFilter   = `((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))`
)

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.Seen, &msg.CreatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SaveMessage persists a message and its attachments in one transaction.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO messages (sender_id, receiver_id, text, seen, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query, msg.SenderID, msg.ReceiverID, msg.Text, msg.Seen, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	attachmentQuery := `
		INSERT INTO message_attachments (message_id, position, media_key, content_type, size)
		VALUES (?, ?, ?, ?, ?)
	`
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		att.MessageID = id
		att.Position = i
		res, err := tx.ExecContext(ctx, attachmentQuery, id, i, att.Key, att.ContentType, att.Size)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
		if att.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("get attachment id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	msg.ID = id
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	if err := s.loadAttachments(ctx, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListThread returns every message between a and b in creation order.
func (s *SQLiteStore) ListThread(ctx context.Context, a, b int64) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ` + threadFilter + `
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread: %w", err)
	}

	if err := s.loadAttachments(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// loadAttachments fills Attachments for the given messages in position order.
func (s *SQLiteStore) loadAttachments(ctx context.Context, messages []*store.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[int64]*store.Message, len(messages))
	placeholders := make([]string, 0, len(messages))
	args := make([]any, 0, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
		placeholders = append(placeholders, "?")
		args = append(args, msg.ID)
	}

	query := `
		SELECT id, message_id, position, media_key, content_type, size
		FROM message_attachments
		WHERE message_id IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY message_id ASC, position ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var att store.Attachment
		if err := rows.Scan(&att.ID, &att.MessageID, &att.Position, &att.Key, &att.ContentType, &att.Size); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if msg, ok := byID[att.MessageID]; ok {
			msg.Attachments = append(msg.Attachments, att)
		}
	}

	return rows.Err()
}

// MarkThreadSeen marks all messages from senderID to receiverID as seen.
func (s *SQLiteStore) MarkThreadSeen(ctx context.Context, receiverID, senderID int64) (int64, error) {
	query := `
		UPDATE messages
		SET seen = 1
		WHERE receiver_id = ? AND sender_id = ? AND seen = 0
	`
	result, err := s.db.ExecContext(ctx, query, receiverID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark thread seen: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// MarkSeen marks a single message as seen.
func (s *SQLiteStore) MarkSeen(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET seen = 1 WHERE id = ? AND seen = 0`, id)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		// Either already seen or missing.
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query message: %w", err)
		}
	}
	return nil
}

// DeleteMessage removes a message and its attachment records.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteThread removes every message between a and b and returns their attachments.
func (s *SQLiteStore) DeleteThread(ctx context.Context, a, b int64) ([]store.Attachment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		SELECT a.id, a.message_id, a.position, a.media_key, a.content_type, a.size
		FROM message_attachments a
		JOIN messages m ON m.id = a.message_id
		WHERE ` + joinedFilter + `
		ORDER BY a.message_id ASC, a.position ASC
	`
	rows, err := tx.QueryContext(ctx, query, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query thread attachments: %w", err)
	}

	var attachments []store.Attachment
	for rows.Next() {
		var att store.Attachment
		if err := rows.Scan(&att.ID, &att.MessageID, &att.Position, &att.Key, &att.ContentType, &att.Size); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE `+threadFilter, a, b, b, a); err != nil {
		return nil, fmt.Errorf("delete thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return attachments, nil
}

// LastMessage returns the most recent message between a and b.
func (s *SQLiteStore) LastMessage(ctx context.Context, a, b int64) (*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ` + threadFilter + `
		ORDER BY id DESC
		LIMIT 1
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, a, b, b, a))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("last message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query last message: %w", err)
	}

	if err := s.loadAttachments(ctx, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// CountUnseen returns unseen message counts sent to receiverID, keyed by sender.
func (s *SQLiteStore) CountUnseen(ctx context.Context, receiverID int64) (map[int64]int, error) {
	query := `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id = ? AND seen = 0
		GROUP BY sender_id
	`
	rows, err := s.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("count unseen: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var senderID int64
		var n int
		if err := rows.Scan(&senderID, &n); err != nil {
			return nil, fmt.Errorf("scan unseen count: %w", err)
		}
		counts[senderID] = n
	}

	return counts, rows.Err()
}
