package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/VallejoLeonardo/alumnosb/types"
)

// MessageRepository handles persistence for messages.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert stores a new message and returns it with the assigned id and
// server-side timestamp.
func (r *MessageRepository) Insert(ctx context.Context, message types.Message) (types.Message, error) {
	message.SentAt = time.Now()
	message.Read = false

	const query = `
		INSERT INTO messages (sender_matricula, recipient_matricula, content, sent_at, read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		message.SenderMatricula,
		message.RecipientMatricula,
		message.Content,
		message.SentAt,
	).Scan(&message.ID); err != nil {
		return types.Message{}, translateError(err)
	}
	return message, nil
}

// Conversation returns every message exchanged between the two students in
// either direction, oldest first.
func (r *MessageRepository) Conversation(ctx context.Context, matriculaA, matriculaB string) ([]types.Message, error) {
	const query = `
		SELECT m.id, m.sender_matricula, m.recipient_matricula, m.content, m.sent_at, m.read,
			s.first_name || ' ' || s.last_name_paternal,
			d.first_name || ' ' || d.last_name_paternal
		FROM messages m
		JOIN students s ON m.sender_matricula = s.matricula
		JOIN students d ON m.recipient_matricula = d.matricula
		WHERE (m.sender_matricula = $1 AND m.recipient_matricula = $2)
			OR (m.sender_matricula = $2 AND m.recipient_matricula = $1)
		ORDER BY m.sent_at ASC, m.id ASC`
	rows, err := r.db.QueryContext(ctx, query, matriculaA, matriculaB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// Inbox returns one page of messages received by the student, newest first,
// plus the total received count.
func (r *MessageRepository) Inbox(ctx context.Context, matricula string, offset, limit int) ([]types.Message, int, error) {
	const countQuery = `SELECT COUNT(1) FROM messages WHERE recipient_matricula = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, matricula).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT m.id, m.sender_matricula, m.recipient_matricula, m.content, m.sent_at, m.read,
			s.first_name || ' ' || s.last_name_paternal,
			d.first_name || ' ' || d.last_name_paternal
		FROM messages m
		JOIN students s ON m.sender_matricula = s.matricula
		JOIN students d ON m.recipient_matricula = d.matricula
		WHERE m.recipient_matricula = $1
		ORDER BY m.sent_at DESC, m.id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, matricula, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Sent returns one page of messages sent by the student, newest first, plus
// the total sent count.
func (r *MessageRepository) Sent(ctx context.Context, matricula string, offset, limit int) ([]types.Message, int, error) {
	const countQuery = `SELECT COUNT(1) FROM messages WHERE sender_matricula = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, matricula).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT m.id, m.sender_matricula, m.recipient_matricula, m.content, m.sent_at, m.read,
			s.first_name || ' ' || s.last_name_paternal,
			d.first_name || ' ' || d.last_name_paternal
		FROM messages m
		JOIN students s ON m.sender_matricula = s.matricula
		JOIN students d ON m.recipient_matricula = d.matricula
		WHERE m.sender_matricula = $1
		ORDER BY m.sent_at DESC, m.id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, matricula, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Delete removes the message only when the caller is its sender. The sender
// guard lives in the statement so ownership and existence are indistinguishable.
func (r *MessageRepository) Delete(ctx context.Context, id int64, senderMatricula string) error {
	const query = `DELETE FROM messages WHERE id = $1 AND sender_matricula = $2`
	result, err := r.db.ExecContext(ctx, query, id, senderMatricula)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead flips the read flag only when the caller is the recipient.
func (r *MessageRepository) MarkRead(ctx context.Context, id int64, recipientMatricula string) error {
	const query = `UPDATE messages SET read = TRUE WHERE id = $1 AND recipient_matricula = $2`
	result, err := r.db.ExecContext(ctx, query, id, recipientMatricula)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]types.Message, error) {
	messages := make([]types.Message, 0)
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(
			&m.ID,
			&m.SenderMatricula,
			&m.RecipientMatricula,
			&m.Content,
			&m.SentAt,
			&m.Read,
			&m.SenderName,
			&m.RecipientName,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
