package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/adi-253/skillswap/internal/models"
)

const schemaSQL = `
        CREATE TABLE IF NOT EXISTS chat_messages (
            seq BIGSERIAL,
            id UUID PRIMARY KEY,
            swap_request_id UUID NOT NULL,
            sender_id UUID NOT NULL,
            content VARCHAR(1000) NOT NULL,
            sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_read BOOLEAN NOT NULL DEFAULT FALSE
        );
        CREATE INDEX IF NOT EXISTS ix_chat_messages_swap_sent
            ON chat_messages (swap_request_id, sent_at, seq);`

// Postgres stores chat messages in Postgres and reads swap requests and
// users from the tables maintained by the CRUD layer.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewPostgres wraps an open database handle
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the chat_messages table and its ordering index.
func (p *Postgres) EnsureSchema(ctx context.Context) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create chat_messages: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, msg models.Message) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO chat_messages (id, swap_request_id, sender_id, content, sent_at, is_read)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.SentAt, msg.IsRead)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
	}
	return nil
}

func (p *Postgres) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT id, swap_request_id, sender_id, content, sent_at, is_read
        FROM chat_messages
        WHERE swap_request_id = $1
        ORDER BY sent_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages for %s: %w", conversationID, err)
	}
	return messages, nil
}

func (p *Postgres) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	row := p.db.QueryRowContext(ctx, `
        SELECT id, swap_request_id, sender_id, content, sent_at, is_read
        FROM chat_messages
        WHERE swap_request_id = $1
        ORDER BY sent_at DESC, seq DESC
        LIMIT 1`, conversationID)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (p *Postgres) HasUnread(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM chat_messages
            WHERE swap_request_id = $1 AND sender_id <> $2 AND NOT is_read
        )`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check unread messages for %s: %w", conversationID, err)
	}
	return exists, nil
}

func (p *Postgres) MarkRead(ctx context.Context, messageID string) (bool, error) {
	result, err := p.db.ExecContext(ctx, `UPDATE chat_messages SET is_read = TRUE WHERE id = $1`, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to mark message %s read: %w", messageID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (p *Postgres) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
        UPDATE chat_messages SET is_read = TRUE
        WHERE swap_request_id = $1 AND sender_id <> $2 AND NOT is_read`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation %s read: %w", conversationID, err)
	}
	return result.RowsAffected()
}

func (p *Postgres) GetSwap(ctx context.Context, id string) (*models.SwapRequest, error) {
	var swap models.SwapRequest
	err := p.db.QueryRowContext(ctx, `
        SELECT id, requester_id, target_user_id, COALESCE(status, 'N/A'), created_at
        FROM skill_swap_requests
        WHERE id = $1`, id).
		Scan(&swap.ID, &swap.RequesterID, &swap.TargetUserID, &swap.Status, &swap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load swap request %s: %w", id, err)
	}
	return &swap, nil
}

func (p *Postgres) ListAcceptedSwaps(ctx context.Context, userID string) ([]models.SwapRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT id, requester_id, target_user_id, status, created_at
        FROM skill_swap_requests
        WHERE (requester_id = $1 OR target_user_id = $1) AND status = $2
        ORDER BY created_at ASC`, userID, models.SwapStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps for %s: %w", userID, err)
	}
	defer rows.Close()

	var swaps []models.SwapRequest
	for rows.Next() {
		var swap models.SwapRequest
		if err := rows.Scan(&swap.ID, &swap.RequesterID, &swap.TargetUserID, &swap.Status, &swap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan swap request: %w", err)
		}
		swaps = append(swaps, swap)
	}
	return swaps, rows.Err()
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := p.db.QueryRowContext(ctx, `
        SELECT id, name, COALESCE(profile_picture_url, '')
        FROM users
        WHERE id = $1`, id).Scan(&user.ID, &user.Name, &user.ProfilePictureURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (models.Message, error) {
	var msg models.Message
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.SentAt, &msg.IsRead)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, err
	}
	if err != nil {
		return msg, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.SentAt = msg.SentAt.UTC()
	return msg, nil
}
