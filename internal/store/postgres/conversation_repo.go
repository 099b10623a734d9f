package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jamiah-chat/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, kind, topic, provider_id, taker_id, direct_key, context_kind, context_id, preview, last_activity, created_at`

const prefixedConversationColumns = `c.id, c.kind, c.topic, c.provider_id, c.taker_id, c.direct_key, c.context_kind, c.context_id, c.preview, c.last_activity, c.created_at`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, participantIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.Kind, c.Topic, c.ProviderID, c.TakerID, c.DirectKey, c.ContextKind, c.ContextID, c.Preview, c.LastActivity, c.CreatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for _, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (user_id, conversation_id, joined_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT DO NOTHING
		`, uid, c.ID); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1
	`, id)
	return scanConversation(row)
}

func (r *ConversationRepo) ListByProvider(ctx context.Context, userID string) ([]*domain.ConversationListItem, error) {
	query := `
		SELECT ` + prefixedConversationColumns + `,
			COALESCE(pu.username, ''), COALESCE(tu.username, ''), tu.is_online
		FROM conversations c
		LEFT JOIN users pu ON pu.id = c.provider_id
		LEFT JOIN users tu ON tu.id = c.taker_id
		WHERE c.provider_id = $1
		ORDER BY c.last_activity DESC
	`
	return r.listItems(ctx, query, userID)
}

func (r *ConversationRepo) ListByTaker(ctx context.Context, userID string) ([]*domain.ConversationListItem, error) {
	query := `
		SELECT ` + prefixedConversationColumns + `,
			COALESCE(pu.username, ''), COALESCE(tu.username, ''), pu.is_online
		FROM conversations c
		LEFT JOIN users pu ON pu.id = c.provider_id
		LEFT JOIN users tu ON tu.id = c.taker_id
		WHERE c.taker_id = $1
		ORDER BY c.last_activity DESC
	`
	return r.listItems(ctx, query, userID)
}

func (r *ConversationRepo) ListGroupsForUser(ctx context.Context, userID string) ([]*domain.ConversationListItem, error) {
	query := `
		SELECT ` + prefixedConversationColumns + `, '', '', NULL::boolean
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1 AND c.kind = 'group'
		ORDER BY c.last_activity DESC
	`
	return r.listItems(ctx, query, userID)
}

func (r *ConversationRepo) FindDirectByKey(ctx context.Context, key string, contextKind *domain.ContextKind, contextID *string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE kind = 'direct' AND direct_key = $1`
	args := []any{key}
	if contextKind != nil {
		args = append(args, *contextKind)
		query += fmt.Sprintf(` AND context_kind = $%d`, len(args))
	}
	if contextID != nil {
		args = append(args, *contextID)
		query += fmt.Sprintf(` AND context_id = $%d`, len(args))
	}
	query += ` LIMIT 1`

	return scanConversation(r.db.QueryRowContext(ctx, query, args...))
}

func (r *ConversationRepo) FindGroupByContext(ctx context.Context, contextKind domain.ContextKind, contextID string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE kind = 'group' AND context_kind = $1 AND context_id = $2
		LIMIT 1
	`, contextKind, contextID)
	return scanConversation(row)
}

func (r *ConversationRepo) UpdatePreview(ctx context.Context, id, preview string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET preview = $1, last_activity = $2 WHERE id = $3
	`, preview, at, id); err != nil {
		return fmt.Errorf("update preview: %w", err)
	}
	return nil
}

func (r *ConversationRepo) MarkAsRead(ctx context.Context, conversationID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID); err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

func (r *ConversationRepo) listItems(ctx context.Context, query string, args ...any) ([]*domain.ConversationListItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.ConversationListItem
	for rows.Next() {
		item := &domain.ConversationListItem{}
		var counterpartOnline sql.NullBool
		if err := rows.Scan(
			&item.ID,
			&item.Kind,
			&item.Topic,
			&item.ProviderID,
			&item.TakerID,
			&item.DirectKey,
			&item.ContextKind,
			&item.ContextID,
			&item.Preview,
			&item.LastActivity,
			&item.CreatedAt,
			&item.ProviderName,
			&item.TakerName,
			&counterpartOnline,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if item.Kind == domain.KindDirect && counterpartOnline.Valid {
			presence := "offline"
			if counterpartOnline.Bool {
				presence = "online"
			}
			item.Presence = &presence
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

func scanConversation(row *sql.Row) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(
		&c.ID,
		&c.Kind,
		&c.Topic,
		&c.ProviderID,
		&c.TakerID,
		&c.DirectKey,
		&c.ContextKind,
		&c.ContextID,
		&c.Preview,
		&c.LastActivity,
		&c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}
