package store

import (
	"database/sql"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/store/postgres"
	"jamiah-chat/internal/store/sqlite"
)

// Repos bundles the repository implementations for one database driver.
type Repos struct {
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Participants  domain.ParticipantRepository
}

// NewSQLiteRepos builds the repository set backed by SQLite.
func NewSQLiteRepos(db *sql.DB) Repos {
	return Repos{
		Users:         sqlite.NewUserRepo(db),
		Conversations: sqlite.NewConversationRepo(db),
		Messages:      sqlite.NewMessageRepo(db),
		Participants:  sqlite.NewParticipantRepo(db),
	}
}

// NewPostgresRepos builds the repository set backed by PostgreSQL.
func NewPostgresRepos(db *sql.DB) Repos {
	return Repos{
		Users:         postgres.NewUserRepo(db),
		Conversations: postgres.NewConversationRepo(db),
		Messages:      postgres.NewMessageRepo(db),
		Participants:  postgres.NewParticipantRepo(db),
	}
}
