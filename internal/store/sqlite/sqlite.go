package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vseti/vseti-chat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:"
	// databases alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback() //nolint:errcheck // Rollback after Commit returns ErrTxDone, not critical
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, u store.NewUser) (*store.User, error) {
	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, nickname, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Nickname, s.now())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

const userColumns = `id, email, password_hash, first_name, last_name, nickname, avatar_url, created_at`

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Nickname,
		&user.AvatarURL,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", email, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// CountUsers returns how many of the given ids resolve to existing users.
func (s *SQLiteStore) CountUsers(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	var count int
	query := `SELECT COUNT(*) FROM users WHERE id IN (` + placeholders + `)`
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// ==== ConversationStore implementation ====

const conversationColumns = `c.id, c.name, c.is_group, c.avatar_url, c.last_message_id, c.created_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var conv store.Conversation
	var lastMessageID sql.NullInt64
	if err := row.Scan(
		&conv.ID,
		&conv.Name,
		&conv.IsGroup,
		&conv.AvatarURL,
		&lastMessageID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastMessageID.Valid {
		conv.LastMessageID = &lastMessageID.Int64
	}
	return &conv, nil
}

func listParticipants(ctx context.Context, q querier, conversationID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	members := []int64{}
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		members = append(members, userID)
	}

	return members, rows.Err()
}

// CreateConversation persists a conversation with its participants.
// Two-party non-group conversations are deduplicated via direct_key.
func (s *SQLiteStore) CreateConversation(ctx context.Context, name string, isGroup bool, participants []int64) (*store.Conversation, error) {
	var directKey *string
	if !isGroup && len(participants) == 2 {
		existing, err := s.FindDirectConversation(ctx, participants[0], participants[1])
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check existing conversation: %w", err)
		}
		key := store.DirectKey(participants[0], participants[1])
		directKey = &key
	}

	id, err := s.insertConversation(ctx, name, isGroup, directKey, participants)
	if err != nil {
		if directKey != nil && isUniqueViolation(err) {
			// Lost a creation race; the other writer's conversation wins.
			return s.FindDirectConversation(ctx, participants[0], participants[1])
		}
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) insertConversation(ctx context.Context, name string, isGroup bool, directKey *string, participants []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	now := s.now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (name, is_group, direct_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, isGroup, directKey, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`, id, userID, now); err != nil {
			return 0, fmt.Errorf("add participant %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// GetConversation retrieves a conversation with its participants.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	conv.Participants, err = listParticipants(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// FindDirectConversation returns the non-group conversation between two users.
func (s *SQLiteStore) FindDirectConversation(ctx context.Context, userA, userB int64) (*store.Conversation, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversations
		WHERE direct_key = ? AND is_group = 0
	`, store.DirectKey(userA, userB)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("direct conversation %d-%d: %w", userA, userB, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query direct conversation: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// ListConversations lists the user's conversations, most recent activity first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64) ([]*store.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	conversations := []*store.Conversation{}
	byID := make(map[int64]*store.Conversation)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.Participants = []int64{}
		conversations = append(conversations, conv)
		byID[conv.ID] = conv
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The pool holds one connection; release it before the next query.
	rows.Close()

	if len(conversations) == 0 {
		return conversations, nil
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id FROM conversation_participants
		WHERE conversation_id IN (
			SELECT conversation_id FROM conversation_participants WHERE user_id = ?
		)
		ORDER BY joined_at ASC, user_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var convID, memberID int64
		if err := prows.Scan(&convID, &memberID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if conv, ok := byID[convID]; ok {
			conv.Participants = append(conv.Participants, memberID)
		}
	}

	return conversations, prows.Err()
}

// AddParticipant adds a user and returns the participant set after the addition.
// Adding an existing participant is a no-op.
func (s *SQLiteStore) AddParticipant(ctx context.Context, conversationID, userID int64) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	if err := conversationExists(ctx, tx, conversationID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`, conversationID, userID, s.now()); err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}

	if err := refreshDirectKey(ctx, tx, conversationID); err != nil {
		return nil, err
	}

	members, err := listParticipants(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return members, nil
}

// RemoveParticipant removes a user and returns the participant set before the removal.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, conversationID, userID int64) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	if err := conversationExists(ctx, tx, conversationID); err != nil {
		return nil, err
	}

	before, err := listParticipants(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("delete participant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("user %d in conversation %d: %w", userID, conversationID, store.ErrNotMember)
	}

	if err := refreshDirectKey(ctx, tx, conversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return before, nil
}

func conversationExists(ctx context.Context, q querier, conversationID int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
		}
		return fmt.Errorf("query conversation: %w", err)
	}
	return nil
}

// refreshDirectKey keeps direct_key pointing only at non-group conversations
// that have exactly two participants. If another conversation already owns
// the key, this one is left without a key.
func refreshDirectKey(ctx context.Context, tx *sql.Tx, conversationID int64) error {
	var isGroup bool
	if err := tx.QueryRowContext(ctx, `SELECT is_group FROM conversations WHERE id = ?`, conversationID).Scan(&isGroup); err != nil {
		return fmt.Errorf("query conversation kind: %w", err)
	}
	if isGroup {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET direct_key = NULL WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear direct key: %w", err)
	}

	members, err := listParticipants(ctx, tx, conversationID)
	if err != nil {
		return err
	}
	if len(members) != 2 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE OR IGNORE conversations SET direct_key = ? WHERE id = ?
	`, store.DirectKey(members[0], members[1]), conversationID); err != nil {
		return fmt.Errorf("set direct key: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

// CreateMessage inserts the message and updates the conversation's last
// message pointer atomically.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`, msg.ConversationID, msg.SenderID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sender %d in conversation %d: %w", msg.SenderID, msg.ConversationID, store.ErrNotMember)
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	var last time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT m.created_at
		FROM conversations c
		JOIN messages m ON m.id = c.last_message_id
		WHERE c.id = ?
	`, msg.ConversationID).Scan(&last)
	switch {
	case err == nil:
		if msg.CreatedAt.Before(last) {
			msg.CreatedAt = last
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("query last message: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, is_read, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?
	`, id, msg.CreatedAt, msg.ConversationID); err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	}

	members, err := listParticipants(ctx, tx, msg.ConversationID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	msg.ID = id
	msg.IsRead = false
	return members, nil
}

// SetLastMessage points the conversation at one of its own messages and
// moves updated_at to that message's time.
func (s *SQLiteStore) SetLastMessage(ctx context.Context, conversationID, messageID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?,
			updated_at = (SELECT created_at FROM messages WHERE id = ?)
		WHERE id = ?
			AND EXISTS (SELECT 1 FROM messages WHERE id = ? AND conversation_id = ?)
	`, messageID, messageID, conversationID, messageID, conversationID)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %d in conversation %d: %w", messageID, conversationID, store.ErrNotFound)
	}
	return nil
}

const messageColumns = `id, conversation_id, sender_id, content, is_read, created_at`

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.IsRead, &msg.CreatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves a page of messages, newest page first, returned in
// chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []*store.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

// MarkRead flips is_read for unread messages in the conversation not sent by readerID.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, readerID int64) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_id != ? AND is_read = 0
	`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(affected), nil
}

// UnreadCounts returns one entry per conversation the user participates in,
// including conversations with nothing unread.
func (s *SQLiteStore) UnreadCounts(ctx context.Context, userID int64) ([]store.UnreadCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cp.conversation_id, COUNT(m.id)
		FROM conversation_participants cp
		LEFT JOIN messages m
			ON m.conversation_id = cp.conversation_id
			AND m.is_read = 0
			AND m.sender_id != cp.user_id
		WHERE cp.user_id = ?
		GROUP BY cp.conversation_id
		ORDER BY cp.conversation_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread counts: %w", err)
	}
	defer rows.Close()

	counts := []store.UnreadCount{}
	for rows.Next() {
		var c store.UnreadCount
		if err := rows.Scan(&c.ConversationID, &c.Count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

var _ store.Store = (*SQLiteStore)(nil)
