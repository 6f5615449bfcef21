package store

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	username_custom TEXT NOT NULL,
	password TEXT NOT NULL,
	right_level INTEGER NOT NULL DEFAULT 0,
	data TEXT NOT NULL DEFAULT '{}',
	tms_created INTEGER NOT NULL,
	tms_last_seen INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY,
	room_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	username TEXT NOT NULL,
	quoted_message_id INTEGER,
	content TEXT NOT NULL,
	date INTEGER NOT NULL,
	ip TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id);
`

// SQLiteStore implements MessageStore, UserDirectory and AuthProvider
// on a single sqlite database.
type SQLiteStore struct {
	db           *sql.DB
	passwordSalt string
	logger       *slog.Logger
}

func OpenSQLite(path, passwordSalt string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// sqlite serializes writers; one connection avoids lock contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{
		db:           db,
		passwordSalt: passwordSalt,
		logger:       logger.With(slog.String("component", "sqlite_store")),
	}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var (
	_ MessageStore  = (*SQLiteStore)(nil)
	_ UserDirectory = (*SQLiteStore)(nil)
	_ AuthProvider  = (*SQLiteStore)(nil)
)

// --- MessageStore ---

func (s *SQLiteStore) Append(ctx context.Context, rec MessageRecord) error {
	var quoted any
	if rec.QuotedID != 0 {
		quoted = rec.QuotedID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, user_id, username, quoted_message_id, content, date, ip)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RoomID, rec.UserID, rec.Username, quoted, rec.Content, rec.CreatedAt.Unix(), rec.IP)
	if err != nil {
		return fmt.Errorf("insert message %d: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) LastByRoom(ctx context.Context, roomID int64, limit int) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, username, COALESCE(quoted_message_id, 0), content, date, COALESCE(ip, '')
		 FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages for room %d: %w", roomID, err)
	}
	defer rows.Close()

	var recs []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var date int64
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.UserID, &rec.Username, &rec.QuotedID, &rec.Content, &date, &rec.IP); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.CreatedAt = time.Unix(date, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query returns newest first; flip to oldest-to-newest.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// --- UserDirectory ---

var ErrUserNotFound = errors.New("user does not exist")

func (s *SQLiteStore) ByID(ctx context.Context, id int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username_custom, right_level, data FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) ByUsername(ctx context.Context, username string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username_custom, right_level, data FROM users WHERE username = ?`, strings.ToLower(username)))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (User, error) {
	var u User
	var data string
	if err := row.Scan(&u.ID, &u.Username, &u.Right, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &u.Data); err != nil {
		return User{}, fmt.Errorf("decode user data: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) SetRight(ctx context.Context, id int64, right int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET right_level = ? WHERE id = ?`, right, id)
	if err != nil {
		return fmt.Errorf("set right for user %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetPluginData(ctx context.Context, userID int64, plugin string) (json.RawMessage, error) {
	u, err := s.ByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Data[plugin], nil
}

func (s *SQLiteStore) SavePluginData(ctx context.Context, userID int64, plugin string, value json.RawMessage) error {
	u, err := s.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Data == nil {
		u.Data = map[string]json.RawMessage{}
	}
	u.Data[plugin] = value
	data, err := json.Marshal(u.Data)
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET data = ? WHERE id = ?`, string(data), userID)
	if err != nil {
		return fmt.Errorf("save plugin data for user %d: %w", userID, err)
	}
	return nil
}

// --- AuthProvider ---

func (s *SQLiteStore) Register(ctx context.Context, username, password string) (User, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, username_custom, password, data, tms_created, tms_last_seen)
		 VALUES (?, ?, '', '{}', ?, ?)`,
		strings.ToLower(username), username, now, now)
	if err != nil {
		return User{}, fmt.Errorf("register user %s: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("register user %s: %w", username, err)
	}
	hashed := s.hashPassword(id, username, password)
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password = ? WHERE id = ?`, hashed, id); err != nil {
		return User{}, fmt.Errorf("store password for user %d: %w", id, err)
	}
	return s.ByID(ctx, id)
}

func (s *SQLiteStore) Login(ctx context.Context, username, password string) (User, error) {
	var id int64
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password FROM users WHERE username = ?`, strings.ToLower(username)).Scan(&id, &stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("look up user %s: %w", username, err)
	}
	hashed := s.hashPassword(id, username, password)
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(stored)) != 1 {
		return User{}, errors.New("incorrect password")
	}
	return s.ByID(ctx, id)
}

func (s *SQLiteStore) hashPassword(userID int64, username, password string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s%s%s", userID, password, s.passwordSalt, strings.ToLower(username))))
	return hex.EncodeToString(sum[:])
}
