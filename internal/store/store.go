package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mentormatch/server/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, databaseURL)
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, full_name, email, password_hash, role, profile_pic, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.ProfilePic,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, full_name, email, password_hash, role, profile_pic, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.ProfilePic,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, role, profile_pic, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.FullName, user.Email, user.PasswordHash, user.Role, user.ProfilePic, user.CreatedAt, user.UpdatedAt)
	return err
}

func (s *Store) UpdateUserProfile(ctx context.Context, userID, fullName, profilePic string, updatedAt time.Time) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET full_name = COALESCE(NULLIF($2, ''), full_name),
		    profile_pic = COALESCE(NULLIF($3, ''), profile_pic),
		    updated_at = $4
		WHERE id = $1
		RETURNING id, full_name, email, password_hash, role, profile_pic, created_at, updated_at
	`, userID, fullName, profilePic, updatedAt)
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.ProfilePic,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) GetConnectionByID(ctx context.Context, connectionID string) (model.Connection, error) {
	var conn model.Connection
	row := s.pool.QueryRow(ctx, `
		SELECT id, mentor_id, mentee_id, status, created_at, updated_at
		FROM connections
		WHERE id = $1
	`, connectionID)
	err := row.Scan(&conn.ID, &conn.MentorID, &conn.MenteeID, &conn.Status, &conn.CreatedAt, &conn.UpdatedAt)
	return conn, err
}

func (s *Store) ListConnectionsForUser(ctx context.Context, userID string) ([]model.Connection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mentor_id, mentee_id, status, created_at, updated_at
		FROM connections
		WHERE mentor_id = $1 OR mentee_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []model.Connection
	for rows.Next() {
		var conn model.Connection
		if err := rows.Scan(&conn.ID, &conn.MentorID, &conn.MenteeID, &conn.Status, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

func (s *Store) CreateConnection(ctx context.Context, conn model.Connection) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO connections (id, mentor_id, mentee_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conn.ID, conn.MentorID, conn.MenteeID, conn.Status, conn.CreatedAt, conn.UpdatedAt)
	return err
}

func (s *Store) UpdateConnectionStatus(ctx context.Context, connectionID string, status model.ConnectionStatus, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE connections SET status = $2, updated_at = $3 WHERE id = $1
	`, connectionID, status, updatedAt)
	return err
}

func (s *Store) CreateMessage(ctx context.Context, msg model.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, connection_id, text, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.ConnectionID, msg.Text, msg.Image, msg.CreatedAt)
	return err
}

// ListMessagesBetween returns the full exchange between two users in send
// order, oldest first. seq pins the append order even when two writes share
// a created_at timestamp.
func (s *Store) ListMessagesBetween(ctx context.Context, userA, userB string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, connection_id, text, image, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY seq ASC
	`, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.ConnectionID, &msg.Text, &msg.Image, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *Store) CreateActivity(ctx context.Context, activity model.Activity) error {
	meta, err := json.Marshal(activity.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO activities (id, user_id, type, meta, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, activity.ID, activity.UserID, activity.Type, meta, activity.CreatedAt)
	return err
}
