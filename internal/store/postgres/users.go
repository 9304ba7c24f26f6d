package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

func userSelect() squirrel.SelectBuilder {
	return psql.Select("id", "name", "email", "password_hash", "role", "login_attempts", "lock_until", "created_at").
		From("users")
}

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		lockUntil sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.LoginAttempts, &lockUntil, &u.CreatedAt); err != nil {
		return nil, err
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		u.LockUntil = &t
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	query, args, err := psql.Insert("users").
		Columns("name", "email", "password_hash", "role").
		Values(user.Name, user.Email, user.PasswordHash, user.Role).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isCheckViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) getUser(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	query, args, err := userSelect().Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, squirrel.Eq{"id": id})
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	query, args, err := userSelect().OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateLoginState(ctx context.Context, userID int64, attempts int, lockUntil *time.Time) error {
	query, args, err := psql.Update("users").
		Set("login_attempts", attempts).
		Set("lock_until", nullTime(lockUntil)).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	return execOne(ctx, s.db, query, args...)
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	if passwordHash == "" {
		return store.ErrInvalidInput
	}
	query, args, err := psql.Update("users").
		Set("password_hash", passwordHash).
		Set("login_attempts", 0).
		Set("lock_until", nil).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	return execOne(ctx, s.db, query, args...)
}
