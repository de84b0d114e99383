package identity

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore reads the profiles table.
//
// Assumed schema:
//   CREATE TABLE profiles (
//     id         TEXT PRIMARY KEY,
//     username   TEXT,
//     avatar_url TEXT
//   );
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (Profile, bool, error) {
	if id == "" {
		return Profile{}, false, ErrInvalidArgument
	}

	const q = `
SELECT id, username, avatar_url
FROM profiles
WHERE id = $1
`
	var p Profile
	var username, avatarURL sql.NullString
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &username, &avatarURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, false, nil
		}
		return Profile{}, false, err
	}
	p.Username = username.String
	p.AvatarURL = avatarURL.String
	return p, true, nil
}
