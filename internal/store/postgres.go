package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAuthorMismatch is returned when a caller tries to edit a comment
// they did not write.
var ErrAuthorMismatch = errors.New("comment author mismatch")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, owner_name, private)
		VALUES ($1, $2, $3, $4, $5)
	`, project.ID, project.Name, project.Description, project.Owner, project.Private)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner_name, private, created_at, last_updated
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Name, &item.Description, &item.Owner, &item.Private, &item.CreatedAt, &item.LastUpdated)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, project Project) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name=$2, description=$3, private=$4, last_updated=now()
		WHERE id=$1
	`, project.ID, project.Name, project.Description, project.Private)
	if err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update project rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id=$1)`, projectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountProjectLikes(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_likes WHERE project_id=$1`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count project likes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListProjectPlatforms(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform FROM project_platforms WHERE project_id=$1 ORDER BY platform ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project platforms: %w", err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var platform string
		if err := rows.Scan(&platform); err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		items = append(items, platform)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platforms: %w", err)
	}
	return items, nil
}

// InsertComment appends a top-level comment. The id is allocated and
// self-referenced as original_id in a single statement, so there is no
// window where a row exists without its chain root.
func (s *PostgresStore) InsertComment(ctx context.Context, projectID, user, content string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		WITH seq AS (
			SELECT nextval(pg_get_serial_sequence('project_comments', 'id')) AS id
		)
		INSERT INTO project_comments (id, project_id, original_id, user_name, content)
		SELECT seq.id, $1, seq.id, $2, $3 FROM seq
		RETURNING id
	`, projectID, user, content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	return id, nil
}

// EditComment appends an edit record superseding the current tip of the
// chain commentID belongs to. The whole compound write runs in one
// transaction; the row lock on the target serializes concurrent edits so
// the chain never ends up with two tips.
//
// Returns sql.ErrNoRows if the comment does not exist (or its chain lost
// a concurrent edit race) and ErrAuthorMismatch if user did not write it.
func (s *PostgresStore) EditComment(ctx context.Context, commentID int64, projectID, user, content string) (newID int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin edit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var author string
	var originalID int64
	err = tx.QueryRowContext(ctx, `
		SELECT user_name, original_id
		FROM project_comments
		WHERE id=$1 AND project_id=$2
		FOR UPDATE
	`, commentID, projectID).Scan(&author, &originalID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sql.ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("lock comment: %w", err)
	}
	if author != user {
		return 0, ErrAuthorMismatch
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO project_comments (project_id, original_id, user_name, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, projectID, originalID, user, content).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("insert edit: %w", err)
	}

	// Point the chain's current tip at the new record. The new record is
	// excluded so it cannot supersede itself.
	result, err := tx.ExecContext(ctx, `
		UPDATE project_comments
		SET edit_id=$2
		WHERE original_id=$1 AND edit_id IS NULL AND id <> $2
	`, originalID, newID)
	if err != nil {
		return 0, fmt.Errorf("supersede tip: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("supersede tip rows: %w", err)
	}
	if affected == 0 {
		return 0, sql.ErrNoRows
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit edit: %w", err)
	}
	return newID, nil
}

func (s *PostgresStore) ListProjectComments(ctx context.Context, projectID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, original_id, edit_id, user_name, content, created_at
		FROM project_comments
		WHERE project_id=$1
		ORDER BY created_at DESC, id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.OriginalID,
			&item.EditID,
			&item.User,
			&item.Content,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertRoleGrant(ctx context.Context, grant RoleGrant) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_roles (user_name, role, expires_at, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, grant.User, grant.Role, grant.ExpiresAt, grant.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert role grant: %w", err)
	}
	return id, nil
}

// ListRoleGrants returns every grant ever made to user, active or not.
func (s *PostgresStore) ListRoleGrants(ctx context.Context, user string) ([]RoleGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_name, role, expires_at, description, created_at
		FROM user_roles
		WHERE user_name=$1
		ORDER BY created_at ASC, id ASC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("list role grants: %w", err)
	}
	defer rows.Close()
	return scanRoleGrants(rows)
}

// ListActiveRoleGrants returns all grants platform-wide that are active
// at the given instant.
func (s *PostgresStore) ListActiveRoleGrants(ctx context.Context, now time.Time) ([]RoleGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_name, role, expires_at, description, created_at
		FROM user_roles
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY user_name ASC, role ASC, id ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list active role grants: %w", err)
	}
	defer rows.Close()
	return scanRoleGrants(rows)
}

// RevokeRoleGrants expires every currently-active grant of role for user.
// Rows are mutated in place rather than deleted so the history survives.
func (s *PostgresStore) RevokeRoleGrants(ctx context.Context, user, role string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_roles
		SET expires_at=$3
		WHERE user_name=$1 AND role=$2
		  AND (expires_at IS NULL OR expires_at > $3)
	`, user, role, now)
	if err != nil {
		return false, fmt.Errorf("revoke role grants: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke role grants rows: %w", err)
	}
	return affected > 0, nil
}

func scanRoleGrants(rows *sql.Rows) ([]RoleGrant, error) {
	items := make([]RoleGrant, 0)
	for rows.Next() {
		var item RoleGrant
		if err := rows.Scan(
			&item.ID,
			&item.User,
			&item.Role,
			&item.ExpiresAt,
			&item.Description,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan role grant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role grants: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
