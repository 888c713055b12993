package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"sprocket/api/internal/assets"
	"sprocket/api/internal/auth"
	"sprocket/api/internal/avatar"
	"sprocket/api/internal/comments"
	"sprocket/api/internal/config"
	"sprocket/api/internal/roles"
	"sprocket/api/internal/search"
	"sprocket/api/internal/session"
	"sprocket/api/internal/store"
	"sprocket/api/internal/util"
)

const maxCommentLength = 500

// Session is a verified caller identity derived from a signed token.
type Session struct {
	Username  string
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	InsertProject(ctx context.Context, project store.Project) error
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	UpdateProject(ctx context.Context, project store.Project) (bool, error)
	ProjectExists(ctx context.Context, projectID string) (bool, error)
	CountProjectLikes(ctx context.Context, projectID string) (int, error)
	ListProjectPlatforms(ctx context.Context, projectID string) ([]string, error)
	InsertComment(ctx context.Context, projectID, user, content string) (int64, error)
	EditComment(ctx context.Context, commentID int64, projectID, user, content string) (int64, error)
	ListProjectComments(ctx context.Context, projectID string) ([]store.Comment, error)
	InsertRoleGrant(ctx context.Context, grant store.RoleGrant) (int64, error)
	ListRoleGrants(ctx context.Context, user string) ([]store.RoleGrant, error)
	ListActiveRoleGrants(ctx context.Context, now time.Time) ([]store.RoleGrant, error)
	RevokeRoleGrants(ctx context.Context, user, role string, now time.Time) (bool, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	Ping(ctx context.Context) error
}

type assetStore interface {
	ScaffoldProject(ctx context.Context, projectID string) error
}

type projectSearch interface {
	Search(q search.Query) search.Response
	IndexProject(p search.ProjectRecord)
}

type avatarProvider interface {
	ProfilePicture(ctx context.Context, username string) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	assets   assetStore
	search   projectSearch
	avatars  avatarProvider
}

// New wires the service. The asset store may be nil when object storage
// is not configured; project creation then skips scaffolding.
func New(cfg config.Config, data *store.PostgresStore, sessions *session.RedisStore, assetSvc *assets.Service, searchSvc *search.Service, avatars *avatar.Client) *Service {
	svc := &Service{cfg: cfg, store: data, sessions: sessions}
	if assetSvc != nil {
		svc.assets = assetSvc
	}
	if searchSvc != nil {
		svc.search = searchSvc
	}
	if avatars != nil {
		svc.avatars = avatars
	}
	return svc
}

// SessionFromToken verifies the token signature and expiry, then checks
// the revocation list. A revoked token is indistinguishable from an
// invalid one to the caller.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsRevoked(ctx, auth.HashToken(token))
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Username:  claims.Username,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the token until its natural expiry. Invalid tokens are
// ignored so logout is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	sess, err := s.SessionFromToken(ctx, token)
	if err != nil {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(token), sess.ExpiresAt)
}

func (s *Service) CreateProject(ctx context.Context, sess Session, name string) (string, error) {
	projectName := strings.TrimSpace(name)
	if projectName == "" {
		projectName = "Untitled Project"
	}
	projectID := util.NewProjectID()
	if s.assets != nil {
		if err := s.assets.ScaffoldProject(ctx, projectID); err != nil {
			return "", err
		}
	}
	err := s.store.InsertProject(ctx, store.Project{
		ID:      projectID,
		Name:    projectName,
		Owner:   sess.Username,
		Private: true,
	})
	if err != nil {
		return "", err
	}
	return projectID, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	likes, err := s.store.CountProjectLikes(ctx, projectID)
	if err != nil {
		return nil, err
	}
	platforms, err := s.store.ListProjectPlatforms(ctx, projectID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListProjectComments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          project.ID,
		"name":        project.Name,
		"description": project.Description,
		"owner":       project.Owner,
		"private":     project.Private,
		"createdAt":   project.CreatedAt,
		"lastUpdated": project.LastUpdated,
		"likes":       likes,
		"platforms":   platforms,
		"comments":    comments.Resolve(records),
	}, nil
}

type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Private     *bool   `json:"private"`
}

// UpdateProject changes project metadata. Only the owner or a platform
// admin may update; making a project public pushes it to the search index.
func (s *Service) UpdateProject(ctx context.Context, sess Session, projectID string, input UpdateProjectInput) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Owner != sess.Username {
		if err := s.requireRole(ctx, sess, roles.Admin); err != nil {
			return nil, err
		}
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name must not be empty", nil)
		}
		project.Name = name
	}
	if input.Description != nil {
		project.Description = *input.Description
	}
	if input.Private != nil {
		project.Private = *input.Private
	}
	ok, err := s.store.UpdateProject(ctx, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	if s.search != nil && !project.Private {
		s.search.IndexProject(search.ProjectRecord{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
			Owner:       project.Owner,
		})
	}
	return s.GetProject(ctx, projectID)
}

func (s *Service) ListComments(ctx context.Context, projectID string) ([]comments.Resolved, error) {
	exists, err := s.store.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, sql.ErrNoRows
	}
	records, err := s.store.ListProjectComments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return comments.Resolve(records), nil
}

func validateCommentContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return domainError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "content must be at most 500 characters", nil)
	}
	return nil
}

func (s *Service) CreateComment(ctx context.Context, sess Session, projectID, content string) (int64, error) {
	if err := validateCommentContent(content); err != nil {
		return 0, err
	}
	exists, err := s.store.ProjectExists(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, sql.ErrNoRows
	}
	return s.store.InsertComment(ctx, projectID, sess.Username, content)
}

// EditComment appends a replacement record for one of the caller's own
// comments and returns the new record's id.
func (s *Service) EditComment(ctx context.Context, sess Session, projectID string, commentID int64, content string) (int64, error) {
	if err := validateCommentContent(content); err != nil {
		return 0, err
	}
	newID, err := s.store.EditComment(ctx, commentID, projectID, sess.Username, content)
	if errors.Is(err, store.ErrAuthorMismatch) {
		return 0, domainError(http.StatusForbidden, "AUTHOR_MISMATCH", "only the comment author may edit it", nil)
	}
	if err != nil {
		return 0, err
	}
	return newID, nil
}

// requireRole is the single authorization gate for privileged operations.
func (s *Service) requireRole(ctx context.Context, sess Session, role string) error {
	grants, err := s.store.ListRoleGrants(ctx, sess.Username)
	if err != nil {
		return err
	}
	if !roles.HasRole(grants, role, time.Now()) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

// RolesOf returns the active role names for a user. Callers may always
// read their own roles; reading another user's roles requires admin.
func (s *Service) RolesOf(ctx context.Context, sess Session, user string) ([]string, error) {
	if user != sess.Username {
		if err := s.requireRole(ctx, sess, roles.Admin); err != nil {
			return nil, err
		}
	}
	grants, err := s.store.ListRoleGrants(ctx, user)
	if err != nil {
		return nil, err
	}
	return roles.ActiveRoles(grants, time.Now()), nil
}

func (s *Service) AllActiveGrants(ctx context.Context, sess Session) ([]store.RoleGrant, error) {
	if err := s.requireRole(ctx, sess, roles.Admin); err != nil {
		return nil, err
	}
	return s.store.ListActiveRoleGrants(ctx, time.Now())
}

func (s *Service) GrantRole(ctx context.Context, sess Session, user, role string, expiresAt *time.Time, description *string) (int64, error) {
	if err := s.requireRole(ctx, sess, roles.Admin); err != nil {
		return 0, err
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return 0, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "role is required", nil)
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return 0, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "expiresAt must be in the future", nil)
	}
	return s.store.InsertRoleGrant(ctx, store.RoleGrant{
		User:        user,
		Role:        role,
		ExpiresAt:   expiresAt,
		Description: description,
	})
}

// RevokeRole expires every active grant of the role for the user. The
// returned bool reports whether any grant was actually revoked.
func (s *Service) RevokeRole(ctx context.Context, sess Session, user, role string) (bool, error) {
	if err := s.requireRole(ctx, sess, roles.Admin); err != nil {
		return false, err
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return false, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "role is required", nil)
	}
	return s.store.RevokeRoleGrants(ctx, user, role, time.Now())
}

// UserProfile is the public view of a user: active roles plus an avatar
// fetched from the external provider. Avatar failures degrade to an
// empty URL rather than failing the request.
func (s *Service) UserProfile(ctx context.Context, user string) (map[string]any, error) {
	grants, err := s.store.ListRoleGrants(ctx, user)
	if err != nil {
		return nil, err
	}
	avatarURL := ""
	if s.avatars != nil {
		url, err := s.avatars.ProfilePicture(ctx, user)
		if err != nil {
			log.Printf("avatar lookup for %s: %v", user, err)
		} else {
			avatarURL = url
		}
	}
	return map[string]any{
		"username": user,
		"roles":    roles.ActiveRoles(grants, time.Now()),
		"avatar":   avatarURL,
	}, nil
}

func (s *Service) SearchProjects(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// GrantsByUser groups active grants for the admin overview, sorted by
// user name for a stable response.
func GrantsByUser(grants []store.RoleGrant) []map[string]any {
	byUser := make(map[string][]store.RoleGrant)
	for _, grant := range grants {
		byUser[grant.User] = append(byUser[grant.User], grant)
	}
	users := make([]string, 0, len(byUser))
	for user := range byUser {
		users = append(users, user)
	}
	sort.Strings(users)

	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		entries := make([]map[string]any, 0, len(byUser[user]))
		for _, grant := range byUser[user] {
			entry := map[string]any{
				"role":      grant.Role,
				"grantedAt": grant.CreatedAt,
			}
			if grant.ExpiresAt != nil {
				entry["expiresAt"] = grant.ExpiresAt
			}
			if grant.Description != nil {
				entry["description"] = *grant.Description
			}
			entries = append(entries, entry)
		}
		items = append(items, map[string]any{"username": user, "grants": entries})
	}
	return items
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Ping(ctx)
}
