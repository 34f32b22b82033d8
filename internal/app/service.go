package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"canvasvault/api/internal/auth"
	"canvasvault/api/internal/authpw"
	"canvasvault/api/internal/config"
	"canvasvault/api/internal/email"
	"canvasvault/api/internal/logger"
	"canvasvault/api/internal/search"
	"canvasvault/api/internal/session"
	"canvasvault/api/internal/settings"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
	"canvasvault/api/internal/util"
)

const maxProjectNameLength = 200

// RequiredTables are the tables a remote database must carry before cloud
// mode can serve requests.
var RequiredTables = []string{
	"projects",
	"assets",
	"asset_ai",
	"asset_manual_metadata",
	"asset_embeddings",
	"asset_segments",
	"canvas_objects",
	"project_view",
	"project_sync",
	"app_state",
}

type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

// Backend is the persistence pair a request runs against. It is resolved
// once per request and passed to every service call.
type Backend struct {
	Mode    settings.Mode
	Adapter store.Adapter
	Files   storage.Files
	UserID  string
}

func (b Backend) Cloud() bool {
	return b.Mode == settings.ModeCloud
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID, email string, expiresAt time.Time) error
	ConsumeRefreshSession(ctx context.Context, tokenHash string) (session.Session, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the process-level resources the service is built from. Remote,
// Bucket, Sessions and Meili are optional.
type Deps struct {
	Config   config.Config
	Logger   *logger.Logger
	Settings *settings.Store
	Local    *store.LocalStore
	Disk     *storage.Disk
	Remote   *store.RemoteStore
	Bucket   *storage.Bucket
	Sessions *session.RedisStore
	Search   *search.Service
	Mailer   *email.Service
}

type Service struct {
	cfg      config.Config
	log      *logger.Logger
	settings *settings.Store
	local    *store.LocalStore
	disk     *storage.Disk

	remoteFor      func(userID string) (store.Adapter, storage.Files)
	remoteDB       pinger
	missingTables  func(ctx context.Context) ([]string, error)
	missingBuckets func(ctx context.Context) ([]string, error)

	users    authpw.UserStore
	sessions sessionStore
	authpw   *authpw.Service
	mailer   *email.Service
	search   *search.Service
	now      func() time.Time
}

func New(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	searchSvc := deps.Search
	if searchSvc == nil {
		searchSvc = search.NewService(nil, search.NewHTTPEmbedder(0), log)
	}

	s := &Service{
		cfg:      deps.Config,
		log:      log,
		settings: deps.Settings,
		local:    deps.Local,
		disk:     deps.Disk,
		mailer:   deps.Mailer,
		search:   searchSvc,
		now:      time.Now,
	}

	if deps.Remote != nil {
		remote := deps.Remote
		s.remoteDB = remote
		s.users = remote
		s.missingTables = func(ctx context.Context) ([]string, error) {
			return remote.MissingTables(ctx, RequiredTables)
		}
		if deps.Bucket != nil {
			bucket := deps.Bucket
			s.remoteFor = func(userID string) (store.Adapter, storage.Files) {
				return remote.ForUser(userID), bucket.ForUser(userID)
			}
		}
	}
	if deps.Bucket != nil {
		s.missingBuckets = deps.Bucket.MissingBuckets
	}
	if deps.Sessions != nil {
		s.sessions = deps.Sessions
	}
	if s.users != nil && s.sessions != nil {
		requireVerify := s.mailer != nil && s.mailer.IsConfigured()
		s.authpw = authpw.NewService(s.users, requireVerify)
	}
	return s
}

func (s *Service) Mode() settings.Mode {
	return s.settings.Mode()
}

func (s *Service) LocalBackend() Backend {
	return Backend{Mode: settings.ModeLocal, Adapter: s.local, Files: s.disk}
}

// Backend picks the adapter for the current mode. Cloud mode needs a
// session, a configured remote database and bucket, and the auth service
// that verifies the session.
func (s *Service) Backend(sess *Session) (Backend, error) {
	if s.Mode() != settings.ModeCloud {
		return s.LocalBackend(), nil
	}
	if s.remoteFor == nil || s.authpw == nil {
		return Backend{}, errCloudUnavailable
	}
	if sess == nil || sess.UserID == "" {
		return Backend{}, errUnauthorized
	}
	adapter, files := s.remoteFor(sess.UserID)
	return Backend{Mode: settings.ModeCloud, Adapter: adapter, Files: files, UserID: sess.UserID}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.local.Ping(ctx)
}

// Ready pings every configured dependency and reports each by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.local.Ping(ctx)}
	if s.remoteDB != nil {
		checks["remoteDatabase"] = s.remoteDB.Ping(ctx)
	}
	if s.sessions != nil {
		checks["redis"] = s.sessions.Ping(ctx)
	}
	return checks
}

func (s *Service) Settings() settings.Settings {
	return s.settings.Get()
}

func (s *Service) UpdateSettings(update settings.Update) (settings.Settings, error) {
	next, err := s.settings.Apply(update)
	if err != nil {
		return settings.Settings{}, err
	}
	s.log.Info("settings updated", "mode", next.Mode, "ai_endpoint_set", next.AI.Endpoint != "", "ai_token_set", next.TokenSet())
	return next, nil
}

// Auth

func (s *Service) AuthAvailable() bool {
	return s.authpw != nil
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// Signup creates an account. The session is nil while the email address
// still needs confirming.
func (s *Service) Signup(ctx context.Context, emailAddr, password string) (store.User, *Session, string, error) {
	if s.authpw == nil {
		return store.User{}, nil, "", errAuthUnavailable
	}
	resp, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{Email: emailAddr, Password: password})
	if err != nil {
		return store.User{}, nil, "", err
	}
	if resp.RequiresEmailVerify {
		link := strings.TrimRight(s.cfg.AppURL, "/") + "/verify-email?token=" + resp.VerificationToken
		if err := s.mailer.SendConfirmationEmail(resp.User.Email, link); err != nil {
			s.log.Warn("send confirmation email failed", "user_id", resp.User.ID, "error", err)
		}
		return resp.User, nil, resp.VerificationToken, nil
	}
	sess, err := s.issueSession(ctx, resp.User)
	if err != nil {
		return store.User{}, nil, "", err
	}
	return resp.User, &sess, "", nil
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (store.User, Session, error) {
	if s.authpw == nil {
		return store.User{}, Session{}, errAuthUnavailable
	}
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return store.User{}, Session{}, err
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return store.User{}, Session{}, err
	}
	return user, sess, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (store.User, Session, error) {
	if s.authpw == nil {
		return store.User{}, Session{}, errAuthUnavailable
	}
	user, err := s.authpw.VerifyEmail(ctx, token)
	if err != nil {
		return store.User{}, Session{}, err
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return store.User{}, Session{}, err
	}
	return user, sess, nil
}

// Refresh trades a refresh token for a new session. Refresh tokens are
// single use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (store.User, Session, error) {
	if s.authpw == nil {
		return store.User{}, Session{}, errAuthUnavailable
	}
	if strings.TrimSpace(refreshToken) == "" {
		return store.User{}, Session{}, auth.ErrInvalidToken
	}
	stored, err := s.sessions.ConsumeRefreshSession(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return store.User{}, Session{}, auth.ErrInvalidToken
		}
		return store.User{}, Session{}, err
	}
	user, err := s.authpw.User(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, Session{}, auth.ErrInvalidToken
		}
		return store.User{}, Session{}, err
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return store.User{}, Session{}, err
	}
	return user, sess, nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, user.Email, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		AccessToken:  token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if s.authpw == nil {
		return Session{}, errAuthUnavailable
	}
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		AccessToken: token,
		UserID:      claims.Sub,
		Email:       claims.Email,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if s.sessions == nil {
		return nil
	}
	if sess.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			s.log.Warn("revoke access token failed", "user_id", sess.UserID, "error", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn("revoke refresh session failed", "user_id", sess.UserID, "error", err)
		}
	}
	return nil
}

// Projects

func validateProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxProjectNameLength {
		return "", domainError(http.StatusBadRequest, "INVALID_BODY", "Invalid body", map[string]any{"field": "name"})
	}
	return name, nil
}

func (s *Service) ListProjects(ctx context.Context, b Backend) ([]store.Project, error) {
	return b.Adapter.ListProjects(ctx)
}

func (s *Service) GetProject(ctx context.Context, b Backend, id string) (store.Project, error) {
	return b.Adapter.GetProject(ctx, id)
}

func (s *Service) CreateProject(ctx context.Context, b Backend, name string) (store.Project, error) {
	name, err := validateProjectName(name)
	if err != nil {
		return store.Project{}, err
	}
	project, err := b.Adapter.CreateProject(ctx, name)
	if err != nil {
		return store.Project{}, err
	}
	s.log.Info("project created", "project_id", project.ID, "mode", b.Mode)
	return project, nil
}

func (s *Service) RenameProject(ctx context.Context, b Backend, id, name string) (store.Project, error) {
	name, err := validateProjectName(name)
	if err != nil {
		return store.Project{}, err
	}
	return b.Adapter.RenameProject(ctx, id, name)
}

// DeleteProject removes the project rows first; the file cleanup after it
// is best-effort.
func (s *Service) DeleteProject(ctx context.Context, b Backend, id string) error {
	if err := b.Adapter.DeleteProject(ctx, id); err != nil {
		return err
	}
	if err := b.Files.RemoveProject(ctx, id); err != nil {
		s.log.Warn("remove project files failed", "project_id", id, "mode", b.Mode, "error", err)
	}
	s.log.Info("project deleted", "project_id", id, "mode", b.Mode)
	return nil
}
