// Package service holds the request-level orchestration between HTTP
// handlers and the zero-trust core.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/guard"
	"github.com/trustplane/platform/internal/policy"
	"github.com/trustplane/platform/internal/registry"
	"github.com/trustplane/platform/internal/repository"
	"github.com/trustplane/platform/internal/session"
)

// AuthService handles account registration and risk-scored login.
type AuthService struct {
	db       repository.DBTX
	users    repository.UserRepository
	registry *registry.Registry
	sessions *session.Manager
	ledger   *audit.Ledger
	lockout  *guard.Lockout
	jwtMgr   *auth.JWTManager
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	db repository.DBTX,
	users repository.UserRepository,
	reg *registry.Registry,
	sessions *session.Manager,
	ledger *audit.Ledger,
	lockout *guard.Lockout,
	jwtMgr *auth.JWTManager,
) *AuthService {
	return &AuthService{
		db:       db,
		users:    users,
		registry: reg,
		sessions: sessions,
		ledger:   ledger,
		lockout:  lockout,
		jwtMgr:   jwtMgr,
	}
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates an operator account. Accounts hold no standing access;
// every later request is still individually scored.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if err := domain.ValidateUsername(input.Username); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(input.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}
	if input.Role == "" {
		input.Role = auth.RoleViewer
	}
	validRole := false
	for _, r := range auth.AllRoles() {
		if r == input.Role {
			validRole = true
		}
	}
	if !validRole {
		return nil, domain.ErrValidation("unknown role: " + input.Role)
	}

	existing, err := s.users.FindByUsername(ctx, s.db, input.Username)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("username already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, s.db, user); err != nil {
		return nil, domain.ErrInternal("create user", err)
	}

	if _, err := s.ledger.LogEvent(ctx, audit.Event{
		Type:         domain.EventConfigChange,
		Actor:        input.Username,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		Action:       "create user account",
		Status:       domain.StatusSuccess,
		Metadata:     map[string]any{"role": input.Role},
	}); err != nil {
		return nil, err
	}

	return user, nil
}

// LoginInput holds the login request fields plus the client context gathered
// by the handler.
type LoginInput struct {
	Username  string
	Password  string
	UserAgent string
	IPAddress string
	Device    domain.DeviceInfo
	Location  domain.Location
}

// LoginResult is returned on a scored login. Token and SessionID are empty
// when the risk policy denied the login.
type LoginResult struct {
	Token      string             `json:"token,omitempty"`
	SessionID  string             `json:"session_id,omitempty"`
	UserID     string             `json:"user_id"`
	Username   string             `json:"username"`
	Role       string             `json:"role,omitempty"`
	Assessment *policy.Assessment `json:"assessment"`
}

// Login verifies credentials, registers the device sighting, creates a scored
// session and issues a token. Failed credentials are recorded for the lockout
// policy before the caller sees the error.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if err := s.lockout.Check(ctx, input.Username); err != nil {
		return nil, err
	}

	user, err := s.users.FindByUsername(ctx, s.db, input.Username)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		if err := s.ledger.LogFailedLogin(ctx, input.Username, input.IPAddress, "unknown user", input.UserAgent); err != nil {
			return nil, err
		}
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		if err := s.ledger.LogFailedLogin(ctx, input.Username, input.IPAddress, "bad password", input.UserAgent); err != nil {
			return nil, err
		}
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	userID := user.ID.String()
	device, err := s.registry.RegisterOrUpdate(ctx, userID, input.UserAgent, input.IPAddress, input.Device)
	if err != nil {
		return nil, domain.ErrInternal("register device", err)
	}

	sess, assessment, err := s.sessions.Create(ctx, userID, user.Username, device.DeviceID, input.IPAddress, domain.AccessContext{
		Location:  input.Location,
		Device:    input.Device,
		UserAgent: input.UserAgent,
		IPAddress: input.IPAddress,
	})
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		UserID:     userID,
		Username:   user.Username,
		Assessment: assessment,
	}
	if sess == nil {
		// Risk policy denied the login; no token is issued.
		return result, nil
	}

	token, err := s.jwtMgr.GenerateToken(userID, user.Username, user.Role)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	result.Token = token
	result.SessionID = sess.SessionID
	result.Role = user.Role
	return result, nil
}

// Logout terminates the session. Idempotent.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Terminate(ctx, sessionID, domain.TerminateReasonLogout)
}
