package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillconnect/internal/config"
	"skillconnect/internal/domain"
	"skillconnect/internal/models"

	"github.com/rs/zerolog"
)

const (
	loginAttemptLimit  = 10
	loginAttemptWindow = 15 * time.Minute
)

type RegisterInput struct {
	Email    string
	Username string
	Password string
	Role     string
	Skills   []string
	Phone    string
}

// UpdateProfileInput holds optional profile changes; nil fields stay untouched.
type UpdateProfileInput struct {
	Username   *string
	Phone      *string
	Skills     []string
	ProfilePic *string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

type UserService struct {
	users   domain.UserRepository
	hasher  domain.PasswordHasher
	tokens  domain.TokenIssuer
	limiter domain.RateCounter
	trades  []models.Trade
	logger  *zerolog.Logger
}

func NewUserService(
	users domain.UserRepository,
	hasher domain.PasswordHasher,
	tokens domain.TokenIssuer,
	limiter domain.RateCounter,
	trades []models.Trade,
	logger *zerolog.Logger,
) *UserService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &UserService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		limiter: limiter,
		trades:  trades,
		logger:  logger,
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if !models.ValidRole(in.Role) {
		return nil, domain.Validation("role must be Service Provider or Community Member")
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, domain.Validation("username is required")
	}

	skills, err := s.normalizeSkills(in.Role, in.Skills)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        normalizeEmail(in.Email),
		Username:     username,
		PasswordHash: hash,
		Role:         in.Role,
		Skills:       skills,
		Phone:        strings.TrimSpace(in.Phone),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Conflict("email is already registered")
		}
		return nil, err
	}

	s.logger.Info().Int64("user_id", user.ID).Str("role", user.Role).Msg("user registered")
	return s.issue(user)
}

// Login checks credentials. Attempts are throttled per email address.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	if s.limiter != nil {
		allowed, err := s.limiter.CheckRateLimit(ctx, "login:"+email, loginAttemptLimit, loginAttemptWindow)
		if err != nil {
			s.logger.Warn().Err(err).Msg("login rate limit check failed")
		} else if !allowed {
			return nil, fmt.Errorf("%w: try again later", domain.ErrRateLimited)
		}
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthorized("invalid email or password")
		}
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, err
	}
	if user.Banned {
		return nil, domain.Forbidden("account is banned")
	}
	return s.issue(user)
}

// Authenticate resolves a bearer token to an active user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthorized("user no longer exists")
		}
		return nil, err
	}
	if user.Banned {
		return nil, domain.Forbidden("account is banned")
	}
	return user, nil
}

func (s *UserService) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, actor *models.User, in UpdateProfileInput) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, domain.Validation("username must not be empty")
		}
		user.Username = username
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.ProfilePic != nil {
		user.ProfilePic = strings.TrimSpace(*in.ProfilePic)
	}
	if in.Skills != nil {
		skills, err := s.normalizeSkills(user.Role, in.Skills)
		if err != nil {
			return nil, err
		}
		user.Skills = skills
	}

	if err := s.users.UpdateUserProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) PublicProfile(ctx context.Context, userID int64) (*models.PublicUser, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	if user.Banned {
		return nil, domain.NotFound("user not found")
	}
	return user.Public(), nil
}

// Providers lists active service providers, verified and best rated first.
func (s *UserService) Providers(ctx context.Context, skill string) ([]*models.PublicUser, error) {
	banned := false
	users, err := s.users.ListUsers(ctx, models.UserFilter{
		Role:   models.RoleServiceProvider,
		Banned: &banned,
		Skill:  strings.TrimSpace(skill),
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *UserService) ListUsers(ctx context.Context, actor *models.User, filter models.UserFilter) ([]*models.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}
	users, err := s.users.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

func (s *UserService) SetBanned(ctx context.Context, actor *models.User, userID int64, banned bool) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}
	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	if target.IsAdmin() {
		return nil, domain.Forbidden("admins cannot be banned")
	}

	if err := s.users.SetUserBanned(ctx, userID, banned); err != nil {
		return nil, notFound(err, "user not found")
	}
	target.Banned = banned

	s.logger.Info().Int64("user_id", userID).Bool("banned", banned).Int64("admin_id", actor.ID).Msg("user ban changed")
	return target, nil
}

func (s *UserService) SetVerified(ctx context.Context, actor *models.User, userID int64, verified bool) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}
	if err := s.users.SetUserVerified(ctx, userID, verified); err != nil {
		return nil, notFound(err, "user not found")
	}
	return s.Me(ctx, userID)
}

// SeedAdmin creates the configured admin account when it does not exist yet.
func (s *UserService) SeedAdmin(ctx context.Context, cfg config.AdminSeedConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	email := normalizeEmail(cfg.Email)
	_, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	username := cfg.Username
	if username == "" {
		username = "admin"
	}
	admin := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Verified:     true,
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info().Int64("user_id", admin.ID).Str("email", email).Msg("admin account seeded")
	return nil
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// normalizeSkills trims and dedupes skills. Provider skills must belong to a
// known trade when a catalog is loaded.
func (s *UserService) normalizeSkills(role string, skills []string) ([]string, error) {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool)
	for _, raw := range skills {
		skill := strings.TrimSpace(raw)
		if skill == "" || seen[strings.ToLower(skill)] {
			continue
		}
		seen[strings.ToLower(skill)] = true

		if role == models.RoleServiceProvider && len(s.trades) > 0 && !s.knownSkill(skill) {
			return nil, domain.Validation(fmt.Sprintf("unknown skill %q", skill))
		}
		out = append(out, skill)
	}
	return out, nil
}

func (s *UserService) knownSkill(skill string) bool {
	for _, t := range s.trades {
		if t.Covers(skill) {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
