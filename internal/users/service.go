package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"
	"github.com/bkovacevic/gymlog/pkg"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

const minPasswordLength = 8

// ErrInvalidCredentials is deliberately the same for an unknown email and a
// wrong password, so login responses do not leak which emails exist.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrPasswordTooShort   = fmt.Errorf("password must have at least %d characters", minPasswordLength)
)

type Service struct {
	repo     *Repo
	validate *validator.Validate
}

func NewService(repo *Repo) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
	}
}

// Register creates a new account. The first account ever created becomes
// the admin. Any ownerless legacy rows are claimed by the new account.
func (s *Service) Register(ctx context.Context, email, password string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.users.register")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	email = NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	passwordHash, err := pkg.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, email, passwordHash, time.Now())
	if err != nil {
		return nil, err
	}

	s.claimLegacyRows(ctx, user.ID)

	log.Debugf("registered user %d [admin: %t]", user.ID, user.IsAdmin)
	return user, nil
}

// Authenticate checks email and password and returns the matching user.
// Any ownerless legacy rows are claimed on a successful login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.users.authenticate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !pkg.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	s.claimLegacyRows(ctx, user.ID)

	return user, nil
}

func (s *Service) Get(ctx context.Context, id int) (*User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) claimLegacyRows(ctx context.Context, userID int) {
	claimed, err := s.repo.ClaimLegacyRows(ctx, userID)
	if err != nil {
		// claiming is best effort, the login/registration itself succeeded
		log.Errorf("claim legacy rows for user %d: %s", userID, err)
		return
	}
	if claimed > 0 {
		log.Warnf("user %d claimed %d legacy rows", userID, claimed)
	}
}

// NormalizeEmail lowercases and trims an email address so that lookups and
// the unique constraint are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
