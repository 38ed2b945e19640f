package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/mail"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TokenIssuer mints credentials for accounts.
type TokenIssuer interface {
	Sign(a *models.Account) (string, error)
}

// Notifier delivers an HTML email. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, to, subject, html string) error
}

// RegisterInput is the request body for creating an account
type RegisterInput struct {
	Email    string      `json:"email" validate:"required,email,max=254"`
	Password string      `json:"password" validate:"required,max=72"`
	FullName string      `json:"full_name" validate:"required,max=200"`
	Phone    *string     `json:"phone" validate:"omitempty,max=40"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=citizen authority"`
}

// AccountOptions configures the password reset flow.
type AccountOptions struct {
	ResetTTL       time.Duration
	ResetBaseURL   string // frontend origin the reset link points at
	ExposeResetURL bool   // return the reset link in the API response
}

// AccountService manages citizen and authority identities
type AccountService struct {
	db       database.DB
	issuer   TokenIssuer
	notifier Notifier
	opts     AccountOptions
	logger   *zap.SugaredLogger

	dispatch func(func())
}

// NewAccountService creates a new account service
func NewAccountService(db database.DB, issuer TokenIssuer, notifier Notifier, opts AccountOptions, logger *zap.SugaredLogger) *AccountService {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 24 * time.Hour
	}
	return &AccountService{
		db:       db,
		issuer:   issuer,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		dispatch: func(f func()) { go f() },
	}
}

const accountColumns = `id, email, full_name, phone, role, created_at, updated_at`

func scanAccount(row pgx.Row, extra ...any) (*models.Account, error) {
	var a models.Account
	dest := append([]any{&a.ID, &a.Email, &a.FullName, &a.Phone, &a.Role, &a.CreatedAt, &a.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &a, nil
}

// Register creates an account and issues its first credential.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.Account, string, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validateInput(in); err != nil {
		return nil, "", err
	}
	if in.Role == "" {
		in.Role = models.RoleCitizen
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE email = $1)`, in.Email).Scan(&exists); err != nil {
		return nil, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, "", apperr.Conflict("Email already registered")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	a := &models.Account{
		ID:       uuid.New(),
		Email:    in.Email,
		FullName: in.FullName,
		Phone:    in.Phone,
		Role:     in.Role,
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO profiles (id, email, password_hash, full_name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at`,
		a.ID, a.Email, hash, a.FullName, a.Phone, a.Role,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		// Lost a race with a concurrent registration of the same email.
		if database.IsUniqueViolation(err) {
			return nil, "", apperr.Conflict("Email already registered")
		}
		return nil, "", fmt.Errorf("insert profile: %w", err)
	}

	token, err := s.issuer.Sign(a)
	if err != nil {
		return nil, "", err
	}

	s.logger.Infow("Account registered", "account_id", a.ID, "role", a.Role)
	return a, token, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// Authenticate verifies credentials. Unknown email and wrong password fail
// with the same error.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", apperr.BadRequest("Email and password required")
	}

	var hash string
	a, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+`, password_hash FROM profiles WHERE email = $1`, email), &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		// Burn the same bcrypt work as a real comparison.
		dummyHashOnce.Do(func() { dummyHash, _ = auth.HashPassword("not-a-real-password") })
		_ = auth.CheckPassword(dummyHash, password)
		return nil, "", apperr.Unauthorized("Invalid credentials")
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup profile: %w", err)
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return nil, "", apperr.Unauthorized("Invalid credentials")
	}

	token, err := s.issuer.Sign(a)
	if err != nil {
		return nil, "", err
	}
	return a, token, nil
}

// RequestPasswordReset starts the reset flow. It reports success whether or
// not the email is registered; the returned URL is empty unless the service
// is configured to expose it, and is a decoy when no account matched.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)

	token, err := newResetToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	resetURL := s.resetURL(token)

	var (
		accountID uuid.UUID
		fullName  string
	)
	err = s.db.QueryRow(ctx, `SELECT id, full_name FROM profiles WHERE email = $1`, email).Scan(&accountID, &fullName)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return s.exposed(resetURL), nil
	case err != nil:
		s.logger.Errorw("Password reset lookup failed", "error", err)
		return "", nil
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), accountID, hashResetToken(token), time.Now().Add(s.opts.ResetTTL),
	)
	if err != nil {
		s.logger.Errorw("Failed to store password reset", "account_id", accountID, "error", err)
		return "", nil
	}

	s.dispatch(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		body := fmt.Sprintf(`<p>Hello %s,</p><p>Use the link below to choose a new password. It is valid for %s.</p><p><a href="%s">Reset password</a></p>`,
			html.EscapeString(fullName), s.opts.ResetTTL, html.EscapeString(resetURL))
		err := s.notifier.Send(sendCtx, email, "Reset your password", body)
		switch {
		case errors.Is(err, mail.ErrNotConfigured):
			s.logger.Debugw("Reset email skipped, SMTP not configured", "account_id", accountID)
		case err != nil:
			s.logger.Warnw("Reset email delivery failed", "account_id", accountID, "error", err)
		}
	})

	s.logger.Infow("Password reset requested", "account_id", accountID)
	return s.exposed(resetURL), nil
}

// ResetPassword consumes a reset token and sets the new password. Both
// writes commit together or not at all.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return apperr.BadRequest("Token and password required")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return database.WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		var resetID, accountID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT id, user_id FROM password_resets
			WHERE token_hash = $1 AND used_at IS NULL AND expires_at > NOW()
			FOR UPDATE`, hashResetToken(token)).Scan(&resetID, &accountID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.InvalidToken("Invalid or expired token")
		}
		if err != nil {
			return fmt.Errorf("lookup reset token: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE profiles SET password_hash = $2, updated_at = NOW() WHERE id = $1`, accountID, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE password_resets SET used_at = NOW() WHERE id = $1`, resetID); err != nil {
			return fmt.Errorf("consume reset token: %w", err)
		}

		s.logger.Infow("Password reset completed", "account_id", accountID)
		return nil
	})
}

// GetSelf returns the requester's own profile.
func (s *AccountService) GetSelf(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.GetByID(ctx, accountID)
}

// GetByID looks up a profile by id.
func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("Profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	return a, nil
}

func (s *AccountService) resetURL(token string) string {
	return s.opts.ResetBaseURL + "/reset-password?token=" + url.QueryEscape(token)
}

func (s *AccountService) exposed(resetURL string) string {
	if !s.opts.ExposeResetURL {
		return ""
	}
	return resetURL
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
