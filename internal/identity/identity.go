// Package identity issues and verifies PetPals credentials: accounts with
// bcrypt password hashes, HS256 session tokens and password reset tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"petpals/internal/cache"
	"petpals/internal/models"
	"petpals/internal/validation"
)

const (
	issuer   = "petpals-api"
	audience = "petpals-client"
)

// Config controls token lifetimes.
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	ResetTTL  time.Duration
}

// Session is returned by SignUp and SignIn.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type Service struct {
	db     *gorm.DB
	redis  *redis.Client
	mailer Mailer
	cfg    Config
	now    func() time.Time
}

func NewService(db *gorm.DB, rdb *redis.Client, mailer Mailer, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{db: db, redis: rdb, mailer: mailer, cfg: cfg, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an account and returns a session for it.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	account := &models.Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.NewConflictError("An account with this email already exists")
		}
		return nil, models.NewUnavailableError(err)
	}
	return s.session(account)
}

// SignIn checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, models.NewUnavailableError(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return s.session(&account)
}

func (s *Service) session(account *models.Account) (*Session, error) {
	token, err := s.generateToken(account.UID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &Session{Token: token, UserID: account.UID, Email: account.Email}, nil
}

// generateToken creates a JWT token for the given user ID
func (s *Service) generateToken(uid string) (string, error) {
	if s.cfg.JWTSecret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// VerifyToken validates a session token and returns its user id.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", models.NewUnauthorizedError("Invalid or expired token")
	}
	if claims.Subject == "" {
		return "", models.NewUnauthorizedError("Invalid token structure - missing subject")
	}
	return claims.Subject, nil
}

// SendPasswordReset mails a single-use reset token when the email belongs to
// an account. It reports success either way.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	if s.redis == nil {
		return models.NewUnavailableError(errors.New("reset token store not configured"))
	}
	email = normalizeEmail(email)
	var account models.Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return models.NewUnavailableError(err)
	}

	token := uuid.NewString()
	if err := s.redis.Set(ctx, cache.ResetKey(token), account.UID, s.cfg.ResetTTL).Err(); err != nil {
		return models.NewUnavailableError(err)
	}
	if err := s.mailer.SendPasswordReset(ctx, account.Email, token); err != nil {
		s.redis.Del(ctx, cache.ResetKey(token))
		return models.NewUnavailableError(err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return models.NewValidationError(err.Error())
	}
	if s.redis == nil {
		return models.NewUnavailableError(errors.New("reset token store not configured"))
	}
	uid, err := s.redis.GetDel(ctx, cache.ResetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return models.NewValidationError("Reset token is invalid or expired")
	}
	if err != nil {
		return models.NewUnavailableError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("uid = ?", uid).Update("password_hash", string(hash))
	if res.Error != nil {
		return models.NewUnavailableError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Account", uid)
	}
	return nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
