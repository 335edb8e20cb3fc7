package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"petpals/internal/models"
)

func setupService(t *testing.T) (*Service, *MemoryMailer, *miniredis.Miniredis) {
	t.Helper()
	dsn := fmt.Sprintf("file:identity_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Account{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mailer := NewMemoryMailer()
	svc := NewService(db, rdb, mailer, Config{JWTSecret: "test-secret", ResetTTL: time.Minute})
	return svc, mailer, mr
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, " Owner@Example.com ", "walkies2024")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", sess.Email)
	assert.NotEmpty(t, sess.UserID)

	uid, err := svc.VerifyToken(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, uid)

	again, err := svc.SignIn(ctx, "OWNER@example.com", "walkies2024")
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, again.UserID)

	_, err = svc.SignIn(ctx, "owner@example.com", "wrong-pass1")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	_, err = svc.SignIn(ctx, "nobody@example.com", "walkies2024")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
}

func TestSignUpValidationAndConflict(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "not-an-email", "walkies2024")
	assert.True(t, models.IsCode(err, models.CodeValidation))
	_, err = svc.SignUp(ctx, "a@example.com", "short")
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = svc.SignUp(ctx, "a@example.com", "walkies2024")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "A@example.com", "walkies2025")
	assert.True(t, models.IsCode(err, models.CodeConflict), "got %v", err)
}

func TestVerifyTokenRejects(t *testing.T) {
	svc, _, _ := setupService(t)

	other := NewService(nil, nil, nil, Config{JWTSecret: "other-secret"})
	foreign, err := other.generateToken("u1")
	require.NoError(t, err)
	_, err = svc.VerifyToken(foreign)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	svc.now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	expired, err := svc.generateToken("u1")
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.VerifyToken(expired)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.VerifyToken(unsigned)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	_, err = svc.VerifyToken("garbage")
	assert.Error(t, err)
}

func TestPasswordReset(t *testing.T) {
	svc, mailer, mr := setupService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "owner@example.com", "walkies2024")
	require.NoError(t, err)

	require.NoError(t, svc.SendPasswordReset(ctx, "nobody@example.com"))
	_, sent := mailer.Last("nobody@example.com")
	assert.False(t, sent)

	require.NoError(t, svc.SendPasswordReset(ctx, "Owner@example.com"))
	token, sent := mailer.Last("owner@example.com")
	require.True(t, sent)
	assert.True(t, mr.Exists("pwreset:"+token))

	err = svc.ResetPassword(ctx, token, "short")
	assert.True(t, models.IsCode(err, models.CodeValidation))

	require.NoError(t, svc.ResetPassword(ctx, token, "newpass2025"))
	assert.False(t, mr.Exists("pwreset:"+token))

	_, err = svc.SignIn(ctx, "owner@example.com", "walkies2024")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	_, err = svc.SignIn(ctx, "owner@example.com", "newpass2025")
	assert.NoError(t, err)

	err = svc.ResetPassword(ctx, token, "another2026")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestPasswordResetTokenExpires(t *testing.T) {
	svc, mailer, mr := setupService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "owner@example.com", "walkies2024")
	require.NoError(t, err)
	require.NoError(t, svc.SendPasswordReset(ctx, "owner@example.com"))
	token, _ := mailer.Last("owner@example.com")

	mr.FastForward(2 * time.Minute)
	err = svc.ResetPassword(ctx, token, "newpass2025")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestCurrentUserID(t *testing.T) {
	_, err := CurrentUserID(context.Background())
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	uid, err := CurrentUserID(WithUserID(context.Background(), "u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
}
