package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type mockAuthRepo struct {
	user       *models.User
	findErr    error
	touchedAt  *time.Time
	storedHash string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.user == nil || m.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) TouchLogin(ctx context.Context, id string, at time.Time) error {
	m.touchedAt = &at
	return nil
}

func (m *mockAuthRepo) SetPasswordHash(ctx context.Context, id, hash string) error {
	m.storedHash = hash
	m.user.PasswordHash = hash
	return nil
}

func newAuthUser(t *testing.T, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "prof@school.test",
		Name:         "Prof. Lima",
		Role:         models.RoleTeacher,
		Active:       active,
		PasswordHash: string(hash),
	}
}

func newTestAuthService(repo authUserRepository) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{Secret: "secret", TTL: 15 * time.Minute, Issuer: "gradebook-test"})
}

func TestAuthServiceLoginIssuesVerifiableToken(t *testing.T) {
	repo := &mockAuthRepo{user: newAuthUser(t, "password123", true)}
	svc := newTestAuthService(repo)
	fixed := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	session, err := svc.Login(context.Background(), models.Credentials{Email: " prof@school.test ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, fixed.Add(15*time.Minute), session.ExpiresAt)
	assert.Equal(t, models.Profile{ID: "user-1", Email: "prof@school.test", Name: "Prof. Lima", Role: models.RoleTeacher}, session.User)
	require.NotNil(t, repo.touchedAt)
	assert.Equal(t, fixed, *repo.touchedAt)

	claims, err := svc.ValidateToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	svc.now = func() time.Time { return fixed.Add(16 * time.Minute) }
	_, err = svc.ValidateToken(session.AccessToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceLoginNormalizesEmail(t *testing.T) {
	repo := &mockAuthRepo{user: newAuthUser(t, "password123", true)}

	session, err := newTestAuthService(repo).Login(context.Background(), models.Credentials{Email: "\tProf@School.TEST  ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.User.ID)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	cases := []struct {
		name  string
		repo  *mockAuthRepo
		creds models.Credentials
		want  *appErrors.Error
	}{
		{"wrong password", &mockAuthRepo{user: newAuthUser(t, "password123", true)}, models.Credentials{Email: "prof@school.test", Password: "nope"}, appErrors.ErrInvalidCredentials},
		{"unknown email", &mockAuthRepo{}, models.Credentials{Email: "ghost@school.test", Password: "password123"}, appErrors.ErrInvalidCredentials},
		{"inactive", &mockAuthRepo{user: newAuthUser(t, "password123", false)}, models.Credentials{Email: "prof@school.test", Password: "password123"}, appErrors.ErrInactiveAccount},
		{"storage", &mockAuthRepo{findErr: errors.New("db down")}, models.Credentials{Email: "prof@school.test", Password: "password123"}, appErrors.ErrInternal},
		{"malformed", &mockAuthRepo{}, models.Credentials{Email: "not-an-email", Password: "x"}, appErrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestAuthService(tc.repo).Login(context.Background(), tc.creds)
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, tc.want), err.Error())
			assert.Nil(t, tc.repo.touchedAt)
		})
	}
}

func TestAuthServiceInactiveAccountCannotLoginWithWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{user: newAuthUser(t, "password123", false)}
	_, err := newTestAuthService(repo).Login(context.Background(), models.Credentials{Email: "prof@school.test", Password: "guess"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := &mockAuthRepo{user: newAuthUser(t, "password123", true)}
	svc := newTestAuthService(repo)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, "user-1", models.PasswordChange{OldPassword: "nope", NewPassword: "brandnew1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	err = svc.ChangePassword(ctx, "user-1", models.PasswordChange{OldPassword: "password123", NewPassword: "password123"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	require.NoError(t, svc.ChangePassword(ctx, "user-1", models.PasswordChange{OldPassword: "password123", NewPassword: "brandnew1"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.storedHash), []byte("brandnew1")))
}

func TestAuthServiceProfileReflectsDeactivation(t *testing.T) {
	repo := &mockAuthRepo{user: newAuthUser(t, "password123", true)}
	svc := newTestAuthService(repo)

	profile, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Prof. Lima", profile.Name)

	repo.user.Active = false
	_, err = svc.Profile(context.Background(), "user-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))

	_, err = svc.Profile(context.Background(), "ghost")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{})
	valid := func() *models.JWTClaims {
		return &models.JWTClaims{
			UserID: "user-1",
			Role:   models.RoleTeacher,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "gradebook-test",
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	_, err := svc.ValidateToken(signTestToken(t, "secret", valid()))
	require.NoError(t, err)

	foreign := signTestToken(t, "other", valid())
	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := valid()
	noExpiry.ExpiresAt = nil
	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"
	badRole := valid()
	badRole.Role = "STUDENT"
	mismatch := valid()
	mismatch.Subject = "user-2"

	for name, token := range map[string]string{
		"foreign secret": foreign,
		"expired":        signTestToken(t, "secret", expired),
		"no expiry":      signTestToken(t, "secret", noExpiry),
		"wrong issuer":   signTestToken(t, "secret", wrongIssuer),
		"unknown role":   signTestToken(t, "secret", badRole),
		"subject":        signTestToken(t, "secret", mismatch),
		"garbage":        "not.a.token",
	} {
		_, err := svc.ValidateToken(token)
		assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized), name)
	}
}
