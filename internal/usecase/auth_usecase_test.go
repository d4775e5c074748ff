package usecase

import (
	"context"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

type rtRepoMock struct{ mock.Mock }

func (m *rtRepoMock) Create(ctx context.Context, token *model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *rtRepoMock) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	rt, _ := args.Get(0).(*model.RefreshToken)
	return rt, args.Error(1)
}

func (m *rtRepoMock) MarkUsed(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *rtRepoMock) Revoke(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *rtRepoMock) DeleteAllByUserID(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *rtRepoMock) DeleteByID(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

// validatorは素通しにしてusecase本体だけ見る
type passValidator struct{}

func (passValidator) ValidateRegister(ctx context.Context, email, password string) error { return nil }
func (passValidator) ValidateLogin(ctx context.Context, email, password string) error    { return nil }
func (passValidator) ValidateRefresh(ctx context.Context, refreshToken, userAgent string) error {
	return nil
}
func (passValidator) ValidateForceLogout(ctx context.Context, targetUserID int64) error { return nil }

func newAuthFixture() (*UserRepoMock, *rtRepoMock, *AuthUsecase) {
	users := &UserRepoMock{}
	rts := &rtRepoMock{}
	uc := NewAuthUsecase(config.Config{JWTSecret: "test-secret"}, users, rts, passValidator{})
	return users, rts, uc
}

func TestRegister_HashesPassword(t *testing.T) {
	users, _, uc := newAuthFixture()

	users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		//平文は保存されない
		if u.PasswordHash == "password123" {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password123")) == nil
	})).Return(nil)

	out, err := uc.Register(context.Background(), AuthRegisterRequest{
		Email:    "user@example.com",
		Password: "password123",
	})

	assert.NoError(t, err)
	assert.Equal(t, "user@example.com", out.User.Email)
	users.AssertExpectations(t)
}

func TestLogin_Success(t *testing.T) {
	users, rts, uc := newAuthFixture()

	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	users.On("FindByEmail", mock.Anything, "user@example.com").
		Return(&model.User{ID: 1, Email: "user@example.com", PasswordHash: string(hash), Role: model.RoleUser, IsActive: true}, nil)
	users.On("Update", mock.Anything, mock.Anything).Return(nil)

	var savedHash string
	rts.On("Create", mock.Anything, mock.MatchedBy(func(rt *model.RefreshToken) bool {
		savedHash = rt.TokenHash
		return rt.UserID == 1 && rt.TokenHash != "" && rt.ExpiresAt.After(time.Now())
	})).Return(nil)

	res, err := uc.Login(context.Background(), AuthLoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	}, "test-agent")

	assert.NoError(t, err)
	assert.NotEmpty(t, res.Body.Token.AccessToken)
	assert.NotEmpty(t, res.RefreshTokenPlain)

	//DBに入るのは平文ではなくhash
	assert.NotEqual(t, res.RefreshTokenPlain, savedHash)
	assert.Equal(t, hashToken(res.RefreshTokenPlain), savedHash)
}

func TestLogin_WrongPassword(t *testing.T) {
	users, _, uc := newAuthFixture()

	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	users.On("FindByEmail", mock.Anything, "user@example.com").
		Return(&model.User{ID: 1, PasswordHash: string(hash), IsActive: true}, nil)

	_, err := uc.Login(context.Background(), AuthLoginRequest{
		Email:    "user@example.com",
		Password: "wrong",
	}, "test-agent")

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogin_InactiveUser(t *testing.T) {
	users, _, uc := newAuthFixture()

	users.On("FindByEmail", mock.Anything, "user@example.com").
		Return(&model.User{ID: 1, IsActive: false}, nil)

	_, err := uc.Login(context.Background(), AuthLoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	}, "test-agent")

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRefresh_RotatesToken(t *testing.T) {
	users, rts, uc := newAuthFixture()

	rts.On("FindByTokenHash", mock.Anything, hashToken("old-plain")).
		Return(&model.RefreshToken{
			ID:        "rt-1",
			UserID:    1,
			TokenHash: hashToken("old-plain"),
			UserAgent: "test-agent",
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil)
	users.On("FindByID", mock.Anything, int64(1)).
		Return(&model.User{ID: 1, Email: "user@example.com", Role: model.RoleUser, IsActive: true}, nil)
	rts.On("MarkUsed", mock.Anything, "rt-1").Return(nil)
	rts.On("Create", mock.Anything, mock.Anything).Return(nil)

	res, err := uc.Refresh(context.Background(), "old-plain", "test-agent")

	assert.NoError(t, err)
	assert.NotEmpty(t, res.Body.AccessToken)
	assert.NotEqual(t, "old-plain", res.RefreshTokenPlain)
	rts.AssertCalled(t, "MarkUsed", mock.Anything, "rt-1")
}

func TestRefresh_ReplayDetected_DeletesAllTokens(t *testing.T) {
	_, rts, uc := newAuthFixture()

	used := time.Now().Add(-time.Minute)
	rts.On("FindByTokenHash", mock.Anything, hashToken("replayed")).
		Return(&model.RefreshToken{
			ID:        "rt-1",
			UserID:    1,
			ExpiresAt: time.Now().Add(time.Hour),
			UsedAt:    &used,
		}, nil)
	rts.On("DeleteAllByUserID", mock.Anything, int64(1)).Return(nil)

	_, err := uc.Refresh(context.Background(), "replayed", "test-agent")

	assert.ErrorIs(t, err, ErrSecurityIncident)
	rts.AssertCalled(t, "DeleteAllByUserID", mock.Anything, int64(1))
}

func TestRefresh_Expired(t *testing.T) {
	_, rts, uc := newAuthFixture()

	rts.On("FindByTokenHash", mock.Anything, hashToken("expired")).
		Return(&model.RefreshToken{
			ID:        "rt-1",
			UserID:    1,
			ExpiresAt: time.Now().Add(-time.Minute),
		}, nil)
	rts.On("DeleteByID", mock.Anything, "rt-1").Return(nil)

	_, err := uc.Refresh(context.Background(), "expired", "test-agent")

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestForceLogout(t *testing.T) {
	users, rts, uc := newAuthFixture()

	users.On("IncrementTokenVersion", mock.Anything, int64(5)).Return(nil)
	rts.On("DeleteAllByUserID", mock.Anything, int64(5)).Return(nil)
	users.On("FindByID", mock.Anything, int64(5)).
		Return(&model.User{ID: 5, TokenVersion: 4}, nil)

	res, err := uc.ForceLogout(context.Background(), 5)

	assert.NoError(t, err)
	assert.Equal(t, int64(5), res.UserID)
	assert.Equal(t, 4, res.NewTokenVersion)
}
