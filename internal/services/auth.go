package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/apierr"
	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/requestdata"
	"github.com/yungbote/chatstream-backend/internal/types"
)

type JWTClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

type AuthService interface {
	RegisterUser(ctx context.Context, email, password string) (*types.User, string, error)
	LoginUser(ctx context.Context, email, password string) (*types.User, string, error)
	GuestUser(ctx context.Context) (*types.User, string, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     repos.UserRepo
	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, jwtSecretKey string, accessTTL time.Duration) AuthService {
	return &authService{
		db:           db,
		log:          log.With("service", "AuthService"),
		userRepo:     userRepo,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
	}
}

func (as *authService) RegisterUser(ctx context.Context, email, password string) (*types.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", apierr.BadRequest(fmt.Errorf("invalid email address"))
	}
	if len(password) < 8 {
		return nil, "", apierr.BadRequest(fmt.Errorf("password must be at least 8 characters"))
	}
	exists, err := as.userRepo.EmailExists(ctx, nil, email)
	if err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("check email: %w", err))
	}
	if exists {
		return nil, "", apierr.BadRequest(fmt.Errorf("email already registered"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("hash password: %w", err))
	}
	user := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hash),
		Tier:     types.TierRegistered,
	}
	if _, err := as.userRepo.Create(ctx, nil, []*types.User{user}); err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("create user: %w", err))
	}
	token, err := as.generateAccessToken(user)
	if err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("sign token: %w", err))
	}
	as.log.Info("User registered", "user_id", user.ID.String())
	return user, token, nil
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (*types.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	users, err := as.userRepo.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("lookup user: %w", err))
	}
	if len(users) == 0 {
		return nil, "", apierr.Unauthorized(fmt.Errorf("invalid email or password"))
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", apierr.Unauthorized(fmt.Errorf("invalid email or password"))
	}
	token, err := as.generateAccessToken(user)
	if err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("sign token: %w", err))
	}
	return user, token, nil
}

// GuestUser mints an anonymous account so unauthenticated visitors can chat
// under the guest quota. Guest emails are synthetic and never routable.
func (as *authService) GuestUser(ctx context.Context) (*types.User, string, error) {
	id := uuid.New()
	user := &types.User{
		ID:    id,
		Email: fmt.Sprintf("guest-%s@guest.local", id.String()),
		Tier:  types.TierGuest,
	}
	if _, err := as.userRepo.Create(ctx, nil, []*types.User{user}); err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("create guest user: %w", err))
	}
	token, err := as.generateAccessToken(user)
	if err != nil {
		return nil, "", apierr.Internal(fmt.Errorf("sign token: %w", err))
	}
	as.log.Debug("Guest user created", "user_id", id.String())
	return user, token, nil
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
	claims := JWTClaims{
		Tier: string(user.Tier),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, apierr.Unauthorized(errors.New("missing token"))
	}
	parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return ctx, apierr.Unauthorized(fmt.Errorf("parse token: %w", err))
	}
	claims, ok := parsedToken.Claims.(*JWTClaims)
	if !ok || !parsedToken.Valid {
		return ctx, apierr.Unauthorized(errors.New("invalid or expired token"))
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Unauthorized(fmt.Errorf("invalid user id in token: %w", err))
	}
	tier := types.UserTier(claims.Tier)
	if !tier.Valid() {
		tier = types.TierGuest
	}
	rd := &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		Tier:        tier,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
