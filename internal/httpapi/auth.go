package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 8 characters and contain upper case, lower case, digit and special characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidRole        = errors.New("invalid role")
)

// LockedError is returned while an account is locked after too many failed
// logins.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

type AuthManager struct {
	secret      []byte
	tokenTTL    time.Duration
	maxAttempts int
	lockout     time.Duration
	userStore   UserStore
	now         func() time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateLoginState(ctx context.Context, userID int64, attempts int, lockUntil *time.Time) error
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, maxAttempts int, lockout time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}

	return &AuthManager{
		secret:      []byte(secret),
		tokenTTL:    tokenTTL,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		userStore:   userStore,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies the credentials and issues a token. Each failed attempt is
// counted on the account; reaching the limit locks it for the lockout period.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.userStore.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}

	now := a.now()
	if user.LockUntil != nil && now.Before(*user.LockUntil) {
		return domain.LoginResponse{}, &LockedError{Until: *user.LockUntil}
	}

	if !verifyPassword(user.PasswordHash, req.Password) {
		attempts := user.LoginAttempts + 1
		var lockUntil *time.Time
		if attempts >= a.maxAttempts {
			until := now.Add(a.lockout)
			lockUntil = &until
			attempts = 0
			log.Printf("[auth] WARN: account locked user=%d until=%s", user.ID, until.Format(time.RFC3339))
		}
		if err := a.userStore.UpdateLoginState(ctx, user.ID, attempts, lockUntil); err != nil {
			return domain.LoginResponse{}, err
		}
		if lockUntil != nil {
			return domain.LoginResponse{}, &LockedError{Until: *lockUntil}
		}
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	if user.LoginAttempts != 0 || user.LockUntil != nil {
		if err := a.userStore.UpdateLoginState(ctx, user.ID, 0, nil); err != nil {
			return domain.LoginResponse{}, err
		}
	}

	expiresAt := now.Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("stockpos"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID < 1 {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: userID, Name: claims.Name, Email: claims.Email, Role: claims.Role}, nil
}

func (a *AuthManager) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "stockpos",
		},
		Role:  user.Role,
		Email: user.Email,
		Name:  user.Name,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Register creates an account with the given role after checking the email
// and password policy.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest, role string) (domain.UserView, error) {
	if role != domain.RoleAdmin && role != domain.RoleCashier {
		return domain.UserView{}, ErrInvalidRole
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.UserView{}, ErrInvalidEmail
	}
	if err := validatePassword(req.Password); err != nil {
		return domain.UserView{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserView{}, fmt.Errorf("failed to hash password")
	}

	created, err := a.userStore.CreateUser(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	})
	if err != nil {
		return domain.UserView{}, err
	}
	log.Printf("[auth] user registered id=%d role=%s", created.ID, created.Role)
	return toUserView(*created), nil
}

func (a *AuthManager) Profile(ctx context.Context, userID int64) (domain.UserView, error) {
	user, err := a.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return domain.UserView{}, err
	}
	return toUserView(*user), nil
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	return views, nil
}

// EnsureAdmin creates the bootstrap admin account, or resets its password
// when the account exists with a different one.
func (a *AuthManager) EnsureAdmin(ctx context.Context, email string, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	existing, err := a.userStore.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_, err := a.Register(ctx, domain.RegisterRequest{Name: "Administrator", Email: email, Password: password}, domain.RoleAdmin)
		return err
	case err != nil:
		return err
	}

	if existing.Role != domain.RoleAdmin {
		return fmt.Errorf("bootstrap account %s exists with role %s", email, existing.Role)
	}
	if verifyPassword(existing.PasswordHash, password) {
		return nil
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	passwordHash, err := hashPassword(password)
	if err != nil {
		return err
	}
	log.Printf("[auth] bootstrap admin password refreshed id=%d", existing.ID)
	return a.userStore.UpdateUserPassword(ctx, existing.ID, passwordHash)
}

// UpgradeLegacyPasswords rehashes accounts whose password was stored in
// plain text, returning how many were upgraded.
func (a *AuthManager) UpgradeLegacyPasswords(ctx context.Context) (int, error) {
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	upgraded := 0
	for _, user := range users {
		if user.PasswordHash == "" || isPasswordHash(user.PasswordHash) {
			continue
		}
		hashed, err := hashPassword(user.PasswordHash)
		if err != nil {
			return upgraded, err
		}
		if err := a.userStore.UpdateUserPassword(ctx, user.ID, hashed); err != nil {
			return upgraded, err
		}
		upgraded++
	}
	return upgraded, nil
}

func toUserView(u domain.User) domain.UserView {
	return domain.UserView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
