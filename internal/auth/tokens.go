package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Spok95/vetclinic-bot/internal/domain/users"
)

const (
	PurposeLogin  = "telegram-login"
	PurposeAccess = "access"

	LoginTTL  = 15 * time.Minute
	AccessTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenUsed    = errors.New("login token already used")
)

type Claims struct {
	jwt.RegisteredClaims
	Purpose string     `json:"purpose"`
	Role    users.Role `json:"role,omitempty"`
}

// UserID: идентификатор пользователя из sub.
func (c Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Issuer подписывает и проверяет токены общим секретом приложения (HS256).
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

func (i *Issuer) sign(userID int64, purpose string, role users.Role, ttl time.Duration) (string, *Claims, error) {
	now := i.now()
	c := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
		Role:    role,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return s, c, nil
}

// LoginToken: одноразовый короткоживущий токен для ссылки входа из бота.
func (i *Issuer) LoginToken(userID int64) (string, error) {
	s, _, err := i.sign(userID, PurposeLogin, "", LoginTTL)
	return s, err
}

func (i *Issuer) AccessToken(u users.User) (string, error) {
	s, _, err := i.sign(u.ID, PurposeAccess, u.Role, AccessTTL)
	return s, err
}

func (i *Issuer) Parse(token, purpose string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if c.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q", ErrInvalidToken, c.Purpose)
	}
	return &c, nil
}

// LoginURL добавляет токен к адресу страницы входа фронтенда.
func LoginURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse login url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
