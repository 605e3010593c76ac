package devserver

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type user struct {
	ID       int64
	Username string
	Password string
}

// Auth issues and verifies HS256 access tokens for a fixed user list.
type Auth struct {
	secret []byte
	ttl    time.Duration
	users  map[string]user
	now    func() time.Time
}

func NewAuth(secret string, ttl time.Duration, users map[string]string) *Auth {
	a := &Auth{secret: []byte(secret), ttl: ttl, users: map[string]user{}, now: time.Now}
	var next int64
	for _, name := range slices.Sorted(maps.Keys(users)) {
		next++
		a.users[name] = user{ID: next, Username: name, Password: users[name]}
	}
	return a
}

var errBadCredentials = errors.New("Incorrect username or password")

// Login checks credentials and returns a signed access token.
func (a *Auth) Login(username, password string) (string, error) {
	u, ok := a.users[username]
	if !ok || subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
		return "", errBadCredentials
	}
	now := a.now()
	claims := JWTClaims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) Verify(tokenString string) (*JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("Failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("Invalid or expired JWT token")
	}
	if _, known := a.users[claims.Username]; !known {
		return nil, errors.New("unknown user")
	}
	return claims, nil
}

func (a *Auth) userID(username string) int64 { return a.users[username].ID }
