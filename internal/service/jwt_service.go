package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"memory-filter/internal/domain"
)

// JWTService valida (y para herramientas y tests, emite) los tokens con los
// que el host identifica al usuario de cada llamada.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

// NewJWTService crea el servicio. Con issuer vacío no se valida el emisor.
func NewJWTService(secret string, ttl time.Duration, issuer string) *JWTService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: strings.TrimSpace(issuer),
	}
}

func (s *JWTService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Issue firma un token de identidad para el usuario.
func (s *JWTService) Issue(user domain.User) (string, error) {
	if !s.Enabled() {
		return "", ErrJWTInvalid
	}
	if user.MemoryUserID() == "" {
		return "", ErrJWTInvalid
	}
	now := time.Now().UTC()
	subject := user.ID
	if subject == "" {
		subject = user.MemoryUserID()
	}
	claims := Claims{
		Email: user.MemoryUserID(),
		Name:  user.Name,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse valida el token y devuelve sus claims.
func (s *JWTService) Parse(tokenString string) (Claims, error) {
	if !s.Enabled() {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(claims.Email) == "" {
		return Claims{}, ErrJWTInvalid
	}
	if s.issuer != "" && strings.TrimSpace(claims.Issuer) != s.issuer {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// User convierte los claims en el descriptor de usuario del host.
func (c Claims) User() domain.User {
	return domain.User{
		ID:    c.Subject,
		Email: strings.TrimSpace(c.Email),
		Name:  c.Name,
		Role:  c.Role,
	}
}
