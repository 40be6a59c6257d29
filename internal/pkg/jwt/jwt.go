package jwt

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var ErrNoEmployee = errors.New("token is not bound to an employee")

// Claims are the access token claims the engine relies on. Tokens are issued by the
// HRIS backend with the same secret.
type Claims struct {
	UserID     string
	EmployeeID string
	CompanyID  string
}

type Service interface {
	JWTAuth() *jwtauth.JWTAuth
	GenerateAccessToken(claims Claims, ttl time.Duration) (token string, expiresAt int64, err error)
	ClaimsFromToken(token jwt.Token) (Claims, error)
}

type JWTService struct {
	tokenAuth *jwtauth.JWTAuth
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func NewJWTService(secretKey string, skew time.Duration) Service {
	return &JWTService{
		tokenAuth: jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(skew)),
	}
}

func (j *JWTService) GenerateAccessToken(claims Claims, ttl time.Duration) (token string, expiresAt int64, err error) {
	expiresAt = time.Now().Add(ttl).Unix()
	_, tokenString, err := j.tokenAuth.Encode(map[string]interface{}{
		"user_id":     claims.UserID,
		"employee_id": claims.EmployeeID,
		"company_id":  claims.CompanyID,
		"type":        "access",
		"exp":         expiresAt,
	})
	return tokenString, expiresAt, err
}

// ClaimsFromToken accepts access tokens that carry an employee id.
func (j *JWTService) ClaimsFromToken(token jwt.Token) (Claims, error) {
	if token == nil {
		return Claims{}, jwt.ErrInvalidJWT()
	}
	if tokenType, ok := token.Get("type"); !ok || tokenType != "access" {
		return Claims{}, jwt.ErrInvalidJWT()
	}

	claims := Claims{
		UserID:     stringClaim(token, "user_id"),
		EmployeeID: stringClaim(token, "employee_id"),
		CompanyID:  stringClaim(token, "company_id"),
	}
	if claims.EmployeeID == "" {
		return Claims{}, ErrNoEmployee
	}
	return claims, nil
}

func stringClaim(token jwt.Token, key string) string {
	v, ok := token.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
