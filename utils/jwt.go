package utils

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim admin tokens must carry.
const TokenIssuer = "hr-platform-auth"

var signingKey atomic.Value // []byte

func init() {
	signingKey.Store([]byte(os.Getenv("JWT_SECRET")))
}

// SetJWTSecret 관리자 토큰 서명 키 설정 (config 로드 후 호출)
func SetJWTSecret(secret string) {
	signingKey.Store([]byte(secret))
}

// Claims 관리자 토큰 클레임. 토큰은 외부 인증 서비스가 발급한다.
type Claims struct {
	AdminID  string `json:"admin_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken 관리자 토큰 발급. 운영에서는 인증 서비스가 같은 형식으로 발급하며,
// 서버에서는 테스트와 운영 도구용으로만 쓴다. 만료 시각(unix)을 함께 돌려준다.
func GenerateToken(adminID, username, role string, ttl time.Duration) (string, int64, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := Claims{
		AdminID:  adminID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey.Load().([]byte))
	if err != nil {
		return "", 0, err
	}
	return signed, expires.Unix(), nil
}

// ValidateToken 서명, 알고리즘, 발급자, 만료를 검사하고 클레임을 돌려줍니다.
func ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return signingKey.Load().([]byte), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if claims.AdminID == "" {
		return nil, errors.New("token has no admin_id")
	}
	return claims, nil
}
