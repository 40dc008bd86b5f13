package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"elympics/pkg/core"
)

// JWT 相关配置
const (
	// Session 有效期：一局游戏的时间
	SessionTTL = 5 * time.Minute

	// Token 签名者
	tokenIssuer = "elympics-server"
)

var ErrInvalidToken = errors.New("无效的 token")

// Claims 定义 JWT Claims
type Claims struct {
	PlayerID int32  `json:"player_id"`
	MatchID  string `json:"match_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer 签发与校验对局 token
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer 使用 HS256 密钥创建签发者
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// Generate 生成会话 Token，matchID 为空表示可加入任意对局
func (i *TokenIssuer) Generate(playerID int32, matchID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	now := i.now()
	claims := Claims{
		PlayerID: playerID,
		MatchID:  matchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprintf("player-%d", playerID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify 验证并解析 Token
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(i.now))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.PlayerID < 0 || claims.PlayerID > core.MaxPlayerID {
		return nil, fmt.Errorf("%w: 玩家编号 %d", ErrInvalidToken, claims.PlayerID)
	}
	return claims, nil
}
