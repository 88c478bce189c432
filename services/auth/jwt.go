package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dukapay-billing-api/models"
)

// TokenDuration is how long a minted service token stays valid.
const TokenDuration = 1 * time.Hour

var (
	ErrInvalidSharedKey = errors.New("invalid shared key")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidToken     = errors.New("invalid token")
)

// JWTService mints and validates the HS256 service tokens backend callers
// present on the initiate endpoint. There is no user store; callers
// authenticate with a deployment-wide shared key.
type JWTService struct {
	secretKey []byte
	issuer    string
	sharedKey string
}

type Claims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

func NewJWTService(secretKey, issuer, sharedKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		sharedKey: sharedKey,
	}
}

// IssueToken authenticates a caller by shared key and mints a token for it.
func (j *JWTService) IssueToken(clientID, sharedKey string) (*models.TokenResponse, error) {
	if clientID == "" {
		return nil, errors.New("client_id is required")
	}
	if sharedKey != j.sharedKey {
		return nil, ErrInvalidSharedKey
	}

	token, expiresAt, err := j.GenerateToken(clientID, TokenDuration)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %v", err)
	}

	return &models.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (j *JWTService) GenerateToken(clientID string, duration time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(duration)

	claims := Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func (j *JWTService) ValidateToken(tokenString string) (*models.AuthClient, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &models.AuthClient{ClientID: claims.ClientID}, nil
}
