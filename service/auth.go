package service

import (
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zlnvch/flipbook/models"
)

const tokenLifetime = 24 * time.Hour

// CreateSession issues a peer identity for a display name. The color is the
// palette color for the name, so the same name always gets the same color.
func (s *Service) CreateSession(name string) (models.Peer, string, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return models.Peer{}, "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Peer{}, "", err
	}

	peer := models.Peer{Id: id.String(), Name: name, Color: models.ColorForName(name)}
	token, err := s.CreateJWT(peer)
	if err != nil {
		return models.Peer{}, "", err
	}
	return peer, token, nil
}

func (s *Service) CreateJWT(peer models.Peer) (string, error) {
	claims := jwt.MapClaims{
		"id":    peer.Id,
		"name":  peer.Name,
		"color": peer.Color,
		"exp":   time.Now().Add(tokenLifetime).Unix(),
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

func (s *Service) VerifyJWT(tokenString string) (models.Peer, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Peer{}, time.Time{}, err
	}

	if !token.Valid {
		return models.Peer{}, time.Time{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Peer{}, time.Time{}, errors.New("invalid token claims")
	}

	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return models.Peer{}, time.Time{}, errors.New("missing id claim")
	}

	name, ok := claims["name"].(string)
	if !ok {
		return models.Peer{}, time.Time{}, errors.New("missing name claim")
	}

	color, _ := claims["color"].(string)
	if !hexColorRegex.MatchString(color) {
		color = models.ColorForName(name)
	}

	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return models.Peer{}, time.Time{}, errors.New("missing exp claim")
	}
	expiry := time.Unix(int64(expFloat), 0)

	return models.Peer{Id: id, Name: name, Color: color}, expiry, nil
}

func (s *Service) AuthenticateToken(token string) (models.Peer, error) {
	if len(token) == 0 {
		return models.Peer{}, errors.New("token not provided")
	}

	peer, _, err := s.VerifyJWT(token)
	if err != nil {
		return models.Peer{}, err
	}
	return peer, nil
}
