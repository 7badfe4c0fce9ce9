package security

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"codenvibe/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.JWTKey, nil)
}

// GenerateToken issues the token the participant and admin apps carry in the
// auth cookie. Login itself lives outside this service.
func GenerateToken(teamID, role string, year int) (string, error) {
	claims := jwt.MapClaims{
		"team_id": teamID,
		"role":    role,
		"year":    year,
		"exp":     time.Now().Add(config.AppConfig.JWTExp).Unix(),
		"iat":     time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

func GetTeamIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["team_id"].(string)
	if !ok || id == "" {
		return "", errors.New("team_id claim is missing or not a string")
	}
	return id, nil
}

func GetRoleFromClaims(claims jwt.MapClaims) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}

// GetYearFromClaims reads the cohort claim. Admin tokens may omit it.
func GetYearFromClaims(claims jwt.MapClaims) (int, bool) {
	switch v := claims["year"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}
