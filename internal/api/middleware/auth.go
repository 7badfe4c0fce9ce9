package middleware

import (
	"context"
	"errors"
	"net/http"

	"codenvibe/internal/common"
	"codenvibe/internal/common/security"
	"codenvibe/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	TeamIDCtxKey contextKey = "teamID"
	RoleCtxKey   contextKey = "role"
	YearCtxKey   contextKey = "year"
)

// Verifier looks for the token in the Authorization header first and then in
// the auth cookie set by the login service.
func Verifier(cookieName string) func(http.Handler) http.Handler {
	return jwtauth.Verify(security.TokenAuth, jwtauth.TokenFromHeader, func(r *http.Request) string {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			return ""
		}
		return cookie.Value
	})
}

type identity struct {
	teamID  string
	role    string
	year    int
	hasYear bool
}

func identify(r *http.Request) (*identity, error) {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, jwtauth.ErrNoTokenFound
	}

	role, err := security.GetRoleFromClaims(claims)
	if err != nil {
		return nil, err
	}
	teamID, err := security.GetTeamIDFromClaims(claims)
	if err != nil && role != model.RoleAdmin {
		return nil, err
	}
	year, ok := security.GetYearFromClaims(claims)
	if !ok && role != model.RoleAdmin {
		return nil, errors.New("year claim is missing")
	}
	return &identity{teamID: teamID, role: role, year: year, hasYear: ok}, nil
}

func (id *identity) into(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, TeamIDCtxKey, id.teamID)
	ctx = context.WithValue(ctx, RoleCtxKey, id.role)
	if id.hasYear {
		ctx = context.WithValue(ctx, YearCtxKey, id.year)
	}
	return ctx
}

func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := identify(r)
		if err != nil {
			if errors.Is(err, jwtauth.ErrNoTokenFound) {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			} else {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(id.into(r.Context())))
	})
}

// Identify attaches the caller's identity when a valid token is present and
// lets anonymous requests through unchanged.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := identify(r); err == nil {
			r = r.WithContext(id.into(r.Context()))
		}
		next.ServeHTTP(w, r)
	})
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := r.Context().Value(RoleCtxKey).(string)
		if !ok || role != model.RoleAdmin {
			common.RespondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetTeamIDFromContext(ctx context.Context) (string, bool) {
	teamID, ok := ctx.Value(TeamIDCtxKey).(string)
	return teamID, ok && teamID != ""
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleCtxKey).(string)
	return role, ok
}

func GetYearFromContext(ctx context.Context) (int, bool) {
	year, ok := ctx.Value(YearCtxKey).(int)
	return year, ok
}

func IsAdmin(ctx context.Context) bool {
	role, _ := GetRoleFromContext(ctx)
	return role == model.RoleAdmin
}
