package utils

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const (
	MemberIDKey contextKey = "memberID"
	RoleKey     contextKey = "role"
)

const (
	RoleHost  = "host"
	RoleGuest = "guest"
)

// Claims is the token payload issued by the identity service. The core only
// ever reads the member id and role out of it.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func GetMemberIDFromContext(r *http.Request) (uint, error) {
    memberID, ok := r.Context().Value(MemberIDKey).(uint)
    if !ok {
        return 0, errors.New("member ID not found in context")
    }
    return memberID, nil
}

func GetRoleFromContext(r *http.Request) (string, error) {
    role, ok := r.Context().Value(RoleKey).(string)
    if !ok {
        return "", errors.New("role not found in context")
    }
    return role, nil
}

func AuthMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        // Get token from Authorization header
        authHeader := r.Header.Get("Authorization")
        if authHeader == "" {
            http.Error(w, "Authorization header required", http.StatusUnauthorized)
            return
        }

        // Extract the token
        tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

        // Parse and validate the token
        claims := &Claims{}
        token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
            return []byte(os.Getenv("SECRET_KEY")), nil
        })

        if err != nil || !token.Valid {
            http.Error(w, "Invalid token", http.StatusUnauthorized)
            return
        }

        memberID, err := strconv.ParseUint(claims.Subject, 10, 64)
        if err != nil {
            http.Error(w, "Invalid member ID in token", http.StatusUnauthorized)
            return
        }

        ctx := context.WithValue(r.Context(), MemberIDKey, uint(memberID))
        ctx = context.WithValue(ctx, RoleKey, claims.Role)
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}
