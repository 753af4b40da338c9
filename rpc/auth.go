package rpc

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// callerIdentity resolves the account submitting the request. With an auth
// secret configured the caller presents a bearer JWT whose subject is the
// account; in insecure mode (local development) the X-Caller header is
// trusted as-is.
func (s *Server) callerIdentity(r *http.Request) (string, *RPCError) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if s.allowInsecure {
			if caller := strings.TrimSpace(r.Header.Get("X-Caller")); caller != "" {
				return caller, nil
			}
		}
		return "", &RPCError{Code: codeUnauthorized, Message: "authorization required"}
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", &RPCError{Code: codeUnauthorized, Message: "malformed authorization header"}
	}
	caller, err := s.verifyToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	return caller, nil
}

func (s *Server) verifyToken(raw string) (string, error) {
	if len(s.authSecret) == 0 {
		return "", fmt.Errorf("token auth not configured")
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.authSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return strings.TrimSpace(subject), nil
}

// IssueToken mints a caller token for the given account, used by operational
// tooling and tests.
func IssueToken(secret []byte, account string) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("auth secret required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strings.TrimSpace(account),
	})
	return token.SignedString(secret)
}
