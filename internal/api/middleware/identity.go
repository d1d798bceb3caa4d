package middleware

import (
    "context"
    "net/http"
    "strings"
    "time"
    "github.com/golang-jwt/jwt/v5"
    "github.com/umlstudio/engine/internal/realtime"
)

type userKeyType string

const (
    UserIDKey   userKeyType = "user_id"
    UserNameKey userKeyType = "user_name"
)

// Identity reads an optional Bearer JWT signed with hmacSecret and puts the
// subject and name claims in the context. Requests without a token pass
// through anonymous; a token that does not verify is rejected. Browsers
// cannot set headers on websocket upgrades, so the token may also come in
// the access_token query parameter.
func Identity(hmacSecret []byte) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            tokenStr := bearer(r)
            if tokenStr == "" || len(hmacSecret) == 0 {
                next.ServeHTTP(w, r)
                return
            }
            claims, err := ParseToken(hmacSecret, tokenStr)
            if err != nil {
                http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
                return
            }
            uid, _ := claims["sub"].(string)
            name, _ := claims["name"].(string)
            ctx := context.WithValue(r.Context(), UserIDKey, uid)
            ctx = context.WithValue(ctx, UserNameKey, name)
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

// RequireUser rejects requests that carry no verified identity.
func RequireUser(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if GetUserID(r.Context()) == "" {
            http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func bearer(r *http.Request) string {
    ah := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
        return strings.TrimSpace(ah[len("Bearer "):])
    }
    return r.URL.Query().Get("access_token")
}

// ParseToken verifies an HMAC-signed token and returns its claims.
func ParseToken(hmacSecret []byte, tokenStr string) (jwt.MapClaims, error) {
    token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok { return nil, jwt.ErrSignatureInvalid }
        return hmacSecret, nil
    })
    if err != nil {
        return nil, err
    }
    if !token.Valid {
        return nil, jwt.ErrTokenInvalidClaims
    }
    claims, ok := token.Claims.(jwt.MapClaims)
    if !ok {
        return nil, jwt.ErrTokenInvalidClaims
    }
    return claims, nil
}

// SignToken issues a token for user, valid for ttl.
func SignToken(hmacSecret []byte, user realtime.UserInfo, ttl time.Duration) (string, error) {
    now := time.Now()
    claims := jwt.MapClaims{
        "sub":  user.UserID,
        "name": user.UserName,
        "iat":  now.Unix(),
        "exp":  now.Add(ttl).Unix(),
    }
    return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(hmacSecret)
}

func GetUserID(ctx context.Context) string {
    if v := ctx.Value(UserIDKey); v != nil {
        if s, ok := v.(string); ok { return s }
    }
    return ""
}

// GetUser returns the verified identity in ctx, if any.
func GetUser(ctx context.Context) (realtime.UserInfo, bool) {
    id := GetUserID(ctx)
    if id == "" {
        return realtime.UserInfo{}, false
    }
    name, _ := ctx.Value(UserNameKey).(string)
    if name == "" {
        name = id
    }
    return realtime.UserInfo{UserID: id, UserName: name}, true
}
