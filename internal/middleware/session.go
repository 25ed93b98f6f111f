package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	accessTokenCookie = "sb-access-token"
	authCookiePrefix  = "sb-"
	authCookieSuffix  = "-auth-token"
	base64Prefix      = "base64-"
)

// ExtractAccessToken finds the caller's access token.
// Order: Authorization header, sb-access-token cookie, then the
// sb-<project>-auth-token cookie, which may be split into numbered chunks.
func ExtractAccessToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if raw := authCookieValue(r.Cookies()); raw != "" {
		return decodeAuthCookie(raw)
	}
	return ""
}

type cookieChunk struct {
	index int
	value string
}

// authCookieValue reassembles the auth-token cookie, joining chunks in index order.
// With cookies for several projects, the lowest cookie name wins; a whole cookie beats chunks.
func authCookieValue(cookies []*http.Cookie) string {
	wholes := map[string]string{}
	chunks := map[string][]cookieChunk{}

	for _, c := range cookies {
		if !strings.HasPrefix(c.Name, authCookiePrefix) {
			continue
		}
		name := c.Name
		if strings.HasSuffix(name, authCookieSuffix) {
			if _, ok := wholes[name]; !ok && c.Value != "" {
				wholes[name] = c.Value
			}
			continue
		}

		dot := strings.LastIndex(name, ".")
		if dot < 0 || !strings.HasSuffix(name[:dot], authCookieSuffix) {
			continue
		}
		idx, err := strconv.Atoi(name[dot+1:])
		if err != nil || idx < 0 {
			continue
		}
		base := name[:dot]
		chunks[base] = append(chunks[base], cookieChunk{index: idx, value: c.Value})
	}

	if name := lowestKey(wholes); name != "" {
		return wholes[name]
	}

	base := lowestKey(chunks)
	if base == "" {
		return ""
	}
	parts := chunks[base]
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].index < parts[j].index })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.value)
	}
	return b.String()
}

func lowestKey[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return keys[0]
}

// decodeAuthCookie pulls access_token out of the stored session JSON
func decodeAuthCookie(raw string) string {
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		raw = unescaped
	}

	if strings.HasPrefix(raw, base64Prefix) {
		encoded := strings.TrimPrefix(raw, base64Prefix)
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			decoded, err = base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return ""
			}
		}
		raw = string(decoded)
	}

	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "{"):
		var session struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return ""
		}
		return session.AccessToken
	case strings.HasPrefix(raw, "["):
		// Older clients stored [access_token, refresh_token, ...]
		var tuple []interface{}
		if err := json.Unmarshal([]byte(raw), &tuple); err != nil || len(tuple) == 0 {
			return ""
		}
		token, _ := tuple[0].(string)
		return token
	default:
		return ""
	}
}
