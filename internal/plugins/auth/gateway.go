package auth

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// sessionCookieName is the HTTP cookie used to carry the session token.
const sessionCookieName = "rollcall_session"

// Landing paths for redirects.
const (
	loginPath  = "/login"
	memberHome = "/dashboard"
	adminHome  = "/admin"
)

// TargetClass is the access class of a request path.
type TargetClass int

const (
	ClassPublic TargetClass = iota
	ClassAuthEntry
	ClassMemberPage
	ClassAdminPage
	ClassMemberAPI
	ClassAdminAPI
)

func (t TargetClass) String() string {
	switch t {
	case ClassPublic:
		return "public"
	case ClassAuthEntry:
		return "auth-entry"
	case ClassMemberPage:
		return "member-page"
	case ClassAdminPage:
		return "admin-page"
	case ClassMemberAPI:
		return "member-api"
	case ClassAdminAPI:
		return "admin-api"
	default:
		return "unknown"
	}
}

// publicAPIPaths are API endpoints reachable without a session.
var publicAPIPaths = map[string]bool{
	"/api/auth/login":  true,
	"/api/admin/login": true,
	"/api/auth/logout": true,
	"/healthz":         true,
}

// Classify maps a request path to its access class. The path is cleaned
// first so dot segments cannot move a request between classes.
func Classify(rawPath string) TargetClass {
	p := path.Clean("/" + rawPath)

	switch {
	case p == "/login" || p == "/admin/login":
		return ClassAuthEntry
	case publicAPIPaths[p]:
		return ClassPublic
	case under(p, "/api/admin"):
		return ClassAdminAPI
	case under(p, "/api"):
		return ClassMemberAPI
	case under(p, "/admin"):
		return ClassAdminPage
	case under(p, "/dashboard"), under(p, "/profile"):
		return ClassMemberPage
	default:
		return ClassPublic
	}
}

// under reports whether p is prefix itself or a path below it.
func under(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Outcome is what the gateway does with a request.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Reject
)

// Decision is the result of evaluating one request.
type Decision struct {
	Outcome Outcome

	// Location is set for Redirect.
	Location string

	// Status is 401 or 403 for Reject.
	Status int

	// Claims holds the verified session, nil when there is none.
	Claims *Claims
}

// Gateway makes the per-request access decision and builds session cookies.
type Gateway struct {
	codec         *SessionCodec
	secureCookies bool
}

// NewGateway creates a gateway. secureCookies should be false only in
// development, where the app is served over plain HTTP.
func NewGateway(codec *SessionCodec, secureCookies bool) *Gateway {
	return &Gateway{codec: codec, secureCookies: secureCookies}
}

// Evaluate applies the access table to one request. A token that fails
// verification is treated exactly like no token.
func (g *Gateway) Evaluate(token string, class TargetClass, reqPath string) Decision {
	var claims *Claims
	if token != "" {
		if c, err := g.codec.Verify(token); err == nil {
			claims = c
		}
	}

	allow := Decision{Outcome: Allow, Claims: claims}
	toLogin := Decision{Outcome: Redirect, Location: loginPath + "?from=" + url.QueryEscape(reqPath)}
	toMember := Decision{Outcome: Redirect, Location: memberHome, Claims: claims}
	toAdmin := Decision{Outcome: Redirect, Location: adminHome, Claims: claims}

	switch class {
	case ClassPublic:
		return allow

	case ClassAuthEntry:
		switch {
		case claims == nil:
			return allow
		case claims.IsAdmin:
			return toAdmin
		default:
			return toMember
		}

	case ClassMemberPage:
		if claims == nil {
			return toLogin
		}
		return allow

	case ClassAdminPage:
		switch {
		case claims == nil:
			return toLogin
		case !claims.IsAdmin:
			return toMember
		default:
			return allow
		}

	case ClassMemberAPI:
		if claims == nil {
			return Decision{Outcome: Reject, Status: http.StatusUnauthorized}
		}
		return allow

	case ClassAdminAPI:
		switch {
		case claims == nil:
			return Decision{Outcome: Reject, Status: http.StatusUnauthorized}
		case !claims.IsAdmin:
			return Decision{Outcome: Reject, Status: http.StatusForbidden, Claims: claims}
		default:
			return allow
		}
	}

	return Decision{Outcome: Reject, Status: http.StatusForbidden, Claims: claims}
}

// SessionCookie wraps a freshly signed token.
func (g *Gateway) SessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(g.codec.TTL().Seconds()),
		Expires:  expiresAt,
	}
}

// Logout returns the cookie that clears a session. It is the same cookie
// whether or not the client had a session.
func (g *Gateway) Logout() *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
}
