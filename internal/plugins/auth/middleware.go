package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rollcall/internal/apperror"
)

// contextKeyClaims stores verified session claims in the Echo context.
// Other plugins read them through GetClaims.
const contextKeyClaims = "auth_claims"

// Guard returns middleware that applies the gateway decision to every
// request. Verified claims are stored in the context for downstream
// handlers. A cookie that fails verification is cleared.
func Guard(g *Gateway) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := getSessionToken(c)
			reqPath := c.Request().URL.Path

			d := g.Evaluate(token, Classify(reqPath), reqPath)
			if token != "" && d.Claims == nil {
				c.SetCookie(g.Logout())
			}

			switch d.Outcome {
			case Allow:
				if d.Claims != nil {
					c.Set(contextKeyClaims, d.Claims)
				}
				return next(c)
			case Redirect:
				return c.Redirect(http.StatusSeeOther, d.Location)
			}

			if d.Status == http.StatusUnauthorized {
				return apperror.NewUnauthorized("authentication required")
			}
			return apperror.NewForbidden("admin access required")
		}
	}
}

// --- Exported getters for other plugins ---

// GetClaims retrieves the verified session from the Echo context. Returns
// nil if the request has no session.
func GetClaims(c echo.Context) *Claims {
	claims, ok := c.Get(contextKeyClaims).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// getSessionToken reads the session cookie value, or "" when absent.
func getSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
