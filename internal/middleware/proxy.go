package middleware

import (
	"log/slog"
	"net"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures Echo to read the client IP from X-Forwarded-For
// when the connection comes from one of the given CIDRs.
//
// Rollcall runs behind a reverse proxy. Without this config c.RealIP() would
// return the proxy's IP and every client would share one throttle bucket.
// Headers from untrusted peers are ignored so clients cannot pick their own
// throttle identity.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

// buildIPExtractor returns echo's X-Forwarded-For extractor restricted to
// the configured CIDRs. The list is walked right to left and the first hop
// outside those ranges is the client, so entries a client prepends itself
// are never reached. X-Real-IP is not consulted: proxies usually pass a
// client-sent value through unchanged.
func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		opts = append(opts, echo.TrustIPRange(network))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
