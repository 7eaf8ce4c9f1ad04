package middleware

import (
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

// ParseAllowlist accepte des adresses isolées et des plages CIDR.
func ParseAllowlist(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q: %w", e, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// SourceIPAllowlist refuse (403) les webhooks venant d'une adresse hors liste.
// Une liste vide désactive le contrôle.
func SourceIPAllowlist(allowed []netip.Prefix) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}

		addr, err := netip.ParseAddr(c.ClientIP())
		if err == nil {
			addr = addr.Unmap()
			for _, p := range allowed {
				if p.Contains(addr) {
					c.Next()
					return
				}
			}
		}

		log.Printf("🚫 Webhook refusé depuis %s", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
