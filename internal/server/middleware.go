package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/unrolled/secure"
)

const HeaderOrg = "X-Org-ID"

// OrgContext scopes the request to the organization named in X-Org-ID.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			AbortWithError(c, ErrMissingOrganization)
			return
		}
		orgID, ok := orgcontext.ParseOrgID(raw)
		if !ok {
			AbortWithError(c, newValidationError("organization", "invalid_organization", "invalid organization id"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SecurityHeaders sets the hardening headers on every response. In production
// plain-http requests are redirected to https.
func SecurityHeaders(production bool) gin.HandlerFunc {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})
	return func(c *gin.Context) {
		if err := sec.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		if status := c.Writer.Status(); status >= http.StatusMultipleChoices && status < http.StatusBadRequest && c.Writer.Written() {
			c.Abort()
			return
		}
		c.Next()
	}
}
