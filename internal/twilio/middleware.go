// Package twilio holds the telephony edge: webhook signature validation,
// TwiML document builders, and the out-of-band call-update bridge that
// plays finished reply clips into live calls.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// ValidateSignature checks an X-Twilio-Signature header against the auth
// token: HMAC-SHA1 over the full request URL followed by the form params
// sorted by key, base64 encoded.
func ValidateSignature(authToken, signature, requestURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}

	data := requestURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// AuthMiddleware rejects webhook posts whose signature does not verify
// against authToken. Validated form params are stashed in the context
// under "twilioParams" so handlers do not re-read the body.
func AuthMiddleware(authToken string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			formData, err := url.ParseQuery(string(body))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}

			params := make(map[string]string)
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			signature := c.Request().Header.Get("X-Twilio-Signature")
			requestURL := BuildAbsoluteURL(c.Request(), c.Request().URL.Path)

			if !ValidateSignature(authToken, signature, requestURL, params) {
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			c.Set("twilioParams", params)
			return next(c)
		}
	}
}

// Params retrieves the validated webhook form params from the context.
func Params(c echo.Context) map[string]string {
	if p, ok := c.Get("twilioParams").(map[string]string); ok {
		return p
	}
	return map[string]string{}
}

// BuildAbsoluteURL reconstructs the externally visible URL for path,
// honoring the reverse proxy's forwarded host.
func BuildAbsoluteURL(r *http.Request, path string) string {
	scheme := "https"
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
		if strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") {
			scheme = "http"
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}
