package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	csrfCookieName = "_csrf_token"
	csrfFormField  = "_csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfContextKey = "CSRFToken"
)

// Rejection reasons reported to the client.
const (
	csrfMissing = "CSRF token missing"
	csrfInvalid = "CSRF token invalid"
	// csrfExpiredToast is shown by the console when an htmx action is
	// rejected, typically because the page outlived a restart of the master.
	csrfExpiredToast = "Session expired, reload the page and try again"
)

// CSRF protects the console pages with a signed double-submit cookie.
//
// Tokens look like hex(nonce) + "." + base64url(HMAC-SHA256(nonce, secret)).
// Safe methods issue a token cookie when the request has no valid one and
// expose it to templates via GetCSRFToken. Mutating methods must echo the
// cookie in the "_csrf_token" form field or the X-CSRF-Token header; the
// console's htmx requests use the header.
//
// Rejections are 403. Plain requests get the JSON envelope, htmx requests get
// an HX-Trigger toast and no swap so the page stays intact.
func CSRF(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return func(c *gin.Context) {
			abortCSRF(c, http.StatusInternalServerError, "csrf secret is required")
		}
	}

	secure := gin.Mode() == gin.ReleaseMode
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			token, err := c.Cookie(csrfCookieName)
			if err != nil || !validToken(token, secret) {
				if token, err = generateToken(secret); err != nil {
					abortCSRF(c, http.StatusInternalServerError, "failed to generate CSRF token")
					return
				}
				setCSRFCookie(c, token, secure)
			}
			c.Set(csrfContextKey, token)
			c.Next()

		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			token, reason := verifyRequestToken(c, secret)
			if reason != "" {
				abortCSRF(c, http.StatusForbidden, reason)
				return
			}
			c.Set(csrfContextKey, token)
			c.Next()

		default:
			c.Next()
		}
	}
}

// verifyRequestToken returns the accepted token, or a rejection reason.
func verifyRequestToken(c *gin.Context, secret string) (string, string) {
	cookieToken, err := c.Cookie(csrfCookieName)
	if err != nil || cookieToken == "" {
		return "", csrfMissing
	}
	requestToken := c.GetHeader(csrfHeaderName)
	if requestToken == "" {
		requestToken = c.PostForm(csrfFormField)
	}
	if requestToken == "" {
		return "", csrfMissing
	}
	if !validToken(cookieToken, secret) || !validToken(requestToken, secret) {
		return "", csrfInvalid
	}
	if !tokensMatch(cookieToken, requestToken) {
		return "", csrfInvalid
	}
	return cookieToken, ""
}

// GetCSRFToken returns the token stored by CSRF, or "".
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get(csrfContextKey); exists {
		if s, ok := token.(string); ok {
			return s
		}
	}
	return ""
}

func generateToken(secret string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	nonceHex := hex.EncodeToString(nonce)
	return nonceHex + "." + signNonce(nonceHex, secret), nil
}

func signNonce(nonce, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func validToken(token, secret string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(signNonce(nonce, secret))) == 1
}

func tokensMatch(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// setCSRFCookie stores the token where the console script can read it.
// The Secure flag follows release mode.
func setCSRFCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func abortCSRF(c *gin.Context, status int, message string) {
	if c.GetHeader("HX-Request") == "true" && status == http.StatusForbidden {
		trigger, _ := json.Marshal(map[string]any{
			"showToast": map[string]string{"message": csrfExpiredToast, "type": "error"},
		})
		c.Header("HX-Trigger", string(trigger))
		c.Header("HX-Reswap", "none")
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}
