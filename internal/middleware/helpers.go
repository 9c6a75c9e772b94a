// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

const (
	ctxUserID     = "user_id"
	ctxJTI        = "jti"
	ctxRoles      = "roles"
	ctxShopDomain = "shop_domain"
	ctxRequestID  = "request_id"
)

// CurrentUser gets the authenticated user id from context
func CurrentUser(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

// GetJTI gets the token id from context
func GetJTI(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxJTI)
	if !exists {
		return "", false
	}
	jti, ok := v.(string)
	return jti, ok
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(ctxRoles)
	if !exists {
		return []string{}
	}
	list, ok := roles.([]string)
	if !ok {
		return []string{}
	}
	return list
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// SetUser is used by tests and internal callers that authenticate a request
// by other means.
func SetUser(c *gin.Context, userID int64) {
	c.Set(ctxUserID, userID)
}
