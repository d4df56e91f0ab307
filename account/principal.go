package account

import (
	"github.com/gin-gonic/gin"

	"inkwell/common"
	"inkwell/models"
)

// Method records how the current request proved who it is.
type Method int

const (
	MethodAnonymous Method = iota
	MethodSession
	MethodPassword
	MethodToken
)

func (m Method) String() string {
	switch m {
	case MethodSession:
		return "session"
	case MethodPassword:
		return "password"
	case MethodToken:
		return "token"
	default:
		return "anonymous"
	}
}

// Principal is the request-scoped identity. User is nil when anonymous.
type Principal struct {
	Identity models.Identity
	User     *models.User
	Method   Method
}

var anonymous = Principal{Identity: models.AnonymousUser{}, Method: MethodAnonymous}

func Anonymous() Principal {
	return anonymous
}

func NewPrincipal(u *models.User, m Method) Principal {
	return Principal{Identity: u, User: u, Method: m}
}

func (p Principal) IsAnonymous() bool {
	return p.User == nil
}

const principalKey = "principal"

// SetPrincipal stores p on the request and tags the request context so log
// lines carry the user id.
func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(principalKey, p)
	if p.User != nil {
		c.Request = c.Request.WithContext(common.WithUserID(c.Request.Context(), p.User.ID))
	}
}

// CurrentPrincipal returns the anonymous principal when none was set.
func CurrentPrincipal(c *gin.Context) Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return anonymous
}
