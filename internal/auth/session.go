package auth

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Session is the station's single admin session. The zero value is logged out.
type Session struct {
	mu      sync.RWMutex
	subject string
}

func (s *Session) Set(subject string) {
	s.mu.Lock()
	s.subject = subject
	s.mu.Unlock()
}

func (s *Session) Clear() {
	s.Set("")
}

// Subject returns the signed-in admin, or "" when nobody is.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

func (s *Session) Active() bool {
	return s.Subject() != ""
}

// RequireAdmin rejects requests while no admin is signed in.
func RequireAdmin(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Active() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin login required",
			})
			return
		}
		c.Next()
	}
}
