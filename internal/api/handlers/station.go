package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorguard/internal/auth"
	"github.com/your-org/doorguard/internal/capture"
	"github.com/your-org/doorguard/internal/enroll"
	"github.com/your-org/doorguard/internal/gallery"
	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/recognition"
	"github.com/your-org/doorguard/internal/terminal"
)

// Station is the part of terminal.Terminal the handlers drive.
type Station interface {
	Login(ctx context.Context, identifier, secret string) (string, error)
	Logout()
	Admin() string
	Enroll(ctx context.Context, name string) (enroll.Result, error)
	DeleteIdentity(ctx context.Context, name string) (int, error)
	OpenDoor(ctx context.Context) (recognition.Result, error)
	RecentLogs(ctx context.Context, limit int) ([]models.AccessLogEntry, error)
	Identities() []models.Identity
	Status() models.Status
	Preview() []byte
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.Is(err, terminal.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, terminal.ErrBusy), errors.Is(err, gallery.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, enroll.ErrEncodingFailed), errors.Is(err, enroll.ErrAttemptsExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrNotConfigured),
		errors.Is(err, capture.ErrClosed),
		errors.Is(err, capture.ErrSourceEnded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}
