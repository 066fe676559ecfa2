package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorguard/pkg/dto"
)

type AdminHandler struct {
	station Station
}

func NewAdminHandler(station Station) *AdminHandler {
	return &AdminHandler{station: station}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subject, err := h.station.Login(c.Request.Context(), req.Identifier, req.Secret)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.LoginResponse{Subject: subject})
}

func (h *AdminHandler) Logout(c *gin.Context) {
	h.station.Logout()
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) Session(c *gin.Context) {
	subject := h.station.Admin()
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, dto.LoginResponse{Subject: subject})
}
