package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorguard/pkg/dto"
)

type IdentityHandler struct {
	station Station
}

func NewIdentityHandler(station Station) *IdentityHandler {
	return &IdentityHandler{station: station}
}

func (h *IdentityHandler) List(c *gin.Context) {
	identities := h.station.Identities()

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for _, id := range identities {
		resp = append(resp, dto.IdentityResponse{Name: id.Name, Encodings: id.Encodings})
	}
	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

// Enroll blocks until the capture and encoding of the new identity finish.
// Progress is streamed as status messages over the WebSocket.
func (h *IdentityHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.station.Enroll(c.Request.Context(), req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.EnrollResponse{
		Name:      res.Name,
		Captured:  res.Captured,
		Attempts:  res.Attempts,
		Encodings: res.Encodings,
	})
}

func (h *IdentityHandler) Delete(c *gin.Context) {
	name := c.Param("name")

	removed, err := h.station.DeleteIdentity(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteIdentityResponse{Name: name, Removed: removed})
}
