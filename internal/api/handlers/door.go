package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorguard/internal/recognition"
	"github.com/your-org/doorguard/pkg/dto"
)

const maxLogLimit = 100

type DoorHandler struct {
	station Station
}

func NewDoorHandler(station Station) *DoorHandler {
	return &DoorHandler{station: station}
}

func (h *DoorHandler) Open(c *gin.Context) {
	res, err := h.station.OpenDoor(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doorResponse(res))
}

func doorResponse(res recognition.Result) dto.DoorResponse {
	resp := dto.DoorResponse{
		State:           string(res.State),
		Identity:        res.Identity,
		FramesAttempted: res.FramesAttempted,
		FramesRead:      res.FramesRead,
		UnknownFrames:   res.UnknownFrames,
		Alerted:         res.Alerted,
		Message:         res.Message,
	}
	if !math.IsInf(res.Distance, 0) && !math.IsNaN(res.Distance) {
		d := res.Distance
		resp.Distance = &d
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}

func (h *DoorHandler) Logs(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxLogLimit)
	}

	entries, err := h.station.RecentLogs(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := make([]dto.AccessLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.FromAccessLog(e))
	}
	c.JSON(http.StatusOK, dto.AccessLogListResponse{Logs: resp, Total: len(resp)})
}

func (h *DoorHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.FromStatus(h.station.Status()))
}

func (h *DoorHandler) Preview(c *gin.Context) {
	data := h.station.Preview()
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no preview frame yet"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", data)
}
