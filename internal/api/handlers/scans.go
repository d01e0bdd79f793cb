package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tibiamarket/tracker/internal/models"
)

// RunLister lists recorded scan runs, newest first
type RunLister interface {
	ListRuns(limit int) ([]models.ScanRun, error)
}

type ScanHandler struct {
	runs RunLister
}

func NewScanHandler(runs RunLister) *ScanHandler {
	return &ScanHandler{runs: runs}
}

// GetScans returns recent scan runs
func (h *ScanHandler) GetScans(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan history not available"})
		return
	}

	limit := intQuery(c, "limit", 20)
	runs, err := h.runs.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []models.ScanRun{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
