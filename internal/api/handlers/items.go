package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/models"
	"github.com/tibiamarket/tracker/internal/services"
)

// SnapshotQuerier answers item queries against the latest full scan
type SnapshotQuerier interface {
	Query(q services.SnapshotQuery) ([]models.SnapshotRow, error)
}

// HistoryReader returns stored observations of one item
type HistoryReader interface {
	GetHistory(name, period string) ([]models.QuoteRecord, error)
}

type ItemHandler struct {
	snapshot SnapshotQuerier
	history  HistoryReader
}

func NewItemHandler(snapshot SnapshotQuerier, history HistoryReader) *ItemHandler {
	return &ItemHandler{
		snapshot: snapshot,
		history:  history,
	}
}

// GetItems filters and orders the latest snapshot
func (h *ItemHandler) GetItems(c *gin.Context) {
	q := parseSnapshotQuery(c)

	rows, err := h.snapshot.Query(q)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownColumn):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrSnapshotUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no market snapshot available yet"})
		default:
			log.Error().Err(err).Msg("Items: snapshot query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, rows)
}

// parseSnapshotQuery reads the query string. Malformed numbers fall back to
// their defaults, matching what the website has always sent.
func parseSnapshotQuery(c *gin.Context) services.SnapshotQuery {
	q := services.DefaultSnapshotQuery()

	q.Name = strings.TrimSpace(c.Query("name"))
	q.MinTraded = intQuery(c, "minTraded", 0)
	q.MaxTraded = intQuery(c, "maxTraded", services.DefaultQueryMax)
	q.MinSellPrice = intQuery(c, "minSellPrice", 0)
	q.MaxSellPrice = intQuery(c, "maxSellPrice", services.DefaultQueryMax)
	q.MinBuyPrice = intQuery(c, "minBuyPrice", 0)
	q.MaxBuyPrice = intQuery(c, "maxBuyPrice", services.DefaultQueryMax)
	if orderBy := c.Query("orderBy"); orderBy != "" {
		q.OrderBy = orderBy
	}
	q.Ascending = intQuery(c, "orderDirection", 1) == 1
	q.Limit = intQuery(c, "limit", 0)

	return q
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// GetItemHistory returns the stored observations of one item for charting
func (h *ItemHandler) GetItemHistory(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item name is required"})
		return
	}

	period := services.NormalizePeriod(c.DefaultQuery("period", "month"))

	observations := []models.QuoteRecord{}
	if h.history != nil {
		records, err := h.history.GetHistory(name, period)
		if err != nil {
			log.Error().Err(err).Str("item", name).Msg("Items: history query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if records != nil {
			observations = records
		}
	}

	c.JSON(http.StatusOK, models.ItemHistoryResponse{
		Name:         strings.ToLower(name),
		Period:       period,
		Observations: observations,
	})
}
