package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
	"github.com/mr1hm/go-disaster-notify/internal/stream"
)

const (
	defaultDisasterLimit = 20
	maxDisasterLimit     = 500
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	repo        repository.Repository
	pinger      Pinger
	broadcaster *stream.Broadcaster
	jwtSecret   []byte
	channel     models.Channel
}

// NewHandler serves the API. channel is the delivery channel whose contact
// field users must register.
func NewHandler(repo repository.Repository, pinger Pinger, broadcaster *stream.Broadcaster, jwtSecret string, channel models.Channel) *Handler {
	return &Handler{
		repo:        repo,
		pinger:      pinger,
		broadcaster: broadcaster,
		jwtSecret:   []byte(jwtSecret),
		channel:     channel,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.GET("/disasters", h.getDisasters)
	api.GET("/disasters/stream", h.streamDisasters)
	api.GET("/disasters/:id", h.getDisaster)
	api.GET("/regions", h.getRegions)

	me := api.Group("/me", AuthMiddleware(h.jwtSecret))
	me.PUT("/contact", h.updateContact)
	me.GET("/subscriptions/regions", h.listRegionSubscriptions)
	me.POST("/subscriptions/regions", h.addRegionSubscription)
	me.DELETE("/subscriptions/regions/:id", h.deleteRegionSubscription)
	me.GET("/subscriptions/types", h.listTypeSubscriptions)
	me.POST("/subscriptions/types", h.addTypeSubscription)
	me.DELETE("/subscriptions/types/:id", h.deleteTypeSubscription)
	me.GET("/notifications", h.listNotifications)
}

func (h *Handler) health(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getDisasters lists active disasters, optionally only those linked to the
// region named by province / city_county / town. The per-type summary
// counts every matching disaster, not just the returned page.
func (h *Handler) getDisasters(c *gin.Context) {
	ctx := c.Request.Context()
	filter := repository.Filter{
		Limit:      defaultDisasterLimit,
		ActiveOnly: true,
	}

	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxDisasterLimit {
			filter.Limit = lim
		}
	}
	if t := c.Query("type"); t != "" {
		filter.Type = &t
	}

	if province := c.Query("province"); province != "" {
		key := models.RegionKey{
			Province:   province,
			CityCounty: c.Query("city_county"),
			Town:       c.Query("town"),
		}
		r, err := h.repo.FindRegionExact(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"summary": gin.H{}, "disasters": []disasterResponse{}})
			return
		}
		if err != nil {
			internalError(c, "failed to resolve region", err)
			return
		}
		filter.RegionID = &r.ID
	}

	disasters, err := h.repo.ListDisasters(ctx, filter)
	if err != nil {
		internalError(c, "failed to fetch disasters", err)
		return
	}

	summary, err := h.repo.CountDisastersByType(ctx, filter)
	if err != nil {
		internalError(c, "failed to summarize disasters", err)
		return
	}

	out := make([]disasterResponse, 0, len(disasters))
	for _, d := range disasters {
		out = append(out, toDisaster(d))
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "disasters": out})
}

func (h *Handler) getDisaster(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.repo.GetDisaster(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "disaster not found"})
		return
	}
	if err != nil {
		internalError(c, "failed to fetch disaster", err)
		return
	}
	c.JSON(http.StatusOK, toDisaster(*d))
}

func (h *Handler) getRegions(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 1000 {
			limit = lim
		}
	}
	regions, err := h.repo.ListRegions(c.Request.Context(), c.Query("province"), limit)
	if err != nil {
		internalError(c, "failed to fetch regions", err)
		return
	}
	out := make([]regionResponse, 0, len(regions))
	for _, r := range regions {
		out = append(out, toRegion(r))
	}
	c.JSON(http.StatusOK, out)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func internalError(c *gin.Context, msg string, err error) {
	slog.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
