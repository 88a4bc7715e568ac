package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
)

// Contact field each delivery channel sends to.
var targetFields = map[models.Channel]string{
	models.ChannelPush:  "device_token",
	models.ChannelEmail: "email",
	models.ChannelSMS:   "phone",
}

// updateContact merges the supplied contact fields into the stored user.
// The field used by the configured delivery channel must end up non-empty.
func (h *Handler) updateContact(c *gin.Context) {
	ctx := c.Request.Context()
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.DeviceToken == nil && req.Email == nil && req.Phone == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no contact fields provided"})
		return
	}

	uid := currentUser(c)
	u, err := h.repo.GetUser(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		u = &models.User{ID: uid}
	} else if err != nil {
		internalError(c, "failed to fetch contact", err)
		return
	}

	mergeField(&u.DeviceToken, req.DeviceToken)
	mergeField(&u.Email, req.Email)
	mergeField(&u.Phone, req.Phone)
	if u.Target(h.channel) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": targetFields[h.channel] + " is required"})
		return
	}

	u.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	if err := h.repo.UpsertUser(ctx, u); err != nil {
		internalError(c, "failed to update contact", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "contact updated"})
}

func mergeField(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func (h *Handler) listRegionSubscriptions(c *gin.Context) {
	subs, err := h.repo.ListRegionSubscriptions(c.Request.Context(), currentUser(c))
	if err != nil {
		internalError(c, "failed to fetch subscriptions", err)
		return
	}
	out := make([]regionSubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, regionSubscriptionResponse{ID: s.ID, RegionID: s.RegionID})
	}
	c.JSON(http.StatusOK, out)
}

// addRegionSubscription accepts either a region id or a region triple.
func (h *Handler) addRegionSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	var req regionSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var (
		r   *models.Region
		err error
	)
	switch {
	case req.RegionID > 0:
		r, err = h.repo.GetRegion(ctx, req.RegionID)
	case req.Province != "":
		r, err = h.repo.FindRegionExact(ctx, models.RegionKey{
			Province:   req.Province,
			CityCounty: req.CityCounty,
			Town:       req.Town,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "region_id or province is required"})
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "region not found"})
		return
	}
	if err != nil {
		internalError(c, "failed to resolve region", err)
		return
	}

	sub, err := h.repo.AddRegionSubscription(ctx, currentUser(c), r.ID)
	if err != nil {
		internalError(c, "failed to add subscription", err)
		return
	}
	c.JSON(http.StatusCreated, regionSubscriptionResponse{ID: sub.ID, RegionID: sub.RegionID})
}

func (h *Handler) deleteRegionSubscription(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.repo.DeleteRegionSubscription(c.Request.Context(), id, currentUser(c))
	if err != nil {
		internalError(c, "failed to delete subscription", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listTypeSubscriptions(c *gin.Context) {
	subs, err := h.repo.ListTypeSubscriptions(c.Request.Context(), currentUser(c))
	if err != nil {
		internalError(c, "failed to fetch subscriptions", err)
		return
	}
	out := make([]typeSubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, typeSubscriptionResponse{ID: s.ID, DisasterType: s.DisasterType})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) addTypeSubscription(c *gin.Context) {
	var req typeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DisasterType) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "disaster_type is required"})
		return
	}

	sub, err := h.repo.AddTypeSubscription(c.Request.Context(), currentUser(c), strings.TrimSpace(req.DisasterType))
	if err != nil {
		internalError(c, "failed to add subscription", err)
		return
	}
	c.JSON(http.StatusCreated, typeSubscriptionResponse{ID: sub.ID, DisasterType: sub.DisasterType})
}

func (h *Handler) deleteTypeSubscription(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.repo.DeleteTypeSubscription(c.Request.Context(), id, currentUser(c))
	if err != nil {
		internalError(c, "failed to delete subscription", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listNotifications(c *gin.Context) {
	list, err := h.repo.ListNotifications(c.Request.Context(), currentUser(c), 50)
	if err != nil {
		internalError(c, "failed to fetch notifications", err)
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotification(n))
	}
	c.JSON(http.StatusOK, out)
}
