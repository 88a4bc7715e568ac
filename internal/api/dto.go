package api

import (
	"time"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

type regionResponse struct {
	ID         int64  `json:"id"`
	Province   string `json:"province"`
	CityCounty string `json:"city_county,omitempty"`
	Town       string `json:"town,omitempty"`
}

type disasterResponse struct {
	ID            int64            `json:"id"`
	Type          string           `json:"type"`
	SeverityLevel string           `json:"severity_level"`
	Message       string           `json:"message"`
	Active        bool             `json:"active"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       *time.Time       `json:"end_time,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
	RegionText    string           `json:"region_text"`
	Regions       []regionResponse `json:"regions,omitempty"`
}

type notificationResponse struct {
	ID         int64      `json:"id"`
	DisasterID int64      `json:"disaster_id"`
	Channel    string     `json:"channel"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	IsSent     bool       `json:"is_sent"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

type regionSubscriptionResponse struct {
	ID       int64 `json:"id"`
	RegionID int64 `json:"region_id"`
}

type typeSubscriptionResponse struct {
	ID           int64  `json:"id"`
	DisasterType string `json:"disaster_type"`
}

// contactRequest updates only the fields present in the body; an explicit
// empty string clears that field.
type contactRequest struct {
	DeviceToken *string `json:"device_token"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
}

type regionSubscriptionRequest struct {
	RegionID   int64  `json:"region_id"`
	Province   string `json:"province"`
	CityCounty string `json:"city_county"`
	Town       string `json:"town"`
}

type typeSubscriptionRequest struct {
	DisasterType string `json:"disaster_type" binding:"required"`
}

func toRegion(r models.Region) regionResponse {
	return regionResponse{
		ID:         r.ID,
		Province:   r.Province,
		CityCounty: r.CityCounty,
		Town:       r.Town,
	}
}

func toDisaster(d models.Disaster) disasterResponse {
	resp := disasterResponse{
		ID:            d.ID,
		Type:          d.Type,
		SeverityLevel: d.SeverityLevel,
		Message:       d.Message,
		Active:        d.Active,
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		UpdatedAt:     d.UpdatedAt,
		RegionText:    d.RawRegionText,
	}
	for _, r := range d.Regions {
		resp.Regions = append(resp.Regions, toRegion(r))
	}
	return resp
}

func toNotification(n models.Notification) notificationResponse {
	return notificationResponse{
		ID:         n.ID,
		DisasterID: n.DisasterID,
		Channel:    string(n.Channel),
		Title:      n.Title,
		Body:       n.Body,
		IsSent:     n.IsSent,
		CreatedAt:  n.CreatedAt,
		SentAt:     n.SentAt,
	}
}
