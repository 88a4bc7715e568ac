package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

var ErrNotFound = errors.New("not found")

type Filter struct {
	Limit      int
	Offset     int
	Since      *time.Time
	ActiveOnly bool
	Type       *string
	RegionID   *int64 // only disasters linked to this region
}

type RegionRepository interface {
	InsertRegion(ctx context.Context, r *models.Region) (bool, error)
	GetRegion(ctx context.Context, id int64) (*models.Region, error)
	// FindRegionExact matches every level of key; empty levels must be NULL.
	FindRegionExact(ctx context.Context, key models.RegionKey) (*models.Region, error)
	// FindRegionPrefix matches the non-empty levels of key and leaves the rest unconstrained.
	FindRegionPrefix(ctx context.Context, key models.RegionKey) (*models.Region, error)
	ListRegions(ctx context.Context, province string, limit int) ([]models.Region, error)
	CountRegions(ctx context.Context) (int64, error)
}

type DisasterRepository interface {
	InsertDisaster(ctx context.Context, d *models.Disaster) (bool, error)
	DisasterExists(ctx context.Context, key models.DedupKey) (bool, error)
	LinkRegion(ctx context.Context, disasterID, regionID int64) (bool, error)
	GetDisaster(ctx context.Context, id int64) (*models.Disaster, error)
	ListDisasters(ctx context.Context, opts Filter) ([]models.Disaster, error)
	CountDisastersByType(ctx context.Context, opts Filter) (map[string]int, error)
	LinkedRegions(ctx context.Context, disasterID int64) ([]models.Region, error)
	DeactivateStartedBefore(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type SubscriptionRepository interface {
	AddRegionSubscription(ctx context.Context, userID, regionID int64) (*models.RegionSubscription, error)
	ListRegionSubscriptions(ctx context.Context, userID int64) ([]models.RegionSubscription, error)
	DeleteRegionSubscription(ctx context.Context, id, userID int64) (bool, error)
	AddTypeSubscription(ctx context.Context, userID int64, disasterType string) (*models.DisasterTypeSubscription, error)
	ListTypeSubscriptions(ctx context.Context, userID int64) ([]models.DisasterTypeSubscription, error)
	DeleteTypeSubscription(ctx context.Context, id, userID int64) (bool, error)
	RegionSubscribers(ctx context.Context, regionIDs []int64) ([]int64, error)
	TypeSubscribers(ctx context.Context, disasterType string) ([]int64, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	MarkSent(ctx context.Context, id int64, at time.Time) (bool, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
}

type UserRepository interface {
	UpsertUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Repository is the full query surface, available both on the database
// and inside a transaction.
type Repository interface {
	RegionRepository
	DisasterRepository
	SubscriptionRepository
	NotificationRepository
	UserRepository
}

// Store adds transactions on top of Repository.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
