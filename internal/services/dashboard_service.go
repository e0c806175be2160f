package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"movimenti/internal/cache"
	"movimenti/internal/core"
	"movimenti/internal/storage"
)

// DashboardService owns the read path: dashboard aggregates and
// movement listings, served through TTL-bounded caches. Cache keys are
// prefixed with the user ID so a write invalidates exactly one user's
// entries.
type DashboardService struct {
	storage    *storage.SQLiteRepository
	dashboards cache.Cache[core.Dashboard]
	movements  cache.Cache[[]core.Movement]
	group      singleflight.Group
	now        func() time.Time
}

func NewDashboardService(repo *storage.SQLiteRepository, dashboards cache.Cache[core.Dashboard], movements cache.Cache[[]core.Movement]) *DashboardService {
	return &DashboardService{
		storage:    repo,
		dashboards: dashboards,
		movements:  movements,
		now:        time.Now,
	}
}

// WithClock overrides the time source used to aggregate dashboards.
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

// Dashboard returns the cached dashboard for a user, computing it from
// storage on a miss. Concurrent misses for the same user collapse into
// a single computation.
func (s *DashboardService) Dashboard(ctx context.Context, userID string) (core.Dashboard, error) {
	key := userID + "|dashboard"
	if d, ok := s.dashboards.Get(key); ok {
		return d, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if d, ok := s.dashboards.Get(key); ok {
			return d, nil
		}

		accounts, err := s.storage.ListAccounts(ctx, userID)
		if err != nil {
			return core.Dashboard{}, err
		}
		movements, err := s.storage.ListMovements(ctx, userID, storage.MovementFilter{})
		if err != nil {
			return core.Dashboard{}, err
		}

		d := core.BuildDashboard(accounts, movements, s.now())
		s.dashboards.Set(key, d)
		return d, nil
	})
	if err != nil {
		return core.Dashboard{}, err
	}
	return v.(core.Dashboard), nil
}

// Movements lists a user's movements with optional filters, cached per
// distinct filter combination.
func (s *DashboardService) Movements(ctx context.Context, userID string, f storage.MovementFilter) ([]core.Movement, error) {
	key := fmt.Sprintf("%s|movements|%04d-%02d|%s|%d", userID, f.Year, f.Month, f.Kind, f.CategoryID)
	if ms, ok := s.movements.Get(key); ok {
		return ms, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if ms, ok := s.movements.Get(key); ok {
			return ms, nil
		}

		ms, err := s.storage.ListMovements(ctx, userID, f)
		if err != nil {
			return nil, err
		}
		s.movements.Set(key, ms)
		return ms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Movement), nil
}

// InvalidateUser drops every cached read for one user. Called
// synchronously after each committed write, so the next read reflects
// it.
func (s *DashboardService) InvalidateUser(userID string) {
	s.dashboards.DeletePrefix(userID + "|")
	s.movements.DeletePrefix(userID + "|")
}
