// Package service answers "where can I swim?" queries against the persisted
// schedule records, filtering by wall-clock day/time and geographic
// proximity.
package service

import (
	"context"
	"log/slog"

	"github.com/poolhopper/freeswim-etl/internal/domain"
	"github.com/poolhopper/freeswim-etl/internal/observability"
)

// DefaultRadiusMeters bounds nearby queries when the caller does not supply
// a radius.
const DefaultRadiusMeters = 2000

// ScheduleReader is the read-only slice of the entity record store the
// query service needs.
type ScheduleReader interface {
	SchedulesByDay(ctx context.Context, day string) ([]domain.ScheduleRecord, error)
	SchedulesByPool(ctx context.Context, poolCode string) ([]domain.ScheduleRecord, error)
	FindFacilities(ctx context.Context, poolCodes []string) (map[string]domain.Facility, error)
	FacilitiesNear(ctx context.Context, lat, lng, maxDistanceMeters float64) ([]domain.NearbyFacility, error)
}

// AvailableSession is a schedule record joined with its facility's display
// fields.
type AvailableSession struct {
	domain.ScheduleRecord
	Title   string `json:"title,omitempty"`
	Address string `json:"address,omitempty"`
}

// NearbySession additionally carries the facility's distance from the query
// point.
type NearbySession struct {
	AvailableSession
	DistanceMeters float64 `json:"distance_m"`
}

// Availability serves time-of-day and proximity lookups.
type Availability struct {
	store ScheduleReader
	// includeInProgress widens "available" to sessions that have started
	// but not yet ended. The default (false) counts only sessions that
	// have not started, matching user expectations for "can I still make
	// it": a lap session you walk in on halfway is usually not worth the
	// fee.
	includeInProgress bool
	logger            *slog.Logger
	metrics           *observability.Metrics
}

// NewAvailability creates the query service. includeInProgress selects the
// availability policy for sessions already underway.
func NewAvailability(store ScheduleReader, includeInProgress bool, logger *slog.Logger, metrics *observability.Metrics) *Availability {
	return &Availability{
		store:             store,
		includeInProgress: includeInProgress,
		logger:            logger,
		metrics:           metrics,
	}
}

// AvailableNow returns today's sessions still considered available at the
// current wall-clock time, joined with facility title and address.
func (a *Availability) AvailableNow(ctx context.Context) ([]AvailableSession, error) {
	a.metrics.AvailabilityQueries.WithLabelValues("now").Inc()

	now := domain.Clock().Now()
	day := domain.DayOf(now.Weekday())
	nowMinutes := now.Hour()*60 + now.Minute()

	records, err := a.store.SchedulesByDay(ctx, day)
	if err != nil {
		return nil, err
	}

	var available []domain.ScheduleRecord
	for _, record := range records {
		if a.sessionAvailable(record, nowMinutes) {
			available = append(available, record)
		}
	}

	sessions, err := a.joinFacilities(ctx, available)
	if err != nil {
		return nil, err
	}

	a.logger.Info("availability computed", "day", day, "now_minutes", nowMinutes, "sessions", len(sessions))
	return sessions, nil
}

// AvailableNear returns sessions at facilities within radiusMeters of the
// point, nearest facility first. A non-positive radius falls back to
// DefaultRadiusMeters. When filterNow is set, the same day/time policy as
// AvailableNow is applied to each facility's records.
func (a *Availability) AvailableNear(ctx context.Context, lat, lng, radiusMeters float64, filterNow bool) ([]NearbySession, error) {
	a.metrics.AvailabilityQueries.WithLabelValues("nearby").Inc()

	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}

	now := domain.Clock().Now()
	day := domain.DayOf(now.Weekday())
	nowMinutes := now.Hour()*60 + now.Minute()

	facilities, err := a.store.FacilitiesNear(ctx, lat, lng, radiusMeters)
	if err != nil {
		return nil, err
	}

	var sessions []NearbySession
	for _, facility := range facilities {
		records, err := a.store.SchedulesByPool(ctx, facility.PoolCode)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			if filterNow && (record.Day != day || !a.sessionAvailable(record, nowMinutes)) {
				continue
			}
			sessions = append(sessions, NearbySession{
				AvailableSession: AvailableSession{
					ScheduleRecord: record,
					Title:          facility.Title,
					Address:        facility.Address,
				},
				DistanceMeters: facility.DistanceMeters,
			})
		}
	}

	a.logger.Info("nearby availability computed",
		"lat", lat, "lng", lng, "radius_m", radiusMeters, "sessions", len(sessions))
	return sessions, nil
}

// sessionAvailable applies the availability policy to one record. Records
// with an unparseable time range are excluded rather than erroring the
// whole query; they were validated at ingestion, so this is belt-and-braces
// against legacy rows.
func (a *Availability) sessionAvailable(record domain.ScheduleRecord, nowMinutes int) bool {
	start, end, err := domain.ParseTimeRange(record.TimeRange)
	if err != nil {
		a.logger.Warn("unparseable time range in store", "pool_code", record.PoolCode, "time_range", record.TimeRange)
		return false
	}
	if start >= nowMinutes {
		return true
	}
	return a.includeInProgress && end > nowMinutes
}

// joinFacilities decorates records with their facility's title and address.
// Records whose facility has vanished are still returned, undecorated;
// losing a join field is better than hiding a swimmable session.
func (a *Availability) joinFacilities(ctx context.Context, records []domain.ScheduleRecord) ([]AvailableSession, error) {
	codes := make([]string, 0, len(records))
	seen := map[string]bool{}
	for _, record := range records {
		if !seen[record.PoolCode] {
			seen[record.PoolCode] = true
			codes = append(codes, record.PoolCode)
		}
	}

	facilities, err := a.store.FindFacilities(ctx, codes)
	if err != nil {
		return nil, err
	}

	sessions := make([]AvailableSession, 0, len(records))
	for _, record := range records {
		session := AvailableSession{ScheduleRecord: record}
		if facility, ok := facilities[record.PoolCode]; ok {
			session.Title = facility.Title
			session.Address = facility.Address
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
