package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/student-risk-api/internal/models"
	appErrors "github.com/noah-isme/student-risk-api/pkg/errors"
)

const (
	minTrendMonths      = 6
	trendWindow         = 3
	trendChangeBoundary = 10.0
)

var hundred = decimal.NewFromInt(100)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	StudentAttendance(ctx context.Context, classID string) ([]models.StudentAttendanceCount, error)
	ClassSnapshots(ctx context.Context, classIDs []string) ([]models.ClassSnapshot, error)
	EvasionsByMonth(ctx context.Context, classID string, since time.Time) ([]models.EvasionMonth, error)
}

// AnalyticsOptions tunes caching and the default evasion trend horizon.
type AnalyticsOptions struct {
	CacheTTL    time.Duration
	TrendMonths int
}

// AnalyticsService computes class-level attendance, comparison and evasion analytics with cache integration.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	opts    AnalyticsOptions
	now     func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, opts AnalyticsOptions) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TrendMonths < minTrendMonths {
		opts.TrendMonths = minTrendMonths
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger, opts: opts, now: time.Now}
}

// AttendanceByStudent returns the attendance percentage of every active student in a class.
// The boolean indicates whether data originated from cache.
func (s *AnalyticsService) AttendanceByStudent(ctx context.Context, classID string) ([]models.StudentAttendanceRate, bool, error) {
	if classID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	cacheKey := makeAnalyticsCacheKey("attendance", classID)
	var cached []models.StudentAttendanceRate
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, true, nil
	}

	start := time.Now()
	counts, err := s.repo.StudentAttendance(ctx, classID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	s.metrics.ObserveDBQuery("analytics_student_attendance", time.Since(start))

	rates := make([]models.StudentAttendanceRate, 0, len(counts))
	for _, c := range counts {
		rates = append(rates, models.StudentAttendanceRate{
			StudentID:   c.StudentID,
			StudentName: c.StudentName,
			Present:     c.Present,
			Total:       c.Total,
			Percentage:  percentage(c.Present, c.Total, 100),
		})
	}
	if err := s.cache.Set(ctx, cacheKey, rates, s.opts.CacheTTL); err != nil {
		s.logger.Warn("cache attendance", zap.Error(err))
	}
	return rates, false, nil
}

// CompareClasses returns comparison metrics per class ordered by attendance rate, best first.
// An empty id list compares every class.
func (s *AnalyticsService) CompareClasses(ctx context.Context, classIDs []string) ([]models.ClassComparison, bool, error) {
	ids := normalizeIDs(classIDs)
	cacheKey := makeAnalyticsCacheKey("compare", strings.Join(ids, ","))
	var cached []models.ClassComparison
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, true, nil
	}

	start := time.Now()
	snapshots, err := s.repo.ClassSnapshots(ctx, ids)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class metrics")
	}
	s.metrics.ObserveDBQuery("analytics_class_compare", time.Since(start))

	comparisons := make([]models.ClassComparison, 0, len(snapshots))
	for _, snap := range snapshots {
		comparisons = append(comparisons, models.ClassComparison{
			ClassID:        snap.ClassID,
			ClassName:      snap.ClassName,
			AttendanceRate: percentage(snap.PresentCount, snap.AttendanceRows, 100),
			GradeAverage:   round2(snap.GradeAverage),
			EvasionRate:    percentage(snap.Evasions, snap.Enrolled, 0),
			AtRiskCount:    snap.AtRisk,
			Enrolled:       snap.Enrolled,
		})
	}
	sort.SliceStable(comparisons, func(i, j int) bool {
		if comparisons[i].AttendanceRate != comparisons[j].AttendanceRate {
			return comparisons[i].AttendanceRate > comparisons[j].AttendanceRate
		}
		return comparisons[i].ClassName < comparisons[j].ClassName
	})

	if err := s.cache.Set(ctx, cacheKey, comparisons, s.opts.CacheTTL); err != nil {
		s.logger.Warn("cache class comparison", zap.Error(err))
	}
	return comparisons, false, nil
}

// EvasionTrend builds the monthly evasion series over the given number of months, ending
// with the current month, and classifies it by comparing the mean of the last three months
// with the three before. months below six falls back to the configured horizon.
func (s *AnalyticsService) EvasionTrend(ctx context.Context, classID string, months int) (*models.EvasionTrend, bool, error) {
	if months < minTrendMonths {
		months = s.opts.TrendMonths
	}
	if months > 36 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "months must not exceed 36")
	}
	current := monthStart(s.now())
	since := current.AddDate(0, -(months - 1), 0)

	cacheKey := makeAnalyticsCacheKey("evasion", classID, fmt.Sprintf("%d", months), current.Format("2006-01"))
	var cached models.EvasionTrend
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	rows, err := s.repo.EvasionsByMonth(ctx, classID, since)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evasions")
	}
	s.metrics.ObserveDBQuery("analytics_evasion_trend", time.Since(start))

	trend := buildEvasionTrend(classID, since, months, rows)
	if err := s.cache.Set(ctx, cacheKey, trend, s.opts.CacheTTL); err != nil {
		s.logger.Warn("cache evasion trend", zap.Error(err))
	}
	return trend, false, nil
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

func buildEvasionTrend(classID string, since time.Time, months int, rows []models.EvasionMonth) *models.EvasionTrend {
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Month.UTC().Format("2006-01")] += row.Count
	}
	series := make([]models.EvasionMonth, 0, months)
	for i := 0; i < months; i++ {
		month := since.AddDate(0, i, 0)
		series = append(series, models.EvasionMonth{Month: month, Count: counts[month.Format("2006-01")]})
	}

	recent := meanCount(series[len(series)-trendWindow:])
	previous := meanCount(series[len(series)-2*trendWindow : len(series)-trendWindow])

	trend := &models.EvasionTrend{
		ClassID:         classID,
		Months:          series,
		RecentAverage:   round2(recent),
		PreviousAverage: round2(previous),
		Direction:       models.TrendStable,
	}
	switch {
	case previous == 0 && recent > 0:
		trend.ChangePercent = 100
		trend.Direction = models.TrendIncreasing
	case previous == 0:
		trend.ChangePercent = 0
	default:
		change := (recent - previous) / previous * 100
		trend.ChangePercent = round2(change)
		if change > trendChangeBoundary {
			trend.Direction = models.TrendIncreasing
		} else if change < -trendChangeBoundary {
			trend.Direction = models.TrendDecreasing
		}
	}
	return trend
}

func meanCount(months []models.EvasionMonth) float64 {
	if len(months) == 0 {
		return 0
	}
	total := 0
	for _, m := range months {
		total += m.Count
	}
	return float64(total) / float64(len(months))
}

// percentage returns part/total*100 rounded to two decimals, or empty when total is zero.
func percentage(part, total int, empty float64) float64 {
	if total <= 0 {
		return empty
	}
	return decimal.NewFromInt(int64(part)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}
