package service

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-risk-api/internal/models"
	appErrors "github.com/noah-isme/student-risk-api/pkg/errors"
)

type mockAnalyticsRepo struct {
	attendance      []models.StudentAttendanceCount
	snapshots       []models.ClassSnapshot
	evasions        []models.EvasionMonth
	attendanceCalls int
	snapshotCalls   int
	evasionCalls    int
	snapshotIDs     []string
	evasionSince    time.Time
	err             error
}

func (m *mockAnalyticsRepo) StudentAttendance(_ context.Context, _ string) ([]models.StudentAttendanceCount, error) {
	m.attendanceCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.attendance, nil
}

func (m *mockAnalyticsRepo) ClassSnapshots(_ context.Context, classIDs []string) ([]models.ClassSnapshot, error) {
	m.snapshotCalls++
	m.snapshotIDs = classIDs
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshots, nil
}

func (m *mockAnalyticsRepo) EvasionsByMonth(_ context.Context, _ string, since time.Time) ([]models.EvasionMonth, error) {
	m.evasionCalls++
	m.evasionSince = since
	if m.err != nil {
		return nil, m.err
	}
	return m.evasions, nil
}

type stubCacheRepo struct {
	store    map[string][]byte
	patterns []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.store == nil {
		return appErrors.ErrCacheMiss
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	for key := range s.store {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.store, key)
		}
	}
	return nil
}

func newAnalyticsServiceUnderTest(repo *mockAnalyticsRepo, cached bool) *AnalyticsService {
	var cacheSvc *CacheService
	if cached {
		cacheSvc = NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	}
	svc := NewAnalyticsService(repo, cacheSvc, nil, zap.NewNop(), AnalyticsOptions{CacheTTL: time.Minute, TrendMonths: 6})
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestAnalyticsServiceAttendanceByStudent(t *testing.T) {
	repo := &mockAnalyticsRepo{attendance: []models.StudentAttendanceCount{
		{StudentID: "student-1", StudentName: "Ana", Present: 2, Total: 3},
		{StudentID: "student-2", StudentName: "Bruno", Present: 0, Total: 0},
		{StudentID: "student-3", StudentName: "Carla", Present: 15, Total: 20},
	}}
	svc := newAnalyticsServiceUnderTest(repo, true)

	rates, hit, err := svc.AttendanceByStudent(context.Background(), "class-1")
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, rates, 3)
	assert.Equal(t, 66.67, rates[0].Percentage)
	assert.Equal(t, 100.0, rates[1].Percentage)
	assert.Equal(t, 75.0, rates[2].Percentage)

	cached, hit, err := svc.AttendanceByStudent(context.Background(), "class-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, rates, cached)
	assert.Equal(t, 1, repo.attendanceCalls)
}

func TestAnalyticsServiceAttendanceRequiresClass(t *testing.T) {
	svc := newAnalyticsServiceUnderTest(&mockAnalyticsRepo{}, false)
	_, _, err := svc.AttendanceByStudent(context.Background(), "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAnalyticsServiceCompareClassesSortsByAttendance(t *testing.T) {
	repo := &mockAnalyticsRepo{snapshots: []models.ClassSnapshot{
		{ClassID: "class-a", ClassName: "1º A", PresentCount: 70, AttendanceRows: 100, GradeAverage: 6.456, Enrolled: 20, Evasions: 3, AtRisk: 5},
		{ClassID: "class-b", ClassName: "1º B", PresentCount: 95, AttendanceRows: 100, GradeAverage: 7.1, Enrolled: 25, Evasions: 0, AtRisk: 1},
		{ClassID: "class-c", ClassName: "1º C", Enrolled: 0},
	}}
	svc := newAnalyticsServiceUnderTest(repo, false)

	comparisons, _, err := svc.CompareClasses(context.Background(), []string{"class-b", " class-a ", "class-b", "", "class-c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"class-a", "class-b", "class-c"}, repo.snapshotIDs)
	require.Len(t, comparisons, 3)
	assert.Equal(t, "class-c", comparisons[0].ClassID)
	assert.Equal(t, 0.0, comparisons[0].EvasionRate)
	assert.Equal(t, "class-b", comparisons[1].ClassID)
	assert.Equal(t, "class-a", comparisons[2].ClassID)
	assert.Equal(t, 70.0, comparisons[2].AttendanceRate)
	assert.Equal(t, 15.0, comparisons[2].EvasionRate)
	assert.Equal(t, 6.46, comparisons[2].GradeAverage)
	assert.Equal(t, 5, comparisons[2].AtRiskCount)
}

func TestAnalyticsServiceEvasionTrend(t *testing.T) {
	month := func(m time.Month) time.Time { return time.Date(2026, m, 1, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		name      string
		rows      []models.EvasionMonth
		direction models.EvasionTrendDirection
		change    float64
	}{
		{
			name:      "increasing",
			rows:      []models.EvasionMonth{{Month: month(time.January), Count: 3}, {Month: month(time.April), Count: 2}, {Month: month(time.June), Count: 4}},
			direction: models.TrendIncreasing,
			change:    100,
		},
		{
			name:      "decreasing",
			rows:      []models.EvasionMonth{{Month: month(time.January), Count: 4}, {Month: month(time.February), Count: 2}, {Month: month(time.May), Count: 3}},
			direction: models.TrendDecreasing,
			change:    -50,
		},
		{
			name:      "stable within ten percent",
			rows:      []models.EvasionMonth{{Month: month(time.January), Count: 20}, {Month: month(time.April), Count: 21}},
			direction: models.TrendStable,
			change:    5,
		},
		{
			name:      "new evasions after a quiet period",
			rows:      []models.EvasionMonth{{Month: month(time.May), Count: 1}},
			direction: models.TrendIncreasing,
			change:    100,
		},
		{
			name:      "no evasions",
			direction: models.TrendStable,
			change:    0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockAnalyticsRepo{evasions: tc.rows}
			svc := newAnalyticsServiceUnderTest(repo, false)

			trend, _, err := svc.EvasionTrend(context.Background(), "class-1", 0)
			require.NoError(t, err)
			assert.Equal(t, month(time.January), repo.evasionSince)
			require.Len(t, trend.Months, 6)
			assert.Equal(t, month(time.June), trend.Months[5].Month)
			assert.Equal(t, tc.direction, trend.Direction)
			assert.Equal(t, tc.change, trend.ChangePercent)
		})
	}
}

func TestAnalyticsServiceEvasionTrendLimits(t *testing.T) {
	svc := newAnalyticsServiceUnderTest(&mockAnalyticsRepo{}, false)
	_, _, err := svc.EvasionTrend(context.Background(), "", 48)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	trend, _, err := svc.EvasionTrend(context.Background(), "", 12)
	require.NoError(t, err)
	assert.Len(t, trend.Months, 12)
}

func TestAnalyticsServiceErrorPassthrough(t *testing.T) {
	repo := &mockAnalyticsRepo{err: assert.AnError}
	svc := newAnalyticsServiceUnderTest(repo, false)

	_, _, err := svc.CompareClasses(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
