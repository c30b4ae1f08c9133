package outbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

type healthFakeRepo struct {
	fakeRepository

	pendingErr    error
	deadLetter    int
	deadLetterErr error
	oldestSeconds float64
	oldestErr     error
}

func (r *healthFakeRepo) PendingCount(context.Context) (int, error) { return 0, r.pendingErr }
func (r *healthFakeRepo) DeadLetterCount(context.Context) (int, error) {
	return r.deadLetter, r.deadLetterErr
}
func (r *healthFakeRepo) OldestPendingAgeSeconds(context.Context) (float64, error) {
	return r.oldestSeconds, r.oldestErr
}

func TestHealthCheckerAllHealthy(t *testing.T) {
	repo := &healthFakeRepo{}
	checker := NewHealthChecker(repo, HealthCheckerConfig{})

	report := checker.Check(context.Background())
	if report.Status != HealthHealthy {
		t.Fatalf("expected healthy, got %v (%+v)", report.Status, report.Checks)
	}
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks without a backlog limiter, got %d", len(report.Checks))
	}
}

func TestHealthCheckerDatabaseUnreachableIsUnhealthy(t *testing.T) {
	repo := &healthFakeRepo{pendingErr: errors.New("connection refused")}
	checker := NewHealthChecker(repo, HealthCheckerConfig{})

	report := checker.Check(context.Background())
	if report.Status != HealthUnhealthy {
		t.Fatalf("expected unhealthy, got %v", report.Status)
	}
}

func TestHealthCheckerDeadLetterDegradedThenUnhealthy(t *testing.T) {
	repo := &healthFakeRepo{deadLetter: 1}
	checker := NewHealthChecker(repo, HealthCheckerConfig{DeadLetterDegradedCount: 1, DeadLetterUnhealthyCount: 10})

	report := checker.Check(context.Background())
	if report.Status != HealthDegraded {
		t.Fatalf("expected degraded, got %v", report.Status)
	}

	repo.deadLetter = 10
	report = checker.Check(context.Background())
	if report.Status != HealthUnhealthy {
		t.Fatalf("expected unhealthy, got %v", report.Status)
	}
}

func TestHealthCheckerOldestPendingThresholds(t *testing.T) {
	repo := &healthFakeRepo{oldestSeconds: 60}
	checker := NewHealthChecker(repo, HealthCheckerConfig{
		OldestPendingDegraded:  30 * time.Second,
		OldestPendingUnhealthy: 5 * time.Minute,
	})

	report := checker.Check(context.Background())
	if report.Status != HealthDegraded {
		t.Fatalf("expected degraded, got %v", report.Status)
	}

	repo.oldestSeconds = 600
	report = checker.Check(context.Background())
	if report.Status != HealthUnhealthy {
		t.Fatalf("expected unhealthy, got %v", report.Status)
	}
}

func TestHealthCheckerIncludesBacklogWhenConfigured(t *testing.T) {
	repo := &healthFakeRepo{}
	limiter := NewBacklogLimiter(&pendingCountRepo{pending: 90}, 100, LimitWarn, nil)
	checker := NewHealthChecker(repo, HealthCheckerConfig{BacklogLimiter: limiter})

	report := checker.Check(context.Background())
	if len(report.Checks) != 4 {
		t.Fatalf("expected 4 checks with a backlog limiter configured, got %d", len(report.Checks))
	}
	if report.Status != HealthDegraded {
		t.Fatalf("expected degraded from 90%% backlog utilization, got %v", report.Status)
	}
}
