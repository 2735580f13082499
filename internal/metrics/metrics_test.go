package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ArtifactOp("create", nil)
	m.LoginAttempt("success")
	m.HTTPRequest("GET", "/health", "200", time.Millisecond)
}

func TestMetrics_Counts(t *testing.T) {
	m := New()

	m.ArtifactOp("create", nil)
	m.ArtifactOp("create", nil)
	m.ArtifactOp("create", errors.New("disk full"))
	m.LoginAttempt("throttled")

	if got := testutil.ToFloat64(m.artifactOps.WithLabelValues("create", "success")); got != 2 {
		t.Errorf("create success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.artifactOps.WithLabelValues("create", "error")); got != 1 {
		t.Errorf("create error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.loginAttempts.WithLabelValues("throttled")); got != 1 {
		t.Errorf("throttled = %v, want 1", got)
	}

	m.HTTPRequest("GET", "/api/files", "200", 10*time.Millisecond)
	if n := testutil.CollectAndCount(m.httpDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}
