package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderJobs(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.JobStarted("backup")
	if got := testutil.ToFloat64(pr.running); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	pr.JobFinished("backup", OutcomeSuccess, 3*time.Second)
	pr.JobFinished("restore", OutcomeWarning, time.Second)
	pr.JobRejected("restore")
	pr.JobRejected("restore")

	if got := testutil.ToFloat64(pr.running); got != 0 {
		t.Errorf("running = %v, want 0", got)
	}
	if got := testutil.ToFloat64(pr.jobs.WithLabelValues("backup", "success")); got != 1 {
		t.Errorf("jobs{backup,success} = %v", got)
	}
	if got := testutil.ToFloat64(pr.rejected.WithLabelValues("restore")); got != 2 {
		t.Errorf("rejected{restore} = %v", got)
	}
	if n := testutil.CollectAndCount(pr.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestPrometheusRecorderLastBackup(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	pr.SetLastBackup(ts)
	if got := testutil.ToFloat64(pr.lastBackup); got != float64(ts.Unix()) {
		t.Errorf("last backup = %v", got)
	}
	pr.SetLastBackup(time.Time{})
	if got := testutil.ToFloat64(pr.lastBackup); got != 0 {
		t.Errorf("last backup after clear = %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.JobStarted("backup")
	pr.JobFinished("backup", OutcomeFailed, time.Second)
	pr.JobRejected("backup")
	pr.SetLastBackup(time.Now())

	var r Recorder = NoopRecorder{}
	r.JobStarted("backup")
}

func TestHTTPHandler(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.JobFinished("fstab", OutcomeSuccess, time.Second)

	srv := httptest.NewServer(HTTPHandler(pr.Registry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `stackops_jobs_total{action="fstab",outcome="success"} 1`) {
		t.Errorf("body missing job counter:\n%s", body)
	}
}
