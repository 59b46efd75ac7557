package observability

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/querypulse/querypulse/pkg/types"
)

func TestRecordRequest(t *testing.T) {
	s := NewAPIStats()
	s.RecordRequest("/v1/patterns", 200, 10*time.Millisecond)
	s.RecordRequest("/v1/patterns", 500, 30*time.Millisecond)
	s.RecordRequest("/v1/patterns", 404, 20*time.Millisecond)
	s.RecordRequest("/v1/healthz", 200, time.Millisecond)

	snap := s.Snapshot()
	if len(snap.Routes) != 2 {
		t.Fatalf("routes = %+v", snap.Routes)
	}
	// Highest request count sorts first.
	top := snap.Routes[0]
	if top.Route != "/v1/patterns" || top.Count != 3 {
		t.Errorf("top route = %+v", top)
	}
	if top.Errors != 1 {
		t.Errorf("Errors = %d, want only the 500 counted", top.Errors)
	}
	if top.MaxElapsedMS != 30 || top.MeanElapsedMS != 20 {
		t.Errorf("elapsed: max=%dms mean=%dms", top.MaxElapsedMS, top.MeanElapsedMS)
	}
	if top.LastStatus != 404 {
		t.Errorf("LastStatus = %d", top.LastStatus)
	}
}

// The _ms fields hold milliseconds on the wire, not nanosecond durations.
func TestSnapshotElapsedUnits(t *testing.T) {
	s := NewAPIStats()
	s.RecordRequest("/v1/patterns", 200, 1500*time.Millisecond)
	s.RecordRefresh(&types.RunReport{}, 2*time.Second, nil)

	b, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`"max_elapsed_ms":1500`,
		`"mean_elapsed_ms":1500`,
		`"elapsed_ms":2000`,
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("snapshot JSON missing %s: %s", want, b)
		}
	}
}

func TestRecordRefresh(t *testing.T) {
	s := NewAPIStats()
	if s.Snapshot().LastRefresh != nil {
		t.Fatal("fresh tracker should have no refresh outcome")
	}

	s.RecordRefresh(&types.RunReport{RowsSeen: 10, Tables: 2}, time.Second, nil)
	snap := s.Snapshot()
	if snap.LastRefresh == nil || snap.LastRefresh.Report.RowsSeen != 10 {
		t.Fatalf("LastRefresh = %+v", snap.LastRefresh)
	}
	if snap.LastRefresh.Error != "" {
		t.Errorf("Error = %q", snap.LastRefresh.Error)
	}

	s.RecordRefresh(nil, time.Second, errors.New("warehouse down"))
	snap = s.Snapshot()
	if snap.LastRefresh.Error != "warehouse down" {
		t.Errorf("Error = %q", snap.LastRefresh.Error)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewAPIStats()
	s.RecordRequest("/v1/tables", 200, time.Millisecond)

	snap := s.Snapshot()
	snap.Routes[0].Count = 99

	if s.Snapshot().Routes[0].Count != 1 {
		t.Error("snapshot aliases internal state")
	}
}
