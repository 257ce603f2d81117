package metrics

import "testing"

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	SetQueueDepth(3, 2, 1)
	mfs, err := Registry.Gather()
	if err != nil { t.Fatalf("gather: %v", err) }
	got := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "crmsync_queue_depth" { continue }
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "queue" { got[lp.GetValue()] = m.GetGauge().GetValue() }
			}
		}
	}
	if len(got) != 3 || got["pending"] != 3 || got["processing"] != 2 || got["dead_letter"] != 1 {
		t.Fatalf("queue depth = %v", got)
	}
}
