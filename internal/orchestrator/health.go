package orchestrator

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status             string    `json:"status"`
	StartTime          time.Time `json:"startTime"`
	UptimeSeconds      float64   `json:"uptimeSeconds"`
	LastHarvestAt      *time.Time `json:"lastHarvestAt,omitempty"`
	LastSequencerRunAt *time.Time `json:"lastSequencerRunAt,omitempty"`
}

// HealthCheck reports process-wide liveness, matching the VM-plugin
// health-check contract this daemon's ambient stack is modeled on: nil
// error means healthy, with a JSON detail payload.
func (o *Orchestrator) HealthCheck() (any, error) {
	return o.healthPayload(), nil
}

func (o *Orchestrator) healthPayload() healthResponse {
	o.mu.Lock()
	resp := healthResponse{
		Status:        "ok",
		StartTime:     o.startTime,
		UptimeSeconds: o.clk.Now().Sub(o.startTime).Seconds(),
	}
	if !o.lastHarvestAt.IsZero() {
		t := o.lastHarvestAt
		resp.LastHarvestAt = &t
	}
	o.mu.Unlock()

	if last := o.LastSequencerRun(); !last.IsZero() {
		resp.LastSequencerRunAt = &last
	}
	return resp
}

func (o *Orchestrator) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(o.healthPayload())
}
