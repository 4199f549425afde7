package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	solana "github.com/gagliardetto/solana-go"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/safebins"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func parsePublicKey(w http.ResponseWriter, raw string) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid public key: "+raw)
		return solana.PublicKey{}, false
	}
	return pk, true
}

type poolResponse struct {
	ID      string          `json:"id"`
	Info    decode.PoolInfo `json:"info"`
	Active  int32           `json:"activeBin"`
}

func (r *Relay) handlePools(w http.ResponseWriter, _ *http.Request) {
	view := r.registry.View()
	out := make([]poolResponse, 0, len(view.Pools))
	for id, info := range view.Pools {
		out = append(out, poolResponse{ID: id.String(), Info: info, Active: view.ActiveBin[id]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Relay) handlePoolByID(w http.ResponseWriter, req *http.Request) {
	id, ok := parsePublicKey(w, mux.Vars(req)["id"])
	if !ok {
		return
	}
	view := r.registry.View()
	info, found := view.Pools[id]
	if !found {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{ID: id.String(), Info: info, Active: view.ActiveBin[id]})
}

type positionResponse struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	Pool        string      `json:"pool"`
	Side        string      `json:"side"`
	MinBin      int32       `json:"minBin"`
	MaxBin      int32       `json:"maxBin"`
	FillPercent float64     `json:"fillPercent"`
	SafeBins    []int32     `json:"safeBins"`
}

// positionResponses builds the computed view shared by /positions and
// /harvests/pending: fill percent and the current safe-bin list, both
// derived from the same side/active-bin rule as safe-bin detection.
func (r *Relay) positionResponses() []positionResponse {
	view := r.registry.View()
	out := make([]positionResponse, 0, len(view.Positions))
	for id, rec := range view.Positions {
		pos := rec.Position
		activeBin, known := view.ActiveBin[pos.Pool]
		if !known {
			continue
		}
		safe := safebins.RangeOnly(pos.Side, pos.MinBin, pos.MaxBin, activeBin)
		out = append(out, positionResponse{
			ID:          id.String(),
			Owner:       pos.Owner.String(),
			Pool:        pos.Pool.String(),
			Side:        pos.Side.String(),
			MinBin:      pos.MinBin,
			MaxBin:      pos.MaxBin,
			FillPercent: safebins.FillPercent(pos.Side, pos.MinBin, pos.MaxBin, activeBin),
			SafeBins:    safe,
		})
	}
	return out
}

func (r *Relay) handlePositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.positionResponses())
}

func (r *Relay) handlePendingHarvests(w http.ResponseWriter, _ *http.Request) {
	all := r.positionResponses()
	pending := make([]positionResponse, 0, len(all))
	for _, p := range all {
		if len(p.SafeBins) > 0 {
			pending = append(pending, p)
		}
	}
	writeJSON(w, http.StatusOK, pending)
}

type statsResponse struct {
	PositionCount    int   `json:"positionCount"`
	WatchedPools     int   `json:"watchedPools"`
	TotalHarvests    int64 `json:"totalHarvests"`
	TotalCloses      int64 `json:"totalCloses"`
	QueueDepth       int   `json:"queueDepth"`
	Inflight         int   `json:"inflight"`
	PushClients      int   `json:"pushClients"`
	ReconnectCount   int64 `json:"reconnectCount"`
}

func (r *Relay) handleStats(w http.ResponseWriter, _ *http.Request) {
	positions, pools := r.registry.Size()

	var harvests, closes int64
	var queueDepth, inflight int
	if r.exec != nil {
		queueDepth = r.exec.QueueDepth()
		inflight = r.exec.Inflight()
		harvests, closes = r.exec.Counters()
	}

	var reconnects int64
	if r.sub != nil {
		reconnects = r.sub.ReconnectCount()
	}

	writeJSON(w, http.StatusOK, statsResponse{
		PositionCount:  positions,
		WatchedPools:   pools,
		TotalHarvests:  harvests,
		TotalCloses:    closes,
		QueueDepth:     queueDepth,
		Inflight:       inflight,
		PushClients:    r.ClientCount(),
		ReconnectCount: reconnects,
	})
}

type userBinResponse struct {
	ActiveBin int32          `json:"activeBin"`
	Bins      []binAmount    `json:"bins"`
}

type binAmount struct {
	Bin     int32  `json:"bin"`
	AmountX uint64 `json:"amountX"`
	AmountY uint64 `json:"amountY"`
}

func (r *Relay) handleUserBins(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	pool, ok := parsePublicKey(w, vars["id"])
	if !ok {
		return
	}
	owner, ok := parsePublicKey(w, vars["owner"])
	if !ok {
		return
	}
	if r.client == nil {
		writeError(w, http.StatusServiceUnavailable, "rpc client not wired")
		return
	}

	bins, activeBin, err := r.client.GetUserBins(req.Context(), pool, owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]binAmount, len(bins))
	for i, b := range bins {
		out[i] = binAmount{Bin: b.Bin, AmountX: b.AmountX, AmountY: b.AmountY}
	}
	writeJSON(w, http.StatusOK, userBinResponse{ActiveBin: activeBin, Bins: out})
}
