package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"smart-greenhouse/internal/ble"
	"smart-greenhouse/internal/store"
	"smart-greenhouse/internal/types"
	"smart-greenhouse/internal/utils"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Journal is the part of the sample store the API reads.
type Journal interface {
	Healthy(ctx context.Context) error
	Latest(ctx context.Context, clientID uint16, limit int) ([]store.Record, error)
}

// Broker reports the MQTT session state.
type Broker interface {
	IsConnected() bool
}

type Deps struct {
	Journal Journal
	Link    ble.StatusReader
	Broker  Broker
}

type statusResponse struct {
	BLEConnected  bool `json:"ble_connected"`
	MQTTConnected bool `json:"mqtt_connected"`
}

type samplesResponse struct {
	ClientID uint16            `json:"client_id"`
	Limit    int               `json:"limit"`
	Items    []types.Telemetry `json:"items"`
}

func NewMux(deps Deps) *http.ServeMux {
	h := &handlers{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /api/v1/status", h.handleStatus)
	mux.HandleFunc("GET /api/v1/clients/{id}/samples", h.handleSamples)
	return mux
}

type handlers struct {
	deps Deps
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Journal.Healthy(r.Context()); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, statusResponse{
		BLEConnected:  h.deps.Link != nil && h.deps.Link.Connected(),
		MQTTConnected: h.deps.Broker != nil && h.deps.Broker.IsConnected(),
	})
}

func (h *handlers) handleSamples(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 16)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.deps.Journal.Latest(r.Context(), uint16(id), limit)
	if err != nil {
		slog.Error("failed to read samples", "client_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to read samples")
		return
	}

	items := make([]types.Telemetry, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.Telemetry)
	}
	utils.WriteJSON(w, http.StatusOK, samplesResponse{ClientID: uint16(id), Limit: limit, Items: items})
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxLimit {
		return 0, errors.New("'limit' must be <= 1000")
	}
	return n, nil
}
