package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/skincheck/internal/adapters/weather"
)

// WeatherHandler serves the sun-protection advisory.
type WeatherHandler struct {
	deps Dependencies
}

// NewWeatherHandler creates a new weather handler.
func NewWeatherHandler(deps Dependencies) *WeatherHandler {
	return &WeatherHandler{deps: deps}
}

// HandleWeather handles GET /weather?lat=..&lon=.. requests.
func (h *WeatherHandler) HandleWeather(w http.ResponseWriter, r *http.Request) {
	const op = "api.weather"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	adv, err := h.deps.Advise(r.Context(), lat, lon)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, adv)
	case errors.Is(err, weather.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, weather.ErrDisabled):
		writeError(w, http.StatusNotFound, "disabled", Wrap(op, err))
	default:
		writeError(w, http.StatusBadGateway, "upstream_error", Wrap(op, err))
	}
}
