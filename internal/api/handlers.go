package api

import (
	"encoding/json"
	"net/http"

	"github.com/lox/rizz/internal/forecast"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.session.Settings()
	health := HealthStatus{
		Status:    "ok",
		Settings:  st.State().String(),
		Locations: []LocationHealth{},
	}
	if err := st.Err(); err != nil {
		health.Status = "degraded"
		health.Errors = append(health.Errors, "settings: "+err.Error())
	}

	for _, lf := range s.session.Forecasts() {
		lh := LocationHealth{Name: lf.Location.Name, State: lf.State.String()}
		if lf.State == forecast.Ready {
			t := s.session.Aggregator(lf.Location).LoadedAt()
			lh.LoadedAt = &t
		}
		if lf.Err != nil {
			health.Status = "degraded"
			health.Errors = append(health.Errors, lf.Location.Name+": "+lf.Err.Error())
		}
		health.Locations = append(health.Locations, lh)
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleAPILocations(w http.ResponseWriter, r *http.Request) {
	st := s.session.Settings()
	if !st.Loaded() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "settings not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, st.Locations())
}

func (s *Server) handleAPIThemes(w http.ResponseWriter, r *http.Request) {
	themes := s.session.Settings().ColorThemes()
	out := make([]ThemeView, len(themes))
	for i, t := range themes {
		out[i] = newThemeView(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAPIForecast serves every location, or one with ?location=name.
func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("location")
	views := []ForecastView{}
	for _, lf := range s.session.Forecasts() {
		if name != "" && lf.Location.Name != name {
			continue
		}
		views = append(views, newForecastView(lf, s.opts))
	}
	if name != "" {
		if len(views) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown location " + name})
			return
		}
		writeJSON(w, http.StatusOK, views[0])
		return
	}
	writeJSON(w, http.StatusOK, views)
}
