package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/countries-visited/internal/geo"
	"github.com/sells-group/countries-visited/internal/store"
)

type resolveResponse struct {
	Country    string         `json:"country"`
	Name       string         `json:"name"`
	DistanceKM float64        `json:"distance_km"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

type locationRequest struct {
	Latitude   *float64  `json:"latitude"`
	Longitude  *float64  `json:"longitude"`
	Zone       string    `json:"zone"`
	RecordedAt time.Time `json:"recorded_at"`
}

type manualRequest struct {
	Codes []string `json:"codes"`
}

type manualResponse struct {
	Person string   `json:"person"`
	Codes  []string `json:"codes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"countries": s.tracker.Table().Len(),
	})
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Table().Records())
}

// handleCountriesGeoJSON serves the circle layer. ?person= marks the
// person's visited countries.
func (s *Server) handleCountriesGeoJSON(w http.ResponseWriter, r *http.Request) {
	var highlight []string
	if person := strings.TrimSpace(r.URL.Query().Get("person")); person != "" {
		report, err := s.tracker.Evaluate(r.Context(), person)
		if err != nil {
			s.internalError(w, "evaluate person", err)
			return
		}
		highlight = report.Visited
	}

	data, err := s.tracker.Table().MarshalGeoJSON(highlight)
	if err != nil {
		s.internalError(w, "encode geojson", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat must be a number")
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lon must be a number")
		return
	}

	c := geo.Coordinate{Latitude: lat, Longitude: lon}
	table := s.tracker.Table()
	m, ok := table.Match(c)
	s.metrics.ObserveClassification(ok)
	if !ok {
		writeError(w, http.StatusNotFound, "no country contains "+c.String())
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Country:    m.Record.Code,
		Name:       table.Name(m.Record.Code),
		DistanceKM: m.DistanceKM,
		Coordinate: c,
	})
}

func (s *Server) handlePersons(w http.ResponseWriter, r *http.Request) {
	persons, err := s.store.Persons(r.Context())
	if err != nil {
		s.internalError(w, "list persons", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"persons": persons})
}

func (s *Server) handleVisited(w http.ResponseWriter, r *http.Request) {
	report, err := s.tracker.Evaluate(r.Context(), chi.URLParam(r, "person"))
	if err != nil {
		s.internalError(w, "evaluate person", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecordLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sample := store.LocationSample{
		Person:     chi.URLParam(r, "person"),
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Zone:       req.Zone,
		RecordedAt: req.RecordedAt,
	}
	if err := sample.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "store: "))
		return
	}
	if err := s.store.RecordSample(r.Context(), &sample); err != nil {
		s.internalError(w, "record sample", err)
		return
	}
	s.metrics.AddIngested(1)
	writeJSON(w, http.StatusCreated, sample)
}

func (s *Server) handleManualList(w http.ResponseWriter, r *http.Request) {
	person := chi.URLParam(r, "person")
	codes, err := s.store.ManualCountries(r.Context(), person)
	if err != nil {
		s.internalError(w, "list manual countries", err)
		return
	}
	writeJSON(w, http.StatusOK, manualResponse{Person: person, Codes: codes})
}

func (s *Server) handleManualSet(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	person := chi.URLParam(r, "person")
	if err := s.store.SetManualCountries(r.Context(), person, req.Codes); err != nil {
		s.internalError(w, "set manual countries", err)
		return
	}
	s.handleManualList(w, r)
}

func (s *Server) handleManualAdd(w http.ResponseWriter, r *http.Request) {
	code := store.NormalizeCode(chi.URLParam(r, "code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "country code is required")
		return
	}
	if err := s.store.AddManualCountry(r.Context(), chi.URLParam(r, "person"), code); err != nil {
		s.internalError(w, "add manual country", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleManualRemove(w http.ResponseWriter, r *http.Request) {
	err := s.store.RemoveManualCountry(r.Context(), chi.URLParam(r, "person"), chi.URLParam(r, "code"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "country not in manual list")
		return
	}
	if err != nil {
		s.internalError(w, "remove manual country", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("request failed",
		zap.String("component", "server"),
		zap.String("operation", op),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
