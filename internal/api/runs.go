package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/speedtrap/internal/db"
	"github.com/banshee-data/speedtrap/internal/engine"
	"github.com/banshee-data/speedtrap/internal/httputil"
	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/report"
	"github.com/banshee-data/speedtrap/internal/sim"
	"github.com/banshee-data/speedtrap/internal/units"
)

// RunRequest is the body of POST /api/runs and POST /api/simulate. It may
// also be sent as form values with the same names.
type RunRequest struct {
	SpeedKph  *float64 `json:"speed_kph"`
	DistanceM *float64 `json:"distance_m"`
	Zone      string   `json:"zone"`
	Weather   string   `json:"weather"`
	// BrakeAtS is only used by /api/simulate.
	BrakeAtS *float64 `json:"brake_at_s,omitempty"`
}

func (s *Server) parseRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("invalid form: %w", err)
	}
	for name, dst := range map[string]**float64{
		"speed_kph":  &req.SpeedKph,
		"distance_m": &req.DistanceM,
		"brake_at_s": &req.BrakeAtS,
	} {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("invalid %s %q", name, v)
		}
		*dst = &f
	}
	req.Zone = r.FormValue("zone")
	req.Weather = r.FormValue("weather")
	return req, nil
}

// params resolves a request against the configured defaults. Missing speed
// or distance become NaN so that validation reports them by field.
func (s *Server) params(req RunRequest) (sim.Params, error) {
	p := sim.Params{
		InitialSpeedKph: math.NaN(),
		TotalDistanceM:  math.NaN(),
		Zone:            s.cfg.GetDefaultZone(),
		Weather:         s.cfg.GetDefaultWeather(),
	}
	if req.SpeedKph != nil {
		p.InitialSpeedKph = *req.SpeedKph
	}
	if req.DistanceM != nil {
		p.TotalDistanceM = *req.DistanceM
	}
	if req.Zone != "" {
		z, err := physics.ParseZone(req.Zone)
		if err != nil {
			return p, &sim.ValidationError{Field: "zone", Value: math.NaN(), Err: sim.ErrInvalidZone}
		}
		p.Zone = z
	}
	if req.Weather != "" {
		p.Weather = physics.ParseWeather(req.Weather)
	}
	return p, p.Validate()
}

func (s *Server) writeValidationError(w http.ResponseWriter, err error) {
	var verr *sim.ValidationError
	if errors.As(err, &verr) {
		httputil.WriteFieldError(w, verr.Field, verr.Err.Error())
		return
	}
	httputil.BadRequest(w, err.Error())
}

// handleRuns handles GET (history) and POST (start a live run) on /api/runs.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRuns(w, r)
	case http.MethodPost:
		s.startRun(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRunRequest(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p, err := s.params(req)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}

	h, err := s.engine.Start(s.ctx, p)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"run_id":            h.ID,
		"started_at":        h.StartedAt,
		"frame_interval_ms": float64(s.engine.FrameInterval().Microseconds()) / 1000,
		"params":            p,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.GetHistoryLimit()
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	runs, err := s.db.Runs(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

// handleRunByID handles /api/runs/{id}, /api/runs/{id}/charts and
// /api/runs/{id}/plot.png.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		httputil.BadRequest(w, "Missing run ID")
		return
	}
	id := pathParts[0]

	sub := ""
	if len(pathParts) > 1 {
		sub = strings.Join(pathParts[1:], "/")
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.showRun(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		s.deleteRun(w, id)
	case sub == "charts" && r.Method == http.MethodGet:
		s.showCharts(w, r, id)
	case sub == "plot.png" && r.Method == http.MethodGet:
		s.showPlot(w, r, id)
	case sub != "" && sub != "charts" && sub != "plot.png":
		httputil.NotFound(w, "Not found")
	default:
		httputil.MethodNotAllowed(w)
	}
}

// SampleAPI is a sample with its speed in the requested units.
type SampleAPI struct {
	TimeS          float64 `json:"time_s"`
	PositionM      float64 `json:"position_m"`
	Speed          float64 `json:"speed"`
	FrictionForceN float64 `json:"friction_force_n"`
}

// RunDetail is the response of GET /api/runs/{id}.
type RunDetail struct {
	db.RunRecord
	Units      string        `json:"units"`
	Summary    sim.Summary   `json:"summary"`
	Analysis   *sim.Analysis `json:"analysis,omitempty"`
	SafetyTips []string      `json:"safety_tips,omitempty"`
	Samples    []SampleAPI   `json:"samples"`
}

func newRunDetail(rec db.RunRecord, samples []sim.Sample, speedUnits string) RunDetail {
	d := RunDetail{
		RunRecord: rec,
		Units:     speedUnits,
		Summary:   sim.Summarize(samples),
		Samples:   make([]SampleAPI, len(samples)),
	}
	for i, smp := range samples {
		d.Samples[i] = SampleAPI{
			TimeS:          smp.TimeS,
			PositionM:      smp.PositionM,
			Speed:          units.ConvertKph(smp.SpeedKph, speedUnits),
			FrictionForceN: smp.FrictionForceN,
		}
	}
	if rec.Verdict != nil {
		a := sim.Analyze(rec.Params, *rec.Verdict)
		d.Analysis = &a
		d.SafetyTips = sim.SafetyTips(rec.Verdict.ExceededLimit)
	}
	return d
}

// loadRun fetches a run and its samples, writing the error response itself
// when it fails.
func (s *Server) loadRun(w http.ResponseWriter, id string) (db.RunRecord, []sim.Sample, bool) {
	rec, err := s.db.Run(id)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "Run not found")
		return rec, nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
		return rec, nil, false
	}
	samples, err := s.db.Samples(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve samples: %v", err))
		return rec, nil, false
	}
	return rec, samples, true
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request, id string) {
	speedUnits, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'units' parameter, must be one of: "+units.GetValidUnitsString())
		return
	}
	rec, samples, ok := s.loadRun(w, id)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newRunDetail(rec, samples, speedUnits))
}

func (s *Server) deleteRun(w http.ResponseWriter, id string) {
	err := s.db.DeleteRun(id)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "Run not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to delete run: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reportRun(w http.ResponseWriter, r *http.Request, id string) (report.Run, report.Options, bool) {
	speedUnits, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'units' parameter, must be one of: "+units.GetValidUnitsString())
		return report.Run{}, report.Options{}, false
	}
	rec, samples, ok := s.loadRun(w, id)
	if !ok {
		return report.Run{}, report.Options{}, false
	}
	if len(samples) == 0 {
		httputil.NotFound(w, "Run has no samples")
		return report.Run{}, report.Options{}, false
	}
	run := report.Run{RunID: rec.RunID, Params: rec.Params, Verdict: rec.Verdict, Samples: samples}
	return run, report.Options{Units: speedUnits, AssetsHost: s.cfg.GetChartAssetsHost()}, true
}

func (s *Server) showCharts(w http.ResponseWriter, r *http.Request, id string) {
	run, o, ok := s.reportRun(w, r, id)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.Dashboard(w, run, o); err != nil {
		log.Printf("Failed to render charts for run %s: %v", id, err)
	}
}

func (s *Server) showPlot(w http.ResponseWriter, r *http.Request, id string) {
	kind, err := report.ParsePlotKind(r.URL.Query().Get("series"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	run, o, ok := s.reportRun(w, r, id)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := report.WritePNG(w, run, kind, o); err != nil {
		log.Printf("Failed to render plot for run %s: %v", id, err)
	}
}

// handleSimulate runs a complete simulation synchronously, stores it and
// returns its detail.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, err := s.parseRunRequest(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p, err := s.params(req)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}

	opts := engine.SimulateOptions{
		FrameInterval: s.engine.FrameInterval(),
		MaxDuration:   s.cfg.GetMaxRunDuration(),
	}
	if req.BrakeAtS != nil {
		if *req.BrakeAtS < 0 || math.IsNaN(*req.BrakeAtS) {
			httputil.BadRequest(w, "brake_at_s must be non-negative")
			return
		}
		opts.Brake = true
		opts.BrakeAtS = *req.BrakeAtS
	}

	res, err := engine.Simulate(p, opts)
	if err != nil && !errors.Is(err, engine.ErrRunTimeout) {
		s.writeValidationError(w, err)
		return
	}
	if err := s.db.RecordResult(res); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store run: %v", err))
		return
	}

	speedUnits, ok := s.requestUnits(r)
	if !ok {
		speedUnits = s.cfg.GetUnits()
	}
	rec, samples := db.RecordFromResult(res)
	httputil.WriteJSON(w, http.StatusOK, newRunDetail(rec, samples, speedUnits))
}
