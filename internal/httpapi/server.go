// Package httpapi exposes the report scanners as a JSON API.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"duat/internal/analysis"
	"duat/internal/delivery"
	"duat/internal/domain"
	"duat/internal/manpower"
	"duat/internal/search"
	"duat/internal/storage/sqlite"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Version is reported by /health.
const Version = "4.0.0"

const maxUploadBytes = 32 << 20

const (
	defaultTrendWeeks  = 12
	defaultTrendMonths = 6
	defaultPivotWeeks  = 52
)

// Options configures a Server. A nil Logger logs nothing and a nil DB
// disables persistence.
type Options struct {
	Logger              *zap.Logger
	DB                  *sql.DB
	ReportFolder        string
	Keywords            []string
	DefaultProductivity float64
	// BaseContext bounds background scans. Defaults to context.Background().
	BaseContext context.Context
}

// Server holds the API's in-memory scan state.
type Server struct {
	opts    Options
	logger  *zap.Logger
	tracker *Tracker
	search  *search.Searcher

	mu     sync.Mutex
	shifts []domain.ShiftRecord
}

// New returns a server with idle scan state.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Server{
		opts:    opts,
		logger:  opts.Logger,
		tracker: NewTracker(),
		search:  search.New(opts.Logger),
	}
}

// Tracker exposes the background scan state.
func (s *Server) Tracker() *Tracker { return s.tracker }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": Version})
	})
	r.Get("/api/config", s.handleConfig)

	r.Route("/api/parse", func(r chi.Router) {
		r.Post("/folder", s.handleParseFolder)
		r.Get("/progress", s.handleParseProgress)
		r.Get("/results", s.handleParseResults)
		r.Get("/analysis", s.handleParseAnalysis)
		r.Get("/trends/monthly", s.handleMonthlyTrend)
		r.Get("/trends/nth-by-project", s.handleNTHByProject)
		r.Get("/distribution/lines", s.handleLineDistribution)
		r.Get("/files", s.handleListFiles)
		r.Post("/docx", s.handleParseDocx)
	})

	r.Route("/api/manpower", func(r chi.Router) {
		r.Post("/scan", s.handleManpowerScan)
		r.Get("/analysis", s.handleManpowerAnalysis)
	})

	r.Post("/api/scurve", s.handleSCurve)
	r.Route("/api/performance", func(r chi.Router) {
		r.Get("/projects", s.handlePerformanceProjects)
		r.Post("/analyze", s.handlePerformanceAnalyze)
		r.Post("/recovery", s.handleRecovery)
		r.Get("/cumulative/{project}", s.handleCumulative)
	})

	r.Post("/api/keyword/search", s.handleKeywordSearch)

	if s.opts.DB != nil {
		r.Route("/api/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{runID}", s.handleGetRun)
		})
	}
	return r
}

type folderRequest struct {
	FolderPath string `json:"folder_path"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	keywords := s.opts.Keywords
	if len(keywords) == 0 {
		keywords = delivery.JobKeywords
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report_folder":        s.opts.ReportFolder,
		"keywords":             keywords,
		"default_productivity": s.opts.DefaultProductivity,
		"persistence":          s.opts.DB != nil,
	})
}

func (s *Server) handleParseFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := checkFolder(req.FolderPath); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	parser := delivery.NewDailyReportParser(req.FolderPath,
		delivery.WithLogger(s.logger), delivery.WithKeywords(s.opts.Keywords))
	if err := s.tracker.Begin(req.FolderPath, len(parser.ReportFiles())); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	go s.runDeliveryScan(parser)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "message": "Parsing started in background"})
}

func (s *Server) runDeliveryScan(parser *delivery.DailyReportParser) {
	started := time.Now()
	records, err := parser.ProcessAll(s.opts.BaseContext, s.tracker.Update)
	if err != nil {
		s.logger.Error("background folder parsing failed", zap.String("folder", parser.Folder()), zap.Error(err))
	}
	s.tracker.Finish(records, parser.Skipped(), parser.MaxWeek(), err)
	if err != nil || s.opts.DB == nil {
		return
	}

	files := len(parser.ReportFiles())
	run, dbErr := sqlite.SaveDeliveryRun(s.opts.DB, sqlite.ScanRun{
		Folder:     parser.Folder(),
		Files:      files,
		Processed:  files - len(parser.Skipped()),
		MaxWeek:    parser.MaxWeek(),
		Skipped:    parser.Skipped(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, records)
	if dbErr != nil {
		s.logger.Error("failed to store delivery run", zap.Error(dbErr))
		return
	}
	s.logger.Info("stored delivery run", zap.String("run_id", run.ID), zap.Int("records", run.RecordCount))
}

func (s *Server) handleParseProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleParseResults(w http.ResponseWriter, _ *http.Request) {
	results, err := s.tracker.Results()
	if err != nil {
		writeError(w, http.StatusConflict, errors.New("parsing still in progress"))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// deliveryResults returns the last finished scan, writing an error response
// when there is none to analyse.
func (s *Server) deliveryResults(w http.ResponseWriter) (Results, bool) {
	results, err := s.tracker.Results()
	if err != nil {
		writeError(w, http.StatusConflict, errors.New("parsing still in progress"))
		return Results{}, false
	}
	if len(results.Records) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no delivery data, parse a folder first"))
		return Results{}, false
	}
	return results, true
}

func (s *Server) handleParseAnalysis(w http.ResponseWriter, r *http.Request) {
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	weeks := queryInt(r, "weeks", defaultTrendWeeks)
	month := queryInt(r, "month", int(time.Now().Month()))
	writeJSON(w, http.StatusOK, map[string]any{
		"max_week":             results.MaxWeek,
		"project_distribution": analysis.ProjectDistribution(results.Records),
		"quantity_by_project":  analysis.QuantityByProject(results.Records),
		"keyword_distribution": analysis.KeywordDistribution(results.Records, s.opts.Keywords),
		"weekly_nth":           analysis.WeeklyNTH(results.Records, weeks),
		"summary":              analysis.Summarize(results.Records, results.MaxWeek, month),
	})
}

func (s *Server) handleMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"months": analysis.MonthlyNTH(results.Records, queryInt(r, "months", defaultTrendMonths)),
	})
}

func (s *Server) handleNTHByProject(w http.ResponseWriter, r *http.Request) {
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analysis.PivotNTHByWeek(results.Records, queryInt(r, "weeks", defaultPivotWeeks)))
}

func (s *Server) handleLineDistribution(w http.ResponseWriter, _ *http.Request) {
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": analysis.LineDistribution(results.Records)})
}

type scurveRequest struct {
	ProjectCode string  `json:"project_code"`
	TargetQty   float64 `json:"target_qty"`
	StartYear   int     `json:"start_year"`
	StartWeek   int     `json:"start_week"`
	EndYear     int     `json:"end_year"`
	EndWeek     int     `json:"end_week"`
}

func (s *Server) handleSCurve(w http.ResponseWriter, r *http.Request) {
	var req scurveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	curve, ok := analysis.BuildSCurve(results.Records, req.ProjectCode, req.TargetQty,
		req.StartYear, req.StartWeek, req.EndYear, req.EndWeek)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no data found for project %s", req.ProjectCode))
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

func (s *Server) handlePerformanceProjects(w http.ResponseWriter, _ *http.Request) {
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": analysis.ProjectCodes(results.Records)})
}

type performanceRequest struct {
	ProjectCode        string   `json:"project_code"`
	TargetProductivity *float64 `json:"target_productivity"`
	TargetQty          float64  `json:"target_qty"`
	StartYear          int      `json:"start_year"`
	EndYear            int      `json:"end_year"`
}

// handlePerformanceAnalyze adds a recovery path when the request carries a
// quantity target and a start and end year. The remaining weeks count 52 per
// year left until the end year.
func (s *Server) handlePerformanceAnalyze(w http.ResponseWriter, r *http.Request) {
	var req performanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	target := s.opts.DefaultProductivity
	if target <= 0 {
		target = analysis.DefaultTargetProductivity
	}
	if req.TargetProductivity != nil {
		target = *req.TargetProductivity
	}

	perf, ok := analysis.MeasurePerformance(results.Records, req.ProjectCode, target)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no data found for project %s", req.ProjectCode))
		return
	}
	if req.TargetQty > 0 && req.StartYear > 0 && req.EndYear > 0 {
		remaining := (req.EndYear - time.Now().Year()) * 52
		rec := analysis.RecoveryPath(req.TargetQty,
			analysis.TotalQuantity(results.Records, req.ProjectCode), remaining, perf.CurrentPace)
		perf.Recovery = &rec
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetQty           float64 `json:"target_qty"`
		ActualQty           float64 `json:"actual_qty"`
		RemainingWeeks      int     `json:"remaining_weeks"`
		CurrentProductivity float64 `json:"current_productivity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis.RecoveryPath(req.TargetQty, req.ActualQty, req.RemainingWeeks, req.CurrentProductivity))
}

func (s *Server) handleCumulative(w http.ResponseWriter, r *http.Request) {
	results, ok := s.deliveryResults(w)
	if !ok {
		return
	}
	project := chi.URLParam(r, "project")
	progress, ok := analysis.BuildCumulativeProgress(results.Records, project, analysis.CumulativeOptions{
		TargetQty: queryFloat(r, "target_qty", 0),
		StartYear: queryInt(r, "start_year", 0),
		EndYear:   queryInt(r, "end_year", 0),
	})
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no data found for project %s", project))
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder_path")
	if err := checkFolder(folder); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid folder path"))
		return
	}
	paths := delivery.NewDailyReportParser(folder).ReportFiles()
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"folder":      folder,
		"total_files": len(names),
		"files":       names,
	})
}

func (s *Server) handleParseDocx(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".docx") {
		writeError(w, http.StatusBadRequest, errors.New("file must be a .docx file"))
		return
	}

	tmp, err := os.CreateTemp("", "duat-upload-*.docx")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(tmp.Name())
	_, copyErr := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ex := delivery.Extractor{Keywords: s.opts.Keywords}
	records, err := ex.ProcessFile(tmp.Name())
	if err != nil {
		s.logger.Error("failed to parse uploaded docx", zap.String("file", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"filename":      header.Filename,
		"total_records": len(records),
		"records":       records,
	})
}

func (s *Server) handleManpowerScan(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := checkFolder(req.FolderPath); err != nil {
		writeError(w, http.StatusNotFound, errors.New("folder path does not exist"))
		return
	}

	started := time.Now()
	parser := manpower.NewManpowerParser(req.FolderPath, manpower.WithLogger(s.logger))
	files := len(parser.ReportFiles())
	records, err := parser.ProcessAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	s.shifts = records
	s.mu.Unlock()

	if s.opts.DB != nil {
		if _, dbErr := sqlite.SaveManpowerRun(s.opts.DB, sqlite.ScanRun{
			Folder:     req.FolderPath,
			Files:      files,
			Processed:  files - len(parser.Skipped()),
			Skipped:    parser.Skipped(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		}, records); dbErr != nil {
			s.logger.Error("failed to store manpower run", zap.Error(dbErr))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_files":   files,
		"total_records": len(records),
		"total_jobs":    domain.TotalJobs(records),
		"skipped":       parser.Skipped(),
	})
}

func (s *Server) handleManpowerAnalysis(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	records := s.shifts
	s.mu.Unlock()
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no manpower data, run scan first"))
		return
	}
	writeJSON(w, http.StatusOK, analysis.Manpower(records))
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderPath string `json:"folder_path"`
		Keyword    string `json:"keyword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.search.Search(r.Context(), req.FolderPath, req.Keyword)
	switch {
	case errors.Is(err, search.ErrFolderNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, search.ErrEmptyKeyword):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := sqlite.ListScanRuns(s.opts.DB, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := sqlite.GetScanRun(s.opts.DB, chi.URLParam(r, "runID"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, errors.New("scan run not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var records any
	switch run.Kind {
	case sqlite.KindDelivery:
		records, err = sqlite.GetDeliveryRecords(s.opts.DB, run.ID)
	default:
		records, err = sqlite.GetShiftRecords(s.opts.DB, run.ID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "records": records})
}

func checkFolder(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("folder_path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.New("folder does not exist")
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
