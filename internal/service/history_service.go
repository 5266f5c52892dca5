package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
	"github.com/rs/zerolog"
)

// Rejected rows returned inline with a run
const inlineErrorLimit = 100

// historyService is the concrete implementation of HistoryService
type historyService struct {
	runs repository.ImportRunRepository
	cfg  config.ImportConfig
	log  zerolog.Logger
}

// newHistoryService creates a new HistoryService
func newHistoryService(runs repository.ImportRunRepository, cfg config.ImportConfig, log zerolog.Logger) *historyService {
	return &historyService{
		runs: runs,
		cfg:  cfg,
		log:  log.With().Str("service", "history").Logger(),
	}
}

// ListRuns returns a page of runs, newest first
func (s *historyService) ListRuns(ctx context.Context, filter repository.ListFilter) (*models.ImportRunList, error) {
	if filter.Limit <= 0 || (s.cfg.HistoryLimit > 0 && filter.Limit > s.cfg.HistoryLimit) {
		filter.Limit = s.cfg.HistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	runs, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.runs.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &models.ImportRunList{
		Runs:   runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// GetRun retrieves a run with its first rejected rows. A missing run
// returns nil.
func (s *historyService) GetRun(ctx context.Context, id string) (*models.ImportRunResponse, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}

	response := &models.ImportRunResponse{ImportRun: *run}
	if run.FailedCount == 0 {
		return response, nil
	}

	errors, err := s.runs.GetErrors(ctx, id, inlineErrorLimit)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run errors")
	}
	response.Errors = errors

	// Recording the rows is best-effort, so the stored count can fall short of FailedCount
	response.ErrorCount, err = s.runs.CountErrors(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("Failed to count run errors")
		response.ErrorCount = run.FailedCount
	}
	response.ErrorReport = "/v1/import-runs/" + run.ID + "/errors?format=csv"

	return response, nil
}

// StreamErrors writes every rejected row of a run as csv, json or ndjson
func (s *historyService) StreamErrors(ctx context.Context, w http.ResponseWriter, id, format string) error {
	var write func(context.Context, http.ResponseWriter, *models.ImportRun) error
	switch format {
	case "csv":
		write = s.streamErrorsCSV
	case "json":
		write = s.streamErrorsJSON
	case "ndjson":
		write = s.streamErrorsNDJSON
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return ErrRunNotFound
	}

	s.log.Info().Str("run_id", id).Str("format", format).Msg("Starting error report export")
	return write(ctx, w, run)
}

func (s *historyService) streamErrorsCSV(ctx context.Context, w http.ResponseWriter, run *models.ImportRun) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+reportName(run, "csv"))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{"row", "error"})

	return s.runs.StreamErrors(ctx, run.ID, func(e *models.ImportRunError) error {
		return writer.Write([]string{strconv.Itoa(e.Row), e.Message})
	})
}

func (s *historyService) streamErrorsJSON(ctx context.Context, w http.ResponseWriter, run *models.ImportRun) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename="+reportName(run, "json"))

	w.Write([]byte("["))
	first := true

	err := s.runs.StreamErrors(ctx, run.ID, func(e *models.ImportRunError) error {
		if !first {
			w.Write([]byte(","))
		}
		first = false

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		w.Write(data)
		return nil
	})

	w.Write([]byte("]"))
	return err
}

func (s *historyService) streamErrorsNDJSON(ctx context.Context, w http.ResponseWriter, run *models.ImportRun) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename="+reportName(run, "ndjson"))

	flusher, _ := w.(http.Flusher)
	count := 0

	err := s.runs.StreamErrors(ctx, run.ID, func(e *models.ImportRunError) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		w.Write(data)
		w.Write([]byte("\n"))
		count++

		// Flush every 100 records for streaming
		if count%100 == 0 && flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	s.log.Info().Int("count", count).Str("run_id", run.ID).Msg("Error report export completed")
	return err
}

// Ping reports whether run history can be read
func (s *historyService) Ping(ctx context.Context) error {
	return s.runs.Ping(ctx)
}

func reportName(run *models.ImportRun, ext string) string {
	return "import_" + run.ID + "_errors." + ext
}
