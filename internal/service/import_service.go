package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/catalog-import-console/internal/catalog"
	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
	"github.com/catalog-import-console/internal/storage"
	"github.com/catalog-import-console/internal/workflow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const recordTimeout = 30 * time.Second

type session struct {
	wf    *workflow.Workflow
	owner string
}

// importService is the concrete implementation of ImportService. It owns the
// in-memory workflow sessions; a janitor evicts idle ones.
type importService struct {
	catalog workflow.Catalog
	runs    repository.ImportRunRepository
	archive storage.ObjectStorage
	cfg     config.ImportConfig
	log     zerolog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	janitorMu sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

// newImportService creates a new ImportService
func newImportService(catalog workflow.Catalog, runs repository.ImportRunRepository, archive storage.ObjectStorage, cfg config.ImportConfig, log zerolog.Logger) *importService {
	return &importService{
		catalog:  catalog,
		runs:     runs,
		archive:  archive,
		cfg:      cfg,
		log:      log.With().Str("service", "import").Logger(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Start creates a workflow for the operator, optionally selecting file.
// A file that cannot be used still leaves the workflow created.
func (s *importService) Start(ctx context.Context, principal models.Principal, file *models.UploadFile) (*workflow.View, error) {
	id := uuid.New().String()
	wf := workflow.New(id, s.catalog, workflow.WithClock(s.now))

	s.mu.Lock()
	s.sessions[id] = &session{wf: wf, owner: principal.UserID}
	s.mu.Unlock()

	s.log.Info().Str("workflow_id", id).Str("user_id", principal.UserID).Msg("Import started")

	var err error
	if file != nil {
		err = s.selectFile(wf, *file)
	}
	view := wf.View()
	return &view, err
}

// Get returns the current view of a workflow
func (s *importService) Get(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	wf, err := s.lookup(principal, id)
	if err != nil {
		return nil, err
	}
	view := wf.View()
	return &view, nil
}

// SelectFile replaces the workflow's file
func (s *importService) SelectFile(ctx context.Context, principal models.Principal, id string, file models.UploadFile) (*workflow.View, error) {
	wf, err := s.lookup(principal, id)
	if err != nil {
		return nil, err
	}
	err = s.selectFile(wf, file)
	view := wf.View()
	return &view, err
}

func (s *importService) selectFile(wf *workflow.Workflow, file models.UploadFile) error {
	err := wf.Select(file)

	event := s.log.Info()
	if err != nil {
		event = s.log.Warn().Err(err)
	}
	event.
		Str("workflow_id", wf.ID()).
		Str("file", file.Name()).
		Int64("size_bytes", file.Size()).
		Str("state", string(wf.State())).
		Msg("File selected")
	return err
}

// Validate sends the selected file to the catalog API's validate-batch
func (s *importService) Validate(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	wf, err := s.lookup(principal, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.upstream(ctx, principal)
	defer cancel()

	result, err := wf.Validate(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("workflow_id", id).Msg("Validation failed")
	} else {
		s.log.Info().
			Str("workflow_id", id).
			Int("total_rows", result.TotalRows).
			Int("valid_rows", result.ValidRows).
			Int("invalid_rows", result.InvalidRows).
			Msg("File validated")
	}

	view := wf.View()
	return &view, err
}

// Commit uploads the validated file and records the run
func (s *importService) Commit(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	wf, err := s.lookup(principal, id)
	if err != nil {
		return nil, err
	}

	upstreamCtx, cancel := s.upstream(ctx, principal)
	defer cancel()

	receipt, err := wf.Commit(upstreamCtx)
	if err != nil {
		s.log.Warn().Err(err).Str("workflow_id", id).Msg("Commit failed")
		if receipt != nil {
			// Reset mid-flight; the catalog still created the products
			s.record(ctx, principal, id, receipt)
		}
		view := wf.View()
		return &view, err
	}

	s.log.Info().
		Str("workflow_id", id).
		Int("created", len(receipt.Result.Created)).
		Int("failed", len(receipt.Result.Errors)).
		Dur("duration", receipt.Duration).
		Msg("Import committed")

	s.record(ctx, principal, id, receipt)

	view := wf.View()
	return &view, nil
}

// Clear resets the workflow to upload
func (s *importService) Clear(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	wf, err := s.lookup(principal, id)
	if err != nil {
		return nil, err
	}
	wf.Clear()
	view := wf.View()
	return &view, nil
}

// UploadAnother leaves the result report for a fresh upload
func (s *importService) UploadAnother(ctx context.Context, principal models.Principal, id string) (*workflow.View, error) {
	wf, err := s.lookup(principal, id)
	if err != nil {
		return nil, err
	}
	err = wf.UploadAnother()
	view := wf.View()
	return &view, err
}

// Delete drops the workflow. A request still in flight completes upstream.
func (s *importService) Delete(ctx context.Context, principal models.Principal, id string) error {
	wf, err := s.lookup(principal, id)
	if err != nil {
		return err
	}
	wf.Clear()

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Count returns the number of live workflows
func (s *importService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor starts evicting idle workflows in the background until
// StopJanitor or ctx is done. It returns once the janitor is registered.
func (s *importService) StartJanitor(ctx context.Context) {
	s.janitorMu.Lock()
	defer s.janitorMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	period := s.cfg.JanitorPeriod
	if period <= 0 {
		period = time.Minute
	}
	s.log.Info().Dur("period", period).Dur("ttl", s.cfg.SessionTTL).Msg("Session janitor started")

	s.wg.Add(1)
	go s.runJanitor(s.ctx, period)
}

func (s *importService) runJanitor(ctx context.Context, period time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Session janitor stopping")
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

// StopJanitor stops the janitor and waits for it to exit
func (s *importService) StopJanitor() {
	s.janitorMu.Lock()
	if !s.running {
		s.janitorMu.Unlock()
		return
	}
	s.cancel()
	s.janitorMu.Unlock()

	s.wg.Wait()

	s.janitorMu.Lock()
	s.running = false
	s.janitorMu.Unlock()
	s.log.Info().Msg("Session janitor stopped")
}

// evictIdle drops workflows idle longer than the session TTL. Busy workflows
// are kept until their request returns.
func (s *importService) evictIdle() int {
	if s.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.wf.Busy() || sess.wf.LastActivity().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	if evicted > 0 {
		s.log.Info().Int("evicted", evicted).Int("remaining", remaining).Msg("Evicted idle imports")
	}
	return evicted
}

func (s *importService) lookup(principal models.Principal, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || sess.owner != principal.UserID {
		return nil, ErrWorkflowNotFound
	}
	// Any request by the owner, polling included, keeps the session alive
	sess.wf.Touch()
	return sess.wf, nil
}

func (s *importService) upstream(ctx context.Context, principal models.Principal) (context.Context, context.CancelFunc) {
	ctx = catalog.WithAuthorization(ctx, principal.Authorization)
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// record archives the committed file and stores the run. Both are best
// effort: the catalog already holds the products.
func (s *importService) record(ctx context.Context, principal models.Principal, workflowID string, receipt *workflow.Receipt) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	result := receipt.Result
	completedAt := receipt.StartedAt.Add(receipt.Duration)
	run := &models.ImportRun{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		FileName:     receipt.File.Name(),
		FileSize:     receipt.File.Size(),
		Status:       models.StatusFor(result),
		TotalRows:    receipt.TotalRows,
		CreatedCount: len(result.Created),
		FailedCount:  len(result.Errors),
		Message:      result.Message,
		CreatedBy:    principal.UserID,
		DurationMs:   receipt.Duration.Milliseconds(),
		CreatedAt:    receipt.StartedAt,
		CompletedAt:  &completedAt,
	}
	log := s.log.With().Str("workflow_id", workflowID).Str("run_id", run.ID).Logger()

	if s.archive != nil {
		name := receipt.File.Name()
		key, err := s.archive.Upload(ctx, storage.ObjectKey(run.ID, name, receipt.StartedAt),
			storage.ContentType(name), bytes.NewReader(receipt.File.Bytes()), receipt.File.Size())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to archive import file")
		} else {
			run.FileKey = key
		}
	}

	if s.runs == nil {
		return
	}

	rowErrors := make([]models.ImportRunError, 0, len(result.Errors))
	for _, e := range result.Errors {
		rowErrors = append(rowErrors, models.ImportRunError{Row: e.Row, Message: e.Error})
	}
	if err := s.runs.Create(ctx, run, rowErrors); err != nil {
		log.Error().Err(err).Msg("Failed to record import run")
		return
	}
	log.Info().Str("status", string(run.Status)).Msg("Import run recorded")
}
