// Package pipeline sequences a harvest run and assembles its archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/page"
	"github.com/aluiziolira/go-harvest-models/parser"
)

var (
	// ErrNoRecords is the terminal failure when no identifier produced data.
	ErrNoRecords = errors.New("no data obtained for any model")
	// ErrBusy is returned when Run is called on a pipeline that is not idle.
	ErrBusy = errors.New("pipeline: not idle")
)

// Discoverer finds the identifiers on a page.
type Discoverer interface {
	Discover(ctx context.Context, snap *page.Snapshot) (*models.DiscoveryResult, error)
}

// RecordFetcher resolves one identifier; a nil record means "skip".
type RecordFetcher interface {
	Fetch(ctx context.Context, snap *page.Snapshot, id models.Identifier) (*models.Record, error)
}

// AssetDownloader fetches a record's assets sequentially and paces requests.
type AssetDownloader interface {
	Pace(ctx context.Context) error
	Download(ctx context.Context, rec *models.Record, sink func(models.AssetBlob) error) (int, error)
}

// Confirmer gates the expensive phase on the discovered count. Returning
// false abandons the run without error.
type Confirmer interface {
	Confirm(ctx context.Context, found *models.DiscoveryResult) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, found *models.DiscoveryResult) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, found *models.DiscoveryResult) (bool, error) {
	return f(ctx, found)
}

// Observer is notified after every state change.
type Observer func(models.PipelineState)

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Source     page.Source
	Discoverer Discoverer
	Fetcher    RecordFetcher
	Downloader AssetDownloader
	Confirmer  Confirmer
	Sheets     SheetWriter
	Observer   Observer
	Clock      func() time.Time
}

// Pipeline runs discovery, confirmation, enrichment and archival for one page
// at a time. Records and assets are processed strictly one after another.
type Pipeline struct {
	cfg  *config.Config
	deps Deps

	mu      sync.Mutex
	state   models.PipelineState
	running bool
}

// New validates deps and returns an idle pipeline.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("pipeline: page source is required")
	case deps.Discoverer == nil:
		return nil, fmt.Errorf("pipeline: discoverer is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("pipeline: fetcher is required")
	case deps.Downloader == nil:
		return nil, fmt.Errorf("pipeline: downloader is required")
	case deps.Confirmer == nil:
		return nil, fmt.Errorf("pipeline: confirmer is required")
	}
	if deps.Sheets == nil {
		sheets, err := NewSheetWriter(cfg.Archive.SheetFormat)
		if err != nil {
			return nil, err
		}
		deps.Sheets = sheets
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Pipeline{
		cfg:   cfg,
		deps:  deps,
		state: models.PipelineState{Phase: models.PhaseIdle},
	}, nil
}

// State returns a snapshot of the current progress.
func (p *Pipeline) State() models.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Restart returns a finished or failed pipeline to idle.
func (p *Pipeline) Restart() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrBusy
	}
	p.state = models.PipelineState{Phase: models.PhaseIdle}
	st := p.state
	p.mu.Unlock()

	p.notify(st)
	return nil
}

// Run executes one full pass. A declined confirmation returns (nil, nil) and
// leaves the pipeline idle.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	p.mu.Lock()
	if p.running || p.state.Phase != models.PhaseIdle {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.update(func(s *models.PipelineState) {
		*s = models.PipelineState{Phase: models.PhaseDiscovering, StatusMessage: "Discovering models..."}
	})

	snap, err := p.deps.Source.Capture(ctx)
	if err != nil {
		return nil, p.fail(ctx, fmt.Errorf("capture page: %w", err))
	}

	found, err := p.deps.Discoverer.Discover(ctx, snap)
	if err != nil {
		return nil, p.fail(ctx, err)
	}
	total := len(found.IDs)

	p.update(func(s *models.PipelineState) {
		s.Phase = models.PhaseConfirming
		s.TotalCount = total
		s.StatusMessage = fmt.Sprintf("Found %d models, waiting for confirmation", total)
	})

	ok, err := p.deps.Confirmer.Confirm(ctx, found)
	if err != nil {
		return nil, p.fail(ctx, err)
	}
	if !ok {
		slog.Info("run declined", slog.Int("models", total))
		p.update(func(s *models.PipelineState) {
			*s = models.PipelineState{Phase: models.PhaseIdle}
		})
		return nil, nil
	}

	generatedAt := p.deps.Clock()
	asm := NewAssembler(p.deps.Sheets, generatedAt)
	result := &models.RunResult{Strategy: found.Strategy}

	for i, id := range found.IDs {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(ctx, err)
		}
		if err := p.deps.Downloader.Pace(ctx); err != nil {
			return nil, p.fail(ctx, err)
		}

		p.update(func(s *models.PipelineState) {
			s.Phase = models.PhaseFetching
			s.CurrentIndex = i + 1
			s.Progress = progress(i, total)
			s.StatusMessage = fmt.Sprintf("Fetching model %d/%d (%s)", i+1, total, id)
		})

		rec, err := p.deps.Fetcher.Fetch(ctx, snap, id)
		if err != nil {
			return nil, p.fail(ctx, err)
		}
		if rec == nil {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		folder, err := asm.AddRecord(rec)
		if err != nil {
			return nil, p.fail(ctx, err)
		}

		p.update(func(s *models.PipelineState) {
			s.Phase = models.PhaseDownloading
			s.StatusMessage = fmt.Sprintf("Downloading assets for %s", rec.Title)
		})

		failures, err := p.deps.Downloader.Download(ctx, rec, folder.AddAsset)
		if err != nil {
			return nil, p.fail(ctx, err)
		}
		result.AssetFailures += failures
		result.Records = append(result.Records, rec)

		slog.Info("model archived",
			slog.String("id", string(id)),
			slog.String("folder", folder.Name()),
			slog.Int("assets", folder.Stored),
			slog.Int("asset_failures", failures),
		)
	}

	if len(result.Records) == 0 {
		return nil, p.fail(ctx, ErrNoRecords)
	}

	p.update(func(s *models.PipelineState) {
		s.Phase = models.PhaseAssembling
		s.Progress = 100
		s.StatusMessage = "Building archive..."
	})

	archive, err := asm.Finalize()
	if err != nil {
		return nil, p.fail(ctx, fmt.Errorf("build archive: %w", err))
	}

	group, sub := snap.Labels(p.cfg.Page.GroupLabelKey, p.cfg.Page.SubGroupLabelKey,
		p.cfg.Archive.DefaultGroupLabel, p.cfg.Archive.DefaultSubGroupLabel)
	result.Filename = ArchiveFilename(group, sub, generatedAt)
	result.Archive = archive

	p.update(func(s *models.PipelineState) {
		s.Phase = models.PhaseDone
		s.StatusMessage = fmt.Sprintf("Done: %d models archived", len(result.Records))
	})
	slog.Info("archive built",
		slog.String("filename", result.Filename),
		slog.Int("models", len(result.Records)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("bytes", len(archive)),
	)
	return result, nil
}

// ArchiveFilename is {group}-{sub}-{YYYY-MM-DD HH-mm-ss}.zip.
func ArchiveFilename(group, sub string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s.zip",
		parser.SanitizeName(group),
		parser.SanitizeName(sub),
		at.Format("2006-01-02 15-04-05"),
	)
}

func progress(index, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(index) / float64(total) * 100))
}

// fail moves to the failed phase. Cancellation is reported as "cancelled".
func (p *Pipeline) fail(ctx context.Context, err error) error {
	msg := err.Error()
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		msg = "cancelled"
	}
	slog.Error("pipeline failed", slog.Any("error", err))
	p.update(func(s *models.PipelineState) {
		s.Phase = models.PhaseFailed
		s.StatusMessage = msg
	})
	return err
}

func (p *Pipeline) update(fn func(*models.PipelineState)) {
	p.mu.Lock()
	fn(&p.state)
	st := p.state
	p.mu.Unlock()
	p.notify(st)
}

func (p *Pipeline) notify(st models.PipelineState) {
	if p.deps.Observer != nil {
		p.deps.Observer(st)
	}
}
