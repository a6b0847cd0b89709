package batch

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
	"golang.org/x/sync/errgroup"
)

// LineConverter runs one line to a terminal state.
type LineConverter interface {
	Convert(ctx context.Context, line ttypes.Line, req tts.Request) ttypes.Line
}

// Scheduler fans the lines of a batch out to concurrent converter runs and
// marks the batch Done once every run has settled.
type Scheduler struct {
	repo        *Repository
	conv        LineConverter
	maxInFlight int
	logger      *log.Logger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithMaxInFlight bounds concurrent line runs per batch; 0 means unbounded.
func WithMaxInFlight(n int) Option {
	return func(s *Scheduler) {
		s.maxInFlight = n
	}
}

// WithLogger sets the scheduler logger
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a scheduler over repo.
func NewScheduler(repo *Repository, conv LineConverter, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:   repo,
		conv:   conv,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConvertBatch converts every line of a batch concurrently and waits for all
// of them. Line failures never short-circuit their siblings and never make
// the batch fail: it ends Done regardless of how many lines errored.
func (s *Scheduler) ConvertBatch(ctx context.Context, batchID string, req tts.Request) error {
	b, err := s.repo.begin(batchID)
	if err != nil {
		return err
	}

	started := time.Now()
	s.logger.Info("converting batch", "batch", b.Name, "lines", len(b.Lines), "max_inflight", s.maxInFlight)

	results := make([]ttypes.Line, len(b.Lines))

	var g errgroup.Group
	if s.maxInFlight > 0 {
		g.SetLimit(s.maxInFlight)
	}

	for i, line := range b.Lines {
		lineReq := req
		lineReq.OnUpdate = func(l ttypes.Line) {
			if err := s.repo.UpdateLine(batchID, l); err != nil {
				s.logger.Warn("dropped line update", "batch", batchID, "line", l.ID, "err", err)
			}
			if req.OnUpdate != nil {
				req.OnUpdate(l)
			}
		}

		g.Go(func() error {
			results[i] = s.conv.Convert(ctx, line, lineReq)
			return nil
		})
	}

	// runs never return errors
	_ = g.Wait()

	for _, l := range results {
		if err := s.repo.UpdateLine(batchID, l); err != nil {
			s.logger.Warn("failed to merge line result", "batch", batchID, "line", l.ID, "err", err)
		}
	}

	if err := s.repo.SetStatus(batchID, ttypes.StatusDone); err != nil {
		return err
	}

	final, _ := s.repo.Get(batchID)
	done, failed := final.Counts()
	s.logger.Info("batch converted", "batch", b.Name, "done", done, "failed", failed, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// ConvertAll converts every Pending batch strictly one after another.
// It stops dispatching new batches once ctx is done and returns ctx.Err()
// in that case; batches not yet started stay Pending.
func (s *Scheduler) ConvertAll(ctx context.Context, req tts.Request) error {
	for _, id := range s.repo.IDs(ttypes.StatusPending) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ConvertBatch(ctx, id, req); err != nil {
			return err
		}
	}
	return nil
}
