package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sports-harvester/internal/ledger"
	"github.com/JakeFAU/sports-harvester/internal/progress"
)

// LedgerSink persists run, unit, and target outcomes through a
// ledger.Repository. Target events in a batch are written together.
type LedgerSink struct {
	repo   ledger.Repository
	logger *zap.Logger
}

// NewLedgerSink constructs a LedgerSink for the provided repository.
func NewLedgerSink(repo ledger.Repository, logger *zap.Logger) *LedgerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerSink{repo: repo, logger: logger}
}

// Consume forwards the batch to the repository in event order, flushing
// pending targets before any run or unit write. Repository errors are
// returned verbatim.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var targets []ledger.TargetRecord
	flush := func() error {
		if len(targets) == 0 {
			return nil
		}
		err := s.repo.RecordTargets(ctx, targets)
		targets = nil
		if err != nil {
			return fmt.Errorf("record targets: %w", err)
		}
		return nil
	}

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageTargetDone, progress.StageTargetError:
			targets = append(targets, ledger.TargetRecord{
				RunID:    evt.RunID,
				Key:      evt.Key,
				URL:      evt.URL,
				Path:     evt.Path,
				Category: evt.Category,
				OK:       evt.Stage == progress.StageTargetDone,
				Bytes:    evt.Bytes,
				Note:     evt.Note,
				At:       evt.TS,
			})
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := s.handle(ctx, evt); err != nil {
			return err
		}
	}
	return flush()
}

func (s *LedgerSink) handle(ctx context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.StartRun(ctx, evt.RunID, evt.Harvester, evt.TS); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	case progress.StageRunDone:
		status := ledger.RunStatus(evt.Result)
		if status == "" {
			status = ledger.RunSucceeded
		}
		if err := s.repo.FinishRun(ctx, evt.RunID, evt.TS, status, evt.Note); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
	case progress.StageUnitDone, progress.StageUnitError:
		if err := s.repo.RecordUnit(ctx, ledger.UnitRecord{
			RunID:      evt.RunID,
			Key:        evt.Key,
			URL:        evt.URL,
			Result:     evt.Result,
			Bytes:      evt.Bytes,
			HTTPStatus: evt.HTTPStatus,
			Duration:   evt.Dur,
			Note:       evt.Note,
			At:         evt.TS,
		}); err != nil {
			return fmt.Errorf("record unit: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
