package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"kontor/internal/amqp"
	"kontor/internal/mirror"
	"kontor/internal/services"
)

// OwnerLister enumerates owners with ledger data, used by the scheduled
// backup pass.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// GenerationWorker consumes generation triggers and mirror messages from
// AMQP. A periodic pass re-runs the generators for every owner with
// automation enabled, as a backup in case trigger messages are lost.
type GenerationWorker struct {
	ledger    *services.LedgerService
	generator *services.TaxGenerator
	owners    OwnerLister
	mirror    mirror.EntryWriter
}

func NewGenerationWorker(ledger *services.LedgerService, generator *services.TaxGenerator, owners OwnerLister, entryMirror mirror.EntryWriter) *GenerationWorker {
	return &GenerationWorker{
		ledger:    ledger,
		generator: generator,
		owners:    owners,
		mirror:    entryMirror,
	}
}

// Run consumes both queues and runs the scheduled pass until the context is
// cancelled. The first failing goroutine takes the others down.
func (w *GenerationWorker) Run(ctx context.Context, client *amqp.Client, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.ConsumeGenerationTriggers(ctx, func(msg *amqp.GenerationTriggerMessage) error {
			return w.HandleGenerationTrigger(ctx, msg)
		})
	})

	g.Go(func() error {
		return client.ConsumeEntryMirrors(ctx, func(msg *amqp.EntryMirrorMessage) error {
			return w.HandleMirrorMessage(ctx, msg)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.RunScheduledGeneration(ctx); err != nil {
					slog.ErrorContext(ctx, "Scheduled generation pass failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleGenerationTrigger processes a single generation trigger message.
func (w *GenerationWorker) HandleGenerationTrigger(ctx context.Context, msg *amqp.GenerationTriggerMessage) error {
	slog.InfoContext(ctx, "Processing generation trigger",
		"owner", msg.Owner,
		"trigger", msg.Trigger,
		"years", msg.Years)

	var (
		report services.GenerationReport
		err    error
	)

	switch msg.Trigger {
	case amqp.TriggerEmployerTax:
		report, err = w.generator.RunEmployerTaxGeneration(ctx, msg.Owner)
	case amqp.TriggerEmployerTaxCleanup:
		report, err = w.generator.CleanupEmployerTax(ctx, msg.Owner)
	case amqp.TriggerYearlyVat:
		years := msg.Years
		if len(years) == 0 {
			years, err = w.ledgerYears(ctx, msg.Owner)
			if err != nil {
				return fmt.Errorf("resolve ledger years: %w", err)
			}
		}
		report, err = w.generator.RunYearlyVatGeneration(ctx, msg.Owner, years)
	case amqp.TriggerYearlyVatCleanup:
		report, err = w.generator.CleanupYearlyVat(ctx, msg.Owner)
	default:
		return fmt.Errorf("unknown generation trigger %q", msg.Trigger)
	}

	if err != nil {
		return fmt.Errorf("run %s for %s: %w", msg.Trigger, msg.Owner, err)
	}

	slog.InfoContext(ctx, "Generation trigger processed",
		"owner", msg.Owner,
		"trigger", msg.Trigger,
		"run_id", report.RunID,
		"created", report.Created,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"failed", report.Failed)

	return nil
}

// HandleMirrorMessage appends one ledger entry to the configured mirror.
func (w *GenerationWorker) HandleMirrorMessage(ctx context.Context, msg *amqp.EntryMirrorMessage) error {
	if w.mirror == nil {
		slog.WarnContext(ctx, "No ledger mirror configured, skipping",
			"owner", msg.Owner,
			"entry_id", msg.EntryID)
		return nil
	}

	entry, err := w.ledger.GetEntry(ctx, msg.Owner, msg.EntryID)
	if err != nil {
		return fmt.Errorf("get entry %d: %w", msg.EntryID, err)
	}
	if entry == nil {
		// Deleted before the mirror caught up. Nothing to do.
		slog.WarnContext(ctx, "Entry vanished before mirroring",
			"owner", msg.Owner,
			"entry_id", msg.EntryID)
		return nil
	}

	ref, err := w.mirror.Append(ctx, *entry)
	if err != nil {
		return fmt.Errorf("append entry %d to mirror: %w", msg.EntryID, err)
	}

	slog.InfoContext(ctx, "Entry mirrored",
		"owner", msg.Owner,
		"entry_id", msg.EntryID,
		"mirror_ref", ref)

	return nil
}

// RunScheduledGeneration re-runs the enabled generators for every owner.
// Failures for one owner never stop the pass.
func (w *GenerationWorker) RunScheduledGeneration(ctx context.Context) error {
	owners, err := w.owners.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}

	if len(owners) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Running scheduled generation pass", "owners", len(owners))

	successCount := 0
	errorCount := 0

	for _, owner := range owners {
		if err := w.generateForOwner(ctx, owner); err != nil {
			slog.ErrorContext(ctx, "Scheduled generation failed for owner",
				"owner", owner, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Scheduled generation pass completed",
		"total", len(owners),
		"succeeded", successCount,
		"errors", errorCount)

	return nil
}

func (w *GenerationWorker) generateForOwner(ctx context.Context, owner string) error {
	settings, err := w.ledger.GetSettings(ctx, owner)
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}

	if settings.AutoGenerateEmployerTax {
		if _, err := w.generator.RunEmployerTaxGeneration(ctx, owner); err != nil {
			return fmt.Errorf("employer tax generation: %w", err)
		}
	}

	if settings.AutoGenerateYearlyVat {
		years, err := w.ledgerYears(ctx, owner)
		if err != nil {
			return fmt.Errorf("resolve ledger years: %w", err)
		}
		if _, err := w.generator.RunYearlyVatGeneration(ctx, owner, years); err != nil {
			return fmt.Errorf("yearly VAT generation: %w", err)
		}
	}

	return nil
}

func (w *GenerationWorker) ledgerYears(ctx context.Context, owner string) ([]int, error) {
	entries, err := w.ledger.ListEntries(ctx, owner)
	if err != nil {
		return nil, err
	}
	return services.LedgerYears(entries), nil
}
