package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/ruteri/storage-control-plane/policy"
)

// PhaseStatus is the result of one drill phase.
type PhaseStatus string

// Phase statuses, ordered from best to worst.
const (
	PhasePassed  PhaseStatus = "passed"
	PhaseSkipped PhaseStatus = "skipped"
	PhaseFailed  PhaseStatus = "failed"
)

// drillPerformanceBudget bounds the wall-clock time of a passing drill.
const drillPerformanceBudget = 30 * time.Second

// DrillReport is the phase-by-phase result of one disaster recovery drill.
// Overall is the worst phase status.
type DrillReport struct {
	BackupRestoreTest PhaseStatus
	ReplicationTest   PhaseStatus
	IntegrityTest     PhaseStatus
	PerformanceTest   PhaseStatus
	Overall           PhaseStatus
	Duration          time.Duration
}

// DrillController is the subset of the replication controller the drill
// exercises.
type DrillController interface {
	ApplyPolicy(ctx context.Context, address interfaces.ContentAddress, in policy.SelectionInput) interfaces.ReplicationStatus
	Repin(ctx context.Context, address interfaces.ContentAddress) (interfaces.ReplicationStatus, bool)
	Remove(address interfaces.ContentAddress)
}

// Drill runs a synthetic, self-contained recovery test: write a throwaway
// object, verify it replicates, simulate loss and recover, verify integrity
// on read-back. The drill unconditionally cleans up its test object; pass or
// fail, it must never leave residual state.
type Drill struct {
	store      interfaces.ContentStore
	controller DrillController
	log        *slog.Logger
}

// NewDrill creates a drill runner.
func NewDrill(store interfaces.ContentStore, controller DrillController, log *slog.Logger) *Drill {
	return &Drill{
		store:      store,
		controller: controller,
		log:        log,
	}
}

// Run executes all drill phases and returns the report.
func (d *Drill) Run(ctx context.Context) DrillReport {
	start := time.Now()
	report := DrillReport{
		BackupRestoreTest: PhaseSkipped,
		ReplicationTest:   PhaseSkipped,
		IntegrityTest:     PhaseSkipped,
		PerformanceTest:   PhaseSkipped,
	}

	payload := []byte(fmt.Sprintf("dr-drill-%s-%d", uuid.NewString(), time.Now().UnixNano()))

	// Phase 1: write the test object and confirm the store can see it.
	address, err := d.store.Add(ctx, payload)
	if err != nil {
		d.log.Error("DR drill failed to write test object", "err", err)
		report.BackupRestoreTest = PhaseFailed
		report.Overall = PhaseFailed
		report.Duration = time.Since(start)
		return report
	}
	defer d.cleanup(address)

	if _, err := d.store.Stat(ctx, address); err != nil {
		report.BackupRestoreTest = PhaseFailed
	} else {
		report.BackupRestoreTest = PhasePassed
	}

	// Phase 2: pin to policy target, then simulate loss and recover.
	report.ReplicationTest = d.runReplicationPhase(ctx, address, int64(len(payload)))

	// Phase 3: byte-for-byte integrity on read-back.
	restored, err := d.store.Cat(ctx, address)
	if err != nil || !bytes.Equal(restored, payload) {
		report.IntegrityTest = PhaseFailed
	} else {
		report.IntegrityTest = PhasePassed
	}

	// Phase 4: the whole cycle must fit the performance budget.
	report.Duration = time.Since(start)
	if report.Duration <= drillPerformanceBudget {
		report.PerformanceTest = PhasePassed
	} else {
		report.PerformanceTest = PhaseFailed
	}

	report.Overall = worst(report.BackupRestoreTest, report.ReplicationTest,
		report.IntegrityTest, report.PerformanceTest)

	d.log.Info("DR drill complete",
		slog.String("overall", string(report.Overall)),
		slog.String("backup_restore", string(report.BackupRestoreTest)),
		slog.String("replication", string(report.ReplicationTest)),
		slog.String("integrity", string(report.IntegrityTest)),
		slog.String("performance", string(report.PerformanceTest)),
		slog.Duration("duration", report.Duration))

	return report
}

func (d *Drill) runReplicationPhase(ctx context.Context, address interfaces.ContentAddress, size int64) PhaseStatus {
	status := d.controller.ApplyPolicy(ctx, address, policy.SelectionInput{
		Size:    size,
		Privacy: interfaces.PrivacyPrivate,
	})
	if status.Replicas < status.TargetReplicas {
		return PhaseFailed
	}

	// Simulated loss: drop the store's pins, then ask the controller to
	// recover the target replica count.
	if err := d.store.Unpin(ctx, address); err != nil {
		d.log.Warn("DR drill failed to simulate replica loss", "err", err)
		return PhaseFailed
	}

	recovered, ok := d.controller.Repin(ctx, address)
	if !ok || recovered.Replicas < recovered.TargetReplicas {
		return PhaseFailed
	}
	return PhasePassed
}

// cleanup removes the drill's test object regardless of phase outcomes.
func (d *Drill) cleanup(address interfaces.ContentAddress) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.store.Unpin(ctx, address); err != nil {
		d.log.Warn("DR drill cleanup unpin failed",
			slog.String("address", address.Short()),
			"err", err)
	}
	d.controller.Remove(address)
}

// worst returns the worst of the given phase statuses.
func worst(statuses ...PhaseStatus) PhaseStatus {
	result := PhasePassed
	for _, s := range statuses {
		if s == PhaseFailed {
			return PhaseFailed
		}
		if s == PhaseSkipped {
			result = PhaseSkipped
		}
	}
	return result
}
