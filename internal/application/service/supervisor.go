package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crewsync/crewsync/internal/application/dto"
	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/repository"
)

// SupervisorConfig holds tunables for the audit loop
type SupervisorConfig struct {
	Interval       time.Duration // cycle period
	StuckThreshold time.Duration // max checkpoint age before a task counts as stuck
	ResetLimit     int           // resets of one task before escalation
}

// DefaultSupervisorConfig returns default configuration
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Interval:       30 * time.Second,
		StuckThreshold: 30 * time.Minute,
		ResetLimit:     3,
	}
}

// StructuralRule declares a project-level file the supervisor expects
// to exist. A missing path produces a remediation task rather than a
// mutation of existing work.
type StructuralRule struct {
	Path       string
	Title      string
	Capability string
}

// Supervisor periodically audits task and artifact state and repairs
// inconsistencies through the coordinator's public API. It never
// touches locks or change sets directly, preserving the coordinator's
// single-writer invariant.
type Supervisor struct {
	coordinator *Coordinator
	artifacts   ArtifactChecker
	journal     repository.JournalRepository
	config      SupervisorConfig
	rules       []StructuralRule

	mu           sync.Mutex
	findings     []dto.AuditFinding
	cycles       int
	lastProgress map[string]int  // task ID -> progress seen in the prior cycle
	remediated   map[string]bool // structural rule path -> remediation submitted

	loopCancel context.CancelFunc
	stopOnce   sync.Once
	warnLog    func(format string, args ...interface{})
}

// NewSupervisor creates a supervisor over the coordinator
func NewSupervisor(
	coordinator *Coordinator,
	artifacts ArtifactChecker,
	journal repository.JournalRepository,
	config SupervisorConfig,
	rules []StructuralRule,
	warnLog func(format string, args ...interface{}),
) *Supervisor {
	if config.Interval <= 0 {
		config.Interval = DefaultSupervisorConfig().Interval
	}
	if config.StuckThreshold <= 0 {
		config.StuckThreshold = DefaultSupervisorConfig().StuckThreshold
	}
	if config.ResetLimit <= 0 {
		config.ResetLimit = DefaultSupervisorConfig().ResetLimit
	}
	if warnLog == nil {
		warnLog = func(format string, args ...interface{}) {}
	}
	return &Supervisor{
		coordinator:  coordinator,
		artifacts:    artifacts,
		journal:      journal,
		config:       config,
		rules:        rules,
		lastProgress: make(map[string]int),
		remediated:   make(map[string]bool),
		warnLog:      warnLog,
	}
}

// Start launches the periodic audit loop
func (s *Supervisor) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	s.loopCancel = cancel

	go s.auditScheduler(loopCtx)
	return nil
}

// Stop halts the audit loop
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		if s.loopCancel != nil {
			s.loopCancel()
		}
	})
	return nil
}

// RunCycle performs one full audit pass. Exposed so callers and tests
// can audit on demand without waiting for the ticker.
func (s *Supervisor) RunCycle(ctx context.Context) {
	s.auditCompleted(ctx)
	s.auditStuck(ctx)
	s.auditStructure(ctx)

	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()
}

// GetReport returns a copy of the audit trail accumulated so far
func (s *Supervisor) GetReport() dto.SupervisorReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return dto.SupervisorReport{
		GeneratedAt: time.Now().UTC(),
		Cycles:      s.cycles,
		Findings:    append([]dto.AuditFinding(nil), s.findings...),
	}
}

// auditCompleted re-validates the artifacts of every COMPLETED task.
// A completed task with a missing or empty artifact is a defect that
// slipped past (or bypassed) the coordinator's completion check; the
// repair is a reset back to READY.
func (s *Supervisor) auditCompleted(ctx context.Context) {
	completed, err := s.coordinator.ListByStatus(model.StatusCompleted)
	if err != nil {
		s.warnLog("supervisor: list completed tasks: %v", err)
		return
	}

	for _, t := range completed {
		defect := ""
		for _, path := range t.Artifacts {
			if !s.artifacts.Exists(path) {
				defect = fmt.Sprintf("artifact %s missing", path)
				break
			}
			size, err := s.artifacts.Size(path)
			if err != nil || size == 0 {
				defect = fmt.Sprintf("artifact %s empty", path)
				break
			}
		}
		if defect == "" {
			continue
		}
		s.repair(ctx, t, dto.FindingMissingArtifact, defect)
	}
}

// auditStuck resets IN_PROGRESS tasks whose most recent checkpoint is
// older than the stuck threshold and whose progress has not advanced
// since the prior cycle
func (s *Supervisor) auditStuck(ctx context.Context) {
	inProgress, err := s.coordinator.ListByStatus(model.StatusInProgress)
	if err != nil {
		s.warnLog("supervisor: list in-progress tasks: %v", err)
		return
	}

	now := time.Now().UTC()
	seen := make(map[string]int, len(inProgress))

	for _, t := range inProgress {
		seen[t.ID] = t.Progress

		lastActivity := t.CreatedAt
		if t.StartedAt != nil {
			lastActivity = *t.StartedAt
		}
		if len(t.Checkpoints) > 0 {
			lastActivity = t.Checkpoints[len(t.Checkpoints)-1].RecordedAt
		}
		if now.Sub(lastActivity) < s.config.StuckThreshold {
			continue
		}

		s.mu.Lock()
		prior, observed := s.lastProgress[t.ID]
		s.mu.Unlock()
		if !observed || prior != t.Progress {
			// First sighting past the threshold, or progress moved
			// between cycles; give it one more cycle.
			continue
		}

		detail := fmt.Sprintf("no progress past %d%% for over %s", t.Progress, s.config.StuckThreshold)
		s.repair(ctx, t, dto.FindingStuckTask, detail)
	}

	s.mu.Lock()
	s.lastProgress = seen
	s.mu.Unlock()
}

// auditStructure submits remediation tasks for missing project-level
// files. Existing tasks are never mutated for structural defects.
func (s *Supervisor) auditStructure(ctx context.Context) {
	for _, rule := range s.rules {
		if s.artifacts.Exists(rule.Path) {
			continue
		}

		s.mu.Lock()
		already := s.remediated[rule.Path]
		s.mu.Unlock()
		if already {
			continue
		}

		snapshot, err := s.coordinator.Submit(dto.SubmitInput{
			Title:       rule.Title,
			Description: fmt.Sprintf("Required file %s is missing; create it.", rule.Path),
			Capability:  rule.Capability,
			Artifacts:   []string{rule.Path},
		})
		if err != nil {
			s.warnLog("supervisor: submit remediation for %s: %v", rule.Path, err)
			continue
		}

		s.mu.Lock()
		s.remediated[rule.Path] = true
		s.mu.Unlock()

		s.record(ctx, dto.AuditFinding{
			DetectedAt: time.Now().UTC(),
			Kind:       dto.FindingStructural,
			TaskID:     snapshot.ID,
			Detail:     fmt.Sprintf("required file %s missing", rule.Path),
			Action:     "submitted " + snapshot.ID,
		})
	}
}

// repair resets a defective task, or escalates once the reset cap is
// reached so auto-repair cannot loop forever
func (s *Supervisor) repair(ctx context.Context, t dto.TaskSnapshot, kind dto.FindingKind, detail string) {
	if t.ResetCount >= s.config.ResetLimit {
		reason := fmt.Sprintf("%s after %d resets", detail, t.ResetCount)
		if err := s.coordinator.FlagForOperator(t.ID, reason); err != nil {
			s.warnLog("supervisor: flag %s: %v", t.ID, err)
			return
		}
		s.record(ctx, dto.AuditFinding{
			DetectedAt: time.Now().UTC(),
			Kind:       dto.FindingEscalation,
			TaskID:     t.ID,
			Detail:     reason,
			Action:     "flagged",
		})
		return
	}

	if err := s.coordinator.Reset(t.ID); err != nil {
		s.warnLog("supervisor: reset %s: %v", t.ID, err)
		return
	}
	s.record(ctx, dto.AuditFinding{
		DetectedAt: time.Now().UTC(),
		Kind:       kind,
		TaskID:     t.ID,
		Detail:     detail,
		Action:     "reset",
	})
}

func (s *Supervisor) record(ctx context.Context, finding dto.AuditFinding) {
	s.mu.Lock()
	s.findings = append(s.findings, finding)
	s.mu.Unlock()

	if s.journal == nil {
		return
	}
	entry := repository.JournalEntry{
		RecordedAt: finding.DetectedAt,
		Kind:       repository.JournalKindAuditIssue,
		TaskID:     finding.TaskID,
		Detail:     fmt.Sprintf("%s: %s (%s)", finding.Kind, finding.Detail, finding.Action),
	}
	if err := s.journal.Append(ctx, entry); err != nil {
		s.warnLog("supervisor: journal append: %v", err)
	}
}

// auditScheduler drives RunCycle on the configured interval
func (s *Supervisor) auditScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}
