package di

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/crewsync/crewsync/internal/application/service"
	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/domain/repository"
	"github.com/crewsync/crewsync/internal/infrastructure/config"
	"github.com/crewsync/crewsync/internal/infrastructure/executor"
	infrafs "github.com/crewsync/crewsync/internal/infrastructure/fs"
	"github.com/crewsync/crewsync/internal/infrastructure/persistence/memory"
	"github.com/crewsync/crewsync/internal/infrastructure/persistence/sqlite"
)

// Container wires the engine's components together with manual
// dependency injection
type Container struct {
	settings *config.Settings

	db          *sql.DB
	journal     repository.JournalRepository
	taskRepo    repository.TaskRepository
	lockManager *service.LockManager
	changeSets  *service.ChangeSetService
	coordinator *service.Coordinator
	supervisor  *service.Supervisor
	pool        *service.WorkerPool
	runner      *service.Runner

	logOut io.Writer
}

// Config holds container-level options
type Config struct {
	BaseDir     string // directory holding settings.yaml and the database
	LogOut      io.Writer
	Executor    service.Executor // defaults to the shell executor
	Workers     int              // overrides the configured worker count when > 0
	DrainOnIdle bool
}

// NewContainer creates and initializes the container
func NewContainer(cfg Config) (*Container, error) {
	if cfg.LogOut == nil {
		cfg.LogOut = os.Stderr
	}

	settings, err := config.LoadSettings(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if cfg.Workers > 0 {
		settings.Workers = cfg.Workers
	}

	c := &Container{settings: settings, logOut: cfg.LogOut}
	infoLog := c.logf("INFO")
	warnLog := c.logf("WARN")

	db, err := sqlite.OpenDB(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	c.db = db
	c.journal = sqlite.NewJournalRepository(db)

	c.taskRepo = memory.NewTaskRepository()
	c.lockManager = service.NewLockManager(service.LockManagerConfig{
		DefaultTTL:    settings.LockTTL,
		SweepInterval: settings.SweepInterval,
	}, warnLog)
	c.changeSets = service.NewChangeSetService(nil)

	artifacts := infrafs.NewArtifactChecker()
	c.coordinator = service.NewCoordinator(c.taskRepo, c.lockManager, c.changeSets, artifacts, c.journal, infoLog, warnLog)
	c.changeSets.SetStatusOracle(c.coordinator.TaskStatus)

	rules := make([]service.StructuralRule, 0, len(settings.RequiredFiles))
	for _, rf := range settings.RequiredFiles {
		rules = append(rules, service.StructuralRule{
			Path:       rf.Path,
			Title:      rf.Title,
			Capability: rf.Capability,
		})
	}
	c.supervisor = service.NewSupervisor(c.coordinator, artifacts, c.journal, service.SupervisorConfig{
		Interval:       settings.AuditInterval,
		StuckThreshold: settings.StuckThreshold,
		ResetLimit:     settings.ResetLimit,
	}, rules, warnLog)

	c.pool = service.NewWorkerPool()
	for capability, limit := range settings.CapabilityLimits {
		if err := c.pool.SetLimit(model.Capability(capability), limit); err != nil {
			return nil, fmt.Errorf("capability limit for %s: %w", capability, err)
		}
	}

	exec := cfg.Executor
	if exec == nil {
		exec = executor.NewShellExecutor(settings.RetryBudget)
	}

	capabilities := make([]model.Capability, 0, len(settings.Capabilities))
	for _, capability := range settings.Capabilities {
		capabilities = append(capabilities, model.Capability(capability))
	}
	c.runner = service.NewRunner(c.coordinator, exec, c.pool, service.RunnerConfig{
		Workers:      settings.Workers,
		Capabilities: capabilities,
		IdleInterval: settings.IdleInterval,
		RetryBudget:  settings.RetryBudget,
		DrainOnIdle:  cfg.DrainOnIdle,
	}, infoLog, warnLog)

	return c, nil
}

// Start launches the background services (lock sweep, audit loop)
func (c *Container) Start(ctx context.Context) error {
	if err := c.lockManager.Start(ctx); err != nil {
		return err
	}
	return c.supervisor.Start(ctx)
}

// Close stops background services and releases resources
func (c *Container) Close() error {
	if err := c.supervisor.Stop(); err != nil {
		return err
	}
	if err := c.lockManager.Stop(); err != nil {
		return err
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Accessors
func (c *Container) Settings() *config.Settings            { return c.settings }
func (c *Container) Coordinator() *service.Coordinator     { return c.coordinator }
func (c *Container) Supervisor() *service.Supervisor       { return c.supervisor }
func (c *Container) LockManager() *service.LockManager     { return c.lockManager }
func (c *Container) ChangeSets() *service.ChangeSetService { return c.changeSets }
func (c *Container) Runner() *service.Runner               { return c.runner }
func (c *Container) Journal() repository.JournalRepository { return c.journal }

func (c *Container) logf(level string) func(format string, args ...interface{}) {
	logger := log.New(c.logOut, level+" ", log.LstdFlags)
	return func(format string, args ...interface{}) {
		logger.Printf(format, args...)
	}
}
