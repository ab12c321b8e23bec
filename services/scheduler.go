package services

import (
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
)

type schedulerStore interface {
	BulkExpireTokens(now time.Time) (int64, error)
	GetTokensDueForRenewal(now time.Time, tiers []string) ([]model.AccessToken, error)
	RenewToken(id string, now, nextRenewal time.Time) (bool, error)
	CountPrunableTokens(cutoff time.Time) (int64, error)
	PruneTokens(cutoff time.Time) (int64, error)
}

type eventArchiver interface {
	ArchiveBatch(before time.Time) (int64, error)
}

// schedulerJob is one recurring maintenance task. The running flag keeps a
// slow run from overlapping its successor; lastRun and lastAffected feed
// the operator status endpoint.
type schedulerJob struct {
	id   string
	run  func(now time.Time) (int64, error)
	next func(after time.Time) time.Time

	mu           sync.Mutex
	running      bool
	lastRun      *time.Time
	lastAffected int64
	nextRun      time.Time
}

// SchedulerService owns the background maintenance jobs: hourly expiry,
// daily subscription renewal, weekly prune and daily audit archival.
type SchedulerService struct {
	context.DefaultService

	store    schedulerStore
	archiver eventArchiver
	monSvc   *MonitoringService

	jobs []*schedulerJob

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

const SCHEDULER_SVC = "scheduler_svc"

const pruneRetention = 90 * 24 * time.Hour

func (svc *SchedulerService) Id() string {
	return SCHEDULER_SVC
}

func (svc *SchedulerService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *SchedulerService) Start() error {
	svc.store = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.archiver = svc.Service(ARCHIVE_SVC).(*ArchiveService)
	svc.monSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	svc.initJobs()
	return svc.StartJobs()
}

func (svc *SchedulerService) Shutdown() {
	svc.StopJobs()
}

func (svc *SchedulerService) initJobs() {
	svc.jobs = []*schedulerJob{
		{
			id:   "expire_tokens",
			run:  svc.RunExpiry,
			next: func(after time.Time) time.Time { return after.Add(time.Hour) },
		},
		{
			id:   "renew_subscriptions",
			run:  svc.RunRenewals,
			next: nextDailyAt(0, 5),
		},
		{
			id:   "prune_tokens",
			run:  func(now time.Time) (int64, error) { return svc.RunPrune(now, false) },
			next: nextWeeklyAt(time.Sunday, 3, 0),
		},
		{
			id:   "archive_events",
			run:  svc.RunArchive,
			next: nextDailyAt(3, 30),
		},
	}
}

// StartJobs launches the job loops. Calling it twice is a no-op so a
// restart-happy caller cannot double the sweeps.
func (svc *SchedulerService) StartJobs() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.started {
		return nil
	}
	svc.started = true
	svc.stopCh = make(chan struct{})

	// Expiry runs once immediately so a restart never leaves stale tokens
	// valid for up to an hour.
	svc.executeJob(svc.jobs[0], time.Now())

	for _, job := range svc.jobs {
		job.nextRun = job.next(time.Now())
		svc.wg.Add(1)
		go svc.jobLoop(job)
	}

	log.Printf("Scheduler started with %d jobs", len(svc.jobs))
	return nil
}

func (svc *SchedulerService) StopJobs() {
	svc.mu.Lock()
	if !svc.started {
		svc.mu.Unlock()
		return
	}
	svc.started = false
	close(svc.stopCh)
	svc.mu.Unlock()

	svc.wg.Wait()
	log.Println("Scheduler stopped")
}

func (svc *SchedulerService) jobLoop(job *schedulerJob) {
	defer svc.wg.Done()

	for {
		job.mu.Lock()
		wait := time.Until(job.nextRun)
		job.mu.Unlock()
		if wait < time.Second {
			wait = time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-svc.stopCh:
			timer.Stop()
			return
		case now := <-timer.C:
			svc.executeJob(job, now)
			job.mu.Lock()
			job.nextRun = job.next(now)
			job.mu.Unlock()
		}
	}
}

func (svc *SchedulerService) executeJob(job *schedulerJob, now time.Time) {
	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		log.WithField("job", job.id).Warn("Previous run still in progress, skipping")
		return
	}
	job.running = true
	job.mu.Unlock()

	affected, err := job.run(now)
	svc.monSvc.ObserveSchedulerRun(job.id, affected, err)

	job.mu.Lock()
	job.running = false
	job.lastRun = &now
	job.lastAffected = affected
	job.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("job", job.id).Error("Scheduled job failed")
		return
	}

	log.WithFields(log.Fields{"job": job.id, "affected": affected}).
		Info("Scheduled job completed")
}

// ==================== JOB BODIES ====================

// RunExpiry deactivates every token past its expiry in one statement.
func (svc *SchedulerService) RunExpiry(now time.Time) (int64, error) {
	return svc.store.BulkExpireTokens(now)
}

// RunRenewals resets pool counters for subscription tokens whose renewal
// point has passed. Each token is renewed independently: one bad row must
// not starve the rest of the sweep.
func (svc *SchedulerService) RunRenewals(now time.Time) (int64, error) {
	tiers := make([]string, 0)
	for tier := range model.SubscriptionTariffs() {
		tiers = append(tiers, tier)
	}

	due, err := svc.store.GetTokensDueForRenewal(now, tiers)
	if err != nil {
		return 0, err
	}

	var renewed int64
	for i := range due {
		token := &due[i]

		tariff, ok := model.GetTariff(token.Tier)
		if !ok || tariff.DurationDays == nil {
			continue
		}

		nextRenewal := now.AddDate(0, 0, *tariff.DurationDays)
		done, err := svc.store.RenewToken(token.ID, now, nextRenewal)
		if err != nil {
			log.WithError(err).WithField("tier", token.Tier).
				Error("Failed to renew subscription token")
			continue
		}
		if done {
			renewed++
		}
	}

	return renewed, nil
}

// RunPrune deletes expired tokens dead for longer than the retention
// period. Perpetual tokens never qualify. Dry runs only count.
func (svc *SchedulerService) RunPrune(now time.Time, dryRun bool) (int64, error) {
	cutoff := now.Add(-pruneRetention)

	if dryRun {
		return svc.store.CountPrunableTokens(cutoff)
	}
	return svc.store.PruneTokens(cutoff)
}

// PruneReport backs the admin cleanup endpoint.
func (svc *SchedulerService) PruneReport(dryRun bool) (*dto.CleanupReport, error) {
	now := time.Now()
	cutoff := now.Add(-pruneRetention)

	matched, err := svc.store.CountPrunableTokens(cutoff)
	if err != nil {
		return nil, err
	}

	report := &dto.CleanupReport{DryRun: dryRun, Matched: matched}
	if dryRun {
		return report, nil
	}

	deleted, err := svc.store.PruneTokens(cutoff)
	if err != nil {
		return nil, err
	}
	report.Deleted = deleted

	return report, nil
}

// RunArchive drains settled audit rows to object storage.
func (svc *SchedulerService) RunArchive(now time.Time) (int64, error) {
	return svc.archiver.ArchiveBatch(now.Add(-24 * time.Hour))
}

// ==================== STATUS ====================

func (svc *SchedulerService) Status() *dto.SchedulerStatusResponse {
	svc.mu.Lock()
	running := svc.started
	svc.mu.Unlock()

	resp := &dto.SchedulerStatusResponse{Running: running}
	for _, job := range svc.jobs {
		job.mu.Lock()
		status := dto.SchedulerJobStatus{
			ID:           job.id,
			Running:      job.running,
			LastRun:      job.lastRun,
			LastAffected: job.lastAffected,
		}
		if running {
			next := job.nextRun
			status.NextRun = &next
		}
		job.mu.Unlock()

		resp.Jobs = append(resp.Jobs, status)
	}

	return resp
}

// ==================== SCHEDULE HELPERS ====================

func nextDailyAt(hour, minute int) func(time.Time) time.Time {
	return func(after time.Time) time.Time {
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, after.Location())
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

func nextWeeklyAt(weekday time.Weekday, hour, minute int) func(time.Time) time.Time {
	return func(after time.Time) time.Time {
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, after.Location())
		for next.Weekday() != weekday || !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}
