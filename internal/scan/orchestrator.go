package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"secretsift/internal/aws"
	"secretsift/internal/logging"
	"secretsift/internal/report"
	"secretsift/internal/secrets"
	"secretsift/internal/worker"
)

// State is a step of a region pipeline
type State string

const (
	StateFetching    State = "fetching"
	StateScanning    State = "scanning"
	StateAggregating State = "aggregating"
	StateMerging     State = "merging"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// InventoryFactory opens a private inventory bound to region
type InventoryFactory func(region string) (aws.Inventory, error)

// Merger persists entries for a region. report.Writer implements it.
type Merger interface {
	Merge(ctx context.Context, region string, entries []report.Entry) (int, error)
}

// Options tunes a scan run
type Options struct {
	// RunID identifies the run in logs
	RunID string
	// Output is the report path, used for logging only
	Output string
	// MaxWorkers caps concurrent regions; zero means one worker per region
	MaxWorkers int
	// RegionTimeout bounds each region pipeline; zero means no limit
	RegionTimeout time.Duration
	// Progress shows a bar counting finished regions
	Progress bool
	// ProgressWriter receives the bar, os.Stderr when nil
	ProgressWriter io.Writer
}

// RegionResult is the outcome of one region pipeline
type RegionResult struct {
	Region    string
	State     State
	Instances int
	Templates int
	Matched   int
	Err       error
}

// Summary is the outcome of a run
type Summary struct {
	RunID   string
	Regions []RegionResult
	Elapsed time.Duration
	// Pool is the worker pool's view of the region tasks
	Pool worker.PoolMetrics
}

// Failed returns the regions whose pipeline failed
func (s Summary) Failed() []string {
	var failed []string
	for _, r := range s.Regions {
		if r.State == StateFailed {
			failed = append(failed, r.Region)
		}
	}
	return failed
}

// Matched returns the number of matched resources across regions
func (s Summary) Matched() int {
	total := 0
	for _, r := range s.Regions {
		total += r.Matched
	}
	return total
}

// Orchestrator runs one isolated pipeline per region on a worker pool
type Orchestrator struct {
	regions   []string
	inventory InventoryFactory
	detectors *secrets.DetectorSet
	merger    Merger
	opts      Options
}

// NewOrchestrator creates an orchestrator over regions
func NewOrchestrator(regions []string, inventory InventoryFactory, detectors *secrets.DetectorSet, merger Merger, opts Options) *Orchestrator {
	if opts.ProgressWriter == nil {
		opts.ProgressWriter = os.Stderr
	}
	return &Orchestrator{
		regions:   regions,
		inventory: inventory,
		detectors: detectors,
		merger:    merger,
		opts:      opts,
	}
}

// Run scans every region and waits for all of them. The returned error joins the
// failures of individual regions; every other region has been merged by then.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: o.opts.RunID}

	logging.ScanStart(o.opts.RunID, o.regions, o.opts.Output)
	if len(o.regions) == 0 {
		logging.Warn("No regions to scan")
		return summary, nil
	}

	workers := o.opts.MaxWorkers
	if workers <= 0 || workers > len(o.regions) {
		workers = len(o.regions)
	}

	pool, err := worker.NewPool(ctx, worker.Options{MaxWorkers: workers, TaskTimeout: o.opts.RegionTimeout})
	if err != nil {
		return summary, fmt.Errorf("failed to create worker pool: %w", err)
	}
	pool.Start()
	defer pool.Stop()

	progress := newRegionProgress(len(o.regions), o.opts.Progress, o.opts.ProgressWriter)
	results := make([]RegionResult, len(o.regions))
	tasks := make([]worker.Task, len(o.regions))
	for i, region := range o.regions {
		tasks[i] = func(ctx context.Context) error {
			results[i] = o.scanRegion(ctx, region)
			progress.Done()
			return results[i].Err
		}
	}

	errs := pool.ExecuteTasks(tasks)
	progress.Finish()

	var failures []error
	for i, err := range errs {
		// A task that panicked or never ran left no result behind
		if err != nil && results[i].Err == nil {
			results[i] = RegionResult{Region: o.regions[i], State: StateFailed, Err: err}
			logging.RegionError(o.regions[i], err)
		}
		if results[i].Err != nil {
			failures = append(failures, fmt.Errorf("region %s: %w", results[i].Region, results[i].Err))
		}
	}

	summary.Regions = results
	summary.Elapsed = time.Since(start)
	summary.Pool = pool.GetMetrics()
	logging.ScanComplete(o.opts.RunID, len(results)-len(failures), len(failures), summary.Matched(), summary.Elapsed)
	logging.PoolStats(o.opts.RunID, summary.Pool.PeakWorkers, summary.Pool.FailedTasks, summary.Pool.AverageExecutionMs)

	return summary, errors.Join(failures...)
}

// regionRun carries the state of one region pipeline
type regionRun struct {
	region     string
	inv        aws.Inventory
	aggregator *secrets.Aggregator
	merger     Merger
	result     RegionResult
}

func (r *regionRun) transition(state State, resource string) {
	r.result.State = state
	logging.Debug("Region state changed", map[string]interface{}{
		"region":   r.region,
		"state":    string(state),
		"resource": resource,
	})
}

func (r *regionRun) fail(err error) RegionResult {
	r.transition(StateFailed, "")
	r.result.Err = err
	logging.RegionError(r.region, err)
	return r.result
}

// scanRegion runs the instance and template pipelines of one region
func (o *Orchestrator) scanRegion(ctx context.Context, region string) RegionResult {
	run := &regionRun{
		region:     region,
		aggregator: secrets.NewAggregator(secrets.NewScanner(o.detectors), region),
		merger:     o.merger,
		result:     RegionResult{Region: region},
	}

	logging.RegionStart(region)
	run.transition(StateFetching, "inventory")

	inv, err := o.inventory(region)
	if err != nil {
		return run.fail(fmt.Errorf("failed to open inventory: %w", err))
	}
	run.inv = inv

	if err := run.instances(ctx); err != nil {
		return run.fail(err)
	}
	if err := run.templates(ctx); err != nil {
		return run.fail(err)
	}

	run.transition(StateDone, "")
	logging.RegionComplete(region, run.result.Instances, run.result.Templates, run.result.Matched)
	return run.result
}

// instances fetches, scans and merges the region's instance user-data
func (r *regionRun) instances(ctx context.Context) error {
	r.transition(StateFetching, "instances")

	instances, err := r.inv.ListInstances(ctx)
	if err != nil {
		return err
	}
	r.result.Instances = len(instances)
	logging.Info("Instances fetched", map[string]interface{}{
		"region": r.region,
		"count":  len(instances),
	})

	fields := make([][]aws.UserDataField, len(instances))
	for i, instance := range instances {
		res, err := r.inv.GetUserData(ctx, instance.ID)
		if err != nil {
			return err
		}
		if res.Status == aws.NotFound {
			logging.Debug("Instance disappeared before its user data was read", map[string]interface{}{
				"region":   r.region,
				"instance": instance.ID,
			})
			continue
		}
		fields[i] = res.Fields
	}

	names, err := r.inv.ListNameTags(ctx)
	if err != nil {
		return err
	}
	for i := range instances {
		instances[i].Name = names[instances[i].ID]
	}

	r.transition(StateScanning, "instances")
	var records []*secrets.InstanceRecord
	for i, instance := range instances {
		if record := r.aggregator.AggregateInstance(instance, fields[i]); record != nil {
			records = append(records, record)
		}
	}

	r.transition(StateAggregating, "instances")
	entries := make([]report.Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, report.NewInstanceEntry(record))
	}

	return r.merge(ctx, "instances", entries)
}

// templates fetches, scans and merges the region's launch-template versions
func (r *regionRun) templates(ctx context.Context) error {
	r.transition(StateFetching, "templates")

	templates, err := r.inv.ListLaunchTemplates(ctx)
	if err != nil {
		return err
	}
	r.result.Templates = len(templates)
	logging.Info("Launch templates fetched", map[string]interface{}{
		"region": r.region,
		"count":  len(templates),
	})

	versions := make([][]aws.TemplateVersion, len(templates))
	for i, template := range templates {
		versions[i], err = r.inv.ListTemplateVersions(ctx, template.ID)
		if err != nil {
			return err
		}
	}

	r.transition(StateScanning, "templates")
	var records []*secrets.TemplateRecord
	for i, template := range templates {
		if record := r.aggregator.AggregateTemplate(template, versions[i]); record != nil {
			records = append(records, record)
		}
	}

	r.transition(StateAggregating, "templates")
	entries := make([]report.Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, report.NewTemplateEntry(record))
	}

	return r.merge(ctx, "templates", entries)
}

func (r *regionRun) merge(ctx context.Context, resource string, entries []report.Entry) error {
	r.transition(StateMerging, resource)

	written, err := r.merger.Merge(ctx, r.region, entries)
	if err != nil {
		return fmt.Errorf("failed to merge %s: %w", resource, err)
	}
	r.result.Matched += written
	if written > 0 {
		logging.Info("Matches written to report", map[string]interface{}{
			"region":   r.region,
			"resource": resource,
			"entries":  written,
		})
	}
	return nil
}
