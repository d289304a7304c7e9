package migrate

import (
	"github.com/franz/lappi/internal/jobs"
	"github.com/franz/lappi/internal/util"
)

// JobID is the fixed id the migration is registered under
const JobID = "collection-migration"

// Job runs the engine on the job host
type Job struct {
	engine *Engine

	last *Result
}

// NewJob adapts an engine to the job host
func NewJob(engine *Engine) *Job {
	return &Job{engine: engine}
}

func (j *Job) Description() string {
	return "Move collection files to their canonical paths"
}

func (j *Job) AlwaysReady() bool {
	return true
}

// Run runs one migration. The host logs a returned error and leaves the
// job in Done.
func (j *Job) Run(c *jobs.Context) error {
	j.engine.Logger().SetRunID(c.RunID())

	result, err := j.engine.Run(c)
	j.last = result
	if err != nil {
		return err
	}

	if result.Interrupted {
		util.WarnLog("Migration stopped: %d of %d files moved", result.Applied, result.Planned)
		return nil
	}
	util.SuccessLog("Migration complete: %d moved, %d skipped, %d empty directories removed in %s",
		result.Applied, result.Conflicts, result.Swept, util.FormatDuration(result.Duration))
	return nil
}

// LastResult returns the result of the latest finished run, if any. Call
// it after the host's Wait.
func (j *Job) LastResult() *Result {
	return j.last
}
