package model

import "time"

const JobLocksCollection = "job_locks"

// JobLock is a lease on a scheduled job. The id is the job name.
type JobLock struct {
	Name       string    `bson:"_id"`
	Holder     string    `bson:"holder"`
	Token      string    `bson:"token"`
	AcquiredAt time.Time `bson:"acquired_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

const JobRunsCollection = "job_runs"

// JobRun is the last completed run of a scheduled job across all
// instances. The id is the job name.
type JobRun struct {
	Name      string    `bson:"_id"`
	Holder    string    `bson:"holder"`
	LastRunAt time.Time `bson:"last_run_at"`
}
