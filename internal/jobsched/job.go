// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package jobsched runs one G-code job at a time against a grbl.Driver,
// queueing further AddJob calls until the current job finishes or is
// canceled.
package jobsched

import (
	"fmt"
	"sync"
	"time"

	"github.com/xykasumi/grbld/internal/grbl"
)

type JobStatus string

const (
	JobWaiting   JobStatus = "WAITING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobCanceled  JobStatus = "CANCELED"
)

// Job is one submitted G-code program.
//
// Signals names a periodic real-time query to re-issue while the job runs,
// at the given interval; the only meaningful key today is "status" (`?`),
// since the other real-time bytes (feed-hold, cycle-start, soft-reset) are
// one-shot operations already exposed directly on grbl.Driver rather than
// something a job would want fired on a timer.
type Job struct {
	ID          string
	Lines       []string
	Signals     map[string]time.Duration
	Status      JobStatus
	TimeAdded   time.Time
	TimeStarted *time.Time
	TimeEnded   *time.Time
}

// JobSched serializes job execution against a single grbl.Driver: at most
// one job is WAITING or RUNNING at a time.
//
// Grounded on jobs.go's JobSched almost directly; keepExecutingJobs here
// waits for the on_job_completed event forwarded through NotifyEvent instead
// of polling comm.Comm's CommandQueueLength, since Driver doesn't expose
// queue depth directly.
type JobSched struct {
	mu        sync.Mutex
	jobs      []Job
	nextJobID int

	driver *grbl.Driver
	done   chan struct{}

	jobCompleted chan struct{}
}

// New starts a scheduler driving driver. At most one scheduler should run
// against a single Driver. Since grbl.Driver dispatches to a single Handler,
// the caller's composite handler must forward every event to NotifyEvent so
// the scheduler can tell when a streamed job has finished.
func New(driver *grbl.Driver) *JobSched {
	js := &JobSched{
		nextJobID:    1,
		driver:       driver,
		done:         make(chan struct{}),
		jobCompleted: make(chan struct{}, 1),
	}
	go js.keepExecutingJobs()
	return js
}

// NotifyEvent feeds one dispatched grbl.Event to the scheduler. Call this
// from the Handler registered on the Driver.
func (js *JobSched) NotifyEvent(ev grbl.Event) {
	if ev.Name() == "on_job_completed" {
		select {
		case js.jobCompleted <- struct{}{}:
		default:
		}
	}
}

func (js *JobSched) issueNewJobIDUnsafe() string {
	id := fmt.Sprintf("jb%d", js.nextJobID)
	js.nextJobID++
	return id
}

func (js *JobSched) findPendingJobUnsafe() *Job {
	for i := range js.jobs {
		if js.jobs[i].Status == JobWaiting || js.jobs[i].Status == JobRunning {
			return &js.jobs[i]
		}
	}
	return nil
}

func (js *JobSched) findRunningJobUnsafe() *Job {
	for i := range js.jobs {
		if js.jobs[i].Status == JobRunning {
			return &js.jobs[i]
		}
	}
	return nil
}

func (js *JobSched) findWaitingJobUnsafe() *Job {
	for i := range js.jobs {
		if js.jobs[i].Status == JobWaiting {
			return &js.jobs[i]
		}
	}
	return nil
}

func copyJobUnsafe(job Job) Job {
	newJob := Job{
		ID:        job.ID,
		Lines:     job.Lines,
		Signals:   job.Signals,
		Status:    job.Status,
		TimeAdded: job.TimeAdded,
	}
	if job.TimeStarted != nil {
		t := *job.TimeStarted
		newJob.TimeStarted = &t
	}
	if job.TimeEnded != nil {
		t := *job.TimeEnded
		newJob.TimeEnded = &t
	}
	return newJob
}

func (js *JobSched) keepSendingSignal(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			js.driver.RequestStatus()
		}
	}
}

func (js *JobSched) keepExecutingJobs() {
	for {
		var job *Job
		for {
			select {
			case <-js.done:
				return
			default:
			}
			job = func() *Job {
				js.mu.Lock()
				defer js.mu.Unlock()
				j := js.findWaitingJobUnsafe()
				if j != nil {
					tStart := time.Now().Local()
					j.Status = JobRunning
					j.TimeStarted = &tStart
					return j
				}
				return nil
			}()
			if job != nil {
				break
			}
			time.Sleep(200 * time.Millisecond)
		}

		stop := make(chan struct{})
		for _, interval := range job.Signals {
			go js.keepSendingSignal(interval, stop)
		}
		js.driver.Stream(job.Lines)

	waitJob:
		for {
			canceled := func() bool {
				js.mu.Lock()
				defer js.mu.Unlock()
				return job.Status == JobCanceled
			}()
			if canceled {
				close(stop)
				break
			}
			select {
			case <-js.jobCompleted:
				js.mu.Lock()
				tEnd := time.Now().Local()
				job.Status = JobCompleted
				job.TimeEnded = &tEnd
				js.mu.Unlock()
				close(stop)
				break waitJob
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

// AddJob queues a new job; it refuses if another job is WAITING or RUNNING.
func (js *JobSched) AddJob(lines []string, signals map[string]time.Duration) (string, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.findPendingJobUnsafe() != nil {
		return "", false
	}

	job := Job{
		ID:        js.issueNewJobIDUnsafe(),
		Lines:     lines,
		Signals:   signals,
		Status:    JobWaiting,
		TimeAdded: time.Now().Local(),
	}
	js.jobs = append(js.jobs, job)
	return job.ID, true
}

func (js *JobSched) ListJobs() []Job {
	js.mu.Lock()
	defer js.mu.Unlock()

	jobs := make([]Job, len(js.jobs))
	for i, job := range js.jobs {
		jobs[i] = copyJobUnsafe(job)
	}
	return jobs
}

// CancelJob cancels the current pending job, if any, and halts the driver's
// in-flight stream.
func (js *JobSched) CancelJob() bool {
	js.mu.Lock()
	job := js.findPendingJobUnsafe()
	if job == nil {
		js.mu.Unlock()
		return false
	}
	job.Status = JobCanceled
	tEnd := time.Now().Local()
	job.TimeEnded = &tEnd
	js.mu.Unlock()

	js.driver.Halt()
	return true
}

func (js *JobSched) HasPendingJob() bool {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.findPendingJobUnsafe() != nil
}

func (js *JobSched) FindRunningJobID() (string, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()
	job := js.findRunningJobUnsafe()
	if job == nil {
		return "", false
	}
	return job.ID, true
}

// Close stops the scheduler's background goroutine.
func (js *JobSched) Close() {
	close(js.done)
}
