package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"dukapay-billing-api/queue"
	"dukapay-billing-api/services/email"
)

// Worker delivers queued billing notices in the background.
type Worker struct {
	queue        *queue.Queue
	emailService *email.SMTPService
	shutdown     chan struct{}
	isRunning    bool
}

func NewWorker(q *queue.Queue, es *email.SMTPService) *Worker {
	return &Worker{
		queue:        q,
		emailService: es,
		shutdown:     make(chan struct{}),
	}
}

// Start begins processing jobs with the given number of goroutines and a
// pump that promotes due delayed jobs.
func (w *Worker) Start(concurrency int) {
	w.isRunning = true

	for i := 0; i < concurrency; i++ {
		go w.processJobs(i)
	}
	go w.pumpDelayedJobs()

	log.Printf("Started %d notification worker goroutines", concurrency)
}

// Stop signals the worker to stop processing jobs.
func (w *Worker) Stop() {
	if !w.isRunning {
		return
	}

	log.Println("Stopping notification worker...")
	close(w.shutdown)
	w.isRunning = false
}

func (w *Worker) pumpDelayedJobs() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := w.queue.ProcessDelayedJobs(ctx); err != nil {
				log.Printf("Error promoting delayed jobs: %v", err)
			}
			cancel()
		}
	}
}

func (w *Worker) processJobs(workerID int) {
	log.Printf("Notification worker %d starting", workerID)

	for {
		select {
		case <-w.shutdown:
			log.Printf("Notification worker %d shutting down", workerID)
			return
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			job, err := w.queue.Dequeue(ctx, 5*time.Second)
			cancel()

			if err != nil {
				log.Printf("Worker %d: Error dequeuing job: %v", workerID, err)
				time.Sleep(time.Second)
				continue
			}

			if job == nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}

			log.Printf("Worker %d processing job %s of type %s", workerID, job.ID, job.Type)

			if jobErr := w.processJob(job); jobErr != nil {
				log.Printf("Worker %d: Error processing job %s: %v", workerID, job.ID, jobErr)

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if failErr := w.queue.FailJob(ctx, job, jobErr); failErr != nil {
					log.Printf("Worker %d: Error marking job %s as failed: %v", workerID, job.ID, failErr)
				}
				cancel()
				continue
			}

			ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			if completeErr := w.queue.CompleteJob(ctx, job); completeErr != nil {
				log.Printf("Worker %d: Error marking job %s as complete: %v", workerID, job.ID, completeErr)
			}
			cancel()
		}
	}
}

func (w *Worker) processJob(job *queue.Job) error {
	contact, ok := job.Data["contact"].(string)
	if !ok || contact == "" {
		return fmt.Errorf("job %s has no contact address", job.ID)
	}

	switch job.Type {
	case queue.JobTypeGraceStarted:
		deadline, err := deadlineFromJob(job)
		if err != nil {
			return err
		}
		return w.emailService.SendGracePeriodNotice(contact, deadline)

	case queue.JobTypeRetryReminder:
		deadline, err := deadlineFromJob(job)
		if err != nil {
			return err
		}
		return w.emailService.SendRetryReminder(contact, deadline, attemptsFromJob(job))

	case queue.JobTypeSuspension:
		return w.emailService.SendSuspensionNotice(contact)

	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func deadlineFromJob(job *queue.Job) (time.Time, error) {
	raw, ok := job.Data["grace_period_end"].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("job %s has no grace_period_end", job.ID)
	}
	deadline, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("job %s has malformed grace_period_end: %v", job.ID, err)
	}
	return deadline, nil
}

func attemptsFromJob(job *queue.Job) int {
	// JSON round-trips numbers as float64.
	if n, ok := job.Data["failed_attempts"].(float64); ok {
		return int(n)
	}
	if n, ok := job.Data["failed_attempts"].(int); ok {
		return n
	}
	return 0
}
