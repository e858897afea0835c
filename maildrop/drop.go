package maildrop

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/domain"
)

// TaskResult is the task-creation response.
type TaskResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	TaskTitle       string `json:"task_title"`
	MailDropSubject string `json:"mail_drop_subject,omitempty"`
}

// Drop turns task fields into Mail Drop emails. When a spool is attached,
// transient send failures are persisted and retried in the background
// instead of being reported as errors.
type Drop struct {
	mailer  Mailer
	spool   *Spool
	missing string
	logger  *log.Logger
}

func NewDrop(mailer Mailer, spool *Spool, logger *log.Logger) *Drop {
	return &Drop{mailer: mailer, spool: spool, logger: logger}
}

// NewUnconfiguredDrop reports every task creation as unconfigured, naming
// the environment variable that is missing.
func NewUnconfiguredDrop(missingVar string, logger *log.Logger) *Drop {
	return &Drop{missing: missingVar, logger: logger}
}

// Configured reports whether tasks can actually be delivered.
func (d *Drop) Configured() bool {
	return d.mailer != nil
}

// CreateTask composes and sends the task email. The result is always
// in-band: configuration and delivery problems never become transport
// errors, since callers capture from voice flows that cannot retry.
func (d *Drop) CreateTask(ctx context.Context, task domain.TaskFields) TaskResult {
	if d.mailer == nil {
		return TaskResult{
			Success:   false,
			Message:   fmt.Sprintf("Mail Drop not configured. Set %s.", d.missing),
			TaskTitle: task.Title,
		}
	}

	subject := Compose(task)
	if err := d.mailer.Send(ctx, subject, task.Note); err != nil {
		if d.spool != nil {
			if spoolErr := d.spool.Enqueue(subject, task.Note); spoolErr == nil {
				d.logger.WithError(err).WithField("subject", subject).Warn("direct send failed, message spooled")
				return TaskResult{
					Success:         true,
					Message:         "Task spooled for delivery: " + task.Title,
					TaskTitle:       task.Title,
					MailDropSubject: subject,
				}
			} else {
				d.logger.WithError(spoolErr).Error("spool append failed")
			}
		}
		d.logger.WithError(err).WithField("subject", subject).Error("mail drop send failed")
		return TaskResult{
			Success:         false,
			Message:         "Failed to send email: " + err.Error(),
			TaskTitle:       task.Title,
			MailDropSubject: subject,
		}
	}

	d.logger.WithField("subject", subject).Info("task sent to mail drop")
	return TaskResult{
		Success:         true,
		Message:         "Task created: " + task.Title,
		TaskTitle:       task.Title,
		MailDropSubject: subject,
	}
}

// SendTask is the direct, no-spool path used by the review-queue router,
// whose contract on failure is fallback to the vault rather than retry.
func (d *Drop) SendTask(ctx context.Context, task domain.TaskFields) error {
	if d.mailer == nil {
		return fmt.Errorf("mail drop not configured: %s not set", d.missing)
	}
	return d.mailer.Send(ctx, Compose(task), task.Note)
}
