package tidy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Executor carries out approved plans. Deletions go to the trash
// directory, never straight to unlink, so every action is reversible.
type Executor struct {
	store      *Store
	trashDir   string
	archiveDir string
	dryRun     bool
	logger     *log.Logger
}

// Result reports the outcome of executing one plan.
type Result struct {
	PlanID  string
	Message string
	Err     error
}

// NewExecutor returns an executor writing through the given store.
func NewExecutor(store *Store, trashDir, archiveDir string, dryRun bool, logger *log.Logger) *Executor {
	return &Executor{
		store:      store,
		trashDir:   trashDir,
		archiveDir: archiveDir,
		dryRun:     dryRun,
		logger:     logger,
	}
}

// ExecuteApproved runs every approved plan in order and returns one
// result per plan. Individual failures do not stop the batch.
func (e *Executor) ExecuteApproved() ([]Result, error) {
	plans, err := e.store.PlansByStatus(StatusApproved)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(plans))
	for i := range plans {
		msg, err := e.Execute(&plans[i])
		results = append(results, Result{PlanID: plans[i].ID, Message: msg, Err: err})
	}
	return results, nil
}

// Execute carries out a single plan and records the outcome. In dry-run
// mode it only reports what would happen and leaves the plan untouched.
func (e *Executor) Execute(p *Plan) (string, error) {
	if _, err := os.Stat(p.SourcePath); err != nil {
		msg := "source file no longer exists"
		e.fail(p, msg)
		return "", fmt.Errorf("%s: %s", msg, p.SourcePath)
	}

	var msg string
	var err error
	switch p.Action {
	case ActionMove:
		msg, err = e.move(p)
	case ActionDelete:
		msg, err = e.trash(p)
	case ActionArchive:
		msg, err = e.archive(p)
	case ActionRename:
		msg, err = e.rename(p)
	case ActionSkip:
		msg = "skipped"
	default:
		err = fmt.Errorf("unknown action %q", p.Action)
	}
	if err != nil {
		e.fail(p, err.Error())
		return "", err
	}
	if e.dryRun {
		e.logger.WithField("plan", p.ID).Info(msg)
		return msg, nil
	}
	if err := e.store.SetStatus(p.ID, StatusExecuted, ""); err != nil {
		return msg, err
	}
	e.logger.WithFields(log.Fields{"plan": p.ID, "action": p.Action}).Info(msg)
	return msg, nil
}

func (e *Executor) fail(p *Plan, reason string) {
	if e.dryRun {
		return
	}
	if err := e.store.SetStatus(p.ID, StatusFailed, reason); err != nil {
		e.logger.WithError(err).Warn("failed to record plan failure")
	}
}

func (e *Executor) move(p *Plan) (string, error) {
	if p.Destination == "" {
		return "", fmt.Errorf("move plan has no destination")
	}
	dst := avoidCollision(p.Destination)
	if e.dryRun {
		return fmt.Sprintf("would move %s -> %s", p.SourcePath, dst), nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination dir: %w", err)
	}
	if err := moveFile(p.SourcePath, dst); err != nil {
		return "", err
	}
	return fmt.Sprintf("moved %s -> %s", p.Filename(), dst), nil
}

func (e *Executor) trash(p *Plan) (string, error) {
	dst := timestampCollision(filepath.Join(e.trashDir, p.Filename()))
	if e.dryRun {
		return fmt.Sprintf("would trash %s", p.SourcePath), nil
	}
	if err := os.MkdirAll(e.trashDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create trash dir: %w", err)
	}
	if err := moveFile(p.SourcePath, dst); err != nil {
		return "", err
	}
	return fmt.Sprintf("trashed %s", p.Filename()), nil
}

func (e *Executor) archive(p *Plan) (string, error) {
	dst := p.Destination
	if dst == "" {
		dst = filepath.Join(e.archiveDir, p.Filename())
	}
	dst = timestampCollision(dst)
	if e.dryRun {
		return fmt.Sprintf("would archive %s -> %s", p.SourcePath, dst), nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}
	if err := moveFile(p.SourcePath, dst); err != nil {
		return "", err
	}
	return fmt.Sprintf("archived %s -> %s", p.Filename(), dst), nil
}

func (e *Executor) rename(p *Plan) (string, error) {
	if p.Destination == "" {
		return "", fmt.Errorf("rename plan has no destination")
	}
	dst := avoidCollision(filepath.Join(filepath.Dir(p.SourcePath), filepath.Base(p.Destination)))
	if e.dryRun {
		return fmt.Sprintf("would rename %s -> %s", p.SourcePath, dst), nil
	}
	if err := os.Rename(p.SourcePath, dst); err != nil {
		return "", fmt.Errorf("failed to rename: %w", err)
	}
	return fmt.Sprintf("renamed %s -> %s", p.Filename(), filepath.Base(dst)), nil
}

// avoidCollision appends -1, -2, ... to the file stem until the path is
// free.
func avoidCollision(dst string) string {
	if _, err := os.Stat(dst); err != nil {
		return dst
	}
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// timestampCollision appends a timestamp to the file stem when the path
// is taken, so repeated archives of the same name never clash.
func timestampCollision(dst string) string {
	if _, err := os.Stat(dst); err != nil {
		return dst
	}
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)
	return fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext)
}

// moveFile renames src to dst, falling back to copy and remove for
// cross-device moves.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush destination: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source after copy: %w", err)
	}
	return nil
}
