package tidy

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/note"
)

// PARA-numbered folders inside the vault.
const (
	AreasFolder        = "40 - Areas"
	VaultArchiveFolder = "60 - Archives"
)

// areaFolders maps an area key to its folder under 40 - Areas.
var areaFolders = map[string]string{
	"finance":  "41 - Finance",
	"family":   "42 - Family",
	"work":     "43 - Work",
	"health":   "44 - Health",
	"learning": "45 - Learning",
	"projects": "46 - Projects",
}

// Folders the scanner never touches. Vault-root files and dot-folders
// are also protected.
var protectedFolders = []string{
	"00 - Inbox",
	"10 - Meta",
	"20 - Journal",
	note.BookmarkFolder,
	note.QueueFolder,
	"52 - Templates",
	"53 - Literature Notes",
	"54 - Permanent Notes",
	VaultArchiveFolder,
	"90 - Templates",
}

// categoryAreas maps frontmatter category values to an area key.
var categoryAreas = map[string]string{
	"finance":      "finance",
	"trading":      "finance",
	"investment":   "finance",
	"family":       "family",
	"kids":         "family",
	"children":     "family",
	"work":         "work",
	"career":       "work",
	"professional": "work",
	"health":       "health",
	"medical":      "health",
	"fitness":      "health",
	"learning":     "learning",
	"education":    "learning",
	"course":       "learning",
	"projects":     "projects",
	"project":      "projects",
	"hobby":        "projects",
}

// tagAreas maps frontmatter tags to an area key.
var tagAreas = map[string]string{
	"trading":    "finance",
	"stocks":     "finance",
	"crypto":     "finance",
	"portfolio":  "finance",
	"backtest":   "finance",
	"investment": "finance",
	"budget":     "finance",
	"tax":        "finance",
	"family":     "family",
	"kids":       "family",
	"parenting":  "family",
	"home":       "family",
	"work":       "work",
	"career":     "work",
	"resume":     "work",
	"job":        "work",
	"interview":  "work",
	"health":     "health",
	"medical":    "health",
	"fitness":    "health",
	"exercise":   "health",
	"learning":   "learning",
	"course":     "learning",
	"tutorial":   "learning",
	"study":      "learning",
	"project":    "projects",
	"hobby":      "projects",
	"diy":        "projects",
}

// noteFilenameRule matches note names to an area when the frontmatter
// gives no signal.
type noteFilenameRule struct {
	area     string
	patterns []*regexp.Regexp
}

func newNoteRule(area string, patterns ...string) noteFilenameRule {
	r := noteFilenameRule{area: area}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile("(?i)"+p))
	}
	return r
}

var noteFilenameRules = []noteFilenameRule{
	newNoteRule("finance", `trading`, `invest`, `budget`, `portfolio`, `tax`),
	newNoteRule("health", `health`, `medical`, `fitness`, `workout`),
	newNoteRule("work", `meeting`, `interview`, `career`, `1-on-1`),
	newNoteRule("family", `family`, `kids`, `school`),
	newNoteRule("learning", `course`, `tutorial`, `study`),
	newNoteRule("projects", `project`, `build`, `diy`),
}

// VaultScanner files loose Obsidian notes into their area folders. Like
// the file watcher it only creates plans; moves happen on approval.
type VaultScanner struct {
	root   string
	store  *Store
	logger *log.Logger
}

// ScanResult summarizes one vault scan.
type ScanResult struct {
	Scanned   int
	Protected int
	Skipped   int
	Planned   []Plan
}

// NewVaultScanner scans the vault rooted at root.
func NewVaultScanner(root string, store *Store, logger *log.Logger) *VaultScanner {
	return &VaultScanner{root: root, store: store, logger: logger}
}

// Scan walks the vault, classifies every unprotected markdown note and
// stores a pending plan for each one that belongs somewhere else.
func (s *VaultScanner) Scan() (*ScanResult, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("vault not found: %w", err)
	}
	result := &ScanResult{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == s.root {
				return nil
			}
			if s.protectedDir(d.Name()) {
				result.Protected++
				return fs.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".md" {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		// Vault-root files stay where they are.
		if !strings.Contains(rel, string(filepath.Separator)) {
			result.Protected++
			return nil
		}
		result.Scanned++
		s.scanNote(path, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan vault: %w", err)
	}
	return result, nil
}

func (s *VaultScanner) protectedDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, p := range protectedFolders {
		if name == p {
			return true
		}
	}
	return false
}

func (s *VaultScanner) scanNote(path string, result *ScanResult) {
	plan := s.classifyNote(path)
	if plan == nil || plan.Action == ActionSkip {
		result.Skipped++
		return
	}
	// Already filed where the plan would put it.
	if plan.Destination == path {
		result.Skipped++
		return
	}
	existing, err := s.store.PlanBySource(path)
	if err == nil && existing != nil &&
		(existing.Status == StatusPending || existing.Status == StatusApproved) {
		result.Skipped++
		return
	}
	if err := s.store.SavePlan(plan); err != nil {
		s.logger.WithError(err).Warn("failed to save note plan")
		return
	}
	result.Planned = append(result.Planned, *plan)
}

// classifyNote decides where a note belongs: learned corrections first,
// then the frontmatter category, then tags, then the filename.
func (s *VaultScanner) classifyNote(path string) *Plan {
	filename := filepath.Base(path)
	plan := &Plan{
		ID:         NewPlanID(),
		SourcePath: path,
		Category:   CategoryNote,
		Status:     StatusPending,
		Source:     SourceRules,
		CreatedAt:  time.Now(),
	}
	if info, err := os.Stat(path); err == nil {
		plan.SizeBytes = info.Size()
	}

	if s.applyCorrection(filename, plan) {
		return plan
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.WithError(err).WithField("note", filename).Warn("failed to read note")
		return nil
	}
	fm, _, err := note.ParseFrontmatter(string(data))
	if err != nil {
		s.logger.WithError(err).WithField("note", filename).Warn("failed to parse frontmatter")
	}

	if area, ok := categoryAreas[strings.ToLower(strings.TrimSpace(fm.Category))]; ok {
		s.fileUnder(plan, area, 0.95, "frontmatter category: "+fm.Category)
		return plan
	}
	for _, tag := range fm.Tags {
		if area, ok := tagAreas[strings.ToLower(strings.TrimSpace(tag))]; ok {
			s.fileUnder(plan, area, 0.9, "frontmatter tag: "+tag)
			return plan
		}
	}
	for _, rule := range noteFilenameRules {
		for _, re := range rule.patterns {
			if re.MatchString(filename) {
				s.fileUnder(plan, rule.area, 0.8, "filename match")
				return plan
			}
		}
	}

	plan.Action = ActionSkip
	plan.Confidence = 0
	plan.Reason = "no area signal"
	return plan
}

func (s *VaultScanner) fileUnder(plan *Plan, area string, confidence float64, reason string) {
	folder := areaFolders[area]
	plan.Action = ActionMove
	plan.Domain = folder
	plan.Confidence = confidence
	plan.Reason = reason
	plan.Destination = filepath.Join(s.root, AreasFolder, folder, plan.Filename())
}

// applyCorrection fills the plan from a learned correction. Corrections
// taught on note plans carry the area folder in their domain field.
func (s *VaultScanner) applyCorrection(filename string, plan *Plan) bool {
	corrections, err := s.store.Corrections()
	if err != nil {
		return false
	}
	corr, confidence := matchCorrection(corrections, filename)
	if corr == nil {
		return false
	}
	plan.Action = corr.Action
	plan.Domain = corr.Domain
	plan.Confidence = confidence
	plan.Reason = "learned from correction of " + corr.Filename
	plan.Source = SourceLearned
	switch corr.Action {
	case ActionArchive:
		plan.Destination = filepath.Join(s.root, VaultArchiveFolder, filename)
	case ActionMove:
		plan.Destination = filepath.Join(s.root, AreasFolder, corr.Domain, filename)
	}
	_ = s.store.TouchCorrection(corr.ID)
	return true
}
