package tidy

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// File categories assigned by the rules.
const (
	CategoryDocument   = "document"
	CategoryImage      = "image"
	CategoryVideo      = "video"
	CategoryAudio      = "audio"
	CategoryInstaller  = "installer"
	CategoryArchive    = "archive"
	CategoryCode       = "code"
	CategoryTrading    = "trading"
	CategoryReceipt    = "receipt"
	CategoryScreenshot = "screenshot"
	CategoryDownload   = "download"
	CategoryNote       = "note"
	CategoryUnknown    = "unknown"
)

// Rule maps filename patterns to an action and a destination folder.
type Rule struct {
	Name       string
	Category   string
	Action     string
	Domain     string
	Subfolder  string
	Confidence float64
	patterns   []*regexp.Regexp
}

func newRule(name, category, action, domain, subfolder string, confidence float64, patterns ...string) Rule {
	r := Rule{
		Name:       name,
		Category:   category,
		Action:     action,
		Domain:     domain,
		Subfolder:  subfolder,
		Confidence: confidence,
	}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile("(?i)"+p))
	}
	return r
}

// Matches reports whether any of the rule's patterns match the filename.
func (r Rule) Matches(filename string) bool {
	for _, p := range r.patterns {
		if p.MatchString(filename) {
			return true
		}
	}
	return false
}

// macOS screenshot names contain regular, non-breaking and narrow
// non-breaking spaces depending on the OS version.
const screenshotPattern = `^Screenshot[ \x{00a0}]+\d{4}-\d{2}-\d{2}[ \x{00a0}]+at[ \x{00a0}]+\d{1,2}\.\d{2}(\.\d{2})?([ \x{00a0}\x{202f}]+(AM|PM))?\.png$`

var builtinRules = []Rule{
	newRule("mac_installers", CategoryInstaller, ActionDelete, "", "", 0.95,
		`\.dmg$`, `\.pkg$`),
	newRule("windows_installers", CategoryInstaller, ActionDelete, "", "", 0.95,
		`\.exe$`, `\.msi$`),
	newRule("temp_files", CategoryDownload, ActionDelete, "", "", 0.95,
		`\.tmp$`, `\.part$`, `\.crdownload$`, `~\$`),
	newRule("windows_artifacts", CategoryUnknown, ActionDelete, "", "", 0.95,
		`\$RECYCLE\.BIN`, `desktop\.ini`, `Thumbs\.db`),
	newRule("macos_screenshots", CategoryScreenshot, ActionDelete, "", "", 0.95,
		screenshotPattern),
	newRule("archives", CategoryArchive, ActionArchive, "Personal", "Archive", 0.7,
		`\.zip$`, `\.tar\.gz$`, `\.tgz$`, `\.rar$`, `\.7z$`),
	newRule("trading_research", CategoryTrading, ActionMove, "Finance", "Research", 0.85,
		`trading`, `backtest`, `strategy`, `portfolio`),
	newRule("financial_documents", CategoryDocument, ActionMove, "Finance", "Documents", 0.85,
		`statement`, `invoice`, `tax.*\d{4}`, `1099`, `W-?2`, `bank.*statement`),
	newRule("receipts", CategoryReceipt, ActionMove, "Personal", "Documents", 0.8,
		`receipt`, `order.*confirm`, `purchase`),
	newRule("health_documents", CategoryDocument, ActionMove, "Health", "Documents", 0.9,
		`blood.*pressure`, `medical`, `prescription`, `lab.*results`, `doctor`, `health`),
	newRule("work_documents", CategoryDocument, ActionMove, "Work", "Documents", 0.85,
		`resume`, `\bcv\b`, `cover.*letter`, `job.*application`),
	newRule("learning_materials", CategoryDocument, ActionMove, "Work", "Learning", 0.8,
		`course`, `tutorial`, `ebook`, `\.epub$`),
	newRule("property_documents", CategoryDocument, ActionMove, "Property", "Documents", 0.9,
		`mortgage`, `deed`, `property.*tax`, `HOA`, `home.*insurance`),
	newRule("family_documents", CategoryDocument, ActionMove, "Family", "Documents", 0.9,
		`birth.*cert`, `passport`, `social.*security`, `marriage`, `school.*report`),
	newRule("screenshots", CategoryScreenshot, ActionMove, "Personal", "Media", 0.9,
		`screenshot`, `Screen Shot`, `CleanShot`),
	newRule("images", CategoryImage, ActionMove, "Personal", "Media", 0.6,
		`\.jpg$`, `\.jpeg$`, `\.png$`, `\.gif$`, `\.heic$`),
	newRule("videos", CategoryVideo, ActionMove, "Personal", "Media", 0.6,
		`\.mp4$`, `\.mov$`, `\.avi$`, `\.mkv$`, `\.m4v$`),
	newRule("audio", CategoryAudio, ActionMove, "Personal", "Media", 0.6,
		`\.mp3$`, `\.wav$`, `\.m4a$`, `\.aac$`, `\.flac$`),
	newRule("code_files", CategoryCode, ActionMove, "Work", "Projects", 0.7,
		`\.py$`, `\.js$`, `\.ts$`, `\.java$`, `\.cpp$`, `\.c$`, `\.rs$`, `\.go$`),
	newRule("pdf_documents", CategoryDocument, ActionMove, "", "Documents", 0.5,
		`\.pdf$`),
	newRule("office_documents", CategoryDocument, ActionMove, "", "Documents", 0.5,
		`\.docx?$`, `\.xlsx?$`, `\.pptx?$`, `\.pages$`, `\.numbers$`),
}

// Classifier turns files into plans using learned corrections first and
// the built-in rules second. The store is optional; without it only the
// built-in rules apply.
type Classifier struct {
	organized string
	rules     []Rule
	store     *Store
}

// NewClassifier returns a classifier filing matches under organizedRoot.
func NewClassifier(organizedRoot string, store *Store) *Classifier {
	return &Classifier{organized: organizedRoot, rules: builtinRules, store: store}
}

// Classify builds a pending plan for the file at path. Files no rule
// matches get a zero-confidence skip plan so the operator still sees them.
func (c *Classifier) Classify(path string, size int64) *Plan {
	filename := filepath.Base(path)
	now := time.Now()
	plan := &Plan{
		ID:         NewPlanID(),
		SourcePath: path,
		Category:   CategoryUnknown,
		Status:     StatusPending,
		Source:     SourceRules,
		SizeBytes:  size,
		CreatedAt:  now,
	}

	if corr := c.matchCorrection(filename, plan); corr != nil {
		return plan
	}

	var best *Rule
	for i := range c.rules {
		r := &c.rules[i]
		if !r.Matches(filename) {
			continue
		}
		if best == nil || r.Confidence > best.Confidence {
			best = r
		}
	}
	if best == nil {
		plan.Action = ActionSkip
		plan.Confidence = 0
		plan.Reason = "no matching rule"
		return plan
	}

	plan.Action = best.Action
	plan.Category = best.Category
	plan.Domain = best.Domain
	plan.Subfolder = best.Subfolder
	plan.Confidence = best.Confidence
	plan.Reason = "rule: " + best.Name
	if best.Action == ActionMove || best.Action == ActionArchive {
		plan.Destination = c.destination(best.Domain, best.Subfolder, filename)
	}
	return plan
}

// destination builds the target path under the organized root. Plans
// without a domain get no destination and need operator review.
func (c *Classifier) destination(domain, subfolder, filename string) string {
	if domain == "" {
		return ""
	}
	if subfolder == "" {
		subfolder = "Documents"
	}
	return filepath.Join(c.organized, domain, subfolder, filename)
}

// matchCorrection fills the plan from the best matching learned
// correction, if any, and records the application.
func (c *Classifier) matchCorrection(filename string, plan *Plan) *Correction {
	if c.store == nil {
		return nil
	}
	corrections, err := c.store.Corrections()
	if err != nil {
		return nil
	}
	corr, confidence := matchCorrection(corrections, filename)
	if corr == nil {
		return nil
	}
	plan.Action = corr.Action
	plan.Category = CategoryDocument
	plan.Domain = corr.Domain
	plan.Subfolder = corr.Subfolder
	plan.Confidence = confidence
	plan.Reason = "learned from correction of " + corr.Filename
	plan.Source = SourceLearned
	if corr.Action == ActionMove || corr.Action == ActionArchive {
		plan.Destination = c.destination(corr.Domain, corr.Subfolder, filename)
	}
	_ = c.store.TouchCorrection(corr.ID)
	return corr
}

// matchCorrection returns the first correction matching the filename.
// A pattern match is stronger than keyword overlap; keyword overlap
// needs at least two hits.
func matchCorrection(corrections []Correction, filename string) (*Correction, float64) {
	lower := strings.ToLower(filename)
	for i := range corrections {
		corr := &corrections[i]
		if corr.Pattern != "" {
			re, err := regexp.Compile("(?i)" + corr.Pattern)
			if err == nil && re.MatchString(filename) {
				return corr, 0.95
			}
		}
		if len(corr.Keywords) < 2 {
			continue
		}
		hits := 0
		for _, kw := range corr.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits >= 2 {
			return corr, 0.85
		}
	}
	return nil, 0
}

var (
	tokenSplitRE = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	numericRE    = regexp.MustCompile(`^\d+$`)
)

// LearnKeywords extracts the tokens of a filename worth remembering in a
// correction: runs of three or more characters that are not pure numbers.
func LearnKeywords(filename string) []string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	var keywords []string
	for _, tok := range tokenSplitRE.Split(stem, -1) {
		if len(tok) < 3 || numericRE.MatchString(tok) {
			continue
		}
		keywords = append(keywords, strings.ToLower(tok))
	}
	return keywords
}

// NewCorrection builds a correction from a rejected plan and the
// operator-supplied destination. The longest filename token becomes the
// match pattern for future files.
func NewCorrection(p *Plan, action, domain, subfolder string) *Correction {
	filename := p.Filename()
	keywords := LearnKeywords(filename)
	pattern := ""
	for _, kw := range keywords {
		if len(kw) > len(pattern) {
			pattern = kw
		}
	}
	pattern = regexp.QuoteMeta(pattern)
	return &Correction{
		ID:        NewPlanID(),
		CreatedAt: time.Now(),
		Filename:  filename,
		Pattern:   pattern,
		Keywords:  keywords,
		Action:    action,
		Domain:    domain,
		Subfolder: subfolder,
	}
}

// CorrectedPlan builds the replacement plan for a rejected one from the
// operator's correction. Note plans resolve against the vault, file
// plans against the organized root.
func CorrectedPlan(prev *Plan, corr *Correction, organizedRoot, vaultRoot string) *Plan {
	filename := prev.Filename()
	p := &Plan{
		ID:         NewPlanID(),
		SourcePath: prev.SourcePath,
		Action:     corr.Action,
		Category:   prev.Category,
		Domain:     corr.Domain,
		Subfolder:  corr.Subfolder,
		Confidence: 0.95,
		Reason:     "operator correction",
		Source:     SourceLearned,
		Status:     StatusPending,
		SizeBytes:  prev.SizeBytes,
		CreatedAt:  time.Now(),
	}
	if prev.Category == CategoryNote {
		switch corr.Action {
		case ActionArchive:
			p.Destination = filepath.Join(vaultRoot, VaultArchiveFolder, filename)
		case ActionMove:
			p.Destination = filepath.Join(vaultRoot, AreasFolder, corr.Domain, filename)
		}
		return p
	}
	switch corr.Action {
	case ActionMove:
		sub := corr.Subfolder
		if sub == "" {
			sub = "Documents"
		}
		p.Destination = filepath.Join(organizedRoot, corr.Domain, sub, filename)
	case ActionArchive:
		p.Destination = filepath.Join(organizedRoot, "Personal", "Archive", filename)
	}
	return p
}
