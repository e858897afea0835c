package tidy

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreCloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, err := NewStore(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/tmp/x.pdf", Action: ActionSkip}))
	require.NoError(t, s.Close())
}

func TestStoreSavePlanFillsDefaults(t *testing.T) {
	s := newTestStore(t)
	p := &Plan{SourcePath: "/downloads/a.pdf", Action: ActionMove, Destination: "/organized/a.pdf"}
	require.NoError(t, s.SavePlan(p))
	require.NotEmpty(t, p.ID)
	require.Equal(t, StatusPending, p.Status)
	require.False(t, p.CreatedAt.IsZero())

	got, err := s.Plan(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, p.SourcePath, got.SourcePath)
	require.Equal(t, ActionMove, got.Action)
	require.True(t, got.ExecutedAt.IsZero())
}

func TestStorePlanNotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Plan("missing1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStorePlanBySourceReturnsLatest(t *testing.T) {
	s := newTestStore(t)
	older := &Plan{SourcePath: "/d/file.zip", Action: ActionArchive, Status: StatusRejected,
		CreatedAt: time.Now().Add(-time.Hour)}
	newer := &Plan{SourcePath: "/d/file.zip", Action: ActionArchive}
	require.NoError(t, s.SavePlan(older))
	require.NoError(t, s.SavePlan(newer))

	got, err := s.PlanBySource("/d/file.zip")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, newer.ID, got.ID)

	got, err = s.PlanBySource("/d/other.zip")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreSetStatus(t *testing.T) {
	s := newTestStore(t)
	p := &Plan{SourcePath: "/d/a.dmg", Action: ActionDelete}
	require.NoError(t, s.SavePlan(p))

	require.NoError(t, s.SetStatus(p.ID, StatusApproved, ""))
	got, err := s.Plan(p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.True(t, got.ExecutedAt.IsZero())

	require.NoError(t, s.SetStatus(p.ID, StatusExecuted, ""))
	got, err = s.Plan(p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, got.Status)
	require.False(t, got.ExecutedAt.IsZero())

	require.Error(t, s.SetStatus("missing1", StatusApproved, ""))
}

func TestStoreHistoryFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		p := &Plan{SourcePath: "/d/f", Action: ActionSkip, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if i%2 == 0 {
			p.Status = StatusExecuted
		}
		require.NoError(t, s.SavePlan(p))
	}

	all, err := s.History(10, "")
	require.NoError(t, err)
	require.Len(t, all, 5)
	// Newest first.
	require.True(t, all[0].CreatedAt.After(all[4].CreatedAt))

	executed, err := s.History(10, StatusExecuted)
	require.NoError(t, err)
	require.Len(t, executed, 3)

	limited, err := s.History(2, "")
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestStorePendingSummary(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/d/a.dmg", Action: ActionDelete,
		Category: CategoryInstaller, SizeBytes: 300}))
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/d/b.tmp", Action: ActionDelete,
		Category: CategoryDownload, SizeBytes: 200}))
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/d/c.pdf", Action: ActionMove,
		Category: CategoryDocument, Domain: "Finance", SizeBytes: 100}))
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/d/d.pdf", Action: ActionMove,
		Category: CategoryDocument, Domain: "Finance", Status: StatusExecuted}))

	sum, err := s.PendingSummary()
	require.NoError(t, err)
	require.Equal(t, 3, sum.Total)
	require.Equal(t, 2, sum.ByAction[ActionDelete])
	require.Equal(t, 1, sum.ByAction[ActionMove])
	require.Equal(t, 1, sum.ByDomain["Finance"])
	require.Equal(t, 1, sum.ByCategory[CategoryDocument])
	require.Equal(t, 1, sum.ByCategory[CategoryInstaller])
	require.Equal(t, int64(500), sum.BytesFreed)
}

func TestStoreCleanup(t *testing.T) {
	s := newTestStore(t)
	old := time.Now().AddDate(0, 0, -40)
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/d/old-done", Action: ActionSkip,
		Status: StatusExecuted, CreatedAt: old}))
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/d/old-pending", Action: ActionSkip,
		CreatedAt: old}))
	require.NoError(t, s.SavePlan(&Plan{SourcePath: "/d/new-done", Action: ActionSkip,
		Status: StatusExecuted}))

	removed, err := s.Cleanup(30)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	// Pending plans survive regardless of age.
	got, err := s.PlanBySource("/d/old-pending")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestStoreCorrectionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	first := &Correction{
		Filename:  "acme-payslip.pdf",
		Pattern:   "payslip",
		Keywords:  []string{"acme", "payslip"},
		Action:    ActionMove,
		Domain:    "Finance",
		Subfolder: "Documents",
	}
	second := &Correction{
		Filename: "van-plan.md",
		Keywords: []string{"van", "plan"},
		Action:   ActionArchive,
	}
	require.NoError(t, s.SaveCorrection(first))
	require.NoError(t, s.SaveCorrection(second))

	require.NoError(t, s.TouchCorrection(second.ID))

	got, err := s.Corrections()
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Most used first.
	require.Equal(t, second.ID, got[0].ID)
	require.Equal(t, 1, got[0].TimesApplied)
	require.False(t, got[0].LastApplied.IsZero())
	require.Equal(t, []string{"acme", "payslip"}, got[1].Keywords)
	require.Equal(t, "Documents", got[1].Subfolder)
}
