package report

import (
	"context"

	"iris-osint/internal/domain/model"

	"golang.org/x/sync/errgroup"
)

// Snapshot 是报告取数的时间点切面。
//
// 取数不加调查锁：与生成过程中发生的并发写入相比，
// 报告只承诺反映"生成时刻之前已提交"的数据。
type Snapshot struct {
	Investigation model.Investigation `json:"investigation"`
	Evidence      []model.Evidence    `json:"evidence"`
	Runs          []model.AnalysisRun `json:"analysis_results"`
	Audits        []model.AuditLog    `json:"audit_trail"`
}

// gatherSnapshot 并行拉取调查的证据、分析历史与审计链。
func gatherSnapshot(ctx context.Context, store Store, inv model.Investigation) (*Snapshot, error) {
	snap := &Snapshot{Investigation: inv}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evidence, err := store.ListEvidence(gctx, inv.ID)
		if err != nil {
			return err
		}
		snap.Evidence = evidence
		return nil
	})
	g.Go(func() error {
		runs, err := store.ListAnalysisRunsByInvestigation(gctx, inv.ID)
		if err != nil {
			return err
		}
		snap.Runs = runs
		return nil
	})
	g.Go(func() error {
		audits, err := store.ListAuditLogs(gctx, inv.ID, 5000)
		if err != nil {
			return err
		}
		snap.Audits = audits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
