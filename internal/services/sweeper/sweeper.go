// Package sweeper 巡检滞留在 running 状态的分析运行。
//
// 分析是同步执行的，正常情况下不会出现长期 running 的行；
// 出现即意味着进程曾在运行中途崩溃。巡检只上报不改写：
// 状态机约定 running 行只允许由执行者本人流转一次，
// 后台改写会掩盖崩溃现场，处置决定留给操作员。
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/apperr"
)

// Store 是巡检所需的最小存储能力。
type Store interface {
	ListStuckRuns(ctx context.Context, before int64) ([]model.AnalysisRun, error)
}

// StuckRun 是单条滞留运行的巡检视图。
type StuckRun struct {
	Run        model.AnalysisRun `json:"run"`
	StuckFor   string            `json:"stuck_for"` // 人类可读时长
	StartedAgo int64             `json:"started_ago_seconds"`
}

type Sweeper struct {
	store Store
	log   *slog.Logger
}

func NewSweeper(store Store, log *slog.Logger) *Sweeper {
	return &Sweeper{store: store, log: log}
}

// Find 返回启动时间早于 now-olderThan 且仍为 running 的运行。
// olderThan 必须为正，防止把刚启动的正常运行误报为滞留。
func (s *Sweeper) Find(ctx context.Context, olderThan time.Duration) ([]StuckRun, error) {
	if olderThan <= 0 {
		return nil, apperr.Validation("olderThan must be positive")
	}

	now := time.Now()
	runs, err := s.store.ListStuckRuns(ctx, now.Add(-olderThan).Unix())
	if err != nil {
		return nil, apperr.Persistence(err, "list stuck runs")
	}

	out := make([]StuckRun, 0, len(runs))
	for _, r := range runs {
		age := now.Unix() - r.StartedAt
		out = append(out, StuckRun{
			Run:        r,
			StuckFor:   (time.Duration(age) * time.Second).String(),
			StartedAgo: age,
		})
	}

	if len(out) > 0 {
		s.log.Warn("stuck analysis runs detected", "count", len(out), "older_than", olderThan.String())
	}
	return out, nil
}
