// Package analyzer 实现按目标类型分发的 OSINT 分析器。
//
// 每个分析器对应一种目标类型，输出一组具名工具结果。
// 当前全部工具为模拟实现，结构与真实对接保持一致：
// 换成真实数据源时只需替换单个分析器，注册表与编排层不动。
package analyzer

import (
	"sort"

	"iris-osint/internal/domain/model"
)

// Func 是单个分析器：输入目标，输出工具结果集。
//
// 约定：工具自身的失败（输入非法、查询异常）表现为
// Success=false + Error 的结果项，不允许 panic 逃逸。
type Func func(target string) []model.ToolResult

// Registry 维护目标类型到分析器的映射。
// 注册发生在启动期，运行期只读，不加锁。
type Registry struct {
	byType map[model.TargetType]Func
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[model.TargetType]Func)}
}

// Register 注册分析器，同类型后注册者覆盖先注册者。
func (r *Registry) Register(t model.TargetType, fn Func) {
	r.byType[t] = fn
}

// Lookup 按目标类型查找分析器；未注册返回 (nil, false)。
func (r *Registry) Lookup(t model.TargetType) (Func, bool) {
	fn, ok := r.byType[t]
	return fn, ok
}

// Types 返回已注册的目标类型（字典序），用于能力发现接口。
func (r *Registry) Types() []model.TargetType {
	out := make([]model.TargetType, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Default 返回注册了全部内置分析器的注册表。
func Default() *Registry {
	r := NewRegistry()
	r.Register(model.TargetDiscord, AnalyzeDiscord)
	r.Register(model.TargetEmail, AnalyzeEmail)
	r.Register(model.TargetIP, AnalyzeIP)
	r.Register(model.TargetUsername, AnalyzeUsername)
	r.Register(model.TargetDomain, AnalyzeDomain)
	r.Register(model.TargetURL, AnalyzeURL)
	r.Register(model.TargetPhone, AnalyzePhone)
	return r
}
