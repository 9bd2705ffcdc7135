package report

import (
	"bytes"
	"encoding/json"
	"html/template"
	"time"
	"unicode/utf8"

	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/hash"
)

// HTML 报告自包含（内联样式、无外部资源），可直接归档或邮件流转。
const htmlReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Iris OSINT Report - {{.Investigation.Name}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
.container { max-width: 1100px; margin: 0 auto; background: white; padding: 40px; border-radius: 8px; }
.header { background: linear-gradient(135deg, #1e3a8a, #3b82f6); color: white; padding: 30px; margin: -40px -40px 40px -40px; border-radius: 8px 8px 0 0; }
.header h1 { margin: 0; font-size: 2.2em; }
.certification { background: #f0f9ff; border: 2px solid #3b82f6; padding: 20px; border-radius: 8px; margin-bottom: 30px; }
.section { margin-bottom: 30px; }
.section h2 { color: #1e3a8a; border-bottom: 2px solid #3b82f6; padding-bottom: 10px; }
.evidence-item { background: #f8fafc; border-left: 4px solid #10b981; padding: 15px; margin: 10px 0; border-radius: 4px; }
.metadata { font-size: 0.9em; color: #6b7280; }
.footer { background: #f9fafb; padding: 20px; margin: 40px -40px -40px -40px; text-align: center; border-top: 1px solid #e5e7eb; }
table { width: 100%; border-collapse: collapse; }
td { padding: 8px; border-bottom: 1px solid #e5e7eb; }
td.k { font-weight: bold; width: 160px; }
pre { background: #f1f5f9; padding: 15px; border-radius: 4px; overflow-x: auto; white-space: pre-wrap; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Iris OSINT</h1>
    <p>Investigation Report</p>
  </div>

  <div class="certification">
    <h3>Iris Certification</h3>
    <p><strong>Level:</strong> {{.LevelUpper}}</p>
    {{if .ShowMetadata}}<p><strong>Generated at:</strong> {{.GeneratedAt}}</p>
    <p><strong>Platform:</strong> Iris OSINT v{{.Version}}</p>{{end}}
    <p><strong>Certification key:</strong> <code>{{.CertKey}}</code></p>
  </div>

  <div class="section">
    <h2>Investigation Summary</h2>
    <table>
      <tr><td class="k">Name</td><td>{{.Investigation.Name}}</td></tr>
      <tr><td class="k">Target type</td><td>{{.Investigation.TargetType}}</td></tr>
      <tr><td class="k">Target value</td><td>{{.Investigation.TargetValue}}</td></tr>
      <tr><td class="k">Status</td><td>{{.Investigation.Status}}</td></tr>
      <tr><td class="k">Priority</td><td>{{.Investigation.Priority}}</td></tr>
      <tr><td class="k">Created by</td><td>{{.Investigation.CreatedBy}}</td></tr>
      <tr><td class="k">Created at</td><td>{{fmtTime .Investigation.CreatedAt}}</td></tr>
    </table>
    {{if .Investigation.Description}}<p><strong>Description:</strong><br>{{.Investigation.Description}}</p>{{end}}
  </div>

  {{if .Evidence}}
  <div class="section">
    <h2>Collected Evidence ({{len .Evidence}})</h2>
    {{range $i, $ev := .Evidence}}
    <div class="evidence-item">
      <h4>{{inc $i}}. {{$ev.Title}}</h4>
      <div class="metadata">
        <strong>Type:</strong> {{$ev.Type}} |
        <strong>Source:</strong> {{orManual $ev.SourceTool}} |
        <strong>Confidence:</strong> {{$ev.ConfidenceScore}}% |
        <strong>Verified:</strong> {{$ev.Verified}} |
        <strong>Date:</strong> {{fmtTime $ev.CreatedAt}}
      </div>
      {{if $ev.Content}}<pre>{{clip $ev.Content}}</pre>{{end}}
    </div>
    {{end}}
  </div>
  {{end}}

  {{if .Runs}}
  <div class="section">
    <h2>OSINT Analysis Runs ({{len .Runs}})</h2>
    {{range $i, $run := .Runs}}
    <div class="evidence-item">
      <h4>Run {{inc $i}}: {{$run.TargetType}} analysis</h4>
      <p><strong>Target:</strong> {{$run.Target}}</p>
      <p><strong>Status:</strong> {{$run.Status}}</p>
      <p><strong>Execution time:</strong> {{$run.ExecutionTimeMs}}ms</p>
      {{with toolSummary $run}}<pre>{{.}}</pre>{{end}}
    </div>
    {{end}}
  </div>
  {{end}}

  <div class="footer">
    <p>This report was generated by <strong>Iris OSINT</strong>.</p>
    <p>Certification level <strong>{{.Level}}</strong> | Verification hash: {{.ShortHash}}</p>
  </div>
</div>
</body>
</html>
`

type htmlData struct {
	Investigation model.Investigation
	Evidence      []model.Evidence
	Runs          []model.AnalysisRun
	Level         model.CertificationLevel
	LevelUpper    string
	ShowMetadata  bool
	GeneratedAt   string
	Version       string
	CertKey       string
	ShortHash     string
}

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"fmtTime": func(ts int64) string {
		if ts <= 0 {
			return "-"
		}
		return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
	},
	"orManual": func(s string) string {
		if s == "" {
			return "Manual"
		}
		return s
	},
	"clip": clipContent,
	"toolSummary": func(run model.AnalysisRun) string {
		if len(run.Results) == 0 {
			return ""
		}
		raw, err := json.MarshalIndent(run.Results, "", "  ")
		if err != nil {
			return ""
		}
		return clipContent(string(raw))
	},
}).Parse(htmlReportTemplate))

// clipContent 截断长证据载荷，防止单条证据撑爆报告。
// 截断点回退到 rune 边界，避免切出半个多字节字符。
func clipContent(s string) string {
	const maxLen = 500
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}

// renderHTML 生成 HTML 报告。
func renderHTML(snap *Snapshot, level model.CertificationLevel, at time.Time, includeMetadata bool) ([]byte, error) {
	snapRaw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	snapSum := hash.Bytes(snapRaw)

	var buf bytes.Buffer
	err = htmlTmpl.Execute(&buf, htmlData{
		Investigation: snap.Investigation,
		Evidence:      snap.Evidence,
		Runs:          snap.Runs,
		Level:         level,
		LevelUpper:    upperLevel(level),
		ShowMetadata:  includeMetadata,
		GeneratedAt:   at.Format("2006-01-02 15:04:05"),
		Version:       platformVersion,
		CertKey:       CertificationKey(level, at.UnixMilli(), snapSum),
		ShortHash:     snapSum[:16],
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
