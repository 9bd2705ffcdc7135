package report

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"iris-osint/internal/domain/model"

	"github.com/phpdave11/gofpdf"
)

// PDF 报告
//
// - 品牌页眉（每页）：蓝底白字 + 认证级别角标
// - 页脚：Page x/y（AliasNbPages）
// - PDF 属于二进制产物，不走内联预览，必须通过下载接口获取。

// renderPDF 生成 PDF 报告字节。
func renderPDF(snap *Snapshot, level model.CertificationLevel, at time.Time, includeMetadata bool) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 52, 14)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("Iris OSINT - Investigation Report", false)
	pdf.AliasNbPages("")

	fontFamily, utf8OK := initPDFUnicodeFont(pdf)

	// 页眉：每页重绘品牌条。
	pdf.SetHeaderFunc(func() {
		pageWidth, _ := pdf.GetPageSize()
		pdf.SetFillColor(30, 58, 138)
		pdf.Rect(0, 0, pageWidth, 45, "F")

		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont(fontFamily, "B", 20)
		pdf.SetXY(14, 10)
		pdf.CellFormat(0, 9, "Iris OSINT", "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 11)
		pdf.SetX(14)
		pdf.CellFormat(0, 7, "Investigation & Intelligence Platform", "", 1, "L", false, 0, "")

		pdf.SetFont(fontFamily, "", 9)
		pdf.SetXY(pageWidth-80, 10)
		pdf.CellFormat(66, 5, "Certification: "+upperLevel(level), "", 1, "R", false, 0, "")
		if includeMetadata {
			pdf.SetX(pageWidth - 80)
			pdf.CellFormat(66, 5, "Generated: "+at.Format("2006-01-02"), "", 1, "R", false, 0, "")
		}

		pdf.SetTextColor(0, 0, 0)
		pdf.SetY(52)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	inv := snap.Investigation

	sectionTitle(pdf, fontFamily, "1. Investigation Summary")
	kv(pdf, fontFamily, utf8OK, "Name", inv.Name)
	kv(pdf, fontFamily, utf8OK, "Target Type", inv.TargetType)
	kv(pdf, fontFamily, utf8OK, "Target Value", inv.TargetValue)
	kv(pdf, fontFamily, utf8OK, "Status", string(inv.Status))
	kv(pdf, fontFamily, utf8OK, "Priority", string(inv.Priority))
	kv(pdf, fontFamily, utf8OK, "Created By", inv.CreatedBy)
	kv(pdf, fontFamily, utf8OK, "Created At", fmtTime(inv.CreatedAt))
	kv(pdf, fontFamily, utf8OK, "Started At", fmtTime(inv.StartedAt))
	kv(pdf, fontFamily, utf8OK, "Completed At", fmtTime(inv.CompletedAt))
	if strings.TrimSpace(inv.Description) != "" {
		pdf.SetFont(fontFamily, "", 10)
		pdf.MultiCell(0, 5, "Description: "+safeText(inv.Description, utf8OK), "", "L", false)
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, fmt.Sprintf("2. Collected Evidence (%d)", len(snap.Evidence)))
	if len(snap.Evidence) == 0 {
		emptyNote(pdf, fontFamily)
	} else {
		for i, ev := range snap.Evidence {
			pdf.SetFont(fontFamily, "B", 10)
			pdf.SetTextColor(20, 20, 20)
			pdf.MultiCell(0, 5, fmt.Sprintf("%d. %s", i+1, safeText(ev.Title, utf8OK)), "", "L", false)
			pdf.SetFont(fontFamily, "", 9)
			pdf.SetTextColor(40, 40, 40)
			source := ev.SourceTool
			if source == "" {
				source = "Manual"
			}
			pdf.MultiCell(0, 4.5, fmt.Sprintf("type=%s | source=%s | confidence=%d%% | verified=%v",
				ev.Type, safeText(source, utf8OK), ev.ConfidenceScore, ev.Verified), "", "L", false)
			pdf.MultiCell(0, 4.5, fmt.Sprintf("collected: %s | hash: %s", fmtTime(ev.CreatedAt), shortHash(ev.RecordHash)), "", "L", false)
			if strings.TrimSpace(ev.Content) != "" {
				pdf.SetTextColor(70, 70, 70)
				pdf.MultiCell(0, 4.5, safeText(clipContent(ev.Content), utf8OK), "", "L", false)
			}
			pdf.Ln(1)
		}
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, fmt.Sprintf("3. OSINT Analysis Runs (%d)", len(snap.Runs)))
	if len(snap.Runs) == 0 {
		emptyNote(pdf, fontFamily)
	} else {
		for i, run := range snap.Runs {
			pdf.SetFont(fontFamily, "B", 10)
			pdf.SetTextColor(20, 20, 20)
			pdf.MultiCell(0, 5, fmt.Sprintf("Run %d: %s analysis of %s", i+1, run.TargetType, safeText(run.Target, utf8OK)), "", "L", false)
			pdf.SetFont(fontFamily, "", 9)
			pdf.SetTextColor(40, 40, 40)
			pdf.MultiCell(0, 4.5, fmt.Sprintf("status=%s | tools=%d | elapsed=%dms | started=%s",
				run.Status, len(run.Results), run.ExecutionTimeMs, fmtTime(run.StartedAt)), "", "L", false)
			for _, r := range run.Results {
				mark := "ok"
				if !r.Success {
					mark = "failed: " + r.Error
				}
				pdf.MultiCell(0, 4.5, fmt.Sprintf("  - %s (conf=%d) %s", safeText(r.Tool, utf8OK), r.Confidence, safeText(mark, utf8OK)), "", "L", false)
			}
			pdf.Ln(1)
		}
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, fmt.Sprintf("4. Audit Trail (%d)", len(snap.Audits)))
	if len(snap.Audits) == 0 {
		emptyNote(pdf, fontFamily)
	} else {
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(40, 40, 40)
		for _, a := range snap.Audits {
			pdf.MultiCell(0, 4.5, fmt.Sprintf("%s | %s/%s | %s | by %s",
				fmtTime(a.OccurredAt), a.EventType, a.Action, a.Status, safeText(a.Actor, utf8OK)), "", "L", false)
		}
		last := snap.Audits[len(snap.Audits)-1]
		pdf.Ln(1)
		kv(pdf, fontFamily, utf8OK, "Chain Last Hash", last.ChainHash)
	}

	pdf.Ln(3)
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 4.5, "This report was generated and certified by the Iris OSINT platform. For the full evidence chain, use the certified ZIP export (manifest.json + hashes.sha256).", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, fontFamily string, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, key string, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(36, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value, utf8OK), "", "L", false)
}

func emptyNote(pdf *gofpdf.Fpdf, fontFamily string) {
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 5, "(empty)", "", "L", false)
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

func shortHash(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	if s == "" {
		return "-"
	}
	return s
}

func safeText(s string, utf8OK bool) string {
	// gofpdf 的内置字体对 ASCII/Latin 表现最好；
	// 未加载 UTF-8 字体时把非 ASCII 字符替换为 '?'，确保 PDF 一定能生成。
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}

// initPDFUnicodeFont 尝试加载 UTF-8 字体（TrueType）。
//
// 规则：
// 1) 设置了环境变量 IRIS_PDF_FONT 时优先使用该文件路径。
// 2) 否则按常见系统字体路径探测（macOS/Windows/Linux）。
// 3) 加载失败回退到核心字体（Helvetica），由 safeText() 兜底替换非 ASCII 字符。
func initPDFUnicodeFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "unicode"
	candidates := []string{}

	if v := strings.TrimSpace(os.Getenv("IRIS_PDF_FONT")); v != "" {
		candidates = append(candidates, v)
	}

	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/System/Library/Fonts/Supplemental/AppleGothic.ttf",
			"/System/Library/Fonts/PingFang.ttc",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\arialuni.ttf`,
			`C:\Windows\Fonts\simhei.ttf`,
			`C:\Windows\Fonts\msyh.ttc`,
		)
	default:
		candidates = append(candidates,
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/noto/NotoSansCJK-Regular.ttc",
			"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
		)
	}

	for _, p := range candidates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}

		// 同时注册 B 样式，避免 SetFont(...,"B",...) 报错。
		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			pdf.ClearError()
		}
		return familyName, true
	}

	return "Helvetica", false
}
