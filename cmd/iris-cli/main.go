package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"iris-osint/internal/adapters/blob"
	sqliteadapter "iris-osint/internal/adapters/store/sqlite"
	"iris-osint/internal/app"
	"iris-osint/internal/domain/model"
	"iris-osint/internal/platform/logging"
	"iris-osint/internal/services/analysis"
	"iris-osint/internal/services/analyzer"
	"iris-osint/internal/services/auditverify"
	"iris-osint/internal/services/exportbundle"
	"iris-osint/internal/services/investigation"
	"iris-osint/internal/services/permission"
	"iris-osint/internal/services/report"
	"iris-osint/internal/services/sweeper"
	"iris-osint/internal/services/webapp"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 是一级命令路由。
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	case "analyze":
		return runAnalyze(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "sweep":
		return runSweep(ctx, args[1:])
	case "verify-audit":
		return runVerifyAudit(ctx, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// platform 打包一次 CLI 调用所需的全部服务。
type platform struct {
	cfg            app.Config
	store          *sqliteadapter.Store
	perms          *permission.Engine
	investigations *investigation.Service
	analysis       *analysis.Orchestrator
	reports        *report.Pipeline
	exporter       *exportbundle.Exporter
	sweeper        *sweeper.Sweeper
	close          func()
}

// openPlatform 打开数据库并装配全部服务。调用方负责 close。
func openPlatform(ctx context.Context, cfg app.Config) (*platform, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqliteadapter.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := sqliteadapter.NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	sink, err := blob.NewSink(cfg.ReportRoot)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open artifact sink: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	store := sqliteadapter.NewStore(db)
	perms := permission.NewEngine(store)

	return &platform{
		cfg:            cfg,
		store:          store,
		perms:          perms,
		investigations: investigation.NewService(store, perms, log),
		analysis:       analysis.NewOrchestrator(store, analyzer.Default(), perms, log),
		reports:        report.NewPipeline(store, sink, perms, log),
		exporter:       exportbundle.NewExporter(store, sink, perms, log),
		sweeper:        sweeper.NewSweeper(store, log),
		close:          func() { db.Close() },
	}, nil
}

// loadConfigFlags 注册所有子命令共享的配置 flag，返回解析后的最终配置。
func loadConfigFlags(fs *flag.FlagSet) func() (app.Config, error) {
	defaults := app.DefaultConfig()
	configPath := fs.String("config", "", "yaml config file (optional)")
	dbPath := fs.String("db", "", "sqlite database path (overrides config)")
	reportRoot := fs.String("artifacts", "", "report artifact root (overrides config)")

	return func() (app.Config, error) {
		cfg, err := app.LoadConfig(*configPath)
		if err != nil {
			return cfg, err
		}
		if strings.TrimSpace(*dbPath) != "" {
			cfg.DBPath = *dbPath
		}
		if strings.TrimSpace(*reportRoot) != "" {
			cfg.ReportRoot = *reportRoot
		}
		if cfg.DBPath == "" {
			cfg.DBPath = defaults.DBPath
		}
		return cfg, nil
	}
}

// actorFlags 注册身份 flag。CLI 直接信任 --actor/--owner，与 API 头语义一致。
func actorFlags(fs *flag.FlagSet) func() model.Actor {
	actorID := fs.String("actor", "system", "acting operator id")
	asOwner := fs.Bool("owner", false, "act with platform owner role")
	return func() model.Actor {
		role := model.RoleInvestigator
		if *asOwner {
			role = model.RoleOwner
		}
		return model.Actor{ID: strings.TrimSpace(*actorID), Role: role}
	}
}

// runMigrate 执行 SQLite 迁移，确保数据库结构完整。
func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	fmt.Printf("migrations applied successfully: db=%s\n", cfg.DBPath)
	return nil
}

// runServe 启动 HTTP API，收到 SIGINT/SIGTERM 后优雅退出。
func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	listen := fs.String("listen", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.ListenAddr = *listen
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	srv := webapp.NewServer(p.investigations, p.perms, p.analysis, p.reports, p.exporter, log)

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(serveCtx, cfg.ListenAddr)
}

// runAnalyze 执行一次 OSINT 分析，结果打印为 JSON。
func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	getActor := actorFlags(fs)
	target := fs.String("target", "", "analysis target (required)")
	targetType := fs.String("type", "", "target type: discord|email|ip|username|domain|url|phone (required)")
	tools := fs.String("tools", "", "comma separated tool names (optional)")
	investigationID := fs.String("investigation-id", "", "attach run to an investigation (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	req := analysis.Request{
		Target:          *target,
		Type:            model.TargetType(strings.TrimSpace(*targetType)),
		InvestigationID: *investigationID,
	}
	if strings.TrimSpace(*tools) != "" {
		req.Tools = strings.Split(*tools, ",")
	}

	summary, err := p.analysis.Analyze(ctx, getActor(), req)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// runReport 是二级命令路由：report generate / report show。
func runReport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printReportUsage()
		return nil
	}

	switch args[0] {
	case "generate":
		return runReportGenerate(ctx, args[1:])
	case "show":
		return runReportShow(ctx, args[1:])
	default:
		printReportUsage()
		return fmt.Errorf("unknown report command: %s", args[0])
	}
}

// runReportGenerate 生成一份报告并打印登记行。
func runReportGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report generate", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	getActor := actorFlags(fs)
	investigationID := fs.String("investigation-id", "", "investigation id (required)")
	format := fs.String("format", "json", "report format: json|html|pdf")
	level := fs.String("level", "basic", "certification level: basic|advanced|forensic")
	includeEvidence := fs.Bool("include-evidence", true, "embed the evidence list in the report")
	includeMetadata := fs.Bool("include-metadata", true, "embed generation metadata in the report")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*investigationID) == "" {
		return fmt.Errorf("--investigation-id is required")
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	rep, err := p.reports.Generate(ctx, getActor(), report.Request{
		InvestigationID:    *investigationID,
		Format:             model.ReportFormat(strings.TrimSpace(*format)),
		CertificationLevel: model.CertificationLevel(strings.TrimSpace(*level)),
		IncludeEvidence:    includeEvidence,
		IncludeMetadata:    includeMetadata,
	})
	if err != nil {
		return err
	}

	fmt.Println("report generated")
	fmt.Printf("report_id=%s format=%s level=%s\n", rep.ID, rep.Format, rep.CertificationLevel)
	fmt.Printf("certification_key=%s\n", rep.CertificationKey)
	fmt.Printf("sha256=%s blob_key=%s\n", rep.SHA256, rep.BlobKey)
	return nil
}

// runReportShow 打印报告元数据，--content 时附带 json/html 产物内容。
func runReportShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report show", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	getActor := actorFlags(fs)
	reportID := fs.String("report-id", "", "report id (required)")
	includeContent := fs.Bool("content", false, "print inline report content (json/html only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*reportID) == "" {
		return fmt.Errorf("--report-id is required")
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	if *includeContent {
		rep, content, err := p.reports.Preview(ctx, getActor(), *reportID)
		if err != nil {
			return err
		}
		if err := printJSON(rep); err != nil {
			return err
		}
		fmt.Println(string(content))
		return nil
	}

	rep, err := p.reports.Get(ctx, getActor(), *reportID)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

// runExport 生成认证导出包（ZIP）。
func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	getActor := actorFlags(fs)
	investigationID := fs.String("investigation-id", "", "investigation id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*investigationID) == "" {
		return fmt.Errorf("--investigation-id is required")
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	rep, err := p.exporter.Export(ctx, getActor(), *investigationID)
	if err != nil {
		return err
	}

	fmt.Println("export bundle generated")
	fmt.Printf("report_id=%s blob_key=%s\n", rep.ID, rep.BlobKey)
	fmt.Printf("sha256=%s certification_key=%s\n", rep.SHA256, rep.CertificationKey)
	return nil
}

// runSweep 列出滞留在 running 状态的分析运行（只上报，不改写）。
func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	olderThan := fs.Duration("older-than", 0, "stuck threshold (default from config sweep_age)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}
	age := *olderThan
	if age <= 0 {
		age = cfg.SweepAge
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	stuck, err := p.sweeper.Find(ctx, age)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		fmt.Printf("no stuck runs older than %s\n", age)
		return nil
	}
	fmt.Printf("stuck runs: %d (older than %s)\n", len(stuck), age)
	return printJSON(stuck)
}

// runVerifyAudit 对调查审计链做强校验。
func runVerifyAudit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify-audit", flag.ContinueOnError)
	loadCfg := loadConfigFlags(fs)
	investigationID := fs.String("investigation-id", "", "investigation id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*investigationID) == "" {
		return fmt.Errorf("--investigation-id is required")
	}
	cfg, err := loadCfg()
	if err != nil {
		return err
	}

	p, err := openPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	logs, err := p.store.ListAuditLogs(ctx, *investigationID, 0)
	if err != nil {
		return err
	}
	res := auditverify.VerifyAuditLogs(logs)
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("audit chain verification failed: %d/%d entries bad", res.Failed, res.Total)
	}
	fmt.Printf("audit chain ok: %d entries, last_hash=%s\n", res.Total, res.LastChainHash)
	return nil
}

// printUsage 输出一级命令帮助。
func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  iris-cli migrate [--config iris.yaml] [--db data/iris.db]")
	fmt.Println("  iris-cli serve [--config iris.yaml] [--listen 127.0.0.1:8787] [--db data/iris.db] [--artifacts data/artifacts]")
	fmt.Println("  iris-cli analyze --target VALUE --type email|ip|domain|url|username|discord|phone [--tools a,b] [--investigation-id INV_ID] [--actor ID] [--owner]")
	fmt.Println("  iris-cli report generate --investigation-id INV_ID [--format json|html|pdf] [--level basic|advanced|forensic] [--actor ID]")
	fmt.Println("  iris-cli report show --report-id REPORT_ID [--content] [--actor ID]")
	fmt.Println("  iris-cli export --investigation-id INV_ID [--actor ID]")
	fmt.Println("  iris-cli sweep [--older-than 30m]")
	fmt.Println("  iris-cli verify-audit --investigation-id INV_ID")
}

// printReportUsage 输出 report 子命令帮助。
func printReportUsage() {
	fmt.Println("Usage:")
	fmt.Println("  iris-cli report generate --investigation-id INV_ID [--format json|html|pdf] [--level basic|advanced|forensic]")
	fmt.Println("  iris-cli report show --report-id REPORT_ID [--content]")
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
