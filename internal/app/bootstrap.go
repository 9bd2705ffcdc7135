package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 存放应用级配置。
type Config struct {
	DBPath     string `yaml:"db_path"`     // SQLite 数据库路径
	ReportRoot string `yaml:"report_root"` // 报告/导出产物根目录（blob sink）
	ListenAddr string `yaml:"listen_addr"` // API 监听地址
	LogLevel   string `yaml:"log_level"`   // debug|info|warn|error
	LogFormat  string `yaml:"log_format"`  // json|text

	// SweepAge 是孤儿分析运行的判定时长：
	// running 状态超过该时长且无完成写入的运行被 sweep 命令列为孤儿。
	SweepAge time.Duration `yaml:"sweep_age"`
}

// DefaultConfig 返回本地开发环境的默认配置。
func DefaultConfig() Config {
	return Config{
		DBPath:     "data/iris.db",
		ReportRoot: "data/artifacts",
		ListenAddr: "127.0.0.1:8787",
		LogLevel:   "info",
		LogFormat:  "text",
		SweepAge:   30 * time.Minute,
	}
}

// LoadConfig 在默认配置之上叠加 YAML 配置文件。
// path 为空时直接返回默认配置；文件缺字段保持默认值。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SweepAge <= 0 {
		cfg.SweepAge = 30 * time.Minute
	}
	return cfg, nil
}
