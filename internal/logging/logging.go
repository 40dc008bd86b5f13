// Package logging 配置全局 logrus 日志
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"elympics/internal/config"
)

// Setup 按配置设置日志级别与格式
func Setup(cfg config.Log) error {
	return setup(logrus.StandardLogger(), cfg, os.Stderr)
}

func setup(l *logrus.Logger, cfg config.Log, out io.Writer) error {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
		level = parsed
	}

	switch cfg.Format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("log.format 不支持: %q", cfg.Format)
	}
	l.SetLevel(level)
	l.SetOutput(out)
	return nil
}

// Component 带组件名的日志入口
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
