package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"elympics/internal/archive"
	"elympics/internal/config"
	"elympics/internal/logging"
	"elympics/internal/server"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "", "配置文件路径，留空使用默认配置")
	address := flag.String("addr", "", "服务器监听地址，覆盖配置文件")
	proto := flag.String("proto", "", "传输协议 tcp/ws/kcp，覆盖配置文件")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}
	if *address != "" {
		cfg.Server.Addr = *address
	}
	if *proto != "" {
		cfg.Server.Proto = *proto
	}
	if err := logging.Setup(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("初始化日志失败")
	}
	log := logging.Component("main")

	if cfg.Server.JWTSecret == config.DevJWTSecret {
		log.Warnf("正在使用开发密钥，生产环境请设置 %s", config.EnvJWTSecret)
	}

	var arch *archive.Archive
	if cfg.Server.ArchivePath != "" {
		arch, err = archive.Open(cfg.Server.ArchivePath)
		if err != nil {
			log.WithError(err).Fatal("打开回放归档失败")
		}
		defer func() {
			if err := arch.Close(); err != nil {
				log.WithError(err).Warn("关闭回放归档失败")
			}
		}()
	}

	// 创建服务器
	gameServer := server.NewGameServer(cfg.Server, arch)
	if err := gameServer.Listen(); err != nil {
		log.WithError(err).Fatal("服务器启动失败")
	}

	// 启动服务器（在新的 goroutine 中）
	go func() {
		if err := gameServer.Start(); err != nil {
			log.WithError(err).Error("服务器运行失败")
		}
	}()

	log.Info("========================================")
	log.Info("  Elympics 权威服务器")
	log.Info("========================================")
	log.WithFields(logrus.Fields{
		"addr":        gameServer.Addr().String(),
		"proto":       cfg.Server.Proto,
		"max_players": cfg.Server.MaxPlayers,
		"tps":         cfg.Server.TicksPerSecond,
	}).Info("服务器正在运行，按 Ctrl+C 停止")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	gameServer.Shutdown()
	log.Info("服务器已关闭，再见！")
}
