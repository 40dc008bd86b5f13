package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"elympics/internal/client"
	"elympics/internal/config"
	"elympics/internal/logging"
	"elympics/internal/server"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，留空使用默认配置")
	address := flag.String("addr", "127.0.0.1:8080", "服务器地址")
	proto := flag.String("proto", "", "传输协议 tcp/ws/kcp，覆盖配置文件")
	token := flag.String("token", "", "对局 token，留空时用配置中的密钥自行签发")
	player := flag.Int("player", 0, "自行签发 token 时使用的玩家编号")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "机器人随机种子")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}
	if *proto != "" {
		cfg.Server.Proto = *proto
	}
	if err := logging.Setup(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("初始化日志失败")
	}
	log := logging.Component("main")

	if *token == "" {
		*token, err = server.NewTokenIssuer(cfg.Server.JWTSecret).Generate(int32(*player), "", 0)
		if err != nil {
			log.WithError(err).Fatal("生成 token 失败")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc := client.NewNetworkClient(*address, cfg.Server.Proto, *token, cfg.Client.PingInterval)
	defer nc.Close()

	join, err := nc.Connect(ctx)
	if err != nil {
		log.WithError(err).Fatal("加入对局失败")
	}

	bot := client.NewBot(*seed)
	sim, err := client.NewSimulation(cfg.Client, int(join.Tps), join.PlayerID, bot.Command, nc)
	if err != nil {
		log.WithError(err).Fatal("创建模拟失败")
	}
	bot.Watch(sim.Game(), join.PlayerID)

	frame := time.Second / time.Duration(join.Tps)
	end, err := client.Run(ctx, nc, sim, frame)
	st := sim.Stats()
	fields := logrus.Fields{
		"frames":          st.Frames,
		"mispredictions":  st.Mispredictions,
		"reconciliations": st.Reconciliations,
		"forced_jumps":    st.ForcedJumps,
	}
	switch {
	case end != nil:
		fields["reason"] = end.Reason
		fields["last_tick"] = end.LastTick
		log.WithFields(fields).Info("对局结束")
	case err != nil && ctx.Err() == nil:
		log.WithFields(fields).WithError(err).Error("连接中断")
	default:
		log.WithFields(fields).Info("已退出")
	}
}
