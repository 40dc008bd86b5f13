package main

import (
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"elympics/internal/config"
	"elympics/internal/server"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，用于读取签名密钥")
	player := flag.Int("player", 0, "玩家编号")
	match := flag.String("match", "", "对局 ID，留空表示任意对局")
	ttl := flag.Duration("ttl", server.SessionTTL, "有效期")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}

	token, err := server.NewTokenIssuer(cfg.Server.JWTSecret).Generate(int32(*player), *match, *ttl)
	if err != nil {
		logrus.WithError(err).Fatal("生成 token 失败")
	}
	fmt.Println(token)
}
