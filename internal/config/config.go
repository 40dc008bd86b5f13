// Package config 服务器与客户端的 YAML 配置
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"elympics/pkg/tick"
)

// EnvJWTSecret 覆盖 server.jwt_secret 的环境变量
const EnvJWTSecret = "ELYMPICS_JWT_SECRET"

// DevJWTSecret 开发环境默认密钥，生产环境应设置环境变量
const DevJWTSecret = "elympics-dev-secret-change-in-production"

type Config struct {
	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
	Log    Log    `yaml:"log"`
}

type Server struct {
	Addr                string  `yaml:"addr"`
	Proto               string  `yaml:"proto"`
	MaxPlayers          int     `yaml:"max_players"`
	TicksPerSecond      int     `yaml:"ticks_per_second"`
	FullSnapshotEvery   int     `yaml:"full_snapshot_every"`
	InputBufferCapacity int     `yaml:"input_buffer_capacity"`
	InputRatePerSecond  float64 `yaml:"input_rate_per_second"`
	InputBurst          int     `yaml:"input_burst"`
	ReplayDir           string  `yaml:"replay_dir"`
	ArchivePath         string  `yaml:"archive_path"`
	JWTSecret           string  `yaml:"jwt_secret"`
	// MatchTicks 对局时长，0 表示直到所有玩家离开
	MatchTicks int64 `yaml:"match_ticks"`
}

type Client struct {
	InputLagTicks           int           `yaml:"input_lag_ticks"`
	PredictionLimitTicks    int           `yaml:"prediction_limit_ticks"`
	ForceJumpThresholdTicks int           `yaml:"force_jump_threshold_ticks"`
	BufferCapacity          int           `yaml:"buffer_capacity"`
	RttWindow               int           `yaml:"rtt_window"`
	LcoWindow               int           `yaml:"lco_window"`
	MinSyncSamples          int           `yaml:"min_sync_samples"`
	PingInterval            time.Duration `yaml:"ping_interval"`
	// RedundantInputs 每个上行包重复携带的最近输入帧数
	RedundantInputs int `yaml:"redundant_inputs"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default 开发环境默认配置
func Default() Config {
	return Config{
		Server: Server{
			Addr:                ":8080",
			Proto:               "tcp",
			MaxPlayers:          4,
			TicksPerSecond:      30,
			FullSnapshotEvery:   30,
			InputBufferCapacity: 64,
			InputRatePerSecond:  120,
			InputBurst:          60,
			ReplayDir:           "replays",
			ArchivePath:         "replays/archive.db",
			JWTSecret:           DevJWTSecret,
			MatchTicks:          30 * 60 * 3,
		},
		Client: Client{
			InputLagTicks:           2,
			PredictionLimitTicks:    30,
			ForceJumpThresholdTicks: 10,
			BufferCapacity:          64,
			RttWindow:               20,
			LcoWindow:               20,
			MinSyncSamples:          3,
			PingInterval:            250 * time.Millisecond,
			RedundantInputs:         3,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 读取配置文件，缺失字段使用默认值；path 为空时只使用默认值
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查配置
func (c Config) Validate() error {
	var errs []error
	s, cl := c.Server, c.Client
	switch s.Proto {
	case "tcp", "kcp", "ws":
	default:
		errs = append(errs, fmt.Errorf("server.proto 不支持: %q", s.Proto))
	}
	if s.MaxPlayers < 1 {
		errs = append(errs, errors.New("server.max_players 至少为 1"))
	}
	if s.FullSnapshotEvery < 1 {
		errs = append(errs, errors.New("server.full_snapshot_every 至少为 1"))
	}
	if s.InputBufferCapacity < 2 {
		errs = append(errs, errors.New("server.input_buffer_capacity 至少为 2"))
	}
	if s.InputRatePerSecond <= 0 || s.InputBurst < 1 {
		errs = append(errs, errors.New("server.input_rate_per_second 与 input_burst 必须为正"))
	}
	if s.JWTSecret == "" {
		errs = append(errs, errors.New("server.jwt_secret 不能为空"))
	}
	if s.MatchTicks < 0 {
		errs = append(errs, errors.New("server.match_ticks 不能为负"))
	}
	if cl.BufferCapacity < 2 {
		errs = append(errs, errors.New("client.buffer_capacity 至少为 2"))
	}
	if cl.PredictionLimitTicks >= cl.BufferCapacity {
		errs = append(errs, errors.New("client.prediction_limit_ticks 必须小于 buffer_capacity"))
	}
	if cl.RttWindow < 1 || cl.LcoWindow < 1 {
		errs = append(errs, errors.New("client.rtt_window 与 lco_window 至少为 1"))
	}
	if cl.PingInterval <= 0 {
		errs = append(errs, errors.New("client.ping_interval 必须为正"))
	}
	if cl.RedundantInputs < 1 {
		errs = append(errs, errors.New("client.redundant_inputs 至少为 1"))
	}
	if err := c.Tick().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Tick 帧号选择参数
func (c Config) Tick() tick.Config {
	return tick.Config{
		TicksPerSecond:          c.Server.TicksPerSecond,
		InputLagTicks:           c.Client.InputLagTicks,
		PredictionLimitTicks:    c.Client.PredictionLimitTicks,
		ForceJumpThresholdTicks: c.Client.ForceJumpThresholdTicks,
		MinSyncSamples:          c.Client.MinSyncSamples,
	}
}
