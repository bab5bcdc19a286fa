package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 可從 "54s" 這類字串解析的時長
type Duration time.Duration

// UnmarshalYAML 支援 Go 時長字串與整數（奈秒）兩種寫法
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("無效的時長 %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("無效的時長類型: %T", raw)
	}
	return nil
}

// Std 轉回標準庫時長
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		ReadTimeout     Duration `yaml:"read_timeout"`
		WriteTimeout    Duration `yaml:"write_timeout"`
		IdleTimeout     Duration `yaml:"idle_timeout"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`

	WebSocket struct {
		PingInterval   Duration `yaml:"ping_interval"`
		PongWait       Duration `yaml:"pong_wait"`
		WriteWait      Duration `yaml:"write_wait"`
		SendBuffer     int      `yaml:"send_buffer"`
		MaxMessageSize int64    `yaml:"max_message_size"`
	} `yaml:"websocket"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
//
// 心跳時間沿用 54s/60s 的搭配：54 秒避開常見的 60 秒代理超時，
// 留 6 秒餘量給網絡傳輸與處理。
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = Duration(15 * time.Second)
	cfg.Server.WriteTimeout = Duration(15 * time.Second)
	cfg.Server.IdleTimeout = Duration(60 * time.Second)
	cfg.Server.ShutdownTimeout = Duration(30 * time.Second)
	cfg.Auth.Secret = "bylexa"
	cfg.WebSocket.PingInterval = Duration(54 * time.Second)
	cfg.WebSocket.PongWait = Duration(60 * time.Second)
	cfg.WebSocket.WriteWait = Duration(10 * time.Second)
	cfg.WebSocket.SendBuffer = 256
	cfg.WebSocket.MaxMessageSize = 64 * 1024
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig 載入配置
//
// path 為空時使用預設值；配置檔中省略的欄位保留預設。
// 憑證密鑰支援環境變數覆蓋（生產環境常用）。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}

	return cfg, nil
}
