package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量覆盖项
const (
	EnvBackendURL = "CHATWIDGET_BACKEND_URL"
	EnvUserID     = "CHATWIDGET_USER_ID"
	EnvAPIKey     = "CHATWIDGET_API_KEY"
	EnvAgentIDs   = "CHATWIDGET_AGENT_IDS"
	EnvStore      = "CHATWIDGET_STORE_DRIVER"
	EnvLogLevel   = "CHATWIDGET_LOG_LEVEL"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Widget  WidgetConfig  `yaml:"widget"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Name           string   `yaml:"name"`
	AllowedOrigins []string `yaml:"allowedOrigins"` // 为空时允许任意站点嵌入
}

// BackendConfig 客服后端配置
type BackendConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// WidgetConfig 挂件行为配置
type WidgetConfig struct {
	Greeting          string        `yaml:"greeting"`
	InactivityTimeout time.Duration `yaml:"inactivityTimeout"`
	DefaultPlatform   string        `yaml:"defaultPlatform"`
	Embeds            []EmbedConfig `yaml:"embeds"`
}

// EmbedConfig 对应宿主页面上的一个挂件声明
type EmbedConfig struct {
	UserID  string `yaml:"userId"`
	APIKey  string `yaml:"apiKey"`
	AgentID string `yaml:"agentId"`
}

// Validate 校验挂件声明的必填属性
func (e EmbedConfig) Validate() error {
	var missing []string
	if e.UserID == "" {
		missing = append(missing, "userId")
	}
	if e.APIKey == "" {
		missing = append(missing, "apiKey")
	}
	if e.AgentID == "" {
		missing = append(missing, "agentId")
	}
	if len(missing) > 0 {
		return &ConfigError{Field: strings.Join(missing, ", "), Reason: "missing required embed attribute"}
	}
	return nil
}

// StoreConfig 历史记录存储配置
type StoreConfig struct {
	Driver     string `yaml:"driver"` // memory, file, redis, sqlite
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlitePath"`
	KeyPrefix  string `yaml:"keyPrefix"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// ConfigError 配置缺失或非法，挂件无法启动
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// LoadConfig 加载配置文件，并应用 .env 与环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// .env 不存在时仅使用系统环境变量
	_ = godotenv.Load()
	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 解析 YAML 配置内容
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv 使用 CHATWIDGET_* 环境变量覆盖配置
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvBackendURL); ok {
		c.Backend.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvStore); ok {
		c.Store.Driver = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}

	userID, hasUser := os.LookupEnv(EnvUserID)
	apiKey, hasKey := os.LookupEnv(EnvAPIKey)
	agentIDs, hasAgents := os.LookupEnv(EnvAgentIDs)
	if !hasUser && !hasKey && !hasAgents {
		return
	}

	// 环境变量声明的挂件替换配置文件中的声明
	var embeds []EmbedConfig
	for _, id := range strings.Split(agentIDs, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		embeds = append(embeds, EmbedConfig{UserID: userID, APIKey: apiKey, AgentID: id})
	}
	if len(embeds) == 0 {
		embeds = []EmbedConfig{{UserID: userID, APIKey: apiKey}}
	}
	c.Widget.Embeds = embeds
}

// ApplyDefaults 填充未配置的默认值
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.Name == "" {
		c.Server.Name = "widget-gateway"
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8000"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 60 * time.Second
	}
	if c.Widget.Greeting == "" {
		c.Widget.Greeting = "Hey there! How can I assist you today?"
	}
	if c.Widget.InactivityTimeout == 0 {
		c.Widget.InactivityTimeout = 5 * time.Minute
	}
	if c.Widget.DefaultPlatform == "" {
		c.Widget.DefaultPlatform = "zoho desk"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "./data/history"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "./data/history.db"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "chat_"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 校验配置；挂件声明为空时由调用方（网关按连接提供）决定是否需要
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return &ConfigError{Field: "backend.baseUrl", Reason: "cannot be empty"}
	}
	if c.Widget.InactivityTimeout < 0 {
		return &ConfigError{Field: "widget.inactivityTimeout", Reason: "must be positive"}
	}
	switch c.Store.Driver {
	case "memory", "file", "redis", "sqlite":
	default:
		return &ConfigError{Field: "store.driver", Reason: fmt.Sprintf("unsupported driver %q", c.Store.Driver)}
	}
	return nil
}

// ValidEmbeds 返回属性完整的挂件声明；不完整的声明连同错误一并返回
func (c *Config) ValidEmbeds() ([]EmbedConfig, []error) {
	var valid []EmbedConfig
	var errs []error
	for i, e := range c.Widget.Embeds {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("embed #%d: %w", i, err))
			continue
		}
		valid = append(valid, e)
	}
	return valid, errs
}
