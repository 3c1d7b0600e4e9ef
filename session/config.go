package session

import (
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/aptpod/mdrouter-go/errors"
	"github.com/aptpod/mdrouter-go/log"
	"github.com/aptpod/mdrouter-go/message"
)

// DefaultConfigは、デフォルトのセッション設定を返却します。
func DefaultConfig() Config {
	return Config{
		ChannelGroups:           nil,
		ServiceGroups:           nil,
		EnhancedItemRecovery:    true,
		RequestTimeout:          defaultRequestTimeout,
		LoginRequestTimeout:     defaultLoginRequestTimeout,
		DirectoryRequestTimeout: defaultDirectoryRequestTimeout,
		ChannelAbandonTimeout:   defaultChannelAbandonTimeout,
		Reconnect:               true,
		ReconnectBaseInterval:   defaultReconnectBaseInterval,
		ReconnectMaxInterval:    defaultReconnectMaxInterval,

		Logger:              log.NewNop(),
		Clock:               clock.New(),
		LoginRequest:        nil,
		LoginEventHandler:   nopEventHandler{},
		ChannelEventHandler: nopChannelEventHandler{},
		MetricsRegisterer:   nil,
	}
}

// Configは、コンシューマーセッションの設定です。
type Config struct {
	// コネクショングループ
	//
	// セッションは全グループの全チャネルへ接続します。
	ChannelGroups []ChannelGroupConfig `yaml:"channelGroups"`

	// サービスグループ（サービスリスト）
	ServiceGroups []ServiceGroupConfig `yaml:"serviceGroups,omitempty"`

	// 拡張アイテム回復
	//
	// trueの場合、チャネルがダウンした時点でアイテムを別チャネルへ移します。
	// falseの場合、アイテムはチャネルが再接続するか放棄されるまでそのチャネルに留まります。
	EnhancedItemRecovery bool `yaml:"enhancedItemRecovery"`

	// アイテムリクエストのタイムアウト
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// ログインリクエストのタイムアウト
	//
	// いずれのチャネルもこの時間内にログインできない場合、接続は失敗します。
	LoginRequestTimeout time.Duration `yaml:"loginRequestTimeout"`

	// ソースディレクトリリクエストのタイムアウト
	//
	// タイムアウトしたチャネルは切断し再接続します。
	DirectoryRequestTimeout time.Duration `yaml:"directoryRequestTimeout"`

	// ダウンしたチャネルを放棄するまでの時間
	//
	// 0の場合は放棄しません。
	ChannelAbandonTimeout time.Duration `yaml:"channelAbandonTimeout"`

	// 切断されたチャネルへ再接続するかどうか
	Reconnect bool `yaml:"reconnect"`

	// 再接続の基準間隔
	ReconnectBaseInterval time.Duration `yaml:"reconnectBaseInterval"`

	// 再接続の最大基準間隔
	ReconnectMaxInterval time.Duration `yaml:"reconnectMaxInterval"`

	// ロガー
	Logger log.Logger `yaml:"-"`

	// タイマーに使用するクロック
	Clock clock.Clock `yaml:"-"`

	// 各チャネルへ送信するログインリクエスト
	LoginRequest *message.RequestMsg `yaml:"-"`

	// 論理ログインストリームのイベントハンドラ
	LoginEventHandler EventHandler `yaml:"-"`

	// チャネルの状態が変化したときのイベントハンドラ
	ChannelEventHandler ChannelEventHandler `yaml:"-"`

	// メトリクスの登録先
	//
	// nilの場合、メトリクスは登録しません。
	MetricsRegisterer prometheus.Registerer `yaml:"-"`
}

// ChannelGroupConfigは、コネクショングループの設定です。
type ChannelGroupConfig struct {
	Name     string          `yaml:"name"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfigは、チャネルの設定です。
type ChannelConfig struct {
	// チャネル名
	Name string `yaml:"name"`

	// ホスト:ポート（e.g. 127.0.0.1:14002）
	Address string `yaml:"address"`

	GuaranteedOutputBuffers int `yaml:"guaranteedOutputBuffers,omitempty"`
	NumInputBuffers         int `yaml:"numInputBuffers,omitempty"`
	HighWaterMark           int `yaml:"highWaterMark,omitempty"`
	SysSendBufSize          int `yaml:"sysSendBufSize,omitempty"`
	SysRecvBufSize          int `yaml:"sysRecvBufSize,omitempty"`
}

// ServiceGroupConfigは、サービスグループ（サービスリスト）の設定です。
//
// Servicesの順序が優先順位です。
type ServiceGroupConfig struct {
	Name     string   `yaml:"name"`
	Services []string `yaml:"services"`
}

func (c *ChannelConfig) setDefaults() {
	if c.GuaranteedOutputBuffers == 0 {
		c.GuaranteedOutputBuffers = defaultGuaranteedOutputBuffers
	}
	if c.NumInputBuffers == 0 {
		c.NumInputBuffers = defaultNumInputBuffers
	}
}

// Validateは、設定を検証します。
func (c *Config) Validate() error {
	if len(c.ChannelGroups) == 0 {
		return errors.Errorf("no channel group: %w", errors.ErrInvalidConfig)
	}
	channelNames := make(map[string]struct{})
	for _, g := range c.ChannelGroups {
		if len(g.Channels) == 0 {
			return errors.Errorf("channel group %q has no channel: %w", g.Name, errors.ErrInvalidConfig)
		}
		for _, ch := range g.Channels {
			if ch.Name == "" {
				return errors.Errorf("empty channel name in group %q: %w", g.Name, errors.ErrInvalidConfig)
			}
			if _, ok := channelNames[ch.Name]; ok {
				return errors.Errorf("duplicate channel name %q: %w", ch.Name, errors.ErrInvalidConfig)
			}
			channelNames[ch.Name] = struct{}{}
		}
	}

	groupNames := make(map[string]struct{})
	for _, g := range c.ServiceGroups {
		if g.Name == "" {
			return errors.Errorf("empty service list name: %w", errors.ErrInvalidServiceGroup)
		}
		if _, ok := groupNames[g.Name]; ok {
			return errors.Errorf("duplicate service list name %q: %w", g.Name, errors.ErrInvalidServiceGroup)
		}
		groupNames[g.Name] = struct{}{}
		if len(g.Services) == 0 {
			return errors.Errorf("service list %q has no service: %w", g.Name, errors.ErrInvalidServiceGroup)
		}
		for _, s := range g.Services {
			if s == "" {
				return errors.Errorf("empty service name in service list %q: %w", g.Name, errors.ErrInvalidServiceGroup)
			}
		}
	}

	if c.RequestTimeout < 0 || c.LoginRequestTimeout < 0 || c.DirectoryRequestTimeout < 0 || c.ChannelAbandonTimeout < 0 {
		return errors.Errorf("negative timeout: %w", errors.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.LoginEventHandler == nil {
		c.LoginEventHandler = nopEventHandler{}
	}
	if c.ChannelEventHandler == nil {
		c.ChannelEventHandler = nopChannelEventHandler{}
	}
	if c.LoginRequest == nil {
		c.LoginRequest = message.NewLoginRequest(defaultUserName())
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.LoginRequestTimeout == 0 {
		c.LoginRequestTimeout = defaultLoginRequestTimeout
	}
	if c.DirectoryRequestTimeout == 0 {
		c.DirectoryRequestTimeout = defaultDirectoryRequestTimeout
	}
	if c.ReconnectBaseInterval == 0 {
		c.ReconnectBaseInterval = defaultReconnectBaseInterval
	}
	if c.ReconnectMaxInterval == 0 {
		c.ReconnectMaxInterval = defaultReconnectMaxInterval
	}
	for i := range c.ChannelGroups {
		for j := range c.ChannelGroups[i].Channels {
			c.ChannelGroups[i].Channels[j].setDefaults()
		}
	}
}

func defaultUserName() string {
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "user"
}

// LoadConfigは、YAMLを読み込み設定を返却します。
//
// YAMLに含まれない項目はDefaultConfigの値を使用します。
func LoadConfig(r io.Reader) (*Config, error) {
	conf := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil {
		return nil, errors.Errorf("failed to parse config yaml: %v: %w", err, errors.ErrInvalidConfig)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// LoadConfigFileは、YAMLファイルを読み込み設定を返却します。
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}
