// Package config 在 viper 之上提供带锁的配置读取：
// 配置文件、环境变量与默认值三层合并，并可在文件变更时回调
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// ChangeFunc 配置文件变更回调，参数为已重新读取的配置
type ChangeFunc func(*Config)

// Option 配置选项
type Option func(*Config)

// location 配置文件位置，file 优先于 name + paths 搜索
type location struct {
	file  string
	name  string
	typ   string
	paths []string
}

func (l location) apply(v *viper.Viper) {
	if l.file != "" {
		v.SetConfigFile(l.file)
		return
	}
	if l.name != "" {
		v.SetConfigName(l.name)
	}
	if l.typ != "" {
		v.SetConfigType(l.typ)
	}
	for _, p := range l.paths {
		v.AddConfigPath(p)
	}
}

// WithFile 指定配置文件路径
func WithFile(path string) Option {
	return func(c *Config) { c.loc.file = path }
}

// WithSearch 按名称与类型在 paths 中查找配置文件
func WithSearch(name, typ string, paths ...string) Option {
	return func(c *Config) {
		c.loc.name, c.loc.typ, c.loc.paths = name, typ, paths
	}
}

// WithOptional 配置文件缺失时只使用默认值与环境变量
func WithOptional() Option {
	return func(c *Config) { c.optional = true }
}

// WithDefaults 注册默认值。环境变量只对注册过的键生效，嵌套键使用点号
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		for k, v := range defaults {
			c.viper.SetDefault(k, v)
		}
	}
}

// WithEnv 读取 PREFIX_SECTION_KEY 形式的环境变量
func WithEnv(prefix string) Option {
	return func(c *Config) {
		c.viper.SetEnvPrefix(prefix)
		c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		c.viper.AutomaticEnv()
	}
}

// WithWatch 加载成功后监控配置文件，变更时依次调用 fns
func WithWatch(fns ...ChangeFunc) Option {
	return func(c *Config) {
		c.watch = true
		c.onChange = append(c.onChange, fns...)
	}
}

// WithErrorHandler 接收回调 panic 等异步错误，默认写 stderr
func WithErrorHandler(fn func(error)) Option {
	return func(c *Config) { c.onError = fn }
}

// Config 配置管理器
type Config struct {
	mu    sync.RWMutex
	viper *viper.Viper

	loc      location
	optional bool

	watch    bool
	watching bool
	onChange []ChangeFunc
	onError  func(error)
}

// New 创建配置管理器，需调用 Load 读取
func New(opts ...Option) *Config {
	c := &Config{viper: viper.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 读取配置文件
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loc.apply(c.viper)
	if err := c.viper.ReadInConfig(); err != nil {
		if !c.missing(err) {
			return ErrConfigReadFailed.WithError(err)
		}
		if !c.optional {
			return ErrConfigNotFound.WithError(err)
		}
		return nil
	}
	if c.watch {
		c.startWatch()
	}
	return nil
}

// missing 判断是否为文件不存在。按名称查找与按路径读取返回的错误类型不同
func (c *Config) missing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || (c.loc.file != "" && errors.Is(err, fs.ErrNotExist))
}

// GetString 读取字符串值
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetString(key)
}

// IsSet 键是否存在于任一层
func (c *Config) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.IsSet(key)
}

// Set 覆盖配置值，优先级最高
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// ConfigFileUsed 实际读取的文件，未读取时为空
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.ConfigFileUsed()
}

// Unmarshal 解码全部配置到 out
func (c *Config) Unmarshal(out any) error {
	return c.UnmarshalKey("", out)
}

// UnmarshalKey 解码 key 下的配置到 out，key 为空时解码全部
//
// 先取 AllSettings 再解码，嵌套键同样应用环境变量
func (c *Config) UnmarshalKey(key string, out any) error {
	c.mu.RLock()
	settings := c.viper.AllSettings()
	c.mu.RUnlock()

	if key != "" {
		settings = subtree(settings, key)
	}
	v := viper.New()
	if err := v.MergeConfigMap(settings); err != nil {
		return fmt.Errorf("config: unmarshal %q: %w", key, err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("config: unmarshal %q: %w", key, err)
	}
	return nil
}

// subtree 按点号路径取出嵌套的配置段，不存在时为空
func subtree(m map[string]any, key string) map[string]any {
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		next, ok := m[part].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		m = next
	}
	return m
}

// Close 停止变更回调
func (c *Config) Close() {
	c.StopWatch()
}
