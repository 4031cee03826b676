package logger

import "fmt"

// Settings 配置文件中的日志段，级别与格式使用字符串
type Settings struct {
	Level      string        `mapstructure:"level"`  // debug / info / warn / error
	Format     string        `mapstructure:"format"` // json / console
	File       string        `mapstructure:"file"`
	Rotate     *RotateConfig `mapstructure:"rotate"`
	Caller     bool          `mapstructure:"caller"`
	Stacktrace bool          `mapstructure:"stacktrace"`
}

// Config 转换为 Config，未配置文件输出时写控制台
func (s *Settings) Config() (*Config, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	format := JSONFormat
	if s.Format != "" {
		format = Format(s.Format)
		if !format.IsValid() {
			return nil, fmt.Errorf("logger: unknown format %q", s.Format)
		}
	}
	return &Config{
		Level:            level,
		Format:           format,
		Console:          s.File == "" && s.Rotate == nil,
		File:             s.File,
		Rotate:           s.Rotate,
		EnableCaller:     s.Caller,
		EnableStacktrace: s.Stacktrace,
	}, nil
}

// FromSettings 按 Settings 创建 Logger
func FromSettings(s *Settings) (Logger, error) {
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}
