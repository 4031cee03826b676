package logger

// Config 日志配置
type Config struct {
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // 日志格式（json/console，默认 json）

	Console bool          // 是否输出到控制台
	File    string        // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig // 轮转配置（nil 则不轮转）

	Sampling *SamplingConfig // 采样配置（nil 则不采样）

	EnableCaller     bool // 是否记录调用位置
	EnableStacktrace bool // 是否记录堆栈（Error 及以上）
}

// RotateConfig 文件轮转配置
type RotateConfig struct {
	Filename   string `mapstructure:"filename"`    // 日志文件路径
	MaxSize    int    `mapstructure:"max_size"`    // 单文件最大大小（MB，默认 100MB）
	MaxAge     int    `mapstructure:"max_age"`     // 文件保留天数（默认 30 天）
	MaxBackups int    `mapstructure:"max_backups"` // 最多保留文件数（默认 10 个）
	Compress   bool   `mapstructure:"compress"`    // 是否压缩
}

// SamplingConfig 采样配置
type SamplingConfig struct {
	Initial    int // 每秒前 N 条日志必定记录
	Thereafter int // 之后每 M 条记录 1 条
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
}

func (r *RotateConfig) setDefaults() {
	if r.MaxSize == 0 {
		r.MaxSize = 100
	}
	if r.MaxAge == 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = 10
	}
}

func (s *SamplingConfig) setDefaults() {
	if s.Initial == 0 {
		s.Initial = 100
	}
	if s.Thereafter == 0 {
		s.Thereafter = 100
	}
}
