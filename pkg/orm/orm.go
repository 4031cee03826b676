package orm

import (
	"fmt"

	"github.com/tokmz/spaces/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// New 创建 GORM 数据库实例，SQL 日志写入 log
func New(cfg *Config, log logger.Logger) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	dialector, err := getDialector(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt: cfg.PrepareStmt,
		Logger:      NewGormLogger(log, cfg.LogLevel, cfg.SlowThreshold),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: cfg.TablePrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orm: connect %s: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("orm: get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if cfg.Replicas != nil {
		if err := setupReplicas(db, cfg); err != nil {
			return nil, fmt.Errorf("orm: setup replicas: %w", err)
		}
	}

	if cfg.Tracing {
		if err := db.Use(NewTracingPlugin()); err != nil {
			return nil, fmt.Errorf("orm: register tracing: %w", err)
		}
	}

	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func getDialector(dbType DBType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case MySQL:
		return mysql.Open(dsn), nil
	case PostgreSQL:
		return postgres.Open(dsn), nil
	case SQLite:
		return sqlite.Open(dsn), nil
	case SQLServer:
		return sqlserver.Open(dsn), nil
	default:
		return nil, fmt.Errorf("orm: unsupported database type %q", dbType)
	}
}

// setupReplicas 注册 dbresolver，查询走从库，写入走主库
func setupReplicas(db *gorm.DB, cfg *Config) error {
	rc := cfg.Replicas
	replicas := make([]gorm.Dialector, 0, len(rc.Sources))
	for _, dsn := range rc.Sources {
		d, err := getDialector(cfg.Type, dsn)
		if err != nil {
			return err
		}
		replicas = append(replicas, d)
	}

	var policy dbresolver.Policy = dbresolver.RandomPolicy{}
	if rc.Policy == "round_robin" {
		policy = dbresolver.RoundRobinPolicy()
	}

	resolver := dbresolver.Register(dbresolver.Config{Replicas: replicas, Policy: policy})
	if rc.MaxIdleConns > 0 {
		resolver.SetMaxIdleConns(rc.MaxIdleConns)
	}
	if rc.MaxOpenConns > 0 {
		resolver.SetMaxOpenConns(rc.MaxOpenConns)
	}
	return db.Use(resolver)
}
