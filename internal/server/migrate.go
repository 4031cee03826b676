package server

import (
	"context"
	"fmt"

	"github.com/tokmz/spaces/pkg/chatlog"
	"github.com/tokmz/spaces/pkg/directory"
	"github.com/tokmz/spaces/pkg/logger"
	"github.com/tokmz/spaces/pkg/orm"
)

// MigrateResult 迁移结果
type MigrateResult struct {
	Tables int
	Users  int
	Spaces int
}

// Migrate 创建目录与聊天记录表，配置了种子文件时一并导入
func Migrate(ctx context.Context, s *Settings) (*MigrateResult, error) {
	if !s.Database.Enabled {
		return nil, fmt.Errorf("migrate: database.enabled is false")
	}
	log, err := logger.FromSettings(&s.Log)
	if err != nil {
		return nil, err
	}
	defer log.Sync()

	db, err := orm.New(&s.Database.ORM, log)
	if err != nil {
		return nil, err
	}
	defer orm.Close(db)

	store := directory.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate directory: %w", err)
	}
	if err := chatlog.NewGormSink(db).Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate chat: %w", err)
	}
	res := &MigrateResult{Tables: len(directory.Models()) + 1}

	if s.Directory.Seed != "" {
		seed, err := directory.LoadSeed(s.Directory.Seed)
		if err != nil {
			return nil, err
		}
		if err := store.Seed(ctx, seed); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		res.Users, res.Spaces = len(seed.Users), len(seed.Spaces)
	}
	log.Info("migration finished")
	return res, nil
}
