package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// startWatch 调用方持有 mu
func (c *Config) startWatch() {
	if c.watching {
		return
	}
	c.viper.OnConfigChange(func(fsnotify.Event) {
		c.mu.RLock()
		active := c.watching
		fns := append([]ChangeFunc(nil), c.onChange...)
		c.mu.RUnlock()
		if !active {
			return
		}
		for _, fn := range fns {
			c.notify(fn)
		}
	})
	c.viper.WatchConfig()
	c.watching = true
}

// Watch 开始监控配置文件，重复调用无副作用
func (c *Config) Watch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startWatch()
}

// StopWatch 停止触发回调。viper 不支持关闭底层 watcher，文件仍会被重新读取
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// OnChange 追加变更回调
func (c *Config) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *Config) notify(fn ChangeFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(fmt.Errorf("config: change callback panic: %v", r))
		}
	}()
	fn(c)
}

func (c *Config) fail(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()
	if onError == nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return
	}
	onError(err)
}
