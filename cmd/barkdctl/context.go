package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/machug/woofalytics-v2-sub000/internal/config"
	"github.com/machug/woofalytics-v2-sub000/internal/ipc"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{socketFlag: socketFlag, configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return strings.TrimSpace(*c.socketFlag)
	}
	cfg, err := c.ensureConfig()
	if err == nil && cfg.SocketPath != "" {
		return cfg.SocketPath
	}
	return "~/.local/share/woofalytics/barkd.sock"
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return fmt.Errorf("barkd is not running (socket %s): %w", socket, err)
	}
	defer client.Close()
	return fn(client)
}
