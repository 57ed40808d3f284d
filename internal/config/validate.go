package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		return errors.New("paths.media_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Pipeline.InboxEnabled && strings.TrimSpace(c.Paths.InboxDir) == "" {
		return errors.New("paths.inbox_dir must be set when pipeline.inbox_enabled is true")
	}
	return nil
}

func (c *Config) validateProviders() error {
	for name, provider := range map[string]Provider{
		"providers.videointel": c.Providers.VideoIntel,
		"providers.speech":     c.Providers.Speech,
		"providers.genvideo":   c.Providers.GenVideo,
		"providers.vfx":        c.Providers.VFX,
	} {
		if strings.TrimSpace(provider.BaseURL) == "" {
			return fmt.Errorf("%s.base_url must be set", name)
		}
		if !strings.HasPrefix(provider.BaseURL, "http://") && !strings.HasPrefix(provider.BaseURL, "https://") {
			return fmt.Errorf("%s.base_url must be an http(s) URL", name)
		}
		if provider.TimeoutSeconds <= 0 {
			return fmt.Errorf("%s.timeout_seconds must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
