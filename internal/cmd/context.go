package cmd

import (
	"context"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/config"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/lifecycle"
)

type contextKey string

const (
	configKey     contextKey = "config"
	loaderKey     contextKey = "loader"
	controllerKey contextKey = "controller"
)

// WithConfig adds the config to the context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// ConfigFromContext retrieves the config from context.
func ConfigFromContext(ctx context.Context) *config.Config {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok {
		return nil
	}
	return cfg
}

// WithLoader adds the config loader to the context.
func WithLoader(ctx context.Context, loader *config.Loader) context.Context {
	return context.WithValue(ctx, loaderKey, loader)
}

// LoaderFromContext retrieves the config loader from context.
func LoaderFromContext(ctx context.Context) *config.Loader {
	loader, ok := ctx.Value(loaderKey).(*config.Loader)
	if !ok {
		return nil
	}
	return loader
}

// WithController adds the lifecycle controller to the context.
func WithController(ctx context.Context, ctrl *lifecycle.Controller) context.Context {
	return context.WithValue(ctx, controllerKey, ctrl)
}

// ControllerFromContext retrieves the lifecycle controller from context.
func ControllerFromContext(ctx context.Context) *lifecycle.Controller {
	ctrl, ok := ctx.Value(controllerKey).(*lifecycle.Controller)
	if !ok {
		return nil
	}
	return ctrl
}
