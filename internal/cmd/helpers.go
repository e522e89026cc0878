package cmd

import (
	"context"
	"errors"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/config"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/lifecycle"
)

func requireController(ctx context.Context) (*lifecycle.Controller, error) {
	ctrl := ControllerFromContext(ctx)
	if ctrl == nil {
		return nil, errors.New("lifecycle controller not initialized: set instance.id in the config or DIVINEPIC_INSTANCE_ID")
	}
	return ctrl, nil
}

func requireConfig(ctx context.Context) (*config.Config, error) {
	cfg := ConfigFromContext(ctx)
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
