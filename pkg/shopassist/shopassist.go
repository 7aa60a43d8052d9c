// Package shopassist provides the public API for embedding the shopping assistant.
// This is the stable API for external consumers.
package shopassist

import (
	"github.com/caviaarmode/shopping-assistant/internal/config"
	"github.com/caviaarmode/shopping-assistant/internal/runtime"
)

// App is the assembled assistant service.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Config is the service configuration.
type Config = config.Config

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New assembles an App from configuration.
// Example:
//
//	cfg, err := shopassist.LoadConfig("config.yaml")
//	app, err := shopassist.New(cfg, shopassist.WithLogger(logger))
//	err = app.Start(ctx)
var New = runtime.New

// LoadConfig reads a YAML file and SHOP_ environment overrides.
var LoadConfig = config.Load

var (
	WithLogger   = runtime.WithLogger
	WithProvider = runtime.WithProvider
	WithListener = runtime.WithListener
)
