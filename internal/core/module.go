// Package core provides the module system the bridge is assembled from.
//
// A module is registered from an init() function and instantiated by ID when
// the configuration references it. Its lifecycle is:
//
//	New() → Configure() → Provision() → Validate() → Start() → Stop()
//
// Modules discover each other through the service registry carried by
// AppContext rather than through package-level globals.
package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// ModuleID is a dotted identifier such as "bot.telegram" or "gateway.http".
// The segment before the first dot is the module namespace.
type ModuleID string

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every module.
type Module interface {
	ModuleInfo() ModuleInfo
}

// Configurable is implemented by modules that accept YAML configuration.
// The node holds the raw YAML of the module's entry under "modules:".
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that build their collaborators from
// the AppContext. Services a module exposes are registered here.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that check their configuration.
// Validate must not have side effects.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that release resources on shutdown.
// Stop is called in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}
