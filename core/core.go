// Package core has the audit pipeline: collection, cross-source
// deduplication, task emission and the read-side views over runs.
package core

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
)

// ExecutorFunc defines the function signature for executing a command.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, env *Env) error

// Env carries the collaborators shared by every executor.
type Env struct {
	Store  contract.Store
	Logger hclog.Logger
	Now    func() time.Time
}

// NewEnv creates an Env using the wall clock.
func NewEnv(st contract.Store, log hclog.Logger) *Env {
	if log == nil {
		log = logger.Discard()
	}
	return &Env{Store: st, Logger: log, Now: func() time.Time { return time.Now().UTC() }}
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}
