package jsonl

import (
	"context"
	"fmt"

	"github.com/creastat/descriptorstore/database"
	"github.com/creastat/descriptorstore/logging"
)

// initializer manages one or more files that together form an entity.
type initializer struct {
	files []*file
	// field is nil for the retrievable entity.
	field database.Field
	log   *logging.Logger
}

func (i *initializer) Initialize(ctx context.Context) error {
	if i.field != nil {
		if _, err := i.field.Prototype(); err != nil {
			return fmt.Errorf("field %q: %w", i.field.Name(), err)
		}
	}
	for _, f := range i.files {
		if err := f.create(); err != nil {
			i.log.BackendError(ctx, f.entity(), "initialize", err)
			return fmt.Errorf("create %s: %w", f.path, err)
		}
	}
	return nil
}

func (i *initializer) Deinitialize(ctx context.Context) error {
	for _, f := range i.files {
		if err := f.remove(); err != nil {
			i.log.BackendError(ctx, f.entity(), "deinitialize", err)
			return fmt.Errorf("remove %s: %w", f.path, err)
		}
	}
	return nil
}

func (i *initializer) IsInitialized(ctx context.Context) bool {
	for _, f := range i.files {
		if !f.exists() {
			return false
		}
	}
	return true
}

func (i *initializer) Truncate(ctx context.Context) error {
	for _, f := range i.files {
		if err := f.truncate(); err != nil {
			i.log.BackendError(ctx, f.entity(), "truncate", err)
			return fmt.Errorf("truncate %s: %w", f.path, err)
		}
	}
	return nil
}
