package ports

import (
	"context"

	"webguide/internal/entity"
)

type BrowserManager interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (*entity.Snapshot, error)
	CurrentURL(ctx context.Context) (string, error)
	Viewport(ctx context.Context) (entity.ViewportContext, error)
	Events() <-chan entity.PageEvent
	IsReady() bool
}

// InstructionSource is the external model. Its output is untrusted; the
// returned proposal has already been through boundary validation.
type InstructionSource interface {
	Propose(ctx context.Context, req entity.InstructionRequest) (*entity.Proposal, error)
}

type Notifier interface {
	Notify(ctx context.Context, notice entity.Notice)
}
