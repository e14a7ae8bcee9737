package adapters

import (
	"context"

	"webguide/internal/entity"
)

type BrowserService interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	IsReady() bool
}

type GuideService interface {
	Enter(ctx context.Context, instruction string) error
	Next(ctx context.Context) error
	StepCompleted(ctx context.Context) error
	ToggleOff(ctx context.Context) error
	Reset(ctx context.Context) error
	HandleNavigation(ctx context.Context, url string) error
	HandlePageEvent(ctx context.Context, ev entity.PageEvent) error
	State() entity.SessionState
	Session() *entity.GuideSession
	Close(ctx context.Context) error
}
