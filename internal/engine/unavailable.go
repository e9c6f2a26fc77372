package engine

import (
	"context"

	"github.com/convertd/convertd/internal/media"
)

// UnavailableEngine is selected when neither a CLI binary nor a
// hardware encoder can be found. Every operation fails the same
// deterministic way; nothing ever partially succeeds.
type UnavailableEngine struct{}

func NewUnavailableEngine() *UnavailableEngine { return &UnavailableEngine{} }

func errUnavailable() error {
	return media.NewError(media.KindInvalidOperation, "native module not found")
}

func (e *UnavailableEngine) Analyze(context.Context, string) (*MediaInfo, error) {
	return nil, errUnavailable()
}

func (e *UnavailableEngine) Start(context.Context, Invocation) (Handle, error) {
	return nil, errUnavailable()
}

func (e *UnavailableEngine) Capabilities() Capabilities {
	return Capabilities{Kind: KindUnavailable}
}
