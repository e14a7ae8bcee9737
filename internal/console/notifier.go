package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"webguide/internal/entity"
	"webguide/pkg/logg"
)

// Printer writes session notices to the terminal. It is separate from
// Interface so the guide service can depend on it without a cycle.
type Printer struct {
	logger *zap.Logger

	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(logger *zap.Logger) *Printer {
	return newPrinter(os.Stdout, logger)
}

func newPrinter(out io.Writer, logger *zap.Logger) *Printer {
	return &Printer{
		logger: logger.With(zap.String(logg.Layer, "Printer")),
		out:    out,
	}
}

func (p *Printer) Notify(_ context.Context, notice entity.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("Notice",
		zap.String("kind", string(notice.Kind)),
		zap.String(logg.SessionID, notice.SessionID.String()),
	)

	var b strings.Builder
	switch notice.Kind {
	case entity.NoticeSteps:
		b.WriteString("\n👉 Next steps:\n")
		for i, s := range notice.Steps {
			fmt.Fprintf(&b, "   %d. %s\n", i+1, s)
		}
		b.WriteString("   Do them in the browser; type \"next\" if the page doesn't notice.\n")
	case entity.NoticeAnswer:
		fmt.Fprintf(&b, "\n💬 %s\n", notice.Text)
	case entity.NoticeComplete:
		fmt.Fprintf(&b, "\n✅ %s\n", notice.Text)
	case entity.NoticeError:
		fmt.Fprintf(&b, "\n❌ %s\n", notice.Text)
	default:
		fmt.Fprintf(&b, "\nℹ️  %s\n", notice.Text)
	}

	_, _ = io.WriteString(p.out, b.String())
}
