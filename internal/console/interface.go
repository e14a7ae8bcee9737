package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"webguide/internal/config"
	"webguide/internal/usecase"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
)

var errExit = errors.New("exit")

type Interface struct {
	config     *config.Config
	logger     *zap.Logger
	usecase    *usecase.Service
	shutdowner fx.Shutdowner
	in         io.Reader
	out        io.Writer
	ctx        context.Context
	cancel     context.CancelFunc
}

type Params struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Usecase    *usecase.Service
	Shutdowner fx.Shutdowner
}

func NewInterface(params Params) *Interface {
	ctx, cancel := context.WithCancel(context.Background())

	return &Interface{
		config:     params.Config,
		logger:     params.Logger.With(zap.String(logg.Layer, "Console")),
		usecase:    params.Usecase,
		shutdowner: params.Shutdowner,
		in:         os.Stdin,
		out:        os.Stdout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start reads commands until stdin closes or the user exits, then asks the
// application to shut down.
func (i *Interface) Start() error {
	i.printBanner()
	i.printHelp()

	scanner := bufio.NewScanner(i.in)

	for {
		if i.ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(i.out, "\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := i.handleCommand(input); err != nil {
			if errors.Is(err, errExit) {
				break
			}

			i.logger.Error("Command error", zap.Error(err))
			fmt.Fprintf(i.out, "Error: %s\n", describe(err))
		}
	}

	if i.shutdowner != nil {
		return i.shutdowner.Shutdown()
	}

	return nil
}

func (i *Interface) Stop() error {
	if i.ctx.Err() != nil {
		return nil
	}

	i.logger.Info("Stopping console interface...")
	i.cancel()

	fmt.Fprintln(i.out, "👋 Goodbye!")

	return nil
}

func (i *Interface) handleCommand(input string) error {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	guide := i.usecase.Guide

	switch strings.ToLower(cmd) {
	case "help", "h":
		i.printHelp()
		return nil
	case "exit", "quit", "q":
		fmt.Fprintln(i.out, "Shutting down...")
		return errExit
	case "guide", "g":
		return guide.Enter(i.ctx, arg)
	case "next", "n":
		return guide.Next(i.ctx)
	case "done", "d":
		return guide.StepCompleted(i.ctx)
	case "off":
		return guide.ToggleOff(i.ctx)
	case "reset":
		return guide.Reset(i.ctx)
	case "open", "o":
		if arg == "" {
			return apperr.InvalidReqError("handleCommand", "url", errors.New("usage: open <url>"))
		}
		return i.usecase.Browser.Navigate(i.ctx, normalizeURL(arg))
	case "status", "s":
		i.printStatus()
		return nil
	default:
		return guide.Enter(i.ctx, input)
	}
}

func (i *Interface) printStatus() {
	url, err := i.usecase.Browser.CurrentURL(i.ctx)
	if err != nil {
		url = "-"
	}

	fmt.Fprintf(i.out, "Browser ready: %v\nPage: %s\nGuide: %s\n",
		i.usecase.Browser.IsReady(), url, i.usecase.Guide.State())

	if s := i.usecase.Guide.Session(); s != nil {
		fmt.Fprintf(i.out, "Instruction: %s\nStep: %d\n", s.InstructionText, s.StepIndex)
	}
}

func (i *Interface) printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║                 🧭  Web Guide  🌐                          ║
║                                                           ║
║   Tell it what you want to do; it shows you where to go   ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Fprintln(i.out, banner)
}

func (i *Interface) printHelp() {
	help := `
Available commands:
  guide, g <text> - Start guidance for an instruction
  next, n         - Ask for the next steps
  done, d         - Mark the shown step as completed
  off             - Turn guidance off
  reset           - Forget the current session
  open, o <url>   - Open a page in the browser
  status, s       - Show browser and guide state
  help, h         - Show this help message
  exit, quit, q   - Exit the application

Anything else is taken as an instruction, for example:
    - How do I launch a new instance?
    - Where can I change my billing address?
`
	fmt.Fprintln(i.out, help)
}

func normalizeURL(raw string) string {
	if strings.Contains(raw, "://") || strings.HasPrefix(raw, "about:") {
		return raw
	}
	return "https://" + raw
}

// describe turns the error taxonomy into something a person can act on.
func describe(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument:
		return "please type an instruction or a valid command"
	case apperr.CodeBrowserNotReady:
		return "the browser is not ready yet"
	case apperr.CodeBusy:
		return "still working on the previous request"
	case apperr.CodeInvalidState:
		return "no guidance session is active; type an instruction first"
	case apperr.CodeUnavailable:
		return fmt.Sprintf("service unavailable: %v", err)
	}
	return err.Error()
}
