package main

import (
	"os"

	"github.com/spf13/cobra"

	"webguide/internal/bootstrap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webguide",
		Short: "Point at the next thing to click instead of clicking it",
		Long: `webguide opens a browser, takes an instruction in plain language and draws
highlight boxes over the elements you should interact with next. It never
acts on the page itself.

Configuration comes from the environment or a .env file (AI_API_KEY,
AI_PROVIDER, BROWSER_START_URL, ...).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(*cobra.Command, []string) error {
			app := bootstrap.NewApp()
			if err := app.Err(); err != nil {
				return err
			}

			app.Run()

			return nil
		},
	}

	rootCmd.AddCommand(newResolveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
