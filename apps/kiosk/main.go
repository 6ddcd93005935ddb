// Command kiosk keeps a display in sync with the server-side theme. It is
// what runs next to the browser on the order terminals; the real UI listens
// on stdout for the apply/reload lines.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/laurinbuild/kantine/core/theme"
)

type loggingApplier struct {
	logger *log.Logger
}

func (a loggingApplier) Apply(name string) {
	a.logger.Printf("APPLY theme=%s", name)
}

func (a loggingApplier) Reload() {
	a.logger.Println("RELOAD")
}

func main() {
	var (
		baseURL      = flag.String("server", "http://localhost:8000", "The API base URL.")
		token        = flag.String("token", "", "An admin JWT; only needed to switch themes from this display.")
		pollInterval = flag.Duration("poll-interval", theme.DefaultPollInterval, "The polling fallback interval.")
		setTheme     = flag.String("set", "", "Switch the theme once and exit instead of syncing.")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "KIOSK : ", log.LstdFlags|log.Lmicroseconds)

	client := theme.NewClient(theme.ClientOptions{
		BaseURL:      *baseURL,
		Applier:      loggingApplier{logger: logger},
		Token:        *token,
		PollInterval: *pollInterval,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *setTheme != "" {
		setCtx, setCancel := context.WithTimeout(ctx, 10*time.Second)
		defer setCancel()
		st, err := client.SetLocal(setCtx, *setTheme)
		if err != nil {
			logger.Fatalf("switching theme: %v", err)
		}
		fmt.Printf("Theme set to %q (version %s)\n", st.Name, st.Version)
		return
	}

	logger.Printf("syncing with %s", *baseURL)
	client.Run(ctx)
	logger.Println("stopped")
}
