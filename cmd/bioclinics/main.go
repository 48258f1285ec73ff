// Command bioclinics is the counter-side client for the bioclinics API:
// sign in, search the catalog, ring up sales, and review the inventory
// ledger and the sales report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bioclinics/backoffice/internal/apiclient"
	"bioclinics/backoffice/internal/cart"
	"bioclinics/backoffice/internal/config"
	"bioclinics/backoffice/internal/session"
)

const usage = `usage: bioclinics <command> [flags]

commands:
  login     -u USER [-p PASSWORD]      sign in and keep the session
  logout                               forget the session
  whoami                               show the signed-in user
  products  [-q TEXT] [-page N]        list the catalog
  search                               type queries on stdin, results follow as you type
  sell      -item ID:QTY [-item ...]   build a cart and submit the sale
  entry     -product ID -lab ID -boxes N [-units N] -cost X [-reason TEXT]
  adjust    -product ID -qty N -reason TEXT
  ledger    [-from DATE -to DATE -product ID -laboratory ID -user ID -adjustments all|only|none]
  report    [-date DATE -page N -limit N]
  toggle    -product ID | -user ID     activate or deactivate
`

type app struct {
	cfg      config.ClientConfig
	api      *apiclient.Client
	sessions *session.Manager
	out      io.Writer
	errOut   io.Writer
	in       io.Reader
	closers  []func() error
}

func main() {
	config.LoadEnv()
	cfg := config.LoadClient()
	log.SetOutput(io.Discard)
	if os.Getenv("BIOCLINICS_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	code := a.run(ctx, os.Args[1:])
	a.close()
	os.Exit(code)
}

func newApp(ctx context.Context, cfg config.ClientConfig, in io.Reader, out, errOut io.Writer) *app {
	a := &app{cfg: cfg, in: in, out: out, errOut: errOut}

	var store session.Store = session.NewFileStore(cfg.SessionFile)
	if cfg.SessionRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.SessionRedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("[session] WARN: redis unavailable (%v), using %s", err, cfg.SessionFile)
			_ = client.Close()
		} else {
			host, _ := os.Hostname()
			store = session.NewRedisStore(client, host)
			a.closers = append(a.closers, client.Close)
		}
	}

	a.sessions = session.NewManager(store)
	a.sessions.Restore(ctx)
	a.api = apiclient.New(cfg.APIBaseURL,
		apiclient.WithTokenSource(a.sessions),
		apiclient.WithHTTPClient(httpClient(cfg)),
		apiclient.WithBreaker(3, 30*time.Second),
	)
	return a
}

func (a *app) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.errOut, usage)
		return 2
	}

	commands := map[string]func(context.Context, []string) error{
		"login":    a.login,
		"logout":   a.logout,
		"whoami":   a.whoami,
		"products": a.products,
		"search":   a.search,
		"sell":     a.sell,
		"entry":    a.entry,
		"adjust":   a.adjust,
		"ledger":   a.ledger,
		"report":   a.report,
		"toggle":   a.toggle,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(a.errOut, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err := cmd(ctx, args[1:]); err != nil {
		fmt.Fprintln(a.errOut, describe(err))
		return 1
	}
	return 0
}

// describe turns an error into the line shown to the cashier.
func describe(err error) string {
	var (
		validation *cart.ValidationError
		stock      *cart.InsufficientStockError
		apiErr     *apiclient.APIError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &stock):
		return fmt.Sprintf("Not enough stock for %s: %d available, %d in the cart.", stock.ProductName, stock.Available, stock.Requested)
	case errors.As(err, &apiErr):
		if apiErr.Status == 401 {
			return "Your session is no longer valid. Run `bioclinics login` again."
		}
		return apiErr.Message
	case errors.Is(err, apiclient.ErrUnavailable):
		return "The server cannot be reached right now. Try again in a moment."
	case errors.Is(err, errSignedOut):
		return "You are not signed in. Run `bioclinics login` first."
	}
	return err.Error()
}
