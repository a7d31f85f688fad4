package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"eventhub/internal/auth"
	"eventhub/internal/events"
	"eventhub/internal/gateway"
	"eventhub/internal/journal"
	"eventhub/internal/notifications"
	"eventhub/internal/session"
	"eventhub/internal/shared/apperr"
	"eventhub/internal/shared/config"
	"eventhub/internal/shared/database"
	"eventhub/internal/workflow"
	"eventhub/pkg/cache"
	"eventhub/pkg/idempotency"
	"eventhub/pkg/logger"

	"github.com/joho/godotenv"
)

const usage = `usage: bookctl <command> [flags]

commands:
  book     log in and run one booking attempt end to end
  events   list bookable events
  history  show reservations and payment history
  watch    follow attempt transitions on the Kafka topic
`

// options are the flags shared by every command
type options struct {
	email    string
	password string
	eventID  int64
	quantity int
	amount   float64
	currency string
	method   string
	search   string
	city     string
	json     bool
}

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd := args[0]

	opts, err := parseFlags(cmd, args[1:], stderr)
	if err != nil {
		return 2
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "book":
		return runBook(ctx, cfg, opts, stdout, stderr)
	case "events":
		return runEvents(ctx, cfg, opts, stdout, stderr)
	case "history":
		return runHistory(ctx, cfg, opts, stdout, stderr)
	case "watch":
		return runWatch(ctx, cfg, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func parseFlags(cmd string, args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.email, "email", os.Getenv("BOOKCTL_EMAIL"), "account email")
	fs.StringVar(&opts.password, "password", os.Getenv("BOOKCTL_PASSWORD"), "account password")
	fs.Int64Var(&opts.eventID, "event", 0, "event id to book")
	fs.IntVar(&opts.quantity, "quantity", 1, "number of tickets")
	fs.Float64Var(&opts.amount, "amount", 0, "payment amount, defaults to the reservation total")
	fs.StringVar(&opts.currency, "currency", "", "payment currency")
	fs.StringVar(&opts.method, "method", "", "payment method")
	fs.StringVar(&opts.search, "search", "", "events: free text search")
	fs.StringVar(&opts.city, "city", "", "events: city filter")
	fs.BoolVar(&opts.json, "json", false, "print JSON instead of text")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// newClient builds a workflow client the same way the gateway does, with an
// in-process session store. Attempts are journaled to Postgres when
// JOURNAL_DB_ENABLED is set so history shows earlier runs.
func newClient(cfg *config.Config) (*workflow.Client, func()) {
	cleanup := func() {}
	shared := gateway.Shared{
		Config:    cfg,
		Sessions:  session.MemoryFactory(),
		Cache:     cache.NewMemoryService(),
		Journal:   journal.NewMemoryRepository(),
		Publisher: notifications.NewNoopPublisher(),
		Logger:    logger.GetDefault(),
	}
	if publisher, err := notifications.NewPublisher(cfg.Notify); err == nil {
		shared.Publisher = publisher
	} else {
		logger.GetDefault().Warn("transition publishing disabled", "error", err)
	}
	if cfg.Database.Enabled {
		if db, err := database.InitDB(cfg); err == nil {
			shared.Journal = journal.NewRepository(db.GetPostgreSQL())
			cleanup = func() { db.Close() }
		} else {
			logger.GetDefault().Warn("attempt journal not persisted", "error", err)
		}
	}
	publisher := shared.Publisher
	return gateway.NewWorkflowFactory(shared)(idempotency.NewSessionID()), func() {
		publisher.Close()
		cleanup()
	}
}

func login(ctx context.Context, client *workflow.Client, opts *options) error {
	if opts.email == "" || opts.password == "" {
		return apperr.New(apperr.MissingParameter, "login", "-email and -password are required.")
	}
	_, err := client.Authenticate(ctx, &auth.LoginRequest{Email: opts.email, Password: opts.password})
	return err
}

func runBook(ctx context.Context, cfg *config.Config, opts *options, stdout, stderr io.Writer) int {
	client, closeClient := newClient(cfg)
	defer closeClient()
	if err := login(ctx, client, opts); err != nil {
		printError(stderr, err)
		return 1
	}

	attempt, err := client.Book(ctx, workflow.BookInput{
		EventID:  opts.eventID,
		Quantity: opts.quantity,
		Amount:   opts.amount,
		Currency: opts.currency,
		Method:   opts.method,
	})
	snap := attempt.Snapshot()
	if opts.json {
		writeJSON(stdout, snap)
	} else {
		printSnapshot(stdout, snap)
	}
	if err != nil {
		printError(stderr, err)
	}
	// The capture is never re-sent from here: the payment may have gone through
	if snap.State == workflow.StateCaptureRequested {
		fmt.Fprintf(stderr, "capture outcome unknown (key %s); check `bookctl history` before booking again\n", snap.CaptureKey)
	}
	return exitCode(snap)
}

func runEvents(ctx context.Context, cfg *config.Config, opts *options, stdout, stderr io.Writer) int {
	client, closeClient := newClient(cfg)
	defer closeClient()
	page, err := client.ListEvents(ctx, events.EventListQuery{Size: 20, SearchTerm: opts.search, City: opts.city})
	if err != nil {
		printError(stderr, err)
		return 1
	}
	if opts.json {
		writeJSON(stdout, page)
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCITY\tSTART\tPRICE\tAVAILABLE\tSTATUS")
	for _, e := range page.Content {
		available := "-"
		if e.AvailableCapacity != nil {
			available = fmt.Sprint(*e.AvailableCapacity)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\t%s\n", e.ID, e.Title, e.City, e.StartDate, e.Price, available, e.Status)
	}
	w.Flush()
	fmt.Fprintf(stdout, "%d of %d events\n", len(page.Content), page.TotalElements)
	return 0
}

func runHistory(ctx context.Context, cfg *config.Config, opts *options, stdout, stderr io.Writer) int {
	client, closeClient := newClient(cfg)
	defer closeClient()
	if err := login(ctx, client, opts); err != nil {
		printError(stderr, err)
		return 1
	}

	reservations, err := client.Reservations(ctx)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	history, err := client.History(ctx)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	attempts, err := client.Attempts(ctx, 20)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	if opts.json {
		writeJSON(stdout, map[string]any{"attempts": attempts, "reservations": reservations, "payments": history})
		return 0
	}

	if len(attempts) > 0 {
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ATTEMPT\tEVENT\tQTY\tSTATE\tERROR")
		for _, a := range attempts {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", a.ID, a.EventID, a.Quantity, a.State, a.LastError)
		}
		w.Flush()
		fmt.Fprintln(stdout)
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESERVATION\tEVENT\tQTY\tTOTAL\tSTATUS")
	for _, r := range reservations {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%s\n", r.Ref(), r.EventID, r.Quantity, r.TotalPrice, r.Status)
	}
	w.Flush()

	fmt.Fprintln(stdout)
	w = tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tID\tRESERVATION\tAMOUNT\tSTATUS")
	for _, t := range history.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f %s\t%s\n", t.Type, t.ID, t.ReservationID, t.Amount, t.Currency, t.Status)
	}
	w.Flush()
	fmt.Fprintf(stdout, "completed: %d  pending: %d  total paid: %.2f\n", history.Completed, history.Pending, history.TotalPaid)
	return 0
}

func runWatch(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) int {
	wc := notifications.DefaultConsumerConfig()
	if len(cfg.Notify.KafkaBrokers) > 0 {
		wc.Brokers = cfg.Notify.KafkaBrokers
	}
	if cfg.Notify.KafkaTopic != "" {
		wc.Topics = []string{cfg.Notify.KafkaTopic}
	}
	wc.GroupID = wc.GroupID + "-" + idempotency.NewSessionID()

	watcher, err := notifications.NewTransitionWatcher(wc, func(_ context.Context, e *notifications.TransitionEvent) error {
		line := fmt.Sprintf("%s  %s  %s -> %s", e.OccurredAt.Format("15:04:05"), e.AttemptID, e.From, e.To)
		if e.Message != "" {
			line += "  " + e.Message
		}
		fmt.Fprintln(stdout, line)
		return nil
	})
	if err != nil {
		printError(stderr, err)
		return 1
	}

	fmt.Fprintf(stderr, "watching %s on %s\n", strings.Join(wc.Topics, ","), strings.Join(wc.Brokers, ","))
	if err := watcher.Run(ctx, 1); err != nil && !errors.Is(err, context.Canceled) {
		printError(stderr, err)
		return 1
	}
	return 0
}

func printSnapshot(w io.Writer, snap workflow.Snapshot) {
	fmt.Fprintf(w, "attempt %s: %s\n", snap.ID, snap.State)
	for _, t := range snap.Transitions {
		fmt.Fprintf(w, "  %s  %s -> %s", t.At.Format("15:04:05.000"), t.From, t.To)
		if t.Detail != "" {
			fmt.Fprintf(w, "  (%s)", t.Detail)
		}
		fmt.Fprintln(w)
	}
	if snap.ReservationID != "" {
		fmt.Fprintf(w, "reservation: %s %s\n", snap.ReservationID, snap.ReservationStatus)
	}
	if snap.PaymentID != "" {
		fmt.Fprintf(w, "payment: %s %s %.2f %s\n", snap.PaymentID, snap.PaymentStatus, snap.Amount, snap.Currency)
	}
	if snap.Message != "" {
		fmt.Fprintln(w, snap.Message)
	}
}

func printError(w io.Writer, err error) {
	if e, ok := apperr.As(err); ok {
		fmt.Fprintf(w, "error [%s]: %s\n", e.Kind, e.UserMessage())
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// exitCode is 1 for any attempt that did not reach Paid
func exitCode(snap workflow.Snapshot) int {
	if snap.State == workflow.StatePaid {
		return 0
	}
	return 1
}
