// Command cartsync drives the cart and booking flows from a terminal against
// the same record store and shared tier the web client uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/draft"
	"github.com/Travelintrips/travelpage-sub004/internal/identity"
	"github.com/Travelintrips/travelpage-sub004/internal/retry"
	"github.com/Travelintrips/travelpage-sub004/internal/wizard"
)

func main() {
	if err := run(); err != nil {
		if kind := apperr.Kind(err); kind != "internal" {
			fmt.Fprintf(os.Stderr, "error[%s]: %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("no command specified")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "list":
		return runList(ctx, args)
	case "import":
		return runImport(ctx, args)
	case "remove":
		return runRemove(ctx, args)
	case "clear":
		return runClear(ctx, args)
	case "prices":
		return runPrices(ctx, args)
	case "book":
		return runBook(ctx, args)
	case "sync":
		return runSync(ctx, args)
	case "token":
		return runToken(args)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `cartsync - cart and booking draft synchronization

Usage:
  cartsync <command> [flags]

Commands:
  list      Show the cart and its total
  import    Import unpaid bookings into the cart
  remove    Remove one cart item by id
  clear     Empty the cart
  prices    Show the price table of an item type
  book      Fill and submit a booking form
  sync      Reconcile the cart until interrupted
  token     Issue a development sign-in token

Every command except token accepts --config and --token. The token may also
be passed in CARTSYNC_TOKEN.
`)
}

// commonFlags registers the flags shared by commands that talk to the
// record store.
type commonFlags struct {
	config string
	token  string
}

func newFlagSet(name string, common *commonFlags) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.BoolP("help", "h", false, "show help")
	if common != nil {
		flagSet.StringVar(&common.config, "config", "", "path to a YAML config file")
		flagSet.StringVar(&common.token, "token", os.Getenv("CARTSYNC_TOKEN"), "sign-in token")
	}
	return flagSet
}

// parse returns errHelp when -h was given so callers can exit quietly.
func parse(flagSet *pflag.FlagSet, args []string) error {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

var errHelp = errors.New("help requested")

// signedIn builds the app, signs in and loads the cart under the foreground
// watchdog.
func signedIn(ctx context.Context, common commonFlags) (*app, error) {
	a, err := newApp(ctx, common.config)
	if err != nil {
		return nil, err
	}

	if err := a.signIn(ctx, common.token); err != nil {
		a.close()
		return nil, err
	}

	if err := a.refresh.Foreground(ctx, a.cart.Load); err != nil {
		a.close()
		return nil, fmt.Errorf("cart.Load: %w", err)
	}

	return a, nil
}

func runList(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := newFlagSet("list", &common)
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}

	a, err := signedIn(ctx, common)
	if err != nil {
		return err
	}
	defer a.close()

	printCart(a)
	return nil
}

func runImport(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := newFlagSet("import", &common)
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}

	a, err := signedIn(ctx, common)
	if err != nil {
		return err
	}
	defer a.close()

	added, err := a.cart.ImportUnpaid(ctx)
	if err != nil {
		return fmt.Errorf("cart.ImportUnpaid: %w", err)
	}

	fmt.Printf("imported %d booking(s)\n", added)
	printCart(a)
	return nil
}

func runRemove(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := newFlagSet("remove", &common)
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("remove takes exactly one item id")
	}

	id, err := uuid.Parse(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("uuid.Parse: %w", err)
	}

	a, err := signedIn(ctx, common)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cart.Remove(ctx, id); err != nil {
		return fmt.Errorf("cart.Remove: %w", err)
	}

	printCart(a)
	return nil
}

func runClear(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := newFlagSet("clear", &common)
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}

	a, err := signedIn(ctx, common)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cart.Clear(ctx); err != nil {
		return fmt.Errorf("cart.Clear: %w", err)
	}

	fmt.Println("cart cleared")
	return nil
}

func runPrices(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := newFlagSet("prices", &common)
	itemType := flagSet.String("type", string(domain.ItemTypeBaggage), "item type")
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}

	t, err := domain.ParseItemType(*itemType)
	if err != nil {
		return fmt.Errorf("domain.ParseItemType: %w", err)
	}

	a, err := newApp(ctx, common.config)
	if err != nil {
		return err
	}
	defer a.close()

	prices, err := a.catalog.Table(ctx, t)
	if err != nil {
		return fmt.Errorf("catalog.Table: %w", err)
	}

	for _, p := range prices {
		fmt.Printf("%-12s %s\n", p.Category, p.Amount)
	}
	return nil
}

func runBook(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := newFlagSet("book", &common)
	itemType := flagSet.String("type", string(domain.ItemTypeBaggage), "item type")
	category := flagSet.String("category", "", "price category, e.g. small")
	service := flagSet.String("service", "", "service name shown in the cart")
	name := flagSet.String("name", "", "traveler name")
	email := flagSet.String("email", "", "traveler email")
	phone := flagSet.String("phone", "", "traveler phone")
	mode := flagSet.String("mode", string(domain.DurationHours), "duration mode: hours or days")
	hours := flagSet.Int("hours", 1, "hours, 1 to 4")
	date := flagSet.String("date", "", "start date, YYYY-MM-DD")
	startTime := flagSet.String("time", "", "start time, HH:MM")
	endDate := flagSet.String("end-date", "", "end date in days mode, YYYY-MM-DD")
	fields := flagSet.StringToString("field", nil, "extra form field, e.g. flight_number=GA404")
	describe := flagSet.Bool("describe", false, "the item needs a free-text description field")
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}

	t, err := domain.ParseItemType(*itemType)
	if err != nil {
		return fmt.Errorf("domain.ParseItemType: %w", err)
	}

	a, err := signedIn(ctx, common)
	if err != nil {
		return err
	}
	defer a.close()

	unitPrice, err := a.catalog.UnitPrice(ctx, t, *category)
	if err != nil {
		return fmt.Errorf("catalog.UnitPrice: %w", err)
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return fmt.Errorf("cfg.Location: %w", err)
	}

	drafts, err := draft.NewStore(draft.Options{
		ItemType:       t,
		Origin:         "cli:" + uuid.NewString(),
		Tab:            a.tab,
		Shared:         a.shared,
		Bus:            a.bus,
		Clock:          a.clk,
		Logger:         a.logger,
		TTL:            a.cfg.Draft.TTL,
		Debounce:       a.cfg.Draft.Debounce,
		ResetMarkerTTL: a.cfg.Draft.ResetMarkerTTL,
	})
	if err != nil {
		return fmt.Errorf("draft.NewStore: %w", err)
	}

	serviceName := *service
	if serviceName == "" {
		serviceName = fmt.Sprintf("%s (%s)", t, *category)
	}

	w, err := wizard.New(wizard.Options{
		Variant: wizard.Variant{
			ItemType:            t,
			Category:            *category,
			ServiceName:         serviceName,
			UnitPrice:           unitPrice,
			RequiresDescription: *describe,
		},
		Session:  a.gate,
		Cart:     a.cart,
		Drafts:   drafts,
		Bus:      a.bus,
		Clock:    a.clk,
		Location: loc,
		Logger:   a.logger,
		SessionRetry: retry.Policy{
			MaxAttempts: a.cfg.Session.RetryAttempts,
			Delay:       a.cfg.Session.RetryDelay,
		},
		SubmitTimeout: a.cfg.Wizard.SubmitTimeout,
	})
	if err != nil {
		return fmt.Errorf("wizard.New: %w", err)
	}
	cancelWatch := w.Watch()
	defer cancelWatch()

	restored, err := w.Restore(ctx)
	if err != nil {
		a.logger.Warn("draft not restored", zap.Error(err))
	}
	if restored {
		fmt.Printf("resumed saved draft at step %s\n", w.Step())
	}

	if err := fillForm(w, bookingInput{
		name: *name, email: *email, phone: *phone, extra: *fields,
		mode: domain.DurationMode(*mode), hours: *hours,
		date: *date, time: *startTime, endDate: *endDate,
	}); err != nil {
		if flushErr := drafts.Flush(ctx); flushErr != nil {
			a.logger.Warn("draft not saved", zap.Error(flushErr))
		}
		return err
	}

	fmt.Printf("total %s\n", w.Price())

	item, err := w.Submit(ctx)
	if err != nil {
		if flushErr := drafts.Flush(ctx); flushErr != nil {
			a.logger.Warn("draft not saved", zap.Error(flushErr))
		}
		if apperr.Recoverable(err) {
			fmt.Fprintln(os.Stderr, "draft kept, run book again to retry")
		}
		return fmt.Errorf("wizard.Submit: %w", err)
	}

	fmt.Printf("added %s %s\n", item.ItemID, item.Subtotal())
	printCart(a)
	return nil
}

type bookingInput struct {
	name, email, phone string
	extra              map[string]string
	mode               domain.DurationMode
	hours              int
	date, time         string
	endDate            string
}

// fillForm applies the input and walks the form to review. Flags left empty
// keep whatever a restored draft already had.
func fillForm(w *wizard.Wizard, in bookingInput) error {
	set := func(field, value string) error {
		if value == "" {
			return nil
		}
		return w.SetField(field, value)
	}

	for field, value := range map[string]string{
		wizard.FieldName:  in.name,
		wizard.FieldEmail: in.email,
		wizard.FieldPhone: in.phone,
	} {
		if err := set(field, value); err != nil {
			return fmt.Errorf("wizard.SetField: %w", err)
		}
	}
	for field, value := range in.extra {
		if err := set(field, value); err != nil {
			return fmt.Errorf("wizard.SetField: %w", err)
		}
	}

	if err := w.SetDurationMode(in.mode); err != nil {
		return fmt.Errorf("wizard.SetDurationMode: %w", err)
	}
	if in.mode == domain.DurationHours {
		if err := w.SetHours(in.hours); err != nil {
			return fmt.Errorf("wizard.SetHours: %w", err)
		}
	}
	if in.date != "" || in.time != "" {
		if err := w.SetStart(in.date, in.time); err != nil {
			return fmt.Errorf("wizard.SetStart: %w", err)
		}
	}
	if in.endDate != "" {
		if err := w.SetEndDate(in.endDate); err != nil {
			return fmt.Errorf("wizard.SetEndDate: %w", err)
		}
	}

	// walk back first so a resumed draft is validated with the new input
	for w.Step() != domain.StepPersonalInfo {
		if err := w.Back(); err != nil {
			return fmt.Errorf("wizard.Back: %w", err)
		}
	}
	for w.Step() != domain.StepReview {
		if err := w.Next(); err != nil {
			return fmt.Errorf("step %s: %w", w.Step(), err)
		}
	}
	return nil
}

func runSync(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := newFlagSet("sync", &common)
	interval := flagSet.Duration("interval", time.Minute, "how often the tab is treated as visible again")
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}

	a, err := signedIn(ctx, common)
	if err != nil {
		return err
	}
	defer a.close()

	stopGate := a.gate.Watch()
	defer stopGate()
	stopCart := a.cart.Watch(a.bus)
	defer stopCart()

	controller := a.refresh
	controller.Start(ctx)
	defer controller.Stop()

	printCart(a)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if controller.VisibilityChanged(ctx, true) {
				printCart(a)
			}
		}
	}
}

func runToken(args []string) error {
	flagSet := newFlagSet("token", nil)
	secret := flagSet.String("secret", os.Getenv("CARTSYNC_JWT_SECRET"), "signing secret")
	userID := flagSet.String("user", "", "user id")
	email := flagSet.String("email", "", "user email")
	ttl := flagSet.Duration("ttl", time.Hour, "token lifetime")
	if err := parse(flagSet, args); err != nil {
		return ignoreHelp(err)
	}

	token, err := identity.IssueToken([]byte(*secret), *userID, *email, time.Now(), *ttl)
	if err != nil {
		return fmt.Errorf("identity.IssueToken: %w", err)
	}

	fmt.Println(token)
	return nil
}

func printCart(a *app) {
	items, total := a.cart.List()
	if len(items) == 0 {
		fmt.Println("cart is empty")
		return
	}

	for _, item := range items {
		fmt.Printf("%s  %-16s %-28s %s x%d\n", item.ID, item.ItemType, item.ServiceName, item.UnitPrice, item.Quantity)
	}
	fmt.Printf("total %s\n", total)
}

func ignoreHelp(err error) error {
	if errors.Is(err, errHelp) {
		return nil
	}
	return err
}
