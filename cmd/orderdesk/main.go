package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/bills"
	"github.com/fruitshop/orderdesk/internal/config"
	"github.com/fruitshop/orderdesk/internal/dashboard"
	"github.com/fruitshop/orderdesk/internal/dispatch"
	"github.com/fruitshop/orderdesk/internal/journal"
	"github.com/fruitshop/orderdesk/internal/lifecycle"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/notify"
	"github.com/fruitshop/orderdesk/internal/order"
	"github.com/fruitshop/orderdesk/internal/orderapi"
	"github.com/fruitshop/orderdesk/internal/rider"
)

const usage = `usage: orderdesk [-token T] [-backend URL] [-v] <command> [args]

commands:
  orders [-status s] [-q text]           list orders
  set-status <id> <status>               change an order's status
  confirm <id> -photo f -sender n        confirm delivery with a photo
          [-date YYYY-MM-DD] [-time HH:MM]
  confirm <id> -qr                       let the rider confirm by QR scan instead
  dispatch <id>                          send out by rider QR and wait for the scan
  reopen <id>                            show the QR again for an order out for delivery
  rider <token>                          exchange a rider token
  bills                                  list your orders and invoices
  invoice-pdf <id> -o file               download an invoice PDF
`

// app holds the wired components for one CLI invocation.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	session *auth.Session
	client  *orderapi.Client
	inbox   *notify.Inbox
	manager *dispatch.Manager
	board   *dashboard.Dashboard
}

func main() {
	os.Exit(run())
}

// run wires the app and executes one command. Deferred cleanup runs before
// the exit code reaches main.
func run() int {
	var (
		token   = flag.String("token", os.Getenv("ORDERDESK_TOKEN"), "bearer token (default $ORDERDESK_TOKEN)")
		backend = flag.String("backend", "", "backend base URL (default $API_BACKEND_URL)")
		verbose = flag.Bool("v", false, "log requests to stderr")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		return fail("load config: %v", err)
	}
	if *backend != "" {
		cfg.Backend.BaseURL = strings.TrimRight(*backend, "/")
	}

	log := logger.NewNop()
	if *verbose {
		if log, err = logger.NewZapLogger(cfg.App.Env); err != nil {
			return fail("init logger: %v", err)
		}
		defer log.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, log, *token)
	if err != nil {
		return fail("%v", err)
	}
	defer a.manager.Shutdown()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "orders":
		err = a.orders(ctx, args)
	case "set-status":
		err = a.setStatus(ctx, args)
	case "confirm":
		err = a.confirm(ctx, args)
	case "dispatch":
		err = a.dispatch(ctx, args)
	case "reopen":
		err = a.reopen(ctx, args)
	case "rider":
		err = a.rider(ctx, args)
	case "bills":
		err = a.bills(ctx)
	case "invoice-pdf":
		err = a.invoicePDF(ctx, args)
	default:
		flag.Usage()
		return 2
	}
	if err != nil {
		return fail("%s: %s", cmd, orderapi.MessageOf(err))
	}
	return 0
}

func newApp(cfg *config.Config, log logger.Logger, token string) (*app, error) {
	session := auth.NewSession(cfg.Server.JWTSecret)
	if token != "" {
		if _, err := session.Login(token); err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
	}

	client := orderapi.NewClient(cfg.Backend.BaseURL, session, log, orderapi.WithTimeout(cfg.Backend.Timeout))
	inbox := notify.NewInbox(stderrPublisher{}, 0)
	manager := dispatch.NewManager(client, inbox, nil, cfg.Dispatch.PublicAppURL,
		dispatch.WithInterval(cfg.Dispatch.PollInterval),
		dispatch.WithJournal(journal.NewMemoryStore(0)),
		dispatch.WithLogger(log),
		dispatch.WithActor(session.Username),
	)
	board := dashboard.New(client, manager, inbox,
		dashboard.WithLogger(log),
		dashboard.WithMaxPhotoBytes(cfg.Dispatch.MaxPhotoBytes),
		dashboard.WithActor(session.Username),
	)
	manager.SetReloader(board)

	return &app{cfg: cfg, log: log, session: session, client: client, inbox: inbox, manager: manager, board: board}, nil
}

// --- Commands ---

func (a *app) orders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	status := fs.String("status", "", "only orders in this status")
	query := fs.String("q", "", "match order number, username or phone")
	fs.Parse(args)

	if err := a.requireSession(); err != nil {
		return err
	}
	if *status != "" && !lifecycle.Valid(*status) {
		return fmt.Errorf("unknown status %q (one of %s)", *status, strings.Join(lifecycle.Statuses(), ", "))
	}
	if err := a.board.Reload(ctx); err != nil {
		return err
	}

	orders := a.board.Filter(*status, *query)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Number", "Customer", "Phone", "Total", "Status", "Next")
	for _, o := range orders {
		phone := o.PhoneNumber
		if phone == "" {
			phone = o.Phone
		}
		table.Append([]string{
			o.ID.String(),
			o.OrderNumber,
			o.DisplayName(),
			phone,
			o.TotalAmount.String(),
			lifecycle.Label(o.DisplayStatus()),
			strings.Join(lifecycle.Transitions(o.DisplayStatus()), ", "),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	s := a.board.Summary()
	fmt.Printf("\n%d orders: %d paid, %d received, %d preparing, %d ready, %d out for delivery, %d delivered\n",
		s.Total, s.Paid, s.Received, s.Preparing, s.Completed, s.Delivering, s.Shipped)
	return nil
}

func (a *app) setStatus(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set-status <id> <status>")
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.board.Reload(ctx); err != nil {
		return err
	}

	res, err := a.board.ChangeStatus(ctx, order.ID(args[0]), args[1])
	if err != nil {
		return err
	}
	if res.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", res.Warning)
	}
	switch res.Action {
	case lifecycle.ActionConfirmDelivery:
		f := res.Workflow.Form()
		fmt.Printf("Order %s needs a delivery photo. Run:\n  orderdesk confirm %s -photo <file> -sender <name>\nor let the rider confirm by scan:\n  orderdesk confirm %s -qr\n", f.OrderNumber, f.OrderID, f.OrderID)
	case lifecycle.ActionDispatchQR:
		return a.showAndWait(ctx)
	}
	return nil
}

func (a *app) confirm(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: confirm <id> -photo <file> -sender <name> [-date YYYY-MM-DD] [-time HH:MM] | confirm <id> -qr")
	}
	id := order.ID(args[0])

	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	photo := fs.String("photo", "", "delivery photo file")
	sender := fs.String("sender", "", "name of the person who delivered")
	date := fs.String("date", "", "delivery date (default today)")
	clock := fs.String("time", "", "delivery time (default now)")
	viaQR := fs.Bool("qr", false, "skip the photo and let the rider confirm by QR scan")
	fs.Parse(args[1:])

	if err := a.requireSession(); err != nil {
		return err
	}
	o, err := a.board.Lookup(ctx, id)
	if err != nil {
		return err
	}

	wf := a.board.OpenDelivery(*o)
	if *viaQR {
		if err := wf.DispatchViaQR(ctx); err != nil {
			return err
		}
		return a.showAndWait(ctx)
	}
	if *photo != "" {
		data, err := os.ReadFile(*photo)
		if err != nil {
			return err
		}
		if err := wf.AttachPhoto(data); err != nil {
			return err
		}
	}
	if *date != "" {
		wf.SetDate(*date)
	}
	if *clock != "" {
		wf.SetTime(*clock)
	}
	wf.SetSender(*sender)

	_, err = wf.Submit(ctx)
	return err
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: dispatch <id>")
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	o, err := a.board.Lookup(ctx, order.ID(args[0]))
	if err != nil {
		return err
	}
	if err := a.board.Dispatch(ctx, *o); err != nil {
		return err
	}
	return a.showAndWait(ctx)
}

func (a *app) reopen(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: reopen <id>")
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	o, err := a.board.Slip(ctx, order.ID(args[0]))
	if err != nil {
		return err
	}
	if err := a.manager.Reopen(ctx, *o); err != nil {
		return err
	}
	return a.showAndWait(ctx)
}

func (a *app) rider(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rider <token>")
	}
	out := rider.NewConsumer(a.client, a.log).Confirm(ctx, dispatch.TokenFromURL(args[0]))
	if out.State != rider.StateSuccess {
		return errors.New(out.Message)
	}

	fmt.Println("Delivery confirmed")
	if out.OrderNumber != "" {
		fmt.Printf("  Order:     %s\n  Recipient: %s\n  Total:     %s\n", out.OrderNumber, out.Recipient, out.TotalAmount)
	}
	return nil
}

func (a *app) bills(ctx context.Context) error {
	viewer := bills.NewViewer(a.client, a.session)

	orders, err := viewer.MyOrders(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Order", "Date", "Total", "Status", "Invoice")
	for _, o := range orders {
		table.Append([]string{o.OrderNumber, o.CreatedAt, o.TotalAmount.String(), lifecycle.Label(o.DisplayStatus()), o.InvoiceNumber})
	}
	if err := table.Render(); err != nil {
		return err
	}

	invoices, err := viewer.MyInvoices(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	table = tablewriter.NewWriter(os.Stdout)
	table.Header("Invoice", "ID", "Order", "Total", "Status")
	for _, inv := range invoices {
		table.Append([]string{inv.InvoiceNumber, inv.ID.String(), inv.OrderNumber, inv.TotalAmount.String(), inv.Status})
	}
	return table.Render()
}

func (a *app) invoicePDF(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: invoice-pdf <id> -o <file>")
	}
	id := order.ID(args[0])

	fs := flag.NewFlagSet("invoice-pdf", flag.ExitOnError)
	out := fs.String("o", "", "output file (default invoice-<number>.pdf)")
	fs.Parse(args[1:])

	viewer := bills.NewViewer(a.client, a.session)
	path := *out
	if path == "" {
		inv, err := viewer.Invoice(ctx, id)
		if err != nil {
			return err
		}
		path = inv.PDFFilename()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := viewer.DownloadPDF(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	fmt.Printf("saved %s (%d bytes)\n", path, n)
	return nil
}

// --- Helpers ---

func (a *app) requireSession() error {
	if a.session.Active() {
		return nil
	}
	if a.session.Expired() {
		return auth.ErrTokenExpired
	}
	return auth.ErrNoSession
}

// showAndWait prints the open QR and blocks until the rider scans it or
// the user interrupts. Interrupting leaves the order out for delivery.
func (a *app) showAndWait(ctx context.Context) error {
	surface := a.manager.Surface()
	if !surface.Open {
		return nil
	}
	art, err := dispatch.RenderTerminal(surface.QRURL)
	if err != nil {
		return err
	}
	fmt.Println(art)
	fmt.Printf("Order %s: ask the rider to scan\n  %s\nWaiting for the scan (Ctrl-C to stop waiting)...\n", surface.OrderNumber, surface.QRURL)

	if err := a.manager.Wait(ctx); err != nil {
		a.manager.Close()
		fmt.Println("Stopped waiting; the order stays out for delivery. Use `orderdesk reopen` to show the QR again.")
	}
	return nil
}

// stderrPublisher prints inbox notifications as they arrive.
type stderrPublisher struct{}

func (stderrPublisher) Publish(room, eventType string, payload interface{}) error {
	if eventType != notify.EventCreated {
		return nil
	}
	if n, ok := payload.(notify.Notification); ok {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", n.Type, n.Title, n.Message)
	}
	return nil
}

func fail(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "orderdesk: "+format+"\n", args...)
	return 1
}
