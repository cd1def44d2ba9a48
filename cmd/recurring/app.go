package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cadenza/internal/amqp"
	"cadenza/internal/core"
	"cadenza/internal/log"
	"cadenza/internal/services"
)

type consumer interface {
	Consume(ctx context.Context, queue string, handler func(context.Context, amqp.GroupEvent) error) error
}

type app struct {
	registry     *services.Registry
	detector     *services.Detector
	materializer *services.Materializer
	membership   *services.MembershipManager
	consumer     consumer
	queue        string
	logger       *log.Logger

	detectBeforeApply bool
	out               io.Writer
	now               func() time.Time
}

var errUsage = errors.New("invalid usage")

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: recurring <command> [flags]

commands:
  detect                                  find recurring candidates among unlinked expenses
  apply -handle H                         materialize a detected candidate
  list [-all]                             list recurring groups
  get -id ID                              show one group
  create -name N -pattern P [-frequency F -amount A -variance V -category C]
  update -id ID [-name -pattern -frequency -amount -variance -category -active]
  delete -id ID                           delete a group and unlink its transactions
  mark -txn T (-group G | -new [-name N -frequency F -category C])
  unmark -txn T
  upcoming [-days 30]                     groups expected within the next days
  watch                                   print group events as they are published
`)
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	if a.logger != nil {
		ctx = log.NewContext(ctx, a.logger.With(log.FieldOperation, command))
	}

	switch command {
	case "detect":
		return a.detect(ctx, args)
	case "apply":
		return a.apply(ctx, args)
	case "list":
		return a.list(ctx, args)
	case "get":
		return a.get(ctx, args)
	case "create":
		return a.create(ctx, args)
	case "update":
		return a.update(ctx, args)
	case "delete":
		return a.delete(ctx, args)
	case "mark":
		return a.mark(ctx, args)
	case "unmark":
		return a.unmark(ctx, args)
	case "upcoming":
		return a.upcoming(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	default:
		usage(a.out)
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s: unexpected arguments %v", errUsage, fs.Name(), fs.Args())
	}
	return nil
}

func required(fs *flag.FlagSet, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s: -%s is required", errUsage, fs.Name(), name)
	}
	return nil
}

func (a *app) detect(ctx context.Context, args []string) error {
	fs := newFlagSet("detect")
	if err := parse(fs, args); err != nil {
		return err
	}

	result, err := a.detector.Detect(ctx)
	if err != nil {
		return err
	}
	for _, c := range result.Candidates {
		fmt.Fprintf(a.out, "%s  %-24s %-10s %2d txns  avg %s  confidence %.2f  (%s)\n",
			c.Handle, c.SuggestedName, c.Frequency, len(c.TransactionIDs),
			c.AverageAmount.StringFixed(2), c.Confidence, c.MerchantPattern)
	}
	fmt.Fprintf(a.out, "%d candidate(s)\n", result.Total)
	return nil
}

func (a *app) apply(ctx context.Context, args []string) error {
	fs := newFlagSet("apply")
	handle := fs.String("handle", "", "candidate handle from detect")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "handle", *handle); err != nil {
		return err
	}

	if a.detectBeforeApply {
		if _, err := a.detector.Detect(ctx); err != nil {
			return err
		}
	}
	group, err := a.materializer.Apply(ctx, *handle)
	if err != nil {
		return err
	}
	return a.printGroup(ctx, group)
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	all := fs.Bool("all", false, "include inactive groups")
	if err := parse(fs, args); err != nil {
		return err
	}

	groups, err := a.registry.List(ctx, *all)
	if err != nil {
		return err
	}
	for _, g := range groups {
		count, err := a.registry.TransactionCount(ctx, g.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s  %-24s %-10s next %-10s  %3d txns%s\n",
			g.ID, g.Name, g.Frequency, orDash(g.NextExpectedDate.String()), count, inactiveMark(g))
	}
	return nil
}

func (a *app) get(ctx context.Context, args []string) error {
	fs := newFlagSet("get")
	id := fs.String("id", "", "group id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "id", *id); err != nil {
		return err
	}

	group, err := a.registry.Get(ctx, *id)
	if err != nil {
		return err
	}
	return a.printGroup(ctx, group)
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := newFlagSet("create")
	name := fs.String("name", "", "display name")
	pattern := fs.String("pattern", "", "merchant pattern")
	frequency := fs.String("frequency", string(core.Monthly), "weekly|biweekly|monthly|quarterly|yearly")
	amount := fs.String("amount", "", "expected amount")
	variance := fs.String("variance", "", "amount variance percent")
	category := fs.String("category", "", "category id")
	if err := parse(fs, args); err != nil {
		return err
	}

	in := services.NewGroup{
		Name:            *name,
		MerchantPattern: *pattern,
		Frequency:       core.Frequency(*frequency),
		CategoryID:      *category,
	}
	var err error
	if in.ExpectedAmount, err = optionalAmount(*amount); err != nil {
		return err
	}
	if in.AmountVariance, err = optionalPercent(*variance); err != nil {
		return err
	}

	group, err := a.registry.Create(ctx, in)
	if err != nil {
		return err
	}
	return a.printGroup(ctx, group)
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := newFlagSet("update")
	id := fs.String("id", "", "group id")
	name := fs.String("name", "", "display name")
	pattern := fs.String("pattern", "", "merchant pattern")
	frequency := fs.String("frequency", "", "weekly|biweekly|monthly|quarterly|yearly")
	amount := fs.String("amount", "", "expected amount")
	variance := fs.String("variance", "", "amount variance percent")
	category := fs.String("category", "", "category id, empty to clear")
	active := fs.Bool("active", true, "whether the group is active")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "id", *id); err != nil {
		return err
	}

	var u services.GroupUpdate
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "name":
			u.Name = name
		case "pattern":
			u.MerchantPattern = pattern
		case "frequency":
			freq := core.Frequency(*frequency)
			u.Frequency = &freq
		case "amount":
			u.ExpectedAmount, err = optionalAmount(*amount)
		case "variance":
			u.AmountVariance, err = optionalPercent(*variance)
		case "category":
			u.CategoryID = category
		case "active":
			u.IsActive = active
		}
	})
	if err != nil {
		return err
	}

	group, err := a.registry.Update(ctx, *id, u)
	if err != nil {
		return err
	}
	return a.printGroup(ctx, group)
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete")
	id := fs.String("id", "", "group id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "id", *id); err != nil {
		return err
	}

	if err := a.registry.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", *id)
	return nil
}

func (a *app) mark(ctx context.Context, args []string) error {
	fs := newFlagSet("mark")
	txn := fs.String("txn", "", "transaction id")
	group := fs.String("group", "", "existing group id")
	newGroup := fs.Bool("new", false, "create a new group from the transaction")
	name := fs.String("name", "", "name of the new group")
	frequency := fs.String("frequency", "", "frequency of the new group (default monthly)")
	category := fs.String("category", "", "category of the new group")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "txn", *txn); err != nil {
		return err
	}

	sel := services.Selector{GroupID: *group}
	if *newGroup {
		sel.New = &services.NewGroupSpec{
			Name:       *name,
			Frequency:  core.Frequency(*frequency),
			CategoryID: *category,
		}
	}

	g, err := a.membership.MarkRecurring(ctx, *txn, sel)
	if err != nil {
		return err
	}
	return a.printGroup(ctx, g)
}

func (a *app) unmark(ctx context.Context, args []string) error {
	fs := newFlagSet("unmark")
	txn := fs.String("txn", "", "transaction id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "txn", *txn); err != nil {
		return err
	}

	if err := a.membership.UnmarkRecurring(ctx, *txn); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "unmarked %s\n", *txn)
	return nil
}

func (a *app) upcoming(ctx context.Context, args []string) error {
	fs := newFlagSet("upcoming")
	days := fs.Int("days", 30, "look ahead this many days")
	if err := parse(fs, args); err != nil {
		return err
	}

	res, err := a.registry.Upcoming(ctx, a.now(), *days)
	if err != nil {
		return err
	}
	for _, r := range res.Renewals {
		amount := "-"
		if r.Group.ExpectedAmount.Valid {
			amount = r.Group.ExpectedAmount.Decimal.StringFixed(2)
		}
		fmt.Fprintf(a.out, "%s  %-24s %-10s in %3d days  %s\n",
			r.Group.NextExpectedDate, r.Group.Name, r.Group.Frequency, r.DaysUntil, amount)
	}
	fmt.Fprintf(a.out, "total %s\n", res.Total.StringFixed(2))
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.consumer == nil {
		return errors.New("watch requires AMQP_URL")
	}

	err := a.consumer.Consume(ctx, a.queue, func(ctx context.Context, e amqp.GroupEvent) error {
		log.FromContext(ctx).DebugContext(ctx, "Received group event",
			log.FieldEventType, e.Type,
			log.FieldGroupID, e.GroupID)
		fmt.Fprintf(a.out, "%s  %-22s group=%s transactions=%s\n",
			e.Timestamp.Format(time.RFC3339), e.Type, e.GroupID, strings.Join(e.TransactionIDs, ","))
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) printGroup(ctx context.Context, g core.RecurringGroup) error {
	count, err := a.registry.TransactionCount(ctx, g.ID)
	if err != nil {
		return err
	}
	expected, variance := "-", "-"
	if g.ExpectedAmount.Valid {
		expected = g.ExpectedAmount.Decimal.StringFixed(2)
	}
	if g.AmountVariance.Valid {
		variance = g.AmountVariance.Decimal.String() + "%"
	}

	fmt.Fprintf(a.out, "id:            %s\n", g.ID)
	fmt.Fprintf(a.out, "name:          %s\n", g.Name)
	fmt.Fprintf(a.out, "pattern:       %s\n", g.MerchantPattern)
	fmt.Fprintf(a.out, "frequency:     %s\n", g.Frequency)
	fmt.Fprintf(a.out, "expected:      %s\n", expected)
	fmt.Fprintf(a.out, "variance:      %s\n", variance)
	fmt.Fprintf(a.out, "category:      %s\n", orDash(g.CategoryID))
	fmt.Fprintf(a.out, "last seen:     %s\n", orDash(g.LastSeenDate.String()))
	fmt.Fprintf(a.out, "next expected: %s\n", orDash(g.NextExpectedDate.String()))
	fmt.Fprintf(a.out, "active:        %t\n", g.IsActive)
	fmt.Fprintf(a.out, "transactions:  %d\n", count)
	return nil
}

func optionalAmount(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return nil, core.InvalidRequest("amount", s, err.Error())
	}
	return &d, nil
}

func optionalPercent(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := core.ParsePercent(s)
	if err != nil {
		return nil, core.InvalidRequest("variance", s, err.Error())
	}
	return &d, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func inactiveMark(g core.RecurringGroup) string {
	if g.IsActive {
		return ""
	}
	return "  (inactive)"
}
