package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/apiclient"
	"bioclinics/backoffice/internal/cart"
	"bioclinics/backoffice/internal/config"
	"bioclinics/backoffice/internal/debounce"
	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/ledger"
	"bioclinics/backoffice/internal/optimistic"
	"bioclinics/backoffice/internal/options"
	"bioclinics/backoffice/internal/report"
	"bioclinics/backoffice/internal/roles"
)

var errSignedOut = errors.New("not signed in")

func httpClient(cfg config.ClientConfig) *http.Client {
	return &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second}
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// guard applies the same role table the web client uses to hide screens.
// The server still has the final word.
func (a *app) guard(route string) error {
	sess := a.sessions.Current()
	if !sess.Authenticated() {
		return errSignedOut
	}
	if !roles.CanAccess(sess.Role(), route) {
		return fmt.Errorf("your role (%s) cannot open %s", sess.Role(), route)
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flags("login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (defaults to $BIOCLINICS_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("BIOCLINICS_PASSWORD")
	}
	if strings.TrimSpace(*username) == "" || *password == "" {
		return errors.New("username and password are required")
	}

	result, err := a.api.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	if err := a.sessions.Login(ctx, result.Token, result.User); err != nil {
		return fmt.Errorf("signed in but could not keep the session: %w", err)
	}
	sess := a.sessions.Current()
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", sess.Username(), sess.Role())
	return nil
}

func (a *app) logout(ctx context.Context, _ []string) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) whoami(ctx context.Context, _ []string) error {
	sess := a.sessions.Current()
	if !sess.Authenticated() {
		return errSignedOut
	}
	if user, err := a.api.Me(ctx); err == nil {
		sess.User = user
	} else if apiclient.StatusOf(err) == http.StatusUnauthorized {
		return err
	}

	fmt.Fprintf(a.out, "%s (%s)", sess.Username(), sess.Role())
	if id := sess.UserID(); id != nil {
		fmt.Fprintf(a.out, " id %d", *id)
	}
	if exp, ok := sess.ExpiresAt(); ok {
		fmt.Fprintf(a.out, ", session valid until %s", exp.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) products(ctx context.Context, args []string) error {
	if err := a.guard(roles.RouteProducts); err != nil {
		return err
	}
	fs := a.flags("products")
	query := fs.String("q", "", "name filter")
	page := fs.Int("page", 1, "page")
	limit := fs.Int("limit", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.api.ListProducts(ctx, domain.ProductFilter{Query: *query, Page: *page, Limit: *limit})
	if err != nil {
		return err
	}
	a.printProducts(result)
	return nil
}

func (a *app) printProducts(page domain.ProductPage) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tACTIVE")
	for _, p := range page.Data {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", p.ID, p.Name, money(p.Price), p.Stock, p.IsActive)
	}
	_ = tw.Flush()
	fmt.Fprintf(a.out, "page %d of %d, %d products\n", page.Page, max(page.Pages, 1), page.Total)
}

// search reads one query per line and prints results once typing settles.
// Answers to superseded queries are dropped.
func (a *app) search(ctx context.Context, _ []string) error {
	if err := a.guard(roles.RouteProducts); err != nil {
		return err
	}

	deb := debounce.New(time.Duration(a.cfg.SearchDebounceMS) * time.Millisecond)
	screen := options.NewGuard()
	defer deb.Stop()
	defer screen.Close()

	done := make(chan uint64, 16)
	var last uint64
	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		last = deb.Trigger(func(gen uint64) {
			result, err := a.api.ListProducts(ctx, domain.ProductFilter{Query: query, Limit: 10})
			if deb.IsCurrent(gen) {
				screen.Apply(func() {
					if err != nil {
						fmt.Fprintln(a.errOut, describe(err))
						return
					}
					fmt.Fprintf(a.out, "> %s\n", query)
					a.printProducts(result)
				})
			}
			select {
			case done <- gen:
			default:
			}
		})
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if last == 0 {
		return nil
	}

	timeout := time.After(time.Duration(a.cfg.SearchDebounceMS)*time.Millisecond + time.Duration(a.cfg.HTTPTimeoutSeconds)*time.Second)
	for {
		select {
		case gen := <-done:
			if gen == last {
				return nil
			}
		case <-timeout:
			return errors.New("search timed out")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type itemFlags []string

func (f *itemFlags) String() string { return strings.Join(*f, ",") }

func (f *itemFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func parseItem(raw string) (id int64, qty int, err error) {
	idPart, qtyPart, found := strings.Cut(raw, ":")
	if !found {
		qtyPart = "1"
	}
	id, err = strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil || id < 1 {
		return 0, 0, fmt.Errorf("item %q: product id must be a positive number", raw)
	}
	qty, err = strconv.Atoi(strings.TrimSpace(qtyPart))
	if err != nil || qty < 1 {
		return 0, 0, fmt.Errorf("item %q: quantity must be a positive number", raw)
	}
	return id, qty, nil
}

// loadCatalog snapshots every active product. The snapshot is not refreshed
// while the cart is built.
func (a *app) loadCatalog(ctx context.Context) (*cart.Catalog, error) {
	var all []domain.Product
	for page := 1; ; page++ {
		result, err := a.api.ListProducts(ctx, domain.ProductFilter{Page: page, Limit: 100})
		if err != nil {
			return nil, err
		}
		all = append(all, result.Data...)
		if page >= result.Pages || len(result.Data) == 0 {
			break
		}
	}
	return cart.FromDomain(all), nil
}

func (a *app) sell(ctx context.Context, args []string) error {
	if err := a.guard(roles.RouteSaleCreate); err != nil {
		return err
	}
	fs := a.flags("sell")
	var items itemFlags
	fs.Var(&items, "item", "product id and quantity as ID:QTY, repeatable")
	dryRun := fs.Bool("dry-run", false, "show the cart without submitting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(items) == 0 {
		return &cart.ValidationError{Message: "add at least one -item ID:QTY"}
	}

	catalog, err := a.loadCatalog(ctx)
	if err != nil {
		return err
	}
	c := cart.New(catalog, a.api, a.sessions)

	for _, raw := range items {
		id, qty, err := parseItem(raw)
		if err != nil {
			return err
		}
		product, ok := catalog.Get(id)
		if !ok {
			return &cart.ValidationError{Message: fmt.Sprintf("product %d is not in the active catalog", id)}
		}
		if err := c.AddProduct(product); err != nil {
			return err
		}
		idx := lineIndex(c, id)
		want := c.Lines()[idx].Quantity - 1 + qty
		warning, err := c.UpdateQuantity(idx, want)
		if err != nil {
			return err
		}
		if warning != "" {
			fmt.Fprintln(a.errOut, warning)
		}
		if got := c.Lines()[idx].Quantity; got < want {
			fmt.Fprintf(a.errOut, "only %d units of %s available; quantity set to %d\n", product.Stock, product.Name, got)
		}
	}

	a.printCart(c)
	if *dryRun {
		return nil
	}

	sale, err := c.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Sale #%d recorded, total %s\n", sale.ID, money(sale.Total))
	return nil
}

func lineIndex(c *cart.Cart, productID int64) int {
	for i, line := range c.Lines() {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func (a *app) printCart(c *cart.Cart) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tQTY\tUNIT\tSUBTOTAL")
	for _, line := range c.Lines() {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", line.Name, line.Quantity, money(line.UnitPrice), money(line.Subtotal()))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\n", money(c.Total()))
	_ = tw.Flush()
}

func (a *app) entry(ctx context.Context, args []string) error {
	if err := a.guard(roles.RouteEntries); err != nil {
		return err
	}
	fs := a.flags("entry")
	productID := fs.Int64("product", 0, "product id")
	labID := fs.Int64("lab", 0, "laboratory id")
	boxes := fs.Int("boxes", 0, "boxes received")
	units := fs.Int("units", 1, "units per box")
	cost := fs.String("cost", "0", "unit cost")
	reason := fs.String("reason", "", "reason, required for adjustments")
	isAdjustment := fs.Bool("adjustment", false, "record as an inventory adjustment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	unitCost, err := decimal.NewFromString(*cost)
	if err != nil {
		return fmt.Errorf("cost %q is not a number", *cost)
	}

	input, err := a.api.CreateProductInput(ctx, domain.ProductInputCreateRequest{
		IDProduct:    *productID,
		IDLaboratory: *labID,
		Quantity:     *boxes,
		UnitsPerBox:  *units,
		UnitCost:     unitCost,
		IsAdjustment: *isAdjustment,
		Reason:       *reason,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Entry #%d recorded: %d units, %s\n", input.ID, input.TotalUnits, money(input.Subtotal))
	return nil
}

func (a *app) adjust(ctx context.Context, args []string) error {
	if err := a.guard(roles.RouteExits); err != nil {
		return err
	}
	fs := a.flags("adjust")
	productID := fs.Int64("product", 0, "product id")
	qty := fs.Int("qty", 0, "units to remove")
	reason := fs.String("reason", "", "why the stock is adjusted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*reason) == "" {
		return errors.New("an adjustment needs a reason")
	}
	if *qty < 1 {
		return errors.New("quantity must be at least 1")
	}

	output, err := a.api.CreateAdjustment(ctx, domain.AdjustmentRequest{
		IDProduct: *productID,
		Quantity:  *qty,
		UnitPrice: decimal.Zero,
		Reason:    *reason,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Adjustment #%d recorded: %d units removed\n", output.ID, output.Quantity)
	return nil
}

func (a *app) ledger(ctx context.Context, args []string) error {
	if err := a.guard(roles.RouteEntries); err != nil {
		return err
	}
	fs := a.flags("ledger")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD")
	productID := fs.Int64("product", 0, "product id")
	labID := fs.Int64("laboratory", 0, "laboratory id")
	userID := fs.Int64("user", 0, "responsible user id")
	adjustments := fs.String("adjustments", "all", "all, only or none")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := ledger.Filter{StartDate: *from, EndDate: *to, ProductID: *productID, LaboratoryID: *labID, UserID: *userID}
	switch *adjustments {
	case "only":
		filter.IsAdjustment = boolPtr(true)
	case "none":
		filter.IsAdjustment = boolPtr(false)
	}

	labels := options.LoadAll(ctx, a.optionLoaders())
	result := ledger.NewLoader(a.api).Load(ctx, filter)
	for _, msg := range result.Errors {
		fmt.Fprintln(a.errOut, msg)
	}

	fmt.Fprintf(a.out, "Period: %s\n", periodLabel(result.Balance.Period))
	if filter.ProductID > 0 {
		fmt.Fprintf(a.out, "Product: %s\n", label(labels.Get("products"), filter.ProductID))
	}
	if filter.LaboratoryID > 0 {
		fmt.Fprintf(a.out, "Laboratory: %s\n", label(labels.Get("laboratories"), filter.LaboratoryID))
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nENTRIES\tPRODUCT\tLABORATORY\tBOXES\tUNITS\tSUBTOTAL")
	for _, e := range result.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%g\t%s\n", when(e.CreatedAt, e.HasDate), e.ProductName, e.LaboratoryName, e.Boxes, e.TotalUnits, money(e.Subtotal))
	}
	fmt.Fprintln(tw, "\nEXITS\tPRODUCT\tRESPONSIBLE\tQTY\tUNIT\tSUBTOTAL")
	for _, x := range result.Exits {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%s\n", when(x.CreatedAt, x.HasDate), x.ProductName, x.ResponsibleName, x.Quantity, money(x.UnitPrice), money(x.Subtotal))
	}
	_ = tw.Flush()

	b := result.Balance
	fmt.Fprintf(a.out, "\nEntries: %d movements, %g boxes, %g units, %s\n", b.Entries.Count, b.Entries.TotalBoxes, b.Entries.TotalUnits, money(b.Entries.TotalSubtotal))
	fmt.Fprintf(a.out, "Exits:   %d movements, %g units, %s\n", b.Exits.Count, b.Exits.TotalQuantity, money(b.Exits.TotalSubtotal))
	fmt.Fprintf(a.out, "Net:     %s units, Bs %s", ledger.FormatUnits(b.NetUnits), ledger.FormatSigned(b.NetSubtotal))
	if b.Sign() < 0 {
		fmt.Fprint(a.out, "  (DEFICIT)")
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) optionLoaders() map[string]options.LoaderFunc {
	return map[string]options.LoaderFunc{
		"laboratories": func(ctx context.Context) ([]options.Option, error) {
			labs, err := a.api.ListLaboratories(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]options.Option, 0, len(labs))
			for _, l := range labs {
				out = append(out, options.Option{ID: l.ID, Label: l.Name})
			}
			return out, nil
		},
		"productTypes": func(ctx context.Context) ([]options.Option, error) {
			types, err := a.api.ListProductTypes(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]options.Option, 0, len(types))
			for _, t := range types {
				out = append(out, options.Option{ID: t.ID, Label: t.Name})
			}
			return out, nil
		},
		"products": func(ctx context.Context) ([]options.Option, error) {
			page, err := a.api.ListProducts(ctx, domain.ProductFilter{Limit: 100})
			if err != nil {
				return nil, err
			}
			out := make([]options.Option, 0, len(page.Data))
			for _, p := range page.Data {
				out = append(out, options.Option{ID: p.ID, Label: p.Name})
			}
			return out, nil
		},
	}
}

func (a *app) report(ctx context.Context, args []string) error {
	if err := a.guard(roles.RouteSalesReport); err != nil {
		return err
	}
	fs := a.flags("report")
	date := fs.String("date", "", "target day, YYYY-MM-DD (default today)")
	page := fs.Int("page", 1, "page")
	limit := fs.Int("limit", report.InitialLimit, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rep := report.Load(ctx, a.api, report.Request{TargetDate: *date, Page: *page, Limit: *limit})
	if rep.Error != "" {
		fmt.Fprintln(a.errOut, "could not load the sales report: "+rep.Error)
	}

	s := rep.Summary
	fmt.Fprintf(a.out, "Day %s: %s\n", s.TargetDate, money(s.DayTotal))
	fmt.Fprintf(a.out, "Month %s to %s: %s\n", s.MonthStart, s.MonthEnd, money(s.MonthTotal))
	fmt.Fprintf(a.out, "%d sales match the filter\n\n", s.TotalCount)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SALE\tDATE\tCASHIER\tITEMS\tTOTAL")
	for _, sale := range rep.Data {
		cashier := "-"
		if sale.User != nil {
			cashier = sale.User.Name
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%d\t%s\n", sale.ID, when(sale.CreatedAt, sale.HasDate), cashier, len(sale.Items), money(sale.Total))
	}
	_ = tw.Flush()
	fmt.Fprintf(a.out, "page %d, %d per page\n", rep.Pagination.Page, rep.Pagination.Limit)
	return nil
}

func (a *app) toggle(ctx context.Context, args []string) error {
	fs := a.flags("toggle")
	productID := fs.Int64("product", 0, "product id")
	userID := fs.Int64("user", 0, "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *productID > 0:
		if err := a.guard(roles.RouteProducts); err != nil {
			return err
		}
		product, err := a.api.GetProduct(ctx, *productID)
		if err != nil {
			return err
		}
		list := optimistic.NewList([]domain.Product{product},
			func(p domain.Product) int64 { return p.ID },
			func(p domain.Product) bool { return p.IsActive },
			func(p domain.Product, active bool) domain.Product { p.IsActive = active; return p },
		)
		err = list.Toggle(ctx, product.ID, func(ctx context.Context, id int64, active bool) error {
			_, err := a.api.SetProductActive(ctx, id, active)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s is now %s\n", product.Name, activeLabel(list.Rows()[0].IsActive))
		return nil

	case *userID > 0:
		if err := a.guard(roles.RouteUsers); err != nil {
			return err
		}
		users, err := a.api.ListUsers(ctx, domain.UserFilter{})
		if err != nil {
			return err
		}
		list := optimistic.NewList(users,
			func(u domain.User) int64 { return u.ID },
			func(u domain.User) bool { return u.IsActive },
			func(u domain.User, active bool) domain.User { u.IsActive = active; return u },
		)
		err = list.Toggle(ctx, *userID, func(ctx context.Context, id int64, active bool) error {
			_, err := a.api.SetUserActive(ctx, id, active)
			return err
		})
		if err != nil {
			return err
		}
		for _, u := range list.Rows() {
			if u.ID == *userID {
				fmt.Fprintf(a.out, "%s is now %s\n", u.Username, activeLabel(u.IsActive))
			}
		}
		return nil
	}
	return errors.New("pass -product ID or -user ID")
}

func money(d decimal.Decimal) string {
	return "Bs " + d.StringFixed(2)
}

func when(t time.Time, ok bool) string {
	if !ok {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func periodLabel(p ledger.Period) string {
	switch {
	case p.StartDate != "" && p.EndDate != "" && p.StartDate == p.EndDate:
		return "day " + p.StartDate
	case p.StartDate != "" && p.EndDate != "":
		return p.StartDate + " to " + p.EndDate
	case p.StartDate != "":
		return "since " + p.StartDate
	case p.EndDate != "":
		return "until " + p.EndDate
	}
	return "all time"
}

func label(list []options.Option, id int64) string {
	for _, o := range list {
		if o.ID == id {
			return o.Label
		}
	}
	return "#" + strconv.FormatInt(id, 10)
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func boolPtr(v bool) *bool { return &v }
