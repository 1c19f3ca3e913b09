package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/inventory"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/spf13/cobra"
)

var (
	itemName        string
	itemPrice       float64
	itemSKU         string
	itemWarehenceID int64
	itemSubCategory string

	cartCmd = &cobra.Command{
		Use:   "cart",
		Short: "Inspect and edit a stored cart",
	}
	cartShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE:  withSession(func(context.Context, *session.Session, []string) error { return nil }),
	}
	cartAddCmd = &cobra.Command{
		Use:   "add <item-id> [quantity]",
		Short: "Add an item, merging with an existing line",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withSession(func(ctx context.Context, s *session.Session, args []string) error {
			quantity := 1
			if len(args) == 2 {
				quantity = cart.ParseQuantity(args[1])
			}
			item := domain.LineItem{
				ID:                 args[0],
				Name:               itemName,
				Price:              domain.Price(itemPrice),
				SKU:                itemSKU,
				WarehenceProductID: itemWarehenceID,
				SubCategoryID:      itemSubCategory,
			}
			return s.Cart().AddItem(ctx, item, quantity)
		}),
	}
	cartUpdateCmd = &cobra.Command{
		Use:   "update <item-id> <quantity>",
		Short: "Set the quantity of a line; below 1 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(ctx context.Context, s *session.Session, args []string) error {
			return s.Cart().UpdateQuantity(ctx, args[0], cart.ParseQuantity(args[1]))
		}),
	}
	cartRemoveCmd = &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, s *session.Session, args []string) error {
			return s.Cart().RemoveItem(ctx, args[0])
		}),
	}
	cartClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: withSession(func(ctx context.Context, s *session.Session, _ []string) error {
			return s.Cart().Clear(ctx)
		}),
	}
	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Check the stored cart against live stock",
		Args:  cobra.NoArgs,
		RunE: withSession(func(ctx context.Context, s *session.Session, _ []string) error {
			_, err := s.Reconcile(ctx)
			return err
		}),
	}
)

func init() {
	cartCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "cli", "session id")
	reconcileCmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "session id")

	cartAddCmd.Flags().StringVar(&itemName, "name", "", "item name")
	cartAddCmd.Flags().Float64Var(&itemPrice, "price", 0, "unit price")
	cartAddCmd.Flags().StringVar(&itemSKU, "sku", "", "item SKU")
	cartAddCmd.Flags().Int64Var(&itemWarehenceID, "warehence-id", 0, "warehouse product id")
	cartAddCmd.Flags().StringVar(&itemSubCategory, "sub-category", "", "subcategory id used for stock lookups")

	cartCmd.AddCommand(cartShowCmd, cartAddCmd, cartUpdateCmd, cartRemoveCmd, cartClearCmd)
}

// withSession opens the configured store, runs fn against the session and
// prints the resulting cart.
func withSession(fn func(ctx context.Context, s *session.Session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		s := session.New(sessionID, a.sessionDeps(false))
		s.Init(ctx)
		defer s.Teardown()

		if err := fn(ctx, s, args); err != nil {
			return err
		}
		return printCart(cmd.OutOrStdout(), s)
	}
}

func printCart(out io.Writer, s *session.Session) error {
	c := s.Cart().Snapshot()
	stock := s.Inventory().State()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL\tSTOCK")
	for _, item := range c.Items() {
		status := ""
		if e, ok := stock.ErrorFor(item.ID); ok {
			status = e.Message
		} else if available, ok := stock.Snapshot.Available[item.ID]; ok {
			status = fmt.Sprintf("%d in stock", available)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			item.ID, item.Name, item.Quantity,
			checkout.FormatMoney(item.Price.Value()),
			checkout.FormatMoney(item.Subtotal()),
			status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nitems: %d  total: %s\n", c.Count(), checkout.FormatMoney(c.Total()))
	if stock.Reconciled {
		printGate(out, checkout.CanCheckout(c, stock.Errors, s.User().CanOrder()), stock)
	}
	return nil
}

func printGate(out io.Writer, d checkout.Decision, stock inventory.State) {
	if len(stock.Unknown) > 0 {
		fmt.Fprintf(out, "stock unknown for: %v\n", stock.Unknown)
	}
	if d.Allowed {
		fmt.Fprintln(out, "checkout: ready")
		return
	}
	fmt.Fprintf(out, "checkout: blocked (%s) %s\n", d.Reason, d.Message)
}
