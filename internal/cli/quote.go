package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/nikolayk812/shoppingcart/internal/config"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/record"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/currency"
)

// QuoteInput is the JSON document accepted by `cartctl quote`.
type QuoteInput struct {
	Currency       string      `json:"currency" validate:"omitempty,len=3"`
	Calculator     string      `json:"calculator" validate:"omitempty,oneof=default per_unit"`
	Rounding       string      `json:"rounding" validate:"omitempty,oneof=half_up half_even up down ceiling floor"`
	GlobalTax      string      `json:"global_tax" validate:"omitempty,numeric"`
	GlobalDiscount string      `json:"global_discount" validate:"omitempty,numeric"`
	Items          []QuoteItem `json:"items" validate:"required,min=1,dive"`
}

type QuoteItem struct {
	ID       any             `json:"id" validate:"required"`
	Name     string          `json:"name"`
	Price    string          `json:"price" validate:"required,numeric"`
	Quantity int             `json:"qty" validate:"required,min=1"`
	Weight   int64           `json:"weight" validate:"min=0"`
	Options  json.RawMessage `json:"options"`
	TaxRate  string          `json:"tax_rate" validate:"omitempty,numeric"`
	Discount *QuoteDiscount  `json:"discount"`
}

type QuoteDiscount struct {
	Kind  string `json:"kind" validate:"required,oneof=rate fixed"`
	Value string `json:"value" validate:"required,numeric"`
}

// QuoteResult is the priced cart.
type QuoteResult struct {
	Currency   string      `json:"currency"`
	Items      []QuoteLine `json:"items"`
	CountItems int         `json:"count_items"`
	Count      int         `json:"count"`
	Weight     int64       `json:"weight"`
	PriceTotal string      `json:"price_total"`
	Discount   string      `json:"discount"`
	Subtotal   string      `json:"subtotal"`
	Tax        string      `json:"tax"`
	Total      string      `json:"total"`
}

type QuoteLine struct {
	RowID     string `json:"row_id"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Quantity  int    `json:"qty"`
	LineTotal string `json:"line_total"`
	Discount  string `json:"discount"`
	Subtotal  string `json:"subtotal"`
	Tax       string `json:"tax"`
	Total     string `json:"total"`
}

func NewQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a cart described as JSON",
		Long: `Price a cart described as JSON and print per-item and cart totals.

Reads from --file, or from stdin when --file is "-".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("os.Open: %w", err)
				}
				defer f.Close()
				r = f
			}

			input, err := DecodeQuoteInput(r)
			if err != nil {
				return err
			}

			cart, err := buildQuoteCart(rootOpts.Config.Pricing, input)
			if err != nil {
				return err
			}

			result, err := NewQuoteResult(cart, rootOpts.Config.Pricing.DisplayDecimals)
			if err != nil {
				return err
			}

			return rootOpts.formatter(cmd).Success(result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "cart JSON file")

	return cmd
}

// DecodeQuoteInput decodes and validates a quote document. Unknown fields
// are rejected.
func DecodeQuoteInput(r io.Reader) (QuoteInput, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var input QuoteInput
	if err := dec.Decode(&input); err != nil {
		return QuoteInput{}, fmt.Errorf("invalid json: %w", err)
	}

	if err := newValidator().Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return QuoteInput{}, fmt.Errorf("invalid input: %s", strings.Join(fields, "; "))
		}
		return QuoteInput{}, fmt.Errorf("invalid input: %w", err)
	}

	return input, nil
}

func buildQuoteCart(pricing config.PricingConfig, input QuoteInput) (*domain.Cart, error) {
	if input.Currency != "" {
		pricing.Currency = input.Currency
	}
	if input.Calculator != "" {
		pricing.Calculator = input.Calculator
	}
	if input.Rounding != "" {
		pricing.Rounding = input.Rounding
	}
	if input.GlobalTax != "" {
		pricing.DefaultTax = input.GlobalTax
	}

	cur, err := pricing.CurrencyUnit()
	if err != nil {
		return nil, fmt.Errorf("currency[%s] is not valid: %w", pricing.Currency, err)
	}

	opts, err := pricing.CartOptions()
	if err != nil {
		return nil, err
	}
	if input.GlobalDiscount != "" {
		opts = append(opts, domain.WithGlobalDiscount(decimal.RequireFromString(input.GlobalDiscount)))
	}

	cart, err := domain.NewCart(cur, opts...)
	if err != nil {
		return nil, fmt.Errorf("domain.NewCart: %w", err)
	}

	for idx, in := range input.Items {
		item, err := in.toDomain(cur)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, err)
		}

		addOpts := domain.AddOptions{
			KeepDiscount: in.Discount != nil,
			KeepTax:      in.TaxRate != "",
		}
		if _, err := cart.Add(item, addOpts); err != nil {
			return nil, fmt.Errorf("items[%d]: cart.Add: %w", idx, err)
		}
	}

	return cart, nil
}

func (in QuoteItem) toDomain(cur currency.Unit) (*domain.CartItem, error) {
	id, err := parseQuoteID(in.ID)
	if err != nil {
		return nil, err
	}

	price, err := domain.ParseMoney(in.Price, cur.String())
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	var opts domain.Options
	if len(in.Options) > 0 {
		raw, err := record.UnmarshalOptions(in.Options)
		if err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
		opts = domain.Options(raw)
	}

	item, err := domain.NewCartItem(id, in.Name, price, in.Quantity, in.Weight, opts)
	if err != nil {
		return nil, err
	}

	if in.TaxRate != "" {
		item.SetTaxRate(decimal.RequireFromString(in.TaxRate))
	}
	if in.Discount != nil {
		value := decimal.RequireFromString(in.Discount.Value)
		switch in.Discount.Kind {
		case "fixed":
			item.SetDiscount(domain.FixedDiscount(domain.NewMoney(value, cur, domain.RoundHalfUp)))
		default:
			item.SetDiscount(domain.RateDiscount(value))
		}
	}

	return item, nil
}

func parseQuoteID(v any) (domain.ItemID, error) {
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			return domain.ItemID{}, fmt.Errorf("%w: id %s is not an integer", domain.ErrInvalidIdentifier, n)
		}
		return domain.IntID(i), nil
	}
	return domain.ParseItemID(v)
}

// NewQuoteResult prices every row of cart and the cart as a whole.
func NewQuoteResult(cart *domain.Cart, decimals int32) (QuoteResult, error) {
	result := QuoteResult{
		Currency:   cart.Currency().String(),
		CountItems: cart.CountItems(),
		Count:      cart.Count(),
		Weight:     cart.Weight(),
	}

	for _, item := range cart.Content() {
		p, err := cart.ItemPricing(item.RowID())
		if err != nil {
			return QuoteResult{}, fmt.Errorf("cart.ItemPricing: %w", err)
		}
		result.Items = append(result.Items, QuoteLine{
			RowID:     item.RowID(),
			ID:        item.ID().String(),
			Name:      item.Name(),
			Quantity:  item.Quantity(),
			LineTotal: p.LineTotal.Format(decimals),
			Discount:  p.Discount.Format(decimals),
			Subtotal:  p.Subtotal.Format(decimals),
			Tax:       p.Tax.Format(decimals),
			Total:     p.Total.Format(decimals),
		})
	}

	totals, err := cart.Totals()
	if err != nil {
		return QuoteResult{}, fmt.Errorf("cart.Totals: %w", err)
	}
	result.PriceTotal = totals.LineTotal.Format(decimals)
	result.Discount = totals.Discount.Format(decimals)
	result.Subtotal = totals.Subtotal.Format(decimals)
	result.Tax = totals.Tax.Format(decimals)
	result.Total = totals.Total.Format(decimals)

	return result, nil
}

func (r QuoteResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "ROW ID\tID\tNAME\tQTY\tLINE TOTAL\tDISCOUNT\tSUBTOTAL\tTAX\tTOTAL")
	for _, line := range r.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			line.RowID, line.ID, line.Name, line.Quantity,
			line.LineTotal, line.Discount, line.Subtotal, line.Tax, line.Total)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nitems: %d, quantity: %d, weight: %d\n", r.CountItems, r.Count, r.Weight)
	fmt.Fprintf(w, "price total: %s %s\n", r.PriceTotal, r.Currency)
	fmt.Fprintf(w, "discount:    %s %s\n", r.Discount, r.Currency)
	fmt.Fprintf(w, "subtotal:    %s %s\n", r.Subtotal, r.Currency)
	fmt.Fprintf(w, "tax:         %s %s\n", r.Tax, r.Currency)
	_, err := fmt.Fprintf(w, "total:       %s %s\n", r.Total, r.Currency)
	return err
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
