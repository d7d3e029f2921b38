package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/venue/matching"
	"github.com/urfave/cli"
)

// jsonOrder is a single order as read from a book file.
type jsonOrder struct {
	Price  string `json:"price"`
	Volume uint64 `json:"volume"`
}

// jsonBook is the book file format: two arrays of limit orders. The orders
// don't need to be sorted, the tool sorts both sides before clearing.
type jsonBook struct {
	Asks []jsonOrder `json:"asks"`
	Bids []jsonOrder `json:"bids"`
}

var bookFlag = cli.StringFlag{
	Name:  "book",
	Usage: "path to a JSON file with the asks and bids to clear",
}

// loadBook reads a book file and returns the ask and bid streams sorted the
// way the clearing engine expects them.
func loadBook(ctx *cli.Context) ([]matching.Order[decimal.Decimal],
	[]matching.Order[decimal.Decimal], error) {

	bookPath := ctx.String("book")
	if bookPath == "" {
		return nil, nil, fmt.Errorf("book file is required")
	}

	rawBook, err := os.ReadFile(bookPath)
	if err != nil {
		return nil, nil, err
	}

	var book jsonBook
	if err := json.Unmarshal(rawBook, &book); err != nil {
		return nil, nil, fmt.Errorf("unable to parse book: %v", err)
	}

	parseSide := func(side []jsonOrder) (
		[]matching.Order[decimal.Decimal], error) {

		orders := make([]matching.Order[decimal.Decimal], len(side))
		for i, o := range side {
			price, err := decimal.NewFromString(o.Price)
			if err != nil {
				return nil, fmt.Errorf("invalid price %q: "+
					"%v", o.Price, err)
			}
			orders[i] = matching.Order[decimal.Decimal]{
				Price:  price,
				Volume: o.Volume,
			}
		}
		return orders, nil
	}

	asks, err := parseSide(book.Asks)
	if err != nil {
		return nil, nil, err
	}
	bids, err := parseSide(book.Bids)
	if err != nil {
		return nil, nil, err
	}

	sort.SliceStable(asks, func(i, j int) bool {
		return order.PriceLess(asks[i].Price, asks[j].Price)
	})
	sort.SliceStable(bids, func(i, j int) bool {
		return order.PriceLess(bids[j].Price, bids[i].Price)
	})

	return asks, bids, nil
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}

	fmt.Println(string(jsonBytes))
	return nil
}

var clearCommand = cli.Command{
	Name:  "clear",
	Usage: "clear a book at a single uniform price",
	Description: `
	Reads a JSON book file and determines the single clearing price that
	maximises the matched volume. Prints the result as JSON.`,
	Flags:  []cli.Flag{bookFlag},
	Action: clear,
}

func clear(ctx *cli.Context) error {
	asks, bids, err := loadBook(ctx)
	if err != nil {
		return err
	}

	fill, ok := matching.Clear[decimal.Decimal](
		matching.NewSliceSource(asks), matching.NewSliceSource(bids),
		order.PriceLess,
	)
	if !ok {
		return printJSON(struct {
			Match bool `json:"match"`
		}{})
	}

	return printJSON(struct {
		Match  bool   `json:"match"`
		Price  string `json:"price"`
		Volume uint64 `json:"volume"`
	}{
		Match:  true,
		Price:  fill.Price.String(),
		Volume: fill.Volume,
	})
}

var clearRangeCommand = cli.Command{
	Name:  "clearrange",
	Usage: "determine the full optimal clearing price range of a book",
	Description: `
	Reads a JSON book file and determines the closed price interval in
	which the maximum volume is achievable. Prints the result as JSON.`,
	Flags:  []cli.Flag{bookFlag},
	Action: clearRange,
}

func clearRange(ctx *cli.Context) error {
	asks, bids, err := loadBook(ctx)
	if err != nil {
		return err
	}

	rangeFill, ok := matching.ClearRange[decimal.Decimal](
		matching.NewSliceSource(asks), matching.NewSliceSource(bids),
		order.PriceLess,
	)
	if !ok {
		return printJSON(struct {
			Match bool `json:"match"`
		}{})
	}

	return printJSON(struct {
		Match  bool   `json:"match"`
		Low    string `json:"low"`
		High   string `json:"high"`
		Volume uint64 `json:"volume"`
	}{
		Match:  true,
		Low:    rangeFill.Range.Low.String(),
		High:   rangeFill.Range.High.String(),
		Volume: rangeFill.Volume,
	})
}

var validateBookCommand = cli.Command{
	Name:  "validatebook",
	Usage: "check that a book file upholds the engine's sort contracts",
	Description: `
	Reads a JSON book file and verifies that the asks are sorted
	non-descending and the bids non-ascending by price, as the clearing
	engine expects from its callers.`,
	Flags:  []cli.Flag{bookFlag},
	Action: validateBook,
}

func validateBook(ctx *cli.Context) error {
	bookPath := ctx.String("book")
	if bookPath == "" {
		return fmt.Errorf("book file is required")
	}

	rawBook, err := os.ReadFile(bookPath)
	if err != nil {
		return err
	}

	var book jsonBook
	if err := json.Unmarshal(rawBook, &book); err != nil {
		return fmt.Errorf("unable to parse book: %v", err)
	}

	checkSide := func(side []jsonOrder, ascending bool) error {
		var prev decimal.Decimal
		for i, o := range side {
			price, err := decimal.NewFromString(o.Price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %v",
					o.Price, err)
			}
			if i > 0 {
				outOfOrder := order.PriceLess(price, prev)
				if !ascending {
					outOfOrder = order.PriceLess(
						prev, price,
					)
				}
				if outOfOrder {
					return fmt.Errorf("order %d out of "+
						"sequence: %v after %v", i,
						price, prev)
				}
			}
			prev = price
		}
		return nil
	}

	if err := checkSide(book.Asks, true); err != nil {
		return fmt.Errorf("asks: %v", err)
	}
	if err := checkSide(book.Bids, false); err != nil {
		return fmt.Errorf("bids: %v", err)
	}

	fmt.Println("book is correctly sorted")
	return nil
}
