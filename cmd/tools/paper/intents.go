package main

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var requiredColumns = []string{
	schema.FieldSymbol,
	schema.FieldSide,
	schema.FieldQuantity,
}

// readIntents parses one intent per row. The header row names the columns;
// order_id, strategy_id, order_type, price and stop_price are optional.
func readIntents(r io.Reader) ([]schema.OrderIntent, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, errors.Wrapf(exception.ErrInvalidConfig, "csv column %s is missing", col)
		}
	}

	var intents []schema.OrderIntent
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return intents, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv row %d", row)
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		num := func(name string) (decimal.Decimal, error) {
			v := field(name)
			if v == "" {
				return decimal.Zero, nil
			}
			d, err := decimal.NewFromString(v)
			if err != nil {
				return decimal.Zero, errors.Wrapf(exception.ErrOrderInvalidIntent, "row %d %s %q", row, name, v)
			}
			return d, nil
		}

		intent := schema.OrderIntent{
			Key:        field(schema.FieldOrderKey),
			StrategyID: field(schema.FieldStrategyID),
			Symbol:     field(schema.FieldSymbol),
			Side:       schema.ParseOrderSide(field(schema.FieldSide)),
			Type:       schema.ParseOrderType(field(schema.FieldOrderType)),
		}
		if intent.Quantity, err = num(schema.FieldQuantity); err != nil {
			return nil, err
		}
		if intent.Price, err = num(schema.FieldPrice); err != nil {
			return nil, err
		}
		if intent.StopPrice, err = num(schema.FieldStopPrice); err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
}
