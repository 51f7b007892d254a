package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"oms/internal/bus"
	"oms/internal/obs"
	"oms/internal/og"
	"oms/internal/ops"
	"oms/internal/order"
	"oms/internal/risk"
	"oms/internal/schema"
	"oms/internal/venue"
)

func main() {
	input := flag.String("input", "cmd/tools/paper/testdata/intents.csv", "CSV file of order intents")
	configPath := flag.String("config", "", "Path to YAML or JSON config")
	balance := flag.String("balance", "100000", "Starting paper balance")
	prices := flag.String("prices", "BTC=30000,ETH=1500,SOL=20", "Reference prices as SYMBOL=PRICE pairs")
	fillResting := flag.Bool("fill-resting", false, "Fill resting orders after submission and reconcile them")
	chaosFail := flag.Float64("chaos-fail-rate", -1, "Override venue chaos fail rate (-1 keeps config)")
	wait := flag.Duration("wait", 5*time.Second, "Max time to wait for each order to settle")
	flag.Parse()

	cfg := ops.Default()
	if *configPath != "" {
		loaded, err := ops.Load(*configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		cfg = loaded
	}
	cfg.Venue.Kind = ops.VenuePaper
	if *chaosFail >= 0 {
		cfg.Venue.Chaos.FailRate = *chaosFail
	}
	if err := applyPaperFlags(&cfg.Venue.Paper, *balance, *prices); err != nil {
		log.Fatalf("paper flags invalid: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("open input failed: %v", err)
	}
	intents, err := readIntents(f)
	_ = f.Close()
	if err != nil {
		log.Fatalf("read intents failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := run(ctx, cfg, intents, *fillResting, *wait)
	if err != nil {
		log.Fatalf("paper run failed: %v", err)
	}
	if err := printSummary(out); err != nil {
		log.Fatalf("print summary failed: %v", err)
	}
}

type summary struct {
	Events  []eventLine     `json:"events"`
	Orders  []orderLine     `json:"orders"`
	Risk    risk.Snapshot   `json:"risk"`
	Balance decimal.Decimal `json:"balance"`
}

type eventLine struct {
	Seq     uint64         `json:"seq"`
	Topic   schema.Topic   `json:"topic"`
	Payload schema.Payload `json:"payload"`
}

type orderLine struct {
	Key     string        `json:"orderId"`
	State   og.OrderState `json:"state,omitempty"`
	Retries int           `json:"retries"`
	// Invalid intents are refused before a state record exists.
	Invalid bool `json:"invalid,omitempty"`
}

func run(ctx context.Context, cfg ops.Config, intents []schema.OrderIntent, fillResting bool, wait time.Duration) (summary, error) {
	metrics := obs.NewMetrics()
	recorder := bus.NewRecorder(metrics)
	defer func() {
		_ = recorder.Close()
	}()

	gate, err := risk.NewGate(cfg.Risk, risk.WithMetrics(metrics))
	if err != nil {
		return summary{}, err
	}
	states, err := og.NewStateMachine(cfg.Order.MaxRetries, og.WithMetrics(metrics))
	if err != nil {
		return summary{}, err
	}
	v, paper, err := ops.BuildVenue(cfg.Venue)
	if err != nil {
		return summary{}, err
	}

	use, err := order.NewUsecase(cfg.Order.Config, order.Dependencies{
		Channel: recorder,
		Risk:    gate,
		States:  states,
		Venue:   v,
		Metrics: metrics,
	})
	if err != nil {
		return summary{}, err
	}
	if err := use.Start(ctx); err != nil {
		return summary{}, err
	}
	defer use.Stop()

	keys := make([]string, 0, len(intents))
	for _, intent := range intents {
		if intent.Key == "" {
			intent = intent.WithKey(order.NewOrderKey())
		}
		keys = append(keys, intent.Key)
		if err := recorder.Publish(ctx, schema.TopicOrderNew, intent.Payload()); err != nil {
			return summary{}, err
		}
		if !waitSettled(recorder, intent.Key, wait) {
			logs.Warnf("paper: order %s did not settle within %s", intent.Key, wait)
		}
	}

	if fillResting {
		for _, key := range keys {
			state, ok := states.State(key)
			if !ok || state.IsTerminal() || state == og.OrderStateError {
				continue
			}
			intent, _ := use.Intent(key)
			if _, err := paper.Fill(key, intent.Quantity); err != nil {
				logs.Warnf("paper: fill %s, err: %+v", key, err)
				continue
			}
			if _, err := use.GetOrderStatus(ctx, key); err != nil {
				logs.Warnf("paper: reconcile %s, err: %+v", key, err)
			}
		}
	}

	out := summary{Risk: gate.Snapshot(), Balance: paper.Balance()}
	for _, e := range recorder.Events() {
		out.Events = append(out.Events, eventLine{Seq: e.Header.Seq, Topic: e.Header.Topic, Payload: e.Payload})
	}
	for _, key := range keys {
		rec, ok := use.Record(key)
		if !ok {
			out.Orders = append(out.Orders, orderLine{Key: key, Invalid: true})
			continue
		}
		out.Orders = append(out.Orders, orderLine{Key: key, State: rec.State, Retries: rec.Retries})
	}
	return out, nil
}

// waitSettled polls the recorder until the order produced an outcome event.
func waitSettled(recorder *bus.Recorder, key string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	settled := []schema.Topic{schema.TopicOrderCreated, schema.TopicOrderRejected, schema.TopicOrderError}
	for time.Now().Before(deadline) {
		for _, topic := range settled {
			for _, e := range recorder.EventsByTopic(topic) {
				if e.Payload.String(schema.FieldOrderKey) == key {
					return true
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func applyPaperFlags(cfg *venue.PaperConfig, balance, prices string) error {
	if balance != "" && cfg.Balance.IsZero() {
		b, err := decimal.NewFromString(balance)
		if err != nil {
			return fmt.Errorf("balance %q: %w", balance, err)
		}
		cfg.Balance = b
	}
	if prices == "" {
		return nil
	}
	if cfg.Prices == nil {
		cfg.Prices = make(map[string]float64)
	}
	for _, pair := range strings.Split(prices, ",") {
		symbol, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("price pair %q: missing '='", pair)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("price pair %q: %w", pair, err)
		}
		if _, exists := cfg.Prices[symbol]; !exists {
			cfg.Prices[symbol] = price.InexactFloat64()
		}
	}
	return nil
}

func printSummary(s summary) error {
	data, err := sonic.ConfigStd.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
