package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// WalletEvent mirrors the messages the server publishes to the wallet
// event topic.
type WalletEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	PlayerID  int64     `json:"player_id"`
	Amount    int64     `json:"amount,omitempty"`
	Balance   int64     `json:"balance,omitempty"`
	ProductID string    `json:"product_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type tailHandler struct {
	playerFilter int64
	typeFilter   string
	consumed     *atomic.Int64
}

func (h *tailHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *tailHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *tailHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var event WalletEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			fmt.Printf("  [partition %d offset %d] unparseable message: %v\n", msg.Partition, msg.Offset, err)
			session.MarkMessage(msg, "")
			continue
		}

		if h.playerFilter != 0 && event.PlayerID != h.playerFilter {
			session.MarkMessage(msg, "")
			continue
		}
		if h.typeFilter != "" && event.Type != h.typeFilter {
			session.MarkMessage(msg, "")
			continue
		}

		h.consumed.Add(1)
		printEvent(msg.Partition, msg.Offset, &event)
		session.MarkMessage(msg, "")
	}
	return nil
}

func printEvent(partition int32, offset int64, event *WalletEvent) {
	ts := event.Timestamp.Format(time.RFC3339)
	switch event.Type {
	case "credit":
		fmt.Printf("  %s  player=%d  %-6s  +%d coins (%s)  balance=%d  [p%d/%d]\n",
			ts, event.PlayerID, event.Type, event.Amount, event.ProductID, event.Balance, partition, offset)
	case "debit":
		reason := event.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Printf("  %s  player=%d  %-6s  -%d coins (%s)  balance=%d  [p%d/%d]\n",
			ts, event.PlayerID, event.Type, event.Amount, reason, event.Balance, partition, offset)
	default:
		fmt.Printf("  %s  player=%d  %-6s  [p%d/%d]\n",
			ts, event.PlayerID, event.Type, partition, offset)
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "wallet-events", "Kafka topic")
	group := flag.String("group", "audit-tail", "Consumer group ID")
	player := flag.Int64("player", 0, "Only show events for this player ID (0 = all)")
	eventType := flag.String("type", "", "Only show events of this type (credit, debit, merge)")
	fromBeginning := flag.Bool("from-beginning", false, "Start from the oldest available offset")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  📋 Wallet Audit Tail")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:    %s\n", *brokers)
	fmt.Printf("  Topic:      %s\n", *topic)
	fmt.Printf("  Group:      %s\n", *group)
	if *player != 0 {
		fmt.Printf("  Player:     %d\n", *player)
	}
	if *eventType != "" {
		fmt.Printf("  Type:       %s\n", *eventType)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama consumer
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	if *fromBeginning {
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		config.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	consumerGroup, err := sarama.NewConsumerGroup(brokerList, *group, config)
	if err != nil {
		log.Fatalf("Failed to create consumer group: %v", err)
	}
	defer consumerGroup.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumed atomic.Int64
	handler := &tailHandler{
		playerFilter: *player,
		typeFilter:   *eventType,
		consumed:     &consumed,
	}

	// Surface rebalance and broker errors without stopping the tail
	go func() {
		for err := range consumerGroup.Errors() {
			fmt.Printf("  consumer error: %v\n", err)
		}
	}()

	go func() {
		for {
			if err := consumerGroup.Consume(ctx, []string{*topic}, handler); err != nil {
				log.Fatalf("Consume failed: %v", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	// Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	cancel()
	fmt.Printf("\n  Done. %d events shown.\n", consumed.Load())
}
