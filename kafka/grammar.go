// Package kafka implements a streaming grammar reading JSON-encoded
// catalog records from a kafka consumer group. MaxRecords bounds the
// stream so an ingest run terminates like a file source would.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	"github.com/pkg/errors"

	cdk "github.com/heliodc/cdk"
)

// Grammar holds the consumer configuration. The source token passed to
// Open is the topic name; an empty token falls back to Topics.
type Grammar struct {
	Hosts      []string
	Topics     []string
	Group      string
	MaxRecords int
	Opts       cdk.Options
}

// NewGrammar returns a Grammar with the usual localhost defaults.
func NewGrammar() *Grammar {
	return &Grammar{
		Hosts:  []string{"localhost:9092"},
		Topics: []string{"test"},
		Group:  "group0",
	}
}

// Open connects the consumer group.
func (g *Grammar) Open(ctx context.Context, src interface{}) (cdk.RowIterator, error) {
	topics := g.Topics
	if s, ok := src.(string); ok && s != "" {
		topics = []string{s}
	}
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	config := cluster.NewConfig()
	config.Config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Group.Return.Notifications = true

	consumer, err := cluster.NewConsumer(g.Hosts, g.Group, topics, config)
	if err != nil {
		return nil, errors.Wrap(err, "getting new consumer")
	}
	go func() {
		for err := range consumer.Errors() {
			log.Printf("kafka error: %v", err)
		}
	}()
	go func() {
		for ntf := range consumer.Notifications() {
			log.Printf("kafka rebalanced: %+v", ntf)
		}
	}()
	it := &iterator{grammar: g, consumer: consumer, locator: "kafka, no message yet"}
	return cdk.Wrap(ctx, it, g.Opts), nil
}

type iterator struct {
	grammar  *Grammar
	consumer *cluster.Consumer
	numMsgs  int
	locator  string
}

func (it *iterator) Next() (cdk.Record, error) {
	if it.grammar.MaxRecords > 0 && it.numMsgs >= it.grammar.MaxRecords {
		return nil, io.EOF
	}
	msg, ok := <-it.consumer.Messages()
	if !ok {
		return nil, io.EOF
	}
	it.numMsgs++
	it.locator = fmt.Sprintf("%s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
	parsed := make(map[string]interface{})
	if err := json.Unmarshal(msg.Value, &parsed); err != nil {
		return nil, &cdk.ParseError{
			Msg:      errors.Wrap(err, "unmarshaling json").Error(),
			Location: it.locator,
			Offender: string(msg.Value),
		}
	}
	it.consumer.MarkOffset(msg, "") // mark message as processed
	rec := make(cdk.Record, len(parsed))
	for k, v := range parsed {
		rec[k] = v
	}
	return rec, nil
}

func (it *iterator) Locator() string { return it.locator }

func (it *iterator) Params() cdk.Record { return cdk.Record{} }

func (it *iterator) Close() error {
	return errors.Wrap(it.consumer.Close(), "closing kafka consumer")
}
