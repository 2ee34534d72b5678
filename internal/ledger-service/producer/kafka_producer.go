package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica os eventos de aposta, um writer por tópico.
// A chave é o account_id, mantendo a ordem dos eventos de cada conta
// dentro da mesma partição.
type KafkaPublisher struct {
	Placed  MessageWriter
	Settled MessageWriter
	log     *zap.Logger
}

func NewKafkaPublisher(placed, settled MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{Placed: placed, Settled: settled, log: log}
}

func (p *KafkaPublisher) WagerPlaced(ctx context.Context, e events.WagerPlaced) error {
	return p.write(ctx, p.Placed, e.AccountID, e, "wager placed")
}

func (p *KafkaPublisher) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	return p.write(ctx, p.Settled, e.AccountID, e, "wager settled")
}

func (p *KafkaPublisher) write(ctx context.Context, w MessageWriter, accountID int64, e any, what string) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(accountID, 10)),
		Value: value,
		Time:  time.Now(),
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish "+what, zap.Int64("account_id", accountID), zap.Error(err))
		return err
	}

	p.log.Debug("published "+what, zap.Int64("account_id", accountID))
	return nil
}
