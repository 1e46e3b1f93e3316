package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/vetclinic-bot/internal/jobs"
)

const (
	Exchange  = "clinic.jobs"
	MainQueue = "clinic.jobs"

	returnsBuffer = 16
)

var (
	ErrNacked   = errors.New("broker nacked publish")
	ErrReturned = errors.New("broker returned unroutable message")
)

// RetryQueue: имя очереди ожидания для задержки d. TTL зашит в аргументы очереди,
// поэтому разные задержки живут в разных очередях.
func RetryQueue(d time.Duration) string {
	return fmt.Sprintf("%s.retry.%dms", MainQueue, d.Milliseconds())
}

// Client: соединение с RabbitMQ: публикация, отложенные повторы и потребление задач.
type Client struct {
	conn    *amqp.Connection
	log     *slog.Logger
	backoff jobs.Backoff

	mu       sync.Mutex
	pubCh    *amqp.Channel
	returns  chan amqp.Return
	declared map[string]bool
}

// Dial подключается с экспоненциальной задержкой между попытками.
func Dial(ctx context.Context, url string, attempts uint64, log *slog.Logger) (*Client, error) {
	log = log.With("component", "broker")

	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(30*time.Second, b)
	b = retry.WithMaxRetries(attempts, b)

	var attempt int
	conn, err := retry.DoValue(ctx, b, func(ctx context.Context) (*amqp.Connection, error) {
		attempt++
		c, err := amqp.Dial(url)
		if err != nil {
			log.Warn("rabbit dial failed", "attempt", attempt, "err", err)
			return nil, retry.RetryableError(err)
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	log.Info("rabbit connected", "attempt", attempt)
	return &Client{conn: conn, log: log, declared: map[string]bool{}}, nil
}

// Setup объявляет обменник, основную очередь и очереди ожидания для попыток 1..maxAttempts-1.
// Просроченное сообщение из очереди ожидания возвращается в основной обменник.
func (c *Client) Setup(backoff jobs.Backoff, maxAttempts int) error {
	c.backoff = backoff

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(MainQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(MainQueue, "#", Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for attempt := 1; attempt < maxAttempts; attempt++ {
		if err := c.declareRetry(ch, backoff.Delay(attempt)); err != nil {
			return err
		}
	}
	return nil
}

// declareRetry объявляет очередь ожидания для задержки d. Вызывается под c.mu.
func (c *Client) declareRetry(ch *amqp.Channel, d time.Duration) error {
	name := RetryQueue(d)
	if c.declared[name] {
		return nil
	}
	args := amqp.Table{
		"x-message-ttl":          int32(d.Milliseconds()),
		"x-dead-letter-exchange": Exchange,
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare %s: %w", name, err)
	}
	c.declared[name] = true
	return nil
}

// channel возвращает канал публикации в режиме подтверждений. Вызывается под c.mu.
func (c *Client) channel() (*amqp.Channel, error) {
	if c.pubCh != nil && !c.pubCh.IsClosed() {
		return c.pubCh, nil
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	c.returns = ch.NotifyReturn(make(chan amqp.Return, returnsBuffer))
	c.pubCh = ch
	return ch, nil
}

// publish возвращает nil только после ack брокера. Сообщение публикуется с mandatory:
// если его некуда маршрутизировать, брокер вернёт его, и это ошибка.
func (c *Client) publish(ctx context.Context, exchange, key string, m jobs.Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.channel()
	if err != nil {
		return err
	}
	drainReturns(c.returns)

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.JobID.String(),
		Type:         m.Kind,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return awaitConfirm(ctx, dc, c.returns, m.JobID.String())
}

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// awaitConfirm ждёт ack. basic.return приходит раньше basic.ack, поэтому к моменту
// подтверждения возврат, если он был, уже лежит в returns.
func awaitConfirm(ctx context.Context, dc confirmation, returns <-chan amqp.Return, messageID string) error {
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait confirm: %w", err)
	}
	if !acked {
		return ErrNacked
	}
	for {
		select {
		case r, ok := <-returns:
			if !ok {
				return nil
			}
			if r.MessageId == messageID {
				return fmt.Errorf("%w: %s (%d %s)", ErrReturned, r.RoutingKey, r.ReplyCode, r.ReplyText)
			}
		default:
			return nil
		}
	}
}

func drainReturns(returns <-chan amqp.Return) {
	for {
		select {
		case _, ok := <-returns:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) Publish(ctx context.Context, m jobs.Message) error {
	return c.publish(ctx, Exchange, m.Kind, m)
}

// Retry кладёт сообщение в очередь ожидания; по истечении TTL оно вернётся в основную очередь.
// Очередь под задержку объявляется при первой нужде: max_attempts задачи может превышать
// тот, с которым вызывался Setup.
func (c *Client) Retry(ctx context.Context, m jobs.Message, attempt int) error {
	d := c.backoff.Delay(attempt)
	c.mu.Lock()
	ch, err := c.channel()
	if err == nil {
		err = c.declareRetry(ch, d)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.publish(ctx, "", RetryQueue(d), m)
}

// Consume читает основную очередь concurrency обработчиками до отмены ctx
// или закрытия соединения.
func (c *Client) Consume(ctx context.Context, concurrency int, fn func(ctx context.Context, m jobs.Message) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.Consume(MainQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return errors.New("delivery channel closed")
					}
					c.handle(gctx, d, fn)
				}
			}
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if !ok {
				return errors.New("amqp channel closed")
			}
			return fmt.Errorf("amqp channel closed: %w", amqpErr)
		}
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) handle(ctx context.Context, d amqp.Delivery, fn func(ctx context.Context, m jobs.Message) error) {
	var m jobs.Message
	if err := json.Unmarshal(d.Body, &m); err != nil {
		c.log.Error("poison message dropped", "message_id", d.MessageId, "err", err)
		_ = d.Ack(false)
		return
	}
	if err := fn(ctx, m); err != nil {
		c.log.Warn("job processing failed, requeue", "job_id", m.JobID, "kind", m.Kind, "err", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.pubCh != nil {
		_ = c.pubCh.Close()
	}
	c.mu.Unlock()
	return c.conn.Close()
}
