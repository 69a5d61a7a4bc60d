package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-notify/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Address is an email recipient or sender.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Personalization is one recipient of a templated batch and their own fields.
type Personalization struct {
	To     Address
	Fields map[string]any
}

// Message is one templated send to many recipients. Static fields are shared by
// every personalization; a personalized field with the same name wins.
type Message struct {
	TemplateID       string
	Static           map[string]any
	Personalizations []Personalization
}

// Mailer sends templated email batches.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// StatusError is a non-2xx response from the provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mail provider returned %d: %s", e.Code, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type client struct {
	url     string
	apiKey  string
	from    Address
	http    *http.Client
	limiter *rate.Limiter
	retries uint
	delay   time.Duration
	log     *zap.Logger
}

func NewClient(cfg *config.Config, log *zap.Logger) Mailer {
	return &client{
		url:     cfg.MailAPIURL,
		apiKey:  cfg.MailAPIKey,
		from:    Address{Email: cfg.MailFrom},
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.MailRatePerSec), 1),
		retries: uint(max(cfg.MailMaxRetries, 1)),
		delay:   500 * time.Millisecond,
		log:     log.Named("mail"),
	}
}

// wire types follow the provider's v3 send API.
type wireMessage struct {
	From             Address           `json:"from"`
	TemplateID       string            `json:"template_id"`
	Personalizations []wirePersonalize `json:"personalizations"`
}

type wirePersonalize struct {
	To                  []Address      `json:"to"`
	DynamicTemplateData map[string]any `json:"dynamic_template_data"`
}

func (c *client) Send(ctx context.Context, msg Message) error {
	if len(msg.Personalizations) == 0 {
		return nil
	}
	body, err := json.Marshal(c.wire(msg))
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	return retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			return c.post(ctx, body)
		},
		retry.Context(ctx),
		retry.Attempts(c.retries),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Temporary()
			}
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying mail send",
				zap.Uint("attempt", n+1),
				zap.String("template", msg.TemplateID),
				zap.Error(err))
		}),
	)
}

func (c *client) wire(msg Message) wireMessage {
	out := wireMessage{
		From:             c.from,
		TemplateID:       msg.TemplateID,
		Personalizations: make([]wirePersonalize, 0, len(msg.Personalizations)),
	}
	for _, p := range msg.Personalizations {
		data := make(map[string]any, len(msg.Static)+len(p.Fields))
		for k, v := range msg.Static {
			data[k] = v
		}
		for k, v := range p.Fields {
			data[k] = v
		}
		out.Personalizations = append(out.Personalizations, wirePersonalize{
			To:                  []Address{p.To},
			DynamicTemplateData: data,
		})
	}
	return out
}

func (c *client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
}
