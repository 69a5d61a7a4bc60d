package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-notify/internal/config"
)

// ErrEndpointDisabled is returned when the platform endpoint no longer accepts
// messages, e.g. the app was uninstalled.
var ErrEndpointDisabled = errors.New("push endpoint disabled")

// PushMessage is the platform-neutral content of one push notification.
type PushMessage struct {
	Title string
	Body  string
	URL   string
	Image string
	// Data is delivered to the app alongside the visible alert.
	Data map[string]string
}

// PushSender delivers push notifications to SNS platform endpoints.
type PushSender interface {
	SendPush(ctx context.Context, endpointARN string, msg PushMessage) error
}

type publishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type sender struct {
	client publishAPI
}

func NewPushSender(cfg *config.Config) (PushSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SNSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	var clientOpts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &sender{client: sns.NewFromConfig(awsCfg, clientOpts...)}, nil
}

func (s *sender) SendPush(ctx context.Context, endpointARN string, msg PushMessage) error {
	body, err := platformPayload(msg)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpointARN),
		Message:          aws.String(body),
		MessageStructure: aws.String("json"),
	})
	var disabled *types.EndpointDisabledException
	if errors.As(err, &disabled) {
		return fmt.Errorf("%s: %w", endpointARN, ErrEndpointDisabled)
	}
	return err
}

// platformPayload renders msg in the per-platform envelope SNS expects when
// MessageStructure is "json": each value is itself a JSON string.
func platformPayload(msg PushMessage) (string, error) {
	data := map[string]string{"url": msg.URL}
	for k, v := range msg.Data {
		data[k] = v
	}

	apns, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert":           map[string]string{"title": msg.Title, "body": msg.Body},
			"sound":           "default",
			"mutable-content": 1,
		},
		"image": msg.Image,
		"data":  data,
	})
	if err != nil {
		return "", err
	}
	fcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body, "image": msg.Image},
		"data":         data,
	})
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(map[string]string{
		"default":      msg.Title,
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
		"GCM":          string(fcm),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
