package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used for push and SMS.
type SNSAPI interface {
	CreatePlatformEndpoint(ctx context.Context, in *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ SNSAPI = (*sns.Client)(nil)

// PushSender delivers mobile push through an SNS platform application.
// The target is the device's FCM registration token.
type PushSender struct {
	client      SNSAPI
	platformARN string
}

func NewPushSender(client SNSAPI, platformARN string) *PushSender {
	return &PushSender{client: client, platformARN: platformARN}
}

func (p *PushSender) Send(ctx context.Context, token, title, body string) error {
	// CreatePlatformEndpoint is idempotent for a token already registered
	// with the same attributes and returns the existing ARN.
	ep, err := p.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(p.platformARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		return fmt.Errorf("create platform endpoint: %w", err)
	}
	endpoint := aws.ToString(ep.EndpointArn)
	if endpoint == "" {
		return errors.New("create platform endpoint: empty endpoint arn")
	}

	msg, err := gcmMessage(title, body)
	if err != nil {
		return err
	}
	if _, err := p.client.Publish(ctx, &sns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(msg),
		TargetArn:        aws.String(endpoint),
	}); err != nil {
		return fmt.Errorf("publish push: %w", err)
	}
	return nil
}

// gcmMessage builds the per-protocol SNS envelope; the GCM entry must itself
// be a JSON string.
func gcmMessage(title, body string) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gcm payload: %w", err)
	}
	raw, err := json.Marshal(map[string]string{
		"default": body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", fmt.Errorf("marshal sns message: %w", err)
	}
	return string(raw), nil
}

// SMSSender sends text messages through SNS direct publish. The target
// is an E.164 phone number.
type SMSSender struct {
	client SNSAPI
}

func NewSMSSender(client SNSAPI) *SMSSender {
	return &SMSSender{client: client}
}

func (s *SMSSender) Send(ctx context.Context, phone, title, body string) error {
	if _, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(title + "\n" + body),
	}); err != nil {
		return fmt.Errorf("publish sms: %w", err)
	}
	return nil
}
