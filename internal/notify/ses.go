package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

var _ SESAPI = (*ses.Client)(nil)

// EmailSender delivers plain-text mail through SES from a verified sender.
type EmailSender struct {
	client SESAPI
	from   string
}

func NewEmailSender(client SESAPI, from string) *EmailSender {
	return &EmailSender{client: client, from: from}
}

func (e *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := e.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(body),
				},
			},
		},
		Source: aws.String(e.from),
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
