// internal/notify/channels.go
package notify

import (
	"context"
	"time"

	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	awsclients "poultry-workflow/internal/common/aws"
	"poultry-workflow/internal/common/logger"
)

const notifyTimeout = 15 * time.Second

// Email delivers events over SES to the applicant's email address.
type Email struct {
	client *awsclients.SESClient
	from   string
}

func NewEmail(client *awsclients.SESClient, from string) *Email {
	return &Email{client: client, from: from}
}

func (e *Email) Notify(ctx context.Context, event Event) error {
	if event.Email == "" {
		return nil
	}

	_, err := e.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(e.from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{event.Email},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject(event))},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body(event))},
			},
		},
	})
	return err
}

// SMS delivers events over SNS to the applicant's phone number.
type SMS struct {
	client   *awsclients.SNSClient
	senderID string
}

func NewSMS(client *awsclients.SNSClient, senderID string) *SMS {
	return &SMS{client: client, senderID: senderID}
}

func (s *SMS) Notify(ctx context.Context, event Event) error {
	if event.Phone == "" {
		return nil
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(event.Phone),
		Message:     aws.String(body(event)),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
		}
	}
	_, err := s.client.Publish(ctx, input)
	return err
}

// Log records events instead of delivering them. Default channel in
// development environments.
type Log struct {
	log logger.Logger
}

func NewLog(log logger.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, event Event) error {
	l.log.Info("Notification", map[string]interface{}{
		"applicationId": event.ApplicationID,
		"action":        string(event.Action),
		"status":        string(event.Status),
		"subject":       subject(event),
	})
	return nil
}
