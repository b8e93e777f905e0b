// internal/common/aws/notifier.go
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"house-price-workers/internal/common/config"
)

var (
	ErrEmailDisabled = errors.New("email delivery is disabled")
	ErrSMSDisabled   = errors.New("sms delivery is disabled")
)

// SESService is the subset of the SES client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the subset of the SNS client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Email is a plain-text plus HTML message.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Notifier sends email through SES and SMS through SNS. Either client may be nil
// when its channel is disabled in config.
type Notifier struct {
	ses       SESService
	sns       SNSService
	fromEmail string
	senderID  string
}

func NewNotifier(sesClient SESService, snsClient SNSService, fromEmail, senderID string) *Notifier {
	return &Notifier{ses: sesClient, sns: snsClient, fromEmail: fromEmail, senderID: senderID}
}

// NewNotifierFromConfig loads the default AWS credential chain once and
// builds the clients for the enabled channels.
func NewNotifierFromConfig(ctx context.Context, cfg config.IntegrationConfig) (*Notifier, error) {
	n := &Notifier{
		fromEmail: cfg.AWS.SES.FromEmail,
		senderID:  cfg.AWS.SNS.DefaultSMSSenderID,
	}
	if !cfg.AWS.SES.Enabled && !cfg.AWS.SNS.Enabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.AWS.SES.Enabled {
		n.ses = ses.NewFromConfig(awsCfg)
	}
	if cfg.AWS.SNS.Enabled {
		n.sns = sns.NewFromConfig(awsCfg)
	}
	return n, nil
}

func (n *Notifier) EmailEnabled() bool { return n != nil && n.ses != nil }
func (n *Notifier) SMSEnabled() bool   { return n != nil && n.sns != nil }

// SendEmail returns the SES message id.
func (n *Notifier) SendEmail(ctx context.Context, msg Email) (string, error) {
	if !n.EmailEnabled() {
		return "", ErrEmailDisabled
	}

	body := &sestypes.Body{Text: &sestypes.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}}
	if msg.HTML != "" {
		body.Html = &sestypes.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}

	out, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{ToAddresses: []string{msg.To}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Source: aws.String(n.fromEmail),
	})
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// SendSMS publishes a transactional text message and returns the SNS message id.
func (n *Notifier) SendSMS(ctx context.Context, phone, message string) (string, error) {
	if !n.SMSEnabled() {
		return "", ErrSMSDisabled
	}

	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if n.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(n.senderID),
		}
	}

	out, err := n.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
