package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/notify"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport publishes inverter alerts to an SNS topic.
type SNSTransport struct {
	svc      snsAPI
	topicArn string
}

// NewSNSTransport loads the default AWS credential chain for region.
func NewSNSTransport(ctx context.Context, region, topicArn string) (*SNSTransport, error) {
	if topicArn == "" {
		return nil, errors.New("sns: empty topic arn")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newSNSTransport(sns.NewFromConfig(cfg), topicArn), nil
}

func newSNSTransport(svc snsAPI, topicArn string) *SNSTransport {
	return &SNSTransport{svc: svc, topicArn: topicArn}
}

func (t *SNSTransport) Name() string { return "sns" }

func (t *SNSTransport) Send(ctx context.Context, msg notify.Message) (domain.NotificationReceipt, error) {
	input := &sns.PublishInput{
		TopicArn: aws.String(t.topicArn),
		Subject:  aws.String(msg.Subject),
		Message:  aws.String(msg.Body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"serial": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Serial)),
			},
		},
	}

	result, err := t.svc.Publish(ctx, input)
	if err != nil {
		return domain.NotificationReceipt{}, fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return domain.NotificationReceipt{Channel: t.Name(), MessageID: aws.ToString(result.MessageId)}, nil
}
