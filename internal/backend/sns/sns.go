// Package sns publishes webhook payloads to Amazon SNS topics.
package sns

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/mattjoyce/hookrelay/internal/topic"
)

// maxSubjectLen is the SNS limit on the Subject parameter.
const maxSubjectLen = 100

// DeliveryIDAttribute is the message attribute carrying the webhook delivery ID.
const DeliveryIDAttribute = "delivery_id"

//go:generate mockgen -destination=mocks/mock_api.go -package=mocks github.com/mattjoyce/hookrelay/internal/backend/sns API

// API is the subset of the SNS client used by Backend.
type API interface {
	ListTopics(ctx context.Context, params *sns.ListTopicsInput, optFns ...func(*sns.Options)) (*sns.ListTopicsOutput, error)
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Options configures the SNS client.
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Backend implements topic.Backend on SNS.
type Backend struct {
	api API
}

// New loads AWS configuration and returns a Backend. Static credentials are
// used when both keys are set, otherwise the SDK default chain applies.
func New(ctx context.Context, o Options) (*Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(o.Region))

	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(so *sns.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
	})
	return NewWithAPI(client), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API) *Backend {
	return &Backend{api: api}
}

// ListTopics returns every topic ARN, following NextToken across pages.
func (b *Backend) ListTopics(ctx context.Context) ([]string, error) {
	var (
		arns  []string
		token *string
	)
	for {
		out, err := b.api.ListTopics(ctx, &sns.ListTopicsInput{NextToken: token})
		if err != nil {
			return nil, fmt.Errorf("sns list topics: %w", err)
		}
		for _, t := range out.Topics {
			if t.TopicArn != nil {
				arns = append(arns, *t.TopicArn)
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return arns, nil
		}
		token = out.NextToken
	}
}

// CreateTopic creates the topic. SNS returns the existing ARN when the
// name is already taken with the same attributes.
func (b *Backend) CreateTopic(ctx context.Context, name string) (string, error) {
	out, err := b.api.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("sns create topic %q: %w", name, err)
	}
	return aws.ToString(out.TopicArn), nil
}

func (b *Backend) Publish(ctx context.Context, in topic.PublishInput) (string, error) {
	params := &sns.PublishInput{
		TargetArn:        aws.String(in.TargetID),
		Subject:          aws.String(truncateSubject(in.Subject)),
		Message:          aws.String(in.Message),
		MessageStructure: aws.String(in.Structure),
	}
	if in.Structure == "" {
		params.MessageStructure = nil
	}
	if in.DeliveryID != "" {
		params.MessageAttributes = map[string]types.MessageAttributeValue{
			DeliveryIDAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(in.DeliveryID),
			},
		}
	}

	out, err := b.api.Publish(ctx, params)
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// truncateSubject cuts s to at most maxSubjectLen bytes without splitting a
// UTF-8 sequence.
func truncateSubject(s string) string {
	if len(s) <= maxSubjectLen {
		return s
	}
	cut := maxSubjectLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
