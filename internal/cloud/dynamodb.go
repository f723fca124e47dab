package cloud

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// lease is one row of the lock table. expiresAt doubles as the table TTL attribute.
type lease struct {
	LockKey   string `dynamodbav:"lockKey"`
	Owner     string `dynamodbav:"owner"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
}

// DynamoLock is a lease-based run lock on a DynamoDB table keyed by lockKey.
// An expired lease can be taken over, so a crashed holder blocks for at most ttl.
type DynamoLock struct {
	svc   dynamoAPI
	table string
	ttl   time.Duration
	owner string
	now   func() time.Time
}

func NewDynamoLock(ctx context.Context, region, table string, ttl time.Duration) (*DynamoLock, error) {
	if table == "" {
		return nil, errors.New("dynamodb lock: empty table name")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newDynamoLock(dynamodb.NewFromConfig(cfg), table, ttl), nil
}

func newDynamoLock(svc dynamoAPI, table string, ttl time.Duration) *DynamoLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	host, _ := os.Hostname()
	return &DynamoLock{
		svc:   svc,
		table: table,
		ttl:   ttl,
		owner: host + "/" + uuid.NewString(),
		now:   time.Now,
	}
}

func (l *DynamoLock) TryLock(ctx context.Context, key string) (bool, error) {
	now := l.now()
	item, err := attributevalue.MarshalMap(lease{
		LockKey:   key,
		Owner:     l.owner,
		ExpiresAt: now.Add(l.ttl).Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal lease: %w", err)
	}

	_, err = l.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(lockKey) OR expiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var held *types.ConditionalCheckFailedException
		if errors.As(err, &held) {
			return false, nil
		}
		return false, fmt.Errorf("failed to put lease in DynamoDB: %w", err)
	}
	return true, nil
}

// Unlock removes the lease only when this process still owns it.
func (l *DynamoLock) Unlock(ctx context.Context, key string) error {
	_, err := l.svc.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key: map[string]types.AttributeValue{
			"lockKey": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: l.owner},
		},
	})
	if err != nil {
		var lost *types.ConditionalCheckFailedException
		if errors.As(err, &lost) {
			return nil
		}
		return fmt.Errorf("failed to delete lease from DynamoDB: %w", err)
	}
	return nil
}
