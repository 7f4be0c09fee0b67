package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type DynamoKeyValueStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoKeyValueStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoKeyValueStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoKeyValueStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	item, err := getItem[dynamoValue](dynamoStore, ctx, valuePK(key), valueSK, true)
	if err != nil {
		return "", err
	}
	return item.Value, nil
}

func (dynamoStore *DynamoKeyValueStore) Set(ctx context.Context, key string, value string) error {
	return putItem(dynamoStore, ctx, valueToDynamo(key, value, time.Now().UnixMilli()))
}
