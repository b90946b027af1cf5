//go:build integration

// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package e2e_test runs the lease client against a real DynamoDB via a
// dynamodb-local container, built only with the integration tag since it
// needs a container runtime.
package e2e_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coredhcp/dynalease/leaseclient"
	"github.com/coredhcp/dynalease/store/ddb"
)

const testWait = 4 * time.Second

func startDynamoDBLocal(t *testing.T) *dynamodb.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "amazon/dynamodb-local:latest",
			ExposedPorts: []string{"8000/tcp"},
			WaitingFor:   wait.ForListeningPort("8000/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "8000", "http")
	require.NoError(t, err)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

func createLeaseTable(t *testing.T, client *dynamodb.Client, table string) {
	t.Helper()
	ctx := context.Background()

	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("key"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("key"), KeyType: types.KeyTypeHash},
		},
	})
	require.NoError(t, err)

	_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("lease_expiry"),
			Enabled:       aws.Bool(true),
		},
	})
	require.NoError(t, err)
}

func TestTryAcquireAcrossTwoClients(t *testing.T) {
	ctx := context.Background()
	db := startDynamoDBLocal(t)
	table := fmt.Sprintf("test-leases-%d", time.Now().UnixNano())
	createLeaseTable(t, db, table)

	store1 := ddb.New(db, table)
	client1, err := leaseclient.NewClient(ctx, store1, nil)
	require.NoError(t, err)

	// A second Client simulates a distributed peer sharing no local state
	// with the first, so the test actually exercises the store's
	// conditional writes instead of this process's own local lock.
	store2 := ddb.New(db, table)
	client2, err := leaseclient.NewClient(ctx, store2, nil)
	require.NoError(t, err)

	key := fmt.Sprintf("try_acquire:%d", time.Now().UnixNano())

	lease1, err := client1.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, lease1)

	lease2, err := client2.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.Nil(t, lease2)

	require.NoError(t, lease1.Release(ctx))

	lease2, err = client2.AcquireTimeout(ctx, key, testWait)
	require.NoError(t, err)
	require.NotNil(t, lease2)
	require.NoError(t, lease2.Release(ctx))
}

func TestInitRejectsMissingTable(t *testing.T) {
	ctx := context.Background()
	db := startDynamoDBLocal(t)

	s := ddb.New(db, "does-not-exist")
	_, err := leaseclient.NewClient(ctx, s, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}
