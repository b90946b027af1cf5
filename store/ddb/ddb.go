// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package ddb adapts dynalease's store.Store onto DynamoDB's conditional
// PutItem/DeleteItem vocabulary, using github.com/aws/aws-sdk-go-v2's
// dynamodb client.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/coredhcp/dynalease/store"
)

const (
	attrKey     = "key"
	attrExpiry  = "lease_expiry"
	attrVersion = "lease_version"
)

// Client is a dynamodb-backed store.Store.
type Client struct {
	ddb   *dynamodb.Client
	table string
	log   *logrus.Entry
}

// New wraps an existing dynamodb.Client for the named table. It does not
// check the table's schema; call CheckSchema (or use it through
// leaseclient, which does so at construction) before relying on it.
func New(ddb *dynamodb.Client, table string) *Client {
	return &Client{
		ddb:   ddb,
		table: table,
		log:   logrus.StandardLogger().WithField("component", "store/ddb"),
	}
}

func (c *Client) AcquireOrReplace(ctx context.Context, key, version string, now time.Time, ttl time.Duration) (store.Outcome, error) {
	_, err := c.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			attrKey:     &types.AttributeValueMemberS{Value: key},
			attrExpiry:  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(ttl).Unix())},
			attrVersion: &types.AttributeValueMemberS{Value: version},
		},
		ConditionExpression: aws.String(
			"attribute_not_exists(#k) OR #exp <= :now",
		),
		ExpressionAttributeNames: map[string]string{
			"#k":   attrKey,
			"#exp": attrExpiry,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	return c.classifyWrite(ctx, "acquire", err, store.Acquired, store.Held)
}

func (c *Client) ExtendIfMine(ctx context.Context, key, expectedVersion, newVersion string, now time.Time, ttl time.Duration) (store.Outcome, error) {
	_, err := c.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			attrKey:     &types.AttributeValueMemberS{Value: key},
			attrExpiry:  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(ttl).Unix())},
			attrVersion: &types.AttributeValueMemberS{Value: newVersion},
		},
		ConditionExpression: aws.String("attribute_exists(#k) AND #ver = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#k":   attrKey,
			"#ver": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expectedVersion},
		},
	})
	return c.classifyWrite(ctx, "extend", err, store.Extended, store.Lost)
}

func (c *Client) DeleteIfMine(ctx context.Context, key, expectedVersion string) (store.Outcome, error) {
	_, err := c.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			attrKey: &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("attribute_exists(#k) AND #ver = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#k":   attrKey,
			"#ver": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expectedVersion},
		},
	})
	return c.classifyWrite(ctx, "delete", err, store.Deleted, store.Lost)
}

// classifyWrite turns a conditional write's error (or lack of one) into an
// Outcome, distinguishing a failed condition (conditionFailed) from a
// genuine I/O problem (TransientError).
func (c *Client) classifyWrite(ctx context.Context, op string, err error, success, conditionFailed store.Outcome) (store.Outcome, error) {
	if err == nil {
		return success, nil
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return conditionFailed, nil
	}

	c.log.WithError(err).WithField("op", op).Warn("store operation failed")
	return 0, &store.TransientError{Op: op, Err: err}
}
