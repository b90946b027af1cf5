// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/coredhcp/dynalease/store"
)

// CheckSchema implements store.SchemaChecker. It verifies, in order, that
// the table exists, its hash key is named "key" of type S, and TTL is
// enabled on "lease_expiry". Each failure mode's message contains one of
// "missing", "key", "type", or "time to live" so callers can match on it.
func (c *Client) CheckSchema(ctx context.Context) error {
	desc, err := c.ddb.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.table),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return store.NewSchemaError(fmt.Sprintf("table %q is missing", c.table))
		}
		return &store.TransientError{Op: "describe-table", Err: err}
	}

	if err := checkHashKey(desc.Table); err != nil {
		return err
	}

	ttl, err := c.ddb.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(c.table),
	})
	if err != nil {
		return &store.TransientError{Op: "describe-ttl", Err: err}
	}
	if ttl.TimeToLiveDescription == nil ||
		ttl.TimeToLiveDescription.TimeToLiveStatus != types.TimeToLiveStatusEnabled ||
		aws.ToString(ttl.TimeToLiveDescription.AttributeName) != attrExpiry {
		return store.NewSchemaError(fmt.Sprintf(
			"time to live is not enabled on attribute %q", attrExpiry))
	}

	return nil
}

func checkHashKey(table *types.TableDescription) error {
	if table == nil {
		return store.NewSchemaError("table is missing")
	}

	var hashAttr string
	for _, ks := range table.KeySchema {
		if ks.KeyType == types.KeyTypeHash {
			hashAttr = aws.ToString(ks.AttributeName)
		}
	}
	if hashAttr == "" {
		return store.NewSchemaError("table has no hash key")
	}
	if hashAttr != attrKey {
		return store.NewSchemaError(fmt.Sprintf(
			"hash key is named %q, expected %q", hashAttr, attrKey))
	}

	for _, ad := range table.AttributeDefinitions {
		if aws.ToString(ad.AttributeName) == attrKey {
			if ad.AttributeType != types.ScalarAttributeTypeS {
				return store.NewSchemaError(fmt.Sprintf(
					"hash key %q has type %s, expected type S", attrKey, ad.AttributeType))
			}
			return nil
		}
	}
	return store.NewSchemaError(fmt.Sprintf("hash key %q is missing its attribute definition", attrKey))
}
