// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Command leasectl is a small operator CLI around the lease client: hold a
// lease on a key for a while, or check that a table is correctly
// provisioned for use as a lease table.
//
// Flag and config layering (flags override env) is pflag fed into viper:
// pflag registers and parses the flags, viper binds them and layers in
// environment variables so either can set a value. No config file is read.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coredhcp/dynalease/leaseclient"
	"github.com/coredhcp/dynalease/store/ddb"
)

var log = logrus.StandardLogger().WithField("component", "leasectl")

func main() {
	pflag.String("table", "", "DynamoDB lease table name")
	pflag.String("region", "", "AWS region (defaults to the SDK's own resolution)")
	pflag.String("endpoint", "", "Override DynamoDB endpoint, e.g. for dynamodb-local")
	pflag.Duration("lease-ttl", leaseclient.DefaultTTL, "absolute lease lifetime")
	pflag.Duration("extend-period", 0, "interval between background extends (default lease-ttl/4)")
	pflag.Duration("acquire-poll-period", leaseclient.DefaultPollPeriod, "retry gap while waiting to acquire")
	pflag.Duration("hold-duration", 10*time.Second, "how long `hold` keeps the lease before releasing")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)
	viper.SetEnvPrefix("leasectl")
	viper.AutomaticEnv()

	if len(pflag.Args()) == 0 {
		fmt.Fprintln(os.Stderr, "usage: leasectl [flags] <hold|check-schema> <key>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ddbClient, err := newDynamoDBClient(ctx)
	if err != nil {
		log.WithError(err).Fatal("could not build dynamodb client")
	}

	table := viper.GetString("table")
	if table == "" {
		log.Fatal("--table is required")
	}
	store := ddb.New(ddbClient, table)

	switch cmd := pflag.Arg(0); cmd {
	case "check-schema":
		runCheckSchema(ctx, store)
	case "hold":
		if pflag.NArg() < 2 {
			log.Fatal("hold requires a key argument")
		}
		runHold(ctx, store, pflag.Arg(1))
	default:
		log.Fatalf("unknown subcommand %q", cmd)
	}
}

func newDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region := viper.GetString("region"); region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := viper.GetString("endpoint"); endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	}), nil
}

func runCheckSchema(ctx context.Context, s *ddb.Client) {
	if err := s.CheckSchema(ctx); err != nil {
		log.WithError(err).Error("schema check failed")
		os.Exit(1)
	}
	fmt.Println("ok: table is correctly provisioned for use as a lease table")
}

func runHold(ctx context.Context, s *ddb.Client, key string) {
	opts := []leaseclient.Option{
		leaseclient.WithTTL(viper.GetDuration("lease-ttl")),
		leaseclient.WithAcquirePollPeriod(viper.GetDuration("acquire-poll-period")),
	}
	if d := viper.GetDuration("extend-period"); d > 0 {
		opts = append(opts, leaseclient.WithExtendPeriod(d))
	}

	client, err := leaseclient.NewClient(ctx, s, opts)
	if err != nil {
		log.WithError(err).Fatal("could not build lease client")
	}

	log.WithField("key", key).Info("acquiring lease")
	lease, err := client.Acquire(ctx, key)
	if err != nil {
		log.WithError(err).Fatal("could not acquire lease")
	}
	log.WithFields(logrus.Fields{"key": key, "version": lease.Version()}).Info("lease acquired, holding")

	holdFor := viper.GetDuration("hold-duration")
	select {
	case <-ctx.Done():
	case <-time.After(holdFor):
	}

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(releaseCtx); err != nil {
		log.WithError(err).Warn("release did not confirm cleanly; TTL will reclaim it")
		return
	}
	log.WithField("key", key).Info("lease released")
}
