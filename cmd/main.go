package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"session-memory/handler"
	"session-memory/internal/integrations/paramstore"
	"session-memory/internal/repository"
	"session-memory/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	tableName := strings.TrimSpace(os.Getenv("MEMORY_TABLE_NAME"))
	paramPrefix := strings.TrimSpace(os.Getenv("PARAM_PREFIX"))
	if tableName == "" && paramPrefix == "" {
		slog.Error("one of MEMORY_TABLE_NAME or PARAM_PREFIX must be set")
		os.Exit(1)
	}
	queryTimeout := time.Duration(envInt("QUERY_TIMEOUT_MS", 3000)) * time.Millisecond
	exposeFull := envBool("EXPOSE_FULL_SESSION", false)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	if tableName == "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		name := paramstore.ConfigName(paramPrefix, "memory_table")
		tableName, err = ssmClient.GetParameter(ctx, name)
		if err != nil {
			slog.Error("failed to resolve memory table name", "param", name, "err", err)
			os.Exit(1)
		}
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), tableName)
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	reader, err := usecase.NewSessionReader(store, queryTimeout)
	if err != nil {
		slog.Error("failed to create session reader", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(reader, handler.WithFullView(exposeFull))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	slog.Info("session reader ready", "table", tableName, "query_timeout", queryTimeout, "full_view", exposeFull)
	lambda.Start(h.Handle)
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
