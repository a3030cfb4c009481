//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package main runs the chatguard HTTP service: a chat endpoint that
// answers arithmetic deterministically and falls back to an OpenAI-style
// model for everything else.
//
// Usage:
//
//	chatguard -config chatguard.yaml
//	chatguard -addr :8080 -model gpt-4o-mini
//
// The upstream API key is read from the OPENAI_API_KEY environment
// variable.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trpc.group/trpc-go/trpc-chatguard-go/config"
	"trpc.group/trpc-go/trpc-chatguard-go/log"
	"trpc.group/trpc-go/trpc-chatguard-go/model"
	"trpc.group/trpc-go/trpc-chatguard-go/model/openai"
	"trpc.group/trpc-go/trpc-chatguard-go/router"
	"trpc.group/trpc-go/trpc-chatguard-go/server"
	"trpc.group/trpc-go/trpc-chatguard-go/session/inmemory"
	"trpc.group/trpc-go/trpc-chatguard-go/telemetry/trace"
)

const appName = "chatguard"

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file (optional)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	modelName := flag.String("model", "", "Model name (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *modelName != "" {
		cfg.Model.Name = *modelName
	}
	log.SetLevel(cfg.LogLevel)

	if cfg.Trace.Enabled {
		clean, err := trace.Start(context.Background(),
			trace.WithServiceName(appName),
			trace.WithEndpoint(cfg.Trace.Endpoint),
			trace.WithProtocol(cfg.Trace.Protocol),
		)
		if err != nil {
			log.Warnf("trace export disabled: %v", err)
		} else {
			defer func() {
				if err := clean(); err != nil {
					log.Warnf("trace shutdown: %v", err)
				}
			}()
		}
	}

	chat := newRouter(cfg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(appName, chat).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("chatguard listening on %s (model %s)", cfg.Addr, cfg.Model.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Info("chatguard stopped")
}

func newRouter(cfg *config.Config) *router.Router {
	provider := func() (model.Model, error) {
		key := config.APIKey()
		if key == "" {
			return nil, model.ErrMissingCredential
		}
		opts := []openai.Option{openai.WithAPIKey(key)}
		if cfg.Model.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Model.BaseURL))
		}
		return openai.New(cfg.Model.Name, opts...), nil
	}
	opts := []router.Option{
		router.WithSessionService(inmemory.NewSessionService(
			inmemory.WithMaxTurns(cfg.HistoryMaxTurns))),
		router.WithModelProvider(provider),
		router.WithRetryPolicy(router.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialBackoff.Std(),
			BackoffFactor:   2.0,
			MaxInterval:     cfg.Retry.MaxBackoff.Std(),
		}),
	}
	if cfg.SystemPrompt != "" {
		opts = append(opts, router.WithSystemPrompt(cfg.SystemPrompt))
	}
	if len(cfg.Greetings) > 0 {
		opts = append(opts, router.WithGreetings(cfg.Greetings))
	}
	return router.New(appName, opts...)
}
