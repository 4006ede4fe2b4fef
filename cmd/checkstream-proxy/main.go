// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// checkstream-proxy is the real entry point: it wires the classifier
// registry, pipeline engine, policy evaluator, audit trail, and upstream
// backend client into an internal/proxy.Server and serves until a signal
// requests shutdown, draining in-flight requests first.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/checkstream/checkstream/internal/audit"
	"github.com/checkstream/checkstream/internal/audit/backend"
	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/config"
	"github.com/checkstream/checkstream/internal/pipeline"
	"github.com/checkstream/checkstream/internal/policy"
	"github.com/checkstream/checkstream/internal/proxy"
	"github.com/checkstream/checkstream/internal/telemetry"
)

func main() {
	proxyConfigPath := flag.String("config", "checkstream.yaml", "Path to the proxy config document")
	classifiersPath := flag.String("classifiers", "classifiers.yaml", "Path to the classifiers & pipelines document (used instead of the proxy document's classifiers_path unless set to empty)")
	policyPath := flag.String("policy", "", "Path to the policy document (overrides the proxy document's policy_path when set)")
	auditKind := flag.String("audit_backend", "file", "Audit backend: file|redis|postgres|mock")
	metricsEnabled := flag.Bool("metrics", true, "Enable Prometheus metrics and the periodic telemetry summary log")
	metricsSample := flag.Float64("metrics_sample", 1.0, "Deterministic sampling rate for the top-N telemetry summary (0..1)")
	logInterval := flag.Duration("telemetry_log_interval", 30*time.Second, "How often to log the telemetry top-N summary (0 disables)")
	flag.Parse()

	logger, err := config.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkstream-proxy: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	doc, err := config.LoadProxyDocument(*proxyConfigPath)
	if err != nil {
		logger.Errorw("config error", "error", err)
		os.Exit(1)
	}

	classPath := doc.ClassifiersPath
	if *classifiersPath != "" {
		classPath = *classifiersPath
	}
	classDoc, err := classifier.LoadDocument(classPath)
	if err != nil {
		logger.Errorw("config error", "error", err)
		os.Exit(1)
	}
	registry := classifier.NewRegistry()
	if err := classifier.Populate(classDoc, registry); err != nil {
		logger.Errorw("config error", "error", err)
		os.Exit(1)
	}
	pipelines, err := pipeline.Load(classDoc.Pipelines, registry)
	if err != nil {
		logger.Errorw("config error", "error", err)
		os.Exit(1)
	}
	ingress, ok := pipelines[doc.Pipelines.IngressPipeline]
	if !ok {
		logger.Errorw("config error", "error", fmt.Sprintf("ingress pipeline %q not found", doc.Pipelines.IngressPipeline))
		os.Exit(1)
	}
	midstream := pipelines[doc.Pipelines.MidstreamPipeline]
	egress := pipelines[doc.Pipelines.EgressPipeline]

	effectivePolicyPath := doc.PolicyPath
	if *policyPath != "" {
		effectivePolicyPath = *policyPath
	}
	ruleSet, err := policy.Load(effectivePolicyPath)
	if err != nil {
		logger.Errorw("config error", "error", err)
		os.Exit(1)
	}
	store := policy.NewStore(ruleSet)
	if err := store.Watch(effectivePolicyPath, logger, policy.Load); err != nil {
		logger.Warnw("policy hot-reload watch failed, continuing without it", "path", effectivePolicyPath, "error", err)
	}
	defer store.Stop()
	evaluator := policy.NewEvaluator(store)

	auditBackend, err := buildAuditBackend(*auditKind)
	if err != nil {
		logger.Errorw("audit backend error", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	trail, err := audit.NewTrail(ctx, auditBackend)
	if err != nil {
		logger.Errorw("audit trail init failed", "error", err)
		os.Exit(1)
	}

	telemetry.SetLogger(logger)
	telemetry.Enable(telemetry.Config{
		Enabled:     *metricsEnabled,
		SampleRate:  *metricsSample,
		LogInterval: *logInterval,
		TopN:        20,
		KeyHashLen:  8,
	})

	engine := pipeline.NewEngine(registry, func(pipelineName, stageName string, latencyUs int64) {
		telemetry.ObservePhaseLatency(pipelineName, time.Duration(latencyUs)*time.Microsecond)
	})

	backendClient := proxy.NewBackendClient(doc.BackendURL, time.Duration(doc.BackendTimeoutMs)*time.Millisecond)
	serverCfg := doc.ServerConfig()
	srv := proxy.NewServer(serverCfg, registry, engine, ingress, midstream, egress, evaluator, trail, backendClient, logger)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	addr := config.ListenAddr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Infow("checkstream proxy listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Infow("shutdown signal received")
	case err := <-serveErrCh:
		logger.Errorw("failed to bind listen address", "addr", addr, "error", err)
		os.Exit(2)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), serverCfg.DrainTimeout+5*time.Second)
	defer cancel()
	srv.Drain(drainCtx, serverCfg.DrainTimeout)

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := proxy.Shutdown(shutdownCtx, httpServer); err != nil {
		logger.Warnw("http server shutdown did not complete cleanly", "error", err)
	}
	logger.Infow("checkstream proxy stopped")
}

// buildAuditBackend resolves the audit backend chosen by -audit_backend.
// Only "file" and "mock" are wired without additional flags; "redis" and
// "postgres" require operator-provided client construction, per
// internal/audit/backend.BuildBackend's doc comment — a driver choice this
// package deliberately leaves to the embedding program.
func buildAuditBackend(kind string) (audit.Backend, error) {
	switch kind {
	case "file", "":
		return backend.BuildBackend("file", backend.Options{FilePath: config.AuditPath()})
	case "mock":
		return backend.BuildBackend("mock", backend.Options{})
	default:
		return nil, fmt.Errorf("audit backend %q requires operator-provided client wiring (see internal/audit/backend.BuildBackend)", kind)
	}
}
