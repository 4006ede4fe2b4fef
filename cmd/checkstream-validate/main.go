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

// checkstream-validate is a one-shot config-lint entry point: it loads the
// proxy, classifiers & pipelines, and policy documents and runs the same
// eager validation checkstream-proxy performs before binding a port
// (ConfigInvalid / ClassifierNotFound are fatal at startup, per spec §7),
// without ever starting an HTTP listener. Adapted from cmd/tfd-proxy's
// "wire the pipeline, nothing domain-specific" shape, trimmed to a
// validator — there is no server loop here to generalize.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/config"
	"github.com/checkstream/checkstream/internal/pipeline"
	"github.com/checkstream/checkstream/internal/policy"
)

func main() {
	proxyConfigPath := flag.String("config", "checkstream.yaml", "Path to the proxy config document")
	classifiersPath := flag.String("classifiers", "classifiers.yaml", "Path to the classifiers & pipelines document")
	policyPath := flag.String("policy", "", "Path to the policy document (overrides the proxy document's policy_path when set)")
	flag.Parse()

	fail := func(stage string, err error) {
		fmt.Fprintf(os.Stderr, "checkstream-validate: %s: %v\n", stage, err)
		os.Exit(1)
	}

	doc, err := config.LoadProxyDocument(*proxyConfigPath)
	if err != nil {
		fail("proxy config", err)
	}
	fmt.Printf("proxy config OK: backend_url=%s ingress_pipeline=%s\n", doc.BackendURL, doc.Pipelines.IngressPipeline)

	classPath := doc.ClassifiersPath
	if *classifiersPath != "" {
		classPath = *classifiersPath
	}
	classDoc, err := classifier.LoadDocument(classPath)
	if err != nil {
		fail("classifiers document", err)
	}
	registry := classifier.NewRegistry()
	if err := classifier.Populate(classDoc, registry); err != nil {
		fail("classifiers", err)
	}
	fmt.Printf("classifiers OK: %d registered (%v)\n", registry.Len(), registry.Names())

	pipelines, err := pipeline.Load(classDoc.Pipelines, registry)
	if err != nil {
		fail("pipelines", err)
	}
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	fmt.Printf("pipelines OK: %d defined (%v)\n", len(pipelines), names)
	if _, ok := pipelines[doc.Pipelines.IngressPipeline]; !ok {
		fail("pipelines", fmt.Errorf("ingress pipeline %q not found among defined pipelines", doc.Pipelines.IngressPipeline))
	}

	effectivePolicyPath := doc.PolicyPath
	if *policyPath != "" {
		effectivePolicyPath = *policyPath
	}
	ruleSet, err := policy.Load(effectivePolicyPath)
	if err != nil {
		fail("policy document", err)
	}
	fmt.Printf("policy OK: %d rules loaded from %s\n", ruleSet.Len(), effectivePolicyPath)

	fmt.Println("checkstream-validate: all documents valid")
}
