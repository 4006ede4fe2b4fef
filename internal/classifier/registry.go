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

// Package classifier also hosts the Registry that pipeline stages resolve
// names against.
package classifier

import (
	"sort"
	"sync"

	"github.com/checkstream/checkstream/internal/cserr"
)

// Registry holds the set of classifiers available to pipeline stages. It is
// built once at startup from the classifier config document and a set of
// registered constructors, then treated as read-only for the life of the
// process — unlike the teacher's lazily-populated hot-path store, classifier
// instances are known in full before the first request arrives, so a plain
// map guarded by a RWMutex is enough; there is no per-key lifecycle to manage.
type Registry struct {
	mu         sync.RWMutex
	classifier map[string]Classifier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classifier: make(map[string]Classifier)}
}

// Register adds c to the registry. It returns an error if a classifier with
// the same name is already registered — names must be unique so policy rules
// and pipeline stages can resolve them unambiguously.
func (r *Registry) Register(c Classifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.classifier[c.Name()]; exists {
		return &cserr.DuplicateName{Name: c.Name()}
	}
	r.classifier[c.Name()] = c
	return nil
}

// Get resolves name to a Classifier, or returns ClassifierNotFound.
func (r *Registry) Get(name string) (Classifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classifier[name]
	if !ok {
		return nil, &cserr.ClassifierNotFound{Name: name}
	}
	return c, nil
}

// Names returns the registered classifier names in sorted order, used by the
// validate command to print a config summary.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classifier))
	for name := range r.classifier {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered classifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classifier)
}
