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

package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/checkstream/checkstream/internal/cserr"
)

type stubClassifier struct{ name string }

func (s stubClassifier) Name() string { return s.name }
func (s stubClassifier) Tier() Tier   { return TierFast }
func (s stubClassifier) Classify(context.Context, string) ([]Verdict, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubClassifier{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	c, err := r.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Name() != "a" {
		t.Fatalf("got classifier %q, want %q", c.Name(), "a")
	}
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubClassifier{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(stubClassifier{name: "a"})
	if err == nil {
		t.Fatalf("expected error registering duplicate name")
	}
	var dup *cserr.DuplicateName
	if !errors.As(err, &dup) {
		t.Fatalf("expected *cserr.DuplicateName, got %T", err)
	}
}

func TestRegistry_GetUnknownReturnsClassifierNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	if err == nil {
		t.Fatalf("expected error for unknown classifier")
	}
	var notFound *cserr.ClassifierNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *cserr.ClassifierNotFound, got %T", err)
	}
}

func TestRegistry_NamesSortedAndLen(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(stubClassifier{name: name}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("Names()[%d] = %q, want %q", i, names[i], n)
		}
	}
}
