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

package backend

import (
	"path/filepath"
	"testing"
)

func TestBuildBackend_DefaultsToMock(t *testing.T) {
	b, err := BuildBackend("", Options{})
	if err != nil {
		t.Fatalf("BuildBackend: %v", err)
	}
	if _, ok := b.(*Mock); !ok {
		t.Fatalf("expected empty kind to build *Mock, got %T", b)
	}

	b2, err := BuildBackend("mock", Options{})
	if err != nil {
		t.Fatalf("BuildBackend: %v", err)
	}
	if _, ok := b2.(*Mock); !ok {
		t.Fatalf("expected kind=mock to build *Mock, got %T", b2)
	}
}

func TestBuildBackend_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	b, err := BuildBackend("file", Options{FilePath: path})
	if err != nil {
		t.Fatalf("BuildBackend: %v", err)
	}
	f, ok := b.(*File)
	if !ok {
		t.Fatalf("expected kind=file to build *File, got %T", b)
	}
	f.Close()
}

func TestBuildBackend_FileRequiresPath(t *testing.T) {
	if _, err := BuildBackend("file", Options{}); err == nil {
		t.Fatalf("expected error when file backend is missing FilePath")
	}
}

func TestBuildBackend_RedisRequiresClient(t *testing.T) {
	if _, err := BuildBackend("redis", Options{}); err == nil {
		t.Fatalf("expected error when redis backend is missing RedisClient")
	}
}

func TestBuildBackend_PostgresRequiresDB(t *testing.T) {
	if _, err := BuildBackend("postgres", Options{}); err == nil {
		t.Fatalf("expected error when postgres backend is missing PostgresDB")
	}
}

func TestBuildBackend_UnknownKindErrors(t *testing.T) {
	if _, err := BuildBackend("carrier-pigeon", Options{}); err == nil {
		t.Fatalf("expected error for an unknown backend kind")
	}
}
