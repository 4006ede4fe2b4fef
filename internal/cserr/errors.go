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

// Package cserr defines the CheckStream error taxonomy (spec §7). Each kind
// carries its own propagation rule: some are fatal at startup, some degrade
// to a synthetic verdict, some surface to the client verbatim.
package cserr

import "fmt"

// ConfigInvalid wraps a malformed proxy/classifier/policy document. Fatal at startup.
type ConfigInvalid struct {
	Document string
	Cause    error
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("config invalid in %s: %v", e.Document, e.Cause)
}
func (e *ConfigInvalid) Unwrap() error { return e.Cause }

// ClassifierNotFound is raised when a pipeline references a classifier name
// the registry does not have. Fatal at startup (validated eagerly).
type ClassifierNotFound struct {
	Name string
}

func (e *ClassifierNotFound) Error() string {
	return fmt.Sprintf("classifier not found: %s", e.Name)
}

// DuplicateName is raised when Register is called twice with the same
// classifier name. Fatal at startup — classifier names must be unique so
// policy rules and pipeline stages can resolve them unambiguously.
type DuplicateName struct {
	Name string
}

func (e *DuplicateName) Error() string {
	return fmt.Sprintf("classifier %q already registered", e.Name)
}

// ClassifierError wraps a classifier implementation failure. In a Single
// stage this is fatal to the pipeline; in Parallel/Sequential stages it is
// absorbed into a synthetic error verdict instead (see internal/pipeline).
type ClassifierError struct {
	Name  string
	Cause error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %q failed: %v", e.Name, e.Cause)
}
func (e *ClassifierError) Unwrap() error { return e.Cause }

// DeadlineExceeded marks a stage or pipeline that ran past its budget. Not a
// request failure — callers synthesize a timeout verdict and continue.
type DeadlineExceeded struct {
	Stage string
}

func (e *DeadlineExceeded) Error() string {
	return fmt.Sprintf("deadline exceeded in stage %q", e.Stage)
}

// BackendUnreachable wraps an upstream connect/TLS failure. Propagates as HTTP 502.
type BackendUnreachable struct {
	Cause error
}

func (e *BackendUnreachable) Error() string { return fmt.Sprintf("backend unreachable: %v", e.Cause) }
func (e *BackendUnreachable) Unwrap() error  { return e.Cause }

// BackendError wraps a non-2xx upstream response. Propagated verbatim.
type BackendError struct {
	Status int
}

func (e *BackendError) Error() string { return fmt.Sprintf("backend returned status %d", e.Status) }

// BackpressureOverflow marks a holdback buffer that exceeded max_buffer_size.
// The stream is terminated with a stop-marker chunk.
type BackpressureOverflow struct {
	RequestID string
}

func (e *BackpressureOverflow) Error() string {
	return fmt.Sprintf("backpressure overflow for request %s", e.RequestID)
}

// PolicyViolation marks a rule whose Stop action fired. HTTP 400 (non-streaming)
// or an SSE error event (streaming).
type PolicyViolation struct {
	Rule    string
	Message string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Message)
}

// AuditWriteError wraps a persistence failure in the audit trail. Logged; does
// not fail the request. The chain is marked with a gap record on next write.
type AuditWriteError struct {
	Cause error
}

func (e *AuditWriteError) Error() string { return fmt.Sprintf("audit write failed: %v", e.Cause) }
func (e *AuditWriteError) Unwrap() error  { return e.Cause }
