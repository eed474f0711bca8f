// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor holds the chain-of-responsibility primitives every workflow in
// this service is built from. A workflow is a Chain of Commands sharing one
// Context; each command reads its input from the context and writes its output
// back, and the chain pipes one command's output into the next command's input.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Keys of the value piped between consecutive commands of a chain.
const (
	// CtxIn is where a command finds the previous command's output.
	CtxIn = "__IN__"
	// CtxOut is where a command leaves its output for the next command.
	CtxOut = "__OUT__"
)

// MeterName is the instrumentation scope of command counters.
const MeterName = "github.com/jaycherian/gcp-go-pose-compare"

// Context is the state bag of one workflow execution. Implementations must be
// safe for use by the goroutines a command may start.
type Context interface {
	// SetContext replaces the Go context carried by the workflow. Chains use
	// it to hand each command a context holding its span.
	SetContext(ctx context.Context)
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value any) Context
	Get(key string) any
	Remove(key string)

	// AddError records an error against the command that produced it. Errors
	// keep their insertion order.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	// Err joins every recorded error in insertion order, or returns nil.
	Err() error

	// AddTempFile registers a file that Close removes.
	AddTempFile(file string)
	GetTempFiles() []string
	Close()
}

// Executable is anything with a body that runs against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single step of a workflow.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable reports whether the Context holds what Execute needs.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command made of Commands, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure makes the chain run the remaining commands after one
	// of them records an error.
	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
