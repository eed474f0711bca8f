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

package model

import "errors"

// Error taxonomy. Callers wrap these with context and test with errors.Is.
var (
	// ErrMediaUnreadable means the source video cannot be decoded or reports
	// an invalid frame rate. Nothing is cached.
	ErrMediaUnreadable = errors.New("media unreadable")
	// ErrNotFound covers unknown video identities, comparison jobs and missing
	// artifact files.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedFormat rejects uploads before any processing.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrInvalidArgument rejects a request parameter, e.g. a negative threshold.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTooLarge rejects uploads over the configured size cap.
	ErrTooLarge = errors.New("upload too large")
	// ErrEngineDegraded marks a recovered audio mux failure. It is logged and
	// reported on the result, never returned as a failure.
	ErrEngineDegraded = errors.New("engine degraded")
	// ErrMalformedRange is an unparsable or unsatisfiable Range header.
	ErrMalformedRange = errors.New("malformed range")
	// ErrEngineUnavailable is a transport failure talking to the pose engine.
	ErrEngineUnavailable = errors.New("pose engine unavailable")
	// ErrSequenceConsumed is yielded when a one-shot landmark sequence is
	// iterated a second time.
	ErrSequenceConsumed = errors.New("landmark sequence already consumed")
)
