// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import "time"

// Schema Versions
const (
	SchemaVersionV1      = 1
	CurrentSchemaVersion = SchemaVersionV1
)

// Game Statuses
const (
	StatusActive   = "active"
	StatusComplete = "complete"
	StatusDeleted  = "deleted"
)

// Limits
const (
	MaxPlayersPerGame   = 8
	MaxPlayerNameLength = 64
	maxRequestBody      = 1 << 20
)

// Retry-After values for hub busy responses, in seconds.
const (
	retryAfterLoad  = "2"
	retryAfterFrame = "5"
	retryAfterSave  = "10"
)

const (
	tombstoneTTL         = 30 * 24 * time.Hour
	gcInterval           = 12 * time.Hour
	hubIdleTimeout       = 5 * time.Minute
	defaultFlushInterval = 30 * time.Second
)
