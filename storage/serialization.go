// Copyright 2025 Poiesic Systems
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

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/studyrag/core"
)

// Records are persisted as JSON so that stored data stays readable with
// ordinary tooling and matches the field names of the HTTP API.

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

func unmarshal[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &v, nil
}

// MarshalIndexedVector serializes an IndexedVector to bytes.
func MarshalIndexedVector(v *core.IndexedVector) ([]byte, error) {
	return marshal(v)
}

// UnmarshalIndexedVector deserializes an IndexedVector from bytes.
func UnmarshalIndexedVector(data []byte) (*core.IndexedVector, error) {
	return unmarshal[core.IndexedVector](data)
}

// MarshalConversation serializes a ConversationRecord to bytes.
func MarshalConversation(record *core.ConversationRecord) ([]byte, error) {
	return marshal(record)
}

// UnmarshalConversation deserializes a ConversationRecord from bytes.
func UnmarshalConversation(data []byte) (*core.ConversationRecord, error) {
	return unmarshal[core.ConversationRecord](data)
}

// MarshalConversationSummary serializes a ConversationSummary to bytes.
func MarshalConversationSummary(summary *core.ConversationSummary) ([]byte, error) {
	return marshal(summary)
}

// UnmarshalConversationSummary deserializes a ConversationSummary from bytes.
func UnmarshalConversationSummary(data []byte) (*core.ConversationSummary, error) {
	return unmarshal[core.ConversationSummary](data)
}

// MarshalMessage serializes a single Message to bytes.
func MarshalMessage(msg *core.Message) ([]byte, error) {
	return marshal(msg)
}

// UnmarshalMessage deserializes a single Message from bytes.
func UnmarshalMessage(data []byte) (*core.Message, error) {
	return unmarshal[core.Message](data)
}

// MarshalDocument serializes a DocumentInfo to bytes.
func MarshalDocument(doc *core.DocumentInfo) ([]byte, error) {
	return marshal(doc)
}

// UnmarshalDocument deserializes a DocumentInfo from bytes.
func UnmarshalDocument(data []byte) (*core.DocumentInfo, error) {
	return unmarshal[core.DocumentInfo](data)
}
