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

package core

import (
	"fmt"
	"strings"
)

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Content must not be empty after trimming
//   - DocumentID must be set
//   - ChunkIndex must be within [0, TotalChunks)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if strings.TrimSpace(chunk.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if chunk.Metadata.DocumentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocumentID)
	}
	if chunk.Metadata.ChunkIndex < 0 || chunk.Metadata.ChunkIndex >= chunk.Metadata.TotalChunks {
		return fmt.Errorf("%w: index %d out of range for %d chunks",
			ErrInvalidChunk, chunk.Metadata.ChunkIndex, chunk.Metadata.TotalChunks)
	}
	return nil
}

// ValidateMessage validates a conversation Message.
// Mode may be empty; when set it must be a known mode.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Mode != "" {
		if err := ValidateMode(msg.Mode); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
	}
	return nil
}

// ValidateMode validates that a Mode has a supported value.
func ValidateMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, string(mode))
	}
	return nil
}

// ValidateRole validates that a Role has a supported value.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, string(role))
	}
	return nil
}

// ParseMode converts user input into a Mode. Empty input selects ModeQA.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeQA, nil
	}
	mode := Mode(s)
	if err := ValidateMode(mode); err != nil {
		return "", err
	}
	return mode, nil
}
