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

// Package answer implements the retrieval-augmented answering pipeline.
//
// An Orchestrator takes a question and a mode (qa, summary or quiz), retrieves
// the most relevant chunks, builds the mode's prompt around them, asks the
// language model once and records the exchange in the conversation store.
//
// Query never returns an error. Each terminal state is reported in the
// answer's Outcome:
//
//   - no_model_configured: no generator; a configuration warning is returned
//   - retrieval_error: the index failed; the error is shown to the user
//   - empty_corpus: nothing indexed; the user is asked to upload documents
//   - generation_error: the model failed; rate limit and credential failures
//     get their own messages
//   - success: the model's reply with up to three cited sources
//
// Only the success state writes history.
package answer
