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

// Package extract turns uploaded document bytes into plain text.
//
// Supported types are chosen by file extension:
//
//   - .txt and .md are decoded as UTF-8, UTF-16 with a byte order mark, or
//     Windows-1252, in that order.
//   - .pdf is read page by page. Each page with text is emitted as
//     "[Page N]\n<text>" and pages are joined by a blank line.
//
// Any other extension yields ErrUnsupportedType.
package extract
