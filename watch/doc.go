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

// Package watch keeps the index in sync with a directory of study material.
//
// A Watcher subscribes to file system events for one directory. Created and
// written files with a supported extension are ingested once their events
// have been quiet for the debounce interval; removed or renamed-away files
// have their document deleted from the index.
package watch
