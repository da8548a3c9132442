// Package rest exposes the study assistant over a JSON HTTP API built on chi.
//
// Routes:
//
//	GET    /                        service banner
//	GET    /health                  liveness and index size
//	GET    /metrics                 Prometheus metrics
//	POST   /documents/upload        multipart upload, field "file"
//	GET    /documents               registered documents, newest first
//	GET    /documents/{id}          one document
//	DELETE /documents/{id}          document, its vectors and stored file
//	POST   /search                  semantic search without generation
//	GET    /search/stats            indexed chunk count
//	POST   /chat                    answer a question in qa, summary or quiz mode
//	GET    /chat/history/{id}       conversation transcript
//	DELETE /chat/history/{id}       forget a conversation
//	GET    /chat/conversations      conversation summaries, most recent first
//
// Errors are returned as {"detail": "..."} with a matching status code.
package rest
