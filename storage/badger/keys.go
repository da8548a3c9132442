package badger

import (
	"encoding/binary"
	"time"
)

// Key prefixes for different data types
const (
	vectorPrefix         = "vec:"
	vectorDocumentPrefix = "vecdoc:"
	conversationPrefix   = "conv:"
	convUpdatedPrefix    = "convupd:"
	documentPrefix       = "doc:"
	documentDatePrefix   = "docdate:"
	documentSumPrefix    = "docsum:"
	documentSourcePrefix = "docsrc:"
)

// keySep separates components of composite keys. Ids never contain it.
const keySep = 0x00

// farFuture is the seek origin for reverse scans over date indexes.
var farFuture = time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)

// makeVectorKey generates the primary key of an index entry.
func makeVectorKey(vectorID string) []byte {
	return []byte(vectorPrefix + vectorID)
}

// makeVectorDocumentKey generates a key for the per-document secondary index.
// Format: prefix:documentID\x00vectorID
func makeVectorDocumentKey(documentID, vectorID string) []byte {
	buf := make([]byte, 0, len(vectorDocumentPrefix)+len(documentID)+1+len(vectorID))
	buf = append(buf, vectorDocumentPrefix...)
	buf = append(buf, documentID...)
	buf = append(buf, keySep)
	buf = append(buf, vectorID...)
	return buf
}

// makePartialVectorDocumentKey generates the scan prefix for one document's entries.
func makePartialVectorDocumentKey(documentID string) []byte {
	buf := make([]byte, 0, len(vectorDocumentPrefix)+len(documentID)+1)
	buf = append(buf, vectorDocumentPrefix...)
	buf = append(buf, documentID...)
	return append(buf, keySep)
}

// makeConversationKey generates a key for a conversation record by id.
func makeConversationKey(id string) []byte {
	return []byte(conversationPrefix + id)
}

// makeTimeKey generates a composite key for a date index.
// Format: prefix + 8-byte BigEndian UnixMicro + id
func makeTimeKey(prefix string, ts time.Time, id string) []byte {
	buf := makePartialTimeKey(prefix, ts)
	return append(buf, id...)
}

// makePartialTimeKey generates a partial key for date index seeks.
func makePartialTimeKey(prefix string, ts time.Time) []byte {
	buf := make([]byte, len(prefix)+8, len(prefix)+8+16)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(ts.UnixMicro()))
	return buf
}

// makeConvUpdatedKey generates a key in the conversation updated-at index.
func makeConvUpdatedKey(updatedAt time.Time, id string) []byte {
	return makeTimeKey(convUpdatedPrefix, updatedAt, id)
}

// makeDocumentKey generates a key for a document registry entry.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeDocumentDateKey generates a key in the upload-date index.
func makeDocumentDateKey(uploadedAt time.Time, id string) []byte {
	return makeTimeKey(documentDatePrefix, uploadedAt, id)
}

// makeDocumentSumKey generates a key in the checksum index.
// Format: prefix:checksum\x00id
func makeDocumentSumKey(checksum, id string) []byte {
	return append(makePartialDocumentSumKey(checksum), id...)
}

func makePartialDocumentSumKey(checksum string) []byte {
	buf := make([]byte, 0, len(documentSumPrefix)+len(checksum)+1)
	buf = append(buf, documentSumPrefix...)
	buf = append(buf, checksum...)
	return append(buf, keySep)
}

// makeDocumentSourceKey generates a key in the source path index.
func makeDocumentSourceKey(path string) []byte {
	return []byte(documentSourcePrefix + path)
}
