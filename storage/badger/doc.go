// Package badger implements the storage repositories on BadgerDB.
//
// One Backend holds the database; the index, conversation and document
// repositories share it and use disjoint key prefixes:
//
//	vec:<doc>_<i>                 index entry (JSON IndexedVector)
//	vecdoc:<doc>\x00<doc>_<i>     per-document secondary index
//	conv:<id>                     conversation record
//	convupd:<micros><id>          updated-at index, value is the summary
//	doc:<id>                      document registry entry
//	docdate:<micros><id>          upload-date index
//	docsum:<checksum>\x00<id>     checksum index
//	docsrc:<path>                 source path index
//
// Time-ordered keys carry BigEndian UnixMicro so lexicographic order is
// chronological and listings iterate in reverse.
package badger
