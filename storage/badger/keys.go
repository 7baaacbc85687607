package badger

import (
	"encoding/binary"
	"fmt"
	"regexp"

	"github.com/poiesic/ragbot/storage"
)

// Key prefixes for different data types.
//
// Chunk keys are namespaced by collection:
//
//	chk:<coll>:rec:<seq>          chunk record, seq is big endian
//	chk:<coll>:id:<chunk id>      seq of the chunk's record
//	chk:<coll>:doc:<doc id>\x00<seq>  chunk id, per-document index
//	chk:<coll>:dim                fixed embedding dimension
//	chk:<coll>:pend:<seq>         last seq of an unpublished staged upsert
//	chk:<coll>:ret:<seq>          first seq of the upsert replacing this record
//	chk:<coll>:prev:<chunk id>    seq the chunk had before a staged upsert
//
// Sequence keys live outside the data prefixes so clearing a prefix never
// resets a sequence.
const (
	chunkPrefix      = "chk"
	chunkSeqPrefix   = "chkseq"
	sessionPrefix    = "ses"
	sessionRecPrefix = "ses:rec:"
	sessionMsgPrefix = "ses:msg:"
	sessionMsgSeq    = "sesseq:msg"
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// collectionKeys builds the keys of one chunk collection.
type collectionKeys struct {
	name   string
	prefix string
}

func newCollectionKeys(name string) (collectionKeys, error) {
	if !collectionNamePattern.MatchString(name) {
		return collectionKeys{}, fmt.Errorf("%w: %q", storage.ErrInvalidCollection, name)
	}
	return collectionKeys{
		name:   name,
		prefix: chunkPrefix + ":" + name + ":",
	}, nil
}

func (k collectionKeys) all() []byte       { return []byte(k.prefix) }
func (k collectionKeys) records() []byte   { return []byte(k.prefix + "rec:") }
func (k collectionKeys) dimension() []byte { return []byte(k.prefix + "dim") }
func (k collectionKeys) sequence() string  { return chunkSeqPrefix + ":" + k.name }
func (k collectionKeys) pendings() []byte  { return []byte(k.prefix + "pend:") }
func (k collectionKeys) retirees() []byte  { return []byte(k.prefix + "ret:") }

func (k collectionKeys) pending(start uint64) []byte {
	return appendSeq(k.pendings(), start)
}

func (k collectionKeys) retired(seq uint64) []byte {
	return appendSeq(k.retirees(), seq)
}

func (k collectionKeys) previous(chunkID string) []byte {
	return []byte(k.prefix + "prev:" + chunkID)
}

// record generates the key of a chunk record. Big endian keeps
// iteration in insertion order.
func (k collectionKeys) record(seq uint64) []byte {
	return appendSeq([]byte(k.prefix+"rec:"), seq)
}

func (k collectionKeys) id(chunkID string) []byte {
	return []byte(k.prefix + "id:" + chunkID)
}

// document generates the per-document prefix, terminated so that
// "doc1" does not match "doc10".
func (k collectionKeys) document(documentID string) []byte {
	return append([]byte(k.prefix+"doc:"+documentID), 0)
}

func (k collectionKeys) documentChunk(documentID string, seq uint64) []byte {
	return appendSeq(k.document(documentID), seq)
}

// makeSessionKey generates the key of a session header.
func makeSessionKey(sessionID string) []byte {
	return []byte(sessionRecPrefix + sessionID)
}

// makeSessionMessagesPrefix generates the prefix of a session's message log.
func makeSessionMessagesPrefix(sessionID string) []byte {
	return append([]byte(sessionMsgPrefix+sessionID), 0)
}

// makeSessionMessageKey generates a message key. Messages sort by sequence.
func makeSessionMessageKey(sessionID string, seq uint64) []byte {
	return appendSeq(makeSessionMessagesPrefix(sessionID), seq)
}

func appendSeq(buf []byte, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, seq)
}

// seqSuffix reads the big endian seq that ends key.
func seqSuffix(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
