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
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/ragbot/core"
)

// Record format versions. Bump when a layout changes.
const (
	chunkFormat   uint64 = 1
	sessionFormat uint64 = 1
	messageFormat uint64 = 1
)

const float32Size = 4

// MarshalSeq serializes a sequence number to bytes.
func MarshalSeq(seq uint64) []byte {
	buf := make([]byte, varint.Uint64.Size(seq))
	varint.Uint64.Marshal(seq, buf)
	return buf
}

// UnmarshalSeq deserializes a sequence number from bytes.
func UnmarshalSeq(data []byte) (uint64, error) {
	seq, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return seq, nil
}

// MarshalChunk serializes a Chunk, vector included, to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	size := varint.Uint64.Size(chunkFormat) +
		ord.String.Size(chunk.ID) +
		ord.String.Size(chunk.DocumentID) +
		ord.String.Size(chunk.Source) +
		varint.Int.Size(chunk.ChunkIndex) +
		varint.Int.Size(chunk.TotalChunks) +
		ord.String.Size(chunk.Text) +
		metadataSize(chunk.Metadata) +
		vectorSize(chunk.Vector) +
		timeSize(chunk.InsertedAt)

	w := &writer{bs: make([]byte, size)}
	w.uint64(chunkFormat)
	w.string(chunk.ID)
	w.string(chunk.DocumentID)
	w.string(chunk.Source)
	w.int(chunk.ChunkIndex)
	w.int(chunk.TotalChunks)
	w.string(chunk.Text)
	w.metadata(chunk.Metadata)
	w.vector(chunk.Vector)
	w.time(chunk.InsertedAt)
	return w.bs
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	r := &reader{bs: data}
	if err := r.format(chunkFormat); err != nil {
		return nil, err
	}
	chunk := &core.Chunk{
		ID:          r.string(),
		DocumentID:  r.string(),
		Source:      r.string(),
		ChunkIndex:  r.int(),
		TotalChunks: r.int(),
		Text:        r.string(),
		Metadata:    r.metadata(),
		Vector:      r.vector(),
		InsertedAt:  r.time(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return chunk, nil
}

// MarshalSession serializes a session header. Messages are stored separately.
func MarshalSession(session *core.Session) []byte {
	size := varint.Uint64.Size(sessionFormat) +
		ord.String.Size(session.ID) +
		ord.String.Size(session.Title) +
		timeSize(session.CreatedAt)

	w := &writer{bs: make([]byte, size)}
	w.uint64(sessionFormat)
	w.string(session.ID)
	w.string(session.Title)
	w.time(session.CreatedAt)
	return w.bs
}

// UnmarshalSession deserializes a session header.
func UnmarshalSession(data []byte) (*core.Session, error) {
	r := &reader{bs: data}
	if err := r.format(sessionFormat); err != nil {
		return nil, err
	}
	session := &core.Session{
		ID:        r.string(),
		Title:     r.string(),
		CreatedAt: r.time(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return session, nil
}

// MarshalMessage serializes a session Message.
func MarshalMessage(msg *core.Message) []byte {
	size := varint.Uint64.Size(messageFormat) +
		ord.String.Size(string(msg.Role)) +
		ord.String.Size(msg.Content) +
		timeSize(msg.Timestamp) +
		ord.Bool.Size(msg.HasImage) +
		ord.String.Size(msg.ImageData) +
		ord.String.Size(msg.ImageFormat)

	w := &writer{bs: make([]byte, size)}
	w.uint64(messageFormat)
	w.string(string(msg.Role))
	w.string(msg.Content)
	w.time(msg.Timestamp)
	w.bool(msg.HasImage)
	w.string(msg.ImageData)
	w.string(msg.ImageFormat)
	return w.bs
}

// UnmarshalMessage deserializes a session Message.
func UnmarshalMessage(data []byte) (*core.Message, error) {
	r := &reader{bs: data}
	if err := r.format(messageFormat); err != nil {
		return nil, err
	}
	msg := &core.Message{
		Role:        core.Role(r.string()),
		Content:     r.string(),
		Timestamp:   r.time(),
		HasImage:    r.bool(),
		ImageData:   r.string(),
		ImageFormat: r.string(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

func metadataSize(m map[string]string) int {
	size := varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

func vectorSize(v []float32) int {
	return varint.Int.Size(len(v)) + len(v)*float32Size
}

// Times are stored as Unix microseconds; the zero time is stored as 0.
func timeSize(t time.Time) int {
	return varint.Int64.Size(unixMicro(t))
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

type writer struct {
	bs []byte
	n  int
}

func (w *writer) uint64(v uint64) { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) int(v int)       { w.n += varint.Int.Marshal(v, w.bs[w.n:]) }
func (w *writer) string(v string) { w.n += ord.String.Marshal(v, w.bs[w.n:]) }
func (w *writer) bool(v bool)     { w.n += ord.Bool.Marshal(v, w.bs[w.n:]) }
func (w *writer) time(t time.Time) {
	w.n += varint.Int64.Marshal(unixMicro(t), w.bs[w.n:])
}

// metadata writes keys in sorted order so equal maps encode identically.
func (w *writer) metadata(m map[string]string) {
	w.int(len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.string(k)
		w.string(m[k])
	}
}

func (w *writer) vector(v []float32) {
	w.int(len(v))
	for _, f := range v {
		w.n += raw.Float32.Marshal(f, w.bs[w.n:])
	}
}

// reader decodes fields in order and latches the first error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (r *reader) format(want uint64) error {
	got := r.uint64()
	if r.err != nil {
		return r.err
	}
	if got != want {
		r.fail(fmt.Errorf("unsupported record format %d", got))
	}
	return r.err
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.n += n
	return v
}

func (r *reader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.n += n
	return v
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return ""
	}
	r.n += n
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return false
	}
	r.n += n
	return v
}

func (r *reader) time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return time.Time{}
	}
	r.n += n
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

// length reads a collection length and rejects values the remaining
// input cannot possibly hold.
func (r *reader) length(minElemSize int) int {
	l := r.int()
	if r.err != nil {
		return 0
	}
	if l < 0 || l*minElemSize > len(r.bs)-r.n {
		r.fail(ErrTruncatedData)
		return 0
	}
	return l
}

func (r *reader) metadata() map[string]string {
	// each entry holds at least two one-byte length prefixes
	l := r.length(2)
	if r.err != nil || l == 0 {
		return nil
	}
	m := make(map[string]string, l)
	for i := 0; i < l && r.err == nil; i++ {
		k := r.string()
		m[k] = r.string()
	}
	return m
}

func (r *reader) vector() []float32 {
	l := r.length(float32Size)
	if r.err != nil || l == 0 {
		return nil
	}
	v := make([]float32, l)
	for i := range v {
		f, n, err := raw.Float32.Unmarshal(r.bs[r.n:])
		if err != nil {
			r.fail(err)
			return nil
		}
		r.n += n
		v[i] = f
	}
	return v
}
