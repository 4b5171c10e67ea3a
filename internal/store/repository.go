package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// RepoState is the lifecycle state of a repository's on-disk store.
type RepoState string

const (
	StateUninitialized RepoState = "uninitialized"
	StateInitialized   RepoState = "initialized"
	StateIndexing      RepoState = "indexing"
	StateCorrupt       RepoState = "corrupt"
)

// RepositoryMetadata is the single persisted record describing a repository
// store: one per repository, written to metadata.json.
type RepositoryMetadata struct {
	RepoID              string    `json:"repoId"`
	Alias               string    `json:"alias"`
	CreatedAt           time.Time `json:"createdAt"`
	LastIndexedAt       time.Time `json:"lastIndexedAt"`
	EmbeddingProviderID string    `json:"embeddingProviderId"`
	ModelID             string    `json:"modelId"`
	Dimensions          int       `json:"dimensions"`
	TotalChunks         int       `json:"totalChunks"`
	TotalFiles          int       `json:"totalFiles"`
	SchemaVersion       int       `json:"schemaVersion"`
	PayloadsCompressed  bool      `json:"payloadsCompressed"`
}

// FileHashEntry is one row of the repository's file-hash map.
type FileHashEntry struct {
	RelativePath string    `json:"relativePath"`
	ContentHash  string    `json:"contentHash"`
	SizeBytes    int64     `json:"sizeBytes"`
	LastModified time.Time `json:"lastModified"`
}

// SurroundingContext is the few lines of text immediately outside a chunk's
// boundaries, captured for display in a search result.
type SurroundingContext struct {
	Before []string `json:"before,omitempty"`
	After  []string `json:"after,omitempty"`
}

// Payload is the persisted image of an EmbeddedChunk, stored at
// payloads/<chunkId>.json and linked to its vector by ChunkID.
type Payload struct {
	ChunkID             string               `json:"chunkId"`
	Content             string               `json:"content"`
	FilePath            string               `json:"filePath"`
	RelativePath        string               `json:"relativePath"`
	StartLine           int                  `json:"startLine"`
	EndLine             int                  `json:"endLine"`
	Language            string               `json:"language"`
	Type                string               `json:"type"`
	FunctionName        string               `json:"functionName,omitempty"`
	ClassName           string               `json:"className,omitempty"`
	Imports             []string             `json:"imports,omitempty"`
	SurroundingContext  *SurroundingContext  `json:"surroundingContext,omitempty"`
	FileExt             string               `json:"fileExt"`
	SizeChars           int                  `json:"sizeChars"`
	EstimatedTokens     int                  `json:"estimatedTokens"`
	ProviderID          string               `json:"providerId"`
	ModelID             string               `json:"modelId"`
	CreatedAt           time.Time            `json:"createdAt"`
}

// indexEntry is the lightweight per-chunk row kept in index.json, distinct
// from the heavier payload so scope/consistency checks do not need to read
// every payload file.
type indexEntry struct {
	RelativePath string `json:"relativePath"`
	Language     string `json:"language,omitempty"`
	Type         string `json:"type,omitempty"`
}

// EmbeddedChunk is the unit RepositoryStore.Put persists: a chunk, its
// extracted metadata, and its embedding vector.
type EmbeddedChunk struct {
	ChunkID      string
	RelativePath string
	AbsolutePath string
	Content      string
	StartLine    int
	EndLine      int
	SizeChars    int
	Tokens       int
	Language     string
	Type         string
	FunctionName string
	ClassName    string
	Imports      []string
	ContextBefore []string
	ContextAfter  []string
	Vector       []float32
	ProviderID   string
	ModelID      string
}

// ComputeRepoID derives a content-addressable repository ID from a
// canonicalized root path: two different on-disk paths to the same
// repository (e.g. via a symlink) intentionally produce different IDs,
// since the store operates purely on the path given to it.
func ComputeRepoID(rootPath string) (string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(abs)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:]), nil
}

// RepositoryStore is the isolated, per-repository persistence of vectors,
// chunk payloads, the file-hash map, and repository metadata described by
// the on-disk layout: <storeRoot>/repos/<alias>-<repoId[0:8]>/.
type RepositoryStore struct {
	mu sync.RWMutex

	dir   string
	alias string

	lock *flock.Flock

	vector  VectorStore
	keyword BM25Index

	state        RepoState
	metadata     RepositoryMetadata
	fileHashes   map[string]FileHashEntry
	index        map[string]indexEntry
	byPath       map[string][]string // relativePath -> chunkIDs
	vectorBuffer map[string][]float32 // chunkID -> vector, mirrors what's in rs.vector for shard export

	compress bool // gzip payload records; fixed at creation, read from rs.metadata thereafter
}

// RepositoryStoreConfig configures how a repository's persistence is backed.
type RepositoryStoreConfig struct {
	StoreRoot        string
	BM25Backend      string // "bleve" or "sqlite" (factory default)
	CompressPayloads bool   // gzip new repositories' payload records; ignored for existing ones
}

func repoDirName(alias, repoID string) string {
	short := repoID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s", alias, short)
}

// Open creates the repository's store tree on first use (Uninitialized ->
// Initialized) or loads the existing one, rebuilding the in-memory HNSW
// index from the persisted vector shard. A leftover "indexing" sentinel from
// a prior run that never committed is treated as Corrupt.
func Open(cfg RepositoryStoreConfig, repoPath, alias string) (*RepositoryStore, error) {
	repoID, err := ComputeRepoID(repoPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(cfg.StoreRoot, "repos", repoDirName(alias, repoID))

	rs := &RepositoryStore{
		dir:        dir,
		alias:      alias,
		fileHashes:   map[string]FileHashEntry{},
		index:        map[string]indexEntry{},
		byPath:       map[string][]string{},
		vectorBuffer: map[string][]float32{},
	}

	created := false
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Join(dir, "payloads"), 0o755); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Join(dir, "vectors", ".staging"), 0o755); err != nil {
			return nil, err
		}
		rs.metadata = RepositoryMetadata{
			RepoID:             repoID,
			Alias:              alias,
			CreatedAt:          stamp(),
			SchemaVersion:      CurrentSchemaVersion,
			PayloadsCompressed: cfg.CompressPayloads,
		}
		created = true
	}

	rs.lock = flock.New(filepath.Join(dir, "lock"))

	if !created {
		if err := rs.loadMetadata(); err != nil {
			return nil, err
		}
		if err := rs.loadFileHashesLocked(); err != nil {
			return nil, err
		}
		if err := rs.loadIndex(); err != nil {
			return nil, err
		}
		if _, err := os.Stat(filepath.Join(dir, "indexing.sentinel")); err == nil {
			rs.state = StateCorrupt
		} else {
			rs.state = StateInitialized
		}
	} else {
		rs.state = StateInitialized
	}
	rs.compress = rs.metadata.PayloadsCompressed

	v, k, err := rs.openBackends(cfg)
	if err != nil {
		return nil, err
	}
	rs.vector = v
	rs.keyword = k

	if created {
		if err := rs.persistMetadata(); err != nil {
			return nil, err
		}
	}

	if rs.metadata.Dimensions > 0 {
		if err := rs.loadVectorShard(); err != nil {
			return nil, err
		}
	}

	return rs, nil
}

func (rs *RepositoryStore) openBackends(cfg RepositoryStoreConfig) (VectorStore, BM25Index, error) {
	dim := rs.metadata.Dimensions
	if dim == 0 {
		dim = 1 // placeholder; Put() replaces this store once the first batch fixes the dimensionality
	}
	v, err := NewHNSWStore(DefaultVectorStoreConfig(dim))
	if err != nil {
		return nil, nil, err
	}
	backend := cfg.BM25Backend
	basePath := filepath.Join(rs.dir, "bm25")
	k, err := NewBM25IndexWithBackend(basePath, DefaultBM25Config(), backend)
	if err != nil {
		return nil, nil, err
	}
	return v, k, nil
}

// State returns the store's current lifecycle state.
func (rs *RepositoryStore) State() RepoState {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.state
}

// Metadata returns a copy of the repository's metadata record.
func (rs *RepositoryStore) Metadata() RepositoryMetadata {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.metadata
}

// BeginIndexing acquires the exclusive writer lock and transitions
// Initialized -> Indexing. A Corrupt store refuses to begin indexing; call
// Repair first.
func (rs *RepositoryStore) BeginIndexing(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.state == StateCorrupt {
		return fmt.Errorf("repository store is corrupt, repair required before indexing")
	}
	locked, err := rs.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire writer lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("repository is locked by another writer")
	}
	if err := os.WriteFile(filepath.Join(rs.dir, "indexing.sentinel"), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		_ = rs.lock.Unlock()
		return err
	}
	rs.state = StateIndexing
	return nil
}

// CommitIndexing persists metadata, the file-hash map, the chunk index, and
// the vector shard, then transitions Indexing -> Initialized and releases
// the writer lock.
func (rs *RepositoryStore) CommitIndexing() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.metadata.LastIndexedAt = stamp()
	rs.metadata.TotalChunks = len(rs.index)
	rs.metadata.TotalFiles = len(rs.fileHashes)
	if err := rs.persistMetadata(); err != nil {
		return err
	}
	if err := rs.persistFileHashesLocked(); err != nil {
		return err
	}
	if err := rs.persistIndex(); err != nil {
		return err
	}
	if err := rs.persistVectorShard(); err != nil {
		return err
	}
	_ = os.Remove(filepath.Join(rs.dir, "indexing.sentinel"))
	rs.state = StateInitialized
	return rs.lock.Unlock()
}

// AbortIndexing discards the in-flight run without persisting partial state
// and transitions back to Initialized (a clean abort, as opposed to a crash
// which leaves the sentinel behind and is detected as Corrupt on next Open).
func (rs *RepositoryStore) AbortIndexing() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_ = os.Remove(filepath.Join(rs.dir, "indexing.sentinel"))
	rs.state = StateInitialized
	return rs.lock.Unlock()
}

// Repair rebuilds a Corrupt store from scratch: all vectors, payloads, and
// the chunk index are discarded; the file-hash map is cleared so the next
// index run treats every file as added.
func (rs *RepositoryStore) Repair() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_ = os.RemoveAll(filepath.Join(rs.dir, "payloads"))
	_ = os.RemoveAll(filepath.Join(rs.dir, "vectors"))
	if err := os.MkdirAll(filepath.Join(rs.dir, "payloads"), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(rs.dir, "vectors", ".staging"), 0o755); err != nil {
		return err
	}
	rs.index = map[string]indexEntry{}
	rs.byPath = map[string][]string{}
	rs.vectorBuffer = map[string][]float32{}
	rs.fileHashes = map[string]FileHashEntry{}
	rs.metadata.TotalChunks = 0
	rs.metadata.TotalFiles = 0
	rs.metadata.Dimensions = 0
	_ = os.Remove(filepath.Join(rs.dir, "indexing.sentinel"))
	rs.state = StateInitialized
	return rs.persistMetadata()
}

// Put stores a batch of embedded chunks atomically with respect to readers:
// a concurrent reader either observes all or none of the batch, since the
// in-memory index is only updated after every chunk in the batch has been
// validated against the store's recorded dimensionality.
func (rs *RepositoryStore) Put(ctx context.Context, chunks []*EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.metadata.Dimensions == 0 {
		// The first batch fixes the dimensionality; replace the placeholder
		// vector store that was opened before it was known.
		v, err := NewHNSWStore(DefaultVectorStoreConfig(len(chunks[0].Vector)))
		if err != nil {
			return err
		}
		_ = rs.vector.Close()
		rs.vector = v
		rs.metadata.Dimensions = len(chunks[0].Vector)
	}
	for _, c := range chunks {
		if len(c.Vector) != rs.metadata.Dimensions {
			return &ErrDimensionMismatch{Expected: rs.metadata.Dimensions, Got: len(c.Vector)}
		}
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	docs := make([]*Document, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
		vectors[i] = c.Vector
		docs[i] = &Document{ID: c.ChunkID, Content: c.Content}
	}

	if err := rs.vector.Add(ctx, ids, vectors); err != nil {
		return err
	}
	if err := rs.keyword.Index(ctx, docs); err != nil {
		return err
	}
	for i, id := range ids {
		rs.vectorBuffer[id] = vectors[i]
	}

	for _, c := range chunks {
		payload := &Payload{
			ChunkID:      c.ChunkID,
			Content:      c.Content,
			FilePath:     c.AbsolutePath,
			RelativePath: c.RelativePath,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			Language:     c.Language,
			Type:         c.Type,
			FunctionName: c.FunctionName,
			ClassName:    c.ClassName,
			Imports:      c.Imports,
			FileExt:      filepath.Ext(c.RelativePath),
			SizeChars:    c.SizeChars,
			EstimatedTokens: c.Tokens,
			ProviderID:   c.ProviderID,
			ModelID:      c.ModelID,
			CreatedAt:    stamp(),
		}
		if len(c.ContextBefore) > 0 || len(c.ContextAfter) > 0 {
			payload.SurroundingContext = &SurroundingContext{Before: c.ContextBefore, After: c.ContextAfter}
		}
		if err := writePayload(rs.payloadPath(c.ChunkID), payload, rs.compress); err != nil {
			return err
		}
		rs.index[c.ChunkID] = indexEntry{RelativePath: c.RelativePath, Language: c.Language, Type: c.Type}
		rs.byPath[c.RelativePath] = appendUnique(rs.byPath[c.RelativePath], c.ChunkID)
	}

	rs.metadata.EmbeddingProviderID = chunks[0].ProviderID
	rs.metadata.ModelID = chunks[0].ModelID
	return nil
}

// DeleteByPath removes every chunk previously stored for relativePath. Used
// by the change-detection commit step before writing a file's new chunks,
// and for files the walker no longer finds.
func (rs *RepositoryStore) DeleteByPath(ctx context.Context, relativePath string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	ids := rs.byPath[relativePath]
	if len(ids) == 0 {
		return nil
	}
	if err := rs.vector.Delete(ctx, ids); err != nil {
		return err
	}
	if err := rs.keyword.Delete(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		_ = os.Remove(rs.payloadPath(id))
		delete(rs.index, id)
		delete(rs.vectorBuffer, id)
	}
	delete(rs.byPath, relativePath)
	return nil
}

// Query returns up to k*candidateMultiplier candidates by cosine similarity,
// to be fed to the Ranker for re-scoring.
func (rs *RepositoryStore) Query(ctx context.Context, queryVector []float32, k, candidateMultiplier int) ([]*VectorResult, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if len(queryVector) != rs.metadata.Dimensions {
		return nil, &ErrDimensionMismatch{Expected: rs.metadata.Dimensions, Got: len(queryVector)}
	}
	if candidateMultiplier <= 0 {
		candidateMultiplier = 4
	}
	return rs.vector.Search(ctx, queryVector, k*candidateMultiplier)
}

// KeywordSearch exposes the persisted keyword index as an additional
// candidate source for the Ranker's BM25 term statistics.
func (rs *RepositoryStore) KeywordSearch(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.keyword.Search(ctx, query, limit)
}

// LoadPayload reads a single chunk's stored payload from disk.
func (rs *RepositoryStore) LoadPayload(chunkID string) (*Payload, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var p Payload
	if err := readPayload(rs.payloadPath(chunkID), rs.compress, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FileHashes returns a copy of the repository's file-hash map.
func (rs *RepositoryStore) FileHashes() map[string]FileHashEntry {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]FileHashEntry, len(rs.fileHashes))
	for k, v := range rs.fileHashes {
		out[k] = v
	}
	return out
}

// SetFileHashes replaces the repository's file-hash map. Persisted atomically
// at the next CommitIndexing.
func (rs *RepositoryStore) SetFileHashes(m map[string]FileHashEntry) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.fileHashes = m
}

// Close releases the backing vector/keyword stores. It does not release the
// writer lock; callers must Commit or Abort an in-flight indexing run first.
func (rs *RepositoryStore) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.vector.Close(); err != nil {
		return err
	}
	return rs.keyword.Close()
}

func (rs *RepositoryStore) payloadPath(chunkID string) string {
	name := chunkID + ".json"
	if rs.compress {
		name += ".gz"
	}
	return filepath.Join(rs.dir, "payloads", name)
}

func (rs *RepositoryStore) loadMetadata() error {
	data, err := os.ReadFile(filepath.Join(rs.dir, "metadata.json"))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &rs.metadata)
}

func (rs *RepositoryStore) persistMetadata() error {
	return writeJSONAtomic(filepath.Join(rs.dir, "metadata.json"), &rs.metadata)
}

func (rs *RepositoryStore) loadFileHashesLocked() error {
	path := filepath.Join(rs.dir, "file-hashes.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var entries []FileHashEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		rs.fileHashes[e.RelativePath] = e
	}
	return nil
}

func (rs *RepositoryStore) persistFileHashesLocked() error {
	entries := make([]FileHashEntry, 0, len(rs.fileHashes))
	for _, e := range rs.fileHashes {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })
	return writeJSONAtomic(filepath.Join(rs.dir, "file-hashes.json"), entries)
}

func (rs *RepositoryStore) loadIndex() error {
	path := filepath.Join(rs.dir, "index.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var raw map[string]indexEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rs.index = raw
	for id, e := range raw {
		rs.byPath[e.RelativePath] = appendUnique(rs.byPath[e.RelativePath], id)
	}
	return nil
}

func (rs *RepositoryStore) persistIndex() error {
	return writeJSONAtomic(filepath.Join(rs.dir, "index.json"), rs.index)
}

// -- vector shard: a fixed-width binary encoding of <chunkId, float32[dimensions]> --

const vectorShardIDWidth = 32

func (rs *RepositoryStore) vectorShardPath() string {
	return filepath.Join(rs.dir, "vectors", "shard.bin")
}

func (rs *RepositoryStore) persistVectorShard() error {
	dim := rs.metadata.Dimensions
	if dim == 0 {
		return nil
	}
	staging := filepath.Join(rs.dir, "vectors", ".staging", "shard.bin")
	f, err := os.Create(staging)
	if err != nil {
		return err
	}
	if err := rs.writeShardFromBuffer(f, dim); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(staging, rs.vectorShardPath())
}

func (rs *RepositoryStore) writeShardFromBuffer(f *os.File, dim int) error {
	ids := make([]string, 0, len(rs.vectorBuffer))
	for id := range rs.vectorBuffer {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := writeShardRecord(f, id, rs.vectorBuffer[id]); err != nil {
			return err
		}
	}
	return nil
}

func writeShardRecord(f *os.File, id string, vec []float32) error {
	idBytes := make([]byte, vectorShardIDWidth)
	copy(idBytes, id)
	if _, err := f.Write(idBytes); err != nil {
		return err
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := f.Write(buf)
	return err
}

func (rs *RepositoryStore) loadVectorShard() error {
	path := rs.vectorShardPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	dim := rs.metadata.Dimensions
	if dim == 0 {
		return nil
	}
	recordSize := vectorShardIDWidth + dim*4
	if recordSize == 0 || len(data)%recordSize != 0 {
		return fmt.Errorf("corrupt vector shard: size %d not a multiple of record size %d", len(data), recordSize)
	}
	rs.vectorBuffer = map[string][]float32{}
	var ids []string
	var vectors [][]float32
	for off := 0; off < len(data); off += recordSize {
		idBytes := data[off : off+vectorShardIDWidth]
		id := trimNulPadding(idBytes)
		vecBytes := data[off+vectorShardIDWidth : off+recordSize]
		vec := make([]float32, dim)
		for i := 0; i < dim; i++ {
			bits := binary.LittleEndian.Uint32(vecBytes[i*4:])
			vec[i] = math.Float32frombits(bits)
		}
		ids = append(ids, id)
		vectors = append(vectors, vec)
		rs.vectorBuffer[id] = vec
	}
	if len(ids) > 0 {
		return rs.vector.Add(context.Background(), ids, vectors)
	}
	return nil
}

func trimNulPadding(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// writePayload marshals a payload record and writes it atomically, gzip-
// compressing the bytes when compress is set. Only payload records use this;
// metadata.json, file-hashes.json, and index.json stay plain JSON regardless
// of Storage.Compression so a repository's bookkeeping files remain cheap to
// inspect by hand.
func writePayload(path string, v any, compress bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if compress {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return err
		}
		if err := gw.Close(); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readPayload reads and unmarshals a payload record written by writePayload.
func readPayload(path string, compressed bool, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if compressed {
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer gr.Close()
		data, err = io.ReadAll(gr)
		if err != nil {
			return err
		}
	}
	return json.Unmarshal(data, v)
}

func stamp() time.Time {
	return time.Now().UTC()
}
