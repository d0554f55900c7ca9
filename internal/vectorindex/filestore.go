package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/helper"
	"faq-rag/internal/models"
)

const (
	currentFile      = "CURRENT"
	recordsFile      = "records.json"
	vectorsFile      = "vectors.gob"
	generationPrefix = "gen-"
	manifestVersion  = 1

	// a reader can lose the race against a prune of its generation
	loadAttempts = 3
)

// manifest is the metadata artifact of a saved index. It maps document
// positions back to records and pins the vector blob it belongs to.
type manifest struct {
	Version       int             `json:"version"`
	Collection    string          `json:"collection"`
	Count         int             `json:"count"`
	Dimensions    int             `json:"dimensions"`
	VectorsFile   string          `json:"vectors_file"`
	VectorsSHA256 string          `json:"vectors_sha256"`
	BuiltAt       time.Time       `json:"built_at"`
	Records       []models.Record `json:"records"`
}

// FileStore keeps indexes under Dir. Each save goes to a fresh generation
// directory; the CURRENT file names the live one and is swapped with a
// rename.
type FileStore struct {
	Dir           string
	Compress      bool
	EncryptionKey string
}

func NewFileStore(dir string, compress bool, encryptionKey string) *FileStore {
	return &FileStore{Dir: dir, Compress: compress, EncryptionKey: encryptionKey}
}

func (s *FileStore) Save(ctx context.Context, idx *Index) error {
	if err := helper.CreateFolder(s.Dir); err != nil {
		return err
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	gen := generationPrefix + id
	genDir := filepath.Join(s.Dir, gen)
	if err := helper.CreateFolder(genDir); err != nil {
		return err
	}

	if err := s.writeGeneration(genDir, idx); err != nil {
		_ = os.RemoveAll(genDir)
		return err
	}
	if err := helper.WriteFileAtomic(filepath.Join(s.Dir, currentFile), []byte(gen+"\n"), 0o644); err != nil {
		_ = os.RemoveAll(genDir)
		return fmt.Errorf("failed to publish index: %w", err)
	}
	log.Info().Str("dir", s.Dir).Str("generation", gen).Int("records", idx.Len()).Msg("Saved index")

	s.prune(gen)
	return nil
}

func (s *FileStore) writeGeneration(genDir string, idx *Index) error {
	name := vectorsFile
	if s.Compress {
		name += ".gz"
	}
	if s.EncryptionKey != "" {
		name += ".enc"
	}
	blobPath := filepath.Join(genDir, name)
	if err := idx.db.ExportToFile(blobPath, s.Compress, s.EncryptionKey, idx.name); err != nil {
		return fmt.Errorf("failed to export vectors: %w", err)
	}
	sum, err := fileSHA256(blobPath)
	if err != nil {
		return err
	}

	m := manifest{
		Version:       manifestVersion,
		Collection:    idx.name,
		Count:         idx.Len(),
		Dimensions:    idx.Dimensions(),
		VectorsFile:   name,
		VectorsSHA256: sum,
		BuiltAt:       idx.BuiltAt(),
		Records:       idx.Records(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return helper.WriteFileAtomic(filepath.Join(genDir, recordsFile), data, 0o644)
}

// prune removes every generation except keep. Failures only leave garbage.
func (s *FileStore) prune(keep string) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), generationPrefix) || e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.Dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("generation", e.Name()).Msg("Failed to remove old index generation")
		}
	}
}

func (s *FileStore) Load(ctx context.Context) (*Index, error) {
	var err error
	for attempt := 0; attempt < loadAttempts; attempt++ {
		var idx *Index
		var gen string
		idx, gen, err = s.load(ctx)
		if err == nil {
			log.Debug().Str("dir", s.Dir).Str("generation", gen).Int("records", idx.Len()).Msg("Loaded index")
			return idx, nil
		}
		// retry only when the generation vanished between reading CURRENT
		// and opening it
		if gen == "" || !errors.Is(err, os.ErrNotExist) {
			break
		}
		if _, statErr := os.Stat(filepath.Join(s.Dir, gen)); statErr == nil {
			break
		}
	}
	return nil, &IndexNotFoundError{Path: s.Dir, Err: err}
}

func (s *FileStore) load(ctx context.Context) (*Index, string, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir, currentFile))
	if err != nil {
		return nil, "", err
	}
	gen := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(gen, generationPrefix) || strings.ContainsAny(gen, `/\`) || gen != filepath.Base(gen) {
		return nil, "", fmt.Errorf("invalid generation %q in %s", gen, currentFile)
	}
	genDir := filepath.Join(s.Dir, gen)

	data, err := os.ReadFile(filepath.Join(genDir, recordsFile))
	if err != nil {
		return nil, gen, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, gen, fmt.Errorf("corrupt %s: %w", recordsFile, err)
	}
	if m.Version != manifestVersion {
		return nil, gen, fmt.Errorf("unsupported index version %d", m.Version)
	}
	if m.Count != len(m.Records) {
		return nil, gen, fmt.Errorf("manifest lists %d records, expected %d", len(m.Records), m.Count)
	}
	if m.VectorsFile != filepath.Base(m.VectorsFile) || m.Collection == "" {
		return nil, gen, errors.New("corrupt manifest")
	}

	blobPath := filepath.Join(genDir, m.VectorsFile)
	sum, err := fileSHA256(blobPath)
	if err != nil {
		return nil, gen, err
	}
	if sum != m.VectorsSHA256 {
		return nil, gen, errors.New("vector blob does not match records metadata")
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(blobPath, s.EncryptionKey, m.Collection); err != nil {
		return nil, gen, fmt.Errorf("failed to import vectors: %w", err)
	}
	c := db.GetCollection(m.Collection, noTextEmbedding)
	if c == nil {
		return nil, gen, fmt.Errorf("collection %q missing from vector blob", m.Collection)
	}
	idx, err := fromCollection(ctx, db, c, m.Records, m.BuiltAt)
	if err != nil {
		return nil, gen, err
	}
	if idx.Len() > 0 && idx.Dimensions() != m.Dimensions {
		return nil, gen, fmt.Errorf("vector blob has %d dimensions, metadata says %d", idx.Dimensions(), m.Dimensions)
	}
	return idx, gen, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
