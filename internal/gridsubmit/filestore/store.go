// Package filestore implements the content-addressed store for staged job
// input and output files. Files are named after their md5 digest, sharded
// into a fixed number of subdirectories to bound directory sizes, and are
// write-once: staging different content under an existing name is an
// immutability violation. Writes go to a temp name first and are committed
// with an atomic rename, so a reader never observes a partial file at the
// canonical path.
package filestore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
)

const digestSuffix = ".md5"

type StagedFile struct {
	PhysName string
	MD5      string
	Nbytes   int64
}

type Store struct {
	dir    string
	fanout int
}

func NewStore(dir string, fanout int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Store{dir: dir, fanout: fanout}, nil
}

// PhysicalName derives the canonical name of a content-addressed file from
// its md5 digest.
func PhysicalName(md5sum string) string {
	return "jf_" + md5sum
}

// Path returns the canonical location of a physical name inside the sharded
// hierarchy, whether or not the file exists.
func (s *Store) Path(physName string) string {
	if s.fanout <= 1 {
		return filepath.Join(s.dir, physName)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(physName))
	shard := h.Sum32() % uint32(s.fanout)
	return filepath.Join(s.dir, fmt.Sprintf("%x", shard), physName)
}

func (s *Store) Present(physName string) bool {
	_, err := os.Stat(s.Path(physName))
	return err == nil
}

// Resolve returns the path of a stored file, or ErrNotFound.
func (s *Store) Resolve(physName string) (string, error) {
	path := s.Path(physName)
	if _, err := os.Stat(path); err != nil {
		return "", &rpcerrors.ErrNotFound{Type: "file", Value: physName}
	}
	return path, nil
}

// StageContent stages content whose physical name is derived from its own
// digest. Staging identical bytes twice yields the same name and a single
// stored object.
func (s *Store) StageContent(r io.Reader) (StagedFile, error) {
	tmp, md5sum, n, err := s.writeTemp(r)
	if err != nil {
		return StagedFile{}, &rpcerrors.ErrStaging{PhysName: "(content-addressed)", Cause: err}
	}
	physName := PhysicalName(md5sum)
	if err := s.commit(tmp, physName, md5sum); err != nil {
		return StagedFile{}, err
	}
	return StagedFile{PhysName: physName, MD5: md5sum, Nbytes: n}, nil
}

// StageNamed stages content under a caller-declared physical name, as used
// by the file upload endpoint. When declaredMD5 is non-empty the content is
// verified against it; a mismatch means the upload was corrupted in transit.
func (s *Store) StageNamed(r io.Reader, physName string, declaredMD5 string) (StagedFile, error) {
	tmp, md5sum, n, err := s.writeTemp(r)
	if err != nil {
		return StagedFile{}, &rpcerrors.ErrStaging{PhysName: physName, Cause: err}
	}
	if declaredMD5 != "" && !strings.EqualFold(declaredMD5, md5sum) {
		_ = os.Remove(tmp)
		return StagedFile{}, &rpcerrors.ErrStaging{
			PhysName: physName,
			Cause:    errors.Errorf("content digest %s does not match declared %s", md5sum, declaredMD5),
		}
	}
	if err := s.commit(tmp, physName, md5sum); err != nil {
		return StagedFile{}, err
	}
	return StagedFile{PhysName: physName, MD5: md5sum, Nbytes: n}, nil
}

// StageLocal stages a server-local file by content hash.
func (s *Store) StageLocal(path string) (StagedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return StagedFile{}, &rpcerrors.ErrStaging{PhysName: path, Cause: err}
	}
	defer f.Close()
	return s.StageContent(f)
}

// Digest returns the recorded digest of a stored file from its companion
// record, falling back to hashing the file itself if the record is missing.
func (s *Store) Digest(physName string) (string, error) {
	path := s.Path(physName)
	if b, err := os.ReadFile(path + digestSuffix); err == nil {
		return strings.TrimSpace(string(b)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", &rpcerrors.ErrNotFound{Type: "file", Value: physName}
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WithStack(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeTemp copies r into a temp file in the store root, computing the md5
// digest and size on the way through.
func (s *Store) writeTemp(r io.Reader) (tmpPath string, md5sum string, n int64, err error) {
	tmp, err := os.CreateTemp(s.dir, ".stage-*")
	if err != nil {
		return "", "", 0, errors.WithStack(err)
	}
	h := md5.New()
	n, err = io.Copy(io.MultiWriter(tmp, h), r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", 0, errors.WithStack(err)
	}
	return tmp.Name(), hex.EncodeToString(h.Sum(nil)), n, nil
}

// commit moves a fully written temp file to its canonical path. If the
// destination already exists its digest must match; the second writer is
// then a no-op. A digest mismatch is an immutability violation and the
// existing object is left untouched.
func (s *Store) commit(tmp string, physName string, md5sum string) error {
	dst := s.Path(physName)
	// Only the data file proves the object exists. A companion record alone,
	// as left by a commit interrupted before the rename, must not make the
	// staging look done.
	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(tmp)
		existing, err := s.Digest(physName)
		if err != nil {
			return err
		}
		if existing != md5sum {
			return &rpcerrors.ErrImmutabilityViolation{
				PhysName:    physName,
				ExistingMD5: existing,
				NewMD5:      md5sum,
			}
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		_ = os.Remove(tmp)
		return &rpcerrors.ErrStaging{PhysName: physName, Cause: err}
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return &rpcerrors.ErrStaging{PhysName: physName, Cause: err}
	}
	// The companion record is written after the rename and is purely a
	// digest cache; Digest rehashes the file when it is missing.
	if err := os.WriteFile(dst+digestSuffix, []byte(md5sum+"\n"), 0o644); err != nil {
		_ = os.Remove(dst + digestSuffix)
	}
	return nil
}
