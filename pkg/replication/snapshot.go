package replication

import (
	"archive/tar"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/nexusdb/nexus/pkg/nexuserr"
)

// snapshotDirs names the two subdirectories a database snapshot carries,
// mapped to the archive-entry prefix they're stored under — the WAL is
// deliberately excluded, since a replica that loads a snapshot starts a
// fresh local WAL and resumes streaming from the offset in SnapshotMeta.
func snapshotDirs(storeDir, indexDir string) map[string]string {
	return map[string]string{"store": storeDir, "indexes": indexDir}
}

// buildSnapshot tars and zstd-compresses storeDir and indexDir into a
// temp file under tmpDir, returning its path, size and a CRC32 (IEEE)
// over the compressed archive body so the receiving replica can verify
// the whole transfer before loading it.
func buildSnapshot(tmpDir, storeDir, indexDir string) (path string, size int64, sum uint32, err error) {
	f, err := os.CreateTemp(tmpDir, "snapshot-*.tar.zst")
	if err != nil {
		return "", 0, 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.buildSnapshot", err)
	}
	path = f.Name()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", 0, 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.buildSnapshot", err)
	}
	tw := tar.NewWriter(zw)

	for prefix, dir := range snapshotDirs(storeDir, indexDir) {
		if err := addDirToTar(tw, prefix, dir); err != nil {
			tw.Close()
			zw.Close()
			f.Close()
			os.Remove(path)
			return "", 0, 0, err
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		f.Close()
		os.Remove(path)
		return "", 0, 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.buildSnapshot", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return "", 0, 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.buildSnapshot", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", 0, 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.buildSnapshot", err)
	}

	size, sum, err = fileSizeAndCRC(path)
	if err != nil {
		os.Remove(path)
		return "", 0, 0, err
	}
	return path, size, sum, nil
}

func addDirToTar(tw *tar.Writer, prefix, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}

func fileSizeAndCRC(path string) (int64, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.fileSizeAndCRC", err)
	}
	defer f.Close()
	h := crc32.NewIEEE()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.fileSizeAndCRC", err)
	}
	return n, h.Sum32(), nil
}

// extractSnapshot verifies path's CRC against wantCRC, then extracts its
// tar+zstd contents, routing entries under "store/" and "indexes/" into
// storeDir and indexDir respectively.
func extractSnapshot(path string, wantCRC uint32, storeDir, indexDir string) error {
	_, gotCRC, err := fileSizeAndCRC(path)
	if err != nil {
		return err
	}
	if gotCRC != wantCRC {
		return nexuserr.New(nexuserr.KindReplication, nexuserr.CodeCrcMismatch,
			"replication.extractSnapshot", "snapshot archive checksum mismatch")
	}

	f, err := os.Open(path)
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.extractSnapshot", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.extractSnapshot", err)
	}
	defer zr.Close()

	dirs := snapshotDirs(storeDir, indexDir)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeCorruption, "replication.extractSnapshot", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		parts := strings.SplitN(filepath.ToSlash(hdr.Name), "/", 2)
		if len(parts) != 2 {
			continue
		}
		dir, ok := dirs[parts[0]]
		if !ok {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(parts[1]))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.extractSnapshot", err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.extractSnapshot", err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.extractSnapshot", err)
		}
		if err := out.Close(); err != nil {
			return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.extractSnapshot", err)
		}
	}
}
