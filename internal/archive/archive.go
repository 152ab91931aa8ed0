package archive

import (
	"archive/tar"
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const SEND_TEMP_FILE_NAME_PREFIX = "beam-send-temp"
const RECEIVE_TEMP_FILE_NAME_PREFIX = "beam-receive-temp"

// ----------------------------------------------------- Pack ----------------------------------------------------------

// Open opens all provided paths for packing. Paths are sorted so that the
// resulting archive layout does not depend on argument order.
func Open(paths []string) ([]*os.File, error) {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	var files []*os.File
	for _, path := range sorted {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %q", path)
		}
		files = append(files, f)
	}
	return files, nil
}

// Pack tars and pgzip-compresses files into a temporary file, returning it
// along with the resulting size.
func Pack(files []*os.File) (*os.File, int64, error) {
	// chained writers -> writing to tw writes to gw -> writes to temporary file
	tempFile, err := os.CreateTemp(os.TempDir(), SEND_TEMP_FILE_NAME_PREFIX)
	if err != nil {
		return nil, 0, err
	}
	tempFileWriter := bufio.NewWriter(tempFile)
	gw := pgzip.NewWriter(tempFileWriter)
	tw := tar.NewWriter(gw)

	for _, file := range files {
		if err := addToArchive(tw, file); err != nil {
			return nil, 0, err
		}
	}
	tw.Close()
	gw.Close()
	tempFileWriter.Flush()
	info, err := tempFile.Stat()
	if err != nil {
		return nil, 0, err
	}

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}
	return tempFile, info.Size(), nil
}

// ---------------------------------------------------- Unpack ---------------------------------------------------------

var ErrUnpackNoHeader = errors.New("no header in tar archive")
var ErrUnpackFileExists = errors.New("file exists")
var ErrUninitialized = errors.New("unpacker is uninitialized")

// Unpacker decompresses and unpacks a compressed tar archive into a
// destination directory.
type Unpacker struct {
	prompt bool // prompt defines whether we should surface existing files to the caller
	dst    string

	gr *pgzip.Reader
	tr *tar.Reader
	r  io.ReadCloser
}

func NewUnpacker(dst string, prompt bool, r io.ReadCloser) (*Unpacker, error) {
	gr, err := pgzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	if dst == "" {
		dst, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	return &Unpacker{
		prompt: prompt,
		dst:    dst,
		gr:     gr,
		tr:     tar.NewReader(gr),
		r:      r,
	}, nil
}

// Close closes all underlying readers of the unpacker.
func (u *Unpacker) Close() error {
	if u.gr != nil {
		if err := u.gr.Close(); err != nil {
			return err
		}
	}
	if u.r != nil {
		if err := u.r.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Unpack advances to the next entry in the archive, resolving a Committer
// which writes the entry to disk. If the unpacker is configured to prompt
// and the file already exists, ErrUnpackFileExists is returned along with
// the committer. Returns io.EOF once the archive is fully consumed.
func (u *Unpacker) Unpack() (Committer, error) {
	if u.tr == nil {
		return nil, ErrUninitialized
	}
	header, err := u.tr.Next()
	switch {
	case err != nil:
		return nil, err
	case header == nil:
		return nil, ErrUnpackNoHeader
	}
	path := filepath.Join(u.dst, header.Name)
	commiter := committer{
		dst:    u.dst,
		name:   header.Name,
		tr:     u.tr,
		header: header,
	}

	if u.prompt && header.Typeflag == tar.TypeReg && fileExists(path) {
		return &commiter, ErrUnpackFileExists
	}
	return &commiter, nil
}

// Committer defines a unit that can commit a file to disk.
type Committer interface {
	FileName() string
	Commit() (int64, error)
}

type committer struct {
	dst    string
	name   string
	tr     *tar.Reader
	header *tar.Header
}

func (c *committer) FileName() string {
	return c.name
}

func (c *committer) Commit() (int64, error) {
	path := filepath.Join(c.dst, c.name)
	switch c.header.Typeflag {
	case tar.TypeDir:
		if _, err := os.Stat(path); err != nil {
			if err := os.MkdirAll(path, 0755); err != nil {
				return 0, err
			}
		}
		return 0, nil
	case tar.TypeReg:
		f, err := os.Create(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		if _, err := io.Copy(f, c.tr); err != nil {
			return 0, err
		}
		info, err := f.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	default:
		return 0, errors.New("unsupported file type")
	}
}

// ----------------------------------------------------- Utilities -----------------------------------------------------

// FileSize traverses a file or directory recursively for total size in bytes.
func FileSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		size += info.Size()
		return err
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// RemoveTemporaryFiles optimistically removes files created by beam with the
// specified prefix.
func RemoveTemporaryFiles(prefix string) {
	tempFiles, err := os.ReadDir(os.TempDir())
	if err != nil {
		return
	}
	for _, tempFile := range tempFiles {
		info, err := tempFile.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.Name(), prefix) {
			os.Remove(filepath.Join(os.TempDir(), info.Name()))
		}
	}
}

// ------------------------------------------------------- Helper ------------------------------------------------------

// addToArchive adds a file/folder to a tar archive.
// Handles symlinks by replacing them with the files that they point to.
func addToArchive(tw *tar.Writer, file *os.File) error {
	absPath, err := filepath.Abs(file.Name())
	if err != nil {
		return err
	}
	absoluteBase := filepath.Dir(absPath)

	return filepath.Walk(file.Name(), func(path string, fi os.FileInfo, err error) error {
		if (fi.Mode() & os.ModeSymlink) == os.ModeSymlink {
			// read path that the symlink is pointing to
			var link string
			if link, err = filepath.EvalSymlinks(path); err != nil {
				return err
			}

			// treat the symlink as the file it points to
			fi, err = os.Stat(link)
			if err != nil {
				return err
			}
		}

		// tar.FileInfoHeader handles path as pointee if path is a symlink
		header, e := tar.FileInfoHeader(fi, path)
		if e != nil {
			return err
		}

		// use absolute paths to handle both relative and absolute input paths identically
		targetPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		// remove the absolute root from the filename, leaving only the desired filename
		header.Name = filepath.ToSlash(strings.TrimPrefix(targetPath, absoluteBase))
		header.Name = strings.TrimPrefix(header.Name, string(os.PathSeparator))

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !fi.IsDir() {
			data, err := os.Open(path)
			if err != nil {
				return err
			}
			defer data.Close()
			if _, err := io.Copy(tw, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
