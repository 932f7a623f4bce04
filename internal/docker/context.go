package docker

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// DefaultIgnorePatterns apply when the build context has no .dockerignore.
var DefaultIgnorePatterns = []string{
	".git",
	".env",
	"bin",
	"dist",
}

// ReadIgnorePatterns returns the patterns of dir/.dockerignore, or
// DefaultIgnorePatterns when the file does not exist.
func ReadIgnorePatterns(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultIgnorePatterns, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse .dockerignore: %w", err)
	}
	return patterns, nil
}

// ArchiveContext streams dir as a tar archive, leaving out paths matched by
// patterns (.dockerignore syntax, including "!" exceptions). Entries in
// extra are appended after the tree under their map key, e.g. a generated
// Dockerfile.
//
// Ownership is reset to root so builds do not depend on the caller's uid.
// Errors during the walk surface from the returned reader's Read.
func ArchiveContext(dir string, patterns []string, extra map[string][]byte) (io.ReadCloser, error) {
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		err := writeTree(tw, dir, pm)
		if err == nil {
			err = writeExtra(tw, extra)
		}
		if err == nil {
			err = tw.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, nil
}

// writeTree adds every non-ignored file under dir to tw.
func writeTree(tw *tar.Writer, dir string, pm *patternmatcher.PatternMatcher) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		skip, err := pm.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if skip {
			// An exclusion pattern ("!dir/keep") may re-include something
			// below an ignored directory, so only prune without exclusions.
			if d.IsDir() && !pm.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return addEntry(tw, path, filepath.ToSlash(rel), info)
	})
}

// addEntry writes one file, directory or symlink. Other file types
// (sockets, devices) are skipped.
func addEntry(tw *tar.Writer, path, name string, info fs.FileInfo) error {
	var link string
	switch mode := info.Mode(); {
	case mode.IsRegular(), mode.IsDir():
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		link = target
	default:
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(tw, f)
	return err
}

// writeExtra appends in-memory files.
func writeExtra(tw *tar.Writer, extra map[string][]byte) error {
	for name, data := range extra {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
	}
	return nil
}
