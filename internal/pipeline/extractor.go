package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Job is one request's processing context: the uploaded archive, its
// exclusive scratch directory, and the owning user.
type Job struct {
	UserID      int64
	FileName    string
	ArchivePath string
	ScratchDir  string
}

// NewJob allocates a unique scratch directory path under baseDir for this
// request. The directory itself is created during extraction.
func NewJob(baseDir string, userID int64, fileName, archivePath string) *Job {
	scratch := filepath.Join(baseDir, fmt.Sprintf("scratch_%d_%d", userID, time.Now().UnixNano()))
	return &Job{
		UserID:      userID,
		FileName:    fileName,
		ArchivePath: archivePath,
		ScratchDir:  scratch,
	}
}

// Cleanup removes the scratch directory and the uploaded archive. Safe to
// call multiple times and on partially-initialized jobs. Runs on every exit
// path, success or failure.
func (j *Job) Cleanup() {
	if j == nil {
		return
	}
	if j.ScratchDir != "" {
		if err := os.RemoveAll(j.ScratchDir); err != nil {
			log.Printf("cleanup scratch dir %s: %v", j.ScratchDir, err)
		}
	}
	if j.ArchivePath != "" {
		if err := os.Remove(j.ArchivePath); err != nil && !os.IsNotExist(err) {
			log.Printf("cleanup archive %s: %v", j.ArchivePath, err)
		}
	}
}

// Extract unpacks the job's zip archive into its scratch directory and
// returns the extracted file paths relative to the scratch dir. Directory
// entries and entries escaping the scratch dir are skipped.
func Extract(job *Job) ([]string, error) {
	reader, err := zip.OpenReader(job.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(job.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create scratch dir: %v", ErrExtraction, err)
	}

	var names []string
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		rel := filepath.Clean(entry.Name)
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			log.Printf("skipping suspicious archive entry %q", entry.Name)
			continue
		}
		dest := filepath.Join(job.ScratchDir, rel)
		if !strings.HasPrefix(dest, filepath.Clean(job.ScratchDir)+string(os.PathSeparator)) {
			log.Printf("skipping archive entry escaping scratch dir %q", entry.Name)
			continue
		}
		if err := writeEntry(entry, dest); err != nil {
			log.Printf("extract entry %q: %v", entry.Name, err)
			continue
		}
		names = append(names, rel)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: archive contained no files", ErrNoData)
	}
	return names, nil
}

func writeEntry(entry *zip.File, dest string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return nil
}
