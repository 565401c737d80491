package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

// sendFile writes the whole of fullPath to w with a 200 status. Range
// requests are ignored: the artifact is removed after this call, so a partial
// body could never be completed. Nothing is written when the file cannot be
// opened; commit runs right before the headers go out.
func sendFile(w http.ResponseWriter, fullPath, contentType string, commit func()) error {
	file, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	fileSize := info.Size()
	if commit != nil {
		commit()
	}
	w.Header().Set("Accept-Ranges", "none")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))
	w.WriteHeader(http.StatusOK)
	return copySpan(w, file, fileSize)
}

func copySpan(w io.Writer, r io.Reader, n int64) error {
	written, err := io.CopyN(w, r, n)
	if err != nil {
		return fmt.Errorf("sent %d of %d bytes: %w", written, n, err)
	}
	return nil
}
