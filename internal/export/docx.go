package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// pandocArgs converts HTML on stdin to DOCX on stdout. The report title goes
// into the document properties so Word shows it instead of the file name.
func pandocArgs(title string) []string {
	args := []string{"--from", "html", "--to", "docx", "--output", "-"}
	if title = strings.TrimSpace(title); title != "" {
		args = append(args, "--metadata", "title="+title)
	}
	return args
}

func exportDOCX(ctx context.Context, html string, title string) (*Result, error) {
	pandoc, err := exec.LookPath("pandoc")
	if err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, pandoc, pandocArgs(title)...)
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pandoc: %s", msg)
		}
		return nil, fmt.Errorf("run pandoc: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("pandoc produced an empty document")
	}

	return &Result{
		Data:     stdout.Bytes(),
		Filename: sanitizeFilename(title) + ".docx",
		MimeType: docxMimeType,
	}, nil
}
