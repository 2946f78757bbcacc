package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Service struct {
	logger  *zap.Logger
	timeout time.Duration
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, timeout: 30 * time.Second}
}

// Export generates doc in the requested format.
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	if format == FormatMarkdown {
		return &Result{
			Data:     []byte(doc.Markdown),
			Filename: sanitizeFilename(doc.Title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	}

	html, err := RenderDocumentHTML(templateData(doc))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var result *Result
	switch format {
	case FormatPDF:
		result, err = exportPDF(ctx, html, doc.Title)
	case FormatDOCX:
		result, err = exportDOCX(ctx, html, doc.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		s.logger.Warn("export failed", zap.String("format", string(format)), zap.Error(err))
		return nil, err
	}
	s.logger.Info("report exported",
		zap.String("format", string(format)),
		zap.Int("bytes", len(result.Data)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
