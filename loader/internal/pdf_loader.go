package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"scolaire/app/agent"
	"scolaire/scraper/chunker"
	"scolaire/scraper/pipeline"
	"scolaire/types"
)

// PDF chunks are smaller than wiki ones: course notes are dense.
const (
	pdfChunkChars   = 500
	pdfOverlapChars = 50
)

var ErrNoText = errors.New("no usable text in PDF")

var uploadPrefix = regexp.MustCompile(`^\d{8}_\d{6}_`)

type PDFLoader struct {
	cfg       types.Config
	converter Converter
	pipeline  *pipeline.Pipeline
	logger    *slog.Logger
	inspect   func(path string) (int, error)
	now       func() time.Time
}

func NewPDFLoader(cfg types.Config, converter Converter, logger *slog.Logger) *PDFLoader {
	if logger == nil {
		logger = slog.Default()
	}
	ch := chunker.New(chunker.WithChunkChars(pdfChunkChars), chunker.WithOverlapChars(pdfOverlapChars))
	return &PDFLoader{
		cfg:       cfg,
		converter: converter,
		pipeline:  pipeline.New(ch, logger),
		logger:    logger,
		inspect:   InspectPDF,
		now:       time.Now,
	}
}

// CreateDirectories makes sure the watched, archive and bad directories exist.
func (l *PDFLoader) CreateDirectories() error {
	for _, dir := range []string{l.cfg.SourceDir, l.cfg.ArchiveDir, l.cfg.BadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Load turns the PDF at filePath into a document of corpus records. The file
// itself is left in place.
func (l *PDFLoader) Load(ctx context.Context, filePath string) (*types.Document, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	pages, err := l.inspect(filePath)
	if err != nil {
		return nil, err
	}

	converted := filePath
	if l.cfg.CropTop > 0 || l.cfg.CropBottom > 0 {
		cropped, err := l.crop(filePath)
		if err != nil {
			return nil, err
		}
		defer os.Remove(cropped)
		converted = cropped
	}

	md, err := l.converter.Convert(ctx, converted)
	if err != nil {
		return nil, fmt.Errorf("failed to convert PDF: %w", err)
	}

	title := generateTitle(filePath)
	text := NormalizeMarkdown(md)
	page := types.RawPage{
		Title:   title,
		Text:    text,
		URL:     filepath.Base(filePath),
		Subject: detectSubject(text),
		Level:   types.LevelCollege,
		Source:  types.SourcePDF,
	}
	records := l.pipeline.ProcessPage(page)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, filePath)
	}

	l.logger.Info("[LOADER] PDF loaded",
		"file", filePath,
		"pages", pages,
		"records", len(records),
		"matiere", page.Subject,
	)
	return &types.Document{
		ID:         generateDocumentID(filePath),
		Title:      title,
		Records:    records,
		Source:     types.SourcePDF,
		SourcePath: filePath,
		Pages:      pages,
		CreatedAt:  fileInfo.ModTime(),
		UpdatedAt:  fileInfo.ModTime(),
	}, nil
}

// crop writes a cropped copy outside the watched directory.
func (l *PDFLoader) crop(filePath string) (string, error) {
	tmp, err := os.CreateTemp("", "scolaire-crop-*.pdf")
	if err != nil {
		return "", err
	}
	tmp.Close()

	if err := CropMargins(filePath, tmp.Name(), l.cfg.CropTop, l.cfg.CropBottom); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func detectSubject(text string) types.Subject {
	if s := agent.DetectSubject(text).Main; s != "" {
		return s
	}
	return types.Autre
}

func generateTitle(filePath string) string {
	fileName := uploadPrefix.ReplaceAllString(filepath.Base(filePath), "")
	if strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		fileName = fileName[:len(fileName)-4]
	}
	fileName = strings.ReplaceAll(fileName, "_", " ")
	fileName = strings.ReplaceAll(fileName, "-", " ")
	return strings.TrimSpace(fileName)
}

func generateDocumentID(filePath string) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(filePath))
}

// MoveToArchive moves filePath into a dated subdirectory of the archive, or
// of the bad directory when bad is set, and returns the new path.
func (l *PDFLoader) MoveToArchive(filePath string, bad bool) (string, error) {
	root := l.cfg.ArchiveDir
	if bad {
		root = l.cfg.BadDir
	}

	destDir := filepath.Join(root, l.now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(destPath)
	baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
	}

	if err := os.Rename(filePath, destPath); err != nil {
		if err := copyFile(filePath, destPath); err != nil {
			return "", fmt.Errorf("failed to move file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", err
		}
	}

	l.logger.Info("[LOADER] file archived", "file", destPath, "bad", bad)
	return destPath, nil
}

// copyFile covers moves across filesystems.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
