package api

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"scolaire/textutil"
	"scolaire/types"
)

const uploadPrefixLayout = "20060102_150405_"

const (
	statusPending  = "pending"
	statusArchived = "archived"
	statusRejected = "rejected"
)

type DocumentRemover interface {
	DeleteDocumentByPath(ctx context.Context, path string) (int64, error)
}

// FileHandler manages the personal PDFs dropped into the loader's watched
// directory.
type FileHandler struct {
	cfg    types.Config
	docs   DocumentRemover
	logger *slog.Logger
	now    func() time.Time
}

func NewFileHandler(cfg types.Config, docs DocumentRemover, logger *slog.Logger) *FileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{
		cfg:    cfg,
		docs:   docs,
		logger: logger,
		now:    time.Now,
	}
}

func (h *FileHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrInvalidFile("missing file field")
	}

	name := textutil.SanitizeFileName(fileHeader.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return ErrInvalidFile("only PDF files are accepted")
	}
	name = h.now().Format(uploadPrefixLayout) + name

	if err := os.MkdirAll(h.cfg.SourceDir, 0755); err != nil {
		return err
	}
	dest := filepath.Join(h.cfg.SourceDir, name)
	if err := c.SaveFile(fileHeader, dest); err != nil {
		return err
	}
	h.logger.Info("[PDF] uploaded", "file", dest, "size", fileHeader.Size)

	return c.Status(fiber.StatusCreated).JSON(types.PDFInfo{
		Filename: name,
		Size:     fileHeader.Size,
		Status:   statusPending,
		Modified: h.now(),
	})
}

// HandleList lists pending, archived and rejected PDFs, newest first.
func (h *FileHandler) HandleList(c *fiber.Ctx) error {
	files, err := h.listPDFs()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"files": files, "total": len(files)})
}

func (h *FileHandler) HandleDelete(c *fiber.Ctx) error {
	name := textutil.SanitizeFileName(c.Params("name"))
	if name == "" {
		return ErrInvalidFile("invalid file name")
	}

	paths, err := h.find(name)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			return err
		}
	}

	removed, err := h.docs.DeleteDocumentByPath(c.UserContext(), filepath.Join(h.cfg.SourceDir, name))
	if err != nil {
		return err
	}
	if len(paths) == 0 && removed == 0 {
		return ErrNotFound(name, "file")
	}

	h.logger.Info("[PDF] deleted", "file", name, "copies", len(paths), "documents", removed)
	return c.JSON(fiber.Map{"deleted": name, "documents": removed})
}

type pdfDir struct {
	path      string
	status    string
	recursive bool
}

// The archive and bad directories keep files in dated subdirectories and may
// live inside the source directory.
func (h *FileHandler) dirs() []pdfDir {
	return []pdfDir{
		{h.cfg.SourceDir, statusPending, false},
		{h.cfg.ArchiveDir, statusArchived, true},
		{h.cfg.BadDir, statusRejected, true},
	}
}

func (h *FileHandler) listPDFs() ([]types.PDFInfo, error) {
	files := []types.PDFInfo{}
	for _, d := range h.dirs() {
		err := walkPDFs(d, func(path string, info fs.FileInfo) {
			files = append(files, types.PDFInfo{
				Filename: info.Name(),
				Size:     info.Size(),
				Status:   d.status,
				Modified: info.ModTime(),
			})
		})
		if err != nil {
			return nil, err
		}
	}
	slices.SortStableFunc(files, func(a, b types.PDFInfo) int {
		return b.Modified.Compare(a.Modified)
	})
	return files, nil
}

func (h *FileHandler) find(name string) ([]string, error) {
	var paths []string
	for _, d := range h.dirs() {
		err := walkPDFs(d, func(path string, info fs.FileInfo) {
			if info.Name() == name {
				paths = append(paths, path)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func walkPDFs(d pdfDir, visit func(path string, info fs.FileInfo)) error {
	err := filepath.WalkDir(d.path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != d.path && !d.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		visit(path, info)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
