package handlers

import (
	"errors"
	"net/http"

	"chat_terminal/internal/storage"

	"github.com/gin-gonic/gin"
)

// uploadFile accepts a multipart upload and stores it under a path-safe name.
func (h *Handler) uploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'file' form field"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer func() { _ = src.Close() }()

	stored, err := h.store.Save(fileHeader.Filename, src)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
			return
		}
		if h.log != nil {
			h.log.Errorw("upload_failed", "name", fileHeader.Filename, "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "file uploaded", "filename": stored})
}

// listFiles returns the sorted names of all stored files.
func (h *Handler) listFiles(c *gin.Context) {
	names, err := h.store.List()
	if err != nil {
		if h.log != nil {
			h.log.Errorw("list_files_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": names})
}

// downloadFile serves one stored file as an attachment.
func (h *Handler) downloadFile(c *gin.Context) {
	name := c.Param("name")

	path, err := h.store.Path(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such file"})
		return
	}
	c.FileAttachment(path, name)
}
