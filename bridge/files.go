package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RedSquirrel5555/ClaudeLink/internal/telegram"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tiff": true, ".svg": true,
}

const (
	maxPhotoUploadBytes    = 10 * 1024 * 1024
	maxDocumentUploadBytes = 50 * 1024 * 1024
)

// buildPrompt assembles the assistant prompt for msg. Attachments are
// downloaded into the cache first and the prompt tells the assistant to
// Read them; the returned paths are local files.
func (rt *Runtime) buildPrompt(ctx context.Context, msg *telegram.Message) (string, []string, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	if !rt.opts.FilesEnabled || (msg.Document == nil && len(msg.Photo) == 0) {
		return text, nil, nil
	}

	paths, err := rt.downloadAttachments(ctx, msg)
	if err != nil {
		return "", nil, err
	}
	if len(paths) == 0 {
		return text, nil, nil
	}

	var b strings.Builder
	b.WriteString("I'm sending you file(s). Use the Read tool to read each one:\n")
	for _, p := range paths {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if text != "" {
		b.WriteString(text)
	} else {
		b.WriteString("Please examine the file(s) above and describe what you see.")
	}
	return b.String(), paths, nil
}

func (rt *Runtime) downloadAttachments(ctx context.Context, msg *telegram.Message) ([]string, error) {
	var paths []string

	if doc := msg.Document; doc != nil {
		name := fmt.Sprintf("%d_%s", time.Now().Unix(), safeFileName(doc.FileName))
		p, err := rt.downloadOne(ctx, doc.FileID, name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	if len(msg.Photo) > 0 {
		// Telegram lists sizes ascending; the last one is the original.
		photo := msg.Photo[len(msg.Photo)-1]
		file, err := rt.api.GetFile(ctx, photo.FileID)
		if err != nil {
			return nil, fmt.Errorf("fetch photo info: %w", err)
		}
		ext := strings.ToLower(filepath.Ext(file.FilePath))
		if ext == "" {
			ext = ".jpg"
		}
		id := strings.TrimSpace(photo.FileUniqueID)
		if id == "" {
			id = uuid.NewString()[:8]
		}
		dst := filepath.Join(rt.downloadsDir, "photo_"+id+ext)
		if _, tooLarge, err := rt.api.DownloadFileTo(ctx, file.FilePath, dst, rt.opts.FileMaxBytes); err != nil {
			if tooLarge {
				return nil, fmt.Errorf("photo too large (max %d MB)", rt.opts.FileMaxBytes/(1024*1024))
			}
			return nil, fmt.Errorf("download photo: %w", err)
		}
		paths = append(paths, dst)
	}

	return paths, nil
}

func (rt *Runtime) downloadOne(ctx context.Context, fileID, name string) (string, error) {
	file, err := rt.api.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("fetch file info: %w", err)
	}
	dst := filepath.Join(rt.downloadsDir, name)
	if _, tooLarge, err := rt.api.DownloadFileTo(ctx, file.FilePath, dst, rt.opts.FileMaxBytes); err != nil {
		if tooLarge {
			return "", fmt.Errorf("file too large (max %d MB)", rt.opts.FileMaxBytes/(1024*1024))
		}
		return "", fmt.Errorf("download file: %w", err)
	}
	return dst, nil
}

func safeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		name = filepath.Base(name)
		name = strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', ':', 0:
				return '_'
			}
			return r
		}, name)
	}
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return name
}

// appendWrittenPath records the target of a Write tool call, resolved
// against the workspace, deduplicated.
func appendWrittenPath(paths []string, input map[string]any, workspaceDir string) []string {
	raw, _ := input["file_path"].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return paths
	}
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(workspaceDir, raw)
	}
	raw = filepath.Clean(raw)
	for _, p := range paths {
		if p == raw {
			return paths
		}
	}
	return append(paths, raw)
}

// sendWrittenFiles returns files the assistant wrote back into the chat:
// images as photos, everything else as documents, with per-kind size caps.
// Returns how many were sent.
func (rt *Runtime) sendWrittenFiles(ctx context.Context, chatID int64, paths []string) int {
	sent := 0
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil || st.IsDir() || st.Size() == 0 {
			continue
		}
		name := filepath.Base(p)
		ext := strings.ToLower(filepath.Ext(p))

		var sendErr error
		switch {
		case imageExtensions[ext] && st.Size() <= maxPhotoUploadBytes:
			sendErr = rt.api.SendPhoto(ctx, chatID, p, name, "")
		case st.Size() <= maxDocumentUploadBytes:
			sendErr = rt.api.SendDocument(ctx, chatID, p, name, "")
		default:
			rt.reply(ctx, chatID, 0, fmt.Sprintf("Wrote %s but it is too large to send (%d MB).", name, st.Size()/(1024*1024)))
			continue
		}
		if sendErr != nil {
			rt.logger.Warn("file_send_error", "chat_id", chatID, "file", name, "error", sendErr.Error())
			continue
		}
		sent++
	}
	return sent
}
