package slack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/memohai/slackwire/internal/channel"
)

// maxFileBytes caps how much of a shared file is downloaded.
const maxFileBytes = 5 << 20

var supportedFileMimes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// collectAttachments converts shared files on an inbound event into
// attachment references. Unsupported mime types are skipped.
func (a *SlackAdapter) collectAttachments(files []slack.File) []channel.Attachment {
	if len(files) == 0 {
		return nil
	}
	attachments := make([]channel.Attachment, 0, len(files))
	for _, file := range files {
		if !supportedFileMimes[file.Mimetype] {
			if a.logger != nil {
				a.logger.Debug("skip unsupported file",
					slog.String("file_id", file.ID),
					slog.String("mime", file.Mimetype),
				)
			}
			continue
		}
		attachments = append(attachments, channel.Attachment{
			Type:        attachmentTypeForMime(file.Mimetype),
			URL:         file.URLPrivateDownload,
			PlatformKey: file.ID,
			Name:        file.Name,
			Size:        int64(file.Size),
			Mime:        file.Mimetype,
		})
	}
	return attachments
}

func attachmentTypeForMime(mime string) channel.AttachmentType {
	switch {
	case mime == "image/gif":
		return channel.AttachmentGIF
	case strings.HasPrefix(mime, "image/"):
		return channel.AttachmentImage
	default:
		return channel.AttachmentFile
	}
}

// ResolveAttachment downloads a shared file by its file ID, using the bot
// token for the authenticated fetch. Slack serves an HTML login page instead
// of an error status when the token lacks access, so the payload is sniffed
// before it is returned.
func (a *SlackAdapter) ResolveAttachment(ctx context.Context, cfg channel.ChannelConfig, attachment channel.Attachment) (channel.AttachmentPayload, error) {
	slackCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		return channel.AttachmentPayload{}, err
	}
	fileID := strings.TrimSpace(attachment.PlatformKey)
	if fileID == "" {
		return channel.AttachmentPayload{}, fmt.Errorf("slack file id is required")
	}
	api := a.getOrCreateClient(slackCfg)
	info, _, _, err := api.GetFileInfoContext(ctx, fileID, 0, 0)
	if err != nil {
		return channel.AttachmentPayload{}, fmt.Errorf("slack file info: %w", err)
	}
	if !supportedFileMimes[info.Mimetype] {
		return channel.AttachmentPayload{}, fmt.Errorf("unsupported file type: %s", info.Mimetype)
	}
	if info.Size > maxFileBytes {
		return channel.AttachmentPayload{}, fmt.Errorf("file too large: %d bytes", info.Size)
	}
	downloadURL := info.URLPrivateDownload
	if downloadURL == "" {
		downloadURL = info.URLPrivate
	}
	if downloadURL == "" {
		return channel.AttachmentPayload{}, fmt.Errorf("slack file has no download url")
	}
	var buf bytes.Buffer
	if err := api.GetFileContext(ctx, downloadURL, &limitedWriter{w: &buf, n: maxFileBytes}); err != nil {
		return channel.AttachmentPayload{}, fmt.Errorf("slack file download: %w", err)
	}
	if looksLikeHTML(buf.Bytes()) {
		return channel.AttachmentPayload{}, fmt.Errorf("slack file download returned html, check bot token scopes")
	}
	return channel.AttachmentPayload{
		Reader: io.NopCloser(&buf),
		Mime:   info.Mimetype,
		Name:   info.Name,
		Size:   int64(buf.Len()),
	}, nil
}

// looksLikeHTML reports whether the payload starts with an HTML document.
func looksLikeHTML(payload []byte) bool {
	head := payload
	if len(head) > 512 {
		head = head[:512]
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	lower := bytes.ToLower(trimmed)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

type limitedWriter struct {
	w io.Writer
	n int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, fmt.Errorf("file exceeds %d bytes", int64(maxFileBytes))
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.w.Write(p)
	l.n -= int64(n)
	return n, err
}
