package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/sheet"
	"go.uber.org/zap"
)

const (
	noRegionDir     = "_no_region_"
	sidecarSuffix   = ".meta.json"
	defaultLookback = 240
)

// sidecar overrides the provenance derived from the file itself.
type sidecar struct {
	MessageID  string     `json:"message_id"`
	Subject    string     `json:"subject"`
	Sender     string     `json:"sender"`
	ReceivedAt *time.Time `json:"received_at"`
}

// DirInbox serves attachments dropped into a per-stream directory tree.
type DirInbox struct {
	root  string
	clock clock.Clock
	log   *zap.Logger
}

func NewDirInbox(root string, clk clock.Clock, log *zap.Logger) *DirInbox {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DirInbox{root: root, clock: clk, log: log.Named("fetcher.dir")}
}

// StreamDir is the directory that holds attachments for one stream.
func (d *DirInbox) StreamDir(client string, region *string) string {
	regionDir := noRegionDir
	if region != nil && strings.TrimSpace(*region) != "" {
		regionDir = slug.Make(*region)
	}
	return filepath.Join(d.root, slug.Make(client), regionDir)
}

func (d *DirInbox) Fetch(ctx context.Context, req FetchRequest) (*Attachment, error) {
	if strings.TrimSpace(req.Client) == "" {
		return nil, errors.New("fetch: client is required")
	}
	dir := d.StreamDir(req.Client, req.Region)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoAttachment
		}
		return nil, fmt.Errorf("read inbox %s: %w", dir, err)
	}

	hours := req.LookbackHours
	if hours <= 0 {
		hours = defaultLookback
	}
	since := d.clock.Now().Add(-time.Duration(hours) * time.Hour)
	hint := strings.ToLower(strings.TrimSpace(req.SubjectHint))

	var best *Attachment
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !sheet.IsSupported(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		att := &Attachment{
			Path:       filepath.Join(dir, name),
			FileName:   name,
			MessageID:  name,
			Subject:    name,
			Sender:     req.Sender,
			ReceivedAt: info.ModTime().UTC(),
		}
		if err := d.applySidecar(att); err != nil {
			d.log.Warn("ignoring unreadable sidecar", zap.String("file", att.Path), zap.Error(err))
		}

		if att.ReceivedAt.Before(since) {
			continue
		}
		if hint != "" &&
			!strings.Contains(strings.ToLower(name), hint) &&
			!strings.Contains(strings.ToLower(att.Subject), hint) {
			continue
		}
		if best == nil || att.ReceivedAt.After(best.ReceivedAt) {
			best = att
		}
	}
	if best == nil {
		return nil, ErrNoAttachment
	}

	data, err := os.ReadFile(best.Path)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", best.Path, err)
	}
	best.Data = data
	return best, nil
}

func (d *DirInbox) applySidecar(att *Attachment) error {
	raw, err := os.ReadFile(att.Path + sidecarSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return err
	}
	if v := strings.TrimSpace(meta.MessageID); v != "" {
		att.MessageID = v
	}
	if v := strings.TrimSpace(meta.Subject); v != "" {
		att.Subject = v
	}
	if v := strings.TrimSpace(meta.Sender); v != "" {
		att.Sender = v
	}
	if meta.ReceivedAt != nil {
		att.ReceivedAt = meta.ReceivedAt.UTC()
	}
	return nil
}
