package services

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"tapedeck/types"

	"github.com/dhowden/tag"
	"github.com/mewkiz/flac"
	"go.uber.org/zap"
)

// TrackInspector reads descriptive metadata from uploaded audio files
type TrackInspector interface {
	Inspect(path string) types.TrackInfo
	ContentType(filename string) string
}

type trackInspector struct {
	logger *zap.Logger
}

// NewTrackInspector creates a new track inspector
func NewTrackInspector(logger *zap.Logger) TrackInspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &trackInspector{logger: logger}
}

var trackNumberPrefix = regexp.MustCompile(`^(\d+)[\.\-\s]+(.+)`)

// Inspect extracts tag metadata and, for FLAC, the stream duration. Missing
// fields fall back to what the filename says.
func (ti *trackInspector) Inspect(path string) types.TrackInfo {
	filename := filepath.Base(path)
	info := types.TrackInfo{
		Filename:    filename,
		Format:      formatFromExt(filename),
		ContentType: ti.ContentType(filename),
	}

	if stat, err := os.Stat(path); err == nil {
		info.Size = stat.Size()
	}

	file, err := os.Open(path)
	if err != nil {
		ti.logger.Warn("could not open audio file", zap.String("path", path), zap.Error(err))
		applyFilenameFallback(&info)
		return info
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		ti.logger.Debug("no readable tags", zap.String("path", path), zap.Error(err))
		if _, err := file.Seek(0, 0); err == nil {
			if _, ft, err := tag.Identify(file); err == nil && ft != tag.UnknownFileType {
				info.Format = strings.ToLower(string(ft))
			}
		}
	} else {
		info.Title = meta.Title()
		info.Artist = meta.Artist()
		info.Album = meta.Album()
		info.TrackNumber, _ = meta.Track()
		if ft := meta.FileType(); ft != tag.UnknownFileType {
			info.Format = strings.ToLower(string(ft))
		}
	}

	if info.Format == "flac" {
		info.DurationSeconds = ti.flacDuration(path)
	}

	applyFilenameFallback(&info)
	return info
}

// flacDuration reads the STREAMINFO block; zero when it cannot be parsed
func (ti *trackInspector) flacDuration(path string) float64 {
	stream, err := flac.Open(path)
	if err != nil {
		ti.logger.Debug("could not read flac stream info", zap.String("path", path), zap.Error(err))
		return 0
	}
	defer stream.Close()

	if stream.Info == nil || stream.Info.SampleRate == 0 {
		return 0
	}
	return float64(stream.Info.NSamples) / float64(stream.Info.SampleRate)
}

// applyFilenameFallback fills the title and track number from names like "01 - Take One.wav"
func applyFilenameFallback(info *types.TrackInfo) {
	if info.Title != "" {
		return
	}

	title := strings.TrimSuffix(info.Filename, filepath.Ext(info.Filename))
	if matches := trackNumberPrefix.FindStringSubmatch(title); len(matches) > 2 {
		title = matches[2]
		if info.TrackNumber == 0 {
			if n, err := strconv.Atoi(matches[1]); err == nil {
				info.TrackNumber = n
			}
		}
	}
	info.Title = title
}

func formatFromExt(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}

// ContentType returns the appropriate MIME type for an audio file
func (ti *trackInspector) ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".opus":
		return "audio/opus"
	case ".m4a", ".mp4", ".aac":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".aif", ".aiff":
		return "audio/aiff"
	default:
		return "application/octet-stream"
	}
}
