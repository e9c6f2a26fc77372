package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/convertd/convertd/internal/media"
)

type probeResult struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
}

// Prober runs ffprobe against input files.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe inspects a local media file and returns its decoded shape.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, media.WrapError(media.KindValidationError, "input file not accessible", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, media.NewError(media.KindTimeout, fmt.Sprintf("probe timeout after %v", p.timeout))
		}
		return nil, media.WrapError(media.KindDecodingError, "ffprobe failed", err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, media.WrapError(media.KindDecodingError, "parsing ffprobe output", err)
	}

	return p.toMediaInfo(path, &result), nil
}

func (p *Prober) toMediaInfo(path string, result *probeResult) *MediaInfo {
	info := &MediaInfo{
		Path:      path,
		Container: result.Format.FormatName,
	}

	if result.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	if result.Format.Size != "" {
		info.SizeBytes, _ = strconv.ParseInt(result.Format.Size, 10, 64)
	}
	if result.Format.BitRate != "" {
		info.BitrateBps, _ = strconv.Atoi(result.Format.BitRate)
	}

	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			info.Framerate = parseFramerate(stream.AvgFrameRate)
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
				info.AudioChannels = stream.Channels
			}
		}
	}

	return info
}

// parseFramerate converts ffprobe's "num/den" rational to fps.
func parseFramerate(rate string) float64 {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
