package media

import "fmt"

// ContainerFormat is an output container for converted files.
type ContainerFormat string

const (
	FormatMP4  ContainerFormat = "mp4"
	FormatMKV  ContainerFormat = "mkv"
	FormatWebM ContainerFormat = "webm"
	FormatMOV  ContainerFormat = "mov"
)

// String implements fmt.Stringer.
func (f ContainerFormat) String() string {
	return string(f)
}

// Valid returns true if the format is one of the defined values.
func (f ContainerFormat) Valid() bool {
	switch f {
	case FormatMP4, FormatMKV, FormatWebM, FormatMOV:
		return true
	}
	return false
}

// Extension returns the file extension for the format, including the dot.
func (f ContainerFormat) Extension() string {
	return "." + string(f)
}

// MuxerName returns the ffmpeg muxer name for the format.
// The muxer name differs from the extension for Matroska and QuickTime.
func (f ContainerFormat) MuxerName() string {
	switch f {
	case FormatMKV:
		return "matroska"
	case FormatMOV:
		return "mov"
	case FormatWebM:
		return "webm"
	default:
		return "mp4"
	}
}

// ParseContainerFormat parses a container format name.
func ParseContainerFormat(s string) (ContainerFormat, error) {
	f := ContainerFormat(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown container format: %q", s)
	}
	return f, nil
}

// ContainerFormats returns all supported output containers.
func ContainerFormats() []ContainerFormat {
	return []ContainerFormat{FormatMP4, FormatMKV, FormatWebM, FormatMOV}
}
