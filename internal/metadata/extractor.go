// Package metadata probes audio files for the fields the catalog indexes:
// filename, duration and modification time.
package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"legato/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// fallbackMP3Bitrate is assumed when no mp3 frame can be decoded.
const fallbackMP3Bitrate = 192000

// Extractor probes audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates an extractor accepting the given extensions
// (".mp3", ".flac", ...).
func NewExtractor(supportedFormats []string, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	formats := make([]string, 0, len(supportedFormats))
	for _, format := range supportedFormats {
		formats = append(formats, strings.ToLower(format))
	}

	return &Extractor{
		supportedFormats: formats,
		logger:           logger,
	}
}

// IsAudioFile checks if a file has a supported audio extension
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// Probe reads the asset fields of an audio file. ID and URI are left for the
// caller to assign. A duration that cannot be determined is reported as 0;
// only an unreadable file is an error.
func (e *Extractor) Probe(filePath string) (models.Asset, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return models.Asset{}, fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return models.Asset{}, fmt.Errorf("failed to stat %s: %w", filePath, err)
	}
	if stat.IsDir() {
		return models.Asset{}, fmt.Errorf("%s is a directory", filePath)
	}

	container := e.detectContainer(file, filePath)
	duration, err := e.duration(file, container, stat.Size())
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"file_path": filePath,
			"container": container,
		}).WithError(err).Warn("Failed to calculate duration, setting to 0")
		duration = 0
	}

	e.logger.WithFields(logrus.Fields{
		"file_path":       filePath,
		"duration":        duration,
		"processing_time": time.Since(startTime),
	}).Debug("Probed audio file")

	return models.Asset{
		Filename:         filepath.Base(filePath),
		Duration:         duration,
		ModificationTime: stat.ModTime().UnixMilli(),
	}, nil
}

// detectContainer sniffs the file header, falling back to the extension when
// the header carries no recognisable signature (wav, untagged mp3).
func (e *Extractor) detectContainer(r io.ReadSeeker, filePath string) string {
	format, fileType, err := tag.Identify(r)
	if err == nil {
		switch {
		case fileType == tag.FLAC:
			return ".flac"
		case fileType == tag.MP3:
			return ".mp3"
		case format == tag.MP4:
			return ".m4a"
		}
	}
	return strings.ToLower(filepath.Ext(filePath))
}

// duration returns the length in seconds. r is rewound before decoding.
func (e *Extractor) duration(r io.ReadSeeker, container string, size int64) (float64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	switch container {
	case ".mp3":
		return durationMP3(r, size)
	case ".flac":
		return durationFLAC(r)
	case ".wav":
		return durationWAV(r, size)
	case ".m4a", ".mp4", ".aac":
		return durationMP4(r)
	default:
		return 0, fmt.Errorf("unsupported format: %s", container)
	}
}

// durationMP3 sums decoded frame durations. If not a single frame decodes the
// length is estimated from the file size.
func durationMP3(r io.Reader, size int64) (float64, error) {
	dec := mp3.NewDecoder(r)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) || frames > 0 {
				break
			}
			return float64(size*8) / fallbackMP3Bitrate, nil
		}
		total += fr.Duration()
		frames++
	}
	return total.Seconds(), nil
}

// durationFLAC reads the STREAMINFO block.
func durationFLAC(r io.Reader) (float64, error) {
	stream, err := flac.New(r)
	if err != nil {
		return 0, err
	}
	info := stream.Info
	if info.NSamples == 0 || info.SampleRate == 0 {
		return 0, errors.New("flac stream missing sample info")
	}
	return float64(info.NSamples) / float64(info.SampleRate), nil
}

// durationWAV derives the sample frame count from the data chunk size, or
// from the file size when the data chunk cannot be located.
func durationWAV(r io.ReadSeeker, size int64) (float64, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, errors.New("invalid wav header")
	}

	var pcmBytes int64
	if err := dec.FwdToPCM(); err == nil {
		pcmBytes = dec.PCMLen()
	} else {
		pcmBytes = max(size-44, 0)
	}

	frameSize := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if frameSize <= 0 {
		return 0, errors.New("invalid sample frame size")
	}
	return float64(pcmBytes/frameSize) / float64(dec.SampleRate), nil
}

// durationMP4 walks the top-level atoms to moov/mvhd and reads its timescale
// and duration.
func durationMP4(r io.ReadSeeker) (float64, error) {
	for {
		size, atom, err := readAtomHeader(r)
		if err != nil {
			return 0, err
		}
		if atom != "moov" {
			if _, err := r.Seek(size-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		for remaining := size - 8; remaining > 0; {
			subSize, subAtom, err := readAtomHeader(r)
			if err != nil {
				return 0, err
			}
			if subAtom == "mvhd" {
				return readMVHD(r)
			}
			if _, err := r.Seek(subSize-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			remaining -= subSize
		}
		return 0, errors.New("mvhd atom not found")
	}
}

func readAtomHeader(r io.Reader) (int64, string, error) {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, "", err
	}
	size := int64(binary.BigEndian.Uint32(head[0:4]))
	if size < 8 {
		return 0, "", fmt.Errorf("invalid atom size %d", size)
	}
	return size, string(head[4:8]), nil
}

// readMVHD parses an mvhd body positioned just after its header. Version 1
// boxes carry 64-bit times and duration.
func readMVHD(r io.Reader) (float64, error) {
	var versionFlags [4]byte
	if _, err := io.ReadFull(r, versionFlags[:]); err != nil {
		return 0, err
	}

	var timescale uint32
	var units uint64
	if versionFlags[0] == 1 {
		var body [28]byte // creation(8) modification(8) timescale(4) duration(8)
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(body[16:20])
		units = binary.BigEndian.Uint64(body[20:28])
	} else {
		var body [16]byte // creation(4) modification(4) timescale(4) duration(4)
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(body[8:12])
		units = uint64(binary.BigEndian.Uint32(body[12:16]))
	}

	if timescale == 0 {
		return 0, errors.New("invalid timescale")
	}
	return float64(units) / float64(timescale), nil
}
