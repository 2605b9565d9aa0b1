package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

var urlExtPattern = regexp.MustCompile(`\.([a-zA-Z0-9]+)$`)

var downloadClient = &http.Client{Timeout: 10 * time.Minute}

// Download fetches a remote media resource into dir and returns the file
// path. The extension is inferred from the URL path when present.
func Download(ctx context.Context, rawURL, dir string) (string, error) {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		if m := urlExtPattern.FindStringSubmatch(u.Path); m != nil {
			ext = "." + m[1]
		}
	}
	outputPath := filepath.Join(dir, fmt.Sprintf("%s-download%s", uuid.New().String(), ext))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrMediaFetch, err)
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrMediaFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: download status %d", types.ErrMediaFetch, resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrMediaFetch, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: %v", types.ErrMediaFetch, err)
	}

	return outputPath, nil
}

// ExtractAudio converts any media file to 16kHz mono PCM WAV via ffmpeg,
// writing the result into dir and returning its path.
func ExtractAudio(ctx context.Context, inputPath, dir string) (string, error) {
	outputPath := filepath.Join(dir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", // Overwrite output
		"-i", inputPath,
		"-vn",          // Drop any video stream
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: ffmpeg: %v\nOutput: %s", types.ErrExtraction, err, string(output))
	}

	return outputPath, nil
}

// ValidFormat checks if the file extension is a supported audio/video input.
func ValidFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supported := []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma", ".mp4", ".opus"}

	for _, format := range supported {
		if ext == format {
			return true
		}
	}
	return false
}
