package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyImage is returned when a capture or an output file holds no bytes.
var ErrEmptyImage = errors.New("image is empty")

// WriteImage writes img to path, creating parent directories as needed.
func WriteImage(path string, img []byte) (int64, error) {
	if len(img) == 0 {
		return 0, ErrEmptyImage
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return 0, err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	n, err := file.Write(img)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return int64(n), err
	}

	return int64(n), nil
}

// ValidateOutput confirms path is a regular file with a non-zero size and returns the size.
func ValidateOutput(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmptyImage)
	}
	return info.Size(), nil
}

// FileName derives a file name for rawURL inside folder, e.g. https_example.com_decks_3f2a9c1e.png.
// The suffix is a short hash of the URL, so targets that only differ in case or escaping get distinct files.
func FileName(folder, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}

	host := u.Host
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		host = u.Hostname()
	}

	name := u.Scheme + "_" + strings.ToLower(host) + u.Path
	if u.RawQuery != "" {
		name += "_" + u.RawQuery
	}
	name = strings.TrimSuffix(name, "/")
	sum := sha256.Sum256([]byte(name))

	name = strings.NewReplacer(
		"/", "_",
		":", "-",
		"?", "_",
		"&", "_",
		"=", "-",
		"%", "",
		"|", "-",
		";", "-",
	).Replace(name)

	return filepath.Join(folder, name+"_"+hex.EncodeToString(sum[:4])+".png"), nil
}
