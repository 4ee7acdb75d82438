package sitecapture

import (
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
)

// resolveBrowser returns the configured executable path. With auto-download
// enabled and no path configured, it downloads a compatible Chromium binary
// if one is not already cached and returns its path. The binary is stored in
// ~/.cache/rod/browser (Unix) or %APPDATA%\rod\browser (Windows).
func resolveBrowser(cfg config) (string, error) {
	if cfg.chromePath != "" || !cfg.autoDownload {
		return cfg.chromePath, nil
	}
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("downloading browser: %w", err)
	}
	cfg.logger.Debug("using downloaded browser", "path", path)
	return path, nil
}
