package cdpconn

import (
	"fmt"
	"os/exec"
	"strconv"
)

func launch(opts Options) (*exec.Cmd, error) {
	path := opts.ChromePath
	if path == "" {
		path = findChrome()
	}
	if path == "" {
		return nil, fmt.Errorf("chrome not found in PATH")
	}

	cmd := exec.Command(path, launchArgs(opts)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	return cmd, nil
}

func launchArgs(opts Options) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(opts.DebugPort),
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-extensions",
		"--disable-background-networking",
		"--disable-default-apps",
		"--disable-sync",
		"--metrics-recording-only",
		"--no-first-run",
		"--safebrowsing-disable-auto-update",
		"--disable-blink-features=AutomationControlled",
	}
	if opts.Headless {
		args = append(args, "--headless")
	}
	// A persistent profile keeps the Telegram session across restarts.
	if opts.UserData != "" {
		args = append(args, "--user-data-dir="+opts.UserData)
	}
	return append(args, "about:blank")
}

// findChrome finds the Chrome executable in PATH.
func findChrome() string {
	candidates := []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
		"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
	}

	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path
		}
	}
	return ""
}
