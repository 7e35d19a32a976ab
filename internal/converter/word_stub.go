//go:build !windows

package converter

// Word automation only exists on Windows; everywhere else the probe reports
// the backend unavailable and Detect falls back to LibreOffice.
func newWordBackend() Backend { return nil }
