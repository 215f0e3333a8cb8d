//go:build !linux

package timeradapter

// New reports ErrUnsupportedPlatform outside Linux. The original design
// names launchd for macOS; that implementation isn't built out here since
// this daemon targets Linux hosts.
func New() (Timer, error) {
	return nil, ErrUnsupportedPlatform
}
