package packaging

import "fmt"

// GenerateDefaultConfig produces a minimal default config.yaml for tunnelkeepd.
// If apiBaseURL is empty, a placeholder comment is written instead.
func GenerateDefaultConfig(apiBaseURL string) string {
	apiLine := "# api_url: https://api.tunnelkeep.example.com"
	if apiBaseURL != "" {
		apiLine = fmt.Sprintf("api_url: %s", apiBaseURL)
	}

	return fmt.Sprintf(`# tunnelkeepd configuration
# See documentation for all available options.

%s
data_dir: /var/lib/tunnelkeepd
log_level: info
allow_lan: false
block_when_disconnected: false
`, apiLine)
}
