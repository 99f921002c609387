package verification

import (
	"strings"

	"github.com/mssola/useragent"
)

// Client describes the software that asked for a verification. It is
// recorded on the activity entry.
type Client struct {
	Browser      string
	MajorVersion string
	OS           string
	Platform     string
	Bot          bool
}

// DescribeClient parses a User-Agent header. Empty input yields "unknown"
// fields.
func DescribeClient(userAgent string) Client {
	c := Client{Browser: "unknown", MajorVersion: "unknown", OS: "unknown", Platform: "desktop"}
	if strings.TrimSpace(userAgent) == "" {
		return c
	}

	ua := useragent.New(userAgent)
	browser, version := ua.Browser()
	if b := strings.ToLower(strings.TrimSpace(browser)); b != "" {
		c.Browser = b
	}
	if major, _, _ := strings.Cut(version, "."); major != "" {
		c.MajorVersion = major
	}
	if os := strings.ToLower(strings.TrimSpace(ua.OS())); os != "" {
		c.OS = os
	}
	if ua.Mobile() {
		c.Platform = "mobile"
	}
	c.Bot = ua.Bot()
	return c
}

// Display returns "browser on os", e.g. "chrome on windows 10".
func (c Client) Display() string {
	return c.Browser + " on " + c.OS
}
