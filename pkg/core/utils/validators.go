package utils

import (
	"net/url"
)

// IsValidAbsoluteURL checks that a string parses as an absolute http(s) URL
func IsValidAbsoluteURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
