// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package clientlog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Length limits applied after sanitizing
const (
	MaxFieldLength     = 1000
	MaxScalarLength    = 500
	MaxUserAgentLength = 200
	MaxStackLength     = 2000
)

var (
	angleBrackets = regexp.MustCompile(`[<>]`)
	jsProtocol    = regexp.MustCompile(`(?i)javascript:`)
	inlineHandler = regexp.MustCompile(`(?i)on\w+=`)
	// letters and digits of any script plus printable ASCII punctuation
	unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_.@#$%^&*()+={}\[\]|\\:";'?/,!~` + "`" + `]`)

	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenPattern   = regexp.MustCompile(`[a-zA-Z0-9]{32,}`)
	urlWithQuery   = regexp.MustCompile(`https?://\S+\?\S+`)
	uaDetails      = regexp.MustCompile(`\([^)]*\)`)
	uaVersions     = regexp.MustCompile(`/[\d.]+`)
	macHome        = regexp.MustCompile(`/Users/[^/]+`)
	linuxHome      = regexp.MustCompile(`/home/[^/]+`)
	windowsHome    = regexp.MustCompile(`C:\\Users\\[^\\]+`)
	multipleSpaces = regexp.MustCompile(`\s{2,}`)
)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SanitizeString strips markup and script vectors from a free-form log value
func SanitizeString(s string) string {
	s = angleBrackets.ReplaceAllString(s, "")
	s = jsProtocol.ReplaceAllString(s, "")
	s = inlineHandler.ReplaceAllString(s, "")
	s = unsafeChars.ReplaceAllString(s, "")
	return truncate(strings.TrimSpace(s), MaxFieldLength)
}

// SanitizePayload sanitizes every top-level value of a client log payload.
// Nested values are flattened to sanitized JSON text.
func SanitizePayload(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case string:
			out[k] = SanitizeString(x)
		case float64, bool:
			out[k] = x
		case map[string]interface{}, []interface{}:
			raw, err := json.Marshal(x)
			if err != nil {
				out[k] = "[Object]"
				continue
			}
			out[k] = SanitizeString(string(raw))
		case nil:
			out[k] = ""
		default:
			out[k] = truncate(fmt.Sprint(x), MaxScalarLength)
		}
	}
	return out
}

// ScrubMessage removes emails, long tokens and URLs carrying query strings
func ScrubMessage(s string) string {
	s = emailPattern.ReplaceAllString(s, "[EMAIL_REMOVED]")
	s = tokenPattern.ReplaceAllString(s, "[TOKEN_REMOVED]")
	s = urlWithQuery.ReplaceAllString(s, "[URL_WITH_PARAMS_REMOVED]")
	return truncate(s, MaxFieldLength)
}

// SanitizeURL drops the query string and fragment. Anything that is not an
// absolute URL becomes [INVALID_URL].
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[INVALID_URL]"
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	return u.String()
}

// SanitizeUserAgent keeps product names and drops platform details and versions
func SanitizeUserAgent(ua string) string {
	ua = uaDetails.ReplaceAllString(ua, "")
	ua = uaVersions.ReplaceAllString(ua, "")
	ua = multipleSpaces.ReplaceAllString(strings.TrimSpace(ua), " ")
	return truncate(ua, MaxUserAgentLength)
}

// SanitizeStack masks home directory names in file paths
func SanitizeStack(stack string) string {
	stack = macHome.ReplaceAllString(stack, "/Users/[USERNAME]")
	stack = linuxHome.ReplaceAllString(stack, "/home/[USERNAME]")
	stack = windowsHome.ReplaceAllString(stack, `C:\Users\[USERNAME]`)
	return truncate(stack, MaxStackLength)
}
