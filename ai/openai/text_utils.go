package openai

import "strings"

// stripStopTokens removes chat template markers from model output.
func stripStopTokens(s string) string {
	for _, tok := range stopTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return s
}

// cleanResponse prepares a complete answer for the caller.
func cleanResponse(s string) string {
	return strings.TrimSpace(stripStopTokens(s))
}

// imageMIMEType maps an image format or file extension to its MIME type.
func imageMIMEType(format string) string {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	switch format {
	case "", "jpg", "jpeg":
		return "image/jpeg"
	case "svg":
		return "image/svg+xml"
	default:
		return "image/" + format
	}
}
