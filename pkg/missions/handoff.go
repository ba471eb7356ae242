package missions

import (
	"fmt"
	"net/url"
	"strings"
)

// SigningLink builds the deep link handed to a second device for remote
// signature capture:
//
//	<origin>/<path>?mode=sign&uid=<session-id>&mid=<mission-id>
//
// The query parameter names are a wire contract: the signing device parses
// mode, uid and mid to locate the mission. The link carries no expiry or
// one-time-use token; anyone knowing both identifiers can replay it. Known
// security gap, kept for compatibility.
func SigningLink(origin, path, uid, missionID string) string {
	return fmt.Sprintf("%s/%s?mode=sign&uid=%s&mid=%s",
		strings.TrimRight(origin, "/"),
		strings.TrimLeft(path, "/"),
		url.QueryEscape(uid),
		url.QueryEscape(missionID),
	)
}

// QRImageURL builds the URL of the external image service rendering the
// signing link as a scannable code. The service is opaque: the URL is handed
// straight to an <img>-like consumer, no response parsing.
func QRImageURL(service string, size int, link string) string {
	return fmt.Sprintf("%s?size=%dx%d&data=%s",
		strings.TrimRight(service, "/"),
		size, size,
		url.QueryEscape(link),
	)
}
