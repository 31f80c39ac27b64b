package broker

import (
	"fmt"
	"log/slog"
	"strings"
)

// DialRelay picks a relay from the URL scheme. An empty URL returns nil.
func DialRelay(url, prefix string, logger *slog.Logger) (Relay, error) {
	switch {
	case url == "":
		return nil, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return DialRedis(url, prefix)
	case strings.HasPrefix(url, "nats://"), strings.HasPrefix(url, "tls://"):
		return DialNATS(url, prefix, logger)
	default:
		return nil, fmt.Errorf("unsupported relay url %q", url)
	}
}
