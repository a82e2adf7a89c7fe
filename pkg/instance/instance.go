package instance

import "os"

// ID identifies this process in logs and lock ownership. It prefers
// BLOODBANK_INSTANCE_ID, then the hostname.
func ID() string {
	if id := os.Getenv("BLOODBANK_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}
