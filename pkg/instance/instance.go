package instance

import "os"

// GetID identifies this worker replica in logs and locks. Deploys set
// WORKER_ID per replica; local runs fall back to the hostname.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
