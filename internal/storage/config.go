package storage

// Config holds receipt storage configuration
type Config struct {
	UploadDir    string   // Root directory for receipt files
	MaxFileSize  int64    // Bytes; zero means no limit
	AllowedTypes []string // MIME types accepted on upload; empty accepts any
}

func (c Config) allows(contentType string) bool {
	if len(c.AllowedTypes) == 0 {
		return true
	}
	for _, t := range c.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
