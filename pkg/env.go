package pkg

import "os"

// Getenv returns the value of the environment variable or defaultValue if
// it is not set. An empty value is returned as is.
func Getenv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func Ptr[T any](v T) *T {
	return &v
}
