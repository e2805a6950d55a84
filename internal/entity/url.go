// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a shortened URL, along with its
// associated metadata, the result of a shortening request and the error taxonomy
// shared by the use case and its adapters.
package entity

import (
	"errors"
	"time"
)

var (
	// ErrInvalidURL is returned when the URL to shorten is empty or not absolute.
	ErrInvalidURL = errors.New("invalid url")
	// ErrURLNotFound is returned when a URL with the specified short code cannot be found.
	ErrURLNotFound = errors.New("url not found")
	// ErrShortCodeExists is returned when attempting to create a URL with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrOriginalURLExists is returned when attempting to create a URL whose original URL is already shortened.
	ErrOriginalURLExists = errors.New("original url exists")
	// ErrStorage is returned when the durable store is unreachable or fails.
	ErrStorage = errors.New("storage error")
	// ErrCapacityExhausted is returned when no free short code was found within the attempt limit.
	ErrCapacityExhausted = errors.New("maximum attempts exceeded for generating short code")
)

// URL represents a shortened URL.
type URL struct {
	ID          int64     // ID is the unique identifier of the URL in the database.
	ShortCode   string    // ShortCode is the generated code used to shorten the original URL.
	OriginalURL string    // OriginalURL is the full URL that the short code resolves to.
	URLStats              // URLStats contains statistics about the URL.
	CreatedAt   time.Time // CreatedAt is the timestamp when the URL was created.
}

// URLStats contains statistics related to a shortened URL.
type URLStats struct {
	AccessCount int64 // AccessCount is the number of times the shortened URL has been accessed.
}

// ShortenStatus tells whether a shortening request created a new record.
type ShortenStatus int

const (
	// StatusCreated means a new short code was minted and stored.
	StatusCreated ShortenStatus = iota + 1
	// StatusAlreadyExists means the original URL was already shortened and its code was reused.
	StatusAlreadyExists
)

func (s ShortenStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// ShortenResult is the outcome of a successful shortening request.
type ShortenResult struct {
	Status ShortenStatus
	URL    *URL
}
