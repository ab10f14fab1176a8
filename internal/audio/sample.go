package audio

import (
	"errors"
	"os"
	"sync"
)

type Source string

const (
	SourceRecord Source = "record"
	SourceUpload Source = "upload"
)

// Sample is one temporary audio file owned by a single interaction.
type Sample struct {
	Path   string
	Source Source
	MIME   string
	Size   int64

	once    sync.Once
	removed error
}

// Remove deletes the backing file. Later calls return the first result.
func (s *Sample) Remove() error {
	s.once.Do(func() {
		err := os.Remove(s.Path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.removed = err
		}
	})
	return s.removed
}
