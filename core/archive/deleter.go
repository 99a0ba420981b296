package archive

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/section"
)

// SectionDeleter is one way of deleting a live section document.
type SectionDeleter interface {
	DeleteSection(ctx context.Context, id string) error
}

// SectionDeleterFunc adapts a func to a SectionDeleter.
type SectionDeleterFunc func(ctx context.Context, id string) error

func (f SectionDeleterFunc) DeleteSection(ctx context.Context, id string) error { return f(ctx, id) }

// StoreDeleter deletes the section directly in the document store.
func StoreDeleter(sections *section.Service) SectionDeleter {
	return SectionDeleterFunc(sections.Purge)
}

var errNoDeleter = errors.New("no section deleter configured")

// deleteSection tries the deleters in order until one succeeds. The last error wins.
// onErr is called with every failed attempt.
func deleteSection(ctx context.Context, deleters []SectionDeleter, id string, onErr func(attempt int, err error)) error {
	err := errNoDeleter
	for i, d := range deleters {
		if err = d.DeleteSection(ctx, id); err == nil {
			return nil
		}
		if onErr != nil {
			onErr(i, err)
		}
	}
	return err
}
