package handler

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// WriterNotifier prints announcements to w instead of a chat channel
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier creates a notifier writing to w
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// SendMarkdown writes text followed by a separator line
func (n *WriterNotifier) SendMarkdown(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := fmt.Fprintf(n.w, "%s\n----\n", text); err != nil {
		return fmt.Errorf("failed to write announcement: %w", err)
	}
	return nil
}
