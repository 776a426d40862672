// Package aitest provides scripted ai.Curator and ai.Renderer fakes.
package aitest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/raushankrgupta/nima-backend/ai"
)

var ErrScripted = errors.New("scripted failure")

// Curator returns Compositions, or Err for the first FailTimes calls.
type Curator struct {
	mu           sync.Mutex
	Compositions []ai.Composition
	FailTimes    int
	Err          error
	Calls        int
	LastRequest  ai.CurationRequest
}

func (c *Curator) CurateLooks(_ context.Context, req ai.CurationRequest) ([]ai.Composition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	c.LastRequest = req
	if c.Err != nil && (c.FailTimes < 0 || c.Calls <= c.FailTimes) {
		return nil, c.Err
	}
	return c.Compositions, nil
}

func (c *Curator) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls
}

// Renderer returns a fixed PNG payload. It fails every request whose
// description contains one of FailOn.
type Renderer struct {
	mu     sync.Mutex
	FailOn []string
	Calls  int
}

func (r *Renderer) Render(_ context.Context, req ai.RenderRequest) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	for _, marker := range r.FailOn {
		if marker != "" && strings.Contains(req.Description, marker) {
			return nil, "", ErrScripted
		}
	}
	return []byte("\x89PNG rendered"), "image/png", nil
}

func (r *Renderer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Calls
}
