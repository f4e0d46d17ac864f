package probe

import (
	"sync"
	"testing"
	"time"

	exiftool "github.com/barasher/go-exiftool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"
)

type stubInstance struct {
	mu     sync.Mutex
	closed bool
}

func (s *stubInstance) ExtractMetadata(files ...string) []exiftool.FileMetadata { return nil }

func (s *stubInstance) WriteMetadata(fms []exiftool.FileMetadata) {}

func (s *stubInstance) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubInstance) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newStubProbe(n int) (*ExifToolProbe, []*stubInstance) {
	p := &ExifToolProbe{
		sem:       semaphore.NewWeighted(int64(n)),
		instances: make(chan exifInstance, n),
		size:      n,
		logger:    arbor.NewLogger(),
	}
	stubs := make([]*stubInstance, n)
	for i := range stubs {
		stubs[i] = &stubInstance{}
		p.instances <- stubs[i]
	}
	return p, stubs
}

func TestClose_WaitsForInFlightInstance(t *testing.T) {
	p, stubs := newStubProbe(2)

	// A running probe holds one instance the way Probe does.
	held := <-p.instances

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned while an instance was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	// The probe finishes and returns its instance; Close must not panic
	// on that send and must then finish.
	require.NotPanics(t, func() { p.instances <- held })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not finish after the instance came back")
	}

	for _, s := range stubs {
		assert.True(t, s.Closed())
	}
}

func TestClose_Twice(t *testing.T) {
	p, _ := newStubProbe(1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
