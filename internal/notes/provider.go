package notes

import "sync"

// Provider hands out one lazily constructed Service for the lifetime of the process.
// Build it once at startup and pass it to whatever needs the service.
type Provider struct {
	once  sync.Once
	build func() *Service
	svc   *Service
}

// NewProvider returns a provider that calls build on first use.
func NewProvider(build func() *Service) *Provider {
	return &Provider{build: build}
}

// Service returns the shared service, constructing it on the first call.
func (p *Provider) Service() *Service {
	p.once.Do(func() {
		p.svc = p.build()
	})
	return p.svc
}
