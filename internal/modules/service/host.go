package service

import (
	"context"
	"sync"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// Host maps module addresses to in-process implementations. The registry says
// which address serves a name; the host says what code lives at that address.
type Host struct {
	mu    sync.RWMutex
	impls map[domain.Address]any
}

func NewHost() *Host {
	return &Host{impls: make(map[domain.Address]any)}
}

// Serve binds impl to addr, replacing any previous binding.
func (h *Host) Serve(addr domain.Address, impl any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.impls[addr] = impl
}

func (h *Host) Lookup(addr domain.Address) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	impl, ok := h.impls[addr]
	return impl, ok
}

// Binder resolves a registry name to a live implementation.
type Binder struct {
	registry *Service
	host     *Host
}

func NewBinder(registry *Service, host *Host) *Binder {
	return &Binder{registry: registry, host: host}
}

// Address resolves name to the address currently registered for iface.
func (b *Binder) Address(ctx context.Context, name, iface string) (domain.Address, error) {
	handle, err := b.registry.ResolveAs(ctx, name, iface, 1)
	if err != nil {
		return "", err
	}
	return handle.Address, nil
}

// Implementation returns the code served at addr.
func (b *Binder) Implementation(addr domain.Address) (any, bool) {
	return b.host.Lookup(addr)
}

// Locator is what Bind needs: registry resolution plus the code behind an address.
type Locator interface {
	Address(ctx context.Context, name, iface string) (domain.Address, error)
	Implementation(addr domain.Address) (any, bool)
}

// Bind resolves name through the registry and returns its implementation as T.
func Bind[T any](ctx context.Context, l Locator, name, iface string) (T, error) {
	var zero T
	addr, err := l.Address(ctx, name, iface)
	if err != nil {
		return zero, err
	}
	impl, ok := l.Implementation(addr)
	if !ok {
		return zero, dErrors.Newf(dErrors.CodeNotFound, "no implementation served at %s for module %s", addr, name)
	}
	typed, ok := impl.(T)
	if !ok {
		return zero, dErrors.Newf(dErrors.CodeInvalidState, "implementation at %s does not satisfy %s", addr, iface)
	}
	return typed, nil
}
