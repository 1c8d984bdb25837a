package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-sandbox/internal/adapters/lock"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

var errProvider = errors.New("provider failure")

// fakeProvider is an in-memory ResourceProvider that records every call.
type fakeProvider struct {
	mu sync.Mutex

	groups          map[string]bool
	containerGroups []domain.ContainerGroup
	calls           []string
	specs           []ports.ContainerGroupSpec
	logs            string

	existsErr          error
	createGroupErr     error
	createContainerErr error
	deleteErr          map[string]error
	listErr            error
	logsErr            error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		groups:    make(map[string]bool),
		deleteErr: make(map[string]error),
	}
}

func (f *fakeProvider) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) ResourceGroupExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exists " + name)
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.groups[name], nil
}

func (f *fakeProvider) CreateResourceGroup(_ context.Context, name, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create-rg " + name + " " + location)
	if f.createGroupErr != nil {
		return f.createGroupErr
	}
	f.groups[name] = true
	return nil
}

func (f *fakeProvider) DeleteResourceGroup(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete-rg " + name)
	if err := f.deleteErr[name]; err != nil {
		return err
	}
	delete(f.groups, name)
	return nil
}

func (f *fakeProvider) CreateContainerGroup(_ context.Context, spec ports.ContainerGroupSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create-cg " + spec.Name)
	f.specs = append(f.specs, spec)
	return f.createContainerErr
}

func (f *fakeProvider) ListContainerGroups(context.Context) ([]domain.ContainerGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list-cg")
	return f.containerGroups, f.listErr
}

func (f *fakeProvider) ContainerLogs(_ context.Context, names domain.SessionNames, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("logs " + names.ContainerGroup + " " + names.Container)
	return f.logs, f.logsErr
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeProber struct {
	err    error
	probed []string
}

func (p *fakeProber) ProbeImage(_ context.Context, image string) error {
	p.probed = append(p.probed, image)
	return p.err
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(provider ports.ResourceProvider, prober ports.ImageProber) *SessionService {
	return NewSessionService(provider, prober, lock.NewMemory(), testLogger(), Options{})
}
