package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

func validRequest() domain.StartRequest {
	return domain.StartRequest{
		Title: "Labyrinth",
		User:  "alice",
		Image: "nginx",
		Env:   map[string]string{"PORT": "80"},
		Ports: []int{80},
	}
}

func TestStartSessionValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.StartRequest)
	}{
		{"missing title", func(r *domain.StartRequest) { r.Title = "" }},
		{"missing user", func(r *domain.StartRequest) { r.User = "" }},
		{"missing image", func(r *domain.StartRequest) { r.Image = "" }},
		{"no ports", func(r *domain.StartRequest) { r.Ports = nil }},
		{"no env", func(r *domain.StartRequest) { r.Env = map[string]string{} }},
		{"port zero", func(r *domain.StartRequest) { r.Ports = []int{0} }},
		{"port too high", func(r *domain.StartRequest) { r.Ports = []int{80, 70000} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			prober := &fakeProber{}
			svc := newTestService(provider, prober)

			req := validRequest()
			tt.mutate(&req)
			_, err := svc.StartSession(context.Background(), req)

			require.Error(t, err)
			assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
			assert.Empty(t, provider.Calls())
			assert.Empty(t, prober.probed)
		})
	}
}

func TestStartSessionSuccess(t *testing.T) {
	provider := newFakeProvider()
	svc := newTestService(provider, nil)

	req := validRequest()
	req.Ports = []int{80, 443, 80}
	session, err := svc.StartSession(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "labyrinth-alice-rg", session.ResourceGroup)
	assert.Equal(t, "labyrinth-alice.italynorth.azurecontainer.io", session.DNS)
	assert.Equal(t, []string{
		"exists labyrinth-alice-rg",
		"create-rg labyrinth-alice-rg italynorth",
		"create-cg labyrinth-alice-container-group",
	}, provider.Calls())

	require.Len(t, provider.specs, 1)
	spec := provider.specs[0]
	assert.Equal(t, "labyrinth-alice-rg", spec.ResourceGroup)
	assert.Equal(t, "labyrinth-alice", spec.DNSLabel)
	assert.Equal(t, Region, spec.Location)
	assert.Equal(t, "labyrinth-alice-container", spec.Container.Name)
	assert.Equal(t, "nginx", spec.Container.Image)
	assert.Equal(t, ContainerCPU, spec.Container.CPU)
	assert.Equal(t, ContainerMemoryInGB, spec.Container.MemoryInGB)
	assert.Equal(t, map[string]string{"PORT": "80"}, spec.Container.Env)
	assert.Equal(t, []int{80, 443}, spec.Container.Ports)
}

func TestStartSessionTwiceConflicts(t *testing.T) {
	provider := newFakeProvider()
	svc := newTestService(provider, nil)

	_, err := svc.StartSession(context.Background(), validRequest())
	require.NoError(t, err)
	before := len(provider.Calls())

	_, err = svc.StartSession(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, "container already exists", domain.MessageOf(err))

	after := provider.Calls()[before:]
	assert.Equal(t, []string{"exists labyrinth-alice-rg"}, after)
}

func TestStartSessionRollsBackOnContainerGroupFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.createContainerErr = errProvider
	svc := newTestService(provider, nil)

	_, err := svc.StartSession(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, "resource group could not be created", domain.MessageOf(err))
	assert.ErrorIs(t, err, errProvider)

	assert.Equal(t, []string{
		"exists labyrinth-alice-rg",
		"create-rg labyrinth-alice-rg italynorth",
		"create-cg labyrinth-alice-container-group",
		"delete-rg labyrinth-alice-rg",
	}, provider.Calls())
	assert.False(t, provider.groups["labyrinth-alice-rg"])
}

func TestStartSessionRollbackFailureStillReportsInternal(t *testing.T) {
	provider := newFakeProvider()
	provider.createContainerErr = errProvider
	provider.deleteErr["labyrinth-alice-rg"] = errors.New("delete failed")
	svc := newTestService(provider, nil)

	_, err := svc.StartSession(context.Background(), validRequest())
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	deletes := 0
	for _, c := range provider.Calls() {
		if c == "delete-rg labyrinth-alice-rg" {
			deletes++
		}
	}
	assert.Equal(t, 1, deletes, "rollback must not be retried")
}

func TestStartSessionResourceGroupCreateFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.createGroupErr = errProvider
	svc := newTestService(provider, nil)

	_, err := svc.StartSession(context.Background(), validRequest())
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, []string{
		"exists labyrinth-alice-rg",
		"create-rg labyrinth-alice-rg italynorth",
	}, provider.Calls())
}

func TestStartSessionImageProbe(t *testing.T) {
	provider := newFakeProvider()
	prober := &fakeProber{err: errors.New("manifest unknown")}
	svc := newTestService(provider, prober)

	_, err := svc.StartSession(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
	assert.Equal(t, "image does not exist", domain.MessageOf(err))
	assert.Equal(t, []string{"nginx"}, prober.probed)
	assert.Empty(t, provider.Calls())

	prober.err = nil
	_, err = svc.StartSession(context.Background(), validRequest())
	require.NoError(t, err)
}

func TestStartSessionLockHeldConflicts(t *testing.T) {
	provider := newFakeProvider()
	svc := newTestService(provider, nil)

	unlock, err := svc.locker.TryLock(context.Background(), "labyrinth-alice-rg")
	require.NoError(t, err)
	defer unlock()

	_, err = svc.StartSession(context.Background(), validRequest())
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.ErrorIs(t, err, ports.ErrLocked)
	assert.Empty(t, provider.Calls())
}

func TestStartSessionExistenceCheckFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.existsErr = errProvider
	svc := newTestService(provider, nil)

	_, err := svc.StartSession(context.Background(), validRequest())
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, []string{"exists labyrinth-alice-rg"}, provider.Calls())
}

func TestStopSession(t *testing.T) {
	provider := newFakeProvider()
	provider.deleteErr["missing-rg"] = errProvider
	svc := newTestService(provider, nil)

	err := svc.StopSession(context.Background(), "")
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	err = svc.StopSession(context.Background(), "missing-rg")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Equal(t, "resource group could not be found", domain.MessageOf(err))

	require.NoError(t, svc.StopSession(context.Background(), "labyrinth-alice-rg"))
	assert.Equal(t, []string{"delete-rg missing-rg", "delete-rg labyrinth-alice-rg"}, provider.Calls())
}

func TestSessionLogs(t *testing.T) {
	provider := newFakeProvider()
	provider.logs = "listening on :80\n"
	svc := newTestService(provider, nil)

	logs, err := svc.SessionLogs(context.Background(), "labyrinth-alice-rg", 10)
	require.NoError(t, err)
	assert.Equal(t, "listening on :80\n", logs)
	assert.Equal(t, []string{"logs labyrinth-alice-container-group labyrinth-alice-container"}, provider.Calls())

	_, err = svc.SessionLogs(context.Background(), "not-a-session", 0)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	_, err = svc.SessionLogs(context.Background(), "labyrinth-alice-rg", -1)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	provider.logsErr = errProvider
	_, err = svc.SessionLogs(context.Background(), "labyrinth-alice-rg", 0)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
