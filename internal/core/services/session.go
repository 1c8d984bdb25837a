package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

// Fixed deployment parameters of every session container.
const (
	Region              = "italynorth"
	ContainerCPU        = 1.0
	ContainerMemoryInGB = 1.5
)

const (
	msgImageMissing      = "image does not exist"
	msgAlreadyExists     = "container already exists"
	msgCreateFailed      = "resource group could not be created"
	msgGroupNotFound     = "resource group could not be found"
	msgNoContainers      = "no running containers found"
	msgListFailed        = "container groups could not be listed"
	msgLogsNotFound      = "container logs could not be found"
	msgInvalidGroupName  = "resource_group_name is not a session resource group"
	msgMissingGroupName  = "resource_group_name is required"
	msgSessionLockFailed = "session lock could not be acquired"
)

// Options tunes the session service. The zero value is usable.
type Options struct {
	// OperationTimeout bounds each remote call. Zero leaves the bound to the
	// request context and the provider client.
	OperationTimeout time.Duration
	// SweepConcurrency is the number of resource groups StopAllSessions
	// deletes at once. Values below 1 mean one at a time.
	SweepConcurrency int
}

// SessionService implements ports.SessionService on top of a ResourceProvider.
type SessionService struct {
	provider ports.ResourceProvider
	prober   ports.ImageProber
	locker   ports.SessionLocker
	log      logrus.FieldLogger
	opts     Options
}

var _ ports.SessionService = (*SessionService)(nil)

// NewSessionService wires the lifecycle manager. A nil prober disables the
// image check.
func NewSessionService(provider ports.ResourceProvider, prober ports.ImageProber, locker ports.SessionLocker, log logrus.FieldLogger, opts Options) *SessionService {
	return &SessionService{
		provider: provider,
		prober:   prober,
		locker:   locker,
		log:      log.WithField("component", "services.session"),
		opts:     opts,
	}
}

// StartSession provisions the resource group and container group of a
// (title, user) session. If the container group cannot be created the
// resource group is deleted again before the error is returned.
func (s *SessionService) StartSession(ctx context.Context, req domain.StartRequest) (domain.Session, error) {
	openPorts, err := validateStart(req)
	if err != nil {
		return domain.Session{}, err
	}

	names := domain.NewSessionNames(req.Title, req.User)
	log := s.log.WithFields(logrus.Fields{
		"resource_group": names.ResourceGroup,
		"image":          req.Image,
	})

	if s.prober != nil {
		if err := s.prober.ProbeImage(ctx, req.Image); err != nil {
			log.WithError(err).Info("Image probe failed")
			return domain.Session{}, domain.NewError(domain.KindBadRequest, msgImageMissing, err)
		}
	}

	unlock, err := s.locker.TryLock(ctx, names.ResourceGroup)
	if errors.Is(err, ports.ErrLocked) {
		log.Info("Session is being provisioned by another request")
		return domain.Session{}, domain.NewError(domain.KindConflict, msgAlreadyExists, err)
	}
	if err != nil {
		return domain.Session{}, domain.NewError(domain.KindInternal, msgSessionLockFailed, err)
	}
	defer unlock()

	exists, err := s.resourceGroupExists(ctx, names.ResourceGroup)
	if err != nil {
		return domain.Session{}, domain.NewError(domain.KindInternal, msgCreateFailed, err)
	}
	if exists {
		return domain.Session{}, domain.NewError(domain.KindConflict, msgAlreadyExists, nil)
	}

	if err := s.createResourceGroup(ctx, names.ResourceGroup); err != nil {
		log.WithError(err).Error("Failed to create resource group")
		return domain.Session{}, domain.NewError(domain.KindInternal, msgCreateFailed, err)
	}

	spec := ports.ContainerGroupSpec{
		Name:          names.ContainerGroup,
		ResourceGroup: names.ResourceGroup,
		Location:      Region,
		DNSLabel:      names.DNSLabel,
		Container: ports.ContainerSpec{
			Name:       names.Container,
			Image:      req.Image,
			CPU:        ContainerCPU,
			MemoryInGB: ContainerMemoryInGB,
			Env:        req.Env,
			Ports:      openPorts,
		},
	}
	if err := s.createContainerGroup(ctx, spec); err != nil {
		log.WithError(err).Error("Failed to create container group, deleting resource group")
		// The rollback must run even when the caller has gone away.
		if rbErr := s.deleteResourceGroup(context.WithoutCancel(ctx), names.ResourceGroup); rbErr != nil {
			log.WithError(rbErr).Error("Rollback of resource group failed")
		}
		return domain.Session{}, domain.NewError(domain.KindInternal, msgCreateFailed, err)
	}

	log.Info("Session started")
	return domain.Session{
		ResourceGroup:  names.ResourceGroup,
		ContainerGroup: names.ContainerGroup,
		DNS:            names.FQDN(Region),
	}, nil
}

// StopSession deletes a session's resource group and everything in it.
func (s *SessionService) StopSession(ctx context.Context, resourceGroup string) error {
	if resourceGroup == "" {
		return domain.BadRequest(msgMissingGroupName)
	}
	if err := s.deleteResourceGroup(ctx, resourceGroup); err != nil {
		s.log.WithError(err).WithField("resource_group", resourceGroup).Info("Failed to delete resource group")
		return domain.NewError(domain.KindNotFound, msgGroupNotFound, err)
	}
	s.log.WithField("resource_group", resourceGroup).Info("Session stopped")
	return nil
}

// SessionLogs returns the output of the session's container.
func (s *SessionService) SessionLogs(ctx context.Context, resourceGroup string, tail int) (string, error) {
	if resourceGroup == "" {
		return "", domain.BadRequest(msgMissingGroupName)
	}
	names, ok := domain.NamesFromResourceGroup(resourceGroup)
	if !ok {
		return "", domain.BadRequest(msgInvalidGroupName)
	}
	if tail < 0 {
		return "", domain.BadRequest("tail must not be negative")
	}

	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	logs, err := s.provider.ContainerLogs(ctx, names, tail)
	if err != nil {
		s.log.WithError(err).WithField("resource_group", resourceGroup).Info("Failed to fetch container logs")
		return "", domain.NewError(domain.KindNotFound, msgLogsNotFound, err)
	}
	return logs, nil
}

func validateStart(req domain.StartRequest) ([]int, error) {
	switch {
	case req.Title == "":
		return nil, domain.BadRequest("maze_title is required")
	case req.User == "":
		return nil, domain.BadRequest("user_name is required")
	case req.Image == "":
		return nil, domain.BadRequest("container_image is required")
	case len(req.Ports) == 0:
		return nil, domain.BadRequest("open_ports is required")
	case len(req.Env) == 0:
		return nil, domain.BadRequest("environment_variables is required")
	}

	seen := make(map[int]struct{}, len(req.Ports))
	openPorts := make([]int, 0, len(req.Ports))
	for _, p := range req.Ports {
		if p < 1 || p > 65535 {
			return nil, domain.BadRequest(fmt.Sprintf("open_ports contains invalid port %d", p))
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		openPorts = append(openPorts, p)
	}
	return openPorts, nil
}

func (s *SessionService) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OperationTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *SessionService) resourceGroupExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.provider.ResourceGroupExists(ctx, name)
}

func (s *SessionService) createResourceGroup(ctx context.Context, name string) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.provider.CreateResourceGroup(ctx, name, Region)
}

func (s *SessionService) createContainerGroup(ctx context.Context, spec ports.ContainerGroupSpec) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.provider.CreateContainerGroup(ctx, spec)
}

// deleteResourceGroup is the delete-and-wait primitive shared by StopSession,
// the rollback path and the fleet sweep.
func (s *SessionService) deleteResourceGroup(ctx context.Context, name string) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.provider.DeleteResourceGroup(ctx, name)
}
