package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
)

// StopAllSessions deletes the resource group of every live container group
// and returns the names it processed, in listing order. A failed delete is
// logged and still reported as processed.
func (s *SessionService) StopAllSessions(ctx context.Context) ([]string, error) {
	groups, err := s.listContainerGroups(ctx)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, domain.NewError(domain.KindNotFound, msgNoContainers, nil)
	}

	resourceGroups := make([]string, len(groups))
	for i, cg := range groups {
		resourceGroups[i] = resourceGroupOf(cg)
	}

	limit := s.opts.SweepConcurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, name := range resourceGroups {
		name := name
		g.Go(func() error {
			log := s.log.WithField("resource_group", name)
			if err := s.deleteResourceGroup(ctx, name); err != nil {
				log.WithError(err).Warn("Failed to delete resource group during sweep")
				return nil
			}
			log.Info("Resource group deleted during sweep")
			return nil
		})
	}
	// Delete failures are logged per group and never abort the sweep.
	_ = g.Wait()

	return resourceGroups, nil
}

// ListSessions reports every live container group as a session.
func (s *SessionService) ListSessions(ctx context.Context) ([]domain.Session, error) {
	groups, err := s.listContainerGroups(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]domain.Session, 0, len(groups))
	for _, cg := range groups {
		sessions = append(sessions, domain.Session{
			ResourceGroup:  resourceGroupOf(cg),
			ContainerGroup: cg.Name,
			DNS:            cg.FQDN,
			State:          cg.State,
		})
	}
	return sessions, nil
}

func (s *SessionService) listContainerGroups(ctx context.Context) ([]domain.ContainerGroup, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	groups, err := s.provider.ListContainerGroups(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to list container groups")
		return nil, domain.NewError(domain.KindInternal, msgListFailed, err)
	}
	return groups, nil
}

// resourceGroupOf prefers the owner recorded at creation and falls back to
// reversing the naming scheme for untagged groups.
func resourceGroupOf(cg domain.ContainerGroup) string {
	if cg.ResourceGroup != "" {
		return cg.ResourceGroup
	}
	return domain.ResourceGroupForContainerGroup(cg.Name)
}
