package session

import (
	"github.com/aptpod/mdrouter-go/errors"
)

// serviceGroupは、優先順位付きのサービス名の一覧（サービスリスト）です。
type serviceGroup struct {
	name    string
	members []string
}

type serviceGroups struct {
	byName map[string]*serviceGroup
}

func newServiceGroups(confs []ServiceGroupConfig) (*serviceGroups, error) {
	res := &serviceGroups{byName: make(map[string]*serviceGroup, len(confs))}
	for _, c := range confs {
		if c.Name == "" {
			return nil, errors.Errorf("empty service list name: %w", errors.ErrInvalidServiceGroup)
		}
		if _, ok := res.byName[c.Name]; ok {
			return nil, errors.Errorf("duplicate service list name %q: %w", c.Name, errors.ErrInvalidServiceGroup)
		}
		if len(c.Services) == 0 {
			return nil, errors.Errorf("service list %q has no service: %w", c.Name, errors.ErrInvalidServiceGroup)
		}
		members := make([]string, 0, len(c.Services))
		for _, s := range c.Services {
			if s == "" {
				return nil, errors.Errorf("empty service name in service list %q: %w", c.Name, errors.ErrInvalidServiceGroup)
			}
			members = append(members, s)
		}
		res.byName[c.Name] = &serviceGroup{name: c.Name, members: members}
	}
	return res, nil
}

func (g *serviceGroups) lookup(name string) (*serviceGroup, bool) {
	v, ok := g.byName[name]
	return v, ok
}
