// internal/apiclient/provisioner.go
package apiclient

import (
	"context"

	"github.com/xkilldash9x/demoqa-e2e/internal/session"
	"go.uber.org/zap"
)

// Provisioner opens an api-kind session: a fresh cookie jar and the client bound to it.
type Provisioner struct {
	opts   Options
	logger *zap.Logger
	client *Client
}

// NewProvisioner returns a provisioner for one api session.
func NewProvisioner(opts Options, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{opts: opts, logger: logger}
}

func (p *Provisioner) Kind() session.Kind { return session.KindAPI }

func (p *Provisioner) Layers() []session.Layer {
	return []session.Layer{{
		Name: "api client",
		Open: func(context.Context) error {
			c, err := New(p.opts, p.logger)
			if err != nil {
				return err
			}
			p.client = c
			return nil
		},
		Close: func(context.Context) error {
			if p.client != nil {
				p.client.Close()
				p.client = nil
			}
			return nil
		},
	}}
}

func (p *Provisioner) Surface() session.Surface {
	return session.Surface{API: p.client}
}
