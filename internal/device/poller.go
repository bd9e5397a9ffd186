package device

import (
	"context"
	"time"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

// poll keeps every pollable parameter fresh. It runs on the supervisor
// goroutine after the connect-time sweep and queues its queries through the
// same execution lock as user writes, so poll traffic can never interleave
// with a command/read-back pair. A transport error suspends polling and is
// returned to the supervisor, which tears the link down and reconnects.
func (d *Device) poll(ctx context.Context) error {
	bindings := d.sch.PollBindings()
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	last := make(map[string]time.Time, len(bindings))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-d.faults:
			return err
		case now := <-ticker.C:
			for _, b := range bindings {
				if interval := d.pollIntervalFor(b.Descriptor); now.Sub(last[b.ID()]) < interval {
					continue
				}
				_, err := d.Query(b.Descriptor.Key, channelOf(b))
				if err != nil {
					if isTransportErr(err) {
						return err
					}
					continue // parameter-level, already reported
				}
				last[b.ID()] = now
			}
		}
	}
}

// pollIntervalFor resolves the effective refresh period: the descriptor's
// own interval when set, floored by the device-global minimum.
func (d *Device) pollIntervalFor(desc *schema.Descriptor) time.Duration {
	iv := desc.PollInterval
	if iv < d.cfg.PollInterval {
		iv = d.cfg.PollInterval
	}
	return iv
}
