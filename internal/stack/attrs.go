package stack

import (
	"fmt"
	"time"

	"github.com/sweeney/contact-sensor/internal/zcl"
)

type attrKey struct {
	cluster zcl.ClusterID
	role    zcl.Role
	attr    zcl.AttrID
}

type attr struct {
	desc  zcl.AttrDesc
	value zcl.Value
}

type endpoint struct {
	desc  zcl.EndpointDesc
	attrs map[attrKey]*attr
}

type slot struct {
	info   zcl.ReportingInfo
	marked bool
	last   time.Time
}

// RegisterEndpoint adds an endpoint with its clusters and default attribute
// values. Registering an id twice replaces the earlier endpoint.
func (e *Engine) RegisterEndpoint(d zcl.EndpointDesc) error {
	if d.ID == 0 || d.ID > 240 {
		return fmt.Errorf("stack: endpoint %d out of range", d.ID)
	}
	ep := &endpoint{desc: d, attrs: map[attrKey]*attr{}}
	for _, c := range d.Clusters {
		for _, a := range c.Attrs {
			ep.attrs[attrKey{c.ID, c.Role, a.ID}] = &attr{desc: a, value: a.Default}
		}
	}
	e.attrMu.Lock()
	e.endpoints[d.ID] = ep
	e.attrMu.Unlock()
	e.log.Info().
		Uint8("endpoint", d.ID).
		Interface("in", d.InClusters()).
		Interface("out", d.OutClusters()).
		Msg("endpoint registered")
	return nil
}

func (e *Engine) attrLocked(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID) (*attr, error) {
	p, ok := e.endpoints[ep]
	if !ok {
		return nil, fmt.Errorf("endpoint %d: %w", ep, ErrUnknownAttribute)
	}
	a, ok := p.attrs[attrKey{cluster, role, id}]
	if !ok {
		return nil, fmt.Errorf("endpoint %d cluster %s attr %#04x: %w", ep, cluster, uint16(id), ErrUnknownAttribute)
	}
	return a, nil
}

// GetAttr returns the current value of an attribute.
func (e *Engine) GetAttr(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID) (zcl.Value, error) {
	e.attrMu.Lock()
	defer e.attrMu.Unlock()
	a, err := e.attrLocked(ep, cluster, role, id)
	if err != nil {
		return zcl.Value{}, err
	}
	return a.value, nil
}

// SetAttr writes an attribute. With check set, writes to attributes without
// write access fail with ErrReadOnly. A reportable attribute with a configured
// reporting slot is marked when the change reaches the slot's reportable
// change. Safe from any goroutine; reports go out when the engine next wakes.
func (e *Engine) SetAttr(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID, v zcl.Value, check bool) error {
	e.attrMu.Lock()
	defer e.attrMu.Unlock()
	a, err := e.attrLocked(ep, cluster, role, id)
	if err != nil {
		return err
	}
	if check && a.desc.Access&zcl.AccessWrite == 0 {
		return ErrReadOnly
	}
	if v.Type != a.desc.Default.Type {
		return fmt.Errorf("stack: attr %#04x: type %d, want %d: %w", uint16(id), v.Type, a.desc.Default.Type, ErrBadType)
	}
	changed := a.value != v
	a.value = v

	if changed && a.desc.Reportable() {
		if s := e.slotLocked(ep, cluster, role, id); s != nil {
			if s.info.ReportableChange == 0 || v.Diff(s.info.ReportedValue) >= s.info.ReportableChange {
				s.marked = true
			}
		}
	}
	return nil
}

// MarkForReporting forces a report of the attribute at the next opportunity.
func (e *Engine) MarkForReporting(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID) error {
	e.attrMu.Lock()
	defer e.attrMu.Unlock()
	s := e.slotLocked(ep, cluster, role, id)
	if s == nil {
		return fmt.Errorf("stack: no reporting configured for attr %#04x: %w", uint16(id), ErrUnknownAttribute)
	}
	s.marked = true
	return nil
}

func (e *Engine) slotLocked(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID) *slot {
	for _, s := range e.slots {
		if s.info.Endpoint == ep && s.info.Cluster == cluster && s.info.Role == role && s.info.Attr == id {
			return s
		}
	}
	return nil
}

// ConfigureReporting installs a reporting policy. An existing policy for the
// same attribute is overwritten only when replace is set. MaxInterval
// zcl.ReportDisabled removes the slot.
func (e *Engine) ConfigureReporting(info zcl.ReportingInfo, replace bool) error {
	e.attrMu.Lock()
	defer e.attrMu.Unlock()
	a, err := e.attrLocked(info.Endpoint, info.Cluster, info.Role, info.Attr)
	if err != nil {
		return err
	}

	s := e.slotLocked(info.Endpoint, info.Cluster, info.Role, info.Attr)
	if info.MaxInterval == zcl.ReportDisabled {
		if s != nil {
			e.removeSlotLocked(s)
		}
		return nil
	}
	if s != nil {
		if !replace {
			return nil
		}
		info.ReportedValue = s.info.ReportedValue
		s.info = info
		return nil
	}
	if len(e.slots) >= e.maxSlots {
		return ErrTableFull
	}
	info.ReportedValue = a.value
	e.slots = append(e.slots, &slot{info: info})
	return nil
}

func (e *Engine) removeSlotLocked(s *slot) {
	for i, o := range e.slots {
		if o == s {
			e.slots = append(e.slots[:i], e.slots[i+1:]...)
			return
		}
	}
}

// StartReporting marks the attribute so its current value is reported once
// reporting is possible.
func (e *Engine) StartReporting(ep uint8, cluster zcl.ClusterID, role zcl.Role, id zcl.AttrID) error {
	if err := e.MarkForReporting(ep, cluster, role, id); err != nil {
		return err
	}
	e.kick()
	return nil
}

// ReportingInfo returns the policy in reporting slot i.
func (e *Engine) ReportingInfo(i int) (zcl.ReportingInfo, bool) {
	e.attrMu.Lock()
	defer e.attrMu.Unlock()
	if i < 0 || i >= len(e.slots) {
		return zcl.ReportingInfo{}, false
	}
	return e.slots[i].info, true
}

// ReportingSlots returns the reporting table capacity.
func (e *Engine) ReportingSlots() int {
	return e.maxSlots
}

func due(s *slot, now time.Time) bool {
	if s.marked {
		return s.last.IsZero() || now.Sub(s.last) >= time.Duration(s.info.MinInterval)*time.Second
	}
	if s.info.MaxInterval == zcl.ReportNoPeriodic || s.info.MaxInterval == zcl.ReportDisabled {
		return false
	}
	return !s.last.IsZero() && now.Sub(s.last) >= time.Duration(s.info.MaxInterval)*time.Second
}

// flushReports sends every report that is due. Runs in the engine context.
func (e *Engine) flushReports() {
	if !e.joined.Load() {
		return
	}
	now := e.now()

	var out []Report
	e.attrMu.Lock()
	for _, s := range e.slots {
		if !due(s, now) {
			continue
		}
		a, err := e.attrLocked(s.info.Endpoint, s.info.Cluster, s.info.Role, s.info.Attr)
		if err != nil {
			continue
		}
		s.marked = false
		s.last = now
		s.info.ReportedValue = a.value
		out = append(out, Report{
			SrcEndpoint: s.info.Endpoint,
			Dst:         s.info.Dst,
			Cluster:     s.info.Cluster,
			Attr:        s.info.Attr,
			Value:       a.value,
		})
	}
	e.attrMu.Unlock()

	for _, r := range out {
		if err := e.transport.SendReport(r); err != nil {
			e.log.Warn().Err(err).Stringer("cluster", r.Cluster).Uint16("attr", uint16(r.Attr)).Msg("report not sent")
			continue
		}
		e.reportsSent.Add(1)
	}
}

func (e *Engine) nextReportDue() (time.Time, bool) {
	if !e.joined.Load() {
		return time.Time{}, false
	}
	e.attrMu.Lock()
	defer e.attrMu.Unlock()
	var next time.Time
	found := false
	consider := func(t time.Time) {
		if !found || t.Before(next) {
			next, found = t, true
		}
	}
	for _, s := range e.slots {
		if s.last.IsZero() {
			if s.marked {
				consider(e.now())
			}
			continue
		}
		if s.marked {
			consider(s.last.Add(time.Duration(s.info.MinInterval) * time.Second))
		}
		if s.info.MaxInterval != zcl.ReportNoPeriodic && s.info.MaxInterval != zcl.ReportDisabled {
			consider(s.last.Add(time.Duration(s.info.MaxInterval) * time.Second))
		}
	}
	return next, found
}
