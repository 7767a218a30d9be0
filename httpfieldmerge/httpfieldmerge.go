// Package httpfieldmerge merges HTTP-related fields from various vendors
// into one unified set. Only templates are modified; data records are
// passed through untouched. Each supported vendor encoding of HTTP
// hostname, URL and user agent is recognized from the template's field
// identities and rewritten in place to the unified PEN 44913 identities.
package httpfieldmerge

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Secdorks/ipfixcol/decoders/ipfix"
	"github.com/Secdorks/ipfixcol/mapper"
	"github.com/Secdorks/ipfixcol/metrics"
	"github.com/Secdorks/ipfixcol/state"
)

// Stats counts engine activity for one session. Recognitions in
// particular observes that classification runs once per distinct template
// definition, not once per message.
type Stats struct {
	Messages     uint64
	ParseErrors  uint64
	Recognitions uint64
	Rewritten    uint64
	Withdrawals  uint64
}

// Processor rewrites the templates of one exporter session. It owns the
// session's verdict store and must be fed one message at a time; an
// internal lock makes concurrent dispatch by the host safe.
type Processor struct {
	key      string
	vendors  []mapper.Vendor
	byName   map[string]mapper.Vendor
	verdicts state.VerdictSystem

	// template ids with a memoized verdict this session, per observation
	// domain, so an all-templates withdrawal can purge them
	seen map[uint32]map[uint16]struct{}

	lock  sync.Mutex
	stats Stats
}

// NewProcessor creates a session processor. A duplicate vendor name is a
// configuration defect and fails construction.
func NewProcessor(key string, vendors []mapper.Vendor, verdicts state.VerdictSystem) (*Processor, error) {
	byName := make(map[string]mapper.Vendor, len(vendors))
	for _, vendor := range vendors {
		if _, ok := byName[vendor.Name]; ok {
			return nil, fmt.Errorf("duplicate vendor table %q", vendor.Name)
		}
		byName[vendor.Name] = vendor
	}
	return &Processor{
		key:      key,
		vendors:  vendors,
		byName:   byName,
		verdicts: verdicts,
		seen:     make(map[uint32]map[uint16]struct{}),
	}, nil
}

// Stats returns a copy of the session counters.
func (p *Processor) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stats
}

// ProcessMessage walks one IPFIX message and rewrites the field
// identities of every recognized template in place. The buffer length
// never changes. A structural parse error aborts the remainder of the
// message only: sets parsed before the error are still rewritten, and
// the error is returned for reporting while the buffer stays valid for
// forwarding.
func (p *Processor) ProcessMessage(msg []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.stats.Messages++
	metrics.MetricMessagesProcessed.With(prometheus.Labels{"exporter": p.key}).Inc()

	packet, derr := ipfix.DecodeMessage(msg)
	if derr != nil {
		p.stats.ParseErrors++
		metrics.MetricDecoderErrors.With(prometheus.Labels{"exporter": p.key}).Inc()
	}

	var err error
	for _, set := range packet.Sets {
		if !set.IsTemplateSet() {
			continue
		}
		setType := "template"
		if set.Id == ipfix.SetIdOptionsTemplate {
			setType = "options_template"
		}
		for _, record := range set.Records {
			switch {
			case record.WithdrawsAll():
				err = errors.Join(err, p.withdrawAll(packet.ObservationDomainId))
			case record.IsWithdrawal():
				err = errors.Join(err, p.withdraw(packet.ObservationDomainId, record.TemplateId))
			case record.TemplateId < ipfix.MinDataSetId:
				// reserved id, structurally valid but never a data template
			default:
				err = errors.Join(err, p.processTemplate(msg, packet.ObservationDomainId, record, setType))
			}
		}
	}

	return errors.Join(derr, err)
}

func (p *Processor) processTemplate(msg []byte, obsDomainId uint32, record ipfix.TemplateRecord, setType string) error {
	metrics.MetricTemplatesInspected.With(prometheus.Labels{"exporter": p.key, "type": setType}).Inc()

	digest := mapper.Digest(record.Fields)
	verdict, err := p.verdicts.Get(obsDomainId, record.TemplateId)
	if err != nil && !errors.Is(err, state.ErrVerdictNotFound) {
		return err
	}

	stale := err != nil || verdict.FieldsDigest != digest
	if !stale && verdict.Vendor != "" {
		if _, ok := p.byName[verdict.Vendor]; !ok {
			// verdict memoized under a vendor table that no longer exists
			stale = true
		}
	}

	if stale {
		p.stats.Recognitions++
		vendor, ok := mapper.Match(p.vendors, record.Fields)
		verdict = state.Verdict{FieldsDigest: digest}
		if ok {
			verdict.Vendor = vendor.Name
		}
		metrics.MetricRecognitions.With(prometheus.Labels{"exporter": p.key, "matched": strconv.FormatBool(ok)}).Inc()
		if err := p.verdicts.Add(obsDomainId, record.TemplateId, verdict); err != nil {
			return err
		}
	}
	p.remember(obsDomainId, record.TemplateId)

	if verdict.Vendor == "" {
		return nil
	}
	vendor := p.byName[verdict.Vendor]
	rewritten, err := vendor.Rewrite(msg, record)
	p.stats.Rewritten += uint64(rewritten)
	if rewritten > 0 {
		metrics.MetricFieldsRewritten.With(prometheus.Labels{"exporter": p.key, "vendor": vendor.Name}).Add(float64(rewritten))
	}
	return err
}

// withdraw purges the memoized verdict of a withdrawn template id, so a
// later reuse of the id is classified afresh.
func (p *Processor) withdraw(obsDomainId uint32, templateId uint16) error {
	p.stats.Withdrawals++
	metrics.MetricWithdrawals.With(prometheus.Labels{"exporter": p.key}).Inc()
	p.forget(obsDomainId, templateId)
	return p.verdicts.Remove(obsDomainId, templateId)
}

func (p *Processor) withdrawAll(obsDomainId uint32) error {
	var err error
	for templateId := range p.seen[obsDomainId] {
		p.stats.Withdrawals++
		metrics.MetricWithdrawals.With(prometheus.Labels{"exporter": p.key}).Inc()
		err = errors.Join(err, p.verdicts.Remove(obsDomainId, templateId))
	}
	delete(p.seen, obsDomainId)
	return err
}

func (p *Processor) remember(obsDomainId uint32, templateId uint16) {
	ids, ok := p.seen[obsDomainId]
	if !ok {
		ids = make(map[uint16]struct{})
		p.seen[obsDomainId] = ids
	}
	ids[templateId] = struct{}{}
}

func (p *Processor) forget(obsDomainId uint32, templateId uint16) {
	delete(p.seen[obsDomainId], templateId)
}
