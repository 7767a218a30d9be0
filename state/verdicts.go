package state

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
)

var StateVerdicts = flag.String("state.verdicts", "memory://", fmt.Sprintf("Define state verdicts engine URL (available schemes: %s)", strings.Join(SupportedSchemes, ", ")))
var verdictsDB State[VerdictKey, Verdict]

// ErrVerdictNotFound is returned when no verdict was memoized for a
// template id yet.
var ErrVerdictNotFound = fmt.Errorf("verdict not found")

// VerdictKey scopes a verdict to one exporter session, observation domain
// and template id.
type VerdictKey struct {
	Key         string `json:"key"`
	ObsDomainId uint32 `json:"obs"`
	TemplateId  uint16 `json:"tid"`
}

// Verdict is the memoized outcome of vendor recognition for one template
// definition. An empty Vendor means recognition ran and found no match;
// the absence of a verdict means recognition never ran. FieldsDigest
// identifies the field layout the verdict was computed from, so a
// redefinition under the same id is detected and reclassified.
type Verdict struct {
	Vendor       string `json:"vendor,omitempty"`
	FieldsDigest uint64 `json:"digest"`
}

// VerdictSystem is the memoization store owned by one exporter session.
type VerdictSystem interface {
	Get(obsDomainId uint32, templateId uint16) (Verdict, error)
	Add(obsDomainId uint32, templateId uint16, verdict Verdict) error
	Remove(obsDomainId uint32, templateId uint16) error
}

type verdictSystem struct {
	key string
}

func (s *verdictSystem) Get(obsDomainId uint32, templateId uint16) (Verdict, error) {
	v, err := verdictsDB.Get(VerdictKey{
		Key:         s.key,
		ObsDomainId: obsDomainId,
		TemplateId:  templateId,
	})
	if err != nil && errors.Is(err, ErrorKeyNotFound) {
		return v, ErrVerdictNotFound
	}
	return v, err
}

func (s *verdictSystem) Add(obsDomainId uint32, templateId uint16, verdict Verdict) error {
	return verdictsDB.Add(VerdictKey{
		Key:         s.key,
		ObsDomainId: obsDomainId,
		TemplateId:  templateId,
	}, verdict)
}

func (s *verdictSystem) Remove(obsDomainId uint32, templateId uint16) error {
	err := verdictsDB.Delete(VerdictKey{
		Key:         s.key,
		ObsDomainId: obsDomainId,
		TemplateId:  templateId,
	})
	if err != nil && errors.Is(err, ErrorKeyNotFound) {
		return nil
	}
	return err
}

// CreateVerdictSystem returns a verdict store scoped to a session key
// (typically the exporter address).
func CreateVerdictSystem(key string) VerdictSystem {
	return &verdictSystem{
		key: key,
	}
}

// InitVerdicts opens the backing store selected by the -state.verdicts
// flag. Must be called once before any verdict system is used.
func InitVerdicts() error {
	verdictsUrl, err := url.Parse(*StateVerdicts)
	if err != nil {
		return err
	}
	if !verdictsUrl.Query().Has("prefix") {
		q := verdictsUrl.Query()
		q.Set("prefix", "httpfieldmerge:verdicts:")
		verdictsUrl.RawQuery = q.Encode()
	}
	verdictsDB, err = NewState[VerdictKey, Verdict](verdictsUrl.String())
	return err
}

func CloseVerdicts() error {
	return verdictsDB.Close()
}
