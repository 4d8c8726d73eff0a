package amqp

import (
	"encoding/json"
	"time"
)

const (
	TriggerEmployerTax        = "employer_tax"
	TriggerEmployerTaxCleanup = "employer_tax_cleanup"
	TriggerYearlyVat          = "yearly_vat"
	TriggerYearlyVatCleanup   = "yearly_vat_cleanup"
)

// GenerationTriggerMessage asks the worker to run one of the tax/VAT
// generators for an owner. An empty Years slice means "every year present
// in the owner's ledger"; the worker resolves it against a fresh snapshot.
type GenerationTriggerMessage struct {
	Owner     string    `json:"owner"`
	Trigger   string    `json:"trigger"`
	Years     []int     `json:"years,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewGenerationTriggerMessage creates a trigger message stamped with now.
func NewGenerationTriggerMessage(owner, trigger string, years []int) *GenerationTriggerMessage {
	return &GenerationTriggerMessage{
		Owner:     owner,
		Trigger:   trigger,
		Years:     years,
		Timestamp: time.Now(),
	}
}

func (m *GenerationTriggerMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func GenerationTriggerMessageFromJSON(data []byte) (*GenerationTriggerMessage, error) {
	var msg GenerationTriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EntryMirrorMessage tells the worker to mirror a freshly inserted ledger
// entry to the bookkeeping spreadsheet. Only the ID travels; the worker
// fetches the row from the store.
type EntryMirrorMessage struct {
	Owner     string    `json:"owner"`
	EntryID   int64     `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryMirrorMessage(owner string, entryID int64) *EntryMirrorMessage {
	return &EntryMirrorMessage{
		Owner:     owner,
		EntryID:   entryID,
		Timestamp: time.Now(),
	}
}

func (m *EntryMirrorMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryMirrorMessageFromJSON(data []byte) (*EntryMirrorMessage, error) {
	var msg EntryMirrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
